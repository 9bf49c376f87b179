package registry

import "sync"

// Registry is the directory of named Scope instances running on one node.
// It is deliberately a flat map behind a mutex, not a supervisor: starting
// and stopping scopes is an operational concern left to cmd/node, and
// restart strategy is not addressed here.
type Registry struct {
	mu     sync.RWMutex
	scopes map[string]*Scope
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{scopes: make(map[string]*Scope)}
}

// Add registers scope under its own Name. It panics on a duplicate name;
// callers own scope lifecycle and are expected to construct each named
// scope exactly once during startup.
func (r *Registry) Add(scope *Scope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.scopes[scope.Name]; exists {
		panic("registry: duplicate scope name " + scope.Name)
	}
	r.scopes[scope.Name] = scope
}

// Get looks up a scope by name. The bool result is false, and the engine's
// callers should treat that as ErrInvalidScope, when no such scope was
// ever added.
func (r *Registry) Get(name string) (*Scope, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scopes[name]
	return s, ok
}

// Remove drops scope name from the directory and closes it. It is a noop
// if name is not registered.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	s, ok := r.scopes[name]
	delete(r.scopes, name)
	r.mu.Unlock()
	if ok {
		s.Close()
	}
}

// Names returns the names of every currently registered scope.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.scopes))
	for name := range r.scopes {
		out = append(out, name)
	}
	return out
}

// CloseAll closes every registered scope. Used for orderly process
// shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	scopes := make([]*Scope, 0, len(r.scopes))
	for _, s := range r.scopes {
		scopes = append(scopes, s)
	}
	r.scopes = make(map[string]*Scope)
	r.mu.Unlock()
	for _, s := range scopes {
		s.Close()
	}
}
