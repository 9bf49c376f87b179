package liveness

import (
	"sync"
	"sync/atomic"

	"github.com/kaivolabs/pgreg/pkg/registry"
)

// Monitor is the in-process Monitor implementation. It tracks a set of
// registered tasks and fans out death notifications to every outstanding
// subscription on a single shared channel. It delivers at most one Death
// per subscription, and Unsubscribe is idempotent. Unsubscribe only
// suppresses a Death that has not been triggered yet: once Kill has taken
// a subscription off its table, or Subscribe on a dead handle has started
// its delivery goroutine, that Death still arrives on Deaths.
type Monitor struct {
	mu      sync.Mutex
	alive   map[registry.Handle]bool
	subs    map[registry.MonitorRef]subscription
	nextRef uint64
	deaths  chan registry.Death
}

type subscription struct {
	handle    registry.Handle
	cancelled bool
}

// NewMonitor returns an empty Monitor. bufSize sizes the Deaths channel;
// the scope task drains it continuously, so a small buffer is enough to
// absorb a burst of simultaneous exits without blocking Kill.
func NewMonitor(bufSize int) *Monitor {
	return &Monitor{
		alive:  make(map[registry.Handle]bool),
		subs:   make(map[registry.MonitorRef]subscription),
		deaths: make(chan registry.Death, bufSize),
	}
}

// Register marks h as alive. Tasks default to dead until registered, so
// that Subscribe on an unregistered handle still delivers a death.
func (m *Monitor) Register(h registry.Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alive[h] = true
}

// Kill marks h dead and delivers exactly one Death to every subscription
// currently outstanding for h, then drops those subscriptions. reason is
// carried verbatim into registry.Reason's Detail field by the scope task.
func (m *Monitor) Kill(h registry.Handle, reason string) {
	m.mu.Lock()
	m.alive[h] = false
	var refs []registry.MonitorRef
	for ref, sub := range m.subs {
		if sub.handle == h && !sub.cancelled {
			refs = append(refs, ref)
			delete(m.subs, ref)
		}
	}
	m.mu.Unlock()

	for _, ref := range refs {
		m.deaths <- registry.Death{Ref: ref, Handle: h, Reason: reason}
	}
}

func (m *Monitor) Alive(h registry.Handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alive[h]
}

func (m *Monitor) Subscribe(h registry.Handle) registry.MonitorRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref := registry.MonitorRef(atomic.AddUint64(&m.nextRef, 1))
	if !m.alive[h] {
		// Deliver the death asynchronously so Subscribe never blocks on a
		// full channel while holding the lock.
		go func() { m.deaths <- registry.Death{Ref: ref, Handle: h, Reason: "not_alive"} }()
		return ref
	}
	m.subs[ref] = subscription{handle: h}
	return ref
}

func (m *Monitor) Unsubscribe(ref registry.MonitorRef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, ref)
}

func (m *Monitor) Deaths() <-chan registry.Death {
	return m.deaths
}
