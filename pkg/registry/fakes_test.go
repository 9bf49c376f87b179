package registry

import (
	"context"
	"sync"
)

// fakeMonitor is an in-process registry.Monitor stand-in: Subscribe/
// Unsubscribe/Deaths follow the real contract except that Subscribe on a
// handle not marked alive delivers no Death, and Kill lets tests drive
// death notifications deterministically without a real task supervisor.
type fakeMonitor struct {
	mu     sync.Mutex
	alive  map[Handle]bool
	subs   map[MonitorRef]Handle
	nextID int
	deaths chan Death
}

func newFakeMonitor() *fakeMonitor {
	return &fakeMonitor{
		alive:  make(map[Handle]bool),
		subs:   make(map[MonitorRef]Handle),
		deaths: make(chan Death, 64),
	}
}

func (m *fakeMonitor) setAlive(h Handle, alive bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alive[h] = alive
}

func (m *fakeMonitor) Kill(h Handle, reason string) {
	m.mu.Lock()
	m.alive[h] = false
	var refs []MonitorRef
	for ref, sub := range m.subs {
		if sub == h {
			refs = append(refs, ref)
			delete(m.subs, ref)
		}
	}
	m.mu.Unlock()
	for _, ref := range refs {
		m.deaths <- Death{Ref: ref, Handle: h, Reason: reason}
	}
}

func (m *fakeMonitor) Alive(h Handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alive[h]
}

func (m *fakeMonitor) Subscribe(h Handle) MonitorRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	ref := MonitorRef(m.nextID)
	m.subs[ref] = h
	return ref
}

func (m *fakeMonitor) Unsubscribe(ref MonitorRef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, ref)
}

func (m *fakeMonitor) Deaths() <-chan Death { return m.deaths }

func (m *fakeMonitor) activeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// fakeTransport is an in-memory registry.Transport connecting any number
// of Scopes registered under the same node set, so tests can exercise
// cross-node Join/Leave/broadcast/anti-entropy without real sockets.
type fakeTransport struct {
	self NodeID

	mu     sync.Mutex
	nodes  map[NodeID]*Scope
	peers  map[NodeID]bool
	events chan PeerEvent
}

func newFakeTransport(self NodeID) *fakeTransport {
	return &fakeTransport{
		self:   self,
		nodes:  make(map[NodeID]*Scope),
		peers:  make(map[NodeID]bool),
		events: make(chan PeerEvent, 64),
	}
}

// link makes t and other mutually reachable and emits PeerUp on both
// sides, mimicking discovery observing a new peer.
func (t *fakeTransport) link(other *fakeTransport) {
	t.mu.Lock()
	t.peers[other.self] = true
	t.mu.Unlock()
	other.mu.Lock()
	other.peers[t.self] = true
	other.mu.Unlock()

	t.events <- PeerEvent{Kind: PeerUp, Node: other.self}
	other.events <- PeerEvent{Kind: PeerUp, Node: t.self}
}

func (t *fakeTransport) unlink(other *fakeTransport) {
	t.mu.Lock()
	delete(t.peers, other.self)
	t.mu.Unlock()
	other.mu.Lock()
	delete(other.peers, t.self)
	other.mu.Unlock()

	t.events <- PeerEvent{Kind: PeerDown, Node: other.self}
	other.events <- PeerEvent{Kind: PeerDown, Node: t.self}
}

func (t *fakeTransport) register(scope *Scope) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodes[t.self] = scope
}

func (t *fakeTransport) Self() NodeID { return t.self }

func (t *fakeTransport) PeerSet(scope string) []NodeID {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]NodeID, 0, len(t.peers))
	for id := range t.peers {
		out = append(out, id)
	}
	return out
}

func (t *fakeTransport) PeerEvents(scope string) <-chan PeerEvent { return t.events }

func (t *fakeTransport) Call(ctx context.Context, owner NodeID, scope string, msg, reply any) error {
	target := universe.scopeFor(owner)
	if target == nil {
		return ErrInvalidScope
	}
	switch m := msg.(type) {
	case JoinOnNode:
		*reply.(*JoinReply) = target.HandleJoinOnNode(m)
	case LeaveOnNode:
		*reply.(*LeaveReply) = target.HandleLeaveOnNode(m)
	case Snapshot:
		*reply.(*Snapshot) = target.HandleSnapshot(m)
	}
	return nil
}

func (t *fakeTransport) Broadcast(ctx context.Context, scope string, msg any, except ...NodeID) {
	skip := map[NodeID]bool{}
	for _, id := range except {
		skip[id] = true
	}
	for _, peer := range t.PeerSet(scope) {
		if skip[peer] {
			continue
		}
		target := universe.scopeFor(peer)
		if target == nil {
			continue
		}
		switch m := msg.(type) {
		case SyncJoin:
			target.HandleSyncJoin(m)
		case SyncLeave:
			target.HandleSyncLeave(m)
		}
	}
}

// universe resolves a NodeID to the *Scope a test registered for it,
// standing in for the directory a real deployment's cmd/node keeps.
var universe = newFakeUniverse()

type fakeUniverse struct {
	mu     sync.Mutex
	scopes map[NodeID]*Scope
}

func newFakeUniverse() *fakeUniverse {
	return &fakeUniverse{scopes: make(map[NodeID]*Scope)}
}

func (u *fakeUniverse) register(id NodeID, s *Scope) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.scopes[id] = s
}

func (u *fakeUniverse) scopeFor(id NodeID) *Scope {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.scopes[id]
}

// fakeCallbacks records every observable transition for assertions.
type fakeCallbacks struct {
	mu      sync.Mutex
	joined  []Handle
	updated []Handle
	left    []Handle
}

func (c *fakeCallbacks) OnProcessJoined(scope string, group GroupName, h Handle, meta Meta, reason Reason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joined = append(c.joined, h)
}

func (c *fakeCallbacks) OnProcessLeft(scope string, group GroupName, h Handle, meta Meta, reason Reason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.left = append(c.left, h)
}

func (c *fakeCallbacks) OnGroupProcessUpdated(scope string, group GroupName, h Handle, meta Meta, reason Reason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updated = append(c.updated, h)
}

func (c *fakeCallbacks) counts() (joined, updated, left int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.joined), len(c.updated), len(c.left)
}
