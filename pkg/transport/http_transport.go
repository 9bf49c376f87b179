package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kaivolabs/pgreg/pkg/registry"
)

// envelope is the wire framing every RPC and broadcast travels in. kind
// selects which wire.go type payload decodes to and which Scope method
// handles it server-side.
type envelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

func kindOf(msg any) (string, error) {
	switch msg.(type) {
	case registry.JoinOnNode:
		return "join_on_node", nil
	case registry.LeaveOnNode:
		return "leave_on_node", nil
	case registry.SyncJoin:
		return "sync_join", nil
	case registry.SyncLeave:
		return "sync_leave", nil
	case registry.Snapshot:
		return "snapshot", nil
	default:
		return "", fmt.Errorf("transport: unrecognized wire message %T", msg)
	}
}

// HTTPTransport implements registry.Transport over plain HTTP, fed by a
// peer set that discovery (or a test) pushes in with UpdatePeers. The
// peer set is cluster-wide, not per-scope — PeerSet and PeerEvents take a
// scope argument only to satisfy the interface every other
// implementation shares.
type HTTPTransport struct {
	self     registry.NodeID
	selfAddr string

	mu    sync.RWMutex
	addrs map[registry.NodeID]string

	eventsMu sync.Mutex
	events   map[string]chan registry.PeerEvent
}

// NewHTTPTransport returns a transport identifying itself as self,
// reachable at selfAddr. selfAddr is stored but not consulted; the
// transport avoids dialing itself by leaving self's node ID out of the
// peer set.
func NewHTTPTransport(self registry.NodeID, selfAddr string) *HTTPTransport {
	return &HTTPTransport{
		self:     self,
		selfAddr: selfAddr,
		addrs:    make(map[registry.NodeID]string),
		events:   make(map[string]chan registry.PeerEvent),
	}
}

func (t *HTTPTransport) Self() registry.NodeID { return t.self }

// UpdatePeers reconciles the known peer set against peers (node ID ->
// address, as returned by discovery.GetPeers/WatchPeers) and emits a
// PeerUp or PeerDown PeerEvent on every scope's channel for each
// difference. It is safe to call from discovery's watch callback
// goroutine.
func (t *HTTPTransport) UpdatePeers(peers map[registry.NodeID]string) {
	t.mu.Lock()
	var up, down []registry.NodeID
	for id := range peers {
		if id == t.self {
			continue
		}
		if _, existed := t.addrs[id]; !existed {
			up = append(up, id)
		}
	}
	for id := range t.addrs {
		if _, still := peers[id]; !still {
			down = append(down, id)
		}
	}
	t.addrs = make(map[registry.NodeID]string, len(peers))
	for id, addr := range peers {
		if id != t.self {
			t.addrs[id] = addr
		}
	}
	t.mu.Unlock()

	for _, id := range up {
		t.broadcastEvent(registry.PeerEvent{Kind: registry.PeerUp, Node: id})
	}
	for _, id := range down {
		t.broadcastEvent(registry.PeerEvent{Kind: registry.PeerDown, Node: id})
	}
}

func (t *HTTPTransport) broadcastEvent(ev registry.PeerEvent) {
	t.eventsMu.Lock()
	defer t.eventsMu.Unlock()
	for _, ch := range t.events {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (t *HTTPTransport) PeerEvents(scope string) <-chan registry.PeerEvent {
	t.eventsMu.Lock()
	defer t.eventsMu.Unlock()
	ch, ok := t.events[scope]
	if !ok {
		ch = make(chan registry.PeerEvent, 64)
		t.events[scope] = ch
	}
	return ch
}

func (t *HTTPTransport) PeerSet(scope string) []registry.NodeID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]registry.NodeID, 0, len(t.addrs))
	for id := range t.addrs {
		out = append(out, id)
	}
	return out
}

func (t *HTTPTransport) addrOf(id registry.NodeID) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	addr, ok := t.addrs[id]
	return addr, ok
}

// Call sends msg to scope's RPC endpoint on owner and decodes the reply
// envelope's payload into reply.
func (t *HTTPTransport) Call(ctx context.Context, owner registry.NodeID, scope string, msg, reply any) error {
	addr, ok := t.addrOf(owner)
	if !ok {
		return fmt.Errorf("transport: unknown node %s", owner)
	}
	kind, err := kindOf(msg)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/registry/%s/rpc", normalizeBase(addr), scope)
	var respEnv envelope
	if err := postJSON(ctx, url, envelope{Kind: kind, Payload: payload}, &respEnv); err != nil {
		return err
	}
	if reply == nil || len(respEnv.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(respEnv.Payload, reply)
}

// Broadcast fires Call at every current peer except self and the nodes
// listed in except, without waiting for or reporting individual
// failures — Transport is best-effort by contract.
//
// Each delivery gets its own detached context bounded by
// broadcastPeerTimeout rather than inheriting ctx: Broadcast returns as
// soon as the goroutines are spawned, and callers on the scope task
// (replication.go's broadcastSyncJoin/broadcastSyncLeave) cancel their
// ctx via defer immediately after that return, before any delivery has
// had a chance to run.
func (t *HTTPTransport) Broadcast(ctx context.Context, scope string, msg any, except ...registry.NodeID) {
	skip := make(map[registry.NodeID]bool, len(except))
	for _, id := range except {
		skip[id] = true
	}
	for _, peer := range t.PeerSet(scope) {
		if skip[peer] {
			continue
		}
		peer := peer
		go func() {
			cctx, cancel := context.WithTimeout(context.Background(), broadcastPeerTimeout)
			defer cancel()
			_ = t.Call(cctx, peer, scope, msg, nil)
		}()
	}
}

const broadcastPeerTimeout = 3 * time.Second

func normalizeBase(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	return "http://" + addr
}
