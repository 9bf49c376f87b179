package registry

import (
	"context"
	"time"
)

// MonitorRef is an opaque liveness-monitor handle. The zero value means "no
// monitor" and is what remote entries carry.
type MonitorRef any

// Death is delivered exactly once per subscription by a Monitor when its
// target task exits.
type Death struct {
	Ref    MonitorRef
	Handle Handle
	Reason string
}

// Monitor is the task-liveness monitor primitive. The engine treats it
// as an external collaborator: it never inspects a task's internals, only
// subscribes to its death. Implementations must deliver at most one Death
// per live subscription, and Unsubscribe must be idempotent and must flush
// (suppress) any death already in flight for that subscription.
type Monitor interface {
	// Alive reports whether h is currently alive, used by Join's
	// not_alive check and by scope-task-restart rebuild.
	Alive(h Handle) bool
	// Subscribe starts monitoring h and returns a reference used later to
	// unsubscribe. Subscribing to an already-dead handle is valid; the
	// monitor must still deliver exactly one Death for it.
	Subscribe(h Handle) MonitorRef
	// Unsubscribe cancels a subscription. Idempotent.
	Unsubscribe(ref MonitorRef)
	// Deaths returns the channel on which Death notifications for every
	// subscription made through this Monitor are delivered.
	Deaths() <-chan Death
}

// PeerEventKind distinguishes a peer arriving from a peer departing.
type PeerEventKind int

const (
	PeerUp PeerEventKind = iota
	PeerDown
)

// PeerEvent is delivered by the cluster membership signal into the scope
// task.
type PeerEvent struct {
	Kind PeerEventKind
	Node NodeID
}

// Transport is the peer transport interface: a reliable-while-connected,
// best-effort-on-partition, message-oriented RPC+broadcast primitive that a
// Scope treats as an external collaborator.
type Transport interface {
	// Call sends msg to the scope task on owner and decodes its reply into
	// reply. msg and reply are one of the wire types in wire.go.
	Call(ctx context.Context, owner NodeID, scope string, msg, reply any) error
	// Broadcast sends msg to every peer in the current peer set for scope
	// except the nodes listed in except. Best-effort; no acknowledgement.
	Broadcast(ctx context.Context, scope string, msg any, except ...NodeID)
	// PeerSet returns the set of remote nodes currently known to be up for
	// scope.
	PeerSet(scope string) []NodeID
	// PeerEvents returns the channel on which peer up/down transitions for
	// scope are delivered.
	PeerEvents(scope string) <-chan PeerEvent
	// Self returns this transport's own node identity.
	Self() NodeID
}

// Callbacks is the external event-handler collaborator. The engine invokes
// exactly one of these per observable transition.
type Callbacks interface {
	OnProcessJoined(scope string, group GroupName, h Handle, meta Meta, reason Reason)
	OnProcessLeft(scope string, group GroupName, h Handle, meta Meta, reason Reason)
	OnGroupProcessUpdated(scope string, group GroupName, h Handle, meta Meta, reason Reason)
}

// Mailbox delivers application messages directly to a member handle's
// inbox, independent of the replication RPCs in Transport. It backs the
// fan-out services: Publish is fire-and-forget Send, MultiCall is Call
// with a per-target timeout. Implementations route locally when
// h.Owner() is this node and over the network otherwise.
type Mailbox interface {
	// Send delivers msg to h's inbox with fire-and-forget semantics.
	// Delivery is best-effort; Send's error only reports whether the
	// attempt could be dispatched, not whether h ever saw it.
	Send(ctx context.Context, h Handle, msg []byte) error
	// Call delivers msg to h and waits up to timeout for a reply,
	// multiplexed by a fresh correlation token generated by the
	// implementation. It returns ErrCallTimeout on timeout. An
	// implementation that watches h's liveness while waiting returns
	// ErrCallTargetDead on death; pkg/transport.Mailbox does not watch
	// liveness, so there a dead target surfaces as a delivery error or as
	// ErrCallTimeout.
	Call(ctx context.Context, h Handle, msg []byte, timeout time.Duration) ([]byte, error)
}
