package registry

// ProtocolVersion tags every cross-node wire message.
const ProtocolVersion = "3.0"

// JoinOnNode is the RPC sent by the owner task router to the scope task
// on the handle's owning node when owner != self.
type JoinOnNode struct {
	Version   string    `json:"version"`
	Scope     string    `json:"scope"`
	Requester NodeID    `json:"requester"`
	Group     GroupName `json:"group"`
	Handle    Handle    `json:"handle"`
	Meta      Meta      `json:"meta"`
}

// JoinCallbackKind distinguishes a freshly created entry from a re-join
// that only updated existing metadata, or from a noop re-join. The router
// skips the caller's eager local apply for a noop; otherwise the eager
// apply picks its callback from the caller's own index, as a sync_join
// does.
type JoinCallbackKind string

const (
	CallbackJoined  JoinCallbackKind = "joined"
	CallbackUpdated JoinCallbackKind = "updated"
	CallbackNoop    JoinCallbackKind = "noop"
)

// JoinReply is the owner's reply to JoinOnNode.
type JoinReply struct {
	Kind JoinCallbackKind `json:"kind"`
	T    int64            `json:"t"`
	Err  string           `json:"err,omitempty"`
}

// LeaveOnNode is the RPC sent by the owner task router to the scope task
// on the handle's owning node.
type LeaveOnNode struct {
	Version   string    `json:"version"`
	Scope     string    `json:"scope"`
	Requester NodeID    `json:"requester"`
	Group     GroupName `json:"group"`
	Handle    Handle    `json:"handle"`
}

// LeaveReply is the owner's reply to LeaveOnNode.
type LeaveReply struct {
	Meta Meta   `json:"meta"`
	Err  string `json:"err,omitempty"`
}

// SyncJoin is broadcast by the replication engine to every peer except the
// requester after a local join, and replayed during anti-entropy.
type SyncJoin struct {
	Version string    `json:"version"`
	Scope   string    `json:"scope"`
	Group   GroupName `json:"group"`
	Handle  Handle    `json:"handle"`
	Meta    Meta      `json:"meta"`
	T       int64     `json:"t"`
	Reason  Reason    `json:"reason"`
}

// SyncLeave is broadcast by the replication engine after a local leave or
// a death cascade.
type SyncLeave struct {
	Version string    `json:"version"`
	Scope   string    `json:"scope"`
	Group   GroupName `json:"group"`
	Handle  Handle    `json:"handle"`
	Meta    Meta      `json:"meta"`
	Reason  Reason    `json:"reason"`
}

// SnapshotEntry is one tuple of the full-state snapshot exchanged when a
// peer comes up: a group, handle, metadata, and timestamp, without a
// monitor reference or explicit owner — the snapshot is always scoped to
// the sender's own local entries, so the owner is implicitly the sender.
type SnapshotEntry struct {
	Group  GroupName `json:"group"`
	Handle Handle    `json:"handle"`
	Meta   Meta      `json:"meta"`
	T      int64     `json:"t"`
}

// Snapshot is the full-state exchange payload sent to (and received from)
// a peer immediately after it is observed to be up.
type Snapshot struct {
	Version string          `json:"version"`
	Scope   string          `json:"scope"`
	From    NodeID          `json:"from"`
	Entries []SnapshotEntry `json:"entries"`
}
