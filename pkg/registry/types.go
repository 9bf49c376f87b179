package registry

import (
	"bytes"
	"encoding/json"
)

// NodeID identifies a node in the cluster. It is opaque to the engine;
// transports are free to use hostnames, etcd lease keys, or anything else
// that is stable for the lifetime of a node.
type NodeID string

// TaskID identifies a member handle within its owning node. Combined with
// the owning NodeID it forms a cluster-unique address.
type TaskID string

// Handle is a cluster-unique, task-addressable reference to a group member.
// Equality is identity: two handles refer to the same member iff both
// fields are equal, which is exactly Go's struct equality — Handle is
// deliberately kept small and comparable so it can be used directly as a
// map key in both indexes.
type Handle struct {
	Node NodeID
	Task TaskID
}

// Owner returns the node that owns h, i.e. the node whose scope task is the
// sole assigner of timestamps for h's entries.
func (h Handle) Owner() NodeID { return h.Node }

func (h Handle) String() string {
	return string(h.Node) + "/" + string(h.Task)
}

// GroupName identifies a group. The set of groups is open: a group is
// created implicitly by its first member's join and vanishes when its last
// member leaves or is purged.
type GroupName string

// Meta is opaque, caller-supplied metadata attached to a membership entry.
// It travels the wire as a JSON payload and is never interpreted by the
// engine; LWW noop detection compares it byte for byte.
type Meta json.RawMessage

func (m Meta) equal(other Meta) bool {
	return bytes.Equal(m, other)
}

// MarshalJSON and UnmarshalJSON let Meta behave like json.RawMessage on the
// wire while still being its own named type internally.
func (m Meta) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	return m, nil
}

func (m *Meta) UnmarshalJSON(data []byte) error {
	*m = append((*m)[0:0], data...)
	return nil
}

// Reason explains why a lifecycle callback fired. It is carried verbatim
// from the event that caused the transition (a direct join/leave, a task
// exit reason, or a peer up/down transition) through to the callback.
type Reason struct {
	Kind   ReasonKind
	Node   NodeID // populated for RemoteNodeUp / RemoteNodeDown
	Detail string // populated for TaskExit (the underlying exit reason)
}

// ReasonKind enumerates the taxonomy of reason values attached to a
// membership transition.
type ReasonKind int

const (
	// ReasonNormal is used for a direct user join or leave.
	ReasonNormal ReasonKind = iota
	// ReasonTaskExit is used when a member died; Detail carries the
	// underlying exit reason reported by the liveness monitor.
	ReasonTaskExit
	// ReasonRemoteNodeUp is used for entries adopted during anti-entropy
	// after a peer reconnected; Node carries the peer.
	ReasonRemoteNodeUp
	// ReasonRemoteNodeDown is used when a peer's entries are purged
	// after that peer left the peer set; Node carries the peer.
	ReasonRemoteNodeDown
	// ReasonUndefined is used for a death discovered during scope-task
	// restart, where no monitor delivered an exit reason.
	ReasonUndefined
)

func (r Reason) String() string {
	switch r.Kind {
	case ReasonNormal:
		return "normal"
	case ReasonTaskExit:
		return "exit:" + r.Detail
	case ReasonRemoteNodeUp:
		return "remote_scope_node_up(" + string(r.Node) + ")"
	case ReasonRemoteNodeDown:
		return "remote_scope_node_down(" + string(r.Node) + ")"
	default:
		return "undefined"
	}
}

// Member pairs a handle with the metadata it joined under, the shape
// returned by the query surface.
type Member struct {
	Handle Handle
	Meta   Meta
}

// entry is the internal representation of a stored registry entry: a
// group, handle, metadata, timestamp, optional monitor reference, and
// owning node.
type entry struct {
	Group GroupName
	Handle
	Meta  Meta
	T     int64
	MRef  MonitorRef // nil (zero value) for remote entries.
	Owner NodeID
}

func (e *entry) local(self NodeID) bool { return e.Owner == self }
