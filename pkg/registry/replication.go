package registry

import (
	"context"
	"time"
)

// applyJoinLocal performs a local join at the owning node: the not_alive
// check, the idempotence/update logic, the monitor refcount bump, the
// callback, and the broadcast to every peer except requester. It must
// only ever run on the scope task.
func (s *Scope) applyJoinLocal(group GroupName, h Handle, meta Meta, requester NodeID) (JoinCallbackKind, int64, error) {
	if !s.monitor.Alive(h) {
		return "", 0, ErrNotAlive
	}

	if existing, ok := s.store.get(group, h); ok {
		if existing.Meta.equal(meta) {
			return CallbackNoop, existing.T, nil
		}
		t := s.now()
		s.store.update(group, h, meta, t)
		s.fireUpdated(group, h, meta, Reason{Kind: ReasonNormal})
		s.broadcastSyncJoin(group, h, meta, t, Reason{Kind: ReasonNormal}, requester)
		return CallbackUpdated, t, nil
	}

	ref := s.mutator.ensureMonitor(h)
	s.metrics.sink.SetMonitors(s.mutator.activeMonitors())
	t := s.now()
	e := &entry{Group: group, Handle: h, Meta: meta, T: t, MRef: ref, Owner: s.self}
	s.mutator.insert(e)
	s.fireJoined(group, h, meta, Reason{Kind: ReasonNormal})
	s.broadcastSyncJoin(group, h, meta, t, Reason{Kind: ReasonNormal}, requester)
	return CallbackJoined, t, nil
}

// applyLeaveLocal performs a local leave at the owning node: removal,
// monitor refcount decrement, the callback, and the broadcast.
func (s *Scope) applyLeaveLocal(group GroupName, h Handle, requester NodeID) (Meta, error) {
	e, ok := s.store.remove(group, h)
	if !ok {
		return nil, ErrNotInGroup
	}
	s.mutator.maybeDemonitor(h, e.MRef)
	s.metrics.sink.SetMonitors(s.mutator.activeMonitors())
	s.fireLeft(group, h, e.Meta, Reason{Kind: ReasonNormal})
	s.broadcastSyncLeave(group, h, e.Meta, Reason{Kind: ReasonNormal}, requester)
	return e.Meta, nil
}

// applySyncJoin applies an incoming sync_join using the last-writer-wins
// timestamp comparator. It must only ever run on the scope task.
func (s *Scope) applySyncJoin(msg SyncJoin) {
	owner := msg.Handle.Node
	if owner != s.self && !s.peerIsUp(owner) {
		// Conservative drop: the owner has since disappeared from our
		// peer set; the peer-down path will clean up, or already has.
		s.metrics.syncDropped()
		return
	}

	existing, ok := s.store.get(msg.Group, msg.Handle)
	if !ok {
		e := &entry{Group: msg.Group, Handle: msg.Handle, Meta: msg.Meta, T: msg.T, Owner: owner}
		s.mutator.insert(e)
		s.fireJoined(msg.Group, msg.Handle, msg.Meta, msg.Reason)
		return
	}

	if existing.T >= msg.T {
		// Stale, or the exact (t, meta) we already hold via eager local
		// apply — either way, drop silently.
		s.metrics.syncDropped()
		return
	}

	metaChanged := !existing.Meta.equal(msg.Meta)
	s.store.update(msg.Group, msg.Handle, msg.Meta, msg.T)
	if metaChanged {
		s.fireUpdated(msg.Group, msg.Handle, msg.Meta, msg.Reason)
	}
}

// applySyncLeave applies an incoming sync_leave.
func (s *Scope) applySyncLeave(msg SyncLeave) {
	e, ok := s.store.remove(msg.Group, msg.Handle)
	if !ok {
		s.metrics.syncDropped()
		return
	}
	s.mutator.maybeDemonitor(msg.Handle, e.MRef)
	s.metrics.sink.SetMonitors(s.mutator.activeMonitors())
	s.fireLeft(msg.Group, msg.Handle, msg.Meta, msg.Reason)
}

func (s *Scope) peerIsUp(node NodeID) bool {
	for _, p := range s.transport.PeerSet(s.Name) {
		if p == node {
			return true
		}
	}
	return false
}

func (s *Scope) broadcastSyncJoin(group GroupName, h Handle, meta Meta, t int64, reason Reason, except NodeID) {
	msg := SyncJoin{Version: ProtocolVersion, Scope: s.Name, Group: group, Handle: h, Meta: meta, T: t, Reason: reason}
	ctx, cancel := context.WithTimeout(context.Background(), broadcastTimeout)
	defer cancel()
	s.transport.Broadcast(ctx, s.Name, msg, except)
}

func (s *Scope) broadcastSyncLeave(group GroupName, h Handle, meta Meta, reason Reason, except NodeID) {
	msg := SyncLeave{Version: ProtocolVersion, Scope: s.Name, Group: group, Handle: h, Meta: meta, Reason: reason}
	ctx, cancel := context.WithTimeout(context.Background(), broadcastTimeout)
	defer cancel()
	s.transport.Broadcast(ctx, s.Name, msg, except)
}

// broadcastTimeout bounds the fire-and-forget broadcast call so the scope
// task (which must never block indefinitely) cannot stall behind a slow
// transport.
const broadcastTimeout = 3 * time.Second

func (s *Scope) now() int64 { return time.Now().UnixNano() }

// HandleJoinOnNode is the scope task's RPC entrypoint for a join_on_node
// message. It is called by the transport layer when this node is the
// addressed owner.
func (s *Scope) HandleJoinOnNode(msg JoinOnNode) JoinReply {
	var reply JoinReply
	s.call(func() {
		kind, t, err := s.applyJoinLocal(msg.Group, msg.Handle, msg.Meta, msg.Requester)
		if err != nil {
			reply = JoinReply{Err: err.Error()}
			return
		}
		reply = JoinReply{Kind: kind, T: t}
	})
	return reply
}

// HandleLeaveOnNode is the scope task's RPC entrypoint for a
// leave_on_node message.
func (s *Scope) HandleLeaveOnNode(msg LeaveOnNode) LeaveReply {
	var reply LeaveReply
	s.call(func() {
		meta, err := s.applyLeaveLocal(msg.Group, msg.Handle, msg.Requester)
		if err != nil {
			reply = LeaveReply{Err: err.Error()}
			return
		}
		reply = LeaveReply{Meta: meta}
	})
	return reply
}

// HandleSyncJoin is the scope task's entrypoint for an incoming sync_join
// broadcast or anti-entropy replay.
func (s *Scope) HandleSyncJoin(msg SyncJoin) {
	s.enqueue(func() { s.applySyncJoin(msg) })
}

// HandleSyncLeave is the scope task's entrypoint for an incoming sync_leave
// broadcast.
func (s *Scope) HandleSyncLeave(msg SyncLeave) {
	s.enqueue(func() { s.applySyncLeave(msg) })
}
