package registry

import "context"

// Join is the owner task router's entrypoint: callable on any node for
// any handle. It resolves h's owner and either applies the join in-process
// (owner == self) or issues a synchronous RPC to the owner and, on
// success, eagerly applies the mutation to this node's local indexes
// before returning.
func (s *Scope) Join(ctx context.Context, group GroupName, h Handle, meta Meta) (JoinCallbackKind, error) {
	owner := h.Owner()
	if owner == s.self {
		var kind JoinCallbackKind
		var joinErr error
		s.call(func() {
			kind, _, joinErr = s.applyJoinLocal(group, h, meta, s.self)
		})
		return kind, joinErr
	}

	var reply JoinReply
	req := JoinOnNode{Version: ProtocolVersion, Scope: s.Name, Requester: s.self, Group: group, Handle: h, Meta: meta}
	if err := s.transport.Call(ctx, owner, s.Name, req, &reply); err != nil {
		return "", err
	}
	if reply.Err != "" {
		return "", mapWireError(reply.Err)
	}
	if reply.Kind != CallbackNoop {
		s.eagerApplyJoin(group, h, meta, reply.T, owner)
	}
	return reply.Kind, nil
}

// Leave is the owner task router's entrypoint for leaving a group.
func (s *Scope) Leave(ctx context.Context, group GroupName, h Handle) error {
	owner := h.Owner()
	if owner == s.self {
		var leaveErr error
		s.call(func() {
			_, leaveErr = s.applyLeaveLocal(group, h, s.self)
		})
		return leaveErr
	}

	var reply LeaveReply
	req := LeaveOnNode{Version: ProtocolVersion, Scope: s.Name, Requester: s.self, Group: group, Handle: h}
	if err := s.transport.Call(ctx, owner, s.Name, req, &reply); err != nil {
		return err
	}
	if reply.Err != "" {
		return mapWireError(reply.Err)
	}
	s.enqueue(func() {
		if _, ok := s.store.remove(group, h); ok {
			s.fireLeft(group, h, reply.Meta, Reason{Kind: ReasonNormal})
		}
	})
	return nil
}

// eagerApplyJoin writes a remote join's result into the caller's local
// indexes ahead of the broadcast, using the same LWW comparator as an
// incoming sync_join so a racing broadcast of the same mutation cannot
// double-fire a callback. Like applySyncJoin, it fires joined for a new
// local entry and updated when a newer timestamp changes the meta.
func (s *Scope) eagerApplyJoin(group GroupName, h Handle, meta Meta, t int64, owner NodeID) {
	s.enqueue(func() {
		existing, ok := s.store.get(group, h)
		if !ok {
			e := &entry{Group: group, Handle: h, Meta: meta, T: t, Owner: owner}
			s.mutator.insert(e)
			s.fireJoined(group, h, meta, Reason{Kind: ReasonNormal})
			return
		}
		if existing.T >= t {
			return
		}
		metaChanged := !existing.Meta.equal(meta)
		s.store.update(group, h, meta, t)
		if metaChanged {
			s.fireUpdated(group, h, meta, Reason{Kind: ReasonNormal})
		}
	})
}

func mapWireError(s string) error {
	switch s {
	case ErrNotAlive.Error():
		return ErrNotAlive
	case ErrNotInGroup.Error():
		return ErrNotInGroup
	default:
		return &remoteError{s}
	}
}

type remoteError struct{ msg string }

func (e *remoteError) Error() string { return e.msg }
