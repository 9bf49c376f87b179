package registry

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// handlePeerEvent is the cluster membership reactor's entrypoint for
// peer-down events. It runs on the scope task in response to a PeerEvent
// delivered by the transport's peer-membership signal. Peer-up events are
// handled by exchangeSnapshotWith instead, since they require a network
// round trip (see watchPeerEvents).
func (s *Scope) handlePeerEvent(ev PeerEvent) {
	if ev.Kind == PeerDown {
		s.onPeerDown(ev.Node)
	}
	s.metrics.sink.SetPeers(len(s.transport.PeerSet(s.Name)))
}

// exchangeSnapshotWith performs the anti-entropy snapshot exchange for a
// newly observed peer p: send this node's local snapshot,
// receive p's, and apply every tuple in p's snapshot via the same LWW
// logic as an incoming sync_join. The network round trip runs off the
// scope task; only the application of the result is scheduled onto it.
//
// Its context derives from s.ctx rather than context.Background(), so a
// Close racing with an in-flight exchange aborts the round trip instead
// of making Close wait out the full snapshotTimeout.
func (s *Scope) exchangeSnapshotWith(p NodeID) {
	snapshot := Snapshot{Version: ProtocolVersion, Scope: s.Name, From: s.self, Entries: s.store.localSnapshot(s.self)}

	var reply Snapshot
	ctx, cancel := context.WithTimeout(s.ctx, snapshotTimeout)
	defer cancel()
	if err := s.transport.Call(ctx, p, s.Name, snapshot, &reply); err != nil {
		s.log.Warn("anti-entropy snapshot exchange failed", zap.Error(err), zap.String("peer", string(p)))
		return
	}

	s.enqueue(func() {
		reason := Reason{Kind: ReasonRemoteNodeUp, Node: p}
		for _, se := range reply.Entries {
			s.applySyncJoin(SyncJoin{
				Version: ProtocolVersion,
				Scope:   s.Name,
				Group:   se.Group,
				Handle:  se.Handle,
				Meta:    se.Meta,
				T:       se.T,
				Reason:  reason,
			})
		}
		s.metrics.sink.SetPeers(len(s.transport.PeerSet(s.Name)))
	})
}

// onPeerDown purges every entry owned by p and fires a left callback for
// each. No broadcast: every node independently observes the peer-down
// signal.
func (s *Scope) onPeerDown(p NodeID) {
	reason := Reason{Kind: ReasonRemoteNodeDown, Node: p}
	for _, e := range s.store.entriesForOwner(p) {
		s.store.remove(e.Group, e.Handle)
		s.fireLeft(e.Group, e.Handle, e.Meta, reason)
	}
}

// HandleSnapshot is the scope task's entrypoint for a peer-initiated
// snapshot exchange request: it replies with this node's own local
// snapshot and applies the sender's entries exactly as
// exchangeSnapshotWith does,
// making the exchange symmetric regardless of which side observed the
// peer-up event first.
func (s *Scope) HandleSnapshot(msg Snapshot) Snapshot {
	var reply Snapshot
	s.call(func() {
		reply = Snapshot{Version: ProtocolVersion, Scope: s.Name, From: s.self, Entries: s.store.localSnapshot(s.self)}
		reason := Reason{Kind: ReasonRemoteNodeUp, Node: msg.From}
		for _, se := range msg.Entries {
			s.applySyncJoin(SyncJoin{
				Version: ProtocolVersion,
				Scope:   s.Name,
				Group:   se.Group,
				Handle:  se.Handle,
				Meta:    se.Meta,
				T:       se.T,
				Reason:  reason,
			})
		}
	})
	return reply
}

const snapshotTimeout = 5 * time.Second
