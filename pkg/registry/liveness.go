package registry

import "go.uber.org/zap"

// handleDeath runs on the scope task in response to a Death delivered by
// the Monitor for a local member.
func (s *Scope) handleDeath(d Death) {
	entries := s.store.entriesForHandle(d.Handle)
	if len(entries) == 0 {
		s.metrics.spuriousDeath()
		s.log.Warn("spurious death notification for unknown member",
			zap.String("handle", d.Handle.String()), zap.String("reason", d.Reason))
		return
	}

	reason := Reason{Kind: ReasonTaskExit, Detail: d.Reason}
	removedLocal := false
	for _, e := range entries {
		if e.Owner != s.self {
			// Defensive: a remote entry never carries a monitor ref, so
			// this Monitor should never have been asked to watch it.
			// Skip rather than corrupt remote state.
			continue
		}
		s.store.remove(e.Group, e.Handle)
		s.fireLeft(e.Group, e.Handle, e.Meta, reason)
		s.broadcastSyncLeave(e.Group, e.Handle, e.Meta, reason, "")
		removedLocal = true
	}
	// The monitor reference is consumed by the notification itself; no
	// explicit unsubscribe is needed or attempted here.
	if removedLocal {
		s.mutator.releaseDeadMonitor()
		s.metrics.sink.SetMonitors(s.mutator.activeMonitors())
	}
}
