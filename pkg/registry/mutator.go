package registry

// mutator holds the index-mutating operations a scope task uses to apply
// a change. Every method here runs exclusively on the owning Scope's
// single scope-task goroutine — they never interleave across themselves
// for a given scope, which this repository enforces structurally by only
// ever calling them from jobs run by Scope.runJobs, or from
// restartRebuild inside NewScope before that goroutine starts.
type mutator struct {
	store   *store
	monitor Monitor
	self    NodeID

	monitors int
}

// insert writes e to both indexes. Callers are responsible for having
// already resolved mref via ensureMonitor when e is local.
func (m *mutator) insert(e *entry) {
	m.store.insert(e)
}

// removeEntry deletes (group, h) from both indexes and returns the entry
// that was present, if any.
func (m *mutator) removeEntry(group GroupName, h Handle) (*entry, bool) {
	return m.store.remove(group, h)
}

// ensureMonitor implements refcounted-by-presence monitor sharing: if any
// local entry already exists for h, its mref is reused; otherwise a
// fresh subscription is created. Must be called before insert for a new
// local entry so the freshly inserted entry can carry the right mref.
func (m *mutator) ensureMonitor(h Handle) MonitorRef {
	for _, e := range m.store.entriesForHandle(h) {
		if e.Owner == m.self && e.MRef != nil {
			return e.MRef
		}
	}
	ref := m.monitor.Subscribe(h)
	m.monitors++
	return ref
}

// maybeDemonitor implements the other half of refcount-by-presence: after a
// local removal, if no local entry for h survives, the monitor is
// cancelled. ref is the mref the now-removed entry carried.
func (m *mutator) maybeDemonitor(h Handle, ref MonitorRef) {
	if ref == nil {
		return
	}
	if m.store.hasLocalEntry(h, m.self) {
		return
	}
	m.monitor.Unsubscribe(ref)
	m.monitors--
}

// activeMonitors reports the number of distinct liveness-monitor
// subscriptions currently held on behalf of locally owned entries.
func (m *mutator) activeMonitors() int { return m.monitors }

// releaseDeadMonitor accounts for a subscription consumed by its own
// death notification, the one case where the Monitor ends the
// subscription itself rather than being asked to via Unsubscribe.
func (m *mutator) releaseDeadMonitor() {
	if m.monitors > 0 {
		m.monitors--
	}
}
