package registry

import "sync"

// store holds two associative containers over the same set of entries, kept
// in lock-step so that (group, handle) lookups are O(1) amortized and
// death-driven per-member purges touch only that member's groups.
//
// byName is keyed (group, handle); byPid is keyed (handle, group) — same
// tuples, inverse orientation. The store is single-writer (the owning
// Scope's task) and many-reader: queries take the read lock directly and
// never route through the scope task, so a query may observe a snapshot
// that mixes pre- and post-mutation state of unrelated entries.
type store struct {
	mu     sync.RWMutex
	byName map[GroupName]map[Handle]*entry
	byPid  map[Handle]map[GroupName]*entry
}

func newStore() *store {
	return &store{
		byName: make(map[GroupName]map[Handle]*entry),
		byPid:  make(map[Handle]map[GroupName]*entry),
	}
}

// insert writes e into both indexes under one lock, so the two maps never
// observe a tuple in one but not the other.
func (s *store) insert(e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertLocked(e)
}

func (s *store) insertLocked(e *entry) {
	byH := s.byName[e.Group]
	if byH == nil {
		byH = make(map[Handle]*entry)
		s.byName[e.Group] = byH
	}
	byH[e.Handle] = e

	byG := s.byPid[e.Handle]
	if byG == nil {
		byG = make(map[GroupName]*entry)
		s.byPid[e.Handle] = byG
	}
	byG[e.Group] = e
}

// remove deletes the (group, handle) entry from both indexes. It reports
// whether an entry was present.
func (s *store) remove(group GroupName, h Handle) (*entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(group, h)
}

func (s *store) removeLocked(group GroupName, h Handle) (*entry, bool) {
	byH := s.byName[group]
	e, ok := byH[h]
	if !ok {
		return nil, false
	}
	delete(byH, h)
	if len(byH) == 0 {
		delete(s.byName, group)
	}

	if byG := s.byPid[h]; byG != nil {
		delete(byG, group)
		if len(byG) == 0 {
			delete(s.byPid, h)
		}
	}
	return e, true
}

// get returns the current entry for (group, handle), if any.
func (s *store) get(group GroupName, h Handle) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byName[group][h]
	return e, ok
}

// update overwrites the meta and timestamp of the (group, handle) entry
// under the write lock, so a concurrent reader holding only RLock never
// observes a torn Meta/T pair. It reports whether an entry was present.
func (s *store) update(group GroupName, h Handle, meta Meta, t int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byName[group][h]
	if !ok {
		return false
	}
	e.Meta = meta
	e.T = t
	return true
}

// entriesForHandle returns every entry currently stored for h, across all
// groups, via the inverse index — this is what makes death-driven purge
// O(groups for H) instead of a full scan.
func (s *store) entriesForHandle(h Handle) []*entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byG := s.byPid[h]
	out := make([]*entry, 0, len(byG))
	for _, e := range byG {
		out = append(out, e)
	}
	return out
}

// hasLocalEntry reports whether any entry for h is still owned by self —
// the refcount-by-presence check maybeDemonitor needs.
func (s *store) hasLocalEntry(h Handle, self NodeID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.byPid[h] {
		if e.Owner == self {
			return true
		}
	}
	return false
}

// membersOf returns every member of group, regardless of owner.
func (s *store) membersOf(group GroupName) []Member {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byH := s.byName[group]
	out := make([]Member, 0, len(byH))
	for h, e := range byH {
		out = append(out, Member{Handle: h, Meta: e.Meta})
	}
	return out
}

// localMembersOf returns the members of group owned by self.
func (s *store) localMembersOf(group GroupName, self NodeID) []Member {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byH := s.byName[group]
	out := make([]Member, 0, len(byH))
	for h, e := range byH {
		if e.Owner == self {
			out = append(out, Member{Handle: h, Meta: e.Meta})
		}
	}
	return out
}

// groupNames returns the deduplicated group-name projection, optionally
// restricted to groups that have at least one member owned by node.
func (s *store) groupNames(node *NodeID) []GroupName {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]GroupName, 0, len(s.byName))
	for g, byH := range s.byName {
		if node == nil {
			out = append(out, g)
			continue
		}
		for _, e := range byH {
			if e.Owner == *node {
				out = append(out, g)
				break
			}
		}
	}
	return out
}

// entriesForOwner returns every entry owned by owner, across all groups —
// used by peer-down purge and by the restart purge of non-self entries.
func (s *store) entriesForOwner(owner NodeID) []*entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*entry
	for _, byH := range s.byName {
		for _, e := range byH {
			if e.Owner == owner {
				out = append(out, e)
			}
		}
	}
	return out
}

// localSnapshot returns every entry owned by self, shaped for the
// anti-entropy exchange on peer-up.
func (s *store) localSnapshot(self NodeID) []SnapshotEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []SnapshotEntry
	for g, byH := range s.byName {
		for h, e := range byH {
			if e.Owner != self {
				continue
			}
			out = append(out, SnapshotEntry{Group: g, Handle: h, Meta: e.Meta, T: e.T})
		}
	}
	return out
}
