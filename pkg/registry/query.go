package registry

// Query methods read the local indexes directly without routing through
// the scope task, so results reflect the eventually-consistent view a node
// currently holds, not a cluster-wide snapshot.

// Members returns every member of group, regardless of which node owns
// each handle.
func (s *Scope) Members(group GroupName) []Member {
	return s.store.membersOf(group)
}

// LocalMembers returns the members of group owned by this node.
func (s *Scope) LocalMembers(group GroupName) []Member {
	return s.store.localMembersOf(group, s.self)
}

// IsMember reports whether h is currently a member of group, local or
// remote.
func (s *Scope) IsMember(group GroupName, h Handle) bool {
	_, ok := s.store.get(group, h)
	return ok
}

// IsLocalMember reports whether h is currently a member of group and
// owned by this node.
func (s *Scope) IsLocalMember(group GroupName, h Handle) bool {
	e, ok := s.store.get(group, h)
	return ok && e.Owner == s.self
}

// GroupNames returns the deduplicated set of group names known to this
// node. If node is non-nil, the result is restricted to groups that have
// at least one member owned by that node.
func (s *Scope) GroupNames(node *NodeID) []GroupName {
	return s.store.groupNames(node)
}

// Count returns the cardinality of GroupNames(node).
func (s *Scope) Count(node *NodeID) int {
	return len(s.store.groupNames(node))
}
