// Package registry implements the per-scope cluster coordination engine of
// a distributed process-group registry: a replicated mapping from group
// names to sets of member handles, each handle carrying opaque metadata.
//
// A Scope is the single serialization point for one named namespace. It
// owns two in-memory indexes (by group and by member), a set of outstanding
// liveness-monitor subscriptions, and the peer set for its namespace. All
// mutations — local joins/leaves, incoming replication syncs, death
// notifications, and peer up/down transitions — are funneled through one
// goroutine (the "scope task"); queries read the indexes directly under a
// read lock and never block on that goroutine.
//
// The engine depends on its cluster only through small interfaces defined
// in this package: Transport and Monitor, plus Mailbox for the fan-out
// services. Concrete
// implementations live in sibling packages (pkg/transport, pkg/liveness)
// so the engine can be exercised and tested without a real cluster.
package registry
