package registry

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Scope is one named, independent instance of the registry. It owns the
// dual-index store, the set of outstanding liveness-monitor
// subscriptions, and the peer set for its namespace, and it is the single
// serialization point ("the scope task") through which every mutation
// passes.
//
// The scope task is realized as one goroutine draining a job queue rather
// than a lock-guarded object, so a slow mutation cannot be starved by
// concurrent callers and every mutation observes a consistent ordering.
// Queries bypass the job queue entirely and read the store under its own
// RWMutex.
type Scope struct {
	Name string

	self      NodeID
	store     *store
	mutator   *mutator
	transport Transport
	monitor   Monitor
	mailbox   Mailbox
	callbacks Callbacks
	metrics   *scopeMetrics
	log       *zap.Logger

	jobs   chan func()
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Scope at construction time.
type Option func(*Scope)

// WithLogger overrides the default no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scope) { s.log = l }
}

// WithMetrics wires a Prometheus-backed metrics sink. See
// internal/telemetry for the concrete implementation.
func WithMetrics(m MetricsSink) Option {
	return func(s *Scope) { s.metrics = &scopeMetrics{sink: m} }
}

// WithMailbox wires the fan-out services to a Mailbox. Without this
// option MultiCall returns ErrNoMailbox, and Publish/LocalPublish deliver
// nothing but still return the member count: a Scope used only for
// membership tracking need not pay for one.
func WithMailbox(m Mailbox) Option {
	return func(s *Scope) { s.mailbox = m }
}

// NewScope constructs a Scope named name, bootstraps it against transport
// and monitor, and starts its scope task. Callers must call Close when
// done.
func NewScope(name string, transport Transport, monitor Monitor, callbacks Callbacks, opts ...Option) *Scope {
	s := &Scope{
		Name:      name,
		self:      transport.Self(),
		store:     newStore(),
		transport: transport,
		monitor:   monitor,
		callbacks: callbacks,
		log:       zap.NewNop(),
		jobs:      make(chan func(), 256),
	}
	s.metrics = &scopeMetrics{sink: noopMetrics{}}
	for _, opt := range opts {
		opt(s)
	}
	s.mutator = &mutator{store: s.store, monitor: monitor, self: s.self}

	ctx, cancel := context.WithCancel(context.Background())
	s.ctx = ctx
	s.cancel = cancel

	s.restartRebuild()

	s.wg.Add(3)
	go s.runJobs()
	go s.watchPeerEvents(ctx)
	go s.watchDeaths(ctx)

	return s
}

// enqueue schedules fn to run on the scope task and returns immediately.
// fn must not block indefinitely and must not call back into this Scope's
// own public API synchronously — it may only touch the store, monitor,
// and issue fire-and-forget broadcasts.
//
// enqueue selects against ctx.Done() rather than sending unconditionally,
// so a caller racing with Close (in particular the detached snapshot
// exchange goroutine, which may still be in flight when Close runs) drops
// its job instead of blocking or sending on a channel nothing drains.
func (s *Scope) enqueue(fn func()) {
	select {
	case s.jobs <- fn:
	case <-s.ctx.Done():
	}
}

// call schedules fn on the scope task and blocks until it has run,
// returning fn's result. Used by the synchronous parts of the public API
// (Join, Leave, the RPC handlers) that need a result back.
func (s *Scope) call(fn func()) {
	done := make(chan struct{})
	s.enqueue(func() {
		defer close(done)
		fn()
	})
	<-done
}

// runJobs drains jobs until the scope is closed. It selects on ctx.Done()
// rather than relying on a closed jobs channel to terminate the loop,
// since the channel is never closed — enqueue's own select on ctx.Done()
// means nothing can send on jobs after cancellation, so there is nothing
// to safely close against.
func (s *Scope) runJobs() {
	defer s.wg.Done()
	for {
		select {
		case fn := <-s.jobs:
			fn()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scope) watchPeerEvents(ctx context.Context) {
	defer s.wg.Done()
	events := s.transport.PeerEvents(s.Name)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Kind == PeerUp {
				// The snapshot exchange makes a network round trip; run
				// it off the scope task so a slow or unreachable peer
				// cannot stall unrelated joins/leaves, and only hop back
				// onto the task to apply the result. Tracked by wg (Add
				// happens here, before watchPeerEvents itself can return
				// and call its own wg.Done, so Close's wg.Wait cannot
				// race the Add) so Close waits for it to observe
				// cancellation rather than leaking it.
				s.wg.Add(1)
				go func(node NodeID) {
					defer s.wg.Done()
					s.exchangeSnapshotWith(node)
				}(ev.Node)
				continue
			}
			s.enqueue(func() { s.handlePeerEvent(ev) })
		}
	}
}

func (s *Scope) watchDeaths(ctx context.Context) {
	defer s.wg.Done()
	deaths := s.monitor.Deaths()
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deaths:
			if !ok {
				return
			}
			s.enqueue(func() { s.handleDeath(d) })
		}
	}
}

// Close stops the scope task, its background watchers, and any in-flight
// snapshot exchange goroutines, then waits for all of them to exit.
// cancel() unblocks the network round trip in exchangeSnapshotWith (it
// runs under a context derived from s.ctx) and stops every select that
// guards a send on s.jobs, so no goroutine can still be waiting to enqueue
// once wg.Wait returns. Outstanding monitor subscriptions are left to the
// Monitor implementation to clean up; Close does not attempt a graceful
// unsubscribe-all.
func (s *Scope) Close() {
	s.cancel()
	s.wg.Wait()
}

// restartRebuild implements the scope task's restart procedure: on init,
// purge all entries not owned by self (their timestamps are suspect after
// a restart), then rebuild monitors for surviving local entries, dropping
// ones whose member has since died.
func (s *Scope) restartRebuild() {
	// NewScope always builds a fresh, empty store before calling this,
	// so with the current constructor both loops find nothing to do.
	// It runs before any peer-up/anti-entropy traffic arrives.
	for _, e := range s.allEntries() {
		if e.Owner != s.self {
			s.store.remove(e.Group, e.Handle)
		}
	}
	for _, e := range s.store.entriesForOwner(s.self) {
		if s.monitor.Alive(e.Handle) {
			e.MRef = s.mutator.ensureMonitor(e.Handle)
			continue
		}
		s.store.remove(e.Group, e.Handle)
		s.fireLeft(e.Group, e.Handle, e.Meta, Reason{Kind: ReasonUndefined})
	}
	s.metrics.sink.SetMonitors(s.mutator.activeMonitors())
}

func (s *Scope) allEntries() []*entry {
	var out []*entry
	s.store.mu.RLock()
	for _, byH := range s.store.byName {
		for _, e := range byH {
			out = append(out, e)
		}
	}
	s.store.mu.RUnlock()
	return out
}

func (s *Scope) fireJoined(g GroupName, h Handle, meta Meta, reason Reason) {
	s.metrics.joined()
	s.callbacks.OnProcessJoined(s.Name, g, h, meta, reason)
}

func (s *Scope) fireUpdated(g GroupName, h Handle, meta Meta, reason Reason) {
	s.metrics.updated()
	s.callbacks.OnGroupProcessUpdated(s.Name, g, h, meta, reason)
}

func (s *Scope) fireLeft(g GroupName, h Handle, meta Meta, reason Reason) {
	s.metrics.left()
	s.callbacks.OnProcessLeft(s.Name, g, h, meta, reason)
}
