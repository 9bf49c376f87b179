package registry

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func meta(s string) Meta {
	b, _ := json.Marshal(s)
	return Meta(b)
}

// newTestScope wires a Scope to a fakeTransport/fakeMonitor/fakeCallbacks
// triple and registers it in the package-level universe so fakeTransport's
// Call/Broadcast can resolve peers by NodeID, mirroring how cmd/node's
// registry.Registry resolves scopes for an incoming RPC.
func newTestScope(t *testing.T, self NodeID) (*Scope, *fakeTransport, *fakeMonitor, *fakeCallbacks) {
	t.Helper()
	tr := newFakeTransport(self)
	mon := newFakeMonitor()
	cb := &fakeCallbacks{}
	s := NewScope("test", tr, mon, cb)
	universe.register(self, s)
	t.Cleanup(s.Close)
	return s, tr, mon, cb
}

func TestJoinLeaveIdempotence(t *testing.T) {
	s, _, mon, cb := newTestScope(t, "n1")
	h := Handle{Node: "n1", Task: "t1"}
	mon.setAlive(h, true)

	kind, err := s.Join(context.Background(), "g", h, meta("v1"))
	require.NoError(t, err)
	assert.Equal(t, CallbackJoined, kind)

	kind, err = s.Join(context.Background(), "g", h, meta("v1"))
	require.NoError(t, err)
	assert.Equal(t, CallbackNoop, kind)

	joined, updated, _ := cb.counts()
	assert.Equal(t, 1, joined)
	assert.Equal(t, 0, updated)
}

func TestMetaUpdateFiresJoinedThenUpdated(t *testing.T) {
	s, _, mon, cb := newTestScope(t, "n1")
	h := Handle{Node: "n1", Task: "t1"}
	mon.setAlive(h, true)

	_, err := s.Join(context.Background(), "g", h, meta("v1"))
	require.NoError(t, err)
	kind, err := s.Join(context.Background(), "g", h, meta("v2"))
	require.NoError(t, err)
	assert.Equal(t, CallbackUpdated, kind)

	joined, updated, left := cb.counts()
	assert.Equal(t, 1, joined)
	assert.Equal(t, 1, updated)
	assert.Equal(t, 0, left)
}

func TestJoinRejectsDeadHandle(t *testing.T) {
	s, _, mon, _ := newTestScope(t, "n1")
	h := Handle{Node: "n1", Task: "dead"}
	mon.setAlive(h, false)

	_, err := s.Join(context.Background(), "g", h, meta("v1"))
	assert.ErrorIs(t, err, ErrNotAlive)
}

func TestLeaveUnknownMemberErrors(t *testing.T) {
	s, _, _, _ := newTestScope(t, "n1")
	h := Handle{Node: "n1", Task: "ghost"}
	err := s.Leave(context.Background(), "g", h)
	assert.ErrorIs(t, err, ErrNotInGroup)
}

func TestMonitorRefcountSharedAcrossGroups(t *testing.T) {
	s, _, mon, _ := newTestScope(t, "n1")
	h := Handle{Node: "n1", Task: "t1"}
	mon.setAlive(h, true)

	_, err := s.Join(context.Background(), "g1", h, meta("v1"))
	require.NoError(t, err)
	_, err = s.Join(context.Background(), "g2", h, meta("v1"))
	require.NoError(t, err)

	assert.Equal(t, 1, mon.activeCount())

	require.NoError(t, s.Leave(context.Background(), "g1", h))
	assert.Equal(t, 1, mon.activeCount(), "monitor must survive while one local entry remains")

	require.NoError(t, s.Leave(context.Background(), "g2", h))
	assert.Equal(t, 0, mon.activeCount(), "monitor must be released once the last local entry leaves")
}

func TestIndexSymmetry(t *testing.T) {
	s, _, mon, _ := newTestScope(t, "n1")
	h1 := Handle{Node: "n1", Task: "t1"}
	h2 := Handle{Node: "n1", Task: "t2"}
	mon.setAlive(h1, true)
	mon.setAlive(h2, true)

	_, err := s.Join(context.Background(), "g", h1, meta("v1"))
	require.NoError(t, err)
	_, err = s.Join(context.Background(), "g", h2, meta("v2"))
	require.NoError(t, err)

	members := s.Members("g")
	assert.Len(t, members, 2)

	require.NoError(t, s.Leave(context.Background(), "g", h1))
	assert.True(t, s.IsMember("g", h2))
	assert.False(t, s.IsMember("g", h1))
}

func TestDeathEquivalentToLeaveAll(t *testing.T) {
	s, _, mon, cb := newTestScope(t, "n1")
	h := Handle{Node: "n1", Task: "t1"}
	mon.setAlive(h, true)

	_, err := s.Join(context.Background(), "g1", h, meta("v1"))
	require.NoError(t, err)
	_, err = s.Join(context.Background(), "g2", h, meta("v1"))
	require.NoError(t, err)

	mon.Kill(h, "boom")

	require.Eventually(t, func() bool {
		_, _, left := cb.counts()
		return left == 2
	}, time.Second, 5*time.Millisecond)

	assert.False(t, s.IsMember("g1", h))
	assert.False(t, s.IsMember("g2", h))
	assert.Equal(t, 0, mon.activeCount())
}

func TestSpuriousDeathIsIgnored(t *testing.T) {
	_, _, mon, cb := newTestScope(t, "n1")
	h := Handle{Node: "n1", Task: "unknown"}

	// A subscription with no backing store entry: e.g. the member left
	// between the monitor firing and the scope task processing the death.
	mon.Subscribe(h)
	mon.Kill(h, "boom")

	require.Eventually(t, func() bool {
		return mon.activeCount() == 0
	}, time.Second, 5*time.Millisecond)

	joined, updated, left := cb.counts()
	assert.Equal(t, 0, joined)
	assert.Equal(t, 0, updated)
	assert.Equal(t, 0, left)
}

// A member joined via a remote JoinOnNode call is tracked locally as a
// replicated copy; its lifetime is governed by sync messages from the
// owning node, not by a local liveness subscription.
func TestRemoteEntryNeverCarriesMonitorRef(t *testing.T) {
	owner, ownerTr, ownerMon, _ := newTestScope(t, "owner")
	requester, requesterTr, _, _ := newTestScope(t, "requester")
	ownerTr.link(requesterTr)

	h := Handle{Node: "owner", Task: "t1"}
	ownerMon.setAlive(h, true)

	_, err := requester.Join(context.Background(), "g", h, meta("v1"))
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond) // allow the broadcast's enqueue to settle

	require.True(t, owner.IsLocalMember("g", h))
	require.True(t, requester.IsMember("g", h))

	requester.store.mu.RLock()
	e := requester.store.byName["g"][h]
	requester.store.mu.RUnlock()
	require.NotNil(t, e)
	assert.Nil(t, e.MRef, "a remote entry must never carry a monitor reference")
}

func TestPeerDownPurgesOwnedEntries(t *testing.T) {
	n1, tr1, mon1, _ := newTestScope(t, "n1")
	n2, tr2, _, cb2 := newTestScope(t, "n2")
	tr1.link(tr2)

	h := Handle{Node: "n1", Task: "t1"}
	mon1.setAlive(h, true)
	_, err := n1.Join(context.Background(), "g", h, meta("v1"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return n2.IsMember("g", h)
	}, time.Second, 5*time.Millisecond)

	tr1.unlink(tr2)

	require.Eventually(t, func() bool {
		return !n2.IsMember("g", h)
	}, time.Second, 5*time.Millisecond)

	joined, _, left := cb2.counts()
	assert.Equal(t, 1, joined)
	assert.Equal(t, 1, left)
}

func TestAntiEntropySnapshotExchangeOnPeerUp(t *testing.T) {
	n1, tr1, mon1, _ := newTestScope(t, "n1")
	n2, tr2, _, cb2 := newTestScope(t, "n2")

	h := Handle{Node: "n1", Task: "t1"}
	mon1.setAlive(h, true)
	_, err := n1.Join(context.Background(), "g", h, meta("v1"))
	require.NoError(t, err)

	// n2 joins the cluster after n1 already has state; the snapshot
	// exchange triggered by PeerUp must backfill it.
	tr1.link(tr2)

	require.Eventually(t, func() bool {
		return n2.IsMember("g", h)
	}, time.Second, 5*time.Millisecond)

	joined, _, _ := cb2.counts()
	assert.Equal(t, 1, joined)
}

func TestGroupNamesProjection(t *testing.T) {
	s, _, mon, _ := newTestScope(t, "n1")
	h := Handle{Node: "n1", Task: "t1"}
	mon.setAlive(h, true)

	_, err := s.Join(context.Background(), "alpha", h, meta("v1"))
	require.NoError(t, err)
	_, err = s.Join(context.Background(), "beta", h, meta("v1"))
	require.NoError(t, err)

	names := s.GroupNames(nil)
	assert.Len(t, names, 2)
	assert.Contains(t, names, GroupName("alpha"))
	assert.Contains(t, names, GroupName("beta"))
}
