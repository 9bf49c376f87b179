package liveness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaivolabs/pgreg/pkg/registry"
)

func TestSubscribeToAliveHandleDeliversOnKill(t *testing.T) {
	m := NewMonitor(8)
	h := registry.Handle{Node: "n1", Task: "t1"}
	m.Register(h)

	ref := m.Subscribe(h)
	m.Kill(h, "boom")

	select {
	case d := <-m.Deaths():
		assert.Equal(t, ref, d.Ref)
		assert.Equal(t, h, d.Handle)
		assert.Equal(t, "boom", d.Reason)
	case <-time.After(time.Second):
		t.Fatal("no death delivered")
	}
	assert.False(t, m.Alive(h))
}

func TestSubscribeToDeadHandleDeliversImmediately(t *testing.T) {
	m := NewMonitor(8)
	h := registry.Handle{Node: "n1", Task: "never-registered"}

	m.Subscribe(h)

	select {
	case d := <-m.Deaths():
		assert.Equal(t, h, d.Handle)
		assert.Equal(t, "not_alive", d.Reason)
	case <-time.After(time.Second):
		t.Fatal("no death delivered for already-dead handle")
	}
}

func TestUnsubscribeSuppressesDeath(t *testing.T) {
	m := NewMonitor(8)
	h := registry.Handle{Node: "n1", Task: "t1"}
	m.Register(h)

	ref := m.Subscribe(h)
	m.Unsubscribe(ref)
	m.Kill(h, "boom")

	select {
	case d := <-m.Deaths():
		t.Fatalf("unexpected death after unsubscribe: %+v", d)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	m := NewMonitor(8)
	h := registry.Handle{Node: "n1", Task: "t1"}
	m.Register(h)
	ref := m.Subscribe(h)

	assert.NotPanics(t, func() {
		m.Unsubscribe(ref)
		m.Unsubscribe(ref)
	})
}

func TestKillDeliversOnlyToOutstandingSubscriptions(t *testing.T) {
	m := NewMonitor(8)
	h := registry.Handle{Node: "n1", Task: "t1"}
	m.Register(h)

	ref1 := m.Subscribe(h)
	ref2 := m.Subscribe(h)
	m.Unsubscribe(ref1)
	m.Kill(h, "boom")

	d := <-m.Deaths()
	assert.Equal(t, ref2, d.Ref)

	select {
	case extra := <-m.Deaths():
		t.Fatalf("unexpected second death: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestInboxDeliverRequiresRegistration(t *testing.T) {
	ib := NewInbox()
	h := registry.Handle{Node: "n1", Task: "t1"}

	err := ib.Deliver(h, Envelope{Body: []byte("hi")})
	assert.ErrorIs(t, err, ErrNoSuchTask)
}

func TestInboxDeliverAndReceive(t *testing.T) {
	ib := NewInbox()
	h := registry.Handle{Node: "n1", Task: "t1"}
	ch := ib.Register(h, 4)

	require.NoError(t, ib.Deliver(h, Envelope{Body: []byte("hi"), From: "n2"}))

	select {
	case env := <-ch:
		assert.Equal(t, []byte("hi"), env.Body)
		assert.Equal(t, registry.NodeID("n2"), env.From)
	case <-time.After(time.Second):
		t.Fatal("no envelope received")
	}
}

func TestInboxUnregisterStopsDelivery(t *testing.T) {
	ib := NewInbox()
	h := registry.Handle{Node: "n1", Task: "t1"}
	ib.Register(h, 4)
	ib.Unregister(h)

	err := ib.Deliver(h, Envelope{Body: []byte("hi")})
	assert.ErrorIs(t, err, ErrNoSuchTask)
}

func TestInboxDeliverDropsOnFullBuffer(t *testing.T) {
	ib := NewInbox()
	h := registry.Handle{Node: "n1", Task: "t1"}
	ib.Register(h, 1)

	require.NoError(t, ib.Deliver(h, Envelope{Body: []byte("first")}))
	require.NoError(t, ib.Deliver(h, Envelope{Body: []byte("second")}), "a full inbox drops silently rather than erroring")
}

func TestInboxReplyCorrelatesByToken(t *testing.T) {
	ib := NewInbox()

	token, replyCh := ib.NewWait()
	ib.Reply(token, []byte("pong"))

	select {
	case body := <-replyCh:
		assert.Equal(t, []byte("pong"), body)
	case <-time.After(time.Second):
		t.Fatal("no reply received")
	}
}

func TestInboxReplyToUnknownTokenIsNoop(t *testing.T) {
	ib := NewInbox()
	assert.NotPanics(t, func() { ib.Reply("no-such-token", []byte("pong")) })
}

func TestInboxCancelWaitStopsCorrelation(t *testing.T) {
	ib := NewInbox()
	token, _ := ib.NewWait()
	ib.CancelWait(token)

	assert.NotPanics(t, func() { ib.Reply(token, []byte("too late")) })
}
