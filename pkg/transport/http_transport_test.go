package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kaivolabs/pgreg/pkg/registry"
)

func TestUpdatePeersEmitsUpAndDownEvents(t *testing.T) {
	tr := NewHTTPTransport("self", "self:8080")
	events := tr.PeerEvents("scope-a")

	tr.UpdatePeers(map[registry.NodeID]string{
		"self":   "self:8080",
		"peer-a": "peer-a:8080",
		"peer-b": "peer-b:8080",
	})

	seen := map[registry.NodeID]registry.PeerEventKind{}
	for i := 0; i < 2; i++ {
		ev := <-events
		seen[ev.Node] = ev.Kind
	}
	assert.Equal(t, registry.PeerUp, seen["peer-a"])
	assert.Equal(t, registry.PeerUp, seen["peer-b"])
	assert.Len(t, tr.PeerSet("scope-a"), 2)

	tr.UpdatePeers(map[registry.NodeID]string{
		"self":   "self:8080",
		"peer-a": "peer-a:8080",
	})

	ev := <-events
	assert.Equal(t, registry.PeerDown, ev.Kind)
	assert.Equal(t, registry.NodeID("peer-b"), ev.Node)
	assert.Len(t, tr.PeerSet("scope-a"), 1)
}

func TestUpdatePeersNeverReportsSelf(t *testing.T) {
	tr := NewHTTPTransport("self", "self:8080")
	events := tr.PeerEvents("scope-a")

	tr.UpdatePeers(map[registry.NodeID]string{"self": "self:8080"})

	select {
	case ev := <-events:
		t.Fatalf("unexpected event for self: %+v", ev)
	default:
	}
	assert.Empty(t, tr.PeerSet("scope-a"))
}

func TestKindOfRejectsUnrecognizedMessage(t *testing.T) {
	_, err := kindOf(struct{}{})
	assert.Error(t, err)
}

func TestKindOfCoversEveryWireType(t *testing.T) {
	cases := []struct {
		msg  any
		want string
	}{
		{registry.JoinOnNode{}, "join_on_node"},
		{registry.LeaveOnNode{}, "leave_on_node"},
		{registry.SyncJoin{}, "sync_join"},
		{registry.SyncLeave{}, "sync_leave"},
		{registry.Snapshot{}, "snapshot"},
	}
	for _, c := range cases {
		kind, err := kindOf(c.msg)
		assert.NoError(t, err)
		assert.Equal(t, c.want, kind)
	}
}

func TestNormalizeBase(t *testing.T) {
	assert.Equal(t, "http://host:8080", normalizeBase("host:8080"))
	assert.Equal(t, "http://host:8080", normalizeBase("http://host:8080"))
	assert.Equal(t, "https://host:8080", normalizeBase("https://host:8080"))
}
