package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryAddGetRemove(t *testing.T) {
	dir := NewRegistry()
	tr := newFakeTransport("n1")
	s := NewScope("alpha", tr, newFakeMonitor(), &fakeCallbacks{})

	dir.Add(s)
	got, ok := dir.Get("alpha")
	require.True(t, ok)
	assert.Same(t, s, got)

	assert.Equal(t, []string{"alpha"}, dir.Names())

	dir.Remove("alpha")
	_, ok = dir.Get("alpha")
	assert.False(t, ok)
}

func TestRegistryAddDuplicatePanics(t *testing.T) {
	dir := NewRegistry()
	tr := newFakeTransport("n1")
	s1 := NewScope("alpha", tr, newFakeMonitor(), &fakeCallbacks{})
	s2 := NewScope("alpha", newFakeTransport("n2"), newFakeMonitor(), &fakeCallbacks{})
	defer s1.Close()
	defer s2.Close()

	dir.Add(s1)
	assert.Panics(t, func() { dir.Add(s2) })
}

func TestRegistryRemoveUnknownIsNoop(t *testing.T) {
	dir := NewRegistry()
	assert.NotPanics(t, func() { dir.Remove("ghost") })
}

func TestRegistryCloseAllClearsDirectory(t *testing.T) {
	dir := NewRegistry()
	dir.Add(NewScope("alpha", newFakeTransport("n1"), newFakeMonitor(), &fakeCallbacks{}))
	dir.Add(NewScope("beta", newFakeTransport("n2"), newFakeMonitor(), &fakeCallbacks{}))

	dir.CloseAll()
	assert.Empty(t, dir.Names())
}
