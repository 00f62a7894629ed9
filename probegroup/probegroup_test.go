package probegroup

import (
	"testing"

	"github.com/probeweave/probeengine/protocol"
	"github.com/probeweave/probeengine/probe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProbe(t *testing.T) *probe.Probe {
	t.Helper()
	reg := protocol.BuildDefault()
	p := probe.New(reg)
	require.NoError(t, p.SetProtocols("ipv4", "udp"))
	return p
}

func TestSchedulingOrdering(t *testing.T) {
	g := New()
	p1, p2, p3 := newProbe(t), newProbe(t), newProbe(t)

	g.Insert(p1, 0.3)
	g.Insert(p2, 0.1)
	g.Insert(p3, 0.2)

	assert.Equal(t, 0.1, g.RootDelay())
	due := g.NextScheduled()
	require.Len(t, due, 1)
	assert.Same(t, p2, due[0])

	g.Delete(p2)
	assert.Equal(t, 0.2, g.RootDelay())
	due = g.NextScheduled()
	require.Len(t, due, 1)
	assert.Same(t, p3, due[0])

	g.Delete(p3)
	assert.Equal(t, 0.3, g.RootDelay())

	g.Delete(p1)
	assert.True(t, g.Empty())
}

func TestNextScheduledCollectsTies(t *testing.T) {
	g := New()
	p1, p2 := newProbe(t), newProbe(t)
	g.Insert(p1, 0.5)
	g.Insert(p2, 0.5)

	due := g.NextScheduled()
	assert.Len(t, due, 2)
}
