package core

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/signalsfoundry/resource-fabric/model"
)

const sampleTopology = `
pools:
  - {name: CPU, type: compute, capacity: 100}
  - {name: GPU, type: gpu, capacity: 50, state: busy}
  - {name: MEM, type: memory, capacity: 64}
links:
  - {a: CPU, b: GPU, bandwidth: 30, latency: 5}
  - {a: GPU, b: MEM, bandwidth: 10, latency: 1, enabled: false}
  - {a: CPU, b: MEM, bandwidth: 40, latency: 2, permissions: [widest]}
transfers:
  - {src: CPU, dst: GPU, amount: 20, kind: batch, timeout_ms: 1500}
  - {src: CPU, dst: MEM, amount: 5, policy: widest, priority: 2}
`

func TestLoadTopology(t *testing.T) {
	net := NewNetwork()
	topo, err := LoadTopology(net, strings.NewReader(sampleTopology))
	require.NoError(t, err)

	assert.Equal(t, []string{"CPU", "GPU", "MEM"}, topo.PoolNames)
	assert.Len(t, topo.LinkIDs, 3)
	assert.Equal(t, 3, net.CountPools())
	assert.Equal(t, 3, net.CountLinks())
	assert.Equal(t, model.PoolBusy, net.FindPool("GPU").State())

	gm := net.LinkBetween("GPU", "MEM")
	require.NotNil(t, gm)
	assert.False(t, gm.Enabled())

	cm := net.LinkBetween("CPU", "MEM")
	require.NotNil(t, cm)
	assert.True(t, cm.Allows(model.PolicyWidest))
	assert.False(t, cm.Allows(model.PolicyShortest))
	assert.Equal(t, model.PermitAll, net.LinkBetween("CPU", "GPU").Permissions())

	require.Len(t, topo.Transfers, 2)
	first := topo.Transfers[0]
	assert.Equal(t, 20, first.Amount)
	assert.Equal(t, "batch", first.Kind)
	assert.Equal(t, 1500*time.Millisecond, first.Timeout)
	assert.Nil(t, first.Policy)

	second := topo.Transfers[1]
	require.NotNil(t, second.Policy)
	assert.Equal(t, model.PolicyWidest, *second.Policy)
	assert.Equal(t, 2, second.Priority)
}

func TestLoadTopologyCollectsEntryErrors(t *testing.T) {
	doc := `
pools:
  - {name: A, type: t, capacity: 10}
  - {name: A, type: t, capacity: 10}
  - {name: B, type: t, capacity: -1}
  - {name: C, type: t, capacity: 5}
links:
  - {a: A, b: C, bandwidth: 10}
  - {a: A, b: NOPE, bandwidth: 10}
  - {a: A, b: C, bandwidth: 0}
  - {a: A, b: C, bandwidth: 5, permissions: [bogus]}
`
	net := NewNetwork()
	topo, err := LoadTopology(net, strings.NewReader(doc))
	require.Error(t, err)

	errs := multierr.Errors(err)
	assert.Len(t, errs, 5)
	assert.True(t, errors.Is(err, ErrPoolExists))
	assert.True(t, errors.Is(err, ErrPoolBadInput))
	assert.True(t, errors.Is(err, ErrPoolNotFound))
	assert.True(t, errors.Is(err, ErrLinkBadInput))

	assert.Equal(t, []string{"A", "C"}, topo.PoolNames)
	assert.Len(t, topo.LinkIDs, 1)
	assert.Equal(t, 1, net.CountLinks())
}

func TestLoadTopologyMalformed(t *testing.T) {
	_, err := LoadTopology(NewNetwork(), strings.NewReader("pools: [ {name: "))
	require.Error(t, err)
}

func TestLoadTopologyEmpty(t *testing.T) {
	topo, err := LoadTopology(NewNetwork(), strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, topo.PoolNames)
}

func TestLoadTopologyNilNetwork(t *testing.T) {
	_, err := LoadTopology(nil, strings.NewReader(sampleTopology))
	require.Error(t, err)
}
