package scenario

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slicelab/pkg/emulator"
	"slicelab/pkg/topology"
)

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"firewall", "slicing", "slicing-shared"}, Names())
	_, err := Builtin("nope")
	assert.Error(t, err)
}

func TestBuiltinsRunClean(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			sc := mustBuiltin(t, name)
			assert.Equal(t, name, sc.Name())
			rep, err := NewRunner(emulator.NewSim(), DefaultConfig(), nil).Run(context.Background(), sc.Topology, sc.Script)
			require.NoError(t, err)
			assert.True(t, rep.Passed())
		})
	}
}

func TestSlicingCapacity(t *testing.T) {
	isolated := mustBuiltin(t, "slicing")
	shared := mustBuiltin(t, "slicing-shared")
	trunk := topology.NewPair("r1", "r2")

	assert.Len(t, topology.LinksBetween(isolated.Topology, "r1", "r2"), 2)
	assert.Len(t, topology.LinksBetween(shared.Topology, "r1", "r2"), 1)
	assert.Equal(t, topology.CapacityByPair(shared.Topology)[trunk], topology.CapacityByPair(isolated.Topology)[trunk])
	assert.Len(t, isolated.Topology.Hosts(), 6)
	assert.Len(t, isolated.Topology.Routers(), 2)
}

func TestSlicingTrunkTakesFirstPorts(t *testing.T) {
	isolated := mustBuiltin(t, "slicing")
	trunks := topology.LinksBetween(isolated.Topology, "r1", "r2")
	require.Len(t, trunks, 2)
	for i, l := range trunks {
		assert.Equal(t, fmt.Sprintf("r1-eth%d", i+1), l.SrcIntf.Name)
		assert.Equal(t, fmt.Sprintf("r2-eth%d", i+1), l.DstIntf.Name)
		assert.Equal(t, fmt.Sprintf("slice%d", i+1), l.Slice)
	}

	r1, ok := isolated.Topology.Node("r1")
	require.True(t, ok)
	assert.Equal(t, "0000000000000001", r1.Dpid)
	h1, ok := isolated.Topology.Node("h1")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.1/8", h1.Interface.Ipv4)
	assert.Equal(t, "00:00:00:00:00:01", h1.Interface.Mac)
	assert.Equal(t, "h1-eth0", h1.Interface.Name)

	shared := mustBuiltin(t, "slicing-shared")
	h3 := topology.LinksBetween(shared.Topology, "h3", "r1")
	require.Len(t, h3, 1)
	assert.Equal(t, "r1-eth4", h3[0].DstIntf.Name)
}

func TestBuiltinIsFresh(t *testing.T) {
	a := mustBuiltin(t, "firewall")
	require.NoError(t, a.Topology.Reidentify("h3", netip.MustParsePrefix("10.0.0.10/24")))
	b := mustBuiltin(t, "firewall")
	h3, _ := b.Topology.Node("h3")
	assert.Equal(t, "10.0.0.3/24", h3.Interface.Ipv4)
}

const scriptYAML = `
name: two-hosts
description: blacklist on a point-to-point pair
topology:
  nodes:
    - name: a
      interface:
        ipv4: 192.168.1.1/24
    - name: b
      interface:
        ipv4: 192.168.1.2/24
  links:
    - srcNode: a
      dstNode: b
      rate: 100
steps:
  - kind: probe
    source: a
    target: b
  - kind: blacklist
    host: b
    addrs: [a]
  - kind: probe
    source: a
    target: 192.168.1.2
    samples: 5
`

func TestLoadScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "two-hosts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(scriptYAML), 0o644))

	sc, err := LoadScript(path)
	require.NoError(t, err)
	assert.Equal(t, "two-hosts", sc.Name())
	require.Len(t, sc.Script.Steps, 3)
	assert.Equal(t, Blacklist("b", "a"), sc.Script.Steps[1])

	rep, err := NewRunner(emulator.NewSim(), DefaultConfig(), nil).Run(context.Background(), sc.Topology, sc.Script)
	require.NoError(t, err)
	require.Len(t, rep.Entries, 3)
	assert.Equal(t, 1.0, rep.Entries[0].Observed)
	assert.Equal(t, 0.0, rep.Entries[2].Expected)
	assert.Equal(t, 5, rep.Entries[2].Samples)
	assert.True(t, rep.Passed())
}

func TestParseScriptErrors(t *testing.T) {
	cases := map[string]string{
		"not yaml":  "name: [",
		"no name":   "steps: []",
		"bad kind":  "name: x\nsteps:\n  - kind: teleport\n",
		"no nodes":  "name: x\n",
		"self link": "name: x\ntopology:\n  nodes: [{name: a}]\n  links: [{srcNode: a, dstNode: a, rate: 1}]\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseScript([]byte(data))
			assert.Error(t, err)
		})
	}
	_, err := LoadScript(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
