package topology

import (
	"errors"
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slicelab/api"
)

func mustPrefix(t *testing.T, s string) netip.Prefix {
	t.Helper()
	p, err := netip.ParsePrefix(s)
	require.NoError(t, err)
	return p
}

func hostLinks(rate float64, pairs ...string) []api.LinkSpec {
	var out []api.LinkSpec
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, api.LinkSpec{SrcNode: pairs[i], DstNode: pairs[i+1], Rate: rate})
	}
	return out
}

func slicingSpecs(trunk []api.LinkSpec) []api.LinkSpec {
	specs := append([]api.LinkSpec{}, trunk...)
	return append(specs, hostLinks(10, "h1", "r1", "h2", "r1", "h3", "r1", "h4", "r2", "h5", "r2", "h6", "r2")...)
}

func TestBuildIsolatedSlices(t *testing.T) {
	topo, err := Build(6, 2, slicingSpecs(IsolatedSlices("r1", "r2", 5, 5)))
	require.NoError(t, err)

	require.Len(t, topo.Nodes, 8)
	assert.Equal(t, "h1", topo.Nodes[0].Name)
	assert.Equal(t, "r2", topo.Nodes[7].Name)

	h3, ok := topo.Node("h3")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.3/8", h3.Interface.Ipv4)
	assert.Equal(t, "00:00:00:00:00:03", h3.Interface.Mac)
	assert.Equal(t, "h3-eth0", h3.Interface.Name)

	r2, _ := topo.Node("r2")
	assert.Equal(t, "0000000000000002", r2.Dpid)

	trunks := LinksBetween(topo, "r2", "r1")
	require.Len(t, trunks, 2)
	assert.Equal(t, "slice1", trunks[0].Slice)
	assert.Equal(t, "slice2", trunks[1].Slice)
	assert.Equal(t, "r1-eth1", trunks[0].SrcIntf.Name)
	assert.Equal(t, "r1-eth2", trunks[1].SrcIntf.Name)
	assert.Equal(t, "r2-eth2", trunks[1].DstIntf.Name)

	// link order follows declaration order
	for i, l := range topo.Links {
		assert.Equal(t, int32(i+1), l.Uid)
	}
	assert.Equal(t, "h1", topo.Links[2].SrcNode)
	assert.Equal(t, "r1-eth3", topo.Links[2].DstIntf.Name)
}

func TestSharedVersusIsolated(t *testing.T) {
	shared, err := Build(6, 2, slicingSpecs(SharedSlice("r1", "r2", 10)))
	require.NoError(t, err)
	isolated, err := Build(6, 2, slicingSpecs(IsolatedSlices("r1", "r2", 5, 5)))
	require.NoError(t, err)

	pair := NewPair("r1", "r2")
	assert.Equal(t, CapacityByPair(shared)[pair], CapacityByPair(isolated)[pair])
	assert.Len(t, LinksBetween(shared, "r1", "r2"), 1)
	assert.Len(t, LinksBetween(isolated, "r1", "r2"), 2)
	assert.Len(t, isolated.Links, len(shared.Links)+1)
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name   string
		hosts  int
		routes int
		specs  []api.LinkSpec
	}{
		{"undeclared endpoint", 1, 1, hostLinks(10, "h1", "r9")},
		{"zero capacity", 1, 1, hostLinks(0, "h1", "r1")},
		{"negative capacity", 1, 1, hostLinks(-5, "h1", "r1")},
		{"self loop", 1, 1, append(hostLinks(1, "h1", "r1"), api.LinkSpec{SrcNode: "r1", DstNode: "r1", Rate: 1})},
		{"hosts across routers without trunk", 2, 2, hostLinks(10, "h1", "r1", "h2", "r2")},
		{"disconnected host", 2, 1, hostLinks(10, "h1", "r1")},
		{"no nodes", 0, 0, nil},
		{"negative count", -1, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.hosts, tt.routes, tt.specs)
			var invalid *InvalidTopologyError
			require.True(t, errors.As(err, &invalid), "got %v", err)
			assert.NotEmpty(t, invalid.Reason)
		})
	}
}

func TestFromConfig(t *testing.T) {
	cfg := &api.TopoConfig{
		Nodes: []api.Node{
			{Name: "h1", Interface: api.NodeInterface{Ipv4: "10.0.0.1/24"}},
			{Name: "h2", Interface: api.NodeInterface{Ipv4: "10.0.0.2"}},
			{Name: "s1", Role: api.RoleRouter},
		},
		Links: []api.LinkSpec{
			{SrcNode: "s1", DstNode: "h1", Rate: 10, Latency: 1},
			{SrcNode: "s1", DstNode: "h2", Rate: 10, Latency: 1},
		},
	}
	topo, err := FromConfig(cfg)
	require.NoError(t, err)

	h2, _ := topo.Node("h2")
	assert.Equal(t, "10.0.0.2/8", h2.Interface.Ipv4)
	assert.Equal(t, api.RoleHost, h2.Role)
	assert.Equal(t, "s1-eth2", topo.Links[1].SrcIntf.Name)

	t.Run("duplicate address", func(t *testing.T) {
		cfg := &api.TopoConfig{Nodes: []api.Node{
			{Name: "h1", Interface: api.NodeInterface{Ipv4: "10.0.0.1/24"}},
			{Name: "h2", Interface: api.NodeInterface{Ipv4: "10.0.0.1/24"}},
		}}
		_, err := FromConfig(cfg)
		assert.ErrorContains(t, err, "assigned to both")
	})

	t.Run("duplicate name", func(t *testing.T) {
		cfg := &api.TopoConfig{Nodes: []api.Node{{Name: "h1"}, {Name: "h1"}}}
		_, err := FromConfig(cfg)
		assert.ErrorContains(t, err, "declared twice")
	})

	t.Run("unknown role", func(t *testing.T) {
		cfg := &api.TopoConfig{Nodes: []api.Node{{Name: "x1", Role: "printer"}}}
		_, err := FromConfig(cfg)
		assert.ErrorContains(t, err, "unknown role")
	})
}

func TestLoad(t *testing.T) {
	doc := `
nodes:
  - name: h1
  - name: h2
    interface:
      ipv4: 10.0.0.20/24
  - name: r1
    role: router
links:
  - srcNode: h1
    dstNode: r1
    rate: 10
  - srcNode: h2
    dstNode: r1
    rate: 2.5
    latency: 5
    slice: gold
`
	path := filepath.Join(t.TempDir(), "topo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	topo, err := Load(path)
	require.NoError(t, err)
	require.Len(t, topo.Links, 2)
	assert.Equal(t, 2.5, topo.Links[1].Properties.Rate)
	assert.Equal(t, uint32(5), topo.Links[1].Properties.Latency)
	assert.Equal(t, "gold", topo.Links[1].Slice)
	h2, _ := topo.Node("h2")
	assert.Equal(t, "10.0.0.20/24", h2.Interface.Ipv4)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestReidentify(t *testing.T) {
	topo, err := Build(2, 1, hostLinks(10, "h1", "r1", "h2", "r1"))
	require.NoError(t, err)

	h2, _ := topo.Node("h2")
	require.NoError(t, topo.Reidentify("h2", mustPrefix(t, "10.0.0.10/8")))
	moved, _ := topo.Node("h2")
	assert.Equal(t, "10.0.0.10/8", moved.Interface.Ipv4)
	assert.NotEqual(t, h2.Addr(), moved.Addr())

	_, found := topo.HostByAddr(h2.Addr())
	assert.False(t, found)

	assert.Error(t, topo.Reidentify("h2", mustPrefix(t, "10.0.0.1/8")))
	assert.Error(t, topo.Reidentify("r1", mustPrefix(t, "10.0.0.50/8")))
	assert.Error(t, topo.Reidentify("h9", mustPrefix(t, "10.0.0.50/8")))
}

// Capacity is neither lost nor duplicated, whatever the mix of parallel links.
func TestCapacityConservation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	pairs := [][2]string{{"r1", "r2"}, {"r2", "r3"}, {"r3", "r1"}}
	properties.Property("capacity per pair equals declared capacity", prop.ForAll(
		func(caps []float64) bool {
			specs := []api.LinkSpec{
				{SrcNode: "r1", DstNode: "r2", Rate: 1},
				{SrcNode: "r2", DstNode: "r3", Rate: 1},
			}
			for i, c := range caps {
				p := pairs[i%len(pairs)]
				specs = append(specs, api.LinkSpec{SrcNode: p[0], DstNode: p[1], Rate: c})
			}
			want := make(map[Pair]float64)
			for _, s := range specs {
				want[NewPair(s.SrcNode, s.DstNode)] += s.Rate
			}

			topo, err := Build(0, 3, specs)
			if err != nil {
				return false
			}
			got := CapacityByPair(topo)
			if len(got) != len(want) || len(topo.Links) != len(specs) {
				return false
			}
			for k, v := range want {
				if got[k] != v {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Float64Range(0.1, 1000)),
	))
	properties.TestingRun(t)
}
