package scenario

import (
	"fmt"
	"sort"

	"slicelab/api"
	"slicelab/pkg/topology"
)

// hostRate is the capacity of every host access link in built-in topologies.
const hostRate = 10

var builtins = map[string]func() (*Scenario, error){
	"firewall":       firewall,
	"slicing":        func() (*Scenario, error) { return slicing("slicing", false) },
	"slicing-shared": func() (*Scenario, error) { return slicing("slicing-shared", true) },
}

// Builtin returns a fresh copy of a named built-in scenario.
func Builtin(name string) (*Scenario, error) {
	mk, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("no built-in scenario %q (have %v)", name, Names())
	}
	return mk()
}

func Names() []string {
	out := make([]string, 0, len(builtins))
	for name := range builtins {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// firewall walks one host through every filter transition: a blacklist the
// denied host evades by changing address, a whitelist that also cuts off
// replies from outside, and connection tracking that lets them back in.
func firewall() (*Scenario, error) {
	cfg := &api.TopoConfig{
		Nodes: []api.Node{
			{Name: "h1", Role: api.RoleHost, Interface: api.NodeInterface{Ipv4: "10.0.0.1/24"}},
			{Name: "h2", Role: api.RoleHost, Interface: api.NodeInterface{Ipv4: "10.0.0.2/24"}},
			{Name: "h3", Role: api.RoleHost, Interface: api.NodeInterface{Ipv4: "10.0.0.3/24"}},
			{Name: "s1", Role: api.RoleRouter},
		},
	}
	for _, h := range []string{"h1", "h2", "h3"} {
		cfg.Links = append(cfg.Links, api.LinkSpec{SrcNode: "s1", DstNode: h, Rate: hostRate, Latency: 1})
	}
	topo, err := topology.FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &Scenario{
		Topology: topo,
		Script: Script{
			Name:        "firewall",
			Description: "blacklist, address evasion, whitelist and connection tracking on h2 (last step needs an external route: sim only)",
			Steps: []Step{
				Probe("h1", "h2", DefaultSamples),
				Probe("h3", "h2", DefaultSamples),
				Blacklist("h2", "h3"),
				Probe("h1", "h2", DefaultSamples),
				Probe("h3", "h2", DefaultSamples),
				Reidentify("h3", "10.0.0.10"),
				Probe("h3", "h2", DefaultSamples),
				Whitelist("h2", "h1"),
				Probe("h1", "h2", DefaultSamples),
				Probe("h2", "8.8.8.8", DefaultSamples),
				Conntrack("h2"),
				Probe("h2", "8.8.8.8", DefaultSamples),
			},
		},
	}, nil
}

// slicing puts three clients behind r1 and three servers behind r2. The
// routers are joined either by two isolated 5 Mbit/s slices or by one
// shared 10 Mbit/s link of the same total capacity. Routers and the trunk
// come first so they take the low port numbers (r1-eth1, r1-eth2).
func slicing(name string, shared bool) (*Scenario, error) {
	cfg := &api.TopoConfig{
		Nodes: []api.Node{
			{Name: "r1", Role: api.RoleRouter},
			{Name: "r2", Role: api.RoleRouter},
		},
	}
	for i := 1; i <= 6; i++ {
		cfg.Nodes = append(cfg.Nodes, api.Node{Name: fmt.Sprintf("h%d", i), Role: api.RoleHost})
	}

	desc := "two isolated 5 Mbit/s slices between r1 and r2"
	if shared {
		cfg.Links = topology.SharedSlice("r1", "r2", 10)
		desc = "one shared 10 Mbit/s link between r1 and r2"
	} else {
		cfg.Links = topology.IsolatedSlices("r1", "r2", 5, 5)
	}
	for i := 1; i <= 3; i++ {
		cfg.Links = append(cfg.Links, api.LinkSpec{SrcNode: fmt.Sprintf("h%d", i), DstNode: "r1", Rate: hostRate})
	}
	for i := 4; i <= 6; i++ {
		cfg.Links = append(cfg.Links, api.LinkSpec{SrcNode: fmt.Sprintf("h%d", i), DstNode: "r2", Rate: hostRate})
	}

	topo, err := topology.FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	var steps []Step
	for i := 1; i <= 3; i++ {
		steps = append(steps, Probe(fmt.Sprintf("h%d", i), fmt.Sprintf("h%d", i+3), DefaultSamples))
	}
	return &Scenario{
		Topology: topo,
		Script:   Script{Name: name, Description: desc, Steps: steps},
	}, nil
}
