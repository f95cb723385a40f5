// Package topology builds validated, capacity-annotated topologies from link
// declarations. Node and link order always follow declaration order.
package topology

import (
	"fmt"
	"math"
	"net/netip"
	"os"

	"gopkg.in/yaml.v3"

	"slicelab/api"
	"slicelab/pkg/util"
)

const (
	HostPrefix   = "h"
	RouterPrefix = "r"
)

// DefaultSubnet is where hosts without an explicit address are numbered.
var DefaultSubnet = netip.MustParsePrefix("10.0.0.0/8")

// InvalidTopologyError reports malformed build input. It is raised before any
// emulator resource is touched.
type InvalidTopologyError struct {
	Reason string
}

func (e *InvalidTopologyError) Error() string {
	return "invalid topology: " + e.Reason
}

func invalidf(format string, args ...any) error {
	return &InvalidTopologyError{Reason: fmt.Sprintf(format, args...)}
}

// Build declares hosts h1..hN and routers r1..rM, then joins them with specs.
func Build(hostCount, routerCount int, specs []api.LinkSpec) (*api.Topology, error) {
	if hostCount < 0 || routerCount < 0 {
		return nil, invalidf("negative node count (hosts=%d, routers=%d)", hostCount, routerCount)
	}
	cfg := &api.TopoConfig{Links: specs}
	for i := 1; i <= hostCount; i++ {
		cfg.Nodes = append(cfg.Nodes, api.Node{Name: fmt.Sprintf("%s%d", HostPrefix, i), Role: api.RoleHost})
	}
	for i := 1; i <= routerCount; i++ {
		cfg.Nodes = append(cfg.Nodes, api.Node{Name: fmt.Sprintf("%s%d", RouterPrefix, i), Role: api.RoleRouter})
	}
	return FromConfig(cfg)
}

// Load reads a yaml TopoConfig and builds it.
func Load(path string) (*api.Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading YAML file: %w", err)
	}
	var cfg api.TopoConfig
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling YAML file: %w", err)
	}
	return FromConfig(&cfg)
}

// FromConfig validates cfg and returns the topology it describes. Hosts
// without an address get the next address of DefaultSubnet, hosts without a
// MAC get one derived from their position among hosts.
func FromConfig(cfg *api.TopoConfig) (*api.Topology, error) {
	if cfg == nil || len(cfg.Nodes) == 0 {
		return nil, invalidf("no nodes declared")
	}
	topo := api.NewTopology()
	if err := addNodes(topo, cfg.Nodes); err != nil {
		return nil, err
	}
	if err := addLinks(topo, cfg.Links); err != nil {
		return nil, err
	}
	if err := checkRouterLinks(topo); err != nil {
		return nil, err
	}
	if err := checkConnected(topo); err != nil {
		return nil, err
	}
	return topo, nil
}

func addNodes(topo *api.Topology, nodes []api.Node) error {
	var hostSeq, routerSeq int
	owners := make(map[netip.Addr]string)
	for _, n := range nodes {
		if n.Name == "" {
			return invalidf("node #%d has no name", len(topo.Nodes)+1)
		}
		n.Uid = int32(len(topo.Nodes) + 1)
		switch n.Role {
		case "", api.RoleHost:
			n.Role = api.RoleHost
			hostSeq++
			if err := assignHost(&n, hostSeq); err != nil {
				return err
			}
			addr := n.Addr()
			if owner, taken := owners[addr]; taken {
				return invalidf("address %s assigned to both %s and %s", addr, owner, n.Name)
			}
			owners[addr] = n.Name
		case api.RoleRouter:
			routerSeq++
			n.Interface = api.NodeInterface{}
			if n.Dpid == "" {
				n.Dpid = fmt.Sprintf("%016x", routerSeq)
			}
		default:
			return invalidf("node %s has unknown role %q", n.Name, n.Role)
		}
		if !topo.AddNode(n) {
			return invalidf("node %s declared twice", n.Name)
		}
	}
	return nil
}

func assignHost(n *api.Node, seq int) error {
	var (
		p   netip.Prefix
		err error
	)
	if n.Interface.Ipv4 == "" {
		p, err = util.HostAddr(DefaultSubnet, seq)
	} else {
		p, err = util.ParseIpv4(n.Interface.Ipv4, DefaultSubnet.Bits())
	}
	if err != nil {
		return invalidf("host %s: %v", n.Name, err)
	}
	n.Interface.Ipv4 = p.String()
	n.Interface.NodeName = n.Name
	if n.Interface.Mac == "" {
		n.Interface.Mac = util.SeqMac(seq)
	}
	return nil
}

// addLinks numbers interfaces per node in declaration order: hosts start at
// eth0, routers at eth1 (port 0 is the bridge itself).
func addLinks(topo *api.Topology, specs []api.LinkSpec) error {
	next := make(map[string]int)
	intf := func(n api.Node) (api.NodeInterface, error) {
		k, seen := next[n.Name]
		if !seen && !n.IsHost() {
			k = 1
		}
		next[n.Name] = k + 1
		name := fmt.Sprintf("%s-eth%d", n.Name, k)
		if !util.ValidIntfName(name) {
			return api.NodeInterface{}, invalidf("interface name %q is not a valid device name", name)
		}
		return api.NodeInterface{Name: name, NodeName: n.Name}, nil
	}

	for i, s := range specs {
		src, ok := topo.Node(s.SrcNode)
		if !ok {
			return invalidf("link #%d: src node %q not declared", i+1, s.SrcNode)
		}
		dst, ok := topo.Node(s.DstNode)
		if !ok {
			return invalidf("link #%d: dst node %q not declared", i+1, s.DstNode)
		}
		if src.Name == dst.Name {
			return invalidf("link #%d: %s is linked to itself", i+1, src.Name)
		}
		if !(s.Rate > 0) || math.IsInf(s.Rate, 0) {
			return invalidf("link #%d (%s-%s): capacity must be positive, got %v", i+1, src.Name, dst.Name, s.Rate)
		}
		if s.Loss < 0 || s.Loss > 100 {
			return invalidf("link #%d (%s-%s): loss %v%% out of range", i+1, src.Name, dst.Name, s.Loss)
		}
		l := api.Link{
			Uid:     int32(i + 1),
			SrcNode: src.Name,
			DstNode: dst.Name,
			Slice:   s.Slice,
			Properties: api.LinkProperties{
				Rate:    s.Rate,
				Latency: s.Latency,
				Loss:    s.Loss,
			},
		}
		var err error
		if l.SrcIntf, err = intf(src); err != nil {
			return err
		}
		if l.DstIntf, err = intf(dst); err != nil {
			return err
		}
		topo.Links = append(topo.Links, l)
	}

	// a host answers on the interface of its first link
	for _, h := range topo.Hosts() {
		links := topo.LinksOf(h.Name)
		if len(links) == 0 {
			continue
		}
		first := links[0].Intf(h.Name)
		h.Interface.Name = first.Name
		topo.SetNode(h)
	}
	return nil
}

// checkRouterLinks rejects host sets spread over several routers that have
// no router-to-router link at all.
func checkRouterLinks(topo *api.Topology) error {
	attached := make(map[string]bool)
	trunks := 0
	for _, l := range topo.Links {
		src, _ := topo.Node(l.SrcNode)
		dst, _ := topo.Node(l.DstNode)
		switch {
		case src.IsHost() && !dst.IsHost():
			attached[dst.Name] = true
		case dst.IsHost() && !src.IsHost():
			attached[src.Name] = true
		case !src.IsHost() && !dst.IsHost():
			trunks++
		}
	}
	if len(attached) > 1 && trunks == 0 {
		return invalidf("hosts span %d routers but no router-to-router link is declared", len(attached))
	}
	return nil
}

func checkConnected(topo *api.Topology) error {
	adj := make(map[string][]string)
	for _, l := range topo.Links {
		adj[l.SrcNode] = append(adj[l.SrcNode], l.DstNode)
		adj[l.DstNode] = append(adj[l.DstNode], l.SrcNode)
	}
	start := topo.Nodes[0].Name
	seen := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, peer := range adj[cur] {
			if !seen[peer] {
				seen[peer] = true
				queue = append(queue, peer)
			}
		}
	}
	for _, n := range topo.Nodes {
		if !seen[n.Name] {
			return invalidf("node %s is not reachable from %s", n.Name, start)
		}
	}
	return nil
}
