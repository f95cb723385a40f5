package api

import (
	"fmt"
	"net/netip"
)

// TopoConfig is the declarative topology form read from yaml.
type TopoConfig struct {
	Nodes []Node     `yaml:"nodes"`
	Links []LinkSpec `yaml:"links"`
}

// Topology keeps nodes and links in declaration order. Address and MAC
// assignment downstream depends on that order.
type Topology struct {
	Nodes []Node
	Links []Link

	index map[string]int
}

func NewTopology() *Topology {
	return &Topology{
		index: make(map[string]int),
	}
}

// AddNode appends n. It reports false if the name is already taken.
func (t *Topology) AddNode(n Node) bool {
	if t.index == nil {
		t.index = make(map[string]int)
	}
	if _, existed := t.index[n.Name]; existed {
		return false
	}
	t.index[n.Name] = len(t.Nodes)
	t.Nodes = append(t.Nodes, n)
	return true
}

func (t *Topology) Node(name string) (Node, bool) {
	i, ok := t.index[name]
	if !ok {
		return Node{}, false
	}
	return t.Nodes[i], true
}

// SetNode replaces the node with the same name.
func (t *Topology) SetNode(n Node) bool {
	i, ok := t.index[n.Name]
	if !ok {
		return false
	}
	t.Nodes[i] = n
	return true
}

func (t *Topology) Hosts() []Node {
	return t.filter(RoleHost)
}

func (t *Topology) Routers() []Node {
	return t.filter(RoleRouter)
}

func (t *Topology) filter(role Role) []Node {
	var out []Node
	for _, n := range t.Nodes {
		if n.Role == role {
			out = append(out, n)
		}
	}
	return out
}

// HostByAddr finds the host currently holding addr.
func (t *Topology) HostByAddr(addr netip.Addr) (Node, bool) {
	for _, n := range t.Nodes {
		if n.IsHost() && n.Addr() == addr {
			return n, true
		}
	}
	return Node{}, false
}

// LinksOf returns the links terminating on name, in declaration order.
func (t *Topology) LinksOf(name string) []Link {
	var out []Link
	for _, l := range t.Links {
		if l.SrcNode == name || l.DstNode == name {
			out = append(out, l)
		}
	}
	return out
}

// Reidentify moves host to a new address. Filter chains are left alone, so
// rules written against the old address stop matching.
func (t *Topology) Reidentify(host string, addr netip.Prefix) error {
	n, ok := t.Node(host)
	if !ok {
		return fmt.Errorf("node %s not found", host)
	}
	if !n.IsHost() {
		return fmt.Errorf("node %s is a %s, only hosts carry an address", host, n.Role)
	}
	if !addr.IsValid() || !addr.Addr().Is4() {
		return fmt.Errorf("invalid ipv4 address %q for %s", addr, host)
	}
	if other, taken := t.HostByAddr(addr.Addr()); taken && other.Name != host {
		return fmt.Errorf("address %s already assigned to %s", addr.Addr(), other.Name)
	}
	n.Interface.Ipv4 = addr.String()
	t.SetNode(n)
	return nil
}

// Clone returns a deep copy; mutating the copy leaves t untouched.
func (t *Topology) Clone() *Topology {
	out := &Topology{
		Nodes: append([]Node(nil), t.Nodes...),
		Links: append([]Link(nil), t.Links...),
		index: make(map[string]int, len(t.index)),
	}
	for k, v := range t.index {
		out.index[k] = v
	}
	return out
}
