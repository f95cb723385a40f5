package api

import "net/netip"

type Role string

const (
	RoleHost   Role = "host"
	RoleRouter Role = "router"
)

type Node struct {
	Uid       int32
	Name      string        `yaml:"name"`
	Role      Role          `yaml:"role"`
	Interface NodeInterface `yaml:"interface"`
	NetNs     string        `yaml:"-"`
	Image     string        `yaml:"image"`
	Dpid      string        `yaml:"dpid"` // routers only, 16 hex digits
}

// NodeInterface is the primary interface of a host. Routers keep it empty
// and expose their ports through the links they terminate.
type NodeInterface struct {
	Name     string `yaml:"-"`
	Mac      string `yaml:"mac"`
	Ipv4     string `yaml:"ipv4"` // 10.0.0.1/24
	NodeName string `yaml:"-"`
}

func (n Node) IsHost() bool {
	return n.Role == RoleHost
}

// Prefix parses the assigned address. The zero prefix is returned for routers
// and for hosts without a valid address.
func (n Node) Prefix() netip.Prefix {
	if !n.IsHost() {
		return netip.Prefix{}
	}
	p, err := netip.ParsePrefix(n.Interface.Ipv4)
	if err != nil {
		return netip.Prefix{}
	}
	return p
}

func (n Node) Addr() netip.Addr {
	return n.Prefix().Addr()
}
