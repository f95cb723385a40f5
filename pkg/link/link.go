package link

import (
	"net"

	"github.com/apex/log"
	ns "github.com/containernetworking/plugins/pkg/ns"
	"github.com/pkg/errors"
	"github.com/vishvananda/netlink"

	"slicelab/api"
	"slicelab/pkg/ovs"
)

// LinkManager realises links as veth pairs. Host ends move into the host's
// network namespace; router ends stay in the root namespace as bridge ports.
type LinkManager struct {
	om *ovs.OvsManager
}

func NewLinkManager(o *ovs.OvsManager) *LinkManager {
	return &LinkManager{om: o}
}

// AddLink creates l between nodes of topo that are already up. Host nodes
// must carry their NetNs. Queue handles are recorded in l.Properties.
func (lm *LinkManager) AddLink(topo *api.Topology, l *api.Link) error {
	attrs := netlink.NewLinkAttrs()
	attrs.Name = l.SrcIntf.Name
	attrs.MTU = 1500
	veth := &netlink.Veth{LinkAttrs: attrs, PeerName: l.DstIntf.Name}
	if err := netlink.LinkAdd(veth); err != nil {
		return errors.Wrapf(err, "add veth %s <-> %s", l.SrcIntf.Name, l.DstIntf.Name)
	}

	for _, end := range []api.NodeInterface{l.SrcIntf, l.DstIntf} {
		n, ok := topo.Node(end.NodeName)
		if !ok {
			return errors.Errorf("link %d: no node %s", l.Uid, end.NodeName)
		}
		if err := lm.place(n, end.Name, &l.Properties); err != nil {
			return err
		}
	}
	log.WithFields(log.Fields{
		"link":  l.Uid,
		"src":   l.SrcIntf.Name,
		"dst":   l.DstIntf.Name,
		"rate":  l.Properties.Rate,
		"slice": l.Slice,
	}).Debug("link up")
	return nil
}

func (lm *LinkManager) place(n api.Node, dev string, p *api.LinkProperties) error {
	link, err := netlink.LinkByName(dev)
	if err != nil {
		return errors.Wrapf(err, "find %s", dev)
	}
	if !n.IsHost() {
		if err = lm.om.AttachPort(n.Name, dev); err != nil {
			return err
		}
		return Shape(link, p)
	}

	hostNs, err := ns.GetNS(n.NetNs)
	if err != nil {
		return errors.Wrapf(err, "open netns of %s", n.Name)
	}
	defer hostNs.Close()

	if err = netlink.LinkSetNsFd(link, int(hostNs.Fd())); err != nil {
		return errors.Wrapf(err, "move %s into %s", dev, n.Name)
	}
	return hostNs.Do(func(_ ns.NetNS) error {
		link, err := netlink.LinkByName(dev)
		if err != nil {
			return errors.Wrapf(err, "find %s in %s", dev, n.Name)
		}
		// only the primary interface carries the host's identity
		if dev == n.Interface.Name {
			if err = configure(link, n.Interface); err != nil {
				return err
			}
		}
		if err = netlink.LinkSetUp(link); err != nil {
			return errors.Wrapf(err, "bring up %s", dev)
		}
		return Shape(link, p)
	})
}

func configure(link netlink.Link, intf api.NodeInterface) error {
	hw, err := net.ParseMAC(intf.Mac)
	if err != nil {
		return errors.Wrapf(err, "mac of %s", intf.NodeName)
	}
	if err = netlink.LinkSetHardwareAddr(link, hw); err != nil {
		return errors.Wrapf(err, "set mac on %s", intf.Name)
	}
	addr, err := netlink.ParseAddr(intf.Ipv4)
	if err != nil {
		return errors.Wrapf(err, "address of %s", intf.NodeName)
	}
	if err = netlink.AddrAdd(link, addr); err != nil {
		return errors.Wrapf(err, "add %s to %s", intf.Ipv4, intf.Name)
	}
	return nil
}

// StaticArp installs a permanent neighbour entry for every other host on each
// host's primary interface, so probes never wait on address resolution.
// Hosts must already be wired.
func (lm *LinkManager) StaticArp(topo *api.Topology) error {
	hosts := topo.Hosts()
	for _, h := range hosts {
		hostNs, err := ns.GetNS(h.NetNs)
		if err != nil {
			return errors.Wrapf(err, "open netns of %s", h.Name)
		}
		err = hostNs.Do(func(_ ns.NetNS) error {
			link, err := netlink.LinkByName(h.Interface.Name)
			if err != nil {
				return errors.Wrapf(err, "find %s in %s", h.Interface.Name, h.Name)
			}
			for _, peer := range hosts {
				if peer.Name == h.Name {
					continue
				}
				if err := addNeigh(link, peer.Interface); err != nil {
					return err
				}
			}
			return nil
		})
		hostNs.Close()
		if err != nil {
			return err
		}
	}
	log.WithField("hosts", len(hosts)).Debug("static arp installed")
	return nil
}

func addNeigh(link netlink.Link, peer api.NodeInterface) error {
	hw, err := net.ParseMAC(peer.Mac)
	if err != nil {
		return errors.Wrapf(err, "mac of %s", peer.NodeName)
	}
	addr, err := netlink.ParseAddr(peer.Ipv4)
	if err != nil {
		return errors.Wrapf(err, "address of %s", peer.NodeName)
	}
	neigh := &netlink.Neigh{
		LinkIndex:    link.Attrs().Index,
		Family:       netlink.FAMILY_V4,
		State:        netlink.NUD_PERMANENT,
		IP:           addr.IP,
		HardwareAddr: hw,
	}
	if err = netlink.NeighSet(neigh); err != nil {
		return errors.Wrapf(err, "arp entry for %s", peer.NodeName)
	}
	return nil
}

// DeleteLink removes whichever end of l is still in the root namespace,
// taking its peer with it. Ends that are already gone are not an error.
func (lm *LinkManager) DeleteLink(l api.Link) error {
	for _, dev := range []string{l.SrcIntf.Name, l.DstIntf.Name} {
		link, err := netlink.LinkByName(dev)
		if err != nil {
			var nf netlink.LinkNotFoundError
			if errors.As(err, &nf) {
				continue
			}
			return errors.Wrapf(err, "find %s", dev)
		}
		if err = netlink.LinkDel(link); err != nil {
			return errors.Wrapf(err, "delete %s", dev)
		}
		return nil
	}
	return nil
}
