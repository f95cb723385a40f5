package link

import (
	"github.com/pkg/errors"
	"github.com/vishvananda/netlink"

	"slicelab/api"
)

// Every link end gets the same two-level tree, so each parallel link is its
// own queue:
//
//	tc qdisc add dev X root handle 1: htb default 1
//	tc class add dev X parent 1: classid 1:1 htb rate <rate>mbit burst 10000
//	tc qdisc add dev X parent 1:1 handle 10: netem delay <latency>ms loss <loss>%
var (
	rootHandle  = netlink.MakeHandle(1, 0)
	classHandle = netlink.MakeHandle(1, 1)
	netemHandle = netlink.MakeHandle(10, 0)
)

// Shape installs the link's capacity, latency and loss on dev, which must
// already be in the current network namespace. The handles used are
// recorded in p.
func Shape(dev netlink.Link, p *api.LinkProperties) error {
	idx := dev.Attrs().Index

	root := netlink.NewHtb(netlink.QdiscAttrs{
		LinkIndex: idx,
		Handle:    rootHandle,
		Parent:    netlink.HANDLE_ROOT,
	})
	root.Defcls = 1
	if err := netlink.QdiscAdd(root); err != nil {
		return errors.Wrapf(err, "add htb root on %s", dev.Attrs().Name)
	}

	class := netlink.NewHtbClass(
		netlink.ClassAttrs{
			LinkIndex: idx,
			Handle:    classHandle,
			Parent:    rootHandle,
		},
		netlink.HtbClassAttrs{
			Rate:   uint64(p.Rate * 1e6), // bit/s
			Buffer: 10000,
			Prio:   1,
		},
	)
	if err := netlink.ClassAdd(class); err != nil {
		return errors.Wrapf(err, "add htb class on %s", dev.Attrs().Name)
	}
	p.HTBClassid = classHandle

	if p.Latency == 0 && p.Loss == 0 {
		return nil
	}
	netem := netlink.NewNetem(netlink.QdiscAttrs{
		LinkIndex: idx,
		Parent:    classHandle,
		Handle:    netemHandle,
	}, netlink.NetemQdiscAttrs{
		Latency: p.Latency * 1000, // us
		Loss:    p.Loss,
		Limit:   300000,
	})
	if err := netlink.QdiscAdd(netem); err != nil {
		return errors.Wrapf(err, "add netem on %s", dev.Attrs().Name)
	}
	p.NetemHandleId = netemHandle
	return nil
}
