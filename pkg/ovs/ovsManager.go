package ovs

import (
	"context"
	"os/exec"
	"strings"

	"github.com/apex/log"
	"github.com/digitalocean/go-openvswitch/ovs"
	"github.com/pkg/errors"
	"github.com/vishvananda/netlink"

	"slicelab/api"
)

// OvsManager runs one OVS bridge per router, named after the router. With a
// controller address the bridges fail secure and wait for flows from it;
// without one they learn as standalone switches with STP on.
type OvsManager struct {
	oClient    *ovs.Client
	controller string
}

func NewOvsManager(controller string) *OvsManager {
	return &OvsManager{oClient: ovs.New(), controller: controller}
}

func (om *OvsManager) AddRouter(ctx context.Context, n api.Node) error {
	if err := om.oClient.VSwitch.AddBridge(n.Name); err != nil {
		return errors.Wrapf(err, "add bridge %s", n.Name)
	}
	if n.Dpid != "" {
		if err := vsctl(ctx, "set", "bridge", n.Name, "other-config:datapath-id="+n.Dpid); err != nil {
			return err
		}
	}

	if om.controller != "" {
		if err := om.oClient.VSwitch.SetController(n.Name, om.controller); err != nil {
			return errors.Wrapf(err, "set controller on %s", n.Name)
		}
		if err := om.oClient.VSwitch.SetFailMode(n.Name, ovs.FailModeSecure); err != nil {
			return errors.Wrapf(err, "set fail mode on %s", n.Name)
		}
	} else {
		if err := om.oClient.VSwitch.SetFailMode(n.Name, ovs.FailModeStandalone); err != nil {
			return errors.Wrapf(err, "set fail mode on %s", n.Name)
		}
		// several routers joined by parallel slices form loops
		if err := vsctl(ctx, "set", "bridge", n.Name, "stp_enable=true"); err != nil {
			return err
		}
		if err := om.oClient.OpenFlow.AddFlow(n.Name, &ovs.Flow{
			Priority: 0,
			Actions:  []ovs.Action{ovs.Normal()},
		}); err != nil {
			return errors.Wrapf(err, "add normal flow on %s", n.Name)
		}
	}

	br, err := netlink.LinkByName(n.Name)
	if err != nil {
		return errors.Wrapf(err, "find bridge device %s", n.Name)
	}
	if err = netlink.LinkSetUp(br); err != nil {
		return errors.Wrapf(err, "bring up bridge %s", n.Name)
	}
	log.WithFields(log.Fields{"router": n.Name, "dpid": n.Dpid, "controller": om.controller}).Debug("bridge up")
	return nil
}

func (om *OvsManager) DeleteRouter(name string) error {
	if err := om.oClient.VSwitch.DeleteBridge(name); err != nil {
		return errors.Wrapf(err, "delete bridge %s", name)
	}
	return nil
}

// AttachPort brings port up and adds it to bridge.
func (om *OvsManager) AttachPort(bridge, port string) error {
	link, err := netlink.LinkByName(port)
	if err != nil {
		return errors.Wrapf(err, "find port %s", port)
	}
	if err = netlink.LinkSetUp(link); err != nil {
		return errors.Wrapf(err, "bring up port %s", port)
	}
	if err = om.oClient.VSwitch.AddPort(bridge, port); err != nil {
		return errors.Wrapf(err, "add %s to bridge %s", port, bridge)
	}
	return nil
}

func vsctl(ctx context.Context, args ...string) error {
	out, err := exec.CommandContext(ctx, "ovs-vsctl", args...).CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "ovs-vsctl %s: %s", strings.Join(args, " "), strings.TrimSpace(string(out)))
	}
	return nil
}
