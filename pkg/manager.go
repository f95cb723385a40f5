package pkg

import (
	"context"
	"net/netip"
	"sync"

	"github.com/apex/log"
	"github.com/pkg/errors"

	"slicelab/api"
	"slicelab/pkg/emulator"
	"slicelab/pkg/link"
	"slicelab/pkg/node"
	"slicelab/pkg/ovs"
)

// Manager is the docker backend: one container per host, one OVS bridge per
// router and one shaped veth pair per link. It needs root.
type Manager struct {
	om *ovs.OvsManager
	lm *link.LinkManager
	cm *node.ContainerManager

	mu      sync.Mutex
	topo    *api.Topology
	hosts   []string // containers created, in order
	routers []string // bridges created, in order
	links   []api.Link
}

var _ emulator.Backend = (*Manager)(nil)

// NewManager connects to the docker daemon. image is used for hosts that do
// not name one; controller is an OpenFlow target such as tcp:127.0.0.1:6653,
// or empty for standalone bridges.
func NewManager(image, controller string) (*Manager, error) {
	cm, err := node.NewContainerManager(image)
	if err != nil {
		return nil, err
	}
	om := ovs.NewOvsManager(controller)
	return &Manager{
		om: om,
		lm: link.NewLinkManager(om),
		cm: cm,
	}, nil
}

// Start realises topo. Whatever was created before a failure is removed
// again before Start returns.
func (m *Manager) Start(ctx context.Context, topo *api.Topology) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.topo != nil {
		return emulator.ErrAlreadyStarted
	}
	m.topo = topo

	if err := m.build(ctx, topo); err != nil {
		if terr := m.teardown(context.WithoutCancel(ctx)); terr != nil {
			log.WithError(terr).Warn("cleanup after failed start")
		}
		return err
	}
	return nil
}

func (m *Manager) build(ctx context.Context, topo *api.Topology) error {
	for _, n := range topo.Hosts() {
		m.hosts = append(m.hosts, n.Name)
		if err := m.cm.AddNode(ctx, &n); err != nil {
			return err
		}
		topo.SetNode(n)
	}
	for _, n := range topo.Routers() {
		m.routers = append(m.routers, n.Name)
		if err := m.om.AddRouter(ctx, n); err != nil {
			return err
		}
	}
	for i := range topo.Links {
		l := &topo.Links[i]
		m.links = append(m.links, *l)
		if err := m.lm.AddLink(topo, l); err != nil {
			return err
		}
	}
	if err := m.lm.StaticArp(topo); err != nil {
		return err
	}
	log.WithFields(log.Fields{"hosts": len(m.hosts), "routers": len(m.routers), "links": len(m.links)}).Info("docker network up")
	return nil
}

func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.topo == nil {
		return emulator.ErrNotStarted
	}
	return m.teardown(ctx)
}

// teardown removes containers first, which takes every host-side veth and
// its peer along; only router-to-router links are left to delete by hand.
// All resources are attempted; the first error is returned.
func (m *Manager) teardown(ctx context.Context) error {
	var first error
	keep := func(err error) {
		if err == nil {
			return
		}
		log.WithError(err).Warn("teardown")
		if first == nil {
			first = err
		}
	}
	for _, h := range m.hosts {
		keep(m.cm.DeleteNode(ctx, h))
	}
	for _, l := range m.links {
		keep(m.lm.DeleteLink(l))
	}
	for _, r := range m.routers {
		keep(m.om.DeleteRouter(r))
	}
	m.topo, m.hosts, m.routers, m.links = nil, nil, nil, nil
	return first
}

func (m *Manager) ExecCommand(ctx context.Context, host string, argv []string) (string, int, error) {
	if err := m.checkHost(host); err != nil {
		return "", 0, err
	}
	return m.cm.Exec(ctx, host, argv)
}

func (m *Manager) Probe(ctx context.Context, source string, target netip.Addr, samples int) (float64, error) {
	out, _, err := m.ExecCommand(ctx, source, emulator.PingArgv(target.String(), samples))
	if err != nil {
		return 0, err
	}
	return emulator.DeliveredFraction(out)
}

func (m *Manager) checkHost(host string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.topo == nil {
		return emulator.ErrNotStarted
	}
	if n, ok := m.topo.Node(host); !ok || !n.IsHost() {
		return errors.Wrap(emulator.ErrUnknownHost, host)
	}
	return nil
}

// Close releases the docker client.
func (m *Manager) Close() error {
	return m.cm.Close()
}
