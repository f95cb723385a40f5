package pkg

import (
	"context"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"slicelab/api"
	"slicelab/pkg/config"
	"slicelab/pkg/emulator"
	"slicelab/pkg/scenario"
)

// Lab ties configuration, backend and scenarios together for the CLI.
type Lab struct {
	cfg     *config.Config
	backend emulator.Backend
	metrics *scenario.Metrics
	closer  io.Closer
}

// NewLab opens the backend cfg names. reg may be nil.
func NewLab(cfg *config.Config, reg prometheus.Registerer) (*Lab, error) {
	l := &Lab{cfg: cfg, metrics: scenario.NewMetrics(reg)}
	switch cfg.Backend {
	case config.BackendSim:
		l.backend = emulator.NewSim()
	case config.BackendDocker:
		m, err := NewManager(cfg.Image, cfg.Controller)
		if err != nil {
			return nil, err
		}
		l.backend, l.closer = m, m
	default:
		return nil, errors.Errorf("unknown backend %q", cfg.Backend)
	}
	return l, nil
}

func (l *Lab) Backend() emulator.Backend {
	return l.backend
}

// FindScenario returns the built-in scenario name, or the scenario in the
// yaml file at path when path is set.
func FindScenario(name, path string) (*scenario.Scenario, error) {
	if path != "" {
		return scenario.LoadScript(path)
	}
	return scenario.Builtin(name)
}

func (l *Lab) Run(ctx context.Context, sc *scenario.Scenario) (*scenario.Report, error) {
	r := scenario.NewRunner(l.backend, scenario.Config{
		ProbeTimeout:     l.cfg.ProbeTimeout,
		ToleranceSamples: l.cfg.ToleranceSamples,
	}, l.metrics)
	return r.Run(ctx, sc.Topology, sc.Script)
}

func (l *Lab) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

func ShowNodes(w io.Writer, topo *api.Topology) {
	for _, n := range topo.Nodes {
		if n.IsHost() {
			fmt.Fprintf(w, "Node: %s, Uid: %d, Role: %s, Interface: %s, IPv4: %s, MAC: %s\n",
				n.Name, n.Uid, n.Role, n.Interface.Name, n.Interface.Ipv4, n.Interface.Mac)
			continue
		}
		fmt.Fprintf(w, "Node: %s, Uid: %d, Role: %s, Dpid: %s\n", n.Name, n.Uid, n.Role, n.Dpid)
	}
}

func ShowLinks(w io.Writer, topo *api.Topology) {
	for _, l := range topo.Links {
		slice := l.Slice
		if slice == "" {
			slice = "-"
		}
		fmt.Fprintf(w, "Link: %d, Src: %s(%s), Dst: %s(%s), Bw: %gMbps, Delay: %dms, Loss: %.2f, Slice: %s\n",
			l.Uid, l.SrcNode, l.SrcIntf.Name, l.DstNode, l.DstIntf.Name,
			l.Properties.Rate, l.Properties.Latency, l.Properties.Loss, slice)
	}
}
