// Package scenario drives a topology through a script of policy transitions
// and connectivity probes, comparing every probe against the delivery the
// policy model predicts.
package scenario

import (
	"context"
	"fmt"
	"math"
	"net/netip"
	"time"

	"github.com/apex/log"
	"github.com/pkg/errors"

	"slicelab/api"
	"slicelab/pkg/emulator"
	"slicelab/pkg/policy"
	"slicelab/pkg/topology"
	"slicelab/pkg/util"
)

const DefaultProbeTimeout = 10 * time.Second

type Config struct {
	// ProbeTimeout bounds each probe. Expiry fails that step only.
	ProbeTimeout time.Duration
	// ToleranceSamples is the number of samples expected and observed
	// delivery may differ by. 1 absorbs a single flipped sample.
	ToleranceSamples int
}

func DefaultConfig() Config {
	return Config{ProbeTimeout: DefaultProbeTimeout, ToleranceSamples: 1}
}

type Runner struct {
	Emulator emulator.Emulator
	Prober   emulator.Prober
	Config   Config
	Metrics  *Metrics
}

func NewRunner(b emulator.Backend, cfg Config, m *Metrics) *Runner {
	return &Runner{Emulator: b, Prober: b, Config: cfg, Metrics: m}
}

// run is the state one scenario mutates as it goes: host addresses, filter
// chains and the connections seen so far.
type run struct {
	topo   *api.Topology
	chains map[string]*policy.FilterChain
	conns  *policy.ConnTable
	logger log.Interface
}

func newRun(topo *api.Topology, logger log.Interface) *run {
	st := &run{
		topo:   topo,
		chains: make(map[string]*policy.FilterChain),
		conns:  policy.NewConnTable(),
		logger: logger,
	}
	for _, h := range topo.Hosts() {
		st.chains[h.Name] = policy.NewFilterChain(h.Name)
	}
	return st
}

// Run brings the network up, executes script in order and tears the network
// down on every exit path once it was up. Probe failures and timeouts are
// recorded in the report; unusable steps, invalid transitions and failing
// host commands abort the run. The report is returned in every case.
func (r *Runner) Run(ctx context.Context, topo *api.Topology, script Script) (rep *Report, err error) {
	rep = newReport(script.Name)
	logger := log.WithFields(log.Fields{"scenario": script.Name, "run": rep.ID.String()})

	if topo == nil {
		err = &topology.InvalidTopologyError{Reason: "no topology given"}
		rep.abort(-1, err)
		return rep, err
	}
	topo = topo.Clone()

	if err = r.Emulator.Start(ctx, topo); err != nil {
		err = &EmulatorUnavailableError{Err: err}
		rep.abort(-1, err)
		logger.WithError(err).Error("cannot bring the network up")
		return rep, err
	}
	logger.Infof("network up: %d nodes, %d links", len(topo.Nodes), len(topo.Links))
	defer func() {
		if serr := r.Emulator.Stop(context.WithoutCancel(ctx)); serr != nil {
			logger.WithError(serr).Warn("network teardown failed")
			if err == nil {
				err = errors.Wrap(serr, "stop emulator")
			}
			return
		}
		logger.Info("network down")
	}()

	st := newRun(topo, logger)
	for i, s := range script.Steps {
		entry, serr := r.step(ctx, st, i, s)
		if serr != nil {
			rep.abort(i, serr)
			r.Metrics.step(s.Kind, outcomeAbort)
			logger.WithError(serr).WithField("step", i+1).Error("scenario aborted")
			return rep, serr
		}
		rep.Entries = append(rep.Entries, entry)
		if entry.Passed {
			r.Metrics.step(s.Kind, outcomePass)
		} else {
			r.Metrics.step(s.Kind, outcomeFail)
		}
	}
	return rep, nil
}

func (r *Runner) step(ctx context.Context, st *run, i int, s Step) (Entry, error) {
	switch s.Kind {
	case KindBlacklist, KindWhitelist, KindConntrack, KindReset:
		return r.transition(ctx, st, i, s)
	case KindReidentify:
		return r.reidentify(ctx, st, i, s)
	case KindProbe:
		return r.probe(ctx, st, i, s)
	}
	return Entry{}, &StepError{Index: i, Step: s, Reason: fmt.Sprintf("unknown step kind %q", s.Kind)}
}

func (r *Runner) transition(ctx context.Context, st *run, i int, s Step) (Entry, error) {
	h, err := st.host(s.Host)
	if err != nil {
		return Entry{}, &StepError{Index: i, Step: s, Reason: err.Error()}
	}
	addrs, err := st.resolveAll(s.Addrs)
	if err != nil {
		return Entry{}, &StepError{Index: i, Step: s, Reason: err.Error()}
	}

	chain := st.chains[h.Name]
	var t policy.Transition
	switch s.Kind {
	case KindBlacklist:
		t, err = policy.InstallBlacklist, chain.InstallBlacklist(addrs)
	case KindWhitelist:
		t, err = policy.SwitchToWhitelist, chain.SwitchToWhitelist(addrs)
	case KindConntrack:
		t, err = policy.EnableConnectionTracking, chain.EnableConnectionTracking()
	case KindReset:
		t = policy.Reset
		chain.Reset()
	}
	if err != nil {
		return Entry{}, err
	}

	cmds, err := policy.Commands(t, addrs)
	if err != nil {
		return Entry{}, err
	}
	if err = r.execAll(ctx, h.Name, cmds); err != nil {
		return Entry{}, err
	}
	st.logger.WithFields(log.Fields{"host": h.Name, "state": chain.State().String(), "rules": len(chain.Rules())}).Debug(string(t))
	return Entry{Index: i, Step: s, Passed: true}, nil
}

func (r *Runner) reidentify(ctx context.Context, st *run, i int, s Step) (Entry, error) {
	h, err := st.host(s.Host)
	if err != nil {
		return Entry{}, &StepError{Index: i, Step: s, Reason: err.Error()}
	}
	p, err := util.ParseIpv4(s.Address, h.Prefix().Bits())
	if err != nil {
		return Entry{}, &StepError{Index: i, Step: s, Reason: err.Error()}
	}
	if err = st.topo.Reidentify(h.Name, p); err != nil {
		return Entry{}, &StepError{Index: i, Step: s, Reason: err.Error()}
	}
	cmds, err := policy.ReidentifyCommands(h.Interface.Name, p)
	if err != nil {
		return Entry{}, err
	}
	if err = r.execAll(ctx, h.Name, cmds); err != nil {
		return Entry{}, err
	}
	st.logger.WithFields(log.Fields{"host": h.Name, "from": h.Interface.Ipv4, "to": p.String()}).Debug("reidentified")
	return Entry{Index: i, Step: s, Passed: true}, nil
}

func (r *Runner) probe(ctx context.Context, st *run, i int, s Step) (Entry, error) {
	src, err := st.host(s.Source)
	if err != nil {
		return Entry{}, &StepError{Index: i, Step: s, Reason: err.Error()}
	}
	target, err := st.resolve(s.Target)
	if err != nil {
		return Entry{}, &StepError{Index: i, Step: s, Reason: err.Error()}
	}
	n := s.samples()
	expected := st.expect(src, target)

	start := time.Now()
	observed, perr := r.observe(ctx, src.Name, target, n)
	r.Metrics.probe(time.Since(start))

	e := Entry{Index: i, Step: s, Probe: true, Samples: n, Expected: expected, Observed: observed}
	if perr != nil {
		e.Err = perr
	} else {
		e.Passed = r.within(expected, observed, n)
	}
	// only an exchange that actually got through is tracked by the hosts
	if perr == nil && expected > 0 && observed > 0 {
		st.conns.Observe(src.Addr(), target)
	}
	st.logger.WithFields(log.Fields{
		"step":     i + 1,
		"source":   src.Name,
		"target":   target.String(),
		"expected": expected,
		"observed": observed,
		"passed":   e.Passed,
	}).Debug("probe")
	return e, nil
}

// observe runs the prober under the per-probe timeout. A prober that ignores
// its context is abandoned when the timeout fires.
func (r *Runner) observe(ctx context.Context, source string, target netip.Addr, n int) (float64, error) {
	timeout := r.Config.ProbeTimeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		fraction float64
		err      error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result{err: errors.Errorf("probe panicked: %v", p)}
			}
		}()
		f, err := r.Prober.Probe(pctx, source, target, n)
		done <- result{fraction: f, err: err}
	}()

	timedOut := &ProbeTimeoutError{Source: source, Target: target, Timeout: timeout}
	select {
	case res := <-done:
		if res.err != nil && ctx.Err() == nil && errors.Is(pctx.Err(), context.DeadlineExceeded) {
			return 0, timedOut
		}
		return res.fraction, res.err
	case <-pctx.Done():
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, timedOut
	}
}

func (r *Runner) within(expected, observed float64, n int) bool {
	diff := math.Abs(expected*float64(n) - observed*float64(n))
	return diff <= float64(r.Config.ToleranceSamples)+1e-9
}

func (st *run) host(name string) (api.Node, error) {
	n, ok := st.topo.Node(name)
	if !ok {
		return api.Node{}, fmt.Errorf("host %q not in topology", name)
	}
	if !n.IsHost() {
		return api.Node{}, fmt.Errorf("%s is a %s, not a host", name, n.Role)
	}
	return n, nil
}

// resolve maps a host name to its current address; anything else must be a
// literal address.
func (st *run) resolve(ref string) (netip.Addr, error) {
	if n, ok := st.topo.Node(ref); ok {
		if !n.IsHost() {
			return netip.Addr{}, fmt.Errorf("%s is a %s and has no address", ref, n.Role)
		}
		return n.Addr(), nil
	}
	if a, err := netip.ParseAddr(ref); err == nil {
		return a, nil
	}
	if p, err := netip.ParsePrefix(ref); err == nil {
		return p.Addr(), nil
	}
	return netip.Addr{}, fmt.Errorf("%q is neither a host nor an address", ref)
}

func (st *run) resolveAll(refs []string) ([]netip.Addr, error) {
	out := make([]netip.Addr, 0, len(refs))
	for _, ref := range refs {
		a, err := st.resolve(ref)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// expect predicts the delivered fraction of an echo test. The request must
// pass the target's chain (when the target is one of our hosts) in the state
// the connection table gives it; the reply must pass the source's chain as
// an established flow.
func (st *run) expect(src api.Node, target netip.Addr) float64 {
	from := src.Addr()
	if !from.IsValid() {
		return 0
	}
	if dst, ok := st.topo.HostByAddr(target); ok {
		if st.chains[dst.Name].Evaluate(from, st.conns.State(from, target)) != policy.Accept {
			return 0
		}
	}
	if st.chains[src.Name].Evaluate(target, policy.Established) != policy.Accept {
		return 0
	}
	return 1
}

func (r *Runner) execAll(ctx context.Context, host string, cmds [][]string) error {
	for _, argv := range cmds {
		out, code, err := r.Emulator.ExecCommand(ctx, host, argv)
		if err != nil {
			return errors.Wrapf(err, "exec on %s", host)
		}
		if code != 0 {
			return &CommandError{Host: host, Argv: argv, ExitCode: code, Output: out}
		}
	}
	return nil
}
