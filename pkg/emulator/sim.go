package emulator

import (
	"context"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/pkg/errors"

	"slicelab/api"
	"slicelab/pkg/policy"
)

// Exec is one command received by the Sim.
type Exec struct {
	Host string
	Argv []string
}

// Sim is an in-process emulator. It keeps its own copy of each host's
// address and nft ruleset, built only from the commands it receives, and
// answers pings from that state. Nothing is shared with the policy model, so
// a wrong command translation shows up as a probe mismatch.
type Sim struct {
	// StartErr makes Start fail the way an unavailable emulator would.
	StartErr error
	// Lost is the number of samples lost per probe, keyed by source host.
	Lost map[string]int
	// Latency delays every ping; a shorter context deadline aborts it.
	Latency time.Duration

	mu      sync.Mutex
	started bool
	hosts   map[string]*simHost
	order   []string
	flows   map[[2]netip.Addr]bool
	execs   []Exec
	stops   int
}

type simHost struct {
	name   string
	iface  string
	addr   netip.Addr
	table  bool
	chain  bool
	policy policy.Action
	rules  []simRule
}

type simRule struct {
	saddr   netip.Addr
	states  []string
	verdict policy.Action
}

func NewSim() *Sim {
	return &Sim{Lost: make(map[string]int)}
}

func (s *Sim) Start(_ context.Context, topo *api.Topology) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.StartErr != nil {
		return s.StartErr
	}
	if s.started {
		return ErrAlreadyStarted
	}
	s.hosts = make(map[string]*simHost)
	s.order = nil
	s.flows = make(map[[2]netip.Addr]bool)
	for _, n := range topo.Hosts() {
		s.hosts[n.Name] = &simHost{
			name:   n.Name,
			iface:  n.Interface.Name,
			addr:   n.Addr(),
			policy: policy.Accept,
		}
		s.order = append(s.order, n.Name)
	}
	s.started = true
	log.WithFields(log.Fields{"hosts": len(s.hosts), "links": len(topo.Links)}).Debug("sim: network up")
	return nil
}

func (s *Sim) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return ErrNotStarted
	}
	s.started = false
	s.hosts = nil
	s.flows = nil
	s.stops++
	log.Debug("sim: network down")
	return nil
}

// Started reports whether the network is up.
func (s *Sim) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Stops counts completed teardowns.
func (s *Sim) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

// Execs returns every command received so far.
func (s *Sim) Execs() []Exec {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Exec, len(s.execs))
	copy(out, s.execs)
	return out
}

func (s *Sim) Probe(ctx context.Context, source string, target netip.Addr, samples int) (float64, error) {
	out, _, err := s.ExecCommand(ctx, source, PingArgv(target.String(), samples))
	if err != nil {
		return 0, err
	}
	return DeliveredFraction(out)
}

func (s *Sim) ExecCommand(ctx context.Context, host string, argv []string) (string, int, error) {
	if len(argv) == 0 {
		return "", 0, errors.New("empty command")
	}
	if argv[0] == "ping" && s.Latency > 0 {
		select {
		case <-time.After(s.Latency):
		case <-ctx.Done():
			return "", 0, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return "", 0, ErrNotStarted
	}
	h, ok := s.hosts[host]
	if !ok {
		return "", 0, errors.Wrap(ErrUnknownHost, host)
	}
	s.execs = append(s.execs, Exec{Host: host, Argv: append([]string(nil), argv...)})

	switch argv[0] {
	case "nft":
		return s.nft(h, argv[1:])
	case "ip":
		return s.ip(h, argv[1:])
	case "ping":
		return s.ping(h, argv[1:])
	}
	return fmt.Sprintf("%s: command not found\n", argv[0]), 127, nil
}

func fail(format string, args ...any) (string, int, error) {
	return "Error: " + fmt.Sprintf(format, args...) + "\n", 1, nil
}

func (s *Sim) nft(h *simHost, args []string) (string, int, error) {
	line := strings.Join(args, " ")
	if line == "flush ruleset" {
		h.table, h.chain, h.rules, h.policy = false, false, nil, policy.Accept
		return "", 0, nil
	}
	if len(args) < 4 {
		return fail("syntax error: %s", line)
	}
	verb, object := args[0], args[1]
	if args[2] != "inet" || args[3] != "filter" {
		return fail("no such table: %s %s", args[2], args[3])
	}
	if object == "table" && verb == "add" {
		h.table = true
		return "", 0, nil
	}
	if len(args) < 5 || args[4] != "input" {
		return fail("syntax error: %s", line)
	}
	if !h.table {
		return fail("No such file or directory; table inet filter does not exist")
	}
	switch {
	case verb == "add" && object == "chain":
		h.chain = true
		for i, a := range args {
			if a == "policy" && i+1 < len(args) {
				h.policy = policy.Action(args[i+1])
			}
		}
		return "", 0, nil
	case verb == "flush" && object == "rule":
		if !h.chain {
			return fail("No such file or directory; chain input does not exist")
		}
		h.rules = nil
		return "", 0, nil
	case (verb == "add" || verb == "insert") && object == "rule":
		if !h.chain {
			return fail("No such file or directory; chain input does not exist")
		}
		r, err := parseSimRule(args[5:])
		if err != nil {
			return fail("%v", err)
		}
		if verb == "insert" {
			h.rules = append([]simRule{r}, h.rules...)
		} else {
			h.rules = append(h.rules, r)
		}
		return "", 0, nil
	}
	return fail("syntax error: %s", line)
}

func parseSimRule(expr []string) (simRule, error) {
	if len(expr) != 4 {
		return simRule{}, errors.Errorf("unsupported rule %q", strings.Join(expr, " "))
	}
	r := simRule{verdict: policy.Action(expr[3])}
	if r.verdict != policy.Accept && r.verdict != policy.Drop {
		return simRule{}, errors.Errorf("unsupported verdict %q", expr[3])
	}
	switch {
	case expr[0] == "ip" && expr[1] == "saddr":
		a, err := netip.ParseAddr(expr[2])
		if err != nil {
			return simRule{}, err
		}
		r.saddr = a
	case expr[0] == "ct" && expr[1] == "state":
		r.states = strings.Split(expr[2], ",")
	default:
		return simRule{}, errors.Errorf("unsupported match %q", strings.Join(expr[:3], " "))
	}
	return r, nil
}

func (s *Sim) ip(h *simHost, args []string) (string, int, error) {
	if len(args) < 4 || args[0] != "addr" {
		return fail("unsupported ip command")
	}
	dev := args[len(args)-1]
	if args[len(args)-2] != "dev" || dev != h.iface {
		return fail("Cannot find device %q", dev)
	}
	switch args[1] {
	case "flush":
		h.addr = netip.Addr{}
		return "", 0, nil
	case "add":
		p, err := netip.ParsePrefix(args[2])
		if err != nil {
			return fail("any valid prefix is expected rather than %q", args[2])
		}
		h.addr = p.Addr()
		return "", 0, nil
	}
	return fail("unsupported ip addr command %q", args[1])
}

func (s *Sim) ping(src *simHost, args []string) (string, int, error) {
	if len(args) == 0 {
		return fail("usage: ping [-c count] [-W timeout] destination")
	}
	count := 1
	for i := 0; i+1 < len(args); i++ {
		if args[i] == "-c" {
			n, err := strconv.Atoi(args[i+1])
			if err != nil || n <= 0 {
				return fail("bad number of packets to transmit")
			}
			count = n
		}
	}
	target, err := netip.ParseAddr(args[len(args)-1])
	if err != nil {
		return fmt.Sprintf("ping: %s: Name or service not known\n", args[len(args)-1]), 2, nil
	}

	received := s.deliver(src, target, count)
	loss := 100 * (count - received) / count
	out := fmt.Sprintf("PING %s 56(84) bytes of data.\n\n--- %s ping statistics ---\n%d packets transmitted, %d received, %d%% packet loss\n",
		target, target, count, received, loss)
	if received == 0 {
		return out, 1, nil
	}
	return out, 0, nil
}

// deliver runs count echo exchanges. The request is filtered by the target's
// input chain, the reply by the source's input chain as an established flow.
func (s *Sim) deliver(src *simHost, target netip.Addr, count int) int {
	if !src.addr.IsValid() {
		return 0
	}
	key := [2]netip.Addr{src.addr, target}
	state := string(policy.New)
	if s.flows[key] {
		state = string(policy.Established)
	}
	if dst := s.hostByAddr(target); dst != nil && !dst.admits(src.addr, state) {
		return 0
	}
	if !src.admits(target, string(policy.Established)) {
		return 0
	}
	received := count - s.Lost[src.name]
	if received <= 0 {
		return 0
	}
	s.flows[key] = true
	return received
}

func (s *Sim) hostByAddr(addr netip.Addr) *simHost {
	for _, name := range s.order {
		if h := s.hosts[name]; h.addr == addr {
			return h
		}
	}
	return nil
}

func (h *simHost) admits(from netip.Addr, state string) bool {
	if !h.chain {
		return true
	}
	for _, r := range h.rules {
		if r.matches(from, state) {
			return r.verdict == policy.Accept
		}
	}
	return h.policy == policy.Accept
}

func (r simRule) matches(from netip.Addr, state string) bool {
	if len(r.states) > 0 {
		for _, st := range r.states {
			if st == state {
				return true
			}
		}
		return false
	}
	return r.saddr == from
}
