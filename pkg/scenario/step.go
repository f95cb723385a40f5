package scenario

import (
	"fmt"
	"strings"

	"slicelab/api"
)

type Kind string

const (
	KindBlacklist  Kind = "blacklist"
	KindWhitelist  Kind = "whitelist"
	KindConntrack  Kind = "conntrack"
	KindReset      Kind = "reset"
	KindReidentify Kind = "reidentify"
	KindProbe      Kind = "probe"
)

// DefaultSamples is used by probes that do not set a sample count.
const DefaultSamples = 3

// Step is one script entry. Which fields matter depends on Kind:
//
//	blacklist/whitelist: Host, Addrs (host names or addresses)
//	conntrack/reset:     Host
//	reidentify:          Host, Address
//	probe:               Source, Target (host name or address), Samples
type Step struct {
	Kind    Kind     `yaml:"kind"`
	Host    string   `yaml:"host,omitempty"`
	Addrs   []string `yaml:"addrs,omitempty"`
	Address string   `yaml:"address,omitempty"`
	Source  string   `yaml:"source,omitempty"`
	Target  string   `yaml:"target,omitempty"`
	Samples int      `yaml:"samples,omitempty"`
}

func Blacklist(host string, denied ...string) Step {
	return Step{Kind: KindBlacklist, Host: host, Addrs: denied}
}

func Whitelist(host string, allowed ...string) Step {
	return Step{Kind: KindWhitelist, Host: host, Addrs: allowed}
}

func Conntrack(host string) Step {
	return Step{Kind: KindConntrack, Host: host}
}

func Reset(host string) Step {
	return Step{Kind: KindReset, Host: host}
}

func Reidentify(host, address string) Step {
	return Step{Kind: KindReidentify, Host: host, Address: address}
}

func Probe(source, target string, samples int) Step {
	return Step{Kind: KindProbe, Source: source, Target: target, Samples: samples}
}

func (s Step) samples() int {
	if s.Samples <= 0 {
		return DefaultSamples
	}
	return s.Samples
}

func (s Step) String() string {
	switch s.Kind {
	case KindBlacklist:
		return fmt.Sprintf("blacklist on %s deny [%s]", s.Host, strings.Join(s.Addrs, " "))
	case KindWhitelist:
		return fmt.Sprintf("whitelist on %s allow [%s]", s.Host, strings.Join(s.Addrs, " "))
	case KindConntrack:
		return fmt.Sprintf("conntrack on %s", s.Host)
	case KindReset:
		return fmt.Sprintf("reset on %s", s.Host)
	case KindReidentify:
		return fmt.Sprintf("reidentify %s as %s", s.Host, s.Address)
	case KindProbe:
		return fmt.Sprintf("probe %s -> %s x%d", s.Source, s.Target, s.samples())
	}
	return string(s.Kind)
}

// Script is an ordered list of steps run against one topology.
type Script struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Steps       []Step `yaml:"steps"`
}

// Scenario bundles a topology with the script that exercises it.
type Scenario struct {
	Topology *api.Topology
	Script   Script
}

func (s *Scenario) Name() string {
	return s.Script.Name
}
