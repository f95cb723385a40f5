// Package policy models a host's packet filter as an explicit state machine.
//
// A FilterChain starts in Default (nothing installed, everything accepted)
// and only changes through its transition methods:
//
//	Default --InstallBlacklist--> BlacklistActive
//	BlacklistActive --SwitchToWhitelist--> WhitelistActive
//	WhitelistActive --EnableConnectionTracking--> WhitelistWithTracking
//
// Evaluation is first match: rules are scanned in order and the first rule
// whose predicate holds decides, otherwise the default policy applies.
package policy

import (
	"fmt"
	"net/netip"
)

type State int

const (
	Default State = iota
	BlacklistActive
	WhitelistActive
	WhitelistWithTracking
)

func (s State) String() string {
	switch s {
	case Default:
		return "Default"
	case BlacklistActive:
		return "BlacklistActive"
	case WhitelistActive:
		return "WhitelistActive"
	case WhitelistWithTracking:
		return "WhitelistWithTracking"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type Transition string

const (
	InstallBlacklist         Transition = "installBlacklist"
	SwitchToWhitelist        Transition = "switchToWhitelist"
	EnableConnectionTracking Transition = "enableConnectionTracking"
	Reset                    Transition = "reset"
)

// InvalidTransitionError is returned when a transition is attempted from a
// state that does not allow it. The chain is left untouched.
type InvalidTransitionError struct {
	Host       string
	State      State
	Transition Transition
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("filter chain of %s: %s not allowed in state %s", e.Host, e.Transition, e.State)
}

// FilterChain is the input filter of one host.
type FilterChain struct {
	host     string
	state    State
	rules    []Rule
	policy   Action
	tracking bool
}

func NewFilterChain(host string) *FilterChain {
	return &FilterChain{host: host, policy: Accept}
}

func (c *FilterChain) Host() string   { return c.host }
func (c *FilterChain) State() State   { return c.state }
func (c *FilterChain) Policy() Action { return c.policy }
func (c *FilterChain) Tracking() bool { return c.tracking }

// Rules returns a copy of the rule list in evaluation order.
func (c *FilterChain) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

func (c *FilterChain) require(want State, t Transition) error {
	if c.state != want {
		return &InvalidTransitionError{Host: c.host, State: c.state, Transition: t}
	}
	return nil
}

// InstallBlacklist accepts everything except the denied sources.
func (c *FilterChain) InstallBlacklist(denied []netip.Addr) error {
	if err := c.require(Default, InstallBlacklist); err != nil {
		return err
	}
	c.rules = nil
	for _, a := range Dedup(denied) {
		c.rules = append(c.rules, SourceRule(a, Drop))
	}
	c.policy = Accept
	c.state = BlacklistActive
	return nil
}

// SwitchToWhitelist flushes the blacklist and drops everything except the
// allowed sources.
func (c *FilterChain) SwitchToWhitelist(allowed []netip.Addr) error {
	if err := c.require(BlacklistActive, SwitchToWhitelist); err != nil {
		return err
	}
	c.rules = nil
	for _, a := range Dedup(allowed) {
		c.rules = append(c.rules, SourceRule(a, Accept))
	}
	c.policy = Drop
	c.state = WhitelistActive
	return nil
}

// EnableConnectionTracking puts an established/related accept rule ahead of
// every existing rule. New connections still go through the whitelist.
func (c *FilterChain) EnableConnectionTracking() error {
	if err := c.require(WhitelistActive, EnableConnectionTracking); err != nil {
		return err
	}
	ct := StateRule(Accept, Established, Related)
	c.rules = append([]Rule{ct}, c.rules...)
	c.tracking = true
	c.state = WhitelistWithTracking
	return nil
}

// Reset drops every rule and returns the chain to Default. It is allowed
// from any state.
func (c *FilterChain) Reset() {
	c.rules = nil
	c.policy = Accept
	c.tracking = false
	c.state = Default
}

// Evaluate applies first-match semantics to a packet from src in the given
// connection state. Connection-state rules are skipped unless tracking is
// enabled on the chain.
func (c *FilterChain) Evaluate(src netip.Addr, state ConnState) Action {
	for _, r := range c.rules {
		if r.Tracking() && !c.tracking {
			continue
		}
		if r.matches(src, state) {
			return r.Action
		}
	}
	return c.policy
}

// Dedup keeps the first occurrence of every valid address, in order.
func Dedup(addrs []netip.Addr) []netip.Addr {
	seen := make(map[netip.Addr]bool, len(addrs))
	out := make([]netip.Addr, 0, len(addrs))
	for _, a := range addrs {
		if !a.IsValid() || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}
