package policy

import (
	"net/netip"
	"strings"
)

type Action string

const (
	Accept Action = "accept"
	Drop   Action = "drop"
)

type ConnState string

const (
	New         ConnState = "new"
	Established ConnState = "established"
	Related     ConnState = "related"
)

// Match is either a source-address equality test or a connection-state
// membership test. Exactly one of the two is set.
type Match struct {
	Source netip.Addr
	States []ConnState
}

type Rule struct {
	Match  Match
	Action Action
}

func SourceRule(src netip.Addr, action Action) Rule {
	return Rule{Match: Match{Source: src}, Action: action}
}

func StateRule(action Action, states ...ConnState) Rule {
	return Rule{Match: Match{States: states}, Action: action}
}

// Tracking reports whether the rule matches on connection state.
func (r Rule) Tracking() bool {
	return len(r.Match.States) > 0
}

func (r Rule) matches(src netip.Addr, state ConnState) bool {
	if r.Tracking() {
		for _, s := range r.Match.States {
			if s == state {
				return true
			}
		}
		return false
	}
	return r.Match.Source.IsValid() && r.Match.Source == src
}

// String renders the rule in nft syntax, e.g. "ip saddr 10.0.0.3 drop".
func (r Rule) String() string {
	if r.Tracking() {
		states := make([]string, len(r.Match.States))
		for i, s := range r.Match.States {
			states[i] = string(s)
		}
		return "ct state " + strings.Join(states, ",") + " " + string(r.Action)
	}
	return "ip saddr " + r.Match.Source.String() + " " + string(r.Action)
}
