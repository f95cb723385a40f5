package policy

import (
	"fmt"
	"net/netip"

	"github.com/google/shlex"
)

// The chain every transition writes to. Rule lines mirror what an operator
// would type, then get split into argv so no shell is involved.
const (
	nftFamily = "inet"
	nftTable  = "filter"
	nftChain  = "input"
)

var (
	cmdAddTable  = fmt.Sprintf("nft add table %s %s", nftFamily, nftTable)
	cmdAddChain  = fmt.Sprintf("nft add chain %s %s %s { type filter hook input priority 0 ; policy %%s ; }", nftFamily, nftTable, nftChain)
	cmdAddRule   = fmt.Sprintf("nft add rule %s %s %s %%s", nftFamily, nftTable, nftChain)
	cmdInsert    = fmt.Sprintf("nft insert rule %s %s %s %%s", nftFamily, nftTable, nftChain)
	cmdFlushRule = fmt.Sprintf("nft flush rule %s %s %s", nftFamily, nftTable, nftChain)
	cmdFlushAll  = "nft flush ruleset"
)

// Commands translates a transition into the nft invocations that realise it
// on the host. addrs are the denied or allowed sources, ignored otherwise.
func Commands(t Transition, addrs []netip.Addr) ([][]string, error) {
	var lines []string
	switch t {
	case InstallBlacklist:
		lines = append(lines, cmdAddTable, fmt.Sprintf(cmdAddChain, Accept))
		for _, a := range Dedup(addrs) {
			lines = append(lines, fmt.Sprintf(cmdAddRule, SourceRule(a, Drop)))
		}
	case SwitchToWhitelist:
		lines = append(lines, cmdFlushRule)
		for _, a := range Dedup(addrs) {
			lines = append(lines, fmt.Sprintf(cmdAddRule, SourceRule(a, Accept)))
		}
		// policy last, otherwise the host drops traffic before its
		// whitelist exists
		lines = append(lines, fmt.Sprintf(cmdAddChain, Drop))
	case EnableConnectionTracking:
		lines = append(lines, fmt.Sprintf(cmdInsert, StateRule(Accept, Established, Related)))
	case Reset:
		lines = append(lines, cmdFlushAll)
	default:
		return nil, fmt.Errorf("no nft translation for transition %q", t)
	}
	return splitAll(lines)
}

// ReidentifyCommands moves the address of device iface to addr.
func ReidentifyCommands(iface string, addr netip.Prefix) ([][]string, error) {
	return splitAll([]string{
		fmt.Sprintf("ip addr flush dev %s", iface),
		fmt.Sprintf("ip addr add %s dev %s", addr, iface),
	})
}

func splitAll(lines []string) ([][]string, error) {
	out := make([][]string, 0, len(lines))
	for _, l := range lines {
		argv, err := shlex.Split(l)
		if err != nil {
			return nil, fmt.Errorf("cannot split %q: %w", l, err)
		}
		out = append(out, argv)
	}
	return out, nil
}
