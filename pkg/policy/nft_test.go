package policy

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommands(t *testing.T) {
	chainArgv := func(policy string) []string {
		return []string{"nft", "add", "chain", "inet", "filter", "input",
			"{", "type", "filter", "hook", "input", "priority", "0", ";", "policy", policy, ";", "}"}
	}

	tests := []struct {
		name  string
		t     Transition
		addrs []netip.Addr
		want  [][]string
	}{
		{
			name:  "blacklist",
			t:     InstallBlacklist,
			addrs: []netip.Addr{h3},
			want: [][]string{
				{"nft", "add", "table", "inet", "filter"},
				chainArgv("accept"),
				{"nft", "add", "rule", "inet", "filter", "input", "ip", "saddr", "10.0.0.3", "drop"},
			},
		},
		{
			name:  "whitelist",
			t:     SwitchToWhitelist,
			addrs: []netip.Addr{h1, h1},
			want: [][]string{
				{"nft", "flush", "rule", "inet", "filter", "input"},
				{"nft", "add", "rule", "inet", "filter", "input", "ip", "saddr", "10.0.0.1", "accept"},
				chainArgv("drop"),
			},
		},
		{
			name: "conntrack",
			t:    EnableConnectionTracking,
			want: [][]string{
				{"nft", "insert", "rule", "inet", "filter", "input", "ct", "state", "established,related", "accept"},
			},
		},
		{
			name: "reset",
			t:    Reset,
			want: [][]string{{"nft", "flush", "ruleset"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Commands(tt.t, tt.addrs)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Commands("teleport", nil)
	assert.Error(t, err)
}

func TestReidentifyCommands(t *testing.T) {
	got, err := ReidentifyCommands("h3-eth0", netip.MustParsePrefix("10.0.0.10/24"))
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"ip", "addr", "flush", "dev", "h3-eth0"},
		{"ip", "addr", "add", "10.0.0.10/24", "dev", "h3-eth0"},
	}, got)
}
