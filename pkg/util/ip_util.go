package util

import (
	"fmt"
	"net"
	"net/netip"
	"strings"

	"golang.org/x/sys/unix"
)

// DefaultPrefixLen is applied to bare addresses such as "10.0.0.3".
const DefaultPrefixLen = 8

// ParseIpv4 accepts "10.0.0.1" or "10.0.0.1/24". Network, broadcast and
// unspecified addresses are rejected.
func ParseIpv4(s string, defaultBits int) (netip.Prefix, error) {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "/") {
		s = fmt.Sprintf("%s/%d", s, defaultBits)
	}
	p, err := netip.ParsePrefix(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	addr := p.Addr()
	if !addr.Is4() {
		return netip.Prefix{}, fmt.Errorf("only IPv4 addresses are supported: %s", s)
	}
	if p.Bits() < 8 {
		return netip.Prefix{}, fmt.Errorf("prefix length too short: %s", s)
	}
	if addr.IsUnspecified() || addr.IsMulticast() || addr == p.Masked().Addr() || (p.Bits() < 31 && addr == broadcast(p)) {
		return netip.Prefix{}, fmt.Errorf("%s is not a usable host address", s)
	}
	return p, nil
}

func broadcast(p netip.Prefix) netip.Addr {
	b := p.Masked().Addr().As4()
	host := uint32(1)<<(32-p.Bits()) - 1
	b[0] |= byte(host >> 24)
	b[1] |= byte(host >> 16)
	b[2] |= byte(host >> 8)
	b[3] |= byte(host)
	return netip.AddrFrom4(b)
}

// HostAddr returns the i-th (1-based) host address of subnet, keeping the
// subnet prefix length: HostAddr(10.0.0.0/8, 3) = 10.0.0.3/8.
func HostAddr(subnet netip.Prefix, i int) (netip.Prefix, error) {
	if !subnet.Addr().Is4() || subnet.Bits() > 30 {
		return netip.Prefix{}, fmt.Errorf("subnet %s has no room for hosts", subnet)
	}
	base := subnet.Masked().Addr().As4()
	v := uint32(base[0])<<24 | uint32(base[1])<<16 | uint32(base[2])<<8 | uint32(base[3])
	limit := uint32(1)<<(32-subnet.Bits()) - 2
	if i < 1 || uint32(i) > limit {
		return netip.Prefix{}, fmt.Errorf("host index %d out of range for %s", i, subnet)
	}
	v += uint32(i)
	addr := netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
	return netip.PrefixFrom(addr, subnet.Bits()), nil
}

// SeqMac derives a locally stable MAC from a sequence number, the way an
// emulator with automatic MACs numbers its hosts: 1 -> 00:00:00:00:00:01.
func SeqMac(seq int) string {
	v := uint64(seq)
	hw := net.HardwareAddr{byte(v >> 40), byte(v >> 32), byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	return hw.String()
}

// ValidIntfName reports whether name fits a kernel interface name.
func ValidIntfName(name string) bool {
	if name == "" || len(name) >= unix.IFNAMSIZ {
		return false
	}
	return !strings.ContainsAny(name, "/ \t\n:")
}
