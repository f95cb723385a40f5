package policy

import "net/netip"

type flow struct {
	src, dst netip.Addr
}

// ConnTable remembers directed address pairs that completed an exchange.
// A later packet on a remembered pair is ESTABLISHED, anything else is NEW.
type ConnTable struct {
	flows map[flow]struct{}
}

func NewConnTable() *ConnTable {
	return &ConnTable{flows: make(map[flow]struct{})}
}

func (t *ConnTable) Observe(src, dst netip.Addr) {
	t.flows[flow{src, dst}] = struct{}{}
}

func (t *ConnTable) State(src, dst netip.Addr) ConnState {
	if _, ok := t.flows[flow{src, dst}]; ok {
		return Established
	}
	return New
}

func (t *ConnTable) Len() int {
	return len(t.flows)
}
