package api

// LinkSpec is one entry of a declarative link list. Two specs joining the
// same endpoints produce two parallel links.
type LinkSpec struct {
	SrcNode string  `yaml:"srcNode"`
	DstNode string  `yaml:"dstNode"`
	Rate    float64 `yaml:"rate"`    // in mbps
	Latency uint32  `yaml:"latency"` // in ms
	Loss    float32 `yaml:"loss"`    // in percentage
	Slice   string  `yaml:"slice,omitempty"`
}

type Link struct {
	Uid        int32
	SrcNode    string
	DstNode    string
	Properties LinkProperties
	Slice      string

	SrcIntf NodeInterface
	DstIntf NodeInterface
}

type LinkProperties struct {
	Latency       uint32  // in ms
	Loss          float32 // in percentage
	Rate          float64 // in mbps
	HTBClassid    uint32  // netlink.MakeHandle(1, 1)
	NetemHandleId uint32
}

// Peer returns the opposite endpoint of name, or "" if the link does not
// touch name.
func (l Link) Peer(name string) string {
	switch name {
	case l.SrcNode:
		return l.DstNode
	case l.DstNode:
		return l.SrcNode
	}
	return ""
}

// Intf returns the interface the link terminates on at node name.
func (l Link) Intf(name string) NodeInterface {
	if name == l.SrcNode {
		return l.SrcIntf
	}
	return l.DstIntf
}
