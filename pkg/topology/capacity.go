package topology

import (
	"fmt"

	"slicelab/api"
)

// Pair is an unordered node pair, stored with A <= B.
type Pair struct {
	A, B string
}

func NewPair(a, b string) Pair {
	if b < a {
		a, b = b, a
	}
	return Pair{A: a, B: b}
}

func (p Pair) String() string {
	return p.A + "-" + p.B
}

// CapacityByPair sums link capacities per endpoint pair. Parallel links add up.
func CapacityByPair(topo *api.Topology) map[Pair]float64 {
	out := make(map[Pair]float64)
	for _, l := range topo.Links {
		out[NewPair(l.SrcNode, l.DstNode)] += l.Properties.Rate
	}
	return out
}

// LinksBetween returns every link joining a and b, in declaration order.
func LinksBetween(topo *api.Topology, a, b string) []api.Link {
	want := NewPair(a, b)
	var out []api.Link
	for _, l := range topo.Links {
		if NewPair(l.SrcNode, l.DstNode) == want {
			out = append(out, l)
		}
	}
	return out
}

// SharedSlice declares one link of the given capacity that all slices share:
// traffic of every slice lands in the same queue.
func SharedSlice(a, b string, capacity float64) []api.LinkSpec {
	return []api.LinkSpec{{SrcNode: a, DstNode: b, Rate: capacity, Slice: "shared"}}
}

// IsolatedSlices declares one parallel link per capacity between a and b,
// tagged slice1..sliceN. Each slice gets its own queue.
func IsolatedSlices(a, b string, capacities ...float64) []api.LinkSpec {
	out := make([]api.LinkSpec, 0, len(capacities))
	for i, c := range capacities {
		out = append(out, api.LinkSpec{SrcNode: a, DstNode: b, Rate: c, Slice: fmt.Sprintf("slice%d", i+1)})
	}
	return out
}
