package routing

import (
	"math"
	"strings"

	"github.com/signalsfoundry/resource-fabric/core"
	"github.com/signalsfoundry/resource-fabric/model"
)

// Path is a routed hop sequence in source to destination order.
type Path struct {
	Hops []model.Hop
	// Bottleneck is the smallest link bandwidth along the path as seen in
	// the snapshot the path was computed from.
	Bottleneck int
}

// Len returns the number of hops.
func (p Path) Len() int { return len(p.Hops) }

// Nodes returns the pool names visited, source first.
func (p Path) Nodes() []string {
	if len(p.Hops) == 0 {
		return nil
	}
	out := make([]string, 0, len(p.Hops)+1)
	out = append(out, p.Hops[0].From)
	for _, h := range p.Hops {
		out = append(out, h.To)
	}
	return out
}

// LinkIDs returns the traversed link IDs in hop order.
func (p Path) LinkIDs() []string {
	out := make([]string, 0, len(p.Hops))
	for _, h := range p.Hops {
		out = append(out, h.LinkID)
	}
	return out
}

func (p Path) String() string {
	return strings.Join(p.Nodes(), " -> ")
}

func (p Path) clone() Path {
	return Path{Hops: append([]model.Hop(nil), p.Hops...), Bottleneck: p.Bottleneck}
}

// buildPath walks predecessor links back from dst and returns the hops in
// forward order. It gives up when the chain is broken or loops.
func buildPath(snap *core.Snapshot, srcIdx, dstIdx int, prevLink []int) (Path, bool) {
	hops := make([]model.Hop, 0, 4)
	bottleneck := math.MaxInt
	cur := dstIdx
	for steps := 0; cur != srcIdx; steps++ {
		if steps > len(snap.Pools) {
			return Path{}, false
		}
		li := prevLink[cur]
		if li < 0 {
			return Path{}, false
		}
		link := snap.Links[li]
		to := snap.Pools[cur]
		from := otherEnd(link, to)
		hops = append(hops, model.Hop{From: from, To: to, LinkID: link.ID})
		if link.Bandwidth < bottleneck {
			bottleneck = link.Bandwidth
		}
		next, ok := snap.Index(from)
		if !ok {
			return Path{}, false
		}
		cur = next
	}
	for i, j := 0, len(hops)-1; i < j; i, j = i+1, j-1 {
		hops[i], hops[j] = hops[j], hops[i]
	}
	if len(hops) == 0 {
		bottleneck = 0
	}
	return Path{Hops: hops, Bottleneck: bottleneck}, true
}

func otherEnd(l core.LinkInfo, name string) string {
	if l.A == name {
		return l.B
	}
	return l.A
}

func newPrev(n int) []int {
	prev := make([]int, n)
	for i := range prev {
		prev[i] = -1
	}
	return prev
}
