package routing

import (
	"container/heap"
	"math"

	"github.com/signalsfoundry/resource-fabric/core"
)

// Shortest returns a minimum-hop path from src to dst. Neighbours are
// explored in each pool's adjacency order, so among equal-length paths the
// one through earlier-attached links wins.
//
// Link state is not consulted: disabled or forbidden links are still
// routable and get rejected hop by hop when the transfer runs.
func Shortest(snap *core.Snapshot, src, dst string) (Path, bool) {
	srcIdx, ok1 := snap.Index(src)
	dstIdx, ok2 := snap.Index(dst)
	if !ok1 || !ok2 {
		return Path{}, false
	}
	if srcIdx == dstIdx {
		return Path{}, true
	}

	visited := make([]bool, len(snap.Pools))
	prev := newPrev(len(snap.Pools))
	queue := []int{srcIdx}
	visited[srcIdx] = true

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if cur == dstIdx {
			return buildPath(snap, srcIdx, dstIdx, prev)
		}

		name := snap.Pools[cur]
		for _, li := range snap.Adjacency[name] {
			next, ok := snap.Index(otherEnd(snap.Links[li], name))
			if !ok || visited[next] {
				continue
			}
			visited[next] = true
			prev[next] = li
			queue = append(queue, next)
		}
	}
	return Path{}, false
}

// Widest returns a path from src to dst that maximises the minimum link
// bandwidth. Pools are settled in decreasing order of best-known width; a
// strictly wider candidate replaces the recorded predecessor, so ties keep
// the first one found.
func Widest(snap *core.Snapshot, src, dst string) (Path, bool) {
	srcIdx, ok1 := snap.Index(src)
	dstIdx, ok2 := snap.Index(dst)
	if !ok1 || !ok2 {
		return Path{}, false
	}
	if srcIdx == dstIdx {
		return Path{}, true
	}

	n := len(snap.Pools)
	width := make([]int, n)
	settled := make([]bool, n)
	prev := newPrev(n)
	width[srcIdx] = math.MaxInt

	pq := &widthQueue{}
	heap.Push(pq, widthItem{node: srcIdx, width: math.MaxInt})

	for pq.Len() > 0 {
		item := heap.Pop(pq).(widthItem)
		cur := item.node
		if settled[cur] || item.width < width[cur] {
			continue
		}
		settled[cur] = true
		if cur == dstIdx {
			break
		}

		name := snap.Pools[cur]
		for _, li := range snap.Adjacency[name] {
			link := snap.Links[li]
			next, ok := snap.Index(otherEnd(link, name))
			if !ok || settled[next] {
				continue
			}
			w := min(width[cur], link.Bandwidth)
			if w > width[next] {
				width[next] = w
				prev[next] = li
				heap.Push(pq, widthItem{node: next, width: w, seq: pq.nextSeq()})
			}
		}
	}

	if width[dstIdx] <= 0 {
		return Path{}, false
	}
	return buildPath(snap, srcIdx, dstIdx, prev)
}

// WidestFIFO is the single-pass formulation of the bottleneck search: pools
// are expanded in FIFO order and never reopened once expanded, and
// candidate links are scanned in network insertion order. It can miss the
// widest path on some graphs and is kept for comparison with Widest.
func WidestFIFO(snap *core.Snapshot, src, dst string) (Path, bool) {
	srcIdx, ok1 := snap.Index(src)
	dstIdx, ok2 := snap.Index(dst)
	if !ok1 || !ok2 {
		return Path{}, false
	}
	if srcIdx == dstIdx {
		return Path{}, true
	}

	n := len(snap.Pools)
	width := make([]int, n)
	visited := make([]bool, n)
	prev := newPrev(n)
	width[srcIdx] = math.MaxInt
	queue := []int{srcIdx}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		visited[cur] = true

		name := snap.Pools[cur]
		for li, link := range snap.Links {
			if link.A != name && link.B != name {
				continue
			}
			next, ok := snap.Index(otherEnd(link, name))
			if !ok {
				continue
			}
			w := min(width[cur], link.Bandwidth)
			if w > width[next] {
				width[next] = w
				prev[next] = li
				if !visited[next] {
					queue = append(queue, next)
				}
			}
		}
	}

	if width[dstIdx] <= 0 {
		return Path{}, false
	}
	return buildPath(snap, srcIdx, dstIdx, prev)
}

type widthItem struct {
	node  int
	width int
	seq   uint64
}

// widthQueue is a max-heap on width; equal widths pop in push order.
type widthQueue struct {
	items []widthItem
	seq   uint64
}

func (q *widthQueue) nextSeq() uint64 {
	q.seq++
	return q.seq
}

func (q *widthQueue) Len() int { return len(q.items) }

func (q *widthQueue) Less(i, j int) bool {
	if q.items[i].width != q.items[j].width {
		return q.items[i].width > q.items[j].width
	}
	return q.items[i].seq < q.items[j].seq
}

func (q *widthQueue) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }

func (q *widthQueue) Push(x any) { q.items = append(q.items, x.(widthItem)) }

func (q *widthQueue) Pop() any {
	old := q.items
	last := old[len(old)-1]
	q.items = old[:len(old)-1]
	return last
}
