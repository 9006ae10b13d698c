package core

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/signalsfoundry/resource-fabric/model"
)

// TopologyMetricsRecorder receives pool and link counts after every topology
// change.
type TopologyMetricsRecorder interface {
	SetTopologyCounts(pools, links int)
}

// NetworkOption customises Network construction.
type NetworkOption func(*Network)

// WithMetricsRecorder attaches a recorder for topology counts.
func WithMetricsRecorder(m TopologyMetricsRecorder) NetworkOption {
	return func(n *Network) {
		n.metrics = m
	}
}

// WithPoolObserver installs obs on every pool added to the network.
func WithPoolObserver(obs PoolObserver) NetworkOption {
	return func(n *Network) {
		n.observer = obs
	}
}

// Network owns an insertion-ordered set of pools and the links between them.
//
// Topology reads (routing snapshots, discovery, lookups) take the read lock;
// topology mutation takes the write lock. Pool capacity is guarded by each
// pool's own lock, never by the network lock.
type Network struct {
	mu sync.RWMutex

	pools    []*ResourcePool
	byName   map[string]*ResourcePool
	links    []*ResourceLink
	linkByID map[string]*ResourceLink
	linkSeq  uint64

	version atomic.Uint64

	metrics  TopologyMetricsRecorder
	observer PoolObserver
}

// NewNetwork creates an empty network.
func NewNetwork(opts ...NetworkOption) *Network {
	n := &Network{
		byName:   make(map[string]*ResourcePool),
		linkByID: make(map[string]*ResourceLink),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	n.updateMetricsLocked()
	return n
}

// Version returns the topology version. It increases on every pool, link or
// link-attribute change.
func (n *Network) Version() uint64 {
	return n.version.Load()
}

//
// ---------- Pools ----------
//

// AddPool appends p to the network. Pool names are unique within a network
// and a pool belongs to at most one network.
func (n *Network) AddPool(p *ResourcePool) error {
	if p == nil || p.Name() == "" {
		return fmt.Errorf("%w: nil pool or empty name", ErrPoolBadInput)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if _, exists := n.byName[p.Name()]; exists {
		return fmt.Errorf("%w: %q", ErrPoolExists, p.Name())
	}
	if !p.attach(n.observer) {
		return fmt.Errorf("%w: %q", ErrPoolAttached, p.Name())
	}
	n.pools = append(n.pools, p)
	n.byName[p.Name()] = p
	n.version.Add(1)
	n.updateMetricsLocked()
	return nil
}

// RemovePool removes p together with every link incident to it. It returns
// false if p is not a member.
func (n *Network) RemovePool(p *ResourcePool) bool {
	if p == nil {
		return false
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.byName[p.Name()] != p {
		return false
	}
	n.removePoolLocked(p)
	return true
}

// RemovePoolByName removes the named pool and its incident links.
func (n *Network) RemovePoolByName(name string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	p, ok := n.byName[name]
	if !ok {
		return false
	}
	n.removePoolLocked(p)
	return true
}

func (n *Network) removePoolLocked(p *ResourcePool) {
	kept := n.links[:0]
	for _, l := range n.links {
		if l.A == p.Name() || l.B == p.Name() {
			if other := n.byName[l.Other(p.Name())]; other != nil && other != p {
				other.removeLink(l.ID)
			}
			delete(n.linkByID, l.ID)
			continue
		}
		kept = append(kept, l)
	}
	for i := len(kept); i < len(n.links); i++ {
		n.links[i] = nil
	}
	n.links = kept

	for i, existing := range n.pools {
		if existing == p {
			n.pools = append(n.pools[:i], n.pools[i+1:]...)
			break
		}
	}
	delete(n.byName, p.Name())
	p.detach()
	n.version.Add(1)
	n.updateMetricsLocked()
}

// FindPool returns the named pool, or nil.
func (n *Network) FindPool(name string) *ResourcePool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.byName[name]
}

// Pools returns the pools in insertion order.
func (n *Network) Pools() []*ResourcePool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]*ResourcePool(nil), n.pools...)
}

func (n *Network) CountPools() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.pools)
}

// Discover returns every pool of the given type with spare capacity, in
// insertion order.
func (n *Network) Discover(typ string) []*ResourcePool {
	n.mu.RLock()
	defer n.mu.RUnlock()

	var out []*ResourcePool
	for _, p := range n.pools {
		if p.Type() == typ && p.Monitor() > 0 {
			out = append(out, p)
		}
	}
	return out
}

//
// ---------- Links ----------
//

// CreateLink joins a and b with a new link that permits every policy and
// starts enabled. Both pools must already be members of the network.
func (n *Network) CreateLink(a, b *ResourcePool, bandwidth, latency int) (*ResourceLink, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("%w: nil endpoint", ErrLinkBadInput)
	}
	if bandwidth <= 0 {
		return nil, fmt.Errorf("%w: bandwidth must be positive, got %d", ErrLinkBadInput, bandwidth)
	}
	if latency < 0 {
		return nil, fmt.Errorf("%w: latency must not be negative, got %d", ErrLinkBadInput, latency)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.byName[a.Name()] != a {
		return nil, fmt.Errorf("%w: %q", ErrPoolNotFound, a.Name())
	}
	if n.byName[b.Name()] != b {
		return nil, fmt.Errorf("%w: %q", ErrPoolNotFound, b.Name())
	}

	n.linkSeq++
	link := &ResourceLink{
		ID:          fmt.Sprintf("link-%d", n.linkSeq),
		A:           a.Name(),
		B:           b.Name(),
		bandwidth:   bandwidth,
		latency:     latency,
		permissions: model.PermitAll,
		enabled:     true,
		version:     &n.version,
	}
	n.links = append(n.links, link)
	n.linkByID[link.ID] = link
	a.addLink(link.ID)
	if b != a {
		b.addLink(link.ID)
	}
	n.version.Add(1)
	n.updateMetricsLocked()
	return link, nil
}

// Connect is the name-based form of CreateLink.
func (n *Network) Connect(nameA, nameB string, bandwidth, latency int) (*ResourceLink, error) {
	a := n.FindPool(nameA)
	if a == nil {
		return nil, fmt.Errorf("%w: %q", ErrPoolNotFound, nameA)
	}
	b := n.FindPool(nameB)
	if b == nil {
		return nil, fmt.Errorf("%w: %q", ErrPoolNotFound, nameB)
	}
	return n.CreateLink(a, b, bandwidth, latency)
}

// Disconnect removes the first link joining the two named pools, in either
// direction. It returns false when no such link exists.
func (n *Network) Disconnect(nameA, nameB string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, l := range n.links {
		if l.Connects(nameA, nameB) {
			n.removeLinkLocked(l)
			return true
		}
	}
	return false
}

// RemoveLink removes the link with the given ID.
func (n *Network) RemoveLink(id string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	l, ok := n.linkByID[id]
	if !ok {
		return false
	}
	n.removeLinkLocked(l)
	return true
}

func (n *Network) removeLinkLocked(l *ResourceLink) {
	for i, existing := range n.links {
		if existing == l {
			n.links = append(n.links[:i], n.links[i+1:]...)
			break
		}
	}
	delete(n.linkByID, l.ID)
	if a := n.byName[l.A]; a != nil {
		a.removeLink(l.ID)
	}
	if b := n.byName[l.B]; b != nil && l.B != l.A {
		b.removeLink(l.ID)
	}
	n.version.Add(1)
	n.updateMetricsLocked()
}

// Link returns the link with the given ID, or nil.
func (n *Network) Link(id string) *ResourceLink {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.linkByID[id]
}

// LinkBetween returns the first link joining the two named pools, or nil.
func (n *Network) LinkBetween(nameA, nameB string) *ResourceLink {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, l := range n.links {
		if l.Connects(nameA, nameB) {
			return l
		}
	}
	return nil
}

// Links returns the links in insertion order.
func (n *Network) Links() []*ResourceLink {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]*ResourceLink(nil), n.links...)
}

func (n *Network) CountLinks() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.links)
}

// LinksOf returns the links incident to the named pool, in the pool's
// adjacency order.
func (n *Network) LinksOf(name string) []*ResourceLink {
	n.mu.RLock()
	defer n.mu.RUnlock()

	p, ok := n.byName[name]
	if !ok {
		return nil
	}
	ids := p.Links()
	out := make([]*ResourceLink, 0, len(ids))
	for _, id := range ids {
		if l := n.linkByID[id]; l != nil {
			out = append(out, l)
		}
	}
	return out
}

//
// ---------- Snapshots ----------
//

// Snapshot is a consistent, read-only copy of the topology for routing.
type Snapshot struct {
	Version uint64
	// Pools lists pool names in insertion order.
	Pools []string
	// Links lists link attributes in insertion order.
	Links []LinkInfo
	// Adjacency maps a pool name to indices into Links, in the order the
	// links were attached to that pool.
	Adjacency map[string][]int

	index map[string]int
}

// HasPool reports whether name is part of the snapshot.
func (s *Snapshot) HasPool(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[name]
	return ok
}

// Index returns the insertion position of the named pool.
func (s *Snapshot) Index(name string) (int, bool) {
	if s == nil {
		return 0, false
	}
	i, ok := s.index[name]
	return i, ok
}

// Snapshot copies the current topology under the read lock.
func (n *Network) Snapshot() *Snapshot {
	n.mu.RLock()
	defer n.mu.RUnlock()

	snap := &Snapshot{
		Version:   n.version.Load(),
		Pools:     make([]string, 0, len(n.pools)),
		Links:     make([]LinkInfo, 0, len(n.links)),
		Adjacency: make(map[string][]int, len(n.pools)),
		index:     make(map[string]int, len(n.pools)),
	}
	linkIdx := make(map[string]int, len(n.links))
	for i, l := range n.links {
		snap.Links = append(snap.Links, l.Info())
		linkIdx[l.ID] = i
	}
	for i, p := range n.pools {
		snap.Pools = append(snap.Pools, p.Name())
		snap.index[p.Name()] = i
		ids := p.Links()
		adj := make([]int, 0, len(ids))
		for _, id := range ids {
			if idx, ok := linkIdx[id]; ok {
				adj = append(adj, idx)
			}
		}
		snap.Adjacency[p.Name()] = adj
	}
	return snap
}

func (n *Network) updateMetricsLocked() {
	if n.metrics == nil {
		return
	}
	n.metrics.SetTopologyCounts(len(n.pools), len(n.links))
}

// SetLinkEnabled enables or disables the link with the given ID.
func (n *Network) SetLinkEnabled(id string, enabled bool) error {
	l := n.Link(id)
	if l == nil {
		return fmt.Errorf("%w: %q", ErrLinkNotFound, id)
	}
	l.setEnabled(enabled)
	return nil
}

// SetLinkPermissions replaces the permission mask of the link with the given
// ID.
func (n *Network) SetLinkPermissions(id string, mask uint32) error {
	l := n.Link(id)
	if l == nil {
		return fmt.Errorf("%w: %q", ErrLinkNotFound, id)
	}
	l.SetPermissions(mask)
	return nil
}
