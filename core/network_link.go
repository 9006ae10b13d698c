package core

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/signalsfoundry/resource-fabric/model"
)

// ResourceLink is an undirected, capacity-bearing edge between two pools.
// Traversal may start from either endpoint. Links are owned by a Network and
// refer to their endpoints by pool name.
type ResourceLink struct {
	ID string
	A  string
	B  string

	mu          sync.RWMutex
	bandwidth   int // units/sec
	latency     int // milliseconds
	permissions uint32
	enabled     bool

	// version is the owning network's topology counter; attribute changes
	// bump it so cached routes go stale.
	version *atomic.Uint64
}

// LinkInfo is a point-in-time copy of a link's attributes.
type LinkInfo struct {
	ID          string
	A           string
	B           string
	Bandwidth   int
	Latency     int
	Permissions uint32
	Enabled     bool
}

// Other returns the endpoint opposite to name, or "" if name is not an
// endpoint of the link.
func (l *ResourceLink) Other(name string) string {
	switch name {
	case l.A:
		return l.B
	case l.B:
		return l.A
	default:
		return ""
	}
}

// Connects reports whether the link joins a and b in either direction.
func (l *ResourceLink) Connects(a, b string) bool {
	return (l.A == a && l.B == b) || (l.A == b && l.B == a)
}

func (l *ResourceLink) Bandwidth() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.bandwidth
}

// SetBandwidth updates the link bandwidth. Non-positive values are rejected.
func (l *ResourceLink) SetBandwidth(bw int) error {
	if bw <= 0 {
		return fmt.Errorf("%w: bandwidth must be positive, got %d", ErrLinkBadInput, bw)
	}
	l.mu.Lock()
	l.bandwidth = bw
	l.mu.Unlock()
	l.bump()
	return nil
}

func (l *ResourceLink) Latency() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.latency
}

// SetLatency updates the link latency in milliseconds.
func (l *ResourceLink) SetLatency(ms int) error {
	if ms < 0 {
		return fmt.Errorf("%w: latency must not be negative, got %d", ErrLinkBadInput, ms)
	}
	l.mu.Lock()
	l.latency = ms
	l.mu.Unlock()
	l.bump()
	return nil
}

func (l *ResourceLink) Permissions() uint32 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.permissions
}

// SetPermissions replaces the per-policy permission mask.
func (l *ResourceLink) SetPermissions(mask uint32) {
	l.mu.Lock()
	l.permissions = mask
	l.mu.Unlock()
	l.bump()
}

// Allows reports whether policy may traverse the link.
func (l *ResourceLink) Allows(policy model.RoutingPolicy) bool {
	return policy.Permits(l.Permissions())
}

func (l *ResourceLink) Enabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.enabled
}

func (l *ResourceLink) Enable()  { l.setEnabled(true) }
func (l *ResourceLink) Disable() { l.setEnabled(false) }

func (l *ResourceLink) setEnabled(v bool) {
	l.mu.Lock()
	l.enabled = v
	l.mu.Unlock()
	l.bump()
}

// Info returns a consistent copy of the link's attributes.
func (l *ResourceLink) Info() LinkInfo {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return LinkInfo{
		ID:          l.ID,
		A:           l.A,
		B:           l.B,
		Bandwidth:   l.bandwidth,
		Latency:     l.latency,
		Permissions: l.permissions,
		Enabled:     l.enabled,
	}
}

func (l *ResourceLink) String() string {
	info := l.Info()
	return fmt.Sprintf("[%s <-> %s] bw=%d, lat=%d, enabled=%t", info.A, info.B, info.Bandwidth, info.Latency, info.Enabled)
}

func (l *ResourceLink) bump() {
	if l.version != nil {
		l.version.Add(1)
	}
}
