// Package routing computes paths across a fabric snapshot under a routing
// policy.
package routing

import (
	"errors"
	"fmt"
	"time"

	"github.com/signalsfoundry/resource-fabric/core"
	"github.com/signalsfoundry/resource-fabric/model"
)

var (
	ErrNoRoute          = core.ErrNoRouteFound
	ErrSameEndpoint     = core.ErrSameEndpoint
	ErrEndpointNotFound = core.ErrPoolNotFound
	ErrUnknownPolicy    = errors.New("unknown routing policy")
)

// MetricsRecorder receives route computation timings. Cache hits are not
// timed.
type MetricsRecorder interface {
	ObserveRouteComputation(policy string, d time.Duration)
	SetRouteCacheHitRatio(ratio float64)
}

type Option func(*Router)

// WithCache enables route memoisation.
func WithCache(c *Cache) Option {
	return func(r *Router) { r.cache = c }
}

func WithMetrics(m MetricsRecorder) Option {
	return func(r *Router) { r.metrics = m }
}

// Router is stateless apart from its optional cache. It takes no topology
// locks; callers hand it a snapshot.
type Router struct {
	cache   *Cache
	metrics MetricsRecorder
	now     func() time.Time
}

func New(opts ...Option) *Router {
	r := &Router{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Cache returns the router's cache, or nil.
func (r *Router) Cache() *Cache {
	return r.cache
}

// Route finds a path from src to dst under policy.
func (r *Router) Route(snap *core.Snapshot, src, dst string, policy model.RoutingPolicy) (Path, error) {
	if !policy.Valid() {
		return Path{}, fmt.Errorf("%w: %v", ErrUnknownPolicy, policy)
	}
	if src == dst {
		return Path{}, fmt.Errorf("%w: %q", ErrSameEndpoint, src)
	}
	if !snap.HasPool(src) {
		return Path{}, fmt.Errorf("%w: source %q", ErrEndpointNotFound, src)
	}
	if !snap.HasPool(dst) {
		return Path{}, fmt.Errorf("%w: destination %q", ErrEndpointNotFound, dst)
	}

	if r.cache != nil {
		p, ok := r.cache.Get(src, dst, policy, snap.Version)
		r.recordHitRatio()
		if ok {
			return p, nil
		}
	}

	start := r.now()
	var (
		p     Path
		found bool
	)
	switch policy {
	case model.PolicyWidest:
		p, found = Widest(snap, src, dst)
	default:
		p, found = Shortest(snap, src, dst)
	}
	if r.metrics != nil {
		r.metrics.ObserveRouteComputation(policy.String(), r.now().Sub(start))
	}
	if !found {
		return Path{}, fmt.Errorf("%w: %s -> %s under %s", ErrNoRoute, src, dst, policy)
	}

	r.cache.Put(src, dst, policy, snap.Version, p)
	return p, nil
}

func (r *Router) recordHitRatio() {
	if r.metrics != nil {
		r.metrics.SetRouteCacheHitRatio(r.cache.HitRatio())
	}
}
