package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// FabricCollector bundles the Prometheus metrics of a resource fabric. It
// satisfies the recorder interfaces of the network, router, lease manager and
// controller, so one collector can be handed to all of them.
type FabricCollector struct {
	gatherer prometheus.Gatherer

	Transfers        *prometheus.CounterVec
	TransferDuration *prometheus.HistogramVec
	RouteComputation *prometheus.HistogramVec
	RouteCacheRatio  prometheus.Gauge

	Pools         prometheus.Gauge
	Links         prometheus.Gauge
	PoolAvailable *prometheus.GaugeVec

	LeasesActive     prometheus.Gauge
	LeaseExpirations prometheus.Counter
}

// NewFabricCollector registers fabric metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewFabricCollector(reg prometheus.Registerer) (*FabricCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	transfers, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fabric_transfers_total",
		Help: "Completed transfer requests, labeled by routing policy and result kind.",
	}, []string{"policy", "result"}), "fabric_transfers_total")
	if err != nil {
		return nil, err
	}

	transferDuration, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fabric_transfer_duration_seconds",
		Help:    "End-to-end transfer latency in seconds, including simulated hop delays.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"policy"}), "fabric_transfer_duration_seconds")
	if err != nil {
		return nil, err
	}

	routeComputation, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fabric_route_computation_duration_seconds",
		Help:    "Duration of path searches performed by the router.",
		Buckets: []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	}, []string{"policy"}), "fabric_route_computation_duration_seconds")
	if err != nil {
		return nil, err
	}

	cacheRatio, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fabric_route_cache_hit_ratio",
		Help: "Hit ratio of the router's route cache.",
	}), "fabric_route_cache_hit_ratio")
	if err != nil {
		return nil, err
	}

	pools, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fabric_pools",
		Help: "Current number of resource pools in the network.",
	}), "fabric_pools")
	if err != nil {
		return nil, err
	}
	links, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fabric_links",
		Help: "Current number of links in the network.",
	}), "fabric_links")
	if err != nil {
		return nil, err
	}
	available, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fabric_pool_available_units",
		Help: "Available capacity units per pool.",
	}, []string{"pool"}), "fabric_pool_available_units")
	if err != nil {
		return nil, err
	}

	leases, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fabric_leases_active",
		Help: "Timed reservations waiting for their deadline.",
	}), "fabric_leases_active")
	if err != nil {
		return nil, err
	}
	expirations, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fabric_lease_expirations_total",
		Help: "Timed reservations released at their deadline.",
	}), "fabric_lease_expirations_total")
	if err != nil {
		return nil, err
	}

	return &FabricCollector{
		gatherer:         gatherer,
		Transfers:        transfers,
		TransferDuration: transferDuration,
		RouteComputation: routeComputation,
		RouteCacheRatio:  cacheRatio,
		Pools:            pools,
		Links:            links,
		PoolAvailable:    available,
		LeasesActive:     leases,
		LeaseExpirations: expirations,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *FabricCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.Gatherer(), promhttp.HandlerOpts{})
}

// Gatherer returns the gatherer backing Handler.
func (c *FabricCollector) Gatherer() prometheus.Gatherer {
	if c == nil || c.gatherer == nil {
		return prometheus.DefaultGatherer
	}
	return c.gatherer
}

func (c *FabricCollector) ObserveTransfer(policy, result string, d time.Duration) {
	if c == nil {
		return
	}
	if c.Transfers != nil {
		c.Transfers.WithLabelValues(policy, result).Inc()
	}
	if c.TransferDuration != nil {
		c.TransferDuration.WithLabelValues(policy).Observe(d.Seconds())
	}
}

func (c *FabricCollector) ObserveRouteComputation(policy string, d time.Duration) {
	if c == nil || c.RouteComputation == nil {
		return
	}
	c.RouteComputation.WithLabelValues(policy).Observe(d.Seconds())
}

func (c *FabricCollector) SetRouteCacheHitRatio(ratio float64) {
	if c == nil || c.RouteCacheRatio == nil {
		return
	}
	c.RouteCacheRatio.Set(ratio)
}

// SetTopologyCounts lets the Network drive the topology gauges from its
// mutators.
func (c *FabricCollector) SetTopologyCounts(pools, links int) {
	if c == nil {
		return
	}
	if c.Pools != nil {
		c.Pools.Set(float64(pools))
	}
	if c.Links != nil {
		c.Links.Set(float64(links))
	}
}

// PoolAvailabilityChanged is called under the pool lock; it only touches the
// gauge.
func (c *FabricCollector) PoolAvailabilityChanged(pool string, available int) {
	if c == nil || c.PoolAvailable == nil {
		return
	}
	c.PoolAvailable.WithLabelValues(pool).Set(float64(available))
}

func (c *FabricCollector) SetActiveLeases(n int) {
	if c == nil || c.LeasesActive == nil {
		return
	}
	c.LeasesActive.Set(float64(n))
}

func (c *FabricCollector) IncLeaseExpirations() {
	if c == nil || c.LeaseExpirations == nil {
		return
	}
	c.LeaseExpirations.Inc()
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
