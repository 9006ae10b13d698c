package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestObserveTransferRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewFabricCollector(reg)
	if err != nil {
		t.Fatalf("NewFabricCollector: %v", err)
	}

	collector.ObserveTransfer("shortest", "ok", 20*time.Millisecond)
	collector.ObserveTransfer("shortest", "link_disabled", time.Millisecond)
	collector.ObserveTransfer("widest", "ok", time.Millisecond)

	if got := testutil.ToFloat64(collector.Transfers.WithLabelValues("shortest", "ok")); got != 1 {
		t.Fatalf("fabric_transfers_total{shortest,ok} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.Transfers.WithLabelValues("shortest", "link_disabled")); got != 1 {
		t.Fatalf("fabric_transfers_total{shortest,link_disabled} = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "fabric_transfer_duration_seconds", map[string]string{
		"policy": "shortest",
	}); count != 2 {
		t.Fatalf("fabric_transfer_duration_seconds sample_count = %d, want 2", count)
	}
}

func TestPoolAndTopologyGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewFabricCollector(reg)
	if err != nil {
		t.Fatalf("NewFabricCollector: %v", err)
	}

	collector.SetTopologyCounts(3, 2)
	collector.PoolAvailabilityChanged("CPU", 70)
	collector.PoolAvailabilityChanged("CPU", 100)
	collector.SetActiveLeases(4)
	collector.IncLeaseExpirations()
	collector.SetRouteCacheHitRatio(0.75)
	collector.ObserveRouteComputation("widest", time.Microsecond)

	if got := testutil.ToFloat64(collector.Pools); got != 3 {
		t.Fatalf("fabric_pools = %v, want 3", got)
	}
	if got := testutil.ToFloat64(collector.Links); got != 2 {
		t.Fatalf("fabric_links = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.PoolAvailable.WithLabelValues("CPU")); got != 100 {
		t.Fatalf("fabric_pool_available_units{CPU} = %v, want 100", got)
	}
	if got := testutil.ToFloat64(collector.LeasesActive); got != 4 {
		t.Fatalf("fabric_leases_active = %v, want 4", got)
	}
	if got := testutil.ToFloat64(collector.LeaseExpirations); got != 1 {
		t.Fatalf("fabric_lease_expirations_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.RouteCacheRatio); got != 0.75 {
		t.Fatalf("fabric_route_cache_hit_ratio = %v, want 0.75", got)
	}
	if count := histogramSampleCount(t, reg, "fabric_route_computation_duration_seconds", map[string]string{
		"policy": "widest",
	}); count != 1 {
		t.Fatalf("fabric_route_computation_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestCollectorReusesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewFabricCollector(reg)
	if err != nil {
		t.Fatalf("NewFabricCollector: %v", err)
	}
	second, err := NewFabricCollector(reg)
	if err != nil {
		t.Fatalf("second NewFabricCollector: %v", err)
	}
	first.SetTopologyCounts(5, 0)
	if got := testutil.ToFloat64(second.Pools); got != 5 {
		t.Fatalf("second collector sees fabric_pools = %v, want 5", got)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *FabricCollector
	c.ObserveTransfer("shortest", "ok", time.Second)
	c.SetTopologyCounts(1, 1)
	c.PoolAvailabilityChanged("x", 1)
	c.SetActiveLeases(1)
	c.IncLeaseExpirations()
	c.SetRouteCacheHitRatio(1)
	c.ObserveRouteComputation("shortest", time.Second)
	if c.Gatherer() != prometheus.DefaultGatherer {
		t.Fatalf("nil collector should fall back to the default gatherer")
	}
}

func TestMetricsHandlerExposesFabricMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewFabricCollector(reg)
	if err != nil {
		t.Fatalf("NewFabricCollector: %v", err)
	}
	collector.SetTopologyCounts(3, 4)
	collector.PoolAvailabilityChanged("GPU", 50)
	collector.ObserveTransfer("widest", "ok", time.Millisecond)
	collector.ObserveRouteComputation("widest", time.Millisecond)
	collector.IncLeaseExpirations()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"fabric_transfers_total",
		"fabric_transfer_duration_seconds",
		"fabric_route_computation_duration_seconds",
		"fabric_route_cache_hit_ratio",
		"fabric_pools 3",
		"fabric_links 4",
		`fabric_pool_available_units{pool="GPU"} 50`,
		"fabric_leases_active",
		"fabric_lease_expirations_total 1",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
