package main

import (
	"context"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/signalsfoundry/resource-fabric/internal/config"
	"github.com/signalsfoundry/resource-fabric/internal/logging"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	cfg.Metrics.Addr = ""
	return cfg
}

func TestFabricRunsScriptedTransfers(t *testing.T) {
	ctx := context.Background()
	log := logging.New(logging.Config{Level: "warn", Format: "text"})

	f, err := newFabric(testConfig(t), log, prometheus.NewRegistry(), clock.NewMock())
	if err != nil {
		t.Fatalf("newFabric: %v", err)
	}
	defer f.leases.Close()

	specs, err := f.loadTopology(ctx, "testdata/topology.yaml", log)
	if err != nil {
		t.Fatalf("loadTopology: %v", err)
	}
	if f.net.CountPools() != 2 || f.net.CountLinks() != 1 {
		t.Fatalf("topology = %d pools, %d links, want 2 and 1", f.net.CountPools(), f.net.CountLinks())
	}
	if len(specs) != 3 {
		t.Fatalf("transfers = %d, want 3", len(specs))
	}

	ok, failed := f.runTransfers(ctx, specs)
	if ok != 2 || failed != 1 {
		t.Fatalf("runTransfers = (%d ok, %d failed), want (2, 1)", ok, failed)
	}

	c := f.collector
	if got := testutil.ToFloat64(c.Transfers.WithLabelValues("shortest", "ok")); got != 1 {
		t.Fatalf("shortest/ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.Transfers.WithLabelValues("widest", "ok")); got != 1 {
		t.Fatalf("widest/ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.Transfers.WithLabelValues("shortest", "insufficient_resources")); got != 1 {
		t.Fatalf("shortest/insufficient_resources = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.Pools); got != 2 {
		t.Fatalf("fabric_pools = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.PoolAvailable.WithLabelValues("CPU")); got != 100 {
		t.Fatalf("CPU available gauge = %v, want 100", got)
	}
}

func TestLoadTopologyMissingFile(t *testing.T) {
	f, err := newFabric(testConfig(t), nil, prometheus.NewRegistry(), clock.NewMock())
	if err != nil {
		t.Fatalf("newFabric: %v", err)
	}
	if _, err := f.loadTopology(context.Background(), "testdata/missing.yaml", logging.Noop()); err == nil {
		t.Fatalf("expected an error for a missing topology file")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := run(ctx, testConfig(t), "testdata/topology.yaml", logging.Noop()); err != nil {
		t.Fatalf("run: %v", err)
	}
}
