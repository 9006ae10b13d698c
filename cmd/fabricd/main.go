package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"golang.org/x/time/rate"

	"github.com/signalsfoundry/resource-fabric/controller"
	"github.com/signalsfoundry/resource-fabric/core"
	"github.com/signalsfoundry/resource-fabric/internal/config"
	"github.com/signalsfoundry/resource-fabric/internal/logging"
	"github.com/signalsfoundry/resource-fabric/internal/observability"
	"github.com/signalsfoundry/resource-fabric/lease"
	"github.com/signalsfoundry/resource-fabric/model"
	"github.com/signalsfoundry/resource-fabric/routing"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file (optional)")
	topologyPath := flag.String("topology", "configs/topology.yaml", "Path to the pool/link topology file")
	metricsAddr := flag.String("metrics-addr", "", "HTTP address for Prometheus /metrics; overrides metrics.addr")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fabricd: %v\n", err)
		os.Exit(2)
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}

	log := logging.New(cfg.Logging())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *topologyPath, log); err != nil {
		log.Error(context.Background(), "fabricd exited", logging.Err(err))
		os.Exit(1)
	}
}

// fabric is the wired process state.
type fabric struct {
	net       *core.Network
	ctrl      *controller.Controller
	leases    *lease.Manager
	collector *observability.FabricCollector
}

func newFabric(cfg *config.Config, log logging.Logger, reg prometheus.Registerer, clk clock.Clock) (*fabric, error) {
	collector, err := observability.NewFabricCollector(reg)
	if err != nil {
		return nil, fmt.Errorf("metrics collector: %w", err)
	}

	net := core.NewNetwork(
		core.WithMetricsRecorder(collector),
		core.WithPoolObserver(collector),
	)

	routerOpts := []routing.Option{routing.WithMetrics(collector)}
	if cfg.Routing.CacheSize > 0 {
		routerOpts = append(routerOpts, routing.WithCache(routing.NewCache(cfg.Routing.CacheSize)))
	}

	delay := cfg.Delay(clk)
	leases := lease.NewManager(
		lease.NewClockScheduler(clk),
		lease.WithLogger(log),
		lease.WithMetrics(collector),
		lease.WithDelay(delay),
	)

	opts := []controller.Option{
		controller.WithLogger(log),
		controller.WithMetrics(collector),
		controller.WithRouter(routing.New(routerOpts...)),
		controller.WithLeaseManager(leases),
		controller.WithDelay(delay),
		controller.WithPolicy(cfg.Policy()),
	}
	if cfg.Transfer.RateLimit > 0 {
		opts = append(opts, controller.WithRateLimit(rate.Limit(cfg.Transfer.RateLimit), cfg.Transfer.RateBurst))
	}

	return &fabric{
		net:       net,
		ctrl:      controller.New(net, opts...),
		leases:    leases,
		collector: collector,
	}, nil
}

// loadTopology adds the file's pools and links to the network. Entry-level
// problems are logged and skipped; an unreadable or malformed file is fatal.
func (f *fabric) loadTopology(ctx context.Context, path string, log logging.Logger) ([]model.TransferSpec, error) {
	if path == "" {
		return nil, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open topology %q: %w", path, err)
	}
	defer file.Close()

	topo, err := core.LoadTopology(f.net, file)
	if topo == nil {
		return nil, err
	}
	for _, entryErr := range multierr.Errors(err) {
		log.Warn(ctx, "skipping topology entry", logging.String("path", path), logging.Err(entryErr))
	}
	log.Info(ctx, "loaded topology",
		logging.String("path", path),
		logging.Int("pools", len(topo.PoolNames)),
		logging.Int("links", len(topo.LinkIDs)),
		logging.Int("transfers", len(topo.Transfers)),
	)
	return topo.Transfers, nil
}

// runTransfers executes the scripted transfers in order and reports how many
// finished successfully.
func (f *fabric) runTransfers(ctx context.Context, specs []model.TransferSpec) (ok, failed int) {
	for _, spec := range specs {
		if ctx.Err() != nil {
			break
		}
		if _, err := f.ctrl.Execute(ctx, spec); err != nil {
			failed++
			continue
		}
		ok++
	}
	return ok, failed
}

func run(ctx context.Context, cfg *config.Config, topologyPath string, log logging.Logger) error {
	log = logging.OrNoop(log)

	shutdownTracing, err := observability.InitTracing(ctx, cfg.TracingConfig(), log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	f, err := newFabric(cfg, log, prometheus.NewRegistry(), clock.New())
	if err != nil {
		return err
	}
	defer f.leases.Close()

	metricsSrv := serveMetrics(cfg.Metrics.Addr, f.collector, log)

	specs, err := f.loadTopology(ctx, topologyPath, log)
	if err != nil {
		return err
	}
	ok, failed := f.runTransfers(ctx, specs)
	log.Info(ctx, "scripted transfers finished",
		logging.Int("ok", ok),
		logging.Int("failed", failed),
		logging.String("policy", f.ctrl.Policy().String()),
	)

	<-ctx.Done()
	log.Info(context.Background(), "shutting down fabricd")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return nil
}

func serveMetrics(addr string, collector *observability.FabricCollector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
