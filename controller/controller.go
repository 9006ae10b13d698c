// Package controller drives capacity transfers across a Network: it routes
// each request under the current policy, holds the amount at the source for
// the duration of the transfer and checks every hop against the link state.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/signalsfoundry/resource-fabric/core"
	"github.com/signalsfoundry/resource-fabric/internal/logging"
	"github.com/signalsfoundry/resource-fabric/lease"
	"github.com/signalsfoundry/resource-fabric/model"
	"github.com/signalsfoundry/resource-fabric/routing"
	"github.com/signalsfoundry/resource-fabric/timectrl"
)

const tracerName = "github.com/signalsfoundry/resource-fabric/controller"

// MetricsRecorder receives one observation per finished send.
type MetricsRecorder interface {
	ObserveTransfer(policy, result string, d time.Duration)
}

// Transition reports a request entering a state.
type Transition struct {
	ID    string
	State model.TransferState
	// Hop is set while TRANSFERRING, once per traversed hop.
	Hop *model.Hop
	Err error
}

// Observer is called synchronously on every transition.
type Observer func(Transition)

type Option func(*Controller)

func WithLogger(l logging.Logger) Option {
	return func(c *Controller) { c.log = logging.OrNoop(l) }
}

func WithMetrics(m MetricsRecorder) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithDelay sets how simulated hop time is spent. The default skips it.
func WithDelay(d timectrl.DelayFunc) Option {
	return func(c *Controller) {
		if d != nil {
			c.delay = d
		}
	}
}

// WithRouter replaces the default uncached router.
func WithRouter(r *routing.Router) Option {
	return func(c *Controller) {
		if r != nil {
			c.router = r
		}
	}
}

// WithLeaseManager sets the manager used by SendTimed. Without one the
// controller creates a wall-clock manager.
func WithLeaseManager(m *lease.Manager) Option {
	return func(c *Controller) { c.leases = m }
}

func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observer = o }
}

// WithRateLimit admits at most r sends per second with the given burst.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(c *Controller) {
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(r, burst)
	}
}

// WithMaxConcurrent lets up to n sends run their pipelines at once. The
// default of 1 serialises sends.
func WithMaxConcurrent(n int64) Option {
	return func(c *Controller) {
		if n > 0 {
			c.sem = semaphore.NewWeighted(n)
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(c *Controller) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithPolicy sets the initial routing policy.
func WithPolicy(p model.RoutingPolicy) Option {
	return func(c *Controller) { c.policy = p }
}

// Controller routes transfers over a Network it does not own.
type Controller struct {
	net      *core.Network
	router   *routing.Router
	leases   *lease.Manager
	delay    timectrl.DelayFunc
	log      logging.Logger
	metrics  MetricsRecorder
	tracer   trace.Tracer
	observer Observer
	limiter  *rate.Limiter
	sem      *semaphore.Weighted
	now      func() time.Time

	mu     sync.RWMutex
	policy model.RoutingPolicy
}

// New creates a controller over net using the shortest-path policy.
func New(net *core.Network, opts ...Option) *Controller {
	c := &Controller{
		net:    net,
		router: routing.New(),
		delay:  timectrl.NoDelay,
		log:    logging.Noop(),
		tracer: otel.Tracer(tracerName),
		sem:    semaphore.NewWeighted(1),
		now:    time.Now,
		policy: model.PolicyShortest,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.leases == nil {
		c.leases = lease.NewManager(nil, lease.WithLogger(c.log), lease.WithDelay(c.delay))
	}
	return c
}

// SetPolicy changes the policy used by sends that start afterwards.
func (c *Controller) SetPolicy(p model.RoutingPolicy) error {
	if !p.Valid() {
		return fmt.Errorf("%w: %v", routing.ErrUnknownPolicy, p)
	}
	c.mu.Lock()
	c.policy = p
	c.mu.Unlock()
	return nil
}

func (c *Controller) Policy() model.RoutingPolicy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.policy
}

// Network returns the network the controller routes over.
func (c *Controller) Network() *core.Network {
	return c.net
}

// Send moves amount units from src to dst under the current policy. The
// returned Result is never nil; its Err equals the returned error.
func (c *Controller) Send(ctx context.Context, src, dst string, amount int) (*Result, error) {
	return c.SendRequest(ctx, model.TransferRequest{Src: src, Dst: dst, Amount: amount})
}

// SendRequest is Send for a full request.
func (c *Controller) SendRequest(ctx context.Context, req model.TransferRequest) (*Result, error) {
	return c.run(ctx, req, nil, 0)
}

// SendTimed first holds amount units on src for timeout under a lease, then
// runs the normal send, which reserves the amount a second time for the
// duration of the transfer. The lease hold is returned when it expires, not
// when the send finishes.
func (c *Controller) SendTimed(ctx context.Context, src, dst string, amount int, timeout time.Duration) (*Result, error) {
	return c.run(ctx, model.TransferRequest{Src: src, Dst: dst, Amount: amount}, nil, timeout)
}

// Execute runs a scripted transfer, honouring its policy override and
// timeout.
func (c *Controller) Execute(ctx context.Context, spec model.TransferSpec) (*Result, error) {
	return c.run(ctx, spec.TransferRequest, spec.Policy, spec.Timeout)
}

// SendAsync starts Send in the background and returns a handle to await it.
func (c *Controller) SendAsync(ctx context.Context, src, dst string, amount int) *Transfer {
	return c.start(ctx, model.TransferRequest{Src: src, Dst: dst, Amount: amount})
}

func (c *Controller) start(ctx context.Context, req model.TransferRequest) *Transfer {
	ctx, id := logging.EnsureTransferID(ctx)
	t := newTransfer(id)
	go func() {
		res, err := c.SendRequest(ctx, req)
		t.complete(res, err)
	}()
	return t
}

// SendBatch runs every request concurrently and returns their results in
// request order. Routing and reservation failures are reported per result;
// the returned error is only set when ctx ended the batch.
func (c *Controller) SendBatch(ctx context.Context, reqs []model.TransferRequest) ([]*Result, error) {
	results := make([]*Result, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	for i, req := range reqs {
		g.Go(func() error {
			sctx := logging.ContextWithTransferID(gctx, logging.NewTransferID())
			res, err := c.SendRequest(sctx, req)
			results[i] = res
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return nil
		})
	}
	return results, g.Wait()
}

func (c *Controller) run(ctx context.Context, req model.TransferRequest, override *model.RoutingPolicy, timeout time.Duration) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, log := logging.WithTransferLogger(ctx, c.log)
	id := logging.TransferIDFromContext(ctx)

	res := &Result{ID: id, Request: req, Policy: c.Policy(), State: model.TransferPending}
	start := c.now()

	ctx, span := c.tracer.Start(ctx, "fabric.Send", trace.WithAttributes(
		attribute.String("transfer.id", id),
		attribute.String("transfer.src", req.Src),
		attribute.String("transfer.dst", req.Dst),
		attribute.Int("transfer.amount", req.Amount),
	))
	defer span.End()

	c.notify(Transition{ID: id, State: model.TransferPending})
	err := c.admit(ctx)
	if err == nil {
		defer c.sem.Release(1)
		res.Policy = c.Policy()
		if override != nil {
			res.Policy = *override
		}
		span.SetAttributes(attribute.String("transfer.policy", res.Policy.String()))
		err = c.pipeline(ctx, log, res, timeout)
	}

	res.Duration = c.now().Sub(start)
	res.Err = err
	kind := core.FailureKind(err)
	if c.metrics != nil {
		c.metrics.ObserveTransfer(res.Policy.String(), kind, res.Duration)
	}

	fields := []logging.Field{
		logging.String("src", req.Src),
		logging.String("dst", req.Dst),
		logging.Int("amount", req.Amount),
		logging.String("policy", res.Policy.String()),
		logging.Duration("duration", res.Duration),
	}
	if err != nil {
		res.State = model.TransferFailed
		c.notify(Transition{ID: id, State: model.TransferFailed, Err: err})
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
		log.Warn(ctx, "transfer failed", append(fields, logging.String("kind", kind), logging.Err(err))...)
		return res, err
	}
	res.State = model.TransferReleased
	c.notify(Transition{ID: id, State: model.TransferReleased})
	log.Info(ctx, "transfer complete", append(fields, logging.Int("hops", res.Path.Len()))...)
	return res, nil
}

// admit waits for the rate limiter and the send slot.
func (c *Controller) admit(ctx context.Context) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}
	return c.sem.Acquire(ctx, 1)
}

func (c *Controller) pipeline(ctx context.Context, log logging.Logger, res *Result, timeout time.Duration) error {
	req := res.Request

	if timeout > 0 {
		l, err := c.holdTimed(req, timeout)
		if err != nil {
			return err
		}
		res.Lease = l
	}

	c.notify(Transition{ID: res.ID, State: model.TransferRouting})
	res.State = model.TransferRouting
	if req.Src == req.Dst {
		return fmt.Errorf("%w: %q", core.ErrSameEndpoint, req.Src)
	}
	src := c.net.FindPool(req.Src)
	if src == nil {
		return fmt.Errorf("%w: source %q", core.ErrPoolNotFound, req.Src)
	}
	if c.net.FindPool(req.Dst) == nil {
		return fmt.Errorf("%w: destination %q", core.ErrPoolNotFound, req.Dst)
	}
	path, err := c.router.Route(c.net.Snapshot(), req.Src, req.Dst, res.Policy)
	if err != nil {
		return err
	}
	res.Path = path

	c.notify(Transition{ID: res.ID, State: model.TransferReserving})
	res.State = model.TransferReserving
	if !src.Reserve(req.Amount) {
		return fmt.Errorf("%w: %s has %d units, need %d",
			core.ErrInsufficientResources, src.Name(), src.Monitor(), req.Amount)
	}

	res.State = model.TransferTransferring
	if err := c.traverse(ctx, log, res); err != nil {
		src.Release(req.Amount)
		return err
	}
	src.Release(req.Amount)
	return nil
}

// traverse walks the path hop by hop, checking the live link state before
// each one.
func (c *Controller) traverse(ctx context.Context, log logging.Logger, res *Result) error {
	amount := res.Request.Amount
	for i := range res.Path.Hops {
		hop := res.Path.Hops[i]
		c.notify(Transition{ID: res.ID, State: model.TransferTransferring, Hop: &hop})

		link := c.net.Link(hop.LinkID)
		if link == nil {
			return fmt.Errorf("%w: %s removed during transfer", core.ErrLinkDisabled, hop.LinkID)
		}
		info := link.Info()
		if !info.Enabled {
			return fmt.Errorf("%w: [%s -> %s]", core.ErrLinkDisabled, hop.From, hop.To)
		}
		if !res.Policy.Permits(info.Permissions) {
			return fmt.Errorf("%w: [%s -> %s] forbids %s", core.ErrPermissionDenied, hop.From, hop.To, res.Policy)
		}

		d := timectrl.TransferDuration(amount, info.Bandwidth, info.Latency)
		log.Debug(ctx, "transferring hop",
			logging.String("from", hop.From),
			logging.String("to", hop.To),
			logging.String("link_id", hop.LinkID),
			logging.Int("amount", amount),
			logging.Duration("simulated", d),
		)
		if err := c.delay(ctx, d); err != nil {
			return fmt.Errorf("hop %s -> %s: %w", hop.From, hop.To, err)
		}
		log.Debug(ctx, "hop received", logging.String("pool", hop.To), logging.Int("amount", amount))
	}
	return nil
}

func (c *Controller) holdTimed(req model.TransferRequest, timeout time.Duration) (*lease.Lease, error) {
	src := c.net.FindPool(req.Src)
	if src == nil {
		return nil, fmt.Errorf("%w: source %q", core.ErrPoolNotFound, req.Src)
	}
	return c.leases.ReserveTimed(src, req.Amount, timeout)
}

func (c *Controller) notify(t Transition) {
	if c.observer != nil {
		c.observer(t)
	}
}
