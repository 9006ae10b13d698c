package lease

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/signalsfoundry/resource-fabric/core"
	"github.com/signalsfoundry/resource-fabric/internal/logging"
	"github.com/signalsfoundry/resource-fabric/timectrl"
)

// ErrClosed is returned by a Manager after Close.
var ErrClosed = errors.New("lease manager closed")

// MetricsRecorder tracks lease counts.
type MetricsRecorder interface {
	SetActiveLeases(n int)
	IncLeaseExpirations()
}

type Option func(*Manager)

func WithLogger(l logging.Logger) Option {
	return func(m *Manager) { m.log = logging.OrNoop(l) }
}

func WithMetrics(r MetricsRecorder) Option {
	return func(m *Manager) { m.metrics = r }
}

// WithDelay sets the delay used to model migration transfer time.
func WithDelay(d timectrl.DelayFunc) Option {
	return func(m *Manager) {
		if d != nil {
			m.delay = d
		}
	}
}

// Manager issues leases and tracks the ones still pending.
type Manager struct {
	sched   Scheduler
	log     logging.Logger
	metrics MetricsRecorder
	delay   timectrl.DelayFunc

	mu     sync.Mutex
	active map[string]*Lease
	closed bool
}

// NewManager creates a manager that fires deadlines from sched. A nil
// scheduler uses the wall clock.
func NewManager(sched Scheduler, opts ...Option) *Manager {
	if sched == nil {
		sched = NewClockScheduler(nil)
	}
	m := &Manager{
		sched:  sched,
		log:    logging.Noop(),
		delay:  timectrl.NoDelay,
		active: make(map[string]*Lease),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// ReserveTimed reserves amount units on pool and schedules their release
// timeout from now. Nothing is scheduled when the reservation fails.
func (m *Manager) ReserveTimed(pool *core.ResourcePool, amount int, timeout time.Duration) (*Lease, error) {
	if pool == nil {
		return nil, fmt.Errorf("%w: nil pool", core.ErrPoolBadInput)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	if !pool.Reserve(amount) {
		return nil, fmt.Errorf("%w: cannot hold %d units on %s (only %d available)",
			core.ErrInsufficientResources, amount, pool.Name(), pool.Monitor())
	}

	l := &Lease{
		ID:       uuid.NewString(),
		Pool:     pool,
		Amount:   amount,
		Deadline: m.sched.Now().Add(timeout),
		mgr:      m,
		done:     make(chan struct{}),
	}
	m.active[l.ID] = l

	l.mu.Lock()
	l.eventID = m.sched.Schedule(l.Deadline, l.expire)
	l.mu.Unlock()

	m.recordActiveLocked()
	m.log.Debug(context.Background(), "lease granted",
		logging.String("lease_id", l.ID),
		logging.String("pool", pool.Name()),
		logging.Int("amount", amount),
		logging.Duration("timeout", timeout),
	)
	return l, nil
}

// Active returns the number of leases that have neither expired nor been
// cancelled.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Close cancels every pending lease and rejects new ones. Held units are not
// returned.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	pending := make([]*Lease, 0, len(m.active))
	for _, l := range m.active {
		pending = append(pending, l)
	}
	m.mu.Unlock()

	for _, l := range pending {
		l.Cancel()
	}
}

// MigrateTimed holds amount units on from under a lease, waits for the
// simulated transfer, then releases from and reserves the same amount on to.
//
// The steps are not atomic. The lease still fires at its deadline and
// releases from a second time (clamped by the pool). A failed reservation on
// to is reported after from has already been released.
func (m *Manager) MigrateTimed(ctx context.Context, from, to *core.ResourcePool, amount int, timeout time.Duration) (*Lease, error) {
	if from == nil || to == nil {
		return nil, fmt.Errorf("%w: nil migration endpoint", core.ErrPoolBadInput)
	}

	l, err := m.ReserveTimed(from, amount, timeout)
	if err != nil {
		return nil, fmt.Errorf("migrate %s -> %s: %w", from.Name(), to.Name(), err)
	}

	if err := m.delay(ctx, time.Duration(amount)*core.MigrationDelayPerUnit); err != nil {
		if l.Cancel() {
			from.Release(amount)
		}
		return l, fmt.Errorf("migrate %s -> %s: %w", from.Name(), to.Name(), err)
	}

	from.Release(amount)
	if !to.Reserve(amount) {
		return l, fmt.Errorf("%w: target pool %s cannot take %d units",
			core.ErrInsufficientResources, to.Name(), amount)
	}

	m.log.Debug(ctx, "timed migration complete",
		logging.String("lease_id", l.ID),
		logging.String("from", from.Name()),
		logging.String("to", to.Name()),
		logging.Int("amount", amount),
	)
	return l, nil
}

func (m *Manager) expired(l *Lease) {
	if m.metrics != nil {
		m.metrics.IncLeaseExpirations()
	}
	m.log.Debug(context.Background(), "lease expired",
		logging.String("lease_id", l.ID),
		logging.String("pool", l.Pool.Name()),
		logging.Int("amount", l.Amount),
	)
	m.finish(l)
}

func (m *Manager) finish(l *Lease) {
	m.mu.Lock()
	delete(m.active, l.ID)
	m.recordActiveLocked()
	m.mu.Unlock()
	close(l.done)
}

func (m *Manager) recordActiveLocked() {
	if m.metrics != nil {
		m.metrics.SetActiveLeases(len(m.active))
	}
}
