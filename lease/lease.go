package lease

import (
	"sync"
	"time"

	"github.com/signalsfoundry/resource-fabric/core"
)

type leaseState int

const (
	leasePending leaseState = iota
	leaseExpired
	leaseCanceled
)

// Lease is a reservation on a pool that is returned at Deadline.
//
// The release at expiry is unconditional: it happens even if the holder has
// already released the units itself. The pool clamps the second release, so
// available never exceeds capacity, but units reserved by someone else in
// between can be handed back early. Cancel is the only way to stop it.
type Lease struct {
	ID       string
	Pool     *core.ResourcePool
	Amount   int
	Deadline time.Time

	mgr     *Manager
	eventID string
	done    chan struct{}

	mu    sync.Mutex
	state leaseState
}

// Done is closed once the lease has expired and released its units, or has
// been cancelled.
func (l *Lease) Done() <-chan struct{} {
	return l.done
}

// Expired reports whether the deadline release has run.
func (l *Lease) Expired() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == leaseExpired
}

// Canceled reports whether Cancel stopped the lease before expiry.
func (l *Lease) Canceled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == leaseCanceled
}

// Cancel stops the pending deadline release. The reserved units stay held;
// returning them is up to the caller. It reports false if the lease already
// expired or was cancelled.
func (l *Lease) Cancel() bool {
	l.mu.Lock()
	if l.state != leasePending {
		l.mu.Unlock()
		return false
	}
	l.state = leaseCanceled
	eventID := l.eventID
	l.mu.Unlock()

	l.mgr.sched.Cancel(eventID)
	l.mgr.finish(l)
	return true
}

// expire runs from the scheduler at the deadline.
func (l *Lease) expire() {
	l.mu.Lock()
	if l.state != leasePending {
		l.mu.Unlock()
		return
	}
	l.state = leaseExpired
	l.mu.Unlock()

	l.Pool.Release(l.Amount)
	l.mgr.expired(l)
}
