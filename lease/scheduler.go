// Package lease holds pool reservations that are released automatically at a
// deadline.
package lease

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Scheduler runs callbacks at a point in time.
//
// Callbacks run outside the scheduler's own lock, so they may schedule or
// cancel other events.
type Scheduler interface {
	// Schedule registers f to run at 'at' and returns an event ID.
	Schedule(at time.Time, f func()) (id string)

	// Cancel prevents a pending event from running. It reports whether the
	// event was still pending; unknown or already-run IDs return false.
	Cancel(id string) bool

	// Now returns the scheduler's current time.
	Now() time.Time
}

// ClockScheduler fires events from timers of a clock.Clock. With clock.New()
// events follow the wall clock; with clock.NewMock() they fire as the mock is
// advanced.
type ClockScheduler struct {
	clock clock.Clock

	mu      sync.Mutex
	counter uint64
	timers  map[string]*clock.Timer
}

// NewClockScheduler creates a scheduler backed by clk, or by the wall clock
// when clk is nil.
func NewClockScheduler(clk clock.Clock) *ClockScheduler {
	if clk == nil {
		clk = clock.New()
	}
	return &ClockScheduler{
		clock:  clk,
		timers: make(map[string]*clock.Timer),
	}
}

func (s *ClockScheduler) Schedule(at time.Time, f func()) (id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counter++
	id = fmt.Sprintf("ev-%d", s.counter)

	d := at.Sub(s.clock.Now())
	if d < 0 {
		d = 0
	}
	s.timers[id] = s.clock.AfterFunc(d, func() { s.fire(id, f) })
	return id
}

// fire runs f unless the event was cancelled first. Whichever of fire and
// Cancel removes the ID from the index wins.
func (s *ClockScheduler) fire(id string, f func()) {
	s.mu.Lock()
	_, pending := s.timers[id]
	delete(s.timers, id)
	s.mu.Unlock()

	if pending && f != nil {
		f()
	}
}

func (s *ClockScheduler) Cancel(id string) bool {
	s.mu.Lock()
	t, ok := s.timers[id]
	delete(s.timers, id)
	s.mu.Unlock()

	if !ok {
		return false
	}
	t.Stop()
	return true
}

func (s *ClockScheduler) Now() time.Time {
	return s.clock.Now()
}

// Pending returns the number of events that have neither run nor been
// cancelled.
func (s *ClockScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
