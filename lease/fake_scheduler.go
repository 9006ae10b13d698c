package lease

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// FakeScheduler keeps its own notion of time and runs due events only when a
// test moves time forward with Advance or AdvanceTo. Events run synchronously
// on the caller's goroutine, in deadline order.
type FakeScheduler struct {
	mu      sync.Mutex
	now     time.Time
	counter uint64

	// ordered by when, earliest first; equal deadlines keep schedule order
	events []*fakeEvent
	index  map[string]*fakeEvent
}

type fakeEvent struct {
	id   string
	when time.Time
	f    func()
}

// NewFakeScheduler creates a fake scheduler starting at start.
func NewFakeScheduler(start time.Time) *FakeScheduler {
	return &FakeScheduler{
		now:   start,
		index: make(map[string]*fakeEvent),
	}
}

func (s *FakeScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *FakeScheduler) Schedule(at time.Time, f func()) (id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counter++
	id = fmt.Sprintf("fake-ev-%d", s.counter)
	ev := &fakeEvent{id: id, when: at, f: f}

	i := sort.Search(len(s.events), func(i int) bool {
		return s.events[i].when.After(at)
	})
	s.events = append(s.events, nil)
	copy(s.events[i+1:], s.events[i:])
	s.events[i] = ev
	s.index[id] = ev
	return id
}

func (s *FakeScheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.index[id]
	if !ok {
		return false
	}
	delete(s.index, id)
	for i, existing := range s.events {
		if existing == ev {
			s.events = append(s.events[:i], s.events[i+1:]...)
			break
		}
	}
	return true
}

// Pending returns the number of events waiting to run.
func (s *FakeScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// RunDue executes every event whose deadline is not after the current fake
// time, including events scheduled by callbacks that are already due.
func (s *FakeScheduler) RunDue() {
	for {
		s.mu.Lock()
		if len(s.events) == 0 || s.events[0].when.After(s.now) {
			s.mu.Unlock()
			return
		}
		ev := s.events[0]
		s.events = s.events[1:]
		delete(s.index, ev.id)
		s.mu.Unlock()

		if ev.f != nil {
			ev.f()
		}
	}
}

// AdvanceTo moves fake time to t and runs due events. Time never goes
// backwards.
func (s *FakeScheduler) AdvanceTo(t time.Time) {
	s.mu.Lock()
	if t.Before(s.now) {
		s.mu.Unlock()
		return
	}
	s.now = t
	s.mu.Unlock()

	s.RunDue()
}

// Advance moves fake time forward by d.
func (s *FakeScheduler) Advance(d time.Duration) {
	s.AdvanceTo(s.Now().Add(d))
}
