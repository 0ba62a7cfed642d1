package sched

import (
	"fmt"
	"sync"
	"time"
)

// FakeEventScheduler is a test implementation of EventScheduler that keeps
// its own notion of simulation time. Tests call Advance or AdvanceTo to move
// time forward and execute due events deterministically.
type FakeEventScheduler struct {
	mu      sync.Mutex
	now     time.Time
	counter uint64
	events  []*scheduledEvent
}

// NewFakeEventScheduler creates a new fake event scheduler starting at the given time.
func NewFakeEventScheduler(start time.Time) *FakeEventScheduler {
	return &FakeEventScheduler{now: start}
}

// Now returns the current fake simulation time.
func (s *FakeEventScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Schedule registers a callback to run at the specified simulation time.
func (s *FakeEventScheduler) Schedule(at time.Time, f func()) (id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counter++
	id = fmt.Sprintf("fake-ev-%d", s.counter)
	insertLocked(&s.events, &scheduledEvent{id: id, when: at, f: f})
	return id
}

// Pending returns the number of events still waiting to run.
func (s *FakeEventScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// NextAt returns the time of the earliest pending event.
func (s *FakeEventScheduler) NextAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return time.Time{}, false
	}
	return s.events[0].when, true
}

// RunDue executes all events whose scheduled time is <= now.
func (s *FakeEventScheduler) RunDue() {
	for {
		s.mu.Lock()
		ev := popDueLocked(&s.events, s.now)
		s.mu.Unlock()
		if ev == nil {
			return
		}
		if ev.f != nil {
			ev.f()
		}
	}
}

// AdvanceTo sets the fake simulation time to t and executes all due events.
// Time is kept monotonic (does not go backwards).
func (s *FakeEventScheduler) AdvanceTo(t time.Time) {
	s.mu.Lock()
	if t.Before(s.now) {
		s.mu.Unlock()
		return
	}
	s.now = t
	s.mu.Unlock()

	s.RunDue()
}

// Advance moves fake time forward by d and executes all due events.
func (s *FakeEventScheduler) Advance(d time.Duration) {
	s.AdvanceTo(s.Now().Add(d))
}
