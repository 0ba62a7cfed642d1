// Package sched runs deferred callbacks at simulation times.
package sched

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/usbl-simulator/timectrl"
)

// EventScheduler schedules callbacks to run at specific simulation times
// based on a SimClock. Transponders use it to hold a response for the acoustic
// propagation delay without blocking the goroutine that delivered the ping.
//
// The simulation loop advances the clock and calls RunDue after each advance.
type EventScheduler interface {
	// Schedule registers a callback f to run at simulation time 'at'.
	// It returns an opaque event ID.
	Schedule(at time.Time, f func()) (id string)

	// Now returns the current simulation time, usually delegated to the underlying SimClock.
	Now() time.Time

	// RunDue executes all events whose scheduled time is <= Now().
	// It is safe to call multiple times; already-run events never run again.
	RunDue()

	// Pending returns the number of events that have not run yet.
	Pending() int
}

type scheduledEvent struct {
	id   string
	when time.Time
	f    func()
}

// eventScheduler stores events ordered by scheduled time and reads the
// current time from a SimClock.
type eventScheduler struct {
	clock timectrl.SimClock

	mu      sync.Mutex
	counter uint64
	events  []*scheduledEvent // ordered by 'when' (earliest first)
}

// NewEventScheduler creates a new event scheduler backed by the given SimClock.
func NewEventScheduler(clock timectrl.SimClock) EventScheduler {
	return &eventScheduler{clock: clock}
}

// Schedule registers a callback to run at the specified simulation time.
// Events with equal times run in scheduling order.
func (s *eventScheduler) Schedule(at time.Time, f func()) (id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counter++
	id = fmt.Sprintf("ev-%d", s.counter)
	insertLocked(&s.events, &scheduledEvent{id: id, when: at, f: f})
	return id
}

// insertLocked inserts ev keeping events ordered by time, after any event
// already scheduled for the same instant.
func insertLocked(events *[]*scheduledEvent, ev *scheduledEvent) {
	evs := *events
	idx := sort.Search(len(evs), func(i int) bool {
		return evs[i].when.After(ev.when)
	})
	evs = append(evs, nil)
	copy(evs[idx+1:], evs[idx:])
	evs[idx] = ev
	*events = evs
}

// Now returns the current simulation time from the underlying clock.
func (s *eventScheduler) Now() time.Time {
	return s.clock.Now()
}

// Pending returns the number of events still waiting to run.
func (s *eventScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// popDueLocked removes and returns the earliest event due at now, or nil.
// Caller must hold s.mu lock.
func popDueLocked(events *[]*scheduledEvent, now time.Time) *scheduledEvent {
	evs := *events
	if len(evs) == 0 || evs[0].when.After(now) {
		return nil
	}
	ev := evs[0]
	evs[0] = nil
	*events = evs[1:]
	return ev
}

// RunDue executes all events whose scheduled time is <= Now().
func (s *eventScheduler) RunDue() {
	for {
		now := s.clock.Now()
		s.mu.Lock()
		ev := popDueLocked(&s.events, now)
		s.mu.Unlock()
		if ev == nil {
			return
		}

		// Execute callback OUTSIDE the lock to allow re-entrant scheduling.
		if ev.f != nil {
			ev.f()
		}
	}
}
