package core

import (
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/usbl-simulator/internal/sched"
	"github.com/signalsfoundry/usbl-simulator/kb"
)

// SimulationEngine advances the world on each tick: bodies move according to
// their motion models, then every deferred event that has come due runs.
type SimulationEngine struct {
	KB        *kb.KnowledgeBase
	Scheduler sched.EventScheduler

	epoch time.Time

	mu            sync.Mutex
	models        map[string]MotionModel
	tickListeners []func(time.Time)
}

func NewSimulationEngine(world *kb.KnowledgeBase, scheduler sched.EventScheduler, epoch time.Time) *SimulationEngine {
	return &SimulationEngine{
		KB:        world,
		Scheduler: scheduler,
		epoch:     epoch,
		models:    make(map[string]MotionModel),
	}
}

// TrackBodies attaches a motion model to every body currently in the KB that
// does not have one yet, and returns the number of newly tracked bodies.
func (se *SimulationEngine) TrackBodies() int {
	se.mu.Lock()
	defer se.mu.Unlock()
	added := 0
	for _, b := range se.KB.ListBodies() {
		if _, ok := se.models[b.ID]; ok {
			continue
		}
		b := b
		se.models[b.ID] = NewMotionModel(se.epoch, &b)
		added++
	}
	return added
}

func (se *SimulationEngine) RegisterTickListener(fn func(time.Time)) {
	se.mu.Lock()
	defer se.mu.Unlock()
	se.tickListeners = append(se.tickListeners, fn)
}

// Step moves tracked bodies to their positions at simTime, runs due events
// and notifies tick listeners. Bodies that disappeared from the KB are
// dropped from tracking.
func (se *SimulationEngine) Step(simTime time.Time) {
	se.mu.Lock()
	ids := make([]string, 0, len(se.models))
	for id := range se.models {
		ids = append(ids, id)
	}
	listeners := append([]func(time.Time){}, se.tickListeners...)
	se.mu.Unlock()
	sort.Strings(ids)

	for _, id := range ids {
		se.mu.Lock()
		m := se.models[id]
		se.mu.Unlock()

		b, err := se.KB.GetBody(id)
		if err != nil {
			se.mu.Lock()
			delete(se.models, id)
			se.mu.Unlock()
			continue
		}
		before := b.Position
		m.UpdatePosition(simTime, &b)
		if b.Position != before {
			_ = se.KB.UpdateBodyPosition(id, b.Position)
		}
	}

	if se.Scheduler != nil {
		se.Scheduler.RunDue()
	}

	for _, fn := range listeners {
		fn(simTime)
	}
}
