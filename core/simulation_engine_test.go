package core

import (
	"testing"
	"time"

	"github.com/signalsfoundry/usbl-simulator/internal/sched"
	"github.com/signalsfoundry/usbl-simulator/kb"
	"github.com/signalsfoundry/usbl-simulator/model"
	"github.com/signalsfoundry/usbl-simulator/timectrl"
)

func TestSimulationEngine_StepMovesBodiesBeforeEvents(t *testing.T) {
	epoch := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	world := kb.NewKnowledgeBase()
	if err := world.AddBody(&model.Body{
		ID:           "vehicle",
		Velocity:     model.Position{X: 2},
		MotionSource: model.MotionSourceDrift,
	}); err != nil {
		t.Fatalf("AddBody: %v", err)
	}
	if err := world.AddBody(&model.Body{ID: "box", Position: model.Position{Y: 5}}); err != nil {
		t.Fatalf("AddBody: %v", err)
	}

	clock := timectrl.NewTimeController(epoch, time.Second, timectrl.Accelerated)
	scheduler := sched.NewEventScheduler(clock)
	engine := NewSimulationEngine(world, scheduler, epoch)
	if n := engine.TrackBodies(); n != 2 {
		t.Fatalf("expected 2 tracked bodies, got %d", n)
	}
	if n := engine.TrackBodies(); n != 0 {
		t.Fatalf("expected no new bodies, got %d", n)
	}

	var seenX float64
	scheduler.Schedule(epoch.Add(3*time.Second), func() {
		pos, _ := world.WorldPosition("vehicle")
		seenX = pos.X
	})

	ticks := 0
	engine.RegisterTickListener(func(time.Time) { ticks++ })

	at := epoch.Add(3 * time.Second)
	clock.SetTime(at)
	engine.Step(at)

	if seenX != 6 {
		t.Fatalf("event saw vehicle at x=%v, want 6", seenX)
	}
	box, _ := world.WorldPosition("box")
	if box != (model.Position{Y: 5}) {
		t.Fatalf("static body moved to %v", box)
	}
	if scheduler.Pending() != 0 {
		t.Fatalf("expected the due event to have run")
	}
	if ticks != 1 {
		t.Fatalf("expected one tick notification, got %d", ticks)
	}
}
