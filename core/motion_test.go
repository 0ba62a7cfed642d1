package core

import (
	"testing"
	"time"

	"github.com/signalsfoundry/usbl-simulator/model"
)

func TestStaticMotionModelKeepsPosition(t *testing.T) {
	b := &model.Body{ID: "box", Position: model.Position{X: 1, Y: 2, Z: -3}}
	m := NewMotionModel(time.Unix(0, 0), b)
	if _, ok := m.(*StaticMotionModel); !ok {
		t.Fatalf("expected StaticMotionModel, got %T", m)
	}

	m.UpdatePosition(time.Unix(100, 0), b)
	if b.Position != (model.Position{X: 1, Y: 2, Z: -3}) {
		t.Fatalf("static body moved to %v", b.Position)
	}
}

func TestDriftMotionModelMovesLinearly(t *testing.T) {
	epoch := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	b := &model.Body{
		ID:           "auv",
		Position:     model.Position{X: 0, Y: 0, Z: -10},
		Velocity:     model.Position{X: 1.5, Y: 0, Z: -0.5},
		MotionSource: model.MotionSourceDrift,
	}
	m := NewMotionModel(epoch, b)
	if _, ok := m.(*DriftMotionModel); !ok {
		t.Fatalf("expected DriftMotionModel, got %T", m)
	}

	m.UpdatePosition(epoch.Add(10*time.Second), b)
	want := model.Position{X: 15, Y: 0, Z: -15}
	if b.Position != want {
		t.Fatalf("position after 10s = %v, want %v", b.Position, want)
	}

	// Updates are relative to the epoch, not cumulative.
	m.UpdatePosition(epoch.Add(10*time.Second), b)
	if b.Position != want {
		t.Fatalf("repeated update drifted to %v", b.Position)
	}
}

func TestDriftMotionModelClampsBeforeEpoch(t *testing.T) {
	epoch := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	b := &model.Body{
		Position:     model.Position{X: 5},
		Velocity:     model.Position{X: 1},
		MotionSource: model.MotionSourceDrift,
	}
	m := NewDriftMotionModel(epoch, b)
	m.UpdatePosition(epoch.Add(-time.Minute), b)
	if b.Position != (model.Position{X: 5}) {
		t.Fatalf("position before epoch = %v, want origin", b.Position)
	}
}
