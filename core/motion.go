package core

import (
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/usbl-simulator/model"
)

// MotionModel updates a body's position for a given simulation time.
type MotionModel interface {
	UpdatePosition(simTime time.Time, b *model.Body)
}

// StaticMotionModel leaves the body's position unchanged.
type StaticMotionModel struct{}

// UpdatePosition for static motion does nothing.
func (m *StaticMotionModel) UpdatePosition(simTime time.Time, b *model.Body) {
	// no-op
}

// DriftMotionModel moves a body in a straight line at constant velocity from
// the position it had at the epoch.
type DriftMotionModel struct {
	epoch    time.Time
	origin   model.Position
	velocity model.Position
}

// NewDriftMotionModel anchors the drift at the body's current position.
func NewDriftMotionModel(epoch time.Time, b *model.Body) *DriftMotionModel {
	return &DriftMotionModel{
		epoch:    epoch,
		origin:   b.Position,
		velocity: b.Velocity,
	}
}

// UpdatePosition sets b.Position to origin + velocity * (simTime - epoch).
// Times before the epoch clamp to the origin.
func (m *DriftMotionModel) UpdatePosition(simTime time.Time, b *model.Body) {
	dt := simTime.Sub(m.epoch).Seconds()
	if dt < 0 {
		dt = 0
	}
	b.Position = r3.Add(m.origin, r3.Scale(dt, m.velocity))
}

// NewMotionModel chooses an appropriate MotionModel for the body.
// MotionSourceDrift with a non-zero velocity drifts, everything else is static.
func NewMotionModel(epoch time.Time, b *model.Body) MotionModel {
	if b.MotionSource == model.MotionSourceDrift && b.Velocity != (model.Position{}) {
		return NewDriftMotionModel(epoch, b)
	}
	return &StaticMotionModel{}
}
