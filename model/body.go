package model

import "gonum.org/v1/gonum/spatial/r3"

// Position is a world-frame position in metres. Z points up; a body below the
// surface has a negative Z.
type Position = r3.Vec

// MotionSource indicates how a body's position evolves over simulation time.
type MotionSource int

const (
	MotionSourceStatic MotionSource = iota
	MotionSourceDrift               // constant velocity from the scenario start
)

// Body represents a rigid body in the simulated world (transponder hull,
// transceiver vessel, target box, ...).
type Body struct {
	ID   string
	Name string
	Type string // e.g. "TRANSPONDER", "TRANSCEIVER", "TARGET"

	Position     Position
	Velocity     Position // metres per second; only used by MotionSourceDrift
	MotionSource MotionSource
}
