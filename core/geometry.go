package core

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/usbl-simulator/model"
)

// ErrInvalidSoundSpeed is returned when a propagation delay is requested with
// a sound speed that is zero, negative or not finite.
var ErrInvalidSoundSpeed = errors.New("sound speed must be positive and finite")

// ErrDelayOutOfRange is returned when a time of flight does not fit in a
// time.Duration.
var ErrDelayOutOfRange = errors.New("propagation delay out of range")

// maxDelaySeconds is the longest delay a time.Duration can hold.
var maxDelaySeconds = float64(math.MaxInt64) / float64(time.Second)

// Distance returns the straight-line distance between two positions in metres.
func Distance(a, b model.Position) float64 {
	return r3.Norm(r3.Sub(a, b))
}

// PropagationDelay returns the one-way acoustic time of flight over distance
// metres at speed metres per second.
func PropagationDelay(distance, speed float64) (time.Duration, error) {
	if speed <= 0 || math.IsNaN(speed) || math.IsInf(speed, 0) {
		return 0, fmt.Errorf("%w: got %v m/s", ErrInvalidSoundSpeed, speed)
	}
	if distance < 0 || math.IsNaN(distance) || math.IsInf(distance, 0) {
		return 0, fmt.Errorf("invalid distance %v m", distance)
	}
	seconds := distance / speed
	if seconds >= maxDelaySeconds {
		return 0, fmt.Errorf("%w: %v m at %v m/s", ErrDelayOutOfRange, distance, speed)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}
