package transponder

import (
	"sync"

	"github.com/signalsfoundry/usbl-simulator/core"
)

// Environment is a snapshot of a transponder's acoustic environment.
type Environment struct {
	TemperatureC float64
	// Depth is the self Z coordinate used for the last sound speed computation.
	Depth float64
	// SoundSpeed is derived from TemperatureC and Depth, in metres per second.
	SoundSpeed float64
}

// environment guards the state shared between the temperature channel (the
// only writer) and the ping channels (readers).
type environment struct {
	mu    sync.RWMutex
	state Environment
}

func newEnvironment(temperatureC, depth float64) *environment {
	env := &environment{}
	env.update(temperatureC, depth)
	return env
}

// update stores the temperature and recomputes the sound speed exactly once.
func (e *environment) update(temperatureC, depth float64) Environment {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = Environment{
		TemperatureC: temperatureC,
		Depth:        depth,
		SoundSpeed:   core.SoundSpeed(temperatureC, depth),
	}
	return e.state
}

func (e *environment) snapshot() Environment {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}
