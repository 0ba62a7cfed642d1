package core

const (
	// ReferenceSoundSpeed is the speed of sound in sea water at 10 °C at the
	// surface, in metres per second.
	ReferenceSoundSpeed = 1540.4
	// ReferenceTemperature is the temperature at which ReferenceSoundSpeed holds.
	ReferenceTemperature = 10.0

	depthCoefficient       = 17.0 // m/s per km of depth
	temperatureCoefficient = 4.0  // m/s per °C
)

// SoundSpeed returns the first-order speed of sound in metres per second for
// the given water temperature and depth.
//
// depth is the body's Z coordinate exactly as reported by the world and is
// not sign-corrected: the contribution is depth/1000*17.
// See https://dosits.org/tutorials/science/tutorial-speed/.
func SoundSpeed(temperatureC, depth float64) float64 {
	return ReferenceSoundSpeed +
		depth/1000*depthCoefficient +
		(temperatureC-ReferenceTemperature)*temperatureCoefficient
}
