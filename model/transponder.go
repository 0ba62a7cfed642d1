package model

// Identity names one transponder node and the transceiver it answers to.
// It is assigned once at construction and never mutated.
type Identity struct {
	Namespace         string
	TransponderDevice string
	TransponderID     string
	TransceiverDevice string
	TransceiverID     string
}

// NoiseParameters describe the Gaussian perturbation applied independently to
// each axis of a reported position.
type NoiseParameters struct {
	Mu    float64
	Sigma float64
}

// DefaultNoiseParameters returns the zero-mean, unit-variance noise used when a
// node does not configure its own.
func DefaultNoiseParameters() NoiseParameters {
	return NoiseParameters{Mu: 0, Sigma: 1}
}
