package core

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/signalsfoundry/usbl-simulator/model"
)

// ErrInvalidNoise is returned for noise parameters that do not describe a
// proper Gaussian (sigma <= 0, or a non-finite mu/sigma).
var ErrInvalidNoise = errors.New("invalid noise parameters")

// NoiseModel perturbs positions with independent Normal(mu, sigma) draws per
// axis. It owns a single random source that advances across calls and is safe
// for concurrent use.
type NoiseModel struct {
	params model.NoiseParameters

	mu   sync.Mutex
	dist distuv.Normal
}

// ValidateNoise reports whether p describes a usable Gaussian.
func ValidateNoise(p model.NoiseParameters) error {
	if math.IsNaN(p.Mu) || math.IsInf(p.Mu, 0) {
		return fmt.Errorf("%w: mu must be finite, got %v", ErrInvalidNoise, p.Mu)
	}
	if !(p.Sigma > 0) || math.IsInf(p.Sigma, 0) {
		return fmt.Errorf("%w: sigma must be > 0, got %v", ErrInvalidNoise, p.Sigma)
	}
	return nil
}

// NewNoiseModel constructs a NoiseModel drawing from src. A nil src uses a
// PCG source seeded from the runtime's random state.
func NewNoiseModel(p model.NoiseParameters, src rand.Source) (*NoiseModel, error) {
	if err := ValidateNoise(p); err != nil {
		return nil, err
	}
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &NoiseModel{
		params: p,
		dist:   distuv.Normal{Mu: p.Mu, Sigma: p.Sigma, Src: src},
	}, nil
}

// NewSeededNoiseModel is a convenience for reproducible runs.
func NewSeededNoiseModel(p model.NoiseParameters, seed uint64) (*NoiseModel, error) {
	return NewNoiseModel(p, rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Params returns the configured noise parameters.
func (m *NoiseModel) Params() model.NoiseParameters {
	return m.params
}

// Perturb returns truth with one independent sample added to each axis.
func (m *NoiseModel) Perturb(truth model.Position) model.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	return model.Position{
		X: truth.X + m.dist.Rand(),
		Y: truth.Y + m.dist.Rand(),
		Z: truth.Z + m.dist.Rand(),
	}
}
