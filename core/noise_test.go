package core

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/stat"

	"github.com/signalsfoundry/usbl-simulator/model"
)

func TestNewNoiseModel_RejectsInvalidSigma(t *testing.T) {
	for _, sigma := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err := NewNoiseModel(model.NoiseParameters{Mu: 0, Sigma: sigma}, nil)
		if !errors.Is(err, ErrInvalidNoise) {
			t.Errorf("sigma %v: expected ErrInvalidNoise, got %v", sigma, err)
		}
	}
}

func TestNewNoiseModel_RejectsNonFiniteMu(t *testing.T) {
	_, err := NewNoiseModel(model.NoiseParameters{Mu: math.NaN(), Sigma: 1}, nil)
	if !errors.Is(err, ErrInvalidNoise) {
		t.Fatalf("expected ErrInvalidNoise, got %v", err)
	}
}

func TestNoiseModel_SameSeedReproduces(t *testing.T) {
	p := model.DefaultNoiseParameters()
	a, err := NewSeededNoiseModel(p, 42)
	if err != nil {
		t.Fatalf("NewSeededNoiseModel: %v", err)
	}
	b, err := NewSeededNoiseModel(p, 42)
	if err != nil {
		t.Fatalf("NewSeededNoiseModel: %v", err)
	}

	truth := model.Position{X: 10, Y: -3, Z: -50}
	for i := 0; i < 5; i++ {
		if pa, pb := a.Perturb(truth), b.Perturb(truth); pa != pb {
			t.Fatalf("sample %d differs: %v vs %v", i, pa, pb)
		}
	}
}

func TestNoiseModel_SuccessiveSamplesDiffer(t *testing.T) {
	m, err := NewSeededNoiseModel(model.DefaultNoiseParameters(), 7)
	if err != nil {
		t.Fatalf("NewSeededNoiseModel: %v", err)
	}
	truth := model.Position{}
	first := m.Perturb(truth)
	second := m.Perturb(truth)
	if first == second {
		t.Fatalf("expected independent samples, got identical %v", first)
	}
	if first.X == first.Y && first.Y == first.Z {
		t.Fatalf("axes should be sampled independently, got %v", first)
	}
}

func TestNoiseModel_MomentsPerAxis(t *testing.T) {
	p := model.NoiseParameters{Mu: 2, Sigma: 0.5}
	m, err := NewSeededNoiseModel(p, 1234)
	if err != nil {
		t.Fatalf("NewSeededNoiseModel: %v", err)
	}

	const n = 20000
	xs := make([]float64, n)
	ys := make([]float64, n)
	zs := make([]float64, n)
	truth := model.Position{X: 100, Y: 200, Z: -300}
	for i := 0; i < n; i++ {
		s := m.Perturb(truth)
		xs[i], ys[i], zs[i] = s.X-truth.X, s.Y-truth.Y, s.Z-truth.Z
	}

	for axis, samples := range map[string][]float64{"x": xs, "y": ys, "z": zs} {
		mean, std := stat.MeanStdDev(samples, nil)
		if math.Abs(mean-p.Mu) > 0.05 {
			t.Errorf("%s mean = %v, want ~%v", axis, mean, p.Mu)
		}
		if math.Abs(std-p.Sigma) > 0.05 {
			t.Errorf("%s std = %v, want ~%v", axis, std, p.Sigma)
		}
	}
	if c := stat.Correlation(xs, ys, nil); math.Abs(c) > 0.05 {
		t.Errorf("x/y correlation = %v, want ~0", c)
	}
}
