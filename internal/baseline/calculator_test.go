package baseline

import (
	"math"
	"testing"
)

func TestCompute_MinimumSamples(t *testing.T) {
	calc := NewCalculator(14)

	t.Run("below minimum returns absent", func(t *testing.T) {
		samples := make([]float64, 13)
		for i := range samples {
			samples[i] = 50
		}

		if b := calc.Compute(1, 1, samples); b != nil {
			t.Errorf("expected nil baseline for %d samples, got %+v", len(samples), b)
		}
	})

	t.Run("empty history returns absent", func(t *testing.T) {
		if b := calc.Compute(1, 1, nil); b != nil {
			t.Error("expected nil baseline for empty history")
		}
	})

	t.Run("at minimum returns baseline", func(t *testing.T) {
		samples := make([]float64, 14)
		for i := range samples {
			samples[i] = 50
		}

		b := calc.Compute(1, 1, samples)
		if b == nil {
			t.Fatal("expected baseline at minimum sample count")
		}
		if b.SampleCount != 14 {
			t.Errorf("expected sample count 14, got %d", b.SampleCount)
		}
	})
}

func TestCompute_Statistics(t *testing.T) {
	calc := NewCalculator(2)

	t.Run("mean and sample stddev", func(t *testing.T) {
		// mean = 5, sample variance = ((-3)^2+(-1)^2+1^2+3^2)/3 = 20/3
		samples := []float64{2, 4, 6, 8}

		b := calc.Compute(3, 7, samples)
		if b == nil {
			t.Fatal("expected baseline")
		}

		if b.Mean != 5 {
			t.Errorf("expected mean 5, got %v", b.Mean)
		}

		wantSigma := math.Sqrt(20.0 / 3.0)
		if math.Abs(b.Sigma-wantSigma) > 1e-9 {
			t.Errorf("expected sigma %v, got %v", wantSigma, b.Sigma)
		}

		if b.AthleteID != 3 || b.ParameterID != 7 {
			t.Errorf("baseline keyed wrong: athlete %d parameter %d", b.AthleteID, b.ParameterID)
		}
	})

	t.Run("constant history yields zero sigma", func(t *testing.T) {
		b := calc.Compute(1, 1, []float64{60, 60, 60, 60})
		if b == nil {
			t.Fatal("expected baseline")
		}
		if b.Sigma != 0 {
			t.Errorf("expected zero sigma for constant history, got %v", b.Sigma)
		}
	})
}
