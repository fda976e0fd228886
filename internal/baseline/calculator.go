package baseline

import (
	"math"
	"time"

	"github.com/vitalsense/pulsewatch/pkg/models"
)

// Calculator derives baselines from historical daily samples
type Calculator struct {
	minSamples int
}

// NewCalculator creates new baseline calculator
func NewCalculator(minSamples int) *Calculator {
	return &Calculator{minSamples: minSamples}
}

// Compute returns the baseline for one (athlete, parameter) history window.
// Returns nil when fewer than minSamples values are available - that is a
// valid "not enough data yet" result, not an error; evaluation skips the
// parameter until history accumulates.
func (c *Calculator) Compute(athleteID, parameterID int64, samples []float64) *models.Baseline {
	if len(samples) < c.minSamples {
		return nil
	}

	mean := average(samples)

	// Sample (n-1) standard deviation: baselines are estimated from a
	// sampled history window, not the full population
	var sumSq float64
	for _, v := range samples {
		d := v - mean
		sumSq += d * d
	}
	sigma := math.Sqrt(sumSq / float64(len(samples)-1))

	return &models.Baseline{
		AthleteID:   athleteID,
		ParameterID: parameterID,
		Mean:        mean,
		Sigma:       sigma,
		SampleCount: len(samples),
		ComputedAt:  time.Now().UTC(),
	}
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}
