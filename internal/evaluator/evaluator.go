package evaluator

import (
	"fmt"
	"math"
	"time"

	"github.com/vitalsense/pulsewatch/internal/rules"
	"github.com/vitalsense/pulsewatch/pkg/models"
)

// MatchPolicy decides how determinate rule outcomes aggregate into a verdict
type MatchPolicy string

const (
	// PolicyAll requires every determinate rule to match (default).
	// Indeterminate rules are ignored for the aggregation; a symptom with
	// only indeterminate rules is never present.
	PolicyAll MatchPolicy = "all"
	// PolicyAny requires at least one determinate rule to match
	PolicyAny MatchPolicy = "any"
)

// ParsePolicy validates a policy string from configuration
func ParsePolicy(raw string) (MatchPolicy, error) {
	switch MatchPolicy(raw) {
	case PolicyAll, PolicyAny:
		return MatchPolicy(raw), nil
	default:
		return "", fmt.Errorf("unknown match policy %q", raw)
	}
}

// Tolerances defines the "=" operator band: a measurement equals the
// threshold when |measured - threshold| <= max(Abs, Sigma*baselineSigma)
type Tolerances struct {
	Abs   float64
	Sigma float64
}

// Evaluator computes per-symptom verdicts from one day of measurements.
// It is pure: no I/O, no clock reads, deterministic for identical inputs.
type Evaluator struct {
	catalog *rules.Catalog
	policy  MatchPolicy
	tol     Tolerances
}

// New creates an evaluator over one catalog snapshot
func New(catalog *rules.Catalog, policy MatchPolicy, tol Tolerances) *Evaluator {
	return &Evaluator{
		catalog: catalog,
		policy:  policy,
		tol:     tol,
	}
}

// outcome of evaluating a single rule
type outcome int

const (
	outcomeIndeterminate outcome = iota // missing baseline or measurement
	outcomeMatched
	outcomeFailed
)

// Evaluate produces one verdict per symptom in the catalog.
// baselines is keyed by parameter id, measurements by parameter key; both may
// be partial - missing entries make the affected rules indeterminate.
func (e *Evaluator) Evaluate(
	athleteID int64,
	day time.Time,
	baselines map[int64]models.Baseline,
	measurements map[string]float64,
) []models.Verdict {
	symptoms := e.catalog.Symptoms()
	verdicts := make([]models.Verdict, 0, len(symptoms))

	for _, symptom := range symptoms {
		verdicts = append(verdicts, e.evaluateSymptom(athleteID, day, symptom, baselines, measurements))
	}

	return verdicts
}

// evaluateSymptom aggregates the symptom's ruleset into one verdict
func (e *Evaluator) evaluateSymptom(
	athleteID int64,
	day time.Time,
	symptom models.Symptom,
	baselines map[int64]models.Baseline,
	measurements map[string]float64,
) models.Verdict {
	verdict := models.Verdict{
		AthleteID: athleteID,
		SymptomID: symptom.ID,
		Day:       day,
	}

	maxExceedance := 0.0

	for _, rule := range e.catalog.RulesForSymptom(symptom.ID) {
		result, exceedance := e.evaluateRule(rule, baselines, measurements)

		switch result {
		case outcomeIndeterminate:
			continue
		case outcomeMatched:
			verdict.DeterminateRules++
			verdict.MatchedRules++
			if exceedance > maxExceedance {
				maxExceedance = exceedance
			}
		case outcomeFailed:
			verdict.DeterminateRules++
		}
	}

	// No determinate rule means no evidence either way: never present
	if verdict.DeterminateRules == 0 {
		return verdict
	}

	switch e.policy {
	case PolicyAny:
		verdict.Present = verdict.MatchedRules > 0
	default: // PolicyAll
		verdict.Present = verdict.MatchedRules == verdict.DeterminateRules && verdict.MatchedRules > 0
	}

	if verdict.Present {
		verdict.Severity = scaleSeverity(symptom.BaseSeverity, maxExceedance)
	}

	return verdict
}

// evaluateRule compares one measurement against the athlete's baseline.
// The second return value is the sigma-multiple overshoot past the rule
// threshold, used for severity scaling; it is 0 for failed, indeterminate
// and equality outcomes.
func (e *Evaluator) evaluateRule(
	rule models.Rule,
	baselines map[int64]models.Baseline,
	measurements map[string]float64,
) (outcome, float64) {
	baseline, ok := baselines[rule.ParameterID]
	if !ok {
		return outcomeIndeterminate, 0
	}

	measured, ok := measurements[e.catalog.ParameterKey(rule.ParameterID)]
	if !ok {
		return outcomeIndeterminate, 0
	}

	threshold := baseline.Mean + rule.Threshold*baseline.Sigma

	switch rule.Operator {
	case models.OperatorGreaterThan:
		if measured > threshold {
			return outcomeMatched, exceedance(measured-threshold, baseline.Sigma)
		}
	case models.OperatorLessThan:
		if measured < threshold {
			return outcomeMatched, exceedance(threshold-measured, baseline.Sigma)
		}
	case models.OperatorEqual:
		band := math.Max(e.tol.Abs, e.tol.Sigma*baseline.Sigma)
		if math.Abs(measured-threshold) <= band {
			return outcomeMatched, 0
		}
	}

	return outcomeFailed, 0
}

// exceedance converts an absolute overshoot into sigma multiples
func exceedance(overshoot, sigma float64) float64 {
	if sigma <= 0 {
		return 0
	}
	return overshoot / sigma
}

// scaleSeverity derives the verdict severity from the symptom's base severity
// and the worst overshoot. Monotonic in exceedance; equal to base severity
// when the worst matched rule sits exactly at its threshold.
func scaleSeverity(base, maxExceedance float64) float64 {
	return base * (1 + maxExceedance)
}
