package evaluator

import (
	"testing"
	"time"

	"github.com/vitalsense/pulsewatch/internal/rules"
	"github.com/vitalsense/pulsewatch/pkg/models"
)

var testDay = time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

func testTolerances() Tolerances {
	return Tolerances{Abs: 1e-6, Sigma: 0.1}
}

// catalogWith builds a single-symptom catalog for the given rules
func catalogWith(symptom models.Symptom, ruleList ...models.Rule) *rules.Catalog {
	params := []models.Parameter{
		{ID: 1, Key: "resting_hr", Label: "Resting Heart Rate"},
		{ID: 2, Key: "hrv", Label: "Heart Rate Variability"},
	}
	return rules.NewCatalog(params, []models.Symptom{symptom}, map[int64][]models.Rule{
		symptom.ID: ruleList,
	})
}

func TestEvaluate_GreaterThanThreshold(t *testing.T) {
	symptom := models.Symptom{ID: 10, Key: "elevated_hr", BaseSeverity: 3}
	catalog := catalogWith(symptom, models.Rule{ID: 1, ParameterID: 1, Operator: models.OperatorGreaterThan, Threshold: 2})

	e := New(catalog, PolicyAll, testTolerances())
	baselines := map[int64]models.Baseline{1: {AthleteID: 7, ParameterID: 1, Mean: 50, Sigma: 5}}

	t.Run("measurement above mean+2sigma matches", func(t *testing.T) {
		verdicts := e.Evaluate(7, testDay, baselines, map[string]float64{"resting_hr": 61})
		if len(verdicts) != 1 {
			t.Fatalf("expected 1 verdict, got %d", len(verdicts))
		}
		if !verdicts[0].Present {
			t.Error("expected symptom present for measurement 61 > 60")
		}
	})

	t.Run("measurement at threshold does not match", func(t *testing.T) {
		verdicts := e.Evaluate(7, testDay, baselines, map[string]float64{"resting_hr": 60})
		if verdicts[0].Present {
			t.Error("expected symptom absent for measurement 60 (threshold is strict)")
		}
	})
}

func TestEvaluate_LessThanNegativeSigma(t *testing.T) {
	// threshold = mean - 1*sigma = 45
	symptom := models.Symptom{ID: 11, Key: "depressed_hrv", BaseSeverity: 2}
	catalog := catalogWith(symptom, models.Rule{ID: 2, ParameterID: 1, Operator: models.OperatorLessThan, Threshold: -1})

	e := New(catalog, PolicyAll, testTolerances())
	baselines := map[int64]models.Baseline{1: {Mean: 50, Sigma: 5}}

	verdicts := e.Evaluate(7, testDay, baselines, map[string]float64{"resting_hr": 44})
	if !verdicts[0].Present {
		t.Error("expected symptom present for measurement below mean-sigma")
	}

	verdicts = e.Evaluate(7, testDay, baselines, map[string]float64{"resting_hr": 45})
	if verdicts[0].Present {
		t.Error("expected symptom absent for measurement at mean-sigma")
	}
}

func TestEvaluate_IndeterminateRules(t *testing.T) {
	symptom := models.Symptom{ID: 12, Key: "overtraining", BaseSeverity: 4}
	catalog := catalogWith(symptom,
		models.Rule{ID: 3, ParameterID: 1, Operator: models.OperatorGreaterThan, Threshold: 2},
		models.Rule{ID: 4, ParameterID: 2, Operator: models.OperatorLessThan, Threshold: -2},
	)

	e := New(catalog, PolicyAll, testTolerances())

	t.Run("indeterminate rule is ignored for the AND", func(t *testing.T) {
		// hrv baseline missing, resting_hr rule matches
		baselines := map[int64]models.Baseline{1: {Mean: 50, Sigma: 5}}
		verdicts := e.Evaluate(7, testDay, baselines, map[string]float64{"resting_hr": 65, "hrv": 30})

		if !verdicts[0].Present {
			t.Error("expected present: the only determinate rule matched")
		}
		if verdicts[0].DeterminateRules != 1 {
			t.Errorf("expected 1 determinate rule, got %d", verdicts[0].DeterminateRules)
		}
	})

	t.Run("missing measurement makes rule indeterminate", func(t *testing.T) {
		baselines := map[int64]models.Baseline{
			1: {Mean: 50, Sigma: 5},
			2: {Mean: 80, Sigma: 10},
		}
		verdicts := e.Evaluate(7, testDay, baselines, map[string]float64{"resting_hr": 65})

		if !verdicts[0].Present {
			t.Error("expected present: hrv measurement missing, hr rule matched")
		}
	})

	t.Run("all rules indeterminate is never present", func(t *testing.T) {
		verdicts := e.Evaluate(7, testDay, map[int64]models.Baseline{}, map[string]float64{})

		if verdicts[0].Present {
			t.Error("expected absent: no data must not produce a false positive")
		}
		if verdicts[0].DeterminateRules != 0 {
			t.Errorf("expected 0 determinate rules, got %d", verdicts[0].DeterminateRules)
		}
	})

	t.Run("one determinate failure blocks under all policy", func(t *testing.T) {
		baselines := map[int64]models.Baseline{
			1: {Mean: 50, Sigma: 5},
			2: {Mean: 80, Sigma: 10},
		}
		// hr matches, hrv does not (45 is not < 60)
		verdicts := e.Evaluate(7, testDay, baselines, map[string]float64{"resting_hr": 65, "hrv": 65})

		if verdicts[0].Present {
			t.Error("expected absent: a determinate rule failed under policy all")
		}
	})
}

func TestEvaluate_AnyPolicy(t *testing.T) {
	symptom := models.Symptom{ID: 13, Key: "strain", BaseSeverity: 2}
	catalog := catalogWith(symptom,
		models.Rule{ID: 5, ParameterID: 1, Operator: models.OperatorGreaterThan, Threshold: 2},
		models.Rule{ID: 6, ParameterID: 2, Operator: models.OperatorLessThan, Threshold: -2},
	)

	e := New(catalog, PolicyAny, testTolerances())
	baselines := map[int64]models.Baseline{
		1: {Mean: 50, Sigma: 5},
		2: {Mean: 80, Sigma: 10},
	}

	// hr matches, hrv fails - any policy still fires
	verdicts := e.Evaluate(7, testDay, baselines, map[string]float64{"resting_hr": 65, "hrv": 65})
	if !verdicts[0].Present {
		t.Error("expected present under any policy with one matching rule")
	}
}

func TestEvaluate_EqualityTolerance(t *testing.T) {
	symptom := models.Symptom{ID: 14, Key: "plateau", BaseSeverity: 1}
	catalog := catalogWith(symptom, models.Rule{ID: 7, ParameterID: 1, Operator: models.OperatorEqual, Threshold: 0})

	e := New(catalog, PolicyAll, Tolerances{Abs: 1e-6, Sigma: 0.1})
	baselines := map[int64]models.Baseline{1: {Mean: 50, Sigma: 5}}

	t.Run("within sigma band matches", func(t *testing.T) {
		// band = 0.1 * 5 = 0.5 around mean
		verdicts := e.Evaluate(7, testDay, baselines, map[string]float64{"resting_hr": 50.4})
		if !verdicts[0].Present {
			t.Error("expected present within tolerance band")
		}
	})

	t.Run("outside band does not match", func(t *testing.T) {
		verdicts := e.Evaluate(7, testDay, baselines, map[string]float64{"resting_hr": 50.6})
		if verdicts[0].Present {
			t.Error("expected absent outside tolerance band")
		}
	})

	t.Run("zero sigma falls back to absolute tolerance", func(t *testing.T) {
		zeroSigma := map[int64]models.Baseline{1: {Mean: 50, Sigma: 0}}
		verdicts := e.Evaluate(7, testDay, zeroSigma, map[string]float64{"resting_hr": 50})
		if !verdicts[0].Present {
			t.Error("expected exact match with zero sigma via absolute tolerance")
		}
	})
}

func TestEvaluate_SeverityScaling(t *testing.T) {
	symptom := models.Symptom{ID: 15, Key: "elevated_hr", BaseSeverity: 3}
	catalog := catalogWith(symptom, models.Rule{ID: 8, ParameterID: 1, Operator: models.OperatorGreaterThan, Threshold: 2})

	e := New(catalog, PolicyAll, testTolerances())
	baselines := map[int64]models.Baseline{1: {Mean: 50, Sigma: 5}}

	// threshold = 60; 65 is 1 sigma past it, 70 is 2 sigmas past it
	mild := e.Evaluate(7, testDay, baselines, map[string]float64{"resting_hr": 65})[0]
	severe := e.Evaluate(7, testDay, baselines, map[string]float64{"resting_hr": 70})[0]

	if mild.Severity != 6 {
		t.Errorf("expected severity 6 (3 * (1+1)), got %v", mild.Severity)
	}
	if severe.Severity != 9 {
		t.Errorf("expected severity 9 (3 * (1+2)), got %v", severe.Severity)
	}
	if severe.Severity <= mild.Severity {
		t.Error("severity must be monotonic in exceedance")
	}

	// Determinism: same inputs, same severity
	again := e.Evaluate(7, testDay, baselines, map[string]float64{"resting_hr": 70})[0]
	if again.Severity != severe.Severity {
		t.Error("severity must be deterministic")
	}
}

func TestParsePolicy(t *testing.T) {
	if _, err := ParsePolicy("all"); err != nil {
		t.Errorf("unexpected error for \"all\": %v", err)
	}
	if _, err := ParsePolicy("any"); err != nil {
		t.Errorf("unexpected error for \"any\": %v", err)
	}
	if _, err := ParsePolicy("most"); err == nil {
		t.Error("expected error for unknown policy")
	}
}
