package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// NewDecimal creates decimal from float64
func NewDecimal(value float64) decimal.Decimal {
	return decimal.NewFromFloat(value)
}

// Operator is the closed set of rule comparison operators
type Operator string

const (
	OperatorGreaterThan Operator = ">"
	OperatorLessThan    Operator = "<"
	OperatorEqual       Operator = "=" // within tolerance band, see evaluator
)

// ParseOperator validates a raw operator string from configuration
func ParseOperator(raw string) (Operator, error) {
	switch Operator(raw) {
	case OperatorGreaterThan, OperatorLessThan, OperatorEqual:
		return Operator(raw), nil
	default:
		return "", fmt.Errorf("unknown operator %q", raw)
	}
}

// TriggerStatus represents triggered symptom lifecycle state
type TriggerStatus string

const (
	StatusUnactioned TriggerStatus = "unactioned"
	StatusDismissed  TriggerStatus = "dismissed"
	StatusResolved   TriggerStatus = "resolved"
)

// IsTerminal reports whether the status allows no further transitions
func (s TriggerStatus) IsTerminal() bool {
	return s == StatusDismissed || s == StatusResolved
}

// Parameter identifies a measurable physiological quantity (resting HR, HRV, ...)
type Parameter struct {
	ID    int64  `db:"id" json:"id"`
	Key   string `db:"key" json:"key"`
	Label string `db:"label" json:"label"`
}

// Baseline holds the per-(athlete, parameter) statistical summary.
// Recomputed wholesale by the baseline worker, never patched in place.
type Baseline struct {
	AthleteID   int64     `db:"athlete_id" json:"athlete_id"`
	ParameterID int64     `db:"parameter_id" json:"parameter_id"`
	Mean        float64   `db:"mean" json:"mean"`
	Sigma       float64   `db:"sigma" json:"sigma"`
	SampleCount int       `db:"sample_count" json:"sample_count"`
	ComputedAt  time.Time `db:"computed_at" json:"computed_at"`
}

// Rule compares a parameter against the athlete's baseline.
// Threshold is a signed sigma multiple: operator ">" with threshold 2
// matches when measured > mean + 2*sigma.
type Rule struct {
	ID          int64    `db:"id" json:"id"`
	ParameterID int64    `db:"parameter_id" json:"parameter_id"`
	Operator    Operator `db:"operator" json:"operator"`
	Threshold   float64  `db:"threshold" json:"threshold"`
}

// Symptom is a named condition owning a ruleset via symptom_rules
type Symptom struct {
	ID           int64   `db:"id" json:"id"`
	Key          string  `db:"key" json:"key"`
	Label        string  `db:"label" json:"label"`
	BaseSeverity float64 `db:"base_severity" json:"base_severity"`
}

// Measurement is one daily sample for one parameter
type Measurement struct {
	AthleteID   int64           `db:"athlete_id" json:"athlete_id"`
	ParameterID int64           `db:"parameter_id" json:"parameter_id"`
	Day         time.Time       `db:"day" json:"day"`
	Value       decimal.Decimal `db:"value" json:"value"`
	RecordedAt  time.Time       `db:"recorded_at" json:"recorded_at"`
}

// Verdict is the evaluator's decision for one symptom on one athlete-day
type Verdict struct {
	AthleteID int64     `json:"athlete_id"`
	SymptomID int64     `json:"symptom_id"`
	Day       time.Time `json:"day"`
	Present   bool      `json:"present"`
	Severity  float64   `json:"severity"`
	// MatchedRules / DeterminateRules support auditing of the decision
	MatchedRules     int `json:"matched_rules"`
	DeterminateRules int `json:"determinate_rules"`
}

// TriggeredSymptom is a persisted "present" verdict with its own lifecycle
type TriggeredSymptom struct {
	ID          int64         `db:"id" json:"id"`
	EventID     string        `db:"event_id" json:"event_id"`
	AthleteID   int64         `db:"athlete_id" json:"athlete_id"`
	SymptomID   int64         `db:"symptom_id" json:"symptom_id"`
	Severity    float64       `db:"severity" json:"severity"`
	Status      TriggerStatus `db:"status" json:"status"`
	TriggeredAt time.Time     `db:"triggered_at" json:"triggered_at"`
	ActionedAt  *time.Time    `db:"actioned_at" json:"actioned_at,omitempty"`
	ActionedBy  *string       `db:"actioned_by" json:"actioned_by,omitempty"`
}

// TriggerEvent is emitted to the notification bridge when a trigger is created
type TriggerEvent struct {
	EventID      string    `json:"event_id"`
	AthleteID    int64     `json:"athlete_id"`
	SymptomID    int64     `json:"symptom_id"`
	SymptomKey   string    `json:"symptom_key"`
	SymptomLabel string    `json:"symptom_label"`
	Severity     float64   `json:"severity"`
	TriggeredAt  time.Time `json:"triggered_at"`
}
