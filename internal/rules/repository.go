package rules

import (
	"context"
	"fmt"
	"math"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/vitalsense/pulsewatch/pkg/logger"
	"github.com/vitalsense/pulsewatch/pkg/models"
)

// Repository loads the rule configuration from PostgreSQL
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new rules repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// rawRule is a rule row before validation; operator is still a free string
type rawRule struct {
	ID          int64   `db:"id"`
	ParameterID int64   `db:"parameter_id"`
	Operator    string  `db:"operator"`
	Threshold   float64 `db:"threshold"`
	SymptomID   int64   `db:"symptom_id"`
}

// LoadCatalog loads parameters, symptoms and rulesets into a snapshot.
// Validation is fail-open per rule: a malformed rule is logged and excluded,
// the rest of the catalog still loads.
func (r *Repository) LoadCatalog(ctx context.Context) (*Catalog, error) {
	var parameters []models.Parameter
	if err := r.db.SelectContext(ctx, &parameters,
		`SELECT id, key, label FROM parameters ORDER BY id`,
	); err != nil {
		return nil, fmt.Errorf("failed to load parameters: %w", err)
	}

	var symptoms []models.Symptom
	if err := r.db.SelectContext(ctx, &symptoms,
		`SELECT id, key, label, base_severity FROM symptoms ORDER BY id`,
	); err != nil {
		return nil, fmt.Errorf("failed to load symptoms: %w", err)
	}

	// A rule may appear in rulesets of several symptoms, so the join row
	// carries the symptom id and the same rule id can repeat
	var raws []rawRule
	if err := r.db.SelectContext(ctx, &raws, `
		SELECT r.id, r.parameter_id, r.operator, r.threshold, sr.symptom_id
		FROM rules r
		JOIN symptom_rules sr ON sr.rule_id = r.id
		ORDER BY sr.symptom_id, r.id
	`); err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	paramIDs := make(map[int64]bool, len(parameters))
	for _, p := range parameters {
		paramIDs[p.ID] = true
	}

	rulesBySymptom := make(map[int64][]models.Rule)
	excluded := 0

	for _, raw := range raws {
		rule, err := validateRule(raw, paramIDs)
		if err != nil {
			excluded++
			logger.Warn("excluding invalid rule from catalog",
				zap.Int64("rule_id", raw.ID),
				zap.Int64("symptom_id", raw.SymptomID),
				zap.Error(err),
			)
			continue
		}
		rulesBySymptom[raw.SymptomID] = append(rulesBySymptom[raw.SymptomID], rule)
	}

	logger.Info("rule catalog loaded",
		zap.Int("parameters", len(parameters)),
		zap.Int("symptoms", len(symptoms)),
		zap.Int("rule_bindings", len(raws)-excluded),
		zap.Int("excluded", excluded),
	)

	return NewCatalog(parameters, symptoms, rulesBySymptom), nil
}

// validateRule checks one raw rule row against the closed operator set,
// threshold finiteness and parameter existence
func validateRule(raw rawRule, paramIDs map[int64]bool) (models.Rule, error) {
	op, err := models.ParseOperator(raw.Operator)
	if err != nil {
		return models.Rule{}, err
	}

	if math.IsNaN(raw.Threshold) || math.IsInf(raw.Threshold, 0) {
		return models.Rule{}, fmt.Errorf("threshold is not a finite number: %v", raw.Threshold)
	}

	if !paramIDs[raw.ParameterID] {
		return models.Rule{}, fmt.Errorf("references unknown parameter %d", raw.ParameterID)
	}

	return models.Rule{
		ID:          raw.ID,
		ParameterID: raw.ParameterID,
		Operator:    op,
		Threshold:   raw.Threshold,
	}, nil
}
