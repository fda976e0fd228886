package rules

import (
	"context"
	"math"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/vitalsense/pulsewatch/pkg/models"
)

func TestValidateRule(t *testing.T) {
	paramIDs := map[int64]bool{1: true}

	t.Run("valid rule passes", func(t *testing.T) {
		rule, err := validateRule(rawRule{ID: 1, ParameterID: 1, Operator: ">", Threshold: 2}, paramIDs)
		if err != nil {
			t.Fatalf("expected valid rule, got %v", err)
		}
		if rule.Operator != models.OperatorGreaterThan || rule.Threshold != 2 {
			t.Errorf("unexpected rule: %+v", rule)
		}
	})

	t.Run("unknown operator rejected", func(t *testing.T) {
		if _, err := validateRule(rawRule{ID: 1, ParameterID: 1, Operator: ">=", Threshold: 2}, paramIDs); err == nil {
			t.Error("expected error for operator outside the closed set")
		}
	})

	t.Run("non-finite threshold rejected", func(t *testing.T) {
		for _, threshold := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
			if _, err := validateRule(rawRule{ID: 1, ParameterID: 1, Operator: "<", Threshold: threshold}, paramIDs); err == nil {
				t.Errorf("expected error for threshold %v", threshold)
			}
		}
	})

	t.Run("unknown parameter rejected", func(t *testing.T) {
		if _, err := validateRule(rawRule{ID: 1, ParameterID: 99, Operator: "=", Threshold: 0}, paramIDs); err == nil {
			t.Error("expected error for unknown parameter reference")
		}
	})
}

func TestLoadCatalog_FailOpenValidation(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewRepository(sqlx.NewDb(db, "postgres"))

	mock.ExpectQuery("SELECT id, key, label FROM parameters").
		WillReturnRows(sqlmock.NewRows([]string{"id", "key", "label"}).
			AddRow(1, "resting_hr", "Resting heart rate").
			AddRow(2, "hrv", "Heart rate variability"))

	mock.ExpectQuery("SELECT id, key, label, base_severity FROM symptoms").
		WillReturnRows(sqlmock.NewRows([]string{"id", "key", "label", "base_severity"}).
			AddRow(7, "overreaching", "Acute overreaching", 3.0).
			AddRow(8, "illness_onset", "Illness onset", 5.0))

	// Symptom 8 carries one valid and one malformed rule binding
	mock.ExpectQuery("SELECT r.id, r.parameter_id, r.operator, r.threshold, sr.symptom_id").
		WillReturnRows(sqlmock.NewRows([]string{"id", "parameter_id", "operator", "threshold", "symptom_id"}).
			AddRow(1, 1, ">", 2.0, 7).
			AddRow(2, 2, "<", -1.5, 8).
			AddRow(3, 2, "between", 1.0, 8))

	catalog, err := repo.LoadCatalog(context.Background())
	if err != nil {
		t.Fatalf("LoadCatalog failed: %v", err)
	}

	if len(catalog.Symptoms()) != 2 {
		t.Errorf("expected 2 symptoms with rules, got %d", len(catalog.Symptoms()))
	}

	if got := catalog.RulesForSymptom(8); len(got) != 1 {
		t.Errorf("malformed rule must be excluded, symptom 8 has %d rules", len(got))
	}
	if got := catalog.RulesForSymptom(7); len(got) != 1 {
		t.Errorf("expected 1 rule for symptom 7, got %d", len(got))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCatalog_Snapshot(t *testing.T) {
	params := []models.Parameter{{ID: 1, Key: "resting_hr", Label: "Resting heart rate"}}
	symptoms := []models.Symptom{
		{ID: 7, Key: "overreaching", Label: "Acute overreaching", BaseSeverity: 3},
		{ID: 9, Key: "orphan", Label: "No rules attached", BaseSeverity: 1},
	}
	rulesBySymptom := map[int64][]models.Rule{
		7: {{ID: 1, ParameterID: 1, Operator: models.OperatorGreaterThan, Threshold: 2}},
	}

	catalog := NewCatalog(params, symptoms, rulesBySymptom)

	t.Run("symptoms without rules are skipped", func(t *testing.T) {
		got := catalog.Symptoms()
		if len(got) != 1 || got[0].ID != 7 {
			t.Errorf("expected only symptom 7, got %+v", got)
		}
	})

	t.Run("parameter lookup by id and key", func(t *testing.T) {
		if key := catalog.ParameterKey(1); key != "resting_hr" {
			t.Errorf("expected resting_hr, got %q", key)
		}
		if _, ok := catalog.Parameter(99); ok {
			t.Error("unknown parameter must not resolve")
		}
	})
}
