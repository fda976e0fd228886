package workers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/vitalsense/pulsewatch/internal/adapters/config"
	redisadapter "github.com/vitalsense/pulsewatch/internal/adapters/redis"
	"github.com/vitalsense/pulsewatch/internal/measurements"
	"github.com/vitalsense/pulsewatch/internal/rules"
	"github.com/vitalsense/pulsewatch/internal/triggers"
	"github.com/vitalsense/pulsewatch/pkg/models"
)

// fakeBaselines serves a fixed baseline set for every athlete
type fakeBaselines struct {
	baselines map[int64]models.Baseline
}

func (f *fakeBaselines) GetAllForAthlete(ctx context.Context, athleteID int64) (map[int64]models.Baseline, error) {
	return f.baselines, nil
}

// captureStore records created triggers
type captureStore struct {
	mu      sync.Mutex
	created []models.TriggeredSymptom
}

func (s *captureStore) FindUnactioned(ctx context.Context, athleteID, symptomID int64) ([]models.TriggeredSymptom, error) {
	return nil, nil
}

func (s *captureStore) CreateWithCallback(ctx context.Context, t *models.TriggeredSymptom, beforeCommit func() error) error {
	if beforeCommit != nil {
		if err := beforeCommit(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = int64(len(s.created) + 1)
	s.created = append(s.created, *t)
	return nil
}

func (s *captureStore) RaiseSeverity(ctx context.Context, triggerID int64, severity float64) (bool, error) {
	return false, nil
}

func (s *captureStore) Transition(ctx context.Context, triggerID int64, to models.TriggerStatus, actor string) error {
	return nil
}

func TestEvaluateDay_EndToEnd(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	defer db.Close()

	sqlxDB := sqlx.NewDb(db, "postgres")
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	// Catalog: one parameter, one symptom with a single "> 2 sigma" rule
	mock.ExpectQuery("SELECT id, key, label FROM parameters").
		WillReturnRows(sqlmock.NewRows([]string{"id", "key", "label"}).
			AddRow(1, "resting_hr", "Resting heart rate"))
	mock.ExpectQuery("SELECT id, key, label, base_severity FROM symptoms").
		WillReturnRows(sqlmock.NewRows([]string{"id", "key", "label", "base_severity"}).
			AddRow(7, "overreaching", "Acute overreaching", 3.0))
	mock.ExpectQuery("SELECT r.id, r.parameter_id, r.operator, r.threshold, sr.symptom_id").
		WillReturnRows(sqlmock.NewRows([]string{"id", "parameter_id", "operator", "threshold", "symptom_id"}).
			AddRow(1, 1, ">", 2.0, 7))

	mock.ExpectQuery("SELECT DISTINCT athlete_id").
		WithArgs(day).
		WillReturnRows(sqlmock.NewRows([]string{"athlete_id"}).AddRow(1))

	// Baseline mean 50 sigma 5; measured 61 exceeds the +2 sigma threshold 60
	mock.ExpectQuery("SELECT p.key, dm.value").
		WithArgs(int64(1), day).
		WillReturnRows(sqlmock.NewRows([]string{"key", "value"}).
			AddRow("resting_hr", "61"))

	store := &captureStore{}
	manager := triggers.NewManager(store, triggers.NopBridge{}, redisadapter.NewLocalLockFactory(), nil)

	cfg := &config.EngineConfig{
		MatchPolicy:            "all",
		EqualityAbsTolerance:   1e-6,
		EqualitySigmaTolerance: 0.1,
		EvalConcurrency:        1,
	}

	w := NewEvaluationWorker(
		rules.NewRepository(sqlxDB),
		measurements.NewRepository(sqlxDB),
		&fakeBaselines{baselines: map[int64]models.Baseline{
			1: {AthleteID: 1, ParameterID: 1, Mean: 50, Sigma: 5, SampleCount: 30},
		}},
		manager,
		cfg,
	)

	if err := w.EvaluateDay(context.Background(), day); err != nil {
		t.Fatalf("EvaluateDay failed: %v", err)
	}

	if len(store.created) != 1 {
		t.Fatalf("expected 1 trigger, got %d", len(store.created))
	}

	trigger := store.created[0]
	if trigger.AthleteID != 1 || trigger.SymptomID != 7 {
		t.Errorf("trigger keyed wrong: %+v", trigger)
	}
	// exceedance (61-60)/5 = 0.2 over base severity 3
	if got, want := trigger.Severity, 3.0*1.2; got < want-1e-9 || got > want+1e-9 {
		t.Errorf("expected severity %v, got %v", want, got)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
