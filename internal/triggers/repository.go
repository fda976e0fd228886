package triggers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/vitalsense/pulsewatch/pkg/models"
)

// dedupConstraint is the partial unique index that rejects a second
// unactioned row per (athlete, symptom)
const dedupConstraint = "uq_triggered_symptoms_unactioned"

// Repository is the PostgreSQL Store implementation
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new triggered symptoms repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// FindUnactioned returns all unactioned triggers for one (athlete, symptom).
// More than one row means the dedup invariant is broken; the caller decides.
func (r *Repository) FindUnactioned(ctx context.Context, athleteID, symptomID int64) ([]models.TriggeredSymptom, error) {
	var triggers []models.TriggeredSymptom
	err := r.db.SelectContext(ctx, &triggers, `
		SELECT id, event_id, athlete_id, symptom_id, severity, status, triggered_at, actioned_at, actioned_by
		FROM triggered_symptoms
		WHERE athlete_id = $1 AND symptom_id = $2 AND status = $3
		ORDER BY id
	`, athleteID, symptomID, models.StatusUnactioned)
	if err != nil {
		return nil, fmt.Errorf("failed to query unactioned triggers: %w", err)
	}

	return triggers, nil
}

// CreateWithCallback inserts a trigger and runs beforeCommit inside the same
// transaction: any callback error rolls the insert back, so the trigger and
// its downstream event land together or not at all
func (r *Repository) CreateWithCallback(ctx context.Context, t *models.TriggeredSymptom, beforeCommit func() error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO triggered_symptoms (event_id, athlete_id, symptom_id, severity, status, triggered_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, t.EventID, t.AthleteID, t.SymptomID, t.Severity, t.Status, t.TriggeredAt).Scan(&t.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == dedupConstraint {
			return ErrDuplicateUnactioned
		}
		return fmt.Errorf("failed to insert triggered symptom: %w", err)
	}

	if beforeCommit != nil {
		if cbErr := beforeCommit(); cbErr != nil {
			return fmt.Errorf("trigger callback failed, rolling back: %w", cbErr)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit triggered symptom: %w", err)
	}

	return nil
}

// RaiseSeverity raises an unactioned trigger's severity if the new value is
// higher. Actioned or lower-or-equal rows are left untouched.
func (r *Repository) RaiseSeverity(ctx context.Context, triggerID int64, severity float64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE triggered_symptoms
		SET severity = $2
		WHERE id = $1 AND status = $3 AND severity < $2
	`, triggerID, severity, models.StatusUnactioned)
	if err != nil {
		return false, fmt.Errorf("failed to raise trigger severity: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return affected > 0, nil
}

// Transition moves an unactioned trigger to a terminal status. Returns
// ErrAlreadyActioned when the row is missing or no longer unactioned, so a
// repeated dismiss or a dismiss racing a resolve fails loudly.
func (r *Repository) Transition(ctx context.Context, triggerID int64, to models.TriggerStatus, actor string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE triggered_symptoms
		SET status = $2, actioned_at = NOW(), actioned_by = $3
		WHERE id = $1 AND status = $4
	`, triggerID, to, actor, models.StatusUnactioned)
	if err != nil {
		return fmt.Errorf("failed to transition trigger: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: trigger %d", ErrAlreadyActioned, triggerID)
	}

	return nil
}

// GetByID returns one trigger row
func (r *Repository) GetByID(ctx context.Context, triggerID int64) (*models.TriggeredSymptom, error) {
	var t models.TriggeredSymptom
	err := r.db.GetContext(ctx, &t, `
		SELECT id, event_id, athlete_id, symptom_id, severity, status, triggered_at, actioned_at, actioned_by
		FROM triggered_symptoms
		WHERE id = $1
	`, triggerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trigger: %w", err)
	}

	return &t, nil
}

// ListUnactionedForAthlete returns an athlete's live alerts, newest first
func (r *Repository) ListUnactionedForAthlete(ctx context.Context, athleteID int64) ([]models.TriggeredSymptom, error) {
	var triggers []models.TriggeredSymptom
	err := r.db.SelectContext(ctx, &triggers, `
		SELECT id, event_id, athlete_id, symptom_id, severity, status, triggered_at, actioned_at, actioned_by
		FROM triggered_symptoms
		WHERE athlete_id = $1 AND status = $2
		ORDER BY triggered_at DESC
	`, athleteID, models.StatusUnactioned)
	if err != nil {
		return nil, fmt.Errorf("failed to list unactioned triggers: %w", err)
	}

	return triggers, nil
}
