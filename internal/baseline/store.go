package baseline

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/vitalsense/pulsewatch/pkg/models"
)

// Store is the keyed baseline store: (athlete, parameter) -> Baseline.
// Reads are side-effect free; Replace is owned by the recompute worker only.
type Store struct {
	db *sqlx.DB
}

// NewStore creates new baseline store
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Get returns the current baseline for one (athlete, parameter) pair.
// A nil baseline with nil error means "no baseline yet" - a valid state.
func (s *Store) Get(ctx context.Context, athleteID, parameterID int64) (*models.Baseline, error) {
	var b models.Baseline
	err := s.db.GetContext(ctx, &b, `
		SELECT athlete_id, parameter_id, mean, sigma, sample_count, computed_at
		FROM athlete_baselines
		WHERE athlete_id = $1 AND parameter_id = $2
	`, athleteID, parameterID)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get baseline: %w", err)
	}

	return &b, nil
}

// GetAllForAthlete returns the athlete's baselines keyed by parameter id,
// used as the read-only snapshot for one evaluation
func (s *Store) GetAllForAthlete(ctx context.Context, athleteID int64) (map[int64]models.Baseline, error) {
	var rows []models.Baseline
	err := s.db.SelectContext(ctx, &rows, `
		SELECT athlete_id, parameter_id, mean, sigma, sample_count, computed_at
		FROM athlete_baselines
		WHERE athlete_id = $1
	`, athleteID)
	if err != nil {
		return nil, fmt.Errorf("failed to get baselines for athlete %d: %w", athleteID, err)
	}

	baselines := make(map[int64]models.Baseline, len(rows))
	for _, b := range rows {
		baselines[b.ParameterID] = b
	}

	return baselines, nil
}

// Replace upserts the baseline wholesale (replace-on-recompute, never an
// incremental patch). At most one current baseline per (athlete, parameter)
// is guaranteed by the primary key.
func (s *Store) Replace(ctx context.Context, b *models.Baseline) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO athlete_baselines (athlete_id, parameter_id, mean, sigma, sample_count, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (athlete_id, parameter_id)
		DO UPDATE SET mean = EXCLUDED.mean,
		              sigma = EXCLUDED.sigma,
		              sample_count = EXCLUDED.sample_count,
		              computed_at = EXCLUDED.computed_at
	`, b.AthleteID, b.ParameterID, b.Mean, b.Sigma, b.SampleCount, b.ComputedAt)

	if err != nil {
		return fmt.Errorf("failed to replace baseline: %w", err)
	}

	return nil
}
