package measurements

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/vitalsense/pulsewatch/pkg/models"
)

// Repository handles the daily measurement feed in PostgreSQL
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new measurements repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// UpsertDailyMeasurement records one parameter sample for one athlete-day.
// The wearable integration may resend a day; last write wins.
func (r *Repository) UpsertDailyMeasurement(ctx context.Context, m *models.Measurement) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO daily_measurements (athlete_id, parameter_id, day, value, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (athlete_id, parameter_id, day)
		DO UPDATE SET value = EXCLUDED.value, recorded_at = EXCLUDED.recorded_at
	`, m.AthleteID, m.ParameterID, m.Day, m.Value, m.RecordedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert daily measurement: %w", err)
	}

	return nil
}

// GetDailyMeasurements returns one athlete-day as a parameterKey -> value map.
// The map may be partial - wearables do not report every parameter every day.
func (r *Repository) GetDailyMeasurements(ctx context.Context, athleteID int64, day time.Time) (map[string]decimal.Decimal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.key, dm.value
		FROM daily_measurements dm
		JOIN parameters p ON p.id = dm.parameter_id
		WHERE dm.athlete_id = $1 AND dm.day = $2
	`, athleteID, day)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily measurements: %w", err)
	}
	defer rows.Close()

	measurements := make(map[string]decimal.Decimal)
	for rows.Next() {
		var key string
		var value decimal.Decimal
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan daily measurement: %w", err)
		}
		measurements[key] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate daily measurements: %w", err)
	}

	return measurements, nil
}

// ListAthletesWithMeasurements returns athletes that have at least one
// measurement for the given day
func (r *Repository) ListAthletesWithMeasurements(ctx context.Context, day time.Time) ([]int64, error) {
	var athleteIDs []int64
	err := r.db.SelectContext(ctx, &athleteIDs, `
		SELECT DISTINCT athlete_id
		FROM daily_measurements
		WHERE day = $1
		ORDER BY athlete_id
	`, day)
	if err != nil {
		return nil, fmt.Errorf("failed to list athletes for day: %w", err)
	}

	return athleteIDs, nil
}

// ListActiveAthletes returns athletes with any measurement inside the window,
// used by baseline recomputation
func (r *Repository) ListActiveAthletes(ctx context.Context, windowDays int) ([]int64, error) {
	since := time.Now().UTC().AddDate(0, 0, -windowDays)

	var athleteIDs []int64
	err := r.db.SelectContext(ctx, &athleteIDs, `
		SELECT DISTINCT athlete_id
		FROM daily_measurements
		WHERE day >= $1
		ORDER BY athlete_id
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list active athletes: %w", err)
	}

	return athleteIDs, nil
}

// GetHistory returns the ordered sample window for one (athlete, parameter),
// ascending by day. Used by baseline recomputation when no archive is
// configured.
func (r *Repository) GetHistory(ctx context.Context, athleteID, parameterID int64, windowDays int) ([]float64, error) {
	since := time.Now().UTC().AddDate(0, 0, -windowDays)

	rows, err := r.db.QueryContext(ctx, `
		SELECT value
		FROM daily_measurements
		WHERE athlete_id = $1 AND parameter_id = $2 AND day >= $3
		ORDER BY day ASC
	`, athleteID, parameterID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query measurement history: %w", err)
	}
	defer rows.Close()

	var samples []float64
	for rows.Next() {
		var value decimal.Decimal
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("failed to scan measurement history: %w", err)
		}
		samples = append(samples, models.ToFloat64(value))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate measurement history: %w", err)
	}

	return samples, nil
}
