package measurements

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/vitalsense/pulsewatch/pkg/logger"
	"github.com/vitalsense/pulsewatch/pkg/models"
)

// Archive stores the long measurement history in ClickHouse. Postgres keeps
// the recent feed; the archive exists for high-volume wearable history and is
// read only by baseline recomputation.
type Archive struct {
	db *sqlx.DB
}

// NewArchive creates new ClickHouse measurement archive
func NewArchive(db *sqlx.DB) *Archive {
	return &Archive{db: db}
}

// SaveMeasurements writes a batch of measurements to the archive
func (a *Archive) SaveMeasurements(ctx context.Context, batch []models.Measurement) error {
	if len(batch) == 0 {
		return nil
	}

	placeholders := make([]string, len(batch))
	args := make([]interface{}, 0, len(batch)*5)

	for i, m := range batch {
		placeholders[i] = "(?, ?, ?, ?, ?)"
		args = append(args, m.AthleteID, m.ParameterID, m.Day, models.ToFloat64(m.Value), m.RecordedAt)
	}

	query := fmt.Sprintf(
		"INSERT INTO measurement_history (athlete_id, parameter_id, day, value, recorded_at) VALUES %s",
		strings.Join(placeholders, ", "),
	)

	if _, err := a.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("ClickHouse insert failed: %w", err)
	}

	logger.Debug("saved measurements to ClickHouse",
		zap.Int("rows", len(batch)),
	)

	return nil
}

// GetHistory returns the ordered sample window for one (athlete, parameter),
// ascending by day
func (a *Archive) GetHistory(ctx context.Context, athleteID, parameterID int64, windowDays int) ([]float64, error) {
	since := time.Now().UTC().AddDate(0, 0, -windowDays)

	rows, err := a.db.QueryContext(ctx, `
		SELECT value
		FROM measurement_history
		WHERE athlete_id = ? AND parameter_id = ? AND day >= ?
		ORDER BY day ASC
	`, athleteID, parameterID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query archive history: %w", err)
	}
	defer rows.Close()

	var samples []float64
	for rows.Next() {
		var value float64
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("failed to scan archive history: %w", err)
		}
		samples = append(samples, value)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate archive history: %w", err)
	}

	return samples, nil
}
