package measurements

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vitalsense/pulsewatch/pkg/models"
)

// Archiver receives accepted measurements for long-term history
type Archiver interface {
	Add(m models.Measurement)
}

// Ingestor is the entry point for the wearable integration feed. Accepted
// samples land in the Postgres daily feed and, when an archiver is attached,
// in the ClickHouse history used for baseline recomputation.
type Ingestor struct {
	repo     *Repository
	archiver Archiver // optional
}

// NewIngestor creates new measurement ingestor
func NewIngestor(repo *Repository, archiver Archiver) *Ingestor {
	return &Ingestor{repo: repo, archiver: archiver}
}

// Ingest validates and records one daily sample. Re-sent days overwrite the
// previous value.
func (in *Ingestor) Ingest(ctx context.Context, athleteID, parameterID int64, day time.Time, value decimal.Decimal) error {
	if athleteID <= 0 {
		return fmt.Errorf("invalid athlete id %d", athleteID)
	}
	if parameterID <= 0 {
		return fmt.Errorf("invalid parameter id %d", parameterID)
	}
	if day.IsZero() {
		return fmt.Errorf("measurement day is required")
	}

	m := models.Measurement{
		AthleteID:   athleteID,
		ParameterID: parameterID,
		Day:         day.UTC().Truncate(24 * time.Hour),
		Value:       value,
		RecordedAt:  time.Now().UTC(),
	}

	if err := in.repo.UpsertDailyMeasurement(ctx, &m); err != nil {
		return err
	}

	if in.archiver != nil {
		in.archiver.Add(m)
	}

	return nil
}
