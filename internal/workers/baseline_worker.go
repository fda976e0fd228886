package workers

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vitalsense/pulsewatch/internal/adapters/config"
	"github.com/vitalsense/pulsewatch/internal/baseline"
	"github.com/vitalsense/pulsewatch/internal/measurements"
	"github.com/vitalsense/pulsewatch/internal/rules"
	"github.com/vitalsense/pulsewatch/pkg/logger"
)

// HistorySource provides the ordered sample window for baseline computation.
// Backed by the ClickHouse archive when configured, by Postgres otherwise.
type HistorySource interface {
	GetHistory(ctx context.Context, athleteID, parameterID int64, windowDays int) ([]float64, error)
}

// BaselineWorker recomputes per-(athlete, parameter) baselines from the
// rolling history window
type BaselineWorker struct {
	rulesRepo    *rules.Repository
	measurements *measurements.Repository
	history      HistorySource
	calculator   *baseline.Calculator
	store        *baseline.Store
	cfg          *config.EngineConfig
}

// NewBaselineWorker creates new baseline worker
func NewBaselineWorker(
	rulesRepo *rules.Repository,
	measurementsRepo *measurements.Repository,
	history HistorySource,
	calculator *baseline.Calculator,
	store *baseline.Store,
	cfg *config.EngineConfig,
) *BaselineWorker {
	return &BaselineWorker{
		rulesRepo:    rulesRepo,
		measurements: measurementsRepo,
		history:      history,
		calculator:   calculator,
		store:        store,
		cfg:          cfg,
	}
}

// Name returns worker name for logging
func (w *BaselineWorker) Name() string {
	return "baseline"
}

// Run recomputes baselines for all recently active athletes
func (w *BaselineWorker) Run(ctx context.Context) error {
	catalog, err := w.rulesRepo.LoadCatalog(ctx)
	if err != nil {
		return fmt.Errorf("failed to load rule catalog: %w", err)
	}

	athleteIDs, err := w.measurements.ListActiveAthletes(ctx, w.cfg.BaselineWindowDays)
	if err != nil {
		return fmt.Errorf("failed to list active athletes: %w", err)
	}

	started := time.Now()
	computed, skipped := 0, 0

	for _, athleteID := range athleteIDs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		for _, param := range catalog.Parameters() {
			samples, err := w.history.GetHistory(ctx, athleteID, param.ID, w.cfg.BaselineWindowDays)
			if err != nil {
				logger.Error("failed to load measurement history",
					zap.Int64("athlete_id", athleteID),
					zap.String("parameter", param.Key),
					zap.Error(err),
				)
				continue
			}

			b := w.calculator.Compute(athleteID, param.ID, samples)
			if b == nil {
				// Below the minimum sample count the baseline stays absent
				// (or keeps its previous value); rules on this parameter
				// evaluate indeterminate until enough history accrues
				skipped++
				continue
			}

			if err := w.store.Replace(ctx, b); err != nil {
				logger.Error("failed to store baseline",
					zap.Int64("athlete_id", athleteID),
					zap.String("parameter", param.Key),
					zap.Error(err),
				)
				continue
			}
			computed++
		}
	}

	logger.Info("baseline recomputation completed",
		zap.Int("athletes", len(athleteIDs)),
		zap.Int("computed", computed),
		zap.Int("skipped_insufficient_history", skipped),
		zap.Duration("took", time.Since(started)),
	)

	return nil
}
