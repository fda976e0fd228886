package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vitalsense/pulsewatch/internal/adapters/config"
	"github.com/vitalsense/pulsewatch/internal/evaluator"
	"github.com/vitalsense/pulsewatch/internal/measurements"
	"github.com/vitalsense/pulsewatch/internal/rules"
	"github.com/vitalsense/pulsewatch/internal/triggers"
	"github.com/vitalsense/pulsewatch/pkg/logger"
	"github.com/vitalsense/pulsewatch/pkg/models"
)

// BaselineReader provides per-athlete baselines for evaluation
type BaselineReader interface {
	GetAllForAthlete(ctx context.Context, athleteID int64) (map[int64]models.Baseline, error)
}

// EvaluationWorker runs the daily symptom evaluation for every athlete with
// fresh measurements. Each cycle takes one immutable catalog snapshot, so a
// mid-cycle rule change never splits an athlete's verdicts across two
// rulesets.
type EvaluationWorker struct {
	rulesRepo    *rules.Repository
	measurements *measurements.Repository
	baselines    BaselineReader
	manager      *triggers.Manager
	cfg          *config.EngineConfig
}

// NewEvaluationWorker creates new evaluation worker
func NewEvaluationWorker(
	rulesRepo *rules.Repository,
	measurementsRepo *measurements.Repository,
	baselines BaselineReader,
	manager *triggers.Manager,
	cfg *config.EngineConfig,
) *EvaluationWorker {
	return &EvaluationWorker{
		rulesRepo:    rulesRepo,
		measurements: measurementsRepo,
		baselines:    baselines,
		manager:      manager,
		cfg:          cfg,
	}
}

// Name returns worker name for logging
func (w *EvaluationWorker) Name() string {
	return "evaluation"
}

// Run evaluates all athletes for the current day
func (w *EvaluationWorker) Run(ctx context.Context) error {
	day := time.Now().UTC().Truncate(24 * time.Hour)
	return w.EvaluateDay(ctx, day)
}

// EvaluateDay evaluates every athlete that reported measurements for one day.
// Athletes fail independently: one bad athlete never aborts the cycle.
func (w *EvaluationWorker) EvaluateDay(ctx context.Context, day time.Time) error {
	catalog, err := w.rulesRepo.LoadCatalog(ctx)
	if err != nil {
		return fmt.Errorf("failed to load rule catalog: %w", err)
	}

	policy, err := evaluator.ParsePolicy(w.cfg.MatchPolicy)
	if err != nil {
		return fmt.Errorf("invalid match policy: %w", err)
	}

	eval := evaluator.New(catalog, policy, evaluator.Tolerances{
		Abs:   w.cfg.EqualityAbsTolerance,
		Sigma: w.cfg.EqualitySigmaTolerance,
	})

	athleteIDs, err := w.measurements.ListAthletesWithMeasurements(ctx, day)
	if err != nil {
		return fmt.Errorf("failed to list athletes: %w", err)
	}

	if len(athleteIDs) == 0 {
		logger.Debug("no athletes reported measurements", zap.Time("day", day))
		return nil
	}

	started := time.Now()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
		sem    = make(chan struct{}, w.cfg.EvalConcurrency)
	)

	for _, athleteID := range athleteIDs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := w.evaluateAthlete(ctx, eval, catalog, id, day); err != nil {
				logger.Error("athlete evaluation failed",
					zap.Int64("athlete_id", id),
					zap.Time("day", day),
					zap.Error(err),
				)
				mu.Lock()
				failed++
				mu.Unlock()
			}
		}(athleteID)
	}

	wg.Wait()

	logger.Info("evaluation cycle completed",
		zap.Time("day", day),
		zap.Int("athletes", len(athleteIDs)),
		zap.Int("failed", failed),
		zap.Duration("took", time.Since(started)),
	)

	return nil
}

// evaluateAthlete is the evaluation unit: one athlete, one day, the full
// symptom catalog
func (w *EvaluationWorker) evaluateAthlete(
	ctx context.Context,
	eval *evaluator.Evaluator,
	catalog *rules.Catalog,
	athleteID int64,
	day time.Time,
) error {
	baselines, err := w.baselines.GetAllForAthlete(ctx, athleteID)
	if err != nil {
		return fmt.Errorf("failed to load baselines: %w", err)
	}

	measured, err := w.measurements.GetDailyMeasurements(ctx, athleteID, day)
	if err != nil {
		return fmt.Errorf("failed to load measurements: %w", err)
	}

	verdicts := eval.Evaluate(athleteID, day, baselines, models.FloatMap(measured))

	var firstErr error
	for _, verdict := range verdicts {
		if !verdict.Present {
			continue
		}

		symptom, ok := catalog.Symptom(verdict.SymptomID)
		if !ok {
			continue
		}

		if err := w.manager.OnVerdict(ctx, symptom, verdict); err != nil {
			// Lock contention means another instance owns this pair right
			// now; its run produces the same verdict, so skipping is safe
			if errors.Is(err, triggers.ErrLockNotAcquired) {
				logger.Debug("skipping contended trigger",
					zap.Int64("athlete_id", athleteID),
					zap.Int64("symptom_id", verdict.SymptomID),
				)
				continue
			}
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}
