package triggers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vitalsense/pulsewatch/internal/adapters/redis"
	"github.com/vitalsense/pulsewatch/pkg/logger"
	"github.com/vitalsense/pulsewatch/pkg/models"
)

var (
	// ErrInvariantViolation means more than one UNACTIONED trigger exists for
	// one (athlete, symptom). Fatal for the evaluation unit; requires manual
	// remediation, never a silent merge.
	ErrInvariantViolation = errors.New("multiple unactioned triggers for the same athlete and symptom")
	// ErrAlreadyActioned means a terminal transition was attempted on a
	// trigger that is no longer unactioned
	ErrAlreadyActioned = errors.New("triggered symptom already actioned")
	// ErrLockNotAcquired means another evaluation unit holds the
	// (athlete, symptom) lock; the caller may retry
	ErrLockNotAcquired = errors.New("trigger lock held by another evaluation unit")
	// ErrDuplicateUnactioned is returned by the store when the partial unique
	// index rejects a second unactioned row
	ErrDuplicateUnactioned = errors.New("unactioned trigger already exists")
)

// Store persists triggered symptoms. The postgres implementation backs the
// dedup invariant with a partial unique index on (athlete_id, symptom_id)
// WHERE status = 'unactioned'.
type Store interface {
	// FindUnactioned returns all unactioned triggers for one (athlete, symptom)
	FindUnactioned(ctx context.Context, athleteID, symptomID int64) ([]models.TriggeredSymptom, error)
	// CreateWithCallback inserts a trigger and runs beforeCommit inside the
	// same transaction scope: if beforeCommit fails the insert is rolled
	// back. Returns ErrDuplicateUnactioned when the dedup index rejects the row.
	CreateWithCallback(ctx context.Context, t *models.TriggeredSymptom, beforeCommit func() error) error
	// RaiseSeverity raises the severity of an unactioned trigger if the new
	// value is higher. Returns whether a row was updated.
	RaiseSeverity(ctx context.Context, triggerID int64, severity float64) (bool, error)
	// Transition moves an unactioned trigger to a terminal status
	Transition(ctx context.Context, triggerID int64, to models.TriggerStatus, actor string) error
}

// Bridge receives trigger creation events for user-facing notifications.
// Delivery semantics live outside this core.
type Bridge interface {
	EmitTriggerCreated(ctx context.Context, event models.TriggerEvent) error
}

// NopBridge swallows events when no notification channel is configured
type NopBridge struct{}

// EmitTriggerCreated does nothing
func (NopBridge) EmitTriggerCreated(ctx context.Context, event models.TriggerEvent) error {
	return nil
}

// Manager owns the triggered-symptom lifecycle: dedup on creation, severity
// updates on live alerts and the UNACTIONED -> DISMISSED | RESOLVED machine
type Manager struct {
	store  Store
	bridge Bridge
	locks  redis.LockFactory
	cache  *Cache // optional, nil disables caching
	now    func() time.Time
}

// NewManager creates new trigger manager
func NewManager(store Store, bridge Bridge, locks redis.LockFactory, cache *Cache) *Manager {
	return &Manager{
		store:  store,
		bridge: bridge,
		locks:  locks,
		cache:  cache,
		now:    time.Now,
	}
}

// OnVerdict applies one symptom verdict. The contract is all-or-nothing: a
// created trigger is durably recorded together with its bridge event, or
// neither happens and the caller gets a retryable error.
func (m *Manager) OnVerdict(ctx context.Context, symptom models.Symptom, verdict models.Verdict) error {
	if !verdict.Present {
		return nil
	}

	lock := m.locks.CreateTriggerLock(verdict.AthleteID, verdict.SymptomID)
	acquired, err := lock.TryAcquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire trigger lock: %w", err)
	}
	if !acquired {
		return fmt.Errorf("%w: %s", ErrLockNotAcquired, lock.Key())
	}
	defer func() {
		_ = lock.Release(ctx)
	}()

	existing, err := m.store.FindUnactioned(ctx, verdict.AthleteID, verdict.SymptomID)
	if err != nil {
		return fmt.Errorf("failed to look up unactioned triggers: %w", err)
	}

	if len(existing) > 1 {
		// Do not merge, do not pick one: this state needs a human
		logger.Error("trigger invariant violated",
			zap.Int64("athlete_id", verdict.AthleteID),
			zap.Int64("symptom_id", verdict.SymptomID),
			zap.Int("unactioned_count", len(existing)),
		)
		return fmt.Errorf("%w: athlete %d symptom %d has %d rows",
			ErrInvariantViolation, verdict.AthleteID, verdict.SymptomID, len(existing))
	}

	if len(existing) == 1 {
		return m.raiseIfHigher(ctx, existing[0], verdict)
	}

	return m.create(ctx, symptom, verdict)
}

// raiseIfHigher updates a live alert's severity, never lowering it.
// No duplicate trigger and no bridge event are produced.
func (m *Manager) raiseIfHigher(ctx context.Context, current models.TriggeredSymptom, verdict models.Verdict) error {
	if verdict.Severity <= current.Severity {
		logger.Debug("verdict deduplicated against live trigger",
			zap.Int64("trigger_id", current.ID),
			zap.Float64("severity", current.Severity),
		)
		return nil
	}

	updated, err := m.store.RaiseSeverity(ctx, current.ID, verdict.Severity)
	if err != nil {
		return fmt.Errorf("failed to raise trigger severity: %w", err)
	}

	if updated {
		logger.Info("live trigger severity raised",
			zap.Int64("trigger_id", current.ID),
			zap.Float64("old_severity", current.Severity),
			zap.Float64("new_severity", verdict.Severity),
		)
		m.refreshCache(ctx, verdict.AthleteID)
	}

	return nil
}

// create inserts a fresh unactioned trigger and emits the bridge event in the
// same transaction scope
func (m *Manager) create(ctx context.Context, symptom models.Symptom, verdict models.Verdict) error {
	trigger := &models.TriggeredSymptom{
		EventID:     uuid.New().String(),
		AthleteID:   verdict.AthleteID,
		SymptomID:   verdict.SymptomID,
		Severity:    verdict.Severity,
		Status:      models.StatusUnactioned,
		TriggeredAt: m.now().UTC(),
	}

	event := models.TriggerEvent{
		EventID:      trigger.EventID,
		AthleteID:    trigger.AthleteID,
		SymptomID:    trigger.SymptomID,
		SymptomKey:   symptom.Key,
		SymptomLabel: symptom.Label,
		Severity:     trigger.Severity,
		TriggeredAt:  trigger.TriggeredAt,
	}

	err := m.store.CreateWithCallback(ctx, trigger, func() error {
		return m.bridge.EmitTriggerCreated(ctx, event)
	})

	if errors.Is(err, ErrDuplicateUnactioned) {
		// A concurrent evaluation won the race past our lock (e.g. lock
		// service degraded). The storage index kept the invariant; fall back
		// to the severity-raise path so the re-run stays idempotent.
		logger.Warn("duplicate unactioned trigger rejected by storage, retrying as update",
			zap.Int64("athlete_id", verdict.AthleteID),
			zap.Int64("symptom_id", verdict.SymptomID),
		)

		existing, findErr := m.store.FindUnactioned(ctx, verdict.AthleteID, verdict.SymptomID)
		if findErr != nil {
			return fmt.Errorf("failed to re-read after duplicate rejection: %w", findErr)
		}
		if len(existing) != 1 {
			return fmt.Errorf("%w: athlete %d symptom %d has %d rows after duplicate rejection",
				ErrInvariantViolation, verdict.AthleteID, verdict.SymptomID, len(existing))
		}
		return m.raiseIfHigher(ctx, existing[0], verdict)
	}

	if err != nil {
		return fmt.Errorf("failed to create triggered symptom: %w", err)
	}

	logger.Info("triggered symptom created",
		zap.String("event_id", trigger.EventID),
		zap.Int64("athlete_id", trigger.AthleteID),
		zap.String("symptom", symptom.Key),
		zap.Float64("severity", trigger.Severity),
	)

	m.refreshCache(ctx, verdict.AthleteID)

	return nil
}

// Dismiss moves an unactioned trigger to the terminal DISMISSED state
func (m *Manager) Dismiss(ctx context.Context, triggerID int64, actor string) error {
	return m.transition(ctx, triggerID, models.StatusDismissed, actor)
}

// Resolve moves an unactioned trigger to the terminal RESOLVED state
func (m *Manager) Resolve(ctx context.Context, triggerID int64, actor string) error {
	return m.transition(ctx, triggerID, models.StatusResolved, actor)
}

func (m *Manager) transition(ctx context.Context, triggerID int64, to models.TriggerStatus, actor string) error {
	if !to.IsTerminal() {
		return fmt.Errorf("invalid transition target %q", to)
	}

	if err := m.store.Transition(ctx, triggerID, to, actor); err != nil {
		return err
	}

	logger.Info("triggered symptom actioned",
		zap.Int64("trigger_id", triggerID),
		zap.String("status", string(to)),
		zap.String("actor", actor),
	)

	return nil
}

// refreshCache updates the live trigger summary, best effort
func (m *Manager) refreshCache(ctx context.Context, athleteID int64) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Invalidate(ctx, athleteID); err != nil {
		logger.Warn("failed to refresh trigger cache",
			zap.Int64("athlete_id", athleteID),
			zap.Error(err),
		)
	}
}
