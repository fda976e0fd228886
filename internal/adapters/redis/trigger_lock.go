package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/amyangfei/redlock-go/v3/redlock"
	"go.uber.org/zap"

	"github.com/vitalsense/pulsewatch/pkg/logger"
)

// TriggerLock serializes the read-modify-write on one (athlete, symptom) pair.
// The storage-level partial unique index is the backstop when the lock service
// misbehaves; the lock exists so concurrent evaluators fail cheaply instead of
// racing into a constraint violation.
type TriggerLock interface {
	// TryAcquire attempts to acquire the lock. Returns false when another
	// evaluation unit holds it.
	TryAcquire(ctx context.Context) (bool, error)
	// Release releases the lock
	Release(ctx context.Context) error
	// Key returns the lock key (for logging)
	Key() string
}

// DistributedTriggerLock wraps redlock-go for per-(athlete, symptom) locking
type DistributedTriggerLock struct {
	lockManager *redlock.RedLock
	lockName    string
	ttl         time.Duration
	locked      bool
}

// NewDistributedTriggerLock creates a lock for one (athlete, symptom) pair
func NewDistributedTriggerLock(lockManager *redlock.RedLock, athleteID, symptomID int64, ttl time.Duration) *DistributedTriggerLock {
	return &DistributedTriggerLock{
		lockManager: lockManager,
		lockName:    fmt.Sprintf("trigger:lock:%d:%d", athleteID, symptomID),
		ttl:         ttl,
		locked:      false,
	}
}

// TryAcquire attempts to acquire the lock using the Redlock algorithm
func (tl *DistributedTriggerLock) TryAcquire(ctx context.Context) (bool, error) {
	expiry, err := tl.lockManager.Lock(ctx, tl.lockName, tl.ttl)
	if err != nil {
		// Lock not acquired - another evaluation unit has it
		logger.Debug("trigger lock already held",
			zap.String("lock_name", tl.lockName),
		)
		return false, nil
	}

	if expiry <= 0 {
		return false, fmt.Errorf("failed to acquire lock: invalid expiry %v", expiry)
	}

	tl.locked = true

	logger.Debug("trigger lock acquired",
		zap.String("lock_name", tl.lockName),
		zap.Duration("ttl", tl.ttl),
	)

	return true, nil
}

// Release releases the lock
func (tl *DistributedTriggerLock) Release(ctx context.Context) error {
	if !tl.locked {
		return nil
	}

	if err := tl.lockManager.UnLock(ctx, tl.lockName); err != nil {
		logger.Warn("failed to release trigger lock (may have already expired)",
			zap.String("lock_name", tl.lockName),
			zap.Error(err),
		)
		// Lock expires on its own; not an error for the caller
	}

	tl.locked = false
	return nil
}

// Key returns the lock key
func (tl *DistributedTriggerLock) Key() string {
	return tl.lockName
}
