package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/amyangfei/redlock-go/v3/redlock"
)

// LockFactory creates per-(athlete, symptom) trigger locks
type LockFactory interface {
	CreateTriggerLock(athleteID, symptomID int64) TriggerLock
}

// RedisLockFactory creates Redis-based distributed locks
type RedisLockFactory struct {
	lockManager *redlock.RedLock
	ttl         time.Duration
}

// NewRedisLockFactory creates new Redis lock factory
func NewRedisLockFactory(lockManager *redlock.RedLock) *RedisLockFactory {
	return &RedisLockFactory{
		lockManager: lockManager,
		ttl:         30 * time.Second,
	}
}

// WithTTL overrides the default lock TTL
func (f *RedisLockFactory) WithTTL(ttl time.Duration) *RedisLockFactory {
	f.ttl = ttl
	return f
}

// CreateTriggerLock creates a distributed lock for one (athlete, symptom) pair
func (f *RedisLockFactory) CreateTriggerLock(athleteID, symptomID int64) TriggerLock {
	return NewDistributedTriggerLock(f.lockManager, athleteID, symptomID, f.ttl)
}

// LocalLockFactory serializes per key within one process. Used in tests and as
// a fallback when Redis is not configured.
type LocalLockFactory struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLocalLockFactory creates an in-process lock factory
func NewLocalLockFactory() *LocalLockFactory {
	return &LocalLockFactory{locks: make(map[string]*sync.Mutex)}
}

// CreateTriggerLock returns a lock backed by a per-key mutex
func (f *LocalLockFactory) CreateTriggerLock(athleteID, symptomID int64) TriggerLock {
	key := lockKey(athleteID, symptomID)

	f.mu.Lock()
	m, ok := f.locks[key]
	if !ok {
		m = &sync.Mutex{}
		f.locks[key] = m
	}
	f.mu.Unlock()

	return &localLock{key: key, mu: m}
}

func lockKey(athleteID, symptomID int64) string {
	return fmt.Sprintf("trigger:lock:%d:%d", athleteID, symptomID)
}

type localLock struct {
	key string
	mu  *sync.Mutex
}

func (l *localLock) TryAcquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	return true, nil
}

func (l *localLock) Release(ctx context.Context) error {
	l.mu.Unlock()
	return nil
}

func (l *localLock) Key() string {
	return l.key
}
