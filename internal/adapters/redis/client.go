package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/amyangfei/redlock-go/v3/redlock"
	redis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/vitalsense/pulsewatch/internal/adapters/config"
	"github.com/vitalsense/pulsewatch/pkg/logger"
)

// Client wraps RedLock manager for trigger serialization + standard Redis for caching
type Client struct {
	lockManager *redlock.RedLock
	cache       *redis.Client
	redisAddrs  []string
}

// New creates new Redis client with RedLock support + caching
func New(cfg *config.RedisConfig) (*Client, error) {
	// RedLock wants scheme-prefixed addresses; a single instance works but a
	// production cluster would list several here
	redisAddrs := []string{fmt.Sprintf("tcp://%s", cfg.Addr())}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	lockManager, err := redlock.NewRedLock(ctx, redisAddrs)
	if err != nil {
		return nil, fmt.Errorf("failed to create redlock manager: %w", err)
	}

	logger.Info("redis redlock manager initialized",
		zap.Strings("addresses", redisAddrs),
	)

	cacheClient := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	if err := cacheClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis cache: %w", err)
	}

	logger.Info("redis cache client initialized",
		zap.String("address", cfg.Addr()),
		zap.Int("db", cfg.DB),
	)

	return &Client{
		lockManager: lockManager,
		redisAddrs:  redisAddrs,
		cache:       cacheClient,
	}, nil
}

// GetLockManager returns RedLock manager for distributed locking
func (c *Client) GetLockManager() *redlock.RedLock {
	return c.lockManager
}

// GetLockFactory returns a lock factory for creating trigger locks
func (c *Client) GetLockFactory() LockFactory {
	return NewRedisLockFactory(c.lockManager)
}

// Cache returns the standard Redis client for caching
func (c *Client) Cache() *redis.Client {
	return c.cache
}

// Close closes the cache connection
func (c *Client) Close() error {
	if c.cache != nil {
		return c.cache.Close()
	}
	return nil
}
