package triggers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/vitalsense/pulsewatch/pkg/models"
)

// Cache keeps a per-athlete snapshot of live alerts in Redis so dashboard
// reads skip Postgres. Strictly best effort: the database stays the source
// of truth and every cache failure degrades to a direct read.
type Cache struct {
	client *goredis.Client
	ttl    time.Duration
}

// NewCache creates new trigger cache
func NewCache(client *goredis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) key(athleteID int64) string {
	return fmt.Sprintf("pulsewatch:athlete:%d:triggers", athleteID)
}

// GetLive returns the cached live alerts for an athlete. A cache miss
// returns (nil, false, nil).
func (c *Cache) GetLive(ctx context.Context, athleteID int64) ([]models.TriggeredSymptom, bool, error) {
	raw, err := c.client.Get(ctx, c.key(athleteID)).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read trigger cache: %w", err)
	}

	var triggers []models.TriggeredSymptom
	if err := json.Unmarshal(raw, &triggers); err != nil {
		return nil, false, fmt.Errorf("failed to decode trigger cache: %w", err)
	}

	return triggers, true, nil
}

// SetLive stores the live alerts for an athlete
func (c *Cache) SetLive(ctx context.Context, athleteID int64, triggers []models.TriggeredSymptom) error {
	raw, err := json.Marshal(triggers)
	if err != nil {
		return fmt.Errorf("failed to encode trigger cache: %w", err)
	}

	if err := c.client.Set(ctx, c.key(athleteID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write trigger cache: %w", err)
	}

	return nil
}

// Invalidate drops the cached snapshot after a lifecycle change
func (c *Cache) Invalidate(ctx context.Context, athleteID int64) error {
	if err := c.client.Del(ctx, c.key(athleteID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate trigger cache: %w", err)
	}

	return nil
}
