package repository

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ActivityCache keeps the hot-path last-activity marks. The ticket row
// remains authoritative; losing the cache only costs sweep precision.
type ActivityCache interface {
	Mark(ctx context.Context, ticketID string, ts time.Time) error
	// Last returns the cached mark, or the zero time when absent.
	Last(ctx context.Context, ticketID string) (time.Time, error)
	Clear(ctx context.Context, ticketID string) error
}

const activityKeyPrefix = "activity:"

type redisActivityCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisActivityCache wraps a go-redis client. Marks expire after ttl
// so closed tickets do not accumulate keys.
func NewRedisActivityCache(client *redis.Client, ttl time.Duration) ActivityCache {
	return &redisActivityCache{client: client, ttl: ttl}
}

func (c *redisActivityCache) Mark(ctx context.Context, ticketID string, ts time.Time) error {
	return c.client.Set(ctx, activityKeyPrefix+ticketID, ts.Format(time.RFC3339Nano), c.ttl).Err()
}

func (c *redisActivityCache) Last(ctx context.Context, ticketID string) (time.Time, error) {
	val, err := c.client.Get(ctx, activityKeyPrefix+ticketID).Result()
	if err != nil {
		if err == redis.Nil {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, nil
	}
	return ts, nil
}

func (c *redisActivityCache) Clear(ctx context.Context, ticketID string) error {
	return c.client.Del(ctx, activityKeyPrefix+ticketID).Err()
}

type memoryActivityCache struct {
	mu    sync.RWMutex
	marks map[string]time.Time
}

// NewMemoryActivityCache is the fallback when Redis is not configured.
func NewMemoryActivityCache() ActivityCache {
	return &memoryActivityCache{marks: make(map[string]time.Time)}
}

func (c *memoryActivityCache) Mark(_ context.Context, ticketID string, ts time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.marks[ticketID] = ts
	return nil
}

func (c *memoryActivityCache) Last(_ context.Context, ticketID string) (time.Time, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.marks[ticketID], nil
}

func (c *memoryActivityCache) Clear(_ context.Context, ticketID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.marks, ticketID)
	return nil
}
