package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"medikasir/backend/internal/domain"
)

func NewRedisClient(addr string, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

type RedisSummaryCache struct {
	client redis.UniversalClient
}

func NewRedisSummaryCache(client redis.UniversalClient) *RedisSummaryCache {
	return &RedisSummaryCache{client: client}
}

func (c *RedisSummaryCache) Get(ctx context.Context, key domain.DayKey) (*domain.DailySummary, bool, error) {
	val, err := c.client.Get(ctx, SummaryKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var summary domain.DailySummary
	if err := json.Unmarshal(val, &summary); err != nil {
		return nil, false, err
	}
	if !summary.IsSubmitted() {
		return nil, false, nil
	}
	return &summary, true, nil
}

func (c *RedisSummaryCache) Set(ctx context.Context, summary *domain.DailySummary, ttl time.Duration) error {
	if summary == nil || !summary.IsSubmitted() {
		return nil
	}
	payload, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, SummaryKey(summary.Key()), payload, ttl).Err()
}
