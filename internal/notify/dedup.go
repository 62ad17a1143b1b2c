package notify

import (
	"context"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// AlertDeduper admits at most one alert per (recipient, product code) within
// a rolling window.
type AlertDeduper interface {
	// Acquire reports whether the caller may send the alert now.
	Acquire(ctx context.Context, recipientID string, productCode string, window time.Duration) (bool, error)
	// Release gives the slot back after a failed send.
	Release(ctx context.Context, recipientID string, productCode string) error
}

type MemoryDeduper struct {
	mu   sync.Mutex
	sent map[string]time.Time
	now  func() time.Time
}

func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{sent: make(map[string]time.Time), now: time.Now}
}

// WithClock replaces the time source.
func (d *MemoryDeduper) WithClock(now func() time.Time) *MemoryDeduper {
	d.now = now
	return d
}

func (d *MemoryDeduper) Acquire(_ context.Context, recipientID string, productCode string, window time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := dedupKey(recipientID, productCode)
	now := d.now()
	if last, ok := d.sent[key]; ok && now.Sub(last) < window {
		return false, nil
	}
	d.sent[key] = now
	return true, nil
}

func (d *MemoryDeduper) Release(_ context.Context, recipientID string, productCode string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.sent, dedupKey(recipientID, productCode))
	return nil
}

type RedisDeduper struct {
	client    redis.UniversalClient
	keyPrefix string
}

func NewRedisDeduper(client redis.UniversalClient, keyPrefix string) *RedisDeduper {
	if keyPrefix == "" {
		keyPrefix = "eod:lowstock:"
	}
	return &RedisDeduper{client: client, keyPrefix: keyPrefix}
}

// Acquire uses SET NX with the window as TTL, so concurrent workers agree.
func (d *RedisDeduper) Acquire(ctx context.Context, recipientID string, productCode string, window time.Duration) (bool, error) {
	return d.client.SetNX(ctx, d.keyPrefix+dedupKey(recipientID, productCode), time.Now().UTC().Format(time.RFC3339), window).Result()
}

func (d *RedisDeduper) Release(ctx context.Context, recipientID string, productCode string) error {
	return d.client.Del(ctx, d.keyPrefix+dedupKey(recipientID, productCode)).Err()
}

func dedupKey(recipientID string, productCode string) string {
	return recipientID + ":" + productCode
}
