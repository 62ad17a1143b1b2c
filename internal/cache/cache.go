package cache

import (
	"context"
	"time"

	"medikasir/backend/internal/domain"
)

// SummaryCache holds SUBMITTED summaries. OPEN summaries change with every
// ledger write and are never stored.
type SummaryCache interface {
	Get(ctx context.Context, key domain.DayKey) (*domain.DailySummary, bool, error)
	Set(ctx context.Context, summary *domain.DailySummary, ttl time.Duration) error
}

type NoopSummaryCache struct{}

func (NoopSummaryCache) Get(_ context.Context, _ domain.DayKey) (*domain.DailySummary, bool, error) {
	return nil, false, nil
}

func (NoopSummaryCache) Set(_ context.Context, _ *domain.DailySummary, _ time.Duration) error {
	return nil
}

func SummaryKey(key domain.DayKey) string {
	return "eod:summary:" + key.String()
}
