package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medikasir/backend/internal/domain"
)

func newTestRedisCache(t *testing.T) *RedisSummaryCache {
	t.Helper()
	addr := os.Getenv("MEDIKASIR_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("MEDIKASIR_TEST_REDIS_ADDR is not set")
	}
	client := NewRedisClient(addr, "", 15)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Ping(context.Background()).Err())
	return NewRedisSummaryCache(client)
}

func TestRedisSummaryCacheStoresSubmittedOnly(t *testing.T) {
	c := newTestRedisCache(t)
	ctx := context.Background()
	date := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	open := &domain.DailySummary{ID: "eod-open", BranchID: "b-cache", CashierID: "c-open", SummaryDate: date, Status: domain.SummaryOpen}
	require.NoError(t, c.Set(ctx, open, time.Minute))
	_, found, err := c.Get(ctx, open.Key())
	require.NoError(t, err)
	assert.False(t, found)

	actual := domain.Money("440")
	submitted := &domain.DailySummary{
		ID: "eod-sub", BranchID: "b-cache", CashierID: "c-sub", SummaryDate: date,
		ExpectedCash: domain.Money("450"), ActualCash: &actual, Status: domain.SummarySubmitted,
	}
	require.NoError(t, c.Set(ctx, submitted, time.Minute))
	t.Cleanup(func() { _ = c.client.Del(context.Background(), SummaryKey(submitted.Key())).Err() })

	got, found, err := c.Get(ctx, submitted.Key())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "eod-sub", got.ID)
	assert.True(t, got.ActualCash.Equal(actual))
}

func TestNoopSummaryCacheNeverHits(t *testing.T) {
	var c SummaryCache = NoopSummaryCache{}
	_, found, err := c.Get(context.Background(), domain.NewDayKey("b", "c", time.Now()))
	require.NoError(t, err)
	assert.False(t, found)
}
