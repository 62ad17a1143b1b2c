package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"medikasir/backend/internal/domain"
	"medikasir/backend/internal/metrics"
)

type PreviewSource interface {
	ListActiveDayKeys(ctx context.Context, date time.Time) ([]domain.DayKey, error)
	GetSummaryPreview(ctx context.Context, branchID string, cashierID string, date time.Time) (domain.DailySummary, error)
}

// PreviewRefresher recomputes the OPEN summary of every cashier with
// activity today, so dashboards reading stored rows stay current.
type PreviewRefresher struct {
	source   PreviewSource
	interval time.Duration
	metrics  *metrics.Recorder
	logger   *zap.Logger
	now      func() time.Time
}

func NewPreviewRefresher(source PreviewSource, interval time.Duration, recorder *metrics.Recorder, logger *zap.Logger) *PreviewRefresher {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PreviewRefresher{
		source:   source,
		interval: interval,
		metrics:  recorder,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (p *PreviewRefresher) Name() string {
	return "PreviewRefresher"
}

func (p *PreviewRefresher) Interval() time.Duration {
	return p.interval
}

func (p *PreviewRefresher) Run(ctx context.Context) error {
	today := domain.DateOnly(p.now())
	keys, err := p.source.ListActiveDayKeys(ctx, today)
	if err != nil {
		p.metrics.PreviewRefreshed(false)
		return fmt.Errorf("list active days: %w", err)
	}

	var errs []error
	for _, key := range keys {
		if ctx.Err() != nil {
			break
		}
		summary, err := p.source.GetSummaryPreview(ctx, key.BranchID, key.CashierID, key.Date)
		if err != nil {
			p.metrics.PreviewRefreshed(false)
			errs = append(errs, fmt.Errorf("refresh %s: %w", key, err))
			continue
		}
		p.metrics.PreviewRefreshed(true)
		p.logger.Debug("preview refreshed",
			zap.String("day", key.String()),
			zap.String("expected", summary.ExpectedCash.StringFixed(2)),
		)
	}
	return errors.Join(errs...)
}
