package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"medikasir/backend/internal/aggregate"
	"medikasir/backend/internal/cache"
	"medikasir/backend/internal/domain"
	"medikasir/backend/internal/events"
	"medikasir/backend/internal/gate"
	"medikasir/backend/internal/metrics"
	"medikasir/backend/internal/store"
	"medikasir/backend/internal/xid"
)

const (
	defaultHistoryLimit = 30
	maxHistoryLimit     = 366
	defaultAuditLimit   = 100
)

type Config struct {
	PriceTolerance  decimal.Decimal
	VarianceRemark  string
	SummaryCacheTTL time.Duration

	Publisher events.Publisher
	Cache     cache.SummaryCache
	Metrics   *metrics.Recorder
	Logger    *zap.Logger
	Clock     func() time.Time
}

type Service struct {
	repo      store.Repository
	gate      *gate.Gate
	validate  *validator.Validate
	publisher events.Publisher
	cache     cache.SummaryCache
	metrics   *metrics.Recorder
	logger    *zap.Logger
	now       func() time.Time

	priceTolerance  decimal.Decimal
	varianceRemark  string
	summaryCacheTTL time.Duration
}

func New(repo store.Repository, cfg Config) *Service {
	if cfg.PriceTolerance.IsZero() || cfg.PriceTolerance.IsNegative() {
		cfg.PriceTolerance = domain.PriceTolerance
	}
	if cfg.VarianceRemark == "" {
		cfg.VarianceRemark = "Variance detected"
	}
	if cfg.SummaryCacheTTL <= 0 {
		cfg.SummaryCacheTTL = 12 * time.Hour
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.NoopPublisher{}
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.NoopSummaryCache{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return time.Now().UTC() }
	}

	return &Service{
		repo:            repo,
		gate:            gate.New(cfg.PriceTolerance),
		validate:        newValidator(),
		publisher:       cfg.Publisher,
		cache:           cfg.Cache,
		metrics:         cfg.Metrics,
		logger:          cfg.Logger.Named("service"),
		now:             cfg.Clock,
		priceTolerance:  cfg.PriceTolerance,
		varianceRemark:  cfg.VarianceRemark,
		summaryCacheTTL: cfg.SummaryCacheTTL,
	}
}

// CreateCashMovement records a manual cash-in or cash-out for an open day.
func (s *Service) CreateCashMovement(ctx context.Context, req domain.CashMovementRequest) (domain.CashMovement, error) {
	req.BranchID = strings.TrimSpace(req.BranchID)
	req.CashierID = strings.TrimSpace(req.CashierID)
	req.Category = strings.TrimSpace(req.Category)
	req.Direction = domain.MovementDirection(strings.ToUpper(strings.TrimSpace(string(req.Direction))))
	req.Amount = domain.RoundCents(req.Amount)
	if err := s.validateStruct(req); err != nil {
		return domain.CashMovement{}, err
	}
	if req.Amount.IsNegative() {
		return domain.CashMovement{}, domain.Validation("amount must not be negative")
	}

	key := domain.NewDayKey(req.BranchID, req.CashierID, req.Date)
	movement := domain.CashMovement{
		ID:          xid.New("cm"),
		BranchID:    key.BranchID,
		CashierID:   key.CashierID,
		Direction:   req.Direction,
		Category:    req.Category,
		Amount:      req.Amount,
		Date:        key.Date,
		Description: strings.TrimSpace(req.Description),
		Reference:   strings.TrimSpace(req.Reference),
		CreatedBy:   actorOrCashier(req.ActorID, req.CashierID),
		CreatedAt:   s.now(),
	}

	var created *domain.CashMovement
	err := s.repo.WithDayLock(ctx, key, func(ctx context.Context, tx store.DayTx) error {
		if err := ensureOpen(ctx, tx, key); err != nil {
			return err
		}
		var err error
		created, err = tx.InsertMovement(ctx, movement)
		return err
	})
	if err != nil {
		return domain.CashMovement{}, domain.Persistence(err)
	}

	s.metrics.MovementRecorded(string(created.Direction))
	s.publish(ctx, events.TypeCashMovementCreated, created.BranchID, created.CreatedBy, "cash_movement", created.ID, created)
	return *created, nil
}

// CreateSalesTransaction prices every line against the catalog, allocates
// invoice and receipt numbers, decrements stock and records the sale in one
// unit of work.
func (s *Service) CreateSalesTransaction(ctx context.Context, req domain.SalesTransactionRequest) (domain.SalesTransaction, error) {
	created, levels, err := s.createSalesTransaction(ctx, req)
	if err != nil {
		s.metrics.SaleRejected(string(domain.KindOf(err)))
		return domain.SalesTransaction{}, err
	}

	s.metrics.SaleRecorded(string(created.PaymentMethod))
	s.publish(ctx, events.TypeTransactionCreated, created.BranchID, created.CreatedBy, "sales_transaction", created.ID, created)
	for _, level := range levels {
		s.publish(ctx, events.TypeStockDecremented, level.BranchID, created.CreatedBy, "product", level.ProductID, level)
	}
	return created, nil
}

func (s *Service) createSalesTransaction(ctx context.Context, req domain.SalesTransactionRequest) (domain.SalesTransaction, []domain.StockLevel, error) {
	req.BranchID = strings.TrimSpace(req.BranchID)
	req.CashierID = strings.TrimSpace(req.CashierID)
	req.PatientRef = strings.TrimSpace(req.PatientRef)
	req.Kind = strings.TrimSpace(req.Kind)
	req.PaymentMethod = domain.PaymentMethod(strings.ToUpper(strings.TrimSpace(string(req.PaymentMethod))))
	for i := range req.Items {
		req.Items[i].ProductID = strings.TrimSpace(req.Items[i].ProductID)
	}
	req.TotalAmount = domain.RoundCents(req.TotalAmount)
	req.PaidAmount = domain.RoundCents(req.PaidAmount)
	if err := s.validateStruct(req); err != nil {
		return domain.SalesTransaction{}, nil, err
	}
	if !domain.IsSupportedPaymentMethod(req.PaymentMethod) {
		return domain.SalesTransaction{}, nil, domain.Validation("unsupported payment method %q", req.PaymentMethod)
	}
	if !req.TotalAmount.IsPositive() {
		return domain.SalesTransaction{}, nil, domain.Validation("total_amount must be positive")
	}
	if req.PaidAmount.IsNegative() {
		return domain.SalesTransaction{}, nil, domain.Validation("paid_amount must not be negative")
	}
	if req.PaidAmount.GreaterThan(req.TotalAmount) {
		return domain.SalesTransaction{}, nil, domain.Validation("paid_amount must not exceed total_amount")
	}
	for _, line := range req.Items {
		if line.Amount.IsNegative() {
			return domain.SalesTransaction{}, nil, domain.Validation("amount for product %s must not be negative", line.ProductID)
		}
	}

	key := domain.NewDayKey(req.BranchID, req.CashierID, req.Date)
	actor := actorOrCashier(req.ActorID, req.CashierID)

	var created *domain.SalesTransaction
	var levels []domain.StockLevel
	err := s.repo.WithDayLock(ctx, key, func(ctx context.Context, tx store.DayTx) error {
		if err := ensureOpen(ctx, tx, key); err != nil {
			return err
		}

		items, linesTotal, err := s.gate.Check(ctx, tx, key.BranchID, req.Items)
		if err != nil {
			return err
		}
		if !domain.WithinTolerance(linesTotal, req.TotalAmount, s.priceTolerance) {
			return domain.Validation("total_amount %s does not match line total %s",
				req.TotalAmount.StringFixed(2), linesTotal.StringFixed(2))
		}
		// A payment within tolerance of the authoritative total settles it.
		paid := req.PaidAmount
		if paid.GreaterThan(linesTotal) || (paid.IsPositive() && domain.WithinTolerance(paid, linesTotal, s.priceTolerance)) {
			paid = linesTotal
		}

		seq, err := tx.NextDocumentSeq(ctx, key.BranchID, key.Date)
		if err != nil {
			return err
		}

		levels = make([]domain.StockLevel, 0, len(items))
		for _, item := range items {
			level, err := tx.DecrementStock(ctx, key.BranchID, item.ProductID, item.Quantity)
			if err != nil {
				if errors.Is(err, store.ErrInsufficientStock) {
					return domain.Validation("insufficient stock for product %s", item.ProductID)
				}
				return err
			}
			levels = append(levels, level)
		}

		created, err = tx.InsertTransaction(ctx, domain.SalesTransaction{
			ID:            xid.New("tx"),
			BranchID:      key.BranchID,
			CashierID:     key.CashierID,
			PatientRef:    req.PatientRef,
			Kind:          req.Kind,
			InvoiceNo:     documentNumber("INV", key, seq),
			ReceiptNo:     documentNumber("RCP", key, seq),
			Date:          key.Date,
			TotalAmount:   linesTotal,
			PaidAmount:    paid,
			Balance:       linesTotal.Sub(paid),
			PaymentStatus: domain.DerivePaymentStatus(linesTotal, paid),
			PaymentMethod: req.PaymentMethod,
			Remarks:       strings.TrimSpace(req.Remarks),
			Items:         items,
			CreatedBy:     actor,
			CreatedAt:     s.now(),
		})
		return err
	})
	if err != nil {
		return domain.SalesTransaction{}, nil, domain.Persistence(err)
	}
	return *created, levels, nil
}

// GetSummaryPreview returns the day's summary, creating or recomputing it
// while OPEN. A SUBMITTED summary is returned as stored.
func (s *Service) GetSummaryPreview(ctx context.Context, branchID string, cashierID string, date time.Time) (domain.DailySummary, error) {
	key, err := dayKey(branchID, cashierID, date)
	if err != nil {
		return domain.DailySummary{}, err
	}
	if cached, ok := s.cachedSummary(ctx, key); ok {
		return *cached, nil
	}

	var summary *domain.DailySummary
	err = s.repo.WithDayLock(ctx, key, func(ctx context.Context, tx store.DayTx) error {
		existing, err := lookupForUpdate(ctx, tx, key)
		if err != nil {
			return err
		}
		if existing != nil && existing.IsSubmitted() {
			summary = existing
			return nil
		}
		summary, err = s.recompute(ctx, tx, key, existing)
		return err
	})
	if err != nil {
		return domain.DailySummary{}, domain.Persistence(err)
	}

	if summary.IsSubmitted() {
		s.storeSummary(ctx, summary)
	}
	return *summary, nil
}

// SubmitEod closes the day: it recomputes the totals, records the counted
// cash and variance, and locks every ledger row of the day in the same
// unit of work.
func (s *Service) SubmitEod(ctx context.Context, req domain.SubmitEodRequest) (domain.DailySummary, error) {
	req.BranchID = strings.TrimSpace(req.BranchID)
	req.CashierID = strings.TrimSpace(req.CashierID)
	req.ActualCash = domain.RoundCents(req.ActualCash)
	if err := s.validateStruct(req); err != nil {
		return domain.DailySummary{}, err
	}
	if req.ActualCash.IsNegative() {
		return domain.DailySummary{}, domain.Validation("actual_cash_counted must not be negative")
	}

	key := domain.NewDayKey(req.BranchID, req.CashierID, req.Date)
	actor := actorOrCashier(req.ActorID, req.CashierID)

	var submitted *domain.DailySummary
	err := s.repo.WithDayLock(ctx, key, func(ctx context.Context, tx store.DayTx) error {
		existing, err := lookupForUpdate(ctx, tx, key)
		if err != nil {
			return err
		}
		if existing != nil && existing.IsSubmitted() {
			return domain.AlreadySubmitted(key)
		}

		open, err := s.recompute(ctx, tx, key, existing)
		if err != nil {
			return err
		}

		actual := req.ActualCash
		variance := aggregate.Variance(open.ExpectedCash, actual)
		remarks := strings.TrimSpace(req.VarianceRemarks)
		if remarks == "" && !variance.IsZero() {
			remarks = s.varianceRemark
		}
		at := s.now()

		open.ActualCash = &actual
		open.Variance = &variance
		open.VarianceRemarks = remarks
		open.Status = domain.SummarySubmitted
		open.SubmittedAt = &at
		open.SubmittedBy = actor
		open.UpdatedAt = at

		submitted, err = tx.UpsertSummary(ctx, *open)
		if err != nil {
			return err
		}
		_, err = tx.LockDay(ctx, key, submitted.ID)
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.DailySummary{}, s.resolveSubmitConflict(ctx, key, err)
		}
		return domain.DailySummary{}, domain.Persistence(err)
	}

	hasVariance := submitted.Variance != nil && !submitted.Variance.IsZero()
	s.metrics.EodSubmitted(hasVariance)
	s.storeSummary(ctx, submitted)
	s.publish(ctx, events.TypeEodSubmitted, submitted.BranchID, actor, "daily_summary", submitted.ID, submitted)
	s.logger.Info("eod submitted",
		zap.String("day", key.String()),
		zap.String("expected", submitted.ExpectedCash.StringFixed(2)),
		zap.String("variance", submitted.Variance.StringFixed(2)),
	)
	return *submitted, nil
}

// resolveSubmitConflict turns a lost insert race into the error the winner
// implies.
func (s *Service) resolveSubmitConflict(ctx context.Context, key domain.DayKey, cause error) error {
	current, err := s.repo.GetSummary(ctx, key)
	if err == nil && current.IsSubmitted() {
		return domain.AlreadySubmitted(key)
	}
	return domain.Persistence(cause)
}

// GetEodHistory lists a cashier's summaries, newest first.
func (s *Service) GetEodHistory(ctx context.Context, branchID string, cashierID string, limit int) ([]domain.DailySummary, error) {
	branchID = strings.TrimSpace(branchID)
	cashierID = strings.TrimSpace(cashierID)
	if branchID == "" || cashierID == "" {
		return nil, domain.Validation("branch_id and cashier_id are required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	summaries, err := s.repo.ListSummaries(ctx, branchID, cashierID, limit)
	if err != nil {
		return nil, domain.Persistence(err)
	}
	return summaries, nil
}

// GetSummary reads a stored summary without recomputing it.
func (s *Service) GetSummary(ctx context.Context, branchID string, cashierID string, date time.Time) (domain.DailySummary, error) {
	key, err := dayKey(branchID, cashierID, date)
	if err != nil {
		return domain.DailySummary{}, err
	}
	if cached, ok := s.cachedSummary(ctx, key); ok {
		return *cached, nil
	}

	summary, err := s.repo.GetSummary(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.DailySummary{}, domain.NotFound("summary " + key.String())
		}
		return domain.DailySummary{}, domain.Persistence(err)
	}
	if summary.IsSubmitted() {
		s.storeSummary(ctx, summary)
	}
	return *summary, nil
}

// GetBranchRollup sums every stored cashier summary of a branch-day.
func (s *Service) GetBranchRollup(ctx context.Context, branchID string, date time.Time) (domain.BranchRollup, error) {
	branchID = strings.TrimSpace(branchID)
	if branchID == "" || date.IsZero() {
		return domain.BranchRollup{}, domain.Validation("branch_id and date are required")
	}
	day := domain.DateOnly(date)

	summaries, err := s.repo.ListBranchSummaries(ctx, branchID, day)
	if err != nil {
		return domain.BranchRollup{}, domain.Persistence(err)
	}
	return aggregate.Rollup(branchID, day.Format(domain.DateLayout), summaries), nil
}

func (s *Service) ListAuditLogs(ctx context.Context, branchID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if to.IsZero() {
		to = s.now().Add(time.Second)
	}
	if from.IsZero() {
		from = to.Add(-24 * time.Hour)
	}
	if !from.Before(to) {
		return nil, domain.Validation("from must be before to")
	}
	if limit <= 0 {
		limit = defaultAuditLimit
	}

	logs, err := s.repo.ListAuditLogs(ctx, strings.TrimSpace(branchID), from, to, limit)
	if err != nil {
		return nil, domain.Persistence(err)
	}
	return logs, nil
}

// ListActiveDayKeys returns the cashier-days of date still open for preview.
func (s *Service) ListActiveDayKeys(ctx context.Context, date time.Time) ([]domain.DayKey, error) {
	keys, err := s.repo.ListActiveDayKeys(ctx, domain.DateOnly(date))
	if err != nil {
		return nil, domain.Persistence(err)
	}
	return keys, nil
}

// recompute folds the current ledger into a fresh OPEN row and persists it.
func (s *Service) recompute(ctx context.Context, tx store.DayTx, key domain.DayKey, existing *domain.DailySummary) (*domain.DailySummary, error) {
	movements, err := tx.ListMovements(ctx, key)
	if err != nil {
		return nil, err
	}
	transactions, err := tx.ListTransactions(ctx, key)
	if err != nil {
		return nil, err
	}

	now := s.now()
	summary := domain.DailySummary{
		ID:          xid.New("eod"),
		BranchID:    key.BranchID,
		CashierID:   key.CashierID,
		SummaryDate: key.Date,
		CreatedAt:   now,
	}
	if existing != nil {
		summary.ID = existing.ID
		summary.CreatedAt = existing.CreatedAt
	}
	summary.Status = domain.SummaryOpen
	summary.UpdatedAt = now
	aggregate.Compute(transactions, movements).Apply(&summary)

	return tx.UpsertSummary(ctx, summary)
}

func (s *Service) cachedSummary(ctx context.Context, key domain.DayKey) (*domain.DailySummary, bool) {
	summary, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.metrics.SideEffectFailed("cache_get")
		s.logger.Warn("summary cache read failed", zap.String("day", key.String()), zap.Error(err))
		return nil, false
	}
	if !ok || summary == nil || !summary.IsSubmitted() {
		return nil, false
	}
	return summary, true
}

func (s *Service) storeSummary(ctx context.Context, summary *domain.DailySummary) {
	if err := s.cache.Set(ctx, summary, s.summaryCacheTTL); err != nil {
		s.metrics.SideEffectFailed("cache_set")
		s.logger.Warn("summary cache write failed", zap.String("summary_id", summary.ID), zap.Error(err))
	}
}

// publish hands an event to the bus after commit. Failures are logged only.
func (s *Service) publish(ctx context.Context, eventType string, branchID string, actorID string, entityType string, entityID string, payload any) {
	event, err := events.New(s.now(), eventType, branchID, actorID, entityType, entityID, payload)
	if err == nil {
		err = s.publisher.Publish(ctx, event)
	}
	if err != nil {
		s.metrics.SideEffectFailed("publish")
		s.logger.Warn("failed to publish event",
			zap.String("event_type", eventType),
			zap.String("entity", entityType+"/"+entityID),
			zap.Error(err),
		)
	}
}

func ensureOpen(ctx context.Context, tx store.DayTx, key domain.DayKey) error {
	summary, err := lookupForUpdate(ctx, tx, key)
	if err != nil {
		return err
	}
	if summary != nil && summary.IsSubmitted() {
		return domain.EodLocked(key)
	}
	return nil
}

// lookupForUpdate returns nil without error when the day has no summary yet.
func lookupForUpdate(ctx context.Context, tx store.DayTx, key domain.DayKey) (*domain.DailySummary, error) {
	summary, err := tx.GetSummaryForUpdate(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return summary, err
}

func dayKey(branchID string, cashierID string, date time.Time) (domain.DayKey, error) {
	branchID = strings.TrimSpace(branchID)
	cashierID = strings.TrimSpace(cashierID)
	if branchID == "" || cashierID == "" || date.IsZero() {
		return domain.DayKey{}, domain.Validation("branch_id, cashier_id and date are required")
	}
	return domain.NewDayKey(branchID, cashierID, date), nil
}

func documentNumber(prefix string, key domain.DayKey, seq int) string {
	return fmt.Sprintf("%s-%s-%s-%04d", prefix, key.BranchID, key.Date.Format("20060102"), seq)
}

func actorOrCashier(actorID string, cashierID string) string {
	if actor := strings.TrimSpace(actorID); actor != "" {
		return actor
	}
	return cashierID
}
