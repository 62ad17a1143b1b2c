package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"medikasir/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// DayTx is the unit of work for one DayKey. Every call made through it
// commits or rolls back together.
type DayTx interface {
	// GetSummaryForUpdate returns the summary row for the key, locked for the
	// rest of the unit of work, or ErrNotFound.
	GetSummaryForUpdate(ctx context.Context, key domain.DayKey) (*domain.DailySummary, error)
	UpsertSummary(ctx context.Context, summary domain.DailySummary) (*domain.DailySummary, error)
	ListMovements(ctx context.Context, key domain.DayKey) ([]domain.CashMovement, error)
	ListTransactions(ctx context.Context, key domain.DayKey) ([]domain.SalesTransaction, error)
	InsertMovement(ctx context.Context, movement domain.CashMovement) (*domain.CashMovement, error)
	InsertTransaction(ctx context.Context, tx domain.SalesTransaction) (*domain.SalesTransaction, error)
	// LockDay stamps every movement and transaction of the key with summaryID.
	LockDay(ctx context.Context, key domain.DayKey, summaryID string) (int, error)
	ResolvePrice(ctx context.Context, branchID string, productID string) (decimal.Decimal, bool, error)
	// DecrementStock subtracts qty in a single statement and returns the level
	// after the change. ErrInsufficientStock when on-hand is below qty.
	DecrementStock(ctx context.Context, branchID string, productID string, qty int) (domain.StockLevel, error)
	// NextDocumentSeq allocates the next invoice sequence for a branch-day.
	NextDocumentSeq(ctx context.Context, branchID string, date time.Time) (int, error)
}

type Repository interface {
	// WithDayLock serializes fn against every other caller using the same key.
	WithDayLock(ctx context.Context, key domain.DayKey, fn func(ctx context.Context, tx DayTx) error) error

	GetSummary(ctx context.Context, key domain.DayKey) (*domain.DailySummary, error)
	ListSummaries(ctx context.Context, branchID string, cashierID string, limit int) ([]domain.DailySummary, error)
	ListBranchSummaries(ctx context.Context, branchID string, date time.Time) ([]domain.DailySummary, error)
	// ListActiveDayKeys returns every key with ledger activity on date whose
	// summary is missing or still OPEN.
	ListActiveDayKeys(ctx context.Context, date time.Time) ([]domain.DayKey, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, branchID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
	CreateNotification(ctx context.Context, notification domain.Notification) error
	ListNotifications(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error)
	EligibleRecipients(ctx context.Context, branchID string, roles []string) ([]domain.Recipient, error)
}
