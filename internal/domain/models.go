package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type MovementDirection string

const (
	CashIn  MovementDirection = "IN"
	CashOut MovementDirection = "OUT"
)

type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "CASH"
	PaymentCard   PaymentMethod = "CARD"
	PaymentOnline PaymentMethod = "ONLINE"
	PaymentQR     PaymentMethod = "QR"
)

type PaymentStatus string

const (
	PaymentPaid    PaymentStatus = "PAID"
	PaymentPartial PaymentStatus = "PARTIAL"
	PaymentPending PaymentStatus = "PENDING"
)

type SummaryStatus string

const (
	SummaryOpen      SummaryStatus = "OPEN"
	SummarySubmitted SummaryStatus = "SUBMITTED"
)

// DayKey identifies one cashier's books for one branch-day. It is the
// serialization point for every ledger mutation.
type DayKey struct {
	BranchID  string
	CashierID string
	Date      time.Time
}

func NewDayKey(branchID string, cashierID string, date time.Time) DayKey {
	return DayKey{BranchID: branchID, CashierID: cashierID, Date: DateOnly(date)}
}

func (k DayKey) DateString() string {
	return k.Date.Format(DateLayout)
}

func (k DayKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.BranchID, k.CashierID, k.DateString())
}

const DateLayout = "2006-01-02"

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

type CashMovement struct {
	ID          string            `json:"id"`
	BranchID    string            `json:"branch_id"`
	CashierID   string            `json:"cashier_id"`
	Direction   MovementDirection `json:"direction"`
	Category    string            `json:"category"`
	Amount      decimal.Decimal   `json:"amount"`
	Date        time.Time         `json:"date"`
	Description string            `json:"description"`
	Reference   string            `json:"reference,omitempty"`
	Locked      bool              `json:"locked"`
	SummaryID   string            `json:"summary_id,omitempty"`
	CreatedBy   string            `json:"created_by"`
	CreatedAt   time.Time         `json:"created_at"`
}

type LineItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Amount    decimal.Decimal `json:"amount"`
}

type SalesTransaction struct {
	ID            string          `json:"id"`
	BranchID      string          `json:"branch_id"`
	CashierID     string          `json:"cashier_id"`
	PatientRef    string          `json:"patient_ref"`
	Kind          string          `json:"kind"`
	InvoiceNo     string          `json:"invoice_no"`
	ReceiptNo     string          `json:"receipt_no"`
	Date          time.Time       `json:"date"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	Balance       decimal.Decimal `json:"balance"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Remarks       string          `json:"remarks,omitempty"`
	Items         []LineItem      `json:"items"`
	Locked        bool            `json:"locked"`
	SummaryID     string          `json:"summary_id,omitempty"`
	CreatedBy     string          `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
}

// DailySummary is the reconciliation row for one DayKey.
type DailySummary struct {
	ID               string           `json:"id"`
	BranchID         string           `json:"branch_id"`
	CashierID        string           `json:"cashier_id"`
	SummaryDate      time.Time        `json:"summary_date"`
	CashTotal        decimal.Decimal  `json:"cash_total"`
	CashCount        int              `json:"cash_count"`
	CardTotal        decimal.Decimal  `json:"card_total"`
	CardCount        int              `json:"card_count"`
	OnlineTotal      decimal.Decimal  `json:"online_total"`
	OnlineCount      int              `json:"online_count"`
	QRTotal          decimal.Decimal  `json:"qr_total"`
	QRCount          int              `json:"qr_count"`
	CashInTotal      decimal.Decimal  `json:"cash_in_total"`
	CashOutTotal     decimal.Decimal  `json:"cash_out_total"`
	TransactionCount int              `json:"transaction_count"`
	TotalSales       decimal.Decimal  `json:"total_sales"`
	ExpectedCash     decimal.Decimal  `json:"expected_cash_balance"`
	ActualCash       *decimal.Decimal `json:"actual_cash_counted,omitempty"`
	Variance         *decimal.Decimal `json:"variance,omitempty"`
	VarianceRemarks  string           `json:"variance_remarks,omitempty"`
	Status           SummaryStatus    `json:"status"`
	SubmittedAt      *time.Time       `json:"submitted_at,omitempty"`
	SubmittedBy      string           `json:"submitted_by,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

func (s DailySummary) Key() DayKey {
	return NewDayKey(s.BranchID, s.CashierID, s.SummaryDate)
}

func (s DailySummary) IsSubmitted() bool {
	return s.Status == SummarySubmitted
}

// BranchRollup sums every cashier summary of one branch-day.
type BranchRollup struct {
	BranchID         string          `json:"branch_id"`
	Date             string          `json:"date"`
	Cashiers         int             `json:"cashiers"`
	SubmittedCount   int             `json:"submitted_count"`
	TransactionCount int             `json:"transaction_count"`
	TotalSales       decimal.Decimal `json:"total_sales"`
	CashTotal        decimal.Decimal `json:"cash_total"`
	CardTotal        decimal.Decimal `json:"card_total"`
	OnlineTotal      decimal.Decimal `json:"online_total"`
	QRTotal          decimal.Decimal `json:"qr_total"`
	CashInTotal      decimal.Decimal `json:"cash_in_total"`
	CashOutTotal     decimal.Decimal `json:"cash_out_total"`
	ExpectedCash     decimal.Decimal `json:"expected_cash_balance"`
	CountedCash      decimal.Decimal `json:"counted_cash"`
	Variance         decimal.Decimal `json:"variance"`
}

type Product struct {
	ID           string          `json:"id"`
	Code         string          `json:"code"`
	Name         string          `json:"name"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	ReorderLevel *int            `json:"reorder_level,omitempty"`
	MinStock     *int            `json:"min_stock,omitempty"`
	Active       bool            `json:"active"`
}

// StockLevel is a product's on-hand quantity at one branch after a change.
type StockLevel struct {
	BranchID     string `json:"branch_id"`
	ProductID    string `json:"product_id"`
	ProductCode  string `json:"product_code"`
	ProductName  string `json:"product_name"`
	Quantity     int    `json:"quantity"`
	ReorderLevel *int   `json:"reorder_level,omitempty"`
	MinStock     *int   `json:"min_stock,omitempty"`
}

// Threshold is the reorder level, else the minimum stock, else fallback.
func (s StockLevel) Threshold(fallback int) int {
	if s.ReorderLevel != nil {
		return *s.ReorderLevel
	}
	if s.MinStock != nil {
		return *s.MinStock
	}
	return fallback
}

type AuditLog struct {
	ID         string          `json:"id"`
	BranchID   string          `json:"branch_id"`
	ActorID    string          `json:"actor_id"`
	Action     string          `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
}

type Notification struct {
	ID          string          `json:"id"`
	RecipientID string          `json:"recipient_id"`
	BranchID    string          `json:"branch_id"`
	Category    string          `json:"category"`
	Title       string          `json:"title"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
}

type Recipient struct {
	UserID   string `json:"user_id"`
	BranchID string `json:"branch_id"`
	Role     string `json:"role"`
}

type CashMovementRequest struct {
	BranchID    string            `json:"branch_id" validate:"required,max=64"`
	CashierID   string            `json:"cashier_id" validate:"required,max=64"`
	ActorID     string            `json:"actor_id" validate:"max=64"`
	Direction   MovementDirection `json:"direction" validate:"required,oneof=IN OUT"`
	Category    string            `json:"category" validate:"required,max=64"`
	Amount      decimal.Decimal   `json:"amount"`
	Date        time.Time         `json:"date" validate:"required"`
	Description string            `json:"description" validate:"max=500"`
	Reference   string            `json:"reference,omitempty" validate:"max=100"`
}

type SaleLineRequest struct {
	ProductID string          `json:"product_id" validate:"required,max=64"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	Amount    decimal.Decimal `json:"amount"`
}

type SalesTransactionRequest struct {
	BranchID      string            `json:"branch_id" validate:"required,max=64"`
	CashierID     string            `json:"cashier_id" validate:"required,max=64"`
	ActorID       string            `json:"actor_id" validate:"max=64"`
	PatientRef    string            `json:"patient_ref" validate:"required,max=64"`
	Kind          string            `json:"kind" validate:"required,max=32"`
	Date          time.Time         `json:"date" validate:"required"`
	Items         []SaleLineRequest `json:"items" validate:"required,min=1,dive"`
	PaymentMethod PaymentMethod     `json:"payment_method" validate:"required,oneof=CASH CARD ONLINE QR"`
	PaidAmount    decimal.Decimal   `json:"paid_amount"`
	TotalAmount   decimal.Decimal   `json:"total_amount"`
	Remarks       string            `json:"remarks,omitempty" validate:"max=500"`
}

type SubmitEodRequest struct {
	BranchID        string          `json:"branch_id" validate:"required,max=64"`
	CashierID       string          `json:"cashier_id" validate:"required,max=64"`
	ActorID         string          `json:"actor_id" validate:"max=64"`
	Date            time.Time       `json:"date" validate:"required"`
	ActualCash      decimal.Decimal `json:"actual_cash_counted"`
	VarianceRemarks string          `json:"variance_remarks,omitempty" validate:"max=500"`
}

const (
	AuditActionTransactionCreate = "transaction_create"
	AuditActionMovementCreate    = "cash_movement_create"
	AuditActionEodSubmit         = "eod_submit"
)

const NotificationLowStock = "low_stock"
