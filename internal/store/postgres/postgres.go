package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"medikasir/backend/internal/domain"
	"medikasir/backend/internal/store"
)

type Options struct {
	MaxOpenConns int
	MaxIdleConns int
}

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string, opts Options) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 8
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 30
	}
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// NewWithDB wraps an already-open handle.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// WithDayLock runs fn in a read-committed transaction holding a
// transaction-scoped advisory lock on the day key. The summary row itself
// is additionally locked with FOR UPDATE by GetSummaryForUpdate.
func (s *Store) WithDayLock(ctx context.Context, key domain.DayKey, fn func(ctx context.Context, tx store.DayTx) error) error {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	if _, err := pgTx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "eod:"+key.String()); err != nil {
		return fmt.Errorf("acquire day lock %s: %w", key, err)
	}

	if err := fn(ctx, &dayTx{tx: pgTx}); err != nil {
		return err
	}
	return pgTx.Commit()
}

const summaryColumns = `
	id, branch_id, cashier_id, summary_date,
	cash_total, cash_count, card_total, card_count,
	online_total, online_count, qr_total, qr_count,
	cash_in_total, cash_out_total, transaction_count, total_sales,
	expected_cash_balance, actual_cash_counted, variance, variance_remarks,
	status, submitted_at, submitted_by, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSummary(row rowScanner) (*domain.DailySummary, error) {
	var summary domain.DailySummary
	var actual decimal.NullDecimal
	var variance decimal.NullDecimal
	var remarks sql.NullString
	var submittedAt sql.NullTime
	var submittedBy sql.NullString
	var status string

	err := row.Scan(
		&summary.ID, &summary.BranchID, &summary.CashierID, &summary.SummaryDate,
		&summary.CashTotal, &summary.CashCount, &summary.CardTotal, &summary.CardCount,
		&summary.OnlineTotal, &summary.OnlineCount, &summary.QRTotal, &summary.QRCount,
		&summary.CashInTotal, &summary.CashOutTotal, &summary.TransactionCount, &summary.TotalSales,
		&summary.ExpectedCash, &actual, &variance, &remarks,
		&status, &submittedAt, &submittedBy, &summary.CreatedAt, &summary.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	summary.SummaryDate = domain.DateOnly(summary.SummaryDate)
	summary.Status = domain.SummaryStatus(status)
	if actual.Valid {
		summary.ActualCash = &actual.Decimal
	}
	if variance.Valid {
		summary.Variance = &variance.Decimal
	}
	summary.VarianceRemarks = remarks.String
	if submittedAt.Valid {
		at := submittedAt.Time.UTC()
		summary.SubmittedAt = &at
	}
	summary.SubmittedBy = submittedBy.String
	return &summary, nil
}

func (s *Store) GetSummary(ctx context.Context, key domain.DayKey) (*domain.DailySummary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+summaryColumns+`
		FROM daily_summaries
		WHERE branch_id = $1 AND cashier_id = $2 AND summary_date = $3
	`, key.BranchID, key.CashierID, key.Date)
	return scanSummary(row)
}

func (s *Store) ListSummaries(ctx context.Context, branchID string, cashierID string, limit int) ([]domain.DailySummary, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+summaryColumns+`
		FROM daily_summaries
		WHERE branch_id = $1 AND cashier_id = $2
		ORDER BY summary_date DESC
		LIMIT $3
	`, branchID, cashierID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSummaries(rows)
}

func (s *Store) ListBranchSummaries(ctx context.Context, branchID string, date time.Time) ([]domain.DailySummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+summaryColumns+`
		FROM daily_summaries
		WHERE branch_id = $1 AND summary_date = $2
		ORDER BY cashier_id
	`, branchID, domain.DateOnly(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSummaries(rows)
}

func collectSummaries(rows *sql.Rows) ([]domain.DailySummary, error) {
	summaries := make([]domain.DailySummary, 0, 16)
	for rows.Next() {
		summary, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, *summary)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return summaries, nil
}

func (s *Store) ListActiveDayKeys(ctx context.Context, date time.Time) ([]domain.DayKey, error) {
	date = domain.DateOnly(date)
	rows, err := s.db.QueryContext(ctx, `
		SELECT k.branch_id, k.cashier_id
		FROM (
			SELECT branch_id, cashier_id FROM cash_movements WHERE movement_date = $1
			UNION
			SELECT branch_id, cashier_id FROM sales_transactions WHERE transaction_date = $1
		) k
		LEFT JOIN daily_summaries s
			ON s.branch_id = k.branch_id AND s.cashier_id = k.cashier_id AND s.summary_date = $1
		WHERE s.id IS NULL OR s.status = 'OPEN'
		ORDER BY k.branch_id, k.cashier_id
	`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]domain.DayKey, 0, 16)
	for rows.Next() {
		var branchID, cashierID string
		if err := rows.Scan(&branchID, &cashierID); err != nil {
			return nil, err
		}
		keys = append(keys, domain.NewDayKey(branchID, cashierID, date))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	payload := entry.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, branch_id, actor_id, action, entity_type, entity_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.ID, entry.BranchID, entry.ActorID, entry.Action, entry.EntityType, entry.EntityID, []byte(payload), entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, branchID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, branch_id, actor_id, action, entity_type, entity_id, payload, created_at
		FROM audit_logs
		WHERE ($1 = '' OR branch_id = $1) AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, branchID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		var payload []byte
		if err := rows.Scan(&entry.ID, &entry.BranchID, &entry.ActorID, &entry.Action, &entry.EntityType, &entry.EntityID, &payload, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.Payload = json.RawMessage(payload)
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateNotification(ctx context.Context, notification domain.Notification) error {
	payload := notification.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, recipient_id, branch_id, category, title, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, notification.ID, notification.RecipientID, notification.BranchID, notification.Category, notification.Title, []byte(payload), notification.CreatedAt)
	return err
}

func (s *Store) ListNotifications(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recipient_id, branch_id, category, title, payload, created_at
		FROM notifications
		WHERE ($1 = '' OR recipient_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, recipientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Notification, 0, limit)
	for rows.Next() {
		var n domain.Notification
		var payload []byte
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.BranchID, &n.Category, &n.Title, &payload, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Payload = json.RawMessage(payload)
		result = append(result, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) EligibleRecipients(ctx context.Context, branchID string, roles []string) ([]domain.Recipient, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, branch_id, role
		FROM branch_staff
		WHERE branch_id = $1 AND role = ANY($2) AND active = true
		ORDER BY user_id
	`, branchID, roles)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recipients := make([]domain.Recipient, 0, 8)
	for rows.Next() {
		var r domain.Recipient
		if err := rows.Scan(&r.UserID, &r.BranchID, &r.Role); err != nil {
			return nil, err
		}
		recipients = append(recipients, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return recipients, nil
}

type dayTx struct {
	tx *sql.Tx
}

func (t *dayTx) GetSummaryForUpdate(ctx context.Context, key domain.DayKey) (*domain.DailySummary, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+summaryColumns+`
		FROM daily_summaries
		WHERE branch_id = $1 AND cashier_id = $2 AND summary_date = $3
		FOR UPDATE
	`, key.BranchID, key.CashierID, key.Date)
	return scanSummary(row)
}

// UpsertSummary inserts or refreshes an OPEN row. A SUBMITTED row is never
// overwritten; that case surfaces as ErrConflict.
func (t *dayTx) UpsertSummary(ctx context.Context, summary domain.DailySummary) (*domain.DailySummary, error) {
	row := t.tx.QueryRowContext(ctx, `
		INSERT INTO daily_summaries (
			id, branch_id, cashier_id, summary_date,
			cash_total, cash_count, card_total, card_count,
			online_total, online_count, qr_total, qr_count,
			cash_in_total, cash_out_total, transaction_count, total_sales,
			expected_cash_balance, actual_cash_counted, variance, variance_remarks,
			status, submitted_at, submitted_by, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25)
		ON CONFLICT (branch_id, cashier_id, summary_date) DO UPDATE SET
			cash_total = EXCLUDED.cash_total,
			cash_count = EXCLUDED.cash_count,
			card_total = EXCLUDED.card_total,
			card_count = EXCLUDED.card_count,
			online_total = EXCLUDED.online_total,
			online_count = EXCLUDED.online_count,
			qr_total = EXCLUDED.qr_total,
			qr_count = EXCLUDED.qr_count,
			cash_in_total = EXCLUDED.cash_in_total,
			cash_out_total = EXCLUDED.cash_out_total,
			transaction_count = EXCLUDED.transaction_count,
			total_sales = EXCLUDED.total_sales,
			expected_cash_balance = EXCLUDED.expected_cash_balance,
			actual_cash_counted = EXCLUDED.actual_cash_counted,
			variance = EXCLUDED.variance,
			variance_remarks = EXCLUDED.variance_remarks,
			status = EXCLUDED.status,
			submitted_at = EXCLUDED.submitted_at,
			submitted_by = EXCLUDED.submitted_by,
			updated_at = EXCLUDED.updated_at
		WHERE daily_summaries.status = 'OPEN'
		RETURNING `+summaryColumns,
		summary.ID, summary.BranchID, summary.CashierID, domain.DateOnly(summary.SummaryDate),
		summary.CashTotal, summary.CashCount, summary.CardTotal, summary.CardCount,
		summary.OnlineTotal, summary.OnlineCount, summary.QRTotal, summary.QRCount,
		summary.CashInTotal, summary.CashOutTotal, summary.TransactionCount, summary.TotalSales,
		summary.ExpectedCash, nullDecimal(summary.ActualCash), nullDecimal(summary.Variance), nullIfEmpty(summary.VarianceRemarks),
		string(summary.Status), nullTime(summary.SubmittedAt), nullIfEmpty(summary.SubmittedBy), summary.CreatedAt, summary.UpdatedAt,
	)
	saved, err := scanSummary(row)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return saved, nil
}

func (t *dayTx) ListMovements(ctx context.Context, key domain.DayKey) ([]domain.CashMovement, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, branch_id, cashier_id, direction, category, amount, movement_date,
			description, reference, locked, summary_id, created_by, created_at
		FROM cash_movements
		WHERE branch_id = $1 AND cashier_id = $2 AND movement_date = $3
		ORDER BY created_at, id
	`, key.BranchID, key.CashierID, key.Date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.CashMovement, 0, 16)
	for rows.Next() {
		var m domain.CashMovement
		var direction string
		var reference, summaryID sql.NullString
		if err := rows.Scan(&m.ID, &m.BranchID, &m.CashierID, &direction, &m.Category, &m.Amount, &m.Date,
			&m.Description, &reference, &m.Locked, &summaryID, &m.CreatedBy, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Direction = domain.MovementDirection(direction)
		m.Date = domain.DateOnly(m.Date)
		m.Reference = reference.String
		m.SummaryID = summaryID.String
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

func (t *dayTx) ListTransactions(ctx context.Context, key domain.DayKey) ([]domain.SalesTransaction, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, branch_id, cashier_id, patient_ref, kind, invoice_no, receipt_no, transaction_date,
			total_amount, paid_amount, balance, payment_status, payment_method, remarks,
			locked, summary_id, created_by, created_at
		FROM sales_transactions
		WHERE branch_id = $1 AND cashier_id = $2 AND transaction_date = $3
		ORDER BY created_at, id
	`, key.BranchID, key.CashierID, key.Date)
	if err != nil {
		return nil, err
	}

	transactions := make([]domain.SalesTransaction, 0, 32)
	index := make(map[string]int)
	ids := make([]string, 0, 32)
	for rows.Next() {
		var tx domain.SalesTransaction
		var status, method string
		var remarks, summaryID sql.NullString
		if err := rows.Scan(&tx.ID, &tx.BranchID, &tx.CashierID, &tx.PatientRef, &tx.Kind, &tx.InvoiceNo, &tx.ReceiptNo, &tx.Date,
			&tx.TotalAmount, &tx.PaidAmount, &tx.Balance, &status, &method, &remarks,
			&tx.Locked, &summaryID, &tx.CreatedBy, &tx.CreatedAt); err != nil {
			_ = rows.Close()
			return nil, err
		}
		tx.Date = domain.DateOnly(tx.Date)
		tx.PaymentStatus = domain.PaymentStatus(status)
		tx.PaymentMethod = domain.PaymentMethod(method)
		tx.Remarks = remarks.String
		tx.SummaryID = summaryID.String
		index[tx.ID] = len(transactions)
		ids = append(ids, tx.ID)
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if len(ids) == 0 {
		return transactions, nil
	}

	itemRows, err := t.tx.QueryContext(ctx, `
		SELECT transaction_id, product_id, quantity, unit_price, amount
		FROM sales_transaction_items
		WHERE transaction_id = ANY($1)
		ORDER BY transaction_id, line_no
	`, ids)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var transactionID string
		var item domain.LineItem
		if err := itemRows.Scan(&transactionID, &item.ProductID, &item.Quantity, &item.UnitPrice, &item.Amount); err != nil {
			return nil, err
		}
		if i, ok := index[transactionID]; ok {
			transactions[i].Items = append(transactions[i].Items, item)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}
	return transactions, nil
}

func (t *dayTx) InsertMovement(ctx context.Context, movement domain.CashMovement) (*domain.CashMovement, error) {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO cash_movements (
			id, branch_id, cashier_id, direction, category, amount, movement_date,
			description, reference, locked, summary_id, created_by, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, movement.ID, movement.BranchID, movement.CashierID, string(movement.Direction), movement.Category, movement.Amount,
		domain.DateOnly(movement.Date), movement.Description, nullIfEmpty(movement.Reference), movement.Locked,
		nullIfEmpty(movement.SummaryID), movement.CreatedBy, movement.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := movement
	return &created, nil
}

func (t *dayTx) InsertTransaction(ctx context.Context, tx domain.SalesTransaction) (*domain.SalesTransaction, error) {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sales_transactions (
			id, branch_id, cashier_id, patient_ref, kind, invoice_no, receipt_no, transaction_date,
			total_amount, paid_amount, balance, payment_status, payment_method, remarks,
			locked, summary_id, created_by, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, tx.ID, tx.BranchID, tx.CashierID, tx.PatientRef, tx.Kind, tx.InvoiceNo, tx.ReceiptNo, domain.DateOnly(tx.Date),
		tx.TotalAmount, tx.PaidAmount, tx.Balance, string(tx.PaymentStatus), string(tx.PaymentMethod), nullIfEmpty(tx.Remarks),
		tx.Locked, nullIfEmpty(tx.SummaryID), tx.CreatedBy, tx.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	for i, item := range tx.Items {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO sales_transaction_items (transaction_id, line_no, product_id, quantity, unit_price, amount)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, tx.ID, i+1, item.ProductID, item.Quantity, item.UnitPrice, item.Amount); err != nil {
			return nil, err
		}
	}

	created := tx
	return &created, nil
}

func (t *dayTx) LockDay(ctx context.Context, key domain.DayKey, summaryID string) (int, error) {
	movementResult, err := t.tx.ExecContext(ctx, `
		UPDATE cash_movements
		SET locked = true, summary_id = $4
		WHERE branch_id = $1 AND cashier_id = $2 AND movement_date = $3
	`, key.BranchID, key.CashierID, key.Date, summaryID)
	if err != nil {
		return 0, err
	}
	transactionResult, err := t.tx.ExecContext(ctx, `
		UPDATE sales_transactions
		SET locked = true, summary_id = $4
		WHERE branch_id = $1 AND cashier_id = $2 AND transaction_date = $3
	`, key.BranchID, key.CashierID, key.Date, summaryID)
	if err != nil {
		return 0, err
	}

	movements, err := movementResult.RowsAffected()
	if err != nil {
		return 0, err
	}
	transactions, err := transactionResult.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(movements + transactions), nil
}

// ResolvePrice prefers a branch-scoped price over the catalog price.
func (t *dayTx) ResolvePrice(ctx context.Context, branchID string, productID string) (decimal.Decimal, bool, error) {
	var price decimal.Decimal
	err := t.tx.QueryRowContext(ctx, `
		SELECT unit_price FROM branch_prices WHERE branch_id = $1 AND product_id = $2
	`, branchID, productID).Scan(&price)
	if err == nil {
		return price, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, false, err
	}

	err = t.tx.QueryRowContext(ctx, `
		SELECT unit_price FROM products WHERE id = $1 AND active = true
	`, productID).Scan(&price)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, err
	}
	return price, true, nil
}

func (t *dayTx) DecrementStock(ctx context.Context, branchID string, productID string, qty int) (domain.StockLevel, error) {
	level := domain.StockLevel{BranchID: branchID, ProductID: productID}
	var reorder, minStock sql.NullInt64
	err := t.tx.QueryRowContext(ctx, `
		UPDATE branch_stocks bs
		SET qty = bs.qty - $3, updated_at = NOW()
		FROM products p
		WHERE bs.branch_id = $1 AND bs.product_id = $2 AND bs.qty >= $3 AND p.id = bs.product_id
		RETURNING bs.qty, p.code, p.name, p.reorder_level, p.min_stock
	`, branchID, productID, qty).Scan(&level.Quantity, &level.ProductCode, &level.ProductName, &reorder, &minStock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.StockLevel{}, store.ErrInsufficientStock
		}
		return domain.StockLevel{}, err
	}
	level.ReorderLevel = nullIntPtr(reorder)
	level.MinStock = nullIntPtr(minStock)
	return level, nil
}

func (t *dayTx) NextDocumentSeq(ctx context.Context, branchID string, date time.Time) (int, error) {
	var seq int
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO document_sequences (branch_id, seq_date, last_seq)
		VALUES ($1, $2, 1)
		ON CONFLICT (branch_id, seq_date) DO UPDATE SET last_seq = document_sequences.last_seq + 1
		RETURNING last_seq
	`, branchID, domain.DateOnly(date)).Scan(&seq)
	return seq, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullDecimal(val *decimal.Decimal) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullIntPtr(val sql.NullInt64) *int {
	if !val.Valid {
		return nil
	}
	n := int(val.Int64)
	return &n
}
