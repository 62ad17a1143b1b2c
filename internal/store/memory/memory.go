package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"medikasir/backend/internal/domain"
	"medikasir/backend/internal/store"
)

const DefaultBranchID = "main-branch"

type Store struct {
	mu            sync.RWMutex
	products      map[string]domain.Product
	branchPrices  map[string]map[string]decimal.Decimal
	stock         map[string]map[string]int
	summaries     map[string]domain.DailySummary
	movements     map[string][]domain.CashMovement
	transactions  map[string][]domain.SalesTransaction
	documentNos   map[string]struct{}
	documentSeqs  map[string]int
	auditLogs     []domain.AuditLog
	notifications []domain.Notification
	recipients    []domain.Recipient
}

func New() *Store {
	return &Store{
		products:      make(map[string]domain.Product),
		branchPrices:  make(map[string]map[string]decimal.Decimal),
		stock:         make(map[string]map[string]int),
		summaries:     make(map[string]domain.DailySummary),
		movements:     make(map[string][]domain.CashMovement),
		transactions:  make(map[string][]domain.SalesTransaction),
		documentNos:   make(map[string]struct{}),
		documentSeqs:  make(map[string]int),
		auditLogs:     make([]domain.AuditLog, 0, 128),
		notifications: make([]domain.Notification, 0, 32),
	}
}

// NewSeeded returns a store with a small pharmacy catalog stocked at
// DefaultBranchID, for demos and tests.
func NewSeeded() *Store {
	s := New()
	reorder := func(n int) *int { return &n }

	products := []domain.Product{
		{ID: "PRD-PARA-500", Code: "PARA500", Name: "Paracetamol 500mg", UnitPrice: domain.Money("5.00"), ReorderLevel: reorder(20), Active: true},
		{ID: "PRD-AMOX-250", Code: "AMOX250", Name: "Amoxicillin 250mg", UnitPrice: domain.Money("12.50"), ReorderLevel: reorder(10), Active: true},
		{ID: "PRD-ORS-01", Code: "ORS01", Name: "Oral Rehydration Salts", UnitPrice: domain.Money("3.25"), MinStock: reorder(15), Active: true},
		{ID: "PRD-VITC-01", Code: "VITC01", Name: "Vitamin C 1000mg", UnitPrice: domain.Money("120.00"), Active: true},
		{ID: "PRD-BAND-01", Code: "BAND01", Name: "Adhesive Bandage", UnitPrice: domain.Money("0.10"), Active: true},
	}
	for _, p := range products {
		s.products[p.ID] = p
		s.setStockLocked(DefaultBranchID, p.ID, 120)
	}

	s.recipients = []domain.Recipient{
		{UserID: "usr-pharmacist-1", BranchID: DefaultBranchID, Role: "pharmacist"},
		{UserID: "usr-manager-1", BranchID: DefaultBranchID, Role: "branch_manager"},
		{UserID: "usr-cashier-1", BranchID: DefaultBranchID, Role: "cashier"},
	}
	return s
}

func (s *Store) PutProduct(product domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[product.ID] = product
}

// SetBranchPrice records a branch-scoped price that overrides the catalog price.
func (s *Store) SetBranchPrice(branchID string, productID string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.branchPrices[branchID]; !ok {
		s.branchPrices[branchID] = make(map[string]decimal.Decimal)
	}
	s.branchPrices[branchID][productID] = price
}

func (s *Store) SetStock(branchID string, productID string, qty int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setStockLocked(branchID, productID, qty)
}

func (s *Store) Stock(branchID string, productID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stock[branchID][productID]
}

func (s *Store) AddRecipient(recipient domain.Recipient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recipients = append(s.recipients, recipient)
}

func (s *Store) setStockLocked(branchID string, productID string, qty int) {
	if _, ok := s.stock[branchID]; !ok {
		s.stock[branchID] = make(map[string]int)
	}
	s.stock[branchID][productID] = qty
}

func (s *Store) WithDayLock(ctx context.Context, key domain.DayKey, fn func(ctx context.Context, tx store.DayTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &dayTx{store: s}
	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (s *Store) GetSummary(_ context.Context, key domain.DayKey) (*domain.DailySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary, ok := s.summaries[dayMapKey(key)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneSummary(summary), nil
}

func (s *Store) ListSummaries(_ context.Context, branchID string, cashierID string, limit int) ([]domain.DailySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.DailySummary, 0, 16)
	for _, summary := range s.summaries {
		if summary.BranchID != branchID || summary.CashierID != cashierID {
			continue
		}
		result = append(result, *cloneSummary(summary))
	}
	slices.SortFunc(result, func(a, b domain.DailySummary) int {
		return b.SummaryDate.Compare(a.SummaryDate)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ListBranchSummaries(_ context.Context, branchID string, date time.Time) ([]domain.DailySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	date = domain.DateOnly(date)
	result := make([]domain.DailySummary, 0, 8)
	for _, summary := range s.summaries {
		if summary.BranchID != branchID || !summary.SummaryDate.Equal(date) {
			continue
		}
		result = append(result, *cloneSummary(summary))
	}
	slices.SortFunc(result, func(a, b domain.DailySummary) int {
		return strings.Compare(a.CashierID, b.CashierID)
	})
	return result, nil
}

func (s *Store) ListActiveDayKeys(_ context.Context, date time.Time) ([]domain.DayKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	date = domain.DateOnly(date)
	seen := make(map[string]domain.DayKey)
	collect := func(branchID string, cashierID string, at time.Time) {
		key := domain.NewDayKey(branchID, cashierID, at)
		if !key.Date.Equal(date) {
			return
		}
		if summary, ok := s.summaries[dayMapKey(key)]; ok && summary.IsSubmitted() {
			return
		}
		seen[dayMapKey(key)] = key
	}
	for _, rows := range s.movements {
		for _, m := range rows {
			collect(m.BranchID, m.CashierID, m.Date)
		}
	}
	for _, rows := range s.transactions {
		for _, t := range rows {
			collect(t.BranchID, t.CashierID, t.Date)
		}
	}

	keys := make([]domain.DayKey, 0, len(seen))
	for _, key := range seen {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, func(a, b domain.DayKey) int {
		return strings.Compare(a.String(), b.String())
	})
	return keys, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" || entry.Action == "" {
		return fmt.Errorf("audit log requires id and action")
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, branchID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if branchID != "" && entry.BranchID != branchID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateNotification(_ context.Context, notification domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if notification.RecipientID == "" {
		return fmt.Errorf("notification requires recipient")
	}
	s.notifications = append(s.notifications, notification)
	return nil
}

func (s *Store) ListNotifications(_ context.Context, recipientID string, limit int) ([]domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Notification, 0, 8)
	for i := len(s.notifications) - 1; i >= 0; i-- {
		n := s.notifications[i]
		if recipientID != "" && n.RecipientID != recipientID {
			continue
		}
		result = append(result, n)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (s *Store) EligibleRecipients(_ context.Context, branchID string, roles []string) ([]domain.Recipient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Recipient, 0, len(s.recipients))
	for _, r := range s.recipients {
		if r.BranchID != branchID || !slices.Contains(roles, r.Role) {
			continue
		}
		result = append(result, r)
	}
	return result, nil
}

// dayTx runs with Store.mu held and records an undo step per write.
type dayTx struct {
	store *Store
	undo  []func()
}

func (t *dayTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *dayTx) GetSummaryForUpdate(_ context.Context, key domain.DayKey) (*domain.DailySummary, error) {
	summary, ok := t.store.summaries[dayMapKey(key)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneSummary(summary), nil
}

func (t *dayTx) UpsertSummary(_ context.Context, summary domain.DailySummary) (*domain.DailySummary, error) {
	mapKey := dayMapKey(summary.Key())
	previous, existed := t.store.summaries[mapKey]
	if existed && previous.ID != summary.ID {
		return nil, store.ErrConflict
	}

	summary.SummaryDate = domain.DateOnly(summary.SummaryDate)
	t.store.summaries[mapKey] = *cloneSummary(summary)
	t.undo = append(t.undo, func() {
		if existed {
			t.store.summaries[mapKey] = previous
			return
		}
		delete(t.store.summaries, mapKey)
	})
	return cloneSummary(summary), nil
}

func (t *dayTx) ListMovements(_ context.Context, key domain.DayKey) ([]domain.CashMovement, error) {
	rows := t.store.movements[dayMapKey(key)]
	return slices.Clone(rows), nil
}

func (t *dayTx) ListTransactions(_ context.Context, key domain.DayKey) ([]domain.SalesTransaction, error) {
	rows := t.store.transactions[dayMapKey(key)]
	result := make([]domain.SalesTransaction, 0, len(rows))
	for _, row := range rows {
		result = append(result, cloneTransaction(row))
	}
	return result, nil
}

func (t *dayTx) InsertMovement(_ context.Context, movement domain.CashMovement) (*domain.CashMovement, error) {
	mapKey := dayMapKey(domain.NewDayKey(movement.BranchID, movement.CashierID, movement.Date))
	before := t.store.movements[mapKey]
	t.store.movements[mapKey] = append(slices.Clone(before), movement)
	t.undo = append(t.undo, func() { t.store.movements[mapKey] = before })

	created := movement
	return &created, nil
}

func (t *dayTx) InsertTransaction(_ context.Context, tx domain.SalesTransaction) (*domain.SalesTransaction, error) {
	date := domain.DateOnly(tx.Date).Format(domain.DateLayout)
	invoiceKey := strings.Join([]string{tx.BranchID, date, "inv", tx.InvoiceNo}, "|")
	receiptKey := strings.Join([]string{tx.BranchID, date, "rcp", tx.ReceiptNo}, "|")
	if _, dup := t.store.documentNos[invoiceKey]; dup {
		return nil, store.ErrConflict
	}
	if _, dup := t.store.documentNos[receiptKey]; dup {
		return nil, store.ErrConflict
	}

	mapKey := dayMapKey(domain.NewDayKey(tx.BranchID, tx.CashierID, tx.Date))
	before := t.store.transactions[mapKey]
	t.store.transactions[mapKey] = append(slices.Clone(before), cloneTransaction(tx))
	t.store.documentNos[invoiceKey] = struct{}{}
	t.store.documentNos[receiptKey] = struct{}{}
	t.undo = append(t.undo, func() {
		t.store.transactions[mapKey] = before
		delete(t.store.documentNos, invoiceKey)
		delete(t.store.documentNos, receiptKey)
	})

	created := cloneTransaction(tx)
	return &created, nil
}

func (t *dayTx) LockDay(_ context.Context, key domain.DayKey, summaryID string) (int, error) {
	mapKey := dayMapKey(key)
	movementsBefore := t.store.movements[mapKey]
	transactionsBefore := t.store.transactions[mapKey]

	movements := slices.Clone(movementsBefore)
	for i := range movements {
		movements[i].Locked = true
		movements[i].SummaryID = summaryID
	}
	transactions := make([]domain.SalesTransaction, 0, len(transactionsBefore))
	for _, row := range transactionsBefore {
		locked := cloneTransaction(row)
		locked.Locked = true
		locked.SummaryID = summaryID
		transactions = append(transactions, locked)
	}

	t.store.movements[mapKey] = movements
	t.store.transactions[mapKey] = transactions
	t.undo = append(t.undo, func() {
		t.store.movements[mapKey] = movementsBefore
		t.store.transactions[mapKey] = transactionsBefore
	})
	return len(movements) + len(transactions), nil
}

func (t *dayTx) ResolvePrice(_ context.Context, branchID string, productID string) (decimal.Decimal, bool, error) {
	if price, ok := t.store.branchPrices[branchID][productID]; ok {
		return price, true, nil
	}
	product, ok := t.store.products[productID]
	if !ok || !product.Active {
		return decimal.Zero, false, nil
	}
	return product.UnitPrice, true, nil
}

func (t *dayTx) DecrementStock(_ context.Context, branchID string, productID string, qty int) (domain.StockLevel, error) {
	branchStock, ok := t.store.stock[branchID]
	if !ok {
		return domain.StockLevel{}, store.ErrInsufficientStock
	}
	current, ok := branchStock[productID]
	if !ok || current < qty {
		return domain.StockLevel{}, store.ErrInsufficientStock
	}

	branchStock[productID] = current - qty
	t.undo = append(t.undo, func() { branchStock[productID] = current })

	product := t.store.products[productID]
	return domain.StockLevel{
		BranchID:     branchID,
		ProductID:    productID,
		ProductCode:  product.Code,
		ProductName:  product.Name,
		Quantity:     current - qty,
		ReorderLevel: product.ReorderLevel,
		MinStock:     product.MinStock,
	}, nil
}

func (t *dayTx) NextDocumentSeq(_ context.Context, branchID string, date time.Time) (int, error) {
	seqKey := branchID + "|" + domain.DateOnly(date).Format(domain.DateLayout)
	previous := t.store.documentSeqs[seqKey]
	t.store.documentSeqs[seqKey] = previous + 1
	t.undo = append(t.undo, func() { t.store.documentSeqs[seqKey] = previous })
	return previous + 1, nil
}

func dayMapKey(key domain.DayKey) string {
	return key.BranchID + "|" + key.CashierID + "|" + key.DateString()
}

func cloneSummary(src domain.DailySummary) *domain.DailySummary {
	dst := src
	if src.ActualCash != nil {
		actual := *src.ActualCash
		dst.ActualCash = &actual
	}
	if src.Variance != nil {
		variance := *src.Variance
		dst.Variance = &variance
	}
	if src.SubmittedAt != nil {
		at := *src.SubmittedAt
		dst.SubmittedAt = &at
	}
	return &dst
}

func cloneTransaction(src domain.SalesTransaction) domain.SalesTransaction {
	dst := src
	dst.Items = slices.Clone(src.Items)
	return dst
}
