package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"medikasir/backend/internal/domain"
	"medikasir/backend/internal/events"
	"medikasir/backend/internal/metrics"
	"medikasir/backend/internal/notify"
	"medikasir/backend/internal/store"
	"medikasir/backend/internal/store/memory"
)

const (
	testBranch  = memory.DefaultBranchID
	testCashier = "usr-cashier-1"
)

var testDay = time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

type fixture struct {
	svc  *Service
	repo *memory.Store
	now  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo: memory.NewSeeded(),
		now:  testDay.Add(9 * time.Hour),
	}
	clock := func() time.Time { return f.now }

	bus := events.NewInMemoryBus(nil)
	emitter := notify.NewEmitter(f.repo, notify.NewMemoryDeduper().WithClock(clock), notify.Config{Clock: clock}, nil, nil)
	bus.Subscribe(emitter, emitter.EventTypes()...)

	f.svc = New(f.repo, Config{
		Publisher: bus,
		Metrics:   metrics.New(),
		Clock:     clock,
	})
	return f
}

func saleRequest(method domain.PaymentMethod, paid string, lines ...domain.SaleLineRequest) domain.SalesTransactionRequest {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Amount)
	}
	return domain.SalesTransactionRequest{
		BranchID:      testBranch,
		CashierID:     testCashier,
		PatientRef:    "PAT-0001",
		Kind:          "OTC",
		Date:          testDay,
		Items:         lines,
		PaymentMethod: method,
		PaidAmount:    domain.Money(paid),
		TotalAmount:   total,
	}
}

func line(productID string, qty int, amount string) domain.SaleLineRequest {
	return domain.SaleLineRequest{ProductID: productID, Quantity: qty, Amount: domain.Money(amount)}
}

func cashOut(amount string) domain.CashMovementRequest {
	return domain.CashMovementRequest{
		BranchID:    testBranch,
		CashierID:   testCashier,
		Direction:   domain.CashOut,
		Category:    "petty_cash",
		Amount:      domain.Money(amount),
		Date:        testDay,
		Description: "courier fee",
	}
}

func submitRequest(actual string, remarks string) domain.SubmitEodRequest {
	return domain.SubmitEodRequest{
		BranchID:        testBranch,
		CashierID:       testCashier,
		Date:            testDay,
		ActualCash:      domain.Money(actual),
		VarianceRemarks: remarks,
	}
}

func assertMoney(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(domain.Money(want)) {
		t.Fatalf("%s: expected %s, got %s", name, want, got.StringFixed(2))
	}
}

func assertKind(t *testing.T, err error, kind domain.ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", kind)
	}
	if got := domain.KindOf(err); got != kind {
		t.Fatalf("expected %s, got %s (%v)", kind, got, err)
	}
}

// seedCashDay records one 500.00 cash sale and a 50.00 cash-out.
func seedCashDay(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.svc.CreateSalesTransaction(ctx, saleRequest(domain.PaymentCash, "500.00", line("PRD-PARA-500", 100, "500.00"))); err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if _, err := f.svc.CreateCashMovement(ctx, cashOut("50.00")); err != nil {
		t.Fatalf("create movement: %v", err)
	}
}

func TestPreviewExpectedCashBalance(t *testing.T) {
	f := newFixture(t)
	seedCashDay(t, f)

	summary, err := f.svc.GetSummaryPreview(context.Background(), testBranch, testCashier, testDay)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	assertMoney(t, "expected cash", summary.ExpectedCash, "450.00")
	assertMoney(t, "cash total", summary.CashTotal, "500.00")
	assertMoney(t, "cash out", summary.CashOutTotal, "50.00")
	if summary.Status != domain.SummaryOpen {
		t.Fatalf("expected OPEN, got %s", summary.Status)
	}
	if summary.TransactionCount != 1 || summary.CashCount != 1 {
		t.Fatalf("expected one cash transaction, got %d/%d", summary.TransactionCount, summary.CashCount)
	}
}

func TestPreviewIsStableAcrossCalls(t *testing.T) {
	f := newFixture(t)
	seedCashDay(t, f)
	ctx := context.Background()

	first, err := f.svc.GetSummaryPreview(ctx, testBranch, testCashier, testDay)
	if err != nil {
		t.Fatalf("first preview: %v", err)
	}
	second, err := f.svc.GetSummaryPreview(ctx, testBranch, testCashier, testDay)
	if err != nil {
		t.Fatalf("second preview: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected the same summary row, got %s and %s", first.ID, second.ID)
	}
	assertMoney(t, "expected cash", second.ExpectedCash, first.ExpectedCash.String())
}

func TestSubmitRecordsNegativeVarianceWithDefaultRemark(t *testing.T) {
	f := newFixture(t)
	seedCashDay(t, f)

	summary, err := f.svc.SubmitEod(context.Background(), submitRequest("440.00", ""))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if summary.Status != domain.SummarySubmitted {
		t.Fatalf("expected SUBMITTED, got %s", summary.Status)
	}
	assertMoney(t, "variance", *summary.Variance, "-10.00")
	assertMoney(t, "actual", *summary.ActualCash, "440.00")
	if summary.VarianceRemarks != "Variance detected" {
		t.Fatalf("expected default remark, got %q", summary.VarianceRemarks)
	}
	if summary.SubmittedAt == nil || summary.SubmittedBy != testCashier {
		t.Fatalf("expected submit stamp, got %v by %q", summary.SubmittedAt, summary.SubmittedBy)
	}
}

func TestSubmitKeepsCallerRemarkAndLeavesZeroVarianceBlank(t *testing.T) {
	f := newFixture(t)
	seedCashDay(t, f)

	summary, err := f.svc.SubmitEod(context.Background(), submitRequest("450.00", ""))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	assertMoney(t, "variance", *summary.Variance, "0")
	if summary.VarianceRemarks != "" {
		t.Fatalf("expected no remark for zero variance, got %q", summary.VarianceRemarks)
	}

	other := newFixture(t)
	seedCashDay(t, other)
	summary, err = other.svc.SubmitEod(context.Background(), submitRequest("455.00", "found coin tray"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	assertMoney(t, "variance", *summary.Variance, "5.00")
	if summary.VarianceRemarks != "found coin tray" {
		t.Fatalf("expected caller remark, got %q", summary.VarianceRemarks)
	}
}

func TestSubmitLocksTheDay(t *testing.T) {
	f := newFixture(t)
	seedCashDay(t, f)
	ctx := context.Background()

	summary, err := f.svc.SubmitEod(ctx, submitRequest("450.00", ""))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	_, err = f.svc.CreateCashMovement(ctx, cashOut("5.00"))
	assertKind(t, err, domain.KindEodLocked)
	if !errors.Is(err, domain.ErrEodLocked) {
		t.Fatalf("expected errors.Is ErrEodLocked, got %v", err)
	}

	before := f.repo.Stock(testBranch, "PRD-AMOX-250")
	_, err = f.svc.CreateSalesTransaction(ctx, saleRequest(domain.PaymentCard, "12.50", line("PRD-AMOX-250", 1, "12.50")))
	assertKind(t, err, domain.KindEodLocked)
	if after := f.repo.Stock(testBranch, "PRD-AMOX-250"); after != before {
		t.Fatalf("stock changed on a locked day: %d -> %d", before, after)
	}

	preview, err := f.svc.GetSummaryPreview(ctx, testBranch, testCashier, testDay)
	if err != nil {
		t.Fatalf("preview after submit: %v", err)
	}
	if preview.ID != summary.ID || preview.Status != domain.SummarySubmitted {
		t.Fatalf("expected the submitted row back, got %s %s", preview.ID, preview.Status)
	}
	assertMoney(t, "expected cash", preview.ExpectedCash, "450.00")
}

func TestSecondSubmitIsRejectedAndKeepsFirstValues(t *testing.T) {
	f := newFixture(t)
	seedCashDay(t, f)
	ctx := context.Background()

	if _, err := f.svc.SubmitEod(ctx, submitRequest("440.00", "")); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	_, err := f.svc.SubmitEod(ctx, submitRequest("999.00", "retry"))
	assertKind(t, err, domain.KindAlreadySubmitted)

	stored, err := f.svc.GetSummary(ctx, testBranch, testCashier, testDay)
	if err != nil {
		t.Fatalf("get summary: %v", err)
	}
	assertMoney(t, "actual", *stored.ActualCash, "440.00")
	assertMoney(t, "variance", *stored.Variance, "-10.00")
}

func TestSubmitWithoutActivity(t *testing.T) {
	f := newFixture(t)

	summary, err := f.svc.SubmitEod(context.Background(), submitRequest("0", ""))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	assertMoney(t, "expected cash", summary.ExpectedCash, "0")
	assertMoney(t, "variance", *summary.Variance, "0")
	if summary.TransactionCount != 0 {
		t.Fatalf("expected no transactions, got %d", summary.TransactionCount)
	}
}

func TestSaleRejectedOnPriceMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before := f.repo.Stock(testBranch, "PRD-VITC-01")

	_, err := f.svc.CreateSalesTransaction(ctx, saleRequest(domain.PaymentCash, "361.00", line("PRD-VITC-01", 3, "361.00")))
	assertKind(t, err, domain.KindPriceMismatch)

	var mismatch *domain.PriceMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected *PriceMismatchError, got %T", err)
	}
	assertMoney(t, "expected", mismatch.Expected, "360.00")
	if after := f.repo.Stock(testBranch, "PRD-VITC-01"); after != before {
		t.Fatalf("rejected sale changed stock: %d -> %d", before, after)
	}

	preview, err := f.svc.GetSummaryPreview(ctx, testBranch, testCashier, testDay)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if preview.TransactionCount != 0 {
		t.Fatalf("rejected sale was recorded")
	}
}

func TestSaleAcceptedWithinTolerance(t *testing.T) {
	f := newFixture(t)

	tx, err := f.svc.CreateSalesTransaction(context.Background(), saleRequest(domain.PaymentCash, "360.009", line("PRD-VITC-01", 3, "360.009")))
	if err != nil {
		t.Fatalf("sale within tolerance rejected: %v", err)
	}
	assertMoney(t, "stored total", tx.TotalAmount, "360.00")
	assertMoney(t, "line amount", tx.Items[0].Amount, "360.00")
	if tx.PaymentStatus != domain.PaymentPaid {
		t.Fatalf("expected PAID, got %s", tx.PaymentStatus)
	}
	if got := f.repo.Stock(testBranch, "PRD-VITC-01"); got != 117 {
		t.Fatalf("expected stock 117, got %d", got)
	}
}

func TestSaleRejectsUnknownProduct(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateSalesTransaction(context.Background(), saleRequest(domain.PaymentCash, "1.00", line("PRD-NOPE", 1, "1.00")))
	assertKind(t, err, domain.KindInvalidProduct)
}

func TestSaleUsesBranchPriceOverCatalog(t *testing.T) {
	f := newFixture(t)
	f.repo.SetBranchPrice(testBranch, "PRD-AMOX-250", domain.Money("11.00"))
	ctx := context.Background()

	_, err := f.svc.CreateSalesTransaction(ctx, saleRequest(domain.PaymentCash, "12.50", line("PRD-AMOX-250", 1, "12.50")))
	assertKind(t, err, domain.KindPriceMismatch)

	if _, err := f.svc.CreateSalesTransaction(ctx, saleRequest(domain.PaymentCash, "11.00", line("PRD-AMOX-250", 1, "11.00"))); err != nil {
		t.Fatalf("branch price sale: %v", err)
	}
}

func TestSaleRollsBackWhenStockRunsOut(t *testing.T) {
	f := newFixture(t)
	f.repo.SetStock(testBranch, "PRD-ORS-01", 1)
	ctx := context.Background()

	_, err := f.svc.CreateSalesTransaction(ctx, saleRequest(domain.PaymentCash, "11.50",
		line("PRD-PARA-500", 1, "5.00"),
		line("PRD-ORS-01", 2, "6.50"),
	))
	assertKind(t, err, domain.KindValidation)

	if got := f.repo.Stock(testBranch, "PRD-PARA-500"); got != 120 {
		t.Fatalf("first line was not rolled back, stock %d", got)
	}
	tx, err := f.svc.CreateSalesTransaction(ctx, saleRequest(domain.PaymentCash, "5.00", line("PRD-PARA-500", 1, "5.00")))
	if err != nil {
		t.Fatalf("follow-up sale: %v", err)
	}
	if !strings.HasSuffix(tx.InvoiceNo, "-0001") {
		t.Fatalf("sequence consumed by rolled-back sale: %s", tx.InvoiceNo)
	}
}

func TestSaleNumbersInvoiceAndReceipt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateSalesTransaction(ctx, saleRequest(domain.PaymentQR, "5.00", line("PRD-PARA-500", 1, "5.00")))
	if err != nil {
		t.Fatalf("first sale: %v", err)
	}
	second, err := f.svc.CreateSalesTransaction(ctx, saleRequest(domain.PaymentOnline, "5.00", line("PRD-PARA-500", 1, "5.00")))
	if err != nil {
		t.Fatalf("second sale: %v", err)
	}

	if first.InvoiceNo != "INV-main-branch-20240603-0001" || first.ReceiptNo != "RCP-main-branch-20240603-0001" {
		t.Fatalf("unexpected document numbers %s %s", first.InvoiceNo, first.ReceiptNo)
	}
	if second.InvoiceNo != "INV-main-branch-20240603-0002" {
		t.Fatalf("unexpected second invoice %s", second.InvoiceNo)
	}
}

func TestPartialPaymentCountsPaidAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tx, err := f.svc.CreateSalesTransaction(ctx, saleRequest(domain.PaymentCash, "100.00", line("PRD-VITC-01", 1, "120.00")))
	if err != nil {
		t.Fatalf("sale: %v", err)
	}
	if tx.PaymentStatus != domain.PaymentPartial {
		t.Fatalf("expected PARTIAL, got %s", tx.PaymentStatus)
	}
	assertMoney(t, "balance", tx.Balance, "20.00")

	summary, err := f.svc.GetSummaryPreview(ctx, testBranch, testCashier, testDay)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	assertMoney(t, "cash total", summary.CashTotal, "100.00")
	assertMoney(t, "expected cash", summary.ExpectedCash, "100.00")
}

func TestCashMovementAndSaleValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bad := cashOut("10.00")
	bad.Direction = "SIDEWAYS"
	_, err := f.svc.CreateCashMovement(ctx, bad)
	assertKind(t, err, domain.KindValidation)

	negative := cashOut("-1.00")
	_, err = f.svc.CreateCashMovement(ctx, negative)
	assertKind(t, err, domain.KindValidation)

	_, err = f.svc.CreateSalesTransaction(ctx, saleRequest(domain.PaymentCash, "0"))
	assertKind(t, err, domain.KindValidation)

	_, err = f.svc.CreateSalesTransaction(ctx, saleRequest(domain.PaymentCash, "5.00", line("PRD-PARA-500", 0, "0")))
	assertKind(t, err, domain.KindValidation)

	_, err = f.svc.CreateSalesTransaction(ctx, saleRequest("CHEQUE", "5.00", line("PRD-PARA-500", 1, "5.00")))
	assertKind(t, err, domain.KindValidation)

	overpaid := saleRequest(domain.PaymentCash, "6.00", line("PRD-PARA-500", 1, "5.00"))
	_, err = f.svc.CreateSalesTransaction(ctx, overpaid)
	assertKind(t, err, domain.KindValidation)

	_, err = f.svc.SubmitEod(ctx, submitRequest("-5.00", ""))
	assertKind(t, err, domain.KindValidation)
}

func TestLowStockAlertIsSentOncePerRecipient(t *testing.T) {
	f := newFixture(t)
	f.repo.SetStock(testBranch, "PRD-AMOX-250", 12)
	ctx := context.Background()

	if _, err := f.svc.CreateSalesTransaction(ctx, saleRequest(domain.PaymentCash, "50.00", line("PRD-AMOX-250", 4, "50.00"))); err != nil {
		t.Fatalf("first sale: %v", err)
	}
	if got := f.repo.Stock(testBranch, "PRD-AMOX-250"); got != 8 {
		t.Fatalf("expected stock 8, got %d", got)
	}

	f.now = f.now.Add(2 * time.Hour)
	if _, err := f.svc.CreateSalesTransaction(ctx, saleRequest(domain.PaymentCash, "50.00", line("PRD-AMOX-250", 4, "50.00"))); err != nil {
		t.Fatalf("second sale: %v", err)
	}

	for _, recipient := range []string{"usr-pharmacist-1", "usr-manager-1"} {
		notes, err := f.repo.ListNotifications(ctx, recipient, 0)
		if err != nil {
			t.Fatalf("list notifications: %v", err)
		}
		if len(notes) != 1 {
			t.Fatalf("expected one alert for %s, got %d", recipient, len(notes))
		}
	}
	cashierNotes, err := f.repo.ListNotifications(ctx, testCashier, 0)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(cashierNotes) != 0 {
		t.Fatalf("cashier should not receive stock alerts")
	}
}

func TestOperationsAreAudited(t *testing.T) {
	f := newFixture(t)
	seedCashDay(t, f)
	ctx := context.Background()

	if _, err := f.svc.SubmitEod(ctx, submitRequest("450.00", "")); err != nil {
		t.Fatalf("submit: %v", err)
	}

	logs, err := f.svc.ListAuditLogs(ctx, testBranch, testDay, testDay.Add(24*time.Hour), 0)
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	actions := make(map[string]int)
	for _, entry := range logs {
		actions[entry.Action]++
		if !entry.CreatedAt.Equal(f.now) {
			t.Fatalf("audit entry %s stamped %s, expected the service clock %s", entry.Action, entry.CreatedAt, f.now)
		}
	}
	for _, action := range []string{domain.AuditActionTransactionCreate, domain.AuditActionMovementCreate, domain.AuditActionEodSubmit} {
		if actions[action] != 1 {
			t.Fatalf("expected one %s audit entry, got %d", action, actions[action])
		}
	}
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, ...events.Event) error {
	return errors.New("broker unavailable")
}

func TestPublishFailureDoesNotFailTheOperation(t *testing.T) {
	repo := memory.NewSeeded()
	svc := New(repo, Config{Publisher: failingPublisher{}})
	ctx := context.Background()

	tx, err := svc.CreateSalesTransaction(ctx, saleRequest(domain.PaymentCard, "5.00", line("PRD-PARA-500", 1, "5.00")))
	if err != nil {
		t.Fatalf("sale failed because of the publisher: %v", err)
	}
	if tx.ID == "" {
		t.Fatalf("expected a stored transaction")
	}
	if _, err := svc.SubmitEod(ctx, submitRequest("0", "")); err != nil {
		t.Fatalf("submit failed because of the publisher: %v", err)
	}
}

func TestHistoryAndBranchRollup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedCashDay(t, f)
	if _, err := f.svc.SubmitEod(ctx, submitRequest("440.00", "")); err != nil {
		t.Fatalf("submit: %v", err)
	}

	second := saleRequest(domain.PaymentCard, "12.50", line("PRD-AMOX-250", 1, "12.50"))
	second.CashierID = "usr-cashier-2"
	if _, err := f.svc.CreateSalesTransaction(ctx, second); err != nil {
		t.Fatalf("second cashier sale: %v", err)
	}
	if _, err := f.svc.GetSummaryPreview(ctx, testBranch, "usr-cashier-2", testDay); err != nil {
		t.Fatalf("second cashier preview: %v", err)
	}

	history, err := f.svc.GetEodHistory(ctx, testBranch, testCashier, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Status != domain.SummarySubmitted {
		t.Fatalf("unexpected history %+v", history)
	}

	rollup, err := f.svc.GetBranchRollup(ctx, testBranch, testDay)
	if err != nil {
		t.Fatalf("rollup: %v", err)
	}
	if rollup.Cashiers != 2 || rollup.SubmittedCount != 1 {
		t.Fatalf("expected 2 cashiers with 1 submitted, got %d/%d", rollup.Cashiers, rollup.SubmittedCount)
	}
	assertMoney(t, "total sales", rollup.TotalSales, "512.50")
	assertMoney(t, "variance", rollup.Variance, "-10.00")

	_, err = f.svc.GetEodHistory(ctx, "", testCashier, 0)
	assertKind(t, err, domain.KindValidation)
}

func TestGetSummaryReportsMissingDay(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetSummary(context.Background(), testBranch, testCashier, testDay)
	assertKind(t, err, domain.KindNotFound)
}

func TestListActiveDayKeysSkipsSubmittedDays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedCashDay(t, f)

	keys, err := f.svc.ListActiveDayKeys(ctx, testDay)
	if err != nil {
		t.Fatalf("active keys: %v", err)
	}
	if len(keys) != 1 || keys[0].CashierID != testCashier {
		t.Fatalf("unexpected keys %+v", keys)
	}

	if _, err := f.svc.SubmitEod(ctx, submitRequest("450.00", "")); err != nil {
		t.Fatalf("submit: %v", err)
	}
	keys, err = f.svc.ListActiveDayKeys(ctx, testDay)
	if err != nil {
		t.Fatalf("active keys: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("submitted day still active: %+v", keys)
	}
}

var _ store.Repository = (*memory.Store)(nil)

func TestSubCentInputsAreRoundedToCents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tx, err := f.svc.CreateSalesTransaction(ctx, saleRequest(domain.PaymentCash, "359.991", line("PRD-VITC-01", 3, "359.991")))
	if err != nil {
		t.Fatalf("sale: %v", err)
	}
	if tx.PaymentStatus != domain.PaymentPaid {
		t.Fatalf("expected PAID, got %s", tx.PaymentStatus)
	}
	assertMoney(t, "total", tx.TotalAmount, "360.00")
	assertMoney(t, "paid", tx.PaidAmount, "360.00")
	assertMoney(t, "balance", tx.Balance, "0")

	movement, err := f.svc.CreateCashMovement(ctx, cashOut("50.005"))
	if err != nil {
		t.Fatalf("movement: %v", err)
	}
	assertMoney(t, "movement amount", movement.Amount, "50.01")

	summary, err := f.svc.SubmitEod(ctx, submitRequest("309.994", ""))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	assertMoney(t, "expected cash", summary.ExpectedCash, "309.99")
	assertMoney(t, "actual", *summary.ActualCash, "309.99")
	assertMoney(t, "variance", *summary.Variance, "0")
	if summary.VarianceRemarks != "" {
		t.Fatalf("balanced drawer got remark %q", summary.VarianceRemarks)
	}
}

func TestHalfCentCountKeepsVarianceConsistent(t *testing.T) {
	f := newFixture(t)
	seedCashDay(t, f)

	summary, err := f.svc.SubmitEod(context.Background(), submitRequest("440.005", ""))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	assertMoney(t, "actual", *summary.ActualCash, "440.01")
	assertMoney(t, "variance", *summary.Variance, "-9.99")
	if !summary.Variance.Equal(summary.ActualCash.Sub(summary.ExpectedCash)) {
		t.Fatalf("variance %s != actual %s - expected %s", summary.Variance, summary.ActualCash, summary.ExpectedCash)
	}
}

func TestConcurrentSubmitsHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	seedCashDay(t, f)
	ctx := context.Background()

	const callers = 20
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.SubmitEod(ctx, submitRequest("450.00", ""))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, already int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrAlreadySubmitted):
			already++
		default:
			t.Fatalf("unexpected submit error: %v", err)
		}
	}
	if ok != 1 || already != callers-1 {
		t.Fatalf("expected 1 success and %d rejections, got %d and %d", callers-1, ok, already)
	}

	_, err := f.svc.CreateCashMovement(ctx, cashOut("1.00"))
	assertKind(t, err, domain.KindEodLocked)
}

type lockFailingRepo struct {
	*memory.Store
}

func (r lockFailingRepo) WithDayLock(ctx context.Context, key domain.DayKey, fn func(ctx context.Context, tx store.DayTx) error) error {
	return r.Store.WithDayLock(ctx, key, func(ctx context.Context, tx store.DayTx) error {
		return fn(ctx, lockFailingTx{DayTx: tx})
	})
}

type lockFailingTx struct {
	store.DayTx
}

func (lockFailingTx) LockDay(context.Context, domain.DayKey, string) (int, error) {
	return 0, errors.New("lock ledger rows: connection reset")
}

func TestFailedDayLockLeavesSummaryOpen(t *testing.T) {
	f := newFixture(t)
	seedCashDay(t, f)
	ctx := context.Background()

	if _, err := f.svc.GetSummaryPreview(ctx, testBranch, testCashier, testDay); err != nil {
		t.Fatalf("preview: %v", err)
	}

	broken := New(lockFailingRepo{Store: f.repo}, Config{})
	_, err := broken.SubmitEod(ctx, submitRequest("440.00", ""))
	assertKind(t, err, domain.KindPersistence)

	stored, err := f.svc.GetSummary(ctx, testBranch, testCashier, testDay)
	if err != nil {
		t.Fatalf("get summary: %v", err)
	}
	if stored.Status != domain.SummaryOpen || stored.ActualCash != nil {
		t.Fatalf("expected untouched OPEN summary, got %s actual=%v", stored.Status, stored.ActualCash)
	}

	key := domain.NewDayKey(testBranch, testCashier, testDay)
	err = f.repo.WithDayLock(ctx, key, func(ctx context.Context, tx store.DayTx) error {
		movements, err := tx.ListMovements(ctx, key)
		if err != nil {
			return err
		}
		transactions, err := tx.ListTransactions(ctx, key)
		if err != nil {
			return err
		}
		for _, m := range movements {
			if m.Locked || m.SummaryID != "" {
				t.Fatalf("movement %s stayed locked after rollback", m.ID)
			}
		}
		for _, tr := range transactions {
			if tr.Locked || tr.SummaryID != "" {
				t.Fatalf("transaction %s stayed locked after rollback", tr.ID)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read ledger: %v", err)
	}

	if _, err := f.svc.CreateCashMovement(ctx, cashOut("5.00")); err != nil {
		t.Fatalf("day should still accept movements: %v", err)
	}
	if _, err := f.svc.SubmitEod(ctx, submitRequest("445.00", "")); err != nil {
		t.Fatalf("submit after failed lock: %v", err)
	}
}
