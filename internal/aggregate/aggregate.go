// Package aggregate folds a day's ledger rows into reconciliation totals.
package aggregate

import (
	"github.com/shopspring/decimal"

	"medikasir/backend/internal/domain"
)

// Totals is the pure result of folding one day's ledger. Computing it twice
// over the same rows yields identical values.
type Totals struct {
	CashTotal        decimal.Decimal
	CashCount        int
	CardTotal        decimal.Decimal
	CardCount        int
	OnlineTotal      decimal.Decimal
	OnlineCount      int
	QRTotal          decimal.Decimal
	QRCount          int
	CashInTotal      decimal.Decimal
	CashOutTotal     decimal.Decimal
	TransactionCount int
	TotalSales       decimal.Decimal
	ExpectedCash     decimal.Decimal
}

// Compute sums sales per payment method and movements per direction.
// Sales count at their paid amount; expected cash is cash-method receipts
// plus cash-in minus cash-out.
func Compute(transactions []domain.SalesTransaction, movements []domain.CashMovement) Totals {
	totals := Totals{
		CashTotal:    decimal.Zero,
		CardTotal:    decimal.Zero,
		OnlineTotal:  decimal.Zero,
		QRTotal:      decimal.Zero,
		CashInTotal:  decimal.Zero,
		CashOutTotal: decimal.Zero,
		TotalSales:   decimal.Zero,
	}

	for _, tx := range transactions {
		paid := tx.PaidAmount
		switch tx.PaymentMethod {
		case domain.PaymentCash:
			totals.CashTotal = totals.CashTotal.Add(paid)
			totals.CashCount++
		case domain.PaymentCard:
			totals.CardTotal = totals.CardTotal.Add(paid)
			totals.CardCount++
		case domain.PaymentOnline:
			totals.OnlineTotal = totals.OnlineTotal.Add(paid)
			totals.OnlineCount++
		case domain.PaymentQR:
			totals.QRTotal = totals.QRTotal.Add(paid)
			totals.QRCount++
		default:
			continue
		}
		totals.TransactionCount++
		totals.TotalSales = totals.TotalSales.Add(paid)
	}

	for _, movement := range movements {
		switch movement.Direction {
		case domain.CashIn:
			totals.CashInTotal = totals.CashInTotal.Add(movement.Amount)
		case domain.CashOut:
			totals.CashOutTotal = totals.CashOutTotal.Add(movement.Amount)
		}
	}

	totals.ExpectedCash = totals.CashTotal.Add(totals.CashInTotal).Sub(totals.CashOutTotal)
	return totals
}

// Apply copies totals onto a summary row, leaving identity and status alone.
func (t Totals) Apply(summary *domain.DailySummary) {
	summary.CashTotal = t.CashTotal
	summary.CashCount = t.CashCount
	summary.CardTotal = t.CardTotal
	summary.CardCount = t.CardCount
	summary.OnlineTotal = t.OnlineTotal
	summary.OnlineCount = t.OnlineCount
	summary.QRTotal = t.QRTotal
	summary.QRCount = t.QRCount
	summary.CashInTotal = t.CashInTotal
	summary.CashOutTotal = t.CashOutTotal
	summary.TransactionCount = t.TransactionCount
	summary.TotalSales = t.TotalSales
	summary.ExpectedCash = t.ExpectedCash
}

// Variance is counted minus expected; negative means a shortfall.
func Variance(expected decimal.Decimal, counted decimal.Decimal) decimal.Decimal {
	return counted.Sub(expected)
}

// Rollup sums cashier summaries of one branch-day.
func Rollup(branchID string, date string, summaries []domain.DailySummary) domain.BranchRollup {
	rollup := domain.BranchRollup{
		BranchID:     branchID,
		Date:         date,
		TotalSales:   decimal.Zero,
		CashTotal:    decimal.Zero,
		CardTotal:    decimal.Zero,
		OnlineTotal:  decimal.Zero,
		QRTotal:      decimal.Zero,
		CashInTotal:  decimal.Zero,
		CashOutTotal: decimal.Zero,
		ExpectedCash: decimal.Zero,
		CountedCash:  decimal.Zero,
		Variance:     decimal.Zero,
	}
	for _, summary := range summaries {
		rollup.Cashiers++
		rollup.TransactionCount += summary.TransactionCount
		rollup.TotalSales = rollup.TotalSales.Add(summary.TotalSales)
		rollup.CashTotal = rollup.CashTotal.Add(summary.CashTotal)
		rollup.CardTotal = rollup.CardTotal.Add(summary.CardTotal)
		rollup.OnlineTotal = rollup.OnlineTotal.Add(summary.OnlineTotal)
		rollup.QRTotal = rollup.QRTotal.Add(summary.QRTotal)
		rollup.CashInTotal = rollup.CashInTotal.Add(summary.CashInTotal)
		rollup.CashOutTotal = rollup.CashOutTotal.Add(summary.CashOutTotal)
		rollup.ExpectedCash = rollup.ExpectedCash.Add(summary.ExpectedCash)
		if summary.IsSubmitted() {
			rollup.SubmittedCount++
			if summary.ActualCash != nil {
				rollup.CountedCash = rollup.CountedCash.Add(*summary.ActualCash)
			}
			if summary.Variance != nil {
				rollup.Variance = rollup.Variance.Add(*summary.Variance)
			}
		}
	}
	return rollup
}
