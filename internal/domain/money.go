package domain

import "github.com/shopspring/decimal"

// PriceTolerance absorbs representational rounding from upstream float input.
var PriceTolerance = decimal.New(1, -2)

// Money parses a literal amount. It panics on malformed input and is meant
// for constants and tests.
func Money(amount string) decimal.Decimal {
	return decimal.RequireFromString(amount)
}

// RoundCents quantizes an amount to the two places the ledger stores,
// rounding half away from zero like NUMERIC(14,2).
func RoundCents(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}

// WithinTolerance reports whether |a - b| <= tolerance.
func WithinTolerance(a decimal.Decimal, b decimal.Decimal, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}

// DerivePaymentStatus classifies a sale by its outstanding balance.
func DerivePaymentStatus(total decimal.Decimal, paid decimal.Decimal) PaymentStatus {
	balance := total.Sub(paid)
	switch {
	case !balance.IsPositive():
		return PaymentPaid
	case paid.IsPositive():
		return PaymentPartial
	default:
		return PaymentPending
	}
}

func IsSupportedPaymentMethod(method PaymentMethod) bool {
	switch method {
	case PaymentCash, PaymentCard, PaymentOnline, PaymentQR:
		return true
	default:
		return false
	}
}
