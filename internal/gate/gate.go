// Package gate checks submitted sale lines against authoritative prices
// before anything is written.
package gate

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"medikasir/backend/internal/domain"
)

// PriceResolver looks up the authoritative unit price of a product at a
// branch. found is false when no price exists.
type PriceResolver interface {
	ResolvePrice(ctx context.Context, branchID string, productID string) (price decimal.Decimal, found bool, err error)
}

type Gate struct {
	tolerance decimal.Decimal
}

func New(tolerance decimal.Decimal) *Gate {
	if tolerance.IsNegative() {
		tolerance = domain.PriceTolerance
	}
	return &Gate{tolerance: tolerance}
}

// Check verifies every line and returns the priced items with stored amounts
// set to price times quantity, rounded to cents. The first failing line stops the check.
func (g *Gate) Check(ctx context.Context, prices PriceResolver, branchID string, lines []domain.SaleLineRequest) ([]domain.LineItem, decimal.Decimal, error) {
	items := make([]domain.LineItem, 0, len(lines))
	total := decimal.Zero

	for _, line := range lines {
		if line.Quantity < 1 {
			return nil, decimal.Zero, domain.Validation("quantity for product %s must be positive", line.ProductID)
		}

		price, found, err := prices.ResolvePrice(ctx, branchID, line.ProductID)
		if err != nil {
			return nil, decimal.Zero, fmt.Errorf("resolve price %s: %w", line.ProductID, err)
		}
		if !found {
			return nil, decimal.Zero, domain.InvalidProduct(line.ProductID)
		}

		expected := domain.RoundCents(price.Mul(decimal.NewFromInt(int64(line.Quantity))))
		if !domain.WithinTolerance(expected, line.Amount, g.tolerance) {
			return nil, decimal.Zero, &domain.PriceMismatchError{
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				Expected:  expected,
				Submitted: line.Amount,
			}
		}

		items = append(items, domain.LineItem{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: price,
			Amount:    expected,
		})
		total = total.Add(expected)
	}

	return items, total, nil
}
