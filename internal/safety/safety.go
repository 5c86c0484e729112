// Package safety performs client-side pre-trade checks on draft orders:
// sell-quantity bounds against current holdings, buy-cost bounds against
// spendable funds, and the large-order and bulk-basket previews that predict
// whether the gateway will demand confirmation.
package safety

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/daanheslenfeld/etf-test-sub001/internal/domain"
)

// costBuffer is the margin applied to the estimated cost of a buy before
// comparing against spendable funds, absorbing price movement between
// validation and fill.
var costBuffer = decimal.RequireFromString("1.01")

// ValidationResult is the outcome of a pre-trade check.
type ValidationResult struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`

	// MaxQuantity is the largest valid quantity for this order; set on sell
	// validation so the caller can clamp instead of rejecting.
	MaxQuantity int64 `json:"max_quantity,omitempty"`

	// EstimatedCost is the pre-buffer cost estimate; set on buy validation.
	EstimatedCost decimal.Decimal `json:"estimated_cost,omitempty"`
}

// ValidateSell checks a sell draft against current holdings. Selling more
// than the held quantity is invalid; the result carries the held quantity as
// the maximum.
func ValidateSell(order domain.DraftOrder, positions []domain.Position) ValidationResult {
	owned := int64(0)
	for _, p := range positions {
		if p.Symbol == order.Symbol {
			owned = p.Quantity
			break
		}
	}

	if order.Quantity > owned {
		return ValidationResult{
			Valid:       false,
			Message:     fmt.Sprintf("cannot sell %d shares of %s, only %d held", order.Quantity, order.Symbol, owned),
			MaxQuantity: owned,
		}
	}
	return ValidationResult{Valid: true, MaxQuantity: owned}
}

// ValidateBuy checks a buy draft against spendable funds. The estimated cost
// plus a 1% buffer must not exceed the funds; a cost that lands exactly on
// the boundary is still valid.
func ValidateBuy(order domain.DraftOrder, price decimal.Decimal, account domain.AccountSummary) ValidationResult {
	if !price.IsPositive() {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("no usable price for %s", order.Symbol),
		}
	}

	cost := price.Mul(decimal.NewFromInt(order.Quantity))
	funds := account.SpendableFunds()
	if cost.Mul(costBuffer).GreaterThan(funds) {
		return ValidationResult{
			Valid:         false,
			Message:       fmt.Sprintf("insufficient funds for %d shares of %s: need %s plus buffer, have %s", order.Quantity, order.Symbol, cost.StringFixed(2), funds.StringFixed(2)),
			EstimatedCost: cost,
		}
	}
	return ValidationResult{Valid: true, EstimatedCost: cost}
}

// EstimatePrice picks the reference price from a quote: the last trade when
// available, otherwise the mid price, otherwise the ask.
func EstimatePrice(quote domain.MarketDataEntry) decimal.Decimal {
	if quote.Last.IsPositive() {
		return quote.Last
	}
	if quote.MidPrice.IsPositive() {
		return quote.MidPrice
	}
	return quote.Ask
}

// IsLargeOrder reports whether the draft's quantity reaches the large-order
// threshold, meaning the gateway will likely hold it for confirmation.
func IsLargeOrder(order domain.DraftOrder, limits domain.SafetyLimits) bool {
	return order.Quantity >= limits.LargeOrderThreshold
}

// IsBulkBasket reports whether the basket is big enough to count as a bulk
// submission.
func IsBulkBasket(orders []domain.DraftOrder, limits domain.SafetyLimits) bool {
	return len(orders) >= limits.BulkOrderThreshold
}

// Preview summarizes the confirmation prediction for a whole basket.
type Preview struct {
	LargeOrders []string `json:"large_orders,omitempty"`
	Bulk        bool     `json:"bulk"`

	// NeedsConfirmation is true when any order is large or the basket is
	// bulk.
	NeedsConfirmation bool `json:"needs_confirmation"`
}

// PreviewBasket predicts whether executing the basket will trigger a
// confirmation hold, listing the ids of the large orders.
func PreviewBasket(orders []domain.DraftOrder, limits domain.SafetyLimits) Preview {
	p := Preview{Bulk: IsBulkBasket(orders, limits)}
	for _, order := range orders {
		if IsLargeOrder(order, limits) {
			p.LargeOrders = append(p.LargeOrders, order.ID)
		}
	}
	p.NeedsConfirmation = p.Bulk || len(p.LargeOrders) > 0
	return p
}
