package safety

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/daanheslenfeld/etf-test-sub001/internal/domain"
)

func draft(t *testing.T, symbol string, side domain.OrderSide, qty int64) domain.DraftOrder {
	t.Helper()
	order, err := domain.NewDraftOrder(symbol, 0, side, qty, domain.OrderTypeMarket)
	if err != nil {
		t.Fatalf("NewDraftOrder: %v", err)
	}
	return order
}

func TestValidateSell(t *testing.T) {
	positions := []domain.Position{
		{Symbol: "IWDA", Quantity: 10},
		{Symbol: "VWCE", Quantity: 5},
	}

	tests := []struct {
		name    string
		symbol  string
		qty     int64
		valid   bool
		maxQty  int64
	}{
		{"within holdings", "IWDA", 5, true, 10},
		{"entire holding", "IWDA", 10, true, 10},
		{"one over", "IWDA", 11, false, 10},
		{"not held at all", "AGGH", 1, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ValidateSell(draft(t, tt.symbol, domain.OrderSideSell, tt.qty), positions)
			if res.Valid != tt.valid {
				t.Errorf("Valid = %v, want %v", res.Valid, tt.valid)
			}
			if res.MaxQuantity != tt.maxQty {
				t.Errorf("MaxQuantity = %d, want %d", res.MaxQuantity, tt.maxQty)
			}
			if !tt.valid && res.Message == "" {
				t.Error("invalid result should carry a message")
			}
		})
	}
}

func TestValidateBuyBuffer(t *testing.T) {
	price := decimal.NewFromInt(100)

	tests := []struct {
		name  string
		qty   int64
		funds string
		valid bool
	}{
		// 10 shares at 100 cost 1000; with the 1% buffer they need 1010.
		{"well funded", 10, "2000.00", true},
		{"exact boundary is valid", 10, "1010.00", true},
		{"cent short of buffer", 10, "1009.99", false},
		{"funds cover cost but not buffer", 10, "1000.00", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acct := domain.AccountSummary{AvailableFunds: decimal.RequireFromString(tt.funds)}
			res := ValidateBuy(draft(t, "IWDA", domain.OrderSideBuy, tt.qty), price, acct)
			if res.Valid != tt.valid {
				t.Errorf("Valid = %v, want %v (%s)", res.Valid, tt.valid, res.Message)
			}
		})
	}
}

func TestValidateBuyFallsBackToCashBalance(t *testing.T) {
	order := draft(t, "IWDA", domain.OrderSideBuy, 1)
	price := decimal.NewFromInt(100)

	// AvailableFunds unset: CashBalance is the spendable amount.
	acct := domain.AccountSummary{CashBalance: decimal.NewFromInt(500)}
	if res := ValidateBuy(order, price, acct); !res.Valid {
		t.Errorf("buy should pass on cash balance alone: %s", res.Message)
	}

	// AvailableFunds present: it wins even when cash balance is larger.
	acct = domain.AccountSummary{
		CashBalance:    decimal.NewFromInt(5000),
		AvailableFunds: decimal.NewFromInt(50),
	}
	if res := ValidateBuy(order, price, acct); res.Valid {
		t.Error("buy should fail against available funds")
	}
}

func TestValidateBuyRejectsMissingPrice(t *testing.T) {
	acct := domain.AccountSummary{CashBalance: decimal.NewFromInt(1000000)}
	res := ValidateBuy(draft(t, "IWDA", domain.OrderSideBuy, 1), decimal.Zero, acct)
	if res.Valid {
		t.Error("buy without a usable price should be invalid")
	}
}

func TestEstimatePrice(t *testing.T) {
	quote := domain.MarketDataEntry{
		Last:     decimal.NewFromInt(100),
		MidPrice: decimal.NewFromInt(99),
		Ask:      decimal.NewFromInt(98),
	}
	if got := EstimatePrice(quote); !got.Equal(decimal.NewFromInt(100)) {
		t.Errorf("EstimatePrice = %s, want last 100", got)
	}

	quote.Last = decimal.Zero
	if got := EstimatePrice(quote); !got.Equal(decimal.NewFromInt(99)) {
		t.Errorf("EstimatePrice = %s, want mid 99", got)
	}

	quote.MidPrice = decimal.Zero
	if got := EstimatePrice(quote); !got.Equal(decimal.NewFromInt(98)) {
		t.Errorf("EstimatePrice = %s, want ask 98", got)
	}
}

func TestIsLargeOrder(t *testing.T) {
	limits := domain.DefaultSafetyLimits()

	if IsLargeOrder(draft(t, "IWDA", domain.OrderSideBuy, 24), limits) {
		t.Error("24 shares should not be large")
	}
	if !IsLargeOrder(draft(t, "IWDA", domain.OrderSideBuy, 25), limits) {
		t.Error("25 shares should be large (threshold inclusive)")
	}
}

func TestPreviewBasket(t *testing.T) {
	limits := domain.DefaultSafetyLimits()

	small := []domain.DraftOrder{
		draft(t, "IWDA", domain.OrderSideBuy, 1),
		draft(t, "VWCE", domain.OrderSideBuy, 2),
	}
	p := PreviewBasket(small, limits)
	if p.NeedsConfirmation || p.Bulk || len(p.LargeOrders) != 0 {
		t.Errorf("small basket flagged: %+v", p)
	}

	big := draft(t, "AGGH", domain.OrderSideBuy, 30)
	p = PreviewBasket(append(small, big), limits)
	if !p.Bulk {
		t.Error("three orders should count as bulk")
	}
	if len(p.LargeOrders) != 1 || p.LargeOrders[0] != big.ID {
		t.Errorf("LargeOrders = %v, want [%s]", p.LargeOrders, big.ID)
	}
	if !p.NeedsConfirmation {
		t.Error("bulk basket with a large order must need confirmation")
	}
}
