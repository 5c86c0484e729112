// Package domain defines the core types shared across the trading session:
// draft orders, positions, account snapshots, market data, safety limits, and
// execution results.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Enums
// ---------------------------------------------------------------------------

// OrderSide is the direction of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType is the execution style of an order.
type OrderType string

const (
	OrderTypeMarket    OrderType = "MKT"
	OrderTypeLimit     OrderType = "LMT"
	OrderTypeStop      OrderType = "STP"
	OrderTypeStopLimit OrderType = "STP_LMT"
)

// ExecutionStatus is the lifecycle state of a basket order during and after
// an execution pass.
type ExecutionStatus string

const (
	ExecutionPending              ExecutionStatus = "pending"
	ExecutionSubmitted            ExecutionStatus = "submitted"
	ExecutionFilled               ExecutionStatus = "filled"
	ExecutionPartiallyFilled      ExecutionStatus = "partially_filled"
	ExecutionConfirmationRequired ExecutionStatus = "confirmation_required"
	ExecutionBlocked              ExecutionStatus = "blocked"
	ExecutionRejected             ExecutionStatus = "rejected"
)

// TradingMode distinguishes simulated from real-money execution.
type TradingMode string

const (
	TradingModePaper   TradingMode = "paper"
	TradingModeLive    TradingMode = "live"
	TradingModeUnknown TradingMode = "unknown"
)

// ModeForAccount derives the trading mode from the brokerage account id.
// Paper accounts carry a conventional DU/DF prefix.
func ModeForAccount(account string) TradingMode {
	if account == "" {
		return TradingModeUnknown
	}
	if strings.HasPrefix(account, "DU") || strings.HasPrefix(account, "DF") {
		return TradingModePaper
	}
	return TradingModeLive
}

// ---------------------------------------------------------------------------
// Draft orders
// ---------------------------------------------------------------------------

// DraftOrder is a not-yet-submitted order held in the basket. Draft orders
// are immutable once added, except through an explicit patch.
type DraftOrder struct {
	// ID identifies the draft within the basket and the execution results.
	ID string `json:"id"`

	// IdempotencyKey is sent as the client order id on every placement
	// attempt, so a retry after a confirmation halt cannot double-submit.
	IdempotencyKey string `json:"-"`

	// BulkID correlates drafts added together by a rebalance flow; empty for
	// individually added orders.
	BulkID string `json:"bulk_id,omitempty"`

	Symbol   string    `json:"symbol"`
	ConID    int64     `json:"conid,omitempty"`
	Side     OrderSide `json:"side"`
	Quantity int64     `json:"quantity"`
	Type     OrderType `json:"order_type"`

	// LimitPrice and StopPrice are zero unless the order type requires them.
	LimitPrice decimal.Decimal `json:"limit_price"`
	StopPrice  decimal.Decimal `json:"stop_price"`

	CreatedAt time.Time `json:"created_at"`
}

// NewDraftOrder builds a draft order with a fresh id and idempotency key.
// Quantity must be at least 1.
func NewDraftOrder(symbol string, conID int64, side OrderSide, quantity int64, typ OrderType) (DraftOrder, error) {
	if quantity < 1 {
		return DraftOrder{}, fmt.Errorf("order quantity must be at least 1, got %d", quantity)
	}
	if side != OrderSideBuy && side != OrderSideSell {
		return DraftOrder{}, fmt.Errorf("invalid order side %q", side)
	}
	switch typ {
	case OrderTypeMarket, OrderTypeLimit, OrderTypeStop, OrderTypeStopLimit:
	default:
		return DraftOrder{}, fmt.Errorf("invalid order type %q", typ)
	}
	return DraftOrder{
		ID:             uuid.NewString(),
		IdempotencyKey: uuid.NewString(),
		Symbol:         strings.ToUpper(symbol),
		ConID:          conID,
		Side:           side,
		Quantity:       quantity,
		Type:           typ,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// OrderPatch carries the fields of a draft order that may be edited before
// submission. Nil fields are left unchanged.
type OrderPatch struct {
	Quantity   *int64
	Type       *OrderType
	LimitPrice *decimal.Decimal
	StopPrice  *decimal.Decimal
}

// ---------------------------------------------------------------------------
// Remote snapshots
// ---------------------------------------------------------------------------

// Position is one holding in the virtual account. Positions are read-only to
// the client and replaced wholesale on each successful fetch.
type Position struct {
	Symbol               string          `json:"symbol"`
	ConID                int64           `json:"conid"`
	Quantity             int64           `json:"quantity"`
	AvgCost              decimal.Decimal `json:"avg_cost"`
	LastPrice            decimal.Decimal `json:"last_price"`
	MarketValue          decimal.Decimal `json:"market_value"`
	UnrealizedPnL        decimal.Decimal `json:"unrealized_pnl"`
	UnrealizedPnLPercent decimal.Decimal `json:"unrealized_pnl_percent"`
	PriceStale           bool            `json:"price_stale"`
}

// AccountSummary is the financial snapshot of the virtual account. Same
// lifecycle as Position: wholesale replacement per fetch, never merged.
type AccountSummary struct {
	CashBalance          decimal.Decimal `json:"cash_balance"`
	AvailableFunds       decimal.Decimal `json:"available_funds"`
	PortfolioValue       decimal.Decimal `json:"portfolio_value"`
	TotalValue           decimal.Decimal `json:"total_value"`
	UnrealizedPnL        decimal.Decimal `json:"unrealized_pnl"`
	UnrealizedPnLPercent decimal.Decimal `json:"unrealized_pnl_percent"`
	BuyingPower          decimal.Decimal `json:"buying_power"`
}

// SpendableFunds returns the funds available for new buys: AvailableFunds
// when present and nonzero, otherwise CashBalance.
func (a AccountSummary) SpendableFunds() decimal.Decimal {
	if !a.AvailableFunds.IsZero() {
		return a.AvailableFunds
	}
	return a.CashBalance
}

// MarketDataEntry is the latest quote for one symbol.
type MarketDataEntry struct {
	Symbol    string          `json:"symbol"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	Last      decimal.Decimal `json:"last"`
	BidSize   int64           `json:"bid_size"`
	AskSize   int64           `json:"ask_size"`
	Spread    decimal.Decimal `json:"spread"`
	MidPrice  decimal.Decimal `json:"mid_price"`
	Delayed   bool            `json:"delayed"`
	Timestamp time.Time       `json:"timestamp"`
}

// WithDerived returns a copy with Spread and MidPrice recomputed from the
// bid/ask when both are present.
func (m MarketDataEntry) WithDerived() MarketDataEntry {
	if m.Bid.IsPositive() && m.Ask.IsPositive() {
		m.Spread = m.Ask.Sub(m.Bid)
		m.MidPrice = m.Bid.Add(m.Ask).Div(decimal.NewFromInt(2))
	}
	return m
}

// OrderRecord is one entry of the remote order history.
type OrderRecord struct {
	OrderID     string          `json:"order_id"`
	Symbol      string          `json:"symbol"`
	Side        OrderSide       `json:"side"`
	Quantity    int64           `json:"quantity"`
	FilledQty   int64           `json:"filled_quantity"`
	Status      string          `json:"status"`
	AvgPrice    decimal.Decimal `json:"avg_price"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

// ConnectionStatus is the gateway health snapshot.
type ConnectionStatus struct {
	Connected bool        `json:"connected"`
	Account   string      `json:"account"`
	Mode      TradingMode `json:"mode"`
}

// ---------------------------------------------------------------------------
// Safety limits
// ---------------------------------------------------------------------------

// SafetyLimits holds the server-managed trading limits plus the client-side
// preview thresholds. The remote counters are re-fetched after every
// execution pass since submitted orders mutate them server-side.
type SafetyLimits struct {
	MaxOrderSize      int64           `json:"max_order_size"`
	MaxOrderValue     decimal.Decimal `json:"max_order_value"`
	MaxDailyOrders    int             `json:"max_daily_orders"`
	MaxDailyExposure  decimal.Decimal `json:"max_daily_exposure"`
	RemainingOrders   int             `json:"remaining_orders"`
	RemainingExposure decimal.Decimal `json:"remaining_exposure"`

	// Preview thresholds. Orders at or above LargeOrderThreshold shares are
	// flagged large; baskets holding at least BulkOrderThreshold orders are
	// flagged bulk.
	LargeOrderThreshold int64 `json:"large_order_threshold"`
	BulkOrderThreshold  int   `json:"bulk_order_threshold"`
}

// DefaultSafetyLimits returns the thresholds used until the first successful
// limits fetch.
func DefaultSafetyLimits() SafetyLimits {
	return SafetyLimits{
		LargeOrderThreshold: 25,
		BulkOrderThreshold:  3,
	}
}

// ---------------------------------------------------------------------------
// Execution results
// ---------------------------------------------------------------------------

// ExecutionResult tracks one basket order through an execution pass. The id
// matches the originating draft order. Results are mutated in place as each
// remote call resolves and kept until the user clears them.
type ExecutionResult struct {
	ID        string          `json:"id"`
	Symbol    string          `json:"symbol"`
	Side      OrderSide       `json:"side"`
	Quantity  int64           `json:"quantity"`
	Status    ExecutionStatus `json:"status"`
	Message   string          `json:"message,omitempty"`
	OrderID   string          `json:"order_id,omitempty"`
	FilledQty int64           `json:"filled_quantity,omitempty"`
	Warnings  []string        `json:"warnings,omitempty"`
}
