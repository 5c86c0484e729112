// Package broker defines the Broker interface and provides implementations
// for executing orders and reading account state across different backends.
package broker

import (
	"context"

	"github.com/daanheslenfeld/etf-test-sub001/internal/domain"
)

// PlaceOutcome is the structured result of one placement attempt. A placement
// can resolve without a transport error yet still not submit: the backend may
// hold the order for confirmation or block it against a safety limit.
type PlaceOutcome struct {
	// OrderID is the backend's id for the order; set when the order was
	// accepted or held for confirmation.
	OrderID string

	// Status is the backend's order status string ("Filled", "Submitted", ...).
	Status string

	// Submitted reports whether the order was accepted for execution.
	Submitted bool

	// ConfirmationRequired reports that the backend held the order pending an
	// explicit user confirmation. Mutually exclusive with Submitted.
	ConfirmationRequired bool

	// Blocked reports that the backend rejected the order against a safety
	// limit. Mutually exclusive with Submitted.
	Blocked bool

	Warnings []string
	Message  string
}

// Broker abstracts the execution backend for order placement and account
// state reads.
type Broker interface {
	// Name returns the broker identifier (e.g. "gateway", "alpaca", "simulator").
	Name() string

	// PlaceOrder submits one draft order. The confirmed flag acknowledges a
	// prior confirmation-required outcome for the same draft; the draft's
	// idempotency key is forwarded as the client order id on both attempts.
	PlaceOrder(ctx context.Context, order domain.DraftOrder, confirmed bool) (PlaceOutcome, error)

	// CancelOrder withdraws an order by its backend id.
	CancelOrder(ctx context.Context, orderID string) error

	// Positions returns all current holdings.
	Positions(ctx context.Context) ([]domain.Position, error)

	// Account returns a snapshot of the account's financial metrics.
	Account(ctx context.Context) (domain.AccountSummary, error)

	// Orders returns the order history.
	Orders(ctx context.Context) ([]domain.OrderRecord, error)

	// Quotes returns the latest market data for the given symbols.
	Quotes(ctx context.Context, symbols []string) (map[string]domain.MarketDataEntry, error)
}
