// Package session owns the live trading state: the remote snapshots kept
// fresh by polling, the order basket, and the sequential execution of basket
// passes. All state changes flow through a single dispatch point so every
// mutation produces a consistent snapshot for subscribers.
package session

import (
	"time"

	"github.com/daanheslenfeld/etf-test-sub001/internal/domain"
	"github.com/daanheslenfeld/etf-test-sub001/internal/gateway"
)

// Dataset wraps one remotely fetched value with its freshness. Stale is set
// when the value came from the local cache after a failed fetch; FetchedAt is
// always the time of the original successful fetch. Err is set when a fetch
// failed and no cached copy existed, so the reader can tell "unable to load"
// apart from "never fetched".
type Dataset[T any] struct {
	Data      T         `json:"data"`
	Stale     bool      `json:"stale"`
	FetchedAt time.Time `json:"fetched_at"`
	Err       string    `json:"error,omitempty"`
}

// ConfirmationHold records an execution pass halted by a
// confirmation-required response. The held draft and everything after it
// remain in the basket until the user confirms or cancels.
type ConfirmationHold struct {
	DraftID  string   `json:"draft_id"`
	OrderID  string   `json:"order_id,omitempty"`
	Message  string   `json:"message,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Snapshot is one immutable view of the full session state. Snapshots are
// value types: dispatch copies the current snapshot, applies an action, and
// publishes the result, so subscribers never observe a partial update.
type Snapshot struct {
	Connection  domain.ConnectionStatus                    `json:"connection"`
	Account     Dataset[domain.AccountSummary]             `json:"account"`
	Positions   Dataset[[]domain.Position]                 `json:"positions"`
	Orders      Dataset[[]domain.OrderRecord]              `json:"orders"`
	MarketData  Dataset[map[string]domain.MarketDataEntry] `json:"market_data"`
	Tradability Dataset[map[string]bool]                   `json:"tradability"`
	Limits      domain.SafetyLimits                        `json:"limits"`
	Access      *gateway.AccessInfo                        `json:"access,omitempty"`
	Basket      []domain.DraftOrder                        `json:"basket"`
	Results     []domain.ExecutionResult                   `json:"results"`
	Executing   bool                                       `json:"executing"`
	Hold        *ConfirmationHold                          `json:"hold,omitempty"`
	UpdatedAt   time.Time                                  `json:"updated_at"`
}

func newSnapshot() Snapshot {
	return Snapshot{
		Connection: domain.ConnectionStatus{Mode: domain.TradingModeUnknown},
		Limits:     domain.DefaultSafetyLimits(),
	}
}
