// Package notify posts transaction notifications to an external endpoint
// after successful buys. Delivery is fire-and-forget and at-most-once: a
// failed post is logged and dropped, never retried, and never blocks the
// execution flow.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/daanheslenfeld/etf-test-sub001/internal/domain"
)

// Notifier posts buy notifications.
type Notifier struct {
	url string
	hc  *http.Client
	log *slog.Logger
}

// New creates a Notifier for the given endpoint. An empty URL disables
// notification entirely.
func New(url string, log *slog.Logger) *Notifier {
	return &Notifier{
		url: url,
		hc:  &http.Client{Timeout: 10 * time.Second},
		log: log,
	}
}

// Enabled reports whether an endpoint is configured.
func (n *Notifier) Enabled() bool {
	return n.url != ""
}

type payload struct {
	Symbol   string `json:"symbol"`
	Quantity int64  `json:"quantity"`
	OrderID  string `json:"order_id"`
	Email    string `json:"email,omitempty"`
}

// BuyExecuted posts a notification for one filled buy. Errors are logged and
// swallowed.
func (n *Notifier) BuyExecuted(ctx context.Context, email string, result domain.ExecutionResult) {
	if !n.Enabled() {
		return
	}

	raw, err := json.Marshal(payload{
		Symbol:   result.Symbol,
		Quantity: result.Quantity,
		OrderID:  result.OrderID,
		Email:    email,
	})
	if err != nil {
		n.log.Warn("encoding buy notification", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(raw))
	if err != nil {
		n.log.Warn("building buy notification request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.hc.Do(req)
	if err != nil {
		n.log.Warn("posting buy notification", "symbol", result.Symbol, "error", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		n.log.Warn("buy notification rejected", "symbol", result.Symbol, "status", resp.StatusCode)
	}
}
