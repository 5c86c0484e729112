// Package gateway is the HTTP client for the brokerage gateway. All remote
// reads and order placements of a session go through this client; it attaches
// the per-customer identification headers and throttles request volume.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/daanheslenfeld/etf-test-sub001/internal/config"
	"github.com/daanheslenfeld/etf-test-sub001/internal/domain"
	"github.com/daanheslenfeld/etf-test-sub001/internal/util"
)

// Structured error codes returned by the order endpoint.
const (
	ErrCodeConfirmationRequired = "CONFIRMATION_REQUIRED"
	ErrCodeSafetyLimitExceeded  = "SAFETY_LIMIT_EXCEEDED"
)

// Client talks to the brokerage gateway REST API.
type Client struct {
	baseURL       string
	customerID    string
	customerEmail string
	hc            *http.Client
	limiter       *util.RateLimiter
	log           *slog.Logger

	mu        sync.Mutex
	accountID string // resolved virtual account id, cached after first lookup
}

// NewClient creates a gateway client from configuration. A zero
// requests_per_min disables throttling.
func NewClient(cfg config.Gateway, log *slog.Logger) *Client {
	var limiter *util.RateLimiter
	if cfg.RequestsPerMin > 0 {
		limiter = util.NewRateLimiter(cfg.RequestsPerMin)
	}
	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		customerID:    cfg.CustomerID,
		customerEmail: cfg.CustomerEmail,
		hc:            &http.Client{Timeout: 30 * time.Second},
		limiter:       limiter,
		log:           log,
	}
}

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

// PlaceOrderRequest is the order placement payload.
type PlaceOrderRequest struct {
	Symbol        string          `json:"symbol"`
	ConID         int64           `json:"conid,omitempty"`
	Side          string          `json:"side"`
	Quantity      int64           `json:"quantity"`
	OrderType     string          `json:"order_type"`
	LimitPrice    decimal.Decimal `json:"limit_price,omitempty"`
	StopPrice     decimal.Decimal `json:"stop_price,omitempty"`
	ClientOrderID string          `json:"client_order_id"`
}

// PlaceOrderResponse is the structured outcome of an order placement. A
// placement can fail in-band (Success false with an error code) without the
// HTTP call itself failing.
type PlaceOrderResponse struct {
	Success  bool     `json:"success"`
	OrderID  string   `json:"order_id"`
	Status   string   `json:"status"`
	Error    string   `json:"error"`
	Warnings []string `json:"warnings"`
	Message  string   `json:"message"`
}

// ConfirmationRequired reports whether the gateway held the order pending an
// explicit user confirmation.
func (r PlaceOrderResponse) ConfirmationRequired() bool {
	return r.Error == ErrCodeConfirmationRequired
}

// Blocked reports whether the gateway rejected the order against a safety
// limit.
func (r PlaceOrderResponse) Blocked() bool {
	return r.Error == ErrCodeSafetyLimitExceeded
}

// ETF is one instrument from the tradable universe.
type ETF struct {
	Symbol   string `json:"symbol"`
	ConID    int64  `json:"conid"`
	Name     string `json:"name"`
	Exchange string `json:"exchange"`
	Currency string `json:"currency"`
}

// AccessInfo reports whether the customer may trade at all.
type AccessInfo struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

type healthResponse struct {
	IBGateway struct {
		Connected bool   `json:"connected"`
		Account   string `json:"account"`
	} `json:"ib_gateway"`
}

type virtualAccountResponse struct {
	ID string `json:"id"`
}

// ---------------------------------------------------------------------------
// Endpoints
// ---------------------------------------------------------------------------

// Health checks gateway connectivity and returns the connection snapshot,
// including the trading mode derived from the brokerage account id.
func (c *Client) Health(ctx context.Context) (domain.ConnectionStatus, error) {
	var resp healthResponse
	if err := c.get(ctx, "/health", &resp); err != nil {
		return domain.ConnectionStatus{}, err
	}
	return domain.ConnectionStatus{
		Connected: resp.IBGateway.Connected,
		Account:   resp.IBGateway.Account,
		Mode:      domain.ModeForAccount(resp.IBGateway.Account),
	}, nil
}

// ResolveVirtualAccount returns the customer's virtual account id, looking it
// up on first use and caching it for the lifetime of the client.
func (c *Client) ResolveVirtualAccount(ctx context.Context) (string, error) {
	c.mu.Lock()
	cached := c.accountID
	c.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	var resp virtualAccountResponse
	if err := c.get(ctx, "/virtual-accounts/me", &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("gateway returned an empty virtual account id")
	}

	c.mu.Lock()
	c.accountID = resp.ID
	c.mu.Unlock()
	return resp.ID, nil
}

// AccountSummary fetches the financial snapshot of the virtual account.
func (c *Client) AccountSummary(ctx context.Context, accountID string) (domain.AccountSummary, error) {
	var out domain.AccountSummary
	err := c.get(ctx, "/virtual-accounts/"+url.PathEscape(accountID), &out)
	return out, err
}

// Positions fetches the current holdings of the virtual account.
func (c *Client) Positions(ctx context.Context, accountID string) ([]domain.Position, error) {
	var out []domain.Position
	err := c.get(ctx, "/virtual-accounts/"+url.PathEscape(accountID)+"/positions", &out)
	return out, err
}

// Orders fetches the order history of the virtual account.
func (c *Client) Orders(ctx context.Context, accountID string) ([]domain.OrderRecord, error) {
	var out []domain.OrderRecord
	err := c.get(ctx, "/virtual-accounts/"+url.PathEscape(accountID)+"/orders", &out)
	return out, err
}

// PlaceOrder submits one order. The confirmed flag acknowledges a prior
// CONFIRMATION_REQUIRED response for the same client order id.
func (c *Client) PlaceOrder(ctx context.Context, accountID string, req PlaceOrderRequest, confirmed bool) (PlaceOrderResponse, error) {
	path := "/virtual-accounts/" + url.PathEscape(accountID) + "/order"
	if confirmed {
		path += "?confirmed=true"
	}
	var resp PlaceOrderResponse
	if err := c.post(ctx, path, req, &resp); err != nil {
		return PlaceOrderResponse{}, err
	}
	return resp, nil
}

// CancelIntention withdraws a held order that was never confirmed.
func (c *Client) CancelIntention(ctx context.Context, orderID string) error {
	return c.do(ctx, http.MethodDelete, "/intentions/"+url.PathEscape(orderID), nil, nil)
}

// SafetyLimits fetches the server-managed trading limits and remaining
// daily budgets.
func (c *Client) SafetyLimits(ctx context.Context) (domain.SafetyLimits, error) {
	out := domain.DefaultSafetyLimits()
	if err := c.get(ctx, "/trading/safety/limits", &out); err != nil {
		return domain.SafetyLimits{}, err
	}
	// Preview thresholds are client-side; the gateway does not set them.
	defaults := domain.DefaultSafetyLimits()
	if out.LargeOrderThreshold == 0 {
		out.LargeOrderThreshold = defaults.LargeOrderThreshold
	}
	if out.BulkOrderThreshold == 0 {
		out.BulkOrderThreshold = defaults.BulkOrderThreshold
	}
	return out, nil
}

// MarketData fetches the latest quotes for the given symbols, keyed by
// symbol. Derived fields (spread, mid price) are computed client-side.
func (c *Client) MarketData(ctx context.Context, symbols []string) (map[string]domain.MarketDataEntry, error) {
	if len(symbols) == 0 {
		return map[string]domain.MarketDataEntry{}, nil
	}
	path := "/trading/marketdata?symbols=" + url.QueryEscape(strings.Join(symbols, ","))
	var raw map[string]domain.MarketDataEntry
	if err := c.get(ctx, path, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]domain.MarketDataEntry, len(raw))
	for sym, entry := range raw {
		entry.Symbol = sym
		out[sym] = entry.WithDerived()
	}
	return out, nil
}

// ETFs fetches the tradable instrument universe.
func (c *Client) ETFs(ctx context.Context) ([]ETF, error) {
	var out []ETF
	err := c.get(ctx, "/trading/etfs", &out)
	return out, err
}

// Tradability fetches the per-symbol tradability map.
func (c *Client) Tradability(ctx context.Context) (map[string]bool, error) {
	var out map[string]bool
	err := c.get(ctx, "/trading/tradability", &out)
	return out, err
}

// Access checks whether the customer is allowed to trade.
func (c *Client) Access(ctx context.Context) (AccessInfo, error) {
	var out AccessInfo
	err := c.get(ctx, "/trading/access", &out)
	return out, err
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

// do performs one gateway request: waits on the rate limiter, attaches the
// customer headers, and decodes the JSON response into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Customer-ID", c.customerID)
	if c.customerEmail != "" {
		req.Header.Set("X-Customer-Email", c.customerEmail)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: gateway returned %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decoding response: %w", method, path, err)
	}
	return nil
}
