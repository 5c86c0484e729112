package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/daanheslenfeld/etf-test-sub001/internal/config"
	"github.com/daanheslenfeld/etf-test-sub001/internal/domain"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.Gateway{
		BaseURL:       srv.URL,
		CustomerID:    "cust-1",
		CustomerEmail: "cust@example.com",
	}, slog.Default())
}

func TestHealthDerivesTradingMode(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"ib_gateway": map[string]any{"connected": true, "account": "DU123456"},
		})
	}))

	status, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("Health() returned error: %v", err)
	}
	if !status.Connected {
		t.Error("Connected = false, want true")
	}
	if status.Account != "DU123456" {
		t.Errorf("Account = %q, want DU123456", status.Account)
	}
	if status.Mode != domain.TradingModePaper {
		t.Errorf("Mode = %q, want paper", status.Mode)
	}
}

func TestClientSendsCustomerHeaders(t *testing.T) {
	var gotID, gotEmail string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = r.Header.Get("X-Customer-ID")
		gotEmail = r.Header.Get("X-Customer-Email")
		json.NewEncoder(w).Encode(map[string]any{"id": "va-9"})
	}))

	if _, err := client.ResolveVirtualAccount(context.Background()); err != nil {
		t.Fatalf("ResolveVirtualAccount() returned error: %v", err)
	}
	if gotID != "cust-1" {
		t.Errorf("X-Customer-ID = %q, want cust-1", gotID)
	}
	if gotEmail != "cust@example.com" {
		t.Errorf("X-Customer-Email = %q, want cust@example.com", gotEmail)
	}
}

func TestResolveVirtualAccountCaches(t *testing.T) {
	calls := 0
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(map[string]any{"id": "va-42"})
	}))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		id, err := client.ResolveVirtualAccount(ctx)
		if err != nil {
			t.Fatalf("ResolveVirtualAccount() #%d returned error: %v", i, err)
		}
		if id != "va-42" {
			t.Errorf("account id = %q, want va-42", id)
		}
	}
	if calls != 1 {
		t.Errorf("gateway lookups = %d, want 1", calls)
	}
}

func TestPlaceOrderConfirmationRequired(t *testing.T) {
	var gotConfirmed string
	var gotBody PlaceOrderRequest
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotConfirmed = r.URL.Query().Get("confirmed")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(PlaceOrderResponse{
			Success: false,
			Error:   ErrCodeConfirmationRequired,
			Message: "large order requires confirmation",
		})
	}))

	req := PlaceOrderRequest{
		Symbol:        "IWDA",
		Side:          "BUY",
		Quantity:      50,
		OrderType:     "MKT",
		ClientOrderID: "key-1",
	}
	resp, err := client.PlaceOrder(context.Background(), "va-1", req, false)
	if err != nil {
		t.Fatalf("PlaceOrder() returned error: %v", err)
	}
	if gotConfirmed != "" {
		t.Errorf("confirmed query param = %q, want empty", gotConfirmed)
	}
	if gotBody.ClientOrderID != "key-1" {
		t.Errorf("client_order_id = %q, want key-1", gotBody.ClientOrderID)
	}
	if !resp.ConfirmationRequired() {
		t.Error("ConfirmationRequired() = false, want true")
	}
	if resp.Blocked() {
		t.Error("Blocked() = true for confirmation response")
	}
}

func TestPlaceOrderConfirmedFlag(t *testing.T) {
	var gotConfirmed string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotConfirmed = r.URL.Query().Get("confirmed")
		json.NewEncoder(w).Encode(PlaceOrderResponse{Success: true, OrderID: "ord-7", Status: "Filled"})
	}))

	resp, err := client.PlaceOrder(context.Background(), "va-1",
		PlaceOrderRequest{Symbol: "IWDA", Side: "BUY", Quantity: 50, OrderType: "MKT"}, true)
	if err != nil {
		t.Fatalf("PlaceOrder() returned error: %v", err)
	}
	if gotConfirmed != "true" {
		t.Errorf("confirmed query param = %q, want true", gotConfirmed)
	}
	if !resp.Success || resp.OrderID != "ord-7" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestPlaceOrderSafetyBlocked(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(PlaceOrderResponse{
			Success: false,
			Error:   ErrCodeSafetyLimitExceeded,
			Message: "daily order budget exhausted",
		})
	}))

	resp, err := client.PlaceOrder(context.Background(), "va-1",
		PlaceOrderRequest{Symbol: "VWCE", Side: "BUY", Quantity: 1, OrderType: "MKT"}, false)
	if err != nil {
		t.Fatalf("PlaceOrder() returned error: %v", err)
	}
	if !resp.Blocked() {
		t.Error("Blocked() = false, want true")
	}
}

func TestMarketDataComputesDerivedFields(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("symbols"); got != "IWDA,VWCE" {
			t.Errorf("symbols = %q, want IWDA,VWCE", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"IWDA": map[string]any{"bid": "100.00", "ask": "100.10", "last": "100.05"},
			"VWCE": map[string]any{"bid": "0", "ask": "0", "last": "95.00"},
		})
	}))

	quotes, err := client.MarketData(context.Background(), []string{"IWDA", "VWCE"})
	if err != nil {
		t.Fatalf("MarketData() returned error: %v", err)
	}

	iwda := quotes["IWDA"]
	if iwda.Symbol != "IWDA" {
		t.Errorf("Symbol = %q, want IWDA", iwda.Symbol)
	}
	if got := iwda.Spread.StringFixed(2); got != "0.10" {
		t.Errorf("Spread = %s, want 0.10", got)
	}
	if got := iwda.MidPrice.StringFixed(2); got != "100.05" {
		t.Errorf("MidPrice = %s, want 100.05", got)
	}

	vwce := quotes["VWCE"]
	if !vwce.Spread.IsZero() || !vwce.MidPrice.IsZero() {
		t.Errorf("derived fields should stay zero without a two-sided quote: %+v", vwce)
	}
}

func TestMarketDataEmptySymbolsSkipsRequest(t *testing.T) {
	calls := 0
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))

	quotes, err := client.MarketData(context.Background(), nil)
	if err != nil {
		t.Fatalf("MarketData() returned error: %v", err)
	}
	if len(quotes) != 0 {
		t.Errorf("quotes = %v, want empty", quotes)
	}
	if calls != 0 {
		t.Errorf("gateway calls = %d, want 0", calls)
	}
}

func TestSafetyLimitsFillsPreviewThresholds(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"max_order_size":   100,
			"max_daily_orders": 20,
			"remaining_orders": 17,
		})
	}))

	limits, err := client.SafetyLimits(context.Background())
	if err != nil {
		t.Fatalf("SafetyLimits() returned error: %v", err)
	}
	if limits.MaxOrderSize != 100 || limits.RemainingOrders != 17 {
		t.Errorf("unexpected limits: %+v", limits)
	}
	if limits.LargeOrderThreshold != 25 {
		t.Errorf("LargeOrderThreshold = %d, want default 25", limits.LargeOrderThreshold)
	}
	if limits.BulkOrderThreshold != 3 {
		t.Errorf("BulkOrderThreshold = %d, want default 3", limits.BulkOrderThreshold)
	}
}

func TestErrorStatusIncludesBody(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "account suspended", http.StatusForbidden)
	}))

	_, err := client.Positions(context.Background(), "va-1")
	if err == nil {
		t.Fatal("Positions() should fail on a 403")
	}
}

func TestETFsAndAccess(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/trading/etfs":
			json.NewEncoder(w).Encode([]ETF{
				{Symbol: "IWDA", ConID: 100, Name: "iShares Core MSCI World", Exchange: "AEB", Currency: "EUR"},
			})
		case "/trading/access":
			json.NewEncoder(w).Encode(AccessInfo{Allowed: false, Reason: "kyc pending"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	etfs, err := client.ETFs(context.Background())
	if err != nil {
		t.Fatalf("ETFs() returned error: %v", err)
	}
	if len(etfs) != 1 || etfs[0].Symbol != "IWDA" || etfs[0].Currency != "EUR" {
		t.Errorf("unexpected universe: %+v", etfs)
	}

	access, err := client.Access(context.Background())
	if err != nil {
		t.Fatalf("Access() returned error: %v", err)
	}
	if access.Allowed || access.Reason != "kyc pending" {
		t.Errorf("unexpected access info: %+v", access)
	}
}

func TestCancelIntention(t *testing.T) {
	var gotMethod, gotPath string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))

	if err := client.CancelIntention(context.Background(), "ord-5"); err != nil {
		t.Fatalf("CancelIntention() returned error: %v", err)
	}
	if gotMethod != http.MethodDelete {
		t.Errorf("method = %s, want DELETE", gotMethod)
	}
	if gotPath != "/intentions/ord-5" {
		t.Errorf("path = %s, want /intentions/ord-5", gotPath)
	}
}
