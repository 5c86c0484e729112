package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/daanheslenfeld/etf-test-sub001/internal/domain"
)

func TestBuyExecutedPostsPayload(t *testing.T) {
	var got payload
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	n := New(srv.URL, slog.Default())
	n.BuyExecuted(context.Background(), "user@example.com", domain.ExecutionResult{
		Symbol:   "IWDA",
		Quantity: 10,
		OrderID:  "ord-1",
	})

	if calls != 1 {
		t.Fatalf("posts = %d, want 1", calls)
	}
	if got.Symbol != "IWDA" || got.Quantity != 10 || got.OrderID != "ord-1" {
		t.Errorf("payload = %+v", got)
	}
	if got.Email != "user@example.com" {
		t.Errorf("Email = %q", got.Email)
	}
}

func TestBuyExecutedDisabledWithoutURL(t *testing.T) {
	n := New("", slog.Default())
	if n.Enabled() {
		t.Error("Enabled() = true without a URL")
	}
	// Must not panic or attempt any request.
	n.BuyExecuted(context.Background(), "", domain.ExecutionResult{Symbol: "IWDA"})
}

func TestBuyExecutedSwallowsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := New(srv.URL, slog.Default())
	// At-most-once: the failed post is dropped without error or retry.
	n.BuyExecuted(context.Background(), "", domain.ExecutionResult{Symbol: "IWDA"})
}
