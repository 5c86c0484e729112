package journal

import (
	"context"
	"testing"
	"time"

	"github.com/daanheslenfeld/etf-test-sub001/internal/domain"
)

func sampleResults() ([]domain.ExecutionResult, []domain.DraftOrder) {
	orders := []domain.DraftOrder{
		{ID: "d1", BulkID: "bulk-1", Symbol: "IWDA", Side: domain.OrderSideBuy, Quantity: 10},
		{ID: "d2", Symbol: "VWCE", Side: domain.OrderSideSell, Quantity: 5},
	}
	results := []domain.ExecutionResult{
		{ID: "d1", Symbol: "IWDA", Side: domain.OrderSideBuy, Quantity: 10, Status: domain.ExecutionFilled, OrderID: "ord-1", FilledQty: 10},
		{ID: "d2", Symbol: "VWCE", Side: domain.OrderSideSell, Quantity: 5, Status: domain.ExecutionRejected, Message: "gateway timeout"},
	}
	return results, orders
}

func TestRecordAndRead(t *testing.T) {
	j := New(t.TempDir())
	ctx := context.Background()
	day := time.Date(2026, 4, 2, 14, 30, 0, 0, time.UTC)

	results, orders := sampleResults()
	if err := j.Record(ctx, "user-1", results, orders, day); err != nil {
		t.Fatalf("Record() returned error: %v", err)
	}

	records, err := j.Read(ctx, "user-1", day)
	if err != nil {
		t.Fatalf("Read() returned error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}

	byID := map[string]ExecutionRecord{}
	for _, r := range records {
		byID[r.DraftID] = r
	}
	if got := byID["d1"]; got.BulkID != "bulk-1" || got.Status != "filled" || got.OrderID != "ord-1" {
		t.Errorf("d1 record = %+v", got)
	}
	if got := byID["d2"]; got.Status != "rejected" || got.Message != "gateway timeout" {
		t.Errorf("d2 record = %+v", got)
	}
}

func TestRecordMergesByDraftID(t *testing.T) {
	j := New(t.TempDir())
	ctx := context.Background()
	day := time.Date(2026, 4, 2, 14, 30, 0, 0, time.UTC)

	results, orders := sampleResults()
	if err := j.Record(ctx, "user-1", results, orders, day); err != nil {
		t.Fatalf("first Record() returned error: %v", err)
	}

	// Re-record d2 after a confirmed retry: same draft id, new status.
	retry := []domain.ExecutionResult{
		{ID: "d2", Symbol: "VWCE", Side: domain.OrderSideSell, Quantity: 5, Status: domain.ExecutionFilled, OrderID: "ord-2", FilledQty: 5},
	}
	if err := j.Record(ctx, "user-1", retry, orders, day.Add(time.Minute)); err != nil {
		t.Fatalf("second Record() returned error: %v", err)
	}

	records, err := j.Read(ctx, "user-1", day)
	if err != nil {
		t.Fatalf("Read() returned error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2 (merged, not appended)", len(records))
	}
	for _, r := range records {
		if r.DraftID == "d2" && r.Status != "filled" {
			t.Errorf("retried record not replaced: %+v", r)
		}
	}
}

func TestReadMissingDayIsEmpty(t *testing.T) {
	j := New(t.TempDir())

	records, err := j.Read(context.Background(), "user-1", time.Now())
	if err != nil {
		t.Fatalf("Read() of missing day returned error: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("records = %v, want empty", records)
	}
}

func TestJournalIsPerUser(t *testing.T) {
	j := New(t.TempDir())
	ctx := context.Background()
	day := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)

	results, orders := sampleResults()
	if err := j.Record(ctx, "alice", results, orders, day); err != nil {
		t.Fatalf("Record() returned error: %v", err)
	}

	records, err := j.Read(ctx, "bob", day)
	if err != nil {
		t.Fatalf("Read() returned error: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("bob sees alice's journal: %v", records)
	}

	days, err := j.Days(ctx, "alice")
	if err != nil {
		t.Fatalf("Days() returned error: %v", err)
	}
	if len(days) != 1 || days[0] != "2026-04-02" {
		t.Errorf("Days(alice) = %v, want [2026-04-02]", days)
	}
}
