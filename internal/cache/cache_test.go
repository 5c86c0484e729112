package cache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("Open() returned error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPutGetRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	type summary struct {
		Cash float64 `json:"cash"`
	}

	if err := store.Put(ctx, "user-1", DatasetSummary, summary{Cash: 1234.56}); err != nil {
		t.Fatalf("Put() returned error: %v", err)
	}

	var got summary
	ts, err := store.Get(ctx, "user-1", DatasetSummary, &got)
	if err != nil {
		t.Fatalf("Get() returned error: %v", err)
	}
	if got.Cash != 1234.56 {
		t.Errorf("Cash = %v, want 1234.56", got.Cash)
	}
	if time.Since(ts) > time.Minute {
		t.Errorf("fetch timestamp %v is implausibly old", ts)
	}
}

func TestGetMissingReturnsErrNoSnapshot(t *testing.T) {
	store := openTestStore(t)

	var out map[string]any
	_, err := store.Get(context.Background(), "user-1", DatasetPositions, &out)
	if !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("Get() error = %v, want ErrNoSnapshot", err)
	}
}

func TestPutOverwritesPreviousSnapshot(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "user-1", DatasetAccountID, "DU111111"); err != nil {
		t.Fatalf("first Put() returned error: %v", err)
	}
	if err := store.Put(ctx, "user-1", DatasetAccountID, "DU222222"); err != nil {
		t.Fatalf("second Put() returned error: %v", err)
	}

	var got string
	if _, err := store.Get(ctx, "user-1", DatasetAccountID, &got); err != nil {
		t.Fatalf("Get() returned error: %v", err)
	}
	if got != "DU222222" {
		t.Errorf("account id = %q, want %q", got, "DU222222")
	}
}

func TestPerUserIsolation(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "alice", DatasetAccountID, "DU100001"); err != nil {
		t.Fatalf("Put() returned error: %v", err)
	}
	if err := store.Put(ctx, "bob", DatasetAccountID, "DU200002"); err != nil {
		t.Fatalf("Put() returned error: %v", err)
	}

	var got string
	if _, err := store.Get(ctx, "alice", DatasetAccountID, &got); err != nil {
		t.Fatalf("Get(alice) returned error: %v", err)
	}
	if got != "DU100001" {
		t.Errorf("alice account id = %q, want %q", got, "DU100001")
	}

	if _, err := store.Get(ctx, "bob", DatasetAccountID, &got); err != nil {
		t.Fatalf("Get(bob) returned error: %v", err)
	}
	if got != "DU200002" {
		t.Errorf("bob account id = %q, want %q", got, "DU200002")
	}
}

func TestPutRejectsEmptyUserID(t *testing.T) {
	store := openTestStore(t)

	if err := store.Put(context.Background(), "", DatasetSummary, "x"); err == nil {
		t.Error("Put with empty user id should fail")
	}
}

func TestGetIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	when := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := store.PutAt(ctx, "user-1", DatasetMarketData, []string{"IWDA"}, when); err != nil {
		t.Fatalf("PutAt() returned error: %v", err)
	}

	// Repeated reads after repeated upstream failures must return the same
	// payload and the original fetch timestamp.
	for i := 0; i < 3; i++ {
		var got []string
		ts, err := store.Get(ctx, "user-1", DatasetMarketData, &got)
		if err != nil {
			t.Fatalf("Get() #%d returned error: %v", i, err)
		}
		if !ts.Equal(when) {
			t.Errorf("Get() #%d timestamp = %v, want %v", i, ts, when)
		}
		if len(got) != 1 || got[0] != "IWDA" {
			t.Errorf("Get() #%d payload = %v", i, got)
		}
	}
}

func TestCleanupLegacyRunsOnce(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	// Simulate a pre-namespacing row written with an empty user id.
	if _, err := store.db.Exec(
		`INSERT INTO snapshots (user_id, dataset, payload, fetched_at) VALUES ('', ?, ?, 0)`,
		DatasetSummary, []byte(`{}`)); err != nil {
		t.Fatalf("seeding legacy row: %v", err)
	}
	if err := store.Put(ctx, "user-1", DatasetSummary, "keep"); err != nil {
		t.Fatalf("Put() returned error: %v", err)
	}

	ran, err := store.CleanupLegacy(ctx)
	if err != nil {
		t.Fatalf("CleanupLegacy() returned error: %v", err)
	}
	if !ran {
		t.Error("first CleanupLegacy() should report that it ran")
	}

	var count int
	if err := store.db.QueryRow(
		`SELECT COUNT(*) FROM snapshots WHERE user_id = ''`).Scan(&count); err != nil {
		t.Fatalf("counting legacy rows: %v", err)
	}
	if count != 0 {
		t.Errorf("legacy rows remaining = %d, want 0", count)
	}

	var kept string
	if _, err := store.Get(ctx, "user-1", DatasetSummary, &kept); err != nil {
		t.Errorf("namespaced snapshot should survive cleanup: %v", err)
	}

	ran, err = store.CleanupLegacy(ctx)
	if err != nil {
		t.Fatalf("second CleanupLegacy() returned error: %v", err)
	}
	if ran {
		t.Error("second CleanupLegacy() should be a no-op")
	}
}

func TestDelete(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "user-1", DatasetOrders, []string{"o1"}); err != nil {
		t.Fatalf("Put() returned error: %v", err)
	}
	if err := store.Delete(ctx, "user-1", DatasetOrders); err != nil {
		t.Fatalf("Delete() returned error: %v", err)
	}

	var out []string
	if _, err := store.Get(ctx, "user-1", DatasetOrders, &out); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("Get() after Delete() error = %v, want ErrNoSnapshot", err)
	}
}
