// Package journal persists a local audit trail of execution passes as
// Parquet files on disk, one file per user per day. The journal is
// append-only from the caller's view; rewrites merge by draft id so a
// re-recorded result (e.g. after a confirmation retry) replaces its earlier
// row instead of duplicating it.
package journal

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/daanheslenfeld/etf-test-sub001/internal/domain"
)

// Journal writes and reads execution records under a data directory.
type Journal struct {
	DataDir string
}

// New creates a Journal rooted at the given data directory.
func New(dataDir string) *Journal {
	return &Journal{DataDir: dataDir}
}

// ExecutionRecord is the Parquet schema for one executed basket order.
type ExecutionRecord struct {
	DraftID    string  `parquet:"draft_id"`
	BulkID     string  `parquet:"bulk_id"`
	Symbol     string  `parquet:"symbol"`
	Side       string  `parquet:"side"`
	Quantity   int64   `parquet:"quantity"`
	Status     string  `parquet:"status"`
	OrderID    string  `parquet:"order_id"`
	FilledQty  int64   `parquet:"filled_quantity"`
	AvgPrice   float64 `parquet:"avg_price"`
	Message    string  `parquet:"message"`
	ExecutedAt int64   `parquet:"executed_at,timestamp(millisecond)"` // Unix ms
}

// Record appends the results of an execution pass to the user's journal for
// the given day, merging with any records already on disk.
func (j *Journal) Record(_ context.Context, userID string, results []domain.ExecutionResult, orders []domain.DraftOrder, at time.Time) error {
	if len(results) == 0 {
		return nil
	}

	bulkByID := make(map[string]string, len(orders))
	for _, o := range orders {
		bulkByID[o.ID] = o.BulkID
	}

	incoming := make([]ExecutionRecord, 0, len(results))
	for _, r := range results {
		incoming = append(incoming, ExecutionRecord{
			DraftID:    r.ID,
			BulkID:     bulkByID[r.ID],
			Symbol:     r.Symbol,
			Side:       string(r.Side),
			Quantity:   r.Quantity,
			Status:     string(r.Status),
			OrderID:    r.OrderID,
			FilledQty:  r.FilledQty,
			Message:    r.Message,
			ExecutedAt: at.UnixMilli(),
		})
	}

	path := j.path(userID, at)
	existing, _ := readParquetFile[ExecutionRecord](path)
	merged := mergeRecords(existing, incoming)

	if err := writeParquetFile(path, merged); err != nil {
		return fmt.Errorf("writing execution journal for %s: %w", at.Format("2006-01-02"), err)
	}
	return nil
}

// Read returns the user's execution records for one day, oldest first.
// A missing file yields an empty slice, not an error.
func (j *Journal) Read(_ context.Context, userID string, day time.Time) ([]ExecutionRecord, error) {
	records, err := readParquetFile[ExecutionRecord](j.path(userID, day))
	if err != nil {
		// errors.Is rather than os.IsNotExist: the open error may arrive
		// wrapped.
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return records, nil
}

// Days lists the dates (YYYY-MM-DD) for which the user has journal files,
// oldest first.
func (j *Journal) Days(_ context.Context, userID string) ([]string, error) {
	dir := filepath.Join(j.DataDir, "journal", userID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var days []string
	for _, e := range entries {
		name := e.Name()
		if filepath.Ext(name) == ".parquet" {
			days = append(days, name[:len(name)-len(".parquet")])
		}
	}
	sort.Strings(days)
	return days, nil
}

// path returns the journal file for one user and day.
// Layout: <dataDir>/journal/<userID>/<YYYY-MM-DD>.parquet
func (j *Journal) path(userID string, day time.Time) string {
	return filepath.Join(j.DataDir, "journal", userID, day.Format("2006-01-02")+".parquet")
}

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	return parquet.ReadFile[T](path)
}

// mergeRecords deduplicates by draft id, preferring incoming records over
// existing ones. Results are sorted by execution time, then draft id for a
// stable order within one pass.
func mergeRecords(existing, incoming []ExecutionRecord) []ExecutionRecord {
	seen := make(map[string]ExecutionRecord, len(existing)+len(incoming))
	order := make([]string, 0, len(existing)+len(incoming))
	for _, r := range existing {
		if _, ok := seen[r.DraftID]; !ok {
			order = append(order, r.DraftID)
		}
		seen[r.DraftID] = r
	}
	for _, r := range incoming {
		if _, ok := seen[r.DraftID]; !ok {
			order = append(order, r.DraftID)
		}
		seen[r.DraftID] = r
	}

	merged := make([]ExecutionRecord, 0, len(seen))
	for _, id := range order {
		merged = append(merged, seen[id])
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].ExecutedAt < merged[j].ExecutedAt
	})
	return merged
}
