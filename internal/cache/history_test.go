package cache_test

import (
	"database/sql"
	"math"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/skilleval/engine/internal/cache"
)

func newTestHistoryStore(t *testing.T) *cache.HistoryStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open in-memory sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store, err := cache.NewHistoryStore(db)
	if err != nil {
		t.Fatalf("NewHistoryStore: %v", err)
	}
	return store
}

func record(t *testing.T, store *cache.HistoryStore, test string, score float64, passed bool) {
	t.Helper()
	if err := store.Record(cache.HistoryEntry{TestName: test, Category: "explicit", Score: score, Passed: passed}); err != nil {
		t.Fatalf("Record: %v", err)
	}
}

func TestHistoryStore_RecordAndQueryWindow(t *testing.T) {
	store := newTestHistoryStore(t)

	scores := []float64{90, 80, 70, 60, 50}
	for _, s := range scores {
		record(t, store, "creates-readme", s, true)
	}

	got, err := store.QueryWindow("creates-readme", 5)
	if err != nil {
		t.Fatalf("QueryWindow: %v", err)
	}
	if len(got) != len(scores) {
		t.Fatalf("QueryWindow returned %d scores, want %d", len(got), len(scores))
	}
	// Inserted 90→50, so most recent first is 50.
	if got[0] != 50 {
		t.Errorf("first (most recent) score = %f, want 50", got[0])
	}
	if got[len(got)-1] != 90 {
		t.Errorf("last (oldest) score = %f, want 90", got[len(got)-1])
	}
}

func TestHistoryStore_QueryWindowRespectsLimit(t *testing.T) {
	store := newTestHistoryStore(t)

	for i := 0; i < 10; i++ {
		record(t, store, "limit", float64(i)*10, true)
	}

	got, err := store.QueryWindow("limit", 3)
	if err != nil {
		t.Fatalf("QueryWindow: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("QueryWindow with windowSize=3 returned %d scores, want 3", len(got))
	}
}

func TestHistoryStore_Stats(t *testing.T) {
	store := newTestHistoryStore(t)

	// 60, 80, 100: mean 80, population stddev sqrt(800/3).
	for _, v := range []float64{60, 80, 100} {
		record(t, store, "stats", v, true)
	}

	mean, stddev, count, err := store.Stats("stats")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
	if math.Abs(mean-80) > 1e-9 {
		t.Errorf("mean = %f, want 80", mean)
	}
	wantStddev := math.Sqrt(800.0 / 3.0)
	if math.Abs(stddev-wantStddev) > 1e-9 {
		t.Errorf("stddev = %f, want %f", stddev, wantStddev)
	}
}

func TestHistoryStore_EmptyHistoryReturnsZeroValues(t *testing.T) {
	store := newTestHistoryStore(t)

	scores, err := store.QueryWindow("nonexistent", 10)
	if err != nil {
		t.Fatalf("QueryWindow: %v", err)
	}
	if len(scores) != 0 {
		t.Errorf("QueryWindow for unknown test returned %d scores, want 0", len(scores))
	}

	mean, stddev, count, err := store.Stats("nonexistent")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if count != 0 || mean != 0 || stddev != 0 {
		t.Errorf("Stats for unknown test = (%f, %f, %d), want (0, 0, 0)", mean, stddev, count)
	}
}

func TestHistoryStore_TestsIsolated(t *testing.T) {
	store := newTestHistoryStore(t)

	record(t, store, "test-A", 90, true)
	record(t, store, "test-B", 30, false)

	aScores, err := store.QueryWindow("test-A", 10)
	if err != nil {
		t.Fatalf("QueryWindow A: %v", err)
	}
	bScores, err := store.QueryWindow("test-B", 10)
	if err != nil {
		t.Fatalf("QueryWindow B: %v", err)
	}

	if len(aScores) != 1 || aScores[0] != 90 {
		t.Errorf("test-A scores = %v, want [90]", aScores)
	}
	if len(bScores) != 1 || bScores[0] != 30 {
		t.Errorf("test-B scores = %v, want [30]", bScores)
	}
}

func TestHistoryStore_Recent(t *testing.T) {
	store := newTestHistoryStore(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, passed := range []bool{true, false} {
		err := store.Record(cache.HistoryEntry{
			TestName:  "negative-refuses",
			Category:  "negative",
			SessionID: "s-1",
			Score:     float64(100 - i*50),
			Passed:    passed,
			RubricRan: i == 0,
			CreatedAt: at.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := store.Recent("negative-refuses", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent returned %d entries, want 2", len(got))
	}
	if got[0].Passed || got[0].Score != 50 || got[0].RubricRan {
		t.Errorf("most recent entry = %+v, want failed score 50 without rubric", got[0])
	}
	if !got[1].CreatedAt.Equal(at) || got[1].Category != "negative" || got[1].SessionID != "s-1" {
		t.Errorf("oldest entry = %+v", got[1])
	}
}

func TestHistoryStore_Summaries(t *testing.T) {
	store := newTestHistoryStore(t)

	record(t, store, "b-test", 100, true)
	record(t, store, "b-test", 50, false)
	record(t, store, "a-test", 70, true)

	got, err := store.Summaries()
	if err != nil {
		t.Fatalf("Summaries: %v", err)
	}
	if len(got) != 2 || got[0].TestName != "a-test" || got[1].TestName != "b-test" {
		t.Fatalf("Summaries = %+v, want a-test then b-test", got)
	}
	b := got[1]
	if b.Runs != 2 || b.PassRate != 0.5 || b.Mean != 75 || b.StdDev != 25 {
		t.Errorf("b-test summary = %+v, want runs 2, pass rate 0.5, mean 75, stddev 25", b)
	}
}
