package cache

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"
)

// HistoryStore is a SQLite-backed store of final evaluation scores per test.
type HistoryStore struct {
	db  *sql.DB
	now func() time.Time
}

// HistoryEntry is one recorded evaluation.
type HistoryEntry struct {
	TestName  string    `json:"test_name"`
	Category  string    `json:"category"`
	SessionID string    `json:"session_id,omitempty"`
	Score     float64   `json:"score"`
	Passed    bool      `json:"passed"`
	RubricRan bool      `json:"rubric_ran"`
	CreatedAt time.Time `json:"created_at"`
}

// TestSummary aggregates the history of one test.
type TestSummary struct {
	TestName string  `json:"test_name"`
	Runs     int     `json:"runs"`
	PassRate float64 `json:"pass_rate"`
	Mean     float64 `json:"mean"`
	StdDev   float64 `json:"stddev"`
}

// NewHistoryStore creates the evaluation_history table and index if they don't exist,
// then returns a HistoryStore backed by the provided *sql.DB.
func NewHistoryStore(db *sql.DB) (*HistoryStore, error) {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS evaluation_history (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			test_name  TEXT    NOT NULL,
			category   TEXT    NOT NULL,
			session_id TEXT    NOT NULL,
			score      REAL    NOT NULL,
			passed     INTEGER NOT NULL,
			rubric_ran INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		)
	`); err != nil {
		return nil, fmt.Errorf("create evaluation_history table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_evaluation_history_test_ts
		ON evaluation_history (test_name, created_at)
	`); err != nil {
		return nil, fmt.Errorf("create evaluation_history index: %w", err)
	}

	return &HistoryStore{db: db, now: time.Now}, nil
}

// Record inserts one evaluation row. A zero CreatedAt is stamped with the
// current time.
func (h *HistoryStore) Record(e HistoryEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = h.now()
	}
	_, err := h.db.Exec(
		`INSERT INTO evaluation_history (test_name, category, session_id, score, passed, rubric_ran, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.TestName, e.Category, e.SessionID, e.Score, boolInt(e.Passed), boolInt(e.RubricRan), e.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("record evaluation history: %w", err)
	}
	return nil
}

// QueryWindow returns the last windowSize scores for testName, most recent
// first.
func (h *HistoryStore) QueryWindow(testName string, windowSize int) ([]float64, error) {
	rows, err := h.db.Query(
		`SELECT score FROM evaluation_history
		 WHERE test_name = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		testName, windowSize,
	)
	if err != nil {
		return nil, fmt.Errorf("query window: %w", err)
	}
	defer rows.Close()

	var scores []float64
	for rows.Next() {
		var s float64
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		scores = append(scores, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query window rows: %w", err)
	}
	return scores, nil
}

// Recent returns the last limit entries for testName, most recent first.
func (h *HistoryStore) Recent(testName string, limit int) ([]HistoryEntry, error) {
	rows, err := h.db.Query(
		`SELECT test_name, category, session_id, score, passed, rubric_ran, created_at
		 FROM evaluation_history
		 WHERE test_name = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		testName, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var (
			e              HistoryEntry
			passed, rubric int
			created        int64
		)
		if err := rows.Scan(&e.TestName, &e.Category, &e.SessionID, &e.Score, &passed, &rubric, &created); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		e.Passed = passed != 0
		e.RubricRan = rubric != 0
		e.CreatedAt = time.Unix(0, created)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query recent rows: %w", err)
	}
	return out, nil
}

// Stats computes the mean, population standard deviation, and count of all scores
// for testName. Returns zero values when no rows exist.
func (h *HistoryStore) Stats(testName string) (mean float64, stddev float64, count int, err error) {
	row := h.db.QueryRow(
		`SELECT COUNT(*), COALESCE(AVG(score), 0.0) FROM evaluation_history WHERE test_name = ?`,
		testName,
	)
	if err = row.Scan(&count, &mean); err != nil {
		return 0, 0, 0, fmt.Errorf("stats query: %w", err)
	}
	if count == 0 {
		return 0, 0, 0, nil
	}

	// SQLite lacks STDDEV_POP.
	rows, err := h.db.Query(
		`SELECT score FROM evaluation_history WHERE test_name = ?`,
		testName,
	)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("stats stddev query: %w", err)
	}
	defer rows.Close()

	var sumSqDiff float64
	for rows.Next() {
		var s float64
		if scanErr := rows.Scan(&s); scanErr != nil {
			return 0, 0, 0, fmt.Errorf("stats scan: %w", scanErr)
		}
		diff := s - mean
		sumSqDiff += diff * diff
	}
	if rowErr := rows.Err(); rowErr != nil {
		return 0, 0, 0, fmt.Errorf("stats rows: %w", rowErr)
	}

	stddev = math.Sqrt(sumSqDiff / float64(count))
	return mean, stddev, count, nil
}

// Summaries returns one TestSummary per recorded test, ordered by name.
func (h *HistoryStore) Summaries() ([]TestSummary, error) {
	rows, err := h.db.Query(
		`SELECT test_name, COUNT(*), AVG(passed) FROM evaluation_history
		 GROUP BY test_name ORDER BY test_name`,
	)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	var out []TestSummary
	for rows.Next() {
		var s TestSummary
		if err := rows.Scan(&s.TestName, &s.Runs, &s.PassRate); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		out = append(out, s)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("query summaries rows: %w", err)
	}

	for i := range out {
		mean, stddev, _, err := h.Stats(out[i].TestName)
		if err != nil {
			return nil, err
		}
		out[i].Mean, out[i].StdDev = mean, stddev
	}
	return out, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
