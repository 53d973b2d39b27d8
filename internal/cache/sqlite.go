package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists judge results in a judge_cache table.
type SQLiteStore struct {
	db     *sql.DB
	ownsDB bool
}

// OpenSQLiteStore opens (or creates) a SQLite database at path and prepares
// the judge_cache table. Use ":memory:" for a throwaway store.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and matches
	// the cache's single-writer discipline.
	db.SetMaxOpenConns(1)
	s, err := NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// NewSQLiteStore prepares the judge_cache table on an existing database.
// The caller keeps ownership of db.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS judge_cache (
			cache_key   TEXT    PRIMARY KEY,
			result_json TEXT    NOT NULL,
			created_at  INTEGER NOT NULL
		)
	`); err != nil {
		return nil, fmt.Errorf("create judge_cache table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(key string) (Record, bool, error) {
	var (
		result  string
		created int64
	)
	err := s.db.QueryRow(`SELECT result_json, created_at FROM judge_cache WHERE cache_key = ?`, key).Scan(&result, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("load judge cache entry: %w", err)
	}
	return Record{ResultJSON: []byte(result), CreatedAt: time.Unix(0, created)}, true, nil
}

func (s *SQLiteStore) Save(key string, rec Record) error {
	_, err := s.db.Exec(
		`INSERT INTO judge_cache (cache_key, result_json, created_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET result_json = excluded.result_json, created_at = excluded.created_at`,
		key, string(rec.ResultJSON), rec.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save judge cache entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM judge_cache WHERE cache_key = ?`, key); err != nil {
		return fmt.Errorf("delete judge cache entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM judge_cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count judge cache entries: %w", err)
	}
	return n, nil
}

// Close closes the database if the store opened it.
func (s *SQLiteStore) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}
