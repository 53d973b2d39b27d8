package cache

import (
	"errors"
	"time"
)

// ErrClosed is returned by operations on a closed cache or store.
var ErrClosed = errors.New("judge cache is closed")

// Record is one persisted judge result.
type Record struct {
	ResultJSON []byte
	CreatedAt  time.Time
}

// Store is the persistent tier of the judge cache. Implementations need not
// be safe for concurrent writers: JudgeCache serialises all calls.
type Store interface {
	// Load returns the record for key. A missing key is (Record{}, false, nil).
	Load(key string) (Record, bool, error)
	// Save inserts or replaces the record for key.
	Save(key string, rec Record) error
	Delete(key string) error
	// Count returns the number of persisted records.
	Count() (int, error)
	Close() error
}
