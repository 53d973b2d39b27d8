package cache

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/segmentio/encoding/json"
)

// keyPrefix namespaces judge entries inside a shared badger database.
const keyPrefix = "judge_cache/"

// BadgerStore persists judge results in a badger key-value database.
type BadgerStore struct {
	db *badger.DB
}

// badgerRecord is the on-disk value layout.
type badgerRecord struct {
	ResultJSON json.RawMessage `json:"result_json"`
	CreatedAt  int64           `json:"created_at"`
}

// OpenBadgerStore opens a badger database in dir. An empty dir opens an
// in-memory database.
func OpenBadgerStore(dir string, logger *slog.Logger) (*BadgerStore, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create badger directory %s: %w", dir, err)
		}
		opts = badger.DefaultOptions(dir).WithSyncWrites(true)
	}
	opts = opts.WithNumVersionsToKeep(1)
	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Load(key string) (Record, bool, error) {
	var rec badgerRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("load judge cache entry: %w", err)
	}
	return Record{ResultJSON: []byte(rec.ResultJSON), CreatedAt: time.Unix(0, rec.CreatedAt)}, true, nil
}

func (s *BadgerStore) Save(key string, rec Record) error {
	val, err := json.Marshal(badgerRecord{ResultJSON: rec.ResultJSON, CreatedAt: rec.CreatedAt.UnixNano()})
	if err != nil {
		return fmt.Errorf("encode judge cache entry: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+key), val)
	})
	if err != nil {
		return fmt.Errorf("save judge cache entry: %w", err)
	}
	return nil
}

func (s *BadgerStore) Delete(key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + key))
	})
	if err != nil {
		return fmt.Errorf("delete judge cache entry: %w", err)
	}
	return nil
}

func (s *BadgerStore) Count() (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count judge cache entries: %w", err)
	}
	return n, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// badgerLogger routes badger's internal logging through slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
