package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/skilleval/engine/internal/metrics"
)

// Backend names a persistent tier for Open.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendSQLite Backend = "sqlite"
	BackendBadger Backend = "badger"
)

// keyMaterial is marshalled to produce cache keys. Fields are declared in
// lexicographic order so the encoding is the canonical sorted-key form.
type keyMaterial struct {
	Criteria   string `json:"criteria"`
	Output     string `json:"output"`
	TestCaseID string `json:"test_case_id"`
}

// Key returns the hex SHA-256 of the canonical JSON of
// {criteria, output, test_case_id}.
func Key(output, criteria, testCaseID string) string {
	data, err := json.Marshal(keyMaterial{Criteria: criteria, Output: output, TestCaseID: testCaseID})
	if err != nil {
		// Strings always marshal; keep the key well-formed regardless.
		data = []byte(criteria + "\x00" + output + "\x00" + testCaseID)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Stats reports cache activity since construction.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Entries int   `json:"entries"`
}

type entry struct {
	value     json.RawMessage
	createdAt time.Time
}

// JudgeCache memoises rubric judgements. Lookups hit an in-memory map first
// and fall back to an optional persistent Store. All state, including store
// writes, is guarded by one mutex.
type JudgeCache struct {
	mu      sync.Mutex
	entries map[string]entry
	store   Store
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
	hits    int64
	misses  int64
	closed  bool
}

// Option configures a JudgeCache.
type Option func(*JudgeCache)

// WithStore attaches a persistent tier. The cache closes it on Close.
func WithStore(s Store) Option {
	return func(c *JudgeCache) { c.store = s }
}

// WithTTL sets how long entries stay valid. Zero means forever.
func WithTTL(ttl time.Duration) Option {
	return func(c *JudgeCache) { c.ttl = ttl }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *JudgeCache) { c.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *JudgeCache) { c.logger = l }
}

// NewJudgeCache returns a memory-only cache unless WithStore is given.
func NewJudgeCache(opts ...Option) *JudgeCache {
	c := &JudgeCache{
		entries: make(map[string]entry),
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open builds a cache for the given backend. path is the SQLite file or the
// badger directory and is ignored for the memory backend.
func Open(backend Backend, path string, opts ...Option) (*JudgeCache, error) {
	c := NewJudgeCache(opts...)
	var err error
	switch backend {
	case BackendMemory, "":
	case BackendSQLite:
		c.store, err = OpenSQLiteStore(path)
	case BackendBadger:
		c.store, err = OpenBadgerStore(path, c.logger)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open judge cache: %w", err)
	}
	return c, nil
}

// Get returns the cached judgement for key. Expired entries are removed from
// both tiers and reported as misses. Store faults are logged and treated as
// misses.
func (c *JudgeCache) Get(key string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		c.misses++
		return nil, false
	}

	if e, ok := c.entries[key]; ok {
		if !c.expired(e.createdAt) {
			c.hits++
			metrics.RecordCacheLookup("memory", "hit")
			return cloneRaw(e.value), true
		}
		delete(c.entries, key)
		c.deleteFromStore(key)
		c.misses++
		metrics.RecordCacheLookup("memory", "expired")
		return nil, false
	}

	if c.store == nil {
		c.misses++
		metrics.RecordCacheLookup("memory", "miss")
		return nil, false
	}

	rec, ok, err := c.store.Load(key)
	if err != nil {
		c.logger.Error("judge cache read error", "err", err)
		c.misses++
		metrics.RecordCacheLookup("store", "error")
		return nil, false
	}
	if !ok {
		c.misses++
		metrics.RecordCacheLookup("store", "miss")
		return nil, false
	}
	if c.expired(rec.CreatedAt) {
		c.deleteFromStore(key)
		c.misses++
		metrics.RecordCacheLookup("store", "expired")
		return nil, false
	}

	c.entries[key] = entry{value: json.RawMessage(rec.ResultJSON), createdAt: rec.CreatedAt}
	c.hits++
	metrics.RecordCacheLookup("store", "hit")
	return cloneRaw(rec.ResultJSON), true
}

// Put stores a judgement in memory and, when configured, in the persistent
// tier. The memory tier is updated even if the store write fails.
func (c *JudgeCache) Put(key string, result json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	now := c.now()
	c.entries[key] = entry{value: cloneRaw(result), createdAt: now}
	if c.store == nil {
		return nil
	}
	if err := c.store.Save(key, Record{ResultJSON: result, CreatedAt: now}); err != nil {
		c.logger.Error("judge cache write error", "err", err)
		return err
	}
	return nil
}

// Stats returns hit and miss counters and the number of entries in the
// memory tier.
func (c *JudgeCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Entries: len(c.entries)}
}

// Persisted returns the number of records in the persistent tier, or zero
// for a memory-only cache.
func (c *JudgeCache) Persisted() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrClosed
	}
	if c.store == nil {
		return 0, nil
	}
	return c.store.Count()
}

// Close releases the persistent tier. Further Puts fail with ErrClosed.
func (c *JudgeCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.entries = map[string]entry{}
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}

func (c *JudgeCache) expired(created time.Time) bool {
	return c.ttl > 0 && c.now().Sub(created) > c.ttl
}

func (c *JudgeCache) deleteFromStore(key string) {
	if c.store == nil {
		return
	}
	if err := c.store.Delete(key); err != nil {
		c.logger.Warn("judge cache evict error", "err", err)
	}
}

func cloneRaw(b []byte) json.RawMessage {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
