// Package cache memoizes rule results per file so unchanged content is not
// re-linted within a process.
//
// Entries are keyed by (kind, rule id, file path, settings fingerprint) and
// carry the FileMetadata snapshot they were computed from; a lookup with
// different metadata is a miss. The cache is split into independently
// locked LRU shards so unrelated files never contend on one lock, and is
// bounded both by entry count and by an approximate byte footprint.
package cache

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/leapstack-labs/vaultlint/pkg/core"
)

// Defaults used when Config fields are zero.
const (
	DefaultMaxEntries = 10_000
	DefaultMaxBytes   = 64 << 20
	DefaultShards     = 16
)

// Kinds of cached results.
const (
	KindLint = "lint"
	KindFix  = "fix"
)

// Key identifies a cached result.
type Key struct {
	Kind        string
	RuleID      string
	FilePath    string
	Fingerprint string // Fingerprint of the rule's settings
}

func (k Key) String() string {
	return k.Kind + "\x00" + k.RuleID + "\x00" + k.FilePath + "\x00" + k.Fingerprint
}

// Entry is a cached rule result.
type Entry struct {
	Issues []core.Issue
	Fixes  []core.Fix
	Meta   FileMetadata

	size int64
}

// Config bounds the cache.
type Config struct {
	MaxEntries int
	MaxBytes   int64
	Shards     int
	Logger     *slog.Logger
}

// Stats is a point-in-time view of cache counters.
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	Entries   int     `json:"entries"`
	Bytes     int64   `json:"bytes"`
	HitRate   float64 `json:"hit_rate"`
}

// Cache is a sharded, size-bounded LRU of rule results.
type Cache struct {
	shards   []*lru.Cache[string, *Entry]
	maxBytes int64
	group    singleflight.Group
	logger   *slog.Logger

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
	bytes     atomic.Int64
	cursor    atomic.Uint32
}

// New creates a cache.
func New(cfg Config) (*Cache, error) {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.Shards <= 0 {
		cfg.Shards = DefaultShards
	}
	if cfg.Shards > cfg.MaxEntries {
		cfg.Shards = cfg.MaxEntries
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	c := &Cache{
		shards:   make([]*lru.Cache[string, *Entry], cfg.Shards),
		maxBytes: cfg.MaxBytes,
		logger:   logger,
	}

	perShard := cfg.MaxEntries / cfg.Shards
	if perShard < 1 {
		perShard = 1
	}
	for i := range c.shards {
		shard, err := lru.NewWithEvict(perShard, c.onEvict)
		if err != nil {
			return nil, fmt.Errorf("failed to create cache shard: %w", err)
		}
		c.shards[i] = shard
	}

	logger.Debug("cache created", "shards", cfg.Shards, "max_entries", cfg.MaxEntries, "max_bytes", cfg.MaxBytes)
	return c, nil
}

func (c *Cache) onEvict(_ string, e *Entry) {
	c.bytes.Add(-e.size)
	c.evictions.Add(1)
}

func (c *Cache) shardFor(key string) *lru.Cache[string, *Entry] {
	return c.shards[xxhash.Sum64String(key)%uint64(len(c.shards))]
}

// lookup returns a fresh entry without touching hit/miss counters.
// A stale entry is removed.
func (c *Cache) lookup(key string, meta FileMetadata) (*Entry, bool) {
	shard := c.shardFor(key)
	e, ok := shard.Get(key)
	if !ok {
		return nil, false
	}
	if !e.Meta.Equal(meta) {
		shard.Remove(key)
		return nil, false
	}
	return e, true
}

// Get returns the entry for key if it was computed from identical file
// metadata.
func (c *Cache) Get(key Key, meta FileMetadata) (*Entry, bool) {
	e, ok := c.lookup(key.String(), meta)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return e, ok
}

// Put stores an entry. While the cache is over its byte budget the oldest
// entry of each shard is evicted in turn; the entry just stored is kept.
func (c *Cache) Put(key Key, e *Entry) {
	k := key.String()
	e.size = estimateSize(k, e)

	shard := c.shardFor(k)
	if old, ok := shard.Peek(k); ok {
		c.bytes.Add(-old.size)
	}
	c.bytes.Add(e.size)
	shard.Add(k, e)

	if c.bytes.Load() > c.maxBytes {
		c.shrink(k)
	}
}

// shrink evicts round-robin across shards until the cache fits its byte
// budget or only keep is left.
func (c *Cache) shrink(keep string) {
	start := int(c.cursor.Add(1)) % len(c.shards)
	for c.bytes.Load() > c.maxBytes {
		removed := false
		for i := range c.shards {
			if c.bytes.Load() <= c.maxBytes {
				return
			}
			shard := c.shards[(start+i)%len(c.shards)]
			oldest, _, ok := shard.GetOldest()
			if !ok || oldest == keep {
				continue
			}
			if shard.Remove(oldest) {
				removed = true
			}
		}
		if !removed {
			return
		}
	}
}

// GetOrCompute returns the cached entry for key or runs compute and stores
// its result. Concurrent callers for the same key and content share one
// compute call. The boolean reports a cache hit.
func (c *Cache) GetOrCompute(key Key, meta FileMetadata, compute func() (*Entry, error)) (*Entry, bool, error) {
	k := key.String()
	if e, ok := c.lookup(k, meta); ok {
		c.hits.Add(1)
		return e, true, nil
	}
	c.misses.Add(1)

	v, err, _ := c.group.Do(k+"\x00"+meta.ContentHash, func() (any, error) {
		if e, ok := c.lookup(k, meta); ok {
			return e, nil
		}
		e, err := compute()
		if err != nil {
			return nil, err
		}
		e.Meta = meta
		c.Put(key, e)
		return e, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*Entry), false, nil
}

// Trim removes roughly fraction of the entries, oldest first, from every
// shard. It returns the number of entries removed.
func (c *Cache) Trim(fraction float64) int {
	if fraction <= 0 {
		return 0
	}
	if fraction > 1 {
		fraction = 1
	}
	removed := 0
	for _, shard := range c.shards {
		n := int(float64(shard.Len())*fraction + 0.5)
		for i := 0; i < n; i++ {
			if _, _, ok := shard.RemoveOldest(); !ok {
				break
			}
			removed++
		}
	}
	c.logger.Debug("cache trimmed", "fraction", fraction, "removed", removed)
	return removed
}

// Purge removes every entry.
func (c *Cache) Purge() {
	for _, shard := range c.shards {
		shard.Purge()
	}
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	n := 0
	for _, shard := range c.shards {
		n += shard.Len()
	}
	return n
}

// Stats returns current counters.
func (c *Cache) Stats() Stats {
	s := Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Entries:   c.Len(),
		Bytes:     c.bytes.Load(),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

// estimateSize approximates the heap footprint of an entry.
func estimateSize(key string, e *Entry) int64 {
	const structOverhead = 96
	size := int64(len(key) + structOverhead + len(e.Meta.ContentHash))
	for _, is := range e.Issues {
		size += structOverhead + int64(len(is.RuleID)+len(is.Message)+len(is.File)+len(is.Severity))
	}
	for _, f := range e.Fixes {
		size += structOverhead + int64(len(f.RuleID)+len(f.File)+len(f.Description))
		for _, ch := range f.Changes {
			size += structOverhead + int64(len(ch.OldText)+len(ch.NewText)+len(ch.OldPath)+len(ch.NewPath))
		}
	}
	return size
}
