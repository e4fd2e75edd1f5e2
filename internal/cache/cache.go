// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package cache implements a sharded, reference-counted LRU cache.
//
// Entries are keyed by byte strings and carry a caller-supplied charge; the
// cache evicts least recently used entries while the total charge exceeds its
// capacity. An entry is pinned while a Handle to it is outstanding: pinned
// entries are never evicted and their deleter is not invoked until the last
// Handle is released, even if the entry was erased or replaced in the
// meantime.
//
// The cache is split into 2^shardBits shards selected by the upper bits of a
// 32-bit hash of the key. Each shard is protected by its own mutex and keeps
// its entries in an arena of nodes addressed by int32 index, threaded onto
// one of two circular lists:
//
//   - the LRU list holds entries that are in the cache and not pinned by any
//     Handle (refs == 1), ordered from least to most recently used;
//   - the in-use list holds entries pinned by at least one Handle.
//
// Entries that have been erased but are still pinned are on neither list.
//
// Every Handle returned by Insert or Lookup must be released exactly once.
//
//	h := c.Insert(key, value, charge, deleter)
//	defer c.Release(h)
package cache // import "github.com/cockroachdb/sstkv/internal/cache"

import (
	"fmt"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/crlib/crhumanize"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
)

// DefaultShardBits is the number of hash bits used to select a shard when
// WithShardBits is not specified.
const DefaultShardBits = 4

// maxShardBits bounds the shard count at 2^16.
const maxShardBits = 16

// Deleter is invoked with the key and value of an entry once the entry is no
// longer in the cache and no Handle references it.
type Deleter func(key []byte, value any)

// Hasher computes the 32-bit hash used to pick a key's shard.
type Hasher func(key []byte) uint32

// DefaultHasher returns the upper 32 bits of the key's xxhash64.
func DefaultHasher(key []byte) uint32 {
	return uint32(xxhash.Sum64(key) >> 32)
}

type config struct {
	shardBits int
	hasher    Hasher
}

// Option configures a Cache.
type Option func(*config)

// WithShardBits sets the number of hash bits used to select a shard. The
// cache has 2^n shards.
func WithShardBits(n int) Option {
	return func(c *config) {
		c.shardBits = n
	}
}

// WithHasher replaces the hash function used to pick a key's shard.
func WithHasher(h Hasher) Option {
	return func(c *config) {
		c.hasher = h
	}
}

// Cache is a sharded LRU cache. It is safe for concurrent use.
type Cache struct {
	capacity  int64
	shardBits uint
	hasher    Hasher
	shards    []shard
	lastID    atomic.Uint64
}

// New creates a cache with the given total capacity, split evenly across its
// shards. A capacity of zero disables caching: inserted entries are returned
// to the caller but not retained.
func New(capacity int64, opts ...Option) *Cache {
	cfg := config{shardBits: DefaultShardBits, hasher: DefaultHasher}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.shardBits < 0 || cfg.shardBits > maxShardBits {
		panic(errors.AssertionFailedf("cache: invalid shard bits %d", cfg.shardBits))
	}
	if capacity < 0 {
		panic(errors.AssertionFailedf("cache: negative capacity %d", capacity))
	}
	c := &Cache{
		capacity:  capacity,
		shardBits: uint(cfg.shardBits),
		hasher:    cfg.hasher,
		shards:    make([]shard, 1<<cfg.shardBits),
	}
	n := int64(len(c.shards))
	perShard := (capacity + n - 1) / n
	for i := range c.shards {
		c.shards[i].init(perShard)
	}
	return c
}

func (c *Cache) shardIndex(hash uint32) uint32 {
	if c.shardBits == 0 {
		return 0
	}
	return hash >> (32 - c.shardBits)
}

func (c *Cache) getShard(key []byte) *shard {
	return &c.shards[c.shardIndex(c.hasher(key))]
}

// Insert adds a mapping from key to value with the given charge, replacing
// any existing entry for key. The returned Handle pins the new entry and must
// be released. deleter, which may be nil, is called once the entry has left
// the cache and has been released by all holders.
func (c *Cache) Insert(key []byte, value any, charge int64, deleter Deleter) Handle {
	return c.getShard(key).insert(key, value, charge, deleter)
}

// Lookup returns a Handle pinning the entry for key, if present.
func (c *Cache) Lookup(key []byte) (Handle, bool) {
	return c.getShard(key).lookup(key)
}

// Release unpins the entry referenced by h. Releasing a Handle more than once
// is a programming error and panics when detected.
func (c *Cache) Release(h Handle) {
	if h.s == nil {
		panic(errors.AssertionFailedf("cache: release of zero Handle"))
	}
	h.s.release(h)
}

// Erase removes the entry for key from the cache. If the entry is pinned it
// is deleted once the last Handle to it is released.
func (c *Cache) Erase(key []byte) {
	c.getShard(key).erase(key)
}

// Prune removes all unpinned entries from the cache.
func (c *Cache) Prune() {
	for i := range c.shards {
		c.shards[i].prune()
	}
}

// NewID returns a new id that clients sharing the cache can use to partition
// their key space, typically by prefixing their keys with it.
func (c *Cache) NewID() uint64 {
	return c.lastID.Add(1)
}

// TotalCharge returns the sum of the charges of all entries in the cache.
func (c *Cache) TotalCharge() int64 {
	var total int64
	for i := range c.shards {
		total += c.shards[i].totalCharge()
	}
	return total
}

// Capacity returns the capacity the cache was created with.
func (c *Cache) Capacity() int64 {
	return c.capacity
}

// NumShards returns the number of shards.
func (c *Cache) NumShards() int {
	return len(c.shards)
}

// Metrics holds metrics for the cache.
type Metrics struct {
	// Capacity is the configured capacity.
	Capacity int64
	// Size is the total charge of the entries in the cache.
	Size int64
	// Count is the number of entries in the cache.
	Count int64
	// InUse is the number of cached entries pinned by a Handle.
	InUse int64
	// Hits and Misses count Lookup outcomes.
	Hits   int64
	Misses int64
	// Inserts counts calls to Insert.
	Inserts int64
	// Evictions counts entries removed to stay within capacity.
	Evictions int64
}

// HitRate returns the fraction of lookups that hit, or 0 without lookups.
func (m Metrics) HitRate() float64 {
	if m.Hits+m.Misses == 0 {
		return 0
	}
	return float64(m.Hits) / float64(m.Hits+m.Misses)
}

// SafeFormat implements redact.SafeFormatter.
func (m Metrics) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("size: %s/%s  count: %s (%d in use)  hits: %d  misses: %d  inserts: %d  evictions: %d",
		redact.SafeString(crhumanize.Bytes(m.Size, crhumanize.Compact, crhumanize.OmitI)),
		redact.SafeString(crhumanize.Bytes(m.Capacity, crhumanize.Compact, crhumanize.OmitI)),
		redact.SafeString(crhumanize.Count(m.Count, crhumanize.Compact)),
		redact.Safe(m.InUse), redact.Safe(m.Hits), redact.Safe(m.Misses),
		redact.Safe(m.Inserts), redact.Safe(m.Evictions))
}

// String implements fmt.Stringer.
func (m Metrics) String() string {
	return redact.StringWithoutMarkers(m)
}

var _ fmt.Stringer = Metrics{}

// Metrics returns the current metrics of the cache, summed over its shards.
func (c *Cache) Metrics() Metrics {
	m := Metrics{Capacity: c.capacity}
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		m.Size += s.mu.usage
		m.Count += int64(s.mu.table.Len())
		m.InUse += int64(s.mu.inUseCount)
		m.Hits += s.mu.hits
		m.Misses += s.mu.misses
		m.Inserts += s.mu.inserts
		m.Evictions += s.mu.evictions
		s.mu.Unlock()
	}
	return m
}
