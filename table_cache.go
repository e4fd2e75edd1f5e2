// Copyright 2013 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstkv

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/errors/oserror"
	"github.com/cockroachdb/sstkv/internal/base"
	"github.com/cockroachdb/sstkv/internal/cache"
	"github.com/cockroachdb/sstkv/sstable"
	"golang.org/x/sync/singleflight"
)

// tableCacheShardBitsThreshold is the capacity below which a TableCache uses
// a single shard, so that small caches are not split into shards holding a
// single table each.
const tableCacheShardBitsThreshold = 64

// TableCache holds open table readers keyed by file number, closing the least
// recently used ones once more than a configured number are open. Every
// reader handed out stays open until the caller is done with it, even if it
// is evicted in the meantime.
type TableCache struct {
	dirname    string
	opts       *Options
	readerOpts sstable.ReaderOptions
	cache      *cache.Cache
	// loads collapses concurrent opens of the same table.
	loads  singleflight.Group
	closed atomic.Bool
}

// NewTableCache returns a TableCache for the tables in dirname holding at most
// entries open tables. A non-positive entries uses opts.MaxOpenFiles.
func NewTableCache(dirname string, opts *Options, entries int) *TableCache {
	opts = opts.EnsureDefaults()
	if entries <= 0 {
		entries = opts.MaxOpenFiles
	}
	shardBits := cache.DefaultShardBits
	if entries < tableCacheShardBitsThreshold {
		shardBits = 0
	}
	return &TableCache{
		dirname:    dirname,
		opts:       opts,
		readerOpts: opts.MakeReaderOptions(),
		cache:      cache.New(int64(entries), cache.WithShardBits(shardBits)),
	}
}

// tableCacheKey is the fixed64 little-endian encoding of the file number, the
// same encoding used for fixed64 fields elsewhere. The key only needs to be
// unique per file number, so its byte order is not observable.
func tableCacheKey(fileNum base.FileNum) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(fileNum))
	return buf[:]
}

// findTable returns a handle pinning the reader of the table. The handle must
// be released. Failures to open the table are not cached.
func (c *TableCache) findTable(fileNum base.FileNum) (cache.Handle, error) {
	if c.closed.Load() {
		return cache.Handle{}, errors.New("sstkv: table cache is closed")
	}
	key := tableCacheKey(fileNum)
	if h, ok := c.cache.Lookup(key); ok {
		return h, nil
	}
	_, err, _ := c.loads.Do(string(key), func() (any, error) {
		if h, ok := c.cache.Lookup(key); ok {
			c.cache.Release(h)
			return nil, nil
		}
		h, err := c.openTable(fileNum, key)
		if err != nil {
			return nil, err
		}
		c.cache.Release(h)
		return nil, nil
	})
	if err != nil {
		return cache.Handle{}, err
	}
	if h, ok := c.cache.Lookup(key); ok {
		return h, nil
	}
	// The table was evicted between its load and our lookup.
	return c.openTable(fileNum, key)
}

// openTable opens the table's file, preferring the current extension and
// falling back to the legacy one, and inserts its reader into the cache.
func (c *TableCache) openTable(fileNum base.FileNum, key []byte) (cache.Handle, error) {
	fs := c.opts.FS
	path := base.MakeFilepath(fs, c.dirname, base.FileTypeTable, fileNum)
	f, err := fs.Open(path)
	if oserror.IsNotExist(err) {
		legacyPath := base.MakeFilepath(fs, c.dirname, base.FileTypeOldFashionedTable, fileNum)
		if lf, lerr := fs.Open(legacyPath); lerr == nil {
			f, err = lf, nil
		}
	}
	if err != nil {
		return cache.Handle{}, errors.Wrapf(err, "sstkv: opening table %s", fileNum)
	}
	r, err := sstable.NewReader(f, c.readerOpts)
	if err != nil {
		return cache.Handle{}, errors.Wrapf(err, "sstkv: reading table %s", fileNum)
	}
	return c.cache.Insert(key, r, 1, c.closeReader), nil
}

// closeReader is the cache deleter: it closes evicted readers.
func (c *TableCache) closeReader(key []byte, value any) {
	r := value.(*sstable.Reader)
	if err := r.Close(); err != nil {
		c.opts.Logger.Errorf("sstkv: closing table %s: %v",
			base.FileNum(binary.LittleEndian.Uint64(key)), err)
	}
}

// withReader calls fn with the reader of the table, keeping it pinned for the
// duration of the call.
func (c *TableCache) withReader(fileNum base.FileNum, fn func(*sstable.Reader) error) error {
	h, err := c.findTable(fileNum)
	if err != nil {
		return err
	}
	defer c.release(fileNum, h)
	return fn(h.Value().(*sstable.Reader))
}

// release unpins a table. Once the cache is closed the table is also erased,
// so that its reader is closed with the last handle.
func (c *TableCache) release(fileNum base.FileNum, h cache.Handle) {
	c.cache.Release(h)
	if c.closed.Load() {
		c.cache.Erase(tableCacheKey(fileNum))
	}
}

// Get seeks the table to the encoded internal key ikey and calls handleResult
// with the entry found there. See sstable.Reader.InternalGet.
func (c *TableCache) Get(
	fileNum base.FileNum, ikey []byte, handleResult func(k, v []byte) error,
) error {
	return c.withReader(fileNum, func(r *sstable.Reader) error {
		return r.InternalGet(ikey, handleResult)
	})
}

// GetValue returns the value of the newest entry for the user key in the
// table, or base.ErrNotFound if the table holds none or it is a deletion.
func (c *TableCache) GetValue(fileNum base.FileNum, key []byte) (value []byte, err error) {
	err = c.withReader(fileNum, func(r *sstable.Reader) error {
		value, err = r.Get(key)
		return err
	})
	return value, err
}

// Properties returns the properties of the table.
func (c *TableCache) Properties(fileNum base.FileNum) (sstable.Properties, error) {
	var props sstable.Properties
	err := c.withReader(fileNum, func(r *sstable.Reader) error {
		props = r.Properties
		return nil
	})
	return props, err
}

// NewIter returns an iterator over the table. The table stays open until the
// iterator is closed.
func (c *TableCache) NewIter(fileNum base.FileNum) (internalIterator, error) {
	h, err := c.findTable(fileNum)
	if err != nil {
		return nil, err
	}
	it := h.Value().(*sstable.Reader).NewIter()
	it.RegisterCleanup(func() { c.release(fileNum, h) })
	return it, nil
}

// Evict removes the table from the cache. Its reader is closed once no
// iterator or lookup holds it.
func (c *TableCache) Evict(fileNum base.FileNum) {
	c.cache.Erase(tableCacheKey(fileNum))
}

// Metrics returns the metrics of the underlying cache, counted in tables.
func (c *TableCache) Metrics() cache.Metrics {
	return c.cache.Metrics()
}

// Close closes every unpinned table. It returns an error if tables are still
// pinned by open iterators; those are closed when released.
func (c *TableCache) Close() error {
	if c.closed.Swap(true) {
		return errors.New("sstkv: table cache closed twice")
	}
	c.cache.Prune()
	if n := c.cache.Metrics().InUse; n > 0 {
		return errors.Errorf("sstkv: leaked table cache handles: %d", errors.Safe(n))
	}
	return nil
}
