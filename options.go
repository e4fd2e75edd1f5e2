// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstkv

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/sstkv/internal/base"
	"github.com/cockroachdb/sstkv/internal/cache"
	"github.com/cockroachdb/sstkv/internal/compression"
	"github.com/cockroachdb/sstkv/sstable"
	"github.com/cockroachdb/sstkv/sstable/block"
	"github.com/cockroachdb/sstkv/vfs"
)

// DefaultMaxOpenFiles is the default number of tables held open by a
// TableCache.
const DefaultMaxOpenFiles = 1000

// Options holds the optional parameters for the memtable, the table cache and
// the tables they read and write. A zero value is usable: EnsureDefaults
// fills in every unset field.
type Options struct {
	// BlockRestartInterval is the number of keys between restart points for
	// delta encoding of keys.
	//
	// The default value is 16.
	BlockRestartInterval int

	// BlockSize is the target uncompressed size in bytes of each table block.
	//
	// The default value is 4096.
	BlockSize int

	// Cache is the block cache shared by all tables opened through these
	// options. A nil cache disables block caching.
	Cache *cache.Cache

	// Checksum is the block checksum written to new tables.
	//
	// The default value is CRC32c.
	Checksum block.ChecksumType

	// Comparer defines a total ordering over the space of []byte user keys.
	//
	// The default value uses the same ordering as bytes.Compare.
	Comparer *Comparer

	// Compression is the per-block compression of new tables.
	//
	// The default value means no compression.
	Compression compression.Setting

	// FilterPolicy defines a filter algorithm (such as a Bloom filter) that
	// can reduce disk reads for Get calls.
	//
	// The default value means to use no filter.
	FilterPolicy FilterPolicy

	// FilterMetrics, if set, accumulates filter hits and misses of every table
	// opened through these options.
	FilterMetrics *sstable.FilterMetricsTracker

	// FS provides the interface for persistent file storage.
	//
	// The default value uses the underlying operating system's file system.
	FS vfs.FS

	// IndexRestartInterval is the number of index entries between restart
	// points of index blocks.
	//
	// The default value is 1.
	IndexRestartInterval int

	// Logger is used to write log messages.
	//
	// The default logger uses the Go standard library log package.
	Logger Logger

	// MaxOpenFiles is a soft limit on the number of tables held open by a
	// TableCache.
	//
	// The default value is 1000.
	MaxOpenFiles int
}

// EnsureDefaults ensures that the default values for all options are set if a
// valid value was not already specified. Returns the new options.
func (o *Options) EnsureDefaults() *Options {
	if o == nil {
		o = &Options{}
	}
	n := *o
	if n.BlockRestartInterval <= 0 {
		n.BlockRestartInterval = block.DefaultRestartInterval
	}
	if n.BlockSize <= 0 {
		n.BlockSize = sstable.DefaultBlockSize
	}
	if n.Checksum == block.ChecksumTypeNone {
		n.Checksum = block.ChecksumTypeCRC32c
	}
	n.Comparer = n.Comparer.EnsureDefaults()
	if n.FS == nil {
		n.FS = vfs.Default
	}
	if n.IndexRestartInterval <= 0 {
		n.IndexRestartInterval = sstable.DefaultIndexRestartInterval
	}
	if n.Logger == nil {
		n.Logger = base.DefaultLogger
	}
	if n.MaxOpenFiles <= 0 {
		n.MaxOpenFiles = DefaultMaxOpenFiles
	}
	return &n
}

// MakeReaderOptions constructs sstable.ReaderOptions from the corresponding
// options in the receiver.
func (o *Options) MakeReaderOptions() sstable.ReaderOptions {
	var readerOpts sstable.ReaderOptions
	if o != nil {
		readerOpts.Comparer = o.Comparer
		readerOpts.Cache = o.Cache
		readerOpts.FilterMetrics = o.FilterMetrics
		readerOpts.Logger = o.Logger
		if o.FilterPolicy != nil {
			readerOpts.Filters = sstable.FilterPolicies{o.FilterPolicy.Name(): o.FilterPolicy}
		}
	}
	return readerOpts
}

// MakeWriterOptions constructs sstable.WriterOptions from the corresponding
// options in the receiver.
func (o *Options) MakeWriterOptions() sstable.WriterOptions {
	var writerOpts sstable.WriterOptions
	if o != nil {
		writerOpts.BlockRestartInterval = o.BlockRestartInterval
		writerOpts.BlockSize = o.BlockSize
		writerOpts.Checksum = o.Checksum
		writerOpts.Comparer = o.Comparer
		writerOpts.Compression = o.Compression
		writerOpts.FilterPolicy = o.FilterPolicy
		writerOpts.IndexRestartInterval = o.IndexRestartInterval
	}
	return writerOpts
}

// String returns the options in an INI-like format, one option per line.
func (o *Options) String() string {
	o = o.EnsureDefaults()
	var buf strings.Builder
	fmt.Fprintf(&buf, "[Options]\n")
	fmt.Fprintf(&buf, "  block_restart_interval=%d\n", o.BlockRestartInterval)
	fmt.Fprintf(&buf, "  block_size=%d\n", o.BlockSize)
	fmt.Fprintf(&buf, "  cache_size=%d\n", cacheSize(o.Cache))
	fmt.Fprintf(&buf, "  checksum=%s\n", o.Checksum)
	fmt.Fprintf(&buf, "  comparer=%s\n", o.Comparer.Name)
	fmt.Fprintf(&buf, "  compression=%s\n", o.Compression)
	filterPolicy := "none"
	if o.FilterPolicy != nil {
		filterPolicy = o.FilterPolicy.Name()
	}
	fmt.Fprintf(&buf, "  filter_policy=%s\n", filterPolicy)
	fmt.Fprintf(&buf, "  index_restart_interval=%d\n", o.IndexRestartInterval)
	fmt.Fprintf(&buf, "  max_open_files=%d\n", o.MaxOpenFiles)
	return buf.String()
}

func cacheSize(c *cache.Cache) int64 {
	if c == nil {
		return 0
	}
	return c.Capacity()
}
