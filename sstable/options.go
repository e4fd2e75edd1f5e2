// Copyright 2019 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import (
	"github.com/cockroachdb/sstkv/internal/base"
	"github.com/cockroachdb/sstkv/internal/cache"
	"github.com/cockroachdb/sstkv/internal/compression"
	"github.com/cockroachdb/sstkv/sstable/block"
)

const (
	// DefaultBlockSize is the target uncompressed size of a data block.
	DefaultBlockSize = 4096
	// DefaultIndexRestartInterval is the restart interval of index blocks.
	// Every index entry is a restart point so that the index can be binary
	// searched directly.
	DefaultIndexRestartInterval = 1
)

// Comparers is a map from comparer name to comparer. It is used for debugging
// tools which may be used on tables written with different comparers.
type Comparers map[string]*base.Comparer

// FilterPolicies is a map from filter policy name to policy. A table's filter
// block is only used when its policy is present.
type FilterPolicies map[string]base.FilterPolicy

// ReaderOptions holds the parameters needed for reading a table.
type ReaderOptions struct {
	// Comparer defines a total ordering over the space of []byte user keys.
	// The same ordering must be used for reads and writes of a table. A
	// table recording a different comparer name fails to open, unless the
	// recorded name is found in Comparers.
	//
	// The default value uses the same ordering as bytes.Compare.
	Comparer *base.Comparer

	// Comparers is consulted when the table's comparer differs from
	// Comparer.
	Comparers Comparers

	// Filters holds the filter policies that may be used to read filter
	// blocks, in addition to the bloom filter policies that are always
	// recognized. Tables whose filter policy is unknown are read without
	// their filter.
	Filters FilterPolicies

	// FilterMetrics is optionally used to track filter metrics.
	FilterMetrics *FilterMetricsTracker

	// Cache is the block cache. Decompressed blocks are inserted into it with
	// a charge equal to their size. A nil cache disables block caching.
	Cache *cache.Cache

	// Logger receives errors encountered while closing.
	Logger base.Logger
}

func (o ReaderOptions) ensureDefaults() ReaderOptions {
	o.Comparer = o.Comparer.EnsureDefaults()
	if o.Logger == nil {
		o.Logger = base.DefaultLogger
	}
	return o
}

// WriterOptions holds the parameters used to control building a table.
type WriterOptions struct {
	// BlockRestartInterval is the number of keys between restart points
	// for delta encoding of keys.
	//
	// The default value is 16.
	BlockRestartInterval int

	// BlockSize is the target uncompressed size in bytes of each table block.
	//
	// The default value is 4096.
	BlockSize int

	// IndexRestartInterval is the number of index entries between restart
	// points of the index block.
	//
	// The default value is 1.
	IndexRestartInterval int

	// Comparer defines a total ordering over the space of []byte user keys.
	//
	// The default value uses the same ordering as bytes.Compare.
	Comparer *base.Comparer

	// Compression defines the per-block compression to use. Blocks that do
	// not shrink by at least an eighth are stored uncompressed.
	//
	// The default value means no compression.
	Compression compression.Setting

	// Checksum specifies which checksum to use.
	//
	// The default value is CRC32c.
	Checksum block.ChecksumType

	// FilterPolicy defines a filter algorithm (such as a Bloom filter) that
	// can reduce disk reads for Get calls. The filter is built over the user
	// keys of the whole table.
	//
	// One such implementation is bloom.FilterPolicy(10) from the sstkv/bloom
	// package.
	//
	// The default value means to use no filter.
	FilterPolicy base.FilterPolicy
}

func (o WriterOptions) ensureDefaults() WriterOptions {
	if o.BlockRestartInterval <= 0 {
		o.BlockRestartInterval = block.DefaultRestartInterval
	}
	if o.BlockSize <= 0 {
		o.BlockSize = DefaultBlockSize
	}
	if o.IndexRestartInterval <= 0 {
		o.IndexRestartInterval = DefaultIndexRestartInterval
	}
	o.Comparer = o.Comparer.EnsureDefaults()
	if o.Checksum == block.ChecksumTypeNone {
		o.Checksum = block.ChecksumTypeCRC32c
	}
	return o
}
