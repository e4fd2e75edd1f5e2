// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstkv

import (
	"testing"

	"github.com/cockroachdb/sstkv/bloom"
	"github.com/cockroachdb/sstkv/internal/base"
	"github.com/cockroachdb/sstkv/internal/compression"
	"github.com/cockroachdb/sstkv/sstable"
	"github.com/cockroachdb/sstkv/sstable/block"
	"github.com/cockroachdb/sstkv/vfs"
	"github.com/stretchr/testify/require"
)

func TestOptionsEnsureDefaults(t *testing.T) {
	var nilOpts *Options
	for _, o := range []*Options{nilOpts, {}} {
		d := o.EnsureDefaults()
		require.Equal(t, block.DefaultRestartInterval, d.BlockRestartInterval)
		require.Equal(t, sstable.DefaultBlockSize, d.BlockSize)
		require.Equal(t, block.ChecksumTypeCRC32c, d.Checksum)
		require.Equal(t, base.DefaultComparer, d.Comparer)
		require.Equal(t, compression.NoCompression, d.Compression)
		require.Nil(t, d.FilterPolicy)
		require.Equal(t, vfs.Default, d.FS)
		require.Equal(t, sstable.DefaultIndexRestartInterval, d.IndexRestartInterval)
		require.Equal(t, base.DefaultLogger, d.Logger)
		require.Equal(t, DefaultMaxOpenFiles, d.MaxOpenFiles)
	}

	// EnsureDefaults does not modify the receiver.
	o := &Options{BlockSize: 100}
	d := o.EnsureDefaults()
	require.Equal(t, 100, d.BlockSize)
	require.Zero(t, o.BlockRestartInterval)
	require.NotSame(t, o, d)
}

func TestOptionsMakeSSTableOptions(t *testing.T) {
	c := NewCache(1 << 20)
	o := (&Options{
		BlockSize:    1 << 10,
		Cache:        c,
		Compression:  compression.SnappyCompression,
		Checksum:     block.ChecksumTypeXXHash64,
		FilterPolicy: bloom.FilterPolicy(10),
	}).EnsureDefaults()

	w := o.MakeWriterOptions()
	require.Equal(t, 1<<10, w.BlockSize)
	require.Equal(t, compression.SnappyCompression, w.Compression)
	require.Equal(t, block.ChecksumTypeXXHash64, w.Checksum)
	require.Equal(t, o.Comparer, w.Comparer)
	require.Equal(t, bloom.Family, w.FilterPolicy.Name())

	r := o.MakeReaderOptions()
	require.Same(t, c, r.Cache)
	require.Equal(t, o.Comparer, r.Comparer)
	require.Contains(t, r.Filters, bloom.Family)

	var nilOpts *Options
	require.Equal(t, sstable.WriterOptions{}, nilOpts.MakeWriterOptions())
	require.Equal(t, sstable.ReaderOptions{}, nilOpts.MakeReaderOptions())
}

func TestOptionsString(t *testing.T) {
	o := &Options{
		Cache:        NewCache(8 << 20),
		Compression:  compression.ZstdLevel3,
		FilterPolicy: bloom.FilterPolicy(10),
	}
	const want = `[Options]
  block_restart_interval=16
  block_size=4096
  cache_size=8388608
  checksum=crc32c
  comparer=leveldb.BytewiseComparator
  compression=ZSTD3
  filter_policy=rocksdb.BuiltinBloomFilter
  index_restart_interval=1
  max_open_files=1000
`
	require.Equal(t, want, o.String())
}
