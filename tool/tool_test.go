// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tool

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/crlib/testutils/leaktest"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/sstkv/bloom"
	"github.com/cockroachdb/sstkv/internal/compression"
	"github.com/cockroachdb/sstkv/sstable"
	"github.com/cockroachdb/sstkv/vfs"
	"github.com/stretchr/testify/require"
)

const testTable = `a#3,SET 1
b#2,DEL
c#1,SET 3
d#5,SET 4
`

func TestSSTableProperties(t *testing.T) {
	fs := vfs.NewMem()
	buildTable(t, fs, "t", sstable.WriterOptions{
		Compression:  compression.SnappyCompression,
		FilterPolicy: bloom.FilterPolicy(10),
	}, testTable)

	out, err := runTool(fs, "sstable", "properties", "t")
	require.NoError(t, err)
	for _, s := range []string{
		"PROPERTY", "VALUE",
		"leveldb.BytewiseComparator",
		"Snappy",
		"rocksdb.BuiltinBloomFilter",
		"[1, 5]",
	} {
		require.Contains(t, out, s)
	}

	out, err = runTool(fs, "sstable", "properties", "-v", "t")
	require.NoError(t, err)
	require.Contains(t, out, "sstable.Properties{")
	require.Contains(t, out, `ComparerName:`)
	require.Contains(t, out, `NumEntries:`)
}

func TestSSTableLayout(t *testing.T) {
	fs := vfs.NewMem()
	buildTable(t, fs, "t", sstable.WriterOptions{BlockSize: 1}, testTable)

	out, err := runTool(fs, "sstable", "layout", "t")
	require.NoError(t, err)
	for _, s := range []string{"data[0]", "data[3]", "metaindex:", "index:", "footer:"} {
		require.Contains(t, out, s)
	}
	require.NotContains(t, out, "data[4]")
}

func TestSSTableList(t *testing.T) {
	fs := vfs.NewMem()
	buildTable(t, fs, "db/000010.sst", sstable.WriterOptions{}, testTable)
	buildTable(t, fs, "db/000002.ldb", sstable.WriterOptions{}, "a#1,SET 1\n")
	buildTable(t, fs, "db/000003.sst", sstable.WriterOptions{}, "a#1,SET 1\nb#2,SET 2\n")
	f, err := fs.Create("db/LOCK")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	f, err = fs.Create("db/notes.txt")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	out, err := runTool(fs, "sstable", "list", "db", "missing")
	require.NoError(t, err)
	require.NotContains(t, out, "LOCK")
	require.NotContains(t, out, "notes.txt")
	i2 := strings.Index(out, "000002.ldb")
	i3 := strings.Index(out, "000003.sst")
	i10 := strings.Index(out, "000010.sst")
	require.True(t, 0 <= i2 && i2 < i3 && i3 < i10, "%s", out)
	require.Contains(t, out, "000002.ldb")
	require.Contains(t, out[i3:i10], "2 records")
	require.Contains(t, out[i10:], "4 records")
	require.Contains(t, out, "missing: file does not exist")
}

func TestSSTableCheckCorruption(t *testing.T) {
	fs := vfs.NewMem()
	buildTable(t, fs, "t", sstable.WriterOptions{}, testTable)

	f, err := fs.Open("t")
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// Flip a byte of the first data block.
	data[1] ^= 0xff
	f, err = fs.Create("t")
	require.NoError(t, err)
	_, err = f.Write(data)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	out, err := runTool(fs, "sstable", "check", "t")
	require.NoError(t, err)
	require.Contains(t, out, "checksum mismatch")
	require.NotContains(t, out, "ok:")
}

func TestSSTableUnknownFormatter(t *testing.T) {
	_, err := runTool(vfs.NewMem(), "sstable", "scan", "--key=bogus", "t")
	require.Error(t, err)
	require.Contains(t, err.Error(), `unknown formatter: "bogus"`)
}

func TestBenchCache(t *testing.T) {
	defer leaktest.AfterTest(t)()

	out, err := runTool(vfs.NewMem(), "bench", "cache",
		"--concurrency=2", "--ops=2000", "--keys=100", "--value-size=1024",
		"--capacity=65536", "--plot=false")
	require.NoError(t, err)
	for _, s := range []string{"cache: capacity 64KB", "OPS/SEC", "P99", "hit", "miss", "hit rate:"} {
		require.Contains(t, out, s)
	}
}

func TestBenchMemTable(t *testing.T) {
	defer leaktest.AfterTest(t)()

	out, err := runTool(vfs.NewMem(), "bench", "memtable",
		"--concurrency=3", "--ops=500", "--keys=500", "--value-size=16", "--plot=false")
	require.NoError(t, err)
	for _, s := range []string{"add", "get", "memtable: 500 entries"} {
		require.Contains(t, out, s)
	}
}

func TestBenchInvalidFlags(t *testing.T) {
	_, err := runTool(vfs.NewMem(), "bench", "memtable", "--concurrency=0")
	require.EqualError(t, err, "--concurrency must be positive: 0")

	_, err = runTool(vfs.NewMem(), "bench", "cache", "--capacity=-1")
	require.EqualError(t, err, "--capacity must not be negative: -1")
}

func TestLimiter(t *testing.T) {
	require.Nil(t, newLimiter(0))
	require.NoError(t, (*limiter)(nil).wait(context.Background()))

	// At one operation per second the bucket holds a single token, so a
	// second wait must block until the context is canceled.
	l := newLimiter(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var err error
	for i := 0; i < 2 && err == nil; i++ {
		err = l.wait(ctx)
	}
	require.True(t, errors.Is(err, context.Canceled), "%v", err)
}

func TestNamedHistogramClamps(t *testing.T) {
	h := newNamedHistogram("op")
	h.Record(0)
	h.Record(time.Hour)
	h.Record(time.Millisecond)
	s := h.snapshot()
	require.EqualValues(t, 3, s.TotalCount())
	require.LessOrEqual(t, s.Min(), (2 * minLatency).Nanoseconds())
	require.GreaterOrEqual(t, s.Max(), (maxLatency / 2).Nanoseconds())
}
