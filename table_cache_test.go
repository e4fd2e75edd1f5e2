// Copyright 2013 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstkv

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/cockroachdb/crlib/testutils/leaktest"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/errors/oserror"
	"github.com/cockroachdb/sstkv/bloom"
	"github.com/cockroachdb/sstkv/internal/base"
	"github.com/cockroachdb/sstkv/sstable"
	"github.com/cockroachdb/sstkv/vfs"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
)

// trackingFS counts the files opened for reading that have not been closed.
type trackingFS struct {
	vfs.FS
	mu struct {
		sync.Mutex
		open      map[string]int
		opens     int
		failClose bool
	}
}

func newTrackingFS() *trackingFS {
	fs := &trackingFS{FS: vfs.NewMem()}
	fs.mu.open = map[string]int{}
	return fs
}

func (fs *trackingFS) Open(name string) (vfs.File, error) {
	f, err := fs.FS.Open(name)
	if err != nil {
		return nil, err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.mu.open[name]++
	fs.mu.opens++
	return &trackedFile{File: f, fs: fs, name: name}, nil
}

func (fs *trackingFS) numOpen() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	var n int
	for _, c := range fs.mu.open {
		n += c
	}
	return n
}

func (fs *trackingFS) numOpens() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.mu.opens
}

func (fs *trackingFS) setFailClose(v bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.mu.failClose = v
}

type trackedFile struct {
	vfs.File
	fs   *trackingFS
	name string
}

func (f *trackedFile) Close() error {
	f.fs.mu.Lock()
	if f.fs.mu.open[f.name]--; f.fs.mu.open[f.name] == 0 {
		delete(f.fs.mu.open, f.name)
	}
	failClose := f.fs.mu.failClose
	f.fs.mu.Unlock()
	if err := f.File.Close(); err != nil {
		return err
	}
	if failClose {
		return errors.New("injected close failure")
	}
	return nil
}

// recordingLogger collects the messages logged at error level.
type recordingLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *recordingLogger) Infof(format string, args ...interface{}) {}

func (l *recordingLogger) Errorf(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Fatalf(format string, args ...interface{}) {
	panic(fmt.Sprintf(format, args...))
}

const testDir = "db"

// buildTable writes a table holding the given keys, each mapped to
// "<fileNum>:<key>".
func buildTable(
	t *testing.T, opts *Options, fileType base.FileType, fileNum base.FileNum, keys ...string,
) {
	fs := opts.EnsureDefaults().FS
	require.NoError(t, fs.MkdirAll(testDir, 0755))
	f, err := fs.Create(base.MakeFilepath(fs, testDir, fileType, fileNum))
	require.NoError(t, err)
	w := sstable.NewWriter(f, opts.MakeWriterOptions())
	for i, k := range keys {
		ikey := base.MakeInternalKey([]byte(k), base.SeqNum(i+1), base.InternalKeyKindSet)
		require.NoError(t, w.Add(ikey, []byte(fmt.Sprintf("%s:%s", fileNum, k))))
	}
	require.NoError(t, w.Close())
}

func newTestOptions(fs vfs.FS) *Options {
	return &Options{
		FS:           fs,
		Cache:        NewCache(1 << 20),
		FilterPolicy: bloom.FilterPolicy(10),
		BlockSize:    64,
		Logger:       base.NoopLogger{},
	}
}

func TestTableCacheKey(t *testing.T) {
	require.Equal(t, []byte("\x02\x01\x00\x00\x00\x00\x00\x00"), tableCacheKey(0x0102))
}

func TestTableCacheGet(t *testing.T) {
	defer leaktest.AfterTest(t)()
	fs := newTrackingFS()
	opts := newTestOptions(fs)
	buildTable(t, opts, base.FileTypeTable, 1, "a", "b", "c")
	buildTable(t, opts, base.FileTypeTable, 2, "b", "d")
	buildTable(t, opts, base.FileTypeOldFashionedTable, 3, "e")

	c := NewTableCache(testDir, opts, 10)
	for _, tc := range []struct {
		fileNum base.FileNum
		key     string
		want    string
	}{
		{1, "a", "000001:a"},
		{1, "c", "000001:c"},
		{2, "b", "000002:b"},
		{2, "d", "000002:d"},
		{3, "e", "000003:e"},
		{1, "d", ""},
		{2, "a", ""},
	} {
		v, err := c.GetValue(tc.fileNum, []byte(tc.key))
		if tc.want == "" {
			require.ErrorIs(t, err, ErrNotFound)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, tc.want, string(v))
	}
	// Each table was opened once.
	require.Equal(t, 3, fs.numOpens())
	require.Equal(t, 3, fs.numOpen())

	var got []string
	ikey := base.MakeSearchKey([]byte("b"), base.SeqNumMax).AppendEncoded(nil)
	require.NoError(t, c.Get(1, ikey, func(k, v []byte) error {
		got = append(got, fmt.Sprintf("%s=%s", base.FormatInternalKey(k, base.DefaultFormatter), v))
		return nil
	}))
	require.Equal(t, []string{"b#2,SET=000001:b"}, got)

	props, err := c.Properties(2)
	require.NoError(t, err)
	require.EqualValues(t, 2, props.NumEntries)
	require.Equal(t, bloom.Family, props.FilterPolicyName)

	m := c.Metrics()
	require.EqualValues(t, 3, m.Count)
	require.EqualValues(t, 0, m.InUse)

	require.NoError(t, c.Close())
	require.Equal(t, 0, fs.numOpen())
}

func TestTableCacheIter(t *testing.T) {
	fs := newTrackingFS()
	opts := newTestOptions(fs)
	var keys []string
	for i := 0; i < 100; i++ {
		keys = append(keys, fmt.Sprintf("key%03d", i))
	}
	buildTable(t, opts, base.FileTypeTable, 5, keys...)

	c := NewTableCache(testDir, opts, 10)
	it, err := c.NewIter(5)
	require.NoError(t, err)
	var n int
	for it.First(); it.Valid(); it.Next() {
		k, err := base.DecodeInternalKey(it.Key())
		require.NoError(t, err)
		require.Equal(t, keys[n], string(k.UserKey))
		n++
	}
	require.Equal(t, len(keys), n)
	require.EqualValues(t, 1, c.Metrics().InUse)
	require.NoError(t, it.Close())
	require.EqualValues(t, 0, c.Metrics().InUse)
	require.NoError(t, c.Close())
}

func TestTableCacheMissingTable(t *testing.T) {
	fs := newTrackingFS()
	opts := newTestOptions(fs)
	c := NewTableCache(testDir, opts, 10)

	_, err := c.GetValue(4, []byte("a"))
	require.True(t, oserror.IsNotExist(err), "%v", err)
	_, err = c.NewIter(4)
	require.True(t, oserror.IsNotExist(err), "%v", err)

	// The failure is not cached: once the table exists it can be read.
	buildTable(t, opts, base.FileTypeTable, 4, "a")
	v, err := c.GetValue(4, []byte("a"))
	require.NoError(t, err)
	require.Equal(t, "000004:a", string(v))
	require.NoError(t, c.Close())
}

func TestTableCacheCorruptTable(t *testing.T) {
	fs := newTrackingFS()
	opts := newTestOptions(fs)
	require.NoError(t, fs.MkdirAll(testDir, 0755))
	f, err := fs.Create(base.MakeFilepath(fs, testDir, base.FileTypeTable, 9))
	require.NoError(t, err)
	_, err = f.Write([]byte(strings.Repeat("garbage", 20)))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	c := NewTableCache(testDir, opts, 10)
	for i := 0; i < 2; i++ {
		_, err = c.GetValue(9, []byte("a"))
		require.True(t, IsCorruptionError(err), "%v", err)
	}
	// Both attempts opened the file and closed it again.
	require.Equal(t, 2, fs.numOpens())
	require.Equal(t, 0, fs.numOpen())
	require.NoError(t, c.Close())
}

func TestTableCacheEviction(t *testing.T) {
	fs := newTrackingFS()
	opts := newTestOptions(fs)
	for i := base.FileNum(1); i <= 5; i++ {
		buildTable(t, opts, base.FileTypeTable, i, "k")
	}

	c := NewTableCache(testDir, opts, 2)
	for i := base.FileNum(1); i <= 5; i++ {
		v, err := c.GetValue(i, []byte("k"))
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("%s:k", i), string(v))
		require.LessOrEqual(t, fs.numOpen(), 2)
	}
	m := c.Metrics()
	require.EqualValues(t, 2, m.Count)
	require.EqualValues(t, 3, m.Evictions)

	// The two most recently used tables are still open.
	opens := fs.numOpens()
	for _, i := range []base.FileNum{4, 5} {
		_, err := c.GetValue(i, []byte("k"))
		require.NoError(t, err)
	}
	require.Equal(t, opens, fs.numOpens())

	require.NoError(t, c.Close())
	require.Equal(t, 0, fs.numOpen())
}

func TestTableCacheEvict(t *testing.T) {
	fs := newTrackingFS()
	opts := newTestOptions(fs)
	buildTable(t, opts, base.FileTypeTable, 1, "a", "b")
	c := NewTableCache(testDir, opts, 10)

	_, err := c.GetValue(1, []byte("a"))
	require.NoError(t, err)
	require.Equal(t, 1, fs.numOpen())
	c.Evict(1)
	require.Equal(t, 0, fs.numOpen())

	// An evicted table that is pinned by an iterator stays open until the
	// iterator is closed.
	it, err := c.NewIter(1)
	require.NoError(t, err)
	c.Evict(1)
	require.Equal(t, 1, fs.numOpen())
	it.First()
	require.True(t, it.Valid())
	require.NoError(t, it.Close())
	require.Equal(t, 0, fs.numOpen())
	require.NoError(t, c.Close())
}

func TestTableCacheIterOutlivesEviction(t *testing.T) {
	fs := newTrackingFS()
	opts := newTestOptions(fs)
	buildTable(t, opts, base.FileTypeTable, 1, "a", "b", "c")
	buildTable(t, opts, base.FileTypeTable, 2, "x")
	c := NewTableCache(testDir, opts, 1)

	it, err := c.NewIter(1)
	require.NoError(t, err)
	it.First()
	// Reading another table exceeds the capacity of the cache, but table 1
	// is pinned and stays usable.
	_, err = c.GetValue(2, []byte("x"))
	require.NoError(t, err)
	var n int
	for ; it.Valid(); it.Next() {
		n++
	}
	require.Equal(t, 3, n)
	require.NoError(t, it.Close())
	require.NoError(t, c.Close())
	require.Equal(t, 0, fs.numOpen())
}

func TestTableCacheClose(t *testing.T) {
	fs := newTrackingFS()
	opts := newTestOptions(fs)
	buildTable(t, opts, base.FileTypeTable, 1, "a")
	buildTable(t, opts, base.FileTypeTable, 2, "b")
	c := NewTableCache(testDir, opts, 10)

	_, err := c.GetValue(2, []byte("b"))
	require.NoError(t, err)
	it, err := c.NewIter(1)
	require.NoError(t, err)

	err = c.Close()
	require.Error(t, err)
	require.Contains(t, err.Error(), "leaked table cache handles: 1")
	// The unpinned table was closed, the pinned one is closed with its
	// iterator.
	require.Equal(t, 1, fs.numOpen())
	require.NoError(t, it.Close())
	require.Equal(t, 0, fs.numOpen())

	_, err = c.GetValue(2, []byte("b"))
	require.Error(t, err)
	require.Error(t, c.Close())
}

func TestTableCacheCloseErrorsAreLogged(t *testing.T) {
	fs := newTrackingFS()
	opts := newTestOptions(fs)
	logger := &recordingLogger{}
	opts.Logger = logger
	buildTable(t, opts, base.FileTypeTable, 12, "a")
	c := NewTableCache(testDir, opts, 10)

	_, err := c.GetValue(12, []byte("a"))
	require.NoError(t, err)
	fs.setFailClose(true)
	c.Evict(12)

	logger.mu.Lock()
	defer logger.mu.Unlock()
	require.NotEmpty(t, logger.errors)
	require.Contains(t, logger.errors[len(logger.errors)-1], "closing table 000012")
	require.Contains(t, logger.errors[len(logger.errors)-1], "injected close failure")
}

func TestTableCacheConcurrent(t *testing.T) {
	defer leaktest.AfterTest(t)()
	const numTables = 10
	fs := newTrackingFS()
	opts := newTestOptions(fs)
	for i := base.FileNum(1); i <= numTables; i++ {
		buildTable(t, opts, base.FileTypeTable, i, "a", "b", "c")
	}
	c := NewTableCache(testDir, opts, 4)

	var g errgroup.Group
	for w := 0; w < 8; w++ {
		seed := uint64(w)
		g.Go(func() error {
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < 200; i++ {
				fileNum := base.FileNum(1 + rng.Intn(numTables))
				key := []byte{"abc"[rng.Intn(3)]}
				if rng.Intn(4) == 0 {
					it, err := c.NewIter(fileNum)
					if err != nil {
						return err
					}
					it.SeekGE(base.MakeSearchKey(key, base.SeqNumMax).AppendEncoded(nil))
					if !it.Valid() {
						_ = it.Close()
						return errors.Newf("table %s: %s not found", fileNum, key)
					}
					if err := it.Close(); err != nil {
						return err
					}
					continue
				}
				v, err := c.GetValue(fileNum, key)
				if err != nil {
					return err
				}
				if want := fmt.Sprintf("%s:%s", fileNum, key); string(v) != want {
					return errors.Newf("got %q, want %q", v, want)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.NoError(t, c.Close())
	require.Equal(t, 0, fs.numOpen())
}
