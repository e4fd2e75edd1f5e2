// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package vfs

import (
	"io"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/errors/oserror"
	"github.com/stretchr/testify/require"
)

func TestMemFSBasics(t *testing.T) {
	fs := NewMem()
	require.NoError(t, fs.MkdirAll("/db/sub", 0755))

	f, err := fs.Create(fs.PathJoin("db", "000001.sst"))
	require.NoError(t, err)
	_, err = f.Write([]byte("hello "))
	require.NoError(t, err)
	_, err = f.Write([]byte("world"))
	require.NoError(t, err)
	require.NoError(t, f.Sync())
	require.NoError(t, f.Close())
	require.Error(t, f.Close())

	fi, err := fs.Stat("db/000001.sst")
	require.NoError(t, err)
	require.Equal(t, int64(11), fi.Size())
	require.Equal(t, "000001.sst", fi.Name())
	require.False(t, fi.IsDir())

	r, err := fs.Open("/db/000001.sst")
	require.NoError(t, err)
	buf := make([]byte, 5)
	n, err := r.ReadAt(buf, 6)
	require.NoError(t, err)
	require.Equal(t, "world", string(buf[:n]))
	n, err = r.ReadAt(buf, 8)
	require.Equal(t, io.EOF, err)
	require.Equal(t, "rld", string(buf[:n]))
	all, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(all))
	_, err = r.Write([]byte("x"))
	require.Error(t, err)
	require.NoError(t, r.Close())

	names, err := fs.List("db")
	require.NoError(t, err)
	require.Equal(t, []string{"000001.sst", "sub"}, names)

	require.NoError(t, fs.Rename("db/000001.sst", "db/000002.ldb"))
	ok, err := Exists(fs, "db/000001.sst")
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = Exists(fs, "db/000002.ldb")
	require.NoError(t, err)
	require.True(t, ok)

	require.Error(t, fs.Remove("db"))
	require.NoError(t, fs.Remove("db/000002.ldb"))
	require.NoError(t, fs.Remove("db/sub"))
	require.NoError(t, fs.Remove("db"))
}

func TestMemFSNotExist(t *testing.T) {
	fs := NewMem()
	_, err := fs.Open("missing")
	require.True(t, oserror.IsNotExist(err))
	_, err = fs.Stat("missing")
	require.True(t, oserror.IsNotExist(err))
	require.True(t, oserror.IsNotExist(fs.Remove("missing")))
	require.True(t, oserror.IsNotExist(fs.Rename("missing", "other")))
}

func TestMemFSLock(t *testing.T) {
	fs := NewMem()
	l, err := fs.Lock("db/LOCK")
	require.NoError(t, err)
	_, err = fs.Lock("db/LOCK")
	require.True(t, errors.Is(err, errLockHeld))
	require.NoError(t, l.Close())
	l, err = fs.Lock("db/LOCK")
	require.NoError(t, err)
	require.NoError(t, l.Close())
}

func TestDefaultFSLock(t *testing.T) {
	name := Default.PathJoin(t.TempDir(), "LOCK")
	l, err := Default.Lock(name)
	if err != nil {
		t.Skipf("file locking unsupported: %v", err)
	}
	require.NoError(t, l.Close())
	l, err = Default.Lock(name)
	require.NoError(t, err)
	require.NoError(t, l.Close())
}

func TestMemFile(t *testing.T) {
	f := NewMemFile([]byte("abc"))
	buf := make([]byte, 2)
	n, err := f.ReadAt(buf, 1)
	require.NoError(t, err)
	require.Equal(t, "bc", string(buf[:n]))
	fi, err := f.Stat()
	require.NoError(t, err)
	require.Equal(t, int64(3), fi.Size())
}
