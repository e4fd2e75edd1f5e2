// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package block

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriterEncoding(t *testing.T) {
	var w Writer
	w.Init(bytes.Compare, 2)
	w.Add([]byte("apple"), nil)
	w.Add([]byte("apricot"), []byte("v"))
	w.Add([]byte("banana"), nil)
	require.Equal(t, 3, w.EntryCount())
	require.Equal(t, "banana", string(w.CurKey()))
	require.Equal(t, []byte(
		"\x00\x05\x00apple"+
			"\x02\x05\x01ricotv"+
			"\x00\x06\x00banana"+
			"\x00\x00\x00\x00"+
			"\x11\x00\x00\x00"+
			"\x02\x00\x00\x00"), w.Finish())
}

func TestWriterPreconditions(t *testing.T) {
	var w Writer
	w.Init(bytes.Compare, 16)
	w.Add([]byte("b"), nil)
	require.Panics(t, func() { w.Add([]byte("b"), nil) })
	require.Panics(t, func() { w.Add([]byte("a"), nil) })
	w.Finish()
	require.Panics(t, func() { w.Add([]byte("c"), nil) })
	require.Panics(t, func() { w.Finish() })

	w.Reset()
	require.True(t, w.Empty())
	require.Equal(t, EmptySize, w.EstimatedSize())
	w.Add([]byte("a"), nil)
	require.Equal(t, 1, w.EntryCount())

	var uninit Writer
	require.Panics(t, func() { uninit.Add([]byte("a"), nil) })
}

func TestWriterEstimatedSize(t *testing.T) {
	var w Writer
	w.Init(bytes.Compare, 3)
	for i := 0; i < 10; i++ {
		w.Add([]byte{'k', byte('0' + i)}, []byte("value"))
		est := w.EstimatedSize()
		// Finishing a clone must produce exactly the estimate.
		clone := Writer{cmp: w.cmp, restartInterval: w.restartInterval, counter: w.counter,
			nEntries: w.nEntries, buf: bytes.Clone(w.buf), restarts: append([]uint32(nil), w.restarts...)}
		require.Equal(t, est, len(clone.Finish()))
		require.Equal(t, est, clone.EstimatedSize())
	}

	// After Finish the estimate is the size of the finished block.
	b := w.Finish()
	require.Equal(t, len(b), w.EstimatedSize())
}
