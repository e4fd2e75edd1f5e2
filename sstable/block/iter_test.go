// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package block

import (
	"bytes"
	"fmt"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"
	"testing"

	"github.com/cockroachdb/crlib/crstrings"
	"github.com/cockroachdb/datadriven"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/sstkv/internal/base"
	"github.com/stretchr/testify/require"
)

func TestBlockIter(t *testing.T) {
	// k is a block that maps three keys "apple", "apricot", "banana" to empty
	// strings, with a single restart point.
	k := []byte(
		"\x00\x05\x00apple" +
			"\x02\x05\x00ricot" +
			"\x00\x06\x00banana" +
			"\x00\x00\x00\x00\x01\x00\x00\x00")
	var testcases = []struct {
		index int
		key   string
	}{
		{0, ""},
		{0, "a"},
		{0, "aaaaaaaaaaaaaaa"},
		{0, "app"},
		{0, "apple"},
		{1, "appliance"},
		{1, "apricos"},
		{1, "apricot"},
		{2, "azzzzzzzzzzzzzz"},
		{2, "b"},
		{2, "banan"},
		{2, "banana"},
		{3, "banana\x00"},
		{3, "c"},
	}
	for _, tc := range testcases {
		i, err := NewIter(bytes.Compare, k)
		require.NoError(t, err)
		i.SeekGE([]byte(tc.key))
		for j, keyWant := range []string{"apple", "apricot", "banana"}[tc.index:] {
			if !i.Valid() {
				t.Fatalf("key=%q, index=%d, j=%d: Valid got false, keyWant true", tc.key, tc.index, j)
			}
			if keyGot := string(i.Key()); keyGot != keyWant {
				t.Fatalf("key=%q, index=%d, j=%d: got %q, keyWant %q", tc.key, tc.index, j, keyGot, keyWant)
			}
			i.Next()
		}
		if i.Valid() {
			t.Fatalf("key=%q, index=%d: Valid got true, keyWant false", tc.key, tc.index)
		}
		require.NoError(t, i.Close())
	}

	{
		i, err := NewIter(bytes.Compare, k)
		require.NoError(t, err)
		i.Last()
		for _, keyWant := range []string{"banana", "apricot", "apple"} {
			require.True(t, i.Valid())
			require.Equal(t, keyWant, string(i.Key()))
			i.Prev()
		}
		require.False(t, i.Valid())
		require.NoError(t, i.Close())
	}
}

func TestBlockDataDriven(t *testing.T) {
	var data []byte
	datadriven.RunTest(t, "testdata/block", func(t *testing.T, d *datadriven.TestData) string {
		switch d.Cmd {
		case "build":
			restartInterval := DefaultRestartInterval
			if d.HasArg("restart-interval") {
				d.ScanArgs(t, "restart-interval", &restartInterval)
			}
			var w Writer
			w.Init(bytes.Compare, restartInterval)
			for _, line := range crstrings.Lines(d.Input) {
				k, v, _ := strings.Cut(line, ":")
				w.Add([]byte(k), []byte(v))
			}
			estimated := w.EstimatedSize()
			data = slices.Clone(w.Finish())
			if estimated != len(data) {
				return fmt.Sprintf("estimated size %d != actual size %d", estimated, len(data))
			}
			it, err := NewIter(bytes.Compare, data)
			if err != nil {
				return err.Error()
			}
			defer it.Close()
			return fmt.Sprintf("entries=%d restarts=%d size=%d", w.EntryCount(), it.numRestarts, len(data))

		case "iter":
			it, err := NewIter(bytes.Compare, data)
			if err != nil {
				return err.Error()
			}
			defer it.Close()
			return runIterCmd(d, it)

		default:
			return fmt.Sprintf("unknown command: %s", d.Cmd)
		}
	})
}

// runIterCmd evaluates iterator operations, one per input line, printing the
// resulting position after each.
func runIterCmd(d *datadriven.TestData, it base.InternalIterator) string {
	var b strings.Builder
	for _, line := range crstrings.Lines(d.Input) {
		fields := strings.Fields(line)
		switch fields[0] {
		case "first":
			it.First()
		case "last":
			it.Last()
		case "next":
			it.Next()
		case "prev":
			it.Prev()
		case "seek-ge":
			it.SeekGE([]byte(fields[1]))
		default:
			return fmt.Sprintf("unknown op: %s", fields[0])
		}
		switch {
		case it.Valid():
			fmt.Fprintf(&b, "%s:%s\n", it.Key(), it.Value())
		case it.Error() != nil:
			fmt.Fprintf(&b, "err=%v\n", it.Error())
		default:
			b.WriteString(".\n")
		}
	}
	return b.String()
}

func TestBlockSeekAfterForwardScan(t *testing.T) {
	var w Writer
	w.Init(bytes.Compare, 16)
	key := func(i int) []byte { return []byte("test" + string(rune(i))) }
	for i := 0; i < 160; i++ {
		w.Add(key(i), []byte(strconv.Itoa(i)))
	}
	it, err := NewIter(bytes.Compare, w.Finish())
	require.NoError(t, err)
	defer it.Close()

	it.SeekGE(key(100))
	for i := 100; i < 160; i++ {
		require.True(t, it.Valid(), "i=%d", i)
		require.Equal(t, key(i), it.Key())
		require.Equal(t, strconv.Itoa(i), string(it.Value()))
		it.Next()
	}
	require.False(t, it.Valid())
	require.NoError(t, it.Error())
}

func TestBlockRoundTrip(t *testing.T) {
	seed := rand.Uint64()
	t.Logf("seed %d", seed)
	rng := rand.New(rand.NewPCG(0, seed))

	for iter := 0; iter < 50; iter++ {
		n := rng.IntN(200)
		set := map[string]bool{}
		for len(set) < n {
			k := make([]byte, 1+rng.IntN(10))
			for j := range k {
				k[j] = "abc\x00\xff"[rng.IntN(5)]
			}
			set[string(k)] = true
		}
		keys := make([]string, 0, n)
		for k := range set {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		restartInterval := 1 + rng.IntN(20)

		var w Writer
		w.Init(bytes.Compare, restartInterval)
		for i, k := range keys {
			w.Add([]byte(k), []byte(fmt.Sprint(i)))
		}
		it, err := NewIter(bytes.Compare, slices.Clone(w.Finish()))
		require.NoError(t, err)

		var forward []string
		for it.First(); it.Valid(); it.Next() {
			forward = append(forward, string(it.Key()))
		}
		require.NoError(t, it.Error())
		require.Equal(t, len(keys), len(forward))
		if len(keys) > 0 {
			require.Equal(t, keys, forward)
		}

		var backward []string
		for it.Last(); it.Valid(); it.Prev() {
			backward = append(backward, string(it.Key()))
		}
		slices.Reverse(backward)
		require.Equal(t, forward, backward)

		// Alternate directions: Next after a sequence of Prevs must land on the
		// entry after the current one.
		if len(keys) > 2 {
			it.Last()
			it.Prev()
			it.Prev()
			it.Next()
			require.Equal(t, keys[len(keys)-2], string(it.Key()))
			it.Next()
			require.Equal(t, keys[len(keys)-1], string(it.Key()))
		}

		for probe := 0; probe < 50; probe++ {
			target := make([]byte, rng.IntN(8))
			for j := range target {
				target[j] = "abc\x00\xff"[rng.IntN(5)]
			}
			idx, _ := slices.BinarySearch(keys, string(target))
			it.SeekGE(target)
			if idx == len(keys) {
				require.False(t, it.Valid())
				continue
			}
			require.True(t, it.Valid())
			require.Equal(t, keys[idx], string(it.Key()))
			require.Equal(t, fmt.Sprint(idx), string(it.Value()))
		}
		require.NoError(t, it.Close())
	}
}

func TestBlockEmpty(t *testing.T) {
	var w Writer
	w.Init(nil, 0)
	data := w.Finish()
	require.Equal(t, EmptySize, len(data))

	it, err := NewIter(bytes.Compare, data)
	require.NoError(t, err)
	it.First()
	require.False(t, it.Valid())
	it.Last()
	require.False(t, it.Valid())
	it.SeekGE([]byte("a"))
	require.False(t, it.Valid())
	require.NoError(t, it.Close())
}

func TestBlockCorruption(t *testing.T) {
	for _, data := range []string{
		"",
		"\x00\x00\x00",
		// Zero restarts, but more than the count.
		"\x00\x00\x00\x00\x00\x00\x00\x00",
		// More restarts than fit.
		"\x00\x05\x00apple\x00\x00\x00\x00\x09\x00\x00\x00",
	} {
		_, err := NewIter(bytes.Compare, []byte(data))
		require.Error(t, err, "%q", data)
		require.True(t, base.IsCorruptionError(err))
		require.Contains(t, err.Error(), "bad block contents")
	}

	// A shared length exceeding the previous key poisons the iterator.
	data := []byte(
		"\x00\x05\x00apple" +
			"\x09\x05\x00ricot" +
			"\x00\x00\x00\x00\x01\x00\x00\x00")
	it, err := NewIter(bytes.Compare, data)
	require.NoError(t, err)
	it.First()
	require.True(t, it.Valid())
	it.Next()
	require.False(t, it.Valid())
	require.True(t, errors.Is(it.Error(), base.ErrCorruption))
	// Sticky: repositioning does not clear the error.
	it.First()
	require.False(t, it.Valid())
	require.Error(t, it.Error())
	require.Error(t, it.Close())

	// A truncated varint in the last entry.
	data = []byte("\x00\x05\x00apple\x00\x85\x00\x00\x00\x00\x01\x00\x00\x00")
	it, err = NewIter(bytes.Compare, data)
	require.NoError(t, err)
	it.Last()
	require.False(t, it.Valid())
	require.True(t, base.IsCorruptionError(it.Error()))
	require.Error(t, it.Close())
}

func TestBlockIterCleanupsAndClose(t *testing.T) {
	var w Writer
	w.Init(bytes.Compare, 1)
	w.Add([]byte("a"), []byte("1"))
	it, err := NewIter(bytes.Compare, w.Finish())
	require.NoError(t, err)

	var order []int
	it.RegisterCleanup(func() { order = append(order, 1) })
	it.RegisterCleanup(func() { order = append(order, 2) })
	require.Panics(t, func() { it.RegisterCleanup(nil) })
	require.NoError(t, it.Close())
	require.Equal(t, []int{1, 2}, order)
	require.Panics(t, func() { _ = it.Close() })
	require.Panics(t, func() { it.First() })
	require.Panics(t, func() { it.RegisterCleanup(func() {}) })
}
