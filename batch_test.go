// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstkv

import (
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

// batchRecorder is a BatchHandler recording the operations it receives.
type batchRecorder struct {
	ops []string
	// failAt, if positive, is the 1-based index of the operation that fails.
	failAt int
}

var errRecorder = errors.New("recorder failure")

func (r *batchRecorder) record(op string) error {
	r.ops = append(r.ops, op)
	if r.failAt > 0 && len(r.ops) == r.failAt {
		return errRecorder
	}
	return nil
}

func (r *batchRecorder) Set(seqNum SeqNum, key, value []byte) error {
	return r.record(fmt.Sprintf("Set(%s,%s)@%d", key, value, seqNum))
}

func (r *batchRecorder) Delete(seqNum SeqNum, key []byte) error {
	return r.record(fmt.Sprintf("Delete(%s)@%d", key, seqNum))
}

func TestBatchEncoding(t *testing.T) {
	var b Batch
	b.Set([]byte("a"), []byte("1"))
	b.Delete([]byte("b"))
	b.Set([]byte("c"), nil)
	require.EqualValues(t, 3, b.Count())
	require.False(t, b.Empty())

	want := "" +
		"\x00\x00\x00\x00\x00\x00\x00\x00" + // sequence number
		"\x03\x00\x00\x00" + // count
		"\x01\x01a\x011" +
		"\x00\x01b" +
		"\x01\x01c\x00"
	require.Equal(t, []byte(want), b.Repr())
	require.Equal(t, len(want), b.ApproximateSize())

	b.SetSeqNum(0x0102030405)
	require.Equal(t, []byte("\x05\x04\x03\x02\x01\x00\x00\x00"), b.Repr()[:8])
	require.EqualValues(t, 0x0102030405, b.SeqNum())
}

func TestBatchIterate(t *testing.T) {
	var b Batch
	b.Set([]byte("foo"), []byte("bar"))
	b.Delete([]byte("box"))
	b.Set([]byte("baz"), []byte("boo"))
	b.SetSeqNum(100)

	var r batchRecorder
	require.NoError(t, b.Iterate(&r))
	require.Equal(t, []string{
		"Set(foo,bar)@100",
		"Delete(box)@101",
		"Set(baz,boo)@102",
	}, r.ops)
}

func TestBatchEmpty(t *testing.T) {
	var b Batch
	require.True(t, b.Empty())
	require.EqualValues(t, 0, b.Count())
	require.EqualValues(t, 0, b.SeqNum())
	require.Equal(t, batchHeaderLen, b.ApproximateSize())
	require.Len(t, b.Repr(), batchHeaderLen)

	var r batchRecorder
	require.NoError(t, b.Iterate(&r))
	require.Empty(t, r.ops)

	b.Set([]byte("a"), []byte("b"))
	b.SetSeqNum(9)
	require.False(t, b.Empty())
	b.Reset()
	require.True(t, b.Empty())
	require.EqualValues(t, 0, b.Count())
	require.EqualValues(t, 0, b.SeqNum())
	require.NoError(t, b.Iterate(&r))
	require.Empty(t, r.ops)
}

func TestBatchSetRepr(t *testing.T) {
	var b Batch
	b.Set([]byte("k1"), []byte("v1"))
	b.Delete([]byte("k2"))
	b.SetSeqNum(7)

	var b2 Batch
	require.NoError(t, b2.SetRepr(append([]byte(nil), b.Repr()...)))
	require.EqualValues(t, 2, b2.Count())
	require.EqualValues(t, 7, b2.SeqNum())
	var r batchRecorder
	require.NoError(t, b2.Iterate(&r))
	require.Equal(t, []string{"Set(k1,v1)@7", "Delete(k2)@8"}, r.ops)

	err := b2.SetRepr([]byte("short"))
	require.Error(t, err)
	require.True(t, IsCorruptionError(err))
}

func TestBatchCorrupt(t *testing.T) {
	header := func(count byte) string {
		return "\x00\x00\x00\x00\x00\x00\x00\x00" + string([]byte{count, 0, 0, 0})
	}
	testCases := []struct {
		name string
		repr string
	}{
		{"bad-kind", header(1) + "\x02\x01a"},
		{"invalid-kind", header(1) + "\xff\x01a"},
		{"truncated-key", header(1) + "\x00\x05ab"},
		{"missing-value", header(1) + "\x01\x01a"},
		{"truncated-value", header(1) + "\x01\x01a\x03x"},
		{"bad-varint", header(1) + "\x00\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff"},
		{"count-too-high", header(2) + "\x00\x01a"},
		{"count-too-low", header(1) + "\x00\x01a\x00\x01b"},
		{"corrupt-after-valid", header(2) + "\x00\x01a\x01\x01b"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var b Batch
			require.NoError(t, b.SetRepr([]byte(tc.repr)))
			var r batchRecorder
			err := b.Iterate(&r)
			require.Error(t, err)
			require.Empty(t, r.ops)
			require.True(t, errors.Is(err, ErrInvalidBatch), "%v", err)
			require.True(t, IsCorruptionError(err), "%v", err)
		})
	}
}

func TestBatchAppend(t *testing.T) {
	var b1, b2 Batch
	b1.Set([]byte("a"), []byte("1"))
	b1.Delete([]byte("b"))
	b1.SetSeqNum(10)
	b2.Set([]byte("c"), []byte("3"))
	b2.SetSeqNum(99)

	require.NoError(t, b1.Append(&b2))
	require.NoError(t, b1.Append(&Batch{}))
	require.EqualValues(t, 3, b1.Count())
	require.EqualValues(t, 10, b1.SeqNum())

	var r batchRecorder
	require.NoError(t, b1.Iterate(&r))
	require.Equal(t, []string{"Set(a,1)@10", "Delete(b)@11", "Set(c,3)@12"}, r.ops)

	// Appending to an empty batch copies the entries and keeps the zero
	// sequence number.
	var b3 Batch
	require.NoError(t, b3.Append(&b2))
	require.EqualValues(t, 1, b3.Count())
	require.EqualValues(t, 0, b3.SeqNum())
	require.Equal(t, b2.Repr()[batchHeaderLen:], b3.Repr()[batchHeaderLen:])
}

func TestBatchHandlerError(t *testing.T) {
	var b Batch
	for i := 0; i < 5; i++ {
		b.Set([]byte(fmt.Sprint(i)), nil)
	}
	r := batchRecorder{failAt: 2}
	require.ErrorIs(t, b.Iterate(&r), errRecorder)
	require.Len(t, r.ops, 2)
}

func TestBatchLarge(t *testing.T) {
	var b Batch
	value := make([]byte, 4<<10)
	for i := 0; i < 1000; i++ {
		b.Set([]byte(fmt.Sprintf("key%04d", i)), value)
	}
	require.EqualValues(t, 1000, b.Count())
	require.Equal(t, len(b.Repr()), b.ApproximateSize())

	var r batchRecorder
	require.NoError(t, b.Iterate(&r))
	require.Len(t, r.ops, 1000)

	// A batch that grew past the retained size releases its buffer.
	b.Reset()
	require.True(t, b.Empty())
	require.Nil(t, b.data)
}
