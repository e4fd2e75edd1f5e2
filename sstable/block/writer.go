// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package block

import (
	"bytes"
	"encoding/binary"

	"github.com/cockroachdb/crlib/crbytes"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/sstkv/internal/base"
)

// EmptySize holds the size of an empty block. Every block ends in a uint32
// trailer encoding the number of restart points within the block.
const EmptySize = 4

// DefaultRestartInterval is the number of keys between restart points used
// when a Writer is not configured otherwise.
const DefaultRestartInterval = 16

// Writer buffers and serializes key/value pairs into a block. Keys must be
// added in strictly increasing order under the writer's comparison function.
//
// Entries are encoded as
//
//	varint(shared) varint(unshared) varint(valueLen) key[shared:] value
//
// where shared is the length of the prefix in common with the previous key of
// the same restart group. Every RestartInterval entries a key is stored in
// full and its offset is recorded as a restart point. The block ends with the
// restart offsets and their count, each a little-endian uint32.
type Writer struct {
	cmp             base.Compare
	restartInterval int
	nEntries        int
	// counter is the number of entries since the last restart point.
	counter  int
	buf      []byte
	restarts []uint32
	curKey   []byte
	finished bool
}

// Init initializes the writer. A nil cmp orders keys bytewise; a
// restartInterval below one uses DefaultRestartInterval.
func (w *Writer) Init(cmp base.Compare, restartInterval int) {
	if cmp == nil {
		cmp = bytes.Compare
	}
	if restartInterval < 1 {
		restartInterval = DefaultRestartInterval
	}
	w.cmp = cmp
	w.restartInterval = restartInterval
	w.Reset()
}

// Reset resets the block writer to empty, preserving buffers for reuse.
func (w *Writer) Reset() {
	*w = Writer{
		cmp:             w.cmp,
		restartInterval: w.restartInterval,
		counter:         w.restartInterval,
		buf:             w.buf[:0],
		restarts:        w.restarts[:0],
		curKey:          w.curKey[:0],
	}
}

// EntryCount returns the count of entries written to the writer.
func (w *Writer) EntryCount() int {
	return w.nEntries
}

// Empty returns true if no entries were added since the last Reset.
func (w *Writer) Empty() bool {
	return w.nEntries == 0
}

// CurKey returns the most recently written key. The returned slice is valid
// until the next call to Add or Reset.
func (w *Writer) CurKey() []byte {
	return w.curKey
}

// Add appends a key/value pair to the block. Adding a key that is not
// strictly greater than the previous one, or adding after Finish, is a
// programming error and panics.
func (w *Writer) Add(key, value []byte) {
	if w.finished {
		panic(errors.AssertionFailedf("sstkv/block: Add called after Finish"))
	}
	if w.cmp == nil {
		panic(errors.AssertionFailedf("sstkv/block: Writer used before Init"))
	}
	if w.nEntries > 0 && w.cmp(w.curKey, key) >= 0 {
		panic(errors.AssertionFailedf("sstkv/block: keys must be added in strictly increasing order: %q, %q",
			w.curKey, key))
	}

	shared := 0
	if w.counter < w.restartInterval {
		shared = crbytes.CommonPrefix(w.curKey, key)
	} else {
		w.restarts = append(w.restarts, uint32(len(w.buf)))
		w.counter = 0
	}

	w.buf = binary.AppendUvarint(w.buf, uint64(shared))
	w.buf = binary.AppendUvarint(w.buf, uint64(len(key)-shared))
	w.buf = binary.AppendUvarint(w.buf, uint64(len(value)))
	w.buf = append(w.buf, key[shared:]...)
	w.buf = append(w.buf, value...)

	w.curKey = append(w.curKey[:shared], key[shared:]...)
	w.counter++
	w.nEntries++
}

// EstimatedSize returns the size the block would have if Finish were called
// now, including the restart trailer. After Finish it returns the size of the
// finished block.
func (w *Writer) EstimatedSize() int {
	if w.finished {
		return len(w.buf)
	}
	return len(w.buf) + 4*len(w.restarts) + EmptySize
}

// Finish appends the restart trailer and returns the serialized block. The
// returned slice aliases the writer's buffer and is valid until Reset. After
// Finish, Add panics until Reset is called.
func (w *Writer) Finish() []byte {
	if w.finished {
		panic(errors.AssertionFailedf("sstkv/block: Finish called twice"))
	}
	for _, r := range w.restarts {
		w.buf = binary.LittleEndian.AppendUint32(w.buf, r)
	}
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(len(w.restarts)))
	w.finished = true
	return w.buf
}
