// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstkv

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/sstkv/internal/base"
)

const (
	batchHeaderLen       = 12
	batchCountOffset     = 8
	batchInitialSize     = 1 << 10
	batchMaxRetainedSize = 1 << 20
)

// ErrInvalidBatch indicates that a batch is invalid or otherwise corrupted.
var ErrInvalidBatch = base.MarkCorruptionError(errors.New("sstkv: corrupt batch"))

// A Batch is a sequence of Sets and/or Deletes that are applied atomically.
//
// The batch representation is the wire format of a log entry:
//
//	+-------------+------------+--- ... ---+
//	| SeqNum (8B) | Count (4B) |  Entries  |
//	+-------------+------------+--- ... ---+
//
// Each entry consists of a kind byte followed by a varint-prefixed user key
// and, for sets, a varint-prefixed value. The sequence number is that of the
// first entry; subsequent entries are numbered consecutively.
//
// The zero value is an empty batch ready to use.
type Batch struct {
	data []byte
}

// BatchHandler receives the operations of a batch replayed by Batch.Iterate.
type BatchHandler interface {
	Set(seqNum SeqNum, key, value []byte) error
	Delete(seqNum SeqNum, key []byte) error
}

func (b *Batch) init(size int) {
	n := batchInitialSize
	for n < size {
		n *= 2
	}
	b.data = make([]byte, batchHeaderLen, n)
}

// Set adds an action to the batch that sets the key to map to the value.
//
// It is safe to modify the contents of the arguments after Set returns.
func (b *Batch) Set(key, value []byte) {
	b.prepare(base.InternalKeyKindSet, len(key)+len(value)+2*binary.MaxVarintLen32)
	b.data = binary.AppendUvarint(b.data, uint64(len(key)))
	b.data = append(b.data, key...)
	b.data = binary.AppendUvarint(b.data, uint64(len(value)))
	b.data = append(b.data, value...)
}

// Delete adds an action to the batch that deletes the entry for key.
//
// It is safe to modify the contents of the arguments after Delete returns.
func (b *Batch) Delete(key []byte) {
	b.prepare(base.InternalKeyKindDelete, len(key)+binary.MaxVarintLen32)
	b.data = binary.AppendUvarint(b.data, uint64(len(key)))
	b.data = append(b.data, key...)
}

// prepare bumps the count and appends the kind byte of a new entry whose
// remaining encoding needs at most n bytes.
func (b *Batch) prepare(kind InternalKeyKind, n int) {
	if len(b.data) == 0 {
		b.init(n + batchHeaderLen + 1)
	}
	count := b.Count()
	if count == 1<<32-1 {
		panic(errors.AssertionFailedf("sstkv: batch entry count overflow"))
	}
	b.setCount(count + 1)
	b.data = append(b.data, byte(kind))
}

// Count returns the number of entries in the batch.
func (b *Batch) Count() uint32 {
	if len(b.data) < batchHeaderLen {
		return 0
	}
	return binary.LittleEndian.Uint32(b.data[batchCountOffset:batchHeaderLen])
}

func (b *Batch) setCount(v uint32) {
	binary.LittleEndian.PutUint32(b.data[batchCountOffset:batchHeaderLen], v)
}

// SeqNum returns the sequence number of the first entry in the batch.
func (b *Batch) SeqNum() SeqNum {
	if len(b.data) < batchHeaderLen {
		return 0
	}
	return SeqNum(binary.LittleEndian.Uint64(b.data[:batchCountOffset]))
}

// SetSeqNum sets the sequence number of the first entry in the batch.
func (b *Batch) SetSeqNum(seqNum SeqNum) {
	if len(b.data) == 0 {
		b.init(batchHeaderLen)
	}
	binary.LittleEndian.PutUint64(b.data[:batchCountOffset], uint64(seqNum))
}

// Empty returns true if the batch contains no entries.
func (b *Batch) Empty() bool {
	return len(b.data) <= batchHeaderLen
}

// Reset resets the batch for reuse, retaining its buffer unless it has grown
// too large.
func (b *Batch) Reset() {
	if cap(b.data) > batchMaxRetainedSize {
		b.data = nil
		return
	}
	if b.data != nil {
		clear(b.data[:batchHeaderLen])
		b.data = b.data[:batchHeaderLen]
	}
}

// Repr returns the underlying batch representation. It is not safe to modify
// the contents. Reset() will not change the contents of the returned value,
// though any other mutation operation may do so.
func (b *Batch) Repr() []byte {
	if len(b.data) == 0 {
		b.init(batchHeaderLen)
	}
	return b.data
}

// SetRepr sets the underlying batch representation. The batch takes
// ownership of the supplied slice. It will not be copied.
func (b *Batch) SetRepr(data []byte) error {
	if len(data) < batchHeaderLen {
		return base.CorruptionErrorf("sstkv: invalid batch of %d bytes", errors.Safe(len(data)))
	}
	b.data = data
	return nil
}

// ApproximateSize returns the size of the batch representation in bytes.
func (b *Batch) ApproximateSize() int {
	return max(len(b.data), batchHeaderLen)
}

// Append appends the entries of other to the receiver. The receiver's
// sequence number governs the numbering of the combined entries.
func (b *Batch) Append(other *Batch) error {
	if other.Empty() {
		return nil
	}
	if len(b.data) == 0 {
		b.init(len(other.data))
	}
	count := uint64(b.Count()) + uint64(other.Count())
	if count > 1<<32-1 {
		return errors.New("sstkv: batch entry count overflow")
	}
	b.data = append(b.data, other.data[batchHeaderLen:]...)
	b.setCount(uint32(count))
	return nil
}

// Iterate replays the entries of the batch in order, assigning consecutive
// sequence numbers starting at the batch's sequence number. The whole batch is
// decoded before any entry is passed to the handler, so a malformed batch
// returns ErrInvalidBatch without any handler call. Iterate stops at the first
// error returned by the handler.
func (b *Batch) Iterate(h BatchHandler) error {
	if err := b.validate(); err != nil {
		return err
	}
	return b.replay(b.SeqNum(), h)
}

// validate checks that every entry of the batch decodes and that the number
// of entries matches the count in the header.
func (b *Batch) validate() error {
	r := b.reader()
	var n uint32
	for ; len(r) > 0; n++ {
		if _, _, _, ok := r.next(); !ok {
			return ErrInvalidBatch
		}
	}
	if n != b.Count() {
		return base.MarkCorruptionError(errors.Mark(
			errors.Newf("sstkv: corrupt batch: count %d, found %d entries", b.Count(), n),
			ErrInvalidBatch))
	}
	return nil
}

// replay passes the entries of a validated batch to the handler, numbering
// them consecutively from seqNum.
func (b *Batch) replay(seqNum SeqNum, h BatchHandler) error {
	r := b.reader()
	for len(r) > 0 {
		kind, key, value, _ := r.next()
		var err error
		switch kind {
		case base.InternalKeyKindSet:
			err = h.Set(seqNum, key, value)
		case base.InternalKeyKindDelete:
			err = h.Delete(seqNum, key)
		}
		if err != nil {
			return err
		}
		seqNum++
	}
	return nil
}

func (b *Batch) reader() batchReader {
	if len(b.data) < batchHeaderLen {
		return nil
	}
	return b.data[batchHeaderLen:]
}

// batchReader iterates over the entries in a batch representation.
type batchReader []byte

// next returns the next entry in the batch. The final return value is false
// if the batch is corrupt.
func (r *batchReader) next() (kind InternalKeyKind, key []byte, value []byte, ok bool) {
	p := *r
	if len(p) == 0 {
		return 0, nil, nil, false
	}
	kind, *r = InternalKeyKind(p[0]), p[1:]
	if kind > base.InternalKeyKindMax {
		return 0, nil, nil, false
	}
	if key, ok = r.nextStr(); !ok {
		return 0, nil, nil, false
	}
	if kind == base.InternalKeyKindSet {
		if value, ok = r.nextStr(); !ok {
			return 0, nil, nil, false
		}
	}
	return kind, key, value, true
}

func (r *batchReader) nextStr() (s []byte, ok bool) {
	p := *r
	u, numBytes := binary.Uvarint(p)
	if numBytes <= 0 {
		return nil, false
	}
	p = p[numBytes:]
	if u > uint64(len(p)) {
		return nil, false
	}
	s, *r = p[:u:u], p[u:]
	return s, true
}
