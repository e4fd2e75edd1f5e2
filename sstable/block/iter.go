// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package block

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/sstkv/internal/base"
	"github.com/cockroachdb/sstkv/internal/invariants"
)

// errBadBlock is the corruption reported for any malformed block.
func errBadBlock() error {
	return base.CorruptionErrorf("sstkv/block: bad block contents")
}

// Iter is an iterator over a single block of data.
//
// Moving backwards is expensive: entries can only be decoded forward, so Prev
// rescans from the nearest restart point at or before the current entry and
// caches the decoded entries of that restart group so that subsequent Prev
// calls within the group are cheap.
type Iter struct {
	base.Cleanups
	cmp base.Compare
	// data is the block, excluding any trailer added by the physical framing.
	data []byte
	// restarts is the offset of the restart array within data. Entries occupy
	// data[:restarts].
	restarts    int32
	numRestarts int32
	// offset is the offset of the current entry and nextOffset the offset of
	// the entry after it. offset == restarts (or -1 before the first entry)
	// when the iterator is exhausted.
	offset     int32
	nextOffset int32
	key        []byte
	// fullKey is the buffer key is assembled into for prefix-compressed
	// entries.
	fullKey []byte
	val     []byte
	valid   bool
	err     error
	// cached holds the entries of one restart group, decoded by Prev or Last.
	// cachedIdx is the position of the iterator within cached, or -1 when the
	// current entry did not come from the cache.
	cached    []cachedEntry
	cachedBuf []byte
	cachedIdx int
}

type cachedEntry struct {
	offset     int32
	nextOffset int32
	keyStart   int32
	keyEnd     int32
	val        []byte
}

var _ base.InternalIterator = (*Iter)(nil)

// NewIter returns an iterator over the block data using cmp to order keys. A
// block with zero restart points is valid only if it holds exactly the
// restart count; any other inconsistency in the trailer is reported as
// corruption.
func NewIter(cmp base.Compare, data []byte) (*Iter, error) {
	i := &Iter{}
	if err := i.Init(cmp, data); err != nil {
		return nil, err
	}
	return i, nil
}

// Init initializes the iterator over data. See NewIter.
func (i *Iter) Init(cmp base.Compare, data []byte) error {
	if cmp == nil {
		cmp = bytes.Compare
	}
	if len(data) < EmptySize {
		return errBadBlock()
	}
	numRestarts := binary.LittleEndian.Uint32(data[len(data)-4:])
	if numRestarts == 0 {
		if len(data) != EmptySize {
			return errBadBlock()
		}
	} else if uint64(numRestarts) > uint64(len(data)-EmptySize)/4 {
		return errBadBlock()
	}
	*i = Iter{
		Cleanups:    i.Cleanups,
		cmp:         cmp,
		data:        data,
		restarts:    int32(len(data)) - EmptySize - 4*int32(numRestarts),
		numRestarts: int32(numRestarts),
		fullKey:     i.fullKey[:0],
		cached:      i.cached[:0],
		cachedBuf:   i.cachedBuf[:0],
		cachedIdx:   -1,
	}
	i.offset = -1
	return nil
}

func (i *Iter) corrupt() {
	i.valid = false
	if i.err == nil {
		i.err = errBadBlock()
	}
}

func (i *Iter) clearCache() {
	i.cached = i.cached[:0]
	i.cachedBuf = i.cachedBuf[:0]
	i.cachedIdx = -1
}

// restartOffset returns the offset of the j-th restart point.
func (i *Iter) restartOffset(j int32) int32 {
	return int32(binary.LittleEndian.Uint32(i.data[i.restarts+4*j:]))
}

// decodeEntry decodes the entry at offset off, interpreting its shared
// prefix relative to the key currently held in i.fullKey. It reports false
// and records corruption if the entry is malformed.
func (i *Iter) decodeEntry(off int32) bool {
	if off < 0 || off >= i.restarts {
		i.corrupt()
		return false
	}
	p := i.data[off:i.restarts]
	shared, n1 := binary.Uvarint(p)
	if n1 <= 0 {
		i.corrupt()
		return false
	}
	unshared, n2 := binary.Uvarint(p[n1:])
	if n2 <= 0 {
		i.corrupt()
		return false
	}
	valueLen, n3 := binary.Uvarint(p[n1+n2:])
	if n3 <= 0 {
		i.corrupt()
		return false
	}
	p = p[n1+n2+n3:]
	if shared > uint64(len(i.fullKey)) || unshared > uint64(len(p)) || valueLen > uint64(len(p))-unshared {
		i.corrupt()
		return false
	}
	if shared == 0 {
		// The key is stored in full and can be referenced in place.
		i.key = p[:unshared:unshared]
		i.fullKey = append(i.fullKey[:0], i.key...)
	} else {
		i.fullKey = append(i.fullKey[:shared], p[:unshared]...)
		i.key = i.fullKey
	}
	i.val = p[unshared : unshared+valueLen : unshared+valueLen]
	i.offset = off
	i.nextOffset = off + int32(n1+n2+n3) + int32(unshared+valueLen)
	i.valid = true
	return true
}

// seekRestart positions the iterator at the first entry of restart group j.
func (i *Iter) seekRestart(j int32) bool {
	off := i.restartOffset(j)
	i.fullKey = i.fullKey[:0]
	return i.decodeEntry(off)
}

// restartKey decodes the full key stored at restart point j without moving
// the iterator. ok is false if the entry is malformed.
func (i *Iter) restartKey(j int32) (key []byte, ok bool) {
	off := i.restartOffset(j)
	if off < 0 || off >= i.restarts {
		return nil, false
	}
	p := i.data[off:i.restarts]
	shared, n1 := binary.Uvarint(p)
	if n1 <= 0 || shared != 0 {
		return nil, false
	}
	unshared, n2 := binary.Uvarint(p[n1:])
	if n2 <= 0 {
		return nil, false
	}
	_, n3 := binary.Uvarint(p[n1+n2:])
	if n3 <= 0 {
		return nil, false
	}
	p = p[n1+n2+n3:]
	if unshared > uint64(len(p)) {
		return nil, false
	}
	return p[:unshared], true
}

func (i *Iter) exhaust(offset int32) {
	i.valid = false
	i.key = nil
	i.val = nil
	i.offset = offset
	i.nextOffset = offset
}

// Valid implements base.InternalIterator.
func (i *Iter) Valid() bool {
	return i.valid
}

// SeekGE implements base.InternalIterator. It binary searches the restart
// points for the last restart key <= key, then scans forward.
func (i *Iter) SeekGE(key []byte) {
	i.AssertNotClosed()
	if i.err != nil {
		return
	}
	i.clearCache()
	if i.numRestarts == 0 {
		i.exhaust(i.restarts)
		return
	}
	corrupt := false
	// Find the first restart point whose key is > key.
	idx := sort.Search(int(i.numRestarts), func(j int) bool {
		k, ok := i.restartKey(int32(j))
		if !ok {
			corrupt = true
			return true
		}
		return i.cmp(k, key) > 0
	})
	if corrupt {
		i.corrupt()
		return
	}
	start := int32(idx) - 1
	if start < 0 {
		start = 0
	}
	if !i.seekRestart(start) {
		return
	}
	for i.cmp(i.key, key) < 0 {
		if !i.next() {
			return
		}
	}
}

// First implements base.InternalIterator.
func (i *Iter) First() {
	i.AssertNotClosed()
	if i.err != nil {
		return
	}
	i.clearCache()
	if i.numRestarts == 0 {
		i.exhaust(i.restarts)
		return
	}
	i.seekRestart(0)
}

// Last implements base.InternalIterator.
func (i *Iter) Last() {
	i.AssertNotClosed()
	if i.err != nil {
		return
	}
	i.clearCache()
	if i.numRestarts == 0 {
		i.exhaust(-1)
		return
	}
	i.cacheGroupBefore(i.numRestarts-1, i.restarts)
}

// next decodes the entry after the current one. It reports false if the
// iterator became exhausted or corrupt.
func (i *Iter) next() bool {
	if i.nextOffset >= i.restarts {
		i.exhaust(i.restarts)
		return false
	}
	if i.cachedIdx >= 0 {
		// The prefix of the next entry is relative to the current key, which
		// came from the cache.
		i.fullKey = append(i.fullKey[:0], i.key...)
		i.clearCache()
	}
	return i.decodeEntry(i.nextOffset)
}

// Next implements base.InternalIterator.
func (i *Iter) Next() {
	i.AssertNotClosed()
	if i.err != nil {
		return
	}
	if invariants.Enabled && !i.valid {
		panic(errors.AssertionFailedf("sstkv/block: Next on invalid iterator"))
	}
	i.next()
}

// Prev implements base.InternalIterator.
func (i *Iter) Prev() {
	i.AssertNotClosed()
	if i.err != nil {
		return
	}
	if invariants.Enabled && !i.valid {
		panic(errors.AssertionFailedf("sstkv/block: Prev on invalid iterator"))
	}
	if i.cachedIdx > 0 {
		i.cachedIdx--
		i.setFromCache()
		return
	}
	target := i.offset
	// Find the last restart point strictly before the current entry.
	idx := sort.Search(int(i.numRestarts), func(j int) bool {
		return i.restartOffset(int32(j)) >= target
	}) - 1
	if idx < 0 {
		i.clearCache()
		i.exhaust(-1)
		return
	}
	i.cacheGroupBefore(int32(idx), target)
}

// cacheGroupBefore decodes the entries from restart point j up to (but
// excluding) the entry at offset end, caches them, and positions the
// iterator on the last one.
func (i *Iter) cacheGroupBefore(j int32, end int32) {
	i.clearCache()
	if !i.seekRestart(j) {
		return
	}
	for {
		keyStart := int32(len(i.cachedBuf))
		i.cachedBuf = append(i.cachedBuf, i.key...)
		i.cached = append(i.cached, cachedEntry{
			offset:     i.offset,
			nextOffset: i.nextOffset,
			keyStart:   keyStart,
			keyEnd:     int32(len(i.cachedBuf)),
			val:        i.val,
		})
		if i.nextOffset >= end {
			break
		}
		if !i.decodeEntry(i.nextOffset) {
			i.clearCache()
			return
		}
	}
	if i.nextOffset != end {
		// The restart array does not point at an entry boundary.
		i.clearCache()
		i.corrupt()
		return
	}
	i.cachedIdx = len(i.cached) - 1
	i.setFromCache()
}

func (i *Iter) setFromCache() {
	e := &i.cached[i.cachedIdx]
	i.key = i.cachedBuf[e.keyStart:e.keyEnd:e.keyEnd]
	i.val = e.val
	i.offset = e.offset
	i.nextOffset = e.nextOffset
	i.valid = true
}

// Key implements base.InternalIterator.
func (i *Iter) Key() []byte {
	return i.key
}

// Value implements base.InternalIterator.
func (i *Iter) Value() []byte {
	return i.val
}

// Error implements base.InternalIterator.
func (i *Iter) Error() error {
	return i.err
}

// Close implements base.InternalIterator.
func (i *Iter) Close() error {
	i.RunCleanups()
	i.data = nil
	i.valid = false
	i.key = nil
	i.val = nil
	return i.err
}
