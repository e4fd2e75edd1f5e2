// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstkv

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/sstkv/internal/base"
	"github.com/cockroachdb/sstkv/internal/skl"
)

// A MemTable implements an in-memory layer of the LSM. A MemTable is mutable,
// but append-only. Records are added, but never removed. Deletion is supported
// via tombstones, but it is up to higher level code to support processing
// those tombstones.
//
// A MemTable is implemented on top of a skiplist ordered by internal key. At
// most one goroutine may add to a MemTable at a time, while Get, NewIter and
// ApproximateMemoryUsage may be called concurrently with an Add and with each
// other.
type MemTable struct {
	equal base.Equal
	icmp  *base.Comparer
	skl   *skl.Skiplist
}

// NewMemTable returns a new MemTable ordered by the comparer of opts.
func NewMemTable(opts *Options) *MemTable {
	opts = opts.EnsureDefaults()
	icmp := base.InternalComparer(opts.Comparer)
	return &MemTable{
		equal: opts.Comparer.Equal,
		icmp:  icmp,
		skl:   skl.NewSkiplist(icmp.Compare),
	}
}

// Add adds an entry for the user key at the given sequence number. The
// arguments are copied. Adding an entry whose internal key (user key,
// sequence number and kind) is already present is a programming error and
// panics.
func (m *MemTable) Add(seqNum SeqNum, kind InternalKeyKind, key, value []byte) {
	if kind > base.InternalKeyKindMax {
		panic(errors.AssertionFailedf("sstkv: invalid memtable entry kind %s", kind))
	}
	if seqNum > base.SeqNumMax {
		panic(errors.AssertionFailedf("sstkv: sequence number %d exceeds maximum", seqNum))
	}
	ikey := base.MakeInternalKey(key, seqNum, kind)
	var v []byte
	if len(value) > 0 {
		v = append([]byte(nil), value...)
	}
	if err := m.skl.Add(ikey.AppendEncoded(nil), v); err != nil {
		if errors.Is(err, skl.ErrRecordExists) {
			panic(errors.AssertionFailedf("sstkv: duplicate memtable entry %s", ikey))
		}
		panic(errors.NewAssertionErrorWithWrappedErrf(err, "sstkv: adding %s", ikey))
	}
}

// Get looks up the newest entry for the user key that is visible at seqNum,
// i.e. has a sequence number <= seqNum. If that entry is a set, Get returns
// its value with found=true. If it is a deletion, Get returns found=true and
// base.ErrNotFound: the key is known to be absent and older layers must not
// be consulted. If the memtable holds no visible entry for the key, Get
// returns found=false.
//
// The returned value is owned by the memtable and must not be modified.
func (m *MemTable) Get(key []byte, seqNum SeqNum) (value []byte, found bool, err error) {
	it := m.skl.NewIter()
	it.SeekGE(base.MakeSearchKey(key, seqNum).AppendEncoded(nil))
	if !it.Valid() {
		return nil, false, nil
	}
	ikey, err := base.DecodeInternalKey(it.Key())
	if err != nil {
		return nil, false, err
	}
	if !m.equal(key, ikey.UserKey) {
		return nil, false, nil
	}
	switch ikey.Kind() {
	case base.InternalKeyKindSet:
		return it.Value(), true, nil
	case base.InternalKeyKindDelete:
		return nil, true, ErrNotFound
	default:
		return nil, false, base.CorruptionErrorf("sstkv: memtable entry %s has invalid kind", ikey)
	}
}

// Apply adds the entries of the batch to the memtable, numbering them
// consecutively from seqNum. The batch's own sequence number is ignored. Apply
// is atomic: a corrupt batch or one whose sequence numbers would exceed
// SeqNumMax returns an error and leaves the memtable unchanged.
func (m *MemTable) Apply(batch *Batch, seqNum SeqNum) error {
	if err := batch.validate(); err != nil {
		return err
	}
	if uint64(seqNum)+uint64(batch.Count()) > uint64(base.SeqNumMax)+1 {
		return base.InvalidArgumentf("sstkv: batch of %d entries at sequence number %s overflows",
			errors.Safe(batch.Count()), seqNum)
	}
	return batch.replay(seqNum, &memTableInserter{m: m})
}

// memTableInserter is the BatchHandler used by MemTable.Apply.
type memTableInserter struct {
	m *MemTable
}

func (i *memTableInserter) Set(seqNum SeqNum, key, value []byte) error {
	i.m.Add(seqNum, base.InternalKeyKindSet, key, value)
	return nil
}

func (i *memTableInserter) Delete(seqNum SeqNum, key []byte) error {
	i.m.Add(seqNum, base.InternalKeyKindDelete, key, nil)
	return nil
}

// Len returns the number of entries in the memtable.
func (m *MemTable) Len() int {
	return m.skl.Len()
}

// Empty returns whether the memtable has no entries.
func (m *MemTable) Empty() bool {
	return m.skl.Len() == 0
}

// ApproximateMemoryUsage returns the approximate number of bytes used by the
// entries of the memtable, including per-entry overhead.
func (m *MemTable) ApproximateMemoryUsage() uint64 {
	return m.skl.Size()
}

// NewIter returns an iterator over the memtable. Keys are encoded internal
// keys in ascending internal key order. The iterator observes entries added
// after its creation.
func (m *MemTable) NewIter() internalIterator {
	return &memTableIter{iter: m.skl.NewIter()}
}

// memTableIter adapts a skiplist iterator to the internal iterator interface.
type memTableIter struct {
	base.Cleanups
	iter *skl.Iterator
}

var _ base.InternalIterator = (*memTableIter)(nil)

func (i *memTableIter) Valid() bool {
	return !i.Closed() && i.iter.Valid()
}

func (i *memTableIter) First() {
	i.AssertNotClosed()
	i.iter.First()
}

func (i *memTableIter) Last() {
	i.AssertNotClosed()
	i.iter.Last()
}

func (i *memTableIter) SeekGE(key []byte) {
	i.AssertNotClosed()
	i.iter.SeekGE(key)
}

func (i *memTableIter) Next() {
	i.AssertNotClosed()
	i.iter.Next()
}

func (i *memTableIter) Prev() {
	i.AssertNotClosed()
	i.iter.Prev()
}

func (i *memTableIter) Key() []byte {
	return i.iter.Key()
}

func (i *memTableIter) Value() []byte {
	return i.iter.Value()
}

func (i *memTableIter) Error() error {
	return nil
}

func (i *memTableIter) Close() error {
	i.RunCleanups()
	return nil
}
