// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import (
	"bytes"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/sstkv/internal/base"
)

// BlockFunc returns an iterator over the data block identified by locator, the
// value of an index entry.
type BlockFunc func(locator []byte) (base.InternalIterator, error)

// TwoLevelIterator iterates over the concatenation of the data blocks
// referenced by an index iterator. The keys of the index are the largest keys
// (or separators) of each block and the values are the block locators.
//
// The iterator owns both the index iterator and the current data iterator.
// The data iterator is created lazily and reused while the index iterator
// remains on the same locator.
type TwoLevelIterator struct {
	base.Cleanups
	index   base.InternalIterator
	newData BlockFunc
	data    base.InternalIterator
	// dataLocator is a copy of the locator data was created from.
	dataLocator []byte
	err         error
}

var _ base.InternalIterator = (*TwoLevelIterator)(nil)

// NewTwoLevelIterator returns a TwoLevelIterator over the blocks of index.
func NewTwoLevelIterator(index base.InternalIterator, newData BlockFunc) *TwoLevelIterator {
	return &TwoLevelIterator{index: index, newData: newData}
}

func (i *TwoLevelIterator) saveError(err error) {
	if err != nil && i.err == nil {
		i.err = err
	}
}

// setData replaces the data iterator, closing the old one.
func (i *TwoLevelIterator) setData(data base.InternalIterator) {
	if i.data != nil {
		i.saveError(i.data.Close())
	}
	i.data = data
	if data == nil {
		i.dataLocator = i.dataLocator[:0]
	}
}

// initDataBlock positions the data iterator on the block the index iterator
// points at, reusing the current data iterator when the locator is unchanged.
func (i *TwoLevelIterator) initDataBlock() {
	if !i.index.Valid() {
		i.setData(nil)
		return
	}
	locator := i.index.Value()
	if i.data != nil && bytes.Equal(locator, i.dataLocator) {
		return
	}
	data, err := i.newData(locator)
	if err != nil {
		i.saveError(err)
		i.setData(nil)
		return
	}
	i.setData(data)
	i.dataLocator = append(i.dataLocator[:0], locator...)
}

// skipEmptyDataBlocksForward advances the index iterator until the data
// iterator is positioned on an entry, the index is exhausted, or an error
// occurs.
func (i *TwoLevelIterator) skipEmptyDataBlocksForward() {
	for i.data == nil || !i.data.Valid() {
		if i.data != nil {
			i.saveError(i.data.Error())
		}
		i.saveError(i.index.Error())
		if i.err != nil || !i.index.Valid() {
			i.setData(nil)
			return
		}
		i.index.Next()
		i.initDataBlock()
		if i.data != nil {
			i.data.First()
		}
	}
}

// skipEmptyDataBlocksBackward is the reverse of skipEmptyDataBlocksForward.
func (i *TwoLevelIterator) skipEmptyDataBlocksBackward() {
	for i.data == nil || !i.data.Valid() {
		if i.data != nil {
			i.saveError(i.data.Error())
		}
		i.saveError(i.index.Error())
		if i.err != nil || !i.index.Valid() {
			i.setData(nil)
			return
		}
		i.index.Prev()
		i.initDataBlock()
		if i.data != nil {
			i.data.Last()
		}
	}
}

// Valid implements base.InternalIterator.
func (i *TwoLevelIterator) Valid() bool {
	return i.err == nil && i.data != nil && i.data.Valid()
}

// SeekGE implements base.InternalIterator.
func (i *TwoLevelIterator) SeekGE(key []byte) {
	i.AssertNotClosed()
	if i.err != nil {
		return
	}
	i.index.SeekGE(key)
	i.initDataBlock()
	if i.data != nil {
		i.data.SeekGE(key)
	}
	i.skipEmptyDataBlocksForward()
}

// First implements base.InternalIterator.
func (i *TwoLevelIterator) First() {
	i.AssertNotClosed()
	if i.err != nil {
		return
	}
	i.index.First()
	i.initDataBlock()
	if i.data != nil {
		i.data.First()
	}
	i.skipEmptyDataBlocksForward()
}

// Last implements base.InternalIterator.
func (i *TwoLevelIterator) Last() {
	i.AssertNotClosed()
	if i.err != nil {
		return
	}
	i.index.Last()
	i.initDataBlock()
	if i.data != nil {
		i.data.Last()
	}
	i.skipEmptyDataBlocksBackward()
}

// Next implements base.InternalIterator.
func (i *TwoLevelIterator) Next() {
	if !i.Valid() {
		panic(errors.AssertionFailedf("sstkv: Next on invalid iterator"))
	}
	i.data.Next()
	i.skipEmptyDataBlocksForward()
}

// Prev implements base.InternalIterator.
func (i *TwoLevelIterator) Prev() {
	if !i.Valid() {
		panic(errors.AssertionFailedf("sstkv: Prev on invalid iterator"))
	}
	i.data.Prev()
	i.skipEmptyDataBlocksBackward()
}

// Key implements base.InternalIterator.
func (i *TwoLevelIterator) Key() []byte {
	return i.data.Key()
}

// Value implements base.InternalIterator.
func (i *TwoLevelIterator) Value() []byte {
	return i.data.Value()
}

// Error implements base.InternalIterator. It returns the first error
// encountered by the index iterator, the block function or any data iterator.
func (i *TwoLevelIterator) Error() error {
	if i.err == nil && i.index != nil {
		i.saveError(i.index.Error())
		if i.data != nil {
			i.saveError(i.data.Error())
		}
	}
	return i.err
}

// Close implements base.InternalIterator. It closes the data iterator, then
// the index iterator, then runs the registered cleanups.
func (i *TwoLevelIterator) Close() error {
	if i.Closed() {
		panic(errors.AssertionFailedf("sstkv: iterator closed twice"))
	}
	i.setData(nil)
	i.saveError(i.index.Close())
	i.index = nil
	i.RunCleanups()
	return i.err
}
