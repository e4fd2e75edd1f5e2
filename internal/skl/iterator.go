// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package skl

import "github.com/cockroachdb/errors"

// Iterator is an iterator over the skiplist. It observes entries added
// concurrently with iteration. An Iterator is not safe for concurrent use,
// but any number of iterators may be used concurrently.
type Iterator struct {
	list *Skiplist
	nd   *node
}

// Valid returns true if the iterator is positioned at an entry.
func (it *Iterator) Valid() bool {
	return it.nd != nil
}

// Key returns the key at the current position.
func (it *Iterator) Key() []byte {
	return it.nd.key
}

// Value returns the value at the current position.
func (it *Iterator) Value() []byte {
	return it.nd.value
}

// SeekGE moves to the first entry whose key is >= key.
func (it *Iterator) SeekGE(key []byte) {
	it.nd = it.list.findGreaterOrEqual(key)
}

// SeekLT moves to the last entry whose key is < key.
func (it *Iterator) SeekLT(key []byte) {
	it.nd = it.list.findLessThan(key)
}

// First moves to the first entry.
func (it *Iterator) First() {
	it.nd = it.list.head.nextAt(0)
}

// Last moves to the last entry.
func (it *Iterator) Last() {
	it.nd = it.list.findLast()
}

// Next advances to the next entry.
func (it *Iterator) Next() {
	if it.nd == nil {
		panic(errors.AssertionFailedf("skl: Next on invalid iterator"))
	}
	it.nd = it.nd.nextAt(0)
}

// Prev moves to the previous entry. Nodes carry no backward links, so Prev
// searches from the head for the last key less than the current one.
func (it *Iterator) Prev() {
	if it.nd == nil {
		panic(errors.AssertionFailedf("skl: Prev on invalid iterator"))
	}
	it.nd = it.list.findLessThan(it.nd.key)
}
