// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import "github.com/cockroachdb/errors"

// InternalIterator iterates over an ordered set of key/value pairs. Keys are
// encoded internal keys for memtable and sstable iterators, and raw block keys
// for block iterators.
//
// An iterator must be positioned by one of the absolute positioning methods
// (First, Last, SeekGE) before use. Next, Prev, Key and Value may only be
// called when Valid returns true.
//
// InternalIterators are not safe for concurrent use. An iterator must be
// closed exactly once; closing it twice or using it after Close panics.
type InternalIterator interface {
	// Valid returns true if the iterator is positioned at a key/value pair.
	Valid() bool

	// First moves the iterator to the first key/value pair.
	First()

	// Last moves the iterator to the last key/value pair.
	Last()

	// SeekGE moves the iterator to the first key/value pair whose key is
	// greater than or equal to the given key.
	SeekGE(key []byte)

	// Next moves the iterator to the next key/value pair.
	Next()

	// Prev moves the iterator to the previous key/value pair.
	Prev()

	// Key returns the key of the current key/value pair. The caller should
	// not modify the contents of the returned slice, and its contents may
	// change on the next call to a positioning method.
	Key() []byte

	// Value returns the value of the current key/value pair. The same
	// ownership rules as for Key apply.
	Value() []byte

	// Error returns any accumulated error. The error is sticky: once set it is
	// returned for the remaining lifetime of the iterator.
	Error() error

	// Close closes the iterator, runs the registered cleanup functions in
	// registration order and returns any accumulated error.
	Close() error

	// RegisterCleanup arranges for fn to be called when the iterator is
	// closed. fn must not be nil and the iterator must not be closed.
	RegisterCleanup(fn func())
}

// Cleanups implements RegisterCleanup for iterators and tracks whether the
// iterator was closed. It is meant to be embedded.
type Cleanups struct {
	fns    []func()
	closed bool
}

// RegisterCleanup implements InternalIterator.RegisterCleanup.
func (c *Cleanups) RegisterCleanup(fn func()) {
	if fn == nil {
		panic(errors.AssertionFailedf("sstkv: nil cleanup function"))
	}
	if c.closed {
		panic(errors.AssertionFailedf("sstkv: cleanup registered on closed iterator"))
	}
	c.fns = append(c.fns, fn)
}

// RunCleanups marks the iterator closed and runs the registered cleanups in
// registration order. It panics if called twice.
func (c *Cleanups) RunCleanups() {
	if c.closed {
		panic(errors.AssertionFailedf("sstkv: iterator closed twice"))
	}
	c.closed = true
	fns := c.fns
	c.fns = nil
	for _, fn := range fns {
		fn()
	}
}

// Closed returns true once RunCleanups has been called.
func (c *Cleanups) Closed() bool {
	return c.closed
}

// AssertNotClosed panics if the iterator was closed.
func (c *Cleanups) AssertNotClosed() {
	if c.closed {
		panic(errors.AssertionFailedf("sstkv: use of closed iterator"))
	}
}

// errorIter is an iterator that is never valid and reports a fixed error.
type errorIter struct {
	Cleanups
	err error
}

var _ InternalIterator = (*errorIter)(nil)

// NewErrorIter returns an iterator that is never positioned and returns err
// from Error and Close.
func NewErrorIter(err error) InternalIterator {
	return &errorIter{err: err}
}

// NewEmptyIter returns an iterator over no key/value pairs.
func NewEmptyIter() InternalIterator {
	return &errorIter{}
}

func (i *errorIter) Valid() bool       { return false }
func (i *errorIter) First()            {}
func (i *errorIter) Last()             {}
func (i *errorIter) SeekGE(key []byte) {}

func (i *errorIter) Next() {
	panic(errors.AssertionFailedf("sstkv: Next on invalid iterator"))
}

func (i *errorIter) Prev() {
	panic(errors.AssertionFailedf("sstkv: Prev on invalid iterator"))
}

func (i *errorIter) Key() []byte   { return nil }
func (i *errorIter) Value() []byte { return nil }
func (i *errorIter) Error() error  { return i.err }

func (i *errorIter) Close() error {
	i.RunCleanups()
	return i.err
}
