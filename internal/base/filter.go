// Copyright 2013 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

// FilterWriter provides an interface for creating a table filter from a set
// of keys.
type FilterWriter interface {
	// AddKey adds a key to the current filter.
	AddKey(key []byte)
	// Finish appends the filter built from the added keys to buf and resets
	// the writer. It returns the extended buffer.
	Finish(buf []byte) []byte
}

// FilterPolicy is an algorithm for probabilistically encoding a set of keys.
// The canonical implementation is a Bloom filter.
//
// Every FilterPolicy has a name. This names the algorithm itself, not any one
// particular instance. Aspects specific to a particular instance, such as the
// set of keys or any other parameters, will be encoded in the []byte filter
// returned by NewWriter.
//
// The name may be written to files on disk, along with the filter data. To
// use these filters, the FilterPolicy name at the time of writing must equal
// the name at the time of reading. If they do not match, the filters will be
// ignored, which will not affect correctness but may affect performance.
type FilterPolicy interface {
	// Name names the filter policy.
	Name() string

	// MayContain returns whether the encoded filter may contain given key.
	// False positives are possible, where it returns true for keys not in the
	// original set.
	MayContain(filter, key []byte) bool

	// NewWriter creates a new FilterWriter.
	NewWriter() FilterWriter
}
