// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package sstkv provides the read path of a log-structured merge tree: write
// batches, the in-memory memtable they are applied to, and a table cache that
// keeps sorted string tables open for point lookups and iteration.
//
// Tables are written and read by the sstable package. Blocks read from tables
// are shared through a Cache, which is safe for concurrent use:
//
//	opts := &sstkv.Options{Cache: sstkv.NewCache(64 << 20)}
//	tc := sstkv.NewTableCache(dirname, opts, 0)
//	defer tc.Close()
//	value, err := tc.GetValue(fileNum, []byte("key"))
package sstkv
