// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package base defines fundamental types used across sstkv: internal keys and
// their comparer, the iterator contract, error markers, loggers and file
// names.
package base
