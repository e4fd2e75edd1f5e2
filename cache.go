// Copyright 2019 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstkv

import "github.com/cockroachdb/sstkv/internal/cache"

// Cache exports the cache.Cache type.
type Cache = cache.Cache

// CacheMetrics exports the cache.Metrics type.
type CacheMetrics = cache.Metrics

// NewCache creates a new block cache of the specified capacity in bytes.
// Memory for the cache is allocated on demand, not during initialization.
func NewCache(size int64) *cache.Cache {
	return cache.New(size)
}
