// Copyright 2019 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package tool implements the sstkv command line tools: introspection of
// sstables and micro-benchmarks of the block cache and memtable.
package tool

import (
	"github.com/cockroachdb/sstkv"
	"github.com/cockroachdb/sstkv/bloom"
	"github.com/cockroachdb/sstkv/internal/base"
	"github.com/cockroachdb/sstkv/sstable"
	"github.com/cockroachdb/sstkv/vfs"
	"github.com/spf13/cobra"
)

// Comparer exports the base.Comparer type.
type Comparer = base.Comparer

// FilterPolicy exports the base.FilterPolicy type.
type FilterPolicy = base.FilterPolicy

// T is the container for all of the tools.
type T struct {
	Commands  []*cobra.Command
	sstable   *sstableT
	bench     *benchT
	opts      sstkv.Options
	comparers sstable.Comparers
	filters   sstable.FilterPolicies
}

// Option configures a T.
type Option func(*T)

// FS sets the filesystem the tools read tables from.
func FS(fs vfs.FS) Option {
	return func(t *T) {
		t.opts.FS = fs
	}
}

// Logger sets the logger used for errors encountered while closing tables.
// Messages are redacted before reaching it.
func Logger(l base.Logger) Option {
	return func(t *T) {
		t.opts.Logger = base.RedactingLogger{Logger: l}
	}
}

// New creates a new set of tools.
func New(opts ...Option) *T {
	t := &T{
		opts: sstkv.Options{
			Cache:  sstkv.NewCache(128 << 20 /* 128 MB */),
			FS:     vfs.Default,
			Logger: base.RedactingLogger{Logger: base.DefaultLogger},
		},
		comparers: make(sstable.Comparers),
		filters:   make(sstable.FilterPolicies),
	}
	for _, opt := range opts {
		opt(t)
	}

	t.RegisterComparer(base.DefaultComparer)
	t.RegisterFilter(bloom.FilterPolicy(10))

	t.sstable = newSSTable(&t.opts, t.comparers, t.filters)
	t.bench = newBench()
	t.Commands = []*cobra.Command{
		t.sstable.Root,
		t.bench.Root,
	}
	return t
}

// RegisterComparer registers a comparer for use by the tools.
func (t *T) RegisterComparer(c *Comparer) {
	t.comparers[c.Name] = c
}

// RegisterFilter registers a filter policy for use by the tools.
func (t *T) RegisterFilter(f FilterPolicy) {
	t.filters[f.Name()] = f
}
