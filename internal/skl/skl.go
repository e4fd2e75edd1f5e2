// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package skl implements a skiplist with a single writer and any number of
// lock-free concurrent readers. It backs the memtable.
//
// Writers are serialized by a mutex. A node is fully initialized, including
// its outgoing links, before it is published by storing a pointer to it into
// its predecessors, so a reader following atomic links never observes a
// partially constructed node. Nodes are never removed.
package skl

import (
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/sstkv/internal/base"
)

const (
	maxHeight = 12
	// Each level is 1/branching as populated as the one below.
	branching = 4
)

// ErrRecordExists indicates that an entry with the specified key already
// exists in the skiplist.
var ErrRecordExists = errors.New("record with this key already exists")

// nodeOverhead approximates the fixed memory cost of a node, excluding its
// tower and the key and value bytes.
const nodeOverhead = uint64(unsafe.Sizeof(node{}))

type node struct {
	key   []byte
	value []byte
	// next[i] is the successor at level i. len(next) is the node height.
	next []atomic.Pointer[node]
}

func (n *node) nextAt(level int) *node {
	return n.next[level].Load()
}

// Skiplist is a sorted set of key/value pairs.
type Skiplist struct {
	cmp  base.Compare
	head *node
	// height is the current height of the list, in [1, maxHeight].
	height atomic.Int32
	count  atomic.Int64
	size   atomic.Uint64

	mu struct {
		sync.Mutex
		rng *rand.Rand
		// prev is scratch space for Add.
		prev [maxHeight]*node
	}
}

// NewSkiplist returns an empty skiplist ordered by cmp.
func NewSkiplist(cmp base.Compare) *Skiplist {
	s := &Skiplist{
		cmp:  cmp,
		head: &node{next: make([]atomic.Pointer[node], maxHeight)},
	}
	s.height.Store(1)
	s.mu.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	return s
}

// Len returns the number of entries in the list.
func (s *Skiplist) Len() int {
	return int(s.count.Load())
}

// Size returns the approximate number of bytes used by the list's entries.
func (s *Skiplist) Size() uint64 {
	return s.size.Load()
}

// Height returns the current height of the list.
func (s *Skiplist) Height() int {
	return int(s.height.Load())
}

func (s *Skiplist) randomHeight() int {
	h := 1
	for h < maxHeight && s.mu.rng.Uint32N(branching) == 0 {
		h++
	}
	return h
}

// Add inserts key/value into the list. The list takes ownership of both
// slices; the caller must not modify them afterwards. If an entry comparing
// equal to key exists, ErrRecordExists is returned and the list is unchanged.
// Add may run concurrently with readers but not with other calls to Add.
func (s *Skiplist) Add(key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	listHeight := s.Height()
	prev := &s.mu.prev
	x := s.head
	for level := listHeight - 1; level >= 0; level-- {
		for {
			next := x.nextAt(level)
			if next == nil || s.cmp(next.key, key) >= 0 {
				break
			}
			x = next
		}
		prev[level] = x
	}
	if next := prev[0].nextAt(0); next != nil && s.cmp(next.key, key) == 0 {
		return ErrRecordExists
	}

	height := s.randomHeight()
	for level := listHeight; level < height; level++ {
		prev[level] = s.head
	}
	nd := &node{
		key:   key,
		value: value,
		next:  make([]atomic.Pointer[node], height),
	}
	for level := 0; level < height; level++ {
		nd.next[level].Store(prev[level].nextAt(level))
	}
	// Publish bottom-up: a reader that finds nd at some level can always
	// continue from it at every lower level.
	for level := 0; level < height; level++ {
		prev[level].next[level].Store(nd)
	}
	if height > listHeight {
		s.height.Store(int32(height))
	}
	s.count.Add(1)
	s.size.Add(nodeOverhead + uint64(height)*8 + uint64(len(key)) + uint64(len(value)))
	return nil
}

// findGreaterOrEqual returns the first node whose key is >= key, or nil.
func (s *Skiplist) findGreaterOrEqual(key []byte) *node {
	x := s.head
	for level := s.Height() - 1; ; {
		next := x.nextAt(level)
		if next != nil && s.cmp(next.key, key) < 0 {
			x = next
			continue
		}
		if level == 0 {
			return next
		}
		level--
	}
}

// findLessThan returns the last node whose key is < key, or nil.
func (s *Skiplist) findLessThan(key []byte) *node {
	x := s.head
	for level := s.Height() - 1; ; {
		next := x.nextAt(level)
		if next != nil && s.cmp(next.key, key) < 0 {
			x = next
			continue
		}
		if level == 0 {
			break
		}
		level--
	}
	if x == s.head {
		return nil
	}
	return x
}

// findLast returns the last node in the list, or nil if the list is empty.
func (s *Skiplist) findLast() *node {
	x := s.head
	for level := s.Height() - 1; ; {
		if next := x.nextAt(level); next != nil {
			x = next
			continue
		}
		if level == 0 {
			break
		}
		level--
	}
	if x == s.head {
		return nil
	}
	return x
}

// NewIter returns an unpositioned iterator over the list.
func (s *Skiplist) NewIter() *Iterator {
	return &Iterator{list: s}
}
