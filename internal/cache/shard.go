// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package cache

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/sstkv/internal/invariants"
	"github.com/cockroachdb/swiss"
)

const (
	// Arena indexes of the two list sentinels.
	lruHead   int32 = 0
	inUseHead int32 = 1
	// nilIndex terminates the free list.
	nilIndex int32 = -1
)

// Handle pins a cache entry. The zero Handle is invalid.
type Handle struct {
	s     *shard
	index int32
	gen   uint32
	value any
}

// Valid returns true if the handle refers to an entry.
func (h Handle) Valid() bool {
	return h.s != nil
}

// Value returns the value of the pinned entry.
func (h Handle) Value() any {
	return h.value
}

type node struct {
	key     string
	value   any
	charge  int64
	deleter Deleter
	// refs counts the cache's own reference (while inCache) plus one per
	// outstanding Handle. A node with refs == 0 is on the free list.
	refs    int32
	inCache bool
	// gen is bumped every time the slot is freed so that handles to a
	// previous occupant can be detected.
	gen        uint32
	next, prev int32
}

// pendingDelete is an entry whose deleter runs after the shard lock is
// dropped.
type pendingDelete struct {
	key     string
	value   any
	deleter Deleter
}

type shard struct {
	mu struct {
		sync.Mutex
		capacity int64
		usage    int64
		// nodes is the arena. nodes[lruHead] and nodes[inUseHead] are the list
		// sentinels.
		nodes      []node
		freeHead   int32
		table      swiss.Map[string, int32]
		inUseCount int
		hits       int64
		misses     int64
		inserts    int64
		evictions  int64
	}
}

func (s *shard) init(capacity int64) {
	s.mu.capacity = capacity
	s.mu.nodes = make([]node, 2, 16)
	for _, h := range []int32{lruHead, inUseHead} {
		s.mu.nodes[h].next = h
		s.mu.nodes[h].prev = h
	}
	s.mu.freeHead = nilIndex
	s.mu.table.Init(16)
}

// listRemove unlinks n from the list it is on.
func (s *shard) listRemove(n int32) {
	nodes := s.mu.nodes
	next, prev := nodes[n].next, nodes[n].prev
	nodes[next].prev = prev
	nodes[prev].next = next
	nodes[n].next, nodes[n].prev = nilIndex, nilIndex
}

// listAppend makes n the newest entry of the list headed by head.
func (s *shard) listAppend(head, n int32) {
	nodes := s.mu.nodes
	nodes[n].next = head
	nodes[n].prev = nodes[head].prev
	nodes[nodes[n].prev].next = n
	nodes[head].prev = n
}

func (s *shard) allocNode() int32 {
	if n := s.mu.freeHead; n != nilIndex {
		s.mu.freeHead = s.mu.nodes[n].next
		return n
	}
	s.mu.nodes = append(s.mu.nodes, node{})
	return int32(len(s.mu.nodes) - 1)
}

// ref adds a reference to n, moving it to the in-use list if it gains its
// first external reference.
func (s *shard) ref(n int32) {
	nd := &s.mu.nodes[n]
	if nd.refs == 1 && nd.inCache {
		s.listRemove(n)
		s.listAppend(inUseHead, n)
		s.mu.inUseCount++
	}
	s.mu.nodes[n].refs++
}

// unref drops a reference to n. When the count reaches zero the node is
// freed and its deleter queued on pending.
func (s *shard) unref(n int32, pending []pendingDelete) []pendingDelete {
	nd := &s.mu.nodes[n]
	if nd.refs <= 0 {
		panic(errors.AssertionFailedf("cache: unref of node with %d refs", nd.refs))
	}
	nd.refs--
	switch {
	case nd.refs == 0:
		if nd.inCache {
			panic(errors.AssertionFailedf("cache: freeing node still in cache"))
		}
		if nd.deleter != nil {
			pending = append(pending, pendingDelete{key: nd.key, value: nd.value, deleter: nd.deleter})
		}
		gen := nd.gen + 1
		*nd = node{gen: gen, next: s.mu.freeHead, prev: nilIndex}
		s.mu.freeHead = n
	case nd.inCache && nd.refs == 1:
		// No more external references: the entry becomes evictable.
		s.listRemove(n)
		s.listAppend(lruHead, n)
		s.mu.inUseCount--
	}
	return pending
}

// finishErase removes n, already deleted from the table, from the cache and
// drops the cache's reference to it.
func (s *shard) finishErase(n int32, pending []pendingDelete) []pendingDelete {
	nd := &s.mu.nodes[n]
	if !nd.inCache {
		panic(errors.AssertionFailedf("cache: erasing node not in cache"))
	}
	if nd.refs > 1 {
		s.mu.inUseCount--
	}
	s.listRemove(n)
	nd.inCache = false
	s.mu.usage -= nd.charge
	return s.unref(n, pending)
}

func runDeleters(pending []pendingDelete) {
	for _, p := range pending {
		p.deleter([]byte(p.key), p.value)
	}
}

func (s *shard) insert(key []byte, value any, charge int64, deleter Deleter) Handle {
	var pending []pendingDelete
	s.mu.Lock()
	n := s.allocNode()
	nd := &s.mu.nodes[n]
	*nd = node{
		key:     string(key),
		value:   value,
		charge:  charge,
		deleter: deleter,
		refs:    1,
		gen:     nd.gen,
		next:    nilIndex,
		prev:    nilIndex,
	}
	s.mu.inserts++

	if s.mu.capacity > 0 {
		nd.refs++
		nd.inCache = true
		s.listAppend(inUseHead, n)
		s.mu.inUseCount++
		s.mu.usage += charge
		if old, ok := s.mu.table.Get(nd.key); ok {
			pending = s.finishErase(old, pending)
		}
		s.mu.table.Put(s.mu.nodes[n].key, n)
	}
	// Otherwise caching is disabled: the caller's handle is the only
	// reference.

	pending = s.evictLocked(pending)
	h := Handle{s: s, index: n, gen: s.mu.nodes[n].gen, value: value}
	if invariants.Sometimes(10) {
		s.checkInvariantsLocked()
	}
	s.mu.Unlock()
	runDeleters(pending)
	return h
}

// evictLocked evicts least recently used entries until usage fits within
// capacity or only pinned entries remain.
func (s *shard) evictLocked(pending []pendingDelete) []pendingDelete {
	for s.mu.usage > s.mu.capacity && s.mu.nodes[lruHead].next != lruHead {
		oldest := s.mu.nodes[lruHead].next
		s.mu.table.Delete(s.mu.nodes[oldest].key)
		pending = s.finishErase(oldest, pending)
		s.mu.evictions++
	}
	return pending
}

func (s *shard) lookup(key []byte) (Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.mu.table.Get(string(key))
	if !ok {
		s.mu.misses++
		return Handle{}, false
	}
	s.mu.hits++
	s.ref(n)
	nd := &s.mu.nodes[n]
	return Handle{s: s, index: n, gen: nd.gen, value: nd.value}, true
}

func (s *shard) release(h Handle) {
	s.mu.Lock()
	if h.index < 0 || int(h.index) >= len(s.mu.nodes) || h.index == lruHead || h.index == inUseHead {
		s.mu.Unlock()
		panic(errors.AssertionFailedf("cache: release of invalid handle"))
	}
	nd := &s.mu.nodes[h.index]
	if nd.gen != h.gen || nd.refs == 0 || (nd.inCache && nd.refs == 1) {
		s.mu.Unlock()
		panic(errors.AssertionFailedf("cache: handle released more than once"))
	}
	pending := s.unref(h.index, nil)
	// An entry larger than the remaining capacity stays resident only while
	// pinned.
	pending = s.evictLocked(pending)
	if invariants.Sometimes(10) {
		s.checkInvariantsLocked()
	}
	s.mu.Unlock()
	runDeleters(pending)
}

func (s *shard) erase(key []byte) {
	var pending []pendingDelete
	s.mu.Lock()
	if n, ok := s.mu.table.Get(string(key)); ok {
		s.mu.table.Delete(string(key))
		pending = s.finishErase(n, pending)
	}
	s.mu.Unlock()
	runDeleters(pending)
}

func (s *shard) prune() {
	var pending []pendingDelete
	s.mu.Lock()
	for s.mu.nodes[lruHead].next != lruHead {
		n := s.mu.nodes[lruHead].next
		s.mu.table.Delete(s.mu.nodes[n].key)
		pending = s.finishErase(n, pending)
	}
	s.mu.Unlock()
	runDeleters(pending)
}

func (s *shard) totalCharge() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mu.usage
}

// checkInvariantsLocked verifies that the lists, the table and the usage
// counter agree. s.mu must be held.
func (s *shard) checkInvariantsLocked() {
	var usage int64
	inList := 0
	walk := func(head int32, pinned bool) {
		for n := s.mu.nodes[head].next; n != head; n = s.mu.nodes[n].next {
			nd := &s.mu.nodes[n]
			if !nd.inCache {
				panic(errors.AssertionFailedf("cache: node %d on list but not in cache", n))
			}
			if pinned != (nd.refs > 1) {
				panic(errors.AssertionFailedf("cache: node %d with %d refs on wrong list", n, nd.refs))
			}
			if got, ok := s.mu.table.Get(nd.key); !ok || got != n {
				panic(errors.AssertionFailedf("cache: node %d missing from table", n))
			}
			usage += nd.charge
			inList++
		}
	}
	walk(lruHead, false)
	walk(inUseHead, true)
	if usage != s.mu.usage {
		panic(errors.AssertionFailedf("cache: usage %d != sum of charges %d", s.mu.usage, usage))
	}
	if inList != s.mu.table.Len() {
		panic(errors.AssertionFailedf("cache: %d listed nodes but %d table entries", inList, s.mu.table.Len()))
	}
}
