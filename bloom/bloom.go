// Copyright 2013 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package bloom implements Bloom filters.
package bloom // import "github.com/cockroachdb/sstkv/bloom"

import (
	"encoding/binary"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/sstkv/internal/base"
)

const (
	cacheLineSize = 64
	cacheLineBits = cacheLineSize * 8
)

// This table contains the optimal number of probes for each bitsPerKey. For
// bits per key over 10, probes[10] should be used.
//
// All probes of a key are constrained to the same cache line, for which the
// standard bloom filter formula does not yield the optimal number.
var probes = [11]uint32{
	1:  1,
	2:  1,
	3:  2,
	4:  3,
	5:  3,
	6:  4,
	7:  4,
	8:  5,
	9:  5,
	10: 6,
}

func calculateProbes(bitsPerKey uint32) uint32 {
	if bitsPerKey > 10 {
		return probes[10]
	}
	return probes[bitsPerKey]
}

// hash implements a hashing algorithm similar to the Murmur hash.
func hash(b []byte) uint32 {
	const (
		seed = 0xbc9f1d34
		m    = 0xc6a4a793
	)
	h := uint32(seed) ^ (uint32(len(b)) * m)
	for ; len(b) >= 4; b = b[4:] {
		h += uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
		h *= m
		h ^= h >> 16
	}

	// Each trailing byte is sign-extended to match RocksDB, where the bytes are
	// handled as signed chars.
	switch len(b) {
	case 3:
		h += uint32(int8(b[2])) << 16
		fallthrough
	case 2:
		h += uint32(int8(b[1])) << 8
		fallthrough
	case 1:
		h += uint32(int8(b[0]))
		h *= m
		h ^= h >> 24
	}
	return h
}

// tableFilter is an encoded filter: nLines cache lines of bits followed by
// the number of probes (1 byte) and nLines (fixed32). The format matches the
// RocksDB full-file filter format.
type tableFilter []byte

func (f tableFilter) MayContain(key []byte) bool {
	return mayContain(f, hash(key))
}

func mayContain(f []byte, h uint32) bool {
	if len(f) <= 5 {
		return false
	}
	n := len(f) - 5
	nProbes := f[n]
	nLines := binary.LittleEndian.Uint32(f[n+1:])
	if nLines == 0 {
		return false
	}
	lineBits := 8 * (uint32(n) / nLines)

	delta := h>>17 | h<<15
	b := (h % nLines) * lineBits
	for j := uint8(0); j < nProbes; j++ {
		bitPos := b + (h % lineBits)
		if f[bitPos/8]&(1<<(bitPos%8)) == 0 {
			return false
		}
		h += delta
	}
	return true
}

func calculateNumLines(numHashes int, bitsPerKey uint32) uint32 {
	nLines := (uint64(numHashes)*uint64(bitsPerKey) + cacheLineBits - 1) / cacheLineBits
	// Make nLines an odd number to make sure more bits are involved when
	// determining which block.
	return uint32(nLines | 1)
}

// tableFilterWriter implements base.FilterWriter for Bloom filters.
type tableFilterWriter struct {
	bitsPerKey uint32
	numProbes  uint32
	hashes     []uint32
}

func newTableFilterWriter(bitsPerKey uint32) *tableFilterWriter {
	return &tableFilterWriter{
		bitsPerKey: bitsPerKey,
		numProbes:  calculateProbes(bitsPerKey),
	}
}

// AddKey implements the base.FilterWriter interface.
func (w *tableFilterWriter) AddKey(key []byte) {
	h := hash(key)
	// Keys are typically added in sorted order, so duplicate hashes are
	// adjacent.
	if n := len(w.hashes); n > 0 && w.hashes[n-1] == h {
		return
	}
	w.hashes = append(w.hashes, h)
}

// Finish implements the base.FilterWriter interface.
func (w *tableFilterWriter) Finish(buf []byte) []byte {
	var nLines uint32
	if len(w.hashes) > 0 {
		nLines = calculateNumLines(len(w.hashes), w.bitsPerKey)
	}
	nBytes := int(nLines) * cacheLineSize
	start := len(buf)
	// +5: 1 byte for num-probes, 4 bytes for num-lines.
	buf = append(buf, make([]byte, nBytes+5)...)
	filter := buf[start:]
	if nLines != 0 {
		for _, h := range w.hashes {
			delta := h>>17 | h<<15
			b := (h % nLines) * cacheLineBits
			for i := uint32(0); i < w.numProbes; i++ {
				bitPos := b + (h % cacheLineBits)
				filter[bitPos/8] |= 1 << (bitPos % 8)
				h += delta
			}
		}
		filter[nBytes] = byte(w.numProbes)
		binary.LittleEndian.PutUint32(filter[nBytes+1:], nLines)
	}
	w.hashes = w.hashes[:0]
	return buf
}

// Family name for bloom filters. This string looks arbitrary, but its value is
// written to .sst files, and should be this exact value to be compatible with
// those files and with the C++ RocksDB code.
const Family = "rocksdb.BuiltinBloomFilter"

// FilterPolicy is a base.FilterPolicy that creates bloom filters with the
// given number of bits per key (approximately). A good value is 10, which
// yields a filter with ~1% false positive rate.
//
//	Bits/key | Probes |       FPR
//	---------+--------+------------------
//	       1 |   1    | 61.4% (1 in 1.63)
//	       4 |   3    | 14.5% (1 in 6.91)
//	       6 |   4    | 5.75% (1 in 17.4)
//	       8 |   5    | 2.44% (1 in 40.9)
//	      10 |   6    | 1.14% (1 in 87.5)
//	      15 |   6    | 0.296% (1 in 338)
//	      20 |   6    | 0.140% (1 in 713)
func FilterPolicy(bitsPerKey uint32) base.FilterPolicy {
	if bitsPerKey < 1 {
		panic(errors.AssertionFailedf("invalid bitsPerKey %d", bitsPerKey))
	}
	return filterPolicyImpl{BitsPerKey: bitsPerKey}
}

type filterPolicyImpl struct {
	BitsPerKey uint32
}

var _ base.FilterPolicy = filterPolicyImpl{}

// Name is part of the base.FilterPolicy interface.
func (p filterPolicyImpl) Name() string {
	if p.BitsPerKey == 10 {
		return Family
	}
	return fmt.Sprintf("bloom(%d)", p.BitsPerKey)
}

// MayContain is part of the base.FilterPolicy interface.
func (p filterPolicyImpl) MayContain(filter, key []byte) bool {
	return tableFilter(filter).MayContain(key)
}

// NewWriter is part of the base.FilterPolicy interface.
func (p filterPolicyImpl) NewWriter() base.FilterWriter {
	return newTableFilterWriter(p.BitsPerKey)
}

// PolicyFromName returns the filter policy whose Name is name, or false if
// the string is not recognized as a bloom filter policy.
func PolicyFromName(name string) (_ base.FilterPolicy, ok bool) {
	if name == Family {
		return FilterPolicy(10), true
	}
	var bitsPerKey uint32
	if n, err := fmt.Sscanf(name, "bloom(%d)", &bitsPerKey); err == nil && n == 1 && bitsPerKey >= 1 {
		return FilterPolicy(bitsPerKey), true
	}
	return nil, false
}
