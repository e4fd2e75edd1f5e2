// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package block implements the block codec of sstkv tables: serialization of
// sorted key/value pairs into prefix-compressed blocks with restart points,
// iteration over such blocks, and the physical framing (compression and
// checksum trailer) of blocks within a file.
package block

import (
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/sstkv/internal/base"
	"github.com/cockroachdb/sstkv/internal/crc"
)

// Handle is the file offset and length of a block.
type Handle struct {
	// Offset identifies the offset of the block within the file.
	Offset uint64
	// Length is the length of the block data (excludes the trailer).
	Length uint64
}

// MaxHandleLen is the maximum length of a varint-encoded Handle.
const MaxHandleLen = 2 * binary.MaxVarintLen64

// EncodeVarints encodes the block handle into dst using a variable-width
// encoding and returns the number of bytes written.
func (h Handle) EncodeVarints(dst []byte) int {
	n := binary.PutUvarint(dst, h.Offset)
	m := binary.PutUvarint(dst[n:], h.Length)
	return n + m
}

// Append appends the varint encoding of the handle to dst.
func (h Handle) Append(dst []byte) []byte {
	dst = binary.AppendUvarint(dst, h.Offset)
	return binary.AppendUvarint(dst, h.Length)
}

// String implements fmt.Stringer.
func (h Handle) String() string {
	return fmt.Sprintf("(%d, %d)", h.Offset, h.Length)
}

// DecodeHandle returns the block handle encoded in a variable-width encoding at
// the start of src, as well as the number of bytes it occupies. It returns zero
// if given invalid input.
func DecodeHandle(src []byte) (Handle, int) {
	offset, n := binary.Uvarint(src)
	if n <= 0 {
		return Handle{}, 0
	}
	length, m := binary.Uvarint(src[n:])
	if m <= 0 {
		return Handle{}, 0
	}
	return Handle{Offset: offset, Length: length}, n + m
}

// DecodeHandleExact decodes a handle that must occupy all of src, as block
// locators stored in index block values do.
func DecodeHandleExact(src []byte) (Handle, error) {
	h, n := DecodeHandle(src)
	if n == 0 || n != len(src) {
		return Handle{}, base.CorruptionErrorf("sstkv/block: invalid block handle %x", src)
	}
	return h, nil
}

// TrailerLen is the length of the trailer at the end of a block.
const TrailerLen = 5

// Trailer is the trailer at the end of a block, encoding the block type
// (compression) and a checksum.
type Trailer = [TrailerLen]byte

// MakeTrailer constructs a trailer from a block type and a checksum.
func MakeTrailer(blockType byte, checksum uint32) (t Trailer) {
	t[0] = blockType
	binary.LittleEndian.PutUint32(t[1:5], checksum)
	return t
}

// ChecksumType specifies the checksum used for blocks.
type ChecksumType byte

// The available checksum types. These values are part of the durable format and
// should not be changed.
const (
	ChecksumTypeNone     ChecksumType = 0
	ChecksumTypeCRC32c   ChecksumType = 1
	ChecksumTypeXXHash64 ChecksumType = 3
)

// String implements fmt.Stringer.
func (t ChecksumType) String() string {
	switch t {
	case ChecksumTypeCRC32c:
		return "crc32c"
	case ChecksumTypeNone:
		return "none"
	case ChecksumTypeXXHash64:
		return "xxhash64"
	default:
		return fmt.Sprintf("unknown(%d)", byte(t))
	}
}

// ParseChecksumType parses the String form of a checksum type.
func ParseChecksumType(s string) (ChecksumType, bool) {
	for _, t := range []ChecksumType{ChecksumTypeNone, ChecksumTypeCRC32c, ChecksumTypeXXHash64} {
		if t.String() == s {
			return t, true
		}
	}
	return 0, false
}

// A Checksummer calculates checksums for blocks.
type Checksummer struct {
	Type         ChecksumType
	xxHasher     *xxhash.Digest
	blockTypeBuf [1]byte
}

// Checksum computes a checksum over the provided block and block type.
func (c *Checksummer) Checksum(block []byte, blockType byte) (checksum uint32) {
	c.blockTypeBuf[0] = blockType
	switch c.Type {
	case ChecksumTypeNone:
		return 0
	case ChecksumTypeCRC32c:
		checksum = crc.New(block).Update(c.blockTypeBuf[:]).Value()
	case ChecksumTypeXXHash64:
		if c.xxHasher == nil {
			c.xxHasher = xxhash.New()
		} else {
			c.xxHasher.Reset()
		}
		_, _ = c.xxHasher.Write(block)
		_, _ = c.xxHasher.Write(c.blockTypeBuf[:])
		checksum = uint32(c.xxHasher.Sum64())
	default:
		panic(errors.AssertionFailedf("unsupported checksum type: %d", c.Type))
	}
	return checksum
}

func checksumFunc(t ChecksumType) func([]byte) uint32 {
	switch t {
	case ChecksumTypeCRC32c:
		return func(data []byte) uint32 { return crc.New(data).Value() }
	case ChecksumTypeXXHash64:
		return func(data []byte) uint32 { return uint32(xxhash.Sum64(data)) }
	}
	return nil
}

// ValidateChecksum validates the checksum of a block. b holds the block
// contents followed by its trailer.
func ValidateChecksum(checksumType ChecksumType, b []byte, bh Handle) error {
	if checksumType == ChecksumTypeNone {
		return nil
	}
	fn := checksumFunc(checksumType)
	if fn == nil {
		return base.NotSupportedf("sstkv/block: unsupported checksum type: %d", errors.Safe(byte(checksumType)))
	}
	expectedChecksum := binary.LittleEndian.Uint32(b[bh.Length+1:])
	computedChecksum := fn(b[:bh.Length+1])
	if expectedChecksum == computedChecksum {
		return nil
	}
	err := base.CorruptionErrorf("sstkv/block: block %d/%d: %s checksum mismatch %x != %x",
		errors.Safe(bh.Offset), errors.Safe(bh.Length), errors.Safe(checksumType),
		expectedChecksum, computedChecksum)
	// Report a single flipped bit, which points at hardware rather than at a
	// bug.
	data := slices.Clone(b[:bh.Length+1])
	if found, index, bit := checkSliceForBitFlip(data, fn, expectedChecksum); found {
		err = errors.Wrapf(err, "bit flip found: byte index %d. got: %x. want: %x",
			errors.Safe(index), data[index], data[index]^(1<<bit))
	}
	return err
}

// bitFlipSearchLimit bounds the number of bytes checkSliceForBitFlip tries.
const bitFlipSearchLimit = 40 << 10

// checkSliceForBitFlip flips each bit of data in turn, looking for a single
// bit whose flip makes data match the expected checksum.
func checkSliceForBitFlip(
	data []byte, computeChecksum func([]byte) uint32, expectedChecksum uint32,
) (found bool, index int, bit int) {
	for i := 0; i < min(len(data), bitFlipSearchLimit); i++ {
		for b := 0; b < 8; b++ {
			data[i] ^= 1 << b
			match := computeChecksum(data) == expectedChecksum
			data[i] ^= 1 << b
			if match {
				return true, i, b
			}
		}
	}
	return false, 0, 0
}
