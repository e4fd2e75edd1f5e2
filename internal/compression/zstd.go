// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package compression

import (
	"encoding/binary"

	"github.com/cockroachdb/sstkv/internal/base"
)

// Zstd payloads are prefixed with a uvarint holding the decompressed length.

func zstdDecompressedLen(b []byte) (int, error) {
	decodedLenU64, varIntLen := binary.Uvarint(b)
	if varIntLen <= 0 {
		return 0, base.CorruptionErrorf("sstkv: compression block has invalid length")
	}
	return int(decodedLenU64), nil
}

// zstdPrefix writes the length prefix for a block of srcLen bytes into dst,
// growing dst if necessary, and returns dst and the prefix length.
func zstdPrefix(dst []byte, srcLen int) ([]byte, int) {
	if cap(dst) < binary.MaxVarintLen64 {
		dst = make([]byte, binary.MaxVarintLen64)
	}
	dst = dst[:binary.MaxVarintLen64]
	return dst, binary.PutUvarint(dst, uint64(srcLen))
}
