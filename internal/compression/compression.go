// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package compression wraps the block compression algorithms supported by
// sstkv tables.
package compression

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/sstkv/internal/base"
	"github.com/minio/minlz"
)

// Algorithm identifies a compression algorithm. The numeric values are the
// values stored in block trailers and must not change.
type Algorithm uint8

const (
	None   Algorithm = 0
	Snappy Algorithm = 1
	Zstd   Algorithm = 7
	MinLZ  Algorithm = 8
)

// String implements fmt.Stringer.
func (a Algorithm) String() string {
	switch a {
	case None:
		return "NoCompression"
	case Snappy:
		return "Snappy"
	case Zstd:
		return "ZSTD"
	case MinLZ:
		return "MinLZ"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(a))
	}
}

// SafeFormat implements redact.SafeFormatter.
func (a Algorithm) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Print(redact.SafeString(a.String()))
}

// Valid returns true if the algorithm is one this package can decode.
func (a Algorithm) Valid() bool {
	switch a {
	case None, Snappy, Zstd, MinLZ:
		return true
	}
	return false
}

// Setting is an algorithm together with an algorithm-specific level.
type Setting struct {
	Algorithm Algorithm
	// Level is only meaningful for Zstd and MinLZ.
	Level uint8
}

func (s Setting) String() string {
	if s.Level == 0 {
		return s.Algorithm.String()
	}
	return fmt.Sprintf("%s%d", s.Algorithm, s.Level)
}

// Setting presets.
var (
	NoCompression     = Setting{Algorithm: None}
	SnappyCompression = Setting{Algorithm: Snappy}
	ZstdLevel1        = Setting{Algorithm: Zstd, Level: 1}
	ZstdLevel3        = Setting{Algorithm: Zstd, Level: 3}
	MinLZFastest      = Setting{Algorithm: MinLZ, Level: minlz.LevelFastest}
	MinLZBalanced     = Setting{Algorithm: MinLZ, Level: minlz.LevelBalanced}
)

var presets = []Setting{
	NoCompression, SnappyCompression, ZstdLevel1, ZstdLevel3, MinLZFastest, MinLZBalanced,
}

// ParseSetting parses the String form of one of the presets.
func ParseSetting(s string) (Setting, bool) {
	for _, p := range presets {
		if p.String() == s {
			return p, true
		}
	}
	return Setting{}, false
}

// Compressor compresses blocks. A Compressor is not safe for concurrent use
// and must be closed once it is no longer needed.
type Compressor interface {
	// Compress a block, appending the compressed data to dst[:0]. Returns the
	// compressed data and the setting that was actually used, which can differ
	// from the requested one.
	Compress(dst, src []byte) ([]byte, Setting)

	// Close must be called when the Compressor is no longer needed. After
	// Close is called, the Compressor must not be used again.
	Close()
}

// GetCompressor returns a Compressor for the given setting.
func GetCompressor(s Setting) Compressor {
	switch s.Algorithm {
	case None:
		return noopCompressor{}
	case Snappy:
		return snappyCompressor{}
	case Zstd:
		return getZstdCompressor(int(s.Level))
	case MinLZ:
		return getMinlzCompressor(int(s.Level))
	default:
		panic(errors.AssertionFailedf("sstkv: invalid compression setting %s", s))
	}
}

// Decompressor decompresses blocks. A Decompressor is not safe for concurrent
// use and must be closed once it is no longer needed.
type Decompressor interface {
	// DecompressInto decompresses compressed into buf. The buf slice must have
	// the exact size as the decompressed value. Callers may use
	// DecompressedLen to determine the correct size.
	DecompressInto(buf, compressed []byte) error

	// DecompressedLen returns the length of the provided block once
	// decompressed, allowing the caller to allocate a buffer exactly sized to
	// the decompressed payload.
	DecompressedLen(b []byte) (decompressedLen int, err error)

	// Close must be called when the Decompressor is no longer needed. After
	// Close is called, the Decompressor must not be used again.
	Close()
}

// GetDecompressor returns a Decompressor for the given algorithm. An
// algorithm this package does not know is reported as ErrNotSupported.
func GetDecompressor(a Algorithm) (Decompressor, error) {
	switch a {
	case None:
		return noopDecompressor{}, nil
	case Snappy:
		return snappyDecompressor{}, nil
	case Zstd:
		return getZstdDecompressor(), nil
	case MinLZ:
		return minlzDecompressor{}, nil
	default:
		return nil, base.NotSupportedf("sstkv: unknown compression algorithm %d", errors.Safe(uint8(a)))
	}
}

// Decompress decompresses src into a newly allocated buffer (or buf, when it
// has enough capacity) and returns the decompressed data.
func Decompress(a Algorithm, buf, src []byte) ([]byte, error) {
	d, err := GetDecompressor(a)
	if err != nil {
		return nil, err
	}
	defer d.Close()
	n, err := d.DecompressedLen(src)
	if err != nil {
		return nil, base.MarkCorruptionError(err)
	}
	if cap(buf) < n {
		buf = make([]byte, n)
	}
	buf = buf[:n]
	if err := d.DecompressInto(buf, src); err != nil {
		return nil, base.MarkCorruptionError(err)
	}
	return buf, nil
}
