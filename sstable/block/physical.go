// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package block

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/sstkv/internal/base"
	"github.com/cockroachdb/sstkv/internal/compression"
)

// PhysicalBlockMaker compresses blocks and frames them with a trailer holding
// the compression algorithm and a checksum.
type PhysicalBlockMaker struct {
	Compressor  compression.Compressor
	Checksummer Checksummer
	buf         []byte
}

// Init initializes the maker. Close must be called when done.
func (p *PhysicalBlockMaker) Init(setting compression.Setting, checksumType ChecksumType) {
	p.Compressor = compression.GetCompressor(setting)
	p.Checksummer = Checksummer{Type: checksumType}
}

// Close releases the compressor.
func (p *PhysicalBlockMaker) Close() {
	if p.Compressor != nil {
		p.Compressor.Close()
		p.Compressor = nil
	}
}

// Make returns the physical form of the block: the block contents (compressed
// when that saves at least 1/8th of the size) followed by the trailer. The
// returned slice is valid until the next call to Make.
func (p *PhysicalBlockMaker) Make(data []byte) []byte {
	algo := compression.None
	contents := data
	if compressed, setting := p.Compressor.Compress(p.buf[:0], data); setting.Algorithm != compression.None {
		p.buf = compressed[:0]
		if len(compressed) < len(data)-len(data)/8 {
			algo = setting.Algorithm
			contents = compressed
		}
	}
	out := make([]byte, 0, len(contents)+TrailerLen)
	out = append(out, contents...)
	trailer := MakeTrailer(byte(algo), p.Checksummer.Checksum(contents, byte(algo)))
	return append(out, trailer[:]...)
}

// ReadRaw reads the physical block with handle bh from r, verifies its
// checksum and returns the block contents and the compression algorithm
// recorded in the trailer. The contents are still compressed.
func ReadRaw(
	r io.ReaderAt, bh Handle, checksumType ChecksumType,
) (contents []byte, algo compression.Algorithm, err error) {
	b := make([]byte, bh.Length+TrailerLen)
	n, err := r.ReadAt(b, int64(bh.Offset))
	if n < len(b) {
		if err == nil || errors.Is(err, io.EOF) {
			return nil, 0, base.CorruptionErrorf("sstkv/block: block %s truncated: read %d of %d bytes",
				errors.Safe(bh), errors.Safe(n), errors.Safe(len(b)))
		}
		return nil, 0, base.MarkIOError(err)
	}
	if err := ValidateChecksum(checksumType, b, bh); err != nil {
		return nil, 0, err
	}
	algo = compression.Algorithm(b[bh.Length])
	if !algo.Valid() {
		return nil, 0, base.CorruptionErrorf("sstkv/block: block %s has unknown compression type %d",
			errors.Safe(bh), errors.Safe(byte(algo)))
	}
	return b[:bh.Length:bh.Length], algo, nil
}

// Read reads, verifies and decompresses the block with handle bh.
func Read(r io.ReaderAt, bh Handle, checksumType ChecksumType) ([]byte, error) {
	contents, algo, err := ReadRaw(r, bh, checksumType)
	if err != nil {
		return nil, err
	}
	if algo == compression.None {
		return contents, nil
	}
	decoded, err := compression.Decompress(algo, nil, contents)
	if err != nil {
		return nil, errors.Wrapf(err, "sstkv/block: decompressing block %s", errors.Safe(bh))
	}
	return decoded, nil
}
