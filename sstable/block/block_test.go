// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package block

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/cockroachdb/sstkv/internal/base"
	"github.com/cockroachdb/sstkv/internal/compression"
	"github.com/stretchr/testify/require"
)

func TestHandleRoundTrip(t *testing.T) {
	for _, h := range []Handle{
		{0, 0},
		{1, 127},
		{128, 1 << 20},
		{1<<63 - 1, 1<<64 - 1},
	} {
		buf := make([]byte, MaxHandleLen)
		n := h.EncodeVarints(buf)
		require.Equal(t, buf[:n], h.Append(nil))

		got, m := DecodeHandle(buf[:n])
		require.Equal(t, n, m)
		require.Equal(t, h, got)

		got, err := DecodeHandleExact(buf[:n])
		require.NoError(t, err)
		require.Equal(t, h, got)
	}

	_, n := DecodeHandle([]byte{0x80})
	require.Zero(t, n)
	_, err := DecodeHandleExact(append(Handle{1, 2}.Append(nil), 0))
	require.True(t, base.IsCorruptionError(err))
}

func TestChecksumTypeString(t *testing.T) {
	for _, ct := range []ChecksumType{ChecksumTypeNone, ChecksumTypeCRC32c, ChecksumTypeXXHash64} {
		got, ok := ParseChecksumType(ct.String())
		require.True(t, ok)
		require.Equal(t, ct, got)
	}
	require.Equal(t, "unknown(9)", ChecksumType(9).String())
}

func TestPhysicalBlockRoundTrip(t *testing.T) {
	var w Writer
	w.Init(bytes.Compare, 4)
	for i := 0; i < 500; i++ {
		w.Add([]byte(fmt.Sprintf("key-%05d", i)), bytes.Repeat([]byte{'v'}, 20))
	}
	data := bytes.Clone(w.Finish())

	for _, setting := range []compression.Setting{
		compression.NoCompression,
		compression.SnappyCompression,
		compression.ZstdLevel3,
		compression.MinLZFastest,
	} {
		for _, ct := range []ChecksumType{ChecksumTypeNone, ChecksumTypeCRC32c, ChecksumTypeXXHash64} {
			t.Run(fmt.Sprintf("%s/%s", setting, ct), func(t *testing.T) {
				var m PhysicalBlockMaker
				m.Init(setting, ct)
				defer m.Close()

				// Place the block after a few bytes of padding.
				file := append([]byte("pad"), m.Make(data)...)
				bh := Handle{Offset: 3, Length: uint64(len(file) - 3 - TrailerLen)}
				if setting.Algorithm != compression.None {
					require.Less(t, int(bh.Length), len(data))
				}

				_, algo, err := ReadRaw(bytes.NewReader(file), bh, ct)
				require.NoError(t, err)
				require.Equal(t, setting.Algorithm, algo)

				got, err := Read(bytes.NewReader(file), bh, ct)
				require.NoError(t, err)
				require.Equal(t, data, got)
			})
		}
	}
}

func TestPhysicalBlockIncompressible(t *testing.T) {
	var m PhysicalBlockMaker
	m.Init(compression.SnappyCompression, ChecksumTypeCRC32c)
	defer m.Close()
	data := []byte("abcdefgh")
	phys := m.Make(data)
	require.Equal(t, byte(compression.None), phys[len(data)])
	require.Equal(t, data, phys[:len(data)])
}

func TestChecksumMismatch(t *testing.T) {
	var m PhysicalBlockMaker
	m.Init(compression.NoCompression, ChecksumTypeCRC32c)
	defer m.Close()
	data := []byte("hello world")
	phys := bytes.Clone(m.Make(data))
	bh := Handle{Offset: 0, Length: uint64(len(data))}

	// Flip a single bit.
	phys[4] ^= 0x10
	_, err := Read(bytes.NewReader(phys), bh, ChecksumTypeCRC32c)
	require.Error(t, err)
	require.True(t, base.IsCorruptionError(err))
	require.Contains(t, err.Error(), "checksum mismatch")
	require.Contains(t, err.Error(), "bit flip found: byte index 4")
}

func TestReadTruncated(t *testing.T) {
	var m PhysicalBlockMaker
	m.Init(compression.NoCompression, ChecksumTypeCRC32c)
	defer m.Close()
	phys := m.Make([]byte("hello world"))
	bh := Handle{Offset: 0, Length: 11}
	_, err := Read(bytes.NewReader(phys[:len(phys)-1]), bh, ChecksumTypeCRC32c)
	require.True(t, base.IsCorruptionError(err))
	require.Contains(t, err.Error(), "truncated")
}

func TestReadUnknownCompression(t *testing.T) {
	c := Checksummer{Type: ChecksumTypeXXHash64}
	data := []byte("hello")
	tr := MakeTrailer(42, c.Checksum(data, 42))
	phys := append(bytes.Clone(data), tr[:]...)
	_, err := Read(bytes.NewReader(phys), Handle{Length: 5}, ChecksumTypeXXHash64)
	require.True(t, base.IsCorruptionError(err))
}
