// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package crc

import (
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCRC(t *testing.T) {
	data := []byte("hello world")
	raw := crc32.Checksum(data, crc32.MakeTable(crc32.Castagnoli))
	require.Equal(t, raw, uint32(New(data)))
	require.Equal(t, New(data).Value(), New(data[:5]).Update(data[5:]).Value())
	require.NotEqual(t, raw, New(data).Value())
	// The mask is a rotation plus a delta.
	require.Equal(t, (raw>>15|raw<<17)+0xa282ead8, New(data).Value())
}
