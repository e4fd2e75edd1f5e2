// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

/*
Package sstable implements readers and writers of sstkv tables.

Tables are either opened for reading or created for writing but not both.

A reader can create iterators, which allow seeking and next/prev
iteration. There may be multiple key/value pairs that have the same user key
and different sequence numbers.

A reader can be used concurrently. Multiple goroutines can call NewIter
concurrently, and each iterator can run concurrently with other iterators.
However, any particular iterator should not be used concurrently, and iterators
should not be used once a reader is closed.

A writer writes key/value pairs in increasing internal key order, and cannot be
used concurrently. A table cannot be read until the writer has finished.

To return the value for a key:

	r, err := sstable.NewReader(file, sstable.ReaderOptions{})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.Get(key)

To count the number of entries in a table:

	i, n := r.NewIter(), 0
	for i.First(); i.Valid(); i.Next() {
		n++
	}
	if err := i.Close(); err != nil {
		return 0, err
	}
	return n, nil

To write a table with three entries:

	w := sstable.NewWriter(file, sstable.WriterOptions{})
	if err := w.Set([]byte("apple"), []byte("red")); err != nil {
		w.Close()
		return err
	}
	if err := w.Set([]byte("banana"), []byte("yellow")); err != nil {
		w.Close()
		return err
	}
	if err := w.Set([]byte("cherry"), []byte("red")); err != nil {
		w.Close()
		return err
	}
	return w.Close()
*/
package sstable // import "github.com/cockroachdb/sstkv/sstable"

import (
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/sstkv/internal/base"
	"github.com/cockroachdb/sstkv/sstable/block"
)

/*
The table file format looks like:

<start_of_file>
[data block 0]
[data block 1]
...
[data block N-1]
[filter block]
[properties block]
[metaindex block]
[index block]
[footer]
<end_of_file>

Each block consists of some data and a 5 byte trailer: a 1 byte compression
type and a 4 byte checksum of the (possibly compressed) data. The checksum
algorithm is recorded in the footer.

The decompressed block data consists of a sequence of key/value entries
followed by a trailer. Each key is encoded as a shared prefix length and a
remainder string. For example, if two adjacent keys are "tweedledee" and
"tweedledum", then the second key would be encoded as {8, "um"}. The shared
prefix length is varint encoded. The remainder string and the value are
encoded as a varint-encoded length followed by the literal contents. To
continue the example, suppose that the key "tweedledum" mapped to the value
"socks". The encoded key/value entry would be: "\x08\x02\x05umsocks".

Every block has a restart interval I. Every I'th key/value entry in that block
is called a restart point, and shares no key prefix with the previous entry.
If a block has P restart points, then the block trailer consists of (P+1)*4
bytes: (P+1) little-endian uint32 values. The first P of these uint32 values
are the block offsets of each restart point. The final uint32 value is P
itself.

An index block is a block with N key/value entries. The i'th value is the
encoded block handle of the i'th data block. The i'th key is a separator for
i < N-1, and a successor for i == N-1. The separator between blocks i and i+1
is a key that is >= every key in block i and is < every key in block i+1. The
successor for the final block is a key that is >= every key in block N-1.

The metaindex block maps the names of the meta blocks (filter and properties)
to their block handles.

A block handle is an offset and a length; the length does not include the 5
byte trailer. Both numbers are varint-encoded, with no padding between the two
values.
*/

const (
	// footer format:
	//    checksum type (1 byte)
	//    metaindex handle (varint64 offset, varint64 size)
	//    index handle     (varint64 offset, varint64 size)
	//    <padding> to make the total size 2 * block.MaxHandleLen + 1
	//    footer version (4 bytes)
	//    table_magic_number (8 bytes)
	footerLen     = 1 + 2*block.MaxHandleLen + 4 + 8
	tableMagic    = "\xf7\xcf\xf4\x85\xb7\x41\xe2\x88"
	magicOffset   = footerLen - len(tableMagic)
	versionOffset = magicOffset - 4

	formatVersion = 2

	metaPropertiesName = "rocksdb.properties"
	metaFilterPrefix   = "fullfilter."
)

type footer struct {
	checksum    block.ChecksumType
	metaindexBH block.Handle
	indexBH     block.Handle
	footerBH    block.Handle
}

// readFooter reads and decodes the footer at the end of a table of the given
// size.
func readFooter(r io.ReaderAt, size int64) (footer, error) {
	var f footer
	if size < footerLen {
		return f, base.CorruptionErrorf("sstkv/table: invalid table (file size %d is too small)", errors.Safe(size))
	}
	buf := make([]byte, footerLen)
	off := size - footerLen
	if n, err := r.ReadAt(buf, off); n < len(buf) {
		if err == nil || errors.Is(err, io.EOF) {
			return f, base.CorruptionErrorf("sstkv/table: invalid table (footer too short): %d", errors.Safe(n))
		}
		return f, base.MarkIOError(errors.Wrap(err, "sstkv/table: invalid table (could not read footer)"))
	}
	if string(buf[magicOffset:]) != tableMagic {
		return f, base.CorruptionErrorf("sstkv/table: invalid table (bad magic number: 0x%x)", buf[magicOffset:])
	}
	if v := binary.LittleEndian.Uint32(buf[versionOffset:magicOffset]); v != formatVersion {
		return f, base.NotSupportedf("sstkv/table: unsupported format version %d", errors.Safe(v))
	}
	f.footerBH = block.Handle{Offset: uint64(off), Length: footerLen}
	f.checksum = block.ChecksumType(buf[0])
	switch f.checksum {
	case block.ChecksumTypeNone, block.ChecksumTypeCRC32c, block.ChecksumTypeXXHash64:
	default:
		return f, base.CorruptionErrorf("sstkv/table: unsupported checksum type %d", errors.Safe(uint8(f.checksum)))
	}

	handles := buf[1:versionOffset]
	var n int
	f.metaindexBH, n = block.DecodeHandle(handles)
	if n == 0 {
		return f, base.CorruptionErrorf("sstkv/table: invalid table (bad metaindex block handle)")
	}
	f.indexBH, n = block.DecodeHandle(handles[n:])
	if n == 0 {
		return f, base.CorruptionErrorf("sstkv/table: invalid table (bad index block handle)")
	}
	if end := f.indexBH.Offset + f.indexBH.Length + block.TrailerLen; end > uint64(off) {
		return f, base.CorruptionErrorf("sstkv/table: invalid table (index block %s overlaps footer)", errors.Safe(f.indexBH))
	}
	return f, nil
}

// encode appends the encoded footer to buf.
func (f footer) encode(buf []byte) []byte {
	start := len(buf)
	buf = append(buf, make([]byte, footerLen)...)
	out := buf[start:]
	out[0] = byte(f.checksum)
	n := 1
	n += f.metaindexBH.EncodeVarints(out[n:])
	f.indexBH.EncodeVarints(out[n:])
	binary.LittleEndian.PutUint32(out[versionOffset:], formatVersion)
	copy(out[magicOffset:], tableMagic)
	return buf
}
