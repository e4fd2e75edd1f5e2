// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import (
	"bytes"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/sstkv/internal/base"
	"github.com/cockroachdb/sstkv/internal/compression"
	"github.com/cockroachdb/sstkv/sstable/block"
)

// Writable is the destination of a table. vfs.File implements it.
type Writable interface {
	io.Writer
	io.Closer
	Sync() error
}

// WriterMetadata holds info about a finished table.
type WriterMetadata struct {
	// Size is the size of the table file in bytes.
	Size        uint64
	SmallestKey base.InternalKey
	LargestKey  base.InternalKey
	Properties  Properties
}

// Writer is a table writer.
type Writer struct {
	f   Writable
	err error
	// The following fields are copied from the options.
	blockSize    int
	compare      base.Compare
	separator    base.Separator
	successor    base.Successor
	formatKey    base.FormatKey
	filterPolicy base.FilterPolicy
	compression  compression.Setting
	checksum     block.ChecksumType

	// offset is the offset within the file at which the next block will be
	// written.
	offset uint64
	meta   WriterMetadata
	props  Properties

	dataBlock  block.Writer
	indexBlock block.Writer
	// dataMaker frames data and index blocks, metaMaker the uncompressed meta
	// blocks.
	dataMaker block.PhysicalBlockMaker
	metaMaker block.PhysicalBlockMaker
	filter    base.FilterWriter

	// pendingBH is the handle of the last flushed data block. Its index entry
	// is added once the first key of the next block is known, so that the
	// index key can be shortened to a separator.
	pendingBH  block.Handle
	hasPending bool
	lastKey    []byte
	keyBuf     []byte
	indexKey   []byte
}

// NewWriter returns a new table writer for the file. Closing the writer will
// close the file.
func NewWriter(f Writable, o WriterOptions) *Writer {
	o = o.ensureDefaults()
	icmp := base.InternalComparer(o.Comparer)
	w := &Writer{
		f:            f,
		blockSize:    o.BlockSize,
		compare:      icmp.Compare,
		separator:    icmp.Separator,
		successor:    icmp.Successor,
		formatKey:    o.Comparer.FormatKey,
		filterPolicy: o.FilterPolicy,
		compression:  o.Compression,
		checksum:     o.Checksum,
	}
	if f == nil {
		w.err = errors.New("sstkv: nil file")
		return w
	}
	w.dataBlock.Init(icmp.Compare, o.BlockRestartInterval)
	w.indexBlock.Init(icmp.Compare, o.IndexRestartInterval)
	w.dataMaker.Init(o.Compression, o.Checksum)
	w.metaMaker.Init(compression.NoCompression, o.Checksum)
	if o.FilterPolicy != nil {
		w.filter = o.FilterPolicy.NewWriter()
	}
	w.props.ComparerName = o.Comparer.Name
	w.props.CompressionName = o.Compression.String()
	w.props.ChecksumName = o.Checksum.String()
	if o.FilterPolicy != nil {
		w.props.FilterPolicyName = o.FilterPolicy.Name()
	}
	return w
}

// Set sets the value for the given key. The sequence number is set to 0.
// For a given Writer, the keys passed to Set must be in strictly increasing
// order.
func (w *Writer) Set(key, value []byte) error {
	return w.Add(base.MakeInternalKey(key, 0, base.InternalKeyKindSet), value)
}

// Delete deletes the value for the given key. The sequence number is set to
// 0.
func (w *Writer) Delete(key []byte) error {
	return w.Add(base.MakeInternalKey(key, 0, base.InternalKeyKindDelete), nil)
}

// Add adds a key/value pair to the table being written. For a given Writer,
// the keys passed to Add must be in strictly increasing internal key order.
func (w *Writer) Add(key base.InternalKey, value []byte) error {
	if w.err != nil {
		return w.err
	}
	w.keyBuf = key.AppendEncoded(w.keyBuf[:0])
	if w.props.NumEntries > 0 && w.compare(w.lastKey, w.keyBuf) >= 0 {
		w.err = errors.Errorf("sstkv: keys must be added in strictly increasing order: %s, %s",
			base.FormatInternalKey(w.lastKey, w.formatKey), key.Pretty(w.formatKey))
		return w.err
	}

	if !w.dataBlock.Empty() && w.dataBlock.EstimatedSize() >= w.blockSize {
		if err := w.flush(); err != nil {
			return err
		}
	}
	w.addPendingIndexEntry(w.keyBuf)

	if w.filter != nil {
		w.filter.AddKey(key.UserKey)
	}
	w.dataBlock.Add(w.keyBuf, value)
	w.lastKey = append(w.lastKey[:0], w.keyBuf...)

	if w.props.NumEntries == 0 {
		w.meta.SmallestKey = key.Clone()
		w.props.SmallestSeqNum = uint64(key.SeqNum())
		w.props.LargestSeqNum = uint64(key.SeqNum())
	}
	w.props.SmallestSeqNum = min(w.props.SmallestSeqNum, uint64(key.SeqNum()))
	w.props.LargestSeqNum = max(w.props.LargestSeqNum, uint64(key.SeqNum()))
	w.props.NumEntries++
	if key.Kind() == base.InternalKeyKindDelete {
		w.props.NumDeletions++
	}
	w.props.RawKeySize += uint64(key.Size())
	w.props.RawValueSize += uint64(len(value))
	return nil
}

// addPendingIndexEntry adds the index entry of the previously flushed data
// block, keyed by a separator between that block's last key and nextKey. A nil
// nextKey means the flushed block is the last one.
func (w *Writer) addPendingIndexEntry(nextKey []byte) {
	if !w.hasPending {
		return
	}
	if nextKey == nil {
		w.indexKey = w.successor(w.indexKey[:0], w.lastKey)
	} else {
		w.indexKey = w.separator(w.indexKey[:0], w.lastKey, nextKey)
	}
	w.indexBlock.Add(w.indexKey, w.pendingBH.Append(nil))
	w.hasPending = false
}

// flush writes the current data block.
func (w *Writer) flush() error {
	if w.dataBlock.Empty() {
		return nil
	}
	bh, err := w.writeBlock(w.dataBlock.Finish(), &w.dataMaker)
	if err != nil {
		w.err = err
		return err
	}
	w.pendingBH = bh
	w.hasPending = true
	w.props.NumDataBlocks++
	w.props.DataSize += bh.Length + block.TrailerLen
	w.dataBlock.Reset()
	return nil
}

// writeBlock frames b with maker, writes it and returns its handle.
func (w *Writer) writeBlock(b []byte, maker *block.PhysicalBlockMaker) (block.Handle, error) {
	phys := maker.Make(b)
	bh := block.Handle{Offset: w.offset, Length: uint64(len(phys) - block.TrailerLen)}
	if _, err := w.f.Write(phys); err != nil {
		return block.Handle{}, base.MarkIOError(err)
	}
	w.offset += uint64(len(phys))
	return bh, nil
}

// EstimatedSize returns the estimated size of the table if it were finished
// now.
func (w *Writer) EstimatedSize() uint64 {
	return w.offset + uint64(w.dataBlock.EstimatedSize()) + uint64(w.indexBlock.EstimatedSize()) + footerLen
}

// Close finishes writing the table and closes the underlying file that the
// table was written to.
func (w *Writer) Close() (err error) {
	defer func() {
		if w.f == nil {
			return
		}
		if err1 := w.f.Close(); err1 != nil && err == nil {
			err = base.MarkIOError(err1)
		}
		w.f = nil
		w.dataMaker.Close()
		w.metaMaker.Close()
		if err == nil {
			w.err = errors.New("sstkv: writer is closed")
		} else {
			w.err = err
		}
	}()
	if w.err != nil {
		return w.err
	}
	if err := w.flush(); err != nil {
		return err
	}
	w.addPendingIndexEntry(nil)

	var metaindex block.Writer
	metaindex.Init(bytes.Compare, 1)

	if w.filter != nil {
		data := w.filter.Finish(nil)
		bh, err := w.writeBlock(data, &w.metaMaker)
		if err != nil {
			return err
		}
		w.props.FilterSize = bh.Length
		metaindex.Add([]byte(metaFilterPrefix+w.filterPolicy.Name()), bh.Append(nil))
	}

	index := w.indexBlock.Finish()
	w.props.IndexSize = uint64(len(index))

	propsBH, err := w.writeBlock(w.props.save(), &w.metaMaker)
	if err != nil {
		return err
	}
	metaindex.Add([]byte(metaPropertiesName), propsBH.Append(nil))

	metaindexBH, err := w.writeBlock(metaindex.Finish(), &w.metaMaker)
	if err != nil {
		return err
	}
	indexBH, err := w.writeBlock(index, &w.dataMaker)
	if err != nil {
		return err
	}

	f := footer{
		checksum:    w.checksum,
		metaindexBH: metaindexBH,
		indexBH:     indexBH,
	}
	if _, err := w.f.Write(f.encode(nil)); err != nil {
		return base.MarkIOError(err)
	}
	w.offset += footerLen
	if err := w.f.Sync(); err != nil {
		return base.MarkIOError(err)
	}

	w.meta.Size = w.offset
	if w.props.NumEntries > 0 {
		largest, err := base.DecodeInternalKey(w.lastKey)
		if err != nil {
			return err
		}
		w.meta.LargestKey = largest.Clone()
	}
	w.meta.Properties = w.props
	return nil
}

// Metadata returns the metadata for the finished table. Only valid to call
// after the table has been finished.
func (w *Writer) Metadata() (*WriterMetadata, error) {
	if w.f != nil {
		return nil, errors.New("sstkv: writer is not closed")
	}
	return &w.meta, nil
}
