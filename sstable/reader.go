// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/sstkv/internal/base"
	"github.com/cockroachdb/sstkv/internal/cache"
	"github.com/cockroachdb/sstkv/sstable/block"
)

// Readable is the source of a table. vfs.File implements it.
type Readable interface {
	io.ReaderAt
	io.Closer
	Stat() (os.FileInfo, error)
}

// Reader is a table reader.
type Reader struct {
	f       Readable
	opts    ReaderOptions
	cacheID uint64
	err     error
	footer  footer
	// index holds the decoded index block for the lifetime of the reader.
	index      []byte
	filter     *tableFilterReader
	comparer   *base.Comparer
	icmp       *base.Comparer
	Properties Properties
}

// NewReader returns a new table reader for the file. Closing the reader will
// close the file. If NewReader fails the file is closed before returning.
func NewReader(f Readable, o ReaderOptions) (_ *Reader, err error) {
	o = o.ensureDefaults()
	r := &Reader{f: f, opts: o}
	if f == nil {
		return nil, errors.New("sstkv: nil file")
	}
	defer func() {
		if err != nil {
			r.err = err
			_ = r.Close()
		}
	}()
	if o.Cache != nil {
		r.cacheID = o.Cache.NewID()
	}

	stat, err := f.Stat()
	if err != nil {
		return nil, base.MarkIOError(errors.Wrap(err, "sstkv/table: invalid table (could not stat file)"))
	}
	if r.footer, err = readFooter(f, stat.Size()); err != nil {
		return nil, err
	}

	metaindex, err := block.Read(f, r.footer.metaindexBH, r.footer.checksum)
	if err != nil {
		return nil, errors.Wrap(err, "sstkv/table: reading metaindex block")
	}
	meta := map[string]block.Handle{}
	it, err := block.NewIter(bytes.Compare, metaindex)
	if err != nil {
		return nil, err
	}
	for it.First(); it.Valid(); it.Next() {
		bh, err := block.DecodeHandleExact(it.Value())
		if err != nil {
			_ = it.Close()
			return nil, err
		}
		meta[string(it.Key())] = bh
	}
	if err := it.Close(); err != nil {
		return nil, err
	}

	if bh, ok := meta[metaPropertiesName]; ok {
		b, err := block.Read(f, bh, r.footer.checksum)
		if err != nil {
			return nil, errors.Wrap(err, "sstkv/table: reading properties block")
		}
		if err := r.Properties.load(b); err != nil {
			return nil, err
		}
	}

	switch name := r.Properties.ComparerName; {
	case name == "" || name == o.Comparer.Name:
		r.comparer = o.Comparer
	case o.Comparers[name] != nil:
		r.comparer = o.Comparers[name].EnsureDefaults()
	default:
		return nil, base.InvalidArgumentf("sstkv/table: unknown comparer %s", errors.Safe(name))
	}
	r.icmp = base.InternalComparer(r.comparer)

	if name := r.Properties.FilterPolicyName; name != "" {
		if policy, ok := findFilterPolicy(o.Filters, name); ok {
			if bh, ok := meta[metaFilterPrefix+name]; ok {
				b, err := block.Read(f, bh, r.footer.checksum)
				if err != nil {
					return nil, errors.Wrap(err, "sstkv/table: reading filter block")
				}
				r.filter = &tableFilterReader{policy: policy, data: b, metrics: o.FilterMetrics}
			}
		}
	}

	if r.index, err = block.Read(f, r.footer.indexBH, r.footer.checksum); err != nil {
		return nil, errors.Wrap(err, "sstkv/table: reading index block")
	}
	// Validate the index block trailer up front so that NewIter cannot fail.
	if _, err := block.NewIter(r.icmp.Compare, r.index); err != nil {
		return nil, err
	}
	return r, nil
}

// Close closes the reader and the underlying file. Iterators must be closed
// before the reader.
func (r *Reader) Close() error {
	if r.f == nil {
		if r.err == nil {
			r.err = errors.New("sstkv/table: reader is closed")
		}
		return r.err
	}
	err := r.f.Close()
	r.f = nil
	r.index = nil
	r.filter = nil
	if err != nil {
		err = base.MarkIOError(err)
		r.opts.Logger.Errorf("sstkv/table: closing table: %v", err)
		return err
	}
	if r.err == nil {
		r.err = errors.New("sstkv/table: reader is closed")
		return nil
	}
	return r.err
}

// cacheKey returns the block cache key of the block at offset.
func (r *Reader) cacheKey(offset uint64) []byte {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], r.cacheID)
	binary.LittleEndian.PutUint64(buf[8:], offset)
	return buf[:]
}

// readBlock reads, verifies and decompresses the block with handle bh,
// consulting the block cache. A valid returned handle pins the block until it
// is released.
func (r *Reader) readBlock(bh block.Handle) ([]byte, cache.Handle, error) {
	c := r.opts.Cache
	if c == nil {
		b, err := block.Read(r.f, bh, r.footer.checksum)
		return b, cache.Handle{}, err
	}
	key := r.cacheKey(bh.Offset)
	if h, ok := c.Lookup(key); ok {
		return h.Value().([]byte), h, nil
	}
	b, err := block.Read(r.f, bh, r.footer.checksum)
	if err != nil {
		return nil, cache.Handle{}, err
	}
	h := c.Insert(key, b, int64(len(b)), nil)
	return b, h, nil
}

// newDataBlockIter is the BlockFunc of the reader's two-level iterators.
func (r *Reader) newDataBlockIter(locator []byte) (base.InternalIterator, error) {
	bh, err := block.DecodeHandleExact(locator)
	if err != nil {
		return nil, err
	}
	data, h, err := r.readBlock(bh)
	if err != nil {
		return nil, err
	}
	it, err := block.NewIter(r.icmp.Compare, data)
	if err != nil {
		if h.Valid() {
			r.opts.Cache.Release(h)
		}
		return nil, err
	}
	if h.Valid() {
		c := r.opts.Cache
		it.RegisterCleanup(func() { c.Release(h) })
	}
	return it, nil
}

func (r *Reader) newIndexIter() (*block.Iter, error) {
	if r.f == nil {
		return nil, errors.New("sstkv/table: reader is closed")
	}
	return block.NewIter(r.icmp.Compare, r.index)
}

// NewIter returns an iterator over the encoded internal keys of the table.
// Key returns encoded internal keys; use base.DecodeInternalKey to split them.
func (r *Reader) NewIter() base.InternalIterator {
	index, err := r.newIndexIter()
	if err != nil {
		return base.NewErrorIter(err)
	}
	return NewTwoLevelIterator(index, r.newDataBlockIter)
}

// InternalGet seeks to the first entry at or after the encoded internal key
// ikey and calls handleResult with it, provided the table may contain ikey's
// user key and such an entry exists. handleResult is not called when the
// filter rules the key out or the table holds no entry at or after ikey.
// Errors reading the table are returned, never hidden as a missing key.
func (r *Reader) InternalGet(ikey []byte, handleResult func(k, v []byte) error) error {
	if r.filter != nil {
		userKey, err := base.DecodeInternalKey(ikey)
		if err != nil {
			return err
		}
		if !r.filter.mayContain(userKey.UserKey) {
			return nil
		}
	}
	it := r.NewIter()
	it.SeekGE(ikey)
	var err error
	if it.Valid() {
		err = handleResult(it.Key(), it.Value())
	}
	return errors.CombineErrors(err, it.Close())
}

// Get returns the value of the newest entry for the user key. It returns
// base.ErrNotFound if the table holds no entry for the key or if the newest
// entry is a deletion.
func (r *Reader) Get(key []byte) (value []byte, err error) {
	var found bool
	err = r.InternalGet(base.MakeSearchKey(key, base.SeqNumMax).AppendEncoded(nil), func(k, v []byte) error {
		ik, err := base.DecodeInternalKey(k)
		if err != nil {
			return err
		}
		if !r.comparer.Equal(ik.UserKey, key) || ik.Kind() != base.InternalKeyKindSet {
			return nil
		}
		found = true
		value = make([]byte, len(v))
		copy(value, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, base.ErrNotFound
	}
	return value, nil
}

// Comparer returns the user key comparer the table is ordered by.
func (r *Reader) Comparer() *base.Comparer {
	return r.comparer
}

// Layout returns the handles of the table's blocks, in file order.
func (r *Reader) Layout() (*Layout, error) {
	index, err := r.newIndexIter()
	if err != nil {
		return nil, err
	}
	l := &Layout{
		Metaindex: r.footer.metaindexBH,
		Index:     r.footer.indexBH,
		Footer:    r.footer.footerBH,
	}
	for index.First(); index.Valid(); index.Next() {
		bh, err := block.DecodeHandleExact(index.Value())
		if err != nil {
			_ = index.Close()
			return nil, err
		}
		l.Data = append(l.Data, bh)
	}
	if err := index.Close(); err != nil {
		return nil, err
	}
	return l, nil
}

// ValidateBlockChecksums reads every block of the table and verifies its
// checksum, bypassing the block cache.
func (r *Reader) ValidateBlockChecksums() error {
	l, err := r.Layout()
	if err != nil {
		return err
	}
	for _, bh := range append(l.Data, l.Metaindex, l.Index) {
		if _, _, err := block.ReadRaw(r.f, bh, r.footer.checksum); err != nil {
			return err
		}
	}
	return nil
}

// Layout describes the block organization of a table.
type Layout struct {
	Data      []block.Handle
	Metaindex block.Handle
	Index     block.Handle
	Footer    block.Handle
}

// String returns the layout one block per line.
func (l *Layout) String() string {
	var buf strings.Builder
	for i, bh := range l.Data {
		fmt.Fprintf(&buf, "data[%d]: %s\n", i, bh)
	}
	fmt.Fprintf(&buf, "metaindex: %s\n", l.Metaindex)
	fmt.Fprintf(&buf, "index: %s\n", l.Index)
	fmt.Fprintf(&buf, "footer: %s\n", l.Footer)
	return buf.String()
}
