// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/sstkv/internal/base"
	"github.com/cockroachdb/sstkv/sstable/block"
)

const propertiesBlockRestartInterval = math.MaxInt32

var propTagMap = make(map[string]reflect.StructField)

func init() {
	t := reflect.TypeOf(Properties{})
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if tag := f.Tag.Get("prop"); tag != "" {
			switch f.Type.Kind() {
			case reflect.Uint64, reflect.String:
			default:
				panic(fmt.Sprintf("unsupported property field type: %s %s", f.Name, f.Type))
			}
			propTagMap[tag] = f
		}
	}
}

// Properties holds the table property values. The properties are
// automatically populated during table creation and loaded from the
// properties meta block when a table is opened.
type Properties struct {
	// The name of the comparer used in this table.
	ComparerName string `prop:"rocksdb.comparator"`
	// The compression algorithm used to compress blocks.
	CompressionName string `prop:"rocksdb.compression"`
	// The checksum used for blocks.
	ChecksumName string `prop:"sstkv.checksum"`
	// The name of the filter policy used in this table. Empty if no filter
	// policy is used.
	FilterPolicyName string `prop:"rocksdb.filter.policy"`
	// The number of entries in this table.
	NumEntries uint64 `prop:"rocksdb.num.entries"`
	// The number of deletion entries in this table.
	NumDeletions uint64 `prop:"rocksdb.deleted.keys"`
	// Total raw key size.
	RawKeySize uint64 `prop:"rocksdb.raw.key.size"`
	// Total raw value size.
	RawValueSize uint64 `prop:"rocksdb.raw.value.size"`
	// The number of data blocks in this table.
	NumDataBlocks uint64 `prop:"rocksdb.num.data.blocks"`
	// Total size of data blocks, including trailers.
	DataSize uint64 `prop:"rocksdb.data.size"`
	// Size of the index block, excluding its trailer.
	IndexSize uint64 `prop:"rocksdb.index.size"`
	// Size of the filter block, excluding its trailer.
	FilterSize uint64 `prop:"rocksdb.filter.size"`
	// The smallest and largest sequence numbers of the entries in the table.
	SmallestSeqNum uint64 `prop:"sstkv.seqnum.smallest"`
	LargestSeqNum  uint64 `prop:"sstkv.seqnum.largest"`

	// User collected properties, keyed by a name not known to this package.
	UserProperties map[string]string
}

// String returns the properties one per line, in tag order.
func (p *Properties) String() string {
	var buf bytes.Buffer
	v := reflect.ValueOf(*p)
	tags := make([]string, 0, len(propTagMap))
	for tag := range propTagMap {
		tags = append(tags, tag)
	}
	slices.Sort(tags)
	for _, tag := range tags {
		f := v.FieldByIndex(propTagMap[tag].Index)
		switch f.Kind() {
		case reflect.Uint64:
			fmt.Fprintf(&buf, "%s: %d\n", tag, f.Uint())
		case reflect.String:
			if f.String() == "" {
				continue
			}
			fmt.Fprintf(&buf, "%s: %s\n", tag, f.String())
		}
	}
	keys := make([]string, 0, len(p.UserProperties))
	for k := range p.UserProperties {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(&buf, "%s: %s\n", k, p.UserProperties[k])
	}
	return buf.String()
}

// load decodes the properties block. Unknown properties are kept in
// UserProperties.
func (p *Properties) load(b []byte) error {
	it, err := block.NewIter(bytes.Compare, b)
	if err != nil {
		return err
	}
	v := reflect.ValueOf(p).Elem()
	for it.First(); it.Valid(); it.Next() {
		f, ok := propTagMap[string(it.Key())]
		if !ok {
			if p.UserProperties == nil {
				p.UserProperties = make(map[string]string)
			}
			p.UserProperties[string(it.Key())] = string(it.Value())
			continue
		}
		field := v.FieldByIndex(f.Index)
		switch f.Type.Kind() {
		case reflect.Uint64:
			n, m := binary.Uvarint(it.Value())
			if m <= 0 || m != len(it.Value()) {
				_ = it.Close()
				return base.CorruptionErrorf("sstkv/table: invalid property %q", errors.Safe(it.Key()))
			}
			field.SetUint(n)
		case reflect.String:
			field.SetString(string(it.Value()))
		}
	}
	return it.Close()
}

// save encodes the properties into a block with keys in bytewise order.
func (p *Properties) save() []byte {
	m := make(map[string][]byte, len(propTagMap)+len(p.UserProperties))
	for k, v := range p.UserProperties {
		m[k] = []byte(v)
	}
	v := reflect.ValueOf(*p)
	for tag, f := range propTagMap {
		field := v.FieldByIndex(f.Index)
		switch f.Type.Kind() {
		case reflect.Uint64:
			m[tag] = binary.AppendUvarint(nil, field.Uint())
		case reflect.String:
			if field.String() != "" {
				m[tag] = []byte(field.String())
			}
		}
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var w block.Writer
	w.Init(bytes.Compare, propertiesBlockRestartInterval)
	for _, k := range keys {
		w.Add([]byte(k), m[k])
	}
	return w.Finish()
}
