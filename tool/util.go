// Copyright 2019 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tool

import (
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/sstkv/internal/base"
	"github.com/cockroachdb/sstkv/sstable"
)

// key is a flag value holding a user key. The "hex:" prefix decodes the rest
// of the value as hexadecimal and the "raw:" prefix is stripped.
type key []byte

func (k *key) String() string {
	return string(*k)
}

func (k *key) Type() string {
	return "key"
}

func (k *key) Set(v string) error {
	switch {
	case strings.HasPrefix(v, "hex:"):
		b, err := hex.DecodeString(strings.TrimPrefix(v, "hex:"))
		if err != nil {
			return err
		}
		*k = key(b)

	case strings.HasPrefix(v, "raw:"):
		*k = key(strings.TrimPrefix(v, "raw:"))

	default:
		*k = key(v)
	}
	return nil
}

// formatter is a flag value selecting how keys or values are printed.
type formatter struct {
	spec string
	fn   base.FormatKey
	// Set when the spec is "pretty", in which case the comparer of each table
	// supplies the formatting.
	comparer bool
}

func (f *formatter) String() string {
	return f.spec
}

func (f *formatter) Type() string {
	return "formatter"
}

func (f *formatter) Set(spec string) error {
	f.spec = spec
	f.comparer = false
	switch spec {
	case "hex":
		f.fn = formatHex
	case "null":
		f.fn = formatNull
	case "quoted":
		f.fn = formatQuoted
	case "pretty":
		f.fn = base.DefaultFormatter
		f.comparer = true
	default:
		if strings.Count(spec, "%") != 1 {
			return errors.Errorf("unknown formatter: %q", spec)
		}
		f.fn = func(v []byte) fmt.Formatter {
			return fmtFormatter{spec: spec, v: v}
		}
	}
	return nil
}

func (f *formatter) mustSet(spec string) {
	if err := f.Set(spec); err != nil {
		panic(err)
	}
}

// setForComparer switches a "pretty" formatter to the key formatter of the
// named comparer, if it is registered and has one.
func (f *formatter) setForComparer(name string, comparers sstable.Comparers) {
	if !f.comparer {
		return
	}
	f.fn = base.DefaultFormatter
	if c := comparers[name]; c != nil && c.FormatKey != nil {
		f.fn = c.FormatKey
	}
}

type fmtFormatter struct {
	spec string
	v    []byte
}

func (f fmtFormatter) Format(s fmt.State, c rune) {
	fmt.Fprintf(s, f.spec, f.v)
}

type hexFormatter []byte

func (h hexFormatter) Format(s fmt.State, c rune) {
	fmt.Fprintf(s, "[% x]", []byte(h))
}

func formatHex(v []byte) fmt.Formatter {
	return hexFormatter(v)
}

type nullFormatter struct{}

func (nullFormatter) Format(s fmt.State, c rune) {}

func formatNull(v []byte) fmt.Formatter {
	return nullFormatter{}
}

type quotedFormatter []byte

func (q quotedFormatter) Format(s fmt.State, c rune) {
	b := strconv.AppendQuote(make([]byte, 0, len(q)+2), string(q))
	s.Write(b[1 : len(b)-1])
}

func formatQuoted(v []byte) fmt.Formatter {
	return quotedFormatter(v)
}

// formatKeyValue prints an entry of a table as "key#seq,KIND value".
func formatKeyValue(w io.Writer, fmtKey, fmtValue formatter, k base.InternalKey, value []byte) {
	needDelimiter := false
	if fmtKey.spec != "null" {
		fmt.Fprintf(w, "%s", k.Pretty(fmtKey.fn))
		needDelimiter = true
	}
	if fmtValue.spec != "null" {
		if needDelimiter {
			fmt.Fprint(w, " ")
		}
		fmt.Fprintf(w, "%s", fmtValue.fn(value))
	}
	fmt.Fprintln(w)
}
