// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"bytes"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/cockroachdb/crlib/crbytes"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/sstkv/internal/invariants"
)

// Compare returns -1, 0, or +1 depending on whether a is 'less than', 'equal
// to' or 'greater than' b. The two arguments can only be 'equal' if their
// contents are exactly equal. Furthermore, the empty slice must be 'less than'
// any non-empty slice.
type Compare func(a, b []byte) int

// Equal returns true if a and b are equivalent.
type Equal func(a, b []byte) bool

// FormatKey returns a formatter for the user key.
type FormatKey func(key []byte) fmt.Formatter

// DefaultFormatter is the default implementation of user key formatting:
// non-ASCII data is formatted as escaped hexadecimal values.
var DefaultFormatter FormatKey = func(key []byte) fmt.Formatter {
	return FormatBytes(key)
}

// Separator is used to construct SSTable index blocks. A trivial implementation
// is `return append(dst, a...)`, but appending fewer bytes leads to smaller
// SSTables.
//
// Given keys a, b for which Compare(a, b) < 0, Separator produces a key k such
// that:
//
// 1. Compare(a, k) <= 0, and
// 2. Compare(k, b) < 0.
//
// For example, if a and b are the []byte equivalents of the strings "black" and
// "blue", then the function may append "blb" to dst.
type Separator func(dst, a, b []byte) []byte

// Successor appends to dst a shortened key k given a key a such that
// Compare(a, k) <= 0. A simple implementation may return a unchanged.
// The appended key k must be valid to pass to Compare.
type Successor func(dst, a []byte) []byte

// Comparer defines a total ordering over the space of []byte keys: a 'less
// than' relationship.
type Comparer struct {
	Compare   Compare
	Equal     Equal
	Separator Separator
	Successor Successor

	// FormatKey is optional.
	FormatKey FormatKey

	// Name is the name of the comparer.
	//
	// The on-disk format stores the comparer name, and opening a table with a
	// different comparer from the one it was created with will result in an
	// error.
	Name string
}

// EnsureDefaults ensures that all non-optional fields are set.
//
// If c is nil, returns DefaultComparer.
//
// If any fields need to be set, returns a modified copy of c.
func (c *Comparer) EnsureDefaults() *Comparer {
	if c == nil {
		return DefaultComparer
	}
	if c.Compare == nil || c.Separator == nil || c.Successor == nil || c.Name == "" {
		panic("invalid Comparer: mandatory field not set")
	}
	if c.Equal != nil && c.FormatKey != nil {
		return c
	}
	n := &Comparer{}
	*n = *c
	if n.Equal == nil {
		n.Equal = func(a, b []byte) bool {
			return n.Compare(a, b) == 0
		}
	}
	if n.FormatKey == nil {
		n.FormatKey = DefaultFormatter
	}
	return n
}

// DefaultComparer is the default implementation of the Comparer interface.
// It uses the natural ordering, consistent with bytes.Compare.
var DefaultComparer = &Comparer{
	Compare:   bytes.Compare,
	Equal:     bytes.Equal,
	FormatKey: DefaultFormatter,

	Separator: func(dst, a, b []byte) []byte {
		i, n := SharedPrefixLen(a, b), len(dst)
		dst = append(dst, a...)

		min := len(a)
		if min > len(b) {
			min = len(b)
		}
		if i >= min {
			// Do not shorten if one string is a prefix of the other.
			return dst
		}

		if a[i] >= b[i] {
			// b is smaller than a or a is already the shortest possible.
			return dst
		}

		if i < len(b)-1 || a[i]+1 < b[i] {
			i += n
			dst[i]++
			return dst[:i+1]
		}

		i += n + 1
		for ; i < len(dst); i++ {
			if dst[i] != 0xff {
				dst[i]++
				return dst[:i+1]
			}
		}
		return dst
	},

	Successor: func(dst, a []byte) (ret []byte) {
		for i := 0; i < len(a); i++ {
			if a[i] != 0xff {
				dst = append(dst, a[:i+1]...)
				dst[len(dst)-1]++
				return dst
			}
		}
		// a is a run of 0xffs, leave it alone.
		return append(dst, a...)
	},

	// This name is part of the C++ Level-DB implementation's default file
	// format, and should not be changed.
	Name: "leveldb.BytewiseComparator",
}

// SharedPrefixLen returns the largest i such that a[:i] equals b[:i].
// This function can be useful in implementing the Comparer interface.
func SharedPrefixLen(a, b []byte) int {
	return crbytes.CommonPrefix(a, b)
}

// InternalComparer returns a Comparer over encoded internal keys derived from
// the user key comparer. Keys are ordered by user key ascending, then by
// trailer (sequence number, then kind) descending.
//
// Separator and Successor shorten the user key with the user comparer and,
// when the result is shorter and strictly greater, re-append a
// (SeqNumMax, InternalKeyKindSeek) trailer so that the shortened key sorts
// after every stored key sharing its user key.
func InternalComparer(user *Comparer) *Comparer {
	user = user.EnsureDefaults()
	c := &Comparer{
		Name:      "leveldb.InternalKeyComparator",
		FormatKey: user.FormatKey,
	}
	c.Compare = func(a, b []byte) int {
		ua, ta := splitInternalKey(a)
		ub, tb := splitInternalKey(b)
		if x := user.Compare(ua, ub); x != 0 {
			return x
		}
		switch {
		case ta > tb:
			return -1
		case ta < tb:
			return +1
		}
		return 0
	}
	c.Equal = func(a, b []byte) bool {
		return c.Compare(a, b) == 0
	}
	c.Separator = func(dst, a, b []byte) []byte {
		ua, _ := splitInternalKey(a)
		ub, _ := splitInternalKey(b)
		n := len(dst)
		dst = user.Separator(dst, ua, ub)
		sep := dst[n:]
		if len(sep) < len(ua) && user.Compare(ua, sep) < 0 {
			dst = MakeInternalKey(nil, SeqNumMax, InternalKeyKindSeek).AppendEncoded(dst)
			if invariants.Enabled {
				if r := dst[n:]; c.Compare(a, r) >= 0 || c.Compare(r, b) >= 0 {
					panic(errors.AssertionFailedf("sstkv: bad separator %q for [%q, %q)", r, a, b))
				}
			}
			return dst
		}
		return append(dst[:n], a...)
	}
	c.Successor = func(dst, a []byte) []byte {
		ua, _ := splitInternalKey(a)
		n := len(dst)
		dst = user.Successor(dst, ua)
		succ := dst[n:]
		if len(succ) < len(ua) && user.Compare(ua, succ) < 0 {
			dst = MakeInternalKey(nil, SeqNumMax, InternalKeyKindSeek).AppendEncoded(dst)
			if invariants.Enabled {
				if r := dst[n:]; c.Compare(a, r) > 0 {
					panic(errors.AssertionFailedf("sstkv: bad successor %q for %q", r, a))
				}
			}
			return dst
		}
		return append(dst[:n], a...)
	}
	return c
}

// FormatBytes formats a byte slice using hexadecimal escapes for non-ASCII
// data.
type FormatBytes []byte

const lowerhex = "0123456789abcdef"

// Format implements the fmt.Formatter interface.
func (p FormatBytes) Format(s fmt.State, c rune) {
	buf := make([]byte, 0, len(p))
	for _, b := range p {
		if b < utf8.RuneSelf && strconv.IsPrint(rune(b)) {
			buf = append(buf, b)
			continue
		}
		buf = append(buf, `\x`...)
		buf = append(buf, lowerhex[b>>4])
		buf = append(buf, lowerhex[b&0xF])
	}
	s.Write(buf)
}

// FormatInternalKey returns a formatter for an encoded internal key.
func FormatInternalKey(encodedKey []byte, f FormatKey) fmt.Formatter {
	if f == nil {
		f = DefaultFormatter
	}
	k, err := DecodeInternalKey(encodedKey)
	if err != nil {
		return FormatBytes(encodedKey)
	}
	return k.Pretty(f)
}
