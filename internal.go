// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstkv

import "github.com/cockroachdb/sstkv/internal/base"

// SeqNum exports the base.SeqNum type.
type SeqNum = base.SeqNum

// SeqNumMax exports base.SeqNumMax, the largest assignable sequence number.
const SeqNumMax = base.SeqNumMax

// InternalKeyKind exports the base.InternalKeyKind type.
type InternalKeyKind = base.InternalKeyKind

// These constants are part of the file format, and should not be changed.
const (
	InternalKeyKindDelete  = base.InternalKeyKindDelete
	InternalKeyKindSet     = base.InternalKeyKindSet
	InternalKeyKindMax     = base.InternalKeyKindMax
	InternalKeyKindInvalid = base.InternalKeyKindInvalid
)

// InternalKey exports the base.InternalKey type.
type InternalKey = base.InternalKey

// Comparer exports the base.Comparer type.
type Comparer = base.Comparer

// DefaultComparer exports the base.DefaultComparer comparer.
var DefaultComparer = base.DefaultComparer

// FilterPolicy exports the base.FilterPolicy type.
type FilterPolicy = base.FilterPolicy

// Logger exports the base.Logger type.
type Logger = base.Logger

// FileNum exports the base.FileNum type.
type FileNum = base.FileNum

// MakeInternalKey constructs an internal key from a specified user key,
// sequence number and kind.
func MakeInternalKey(userKey []byte, seqNum SeqNum, kind InternalKeyKind) InternalKey {
	return base.MakeInternalKey(userKey, seqNum, kind)
}

type internalIterator = base.InternalIterator

// ErrNotFound is returned when a lookup finds no live value for a key.
var ErrNotFound = base.ErrNotFound

// IsCorruptionError returns true if the given error indicates corruption of
// a table or batch.
func IsCorruptionError(err error) bool {
	return base.IsCorruptionError(err)
}
