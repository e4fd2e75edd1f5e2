// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import "github.com/cockroachdb/errors"

// ErrNotFound means that a get or delete call did not find the requested key.
var ErrNotFound = errors.New("sstkv: not found")

// ErrCorruption is a marker to indicate that data in a file (WAL, MANIFEST,
// sstable) isn't in the expected format.
var ErrCorruption = errors.New("sstkv: corruption")

// ErrIOError is a marker for failures reported by the file system.
var ErrIOError = errors.New("sstkv: I/O error")

// ErrInvalidArgument is a marker for malformed caller input.
var ErrInvalidArgument = errors.New("sstkv: invalid argument")

// ErrNotSupported is a marker for optional features that are not implemented.
var ErrNotSupported = errors.New("sstkv: not supported")

// MarkCorruptionError marks given error as a corruption error.
func MarkCorruptionError(err error) error {
	if errors.Is(err, ErrCorruption) {
		return err
	}
	return errors.Mark(err, ErrCorruption)
}

// IsCorruptionError returns true if the given error indicates corruption.
func IsCorruptionError(err error) bool {
	return errors.Is(err, ErrCorruption)
}

// CorruptionErrorf formats according to a format specifier and returns
// the string as an error value that is marked as a corruption error.
func CorruptionErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrCorruption)
}

// MarkIOError marks an error returned by the file system.
func MarkIOError(err error) error {
	if err == nil || errors.Is(err, ErrIOError) {
		return err
	}
	return errors.Mark(err, ErrIOError)
}

// InvalidArgumentf returns an error marked with ErrInvalidArgument.
func InvalidArgumentf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalidArgument)
}

// NotSupportedf returns an error marked with ErrNotSupported.
func NotSupportedf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrNotSupported)
}
