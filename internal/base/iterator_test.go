// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func TestCleanupsRunInOrder(t *testing.T) {
	var order []int
	it := NewEmptyIter()
	for i := 0; i < 3; i++ {
		it.RegisterCleanup(func() { order = append(order, i) })
	}
	require.NoError(t, it.Close())
	require.Equal(t, []int{0, 1, 2}, order)

	// Closing again or registering after close are programming errors.
	require.Panics(t, func() { _ = it.Close() })
	require.Panics(t, func() { it.RegisterCleanup(func() {}) })
	require.Equal(t, []int{0, 1, 2}, order)
}

func TestCleanupsNil(t *testing.T) {
	var c Cleanups
	require.Panics(t, func() { c.RegisterCleanup(nil) })
	require.False(t, c.Closed())
	c.RunCleanups()
	require.True(t, c.Closed())
	require.Panics(t, c.AssertNotClosed)
}

func TestErrorIter(t *testing.T) {
	err := errors.New("boom")
	it := NewErrorIter(err)
	it.First()
	require.False(t, it.Valid())
	it.SeekGE([]byte("a"))
	require.False(t, it.Valid())
	require.Equal(t, err, it.Error())
	require.Panics(t, it.Next)
	require.Equal(t, err, it.Close())
}
