// Copyright 2019 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tool

import (
	"bytes"
	"strings"
	"testing"

	"github.com/cockroachdb/crlib/crstrings"
	"github.com/cockroachdb/datadriven"
	"github.com/cockroachdb/sstkv/bloom"
	"github.com/cockroachdb/sstkv/internal/base"
	"github.com/cockroachdb/sstkv/sstable"
	"github.com/cockroachdb/sstkv/vfs"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// buildTable writes a table holding the "key#seq,KIND value" lines of input.
func buildTable(t *testing.T, fs vfs.FS, name string, o sstable.WriterOptions, input string) {
	f, err := fs.Create(name)
	require.NoError(t, err)
	w := sstable.NewWriter(f, o)
	for _, line := range crstrings.Lines(input) {
		k, v, _ := strings.Cut(line, " ")
		require.NoError(t, w.Add(base.ParseInternalKey(k), []byte(v)))
	}
	require.NoError(t, w.Close())
}

// runTool executes the tool with the given arguments, returning the combined
// stdout and stderr output.
func runTool(fs vfs.FS, args ...string) (string, error) {
	var buf bytes.Buffer
	c := &cobra.Command{}
	c.AddCommand(New(FS(fs), Logger(base.NoopLogger{})).Commands...)
	c.SetArgs(args)
	c.SetOut(&buf)
	c.SetErr(&buf)
	err := c.Execute()
	return buf.String(), err
}

func TestDataDriven(t *testing.T) {
	fs := vfs.NewMem()
	datadriven.RunTest(t, "testdata/sstable", func(t *testing.T, d *datadriven.TestData) string {
		switch d.Cmd {
		case "build":
			o := sstable.WriterOptions{FilterPolicy: bloom.FilterPolicy(10)}
			if d.HasArg("block-size") {
				d.ScanArgs(t, "block-size", &o.BlockSize)
			}
			buildTable(t, fs, d.CmdArgs[0].Key, o, d.Input)
			return ""

		default:
			args := []string{d.Cmd}
			for _, arg := range d.CmdArgs {
				args = append(args, arg.String())
			}
			out, err := runTool(fs, args...)
			if err != nil {
				return err.Error()
			}
			return out
		}
	})
}
