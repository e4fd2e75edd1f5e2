// Copyright 2019 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tool

import (
	"cmp"
	"fmt"
	"io"
	"slices"

	"github.com/cockroachdb/crlib/crhumanize"
	"github.com/cockroachdb/sstkv"
	"github.com/cockroachdb/sstkv/internal/base"
	"github.com/cockroachdb/sstkv/sstable"
	"github.com/kr/pretty"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// sstableT implements sstable-level tools, including both configuration state
// and the commands themselves.
type sstableT struct {
	Root       *cobra.Command
	Check      *cobra.Command
	Layout     *cobra.Command
	List       *cobra.Command
	Properties *cobra.Command
	Scan       *cobra.Command

	// Configuration and state.
	opts      *sstkv.Options
	comparers sstable.Comparers
	filters   sstable.FilterPolicies

	// Flags.
	fmtKey   formatter
	fmtValue formatter
	start    key
	end      key
	verbose  bool
}

func newSSTable(
	opts *sstkv.Options, comparers sstable.Comparers, filters sstable.FilterPolicies,
) *sstableT {
	s := &sstableT{
		opts:      opts,
		comparers: comparers,
		filters:   filters,
	}
	s.fmtKey.mustSet("quoted")
	s.fmtValue.mustSet("[%x]")

	s.Root = &cobra.Command{
		Use:   "sstable",
		Short: "sstable introspection tools",
	}
	s.Check = &cobra.Command{
		Use:   "check <sstables>",
		Short: "verify checksums and key order",
		Long: `
Verify the checksum of every block of the sstables and check that the records
are in strictly increasing order.
`,
		Args: cobra.MinimumNArgs(1),
		Run:  s.runCheck,
	}
	s.Layout = &cobra.Command{
		Use:   "layout <sstables>",
		Short: "print sstable block layout",
		Args:  cobra.MinimumNArgs(1),
		Run:   s.runLayout,
	}
	s.List = &cobra.Command{
		Use:   "list <dirs>",
		Short: "list the sstables in a directory",
		Long: `
List the sstables in each directory in file number order, with their size and
number of records. Files that are not named like sstables are skipped.
`,
		Args: cobra.MinimumNArgs(1),
		Run:  s.runList,
	}
	s.Properties = &cobra.Command{
		Use:   "properties <sstables>",
		Short: "print sstable properties",
		Long: `
Print the properties for the sstables. The -v flag prints the decoded
properties structure instead of the summary table.
`,
		Args: cobra.MinimumNArgs(1),
		Run:  s.runProperties,
	}
	s.Scan = &cobra.Command{
		Use:   "scan <sstables>",
		Short: "print sstable records",
		Long: `
Print the records in the sstables. The sstables are scanned in command line
order which means the records will be printed in that order.
`,
		Args: cobra.MinimumNArgs(1),
		Run:  s.runScan,
	}

	s.Root.AddCommand(s.Check, s.Layout, s.List, s.Properties, s.Scan)
	s.Properties.Flags().BoolVarP(
		&s.verbose, "verbose", "v", false,
		"verbose output")

	s.Check.Flags().Var(
		&s.fmtKey, "key", "key formatter")
	s.Scan.Flags().Var(
		&s.fmtKey, "key", "key formatter")
	s.Scan.Flags().Var(
		&s.fmtValue, "value", "value formatter")
	s.Scan.Flags().Var(
		&s.start, "start", "start key for the scan")
	s.Scan.Flags().Var(
		&s.end, "end", "end key for the scan")

	return s
}

// openReader opens the named table, printing the error to stderr on failure.
func (s *sstableT) openReader(stderr io.Writer, name string) (*sstable.Reader, bool) {
	f, err := s.opts.FS.Open(name)
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return nil, false
	}
	o := s.opts.MakeReaderOptions()
	o.Comparers = s.comparers
	o.Filters = s.filters
	r, err := sstable.NewReader(f, o)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %s\n", name, err)
		return nil, false
	}
	return r, true
}

func (s *sstableT) closeReader(stderr io.Writer, r *sstable.Reader) {
	if err := r.Close(); err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
	}
}

func (s *sstableT) runCheck(cmd *cobra.Command, args []string) {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	for _, arg := range args {
		func() {
			r, ok := s.openReader(stderr, arg)
			if !ok {
				return
			}
			defer s.closeReader(stderr, r)

			fmt.Fprintf(stdout, "%s\n", arg)
			s.fmtKey.setForComparer(r.Properties.ComparerName, s.comparers)

			if err := r.ValidateBlockChecksums(); err != nil {
				fmt.Fprintf(stdout, "%s\n", err)
				return
			}

			icmp := base.InternalComparer(r.Comparer())
			iter := r.NewIter()
			var lastKey []byte
			var n int
			for iter.First(); iter.Valid(); iter.Next() {
				if lastKey != nil && icmp.Compare(lastKey, iter.Key()) >= 0 {
					fmt.Fprintf(stdout, "WARNING: OUT OF ORDER KEYS!\n")
					if s.fmtKey.spec != "null" {
						fmt.Fprintf(stdout, "    %s >= %s\n",
							base.FormatInternalKey(lastKey, s.fmtKey.fn),
							base.FormatInternalKey(iter.Key(), s.fmtKey.fn))
					}
				}
				lastKey = append(lastKey[:0], iter.Key()...)
				n++
			}
			if err := iter.Close(); err != nil {
				fmt.Fprintf(stdout, "%s\n", err)
				return
			}
			if uint64(n) != r.Properties.NumEntries {
				fmt.Fprintf(stdout, "WARNING: %d records, properties report %d\n",
					n, r.Properties.NumEntries)
				return
			}
			fmt.Fprintf(stdout, "ok: %d records\n", n)
		}()
	}
}

func (s *sstableT) runLayout(cmd *cobra.Command, args []string) {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	for _, arg := range args {
		func() {
			r, ok := s.openReader(stderr, arg)
			if !ok {
				return
			}
			defer s.closeReader(stderr, r)

			fmt.Fprintf(stdout, "%s\n", arg)
			l, err := r.Layout()
			if err != nil {
				fmt.Fprintf(stderr, "%s\n", err)
				return
			}
			fmt.Fprint(stdout, l.String())
		}()
	}
}

func (s *sstableT) runList(cmd *cobra.Command, args []string) {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	fs := s.opts.FS
	type tableFile struct {
		fileNum base.FileNum
		name    string
	}
	for _, dir := range args {
		names, err := fs.List(dir)
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
			continue
		}
		var tables []tableFile
		for _, name := range names {
			fileType, fileNum, ok := base.ParseFilename(fs, name)
			if !ok || (fileType != base.FileTypeTable && fileType != base.FileTypeOldFashionedTable) {
				continue
			}
			tables = append(tables, tableFile{fileNum: fileNum, name: name})
		}
		slices.SortStableFunc(tables, func(a, b tableFile) int {
			return cmp.Compare(a.fileNum, b.fileNum)
		})

		fmt.Fprintf(stdout, "%s\n", dir)
		for _, t := range tables {
			path := fs.PathJoin(dir, t.name)
			info, err := fs.Stat(path)
			if err != nil {
				fmt.Fprintf(stderr, "%s\n", err)
				continue
			}
			r, ok := s.openReader(stderr, path)
			if !ok {
				continue
			}
			fmt.Fprintf(stdout, "  %s  %s  %d records\n", t.name,
				crhumanize.Bytes(info.Size(), crhumanize.Compact, crhumanize.OmitI),
				r.Properties.NumEntries)
			s.closeReader(stderr, r)
		}
	}
}

func (s *sstableT) runProperties(cmd *cobra.Command, args []string) {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	for _, arg := range args {
		func() {
			r, ok := s.openReader(stderr, arg)
			if !ok {
				return
			}
			defer s.closeReader(stderr, r)

			fmt.Fprintf(stdout, "%s\n", arg)
			if s.verbose {
				pretty.Fprintf(stdout, "%# v\n", r.Properties)
				return
			}

			formatNull := func(s string) string {
				if s == "" {
					return "-"
				}
				return s
			}

			p := &r.Properties
			tw := tablewriter.NewWriter(stdout)
			tw.SetHeader([]string{"property", "value"})
			tw.SetAlignment(tablewriter.ALIGN_LEFT)
			tw.SetAutoWrapText(false)
			tw.AppendBulk([][]string{
				{"comparer", p.ComparerName},
				{"compression", formatNull(p.CompressionName)},
				{"checksum", formatNull(p.ChecksumName)},
				{"filter", formatNull(p.FilterPolicyName)},
				{"records", fmt.Sprint(p.NumEntries)},
				{"  set", fmt.Sprint(p.NumEntries - p.NumDeletions)},
				{"  delete", fmt.Sprint(p.NumDeletions)},
				{"seqnums", fmt.Sprintf("[%d, %d]", p.SmallestSeqNum, p.LargestSeqNum)},
				{"raw-key", fmt.Sprint(p.RawKeySize)},
				{"raw-value", fmt.Sprint(p.RawValueSize)},
				{"data", fmt.Sprint(p.DataSize)},
				{"  blocks", fmt.Sprint(p.NumDataBlocks)},
				{"index", fmt.Sprint(p.IndexSize)},
				{"filter-size", fmt.Sprint(p.FilterSize)},
			})
			keys := make([]string, 0, len(p.UserProperties))
			for k := range p.UserProperties {
				keys = append(keys, k)
			}
			slices.Sort(keys)
			for _, k := range keys {
				tw.Append([]string{k, p.UserProperties[k]})
			}
			tw.Render()
		}()
	}
}

func (s *sstableT) runScan(cmd *cobra.Command, args []string) {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	for _, arg := range args {
		func() {
			r, ok := s.openReader(stderr, arg)
			if !ok {
				return
			}
			defer s.closeReader(stderr, r)

			fmt.Fprintf(stdout, "%s\n", arg)
			s.fmtKey.setForComparer(r.Properties.ComparerName, s.comparers)

			cmp := r.Comparer().Compare
			icmp := base.InternalComparer(r.Comparer())
			iter := r.NewIter()
			if len(s.start) > 0 {
				iter.SeekGE(base.MakeSearchKey(s.start, base.SeqNumMax).AppendEncoded(nil))
			} else {
				iter.First()
			}
			var lastKey []byte
			for ; iter.Valid(); iter.Next() {
				k, err := base.DecodeInternalKey(iter.Key())
				if err != nil {
					fmt.Fprintf(stdout, "%s\n", err)
					break
				}
				if len(s.end) > 0 && cmp(k.UserKey, s.end) >= 0 {
					break
				}
				formatKeyValue(stdout, s.fmtKey, s.fmtValue, k, iter.Value())
				if lastKey != nil && icmp.Compare(lastKey, iter.Key()) >= 0 {
					fmt.Fprintf(stdout, "    WARNING: OUT OF ORDER KEYS!\n")
				}
				lastKey = append(lastKey[:0], iter.Key()...)
			}
			if err := iter.Close(); err != nil {
				fmt.Fprintf(stdout, "%s\n", err)
			}
		}()
	}
}
