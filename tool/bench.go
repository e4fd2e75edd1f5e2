// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/crlib/crhumanize"
	"github.com/cockroachdb/crlib/crtime"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/sstkv"
	"github.com/cockroachdb/tokenbucket"
	"github.com/spf13/cobra"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
)

// benchT implements the micro-benchmarks of the in-memory components.
type benchT struct {
	Root     *cobra.Command
	Cache    *cobra.Command
	MemTable *cobra.Command

	// Flags.
	concurrency int
	ops         int
	rate        float64
	seed        uint64
	interval    time.Duration
	plot        bool
	keys        int
	valueSize   int
	capacity    int64
}

func newBench() *benchT {
	b := &benchT{}
	b.Root = &cobra.Command{
		Use:   "bench",
		Short: "benchmarks of the block cache and memtable",
	}
	b.Cache = &cobra.Command{
		Use:   "cache",
		Short: "benchmark block cache lookups and inserts",
		Long: `
Run concurrent workers against a block cache. Each operation looks up a key
drawn from a Zipf distribution and inserts it on a miss.
`,
		Args: cobra.NoArgs,
		RunE: b.runCache,
	}
	b.MemTable = &cobra.Command{
		Use:   "memtable",
		Short: "benchmark memtable adds and point lookups",
		Long: `
Run a single writer adding --keys entries to a memtable while the remaining
workers perform point lookups of uniformly random keys.
`,
		Args: cobra.NoArgs,
		RunE: b.runMemTable,
	}
	b.Root.AddCommand(b.Cache, b.MemTable)

	for _, cmd := range []*cobra.Command{b.Cache, b.MemTable} {
		cmd.Flags().IntVarP(
			&b.concurrency, "concurrency", "c", 4, "number of concurrent workers")
		cmd.Flags().IntVar(
			&b.ops, "ops", 100000, "number of operations per worker")
		cmd.Flags().Float64Var(
			&b.rate, "rate", 0, "maximum operations per second across all workers (0 is unlimited)")
		cmd.Flags().Uint64Var(
			&b.seed, "seed", 1, "random seed")
		cmd.Flags().DurationVar(
			&b.interval, "interval", 100*time.Millisecond, "throughput sampling interval")
		cmd.Flags().BoolVar(
			&b.plot, "plot", true, "plot the sampled throughput")
		cmd.Flags().IntVar(
			&b.keys, "keys", 100000, "number of distinct keys")
		cmd.Flags().IntVar(
			&b.valueSize, "value-size", 4096, "size of each value in bytes")
	}
	b.Cache.Flags().Int64Var(
		&b.capacity, "capacity", 64<<20, "cache capacity in bytes")
	return b
}

// limiter rate limits the operations of a benchmark's workers. A nil limiter
// imposes no limit.
type limiter struct {
	mu sync.Mutex
	tb tokenbucket.TokenBucket
}

func newLimiter(rate float64) *limiter {
	if rate <= 0 {
		return nil
	}
	l := &limiter{}
	burst := max(rate*0.1, 1)
	l.tb.Init(tokenbucket.TokensPerSecond(rate), tokenbucket.Tokens(burst))
	return l
}

func (l *limiter) wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	for {
		l.mu.Lock()
		ok, d := l.tb.TryToFulfill(1)
		l.mu.Unlock()
		if ok {
			return nil
		}
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (b *benchT) validate() error {
	switch {
	case b.concurrency < 1:
		return errors.Errorf("--concurrency must be positive: %d", b.concurrency)
	case b.ops < 0:
		return errors.Errorf("--ops must not be negative: %d", b.ops)
	case b.keys < 1:
		return errors.Errorf("--keys must be positive: %d", b.keys)
	case b.valueSize < 0:
		return errors.Errorf("--value-size must not be negative: %d", b.valueSize)
	case b.interval <= 0:
		return errors.Errorf("--interval must be positive: %s", b.interval)
	}
	return nil
}

// run runs worker on b.concurrency goroutines while sampling the throughput,
// then prints the latency summary and throughput plot.
func (b *benchT) run(
	cmd *cobra.Command, reg *histogramRegistry, worker func(ctx context.Context, id int) error,
) error {
	stdout := cmd.OutOrStdout()
	stop := make(chan struct{})
	samplesCh := make(chan []float64, 1)
	go func() {
		samplesCh <- reg.sampleThroughput(b.interval, stop)
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < b.concurrency; i++ {
		g.Go(func() error {
			return worker(ctx, i)
		})
	}
	err := g.Wait()
	close(stop)
	samples := <-samplesCh
	if err != nil {
		return err
	}

	reg.WriteSummary(stdout)
	if b.plot {
		plotThroughput(stdout, samples, 10)
	}
	return nil
}

func benchKey(buf []byte, i uint64) []byte {
	return fmt.Appendf(buf[:0], "key-%012d", i)
}

func (b *benchT) runCache(cmd *cobra.Command, args []string) error {
	if err := b.validate(); err != nil {
		return err
	}
	if b.capacity < 0 {
		return errors.Errorf("--capacity must not be negative: %d", b.capacity)
	}
	c := sstkv.NewCache(b.capacity)
	fmt.Fprintf(cmd.OutOrStdout(), "cache: capacity %s, %d shards, %s keys, %s values\n",
		crhumanize.Bytes(b.capacity, crhumanize.Compact, crhumanize.OmitI),
		c.NumShards(),
		crhumanize.Count(int64(b.keys), crhumanize.Compact),
		crhumanize.Bytes(int64(b.valueSize), crhumanize.Compact, crhumanize.OmitI))

	reg := newHistogramRegistry()
	hits := reg.Register("hit")
	misses := reg.Register("miss")
	limit := newLimiter(b.rate)
	value := make([]byte, b.valueSize)

	err := b.run(cmd, reg, func(ctx context.Context, id int) error {
		rng := rand.New(rand.NewSource(b.seed + uint64(id)))
		zipf := rand.NewZipf(rng, 1.1, 1, uint64(b.keys-1))
		var buf []byte
		for i := 0; i < b.ops; i++ {
			if err := limit.wait(ctx); err != nil {
				return err
			}
			buf = benchKey(buf, zipf.Uint64())
			start := crtime.NowMono()
			if h, ok := c.Lookup(buf); ok {
				c.Release(h)
				reg.Record(hits, start)
				continue
			}
			c.Release(c.Insert(buf, value, int64(len(value)), nil))
			reg.Record(misses, start)
		}
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\nhit rate: %.1f%%\n", c.Metrics(), 100*c.Metrics().HitRate())
	return nil
}

func (b *benchT) runMemTable(cmd *cobra.Command, args []string) error {
	if err := b.validate(); err != nil {
		return err
	}
	m := sstkv.NewMemTable(nil)
	reg := newHistogramRegistry()
	adds := reg.Register("add")
	gets := reg.Register("get")
	limit := newLimiter(b.rate)
	value := make([]byte, b.valueSize)

	err := b.run(cmd, reg, func(ctx context.Context, id int) error {
		rng := rand.New(rand.NewSource(b.seed + uint64(id)))
		var buf []byte
		if id == 0 {
			// The memtable permits a single writer.
			for i, p := range rng.Perm(b.keys) {
				if err := limit.wait(ctx); err != nil {
					return err
				}
				buf = benchKey(buf, uint64(p))
				start := crtime.NowMono()
				m.Add(sstkv.SeqNum(i+1), sstkv.InternalKeyKindSet, buf, value)
				reg.Record(adds, start)
			}
			return nil
		}
		for i := 0; i < b.ops; i++ {
			if err := limit.wait(ctx); err != nil {
				return err
			}
			buf = benchKey(buf, rng.Uint64n(uint64(b.keys)))
			start := crtime.NowMono()
			if _, _, err := m.Get(buf, sstkv.SeqNumMax); err != nil {
				return err
			}
			reg.Record(gets, start)
		}
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "memtable: %d entries, %s\n", m.Len(),
		crhumanize.Bytes(int64(m.ApproximateMemoryUsage()), crhumanize.Compact, crhumanize.OmitI))
	return nil
}
