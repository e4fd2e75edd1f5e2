// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tool

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/cockroachdb/crlib/crhumanize"
	"github.com/cockroachdb/crlib/crtime"
	"github.com/guptarohit/asciigraph"
	"github.com/olekukonko/tablewriter"
)

const (
	minLatency = 10 * time.Nanosecond
	maxLatency = 10 * time.Second
)

func newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(minLatency.Nanoseconds(), maxLatency.Nanoseconds(), 1)
}

// namedHistogram records the latencies of one kind of operation. It is safe
// for concurrent use.
type namedHistogram struct {
	name string
	mu   struct {
		sync.Mutex
		hist *hdrhistogram.Histogram
	}
}

func newNamedHistogram(name string) *namedHistogram {
	w := &namedHistogram{name: name}
	w.mu.hist = newHistogram()
	return w
}

// Record adds a latency, clamped to [minLatency, maxLatency].
func (w *namedHistogram) Record(elapsed time.Duration) {
	if elapsed < minLatency {
		elapsed = minLatency
	} else if elapsed > maxLatency {
		elapsed = maxLatency
	}

	w.mu.Lock()
	err := w.mu.hist.RecordValue(elapsed.Nanoseconds())
	w.mu.Unlock()

	if err != nil {
		// Values are clamped to the histogram's range.
		panic(fmt.Sprintf(`%s: recording value: %s`, w.name, err))
	}
}

func (w *namedHistogram) snapshot() *hdrhistogram.Histogram {
	w.mu.Lock()
	defer w.mu.Unlock()
	return hdrhistogram.Import(w.mu.hist.Export())
}

// histogramRegistry holds the histograms of a benchmark run and counts the
// operations completed across all of them.
type histogramRegistry struct {
	start      crtime.Mono
	ops        atomic.Int64
	registered []*namedHistogram
}

func newHistogramRegistry() *histogramRegistry {
	return &histogramRegistry{start: crtime.NowMono()}
}

// Register returns a new histogram. All histograms must be registered before
// the benchmark's workers start.
func (r *histogramRegistry) Register(name string) *namedHistogram {
	h := newNamedHistogram(name)
	r.registered = append(r.registered, h)
	return h
}

// Record records the latency of an operation started at start.
func (r *histogramRegistry) Record(h *namedHistogram, start crtime.Mono) {
	h.Record(start.Elapsed())
	r.ops.Add(1)
}

// sampleThroughput samples the number of completed operations every interval
// until stop is closed, and returns the throughput of each interval in
// operations per second.
func (r *histogramRegistry) sampleThroughput(interval time.Duration, stop <-chan struct{}) []float64 {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	var samples []float64
	prev := r.ops.Load()
	last := crtime.NowMono()
	for {
		select {
		case <-stop:
			return samples
		case <-ticker.C:
			n := r.ops.Load()
			elapsed := last.Elapsed()
			last = crtime.NowMono()
			samples = append(samples, float64(n-prev)/elapsed.Seconds())
			prev = n
		}
	}
}

// WriteSummary writes a table with one row per histogram holding the count,
// throughput and latency percentiles of the operations.
func (r *histogramRegistry) WriteSummary(w io.Writer) {
	elapsed := r.start.Elapsed()
	tw := tablewriter.NewWriter(w)
	tw.SetHeader([]string{"op", "ops", "ops/sec", "avg", "p50", "p95", "p99", "max"})
	tw.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, h := range r.registered {
		hist := h.snapshot()
		if hist.TotalCount() == 0 {
			continue
		}
		tw.Append([]string{
			h.name,
			string(crhumanize.Count(hist.TotalCount(), crhumanize.Compact)),
			fmt.Sprintf("%.1f", float64(hist.TotalCount())/elapsed.Seconds()),
			time.Duration(hist.Mean()).String(),
			time.Duration(hist.ValueAtQuantile(50)).String(),
			time.Duration(hist.ValueAtQuantile(95)).String(),
			time.Duration(hist.ValueAtQuantile(99)).String(),
			time.Duration(hist.Max()).String(),
		})
	}
	tw.Render()
}

// plotThroughput renders the per-interval throughput samples. Fewer than two
// samples are not plotted.
func plotThroughput(w io.Writer, samples []float64, height int) {
	if len(samples) < 2 {
		return
	}
	fmt.Fprintln(w, "throughput (ops/sec):")
	fmt.Fprintln(w, asciigraph.Plot(samples, asciigraph.Height(height)))
}
