// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package cache

import "github.com/prometheus/client_golang/prometheus"

// Collector exports the metrics of a Cache to Prometheus.
type Collector struct {
	c         *Cache
	hits      *prometheus.Desc
	misses    *prometheus.Desc
	inserts   *prometheus.Desc
	evictions *prometheus.Desc
	size      *prometheus.Desc
	capacity  *prometheus.Desc
	entries   *prometheus.Desc
	inUse     *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a Collector for c. Metric names are prefixed with
// namespace and "cache"; constLabels distinguish multiple caches registered
// with the same registry.
func NewCollector(c *Cache, namespace string, constLabels prometheus.Labels) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "cache", name), help, nil, constLabels)
	}
	return &Collector{
		c:         c,
		hits:      desc("hits_total", "Number of lookups that found an entry."),
		misses:    desc("misses_total", "Number of lookups that did not find an entry."),
		inserts:   desc("inserts_total", "Number of entries inserted."),
		evictions: desc("evictions_total", "Number of entries evicted to stay within capacity."),
		size:      desc("size_bytes", "Total charge of the entries in the cache."),
		capacity:  desc("capacity_bytes", "Configured capacity of the cache."),
		entries:   desc("entries", "Number of entries in the cache."),
		inUse:     desc("in_use_entries", "Number of cached entries pinned by a handle."),
	}
}

// Describe implements prometheus.Collector.
func (col *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- col.hits
	ch <- col.misses
	ch <- col.inserts
	ch <- col.evictions
	ch <- col.size
	ch <- col.capacity
	ch <- col.entries
	ch <- col.inUse
}

// Collect implements prometheus.Collector.
func (col *Collector) Collect(ch chan<- prometheus.Metric) {
	m := col.c.Metrics()
	counter := func(d *prometheus.Desc, v int64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	gauge := func(d *prometheus.Desc, v int64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v))
	}
	counter(col.hits, m.Hits)
	counter(col.misses, m.Misses)
	counter(col.inserts, m.Inserts)
	counter(col.evictions, m.Evictions)
	gauge(col.size, m.Size)
	gauge(col.capacity, m.Capacity)
	gauge(col.entries, m.Count)
	gauge(col.inUse, m.InUse)
}
