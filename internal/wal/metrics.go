// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

package wal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for WAL operations
var (
	// walWritesTotal counts total WAL write operations.
	walWritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wal_writes_total",
		Help: "Total number of WAL write operations",
	})

	// walConfirmsTotal counts total WAL confirm operations.
	walConfirmsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wal_confirms_total",
		Help: "Total number of WAL confirm operations",
	})

	// walRetriesTotal counts total WAL retry attempts.
	walRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wal_retries_total",
		Help: "Total number of WAL retry attempts",
	})

	// walPendingEntries is the current number of pending WAL entries.
	walPendingEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wal_pending_entries",
		Help: "Current number of pending WAL entries",
	})

	// walWriteLatency measures WAL write latency.
	walWriteLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wal_write_latency_seconds",
		Help:    "WAL write latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// walDBSizeBytes is the current BadgerDB database size.
	walDBSizeBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wal_db_size_bytes",
		Help: "BadgerDB database size in bytes",
	})

	// walGCLatency measures BadgerDB value log GC latency.
	walGCLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wal_gc_latency_seconds",
		Help:    "BadgerDB value log GC latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 0.01s to ~40s
	})

	// walGCRuns counts total GC runs.
	walGCRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wal_gc_runs_total",
		Help: "Total number of BadgerDB value log GC runs",
	})
)

// RecordWALWrite increments the write counter.
func RecordWALWrite() {
	walWritesTotal.Inc()
}

// RecordWALConfirm increments the confirm counter.
func RecordWALConfirm() {
	walConfirmsTotal.Inc()
}

// RecordWALRetry increments the retry counter.
func RecordWALRetry() {
	walRetriesTotal.Inc()
}

// UpdateWALPendingEntries sets the pending entries gauge.
func UpdateWALPendingEntries(count int64) {
	walPendingEntries.Set(float64(count))
}

// RecordWALWriteLatency records a write latency measurement.
func RecordWALWriteLatency(seconds float64) {
	walWriteLatency.Observe(seconds)
}

// UpdateWALDBSize sets the database size gauge.
func UpdateWALDBSize(bytes int64) {
	walDBSizeBytes.Set(float64(bytes))
}

// RecordWALGCLatency records a GC latency measurement.
func RecordWALGCLatency(seconds float64) {
	walGCLatency.Observe(seconds)
}

// RecordWALGCRun increments the GC run counter.
func RecordWALGCRun() {
	walGCRuns.Inc()
}
