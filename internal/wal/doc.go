// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package wal provides a durable Write-Ahead Log (WAL) using BadgerDB.
//
// The WAL guarantees no event loss by persisting events to disk before
// publishing downstream. Entries survive process crashes, power failures,
// and broker outages.
//
// # Architecture
//
// The WAL sits between event generation and publishing:
//
//	Event → WAL Write (ACID, fsync) → Publish → WAL Confirm
//	                                          ↓ (on failure)
//	                                    Entry preserved for retry
//
// # Usage
//
// Basic usage:
//
//	// Create configuration
//	cfg := wal.LoadConfig()
//
//	// Open WAL
//	w, err := wal.Open(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Close()
//
//	// Write event before publish
//	entryID, err := w.Write(ctx, event)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := publisher.Publish(event); err != nil {
//	    // Entry preserved in WAL for the next GetPending pass
//	    return err
//	}
//
//	// Confirm successful publish
//	if err := w.Confirm(ctx, entryID); err != nil {
//	    log.Printf("WAL confirm failed: %v", err)
//	}
//
// # Startup recovery
//
// On startup, callers drain GetPending (or its streaming counterpart,
// GetPendingStream, for large backlogs) and republish whatever is still
// unconfirmed:
//
//	entries, err := w.GetPending(ctx)
//	if err != nil {
//	    log.Printf("GetPending error: %v", err)
//	}
//	for _, e := range entries {
//	    // republish e, then w.Confirm(ctx, e.ID) on success
//	}
//
// n6-recorder uses Write/Confirm as a durability fence around DuckDB
// inserts; internal/aggregator's BadgerSnapshotter layers its own
// snapshot/load protocol on top of the same Write/Confirm/GetPending
// surface to persist aggregation state as a single pending entry that
// each save atomically replaces.
//
// # Build Tags
//
// The WAL is optional and can be disabled via build tags:
//
//	# Build with WAL
//	go build -tags wal ./cmd/n6-recorder
//
//	# Build without WAL (no-op stub)
//	go build ./cmd/n6-recorder
//
// # Configuration
//
// Configuration is loaded from environment variables:
//
//	WAL_ENABLED=true         # Enable WAL (default: true)
//	WAL_PATH=/data/wal       # Storage directory
//	WAL_SYNC_WRITES=true     # Force fsync (durability)
//	WAL_MAX_RETRIES=100      # Max attempts before giving up
//	WAL_ENTRY_TTL=168h       # Entry time-to-live (7 days)
//
// # Why BadgerDB
//
// BadgerDB was chosen for:
//   - Pure Go (no CGO required)
//   - ACID compliance with checksums
//   - Concurrent writes (LSM-tree)
//   - Designed for write-heavy workloads
//   - Built-in TTL support
//
// Alternatives considered:
//   - bbolt: Single-writer limitation
//   - Append-only file: Corruption risk on power loss
//   - NATS KV: Requires network connection
//
// # Metrics
//
// Prometheus metrics are exported for monitoring:
//
//	wal_writes_total           # Total write operations
//	wal_confirms_total         # Total confirm operations
//	wal_retries_total          # Total retry attempts
//	wal_pending_entries        # Current pending count
//	wal_db_size_bytes          # Database size
//	wal_write_latency_seconds  # Write latency histogram
//	wal_gc_runs_total          # Value log GC runs
//	wal_gc_latency_seconds     # Value log GC latency histogram
//
// # Thread Safety
//
// All WAL operations are thread-safe. Multiple goroutines can
// call Write, Confirm, and other methods concurrently.
package wal
