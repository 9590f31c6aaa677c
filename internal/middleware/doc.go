// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package middleware provides HTTP middleware components for the application.

This package implements infrastructure middleware for compression, performance
monitoring, request ID tracking, and Prometheus metrics integration for the
HTTP surfaces (the broker-auth service and the metrics/health mux).

Key Components:

  - Compression: Gzip compression for clients that accept it
  - Performance Monitor: Request latency tracking with percentile calculations
  - Request ID: UUID-based request tracking for distributed tracing
  - Prometheus Metrics: HTTP request/response instrumentation

Middleware Stack:

The typical middleware stack for an endpoint is:

	http.HandleFunc("/broker/endpoint",
	    middleware.PrometheusMetrics( // Layer 1: Metrics
	        middleware.Compression(    // Layer 2: Gzip
	            middleware.RequestID(  // Layer 3: Request tracking
	                handler,           // Layer 4: Business logic
	            ),
	        ),
	    ),
	)

Usage Example - Compression:

	import "github.com/n6-community/n6/internal/middleware"

	// Wrap handler with gzip compression
	http.HandleFunc("/broker/data",
	    middleware.Compression(handler),
	)

	// Responses of any size are compressed when the
	// Accept-Encoding header contains gzip

Usage Example - Performance Monitoring:

	// Create performance monitor keeping the 1000 most recent requests
	perfMon := middleware.NewPerformanceMonitor(1000)

	// Wrap handler (Middleware takes and returns an http.Handler)
	http.Handle("/broker/stats",
	    perfMon.Middleware(handler),
	)

	// Get per-endpoint statistics, busiest endpoint first
	for _, s := range perfMon.GetStats() {
	    fmt.Printf("%s p50: %dms, p95: %dms, p99: %dms\n",
	        s.Path, s.P50Duration, s.P95Duration, s.P99Duration)
	}

Usage Example - Request ID:

	// Request ID middleware
	http.HandleFunc("/broker/logs",
	    middleware.RequestID(handler),
	)

	// Access request ID in handler
	func handler(w http.ResponseWriter, r *http.Request) {
	    requestID := r.Context().Value(middleware.RequestIDKey).(string)
	    log.Printf("[%s] Processing request", requestID)
	}

Performance Characteristics:

  - Compression: 70-90% size reduction for JSON (text/json mime types)
  - Compression overhead: ~1-2ms for typical responses
  - Metrics overhead: <0.1ms per request
  - Request ID overhead: <0.01ms (UUID generation)
  - Performance monitor: sliding window of latency samples behind a sync.RWMutex

Compression Details:

The compression middleware:
  - Compresses every response, with no size threshold and no MIME-type filter
  - Supports gzip encoding (Accept-Encoding: gzip)
  - Skips WebSocket upgrade requests
  - Sets Content-Encoding: gzip and removes Content-Length
  - Does not implement http.Flusher for streaming responses

Performance Monitor:

The performance monitor tracks:
  - Request count per endpoint (method and path); no error rate is computed
  - Latency percentiles (p50, p95, p99), min, max and average
  - Sliding window of the maxMetrics most recent requests
  - Thread-safe concurrent access with RWMutex

Thread Safety:

All middleware components are thread-safe:
  - Compression uses per-request gzip writers
  - Performance monitor uses sync.RWMutex
  - Request ID uses context.Context (immutable)
  - Prometheus metrics use atomic operations

See Also:

  - internal/brokerauth: HTTP service that chains RequestID and PrometheusMetrics
  - internal/metrics: Prometheus metrics definitions
*/
package middleware
