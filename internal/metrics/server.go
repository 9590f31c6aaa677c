// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Mux returns the ops HTTP surface every stage binary exposes alongside
// its AMQP/Redis/DuckDB work: Prometheus scraping and a liveness probe.
// Grounded on the teacher's chi_router.go `r.Handle("/metrics",
// promhttp.Handler())` registration, minus the rest of its API surface.
func Mux(ready func() bool) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if ready != nil && !ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
