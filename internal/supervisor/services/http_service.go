// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// HTTPServer matches *http.Server's lifecycle methods, letting
// HTTPServerService work against a fake in tests.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPServerService wraps an HTTP server (normally a stage binary's ops
// mux: /metrics and /healthz) as a suture.Service, translating between
// http.Server's blocking ListenAndServe and suture's context-aware Serve.
//
//	mux := metrics.Mux(readyFunc)
//	server := &http.Server{Addr: cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port), Handler: mux}
//	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.Timeout))
type HTTPServerService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
	name            string
}

// NewHTTPServerService returns a service wrapping server. shutdownTimeout
// bounds how long Serve waits for in-flight requests to drain on cancel.
func NewHTTPServerService(server HTTPServer, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPServerService{server: server, shutdownTimeout: shutdownTimeout, name: "http-server"}
}

// Serve implements suture.Service.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

// String implements fmt.Stringer; suture uses it to name the service in
// log/event output.
func (h *HTTPServerService) String() string {
	return h.name
}
