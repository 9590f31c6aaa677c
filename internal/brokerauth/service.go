// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

package brokerauth

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/n6-community/n6/internal/authz"
	"github.com/n6-community/n6/internal/config"
	"github.com/n6-community/n6/internal/middleware"
)

// UserVerifier authenticates a broker username/password pair for the
// /user endpoint. There is no bundled Auth DB-backed implementation —
// see DESIGN.md for why that boundary is left to the deployer.
type UserVerifier interface {
	VerifyUser(ctx context.Context, username, password string) (bool, error)
}

// Service is the HTTP surface rabbitmq-auth-backend-http calls.
type Service struct {
	cfg      config.BrokerAuthConfig
	enforcer *authz.Enforcer
	users    UserVerifier
}

// New returns a Service. enforcer and users must both be non-nil.
func New(cfg config.BrokerAuthConfig, enforcer *authz.Enforcer, users UserVerifier) *Service {
	return &Service{cfg: cfg, enforcer: enforcer, users: users}
}

// Router builds the chi router exposing the four endpoints.
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler { return middleware.RequestID(next.ServeHTTP) })
	r.Use(func(next http.Handler) http.Handler { return middleware.PrometheusMetrics(next.ServeHTTP) })

	r.Post("/user", s.handleUser)
	r.Post("/vhost", s.handleVHost)
	r.Post("/resource", s.handleResource)
	r.Post("/topic", s.handleTopic)
	return r
}

// Serve runs the HTTP listener until ctx is canceled, implementing
// suture.Service.
func (s *Service) Serve(ctx context.Context) error {
	server := &http.Server{Addr: s.cfg.ListenAddr, Handler: s.Router()}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
