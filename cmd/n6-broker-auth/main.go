// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command n6-broker-auth runs the HTTP backend rabbitmq-auth-backend-http
// calls for every connection/resource/topic authorization decision (C10).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/n6-community/n6/internal/authz"
	"github.com/n6-community/n6/internal/brokerauth"
	"github.com/n6-community/n6/internal/config"
	"github.com/n6-community/n6/internal/logging"
	"github.com/n6-community/n6/internal/metrics"
	"github.com/n6-community/n6/internal/supervisor"
	"github.com/n6-community/n6/internal/supervisor/services"
)

func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		fmt.Fprintf(os.Stderr, "n6-broker-auth: config: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Caller: cfg.Logging.Caller})
	logging.Info().Msg("n6-broker-auth: starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	enforcer, err := authz.NewEnforcer(ctx, &authz.EnforcerConfig{
		ModelPath:      cfg.BrokerAuth.ModelPath,
		PolicyPath:     cfg.BrokerAuth.PolicyPath,
		AutoReload:     cfg.BrokerAuth.AutoReload,
		ReloadInterval: cfg.BrokerAuth.ReloadInterval,
		CacheEnabled:   cfg.BrokerAuth.CacheEnabled,
		CacheTTL:       cfg.BrokerAuth.CacheTTL,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("n6-broker-auth: build authz enforcer")
	}
	defer enforcer.Close()

	usersFile := os.Getenv("N6_BROKERAUTH_USERS_FILE")
	if usersFile == "" {
		usersFile = "/etc/n6/users.yaml"
	}
	users := newStaticUserVerifier(usersFile)

	svc := brokerauth.New(cfg.BrokerAuth, enforcer, users)

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("n6-broker-auth: build supervisor tree")
	}

	tree.AddAPIService(svc)

	opsServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port),
		Handler: metrics.Mux(func() bool { return true }),
	}
	tree.AddAPIService(services.NewHTTPServerService(opsServer, cfg.Server.Timeout))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logging.Info().Msg("n6-broker-auth: shutdown signal received")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logging.Error().Err(err).Msg("n6-broker-auth: supervisor tree exited with error")
		}
	}

	<-errCh
	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		logging.Warn().Int("count", len(report)).Msg("n6-broker-auth: services did not stop within the shutdown timeout")
	}
	logging.Info().Msg("n6-broker-auth: stopped")
}
