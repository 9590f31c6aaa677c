// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command n6-counter increments the per-client-org, per-category
// cumulative counters the notifier reads on its schedule (C12).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"

	"github.com/n6-community/n6/internal/authindex"
	"github.com/n6-community/n6/internal/broker"
	"github.com/n6-community/n6/internal/config"
	"github.com/n6-community/n6/internal/counter"
	"github.com/n6-community/n6/internal/logging"
	"github.com/n6-community/n6/internal/metrics"
	"github.com/n6-community/n6/internal/pipeline"
	"github.com/n6-community/n6/internal/record"
	"github.com/n6-community/n6/internal/supervisor"
	"github.com/n6-community/n6/internal/supervisor/services"
)

func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		fmt.Fprintf(os.Stderr, "n6-counter: config: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Caller: cfg.Logging.Caller})
	logging.Info().Msg("n6-counter: starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	idx := authindex.New()
	reloader := authindex.NewReloader(idx, authindex.NewStaticFileLoader(cfg.AuthDB.DSN), cfg.AuthDB.ReloadInterval)

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Counter.RedisHost + ":" + strconv.Itoa(cfg.Counter.RedisPort),
		DB:   cfg.Counter.RedisDB,
	})
	defer rdb.Close()

	cnt := counter.New(idx, counter.NewStore(rdb))

	bc, err := broker.NewClient(cfg.Broker, nil)
	if err != nil {
		logging.Fatal().Err(err).Msg("n6-counter: connect broker")
	}
	defer bc.Close()

	stage, err := pipeline.NewStage(pipeline.DefaultStageConfig("n6-counter"), bc.WatermillPublisher(), nil)
	if err != nil {
		logging.Fatal().Err(err).Msg("n6-counter: build stage")
	}

	stage.AddConsumerHandler("counter", "filtered", bc.WatermillSubscriber(), func(msg *message.Message) error {
		event, err := record.FromJSON(msg.Payload)
		if err != nil {
			return fmt.Errorf("n6-counter: decode event: %w", err)
		}
		return cnt.Process(msg.Context(), event, event.Client)
	})

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("n6-counter: build supervisor tree")
	}

	tree.AddDataService(reloader)
	tree.AddMessagingService(services.NewRunAdapter("n6-counter-stage", stage.Run))

	opsServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port),
		Handler: metrics.Mux(func() bool { return true }),
	}
	tree.AddAPIService(services.NewHTTPServerService(opsServer, cfg.Server.Timeout))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logging.Info().Msg("n6-counter: shutdown signal received")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logging.Error().Err(err).Msg("n6-counter: supervisor tree exited with error")
		}
	}

	<-errCh
	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		logging.Warn().Int("count", len(report)).Msg("n6-counter: services did not stop within the shutdown timeout")
	}
	logging.Info().Msg("n6-counter: stopped")
}
