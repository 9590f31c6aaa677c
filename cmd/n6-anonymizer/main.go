// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command n6-anonymizer consumes filtered events and publishes an
// anonymized copy to each entitled client org on the clients headers
// exchange (C7).
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

	"github.com/n6-community/n6/internal/anonymizer"
	"github.com/n6-community/n6/internal/authindex"
	"github.com/n6-community/n6/internal/broker"
	"github.com/n6-community/n6/internal/config"
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
		fmt.Fprintf(os.Stderr, "n6-anonymizer: config: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Caller: cfg.Logging.Caller})
	logging.Info().Msg("n6-anonymizer: starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	idx := authindex.New()
	reloader := authindex.NewReloader(idx, authindex.NewStaticFileLoader(cfg.AuthDB.DSN), cfg.AuthDB.ReloadInterval)

	bc, err := broker.NewClient(cfg.Broker, nil)
	if err != nil {
		logging.Fatal().Err(err).Msg("n6-anonymizer: connect broker")
	}
	defer bc.Close()

	anon := anonymizer.New(idx, bc.WatermillPublisher())

	stage, err := pipeline.NewStage(pipeline.DefaultStageConfig("n6-anonymizer"), bc.WatermillPublisher(), nil)
	if err != nil {
		logging.Fatal().Err(err).Msg("n6-anonymizer: build stage")
	}

	stage.AddConsumerHandler("anonymizer", "filtered", bc.WatermillSubscriber(), func(msg *message.Message) error {
		event, err := record.FromJSON(msg.Payload)
		if err != nil {
			return fmt.Errorf("n6-anonymizer: decode event: %w", err)
		}
		return anon.Process(event, event.Client)
	})

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("n6-anonymizer: build supervisor tree")
	}

	tree.AddDataService(reloader)
	tree.AddMessagingService(services.NewRunAdapter("n6-anonymizer-stage", stage.Run))

	opsServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port),
		Handler: metrics.Mux(func() bool { return true }),
	}
	tree.AddAPIService(services.NewHTTPServerService(opsServer, cfg.Server.Timeout))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logging.Info().Msg("n6-anonymizer: shutdown signal received")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logging.Error().Err(err).Msg("n6-anonymizer: supervisor tree exited with error")
		}
	}

	<-errCh
	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		logging.Warn().Int("count", len(report)).Msg("n6-anonymizer: services did not stop within the shutdown timeout")
	}
	logging.Info().Msg("n6-anonymizer: stopped")
}
