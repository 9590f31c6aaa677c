// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command n6-filter resolves the inside-zone client organizations for
// each enriched event and republishes it to the filtered stream (C6).
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
		fmt.Fprintf(os.Stderr, "n6-filter: config: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Caller: cfg.Logging.Caller})
	logging.Info().Msg("n6-filter: starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	idx := authindex.New()
	reloader := authindex.NewReloader(idx, authindex.NewStaticFileLoader(cfg.AuthDB.DSN), cfg.AuthDB.ReloadInterval)

	bc, err := broker.NewClient(cfg.Broker, nil)
	if err != nil {
		logging.Fatal().Err(err).Msg("n6-filter: connect broker")
	}
	defer bc.Close()

	stage, err := pipeline.NewStage(pipeline.DefaultStageConfig("n6-filter"), bc.WatermillPublisher(), nil)
	if err != nil {
		logging.Fatal().Err(err).Msg("n6-filter: build stage")
	}

	stage.AddHandler("filter", "enriched", bc.WatermillSubscriber(), "filtered", bc.WatermillPublisher(), func(msg *message.Message) ([]*message.Message, error) {
		event, err := record.FromJSON(msg.Payload)
		if err != nil {
			return nil, fmt.Errorf("n6-filter: decode event: %w", err)
		}

		event.Client = idx.Resolve(event, "inside")

		payload, err := event.GetReadyJSON()
		if err != nil {
			return nil, fmt.Errorf("n6-filter: encode event: %w", err)
		}

		// The enriched->filtered routing key itself is carried by the
		// AMQP topology's exchange bindings (declared outside this
		// process); broker.BuildRoutingKey documents that shape for the
		// deployer's topology config rather than being applied per-message
		// here.
		out := message.NewMessage(msg.UUID, payload)
		return []*message.Message{out}, nil
	})

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("n6-filter: build supervisor tree")
	}

	tree.AddDataService(reloader)
	tree.AddMessagingService(services.NewRunAdapter("n6-filter-stage", stage.Run))

	opsServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port),
		Handler: metrics.Mux(func() bool { return true }),
	}
	tree.AddAPIService(services.NewHTTPServerService(opsServer, cfg.Server.Timeout))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logging.Info().Msg("n6-filter: shutdown signal received")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logging.Error().Err(err).Msg("n6-filter: supervisor tree exited with error")
		}
	}

	<-errCh
	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		logging.Warn().Int("count", len(report)).Msg("n6-filter: services did not stop within the shutdown timeout")
	}
	logging.Info().Msg("n6-filter: stopped")
}
