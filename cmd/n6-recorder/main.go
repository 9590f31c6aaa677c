// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command n6-recorder upserts filtered events into the Event DB, buffering
// each write behind a durable write-ahead log so a DuckDB outage does not
// lose in-flight events (C8).
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
	"github.com/n6-community/n6/internal/recorder"
	"github.com/n6-community/n6/internal/supervisor"
	"github.com/n6-community/n6/internal/supervisor/services"
	"github.com/n6-community/n6/internal/wal"
)

func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		fmt.Fprintf(os.Stderr, "n6-recorder: config: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Caller: cfg.Logging.Caller})
	logging.Info().Msg("n6-recorder: starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := recorder.Open(cfg.Recorder)
	if err != nil {
		logging.Fatal().Err(err).Msg("n6-recorder: open event store")
	}
	defer store.Close()

	walCfg := wal.DefaultConfig()
	walCfg.Path = cfg.Recorder.WALPath
	writeAheadLog, err := wal.Open(&walCfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("n6-recorder: open write-ahead log")
	}
	defer writeAheadLog.Close()

	idx := authindex.New()
	reloader := authindex.NewReloader(idx, authindex.NewStaticFileLoader(cfg.AuthDB.DSN), cfg.AuthDB.ReloadInterval)

	bc, err := broker.NewClient(cfg.Broker, nil)
	if err != nil {
		logging.Fatal().Err(err).Msg("n6-recorder: connect broker")
	}
	defer bc.Close()

	stage, err := pipeline.NewStage(pipeline.DefaultStageConfig("n6-recorder"), bc.WatermillPublisher(), nil)
	if err != nil {
		logging.Fatal().Err(err).Msg("n6-recorder: build stage")
	}

	stage.AddConsumerHandler("recorder", "filtered", bc.WatermillSubscriber(), func(msg *message.Message) error {
		entryID, err := writeAheadLog.Write(msg.Context(), msg.Payload)
		if err != nil {
			return fmt.Errorf("n6-recorder: wal write: %w", err)
		}

		event, err := record.FromJSON(msg.Payload)
		if err != nil {
			return fmt.Errorf("n6-recorder: decode event: %w", err)
		}

		clientOrgIDs := idx.Resolve(event, "inside")
		if err := store.Upsert(msg.Context(), event, clientOrgIDs); err != nil {
			return fmt.Errorf("n6-recorder: upsert: %w", err)
		}

		return writeAheadLog.Confirm(msg.Context(), entryID)
	})

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("n6-recorder: build supervisor tree")
	}

	tree.AddDataService(reloader)
	tree.AddMessagingService(services.NewRunAdapter("n6-recorder-stage", stage.Run))

	opsServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port),
		Handler: metrics.Mux(func() bool { return true }),
	}
	tree.AddAPIService(services.NewHTTPServerService(opsServer, cfg.Server.Timeout))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logging.Info().Msg("n6-recorder: shutdown signal received")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logging.Error().Err(err).Msg("n6-recorder: supervisor tree exited with error")
		}
	}

	<-errCh
	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		logging.Warn().Int("count", len(report)).Msg("n6-recorder: services did not stop within the shutdown timeout")
	}
	logging.Info().Msg("n6-recorder: stopped")
}
