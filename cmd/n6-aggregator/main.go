// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command n6-aggregator coalesces high-frequency duplicates per
// (source, group), publishing the first occurrence as an "event" and
// periodic rollups as "suppressed" summaries (C4).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/n6-community/n6/internal/aggregator"
	"github.com/n6-community/n6/internal/broker"
	"github.com/n6-community/n6/internal/config"
	"github.com/n6-community/n6/internal/logging"
	"github.com/n6-community/n6/internal/metrics"
	"github.com/n6-community/n6/internal/pipeline"
	"github.com/n6-community/n6/internal/record"
	"github.com/n6-community/n6/internal/supervisor"
	"github.com/n6-community/n6/internal/supervisor/services"
	"github.com/n6-community/n6/internal/wal"
)

// sourceTracker remembers every source name the aggregator has seen, since
// Aggregator itself exposes no enumeration — only per-source operations.
type sourceTracker struct {
	mu      sync.Mutex
	sources map[string]struct{}
}

func newSourceTracker() *sourceTracker { return &sourceTracker{sources: map[string]struct{}{}} }

func (t *sourceTracker) observe(source string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sources[source] = struct{}{}
}

func (t *sourceTracker) snapshot() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.sources))
	for s := range t.sources {
		out = append(out, s)
	}
	return out
}

func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		fmt.Fprintf(os.Stderr, "n6-aggregator: config: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Caller: cfg.Logging.Caller})
	logging.Info().Msg("n6-aggregator: starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	walCfg := wal.DefaultConfig()
	walCfg.Path = cfg.Aggregator.DBPath
	snapWAL, err := wal.Open(&walCfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("n6-aggregator: open snapshot store")
	}
	defer snapWAL.Close()

	tolerance := cfg.Aggregator.TimeTolerance
	if tolerance <= 0 {
		tolerance = aggregator.DefaultTimeTolerance
	}
	agg := aggregator.New(tolerance, aggregator.NewBadgerSnapshotter(snapWAL))

	tracker := newSourceTracker()

	bc, err := broker.NewClient(cfg.Broker, nil)
	if err != nil {
		logging.Fatal().Err(err).Msg("n6-aggregator: connect broker")
	}
	defer bc.Close()

	stage, err := pipeline.NewStage(pipeline.DefaultStageConfig("n6-aggregator"), bc.WatermillPublisher(), nil)
	if err != nil {
		logging.Fatal().Err(err).Msg("n6-aggregator: build stage")
	}

	stage.AddHandler("aggregator", "parsed", bc.WatermillSubscriber(), "aggregated", bc.WatermillPublisher(), func(msg *message.Message) ([]*message.Message, error) {
		event, err := record.FromJSON(msg.Payload)
		if err != nil {
			return nil, fmt.Errorf("n6-aggregator: decode event: %w", err)
		}
		tracker.observe(event.Source)

		if event.Group == "" {
			payload, err := event.GetReadyJSON()
			if err != nil {
				return nil, fmt.Errorf("n6-aggregator: encode event: %w", err)
			}
			return []*message.Message{message.NewMessage(msg.UUID, payload)}, nil
		}

		decision, err := agg.Process(event.Source, event.Group, event.Time, event)
		if err != nil {
			return nil, fmt.Errorf("n6-aggregator: %w", err)
		}
		if decision == aggregator.DecisionSuppress {
			return nil, nil
		}

		event.Type = record.TypeEvent
		payload, err := event.GetReadyJSON()
		if err != nil {
			return nil, fmt.Errorf("n6-aggregator: encode event: %w", err)
		}
		return []*message.Message{message.NewMessage(msg.UUID, payload)}, nil
	})

	flusher := services.NewRunAdapter("n6-aggregator-flush", func(ctx context.Context) error {
		return runFlushLoop(ctx, cfg.Aggregator.Tick, agg, tracker, bc.WatermillPublisher())
	})

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("n6-aggregator: build supervisor tree")
	}

	tree.AddMessagingService(services.NewRunAdapter("n6-aggregator-stage", stage.Run))
	tree.AddDataService(flusher)

	opsServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port),
		Handler: metrics.Mux(func() bool { return true }),
	}
	tree.AddAPIService(services.NewHTTPServerService(opsServer, cfg.Server.Timeout))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logging.Info().Msg("n6-aggregator: shutdown signal received")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logging.Error().Err(err).Msg("n6-aggregator: supervisor tree exited with error")
		}
	}

	<-errCh
	if err := agg.Save(); err != nil {
		logging.Error().Err(err).Msg("n6-aggregator: final snapshot save failed")
	}
	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		logging.Warn().Int("count", len(report)).Msg("n6-aggregator: services did not stop within the shutdown timeout")
	}
	logging.Info().Msg("n6-aggregator: stopped")
}

// runFlushLoop drives the periodic tick described in spec.md §4.4: every
// interval, pop ripe suppressed summaries from every known source and
// flush any source that has gone idle past SourceInactivityTimeout.
func runFlushLoop(ctx context.Context, interval time.Duration, agg *aggregator.Aggregator, tracker *sourceTracker, pub message.Publisher) error {
	if interval <= 0 {
		interval = aggregator.Tick
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, source := range tracker.snapshot() {
				for _, s := range agg.GenerateSuppressedEvents(source) {
					publishSuppressed(pub, source, s)
				}
			}
			for source, events := range agg.FlushIdleSources() {
				for _, s := range events {
					publishSuppressed(pub, source, s)
				}
			}
			if err := agg.Save(); err != nil {
				logging.Error().Err(err).Msg("n6-aggregator: periodic snapshot save failed")
			}
		}
	}
}

func publishSuppressed(pub message.Publisher, source string, s aggregator.SuppressedEvent) {
	out := s.Payload.Clone()
	out.Type = record.TypeSuppressed
	out.Time = s.FirstTime
	until := s.LastTime
	out.Until = &until
	out.Count = s.Count

	payload, err := out.GetReadyJSON()
	if err != nil {
		logging.Error().Err(err).Str("source", source).Msg("n6-aggregator: encode suppressed event")
		return
	}
	if err := pub.Publish("aggregated", message.NewMessage(watermill.NewUUID(), payload)); err != nil {
		logging.Error().Err(err).Str("source", source).Msg("n6-aggregator: publish suppressed event")
	}
}
