// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command n6-enricher resolves FQDNs to addresses and attaches GeoIP
// annotations to each aggregated event before republishing it enriched
// (C5).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/n6-community/n6/internal/broker"
	"github.com/n6-community/n6/internal/config"
	"github.com/n6-community/n6/internal/enricher"
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
		fmt.Fprintf(os.Stderr, "n6-enricher: config: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Caller: cfg.Logging.Caller})
	logging.Info().Msg("n6-enricher: starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	geoip, err := buildGeoIP(cfg.Enricher)
	if err != nil {
		logging.Fatal().Err(err).Msg("n6-enricher: load geoip databases")
	}

	excludeList := enricher.NewExcludeList(cfg.Enricher.ExcludedIPs)
	resolver := enricher.NewMiekgDNSResolver(cfg.Enricher.DNSHost, cfg.Enricher.DNSPort, cfg.Enricher.DNSTimeout)
	enr := enricher.New(resolver, geoip, excludeList, cfg.Enricher.ResolveFQDNToIP, cfg.Enricher.DNSTimeout)

	bc, err := broker.NewClient(cfg.Broker, nil)
	if err != nil {
		logging.Fatal().Err(err).Msg("n6-enricher: connect broker")
	}
	defer bc.Close()

	stage, err := pipeline.NewStage(pipeline.DefaultStageConfig("n6-enricher"), bc.WatermillPublisher(), nil)
	if err != nil {
		logging.Fatal().Err(err).Msg("n6-enricher: build stage")
	}

	stage.AddHandler("enricher", "aggregated", bc.WatermillSubscriber(), "enriched", bc.WatermillPublisher(), func(msg *message.Message) ([]*message.Message, error) {
		event, err := record.FromJSON(msg.Payload)
		if err != nil {
			return nil, fmt.Errorf("n6-enricher: decode event: %w", err)
		}

		enr.Enrich(msg.Context(), event)

		payload, err := event.GetReadyJSON()
		if err != nil {
			return nil, fmt.Errorf("n6-enricher: encode event: %w", err)
		}
		return []*message.Message{message.NewMessage(msg.UUID, payload)}, nil
	})

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("n6-enricher: build supervisor tree")
	}

	tree.AddMessagingService(services.NewRunAdapter("n6-enricher-stage", stage.Run))

	opsServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port),
		Handler: metrics.Mux(func() bool { return true }),
	}
	tree.AddAPIService(services.NewHTTPServerService(opsServer, cfg.Server.Timeout))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logging.Info().Msg("n6-enricher: shutdown signal received")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logging.Error().Err(err).Msg("n6-enricher: supervisor tree exited with error")
		}
	}

	<-errCh
	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		logging.Warn().Int("count", len(report)).Msg("n6-enricher: services did not stop within the shutdown timeout")
	}
	logging.Info().Msg("n6-enricher: stopped")
}

// buildGeoIP returns a NoopGeoIP when no database paths are configured,
// and a FlatFileGeoIP otherwise (see DESIGN.md for why there is no
// MaxMind-format reader bundled).
func buildGeoIP(cfg config.EnricherConfig) (enricher.GeoIPLookup, error) {
	if cfg.ASNDatabaseFile == "" && cfg.CityDatabaseFile == "" {
		return enricher.NoopGeoIP{}, nil
	}

	asnPath, ccPath := "", ""
	if cfg.ASNDatabaseFile != "" {
		asnPath = filepath.Join(cfg.GeoIPPath, cfg.ASNDatabaseFile)
	}
	if cfg.CityDatabaseFile != "" {
		ccPath = filepath.Join(cfg.GeoIPPath, cfg.CityDatabaseFile)
	}
	return enricher.NewFlatFileGeoIP(asnPath, ccPath)
}
