// ED Companion - Market Feed and Community Goal Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edcompanion

// Command eddn-listener subscribes to the EDDN relay and keeps commodity
// prices current. It runs until SIGINT or SIGTERM.
//
// Configuration is layered (highest priority wins):
//   - Environment variables (EDDN_RELAY, DATABASE_URI, NATS_ENABLED, ...)
//   - Config file (CONFIG_PATH or config.yaml)
//   - Built-in defaults
//
// The feed client and, when NATS_ENABLED=true, the price publisher run under
// the supervisor tree:
//
//	DATABASE_DRIVER=postgres DATABASE_URI=postgres://... ./eddn-listener
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/edcompanion/internal/config"
	"github.com/tomtom215/edcompanion/internal/database"
	"github.com/tomtom215/edcompanion/internal/events"
	"github.com/tomtom215/edcompanion/internal/feed"
	"github.com/tomtom215/edcompanion/internal/logging"
	"github.com/tomtom215/edcompanion/internal/supervisor"
	"github.com/tomtom215/edcompanion/internal/supervisor/services"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code. The tree only stops on its own when a
// service could not be kept alive.
func run() int {
	cfg, err := config.Load()
	if err != nil {
		logging.Error().Err(err).Msg("Failed to load configuration")
		return 1
	}
	logging.Init(cfg.LoggingOptions())

	logging.Info().
		Str("version", config.Version).
		Str("relay", cfg.Feed.Relay).
		Str("db_driver", cfg.Database.Driver).
		Bool("nats_enabled", cfg.NATS.Enabled).
		Msg("Starting EDDN listener")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := database.Open(ctx, &cfg.Database)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to initialize database")
		return 1
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Err(err).Msg("Error closing database")
		}
	}()

	tree, err := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfigFrom(&cfg.Supervisor))
	if err != nil {
		logging.Error().Err(err).Msg("Failed to create supervisor tree")
		return 1
	}

	var publisher feed.PricePublisher
	if cfg.NATS.Enabled {
		pub, err := events.NewNATSPublisher(&cfg.NATS)
		if err != nil {
			logging.Error().Err(err).Msg("Failed to create NATS publisher")
			return 1
		}
		publisher = pub
		tree.AddMessagingService(services.NewCloserService("nats-publisher", pub))
		logging.Info().Str("url", cfg.NATS.URL).Str("subject", cfg.NATS.Subject).Msg("Price events enabled")
	}

	var handlerOpts []feed.HandlerOption
	var resolver *feed.Resolver
	if cfg.Feed.ResolveCacheSize > 0 {
		resolver = feed.NewResolver(cfg.Feed.ResolveCacheSize, cfg.Feed.ResolveCacheTTL)
		handlerOpts = append(handlerOpts, feed.WithResolver(resolver))
	}

	handler := feed.NewHandler(db, cfg.Feed.SchemaRef, publisher, handlerOpts...)
	client := feed.NewClient(&cfg.Feed, feed.ZMQDialer{}, handler)
	tree.AddWorkService(client)

	if err := <-tree.ServeBackground(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
	}

	stats := client.Stats()
	logging.Info().
		Int64("messages", stats.Messages).
		Int64("connects", stats.Connects).
		Int64("faults", stats.Faults).
		Msg("EDDN listener stopped")
	if resolver != nil {
		rs := resolver.Stats()
		logging.Info().
			Int64("station_hits", rs.StationHits).
			Int64("station_misses", rs.StationMisses).
			Int64("commodity_hits", rs.CommodityHits).
			Int64("commodity_misses", rs.CommodityMisses).
			Msg("Resolution cache stats")
	}

	if ctx.Err() == nil {
		return 1
	}
	return 0
}
