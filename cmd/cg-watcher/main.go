// ED Companion - Market Feed and Community Goal Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edcompanion

// Command cg-watcher checks the Inara community goals for changes and
// notifies subscribers about new goals, new tiers and finished goals.
//
// By default it runs exactly one pass and exits, so it can be driven by cron
// or a Kubernetes CronJob. The exit code is non-zero when the pass failed.
// With -loop it runs a pass every GOALS_INTERVAL under the supervisor tree
// until SIGINT or SIGTERM.
//
//	INARA_API_KEY=... NOTIFY_TRANSPORT=fcm FCM_CREDENTIALS_FILE=sa.json ./cg-watcher
//	./cg-watcher -loop
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/edcompanion/internal/config"
	"github.com/tomtom215/edcompanion/internal/database"
	"github.com/tomtom215/edcompanion/internal/goals"
	"github.com/tomtom215/edcompanion/internal/inara"
	"github.com/tomtom215/edcompanion/internal/logging"
	"github.com/tomtom215/edcompanion/internal/notify"
	"github.com/tomtom215/edcompanion/internal/supervisor"
)

func main() {
	loop := flag.Bool("loop", false, "run a pass every goals.interval instead of once")
	flag.Parse()

	os.Exit(run(*loop))
}

func run(loop bool) int {
	cfg, err := config.Load()
	if err != nil {
		logging.Error().Err(err).Msg("Failed to load configuration")
		return 1
	}
	logging.Init(cfg.LoggingOptions())

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

	var opts []inara.Option
	if cfg.Inara.CacheTTL > 0 {
		cache, err := inara.OpenCache(cfg.Inara.CacheDir, cfg.Inara.CacheTTL)
		if err != nil {
			logging.Error().Err(err).Msg("Failed to open Inara response cache")
			return 1
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logging.Err(err).Msg("Error closing Inara response cache")
			}
		}()
		opts = append(opts, inara.WithCache(cache))
	}
	source := inara.NewClient(&cfg.Inara, opts...)

	userAgent := cfg.Inara.AppName + "/" + cfg.Inara.AppVersion
	sender, err := notify.NewSender(ctx, &cfg.Notify, userAgent)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to initialize notification transport")
		return 1
	}
	dispatcher := notify.NewDispatcher(sender, &cfg.Notify, cfg.Debug)

	watcher := goals.NewWatcher(source, db, dispatcher)

	logging.Info().
		Str("version", config.Version).
		Str("transport", sender.Name()).
		Bool("debug", cfg.Debug).
		Bool("loop", loop).
		Msg("Starting community goal watcher")

	if !loop {
		if _, err := watcher.RunOnce(ctx); err != nil {
			logging.Error().Err(err).Msg("Community goal pass failed")
			return 1
		}
		return 0
	}

	if cfg.Goals.Interval <= 0 {
		logging.Error().Dur("interval", cfg.Goals.Interval).Msg("GOALS_INTERVAL must be positive with -loop")
		return 1
	}

	tree, err := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfigFrom(&cfg.Supervisor))
	if err != nil {
		logging.Error().Err(err).Msg("Failed to create supervisor tree")
		return 1
	}
	tree.AddWorkService(goals.NewLoop(watcher, cfg.Goals.Interval))

	if err := <-tree.ServeBackground(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}

	stats := dispatcher.Stats()
	logging.Info().Int64("sent", stats.Sent).Int64("failed", stats.Failed).Msg("Community goal watcher stopped")
	if ctx.Err() == nil {
		return 1
	}
	return 0
}
