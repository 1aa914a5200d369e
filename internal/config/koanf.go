// ED Companion - Market Feed and Community Goal Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edcompanion

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order; the first existing file wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/edcompanion/config.yaml",
	"/etc/edcompanion/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// Upstream endpoints.
const (
	DefaultRelay     = "tcp://eddn.edcd.io:9500"
	CommoditySchema  = "https://eddn.edcd.io/schemas/commodity/3"
	DefaultInaraAPI  = "https://inara.cz/inapi/v1/"
	DefaultInaraPage = "https://inara.cz/galaxy-communitygoals/"
)

func defaultConfig() *Config {
	return &Config{
		Feed: FeedConfig{
			Relay:          DefaultRelay,
			SchemaRef:      CommoditySchema,
			RecvTimeout:    600 * time.Second,
			ReconnectDelay: time.Second,

			ResolveCacheSize: 0,
			ResolveCacheTTL:  10 * time.Minute,
		},
		Database: DatabaseConfig{
			Driver:          "duckdb",
			DSN:             "/data/edcompanion.duckdb",
			MaxOpenConns:    4,
			MaxIdleConns:    2,
			ConnMaxLifetime: time.Hour,
		},
		Inara: InaraConfig{
			APIURL:     DefaultInaraAPI,
			PageURL:    DefaultInaraPage,
			AppName:    "EDCompanion",
			AppVersion: Version,
			Timeout:    3 * time.Second,
			CacheDir:   "",
			CacheTTL:   0,
		},
		Notify: NotifyConfig{
			Transport: "log",
			TTL:       24 * time.Hour,
			Priority:  "high",
			RateLimit: 5,
		},
		Goals: GoalsConfig{
			Interval: 10 * time.Minute,
		},
		NATS: NATSConfig{
			Enabled: false,
			URL:     "nats://127.0.0.1:4222",
			Subject: "edcompanion.prices.updated",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureDecay:     30,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
	}
}

// Load reads configuration with precedence ENV > file > defaults and
// validates the result.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	// Debug raises verbosity unless a non-default level was chosen.
	if cfg.Debug && cfg.Logging.Level == "info" {
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envMappings keeps the variable names the daemons have always been
// deployed with.
var envMappings = map[string]string{
	"debug": "debug",

	"eddn_relay":           "feed.relay",
	"eddn_schema":          "feed.schema_ref",
	"eddn_timeout":         "feed.recv_timeout",
	"eddn_reconnect_delay": "feed.reconnect_delay",
	"eddn_resolve_cache":   "feed.resolve_cache_size",
	"eddn_resolve_ttl":     "feed.resolve_cache_ttl",

	"database_driver":    "database.driver",
	"database_uri":       "database.dsn",
	"database_max_conns": "database.max_open_conns",

	"inara_api_url":     "inara.api_url",
	"inara_page_url":    "inara.page_url",
	"inara_api_key":     "inara.api_key",
	"inara_app_name":    "inara.app_name",
	"inara_app_version": "inara.app_version",
	"inara_developed":   "inara.developed",
	"inara_timeout":     "inara.timeout",
	"inara_cache_dir":   "inara.cache_dir",
	"inara_cache_ttl":   "inara.cache_ttl",

	"notify_transport":     "notify.transport",
	"notify_ttl":           "notify.ttl",
	"notify_priority":      "notify.priority",
	"notify_topic_suffix":  "notify.topic_suffix",
	"notify_rate_limit":    "notify.rate_limit",
	"fcm_credentials_file": "notify.fcm.credentials_file",
	"fcm_project_id":       "notify.fcm.project_id",
	"notify_webhook_url":   "notify.webhook.url",
	"goals_interval":       "goals.interval",

	"nats_enabled": "nats.enabled",
	"nats_url":     "nats.url",
	"nats_subject": "nats.subject",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps an environment variable name to its koanf path.
// Unmapped variables return "" and are ignored.
//
//	DATABASE_URI  -> database.dsn
//	EDDN_TIMEOUT  -> feed.recv_timeout
//	INARA_API_KEY -> inara.api_key
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
