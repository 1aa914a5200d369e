// ED Companion - Market Feed and Community Goal Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edcompanion

// Package config loads daemon configuration from defaults, an optional YAML
// file, and environment variables, in that order of precedence.
package config

import "time"

// Version is reported to upstream services in User-Agent and Inara headers.
var Version = "dev"

// Config is the root configuration shared by both daemons.
type Config struct {
	Feed       FeedConfig       `koanf:"feed"`
	Database   DatabaseConfig   `koanf:"database"`
	Inara      InaraConfig      `koanf:"inara"`
	Notify     NotifyConfig     `koanf:"notify"`
	Goals      GoalsConfig      `koanf:"goals"`
	NATS       NATSConfig       `koanf:"nats"`
	Logging    LoggingConfig    `koanf:"logging"`
	Supervisor SupervisorConfig `koanf:"supervisor"`

	// Debug routes notifications to test topics and lowers the default log level.
	Debug bool `koanf:"debug"`
}

// FeedConfig configures the live market feed subscriber.
type FeedConfig struct {
	Relay          string        `koanf:"relay" validate:"required,startswith=tcp://"`
	SchemaRef      string        `koanf:"schema_ref" validate:"required"`
	RecvTimeout    time.Duration `koanf:"recv_timeout" validate:"gt=0"`
	ReconnectDelay time.Duration `koanf:"reconnect_delay" validate:"gte=0"`

	// ResolveCacheSize bounds the station and commodity lookup caches.
	// Zero, the default, disables them. See feed.Resolver before enabling.
	ResolveCacheSize int           `koanf:"resolve_cache_size" validate:"gte=0"`
	ResolveCacheTTL  time.Duration `koanf:"resolve_cache_ttl" validate:"gte=0"`
}

// DatabaseConfig selects the relational store.
type DatabaseConfig struct {
	Driver          string        `koanf:"driver" validate:"oneof=duckdb postgres"`
	DSN             string        `koanf:"dsn"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"gte=1"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime" validate:"gte=0"`
}

// InaraConfig configures the community goal source.
type InaraConfig struct {
	APIURL     string        `koanf:"api_url" validate:"required,url"`
	PageURL    string        `koanf:"page_url" validate:"omitempty,url"`
	APIKey     string        `koanf:"api_key"`
	AppName    string        `koanf:"app_name" validate:"required"`
	AppVersion string        `koanf:"app_version"`
	Developed  bool          `koanf:"developed"`
	Timeout    time.Duration `koanf:"timeout" validate:"gt=0"`

	// CacheDir enables the on-disk response cache when CacheTTL > 0.
	CacheDir string        `koanf:"cache_dir"`
	CacheTTL time.Duration `koanf:"cache_ttl" validate:"gte=0"`
}

// NotifyConfig configures push notifications for goal transitions.
type NotifyConfig struct {
	Transport   string        `koanf:"transport" validate:"oneof=fcm webhook log"`
	TTL         time.Duration `koanf:"ttl" validate:"gte=0"`
	Priority    string        `koanf:"priority" validate:"oneof=high normal"`
	TopicSuffix string        `koanf:"topic_suffix"`
	RateLimit   float64       `koanf:"rate_limit" validate:"gte=0"`

	FCM     FCMConfig     `koanf:"fcm"`
	Webhook WebhookConfig `koanf:"webhook"`
}

// FCMConfig configures Firebase Cloud Messaging.
type FCMConfig struct {
	CredentialsFile string `koanf:"credentials_file"`
	ProjectID       string `koanf:"project_id"`
}

// WebhookConfig configures the generic webhook transport.
type WebhookConfig struct {
	URL     string            `koanf:"url" validate:"omitempty,url"`
	Headers map[string]string `koanf:"headers"`
}

// GoalsConfig configures cg-watcher loop mode.
type GoalsConfig struct {
	Interval time.Duration `koanf:"interval" validate:"gte=0"`
}

// NATSConfig configures fan-out of applied price updates.
type NATSConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`
	Subject string `koanf:"subject"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// SupervisorConfig tunes the suture tree.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold" validate:"gt=0"`
	FailureDecay     float64       `koanf:"failure_decay" validate:"gt=0"`
	FailureBackoff   time.Duration `koanf:"failure_backoff" validate:"gt=0"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// EffectiveTopicSuffix returns the suffix appended to notification topics.
// Debug mode always routes to the test topics.
func (n NotifyConfig) EffectiveTopicSuffix(debug bool) string {
	if n.TopicSuffix != "" {
		return n.TopicSuffix
	}
	if debug {
		return "_test"
	}
	return ""
}
