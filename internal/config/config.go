// Package config loads dashboard settings from a YAML file, PERTDASH_*
// environment variables and command-line flags.
package config

import (
	"fmt"
	"net/url"
	"time"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// MaxFeedCapacity is the largest update history the feed may retain.
const MaxFeedCapacity = 50

// Config is the full application configuration.
type Config struct {
	Engine  EngineConfig  `mapstructure:"engine" yaml:"engine"`
	Channel ChannelConfig `mapstructure:"channel" yaml:"channel"`
	Feed    FeedConfig    `mapstructure:"feed" yaml:"feed"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Archive ArchiveConfig `mapstructure:"archive" yaml:"archive"`
	HTTP    HTTPConfig    `mapstructure:"http" yaml:"http"`
}

// EngineConfig addresses the analysis engine's request/response API.
type EngineConfig struct {
	BaseURL string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// ChannelConfig configures the push channel.
type ChannelConfig struct {
	Endpoint                string        `mapstructure:"endpoint" yaml:"endpoint"`
	ReconnectDelay          time.Duration `mapstructure:"reconnect_delay" yaml:"reconnect_delay"`
	PingInterval            time.Duration `mapstructure:"ping_interval" yaml:"ping_interval"` // 0 disables keep-alive
	WriteTimeout            time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	HandshakeTimeout        time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`
	SurfaceConnectionErrors bool          `mapstructure:"surface_connection_errors" yaml:"surface_connection_errors"`
}

// FeedConfig sizes the in-memory update feed.
type FeedConfig struct {
	Capacity int `mapstructure:"capacity" yaml:"capacity"`
}

// StorageConfig selects where tasks, events and comparisons live.
type StorageConfig struct {
	Backend       string `mapstructure:"backend" yaml:"backend"`
	PostgresDSN   string `mapstructure:"postgres_dsn" yaml:"postgres_dsn"`
	ClickhouseDSN string `mapstructure:"clickhouse_dsn" yaml:"clickhouse_dsn"` // optional comparison history
}

// ArchiveConfig controls event archiving.
type ArchiveConfig struct {
	Enabled    bool `mapstructure:"enabled" yaml:"enabled"`
	BufferSize int  `mapstructure:"buffer_size" yaml:"buffer_size"`
}

// HTTPConfig configures the status API.
type HTTPConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"` // empty disables the server
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			BaseURL: "http://127.0.0.1:8000",
			Timeout: 30 * time.Second,
		},
		Channel: ChannelConfig{
			Endpoint:         "ws://127.0.0.1:8000/ws/updates",
			ReconnectDelay:   5 * time.Second,
			PingInterval:     15 * time.Second,
			WriteTimeout:     10 * time.Second,
			HandshakeTimeout: 10 * time.Second,
		},
		Feed: FeedConfig{
			Capacity: MaxFeedCapacity,
		},
		Storage: StorageConfig{
			Backend: BackendMemory,
		},
		Archive: ArchiveConfig{
			Enabled:    false,
			BufferSize: 256,
		},
		HTTP: HTTPConfig{
			Addr: ":9090",
		},
	}
}

// Validate checks the configuration for values the components cannot use.
func (c *Config) Validate() error {
	if _, err := url.ParseRequestURI(c.Engine.BaseURL); err != nil {
		return fmt.Errorf("engine.base_url: %w", err)
	}

	u, err := url.Parse(c.Channel.Endpoint)
	if err != nil {
		return fmt.Errorf("channel.endpoint: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("channel.endpoint: scheme must be ws or wss, got %q", u.Scheme)
	}
	if c.Channel.ReconnectDelay <= 0 {
		return fmt.Errorf("channel.reconnect_delay must be positive")
	}
	if c.Channel.PingInterval < 0 {
		return fmt.Errorf("channel.ping_interval must not be negative")
	}
	if c.Feed.Capacity <= 0 || c.Feed.Capacity > MaxFeedCapacity {
		return fmt.Errorf("feed.capacity must be between 1 and %d, got %d", MaxFeedCapacity, c.Feed.Capacity)
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("storage.backend: unknown backend %q", c.Storage.Backend)
	}

	return nil
}
