package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PERTDASH_CHANNEL_ENDPOINT.
const EnvPrefix = "PERTDASH"

// DefaultConfigFile is read when no path is given and the file exists.
const DefaultConfigFile = "pertdash.yaml"

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"engine-url":      "engine.base_url",
	"endpoint":        "channel.endpoint",
	"reconnect-delay": "channel.reconnect_delay",
	"storage":         "storage.backend",
	"postgres-dsn":    "storage.postgres_dsn",
	"clickhouse-dsn":  "storage.clickhouse_dsn",
	"archive":         "archive.enabled",
	"http-addr":       "http.addr",
}

// Load builds the configuration. Precedence, highest first: changed flags,
// PERTDASH_* env vars, the YAML file at path, defaults. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("engine.base_url", d.Engine.BaseURL)
	v.SetDefault("engine.timeout", d.Engine.Timeout)
	v.SetDefault("channel.endpoint", d.Channel.Endpoint)
	v.SetDefault("channel.reconnect_delay", d.Channel.ReconnectDelay)
	v.SetDefault("channel.ping_interval", d.Channel.PingInterval)
	v.SetDefault("channel.write_timeout", d.Channel.WriteTimeout)
	v.SetDefault("channel.handshake_timeout", d.Channel.HandshakeTimeout)
	v.SetDefault("channel.surface_connection_errors", d.Channel.SurfaceConnectionErrors)
	v.SetDefault("feed.capacity", d.Feed.Capacity)
	v.SetDefault("storage.backend", d.Storage.Backend)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)
	v.SetDefault("storage.clickhouse_dsn", d.Storage.ClickhouseDSN)
	v.SetDefault("archive.enabled", d.Archive.Enabled)
	v.SetDefault("archive.buffer_size", d.Archive.BufferSize)
	v.SetDefault("http.addr", d.HTTP.Addr)
}

// LoadEnvFile loads KEY=VALUE lines from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadEnvFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read env file: %w", err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(strings.TrimPrefix(key, "export "))
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		if _, set := os.LookupEnv(key); !set {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("set %s: %w", key, err)
			}
		}
	}
	return nil
}
