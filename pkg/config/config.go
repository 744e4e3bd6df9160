// Package config loads cardflow settings from an optional YAML file and
// CARDFLOW_ environment variables. Environment variables override the file;
// a double underscore separates nesting levels, so CARDFLOW_REDIS__ADDR sets
// redis.addr.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/vnykmshr/cardflow/pkg/common/validation"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "CARDFLOW_"

// DefaultFile is read by Load when no path is given. It may be absent.
const DefaultFile = "cardflow.yaml"

// Config is the complete cardflow configuration.
type Config struct {
	Log       LogConfig       `koanf:"log"`
	Redis     RedisConfig     `koanf:"redis"`
	Transport TransportConfig `koanf:"transport"`
	Server    ServerConfig    `koanf:"server"`
	Dedup     DedupConfig     `koanf:"dedup"`
	Storage   StorageConfig   `koanf:"storage"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Metrics   MetricsConfig   `koanf:"metrics"`
}

// LogConfig selects the slog level and handler format.
type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // text, json
}

// RedisConfig locates the Redis server backing the bus.
type RedisConfig struct {
	Addr     string        `koanf:"addr"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"`
	Prefix   string        `koanf:"prefix"`
	ReplyTTL time.Duration `koanf:"reply_ttl"`
}

// TransportConfig tunes the retry client.
type TransportConfig struct {
	MaxAttempts int           `koanf:"max_attempts"`
	BaseDelay   time.Duration `koanf:"base_delay"`
	Timeout     time.Duration `koanf:"timeout"`
}

// ServerConfig sizes the executor and paces its receive loop.
type ServerConfig struct {
	Workers        int           `koanf:"workers"`
	QueueSize      int           `koanf:"queue_size"`
	ReceiveWait    time.Duration `koanf:"receive_wait"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	RateLimit      float64       `koanf:"rate_limit"` // requests per second, 0 disables
	Burst          int           `koanf:"burst"`
}

// DedupConfig controls the reply cache for retried requests.
type DedupConfig struct {
	Enabled       bool          `koanf:"enabled"`
	TTL           time.Duration `koanf:"ttl"`
	MaxEntries    int           `koanf:"max_entries"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// StorageConfig picks the store serving ModeProd requests.
type StorageConfig struct {
	Type   string       `koanf:"type"` // sqlite, memory
	SQLite SQLiteConfig `koanf:"sqlite"`
}

// SQLiteConfig locates the SQLite database file.
type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// TelemetryConfig enables span export.
type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

// MetricsConfig controls the Prometheus registry and ops listener.
type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Addr      string `koanf:"addr"`
	Namespace string `koanf:"namespace"`
}

// Default returns the settings used for keys absent from every source.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Prefix:   "cardflow",
			ReplyTTL: time.Minute,
		},
		Transport: TransportConfig{
			MaxAttempts: 4,
			BaseDelay:   200 * time.Millisecond,
			Timeout:     5 * time.Second,
		},
		Server: ServerConfig{
			Workers:        8,
			QueueSize:      64,
			ReceiveWait:    time.Second,
			RequestTimeout: 30 * time.Second,
			Burst:          16,
		},
		Dedup: DedupConfig{
			Enabled:       true,
			TTL:           time.Minute,
			MaxEntries:    10000,
			SweepInterval: 30 * time.Second,
		},
		Storage: StorageConfig{
			Type:   "sqlite",
			SQLite: SQLiteConfig{Path: "cardflow.db"},
		},
		Telemetry: TelemetryConfig{ServiceName: "cardflow"},
		Metrics: MetricsConfig{
			Enabled:   true,
			Addr:      ":9090",
			Namespace: "cardflow",
		},
	}
}

// Load reads path, or DefaultFile when path is empty, then the environment.
// An explicit path must exist.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	name := path
	if name == "" {
		name = DefaultFile
	}
	if err := k.Load(file.Provider(name), yaml.Parser()); err != nil {
		if path != "" || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", name, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Validate checks the values the services cannot start without.
func (c *Config) Validate() error {
	if err := validation.ValidateOneOf("config", "log.level", c.Log.Level, "debug", "info", "warn", "error"); err != nil {
		return err
	}
	if err := validation.ValidateOneOf("config", "log.format", c.Log.Format, "text", "json"); err != nil {
		return err
	}
	if err := validation.ValidateOneOf("config", "storage.type", c.Storage.Type, "sqlite", "memory"); err != nil {
		return err
	}
	if c.Storage.Type == "sqlite" {
		if err := validation.ValidateNotEmpty("config", "storage.sqlite.path", c.Storage.SQLite.Path); err != nil {
			return err
		}
	}
	if err := validation.ValidatePositive("config", "transport.max_attempts", c.Transport.MaxAttempts); err != nil {
		return err
	}
	if err := validation.ValidatePositiveDuration("config", "transport.base_delay", c.Transport.BaseDelay); err != nil {
		return err
	}
	if err := validation.ValidatePositiveDuration("config", "transport.timeout", c.Transport.Timeout); err != nil {
		return err
	}
	if err := validation.ValidatePositive("config", "server.workers", c.Server.Workers); err != nil {
		return err
	}
	if c.Server.RateLimit > 0 {
		if err := validation.ValidatePositive("config", "server.burst", c.Server.Burst); err != nil {
			return err
		}
	}
	if c.Dedup.Enabled {
		if err := validation.ValidatePositiveDuration("config", "dedup.ttl", c.Dedup.TTL); err != nil {
			return err
		}
	}
	return nil
}
