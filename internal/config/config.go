// Package config defines all configuration structures for molbayes.  No I/O
// or parsing logic lives here, only plain data types and validation.
package config

import (
	"fmt"
	"time"

	"github.com/turtacn/molbayes/internal/domain/molecule"
	"github.com/turtacn/molbayes/internal/intelligence/bayesian"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// LogConfig holds structured-logging parameters.
type LogConfig struct {
	Level       string   `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
	Format      string   `mapstructure:"format"` // "json" | "console"
	OutputPaths []string `mapstructure:"output_paths"`
}

// ModelConfig holds the defaults for training runs.
type ModelConfig struct {
	Kind    string `mapstructure:"kind"` // ECFP0 .. ECFP6
	Folding int    `mapstructure:"folding"`
	// Validation is empty (no validation), "loo", "3" or "5".
	Validation  string `mapstructure:"validation"`
	Parallelism int    `mapstructure:"parallelism"`
}

// MetricsConfig controls the Prometheus registry.  Metrics are written to a
// node-exporter textfile when TextfilePath is set.
type MetricsConfig struct {
	Namespace       string `mapstructure:"namespace"`
	EnableGoMetrics bool   `mapstructure:"enable_go_metrics"`
	TextfilePath    string `mapstructure:"textfile_path"`
}

// StorageConfig holds MinIO / S3-compatible object-storage parameters.
type StorageConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Endpoint       string        `mapstructure:"endpoint"`
	AccessKey      string        `mapstructure:"access_key"`
	SecretKey      string        `mapstructure:"secret_key"`
	UseSSL         bool          `mapstructure:"use_ssl"`
	Region         string        `mapstructure:"region"`
	Bucket         string        `mapstructure:"bucket"`
	Prefix         string        `mapstructure:"prefix"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// CacheConfig holds Redis connection and model-cache parameters.
type CacheConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	TTL          time.Duration `mapstructure:"ttl"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// EventsConfig holds Kafka producer parameters for model lifecycle events.
type EventsConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	Source       string        `mapstructure:"source"`
	Acks         string        `mapstructure:"acks"` // "none" | "one" | "all"
	MaxRetries   int           `mapstructure:"max_retries"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Compression  string        `mapstructure:"compression"`
}

// ServerConfig holds the HTTP API listener parameters used by "molbayes serve".
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration structure.  Storage, cache and events are
// optional; a disabled section is never validated.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Model   ModelConfig   `mapstructure:"model"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Storage StorageConfig `mapstructure:"storage"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Events  EventsConfig  `mapstructure:"events"`
	Server  ServerConfig  `mapstructure:"server"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate performs semantic validation of the fully-populated Config and
// returns the first error encountered.
func (c *Config) Validate() error {
	// Log
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	// Model
	if _, err := molecule.ParseKind(c.Model.Kind); err != nil {
		return fmt.Errorf("config: model.kind %q is invalid; expected ECFP0|ECFP2|ECFP4|ECFP6", c.Model.Kind)
	}
	if !molecule.ValidFolding(c.Model.Folding) {
		return fmt.Errorf("config: model.folding %d must be 0 or a power of two", c.Model.Folding)
	}
	if c.Model.Validation != "" {
		if _, err := bayesian.ParseValidationType(c.Model.Validation); err != nil {
			return fmt.Errorf("config: model.validation %q is invalid; expected loo|3|5", c.Model.Validation)
		}
	}
	if c.Model.Parallelism < 1 {
		return fmt.Errorf("config: model.parallelism must be ≥ 1, got %d", c.Model.Parallelism)
	}

	// Metrics
	if c.Metrics.Namespace == "" {
		return fmt.Errorf("config: metrics.namespace is required")
	}

	// Storage
	if c.Storage.Enabled {
		if c.Storage.Endpoint == "" {
			return fmt.Errorf("config: storage.endpoint is required when storage is enabled")
		}
		if c.Storage.Bucket == "" {
			return fmt.Errorf("config: storage.bucket is required when storage is enabled")
		}
	}

	// Cache
	if c.Cache.Enabled {
		if !c.Storage.Enabled {
			return fmt.Errorf("config: cache requires storage to be enabled")
		}
		if c.Cache.Addr == "" {
			return fmt.Errorf("config: cache.addr is required when cache is enabled")
		}
		if c.Cache.DB < 0 {
			return fmt.Errorf("config: cache.db must be ≥ 0, got %d", c.Cache.DB)
		}
		if c.Cache.TTL < 0 {
			return fmt.Errorf("config: cache.ttl must be ≥ 0, got %s", c.Cache.TTL)
		}
	}

	// Events
	if c.Events.Enabled {
		if len(c.Events.Brokers) == 0 {
			return fmt.Errorf("config: events.brokers must contain at least one broker address")
		}
		if c.Events.Topic == "" {
			return fmt.Errorf("config: events.topic is required when events are enabled")
		}
		switch c.Events.Acks {
		case "none", "one", "all":
		default:
			return fmt.Errorf("config: events.acks %q is invalid; expected none|one|all", c.Events.Acks)
		}
	}

	// Server
	if c.Server.Addr == "" {
		return fmt.Errorf("config: server.addr is required")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("config: server.max_body_bytes must be > 0, got %d", c.Server.MaxBodyBytes)
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.IdleTimeout < 0 || c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("config: server timeouts must not be negative")
	}

	return nil
}
