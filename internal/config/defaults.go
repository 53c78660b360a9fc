package config

import (
	"runtime"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultModelKind = "ECFP6"

	DefaultMetricsNamespace = "molbayes"

	DefaultStorageEndpoint = "localhost:9000"
	DefaultStorageRegion   = "us-east-1"
	DefaultStorageBucket   = "molbayes-models"
	DefaultStorageTimeout  = 10 * time.Second

	DefaultCacheAddr      = "localhost:6379"
	DefaultCachePoolSize  = 10
	DefaultCacheTTL       = time.Hour
	DefaultCacheKeyPrefix = "molbayes:model:"

	DefaultEventsBroker = "localhost:9092"
	DefaultEventsTopic  = "molbayes.model.events"
	DefaultEventsSource = "molbayes"
	DefaultEventsAcks   = "one"

	DefaultServerAddr            = ":8080"
	DefaultServerReadTimeout     = 15 * time.Second
	DefaultServerWriteTimeout    = 5 * time.Minute
	DefaultServerIdleTimeout     = 60 * time.Second
	DefaultServerShutdownTimeout = 30 * time.Second
	DefaultServerMaxBodyBytes    = 64 << 20
)

// ApplyDefaults fills every zero-value field in cfg with the default.  Fields
// already set by the caller are left unchanged so explicit configuration
// always wins.  Model.Folding and the boolean switches have meaningful zero
// values and are never defaulted.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	// ── Model ─────────────────────────────────────────────────────────────────
	if cfg.Model.Kind == "" {
		cfg.Model.Kind = DefaultModelKind
	}
	if cfg.Model.Parallelism == 0 {
		cfg.Model.Parallelism = runtime.NumCPU()
	}

	// ── Metrics ───────────────────────────────────────────────────────────────
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}

	// ── Storage ───────────────────────────────────────────────────────────────
	if cfg.Storage.Endpoint == "" {
		cfg.Storage.Endpoint = DefaultStorageEndpoint
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = DefaultStorageRegion
	}
	if cfg.Storage.Bucket == "" {
		cfg.Storage.Bucket = DefaultStorageBucket
	}
	if cfg.Storage.ConnectTimeout == 0 {
		cfg.Storage.ConnectTimeout = DefaultStorageTimeout
	}

	// ── Cache ─────────────────────────────────────────────────────────────────
	if cfg.Cache.Addr == "" {
		cfg.Cache.Addr = DefaultCacheAddr
	}
	if cfg.Cache.PoolSize == 0 {
		cfg.Cache.PoolSize = DefaultCachePoolSize
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = DefaultCacheTTL
	}
	if cfg.Cache.KeyPrefix == "" {
		cfg.Cache.KeyPrefix = DefaultCacheKeyPrefix
	}

	// ── Events ────────────────────────────────────────────────────────────────
	if len(cfg.Events.Brokers) == 0 {
		cfg.Events.Brokers = []string{DefaultEventsBroker}
	}
	if cfg.Events.Topic == "" {
		cfg.Events.Topic = DefaultEventsTopic
	}
	if cfg.Events.Source == "" {
		cfg.Events.Source = DefaultEventsSource
	}
	if cfg.Events.Acks == "" {
		cfg.Events.Acks = DefaultEventsAcks
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultServerAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultServerReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultServerWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultServerIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultServerShutdownTimeout
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = DefaultServerMaxBodyBytes
	}
}
