package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaults_EmptyConfig(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
	assert.Equal(t, DefaultLogFormat, cfg.Log.Format)
	assert.Equal(t, DefaultModelKind, cfg.Model.Kind)
	assert.Equal(t, 0, cfg.Model.Folding)
	assert.Empty(t, cfg.Model.Validation)
	assert.Positive(t, cfg.Model.Parallelism)
	assert.Equal(t, DefaultMetricsNamespace, cfg.Metrics.Namespace)
	assert.Equal(t, DefaultStorageBucket, cfg.Storage.Bucket)
	assert.Equal(t, DefaultCacheTTL, cfg.Cache.TTL)
	assert.Equal(t, []string{DefaultEventsBroker}, cfg.Events.Brokers)
	assert.Equal(t, DefaultEventsTopic, cfg.Events.Topic)
	assert.False(t, cfg.Storage.Enabled)
	assert.Equal(t, DefaultServerAddr, cfg.Server.Addr)
	assert.Equal(t, int64(DefaultServerMaxBodyBytes), cfg.Server.MaxBodyBytes)
	assert.Equal(t, DefaultServerShutdownTimeout, cfg.Server.ShutdownTimeout)
}

func TestApplyDefaults_PreserveExistingValues(t *testing.T) {
	cfg := &Config{}
	cfg.Model.Kind = "ECFP2"
	cfg.Model.Parallelism = 3
	cfg.Cache.TTL = time.Minute
	cfg.Events.Brokers = []string{"kafka:29092"}
	ApplyDefaults(cfg)

	assert.Equal(t, "ECFP2", cfg.Model.Kind)
	assert.Equal(t, 3, cfg.Model.Parallelism)
	assert.Equal(t, time.Minute, cfg.Cache.TTL)
	assert.Equal(t, []string{"kafka:29092"}, cfg.Events.Brokers)
}

func TestApplyDefaults_Nil(t *testing.T) {
	assert.NotPanics(t, func() { ApplyDefaults(nil) })
}
