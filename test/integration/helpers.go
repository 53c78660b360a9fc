// Package integration runs the model pipeline against live MinIO, Redis and
// Kafka instances.  The suite is skipped unless MOLBAYES_INTEGRATION_TEST is
// set; endpoints default to a local docker-compose stack.
package integration

import (
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/molbayes/internal/application/modeling"
	"github.com/turtacn/molbayes/internal/domain/molecule"
	"github.com/turtacn/molbayes/internal/infrastructure/database/redis"
	"github.com/turtacn/molbayes/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/molbayes/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/molbayes/internal/infrastructure/storage/minio"
	apihttp "github.com/turtacn/molbayes/internal/interfaces/http"
	"github.com/turtacn/molbayes/internal/interfaces/http/handlers"
	"github.com/turtacn/molbayes/pkg/client"
)

// ---------------------------------------------------------------------------
// Environment detection
// ---------------------------------------------------------------------------

const (
	// EnvIntegrationEnabled controls whether integration tests run.
	EnvIntegrationEnabled = "MOLBAYES_INTEGRATION_TEST"

	EnvMinIOEndpoint  = "MOLBAYES_TEST_MINIO_ENDPOINT"
	EnvMinIOAccessKey = "MOLBAYES_TEST_MINIO_ACCESS_KEY"
	EnvMinIOSecretKey = "MOLBAYES_TEST_MINIO_SECRET_KEY"
	EnvRedisAddr      = "MOLBAYES_TEST_REDIS_ADDR"
	EnvKafkaBrokers   = "MOLBAYES_TEST_KAFKA_BROKERS"

	DefaultMinIOEndpoint  = "localhost:9000"
	DefaultMinIOAccessKey = "minioadmin"
	DefaultMinIOSecretKey = "minioadmin"
	DefaultRedisAddr      = "localhost:6379"
	DefaultKafkaBrokers   = "localhost:9092"

	// TestBucket is shared by runs; each run writes under its own prefix.
	TestBucket = "molbayes-integration"

	// TestTimeout is the maximum duration for a single integration test.
	TestTimeout = 120 * time.Second

	// SetupTimeout is the maximum duration for test environment setup.
	SetupTimeout = 60 * time.Second
)

// SkipIfNoIntegration skips the calling test when the integration flag is unset.
func SkipIfNoIntegration(t *testing.T) {
	t.Helper()
	if os.Getenv(EnvIntegrationEnabled) == "" {
		t.Skipf("skipping integration test: set %s=1 to enable", EnvIntegrationEnabled)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// ---------------------------------------------------------------------------
// TestEnvironment
// ---------------------------------------------------------------------------

// TestEnvironment aggregates the live backends, the modeling service wired
// to them, and an HTTP API in front of that service.  It is built once per
// test binary.
type TestEnvironment struct {
	Ctx    context.Context
	Logger logging.Logger

	MinIO   *minio.MinIOClient
	Store   minio.ModelStore
	Redis   *redis.Client
	Cache   redis.ModelCache
	Events  kafka.ModelEventPublisher
	Brokers []string
	Topic   string
	Prefix  string

	Service modeling.Service

	HTTPServer *httptest.Server
	Client     *client.Client
}

var (
	globalEnv     *TestEnvironment
	globalEnvOnce sync.Once
	globalEnvErr  error
)

// SetupTestEnvironment returns the shared TestEnvironment with a per-test
// context that is cancelled when the test finishes.
func SetupTestEnvironment(t *testing.T) *TestEnvironment {
	t.Helper()
	SkipIfNoIntegration(t)

	globalEnvOnce.Do(func() {
		globalEnv, globalEnvErr = buildTestEnvironment()
	})
	if globalEnvErr != nil {
		t.Fatalf("integration environment setup failed: %v", globalEnvErr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	t.Cleanup(cancel)

	env := *globalEnv
	env.Ctx = ctx
	return &env
}

func buildTestEnvironment() (*TestEnvironment, error) {
	ctx, cancel := context.WithTimeout(context.Background(), SetupTimeout)
	defer cancel()

	logger, err := logging.NewLogger(logging.LogConfig{Level: envOr("MOLBAYES_TEST_LOG_LEVEL", "warn"), Format: "console"})
	if err != nil {
		return nil, err
	}
	env := &TestEnvironment{
		Logger:  logger,
		Prefix:  "run-" + uuid.NewString()[:8] + "/",
		Brokers: strings.Split(envOr(EnvKafkaBrokers, DefaultKafkaBrokers), ","),
		Topic:   kafka.TopicModelEvents,
	}

	env.MinIO, err = minio.NewMinIOClient(ctx, &minio.MinIOConfig{
		Endpoint:        envOr(EnvMinIOEndpoint, DefaultMinIOEndpoint),
		AccessKeyID:     envOr(EnvMinIOAccessKey, DefaultMinIOAccessKey),
		SecretAccessKey: envOr(EnvMinIOSecretKey, DefaultMinIOSecretKey),
		Bucket:          TestBucket,
		Prefix:          env.Prefix,
	}, logger.Named("minio"))
	if err != nil {
		return nil, fmt.Errorf("minio: %w", err)
	}
	env.Store = minio.NewModelStore(env.MinIO, logger.Named("store"))

	env.Redis, err = redis.NewClient(ctx, &redis.RedisConfig{Addr: envOr(EnvRedisAddr, DefaultRedisAddr)}, logger.Named("redis"))
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	env.Cache = redis.NewModelCache(env.Redis, logger.Named("cache"),
		redis.WithPrefix("molbayes-it:"+env.Prefix),
		redis.WithTTL(10*time.Minute))

	producer, err := kafka.NewProducer(kafka.ProducerConfig{Brokers: env.Brokers}, logger.Named("kafka"))
	if err != nil {
		return nil, fmt.Errorf("kafka: %w", err)
	}
	env.Events = kafka.NewModelEventPublisher(producer, env.Topic, "molbayes-integration", logger.Named("events"))

	env.Service = modeling.NewService(logger.Named("modeling"),
		modeling.WithStore(env.Store),
		modeling.WithCache(env.Cache),
		modeling.WithEvents(env.Events),
		modeling.WithParallelism(4))

	router := apihttp.NewRouter(apihttp.RouterConfig{
		ModelHandler: handlers.NewModelHandler(env.Service,
			handlers.ModelDefaults{Kind: molecule.ECFP6, Parallelism: 4}, logger.Named("api")),
		HealthHandler: handlers.NewHealthHandler("integration",
			handlers.NewChecker("cache", env.Redis.Ping),
			handlers.NewChecker("storage", func(ctx context.Context) error {
				if st := env.MinIO.HealthCheck(ctx); !st.Healthy {
					return fmt.Errorf("minio: %s", st.Error)
				}
				return nil
			})),
		MaxBodyBytes: 16 << 20,
		Logger:       logger.Named("http"),
	})
	env.HTTPServer = httptest.NewServer(router)
	env.Client, err = client.NewClient(env.HTTPServer.URL, client.WithRetryMax(0))
	if err != nil {
		return nil, err
	}
	return env, nil
}
