package redis

import (
	"context"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/molbayes/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/molbayes/pkg/errors"
)

var ErrCacheMiss = errors.New(errors.ErrCodeCacheError, "cache miss")

// ModelCache keeps serialized model text keyed by model id.
type ModelCache interface {
	Get(ctx context.Context, id string) (string, error)
	Set(ctx context.Context, id, text string) error
	Delete(ctx context.Context, ids ...string) error
	// GetOrLoad returns the cached text or calls loader once per id across
	// concurrent callers and caches its result.
	GetOrLoad(ctx context.Context, id string, loader func(ctx context.Context) (string, error)) (string, error)
}

type redisModelCache struct {
	client       *Client
	logger       logging.Logger
	prefix       string
	ttl          time.Duration
	singleflight singleflight.Group
}

type CacheOption func(*redisModelCache)

func WithPrefix(prefix string) CacheOption {
	return func(c *redisModelCache) { c.prefix = prefix }
}

func WithTTL(ttl time.Duration) CacheOption {
	return func(c *redisModelCache) { c.ttl = ttl }
}

func NewModelCache(client *Client, log logging.Logger, opts ...CacheOption) ModelCache {
	if log == nil {
		log = logging.NewNopLogger()
	}
	c := &redisModelCache{
		client: client,
		logger: log,
		prefix: "molbayes:model:",
		ttl:    time.Hour,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *redisModelCache) key(id string) string {
	return c.prefix + id
}

// jitterTTL spreads expiry by +/-10% so models cached together do not
// expire together. Zero means no expiry.
func (c *redisModelCache) jitterTTL() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitter := float64(c.ttl) * 0.1 * (rand.Float64()*2 - 1)
	return c.ttl + time.Duration(jitter)
}

func (c *redisModelCache) Get(ctx context.Context, id string) (string, error) {
	text, err := c.client.Get(ctx, c.key(id)).Result()
	if err == redis.Nil {
		return "", ErrCacheMiss
	}
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeCacheError, "failed to get model from cache")
	}
	return text, nil
}

func (c *redisModelCache) Set(ctx context.Context, id, text string) error {
	if err := c.client.Set(ctx, c.key(id), text, c.jitterTTL()).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to cache model")
	}
	return nil
}

func (c *redisModelCache) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.key(id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to evict models")
	}
	return nil
}

func (c *redisModelCache) GetOrLoad(ctx context.Context, id string, loader func(ctx context.Context) (string, error)) (string, error) {
	text, err := c.Get(ctx, id)
	if err == nil {
		return text, nil
	}
	if err != ErrCacheMiss {
		c.logger.Warn("model cache read failed, loading from source", logging.String("id", id), logging.Err(err))
	}

	v, err, _ := c.singleflight.Do(id, func() (interface{}, error) {
		loaded, loadErr := loader(ctx)
		if loadErr != nil {
			return "", loadErr
		}
		if setErr := c.Set(ctx, id, loaded); setErr != nil {
			c.logger.Warn("failed to populate model cache", logging.String("id", id), logging.Err(setErr))
		}
		return loaded, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
