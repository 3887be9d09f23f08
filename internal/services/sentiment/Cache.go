package sentiment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"TradeMate/internal/logging"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const DefaultCacheTTL = 5 * time.Minute

// Cache stores raw values with an expiry
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type RedisCache struct {
	client *redis.Client
	prefix string
}

func NewRedisCache(addr, password string, db int, prefix string) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisCache{
		client: client,
		prefix: prefix,
	}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.client.Get(ctx, c.wrapKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.wrapKey(key), value, ttl).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) wrapKey(key string) string {
	if c.prefix == "" {
		return key
	}
	return c.prefix + ":" + key
}

// CachedSource aggregates readings from the wrapped source and caches the
// aggregate per symbol. Cache failures fall through to the source.
type CachedSource struct {
	source Source
	cache  Cache
	ttl    time.Duration
	logger zerolog.Logger
}

func NewCachedSource(source Source, cache Cache, ttl time.Duration, logger zerolog.Logger) *CachedSource {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedSource{
		source: source,
		cache:  cache,
		ttl:    ttl,
		logger: logging.Component(logger, "sentiment_cache"),
	}
}

func (s *CachedSource) Analyze(ctx context.Context, symbol string) ([]Result, error) {
	key := "sentiment:" + symbol

	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("sentiment cache read failed")
	} else if ok {
		var cached Result
		if err := json.Unmarshal(data, &cached); err == nil {
			return []Result{cached}, nil
		}
		s.logger.Warn().Str("symbol", symbol).Msg("discarding corrupt sentiment cache entry")
	}

	results, err := s.source.Analyze(ctx, symbol)
	if err != nil {
		return nil, err
	}
	aggregated := Aggregate(results)

	if data, err := json.Marshal(aggregated); err == nil {
		if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
			s.logger.Warn().Err(err).Str("symbol", symbol).Msg("sentiment cache write failed")
		}
	}
	return []Result{aggregated}, nil
}
