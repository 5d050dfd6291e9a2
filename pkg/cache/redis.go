package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"social-brand-analyzer/pkg/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	keyPrefix  = "brand-analyzer:analysis:"
	DefaultTTL = 24 * time.Hour
)

// RedisCache shares analysis status between server instances
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to redisURL and verifies the connection
func NewRedisCache(ctx context.Context, redisURL string, ttl time.Duration) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		opt = &redis.Options{Addr: redisURL}
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info().Str("addr", opt.Addr).Msg("redis status cache connected")
	return NewRedisCacheFromClient(client, ttl), nil
}

// NewRedisCacheFromClient wraps an existing client
func NewRedisCacheFromClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// Set stores result as JSON under its analysis ID with the cache TTL
func (c *RedisCache) Set(ctx context.Context, result *models.AnalysisResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode analysis %s: %w", result.AnalysisID, err)
	}
	if err := c.client.Set(ctx, keyPrefix+result.AnalysisID, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache analysis %s: %w", result.AnalysisID, err)
	}
	return nil
}

// Get loads a cached analysis. A missing key reports false with no error.
func (c *RedisCache) Get(ctx context.Context, analysisID string) (*models.AnalysisResult, bool, error) {
	data, err := c.client.Get(ctx, keyPrefix+analysisID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached analysis %s: %w", analysisID, err)
	}

	var result models.AnalysisResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached analysis %s: %w", analysisID, err)
	}
	return &result, true, nil
}

func (c *RedisCache) Delete(ctx context.Context, analysisID string) error {
	return c.client.Del(ctx, keyPrefix+analysisID).Err()
}

// Close closes the underlying client
func (c *RedisCache) Close() error {
	return c.client.Close()
}
