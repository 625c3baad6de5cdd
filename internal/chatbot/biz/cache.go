package biz

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ray729alp/mqa-chatbot/internal/model"
	"github.com/ray729alp/mqa-chatbot/pkg/utils/json"
)

// QueryCacheConfig controls the answer cache.
type QueryCacheConfig struct {
	// Enabled turns the cache on.
	Enabled bool
	// TTL is the cache entry lifetime.
	TTL time.Duration
	// KeyPrefix namespaces the cache keys.
	KeyPrefix string
}

// QueryCache caches formatted chat answers in Redis. Only stateless queries
// are cached; answers that depend on session history never enter the cache.
type QueryCache struct {
	redis  *goredis.Client
	config *QueryCacheConfig
}

// NewQueryCache creates an answer cache.
func NewQueryCache(redis *goredis.Client, config *QueryCacheConfig) *QueryCache {
	if config == nil {
		config = &QueryCacheConfig{
			Enabled:   false,
			TTL:       1 * time.Hour,
			KeyPrefix: "mqa:chat:",
		}
	}
	return &QueryCache{
		redis:  redis,
		config: config,
	}
}

// Enabled reports whether cache lookups are active.
func (c *QueryCache) Enabled() bool {
	return c != nil && c.config.Enabled && c.redis != nil
}

// key hashes the category and question together, so identical questions in
// different categories cache independently.
func (c *QueryCache) key(category, question string) string {
	sum := sha256.Sum256([]byte(category + "\n" + question))
	return c.config.KeyPrefix + hex.EncodeToString(sum[:])
}

// Get returns the cached answer for the category and question. Misses, Redis
// errors and corrupt entries all report false, sending the caller through
// the full pipeline.
func (c *QueryCache) Get(ctx context.Context, category, question string) (*model.ChatResult, bool) {
	if !c.Enabled() {
		return nil, false
	}
	key := c.key(category, question)

	data, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case err == goredis.Nil:
		return nil, false
	case err != nil:
		logger.Warnw("answer cache read failed", "error", err.Error(), "key", key)
		return nil, false
	}

	var result model.ChatResult
	if err := json.Unmarshal(data, &result); err != nil {
		logger.Warnw("dropping corrupt answer cache entry", "error", err.Error(), "key", key)
		_ = c.redis.Del(ctx, key).Err()
		return nil, false
	}

	logger.Infow("answer cache hit", "category", category, "answer_length", len(result.Answer))
	return &result, true
}

// Set stores an answer for future lookups. Failures are logged and never
// returned.
func (c *QueryCache) Set(ctx context.Context, category, question string, result *model.ChatResult) {
	if !c.Enabled() {
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		logger.Warnw("failed to encode answer for cache", "error", err.Error())
		return
	}
	if err := c.redis.Set(ctx, c.key(category, question), data, c.config.TTL).Err(); err != nil {
		logger.Warnw("answer cache write failed", "error", err.Error())
	}
}
