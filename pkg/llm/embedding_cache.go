package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ray729alp/mqa-chatbot/pkg/utils/json"
)

// EmbeddingCacheConfig configures the Redis-backed embedding cache.
type EmbeddingCacheConfig struct {
	// Enabled turns the cache on.
	Enabled bool
	// TTL is the cache entry lifetime. Embeddings for a fixed model are
	// stable, so long TTLs are safe.
	TTL time.Duration
	// KeyPrefix namespaces cache keys.
	KeyPrefix string
}

// DefaultEmbeddingCacheConfig returns the default cache configuration.
func DefaultEmbeddingCacheConfig() *EmbeddingCacheConfig {
	return &EmbeddingCacheConfig{
		Enabled:   true,
		TTL:       24 * time.Hour,
		KeyPrefix: "emb:",
	}
}

// CachedEmbeddingProvider wraps an EmbeddingProvider with a Redis cache.
// Every cache failure degrades to calling the underlying provider, so a
// broken Redis never breaks embedding.
type CachedEmbeddingProvider struct {
	provider EmbeddingProvider
	redis    *goredis.Client
	config   *EmbeddingCacheConfig
}

// NewCachedEmbeddingProvider creates a caching wrapper around provider.
func NewCachedEmbeddingProvider(
	provider EmbeddingProvider,
	redis *goredis.Client,
	config *EmbeddingCacheConfig,
) *CachedEmbeddingProvider {
	if config == nil {
		config = DefaultEmbeddingCacheConfig()
	}
	return &CachedEmbeddingProvider{
		provider: provider,
		redis:    redis,
		config:   config,
	}
}

// Name returns the underlying provider's name with a cache marker.
func (c *CachedEmbeddingProvider) Name() string {
	return c.provider.Name() + "-cached"
}

// EmbedSingle generates an embedding for a single text, consulting the cache
// first.
func (c *CachedEmbeddingProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	if !c.active() {
		return c.provider.EmbedSingle(ctx, text)
	}

	if embedding, ok := c.lookup(ctx, text); ok {
		logger.Debugw("embedding cache hit", "text_length", len(text))
		return embedding, nil
	}

	embedding, err := c.provider.EmbedSingle(ctx, text)
	if err != nil {
		return nil, err
	}
	c.store(ctx, text, embedding)
	return embedding, nil
}

// Embed generates embeddings for multiple texts, serving cached entries and
// batching the misses into a single provider call.
func (c *CachedEmbeddingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if !c.active() {
		return c.provider.Embed(ctx, texts)
	}

	embeddings := make([][]float32, len(texts))
	var missed []int
	for i, text := range texts {
		if cached, ok := c.lookup(ctx, text); ok {
			embeddings[i] = cached
			continue
		}
		missed = append(missed, i)
	}

	if len(missed) == 0 {
		logger.Debugw("all embeddings served from cache", "total", len(texts))
		return embeddings, nil
	}

	batch := make([]string, len(missed))
	for i, idx := range missed {
		batch[i] = texts[idx]
	}
	logger.Debugw("embedding cache miss", "total", len(texts), "uncached", len(missed))

	fresh, err := c.provider.Embed(ctx, batch)
	if err != nil {
		return nil, err
	}

	for i, idx := range missed {
		embeddings[idx] = fresh[i]
		c.store(ctx, texts[idx], fresh[i])
	}
	return embeddings, nil
}

func (c *CachedEmbeddingProvider) active() bool {
	return c.config.Enabled && c.redis != nil
}

// cacheKey derives the Redis key for a text via SHA-256.
func (c *CachedEmbeddingProvider) cacheKey(text string) string {
	hash := sha256.Sum256([]byte(text))
	return c.config.KeyPrefix + hex.EncodeToString(hash[:])
}

// lookup fetches the cached embedding for text. Corrupt entries are deleted
// and reported as misses, as are Redis errors.
func (c *CachedEmbeddingProvider) lookup(ctx context.Context, text string) ([]float32, bool) {
	key := c.cacheKey(text)

	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != goredis.Nil {
			logger.Warnw("redis get failed, treating as cache miss", "error", err.Error())
		}
		return nil, false
	}

	var embedding []float32
	if err := json.Unmarshal(data, &embedding); err != nil {
		logger.Warnw("corrupt cached embedding, deleting", "error", err.Error(), "key", key)
		_ = c.redis.Del(ctx, key).Err()
		return nil, false
	}
	return embedding, true
}

// store caches one embedding. Failures are logged and swallowed.
func (c *CachedEmbeddingProvider) store(ctx context.Context, text string, embedding []float32) {
	data, err := json.Marshal(embedding)
	if err != nil {
		logger.Warnw("failed to marshal embedding for caching", "error", err.Error())
		return
	}
	if err := c.redis.Set(ctx, c.cacheKey(text), data, c.config.TTL).Err(); err != nil {
		logger.Warnw("failed to cache embedding", "error", err.Error())
	}
}

var _ EmbeddingProvider = (*CachedEmbeddingProvider)(nil)
