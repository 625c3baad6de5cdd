package llm

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

// scriptedEmbedder returns deterministic vectors and records every call, so
// tests can tell cache hits from provider calls.
type scriptedEmbedder struct {
	batches [][]string
}

func (s *scriptedEmbedder) Name() string { return "scripted" }

func (s *scriptedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.batches = append(s.batches, append([]string(nil), texts...))
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = vectorFor(text)
	}
	return out, nil
}

func (s *scriptedEmbedder) EmbedSingle(_ context.Context, text string) ([]float32, error) {
	s.batches = append(s.batches, []string{text})
	return vectorFor(text), nil
}

func vectorFor(text string) []float32 {
	return []float32{float32(len(text)), 1}
}

func newTestCache(t *testing.T, config *EmbeddingCacheConfig) (*CachedEmbeddingProvider, *scriptedEmbedder, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	embedder := &scriptedEmbedder{}
	return NewCachedEmbeddingProvider(embedder, client, config), embedder, mr
}

func TestCachedName(t *testing.T) {
	cached, _, _ := newTestCache(t, nil)
	if got := cached.Name(); got != "scripted-cached" {
		t.Errorf("Name() = %q, want %q", got, "scripted-cached")
	}
}

func TestCachedEmbedSingleHit(t *testing.T) {
	cached, embedder, _ := newTestCache(t, nil)
	ctx := context.Background()

	first, err := cached.EmbedSingle(ctx, "what is programme accreditation?")
	if err != nil {
		t.Fatalf("EmbedSingle() error = %v", err)
	}
	second, err := cached.EmbedSingle(ctx, "what is programme accreditation?")
	if err != nil {
		t.Fatalf("EmbedSingle() error = %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("cached embedding %v differs from original %v", second, first)
	}
	if len(embedder.batches) != 1 {
		t.Errorf("provider called %d times, want 1", len(embedder.batches))
	}
}

func TestCachedEmbedBatchesOnlyMisses(t *testing.T) {
	cached, embedder, _ := newTestCache(t, nil)
	ctx := context.Background()

	// Warm the cache for one of the three texts.
	if _, err := cached.EmbedSingle(ctx, "mqa act 2007"); err != nil {
		t.Fatalf("EmbedSingle() error = %v", err)
	}

	texts := []string{"cgpa requirements", "mqa act 2007", "credit transfer policy"}
	embeddings, err := cached.Embed(ctx, texts)
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}

	for i, text := range texts {
		if !reflect.DeepEqual(embeddings[i], vectorFor(text)) {
			t.Errorf("embedding[%d] = %v, want %v", i, embeddings[i], vectorFor(text))
		}
	}

	// One warm-up call plus one batch holding only the two misses, in input
	// order.
	if len(embedder.batches) != 2 {
		t.Fatalf("provider called %d times, want 2", len(embedder.batches))
	}
	wantBatch := []string{"cgpa requirements", "credit transfer policy"}
	if !reflect.DeepEqual(embedder.batches[1], wantBatch) {
		t.Errorf("miss batch = %v, want %v", embedder.batches[1], wantBatch)
	}
}

func TestCachedEmbedAllHits(t *testing.T) {
	cached, embedder, _ := newTestCache(t, nil)
	ctx := context.Background()

	texts := []string{"apel assessment", "mqf levels"}
	if _, err := cached.Embed(ctx, texts); err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if _, err := cached.Embed(ctx, texts); err != nil {
		t.Fatalf("Embed() error = %v", err)
	}

	if len(embedder.batches) != 1 {
		t.Errorf("provider called %d times, want 1", len(embedder.batches))
	}
}

func TestCachedCorruptEntryTreatedAsMiss(t *testing.T) {
	cached, embedder, mr := newTestCache(t, nil)
	ctx := context.Background()

	text := "self accreditation status"
	mr.Set(cached.cacheKey(text), "{not json")

	embedding, err := cached.EmbedSingle(ctx, text)
	if err != nil {
		t.Fatalf("EmbedSingle() error = %v", err)
	}
	if !reflect.DeepEqual(embedding, vectorFor(text)) {
		t.Errorf("embedding = %v, want %v", embedding, vectorFor(text))
	}
	if len(embedder.batches) != 1 {
		t.Errorf("provider called %d times, want 1", len(embedder.batches))
	}

	// The corrupt entry must be replaced, so the next call hits the cache.
	if _, err := cached.EmbedSingle(ctx, text); err != nil {
		t.Fatalf("EmbedSingle() error = %v", err)
	}
	if len(embedder.batches) != 1 {
		t.Errorf("provider called %d times after re-store, want 1", len(embedder.batches))
	}
}

func TestCachedEntryExpires(t *testing.T) {
	config := &EmbeddingCacheConfig{Enabled: true, TTL: time.Minute, KeyPrefix: "emb:"}
	cached, embedder, mr := newTestCache(t, config)
	ctx := context.Background()

	if _, err := cached.EmbedSingle(ctx, "graduate employability"); err != nil {
		t.Fatalf("EmbedSingle() error = %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, err := cached.EmbedSingle(ctx, "graduate employability"); err != nil {
		t.Fatalf("EmbedSingle() error = %v", err)
	}

	if len(embedder.batches) != 2 {
		t.Errorf("provider called %d times after expiry, want 2", len(embedder.batches))
	}
}

func TestCachedDisabledPassesThrough(t *testing.T) {
	config := &EmbeddingCacheConfig{Enabled: false}
	cached, embedder, _ := newTestCache(t, config)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := cached.EmbedSingle(ctx, "fee schedule"); err != nil {
			t.Fatalf("EmbedSingle() error = %v", err)
		}
	}
	if len(embedder.batches) != 2 {
		t.Errorf("provider called %d times with cache disabled, want 2", len(embedder.batches))
	}
}

func TestCachedNilRedisPassesThrough(t *testing.T) {
	embedder := &scriptedEmbedder{}
	cached := NewCachedEmbeddingProvider(embedder, nil, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := cached.Embed(ctx, []string{"quality assurance"}); err != nil {
			t.Fatalf("Embed() error = %v", err)
		}
	}
	if len(embedder.batches) != 2 {
		t.Errorf("provider called %d times without redis, want 2", len(embedder.batches))
	}
}

func TestDefaultEmbeddingCacheConfig(t *testing.T) {
	config := DefaultEmbeddingCacheConfig()
	if !config.Enabled {
		t.Error("default config should be enabled")
	}
	if config.TTL != 24*time.Hour {
		t.Errorf("TTL = %v, want 24h", config.TTL)
	}
	if config.KeyPrefix != "emb:" {
		t.Errorf("KeyPrefix = %q, want %q", config.KeyPrefix, "emb:")
	}
}
