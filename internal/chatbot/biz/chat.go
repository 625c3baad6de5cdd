package biz

import (
	"context"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/ray729alp/mqa-chatbot/internal/chatbot/metrics"
	"github.com/ray729alp/mqa-chatbot/internal/model"
	"github.com/ray729alp/mqa-chatbot/internal/pkg/chatbot/htmlfmt"
	"github.com/ray729alp/mqa-chatbot/pkg/pool"
)

// cacheWriteTimeout bounds background cache writes after the request returns.
const cacheWriteTimeout = 5 * time.Second

// Chatbot is the chat entry point. It validates input, consults the
// registry, runs the category pipeline, and applies the fallback policy.
// Chat never returns an error to its caller; every failure maps to a
// user-facing answer.
type Chatbot struct {
	registry *Registry
	memory   *ConversationMemory
	cache    *QueryCache
	metrics  *metrics.ChatMetrics
}

// NewChatbot creates the orchestrator. A nil memory gets the default
// in-process memory; a nil cache disables caching.
func NewChatbot(registry *Registry, memory *ConversationMemory, cache *QueryCache) *Chatbot {
	if memory == nil {
		memory = NewConversationMemory(nil)
	}
	return &Chatbot{
		registry: registry,
		memory:   memory,
		cache:    cache,
		metrics:  metrics.GetChatMetrics(),
	}
}

// Chat answers one question in one category. The returned answer is never
// empty, and Sources is empty on every fallback path. Fallback and guidance
// answers are served verbatim; only pipeline answers are HTML-formatted.
func (b *Chatbot) Chat(ctx context.Context, query, category, sessionID string) (result *model.ChatResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorw("chat panicked, serving fallback", "category", category, "panic", r)
			b.metrics.RecordFallback(metrics.FallbackRetrievalFailure)
			result = &model.ChatResult{Answer: FallbackAnswer(category), Sources: []string{}}
		}
	}()

	b.metrics.RecordQuery()

	entry, ok := b.registry.Lookup(category)
	if category == "" || !ok {
		b.metrics.RecordFallback(metrics.FallbackInvalidInput)
		return &model.ChatResult{Answer: GuidanceInvalidCategory, Sources: []string{}}
	}

	if strings.TrimSpace(query) == "" {
		b.metrics.RecordFallback(metrics.FallbackInvalidInput)
		return &model.ChatResult{Answer: GuidanceEmptyQuery, Sources: []string{}}
	}

	switch entry.Availability {
	case AvailabilityUnavailable:
		b.metrics.RecordFallback(metrics.FallbackStoreUnavailable)
		return &model.ChatResult{Answer: StoreUnavailableAnswer(category), Sources: []string{}}
	case AvailabilityDegraded:
		b.metrics.RecordFallback(metrics.FallbackDegraded)
		return &model.ChatResult{Answer: FallbackAnswer(category), Sources: []string{}}
	}

	history := b.memory.History(sessionID, category)

	// Session answers depend on history, so only stateless queries hit the
	// cache.
	cacheable := sessionID == "" && b.cache.Enabled()
	if cacheable {
		if cached, ok := b.cache.Get(ctx, category, query); ok {
			b.metrics.RecordCacheHit()
			b.metrics.RecordAnswered()
			return cached
		}
		b.metrics.RecordCacheMiss()
	}

	pr := entry.pipeline.Answer(ctx, query, history)
	switch pr.Outcome {
	case OutcomeAnswered:
		b.metrics.RecordAnswered()
		sources := pr.Sources
		if sources == nil {
			sources = []string{}
		}
		res := &model.ChatResult{
			Answer:  htmlfmt.Format(pr.Answer),
			Sources: sources,
		}
		// History keeps the raw model text; formatting is a rendering
		// concern.
		b.memory.Append(sessionID, category, query, pr.Answer)
		if cacheable {
			b.cacheAsync(category, query, res)
		}
		return res

	case OutcomeLowConfidence:
		b.metrics.RecordFallback(metrics.FallbackLowConfidence)
		return &model.ChatResult{Answer: FallbackAnswer(category), Sources: []string{}}

	default:
		if pr.Err != nil {
			logger.Warnw("pipeline failed, serving fallback", "category", category, "error", pr.Err.Error())
		}
		b.metrics.RecordFallback(metrics.FallbackRetrievalFailure)
		return &model.ChatResult{Answer: FallbackAnswer(category), Sources: []string{}}
	}
}

// cacheAsync writes the result off the request path.
func (b *Chatbot) cacheAsync(category, query string, result *model.ChatResult) {
	task := func() {
		ctx, cancel := context.WithTimeout(context.Background(), cacheWriteTimeout)
		defer cancel()
		b.cache.Set(ctx, category, query, result)
	}
	if err := pool.SubmitBackground(task); err != nil {
		logger.Warnw("background pool unavailable, caching inline", "error", err.Error())
		go task()
	}
}
