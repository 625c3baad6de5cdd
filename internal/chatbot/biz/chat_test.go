package biz

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ray729alp/mqa-chatbot/internal/chatbot/metrics"
	"github.com/ray729alp/mqa-chatbot/internal/model"
	"github.com/ray729alp/mqa-chatbot/internal/pkg/chatbot/textutil"
)

type fakeAnswerer struct {
	result      *PipelineResult
	panicMsg    string
	calls       int
	gotQuestion string
	gotHistory  []model.Turn
}

func (f *fakeAnswerer) Answer(_ context.Context, question string, history []model.Turn) *PipelineResult {
	f.calls++
	f.gotQuestion = question
	f.gotHistory = history
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.result
}

type answererFunc func(ctx context.Context, question string, history []model.Turn) *PipelineResult

func (f answererFunc) Answer(ctx context.Context, question string, history []model.Turn) *PipelineResult {
	return f(ctx, question, history)
}

func testRegistry(entries ...*CategoryEntry) *Registry {
	r := &Registry{entries: make(map[string]*CategoryEntry)}
	for _, entry := range entries {
		r.entries[entry.Name] = entry
		r.order = append(r.order, entry.Name)
	}
	return r
}

func readyEntry(name string, pipeline answerer) *CategoryEntry {
	return &CategoryEntry{
		Name:         name,
		DisplayName:  textutil.DisplayTitle(name),
		Availability: AvailabilityReady,
		pipeline:     pipeline,
	}
}

func TestChatGuidanceForInvalidCategory(t *testing.T) {
	fake := &fakeAnswerer{result: &PipelineResult{Outcome: OutcomeAnswered, Answer: "never served"}}
	bot := NewChatbot(testRegistry(readyEntry("faq", fake)), nil, nil)

	for _, category := range []string{"", "astrology"} {
		result := bot.Chat(context.Background(), "what is MQA?", category, "")
		assert.Equal(t, GuidanceInvalidCategory, result.Answer)
		assert.NotNil(t, result.Sources)
		assert.Empty(t, result.Sources)
	}
	assert.Zero(t, fake.calls)
}

func TestChatGuidanceForEmptyQuery(t *testing.T) {
	fake := &fakeAnswerer{result: &PipelineResult{Outcome: OutcomeAnswered, Answer: "never served"}}
	bot := NewChatbot(testRegistry(readyEntry("faq", fake)), nil, nil)

	for _, query := range []string{"", "   ", "\t\n"} {
		result := bot.Chat(context.Background(), query, "faq", "")
		assert.Equal(t, GuidanceEmptyQuery, result.Answer)
		assert.Empty(t, result.Sources)
	}
	assert.Zero(t, fake.calls)
}

func TestChatStoreUnavailableNotice(t *testing.T) {
	entry := &CategoryEntry{Name: "faq", Availability: AvailabilityUnavailable}
	bot := NewChatbot(testRegistry(entry), nil, nil)

	result := bot.Chat(context.Background(), "what is MQA?", "faq", "")

	assert.Equal(t, "Database not available for faq. Please try another category.", result.Answer)
	assert.Empty(t, result.Sources)
}

func TestChatDegradedServesCannedFallback(t *testing.T) {
	entry := &CategoryEntry{Name: "apel", Availability: AvailabilityDegraded}
	bot := NewChatbot(testRegistry(entry), nil, nil)

	result := bot.Chat(context.Background(), "how do I apply?", "apel", "")

	assert.Equal(t, FallbackAnswer("apel"), result.Answer)
	// Fallbacks are served verbatim, never HTML-formatted.
	assert.Contains(t, result.Answer, "https://www.mqa.gov.my/apel")
	assert.NotContains(t, result.Answer, "<a href")
	assert.Empty(t, result.Sources)
}

func TestChatFormatsAnsweredPipelineOutput(t *testing.T) {
	fake := &fakeAnswerer{result: &PipelineResult{
		Outcome: OutcomeAnswered,
		Answer:  "Visit https://www.mqa.gov.my for details.\nApply early.",
		Sources: []string{"handbook.pdf Page 4", "guide.txt"},
	}}
	bot := NewChatbot(testRegistry(readyEntry("faq", fake)), nil, nil)

	result := bot.Chat(context.Background(), "where do I apply?", "faq", "")

	assert.Contains(t, result.Answer, `<a href="https://www.mqa.gov.my"`)
	assert.Contains(t, result.Answer, "<br>")
	assert.Equal(t, []string{"handbook.pdf Page 4", "guide.txt"}, result.Sources)

	// The orchestrator passes the raw question through; prefixing is the
	// pipeline's concern.
	assert.Equal(t, "where do I apply?", fake.gotQuestion)
	assert.Nil(t, fake.gotHistory)
}

func TestChatLowConfidenceFallsBack(t *testing.T) {
	fake := &fakeAnswerer{result: &PipelineResult{
		Outcome: OutcomeLowConfidence,
		Sources: []string{"handbook.pdf Page 4"},
	}}
	bot := NewChatbot(testRegistry(readyEntry("faq", fake)), nil, nil)

	result := bot.Chat(context.Background(), "what is MQA?", "faq", "")

	assert.Equal(t, FallbackAnswer("faq"), result.Answer)
	assert.Contains(t, result.Answer, "enquiry@mqa.gov.my")
	assert.Empty(t, result.Sources)
}

func TestChatRetrievalFailureFallsBack(t *testing.T) {
	fake := &fakeAnswerer{result: &PipelineResult{
		Outcome: OutcomeRetrievalFailed,
		Err:     errors.New("embedding backend down"),
	}}
	bot := NewChatbot(testRegistry(readyEntry("framework", fake)), nil, nil)

	result := bot.Chat(context.Background(), "what is the MQF?", "framework", "")

	assert.Equal(t, FallbackAnswer("framework"), result.Answer)
	assert.Empty(t, result.Sources)
}

func TestChatRecoversFromPanic(t *testing.T) {
	fake := &fakeAnswerer{panicMsg: "index out of range"}
	bot := NewChatbot(testRegistry(readyEntry("faq", fake)), nil, nil)

	var result *model.ChatResult
	assert.NotPanics(t, func() {
		result = bot.Chat(context.Background(), "what is MQA?", "faq", "")
	})

	require.NotNil(t, result)
	assert.Equal(t, FallbackAnswer("faq"), result.Answer)
	assert.Empty(t, result.Sources)
}

func TestChatSessionHistoryRoundTrip(t *testing.T) {
	fake := &fakeAnswerer{result: &PipelineResult{
		Outcome: OutcomeAnswered,
		Answer:  "See https://www.mqa.gov.my for the fee schedule.",
	}}
	memory := NewConversationMemory(nil)
	bot := NewChatbot(testRegistry(readyEntry("faq", fake)), memory, nil)

	first := bot.Chat(context.Background(), "what are the fees?", "faq", "s1")
	assert.Contains(t, first.Answer, "<a href")
	assert.Nil(t, fake.gotHistory)

	bot.Chat(context.Background(), "and the deadlines?", "faq", "s1")

	require.Len(t, fake.gotHistory, 1)
	assert.Equal(t, "what are the fees?", fake.gotHistory[0].Question)
	// History keeps the raw model text, not the formatted answer.
	assert.Equal(t, "See https://www.mqa.gov.my for the fee schedule.", fake.gotHistory[0].Answer)
	assert.NotContains(t, fake.gotHistory[0].Answer, "<a href")
	assert.Equal(t, 1, memory.Sessions())
}

func TestChatStatelessWithoutSession(t *testing.T) {
	fake := &fakeAnswerer{result: &PipelineResult{Outcome: OutcomeAnswered, Answer: "An answer."}}
	memory := NewConversationMemory(nil)
	bot := NewChatbot(testRegistry(readyEntry("faq", fake)), memory, nil)

	bot.Chat(context.Background(), "first question", "faq", "")
	bot.Chat(context.Background(), "second question", "faq", "")

	assert.Nil(t, fake.gotHistory)
	assert.Equal(t, 0, memory.Sessions())
}

func TestChatFallbackTurnsAreNotRemembered(t *testing.T) {
	fake := &fakeAnswerer{result: &PipelineResult{Outcome: OutcomeLowConfidence}}
	memory := NewConversationMemory(nil)
	bot := NewChatbot(testRegistry(readyEntry("faq", fake)), memory, nil)

	bot.Chat(context.Background(), "what is MQA?", "faq", "s1")
	bot.Chat(context.Background(), "still there?", "faq", "s1")

	assert.Nil(t, fake.gotHistory)
	assert.Equal(t, 0, memory.Sessions())
}

func TestChatAnswerNeverEmpty(t *testing.T) {
	scenarios := []struct {
		name  string
		entry *CategoryEntry
	}{
		{"unavailable", &CategoryEntry{Name: "faq", Availability: AvailabilityUnavailable}},
		{"degraded", &CategoryEntry{Name: "faq", Availability: AvailabilityDegraded}},
		{"answered", readyEntry("faq", &fakeAnswerer{result: &PipelineResult{Outcome: OutcomeAnswered, Answer: "An answer."}})},
		{"low confidence", readyEntry("faq", &fakeAnswerer{result: &PipelineResult{Outcome: OutcomeLowConfidence}})},
		{"retrieval failed", readyEntry("faq", &fakeAnswerer{result: &PipelineResult{Outcome: OutcomeRetrievalFailed, Err: errors.New("down")}})},
		{"panicking", readyEntry("faq", &fakeAnswerer{panicMsg: "boom"})},
	}

	for _, tt := range scenarios {
		t.Run(tt.name, func(t *testing.T) {
			bot := NewChatbot(testRegistry(tt.entry), nil, nil)
			result := bot.Chat(context.Background(), "question", "faq", "")
			require.NotNil(t, result)
			assert.NotEmpty(t, result.Answer)
			assert.NotNil(t, result.Sources)
		})
	}
}

func TestChatRecordsMetrics(t *testing.T) {
	m := metrics.GetChatMetrics()
	m.Reset()
	defer m.Reset()

	answered := &fakeAnswerer{result: &PipelineResult{Outcome: OutcomeAnswered, Answer: "An answer."}}
	bot := NewChatbot(testRegistry(readyEntry("faq", answered)), nil, nil)

	bot.Chat(context.Background(), "what is MQA?", "faq", "")
	bot.Chat(context.Background(), "what is MQA?", "astrology", "")

	answered.result = &PipelineResult{Outcome: OutcomeLowConfidence}
	bot.Chat(context.Background(), "what is MQA?", "faq", "")

	stats := m.Stats()
	queries := stats["queries"].(map[string]interface{})
	assert.Equal(t, uint64(3), queries["total"])
	assert.Equal(t, uint64(1), queries["answered"])

	fallbacks := queries["fallbacks"].(map[string]interface{})
	assert.Equal(t, uint64(1), fallbacks[string(metrics.FallbackInvalidInput)])
	assert.Equal(t, uint64(1), fallbacks[string(metrics.FallbackLowConfidence)])
}

func TestChatCacheHitSkipsPipeline(t *testing.T) {
	m := metrics.GetChatMetrics()
	m.Reset()
	defer m.Reset()

	cache := NewQueryCache(setupTestRedis(t), &QueryCacheConfig{
		Enabled:   true,
		TTL:       time.Hour,
		KeyPrefix: "test:chat:",
	})
	ctx := context.Background()

	cachedResult := &model.ChatResult{Answer: "Cached answer.", Sources: []string{"handbook.pdf Page 4"}}
	cache.Set(ctx, "faq", "what is MQA?", cachedResult)

	fake := &fakeAnswerer{result: &PipelineResult{Outcome: OutcomeAnswered, Answer: "Fresh answer."}}
	bot := NewChatbot(testRegistry(readyEntry("faq", fake)), nil, cache)

	result := bot.Chat(ctx, "what is MQA?", "faq", "")
	assert.Equal(t, "Cached answer.", result.Answer)
	assert.Equal(t, cachedResult.Sources, result.Sources)
	assert.Zero(t, fake.calls)

	// Session queries bypass the cache: their answers depend on history.
	sessionResult := bot.Chat(ctx, "what is MQA?", "faq", "s1")
	assert.Equal(t, 1, fake.calls)
	assert.NotEqual(t, "Cached answer.", sessionResult.Answer)

	stats := m.Stats()
	queries := stats["queries"].(map[string]interface{})
	assert.Equal(t, uint64(1), queries["cache_hits"])
	assert.Equal(t, uint64(2), queries["answered"])
}

func TestChatCachesAnsweredResults(t *testing.T) {
	cache := NewQueryCache(setupTestRedis(t), &QueryCacheConfig{
		Enabled:   true,
		TTL:       time.Hour,
		KeyPrefix: "test:chat:",
	})
	ctx := context.Background()

	fake := &fakeAnswerer{result: &PipelineResult{
		Outcome: OutcomeAnswered,
		Answer:  "The MQF has eight levels.",
		Sources: []string{"mqf.pdf Page 2"},
	}}
	bot := NewChatbot(testRegistry(readyEntry("framework", fake)), nil, cache)

	first := bot.Chat(ctx, "how many levels?", "framework", "")

	// The write happens off the request path.
	require.Eventually(t, func() bool {
		_, ok := cache.Get(ctx, "framework", "how many levels?")
		return ok
	}, 2*time.Second, 20*time.Millisecond)

	cached, ok := cache.Get(ctx, "framework", "how many levels?")
	require.True(t, ok)
	assert.Equal(t, first.Answer, cached.Answer)
	assert.Equal(t, first.Sources, cached.Sources)
}

func TestChatConcurrentQueries(t *testing.T) {
	pipeline := answererFunc(func(_ context.Context, question string, _ []model.Turn) *PipelineResult {
		return &PipelineResult{Outcome: OutcomeAnswered, Answer: "Answer to " + question}
	})
	bot := NewChatbot(testRegistry(readyEntry("faq", pipeline)), nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := bot.Chat(context.Background(), "what is MQA?", "faq", "s1")
			assert.NotEmpty(t, result.Answer)
		}()
	}
	wg.Wait()
}
