// Package metrics collects the chatbot's business metrics.
package metrics

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// FallbackReason classifies why a query was answered by the fallback policy
// instead of the retrieval pipeline.
type FallbackReason string

const (
	// FallbackInvalidInput covers missing/unknown categories and empty queries.
	FallbackInvalidInput FallbackReason = "invalid_input"
	// FallbackStoreUnavailable marks categories whose vector store never loaded.
	FallbackStoreUnavailable FallbackReason = "store_unavailable"
	// FallbackDegraded marks categories running without a live chat provider.
	FallbackDegraded FallbackReason = "degraded"
	// FallbackRetrievalFailure marks pipeline errors during embed/retrieve/generate.
	FallbackRetrievalFailure FallbackReason = "retrieval_failure"
	// FallbackLowConfidence marks answers the model itself disclaimed.
	FallbackLowConfidence FallbackReason = "low_confidence"
)

// ChatMetrics holds the serving counters. All counters are updated with
// atomics; the float duration sums are guarded by durationMu.
type ChatMetrics struct {
	queriesTotal  uint64
	answeredTotal uint64

	fallbackInvalidInput     uint64
	fallbackStoreUnavailable uint64
	fallbackDegraded         uint64
	fallbackRetrievalFailure uint64
	fallbackLowConfidence    uint64

	cacheHits   uint64
	cacheMisses uint64

	retrievalTotal    uint64
	retrievalErrors   uint64
	retrievalDuration float64

	llmCallsTotal       uint64
	llmCallsErrors      uint64
	llmCallsDuration    float64
	llmTokensPrompt     uint64
	llmTokensCompletion uint64

	startTime  time.Time
	durationMu sync.Mutex
}

var (
	globalChatMetrics *ChatMetrics
	chatMetricsOnce   sync.Once
)

// GetChatMetrics returns the process-wide metrics instance.
func GetChatMetrics() *ChatMetrics {
	chatMetricsOnce.Do(func() {
		globalChatMetrics = &ChatMetrics{
			startTime: time.Now(),
		}
	})
	return globalChatMetrics
}

// RecordQuery counts one orchestrator invocation, answered or not.
func (m *ChatMetrics) RecordQuery() {
	atomic.AddUint64(&m.queriesTotal, 1)
}

// RecordAnswered counts a query answered by the retrieval pipeline.
func (m *ChatMetrics) RecordAnswered() {
	atomic.AddUint64(&m.answeredTotal, 1)
}

// RecordFallback counts a query resolved by the fallback policy.
func (m *ChatMetrics) RecordFallback(reason FallbackReason) {
	switch reason {
	case FallbackInvalidInput:
		atomic.AddUint64(&m.fallbackInvalidInput, 1)
	case FallbackStoreUnavailable:
		atomic.AddUint64(&m.fallbackStoreUnavailable, 1)
	case FallbackDegraded:
		atomic.AddUint64(&m.fallbackDegraded, 1)
	case FallbackRetrievalFailure:
		atomic.AddUint64(&m.fallbackRetrievalFailure, 1)
	case FallbackLowConfidence:
		atomic.AddUint64(&m.fallbackLowConfidence, 1)
	}
}

// RecordCacheHit counts an answer served from the query cache.
func (m *ChatMetrics) RecordCacheHit() {
	atomic.AddUint64(&m.cacheHits, 1)
}

// RecordCacheMiss counts a cache lookup that fell through to the pipeline.
func (m *ChatMetrics) RecordCacheMiss() {
	atomic.AddUint64(&m.cacheMisses, 1)
}

// RecordRetrieval records one embed+search round trip.
func (m *ChatMetrics) RecordRetrieval(duration time.Duration, err error) {
	atomic.AddUint64(&m.retrievalTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.retrievalErrors, 1)
		return
	}

	m.durationMu.Lock()
	m.retrievalDuration += duration.Seconds()
	m.durationMu.Unlock()
}

// RecordLLMCall records one chat-provider generation call.
func (m *ChatMetrics) RecordLLMCall(duration time.Duration, promptTokens, completionTokens int, err error) {
	atomic.AddUint64(&m.llmCallsTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.llmCallsErrors, 1)
		return
	}

	m.durationMu.Lock()
	m.llmCallsDuration += duration.Seconds()
	m.durationMu.Unlock()

	if promptTokens > 0 {
		atomic.AddUint64(&m.llmTokensPrompt, uint64(promptTokens))
	}
	if completionTokens > 0 {
		atomic.AddUint64(&m.llmTokensCompletion, uint64(completionTokens))
	}
}

// Export renders the counters in Prometheus text exposition format.
func (m *ChatMetrics) Export(namespace, subsystem string) string {
	var sb strings.Builder
	prefix := namespace
	if subsystem != "" {
		prefix = prefix + "_" + subsystem
	}

	sb.WriteString(fmt.Sprintf("# HELP %s_queries_total Total number of chat queries.\n", prefix))
	sb.WriteString(fmt.Sprintf("# TYPE %s_queries_total counter\n", prefix))
	sb.WriteString(fmt.Sprintf("%s_queries_total %d\n", prefix, atomic.LoadUint64(&m.queriesTotal)))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("# HELP %s_answered_total Queries answered by the retrieval pipeline.\n", prefix))
	sb.WriteString(fmt.Sprintf("# TYPE %s_answered_total counter\n", prefix))
	sb.WriteString(fmt.Sprintf("%s_answered_total %d\n", prefix, atomic.LoadUint64(&m.answeredTotal)))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("# HELP %s_fallback_invalid_input_total Fallbacks due to invalid input.\n", prefix))
	sb.WriteString(fmt.Sprintf("# TYPE %s_fallback_invalid_input_total counter\n", prefix))
	sb.WriteString(fmt.Sprintf("%s_fallback_invalid_input_total %d\n", prefix, atomic.LoadUint64(&m.fallbackInvalidInput)))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("# HELP %s_fallback_store_unavailable_total Fallbacks due to unavailable stores.\n", prefix))
	sb.WriteString(fmt.Sprintf("# TYPE %s_fallback_store_unavailable_total counter\n", prefix))
	sb.WriteString(fmt.Sprintf("%s_fallback_store_unavailable_total %d\n", prefix, atomic.LoadUint64(&m.fallbackStoreUnavailable)))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("# HELP %s_fallback_degraded_total Fallbacks due to degraded categories.\n", prefix))
	sb.WriteString(fmt.Sprintf("# TYPE %s_fallback_degraded_total counter\n", prefix))
	sb.WriteString(fmt.Sprintf("%s_fallback_degraded_total %d\n", prefix, atomic.LoadUint64(&m.fallbackDegraded)))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("# HELP %s_fallback_retrieval_failure_total Fallbacks due to pipeline failures.\n", prefix))
	sb.WriteString(fmt.Sprintf("# TYPE %s_fallback_retrieval_failure_total counter\n", prefix))
	sb.WriteString(fmt.Sprintf("%s_fallback_retrieval_failure_total %d\n", prefix, atomic.LoadUint64(&m.fallbackRetrievalFailure)))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("# HELP %s_fallback_low_confidence_total Fallbacks due to low-confidence answers.\n", prefix))
	sb.WriteString(fmt.Sprintf("# TYPE %s_fallback_low_confidence_total counter\n", prefix))
	sb.WriteString(fmt.Sprintf("%s_fallback_low_confidence_total %d\n", prefix, atomic.LoadUint64(&m.fallbackLowConfidence)))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("# HELP %s_cache_hits_total Number of query cache hits.\n", prefix))
	sb.WriteString(fmt.Sprintf("# TYPE %s_cache_hits_total counter\n", prefix))
	sb.WriteString(fmt.Sprintf("%s_cache_hits_total %d\n", prefix, atomic.LoadUint64(&m.cacheHits)))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("# HELP %s_cache_misses_total Number of query cache misses.\n", prefix))
	sb.WriteString(fmt.Sprintf("# TYPE %s_cache_misses_total counter\n", prefix))
	sb.WriteString(fmt.Sprintf("%s_cache_misses_total %d\n", prefix, atomic.LoadUint64(&m.cacheMisses)))
	sb.WriteString("\n")

	cacheHits := atomic.LoadUint64(&m.cacheHits)
	cacheMisses := atomic.LoadUint64(&m.cacheMisses)
	cacheTotal := cacheHits + cacheMisses
	cacheHitRate := 0.0
	if cacheTotal > 0 {
		cacheHitRate = float64(cacheHits) / float64(cacheTotal)
	}
	sb.WriteString(fmt.Sprintf("# HELP %s_cache_hit_rate Cache hit rate (0-1).\n", prefix))
	sb.WriteString(fmt.Sprintf("# TYPE %s_cache_hit_rate gauge\n", prefix))
	sb.WriteString(fmt.Sprintf("%s_cache_hit_rate %.4f\n", prefix, cacheHitRate))
	sb.WriteString("\n")

	m.durationMu.Lock()
	retrievalDuration := m.retrievalDuration
	llmDuration := m.llmCallsDuration
	m.durationMu.Unlock()

	sb.WriteString(fmt.Sprintf("# HELP %s_retrieval_total Total number of retrievals.\n", prefix))
	sb.WriteString(fmt.Sprintf("# TYPE %s_retrieval_total counter\n", prefix))
	sb.WriteString(fmt.Sprintf("%s_retrieval_total %d\n", prefix, atomic.LoadUint64(&m.retrievalTotal)))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("# HELP %s_retrieval_duration_seconds_total Total retrieval duration.\n", prefix))
	sb.WriteString(fmt.Sprintf("# TYPE %s_retrieval_duration_seconds_total counter\n", prefix))
	sb.WriteString(fmt.Sprintf("%s_retrieval_duration_seconds_total %.6f\n", prefix, retrievalDuration))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("# HELP %s_retrieval_errors_total Number of retrieval errors.\n", prefix))
	sb.WriteString(fmt.Sprintf("# TYPE %s_retrieval_errors_total counter\n", prefix))
	sb.WriteString(fmt.Sprintf("%s_retrieval_errors_total %d\n", prefix, atomic.LoadUint64(&m.retrievalErrors)))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("# HELP %s_llm_calls_total Total number of LLM calls.\n", prefix))
	sb.WriteString(fmt.Sprintf("# TYPE %s_llm_calls_total counter\n", prefix))
	sb.WriteString(fmt.Sprintf("%s_llm_calls_total %d\n", prefix, atomic.LoadUint64(&m.llmCallsTotal)))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("# HELP %s_llm_calls_duration_seconds_total Total LLM call duration.\n", prefix))
	sb.WriteString(fmt.Sprintf("# TYPE %s_llm_calls_duration_seconds_total counter\n", prefix))
	sb.WriteString(fmt.Sprintf("%s_llm_calls_duration_seconds_total %.6f\n", prefix, llmDuration))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("# HELP %s_llm_calls_errors_total Number of LLM call errors.\n", prefix))
	sb.WriteString(fmt.Sprintf("# TYPE %s_llm_calls_errors_total counter\n", prefix))
	sb.WriteString(fmt.Sprintf("%s_llm_calls_errors_total %d\n", prefix, atomic.LoadUint64(&m.llmCallsErrors)))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("# HELP %s_llm_tokens_prompt_total Total prompt tokens.\n", prefix))
	sb.WriteString(fmt.Sprintf("# TYPE %s_llm_tokens_prompt_total counter\n", prefix))
	sb.WriteString(fmt.Sprintf("%s_llm_tokens_prompt_total %d\n", prefix, atomic.LoadUint64(&m.llmTokensPrompt)))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("# HELP %s_llm_tokens_completion_total Total completion tokens.\n", prefix))
	sb.WriteString(fmt.Sprintf("# TYPE %s_llm_tokens_completion_total counter\n", prefix))
	sb.WriteString(fmt.Sprintf("%s_llm_tokens_completion_total %d\n", prefix, atomic.LoadUint64(&m.llmTokensCompletion)))
	sb.WriteString("\n")

	uptime := time.Since(m.startTime).Seconds()
	sb.WriteString(fmt.Sprintf("# HELP %s_uptime_seconds Service uptime in seconds.\n", prefix))
	sb.WriteString(fmt.Sprintf("# TYPE %s_uptime_seconds gauge\n", prefix))
	sb.WriteString(fmt.Sprintf("%s_uptime_seconds %.2f\n", prefix, uptime))
	sb.WriteString("\n")

	return sb.String()
}

// Stats returns the current counters as a nested map for the stats API.
func (m *ChatMetrics) Stats() map[string]interface{} {
	m.durationMu.Lock()
	retrievalDuration := m.retrievalDuration
	llmDuration := m.llmCallsDuration
	m.durationMu.Unlock()

	cacheHits := atomic.LoadUint64(&m.cacheHits)
	cacheMisses := atomic.LoadUint64(&m.cacheMisses)
	cacheTotal := cacheHits + cacheMisses
	cacheHitRate := 0.0
	if cacheTotal > 0 {
		cacheHitRate = float64(cacheHits) / float64(cacheTotal)
	}

	retrievalTotal := atomic.LoadUint64(&m.retrievalTotal)
	avgRetrievalDuration := 0.0
	if retrievalTotal > 0 {
		avgRetrievalDuration = retrievalDuration / float64(retrievalTotal)
	}

	llmTotal := atomic.LoadUint64(&m.llmCallsTotal)
	avgLLMDuration := 0.0
	if llmTotal > 0 {
		avgLLMDuration = llmDuration / float64(llmTotal)
	}

	fallbacks := map[string]interface{}{
		string(FallbackInvalidInput):     atomic.LoadUint64(&m.fallbackInvalidInput),
		string(FallbackStoreUnavailable): atomic.LoadUint64(&m.fallbackStoreUnavailable),
		string(FallbackDegraded):         atomic.LoadUint64(&m.fallbackDegraded),
		string(FallbackRetrievalFailure): atomic.LoadUint64(&m.fallbackRetrievalFailure),
		string(FallbackLowConfidence):    atomic.LoadUint64(&m.fallbackLowConfidence),
	}

	return map[string]interface{}{
		"queries": map[string]interface{}{
			"total":          atomic.LoadUint64(&m.queriesTotal),
			"answered":       atomic.LoadUint64(&m.answeredTotal),
			"cache_hits":     cacheHits,
			"cache_misses":   cacheMisses,
			"cache_hit_rate": cacheHitRate,
			"fallbacks":      fallbacks,
		},
		"retrieval": map[string]interface{}{
			"total":               retrievalTotal,
			"total_duration_secs": retrievalDuration,
			"avg_duration_secs":   avgRetrievalDuration,
			"errors":              atomic.LoadUint64(&m.retrievalErrors),
		},
		"llm": map[string]interface{}{
			"calls_total":         llmTotal,
			"total_duration_secs": llmDuration,
			"avg_duration_secs":   avgLLMDuration,
			"errors":              atomic.LoadUint64(&m.llmCallsErrors),
			"tokens_prompt":       atomic.LoadUint64(&m.llmTokensPrompt),
			"tokens_completion":   atomic.LoadUint64(&m.llmTokensCompletion),
		},
		"uptime_seconds": time.Since(m.startTime).Seconds(),
	}
}

// Reset zeroes all counters. Tests only.
func (m *ChatMetrics) Reset() {
	atomic.StoreUint64(&m.queriesTotal, 0)
	atomic.StoreUint64(&m.answeredTotal, 0)
	atomic.StoreUint64(&m.fallbackInvalidInput, 0)
	atomic.StoreUint64(&m.fallbackStoreUnavailable, 0)
	atomic.StoreUint64(&m.fallbackDegraded, 0)
	atomic.StoreUint64(&m.fallbackRetrievalFailure, 0)
	atomic.StoreUint64(&m.fallbackLowConfidence, 0)
	atomic.StoreUint64(&m.cacheHits, 0)
	atomic.StoreUint64(&m.cacheMisses, 0)
	atomic.StoreUint64(&m.retrievalTotal, 0)
	atomic.StoreUint64(&m.retrievalErrors, 0)
	atomic.StoreUint64(&m.llmCallsTotal, 0)
	atomic.StoreUint64(&m.llmCallsErrors, 0)
	atomic.StoreUint64(&m.llmTokensPrompt, 0)
	atomic.StoreUint64(&m.llmTokensCompletion, 0)

	m.durationMu.Lock()
	m.retrievalDuration = 0
	m.llmCallsDuration = 0
	m.startTime = time.Now()
	m.durationMu.Unlock()
}
