package biz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/ray729alp/mqa-chatbot/internal/chatbot/metrics"
	"github.com/ray729alp/mqa-chatbot/internal/chatbot/store"
	"github.com/ray729alp/mqa-chatbot/internal/model"
	"github.com/ray729alp/mqa-chatbot/internal/pkg/chatbot/textutil"
	"github.com/ray729alp/mqa-chatbot/pkg/llm"
)

// DefaultSystemPrompt is the answer-generation template. {{context}} and
// {{question}} are replaced per query.
const DefaultSystemPrompt = `You are a helpful assistant for the Malaysian Qualifications Agency (MQA).
Use the following context to answer the question. If the context does not contain the answer, say "I don't know" and suggest contacting MQA directly.

Context:
{{context}}

Question: {{question}}

Answer:`

// Outcome classifies a pipeline run.
type Outcome int

const (
	// OutcomeAnswered means the model produced a usable answer.
	OutcomeAnswered Outcome = iota
	// OutcomeRetrievalFailed means embedding, retrieval, or generation failed.
	OutcomeRetrievalFailed
	// OutcomeLowConfidence means the model declined or returned an empty answer.
	OutcomeLowConfidence
)

// PipelineResult is the outcome of a single pipeline run. Answer holds the
// raw model text and is only meaningful for OutcomeAnswered; Err is only set
// for OutcomeRetrievalFailed.
type PipelineResult struct {
	Outcome Outcome
	Answer  string
	Sources []string
	Err     error
}

// PipelineConfig tunes the retrieval pipeline.
type PipelineConfig struct {
	// TopK is the number of chunks retrieved per question.
	TopK int
	// LLMTimeout bounds the chat-provider call.
	LLMTimeout time.Duration
	// SystemPrompt is the generation template with {{context}} and
	// {{question}} placeholders.
	SystemPrompt string
}

// DefaultPipelineConfig returns the standard pipeline tuning.
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		TopK:         3,
		LLMTimeout:   60 * time.Second,
		SystemPrompt: DefaultSystemPrompt,
	}
}

// Pipeline answers questions for exactly one category. It holds that
// category's store handle, so retrieval can never cross categories.
type Pipeline struct {
	category     string
	display      string
	store        store.VectorStore
	embedder     llm.EmbeddingProvider
	chatProvider llm.ChatProvider
	config       *PipelineConfig
	metrics      *metrics.ChatMetrics
}

// NewPipeline creates the retrieval pipeline for a category.
func NewPipeline(category string, st store.VectorStore, embedder llm.EmbeddingProvider, chatProvider llm.ChatProvider, config *PipelineConfig) *Pipeline {
	if config == nil {
		config = DefaultPipelineConfig()
	}
	if config.TopK <= 0 {
		config.TopK = 3
	}
	if config.LLMTimeout <= 0 {
		config.LLMTimeout = 60 * time.Second
	}
	if config.SystemPrompt == "" {
		config.SystemPrompt = DefaultSystemPrompt
	}
	return &Pipeline{
		category:     category,
		display:      textutil.DisplayTitle(category),
		store:        st,
		embedder:     embedder,
		chatProvider: chatProvider,
		config:       config,
		metrics:      metrics.GetChatMetrics(),
	}
}

// Answer embeds the question, retrieves the top chunks from this category's
// store, and asks the chat provider. History turns precede the question as
// alternating user/assistant messages.
func (p *Pipeline) Answer(ctx context.Context, question string, history []model.Turn) *PipelineResult {
	// The category name disambiguates short questions ("what are the fees?")
	// across stores; the prefixed form is both embedded and asked.
	prefixed := fmt.Sprintf("Regarding MQA %s: %s", p.display, question)

	retrievalStart := time.Now()
	vector, err := p.embedder.EmbedSingle(ctx, prefixed)
	if err != nil {
		p.metrics.RecordRetrieval(time.Since(retrievalStart), err)
		return &PipelineResult{Outcome: OutcomeRetrievalFailed, Err: fmt.Errorf("embed question: %w", err)}
	}

	results, err := p.store.Search(ctx, vector, p.config.TopK)
	p.metrics.RecordRetrieval(time.Since(retrievalStart), err)
	if err != nil {
		return &PipelineResult{Outcome: OutcomeRetrievalFailed, Err: fmt.Errorf("search %s store: %w", p.category, err)}
	}

	if ctx.Err() != nil {
		return &PipelineResult{Outcome: OutcomeRetrievalFailed, Err: fmt.Errorf("context cancelled before generation: %w", ctx.Err())}
	}

	prompt := p.buildPrompt(prefixed, results)
	messages := buildMessages(history, prompt)

	llmCtx, cancel := context.WithTimeout(ctx, p.config.LLMTimeout)
	defer cancel()

	logger.Infow("generating answer",
		"category", p.category,
		"question", textutil.TruncateString(question, 80),
		"chunks", len(results),
		"history_turns", len(history))

	llmStart := time.Now()
	resp, err := p.chatProvider.Chat(llmCtx, messages)

	var promptTokens, completionTokens int
	if resp != nil && resp.TokenUsage != nil {
		promptTokens = resp.TokenUsage.PromptTokens
		completionTokens = resp.TokenUsage.CompletionTokens
	}
	p.metrics.RecordLLMCall(time.Since(llmStart), promptTokens, completionTokens, err)

	if err != nil {
		return &PipelineResult{Outcome: OutcomeRetrievalFailed, Err: fmt.Errorf("generate answer: %w", err)}
	}

	// Duplicates are kept so sources mirror retrieval order exactly.
	sources := make([]string, 0, len(results))
	for i := range results {
		sources = append(sources, results[i].Citation())
	}

	if isLowConfidence(resp.Content) {
		logger.Infow("low-confidence answer, deferring to fallback", "category", p.category, "answer_length", len(resp.Content))
		return &PipelineResult{Outcome: OutcomeLowConfidence, Sources: sources}
	}

	return &PipelineResult{Outcome: OutcomeAnswered, Answer: resp.Content, Sources: sources}
}

// buildPrompt renders the template with numbered context blocks.
func (p *Pipeline) buildPrompt(question string, results []*model.SearchResult) string {
	var contextBuilder strings.Builder
	for i, result := range results {
		contextBuilder.WriteString(fmt.Sprintf("[%d] From %s:\n%s\n\n",
			i+1, result.Citation(), result.Content))
	}

	prompt := strings.ReplaceAll(p.config.SystemPrompt, "{{context}}", contextBuilder.String())
	return strings.ReplaceAll(prompt, "{{question}}", question)
}

// buildMessages lays out prior turns ahead of the rendered prompt.
func buildMessages(history []model.Turn, prompt string) []llm.Message {
	messages := make([]llm.Message, 0, 2*len(history)+1)
	for _, turn := range history {
		messages = append(messages,
			llm.Message{Role: llm.RoleUser, Content: turn.Question},
			llm.Message{Role: llm.RoleAssistant, Content: turn.Answer},
		)
	}
	return append(messages, llm.Message{Role: llm.RoleUser, Content: prompt})
}

// isLowConfidence reports whether the model declined to answer. Empty and
// whitespace-only answers count as declined.
func isLowConfidence(answer string) bool {
	if strings.TrimSpace(answer) == "" {
		return true
	}
	lower := strings.ToLower(answer)
	return strings.Contains(lower, "i don't know") || strings.Contains(lower, "i cannot")
}
