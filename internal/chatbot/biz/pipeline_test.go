package biz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ray729alp/mqa-chatbot/internal/chatbot/metrics"
	"github.com/ray729alp/mqa-chatbot/internal/model"
	"github.com/ray729alp/mqa-chatbot/pkg/llm"
)

type fakeEmbedder struct {
	vector   []float32
	err      error
	gotTexts []string
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		f.gotTexts = append(f.gotTexts, text)
		out = append(out, f.vector)
	}
	if f.err != nil {
		return nil, f.err
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedSingle(_ context.Context, text string) ([]float32, error) {
	f.gotTexts = append(f.gotTexts, text)
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

func (f *fakeEmbedder) Name() string { return "fake-embedder" }

type fakeChatProvider struct {
	response    *llm.GenerateResponse
	err         error
	calls       int
	gotMessages []llm.Message
	gotDeadline bool
}

func (f *fakeChatProvider) Chat(ctx context.Context, messages []llm.Message) (*llm.GenerateResponse, error) {
	f.calls++
	f.gotMessages = messages
	_, f.gotDeadline = ctx.Deadline()
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

func (f *fakeChatProvider) Generate(ctx context.Context, prompt, _ string) (*llm.GenerateResponse, error) {
	return f.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
}

func (f *fakeChatProvider) Name() string { return "fake-chat" }

type fakeVectorStore struct {
	results   []*model.SearchResult
	searchErr error
	count     int64
	countErr  error
	gotTopK   int
	gotVector []float32
	closed    bool
}

func (s *fakeVectorStore) Insert(_ context.Context, _ []*model.Chunk) ([]string, error) {
	return nil, nil
}

func (s *fakeVectorStore) Search(_ context.Context, embedding []float32, topK int) ([]*model.SearchResult, error) {
	s.gotVector = embedding
	s.gotTopK = topK
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return s.results, nil
}

func (s *fakeVectorStore) Count(_ context.Context) (int64, error) { return s.count, s.countErr }

func (s *fakeVectorStore) DeleteDocument(_ context.Context, _ string) error { return nil }

func (s *fakeVectorStore) Clear(_ context.Context) error { return nil }

func (s *fakeVectorStore) Close() error {
	s.closed = true
	return nil
}

func searchResults(chunks ...model.Chunk) []*model.SearchResult {
	results := make([]*model.SearchResult, 0, len(chunks))
	for _, chunk := range chunks {
		results = append(results, &model.SearchResult{Chunk: chunk, Score: 0.9})
	}
	return results
}

func TestPipelineAnswersWithPrefixedQuestion(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{1, 0}}
	st := &fakeVectorStore{results: searchResults(
		model.Chunk{DocumentName: "handbook.pdf", Page: 4, Content: "Accreditation takes 90 days."},
		model.Chunk{DocumentName: "guide.txt", Content: "Apply through the online portal."},
	)}
	chat := &fakeChatProvider{response: &llm.GenerateResponse{Content: "Accreditation takes about 90 days."}}

	p := NewPipeline("higher_education", st, embedder, chat, nil)
	pr := p.Answer(context.Background(), "how long does accreditation take?", nil)

	require.Equal(t, OutcomeAnswered, pr.Outcome)
	assert.Equal(t, "Accreditation takes about 90 days.", pr.Answer)
	assert.Equal(t, []string{"handbook.pdf Page 4", "guide.txt"}, pr.Sources)

	require.Len(t, embedder.gotTexts, 1)
	assert.Equal(t, "Regarding MQA Higher Education: how long does accreditation take?", embedder.gotTexts[0])
	assert.Equal(t, 3, st.gotTopK)
	assert.Equal(t, []float32{1, 0}, st.gotVector)

	require.Len(t, chat.gotMessages, 1)
	assert.Equal(t, llm.RoleUser, chat.gotMessages[0].Role)
	prompt := chat.gotMessages[0].Content
	assert.Contains(t, prompt, "[1] From handbook.pdf Page 4:\nAccreditation takes 90 days.")
	assert.Contains(t, prompt, "[2] From guide.txt:\nApply through the online portal.")
	assert.Contains(t, prompt, "Question: Regarding MQA Higher Education: how long does accreditation take?")
	assert.NotContains(t, prompt, "{{context}}")
	assert.NotContains(t, prompt, "{{question}}")
	assert.True(t, chat.gotDeadline)
}

func TestPipelineSourcesKeepRetrievalOrderAndDuplicates(t *testing.T) {
	st := &fakeVectorStore{results: searchResults(
		model.Chunk{DocumentName: "mqf.pdf", Page: 2, Content: "first chunk"},
		model.Chunk{DocumentName: "mqf.pdf", Page: 2, Content: "second chunk"},
		model.Chunk{DocumentName: "policy.pdf", Page: 1, Content: "third chunk"},
	)}
	chat := &fakeChatProvider{response: &llm.GenerateResponse{Content: "An answer."}}

	p := NewPipeline("framework", st, &fakeEmbedder{vector: []float32{1}}, chat, nil)
	pr := p.Answer(context.Background(), "levels?", nil)

	require.Equal(t, OutcomeAnswered, pr.Outcome)
	assert.Equal(t, []string{"mqf.pdf Page 2", "mqf.pdf Page 2", "policy.pdf Page 1"}, pr.Sources)
}

func TestPipelineHistoryPrecedesQuestion(t *testing.T) {
	chat := &fakeChatProvider{response: &llm.GenerateResponse{Content: "An answer."}}
	p := NewPipeline("faq", &fakeVectorStore{}, &fakeEmbedder{vector: []float32{1}}, chat, nil)

	history := []model.Turn{
		{Question: "first question", Answer: "first answer"},
		{Question: "second question", Answer: "second answer"},
	}
	pr := p.Answer(context.Background(), "third question", history)

	require.Equal(t, OutcomeAnswered, pr.Outcome)
	require.Len(t, chat.gotMessages, 5)
	assert.Equal(t, llm.RoleUser, chat.gotMessages[0].Role)
	assert.Equal(t, "first question", chat.gotMessages[0].Content)
	assert.Equal(t, llm.RoleAssistant, chat.gotMessages[1].Role)
	assert.Equal(t, "first answer", chat.gotMessages[1].Content)
	assert.Equal(t, llm.RoleUser, chat.gotMessages[2].Role)
	assert.Equal(t, llm.RoleAssistant, chat.gotMessages[3].Role)
	assert.Equal(t, llm.RoleUser, chat.gotMessages[4].Role)
	assert.Contains(t, chat.gotMessages[4].Content, "third question")
}

func TestPipelineLowConfidenceAnswers(t *testing.T) {
	tests := []struct {
		name    string
		content string
		outcome Outcome
	}{
		{"upper case decline", "I DON'T KNOW anything about that.", OutcomeLowConfidence},
		{"mixed case decline", "Unfortunately I Cannot find this in the documents.", OutcomeLowConfidence},
		{"empty answer", "", OutcomeLowConfidence},
		{"whitespace answer", "  \n\t ", OutcomeLowConfidence},
		{"real answer", "The MQF has eight levels.", OutcomeAnswered},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chat := &fakeChatProvider{response: &llm.GenerateResponse{Content: tt.content}}
			p := NewPipeline("faq", &fakeVectorStore{}, &fakeEmbedder{vector: []float32{1}}, chat, nil)

			pr := p.Answer(context.Background(), "question", nil)
			assert.Equal(t, tt.outcome, pr.Outcome)
		})
	}
}

func TestPipelineEmbedFailure(t *testing.T) {
	chat := &fakeChatProvider{}
	p := NewPipeline("faq", &fakeVectorStore{}, &fakeEmbedder{err: errors.New("embedding backend down")}, chat, nil)

	pr := p.Answer(context.Background(), "question", nil)

	require.Equal(t, OutcomeRetrievalFailed, pr.Outcome)
	require.Error(t, pr.Err)
	assert.Contains(t, pr.Err.Error(), "embed question")
	assert.Zero(t, chat.calls)
}

func TestPipelineSearchFailure(t *testing.T) {
	chat := &fakeChatProvider{}
	st := &fakeVectorStore{searchErr: errors.New("store corrupted")}
	p := NewPipeline("faq", st, &fakeEmbedder{vector: []float32{1}}, chat, nil)

	pr := p.Answer(context.Background(), "question", nil)

	require.Equal(t, OutcomeRetrievalFailed, pr.Outcome)
	require.Error(t, pr.Err)
	assert.Contains(t, pr.Err.Error(), "search faq store")
	assert.Zero(t, chat.calls)
}

func TestPipelineGenerateFailure(t *testing.T) {
	chat := &fakeChatProvider{err: errors.New("model timeout")}
	p := NewPipeline("faq", &fakeVectorStore{}, &fakeEmbedder{vector: []float32{1}}, chat, nil)

	pr := p.Answer(context.Background(), "question", nil)

	require.Equal(t, OutcomeRetrievalFailed, pr.Outcome)
	require.Error(t, pr.Err)
	assert.Contains(t, pr.Err.Error(), "generate answer")
}

func TestPipelineAsksModelEvenWithoutChunks(t *testing.T) {
	chat := &fakeChatProvider{response: &llm.GenerateResponse{Content: "General guidance."}}
	p := NewPipeline("faq", &fakeVectorStore{}, &fakeEmbedder{vector: []float32{1}}, chat, nil)

	pr := p.Answer(context.Background(), "question", nil)

	require.Equal(t, OutcomeAnswered, pr.Outcome)
	assert.Equal(t, 1, chat.calls)
	assert.NotContains(t, chat.gotMessages[0].Content, "[1]")
	assert.Empty(t, pr.Sources)
}

func TestPipelineRecordsMetrics(t *testing.T) {
	m := metrics.GetChatMetrics()
	m.Reset()
	defer m.Reset()

	chat := &fakeChatProvider{response: &llm.GenerateResponse{
		Content:    "An answer.",
		TokenUsage: &llm.TokenUsage{PromptTokens: 120, CompletionTokens: 30, TotalTokens: 150},
	}}
	p := NewPipeline("faq", &fakeVectorStore{}, &fakeEmbedder{vector: []float32{1}}, chat, nil)

	pr := p.Answer(context.Background(), "question", nil)
	require.Equal(t, OutcomeAnswered, pr.Outcome)

	stats := m.Stats()
	retrieval := stats["retrieval"].(map[string]interface{})
	assert.Equal(t, uint64(1), retrieval["total"])
	assert.Equal(t, uint64(0), retrieval["errors"])

	llmStats := stats["llm"].(map[string]interface{})
	assert.Equal(t, uint64(1), llmStats["calls_total"])
	assert.Equal(t, uint64(120), llmStats["tokens_prompt"])
	assert.Equal(t, uint64(30), llmStats["tokens_completion"])
}

func TestPipelineConfigDefaults(t *testing.T) {
	p := NewPipeline("faq", &fakeVectorStore{}, &fakeEmbedder{}, &fakeChatProvider{}, &PipelineConfig{})

	assert.Equal(t, 3, p.config.TopK)
	assert.Equal(t, DefaultPipelineConfig().LLMTimeout, p.config.LLMTimeout)
	assert.Equal(t, DefaultSystemPrompt, p.config.SystemPrompt)
}
