// Package ollama implements the provider for a local Ollama daemon.
package ollama

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/ray729alp/mqa-chatbot/pkg/llm"
	"github.com/ray729alp/mqa-chatbot/pkg/utils/httpclient"
	"github.com/ray729alp/mqa-chatbot/pkg/utils/json"
)

// ProviderName identifies this provider in the registry.
const ProviderName = "ollama"

const (
	defaultBaseURL    = "http://localhost:11434"
	defaultEmbedModel = "all-minilm"
	defaultChatModel  = "llama3:8b"

	// defaultTemperature keeps answers grounded in the retrieved context.
	defaultTemperature = 0.1
)

func init() {
	llm.RegisterProvider(ProviderName, New)
}

// Provider talks to the Ollama HTTP API.
type Provider struct {
	baseURL     string
	embedModel  string
	chatModel   string
	temperature float64
	client      *httpclient.Client
}

// New builds the provider. Ollama runs locally and needs no credentials.
func New(cfg llm.Config) (llm.Provider, error) {
	p := &Provider{
		baseURL:     defaultBaseURL,
		embedModel:  defaultEmbedModel,
		chatModel:   defaultChatModel,
		temperature: defaultTemperature,
		client:      httpclient.NewClient(cfg.Timeout, cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		p.baseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	switch {
	case cfg.EmbeddingModel != "":
		p.embedModel = cfg.EmbeddingModel
	case cfg.Model != "":
		p.embedModel = cfg.Model
	}
	if cfg.Model != "" {
		p.chatModel = cfg.Model
	}
	if cfg.Temperature > 0 {
		p.temperature = cfg.Temperature
	}
	return p, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return ProviderName
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed generates embeddings for multiple texts.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var resp embedResponse
	if err := p.postJSON(ctx, "/api/embed", embedRequest{Model: p.embedModel, Input: texts}, &resp); err != nil {
		return nil, fmt.Errorf("ollama: embed: %w", err)
	}
	return resp.Embeddings, nil
}

// EmbedSingle generates an embedding for a single text.
func (p *Provider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("ollama: no embedding returned")
	}
	return embeddings[0], nil
}

type modelOptions struct {
	Temperature float64 `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  modelOptions  `json:"options"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`

	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`
}

// Chat completes a multi-turn conversation.
func (p *Provider) Chat(ctx context.Context, messages []llm.Message) (*llm.GenerateResponse, error) {
	converted := make([]chatMessage, len(messages))
	for i, msg := range messages {
		converted[i] = chatMessage{Role: string(msg.Role), Content: msg.Content}
	}

	in := chatRequest{
		Model:    p.chatModel,
		Messages: converted,
		Options:  modelOptions{Temperature: p.temperature},
	}

	var resp chatResponse
	if err := p.postJSON(ctx, "/api/chat", in, &resp); err != nil {
		return nil, fmt.Errorf("ollama: chat: %w", err)
	}

	return &llm.GenerateResponse{
		Content:    resp.Message.Content,
		TokenUsage: usageFromCounts(resp.PromptEvalCount, resp.EvalCount),
	}, nil
}

type generateRequest struct {
	Model   string       `json:"model"`
	Prompt  string       `json:"prompt"`
	System  string       `json:"system,omitempty"`
	Stream  bool         `json:"stream"`
	Options modelOptions `json:"options"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`

	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`
}

// Generate completes a single prompt.
func (p *Provider) Generate(ctx context.Context, prompt string, systemPrompt string) (*llm.GenerateResponse, error) {
	in := generateRequest{
		Model:   p.chatModel,
		Prompt:  prompt,
		System:  systemPrompt,
		Options: modelOptions{Temperature: p.temperature},
	}

	var resp generateResponse
	if err := p.postJSON(ctx, "/api/generate", in, &resp); err != nil {
		return nil, fmt.Errorf("ollama: generate: %w", err)
	}

	return &llm.GenerateResponse{
		Content:    resp.Response,
		TokenUsage: usageFromCounts(resp.PromptEvalCount, resp.EvalCount),
	}, nil
}

// usageFromCounts converts eval counts into token usage. Both counts are zero
// when the daemon omits them, in which case usage stays nil.
func usageFromCounts(promptTokens, completionTokens int) *llm.TokenUsage {
	if promptTokens == 0 && completionTokens == 0 {
		return nil
	}
	return &llm.TokenUsage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}
}

// Ping checks whether the daemon is reachable.
func (p *Provider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	if err := p.client.DoJSON(req, nil); err != nil {
		return fmt.Errorf("ollama: ping: %w", err)
	}
	return nil
}

func (p *Provider) postJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return p.client.DoJSON(req, out)
}
