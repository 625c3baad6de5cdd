// Package openai implements the provider for the OpenAI API. It also covers
// OpenAI-compatible services (Azure OpenAI, LocalAI, vLLM) when pointed at
// them with a custom base URL.
package openai

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
const ProviderName = "openai"

const (
	defaultBaseURL    = "https://api.openai.com/v1"
	defaultEmbedModel = "text-embedding-3-small"
	defaultChatModel  = "gpt-4o-mini"
)

func init() {
	llm.RegisterProvider(ProviderName, New)
}

// Provider talks to an OpenAI-compatible API.
type Provider struct {
	baseURL      string
	apiKey       string
	organization string
	embedModel   string
	chatModel    string
	temperature  float64
	client       *httpclient.Client
}

// New builds the provider. The API key is required; model names fall back to
// the OpenAI defaults.
func New(cfg llm.Config) (llm.Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api key is required")
	}

	p := &Provider{
		baseURL:      defaultBaseURL,
		apiKey:       cfg.APIKey,
		organization: cfg.Organization,
		embedModel:   defaultEmbedModel,
		chatModel:    defaultChatModel,
		temperature:  cfg.Temperature,
		client:       httpclient.NewClient(cfg.Timeout, cfg.MaxRetries),
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
	return p, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return ProviderName
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingData struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type embeddingResponse struct {
	Data  []embeddingData `json:"data"`
	Usage usage           `json:"usage"`
}

// Embed generates embeddings for multiple texts.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var resp embeddingResponse
	in := embeddingRequest{Model: p.embedModel, Input: texts}
	if err := p.postJSON(ctx, "/embeddings", in, &resp); err != nil {
		return nil, err
	}

	// Entries may arrive out of order; the index field is authoritative.
	embeddings := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index >= 0 && item.Index < len(embeddings) {
			embeddings[item.Index] = item.Embedding
		}
	}
	return embeddings, nil
}

// EmbedSingle generates an embedding for a single text.
func (p *Provider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("openai: no embedding returned")
	}
	return embeddings[0], nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   usage        `json:"usage"`
}

// Chat completes a multi-turn conversation.
func (p *Provider) Chat(ctx context.Context, messages []llm.Message) (*llm.GenerateResponse, error) {
	converted := make([]chatMessage, len(messages))
	for i, msg := range messages {
		converted[i] = chatMessage{Role: string(msg.Role), Content: msg.Content}
	}
	return p.complete(ctx, converted)
}

// Generate completes a single prompt with an optional system prompt.
func (p *Provider) Generate(ctx context.Context, prompt string, systemPrompt string) (*llm.GenerateResponse, error) {
	var converted []chatMessage
	if systemPrompt != "" {
		converted = append(converted, chatMessage{Role: string(llm.RoleSystem), Content: systemPrompt})
	}
	converted = append(converted, chatMessage{Role: string(llm.RoleUser), Content: prompt})
	return p.complete(ctx, converted)
}

// complete posts to /chat/completions and maps the first choice.
func (p *Provider) complete(ctx context.Context, messages []chatMessage) (*llm.GenerateResponse, error) {
	in := chatRequest{
		Model:    p.chatModel,
		Messages: messages,
	}
	// Zero keeps the API default temperature.
	if p.temperature > 0 {
		in.Temperature = p.temperature
	}

	var resp chatResponse
	if err := p.postJSON(ctx, "/chat/completions", in, &resp); err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: no choices returned")
	}

	return &llm.GenerateResponse{
		Content: resp.Choices[0].Message.Content,
		TokenUsage: &llm.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// Ping checks that the API answers with the configured credentials.
func (p *Provider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	p.authorize(req)

	if err := p.client.DoJSON(req, nil); err != nil {
		return fmt.Errorf("openai: ping: %w", err)
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
	p.authorize(req)

	return p.client.DoJSON(req, out)
}

func (p *Provider) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	if p.organization != "" {
		req.Header.Set("OpenAI-Organization", p.organization)
	}
}
