// Package huggingface implements the provider for the HuggingFace Inference
// API: the feature-extraction pipeline for embeddings and text generation
// for chat.
package huggingface

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ray729alp/mqa-chatbot/pkg/llm"
	"github.com/ray729alp/mqa-chatbot/pkg/utils/httpclient"
	"github.com/ray729alp/mqa-chatbot/pkg/utils/json"
)

// ProviderName identifies this provider in the registry.
const ProviderName = "huggingface"

const (
	defaultBaseURL    = "https://api-inference.huggingface.co"
	defaultEmbedModel = "sentence-transformers/all-MiniLM-L6-v2"
	defaultChatModel  = "mistralai/Mistral-7B-Instruct-v0.2"
)

func init() {
	llm.RegisterProvider(ProviderName, New)
}

// Provider talks to the hosted Inference API.
type Provider struct {
	baseURL     string
	apiKey      string
	embedModel  string
	chatModel   string
	temperature float64
	client      *httpclient.Client
}

// New builds the provider. The API key is required; everything else falls
// back to a hosted default.
func New(cfg llm.Config) (llm.Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("huggingface: api key is required")
	}

	p := &Provider{
		baseURL:     defaultBaseURL,
		apiKey:      cfg.APIKey,
		embedModel:  defaultEmbedModel,
		chatModel:   defaultChatModel,
		temperature: 0.7,
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

// hubOptions asks the hub to block while a cold model spins up instead of
// answering 503.
type hubOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

type featureRequest struct {
	Inputs  []string   `json:"inputs"`
	Options hubOptions `json:"options"`
}

// Embed generates embeddings for multiple texts.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(featureRequest{
		Inputs:  texts,
		Options: hubOptions{WaitForModel: true},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal feature-extraction request: %w", err)
	}

	url := fmt.Sprintf("%s/pipeline/feature-extraction/%s", p.baseURL, p.embedModel)
	raw, err := p.post(ctx, url, payload)
	if err != nil {
		return nil, err
	}
	return decodeEmbeddings(raw)
}

// EmbedSingle generates an embedding for a single text.
func (p *Provider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("huggingface: no embedding returned")
	}
	return embeddings[0], nil
}

// decodeEmbeddings accepts both shapes the feature-extraction pipeline
// answers with: sentence-level models return [][]float32, token-level models
// return [][][]float32 and need mean pooling.
func decodeEmbeddings(raw []byte) ([][]float32, error) {
	var sentences [][]float32
	if err := json.Unmarshal(raw, &sentences); err == nil {
		return sentences, nil
	}

	var tokens [][][]float32
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return nil, fmt.Errorf("unexpected feature-extraction response shape: %w", err)
	}

	pooled := make([][]float32, len(tokens))
	for i, seq := range tokens {
		pooled[i] = meanPool(seq)
	}
	return pooled, nil
}

// meanPool averages token vectors into a single sentence vector.
func meanPool(seq [][]float32) []float32 {
	if len(seq) == 0 {
		return nil
	}
	out := make([]float32, len(seq[0]))
	for _, vec := range seq {
		for i, v := range vec {
			out[i] += v
		}
	}
	for i := range out {
		out[i] /= float32(len(seq))
	}
	return out
}

type generateRequest struct {
	Inputs     string         `json:"inputs"`
	Parameters generateParams `json:"parameters"`
	Options    hubOptions     `json:"options"`
}

type generateParams struct {
	MaxNewTokens   int     `json:"max_new_tokens"`
	Temperature    float64 `json:"temperature"`
	TopP           float64 `json:"top_p"`
	DoSample       bool    `json:"do_sample"`
	ReturnFullText bool    `json:"return_full_text"`
}

type generateReply struct {
	GeneratedText string `json:"generated_text"`
}

// Chat completes a multi-turn conversation by flattening the messages into
// an instruct-style prompt.
func (p *Provider) Chat(ctx context.Context, messages []llm.Message) (*llm.GenerateResponse, error) {
	return p.generate(ctx, instructPrompt(messages))
}

// Generate completes a single prompt with an optional system prompt.
func (p *Provider) Generate(ctx context.Context, prompt string, systemPrompt string) (*llm.GenerateResponse, error) {
	if systemPrompt != "" {
		prompt = fmt.Sprintf("[INST] %s [/INST]\n\n%s", systemPrompt, prompt)
	}
	return p.generate(ctx, prompt)
}

func (p *Provider) generate(ctx context.Context, prompt string) (*llm.GenerateResponse, error) {
	payload, err := json.Marshal(generateRequest{
		Inputs: prompt,
		Parameters: generateParams{
			MaxNewTokens: 1024,
			Temperature:  p.temperature,
			TopP:         0.95,
			DoSample:     true,
		},
		Options: hubOptions{WaitForModel: true},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal text-generation request: %w", err)
	}

	raw, err := p.post(ctx, fmt.Sprintf("%s/models/%s", p.baseURL, p.chatModel), payload)
	if err != nil {
		return nil, err
	}

	var replies []generateReply
	if err := json.Unmarshal(raw, &replies); err != nil {
		return nil, fmt.Errorf("decode text-generation response: %w", err)
	}
	if len(replies) == 0 {
		return nil, fmt.Errorf("huggingface: empty generation response")
	}

	// The Inference API does not report token usage.
	return &llm.GenerateResponse{Content: replies[0].GeneratedText}, nil
}

// instructPrompt flattens a conversation into the Mistral instruct template.
// System and user turns become instructions; assistant turns stay bare.
func instructPrompt(messages []llm.Message) string {
	var b strings.Builder
	for _, msg := range messages {
		if msg.Role == llm.RoleAssistant {
			b.WriteString(msg.Content)
			b.WriteString("\n")
			continue
		}
		fmt.Fprintf(&b, "[INST] %s [/INST]\n", msg.Content)
	}
	return b.String()
}

// post sends a JSON payload and returns the raw response body. Non-200
// answers become errors carrying the body, which is where the hub reports
// model failures.
func (p *Provider) post(ctx context.Context, url string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.DoRequest(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("huggingface: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
