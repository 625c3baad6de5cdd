// Package llm abstracts the model backends the chatbot talks to. Embeddings
// and chat completions are configured independently, so retrieval may run
// against a hosted embedding model while answers come from a local one.
//
// Provider packages register themselves from init; a blank import makes a
// backend available by name:
//
//	import _ "github.com/ray729alp/mqa-chatbot/pkg/llm/ollama"
package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Config carries the connection settings a provider factory needs. Fields a
// backend has no use for are ignored.
type Config struct {
	// BaseURL is the API base address.
	BaseURL string

	// APIKey authenticates hosted backends. Local backends leave it empty.
	APIKey string

	// Model names the chat model.
	Model string

	// EmbeddingModel names the embedding model. Factories fall back to Model
	// when it is empty.
	EmbeddingModel string

	// Temperature steers sampling for chat models. Zero keeps the backend
	// default.
	Temperature float64

	// Timeout bounds a single request.
	Timeout time.Duration

	// MaxRetries caps transport-level retries per request.
	MaxRetries int

	// Organization is the OpenAI organization ID. Optional.
	Organization string
}

// EmbeddingProvider generates vector embeddings for text.
type EmbeddingProvider interface {
	// Embed generates embeddings for multiple texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedSingle generates an embedding for a single text.
	EmbedSingle(ctx context.Context, text string) ([]float32, error)

	// Name returns the provider name.
	Name() string
}

// ChatProvider generates text from prompts and conversations.
type ChatProvider interface {
	// Chat completes a multi-turn conversation.
	Chat(ctx context.Context, messages []Message) (*GenerateResponse, error)

	// Generate completes a single prompt with an optional system prompt.
	Generate(ctx context.Context, prompt string, systemPrompt string) (*GenerateResponse, error)

	// Name returns the provider name.
	Name() string
}

// Provider supports both embedding and chat.
type Provider interface {
	EmbeddingProvider
	ChatProvider
}

// Pinger is implemented by providers that can check whether their backend is
// reachable. Callers type-assert; providers without a cheap health endpoint
// simply do not implement it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Message is a single message in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// GenerateResponse is the result of a chat or generate call.
type GenerateResponse struct {
	Content    string      `json:"content"`
	TokenUsage *TokenUsage `json:"token_usage,omitempty"`
}

// TokenUsage reports token consumption for a single call. Providers that do
// not report usage leave it nil.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ProviderFactory builds a full provider.
type ProviderFactory func(cfg Config) (Provider, error)

// EmbeddingProviderFactory builds an embedding-only provider.
type EmbeddingProviderFactory func(cfg Config) (EmbeddingProvider, error)

// ChatProviderFactory builds a chat-only provider.
type ChatProviderFactory func(cfg Config) (ChatProvider, error)

var (
	regMu          sync.RWMutex
	fullFactories  = map[string]ProviderFactory{}
	embedFactories = map[string]EmbeddingProviderFactory{}
	chatFactories  = map[string]ChatProviderFactory{}
)

// RegisterProvider registers a full provider factory under name. Later
// registrations replace earlier ones.
func RegisterProvider(name string, factory ProviderFactory) {
	regMu.Lock()
	defer regMu.Unlock()
	fullFactories[name] = factory
}

// RegisterEmbeddingProvider registers an embedding-only factory under name.
func RegisterEmbeddingProvider(name string, factory EmbeddingProviderFactory) {
	regMu.Lock()
	defer regMu.Unlock()
	embedFactories[name] = factory
}

// RegisterChatProvider registers a chat-only factory under name.
func RegisterChatProvider(name string, factory ChatProviderFactory) {
	regMu.Lock()
	defer regMu.Unlock()
	chatFactories[name] = factory
}

// NewProvider builds the full provider registered under name.
func NewProvider(name string, cfg Config) (Provider, error) {
	regMu.RLock()
	factory, ok := fullFactories[name]
	regMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	return factory(cfg)
}

// NewEmbeddingProvider builds an embedding provider. A dedicated embedding
// factory wins over a full provider factory registered under the same name.
func NewEmbeddingProvider(name string, cfg Config) (EmbeddingProvider, error) {
	regMu.RLock()
	embedFactory, embedOK := embedFactories[name]
	fullFactory, fullOK := fullFactories[name]
	regMu.RUnlock()

	switch {
	case embedOK:
		return embedFactory(cfg)
	case fullOK:
		return fullFactory(cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", name)
	}
}

// NewChatProvider builds a chat provider. A dedicated chat factory wins over
// a full provider factory registered under the same name.
func NewChatProvider(name string, cfg Config) (ChatProvider, error) {
	regMu.RLock()
	chatFactory, chatOK := chatFactories[name]
	fullFactory, fullOK := fullFactories[name]
	regMu.RUnlock()

	switch {
	case chatOK:
		return chatFactory(cfg)
	case fullOK:
		return fullFactory(cfg)
	default:
		return nil, fmt.Errorf("unknown chat provider %q", name)
	}
}

// ListProviders reports every registered provider name, sorted.
func ListProviders() []string {
	regMu.RLock()
	defer regMu.RUnlock()

	seen := map[string]struct{}{}
	for name := range fullFactories {
		seen[name] = struct{}{}
	}
	for name := range embedFactories {
		seen[name] = struct{}{}
	}
	for name := range chatFactories {
		seen[name] = struct{}{}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
