// Package llmopts configures one LLM provider role. The chatbot composes two
// instances: one for embeddings, one for chat completion.
package llmopts

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/ray729alp/mqa-chatbot/pkg/llm"
	"github.com/ray729alp/mqa-chatbot/pkg/options"
)

var _ options.IOptions = (*ProviderOptions)(nil)

// ProviderOptions selects and configures a single provider backend.
type ProviderOptions struct {
	Provider     string        `json:"provider"     mapstructure:"provider"`
	BaseURL      string        `json:"base-url"     mapstructure:"base-url"`
	APIKey       string        `json:"api-key"      mapstructure:"api-key"`
	Model        string        `json:"model"        mapstructure:"model"`
	Temperature  float64       `json:"temperature"  mapstructure:"temperature"`
	Timeout      time.Duration `json:"timeout"      mapstructure:"timeout"`
	MaxRetries   int           `json:"max-retries"  mapstructure:"max-retries"`
	Organization string        `json:"organization" mapstructure:"organization"`
}

// NewProviderOptions returns options pointing at a local Ollama daemon.
func NewProviderOptions() *ProviderOptions {
	return &ProviderOptions{
		Provider:   "ollama",
		BaseURL:    "http://localhost:11434",
		Timeout:    120 * time.Second,
		MaxRetries: 3,
	}
}

// NewEmbeddingOptions returns the deployed embedding defaults. Queries must
// be embedded with the same model the category stores were built with, so
// this points at the hosted MiniLM endpoint.
func NewEmbeddingOptions() *ProviderOptions {
	opts := NewProviderOptions()
	opts.Provider = "huggingface"
	opts.BaseURL = "https://api-inference.huggingface.co"
	opts.Model = "sentence-transformers/all-MiniLM-L6-v2"
	opts.Timeout = 30 * time.Second
	return opts
}

// NewChatOptions returns the deployed chat defaults.
func NewChatOptions() *ProviderOptions {
	opts := NewProviderOptions()
	opts.Model = "llama3:8b"
	opts.Temperature = 0.1
	opts.Timeout = 60 * time.Second
	return opts
}

// ProviderConfig translates the options into the factory config. The model
// name is offered for both roles; embedding factories read EmbeddingModel
// and chat factories read Model.
func (o *ProviderOptions) ProviderConfig() llm.Config {
	return llm.Config{
		BaseURL:        o.BaseURL,
		APIKey:         o.APIKey,
		Model:          o.Model,
		EmbeddingModel: o.Model,
		Temperature:    o.Temperature,
		Timeout:        o.Timeout,
		MaxRetries:     o.MaxRetries,
		Organization:   o.Organization,
	}
}

// AddFlags registers the provider flags under the given prefix, so one
// binary can expose embedding.model and chat.model side by side.
func (o *ProviderOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	prefix := options.Join(prefixes...)
	fs.StringVar(&o.Provider, prefix+"provider", o.Provider, "Provider backend: ollama, openai, or huggingface.")
	fs.StringVar(&o.BaseURL, prefix+"base-url", o.BaseURL, "Base URL of the provider API.")
	fs.StringVar(&o.APIKey, prefix+"api-key", o.APIKey, "API key for hosted providers.")
	fs.StringVar(&o.Model, prefix+"model", o.Model, "Model name.")
	fs.Float64Var(&o.Temperature, prefix+"temperature", o.Temperature, "Sampling temperature; zero keeps the backend default.")
	fs.DurationVar(&o.Timeout, prefix+"timeout", o.Timeout, "Per-request timeout.")
	fs.IntVar(&o.MaxRetries, prefix+"max-retries", o.MaxRetries, "Transport-level retries per request.")
	fs.StringVar(&o.Organization, prefix+"organization", o.Organization, "OpenAI organization ID.")
}

// Validate reports every invalid field.
func (o *ProviderOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Provider == "" {
		errs = append(errs, fmt.Errorf("provider is required"))
	}
	if o.BaseURL == "" {
		errs = append(errs, fmt.Errorf("base-url is required"))
	}
	if o.Model == "" {
		errs = append(errs, fmt.Errorf("model is required"))
	}
	// Hosted backends reject unauthenticated requests outright.
	if (o.Provider == "openai" || o.Provider == "huggingface") && o.APIKey == "" {
		errs = append(errs, fmt.Errorf("api-key is required for %s provider", o.Provider))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive"))
	}
	return errs
}

// Complete fills in derived defaults after flags and config are applied.
func (o *ProviderOptions) Complete() error {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	return nil
}
