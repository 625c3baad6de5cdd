// Package chatbot provides the MQA chatbot service application.
package chatbot

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	cacheopts "github.com/ray729alp/mqa-chatbot/pkg/options/cache"
	chatopts "github.com/ray729alp/mqa-chatbot/pkg/options/chatbot"
	httpopts "github.com/ray729alp/mqa-chatbot/pkg/options/http"
	llmopts "github.com/ray729alp/mqa-chatbot/pkg/options/llm"
	logopts "github.com/ray729alp/mqa-chatbot/pkg/options/logger"
	milvusopts "github.com/ray729alp/mqa-chatbot/pkg/options/milvus"
	storeopts "github.com/ray729alp/mqa-chatbot/pkg/options/store"
)

// Options contains all chatbot service options.
type Options struct {
	// HTTP contains HTTP server configuration.
	HTTP *httpopts.Options `json:"http" mapstructure:"http"`

	// Log contains logger configuration.
	Log *logopts.Options `json:"log" mapstructure:"log"`

	// Store selects and configures the vector store backend.
	Store *storeopts.Options `json:"store" mapstructure:"store"`

	// Milvus contains Milvus client configuration, used when the store
	// backend is milvus.
	Milvus *milvusopts.Options `json:"milvus" mapstructure:"milvus"`

	// Embedding contains embedding provider configuration.
	Embedding *llmopts.ProviderOptions `json:"embedding" mapstructure:"embedding"`

	// Chat contains chat provider configuration.
	Chat *llmopts.ProviderOptions `json:"chat" mapstructure:"chat"`

	// Chatbot contains chat pipeline configuration.
	Chatbot *chatopts.Options `json:"chatbot" mapstructure:"chatbot"`

	// Cache contains answer cache configuration.
	Cache *cacheopts.Options `json:"cache" mapstructure:"cache"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		HTTP:            httpopts.NewOptions(),
		Log:             logopts.NewOptions(),
		Store:           storeopts.NewOptions(),
		Milvus:          milvusopts.NewOptions(),
		Embedding:       llmopts.NewEmbeddingOptions(),
		Chat:            llmopts.NewChatOptions(),
		Chatbot:         chatopts.NewOptions(),
		Cache:           cacheopts.NewOptions(),
		ShutdownTimeout: 10 * time.Second,
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	o.HTTP.AddFlags(fs)
	o.Log.AddFlags(fs)
	o.Store.AddFlags(fs)
	o.Milvus.AddFlags(fs)
	o.Embedding.AddFlags(fs, "embedding")
	o.Chat.AddFlags(fs, "chat")
	o.Chatbot.AddFlags(fs)
	o.Cache.AddFlags(fs)
	fs.DurationVar(&o.ShutdownTimeout, "shutdown-timeout", o.ShutdownTimeout, "Graceful shutdown timeout.")
}

// Validate validates the options.
func (o *Options) Validate() error {
	var errs []error

	if err := o.Log.Validate(); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, o.HTTP.Validate()...)
	errs = append(errs, o.Store.Validate()...)
	if o.Store.Backend == storeopts.BackendMilvus {
		errs = append(errs, o.Milvus.Validate()...)
	}
	for _, err := range o.Embedding.Validate() {
		errs = append(errs, fmt.Errorf("embedding: %w", err))
	}
	for _, err := range o.Chat.Validate() {
		errs = append(errs, fmt.Errorf("chat: %w", err))
	}
	errs = append(errs, o.Chatbot.Validate()...)
	errs = append(errs, o.Cache.Validate()...)
	if o.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown-timeout must be positive"))
	}

	return errors.Join(errs...)
}

// Complete fills in derived defaults after flags and config are applied.
func (o *Options) Complete() error {
	// Hosted providers read their token from the environment when the
	// config leaves it blank. CLI keys leak into process listings.
	for _, p := range []*llmopts.ProviderOptions{o.Embedding, o.Chat} {
		if p.APIKey != "" {
			continue
		}
		switch p.Provider {
		case "huggingface":
			p.APIKey = os.Getenv("HUGGINGFACE_API_KEY")
		case "openai":
			p.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}

	if err := o.Store.Complete(); err != nil {
		return err
	}
	if err := o.Milvus.Complete(); err != nil {
		return err
	}
	if err := o.Embedding.Complete(); err != nil {
		return err
	}
	if err := o.Chat.Complete(); err != nil {
		return err
	}
	if err := o.Chatbot.Complete(); err != nil {
		return err
	}
	return o.Cache.Complete()
}
