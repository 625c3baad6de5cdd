package ingest

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	ingestopts "github.com/ray729alp/mqa-chatbot/pkg/options/ingest"
	llmopts "github.com/ray729alp/mqa-chatbot/pkg/options/llm"
	logopts "github.com/ray729alp/mqa-chatbot/pkg/options/logger"
	milvusopts "github.com/ray729alp/mqa-chatbot/pkg/options/milvus"
	storeopts "github.com/ray729alp/mqa-chatbot/pkg/options/store"
)

// Options contains all ingestion tool options.
type Options struct {
	// Log contains logger configuration.
	Log *logopts.Options `json:"log" mapstructure:"log"`

	// Store selects and configures the vector store backend.
	Store *storeopts.Options `json:"store" mapstructure:"store"`

	// Milvus contains Milvus client configuration, used when the store
	// backend is milvus.
	Milvus *milvusopts.Options `json:"milvus" mapstructure:"milvus"`

	// Embedding contains embedding provider configuration.
	Embedding *llmopts.ProviderOptions `json:"embedding" mapstructure:"embedding"`

	// Ingest contains chunking, concurrency, and watch configuration.
	Ingest *ingestopts.Options `json:"ingest" mapstructure:"ingest"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		Log:       logopts.NewOptions(),
		Store:     storeopts.NewOptions(),
		Milvus:    milvusopts.NewOptions(),
		Embedding: llmopts.NewEmbeddingOptions(),
		Ingest:    ingestopts.NewOptions(),
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	o.Log.AddFlags(fs)
	o.Store.AddFlags(fs)
	o.Milvus.AddFlags(fs)
	o.Embedding.AddFlags(fs, "embedding")
	o.Ingest.AddFlags(fs)
}

// Validate validates the options.
func (o *Options) Validate() error {
	var errs []error

	if err := o.Log.Validate(); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, o.Store.Validate()...)
	if o.Store.Backend == storeopts.BackendMilvus {
		errs = append(errs, o.Milvus.Validate()...)
	}
	for _, err := range o.Embedding.Validate() {
		errs = append(errs, fmt.Errorf("embedding: %w", err))
	}
	errs = append(errs, o.Ingest.Validate()...)

	return errors.Join(errs...)
}

// Complete fills in derived defaults after flags and config are applied.
func (o *Options) Complete() error {
	if o.Embedding.APIKey == "" {
		switch o.Embedding.Provider {
		case "huggingface":
			o.Embedding.APIKey = os.Getenv("HUGGINGFACE_API_KEY")
		case "openai":
			o.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
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
	return o.Ingest.Complete()
}
