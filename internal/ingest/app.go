package ingest

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/kart-io/logger"

	"github.com/ray729alp/mqa-chatbot/internal/chatbot/biz"
	"github.com/ray729alp/mqa-chatbot/internal/chatbot/store"
	"github.com/ray729alp/mqa-chatbot/pkg/app"
	"github.com/ray729alp/mqa-chatbot/pkg/component/milvus"
	"github.com/ray729alp/mqa-chatbot/pkg/llm"

	// Register the providers the embedding flag can select.
	_ "github.com/ray729alp/mqa-chatbot/pkg/llm/huggingface"
	_ "github.com/ray729alp/mqa-chatbot/pkg/llm/ollama"
	_ "github.com/ray729alp/mqa-chatbot/pkg/llm/openai"

	storeopts "github.com/ray729alp/mqa-chatbot/pkg/options/store"
)

const (
	// Name is the tool name used in logs and on the command line.
	Name = "mqa-ingest"

	appDescription = `MQA Chatbot Ingestion Tool

Builds the per-category vector stores the chatbot answers from. Documents
live in one directory per category under the data root; each category is
rebuilt from scratch: load, chunk, embed, store, verify.

With --ingest.watch the process stays alive and rebuilds a category
whenever files under its directory change.`
)

// NewApp creates a new ingestion application instance.
func NewApp() *app.App {
	opts := NewOptions()

	return app.NewApp(
		app.WithName(Name),
		app.WithDescription(appDescription),
		app.WithOptions(opts),
		app.WithRunFunc(func() error {
			return Run(opts)
		}),
	)
}

// Run executes the ingestion flow described by the options.
func Run(opts *Options) error {
	opts.Log.AddInitialField("service.name", Name)
	opts.Log.AddInitialField("service.version", app.GetVersion())
	if err := opts.Log.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	opener, openerClose, err := newStoreOpener(opts)
	if err != nil {
		return fmt.Errorf("failed to initialize %s store backend: %w", opts.Store.Backend, err)
	}
	if openerClose != nil {
		defer openerClose()
	}

	embedder, err := llm.NewEmbeddingProvider(opts.Embedding.Provider, opts.Embedding.ProviderConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	logger.Infow("Embedding provider initialized",
		"provider", opts.Embedding.Provider,
		"model", opts.Embedding.Model,
	)

	categories := opts.Ingest.Categories
	if len(categories) == 0 {
		for _, desc := range biz.DefaultCategories() {
			categories = append(categories, desc.Name)
		}
	}

	ing := New(opener, embedder, &Config{
		DataDir:      opts.Ingest.DataDir,
		Categories:   categories,
		ChunkSize:    opts.Ingest.ChunkSize,
		ChunkOverlap: opts.Ingest.ChunkOverlap,
		Concurrency:  opts.Ingest.Concurrency,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rebuildErr := rebuildAndVerify(ctx, ing)

	if opts.Ingest.Watch {
		if rebuildErr != nil {
			logger.Warnw("initial rebuild had failures, watching anyway", "error", rebuildErr.Error())
		}
		return NewWatcher(ing, opts.Ingest.Debounce).Run(ctx)
	}
	return rebuildErr
}

// rebuildAndVerify rebuilds every configured category and prints the
// verification summary the operator checks before starting the server.
func rebuildAndVerify(ctx context.Context, ing *Ingester) error {
	var errs []error
	for _, report := range ing.RebuildAll(ctx) {
		if report.Err != nil {
			logger.Errorw("category rebuild failed", "category", report.Category, "error", report.Err.Error())
			errs = append(errs, fmt.Errorf("%s: %w", report.Category, report.Err))
		}
	}

	fmt.Println("Verification:")
	for _, result := range ing.Verify(ctx) {
		switch {
		case result.Err != nil:
			fmt.Printf("  %-24s error: %v\n", result.Category, result.Err)
		case !result.Exists:
			fmt.Printf("  %-24s missing\n", result.Category)
		default:
			fmt.Printf("  %-24s %d chunks\n", result.Category, result.Chunks)
		}
	}

	return errors.Join(errs...)
}

// newStoreOpener selects the vector store backend writes go to.
func newStoreOpener(opts *Options) (store.Opener, func(), error) {
	switch opts.Store.Backend {
	case storeopts.BackendMilvus:
		client, err := milvus.New(opts.Milvus)
		if err != nil {
			return nil, nil, err
		}
		return store.NewMilvusOpener(client), func() { _ = client.Close(context.Background()) }, nil
	default:
		return store.NewSQLiteOpener(opts.Store.Dir), nil, nil
	}
}
