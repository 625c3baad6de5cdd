package biz

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kart-io/logger"

	"github.com/ray729alp/mqa-chatbot/internal/chatbot/store"
	"github.com/ray729alp/mqa-chatbot/internal/model"
	"github.com/ray729alp/mqa-chatbot/internal/pkg/chatbot/textutil"
	"github.com/ray729alp/mqa-chatbot/pkg/llm"
	"github.com/ray729alp/mqa-chatbot/pkg/pool"
)

// Availability states a category can be in after startup.
const (
	// AvailabilityUnavailable means the category's store is missing, empty,
	// or failed to open. Queries get the store-unavailable notice.
	AvailabilityUnavailable = "unavailable"
	// AvailabilityDegraded means the store is fine but the chat provider
	// failed its liveness probe. Queries get the canned fallback.
	AvailabilityDegraded = "degraded"
	// AvailabilityReady means the full pipeline serves this category.
	AvailabilityReady = "ready"
)

// probeTimeout bounds the single chat-provider liveness probe at startup.
const probeTimeout = 10 * time.Second

// answerer is the pipeline surface the orchestrator depends on.
type answerer interface {
	Answer(ctx context.Context, question string, history []model.Turn) *PipelineResult
}

// CategoryEntry is one category's state in the registry.
type CategoryEntry struct {
	Name         string
	DisplayName  string
	Description  string
	Availability string
	ChunkCount   int64

	store    store.VectorStore
	pipeline answerer
}

// CategoryDescriptor declares a category to build at startup.
type CategoryDescriptor struct {
	Name        string
	Description string
}

// DefaultCategories lists the MQA document categories.
func DefaultCategories() []CategoryDescriptor {
	return []CategoryDescriptor{
		{Name: "accreditation", Description: "Accreditation process and status documents"},
		{Name: "framework", Description: "MQA framework and policy documents"},
		{Name: "qualifications", Description: "Qualification standards and guidelines"},
		{Name: "recognition", Description: "Recognition of qualifications documents"},
		{Name: "equivalency", Description: "Qualification equivalency documents"},
		{Name: "apel", Description: "APEL (Accreditation of Prior Experiential Learning) documents"},
		{Name: "faq", Description: "Frequently asked questions and general information"},
	}
}

// CategoriesFromNames builds descriptors for the named categories, carrying
// the default description when a name is one of the known set.
func CategoriesFromNames(names []string) []CategoryDescriptor {
	known := make(map[string]CategoryDescriptor, len(DefaultCategories()))
	for _, desc := range DefaultCategories() {
		known[desc.Name] = desc
	}

	descs := make([]CategoryDescriptor, 0, len(names))
	for _, name := range names {
		if desc, ok := known[name]; ok {
			descs = append(descs, desc)
			continue
		}
		descs = append(descs, CategoryDescriptor{Name: name})
	}
	return descs
}

// Registry holds every category entry. It is immutable after BuildRegistry
// returns; concurrent lookups need no locking.
type Registry struct {
	entries map[string]*CategoryEntry
	order   []string
}

// Lookup returns the entry for a category.
func (r *Registry) Lookup(category string) (*CategoryEntry, bool) {
	entry, ok := r.entries[category]
	return entry, ok
}

// Infos lists every category in declaration order.
func (r *Registry) Infos() []model.CategoryInfo {
	infos := make([]model.CategoryInfo, 0, len(r.order))
	for _, name := range r.order {
		entry := r.entries[name]
		infos = append(infos, model.CategoryInfo{
			Name:         entry.Name,
			DisplayName:  entry.DisplayName,
			Description:  entry.Description,
			Availability: entry.Availability,
			ChunkCount:   entry.ChunkCount,
		})
	}
	return infos
}

// Close releases every open store handle.
func (r *Registry) Close() error {
	var errs []error
	for _, name := range r.order {
		if entry := r.entries[name]; entry.store != nil {
			if err := entry.store.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// BuildConfig carries the dependencies for BuildRegistry.
type BuildConfig struct {
	Categories   []CategoryDescriptor
	Opener       store.Opener
	Embedder     llm.EmbeddingProvider
	ChatProvider llm.ChatProvider
	Pipeline     *PipelineConfig
}

// BuildRegistry opens every category's store and constructs its pipeline.
// Categories initialize concurrently; one category's failure marks only its
// own entry. The chat provider is probed exactly once and the result applies
// to all categories.
func BuildRegistry(ctx context.Context, config *BuildConfig) *Registry {
	if len(config.Categories) == 0 {
		config.Categories = DefaultCategories()
	}

	chatLive := true
	if err := probeChatProvider(ctx, config.ChatProvider); err != nil {
		chatLive = false
		logger.Warnw("chat provider probe failed, categories degraded", "error", err.Error())
	}

	entries := make([]*CategoryEntry, len(config.Categories))

	var wg sync.WaitGroup
	p, poolErr := pool.New("registry-startup", pool.StartupConfig())
	if poolErr != nil {
		logger.Warnw("startup pool unavailable, initializing categories serially", "error", poolErr.Error())
	}
	for i, desc := range config.Categories {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			entries[i] = buildEntry(ctx, desc, chatLive, config)
		}
		if p == nil {
			task()
			continue
		}
		if err := p.Submit(task); err != nil {
			task()
		}
	}
	wg.Wait()
	if p != nil {
		p.Release()
	}

	registry := &Registry{
		entries: make(map[string]*CategoryEntry, len(entries)),
		order:   make([]string, 0, len(entries)),
	}
	for i, entry := range entries {
		if entry == nil {
			desc := config.Categories[i]
			entry = &CategoryEntry{
				Name:         desc.Name,
				DisplayName:  textutil.DisplayTitle(desc.Name),
				Description:  desc.Description,
				Availability: AvailabilityUnavailable,
			}
		}
		registry.entries[entry.Name] = entry
		registry.order = append(registry.order, entry.Name)
	}
	return registry
}

// buildEntry initializes a single category. Every failure path returns a
// usable entry rather than an error.
func buildEntry(ctx context.Context, desc CategoryDescriptor, chatLive bool, config *BuildConfig) *CategoryEntry {
	entry := &CategoryEntry{
		Name:         desc.Name,
		DisplayName:  textutil.DisplayTitle(desc.Name),
		Description:  desc.Description,
		Availability: AvailabilityUnavailable,
	}

	st, err := config.Opener.Open(ctx, desc.Name)
	if err != nil {
		if errors.Is(err, store.ErrStoreNotFound) {
			logger.Warnw("no store for category", "category", desc.Name)
		} else {
			logger.Warnw("failed to open category store", "category", desc.Name, "error", err.Error())
		}
		return entry
	}

	count, err := st.Count(ctx)
	if err != nil || count == 0 {
		if err != nil {
			logger.Warnw("failed to count category chunks", "category", desc.Name, "error", err.Error())
		} else {
			logger.Warnw("category store is empty", "category", desc.Name)
		}
		_ = st.Close()
		return entry
	}

	entry.store = st
	entry.ChunkCount = count

	if !chatLive {
		entry.Availability = AvailabilityDegraded
		return entry
	}

	entry.pipeline = NewPipeline(desc.Name, st, config.Embedder, config.ChatProvider, config.Pipeline)
	entry.Availability = AvailabilityReady
	logger.Infow("category ready", "category", desc.Name, "chunks", count)
	return entry
}

// probeChatProvider checks the chat backend is reachable. Providers exposing
// a Ping use it; the rest answer a one-word generation.
func probeChatProvider(ctx context.Context, provider llm.ChatProvider) error {
	if provider == nil {
		return errors.New("no chat provider configured")
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	if pinger, ok := provider.(llm.Pinger); ok {
		return pinger.Ping(probeCtx)
	}
	_, err := provider.Generate(probeCtx, "Hello", "")
	return err
}
