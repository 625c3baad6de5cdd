package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/kart-io/logger"

	"github.com/ray729alp/mqa-chatbot/internal/chatbot/store"
	"github.com/ray729alp/mqa-chatbot/internal/model"
	"github.com/ray729alp/mqa-chatbot/internal/pkg/chatbot/textutil"
	"github.com/ray729alp/mqa-chatbot/pkg/llm"
	"github.com/ray729alp/mqa-chatbot/pkg/pool"
	"github.com/ray729alp/mqa-chatbot/pkg/utils/id"
)

// embedBatchSize is how many chunk texts go into one provider call.
const embedBatchSize = 32

// Config tunes the ingester.
type Config struct {
	// DataDir is the root holding one document directory per category.
	DataDir string

	// Categories is the set of categories to ingest.
	Categories []string

	// ChunkSize and ChunkOverlap are in runes.
	ChunkSize    int
	ChunkOverlap int

	// Concurrency bounds parallel embedding calls.
	Concurrency int
}

// Ingester rebuilds category vector stores from source documents.
type Ingester struct {
	opener   store.Opener
	embedder llm.EmbeddingProvider
	config   *Config
}

// New creates an ingester.
func New(opener store.Opener, embedder llm.EmbeddingProvider, config *Config) *Ingester {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 1000
	}
	if config.ChunkOverlap < 0 || config.ChunkOverlap >= config.ChunkSize {
		config.ChunkOverlap = config.ChunkSize / 5
	}
	return &Ingester{
		opener:   opener,
		embedder: embedder,
		config:   config,
	}
}

// Report is the outcome of one category's rebuild. Documents counts loaded
// units, one per page for paged formats.
type Report struct {
	Category  string
	Documents int
	Chunks    int64
	Err       error
}

// RebuildAll rebuilds every configured category in order. Failures are
// isolated per category and carried in the reports.
func (ing *Ingester) RebuildAll(ctx context.Context) []*Report {
	reports := make([]*Report, 0, len(ing.config.Categories))
	for _, category := range ing.config.Categories {
		if err := ctx.Err(); err != nil {
			reports = append(reports, &Report{Category: category, Err: err})
			continue
		}
		reports = append(reports, ing.RebuildCategory(ctx, category))
	}
	return reports
}

// RebuildCategory rebuilds one category's store from its data directory.
// The store is cleared before writing, so the result reflects exactly what
// the directory holds now. A directory that is missing or yields no chunks
// leaves the category's store empty, which the server reports as
// unavailable.
func (ing *Ingester) RebuildCategory(ctx context.Context, category string) *Report {
	report := &Report{Category: category}

	dir := filepath.Join(ing.config.DataDir, category)
	docs, err := LoadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warnw("category has no data directory", "category", category, "dir", dir)
			report.Err = ing.clearExisting(ctx, category)
			return report
		}
		report.Err = fmt.Errorf("failed to read %s: %w", dir, err)
		return report
	}
	report.Documents = len(docs)

	chunks := ing.chunkDocuments(docs)
	if len(chunks) == 0 {
		logger.Warnw("category produced no chunks", "category", category)
		report.Err = ing.clearExisting(ctx, category)
		return report
	}

	if err := ing.embedChunks(ctx, chunks); err != nil {
		report.Err = fmt.Errorf("embedding failed: %w", err)
		return report
	}

	st, err := ing.opener.Create(ctx, category, len(chunks[0].Embedding))
	if err != nil {
		report.Err = fmt.Errorf("failed to open store: %w", err)
		return report
	}
	defer func() { _ = st.Close() }()

	if err := st.Clear(ctx); err != nil {
		report.Err = fmt.Errorf("failed to clear store: %w", err)
		return report
	}
	if _, err := st.Insert(ctx, chunks); err != nil {
		report.Err = fmt.Errorf("failed to insert chunks: %w", err)
		return report
	}

	count, err := st.Count(ctx)
	if err != nil {
		report.Err = fmt.Errorf("failed to count chunks: %w", err)
		return report
	}
	report.Chunks = count

	logger.Infow("category rebuilt",
		"category", category,
		"documents", report.Documents,
		"chunks", count,
	)
	return report
}

// clearExisting empties a previously built store so serving sees the
// category the same way a rebuild against its now-empty directory would.
func (ing *Ingester) clearExisting(ctx context.Context, category string) error {
	st, err := ing.opener.Open(ctx, category)
	if err != nil {
		if errors.Is(err, store.ErrStoreNotFound) {
			return nil
		}
		return fmt.Errorf("failed to open store for clearing: %w", err)
	}
	defer func() { _ = st.Close() }()

	if err := st.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear store: %w", err)
	}
	return nil
}

// chunkDocuments splits every document into chunks. Documents arrive sorted
// by file name and page, and offsets ascend within a page, so chunk order is
// stable across runs.
func (ing *Ingester) chunkDocuments(docs []Document) []*model.Chunk {
	var chunks []*model.Chunk
	for _, doc := range docs {
		for _, piece := range textutil.SplitIntoChunks(doc.Text, ing.config.ChunkSize, ing.config.ChunkOverlap) {
			chunks = append(chunks, &model.Chunk{
				ID:           id.NewULID(),
				DocumentID:   doc.ID,
				DocumentName: doc.Name,
				Page:         doc.Page,
				StartIndex:   piece.StartIndex,
				Content:      piece.Text,
			})
		}
	}
	return chunks
}

// embedChunks fills in chunk embeddings, batching the texts and running
// batches on a bounded pool. Each batch writes into its own slice range, so
// chunk order never depends on completion order.
func (ing *Ingester) embedChunks(ctx context.Context, chunks []*model.Chunk) error {
	p, err := pool.New("ingest-embed", pool.IngestConfig(ing.config.Concurrency))
	if err != nil {
		return fmt.Errorf("failed to create embedding pool: %w", err)
	}
	defer p.Release()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	setErr := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		wg.Add(1)
		task := func() {
			defer wg.Done()

			texts := make([]string, len(batch))
			for i, chunk := range batch {
				texts[i] = chunk.Content
			}

			vectors, err := ing.embedder.Embed(ctx, texts)
			if err != nil {
				setErr(err)
				return
			}
			if len(vectors) != len(batch) {
				setErr(fmt.Errorf("provider returned %d embeddings for %d texts", len(vectors), len(batch)))
				return
			}
			for i, vector := range vectors {
				batch[i].Embedding = vector
			}
		}
		if err := p.Submit(task); err != nil {
			task()
		}
	}

	wg.Wait()
	return firstErr
}

// VerifyResult is one category's state as the server will see it at startup.
type VerifyResult struct {
	Category string
	Exists   bool
	Chunks   int64
	Err      error
}

// Verify re-opens every configured category store and reports what serving
// will find, including categories whose stores are missing or empty.
func (ing *Ingester) Verify(ctx context.Context) []*VerifyResult {
	results := make([]*VerifyResult, 0, len(ing.config.Categories))
	for _, category := range ing.config.Categories {
		result := &VerifyResult{Category: category}

		st, err := ing.opener.Open(ctx, category)
		if err != nil {
			if !errors.Is(err, store.ErrStoreNotFound) {
				result.Err = err
			}
			results = append(results, result)
			continue
		}

		result.Exists = true
		if count, err := st.Count(ctx); err != nil {
			result.Err = err
		} else {
			result.Chunks = count
		}
		_ = st.Close()

		results = append(results, result)
	}
	return results
}
