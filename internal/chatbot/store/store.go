package store

import (
	"context"
	"errors"

	"github.com/ray729alp/mqa-chatbot/internal/model"
)

// ErrStoreNotFound reports that a category has no persisted store, meaning
// it was never ingested. Callers treat this as "category unavailable", not
// as a hard failure.
var ErrStoreNotFound = errors.New("vector store not found")

// VectorStore is one category's chunk store. Implementations are safe for
// concurrent use.
type VectorStore interface {
	// Insert writes chunks together with their embeddings and returns the
	// assigned storage IDs in input order.
	Insert(ctx context.Context, chunks []*model.Chunk) ([]string, error)

	// Search returns the topK chunks most similar to the embedding,
	// best first.
	Search(ctx context.Context, embedding []float32, topK int) ([]*model.SearchResult, error)

	// Count reports the number of stored chunks.
	Count(ctx context.Context) (int64, error)

	// DeleteDocument removes every chunk originating from the named source
	// file.
	DeleteDocument(ctx context.Context, documentName string) error

	// Clear removes all chunks from the store.
	Clear(ctx context.Context) error

	// Close releases the store handle. The backend connection shared by
	// sibling stores stays open until the Opener is closed.
	Close() error
}

// Opener opens or creates the per-category stores of one backend.
type Opener interface {
	// Open opens an existing category store. It returns ErrStoreNotFound
	// when the category was never ingested.
	Open(ctx context.Context, category string) (VectorStore, error)

	// Create opens the category store, creating it first when absent.
	// dim is the embedding dimensionality used on creation.
	Create(ctx context.Context, category string, dim int) (VectorStore, error)

	// Close releases backend-wide resources.
	Close(ctx context.Context) error
}
