package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/milvus-io/milvus/client/v2/entity"

	"github.com/ray729alp/mqa-chatbot/internal/model"
	"github.com/ray729alp/mqa-chatbot/pkg/component/milvus"
)

// Collections are prefixed so the chatbot's data is recognizable inside a
// shared Milvus database.
const milvusCollectionPrefix = "mqa_"

var milvusOutputFields = []string{"chunk_id", "document_id", "document_name", "page", "start_index", "content"}

func milvusCollectionName(category string) string {
	return milvusCollectionPrefix + category
}

// MilvusOpener maps categories onto Milvus collections sharing one client
// connection.
type MilvusOpener struct {
	client *milvus.Client
}

// NewMilvusOpener creates an opener on an established Milvus client.
func NewMilvusOpener(client *milvus.Client) *MilvusOpener {
	return &MilvusOpener{client: client}
}

// Open opens an existing category collection and loads it for search.
func (o *MilvusOpener) Open(ctx context.Context, category string) (VectorStore, error) {
	name := milvusCollectionName(category)

	exists, err := o.client.HasCollection(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to check collection %s: %w", name, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: collection %s", ErrStoreNotFound, name)
	}

	if err := o.client.LoadCollection(ctx, name); err != nil {
		return nil, fmt.Errorf("failed to load collection %s: %w", name, err)
	}

	return &MilvusStore{client: o.client, collection: name}, nil
}

// Create opens the category collection, creating schema and index first when
// the collection does not exist yet.
func (o *MilvusOpener) Create(ctx context.Context, category string, dim int) (VectorStore, error) {
	name := milvusCollectionName(category)

	schema := &milvus.CollectionSchema{
		Name:        name,
		Description: fmt.Sprintf("MQA %s document chunks", category),
		Dimension:   dim,
		MetaFields: []milvus.MetaField{
			{Name: "chunk_id", DataType: entity.FieldTypeVarChar, MaxLen: 64},
			{Name: "document_id", DataType: entity.FieldTypeVarChar, MaxLen: 64},
			{Name: "document_name", DataType: entity.FieldTypeVarChar, MaxLen: 255},
			{Name: "page", DataType: entity.FieldTypeInt64},
			{Name: "start_index", DataType: entity.FieldTypeInt64},
			{Name: "content", DataType: entity.FieldTypeVarChar, MaxLen: 65535},
		},
	}
	if err := o.client.CreateCollection(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to create collection %s: %w", name, err)
	}

	// CreateCollection is a no-op for an existing collection, which then
	// still needs the explicit load.
	if err := o.client.LoadCollection(ctx, name); err != nil {
		return nil, fmt.Errorf("failed to load collection %s: %w", name, err)
	}

	return &MilvusStore{client: o.client, collection: name}, nil
}

// Close closes the shared Milvus client.
func (o *MilvusOpener) Close(ctx context.Context) error {
	return o.client.Close(ctx)
}

// MilvusStore serves one category's chunks from a Milvus collection.
type MilvusStore struct {
	client     *milvus.Client
	collection string
}

// Insert writes chunks and returns the Milvus-assigned row IDs.
func (s *MilvusStore) Insert(ctx context.Context, chunks []*model.Chunk) ([]string, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	embeddings := make([][]float32, len(chunks))
	metadata := map[string][]any{
		"chunk_id":      make([]any, len(chunks)),
		"document_id":   make([]any, len(chunks)),
		"document_name": make([]any, len(chunks)),
		"page":          make([]any, len(chunks)),
		"start_index":   make([]any, len(chunks)),
		"content":       make([]any, len(chunks)),
	}

	for i, c := range chunks {
		if len(c.Embedding) == 0 {
			return nil, fmt.Errorf("chunk %s of %s has no embedding", c.ID, c.DocumentName)
		}
		embeddings[i] = c.Embedding
		metadata["chunk_id"][i] = c.ID
		metadata["document_id"][i] = c.DocumentID
		metadata["document_name"][i] = c.DocumentName
		metadata["page"][i] = int64(c.Page)
		metadata["start_index"][i] = int64(c.StartIndex)
		metadata["content"][i] = c.Content
	}

	ids, err := s.client.Insert(ctx, s.collection, &milvus.InsertData{
		Embeddings: embeddings,
		Metadata:   metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to insert into %s: %w", s.collection, err)
	}

	stringIDs := make([]string, len(ids))
	for i, id := range ids {
		stringIDs[i] = strconv.FormatInt(id, 10)
	}
	return stringIDs, nil
}

// Search runs a vector similarity search. The returned Score carries the
// backend's native metric; callers rely on result order only.
func (s *MilvusStore) Search(ctx context.Context, embedding []float32, topK int) ([]*model.SearchResult, error) {
	if topK <= 0 {
		return nil, nil
	}

	results, err := s.client.Search(ctx, s.collection, embedding, topK, milvusOutputFields)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", s.collection, err)
	}

	out := make([]*model.SearchResult, 0, len(results))
	for _, r := range results {
		sr := &model.SearchResult{Score: r.Score}
		if v, ok := r.Metadata["chunk_id"].(string); ok {
			sr.ID = v
		}
		if v, ok := r.Metadata["document_id"].(string); ok {
			sr.DocumentID = v
		}
		if v, ok := r.Metadata["document_name"].(string); ok {
			sr.DocumentName = v
		}
		if v, ok := r.Metadata["page"].(int64); ok {
			sr.Page = int(v)
		}
		if v, ok := r.Metadata["start_index"].(int64); ok {
			sr.StartIndex = int(v)
		}
		if v, ok := r.Metadata["content"].(string); ok {
			sr.Content = v
		}
		out = append(out, sr)
	}

	return out, nil
}

// Count reports the collection's row count.
func (s *MilvusStore) Count(ctx context.Context) (int64, error) {
	return s.client.RowCount(ctx, s.collection)
}

// DeleteDocument removes every chunk originating from the named file.
func (s *MilvusStore) DeleteDocument(ctx context.Context, documentName string) error {
	expr := fmt.Sprintf("document_name == %s", strconv.Quote(documentName))
	if err := s.client.DeleteByExpr(ctx, s.collection, expr); err != nil {
		return fmt.Errorf("failed to delete chunks of %s: %w", documentName, err)
	}
	return nil
}

// Clear removes all chunks but keeps the collection and its index.
func (s *MilvusStore) Clear(ctx context.Context) error {
	if err := s.client.DeleteByExpr(ctx, s.collection, `chunk_id != ""`); err != nil {
		return fmt.Errorf("failed to clear %s: %w", s.collection, err)
	}
	return nil
}

// Close is a no-op; the client is shared and owned by the opener.
func (s *MilvusStore) Close() error {
	return nil
}

var (
	_ VectorStore = (*MilvusStore)(nil)
	_ Opener      = (*MilvusOpener)(nil)
)
