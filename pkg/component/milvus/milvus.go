// Package milvus wraps the Milvus Go SDK behind the narrow surface the
// vector stores need: collection lifecycle, batched inserts, and ANN search.
package milvus

import (
	"context"
	"fmt"
	"strconv"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	milvusopts "github.com/ray729alp/mqa-chatbot/pkg/options/milvus"
)

// Client wraps the Milvus SDK client.
type Client struct {
	client *milvusclient.Client
	opts   *milvusopts.Options
}

// New connects to Milvus and returns a client.
func New(opts *milvusopts.Options) (*Client, error) {
	if opts == nil {
		return nil, fmt.Errorf("milvus options is nil")
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	c, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  opts.Address,
		Username: opts.Username,
		Password: opts.Password,
		DBName:   opts.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to milvus: %w", err)
	}

	return &Client{client: c, opts: opts}, nil
}

// Close closes the connection.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Close(ctx)
}

// HasCollection reports whether the named collection exists.
func (c *Client) HasCollection(ctx context.Context, collection string) (bool, error) {
	exists, err := c.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(collection))
	if err != nil {
		return false, fmt.Errorf("check collection: %w", err)
	}
	return exists, nil
}

// LoadCollection loads the collection into memory and waits until it is
// queryable. Collections are loaded once when a store is opened; searches
// assume the load already happened.
func (c *Client) LoadCollection(ctx context.Context, collection string) error {
	task, err := c.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(collection))
	if err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	if err := task.Await(ctx); err != nil {
		return fmt.Errorf("await collection load: %w", err)
	}
	return nil
}

// CollectionSchema describes a vector collection: an auto-ID primary key, an
// embedding vector of the given dimension, and typed metadata fields.
type CollectionSchema struct {
	Name        string
	Description string
	Dimension   int
	MetaFields  []MetaField
}

// MetaField defines a metadata field in the collection.
type MetaField struct {
	Name     string
	DataType entity.FieldType
	MaxLen   int // VARCHAR only
}

// CreateCollection creates a collection with a vector index and loads it.
// Creating an existing collection is a no-op.
func (c *Client) CreateCollection(ctx context.Context, schema *CollectionSchema) error {
	exists, err := c.HasCollection(ctx, schema.Name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	opt := milvusclient.NewCreateCollectionOption(schema.Name, buildSchema(schema))
	if err := c.client.CreateCollection(ctx, opt); err != nil {
		return fmt.Errorf("create collection: %w", err)
	}

	// IVF_FLAT over L2. The embedding models in use emit normalized vectors,
	// so L2 ordering matches cosine ordering.
	idx := index.NewIvfFlatIndex(entity.L2, 128)
	task, err := c.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(schema.Name, "embedding", idx))
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	if err := task.Await(ctx); err != nil {
		return fmt.Errorf("await index creation: %w", err)
	}

	return c.LoadCollection(ctx, schema.Name)
}

func buildSchema(s *CollectionSchema) *entity.Schema {
	out := entity.NewSchema().
		WithName(s.Name).
		WithDescription(s.Description).
		WithAutoID(true).
		WithField(entity.NewField().
			WithName("id").
			WithDataType(entity.FieldTypeInt64).
			WithIsPrimaryKey(true).
			WithIsAutoID(true)).
		WithField(entity.NewField().
			WithName("embedding").
			WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(s.Dimension)))

	for _, f := range s.MetaFields {
		field := entity.NewField().WithName(f.Name).WithDataType(f.DataType)
		if f.DataType == entity.FieldTypeVarChar && f.MaxLen > 0 {
			field.WithMaxLength(int64(f.MaxLen))
		}
		out.WithField(field)
	}
	return out
}

// InsertData is a batch of rows: one embedding per row plus parallel metadata
// value slices keyed by field name.
type InsertData struct {
	Embeddings [][]float32
	Metadata   map[string][]any
}

// Insert writes the batch and flushes so the rows are immediately visible to
// searches. It returns the assigned row IDs.
func (c *Client) Insert(ctx context.Context, collection string, data *InsertData) ([]int64, error) {
	if data == nil || len(data.Embeddings) == 0 {
		return nil, fmt.Errorf("no rows to insert")
	}

	dim := len(data.Embeddings[0])
	columns := []column.Column{column.NewColumnFloatVector("embedding", dim, data.Embeddings)}
	for name, values := range data.Metadata {
		col, err := metaColumn(name, values, len(data.Embeddings))
		if err != nil {
			return nil, err
		}
		columns = append(columns, col)
	}

	result, err := c.client.Insert(ctx, milvusclient.NewColumnBasedInsertOption(collection, columns...))
	if err != nil {
		return nil, fmt.Errorf("insert rows: %w", err)
	}

	// Flushing per batch costs throughput but keeps ingestion results
	// verifiable right after the tool finishes.
	task, err := c.client.Flush(ctx, milvusclient.NewFlushOption(collection))
	if err != nil {
		return nil, fmt.Errorf("flush collection: %w", err)
	}
	if err := task.Await(ctx); err != nil {
		return nil, fmt.Errorf("await flush: %w", err)
	}

	return result.IDs.(*column.ColumnInt64).Data(), nil
}

// metaColumn converts one field's value slice into a typed Milvus column.
// String and int64 cover the chunk metadata the stores write.
func metaColumn(name string, values []any, rows int) (column.Column, error) {
	if len(values) != rows {
		return nil, fmt.Errorf("metadata field %s has %d values for %d rows", name, len(values), rows)
	}

	switch values[0].(type) {
	case string:
		out := make([]string, len(values))
		for i, v := range values {
			out[i] = v.(string)
		}
		return column.NewColumnVarChar(name, out), nil
	case int64:
		out := make([]int64, len(values))
		for i, v := range values {
			out[i] = v.(int64)
		}
		return column.NewColumnInt64(name, out), nil
	default:
		return nil, fmt.Errorf("unsupported metadata type %T for field %s", values[0], name)
	}
}

// SearchResult is a single hit: the row ID, the backend's native score, and
// the requested output fields.
type SearchResult struct {
	ID       int64
	Score    float32
	Metadata map[string]any
}

// Search runs an ANN search against an already-loaded collection.
func (c *Client) Search(ctx context.Context, collection string, vector []float32, topK int, outputFields []string) ([]SearchResult, error) {
	opt := milvusclient.NewSearchOption(collection, topK, []entity.Vector{entity.FloatVector(vector)}).
		WithANNSField("embedding").
		WithSearchParam("nprobe", "16").
		WithOutputFields(outputFields...)

	results, err := c.client.Search(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if len(results) == 0 {
		return []SearchResult{}, nil
	}
	return decodeResultSet(results[0]), nil
}

// decodeResultSet flattens one query's hits. Only the column types the
// stores write are decoded; other field types are skipped.
func decodeResultSet(rs milvusclient.ResultSet) []SearchResult {
	hits := make([]SearchResult, 0, rs.ResultCount)
	for i := 0; i < rs.ResultCount; i++ {
		hit := SearchResult{
			Score:    rs.Scores[i],
			Metadata: make(map[string]any, len(rs.Fields)),
		}
		if ids, ok := rs.IDs.(*column.ColumnInt64); ok {
			hit.ID = ids.Data()[i]
		}
		for _, field := range rs.Fields {
			switch col := field.(type) {
			case *column.ColumnVarChar:
				hit.Metadata[col.Name()] = col.Data()[i]
			case *column.ColumnInt64:
				hit.Metadata[col.Name()] = col.Data()[i]
			}
		}
		hits = append(hits, hit)
	}
	return hits
}

// DeleteByExpr deletes rows matching a boolean expression, for example
// `document_name == "handbook.pdf"`.
func (c *Client) DeleteByExpr(ctx context.Context, collection, expr string) error {
	if _, err := c.client.Delete(ctx, milvusclient.NewDeleteOption(collection).WithExpr(expr)); err != nil {
		return fmt.Errorf("delete by expr: %w", err)
	}
	return nil
}

// RowCount reports the number of entities in a collection.
func (c *Client) RowCount(ctx context.Context, collection string) (int64, error) {
	stats, err := c.client.GetCollectionStats(ctx, milvusclient.NewGetCollectionStatsOption(collection))
	if err != nil {
		return 0, fmt.Errorf("collection stats: %w", err)
	}

	count, ok := stats["row_count"]
	if !ok {
		return 0, nil
	}
	return strconv.ParseInt(count, 10, 64)
}
