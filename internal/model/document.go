// Package model provides data models for the MQA chatbot.
package model

import "fmt"

// Chunk is a bounded span of source document text with citation metadata.
// Chunks are produced by the offline ingestion tool and never mutated after
// they are written to a category's vector store.
type Chunk struct {
	ID           string    `json:"id"`
	DocumentID   string    `json:"document_id"`
	DocumentName string    `json:"document_name"`
	Page         int       `json:"page,omitempty"` // 0 means no page information
	StartIndex   int       `json:"start_index"`
	Content      string    `json:"content"`
	Embedding    []float32 `json:"embedding,omitempty"`
}

// Citation renders the chunk's source reference the way answers cite it:
// "handbook.pdf Page 4" for paged documents, bare file name otherwise.
func (c *Chunk) Citation() string {
	if c.Page > 0 {
		return fmt.Sprintf("%s Page %d", c.DocumentName, c.Page)
	}
	return c.DocumentName
}

// SearchResult is a chunk returned from similarity search.
type SearchResult struct {
	Chunk
	Score float32 `json:"score"`
}
