package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ray729alp/mqa-chatbot/internal/model"
	"github.com/ray729alp/mqa-chatbot/internal/pkg/chatbot/textutil"
	"github.com/ray729alp/mqa-chatbot/pkg/utils/json"
)

const sqliteFileName = "chunks.db"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	chunk_id      TEXT NOT NULL,
	document_id   TEXT NOT NULL,
	document_name TEXT NOT NULL,
	page          INTEGER NOT NULL DEFAULT 0,
	start_index   INTEGER NOT NULL DEFAULT 0,
	content       TEXT NOT NULL,
	embedding     BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_document_name ON chunks (document_name);
`

// SQLiteOpener opens one SQLite-backed store per category directory under a
// common root, mirroring the persisted layout `<root>/<category>/chunks.db`.
type SQLiteOpener struct {
	root string
}

// NewSQLiteOpener creates an opener rooted at the store directory.
func NewSQLiteOpener(root string) *SQLiteOpener {
	return &SQLiteOpener{root: root}
}

func (o *SQLiteOpener) storePath(category string) string {
	return filepath.Join(o.root, category, sqliteFileName)
}

// Open opens the existing store for a category. A category that was never
// ingested has no database file and yields ErrStoreNotFound.
func (o *SQLiteOpener) Open(ctx context.Context, category string) (VectorStore, error) {
	path := o.storePath(category)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrStoreNotFound, path)
		}
		return nil, fmt.Errorf("failed to stat store %s: %w", path, err)
	}
	return openSQLiteStore(ctx, path)
}

// Create opens the category store, creating the directory and database file
// when absent. The embedding dimension is not fixed in the schema; vectors
// are stored as serialized blobs.
func (o *SQLiteOpener) Create(ctx context.Context, category string, _ int) (VectorStore, error) {
	dir := filepath.Join(o.root, category)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory %s: %w", dir, err)
	}
	return openSQLiteStore(ctx, filepath.Join(dir, sqliteFileName))
}

// Close is a no-op; SQLite stores hold no shared backend connection.
func (o *SQLiteOpener) Close(_ context.Context) error {
	return nil
}

// SQLiteStore keeps one category's chunks in a single SQLite file and scores
// queries with a full cosine scan. Category stores hold at most a few
// thousand chunks, well within full-scan range.
type SQLiteStore struct {
	mu sync.RWMutex
	db *sql.DB
}

func openSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store %s: %w", path, err)
	}
	// A single connection keeps "database is locked" errors out of
	// concurrent ingestion writes.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to prepare sqlite schema in %s: %w", path, err)
	}

	return &SQLiteStore{db: db}, nil
}

// Insert writes chunks in one transaction and returns their row IDs.
func (s *SQLiteStore) Insert(ctx context.Context, chunks []*model.Chunk) ([]string, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin insert transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (chunk_id, document_id, document_name, page, start_index, content, embedding)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	ids := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			_ = tx.Rollback()
			return nil, fmt.Errorf("chunk %s of %s has no embedding", c.ID, c.DocumentName)
		}

		blob, err := json.Marshal(c.Embedding)
		if err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("failed to encode embedding for chunk %s: %w", c.ID, err)
		}

		res, err := stmt.ExecContext(ctx, c.ID, c.DocumentID, c.DocumentName, c.Page, c.StartIndex, c.Content, blob)
		if err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("failed to insert chunk %s: %w", c.ID, err)
		}

		id, err := res.LastInsertId()
		if err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("failed to read inserted row id: %w", err)
		}
		ids = append(ids, strconv.FormatInt(id, 10))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit insert: %w", err)
	}

	return ids, nil
}

// Search scans every stored chunk, scores it against the query embedding,
// and returns the topK best matches.
func (s *SQLiteStore) Search(ctx context.Context, embedding []float32, topK int) ([]*model.SearchResult, error) {
	if topK <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_id, document_id, document_name, page, start_index, content, embedding FROM chunks`)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var results []*model.SearchResult
	for rows.Next() {
		var (
			chunk model.Chunk
			blob  []byte
		)
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.DocumentName,
			&chunk.Page, &chunk.StartIndex, &chunk.Content, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}

		var vec []float32
		if err := json.Unmarshal(blob, &vec); err != nil {
			return nil, fmt.Errorf("failed to decode embedding for chunk %s: %w", chunk.ID, err)
		}

		results = append(results, &model.SearchResult{
			Chunk: chunk,
			Score: float32(textutil.CosineSimilarity(embedding, vec)),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chunk rows: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}

	return results, nil
}

// Count reports the number of stored chunks.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}

// DeleteDocument removes every chunk originating from the named file.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, documentName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_name = ?`, documentName); err != nil {
		return fmt.Errorf("failed to delete chunks of %s: %w", documentName, err)
	}
	return nil
}

// Clear removes all chunks.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}
	return nil
}

// Close closes the database file.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

var (
	_ VectorStore = (*SQLiteStore)(nil)
	_ Opener      = (*SQLiteOpener)(nil)
)
