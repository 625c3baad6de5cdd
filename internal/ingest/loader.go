package ingest

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kart-io/logger"
	"github.com/ledongthuc/pdf"
)

// Document is one unit of loaded source text. Paged formats produce one
// Document per page; flat formats produce a single Document with Page 0.
type Document struct {
	ID   string
	Name string
	Page int
	Text string
}

// documentID derives a stable ID from the source file name, so re-ingesting
// the same file addresses the same document.
func documentID(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:])
}

// LoadDir loads every supported document in dir. Entries come back sorted
// by file name, and PDF pages ascend within their file, so the result order
// is stable across runs. A file that fails to load is skipped with a
// warning; it never aborts the rest of the directory.
func LoadDir(dir string) ([]Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var docs []Document
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		path := filepath.Join(dir, name)

		var (
			loaded  []Document
			loadErr error
		)
		switch strings.ToLower(filepath.Ext(name)) {
		case ".txt", ".md":
			loaded, loadErr = loadText(path, name)
		case ".pdf":
			loaded, loadErr = loadPDF(path, name)
		case ".doc", ".docx":
			logger.Warnw("word documents are not supported, skipping", "file", name)
			continue
		default:
			logger.Debugw("unsupported file type, skipping", "file", name)
			continue
		}
		if loadErr != nil {
			logger.Warnw("failed to load document, skipping", "file", name, "error", loadErr.Error())
			continue
		}
		docs = append(docs, loaded...)
	}
	return docs, nil
}

func loadText(path, name string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, nil
	}
	return []Document{{ID: documentID(name), Name: name, Text: text}}, nil
}

func loadPDF(path, name string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse PDF: %w", err)
	}

	docID := documentID(name)
	var docs []Document
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// A page that fails text extraction is skipped; the rest of
			// the document still ingests.
			logger.Warnw("failed to extract page text, skipping page", "file", name, "page", i, "error", err.Error())
			continue
		}

		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		docs = append(docs, Document{ID: docID, Name: name, Page: i, Text: text})
	}
	return docs, nil
}
