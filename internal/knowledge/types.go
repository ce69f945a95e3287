// Package knowledge turns uploaded documents into searchable chunks.
package knowledge

import (
	"context"
	"errors"
)

var (
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrEmptyDocument       = errors.New("document has no extractable text")
)

// Page is one loaded unit of a document: a PDF page, a CSV row or a whole text file.
type Page struct {
	Content string
	// Page is 1-based for paged formats and 0 otherwise.
	Page int
}

// Chunk is a stored slice of a document.
type Chunk struct {
	ID          string `json:"id"`
	DocumentID  string `json:"document_id"`
	Filename    string `json:"filename"`
	Page        int    `json:"page"`
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
	StartIndex  int    `json:"start_index"`
	Content     string `json:"content"`
}

// Match is a search hit. Higher scores are better.
type Match struct {
	Chunk
	Score float64 `json:"score"`
}

// Embedder turns text into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// VectorStore holds document chunks for similarity search.
type VectorStore interface {
	Add(ctx context.Context, chunks []Chunk) error
	Search(ctx context.Context, query string, k int) ([]Match, error)
	// DeleteDocument removes every chunk of a document and returns how many were removed.
	DeleteDocument(ctx context.Context, documentID string) (int, error)
	Close() error
}

func chunkMetadata(c Chunk) map[string]any {
	return map[string]any{
		"document_id":  c.DocumentID,
		"filename":     c.Filename,
		"page":         c.Page,
		"chunk_index":  c.ChunkIndex,
		"total_chunks": c.TotalChunks,
		"start_index":  c.StartIndex,
	}
}
