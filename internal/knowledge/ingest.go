package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/floegence/datachat-agent/internal/ai/tools"
)

// Ingest loads, splits and stores a document. It returns the number of chunks written.
// A document without extractable text is an error so the caller can mark it failed.
func Ingest(ctx context.Context, path string, documentID string, filename string, fileType string, store VectorStore) (int, error) {
	return IngestWith(ctx, NewSplitter(), path, documentID, filename, fileType, store)
}

func IngestWith(ctx context.Context, splitter *Splitter, path string, documentID string, filename string, fileType string, store VectorStore) (int, error) {
	if store == nil {
		return 0, fmt.Errorf("no vector store configured")
	}
	pages, err := Load(path, fileType)
	if err != nil {
		return 0, err
	}

	var chunks []Chunk
	for _, p := range pages {
		for _, tc := range splitter.Split(p.Content) {
			chunks = append(chunks, Chunk{
				DocumentID: documentID,
				Filename:   filename,
				Page:       p.Page,
				StartIndex: tc.StartIndex,
				Content:    tc.Text,
			})
		}
	}
	if len(chunks) == 0 {
		return 0, ErrEmptyDocument
	}
	for i := range chunks {
		chunks[i].ID = fmt.Sprintf("%s_%d", documentID, i)
		chunks[i].ChunkIndex = i
		chunks[i].TotalChunks = len(chunks)
	}
	if err := store.Add(ctx, chunks); err != nil {
		return 0, fmt.Errorf("store chunks: %w", err)
	}
	return len(chunks), nil
}

// Retriever adapts a VectorStore to the retrieve_context tool.
type Retriever struct {
	Store VectorStore
}

var _ tools.Retriever = Retriever{}

func (r Retriever) Retrieve(ctx context.Context, query string, k int) ([]tools.Passage, error) {
	if r.Store == nil {
		return nil, fmt.Errorf("no vector store configured")
	}
	matches, err := r.Store.Search(ctx, strings.TrimSpace(query), k)
	if err != nil {
		return nil, err
	}
	out := make([]tools.Passage, 0, len(matches))
	for _, m := range matches {
		out = append(out, tools.Passage{Filename: m.Filename, Page: m.Page, Content: m.Content})
	}
	return out, nil
}
