package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// keywordEmbedder maps text onto a fixed keyword basis.
type keywordEmbedder struct {
	basis []string
	calls int
}

func (e *keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	e.calls++
	out := make([][]float64, len(texts))
	for i, text := range texts {
		text = strings.ToLower(text)
		vec := make([]float64, len(e.basis))
		for j, word := range e.basis {
			vec[j] = float64(strings.Count(text, word))
		}
		out[i] = vec
	}
	return out, nil
}

func newKeywordEmbedder() *keywordEmbedder {
	return &keywordEmbedder{basis: []string{"cat", "dog", "fish"}}
}

func openTestStore(t *testing.T, embedder Embedder) *LocalStore {
	t.Helper()
	st, err := OpenLocalStore(filepath.Join(t.TempDir(), "kb", "chunks.sqlite"), embedder)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func animalChunks() []Chunk {
	return []Chunk{
		{ID: "d1_0", DocumentID: "d1", Filename: "pets.txt", ChunkIndex: 0, TotalChunks: 2, Content: "The cat sat on the mat"},
		{ID: "d1_1", DocumentID: "d1", Filename: "pets.txt", ChunkIndex: 1, TotalChunks: 2, Content: "A dog barked at the cat"},
		{ID: "d2_0", DocumentID: "d2", Filename: "sea.pdf", Page: 3, ChunkIndex: 0, TotalChunks: 1, Content: "Fish swim in the sea"},
	}
}

func TestLocalStore_RanksByCosine(t *testing.T) {
	t.Parallel()

	emb := newKeywordEmbedder()
	st := openTestStore(t, emb)
	ctx := context.Background()
	require.NoError(t, st.Add(ctx, animalChunks()))

	got, err := st.Search(ctx, "where is the cat", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "d1_0", got[0].ID)
	require.InDelta(t, 1.0, got[0].Score, 1e-9)
	require.Equal(t, "d1_1", got[1].ID)
	require.Less(t, got[1].Score, got[0].Score)

	got, err = st.Search(ctx, "fish", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, Chunk{ID: "d2_0", DocumentID: "d2", Filename: "sea.pdf", Page: 3, ChunkIndex: 0, TotalChunks: 1, Content: "Fish swim in the sea"}, got[0].Chunk)
}

func TestLocalStore_EmbedsInBatches(t *testing.T) {
	t.Parallel()

	emb := newKeywordEmbedder()
	st := openTestStore(t, emb)

	chunks := make([]Chunk, embedBatchSize+1)
	for i := range chunks {
		chunks[i] = Chunk{DocumentID: "big", ChunkIndex: i, Content: "cat"}
	}
	require.NoError(t, st.Add(context.Background(), chunks))
	require.Equal(t, 2, emb.calls)

	n, err := st.DeleteDocument(context.Background(), "big")
	require.NoError(t, err)
	require.Equal(t, embedBatchSize+1, n)
}

func TestLocalStore_LexicalFallback(t *testing.T) {
	t.Parallel()

	st := openTestStore(t, nil)
	ctx := context.Background()
	require.NoError(t, st.Add(ctx, animalChunks()))

	got, err := st.Search(ctx, "Sea", 4)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "d2_0", got[0].ID)

	got, err = st.Search(ctx, "pets", 4)
	require.NoError(t, err)
	require.Len(t, got, 2)

	got, err = st.Search(ctx, "giraffe", 4)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestLocalStore_DeleteDocument(t *testing.T) {
	t.Parallel()

	st := openTestStore(t, nil)
	ctx := context.Background()
	require.NoError(t, st.Add(ctx, animalChunks()))

	n, err := st.DeleteDocument(ctx, "d1")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	got, err := st.Search(ctx, "cat", 4)
	require.NoError(t, err)
	require.Empty(t, got)

	n, err = st.DeleteDocument(ctx, "d1")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestLocalStore_EmptyQuery(t *testing.T) {
	t.Parallel()

	st := openTestStore(t, nil)
	got, err := st.Search(context.Background(), "   ", 4)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestIngest_TextDocument(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "report.txt")
	body := strings.Repeat("Revenue grew in the north region. ", 60)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	st := openTestStore(t, nil)
	ctx := context.Background()
	n, err := Ingest(ctx, path, "doc-1", "report.txt", "txt", st)
	require.NoError(t, err)
	require.Greater(t, n, 1)

	got, err := st.Search(ctx, "revenue", 50)
	require.NoError(t, err)
	require.Len(t, got, n)
	for _, m := range got {
		require.Equal(t, "doc-1", m.DocumentID)
		require.Equal(t, "report.txt", m.Filename)
		require.Equal(t, n, m.TotalChunks)
		require.Equal(t, 0, m.Page)
	}
	require.Equal(t, "doc-1_0", got[0].ID)
	require.Zero(t, got[0].StartIndex)

	passages, err := Retriever{Store: st}.Retrieve(ctx, "north", 1)
	require.NoError(t, err)
	require.Len(t, passages, 1)
	require.Equal(t, "report.txt", passages[0].Filename)
	require.Contains(t, passages[0].Content, "north region")
}

func TestIngest_EmptyDocument(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "blank.txt")
	require.NoError(t, os.WriteFile(path, []byte("  \n\n "), 0o600))

	_, err := Ingest(context.Background(), path, "doc-2", "blank.txt", "txt", openTestStore(t, nil))
	require.ErrorIs(t, err, ErrEmptyDocument)
}

func TestIngest_UnsupportedType(t *testing.T) {
	t.Parallel()

	_, err := Ingest(context.Background(), "x.pptx", "doc-3", "x.pptx", "pptx", openTestStore(t, nil))
	require.ErrorIs(t, err, ErrUnsupportedFileType)
}
