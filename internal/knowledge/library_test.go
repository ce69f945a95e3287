package knowledge

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/floegence/datachat-agent/internal/ai/threadstore"
	"github.com/stretchr/testify/require"
)

func newTestLibrary(t *testing.T, maxSize int64) (*Library, *LocalStore, string) {
	t.Helper()
	dir := t.TempDir()
	docs, err := threadstore.Open(filepath.Join(dir, "meta.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = docs.Close() })

	st := openTestStore(t, nil)
	uploads := filepath.Join(dir, "uploads")
	lib, err := NewLibrary(LibraryOptions{
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Documents:    docs,
		Store:        st,
		UploadDir:    uploads,
		MaxFileSize:  maxSize,
		AllowedTypes: []string{"pdf", "csv", ".TXT", "docx"},
	})
	require.NoError(t, err)
	return lib, st, uploads
}

func TestLibrary_UploadIngestsAndDeletes(t *testing.T) {
	t.Parallel()

	lib, st, uploads := newTestLibrary(t, 1<<20)
	ctx := context.Background()

	doc, err := lib.Upload(ctx, "../../etc/notes.txt", strings.NewReader("Quarterly revenue grew in the north region."))
	require.NoError(t, err)
	require.Equal(t, "notes.txt", doc.Filename)
	require.Equal(t, "txt", doc.FileType)
	require.Equal(t, threadstore.DocumentStatusReady, doc.Status)
	require.Equal(t, 1, doc.ChunkCount)
	require.Equal(t, filepath.Join(uploads, doc.ID+"_notes.txt"), doc.FilePath)
	require.EqualValues(t, len("Quarterly revenue grew in the north region."), doc.FileSize)

	got, err := st.Search(ctx, "revenue", 4)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, doc.ID, got[0].DocumentID)

	list, err := lib.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, lib.Delete(ctx, doc.ID))
	_, err = os.Stat(doc.FilePath)
	require.True(t, os.IsNotExist(err))
	got, err = st.Search(ctx, "revenue", 4)
	require.NoError(t, err)
	require.Empty(t, got)
	_, err = lib.Get(ctx, doc.ID)
	require.ErrorIs(t, err, threadstore.ErrDocumentNotFound)
	require.ErrorIs(t, lib.Delete(ctx, doc.ID), threadstore.ErrDocumentNotFound)
}

func TestLibrary_IngestFailureMarksError(t *testing.T) {
	t.Parallel()

	lib, _, _ := newTestLibrary(t, 1<<20)
	doc, err := lib.Upload(context.Background(), "broken.pdf", strings.NewReader("not a pdf"))
	require.NoError(t, err)
	require.Equal(t, threadstore.DocumentStatusError, doc.Status)
	require.NotEmpty(t, doc.ErrorMessage)
	require.Zero(t, doc.ChunkCount)
}

func TestLibrary_RejectsTypeAndSize(t *testing.T) {
	t.Parallel()

	lib, _, uploads := newTestLibrary(t, 8)
	ctx := context.Background()

	_, err := lib.Upload(ctx, "deck.pptx", strings.NewReader("x"))
	require.ErrorIs(t, err, ErrFileTypeNotAllowed)

	_, err = lib.Upload(ctx, "big.txt", strings.NewReader("123456789"))
	require.ErrorIs(t, err, ErrFileTooLarge)

	_, err = lib.Upload(ctx, "  ", strings.NewReader("x"))
	require.ErrorIs(t, err, ErrMissingFilename)

	entries, err := os.ReadDir(uploads)
	require.NoError(t, err)
	require.Empty(t, entries)

	list, err := lib.List(ctx)
	require.NoError(t, err)
	require.Empty(t, list)
}
