package knowledge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/floegence/datachat-agent/internal/ai/threadstore"
	"github.com/google/uuid"
)

var (
	ErrFileTypeNotAllowed = errors.New("file type not allowed")
	ErrFileTooLarge       = errors.New("file too large")
	ErrMissingFilename    = errors.New("missing filename")
)

// Library owns the lifecycle of uploaded documents: the raw file on disk, the metadata
// record and the chunks in the vector store.
type Library struct {
	log          *slog.Logger
	docs         *threadstore.Store
	store        VectorStore
	splitter     *Splitter
	uploadDir    string
	maxFileSize  int64
	allowedTypes []string
}

type LibraryOptions struct {
	Logger      *slog.Logger
	Documents   *threadstore.Store
	Store       VectorStore
	Splitter    *Splitter
	UploadDir   string
	MaxFileSize int64
	// AllowedTypes are lowercase extensions without the dot.
	AllowedTypes []string
}

func NewLibrary(opts LibraryOptions) (*Library, error) {
	if opts.Documents == nil {
		return nil, errors.New("missing Documents")
	}
	if opts.Store == nil {
		return nil, errors.New("missing Store")
	}
	if strings.TrimSpace(opts.UploadDir) == "" {
		return nil, errors.New("missing UploadDir")
	}
	if opts.MaxFileSize <= 0 {
		return nil, fmt.Errorf("invalid MaxFileSize: %d", opts.MaxFileSize)
	}
	if err := os.MkdirAll(opts.UploadDir, 0o700); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	splitter := opts.Splitter
	if splitter == nil {
		splitter = NewSplitter()
	}
	allowed := make([]string, 0, len(opts.AllowedTypes))
	for _, t := range opts.AllowedTypes {
		allowed = append(allowed, strings.ToLower(strings.TrimPrefix(strings.TrimSpace(t), ".")))
	}
	return &Library{
		log:          log.With("component", "documents"),
		docs:         opts.Documents,
		store:        opts.Store,
		splitter:     splitter,
		uploadDir:    opts.UploadDir,
		maxFileSize:  opts.MaxFileSize,
		allowedTypes: allowed,
	}, nil
}

func (l *Library) AllowedTypes() []string { return slices.Clone(l.allowedTypes) }

func (l *Library) MaxFileSize() int64 { return l.maxFileSize }

func (l *Library) List(ctx context.Context) ([]threadstore.Document, error) {
	return l.docs.ListDocuments(ctx)
}

func (l *Library) Get(ctx context.Context, id string) (threadstore.Document, error) {
	return l.docs.GetDocument(ctx, id)
}

// Upload saves the file as <id>_<filename>, records it and ingests it. A failed ingestion
// is not an error: the returned document has status "error" and the reason in ErrorMessage.
func (l *Library) Upload(ctx context.Context, filename string, r io.Reader) (threadstore.Document, error) {
	filename = filepath.Base(strings.TrimSpace(strings.ReplaceAll(filename, "\\", "/")))
	if filename == "" || filename == "." || filename == "/" {
		return threadstore.Document{}, ErrMissingFilename
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if !slices.Contains(l.allowedTypes, ext) {
		return threadstore.Document{}, fmt.Errorf("%w: .%s (allowed: %s)", ErrFileTypeNotAllowed, ext, strings.Join(l.allowedTypes, ", "))
	}

	id := uuid.NewString()
	path := filepath.Join(l.uploadDir, id+"_"+filename)
	size, err := l.save(path, r)
	if err != nil {
		return threadstore.Document{}, err
	}

	doc, err := l.docs.CreateDocument(ctx, threadstore.Document{
		ID:       id,
		Filename: filename,
		FileType: ext,
		FileSize: size,
		FilePath: path,
		Status:   threadstore.DocumentStatusProcessing,
	})
	if err != nil {
		_ = os.Remove(path)
		return threadstore.Document{}, err
	}

	n, ingestErr := IngestWith(ctx, l.splitter, path, id, filename, ext, l.store)
	status := threadstore.DocumentStatusReady
	u := threadstore.DocumentUpdate{Status: &status, ChunkCount: &n}
	if ingestErr != nil {
		status = threadstore.DocumentStatusError
		msg := ingestErr.Error()
		u.ErrorMessage = &msg
		l.log.Warn("document ingestion failed", "document_id", id, "filename", filename, "error", ingestErr)
	} else {
		l.log.Info("document ingested", "document_id", id, "filename", filename, "chunks", n)
	}
	updated, err := l.docs.UpdateDocument(context.WithoutCancel(ctx), id, u)
	if err != nil {
		return doc, err
	}
	return updated, nil
}

func (l *Library) save(path string, r io.Reader) (int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, io.LimitReader(r, l.maxFileSize+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && n > l.maxFileSize {
		err = fmt.Errorf("%w: max %d MB", ErrFileTooLarge, l.maxFileSize>>20)
	}
	if err != nil {
		_ = os.Remove(path)
		return 0, err
	}
	return n, nil
}

// Delete removes the document's chunks, raw file and record. Chunk and file removal are
// best effort; the record is always removed when it exists.
func (l *Library) Delete(ctx context.Context, id string) error {
	doc, err := l.docs.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	if n, err := l.store.DeleteDocument(ctx, doc.ID); err != nil {
		l.log.Warn("delete document chunks failed", "document_id", doc.ID, "error", err)
	} else {
		l.log.Debug("deleted document chunks", "document_id", doc.ID, "chunks", n)
	}
	if doc.FilePath != "" {
		if err := os.Remove(doc.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			l.log.Warn("delete document file failed", "document_id", doc.ID, "path", doc.FilePath, "error", err)
		}
	}
	return l.docs.DeleteDocument(ctx, doc.ID)
}
