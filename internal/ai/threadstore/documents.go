package threadstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrDocumentNotFound = errors.New("document not found")

const (
	DocumentStatusProcessing = "processing"
	DocumentStatusReady      = "ready"
	DocumentStatusError      = "error"
)

type Document struct {
	ID              string `json:"id"`
	Filename        string `json:"filename"`
	FileType        string `json:"file_type"`
	FileSize        int64  `json:"file_size"`
	FilePath        string `json:"-"`
	Status          string `json:"status"`
	ChunkCount      int    `json:"chunk_count"`
	ErrorMessage    string `json:"error_message,omitempty"`
	CreatedAtUnixMs int64  `json:"created_at_unix_ms"`
}

// DocumentUpdate applies only the non-nil fields.
type DocumentUpdate struct {
	FilePath     *string
	Status       *string
	ChunkCount   *int
	ErrorMessage *string
}

const documentColumns = `id, filename, file_type, file_size, file_path, status, chunk_count, error_message, created_at_unix_ms`

func scanDocument(row interface{ Scan(...any) error }) (Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.Filename, &d.FileType, &d.FileSize, &d.FilePath, &d.Status, &d.ChunkCount, &d.ErrorMessage, &d.CreatedAtUnixMs)
	return d, err
}

func (s *Store) ListDocuments(ctx context.Context) ([]Document, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY created_at_unix_ms DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Document, 0, 16)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) GetDocument(ctx context.Context, docID string) (Document, error) {
	if s == nil || s.db == nil {
		return Document{}, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	docID = strings.TrimSpace(docID)
	d, err := scanDocument(s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, docID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, fmt.Errorf("%w: %s", ErrDocumentNotFound, docID)
		}
		return Document{}, err
	}
	return d, nil
}

// CreateDocument inserts a document record in the processing state unless another
// status is given.
func (s *Store) CreateDocument(ctx context.Context, d Document) (Document, error) {
	if s == nil || s.db == nil {
		return Document{}, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	d.ID = strings.TrimSpace(d.ID)
	d.Filename = strings.TrimSpace(d.Filename)
	d.FileType = strings.ToLower(strings.TrimSpace(d.FileType))
	if d.Filename == "" || d.FileType == "" {
		return Document{}, errors.New("invalid document")
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = DocumentStatusProcessing
	}
	if d.CreatedAtUnixMs <= 0 {
		d.CreatedAtUnixMs = time.Now().UnixMilli()
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO documents (`+documentColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`, d.ID, d.Filename, d.FileType, d.FileSize, d.FilePath, d.Status, d.ChunkCount, d.ErrorMessage, d.CreatedAtUnixMs)
	if err != nil {
		return Document{}, err
	}
	return d, nil
}

func (s *Store) UpdateDocument(ctx context.Context, docID string, u DocumentUpdate) (Document, error) {
	if s == nil || s.db == nil {
		return Document{}, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	docID = strings.TrimSpace(docID)

	var sets []string
	var args []any
	if u.FilePath != nil {
		sets = append(sets, "file_path = ?")
		args = append(args, *u.FilePath)
	}
	if u.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, strings.TrimSpace(*u.Status))
	}
	if u.ChunkCount != nil {
		sets = append(sets, "chunk_count = ?")
		args = append(args, *u.ChunkCount)
	}
	if u.ErrorMessage != nil {
		sets = append(sets, "error_message = ?")
		args = append(args, *u.ErrorMessage)
	}
	if len(sets) == 0 {
		return s.GetDocument(ctx, docID)
	}
	args = append(args, docID)

	res, err := s.db.ExecContext(ctx, `UPDATE documents SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return Document{}, err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return Document{}, fmt.Errorf("%w: %s", ErrDocumentNotFound, docID)
	}
	return s.GetDocument(ctx, docID)
}

func (s *Store) DeleteDocument(ctx context.Context, docID string) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	docID = strings.TrimSpace(docID)
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, docID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, docID)
	}
	return nil
}
