package threadstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var ErrThreadNotFound = errors.New("thread not found")

const (
	DefaultThreadTitle = "New Chat"
	DefaultThreadMode  = "sql"
)

// Store is a local SQLite-backed persistence layer for chat threads, uploaded document
// metadata and (optionally) agent checkpoints.
//
// WAL is enabled so HTTP readers do not block a streaming turn that is writing checkpoints.
type Store struct {
	db *sql.DB
	cp *Checkpoints
}

func Open(path string) (*Store, error) {
	p := filepath.Clean(strings.TrimSpace(path))
	if p == "" || p == "." {
		return nil, errors.New("missing db path")
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	s.cp = &Checkpoints{s: s}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type Thread struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Mode            string `json:"mode"`
	CreatedAtUnixMs int64  `json:"created_at_unix_ms"`
	UpdatedAtUnixMs int64  `json:"updated_at_unix_ms"`
}

// ThreadUpdate applies only the non-nil fields.
type ThreadUpdate struct {
	Title *string
	Mode  *string
}

func (s *Store) ListThreads(ctx context.Context) ([]Thread, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, title, mode, created_at_unix_ms, updated_at_unix_ms
FROM threads
ORDER BY updated_at_unix_ms DESC, id DESC
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Thread, 0, 16)
	for rows.Next() {
		var t Thread
		if err := rows.Scan(&t.ID, &t.Title, &t.Mode, &t.CreatedAtUnixMs, &t.UpdatedAtUnixMs); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) GetThread(ctx context.Context, threadID string) (Thread, error) {
	if s == nil || s.db == nil {
		return Thread{}, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return Thread{}, ErrThreadNotFound
	}

	var t Thread
	err := s.db.QueryRowContext(ctx, `
SELECT id, title, mode, created_at_unix_ms, updated_at_unix_ms
FROM threads
WHERE id = ?
`, threadID).Scan(&t.ID, &t.Title, &t.Mode, &t.CreatedAtUnixMs, &t.UpdatedAtUnixMs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Thread{}, fmt.Errorf("%w: %s", ErrThreadNotFound, threadID)
		}
		return Thread{}, err
	}
	return t, nil
}

// CreateThread inserts a thread. Empty title and mode fall back to the defaults; an
// empty id gets a fresh UUID.
func (s *Store) CreateThread(ctx context.Context, t Thread) (Thread, error) {
	if s == nil || s.db == nil {
		return Thread{}, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	t.ID = strings.TrimSpace(t.ID)
	t.Title = strings.TrimSpace(t.Title)
	t.Mode = strings.TrimSpace(t.Mode)
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Title == "" {
		t.Title = DefaultThreadTitle
	}
	if t.Mode == "" {
		t.Mode = DefaultThreadMode
	}
	if len(t.Title) > 200 {
		return Thread{}, errors.New("title too long")
	}
	now := time.Now().UnixMilli()
	if t.CreatedAtUnixMs <= 0 {
		t.CreatedAtUnixMs = now
	}
	if t.UpdatedAtUnixMs <= 0 {
		t.UpdatedAtUnixMs = t.CreatedAtUnixMs
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO threads (id, title, mode, created_at_unix_ms, updated_at_unix_ms)
VALUES (?, ?, ?, ?, ?)
`, t.ID, t.Title, t.Mode, t.CreatedAtUnixMs, t.UpdatedAtUnixMs)
	if err != nil {
		return Thread{}, err
	}
	return t, nil
}

// UpdateThread applies the non-nil fields and bumps updated_at.
func (s *Store) UpdateThread(ctx context.Context, threadID string, u ThreadUpdate) (Thread, error) {
	if s == nil || s.db == nil {
		return Thread{}, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	threadID = strings.TrimSpace(threadID)

	sets := []string{"updated_at_unix_ms = ?"}
	args := []any{time.Now().UnixMilli()}
	if u.Title != nil {
		title := strings.TrimSpace(*u.Title)
		if len(title) > 200 {
			return Thread{}, errors.New("title too long")
		}
		sets = append(sets, "title = ?")
		args = append(args, title)
	}
	if u.Mode != nil {
		sets = append(sets, "mode = ?")
		args = append(args, strings.TrimSpace(*u.Mode))
	}
	args = append(args, threadID)

	res, err := s.db.ExecContext(ctx, `UPDATE threads SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return Thread{}, err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return Thread{}, fmt.Errorf("%w: %s", ErrThreadNotFound, threadID)
	}
	return s.GetThread(ctx, threadID)
}

// DeleteThread removes the thread and any sqlite-held checkpoint history for it.
func (s *Store) DeleteThread(ctx context.Context, threadID string) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	threadID = strings.TrimSpace(threadID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM checkpoint_messages WHERE thread_id = ?`, threadID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM threads WHERE id = ?`, threadID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrThreadNotFound, threadID)
	}
	return tx.Commit()
}

func initSchema(db *sql.DB) error {
	if db == nil {
		return errors.New("nil db")
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return fmt.Errorf("pragma journal_mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=3000;`); err != nil {
		return fmt.Errorf("pragma busy_timeout: %w", err)
	}
	return migrateSchema(db)
}

func migrateSchema(db *sql.DB) error {
	if db == nil {
		return errors.New("nil db")
	}
	const targetVersion = 2

	var v int
	if err := db.QueryRow(`PRAGMA user_version;`).Scan(&v); err != nil {
		return fmt.Errorf("pragma user_version: %w", err)
	}
	if v >= targetVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS threads (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL DEFAULT 'New Chat',
  mode TEXT NOT NULL DEFAULT 'sql',
  created_at_unix_ms INTEGER NOT NULL,
  updated_at_unix_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_threads_updated ON threads(updated_at_unix_ms DESC, id DESC);

CREATE TABLE IF NOT EXISTS documents (
  id TEXT PRIMARY KEY,
  filename TEXT NOT NULL,
  file_type TEXT NOT NULL,
  file_size INTEGER NOT NULL DEFAULT 0,
  file_path TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'processing',
  chunk_count INTEGER NOT NULL DEFAULT 0,
  created_at_unix_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_created ON documents(created_at_unix_ms DESC, id DESC);

CREATE TABLE IF NOT EXISTS checkpoint_messages (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  thread_id TEXT NOT NULL,
  message_id TEXT NOT NULL,
  role TEXT NOT NULL,
  created_at_unix_ms INTEGER NOT NULL,
  message_json TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_checkpoint_messages_thread ON checkpoint_messages(thread_id, seq ASC);
`); err != nil {
		return err
	}

	// v2: ingestion failures are recorded on the document.
	if has, err := columnExists(tx, "documents", "error_message"); err != nil {
		return err
	} else if !has {
		if _, err := tx.Exec(`ALTER TABLE documents ADD COLUMN error_message TEXT NOT NULL DEFAULT ''`); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version=%d;`, targetVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

func columnExists(tx *sql.Tx, tableName string, colName string) (bool, error) {
	tableName = strings.TrimSpace(tableName)
	colName = strings.TrimSpace(colName)
	if tableName == "" || colName == "" {
		return false, errors.New("invalid table/column")
	}

	rows, err := tx.Query(`PRAGMA table_info(` + tableName + `)`)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name string
		var ctype string
		var notNull int
		var defaultValue sql.NullString
		var primaryKey int
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &defaultValue, &primaryKey); err != nil {
			return false, err
		}
		if strings.EqualFold(strings.TrimSpace(name), colName) {
			return true, nil
		}
	}
	return false, rows.Err()
}
