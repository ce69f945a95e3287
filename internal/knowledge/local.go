package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const embedBatchSize = 16

// LocalStore keeps chunks and their embeddings in a sqlite file and ranks them by
// cosine similarity in process. Without an embedder it ranks by term overlap.
type LocalStore struct {
	db       *sql.DB
	embedder Embedder
}

var _ VectorStore = (*LocalStore)(nil)

func OpenLocalStore(path string, embedder Embedder) (*LocalStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("missing store path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, stmt := range []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA busy_timeout=3000;`,
		`CREATE TABLE IF NOT EXISTS chunks (
  id TEXT PRIMARY KEY,
  document_id TEXT NOT NULL,
  filename TEXT NOT NULL DEFAULT '',
  page INTEGER NOT NULL DEFAULT 0,
  chunk_index INTEGER NOT NULL DEFAULT 0,
  total_chunks INTEGER NOT NULL DEFAULT 0,
  start_index INTEGER NOT NULL DEFAULT 0,
  content TEXT NOT NULL,
  embedding_json TEXT NOT NULL DEFAULT ''
);`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id, chunk_index);`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init chunk store: %w", err)
		}
	}
	return &LocalStore{db: db, embedder: embedder}, nil
}

func (s *LocalStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *LocalStore) Add(ctx context.Context, chunks []Chunk) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	if len(chunks) == 0 {
		return nil
	}

	for i := 0; i < len(chunks); i += embedBatchSize {
		end := min(i+embedBatchSize, len(chunks))
		batch := chunks[i:end]

		// Embed outside the transaction.
		vectors := make([][]float64, len(batch))
		if s.embedder != nil {
			texts := make([]string, len(batch))
			for j, c := range batch {
				texts[j] = c.Content
			}
			vecs, err := s.embedder.Embed(ctx, texts)
			if err != nil {
				return fmt.Errorf("embed batch %d: %w", i/embedBatchSize, err)
			}
			if len(vecs) != len(batch) {
				return fmt.Errorf("embed batch %d: got %d vectors for %d chunks", i/embedBatchSize, len(vecs), len(batch))
			}
			vectors = vecs
		}

		if err := s.insert(ctx, batch, vectors); err != nil {
			return err
		}
	}
	return nil
}

func (s *LocalStore) insert(ctx context.Context, batch []Chunk, vectors [][]float64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for j, c := range batch {
		id := strings.TrimSpace(c.ID)
		if id == "" {
			id = uuid.NewString()
		}
		vec := ""
		if vectors[j] != nil {
			b, err := json.Marshal(vectors[j])
			if err != nil {
				return err
			}
			vec = string(b)
		}
		_, err := tx.ExecContext(ctx, `
INSERT INTO chunks (id, document_id, filename, page, chunk_index, total_chunks, start_index, content, embedding_json)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  content = excluded.content,
  embedding_json = excluded.embedding_json
`, id, c.DocumentID, c.Filename, c.Page, c.ChunkIndex, c.TotalChunks, c.StartIndex, c.Content, vec)
		if err != nil {
			return fmt.Errorf("insert chunk %d: %w", c.ChunkIndex, err)
		}
	}
	return tx.Commit()
}

func (s *LocalStore) Search(ctx context.Context, query string, k int) ([]Match, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	k = clampK(k)

	var qvec []float64
	var terms []string
	if s.embedder != nil {
		vecs, err := s.embedder.Embed(ctx, []string{query})
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		if len(vecs) != 1 {
			return nil, errors.New("embed query: no vector returned")
		}
		qvec = vecs[0]
	} else {
		terms = tokenize(query)
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, document_id, filename, page, chunk_index, total_chunks, start_index, content, embedding_json
FROM chunks
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var c Chunk
		var vecJSON string
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Filename, &c.Page, &c.ChunkIndex, &c.TotalChunks, &c.StartIndex, &c.Content, &vecJSON); err != nil {
			return nil, err
		}
		var score float64
		if qvec != nil {
			if vecJSON == "" {
				continue
			}
			var vec []float64
			if err := json.Unmarshal([]byte(vecJSON), &vec); err != nil {
				continue
			}
			score = cosineSimilarity(qvec, vec)
		} else {
			score = lexicalScore(c, terms)
			if score <= 0 {
				continue
			}
		}
		matches = append(matches, Match{Chunk: c, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return topMatches(matches, k), nil
}

func (s *LocalStore) DeleteDocument(ctx context.Context, documentID string) (int, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("store not initialized")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, strings.TrimSpace(documentID))
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
