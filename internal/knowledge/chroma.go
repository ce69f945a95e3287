package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	chromaDefaultTenant   = "default_tenant"
	chromaDefaultDatabase = "default_database"
	chromaMaxErrorBody    = 4 << 10
)

type ChromaOptions struct {
	// BaseURL is the server root, e.g. http://localhost:8100.
	BaseURL    string
	Collection string
	Tenant     string
	Database   string
	HTTPClient *http.Client
}

// ChromaStore talks to a Chroma server over its v2 HTTP API. Embeddings are computed
// client side with the configured embedder.
type ChromaStore struct {
	base       string
	tenant     string
	database   string
	collection string
	hc         *http.Client
	embedder   Embedder

	mu           sync.Mutex
	collectionID string
}

var _ VectorStore = (*ChromaStore)(nil)

func NewChromaStore(opts ChromaOptions, embedder Embedder) (*ChromaStore, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("missing chroma base url")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid chroma base url: %w", err)
	}
	if embedder == nil {
		return nil, errors.New("chroma store requires an embedder")
	}
	collection := strings.TrimSpace(opts.Collection)
	if collection == "" {
		collection = "documents"
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &ChromaStore{
		base:       base,
		tenant:     firstNonEmpty(opts.Tenant, chromaDefaultTenant),
		database:   firstNonEmpty(opts.Database, chromaDefaultDatabase),
		collection: collection,
		hc:         hc,
		embedder:   embedder,
	}, nil
}

func (s *ChromaStore) Close() error { return nil }

// Heartbeat checks that the server is reachable.
func (s *ChromaStore) Heartbeat(ctx context.Context) error {
	return s.do(ctx, http.MethodGet, "/api/v2/heartbeat", nil, nil)
}

func (s *ChromaStore) collectionPath(ctx context.Context, op string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collectionID == "" {
		var out struct {
			ID string `json:"id"`
		}
		body := map[string]any{
			"name":          s.collection,
			"get_or_create": true,
			"metadata":      map[string]any{"hnsw:space": "cosine"},
		}
		if err := s.do(ctx, http.MethodPost, s.databasePath()+"/collections", body, &out); err != nil {
			return "", fmt.Errorf("get or create collection %q: %w", s.collection, err)
		}
		if strings.TrimSpace(out.ID) == "" {
			return "", fmt.Errorf("collection %q: empty id", s.collection)
		}
		s.collectionID = out.ID
	}
	return s.databasePath() + "/collections/" + url.PathEscape(s.collectionID) + "/" + op, nil
}

func (s *ChromaStore) databasePath() string {
	return "/api/v2/tenants/" + url.PathEscape(s.tenant) + "/databases/" + url.PathEscape(s.database)
}

func (s *ChromaStore) Add(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	path, err := s.collectionPath(ctx, "add")
	if err != nil {
		return err
	}
	for i := 0; i < len(chunks); i += embedBatchSize {
		batch := chunks[i:min(i+embedBatchSize, len(chunks))]
		texts := make([]string, len(batch))
		ids := make([]string, len(batch))
		metas := make([]map[string]any, len(batch))
		for j, c := range batch {
			texts[j] = c.Content
			ids[j] = firstNonEmpty(c.ID, uuid.NewString())
			metas[j] = chunkMetadata(c)
		}
		vecs, err := s.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed batch %d: %w", i/embedBatchSize, err)
		}
		if len(vecs) != len(batch) {
			return fmt.Errorf("embed batch %d: got %d vectors for %d chunks", i/embedBatchSize, len(vecs), len(batch))
		}
		body := map[string]any{"ids": ids, "embeddings": vecs, "documents": texts, "metadatas": metas}
		if err := s.do(ctx, http.MethodPost, path, body, nil); err != nil {
			return fmt.Errorf("add chunks: %w", err)
		}
	}
	return nil
}

type chromaQueryResult struct {
	IDs       [][]string         `json:"ids"`
	Documents [][]*string        `json:"documents"`
	Metadatas [][]map[string]any `json:"metadatas"`
	Distances [][]*float64       `json:"distances"`
}

func (s *ChromaStore) Search(ctx context.Context, query string, k int) ([]Match, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	k = clampK(k)
	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, errors.New("embed query: no vector returned")
	}
	path, err := s.collectionPath(ctx, "query")
	if err != nil {
		return nil, err
	}

	var res chromaQueryResult
	body := map[string]any{
		"query_embeddings": vecs,
		"n_results":        k,
		"include":          []string{"documents", "metadatas", "distances"},
	}
	if err := s.do(ctx, http.MethodPost, path, body, &res); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	if len(res.IDs) == 0 {
		return nil, nil
	}

	out := make([]Match, 0, len(res.IDs[0]))
	for i, id := range res.IDs[0] {
		m := Match{Chunk: Chunk{ID: id}}
		if len(res.Documents) > 0 && i < len(res.Documents[0]) && res.Documents[0][i] != nil {
			m.Content = *res.Documents[0][i]
		}
		if len(res.Metadatas) > 0 && i < len(res.Metadatas[0]) {
			applyMetadata(&m.Chunk, res.Metadatas[0][i])
		}
		if len(res.Distances) > 0 && i < len(res.Distances[0]) && res.Distances[0][i] != nil {
			// Cosine distance; convert so higher is better like the local store.
			m.Score = 1 - *res.Distances[0][i]
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *ChromaStore) DeleteDocument(ctx context.Context, documentID string) (int, error) {
	getPath, err := s.collectionPath(ctx, "get")
	if err != nil {
		return 0, err
	}
	var found struct {
		IDs []string `json:"ids"`
	}
	body := map[string]any{"where": map[string]any{"document_id": documentID}, "include": []string{}}
	if err := s.do(ctx, http.MethodPost, getPath, body, &found); err != nil {
		return 0, fmt.Errorf("find chunks: %w", err)
	}
	if len(found.IDs) == 0 {
		return 0, nil
	}
	deletePath, err := s.collectionPath(ctx, "delete")
	if err != nil {
		return 0, err
	}
	if err := s.do(ctx, http.MethodPost, deletePath, map[string]any{"ids": found.IDs}, nil); err != nil {
		return 0, fmt.Errorf("delete chunks: %w", err)
	}
	return len(found.IDs), nil
}

func (s *ChromaStore) do(ctx context.Context, method string, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, chromaMaxErrorBody))
		return fmt.Errorf("chroma %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func applyMetadata(c *Chunk, meta map[string]any) {
	if meta == nil {
		return
	}
	if v, ok := meta["document_id"].(string); ok {
		c.DocumentID = v
	}
	if v, ok := meta["filename"].(string); ok {
		c.Filename = v
	}
	c.Page = metaInt(meta, "page")
	c.ChunkIndex = metaInt(meta, "chunk_index")
	c.TotalChunks = metaInt(meta, "total_chunks")
	c.StartIndex = metaInt(meta, "start_index")
}

func metaInt(meta map[string]any, key string) int {
	switch v := meta[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return 0
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
