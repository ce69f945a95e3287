package app

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/floegence/datachat-agent/internal/ai"
	"github.com/floegence/datachat-agent/internal/ai/llm"
	"github.com/floegence/datachat-agent/internal/config"
	"github.com/floegence/datachat-agent/internal/lockfile"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	dbPath := filepath.Join(dir, "music.db")
	raw, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open seed db: %v", err)
	}
	for _, stmt := range []string{
		`CREATE TABLE artists (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`,
		`INSERT INTO artists VALUES (1, 'AC/DC')`,
	} {
		if _, err := raw.Exec(stmt); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	_ = raw.Close()

	cfg := config.Default()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.UploadDir = filepath.Join(dir, "uploads")
	cfg.Database.URL = dbPath
	cfg.EmbeddingModel = config.EmbeddingModelNone
	cfg.Checkpoint.Backend = config.CheckpointBackendSQLite
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	return cfg
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNew_ChatTurnAndHistoryPersist(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	model := llm.NewScriptedModel(llm.ScriptedResponse{Message: llm.Message{
		Content:       llm.TextContent("No documents mention that."),
		UsageMetadata: map[string]any{"input_tokens": 5, "output_tokens": 3},
	}})
	a, err := New(context.Background(), cfg, discard(), Deps{Model: model})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = a.Close() }()

	turn, err := a.Chat().Chat(context.Background(), ai.ChatRequest{ThreadID: "t1", Question: "What does the report say?", Mode: ai.ModeRAG})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	var last ai.Event
	for ev, err := range turn.Events {
		if err != nil {
			t.Fatalf("event err: %v", err)
		}
		last = ev
	}
	if last.Kind != ai.EventDone || last.Usage.TotalTokens != 8 {
		t.Fatalf("last=%+v, want done with 8 tokens", last)
	}

	msgs, err := a.Chat().ThreadMessages(context.Background(), "t1", time.Now())
	if err != nil {
		t.Fatalf("ThreadMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("len(msgs)=%d, want 2", len(msgs))
	}
}

func TestNew_DataDirIsExclusive(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, discard(), Deps{Model: llm.NewScriptedModel()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := New(context.Background(), cfg, discard(), Deps{Model: llm.NewScriptedModel()}); !errors.Is(err, lockfile.ErrAlreadyLocked) {
		t.Fatalf("second New err=%v, want %v", err, lockfile.ErrAlreadyLocked)
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	b, err := New(context.Background(), cfg, discard(), Deps{Model: llm.NewScriptedModel()})
	if err != nil {
		t.Fatalf("New after Close: %v", err)
	}
	_ = b.Close()
}

func TestNew_MissingDatabaseReleasesLock(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Database.URL = "postgres://nowhere/db"
	if _, err := New(context.Background(), cfg, discard(), Deps{Model: llm.NewScriptedModel()}); err == nil {
		t.Fatalf("New succeeded with unsupported database url")
	}

	lock, err := lockfile.AcquireDir(cfg.DataDir)
	if err != nil {
		t.Fatalf("lock still held after failed New: %v", err)
	}
	_ = lock.Release()
}

func TestRun_ServesUntilCanceled(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, discard(), Deps{Model: llm.NewScriptedModel()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = a.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	var addr string
	deadline := time.Now().Add(5 * time.Second)
	for addr == "" && time.Now().Before(deadline) {
		addr = a.Handler().Addr()
		time.Sleep(10 * time.Millisecond)
	}
	if addr == "" {
		cancel()
		t.Fatalf("server did not start")
	}

	resp, err := http.Get("http://" + addr + "/health")
	if err != nil {
		cancel()
		t.Fatalf("GET /health: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d, want %d", resp.StatusCode, http.StatusOK)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run err=%v, want nil", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}
