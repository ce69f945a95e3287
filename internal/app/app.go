// Package app wires the configured components into a running server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/floegence/datachat-agent/internal/ai"
	"github.com/floegence/datachat-agent/internal/ai/agent"
	"github.com/floegence/datachat-agent/internal/ai/checkpoint"
	"github.com/floegence/datachat-agent/internal/ai/llm"
	"github.com/floegence/datachat-agent/internal/ai/threadstore"
	"github.com/floegence/datachat-agent/internal/ai/tools"
	"github.com/floegence/datachat-agent/internal/config"
	"github.com/floegence/datachat-agent/internal/httpapi"
	"github.com/floegence/datachat-agent/internal/knowledge"
	"github.com/floegence/datachat-agent/internal/lockfile"
	"github.com/floegence/datachat-agent/internal/monitor"
)

// Deps overrides components that are otherwise built from config. Tests use it to
// swap in a scripted model.
type Deps struct {
	Model    llm.ChatModel
	Embedder knowledge.Embedder
}

type App struct {
	cfg *config.Config
	log *slog.Logger

	lock     *lockfile.Lock
	db       *tools.Database
	threads  *threadstore.Store
	vectors  knowledge.VectorStore
	chat     *ai.Service
	library  *knowledge.Library
	monitor  *monitor.Service
	server   *httpapi.Server
	closeFns []func() error
}

func New(ctx context.Context, cfg *config.Config, log *slog.Logger, deps Deps) (_ *App, err error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	if log == nil {
		log = slog.Default()
	}
	a := &App{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.lock, err = lockfile.AcquireDir(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	a.closeFns = append(a.closeFns, a.lock.Release)

	a.threads, err = threadstore.Open(cfg.MetadataDBPath())
	if err != nil {
		return nil, fmt.Errorf("open metadata store: %w", err)
	}
	a.closeFns = append(a.closeFns, a.threads.Close)

	var cp checkpoint.Store = checkpoint.NewMemory()
	if cfg.Checkpoint.Backend == config.CheckpointBackendSQLite {
		cp = a.threads.Checkpoints()
	}

	a.db, err = tools.OpenDatabase(ctx, cfg.Database.URL, tools.DatabaseOptions{
		ReadOnly: cfg.ReadOnlySQL(),
		SeedURL:  cfg.Database.SeedURL,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.closeFns = append(a.closeFns, a.db.Close)

	model := deps.Model
	if model == nil {
		model, err = llm.NewChatModel(cfg.Model, llm.ProviderOptions{})
		if err != nil {
			return nil, fmt.Errorf("chat model: %w", err)
		}
	}

	embedder := deps.Embedder
	if embedder == nil && cfg.EmbeddingsEnabled() {
		e, err := llm.NewEmbedder(cfg.EmbeddingModel, llm.ProviderOptions{})
		if err != nil {
			return nil, fmt.Errorf("embedder: %w", err)
		}
		embedder = e
	}

	a.vectors, err = openVectorStore(cfg, embedder)
	if err != nil {
		return nil, fmt.Errorf("vector store: %w", err)
	}
	a.closeFns = append(a.closeFns, a.vectors.Close)

	agents, err := agent.Build(agent.BuildOptions{
		Model:        model,
		Database:     a.db,
		Retriever:    knowledge.Retriever{Store: a.vectors},
		Checkpoints:  cp,
		TopK:         cfg.Database.TopK,
		RetrievalK:   cfg.RAG.TopK,
		QueryChecker: cfg.QueryCheckerEnabled(),
		Logger:       log,
	})
	if err != nil {
		return nil, fmt.Errorf("build agents: %w", err)
	}

	a.chat, err = ai.NewService(ai.Options{
		Logger:          log,
		Agents:          agents,
		Checkpoints:     cp,
		Threads:         a.threads,
		Classifier:      llm.Oracle(model),
		RAGHistoryLimit: cfg.RAG.HistoryLimit,
	})
	if err != nil {
		return nil, err
	}

	a.library, err = knowledge.NewLibrary(knowledge.LibraryOptions{
		Logger:       log,
		Documents:    a.threads,
		Store:        a.vectors,
		UploadDir:    cfg.UploadDir,
		MaxFileSize:  cfg.MaxFileSize(),
		AllowedTypes: cfg.AllowedFileTypes,
	})
	if err != nil {
		return nil, fmt.Errorf("document library: %w", err)
	}

	a.monitor = monitor.NewService(log)
	a.server, err = httpapi.New(httpapi.Options{
		Logger:         log,
		Chat:           a.chat,
		Threads:        a.threads,
		Database:       a.db,
		Documents:      a.library,
		Monitor:        a.monitor,
		CORSOrigins:    cfg.CORSOrigins,
		RateLimitRPS:   cfg.RateLimit.RPS,
		RateLimitBurst: cfg.RateLimit.Burst,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func openVectorStore(cfg *config.Config, embedder knowledge.Embedder) (knowledge.VectorStore, error) {
	switch cfg.VectorStore.Backend {
	case config.VectorBackendChroma:
		return knowledge.NewChromaStore(knowledge.ChromaOptions{
			BaseURL:    cfg.ChromaURL(),
			Collection: cfg.VectorStore.Collection,
		}, embedder)
	default:
		return knowledge.OpenLocalStore(cfg.VectorDBPath(), embedder)
	}
}

func (a *App) Chat() *ai.Service { return a.chat }

func (a *App) Handler() *httpapi.Server { return a.server }

// Run serves HTTP until ctx is canceled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server.Start(gctx, a.cfg.Addr())
	})
	g.Go(func() error {
		// Prime the CPU counters so the first /health/runtime sample is not relative to boot.
		_ = a.monitor.Snapshot(gctx)
		return nil
	})
	return g.Wait()
}

// Close releases everything New opened, in reverse order.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		if err := a.closeFns[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closeFns = nil
	return errors.Join(errs...)
}
