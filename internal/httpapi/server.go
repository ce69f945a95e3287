// Package httpapi serves the chat, thread, database, document and health endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/floegence/datachat-agent/internal/ai"
	"github.com/floegence/datachat-agent/internal/ai/threadstore"
	"github.com/floegence/datachat-agent/internal/ai/tools"
	"github.com/floegence/datachat-agent/internal/knowledge"
	"github.com/floegence/datachat-agent/internal/monitor"
)

type Options struct {
	Logger *slog.Logger

	Chat      *ai.Service
	Threads   *threadstore.Store
	Database  *tools.Database
	Documents *knowledge.Library
	Monitor   *monitor.Service

	// CORSOrigins is the browser origin allow-list. "*" allows any origin.
	CORSOrigins []string
	// RateLimitRPS and RateLimitBurst bound POST requests per client. Zero RPS disables it.
	RateLimitRPS   float64
	RateLimitBurst int
}

type Server struct {
	log *slog.Logger

	chat     *ai.Service
	threads  *threadstore.Store
	db       *tools.Database
	docs     *knowledge.Library
	monitor  *monitor.Service
	handler  http.Handler
	limiters *clientLimiters

	allowedOrigins []string

	mu sync.Mutex
	ln net.Listener
}

const shutdownTimeout = 10 * time.Second

func New(opts Options) (*Server, error) {
	if opts.Chat == nil {
		return nil, errors.New("missing Chat")
	}
	if opts.Threads == nil {
		return nil, errors.New("missing Threads")
	}
	if opts.Database == nil {
		return nil, errors.New("missing Database")
	}
	if opts.Documents == nil {
		return nil, errors.New("missing Documents")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	mon := opts.Monitor
	if mon == nil {
		mon = monitor.NewService(logger)
	}

	s := &Server{
		log:            logger.With("component", "http"),
		chat:           opts.Chat,
		threads:        opts.Threads,
		db:             opts.Database,
		docs:           opts.Documents,
		monitor:        mon,
		limiters:       newClientLimiters(opts.RateLimitRPS, opts.RateLimitBurst),
		allowedOrigins: normalizeOrigins(opts.CORSOrigins),
	}
	s.handler = s.routes()
	return s, nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat/stream", s.handleChatStream)

	mux.HandleFunc("GET /threads", s.handleListThreads)
	mux.HandleFunc("POST /threads", s.handleCreateThread)
	mux.HandleFunc("GET /threads/{id}", s.handleGetThread)
	mux.HandleFunc("PATCH /threads/{id}", s.handleUpdateThread)
	mux.HandleFunc("DELETE /threads/{id}", s.handleDeleteThread)

	mux.HandleFunc("GET /database/schema", s.handleSchema)
	mux.HandleFunc("GET /database/tables/{name}", s.handleTablePreview)

	mux.HandleFunc("GET /documents", s.handleListDocuments)
	mux.HandleFunc("POST /documents", s.handleUploadDocument)
	mux.HandleFunc("GET /documents/{id}", s.handleGetDocument)
	mux.HandleFunc("DELETE /documents/{id}", s.handleDeleteDocument)

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/runtime", s.handleRuntime)

	var h http.Handler = mux
	h = s.rateLimit(h)
	h = s.cors(h)
	h = s.logRequests(h)
	h = s.recoverPanics(h)
	return h
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler { return s.handler }

// Start listens on addr and serves until ctx is done, then shuts down gracefully and
// returns once in-flight requests have drained or the shutdown timeout passed.
func (s *Server) Start(ctx context.Context, addr string) error {
	if s == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	drained := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(drained)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("http shutdown failed", "error", err)
		}
	})

	s.log.Info("http listening", "addr", ln.Addr().String())
	err = srv.Serve(ln)
	if !stop() {
		<-drained
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Addr is the bound listen address once Start is running.
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResp struct {
	Detail string `json:"detail"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResp{Detail: msg})
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return errors.New("missing request body")
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, o := range in {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}
