package ai

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/floegence/datachat-agent/internal/ai/agent"
	"github.com/floegence/datachat-agent/internal/ai/checkpoint"
	"github.com/floegence/datachat-agent/internal/ai/llm"
	"github.com/floegence/datachat-agent/internal/ai/threadstore"
	"github.com/floegence/datachat-agent/internal/ai/tools"
)

var ErrInvalidRequest = errors.New("invalid chat request")

type Options struct {
	Logger *slog.Logger

	Agents      agent.Registry
	Checkpoints checkpoint.Store
	// Threads is optional. When set, a turn on a known thread records the routed mode.
	Threads *threadstore.Store
	// Classifier picks a mode when the request has none. Nil always routes to sql.
	Classifier Oracle

	// RAGHistoryLimit caps rag-mode history. Zero means DefaultRAGHistoryLimit.
	RAGHistoryLimit int
}

// Service routes chat turns to agents and reads back thread history.
type Service struct {
	log *slog.Logger

	agents     agent.Registry
	cp         checkpoint.Store
	threads    *threadstore.Store
	router     *ModeRouter
	translator Translator
}

func NewService(opts Options) (*Service, error) {
	if len(opts.Agents) == 0 {
		return nil, errors.New("missing Agents")
	}
	if opts.Checkpoints == nil {
		return nil, errors.New("missing Checkpoints")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Service{
		log:        logger,
		agents:     opts.Agents,
		cp:         opts.Checkpoints,
		threads:    opts.Threads,
		router:     NewModeRouter(opts.Classifier, logger),
		translator: Translator{RAGHistoryLimit: opts.RAGHistoryLimit, Logger: logger},
	}, nil
}

type ChatRequest struct {
	ThreadID string
	Question string
	// Mode is optional; empty lets the classifier decide.
	Mode Mode
}

// Turn is a routed chat turn. Events is lazy: nothing runs until it is ranged over, and
// the thread stays locked until the range ends.
type Turn struct {
	Mode   Mode
	Events iter.Seq2[Event, error]
}

// Chat resolves the mode, selects the agent and returns the turn's event stream.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (Turn, error) {
	threadID := strings.TrimSpace(req.ThreadID)
	question := strings.TrimSpace(req.Question)
	if threadID == "" {
		return Turn{}, fmt.Errorf("%w: missing thread_id", ErrInvalidRequest)
	}
	if question == "" {
		return Turn{}, fmt.Errorf("%w: missing question", ErrInvalidRequest)
	}

	mode := s.router.Resolve(ctx, req.Mode, question)
	a, err := SelectAgent(mode, s.agents)
	if err != nil {
		return Turn{}, err
	}
	s.recordThreadMode(ctx, threadID, mode)

	events := func(yield func(Event, error) bool) {
		unlock := s.cp.Lock(threadID)
		defer unlock()

		for ev, err := range s.translator.Stream(ctx, a, question, threadID, mode) {
			if !yield(ev, err) || err != nil {
				return
			}
		}
	}
	return Turn{Mode: mode, Events: events}, nil
}

func (s *Service) recordThreadMode(ctx context.Context, threadID string, mode Mode) {
	if s.threads == nil {
		return
	}
	m := string(mode)
	_, err := s.threads.UpdateThread(ctx, threadID, threadstore.ThreadUpdate{Mode: &m})
	if err != nil && !errors.Is(err, threadstore.ErrThreadNotFound) {
		s.log.Warn("update thread mode failed", "thread_id", threadID, "error", err)
	}
}

// ThreadMessage is one user-visible message of a thread's history.
type ThreadMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	SQLQuery  *string   `json:"sql_query,omitempty"`
	SQLResult *string   `json:"sql_result,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ThreadMessages rebuilds the visible conversation of a thread. Tool results and
// assistant messages that only request tools are skipped; an assistant answer carries
// the last SQL query and result issued since the preceding user message. Messages
// without a timestamp get fallbackCreatedAt.
func (s *Service) ThreadMessages(ctx context.Context, threadID string, fallbackCreatedAt time.Time) ([]ThreadMessage, error) {
	msgs, err := s.cp.Get(ctx, threadID)
	if err != nil {
		return nil, err
	}

	out := make([]ThreadMessage, 0, len(msgs))
	var sqlQuery, sqlResult *string
	for _, msg := range msgs {
		createdAt := msg.CreatedAt
		if createdAt.IsZero() {
			createdAt = fallbackCreatedAt
		}
		text := ExtractText(msg.Content)

		switch msg.Role {
		case llm.RoleUser:
			sqlQuery, sqlResult = nil, nil
			out = append(out, ThreadMessage{ID: msg.ID, Role: string(llm.RoleUser), Content: text, CreatedAt: createdAt})
		case llm.RoleTool:
			if s.toolKind(msg.Name) == tools.KindSQLQuery {
				r := text
				sqlResult = &r
			}
		case llm.RoleAssistant:
			for _, call := range msg.ToolCalls {
				if s.toolKind(call.Name) == tools.KindSQLQuery {
					q := anyToString(call.Args["query"])
					sqlQuery = &q
				}
			}
			if msg.HasToolCalls() && text == "" {
				continue
			}
			out = append(out, ThreadMessage{
				ID:        msg.ID,
				Role:      string(llm.RoleAssistant),
				Content:   text,
				SQLQuery:  sqlQuery,
				SQLResult: sqlResult,
				CreatedAt: createdAt,
			})
			sqlQuery, sqlResult = nil, nil
		}
	}
	return out, nil
}

// ClearThread drops the checkpoint history of a thread.
func (s *Service) ClearThread(ctx context.Context, threadID string) error {
	unlock := s.cp.Lock(threadID)
	defer unlock()
	return s.cp.Delete(ctx, threadID)
}

// toolKind resolves a tool name against every agent; the variants share tool names.
func (s *Service) toolKind(name string) tools.Kind {
	for _, a := range s.agents {
		if k := a.ToolKind(name); k != tools.KindGeneric {
			return k
		}
	}
	return tools.KindGeneric
}
