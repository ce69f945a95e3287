package ai

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/floegence/datachat-agent/internal/ai/agent"
	"github.com/floegence/datachat-agent/internal/ai/checkpoint"
	"github.com/floegence/datachat-agent/internal/ai/llm"
	"github.com/floegence/datachat-agent/internal/ai/threadstore"
)

func newTestService(t *testing.T, model llm.ChatModel, classifier Oracle) (*Service, *threadstore.Store, checkpoint.Store) {
	t.Helper()

	ts, err := threadstore.Open(filepath.Join(t.TempDir(), "threads.sqlite"))
	if err != nil {
		t.Fatalf("threadstore.Open: %v", err)
	}
	t.Cleanup(func() { _ = ts.Close() })

	cp := checkpoint.NewMemory()
	a := newTestAgent(t, model, cp)
	svc, err := NewService(Options{
		Logger:      discardLogger(),
		Agents:      agent.Registry{agent.NameSQL: a, agent.NameRAG: a, agent.NameHybrid: a},
		Checkpoints: cp,
		Threads:     ts,
		Classifier:  classifier,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, ts, cp
}

func TestServiceChatValidatesRequest(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t, llm.NewScriptedModel(), nil)
	ctx := context.Background()

	if _, err := svc.Chat(ctx, ChatRequest{Question: "q"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("missing thread err=%v", err)
	}
	if _, err := svc.Chat(ctx, ChatRequest{ThreadID: "t1", Question: "  "}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("missing question err=%v", err)
	}
	if _, err := svc.Chat(ctx, ChatRequest{ThreadID: "t1", Question: "q", Mode: "graph"}); !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("unknown mode err=%v", err)
	}
}

func TestServiceChatRoutesAndRecordsMode(t *testing.T) {
	t.Parallel()

	model := llm.NewScriptedModel(llm.ScriptedResponse{Message: llm.AssistantMessage("from the handbook")})
	svc, ts, _ := newTestService(t, model, fixedOracle("rag", nil, nil))
	ctx := context.Background()

	th, err := ts.CreateThread(ctx, threadstore.Thread{Title: "Docs"})
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	if th.Mode != "sql" {
		t.Fatalf("default mode=%q", th.Mode)
	}

	turn, err := svc.Chat(ctx, ChatRequest{ThreadID: th.ID, Question: "Summarize the handbook"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if turn.Mode != ModeRAG {
		t.Fatalf("mode=%q, want rag", turn.Mode)
	}
	events, err := collect(t, turn.Events)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 2 || events[1].Kind != EventDone {
		t.Fatalf("events=%+v", events)
	}

	got, err := ts.GetThread(ctx, th.ID)
	if err != nil {
		t.Fatalf("GetThread: %v", err)
	}
	if got.Mode != "rag" {
		t.Fatalf("thread mode=%q, want rag", got.Mode)
	}

	// Unknown threads still stream.
	turn, err = svc.Chat(ctx, ChatRequest{ThreadID: "not-in-store", Question: "q", Mode: ModeSQL})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if _, err := collect(t, turn.Events); err == nil {
		t.Fatalf("want script exhausted error")
	}
}

func TestServiceThreadMessages(t *testing.T) {
	t.Parallel()

	svc, _, cp := newTestService(t, llm.NewScriptedModel(), nil)
	ctx := context.Background()

	stamp := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	history := []llm.Message{
		llm.UserMessage("how many albums?"),
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{call("c1", "sql_db_list_tables", nil)}},
		llm.ToolResultMessage("c1", "sql_db_list_tables", "Album"),
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{call("c2", "sql_db_query", map[string]any{"query": "SELECT COUNT(*) FROM Album"})}},
		llm.ToolResultMessage("c2", "sql_db_query", "[(347,)]"),
		llm.AssistantMessage("There are 347 albums."),
		llm.UserMessage("thanks"),
		{Role: llm.RoleAssistant, Content: llm.TextContent("You're welcome."), CreatedAt: stamp},
	}
	if err := cp.Replace(ctx, "t1", history); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	fallback := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	got, err := svc.ThreadMessages(ctx, "t1", fallback)
	if err != nil {
		t.Fatalf("ThreadMessages: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("messages=%+v, want 4", got)
	}
	if got[0].Role != "user" || got[0].Content != "how many albums?" {
		t.Fatalf("got[0]=%+v", got[0])
	}
	answer := got[1]
	if answer.Role != "assistant" || answer.Content != "There are 347 albums." {
		t.Fatalf("got[1]=%+v", answer)
	}
	if answer.SQLQuery == nil || *answer.SQLQuery != "SELECT COUNT(*) FROM Album" {
		t.Fatalf("sql_query=%v", answer.SQLQuery)
	}
	if answer.SQLResult == nil || *answer.SQLResult != "[(347,)]" {
		t.Fatalf("sql_result=%v", answer.SQLResult)
	}
	if got[3].SQLQuery != nil || got[3].SQLResult != nil {
		t.Fatalf("sql fields leaked into a later turn: %+v", got[3])
	}
	if got[0].ID == "" || got[0].CreatedAt.IsZero() {
		t.Fatalf("stored message missing id or time: %+v", got[0])
	}
}

func TestServiceThreadMessagesFallbackTime(t *testing.T) {
	t.Parallel()

	store := checkpoint.NewMemory()
	model := llm.NewScriptedModel()
	a := newTestAgent(t, model, store)
	svc, err := NewService(Options{Logger: discardLogger(), Agents: agent.Registry{agent.NameSQL: a}, Checkpoints: &unstampedStore{Store: store}})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	fallback := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	got, err := svc.ThreadMessages(context.Background(), "t1", fallback)
	if err != nil {
		t.Fatalf("ThreadMessages: %v", err)
	}
	if len(got) != 1 || !got[0].CreatedAt.Equal(fallback) {
		t.Fatalf("got=%+v", got)
	}
}

// unstampedStore returns one message without id or timestamp.
type unstampedStore struct {
	checkpoint.Store
}

func (u *unstampedStore) Get(context.Context, string) ([]llm.Message, error) {
	return []llm.Message{llm.UserMessage("legacy")}, nil
}

func TestServiceClearThread(t *testing.T) {
	t.Parallel()

	svc, _, cp := newTestService(t, llm.NewScriptedModel(), nil)
	ctx := context.Background()
	_ = cp.Append(ctx, "t1", llm.UserMessage("hello"))

	if err := svc.ClearThread(ctx, "t1"); err != nil {
		t.Fatalf("ClearThread: %v", err)
	}
	msgs, _ := cp.Get(ctx, "t1")
	if len(msgs) != 0 {
		t.Fatalf("history=%d, want 0", len(msgs))
	}
}

func TestServiceSerializesTurnsPerThread(t *testing.T) {
	t.Parallel()

	model := llm.NewScriptedModel(
		llm.ScriptedResponse{Message: llm.AssistantMessage("first")},
		llm.ScriptedResponse{Message: llm.AssistantMessage("second")},
	)
	svc, _, cp := newTestService(t, model, nil)
	ctx := context.Background()

	first, err := svc.Chat(ctx, ChatRequest{ThreadID: "t1", Question: "one", Mode: ModeSQL})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	second, err := svc.Chat(ctx, ChatRequest{ThreadID: "t1", Question: "two", Mode: ModeSQL})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	started := make(chan struct{})
	release := make(chan struct{})
	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		for ev, err := range first.Events {
			if err != nil {
				return
			}
			if ev.Kind == EventAnswer {
				close(started)
				<-release
			}
		}
	}()
	<-started

	secondDone := make(chan struct{})
	go func() {
		defer close(secondDone)
		for range second.Events {
		}
	}()

	select {
	case <-secondDone:
		t.Fatalf("second turn ran while the first held the thread")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	<-firstDone
	<-secondDone

	msgs, _ := cp.Get(ctx, "t1")
	if len(msgs) != 4 || ExtractText(msgs[1].Content) != "first" || ExtractText(msgs[3].Content) != "second" {
		t.Fatalf("history=%+v", msgs)
	}
}
