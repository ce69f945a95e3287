package agent

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/floegence/datachat-agent/internal/ai/checkpoint"
	"github.com/floegence/datachat-agent/internal/ai/llm"
	"github.com/floegence/datachat-agent/internal/ai/tools"
)

type echoTool struct {
	name string
	kind tools.Kind
	err  error
}

func (t echoTool) Definition() tools.Definition {
	return tools.Definition{Name: t.name, Description: "echo", Kind: t.kind}
}

func (t echoTool) Call(_ context.Context, args map[string]any) (string, error) {
	if t.err != nil {
		return "", t.err
	}
	q, _ := args["query"].(string)
	return "echo:" + q, nil
}

func newTestAgent(t *testing.T, model llm.ChatModel, store checkpoint.Store, maxSteps int, ts ...tools.Tool) *Agent {
	t.Helper()

	reg, err := tools.NewRegistry(ts...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	a, err := New(Options{Name: "test", Model: model, SystemPrompt: "be brief", Tools: reg, Checkpoints: store, MaxSteps: maxSteps})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func toolCallMessage(id string, name string, query string) llm.Message {
	return llm.Message{
		Role:      llm.RoleAssistant,
		ToolCalls: []llm.ToolCall{{ID: id, Name: name, Args: map[string]any{"query": query}}},
	}
}

func TestStreamYieldsCumulativeSnapshots(t *testing.T) {
	t.Parallel()

	model := llm.NewScriptedModel(
		llm.ScriptedResponse{Message: toolCallMessage("c1", "echo", "SELECT 1")},
		llm.ScriptedResponse{Message: llm.AssistantMessage("done")},
	)
	store := checkpoint.NewMemory()
	a := newTestAgent(t, model, store, 0, echoTool{name: "echo", kind: tools.KindSQLQuery})

	var sizes []int
	var last []llm.Message
	for msgs, err := range a.Stream(context.Background(), "t1", []llm.Message{llm.UserMessage("hi")}) {
		if err != nil {
			t.Fatalf("Stream: %v", err)
		}
		sizes = append(sizes, len(msgs))
		last = msgs
	}
	if want := []int{1, 2, 3, 4}; len(sizes) != len(want) || sizes[0] != 1 || sizes[3] != 4 {
		t.Fatalf("snapshot sizes=%v, want %v", sizes, want)
	}
	if last[2].Role != llm.RoleTool || last[2].ToolCallID != "c1" || llm.ContentText(last[2].Content) != "echo:SELECT 1" {
		t.Fatalf("tool result=%+v", last[2])
	}
	if last[1].CallID != "scripted_call_1" || last[3].CallID != "scripted_call_2" {
		t.Fatalf("call ids=%q,%q", last[1].CallID, last[3].CallID)
	}
	if a.ToolKind("echo") != tools.KindSQLQuery {
		t.Fatalf("ToolKind=%q", a.ToolKind("echo"))
	}

	persisted, err := a.State(context.Background(), "t1")
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if len(persisted) != 4 {
		t.Fatalf("persisted=%d, want 4", len(persisted))
	}
	for i := range persisted {
		if persisted[i].ID != last[i].ID {
			t.Fatalf("persisted[%d].ID=%q, want %q", i, persisted[i].ID, last[i].ID)
		}
	}

	reqs := model.Requests()
	if len(reqs) != 2 || reqs[0].System != "be brief" || len(reqs[0].Tools) != 1 {
		t.Fatalf("requests=%+v", reqs)
	}
	if len(reqs[1].Messages) != 3 {
		t.Fatalf("second request messages=%d, want 3", len(reqs[1].Messages))
	}
}

func TestStreamContinuesAfterHistory(t *testing.T) {
	t.Parallel()

	store := checkpoint.NewMemory()
	model := llm.NewScriptedModel(
		llm.ScriptedResponse{Message: llm.AssistantMessage("first")},
		llm.ScriptedResponse{Message: llm.AssistantMessage("second")},
	)
	a := newTestAgent(t, model, store, 0)
	ctx := context.Background()

	if _, err := a.Invoke(ctx, "t1", []llm.Message{llm.UserMessage("one")}); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	got, err := a.Invoke(ctx, "t1", []llm.Message{llm.UserMessage("two")})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(got) != 4 || llm.ContentText(got[3].Content) != "second" {
		t.Fatalf("got=%+v", got)
	}
	if n := len(model.Requests()[1].Messages); n != 3 {
		t.Fatalf("history sent=%d, want 3", n)
	}
}

func TestStreamReturnsToolErrorsToModel(t *testing.T) {
	t.Parallel()

	model := llm.NewScriptedModel(
		llm.ScriptedResponse{Message: toolCallMessage("c1", "broken", "x")},
		llm.ScriptedResponse{Message: toolCallMessage("c2", "missing", "x")},
		llm.ScriptedResponse{Message: llm.AssistantMessage("gave up")},
	)
	a := newTestAgent(t, model, checkpoint.NewMemory(), 0, echoTool{name: "broken", err: errors.New("no such column: foo")})

	got, err := a.Invoke(context.Background(), "t1", []llm.Message{llm.UserMessage("q")})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(got) != 6 {
		t.Fatalf("messages=%d, want 6", len(got))
	}
	if text := llm.ContentText(got[2].Content); !strings.HasPrefix(text, "Error:") || !strings.Contains(text, "no such column") {
		t.Fatalf("tool error text=%q", text)
	}
	if text := llm.ContentText(got[4].Content); !strings.HasPrefix(text, "Error:") {
		t.Fatalf("unregistered tool text=%q", text)
	}
}

func TestStreamStopsAtMaxSteps(t *testing.T) {
	t.Parallel()

	model := llm.NewScriptedModel(
		llm.ScriptedResponse{Message: toolCallMessage("c1", "echo", "a")},
		llm.ScriptedResponse{Message: toolCallMessage("c2", "echo", "b")},
		llm.ScriptedResponse{Message: toolCallMessage("c3", "echo", "c")},
	)
	a := newTestAgent(t, model, checkpoint.NewMemory(), 2, echoTool{name: "echo"})

	_, err := a.Invoke(context.Background(), "t1", []llm.Message{llm.UserMessage("loop")})
	if !errors.Is(err, ErrMaxSteps) {
		t.Fatalf("err=%v, want ErrMaxSteps", err)
	}
	if n := len(model.Requests()); n != 2 {
		t.Fatalf("model calls=%d, want 2", n)
	}
}

func TestStreamPropagatesModelError(t *testing.T) {
	t.Parallel()

	boom := errors.New("rate limited")
	model := llm.NewScriptedModel(llm.ScriptedResponse{Err: boom})
	a := newTestAgent(t, model, checkpoint.NewMemory(), 0)

	var snapshots int
	var gotErr error
	for _, err := range a.Stream(context.Background(), "t1", []llm.Message{llm.UserMessage("q")}) {
		if err != nil {
			gotErr = err
			break
		}
		snapshots++
	}
	if !errors.Is(gotErr, boom) {
		t.Fatalf("err=%v, want %v", gotErr, boom)
	}
	if snapshots != 1 {
		t.Fatalf("snapshots before error=%d, want 1", snapshots)
	}
}

func TestStreamHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	model := llm.NewScriptedModel(llm.ScriptedResponse{Message: llm.AssistantMessage("never")})
	a := newTestAgent(t, model, checkpoint.NewMemory(), 0)

	var gotErr error
	for _, err := range a.Stream(ctx, "t1", []llm.Message{llm.UserMessage("q")}) {
		if err != nil {
			gotErr = err
			break
		}
		cancel()
	}
	if !errors.Is(gotErr, context.Canceled) {
		t.Fatalf("err=%v, want context.Canceled", gotErr)
	}
	if n := len(model.Requests()); n != 0 {
		t.Fatalf("model calls=%d, want 0", n)
	}
}

func TestModelEndObserverSeesEveryCall(t *testing.T) {
	t.Parallel()

	model := llm.NewScriptedModel(
		llm.ScriptedResponse{Message: toolCallMessage("c1", "echo", "a"), LLMOutput: map[string]any{"token_usage": map[string]any{"prompt_tokens": 10}}},
		llm.ScriptedResponse{Message: llm.AssistantMessage("ok")},
	)
	a := newTestAgent(t, model, checkpoint.NewMemory(), 0, echoTool{name: "echo"})

	var ids []string
	_, err := a.Invoke(context.Background(), "t1", []llm.Message{llm.UserMessage("q")}, WithModelEndObserver(func(r llm.Response) {
		ids = append(ids, r.Message.CallID)
	}))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(ids) != 2 || ids[0] != "scripted_call_1" || ids[1] != "scripted_call_2" {
		t.Fatalf("observed=%v", ids)
	}
}

func TestSanitizeHistoryDropsDanglingToolMessages(t *testing.T) {
	t.Parallel()

	msgs := []llm.Message{
		llm.ToolResultMessage("old", "sql_db_query", "[(1,)]"),
		llm.UserMessage("q"),
		{Role: llm.RoleAssistant, Content: llm.TextContent("checking"), ToolCalls: []llm.ToolCall{{ID: "a", Name: "x"}, {ID: "b", Name: "y"}}},
		llm.ToolResultMessage("a", "x", "ok"),
		toolCallMessage("c", "x", "q"),
		llm.AssistantMessage("final"),
	}
	got := SanitizeHistory(msgs)
	if len(got) != 3 {
		t.Fatalf("len=%d, want 3: %+v", len(got), got)
	}
	if got[0].Role != llm.RoleUser {
		t.Fatalf("got[0]=%+v", got[0])
	}
	if got[1].HasToolCalls() || llm.ContentText(got[1].Content) != "checking" {
		t.Fatalf("got[1]=%+v", got[1])
	}
	if llm.ContentText(got[2].Content) != "final" {
		t.Fatalf("got[2]=%+v", got[2])
	}
	if !msgs[2].HasToolCalls() {
		t.Fatalf("input was mutated")
	}
}

type staticRetriever struct{}

func (staticRetriever) Retrieve(context.Context, string, int) ([]tools.Passage, error) {
	return []tools.Passage{{Filename: "policy.pdf", Page: 2, Content: "Refunds take 14 days."}}, nil
}

func TestBuildRegistry(t *testing.T) {
	t.Parallel()

	db, err := tools.OpenDatabase(context.Background(), filepath.Join(t.TempDir(), "empty.db"), tools.DatabaseOptions{ReadOnly: true})
	if err != nil {
		t.Fatalf("OpenDatabase: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	reg, err := Build(BuildOptions{
		Model:        llm.NewScriptedModel(),
		Database:     db,
		Retriever:    staticRetriever{},
		Checkpoints:  checkpoint.NewMemory(),
		TopK:         7,
		QueryChecker: true,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(reg) != 3 {
		t.Fatalf("registry size=%d, want 3", len(reg))
	}

	sqlAgent := reg[NameSQL]
	if !strings.Contains(sqlAgent.SystemPrompt(), "syntactically correct sqlite query") || !strings.Contains(sqlAgent.SystemPrompt(), "at most 7 results") {
		t.Fatalf("sql prompt=%q", sqlAgent.SystemPrompt())
	}
	if got := strings.Join(sqlAgent.ToolNames(), ","); got != "sql_db_query,sql_db_schema,sql_db_list_tables,sql_db_query_checker" {
		t.Fatalf("sql tools=%s", got)
	}
	if got := strings.Join(reg[NameRAG].ToolNames(), ","); got != tools.ToolRetrieveContext {
		t.Fatalf("rag tools=%s", got)
	}
	hybrid := reg[NameHybrid]
	if len(hybrid.ToolNames()) != 5 || hybrid.ToolKind(tools.ToolRetrieveContext) != tools.KindRetrieval || hybrid.ToolKind("sql_db_query") != tools.KindSQLQuery {
		t.Fatalf("hybrid tools=%v", hybrid.ToolNames())
	}
	if reg[NameRAG].SystemPrompt() == sqlAgent.SystemPrompt() || hybrid.SystemPrompt() == sqlAgent.SystemPrompt() {
		t.Fatalf("prompts are not distinct")
	}

	if _, err := Build(BuildOptions{Database: db, Checkpoints: checkpoint.NewMemory()}); err == nil {
		t.Fatalf("Build without model: want error")
	}
}
