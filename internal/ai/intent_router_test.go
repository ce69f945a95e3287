package ai

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/floegence/datachat-agent/internal/ai/agent"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedOracle(answer string, err error, calls *int) Oracle {
	return func(_ context.Context, _ string) (string, error) {
		if calls != nil {
			*calls++
		}
		return answer, err
	}
}

func TestClassifyPriorityAndFallback(t *testing.T) {
	t.Parallel()

	cases := []struct {
		answer string
		err    error
		want   Mode
	}{
		{answer: "sql", want: ModeSQL},
		{answer: "  RAG\n", want: ModeRAG},
		{answer: "hybrid", want: ModeHybrid},
		{answer: "This looks like sql and rag", want: ModeSQL},
		{answer: "rag or hybrid", want: ModeRAG},
		{answer: "I am not sure", want: ModeSQL},
		{answer: "", want: ModeSQL},
		{err: errors.New("provider down"), want: ModeSQL},
	}
	for _, tc := range cases {
		r := NewModeRouter(fixedOracle(tc.answer, tc.err, nil), discardLogger())
		if got := r.Classify(context.Background(), "How many customers?"); got != tc.want {
			t.Fatalf("Classify(answer=%q, err=%v)=%q, want %q", tc.answer, tc.err, got, tc.want)
		}
	}
}

func TestClassifyPromptEmbedsQuestion(t *testing.T) {
	t.Parallel()

	var seen string
	r := NewModeRouter(func(_ context.Context, prompt string) (string, error) {
		seen = prompt
		return "rag", nil
	}, discardLogger())
	r.Classify(context.Background(), "What does the privacy policy say?")

	if !strings.Contains(seen, "Question: What does the privacy policy say?") {
		t.Fatalf("prompt missing question: %q", seen)
	}
	if !strings.HasSuffix(seen, "Respond with ONLY one word: sql, rag, or hybrid") {
		t.Fatalf("prompt suffix=%q", seen[len(seen)-60:])
	}
}

func TestClassifyWithoutOracleDefaultsToSQL(t *testing.T) {
	t.Parallel()

	var r *ModeRouter
	if got := r.Classify(context.Background(), "q"); got != ModeSQL {
		t.Fatalf("nil router Classify=%q, want sql", got)
	}
	if got := NewModeRouter(nil, nil).Classify(context.Background(), "q"); got != ModeSQL {
		t.Fatalf("Classify=%q, want sql", got)
	}
}

func TestResolveExplicitModeSkipsClassifier(t *testing.T) {
	t.Parallel()

	calls := 0
	r := NewModeRouter(fixedOracle("sql", nil, &calls), discardLogger())

	if got := r.Resolve(context.Background(), ModeHybrid, "anything"); got != ModeHybrid {
		t.Fatalf("Resolve=%q, want hybrid", got)
	}
	if calls != 0 {
		t.Fatalf("classifier calls=%d, want 0", calls)
	}
	if got := r.Resolve(context.Background(), "", "anything"); got != ModeSQL {
		t.Fatalf("Resolve=%q, want sql", got)
	}
	if calls != 1 {
		t.Fatalf("classifier calls=%d, want 1", calls)
	}
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	if m, err := ParseMode(" Hybrid "); err != nil || m != ModeHybrid {
		t.Fatalf("ParseMode=%q,%v", m, err)
	}
	if m, err := ParseMode(""); err != nil || m != "" {
		t.Fatalf("ParseMode(empty)=%q,%v", m, err)
	}
	if _, err := ParseMode("graph"); !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("ParseMode(graph) err=%v, want ErrUnknownMode", err)
	}
}

func TestSelectAgentUnknownMode(t *testing.T) {
	t.Parallel()

	reg := agent.Registry{}
	if _, err := SelectAgent("graph", reg); !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("err=%v, want ErrUnknownMode", err)
	}
	if _, err := SelectAgent(ModeSQL, reg); !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("err=%v, want ErrUnknownMode for unregistered sql", err)
	}
}
