package ai

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"github.com/floegence/datachat-agent/internal/ai/agent"
	"github.com/floegence/datachat-agent/internal/ai/llm"
	"github.com/floegence/datachat-agent/internal/ai/tools"
)

// DefaultRAGHistoryLimit is the number of messages a rag-mode thread keeps before a turn.
const DefaultRAGHistoryLimit = 5

// TurnAgent is the part of an agent the translator drives.
type TurnAgent interface {
	State(ctx context.Context, threadID string) ([]llm.Message, error)
	TrimHistory(ctx context.Context, threadID string, keep int) ([]llm.Message, error)
	ToolKind(name string) tools.Kind
	Stream(ctx context.Context, threadID string, input []llm.Message, opts ...agent.RunOption) iter.Seq2[[]llm.Message, error]
}

var _ TurnAgent = (*agent.Agent)(nil)

// Translator turns an agent's cumulative message snapshots into stream events.
type Translator struct {
	// RAGHistoryLimit caps rag-mode history before each turn. Zero means DefaultRAGHistoryLimit.
	RAGHistoryLimit int
	Logger          *slog.Logger
}

// StreamTurn runs one turn with the default translator.
func StreamTurn(ctx context.Context, a TurnAgent, question string, threadID string, mode Mode) iter.Seq2[Event, error] {
	return Translator{}.Stream(ctx, a, question, threadID, mode)
}

// Stream runs one turn of a on threadID and yields its events. Only messages produced
// during the turn are translated. A completed turn ends with exactly one done event; an
// agent error is yielded as the sequence's error and no done event follows.
func (tr Translator) Stream(ctx context.Context, a TurnAgent, question string, threadID string, mode Mode) iter.Seq2[Event, error] {
	limit := tr.RAGHistoryLimit
	if limit <= 0 {
		limit = DefaultRAGHistoryLimit
	}
	log := tr.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("thread_id", threadID, "mode", mode)

	return func(yield func(Event, error) bool) {
		tracker := NewTokenTracker(log)

		existing, err := a.State(ctx, threadID)
		if err != nil {
			yield(Event{}, fmt.Errorf("read thread state: %w", err))
			return
		}
		prevCount := len(existing)
		if mode == ModeRAG && prevCount > limit {
			kept, err := a.TrimHistory(ctx, threadID, limit)
			if err != nil {
				yield(Event{}, fmt.Errorf("truncate rag history: %w", err))
				return
			}
			log.Debug("rag history truncated", "from", prevCount, "to", len(kept))
			prevCount = len(kept)
		}

		input := []llm.Message{llm.UserMessage(question)}
		for msgs, err := range a.Stream(ctx, threadID, input, agent.WithModelEndObserver(tracker.ObserveCallback)) {
			if err != nil {
				yield(Event{}, err)
				return
			}
			if prevCount > len(msgs) {
				prevCount = len(msgs)
			}
			fresh := msgs[prevCount:]
			prevCount = len(msgs)

			for _, msg := range fresh {
				tracker.ObserveMessage(msg)
				for _, ev := range translateMessage(a, msg) {
					if !yield(ev, nil) {
						return
					}
				}
			}
		}

		summary := tracker.Summary()
		log.Info("turn complete",
			"total_input_tokens", summary.TotalInputTokens,
			"total_output_tokens", summary.TotalOutputTokens,
			"total_tokens", summary.TotalTokens,
		)
		yield(doneEvent(summary), nil)
	}
}

func translateMessage(a TurnAgent, msg llm.Message) []Event {
	switch msg.Role {
	case llm.RoleAssistant:
		if msg.HasToolCalls() {
			out := make([]Event, 0, len(msg.ToolCalls))
			for _, call := range msg.ToolCalls {
				switch a.ToolKind(call.Name) {
				case tools.KindSQLQuery:
					out = append(out, stepEvent(StepSQLQuery, anyToString(call.Args["query"])))
				case tools.KindRetrieval:
					out = append(out, stepEvent(StepThinking, searchingDocumentsMessage))
				default:
					out = append(out, stepEvent(StepThinking, "Using tool: "+call.Name))
				}
			}
			return out
		}
		if text := ExtractText(msg.Content); text != "" {
			return []Event{answerEvent(text)}
		}
		return nil
	case llm.RoleTool:
		text := ExtractText(msg.Content)
		switch a.ToolKind(msg.Name) {
		case tools.KindSQLQuery:
			return []Event{stepEvent(StepSQLResult, text)}
		case tools.KindRetrieval:
			return []Event{stepEvent(StepSource, text)}
		default:
			return []Event{stepEvent(StepThinking, text)}
		}
	default:
		return nil
	}
}
