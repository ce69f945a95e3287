package ai

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/floegence/datachat-agent/internal/ai/llm"
)

// TokenTracker accumulates token usage for one turn.
//
// Usage arrives on two paths: the usage record embedded in each assistant message and the
// model-end callback. Both carry the model call id, and a call id is counted at most once,
// so a call reported on both paths is not double counted. Records without a call id are
// always counted.
type TokenTracker struct {
	log *slog.Logger

	mu      sync.Mutex
	input   int64
	output  int64
	counted map[string]struct{}
}

func NewTokenTracker(log *slog.Logger) *TokenTracker {
	if log == nil {
		log = slog.Default()
	}
	return &TokenTracker{log: log.With("component", "token_tracker"), counted: map[string]struct{}{}}
}

// ObserveMessage reads msg.UsageMetadata, falling back to
// msg.ResponseMetadata["usage_metadata"]. Missing usage is ignored.
func (t *TokenTracker) ObserveMessage(msg llm.Message) {
	if t == nil {
		return
	}
	usage := msg.UsageMetadata
	if len(usage) == 0 && msg.ResponseMetadata != nil {
		usage = asObject(msg.ResponseMetadata["usage_metadata"])
	}
	if len(usage) == 0 {
		return
	}
	in, out, total := readUsage(usage)
	if in == 0 && out == 0 {
		return
	}
	if !t.add(msg.CallID, in, out) {
		return
	}
	t.log.Info("llm call usage", "source", "message", "input", in, "output", out, "total", total)
}

// ObserveCallback reads LLMOutput["token_usage"], falling back to LLMOutput["usage_metadata"].
func (t *TokenTracker) ObserveCallback(resp llm.Response) {
	if t == nil || resp.LLMOutput == nil {
		return
	}
	usage := asObject(resp.LLMOutput["token_usage"])
	if len(usage) == 0 {
		usage = asObject(resp.LLMOutput["usage_metadata"])
	}
	if len(usage) == 0 {
		return
	}
	in, out, _ := readUsage(usage)
	if in == 0 && out == 0 {
		return
	}
	callID := resp.CallID
	if callID == "" {
		callID = resp.Message.CallID
	}
	if !t.add(callID, in, out) {
		return
	}
	t.log.Info("llm call usage", "source", "callback", "input", in, "output", out)
}

func (t *TokenTracker) add(callID string, in int64, out int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id := strings.TrimSpace(callID); id != "" {
		if _, dup := t.counted[id]; dup {
			return false
		}
		t.counted[id] = struct{}{}
	}
	t.input += in
	t.output += out
	return true
}

// Summary returns the running totals. TotalTokens is always input plus output.
func (t *TokenTracker) Summary() TokenSummary {
	if t == nil {
		return TokenSummary{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return TokenSummary{
		TotalInputTokens:  t.input,
		TotalOutputTokens: t.output,
		TotalTokens:       t.input + t.output,
	}
}

// readUsage resolves generic keys first, then Gemini raw keys, then OpenAI keys.
func readUsage(usage map[string]any) (in int64, out int64, total int64) {
	in = readInt64Field(usage, "input_tokens")
	out = readInt64Field(usage, "output_tokens")
	total = readInt64Field(usage, "total_tokens")

	if in == 0 && out == 0 {
		in = readInt64Field(usage, "prompt_token_count")
		out = readInt64Field(usage, "candidates_token_count")
		total = readInt64Field(usage, "total_token_count")
	}
	if in == 0 && out == 0 {
		in = readInt64Field(usage, "prompt_tokens")
		out = readInt64Field(usage, "completion_tokens")
	}
	if total == 0 {
		total = in + out
	}
	return in, out, total
}
