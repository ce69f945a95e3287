// Package agent runs a tool-calling (ReAct) loop over a checkpointed conversation.
package agent

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/floegence/datachat-agent/internal/ai/checkpoint"
	"github.com/floegence/datachat-agent/internal/ai/llm"
	"github.com/floegence/datachat-agent/internal/ai/tools"
)

const DefaultMaxSteps = 25

var ErrMaxSteps = errors.New("agent stopped after reaching the step limit")

type Options struct {
	Name         string
	Model        llm.ChatModel
	SystemPrompt string
	Tools        *tools.Registry
	Checkpoints  checkpoint.Store
	// MaxSteps caps model calls per turn. Zero means DefaultMaxSteps.
	MaxSteps int
	Logger   *slog.Logger
}

// Agent is immutable after New and safe for concurrent turns on different threads.
type Agent struct {
	name     string
	model    llm.ChatModel
	system   string
	tools    *tools.Registry
	store    checkpoint.Store
	maxSteps int
	log      *slog.Logger
}

func New(opts Options) (*Agent, error) {
	if opts.Model == nil {
		return nil, errors.New("model is required")
	}
	if opts.Checkpoints == nil {
		return nil, errors.New("checkpoint store is required")
	}
	if opts.Tools == nil {
		reg, err := tools.NewRegistry()
		if err != nil {
			return nil, err
		}
		opts.Tools = reg
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Agent{
		name:     strings.TrimSpace(opts.Name),
		model:    opts.Model,
		system:   opts.SystemPrompt,
		tools:    opts.Tools,
		store:    opts.Checkpoints,
		maxSteps: opts.MaxSteps,
		log:      log.With("agent", opts.Name),
	}, nil
}

func (a *Agent) Name() string { return a.name }

func (a *Agent) SystemPrompt() string { return a.system }

// ToolNames lists the tools this agent may call, in registration order.
func (a *Agent) ToolNames() []string { return a.tools.Names() }

// ToolKind returns the registered kind of a tool name.
func (a *Agent) ToolKind(name string) tools.Kind { return a.tools.Kind(name) }

// State returns the persisted history of a thread.
func (a *Agent) State(ctx context.Context, threadID string) ([]llm.Message, error) {
	return a.store.Get(ctx, threadID)
}

// TrimHistory keeps only the last keep messages of a thread and returns them.
func (a *Agent) TrimHistory(ctx context.Context, threadID string, keep int) ([]llm.Message, error) {
	return a.store.Truncate(ctx, threadID, keep)
}

// RunOption customizes one turn.
type RunOption func(*runConfig)

type runConfig struct {
	onModelEnd []func(llm.Response)
}

// WithModelEndObserver registers fn to be called after every completed model call.
func WithModelEndObserver(fn func(llm.Response)) RunOption {
	return func(c *runConfig) {
		if fn != nil {
			c.onModelEnd = append(c.onModelEnd, fn)
		}
	}
}

// Stream runs one turn and yields the full cumulative message list of the thread:
// once with the input appended, after every model call, and after every batch of tool
// results. New messages are persisted as they are produced.
//
// The sequence ends after an assistant message without tool calls. Model errors and
// context cancellation are yielded as errors and end the sequence; tool errors are fed
// back to the model as "Error: ..." tool results.
func (a *Agent) Stream(ctx context.Context, threadID string, input []llm.Message, opts ...RunOption) iter.Seq2[[]llm.Message, error] {
	return func(yield func([]llm.Message, error) bool) {
		cfg := runConfig{}
		for _, opt := range opts {
			opt(&cfg)
		}

		history, err := a.store.Get(ctx, threadID)
		if err != nil {
			yield(nil, fmt.Errorf("load history: %w", err))
			return
		}
		stamped := make([]llm.Message, 0, len(input))
		for _, msg := range input {
			stamped = append(stamped, checkpoint.Stamp(msg))
		}
		if err := a.store.Append(ctx, threadID, stamped...); err != nil {
			yield(nil, fmt.Errorf("persist input: %w", err))
			return
		}
		msgs := append(history, stamped...)
		if !yield(llm.CloneMessages(msgs), nil) {
			return
		}

		specs := a.tools.Specs()
		for step := 1; step <= a.maxSteps; step++ {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			resp, err := a.model.Generate(ctx, llm.Request{
				System:   a.system,
				Messages: SanitizeHistory(msgs),
				Tools:    specs,
			})
			if err != nil {
				yield(nil, fmt.Errorf("model call: %w", err))
				return
			}
			assistant := resp.Message
			assistant.Role = llm.RoleAssistant
			if assistant.CallID == "" {
				assistant.CallID = resp.CallID
			}
			assistant = checkpoint.Stamp(assistant)
			resp.Message = assistant
			for _, fn := range cfg.onModelEnd {
				fn(resp)
			}

			if err := a.store.Append(ctx, threadID, assistant); err != nil {
				yield(nil, fmt.Errorf("persist assistant message: %w", err))
				return
			}
			msgs = append(msgs, assistant)
			if !yield(llm.CloneMessages(msgs), nil) {
				return
			}
			if !assistant.HasToolCalls() {
				return
			}

			results := make([]llm.Message, 0, len(assistant.ToolCalls))
			for _, call := range assistant.ToolCalls {
				out, err := a.tools.Execute(ctx, call.Name, call.Args)
				if err != nil {
					if ctxErr := ctx.Err(); ctxErr != nil {
						yield(nil, ctxErr)
						return
					}
					te := tools.ClassifyError(call.Name, err)
					a.log.Warn("tool call failed", "tool", call.Name, "code", te.Code, "error", te.Message)
					out = te.Text()
				}
				results = append(results, checkpoint.Stamp(llm.ToolResultMessage(call.ID, call.Name, out)))
			}
			if err := a.store.Append(ctx, threadID, results...); err != nil {
				yield(nil, fmt.Errorf("persist tool results: %w", err))
				return
			}
			msgs = append(msgs, results...)
			if !yield(llm.CloneMessages(msgs), nil) {
				return
			}
		}
		yield(nil, fmt.Errorf("%w (%d)", ErrMaxSteps, a.maxSteps))
	}
}

// Invoke runs one turn to completion and returns the final message list.
func (a *Agent) Invoke(ctx context.Context, threadID string, input []llm.Message, opts ...RunOption) ([]llm.Message, error) {
	var last []llm.Message
	for msgs, err := range a.Stream(ctx, threadID, input, opts...) {
		if err != nil {
			return last, err
		}
		last = msgs
	}
	return last, nil
}

// SanitizeHistory drops messages that would make a provider reject the transcript:
// tool results whose call is not in the history (left behind by truncation) and
// assistant tool calls that never got a result.
func SanitizeHistory(msgs []llm.Message) []llm.Message {
	requested := map[string]struct{}{}
	answered := map[string]struct{}{}
	for _, m := range msgs {
		switch m.Role {
		case llm.RoleAssistant:
			for _, tc := range m.ToolCalls {
				requested[tc.ID] = struct{}{}
			}
		case llm.RoleTool:
			answered[m.ToolCallID] = struct{}{}
		}
	}

	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case llm.RoleTool:
			if _, ok := requested[m.ToolCallID]; !ok {
				continue
			}
		case llm.RoleAssistant:
			if !m.HasToolCalls() {
				break
			}
			complete := true
			for _, tc := range m.ToolCalls {
				if _, ok := answered[tc.ID]; !ok {
					complete = false
					break
				}
			}
			if complete {
				break
			}
			if strings.TrimSpace(llm.ContentText(m.Content)) == "" {
				continue
			}
			m = llm.CloneMessage(m)
			m.ToolCalls = nil
		}
		out = append(out, m)
	}
	// Results of a stripped assistant message are orphans now.
	if len(out) != len(msgs) {
		kept := map[string]struct{}{}
		for _, m := range out {
			for _, tc := range m.ToolCalls {
				kept[tc.ID] = struct{}{}
			}
		}
		filtered := out[:0]
		for _, m := range out {
			if m.Role == llm.RoleTool {
				if _, ok := kept[m.ToolCallID]; !ok {
					continue
				}
			}
			filtered = append(filtered, m)
		}
		out = filtered
	}
	return out
}
