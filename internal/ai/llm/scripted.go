package llm

import (
	"context"
	"fmt"
	"sync"
)

// ScriptedResponse configures one model call in a scripted sequence.
type ScriptedResponse struct {
	Message   Message
	LLMOutput map[string]any
	Err       error
}

// ScriptedModel is a deterministic ChatModel for tests. It also records every request.
type ScriptedModel struct {
	mu        sync.Mutex
	index     int
	responses []ScriptedResponse
	requests  []Request
}

func NewScriptedModel(responses ...ScriptedResponse) *ScriptedModel {
	cloned := make([]ScriptedResponse, len(responses))
	copy(cloned, responses)
	return &ScriptedModel{responses: cloned}
}

var _ ChatModel = (*ScriptedModel)(nil)

func (m *ScriptedModel) Generate(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, Request{
		System:   req.System,
		Messages: CloneMessages(req.Messages),
		Tools:    append([]ToolSpec(nil), req.Tools...),
	})
	if m.index >= len(m.responses) {
		return Response{}, fmt.Errorf("script exhausted at step %d", m.index+1)
	}
	current := m.responses[m.index]
	m.index++
	if current.Err != nil {
		return Response{}, current.Err
	}
	msg := CloneMessage(current.Message)
	if msg.Role == "" {
		msg.Role = RoleAssistant
	}
	if msg.CallID == "" {
		msg.CallID = fmt.Sprintf("scripted_call_%d", m.index)
	}
	return Response{Message: msg, CallID: msg.CallID, LLMOutput: cloneMap(current.LLMOutput)}, nil
}

// Requests returns a copy of the requests seen so far.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}
