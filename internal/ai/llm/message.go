package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Role identifies the author of a message in a thread transcript.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Content is the body of a message. Providers hand back content in different
// shapes, so it is a closed set of variants:
//
//   - TextContent: plain text
//   - StructuredContent: an object carrying a text field
//   - PartsContent: an ordered list of text parts and plain values
type Content interface {
	isContent()
}

type TextContent string

type StructuredContent struct {
	Text  string         `json:"text"`
	Extra map[string]any `json:"-"`
}

type PartsContent []Part

func (TextContent) isContent()       {}
func (StructuredContent) isContent() {}
func (PartsContent) isContent()      {}

// Part is one element of PartsContent: either TextPart or ValuePart.
type Part interface {
	isPart()
}

type TextPart struct {
	Text string `json:"text"`
}

// ValuePart wraps any non-text element (numbers, raw strings, unknown objects).
type ValuePart struct {
	Value any
}

func (TextPart) isPart()  {}
func (ValuePart) isPart() {}

// ToolCall is a tool invocation request produced by the assistant.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// Message is one entry of a thread transcript.
//
// UsageMetadata and ResponseMetadata are loosely typed on purpose: providers report
// token usage under different key conventions and the token tracker resolves them.
type Message struct {
	ID         string     `json:"id,omitempty"`
	Role       Role       `json:"role"`
	Content    Content    `json:"-"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`

	UsageMetadata    map[string]any `json:"usage_metadata,omitempty"`
	ResponseMetadata map[string]any `json:"response_metadata,omitempty"`
	// CallID identifies the model call that produced an assistant message.
	CallID string `json:"call_id,omitempty"`

	CreatedAt time.Time `json:"created_at,omitzero"`
}

// HasToolCalls reports whether the message requests at least one tool invocation.
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: TextContent(text)}
}

func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: TextContent(text)}
}

func ToolResultMessage(callID string, name string, text string) Message {
	return Message{Role: RoleTool, ToolCallID: callID, Name: name, Content: TextContent(text)}
}

type messageAlias Message

type messageJSON struct {
	messageAlias
	Content json.RawMessage `json:"content,omitempty"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	raw, err := MarshalContent(m.Content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(messageJSON{messageAlias: messageAlias(m), Content: raw})
}

func (m *Message) UnmarshalJSON(b []byte) error {
	var aux messageJSON
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*m = Message(aux.messageAlias)
	content, err := UnmarshalContent(aux.Content)
	if err != nil {
		return fmt.Errorf("message content: %w", err)
	}
	m.Content = content
	return nil
}

// MarshalContent encodes content in its natural wire shape: a JSON string, an object
// with a "text" field, or an array. Nil content encodes as nil.
func MarshalContent(c Content) (json.RawMessage, error) {
	switch v := c.(type) {
	case nil:
		return nil, nil
	case TextContent:
		return json.Marshal(string(v))
	case StructuredContent:
		obj := make(map[string]any, len(v.Extra)+1)
		for k, x := range v.Extra {
			obj[k] = x
		}
		obj["text"] = v.Text
		return json.Marshal(obj)
	case PartsContent:
		items := make([]any, 0, len(v))
		for _, p := range v {
			switch part := p.(type) {
			case TextPart:
				items = append(items, map[string]any{"type": "text", "text": part.Text})
			case ValuePart:
				items = append(items, part.Value)
			}
		}
		return json.Marshal(items)
	default:
		return nil, fmt.Errorf("unsupported content type %T", c)
	}
}

// UnmarshalContent is the inverse of MarshalContent. Objects and array elements are
// treated as text-bearing when they carry a "text" key.
func UnmarshalContent(raw json.RawMessage) (Content, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return TextContent(s), nil
	case '{':
		var obj map[string]any
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, err
		}
		text, ok := obj["text"]
		if !ok {
			return nil, errors.New("object content without text field")
		}
		delete(obj, "text")
		if len(obj) == 0 {
			obj = nil
		}
		return StructuredContent{Text: fmt.Sprint(text), Extra: obj}, nil
	case '[':
		var items []any
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, err
		}
		parts := make(PartsContent, 0, len(items))
		for _, it := range items {
			if obj, ok := it.(map[string]any); ok {
				if text, ok := obj["text"]; ok {
					parts = append(parts, TextPart{Text: fmt.Sprint(text)})
					continue
				}
			}
			parts = append(parts, ValuePart{Value: it})
		}
		return parts, nil
	default:
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return PartsContent{ValuePart{Value: v}}, nil
	}
}

// CloneMessage returns a copy that shares no slices or maps with in.
func CloneMessage(in Message) Message {
	out := in
	if len(in.ToolCalls) > 0 {
		out.ToolCalls = make([]ToolCall, len(in.ToolCalls))
		for i, tc := range in.ToolCalls {
			tc.Args = cloneMap(tc.Args)
			out.ToolCalls[i] = tc
		}
	}
	out.UsageMetadata = cloneMap(in.UsageMetadata)
	out.ResponseMetadata = cloneMap(in.ResponseMetadata)
	switch c := in.Content.(type) {
	case PartsContent:
		out.Content = append(PartsContent(nil), c...)
	case StructuredContent:
		c.Extra = cloneMap(c.Extra)
		out.Content = c
	}
	return out
}

func CloneMessages(in []Message) []Message {
	if in == nil {
		return nil
	}
	out := make([]Message, len(in))
	for i := range in {
		out[i] = CloneMessage(in[i])
	}
	return out
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if nested, ok := v.(map[string]any); ok {
			out[k] = cloneMap(nested)
			continue
		}
		out[k] = v
	}
	return out
}
