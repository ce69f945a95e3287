package ai

import "encoding/json"

// EventKind is the SSE event name of a stream event.
type EventKind string

const (
	EventStep   EventKind = "step"
	EventAnswer EventKind = "answer"
	EventDone   EventKind = "done"
)

// Step and answer subtypes.
const (
	StepThinking  = "thinking"
	StepSQLQuery  = "sql_query"
	StepSQLResult = "sql_result"
	StepSource    = "source"
	AnswerFinal   = "final"
)

const (
	StatusComplete = "complete"

	searchingDocumentsMessage = "Searching uploaded documents..."
)

// TokenSummary is the accumulated token usage of one turn.
type TokenSummary struct {
	TotalInputTokens  int64 `json:"total_input_tokens"`
	TotalOutputTokens int64 `json:"total_output_tokens"`
	TotalTokens       int64 `json:"total_tokens"`
}

// Event is one unit of the chat stream. Step and answer events carry Type and Content;
// the done event carries Status and Usage.
type Event struct {
	Kind    EventKind
	Type    string
	Content string

	Status string
	Usage  TokenSummary
}

func stepEvent(typ string, content string) Event {
	return Event{Kind: EventStep, Type: typ, Content: content}
}

func answerEvent(content string) Event {
	return Event{Kind: EventAnswer, Type: AnswerFinal, Content: content}
}

func doneEvent(usage TokenSummary) Event {
	return Event{Kind: EventDone, Status: StatusComplete, Usage: usage}
}

type contentPayload struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type donePayload struct {
	Status string `json:"status"`
	TokenSummary
}

// MarshalJSON encodes the event's data payload, the part that follows "data:" on the wire.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Kind == EventDone {
		return json.Marshal(donePayload{Status: e.Status, TokenSummary: e.Usage})
	}
	return json.Marshal(contentPayload{Type: e.Type, Content: e.Content})
}
