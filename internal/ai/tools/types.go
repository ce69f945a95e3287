package tools

import (
	"context"
	"errors"
	"strings"
)

// Kind tags a tool at registration time with the role it plays in a turn. Stream
// translation switches on the kind, never on the tool name.
type Kind string

const (
	KindGeneric       Kind = "generic"
	KindSQLQuery      Kind = "sql_query"
	KindSQLSchema     Kind = "sql_schema"
	KindSQLListTables Kind = "sql_list_tables"
	KindSQLChecker    Kind = "sql_query_checker"
	KindRetrieval     Kind = "retrieval"
)

// Definition is the static description of a tool.
type Definition struct {
	Name        string
	Description string
	// Parameters is the JSON schema of the arguments object.
	Parameters map[string]any
	Kind       Kind
}

// Tool is a callable capability exposed to the model.
type Tool interface {
	Definition() Definition
	Call(ctx context.Context, args map[string]any) (string, error)
}

// ErrorCode is a stable, machine-readable tool error code.
type ErrorCode string

const (
	ErrorCodeNotFound    ErrorCode = "NOT_FOUND"
	ErrorCodeInvalidArgs ErrorCode = "INVALID_ARGS"
	ErrorCodeReadOnly    ErrorCode = "READ_ONLY"
	ErrorCodeTimeout     ErrorCode = "TIMEOUT"
	ErrorCodeCanceled    ErrorCode = "CANCELED"
	ErrorCodeUnknown     ErrorCode = "UNKNOWN"
)

// ToolError carries structured tool failure metadata.
type ToolError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Hint    string    `json:"hint,omitempty"`
	err     error
}

func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func (e *ToolError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// Text renders the error as tool-result text for the model.
func (e *ToolError) Text() string {
	if e == nil {
		return ""
	}
	out := "Error: " + e.Message
	if e.Hint != "" {
		out += "\n" + e.Hint
	}
	return out
}

// ClassifyError maps a raw tool error to a ToolError.
func ClassifyError(name string, err error) *ToolError {
	if err == nil {
		return nil
	}
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}

	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		msg = "tool failed"
	}
	lower := strings.ToLower(msg)
	out := &ToolError{Code: ErrorCodeUnknown, Message: msg, err: err}

	switch {
	case errors.Is(err, context.DeadlineExceeded) || strings.Contains(lower, "timed out"):
		out.Code = ErrorCodeTimeout
	case errors.Is(err, context.Canceled):
		out.Code = ErrorCodeCanceled
	case errors.Is(err, ErrReadOnly):
		out.Code = ErrorCodeReadOnly
		out.Hint = "Only read-only queries (SELECT, WITH, EXPLAIN) are allowed."
	case errors.Is(err, ErrToolUnregistered):
		out.Code = ErrorCodeNotFound
		out.Hint = name + " is not a valid tool, try one of the available tools."
	case strings.Contains(lower, "no such table"), strings.Contains(lower, "not found"):
		out.Code = ErrorCodeNotFound
		out.Hint = "Use sql_db_list_tables to see the available tables."
	case strings.Contains(lower, "no such column"):
		out.Code = ErrorCodeInvalidArgs
		out.Hint = "Use sql_db_schema to query the correct table fields."
	case strings.Contains(lower, "syntax error"), strings.Contains(lower, "missing argument"):
		out.Code = ErrorCodeInvalidArgs
	}
	return out
}

func stringArg(args map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := args[k]; ok {
			if s, ok := v.(string); ok {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}
