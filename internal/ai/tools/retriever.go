package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const ToolRetrieveContext = "retrieve_context"

const noDocumentsFound = "No relevant documents found."

// Passage is one retrieved document chunk.
type Passage struct {
	Filename string
	Page     int
	Content  string
}

// Retriever performs similarity search over uploaded documents.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]Passage, error)
}

// RetrieverTool exposes a Retriever to the model.
func RetrieverTool(r Retriever, k int) Tool {
	if k <= 0 {
		k = 4
	}
	return &retrieveTool{retriever: r, k: k}
}

type retrieveTool struct {
	retriever Retriever
	k         int
}

func (t *retrieveTool) Definition() Definition {
	return Definition{
		Name:        ToolRetrieveContext,
		Description: "Search the uploaded documents for passages relevant to the query. Returns matching passages with their source filename and page.",
		Parameters:  objectSchema(map[string]any{"query": stringProp("The search query.")}, "query"),
		Kind:        KindRetrieval,
	}
}

func (t *retrieveTool) Call(ctx context.Context, args map[string]any) (string, error) {
	if t.retriever == nil {
		return "", errors.New("no document store configured")
	}
	query := stringArg(args, "query")
	if query == "" {
		return "", errors.New("missing argument: query")
	}
	passages, err := t.retriever.Retrieve(ctx, query, t.k)
	if err != nil {
		return "", err
	}
	return FormatPassages(passages), nil
}

// FormatPassages renders passages as "Source: <file> (page <n>)\nContent: <text>" blocks.
func FormatPassages(passages []Passage) string {
	if len(passages) == 0 {
		return noDocumentsFound
	}
	blocks := make([]string, 0, len(passages))
	for _, p := range passages {
		name := strings.TrimSpace(p.Filename)
		if name == "" {
			name = "unknown"
		}
		blocks = append(blocks, fmt.Sprintf("Source: %s (page %d)\nContent: %s", name, p.Page, strings.TrimSpace(p.Content)))
	}
	return strings.Join(blocks, "\n\n")
}
