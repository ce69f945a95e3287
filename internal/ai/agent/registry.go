package agent

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/floegence/datachat-agent/internal/ai/checkpoint"
	"github.com/floegence/datachat-agent/internal/ai/llm"
	"github.com/floegence/datachat-agent/internal/ai/tools"
)

// Registry keys.
const (
	NameSQL    = "sql"
	NameRAG    = "rag"
	NameHybrid = "hybrid"
)

// Registry holds the three agent variants by name.
type Registry map[string]*Agent

type BuildOptions struct {
	Model       llm.ChatModel
	Database    *tools.Database
	Retriever   tools.Retriever
	Checkpoints checkpoint.Store

	// TopK is the default row limit given to the SQL prompt.
	TopK int
	// RetrievalK is the number of passages retrieve_context returns.
	RetrievalK int
	// QueryChecker enables sql_db_query_checker, which costs one extra model call.
	QueryChecker bool
	MaxSteps     int
	Logger       *slog.Logger
}

// Build constructs the sql, rag and hybrid agents. All three share opts.Checkpoints, so
// a thread keeps one history whichever variant handles a turn.
func Build(opts BuildOptions) (Registry, error) {
	if opts.Model == nil {
		return nil, errors.New("model is required")
	}
	if opts.Database == nil {
		return nil, errors.New("database is required")
	}
	if opts.Checkpoints == nil {
		return nil, errors.New("checkpoint store is required")
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}

	var checker tools.Oracle
	if opts.QueryChecker {
		checker = tools.Oracle(llm.Oracle(opts.Model))
	}
	sqlTools, err := tools.NewRegistry(tools.SQLToolkit(opts.Database, checker)...)
	if err != nil {
		return nil, fmt.Errorf("sql tools: %w", err)
	}
	ragTools, err := tools.NewRegistry(tools.RetrieverTool(opts.Retriever, opts.RetrievalK))
	if err != nil {
		return nil, fmt.Errorf("rag tools: %w", err)
	}
	hybridTools, err := tools.Merge(sqlTools, ragTools)
	if err != nil {
		return nil, fmt.Errorf("hybrid tools: %w", err)
	}

	dialect := opts.Database.Dialect()
	specs := []struct {
		name   string
		prompt string
		tools  *tools.Registry
	}{
		{NameSQL, SQLPrompt(dialect, opts.TopK), sqlTools},
		{NameRAG, RAGPrompt(), ragTools},
		{NameHybrid, HybridPrompt(dialect, opts.TopK), hybridTools},
	}

	out := make(Registry, len(specs))
	for _, s := range specs {
		a, err := New(Options{
			Name:         s.name,
			Model:        opts.Model,
			SystemPrompt: s.prompt,
			Tools:        s.tools,
			Checkpoints:  opts.Checkpoints,
			MaxSteps:     opts.MaxSteps,
			Logger:       opts.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("build %s agent: %w", s.name, err)
		}
		out[s.name] = a
	}
	return out, nil
}
