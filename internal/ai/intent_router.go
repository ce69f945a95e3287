package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/floegence/datachat-agent/internal/ai/agent"
)

// Mode selects the agent variant that handles a turn.
type Mode string

const (
	ModeSQL    Mode = agent.NameSQL
	ModeRAG    Mode = agent.NameRAG
	ModeHybrid Mode = agent.NameHybrid
)

const (
	ModeSourceExplicit      = "explicit"
	ModeSourceModel         = "model"
	ModeSourceDeterministic = "deterministic_fallback"

	questionPreviewRunes = 50
)

var ErrUnknownMode = errors.New("unknown mode")

// Oracle is a single text-in/text-out model call.
type Oracle func(ctx context.Context, prompt string) (string, error)

const classificationPrompt = `You are a router. Classify the user question into ONE category:
- sql: database queries, counts, analysis, filtering, statistics, data retrieval
- rag: document content, policies, procedures, uploaded files, reports
- hybrid: needs both database data AND document content

Examples:
Q: "How many customers are in the database?" → sql
Q: "Show me top 10 products by revenue" → sql
Q: "What does the privacy policy say?" → rag
Q: "Summarize the employee handbook" → rag
Q: "Compare sales data with the Q4 report document" → hybrid
Q: "Do customer counts match what's in the board report?" → hybrid

Question: %s

Respond with ONLY one word: sql, rag, or hybrid`

// modePriority is the match order for classifier output. The first label found wins,
// so "sql and rag" resolves to sql.
var modePriority = []Mode{ModeSQL, ModeRAG, ModeHybrid}

// ParseMode normalizes a client supplied mode. Empty input returns "" and no error.
func ParseMode(raw string) (Mode, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return "", nil
	}
	for _, m := range modePriority {
		if v == string(m) {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, raw)
}

type modeDecision struct {
	Mode   Mode
	Source string
	Reason string
}

// ModeRouter picks the agent variant for a question.
type ModeRouter struct {
	oracle Oracle
	log    *slog.Logger
}

func NewModeRouter(oracle Oracle, log *slog.Logger) *ModeRouter {
	if log == nil {
		log = slog.Default()
	}
	return &ModeRouter{oracle: oracle, log: log.With("component", "intent_classifier")}
}

// Classify asks the oracle for a label. It never fails: oracle errors and unrecognized
// answers fall back to sql.
func (r *ModeRouter) Classify(ctx context.Context, question string) Mode {
	return r.classify(ctx, question).Mode
}

func (r *ModeRouter) classify(ctx context.Context, question string) modeDecision {
	preview := previewRunes(question, questionPreviewRunes)
	if r == nil || r.oracle == nil {
		return modeDecision{Mode: ModeSQL, Source: ModeSourceDeterministic, Reason: "no_classifier"}
	}

	raw, err := r.oracle(ctx, buildClassificationPrompt(question))
	if err != nil {
		r.log.Error("intent classification failed, defaulting to sql", "question", preview, "error", err)
		return modeDecision{Mode: ModeSQL, Source: ModeSourceDeterministic, Reason: "classifier_error"}
	}
	decision, ok := parseClassification(raw)
	if !ok {
		r.log.Warn("unclear intent classification, defaulting to sql", "classification", strings.ToLower(strings.TrimSpace(raw)), "question", preview)
	}
	r.log.Info("intent classified", "mode", decision.Mode, "source", decision.Source, "question", preview)
	return decision
}

// Resolve returns explicit unchanged when set; otherwise it classifies the question.
func (r *ModeRouter) Resolve(ctx context.Context, explicit Mode, question string) Mode {
	if strings.TrimSpace(string(explicit)) != "" {
		return explicit
	}
	return r.Classify(ctx, question)
}

// SelectAgent returns the registered agent for mode.
func SelectAgent(mode Mode, registry agent.Registry) (*agent.Agent, error) {
	a, ok := registry[string(mode)]
	if !ok || a == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	return a, nil
}

func buildClassificationPrompt(question string) string {
	return fmt.Sprintf(classificationPrompt, question)
}

func parseClassification(raw string) (modeDecision, bool) {
	text := strings.ToLower(strings.TrimSpace(raw))
	for _, m := range modePriority {
		if strings.Contains(text, string(m)) {
			return modeDecision{Mode: m, Source: ModeSourceModel, Reason: "label_match"}, true
		}
	}
	return modeDecision{Mode: ModeSQL, Source: ModeSourceDeterministic, Reason: "unrecognized_label"}, false
}
