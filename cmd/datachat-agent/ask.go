package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/google/uuid"

	"github.com/floegence/datachat-agent/internal/ai"
	"github.com/floegence/datachat-agent/internal/app"
)

// AskCmd runs one chat turn without the HTTP server.
// Usage: datachat-agent ask --mode sql "How many artists are there?"
type AskCmd struct {
	configPath

	Thread string `short:"t" long:"thread" description:"thread id; a new one is generated when empty"`
	Mode   string `short:"m" long:"mode" description:"sql|rag|hybrid; empty lets the router decide"`
	JSON   bool   `long:"json" description:"print raw event payloads as JSON lines"`

	Args struct {
		Question []string `positional-arg-name:"QUESTION" required:"yes"`
	} `positional-args:"yes"`
}

func (c *AskCmd) Execute(_ []string) error {
	mode, err := ai.ParseMode(c.Mode)
	if err != nil {
		return err
	}
	question := strings.TrimSpace(strings.Join(c.Args.Question, " "))
	if question == "" {
		return fmt.Errorf("missing question")
	}
	threadID := strings.TrimSpace(c.Thread)
	if threadID == "" {
		threadID = uuid.NewString()
	}

	cfg, log, err := loadRuntime(c.path)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := app.New(ctx, cfg, log, app.Deps{})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	turn, err := a.Chat().Chat(ctx, ai.ChatRequest{ThreadID: threadID, Question: question, Mode: mode})
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "thread %s, mode %s\n", threadID, turn.Mode)
	return printEvents(os.Stdout, turn, c.JSON)
}

func printEvents(w io.Writer, turn ai.Turn, raw bool) error {
	for ev, err := range turn.Events {
		if err != nil {
			return err
		}
		if raw {
			b, err := json.Marshal(ev)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s %s\n", ev.Kind, b)
			continue
		}
		switch ev.Kind {
		case ai.EventStep:
			fmt.Fprintf(w, "[%s] %s\n", ev.Type, ev.Content)
		case ai.EventAnswer:
			fmt.Fprintf(w, "\n%s\n", ev.Content)
		case ai.EventDone:
			fmt.Fprintf(w, "\ntokens: %d in, %d out, %d total\n", ev.Usage.TotalInputTokens, ev.Usage.TotalOutputTokens, ev.Usage.TotalTokens)
		}
	}
	return nil
}
