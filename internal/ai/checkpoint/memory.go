package checkpoint

import (
	"context"
	"sync"
	"time"

	"github.com/floegence/datachat-agent/internal/ai/llm"
	"github.com/google/uuid"
)

// Memory is the in-process Store. History is lost on restart.
type Memory struct {
	Locker

	mu      sync.RWMutex
	threads map[string][]llm.Message
}

func NewMemory() *Memory {
	return &Memory{threads: map[string][]llm.Message{}}
}

var _ Store = (*Memory)(nil)

func (m *Memory) Get(_ context.Context, threadID string) ([]llm.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return llm.CloneMessages(m.threads[threadID]), nil
}

func (m *Memory) Append(_ context.Context, threadID string, msgs ...llm.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range msgs {
		m.threads[threadID] = append(m.threads[threadID], Stamp(llm.CloneMessage(msg)))
	}
	return nil
}

func (m *Memory) Truncate(_ context.Context, threadID string, keep int) ([]llm.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := append([]llm.Message(nil), KeepLast(m.threads[threadID], keep)...)
	if len(kept) == 0 {
		delete(m.threads, threadID)
	} else {
		m.threads[threadID] = kept
	}
	return llm.CloneMessages(kept), nil
}

func (m *Memory) Replace(_ context.Context, threadID string, msgs []llm.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(msgs) == 0 {
		delete(m.threads, threadID)
		return nil
	}
	out := make([]llm.Message, len(msgs))
	for i := range msgs {
		out[i] = Stamp(llm.CloneMessage(msgs[i]))
	}
	m.threads[threadID] = out
	return nil
}

func (m *Memory) Delete(_ context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.threads, threadID)
	return nil
}

// Stamp assigns an id and creation time to a message that has none.
func Stamp(msg llm.Message) llm.Message {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	return msg
}
