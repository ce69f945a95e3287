// Package checkpoint holds per-thread conversation history shared by every agent variant.
package checkpoint

import (
	"context"
	"sync"

	"github.com/floegence/datachat-agent/internal/ai/llm"
)

// Store is a keyed, append-mostly history store.
//
// Lock serializes turns on one thread id. It does not guard individual calls; every
// method is safe for concurrent use on its own.
type Store interface {
	Get(ctx context.Context, threadID string) ([]llm.Message, error)
	Append(ctx context.Context, threadID string, msgs ...llm.Message) error
	// Truncate keeps the last keep messages and returns them.
	Truncate(ctx context.Context, threadID string, keep int) ([]llm.Message, error)
	Replace(ctx context.Context, threadID string, msgs []llm.Message) error
	Delete(ctx context.Context, threadID string) error
	Lock(threadID string) (unlock func())
}

// Locker hands out one mutex per thread id. Entries are dropped when no holder or waiter remains.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*threadLock
}

type threadLock struct {
	mu   sync.Mutex
	refs int
}

func (l *Locker) Lock(threadID string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = map[string]*threadLock{}
	}
	tl := l.locks[threadID]
	if tl == nil {
		tl = &threadLock{}
		l.locks[threadID] = tl
	}
	tl.refs++
	l.mu.Unlock()

	tl.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			tl.mu.Unlock()
			l.mu.Lock()
			tl.refs--
			if tl.refs == 0 {
				delete(l.locks, threadID)
			}
			l.mu.Unlock()
		})
	}
}

// KeepLast returns the tail of msgs with at most keep entries.
func KeepLast(msgs []llm.Message, keep int) []llm.Message {
	if keep < 0 {
		keep = 0
	}
	if len(msgs) <= keep {
		return msgs
	}
	return msgs[len(msgs)-keep:]
}
