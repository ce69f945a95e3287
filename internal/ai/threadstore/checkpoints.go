package threadstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/floegence/datachat-agent/internal/ai/checkpoint"
	"github.com/floegence/datachat-agent/internal/ai/llm"
)

// Checkpoints is a checkpoint.Store persisted in the checkpoint_messages table, so
// conversation history survives restarts.
type Checkpoints struct {
	checkpoint.Locker
	s *Store
}

// Checkpoints returns the sqlite-backed checkpoint store sharing this database.
func (s *Store) Checkpoints() *Checkpoints {
	if s == nil {
		return nil
	}
	return s.cp
}

var _ checkpoint.Store = (*Checkpoints)(nil)

func (c *Checkpoints) ready() error {
	if c == nil || c.s == nil || c.s.db == nil {
		return errors.New("store not initialized")
	}
	return nil
}

func (c *Checkpoints) Get(ctx context.Context, threadID string) ([]llm.Message, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	rows, err := c.s.db.QueryContext(ctx, `
SELECT message_json
FROM checkpoint_messages
WHERE thread_id = ?
ORDER BY seq ASC
`, strings.TrimSpace(threadID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []llm.Message
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var msg llm.Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return nil, fmt.Errorf("decode checkpoint message: %w", err)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (c *Checkpoints) Append(ctx context.Context, threadID string, msgs ...llm.Message) error {
	if err := c.ready(); err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	tx, err := c.s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, msg := range msgs {
		msg = checkpoint.Stamp(msg)
		raw, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("encode checkpoint message: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO checkpoint_messages (thread_id, message_id, role, created_at_unix_ms, message_json)
VALUES (?, ?, ?, ?, ?)
`, strings.TrimSpace(threadID), msg.ID, string(msg.Role), msg.CreatedAt.UnixMilli(), string(raw)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (c *Checkpoints) Truncate(ctx context.Context, threadID string, keep int) ([]llm.Message, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if keep < 0 {
		keep = 0
	}
	threadID = strings.TrimSpace(threadID)
	if _, err := c.s.db.ExecContext(ctx, `
DELETE FROM checkpoint_messages
WHERE thread_id = ? AND seq NOT IN (
  SELECT seq FROM checkpoint_messages WHERE thread_id = ? ORDER BY seq DESC LIMIT ?
)
`, threadID, threadID, keep); err != nil {
		return nil, err
	}
	return c.Get(ctx, threadID)
}

func (c *Checkpoints) Replace(ctx context.Context, threadID string, msgs []llm.Message) error {
	if err := c.Delete(ctx, threadID); err != nil {
		return err
	}
	return c.Append(ctx, threadID, msgs...)
}

func (c *Checkpoints) Delete(ctx context.Context, threadID string) error {
	if err := c.ready(); err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	_, err := c.s.db.ExecContext(ctx, `DELETE FROM checkpoint_messages WHERE thread_id = ?`, strings.TrimSpace(threadID))
	return err
}
