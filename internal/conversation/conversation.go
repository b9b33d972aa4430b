// Package conversation implements the conversation writer described in
// spec.md §4.10: on each message pair it writes two rows (user, then
// assistant) to the conversations table. Writes are sequential and
// abort the whole message if the user-row write fails.
package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/store"
	"github.com/kaisan-axrail/mbppchatbot-sub000/resilience"
)

const (
	attrSessionID = "session_id"
	attrMessageID = "message_id"
	attrRole      = "role"
	attrContent   = "content"
	attrTimestamp = "timestamp"
)

// Turn is one user/assistant message pair to persist.
type Turn struct {
	SessionID        string
	UserContent      string
	AssistantContent string
}

// Writer writes conversation turns to the conversations table.
type Writer struct {
	kv       store.KV
	table    string
	executor *resilience.Executor
}

// New builds a Writer.
func New(kv store.KV, table string, executor *resilience.Executor) *Writer {
	if executor == nil {
		executor = resilience.NewExecutor(
			resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.NamedBreakerConfig(resilience.ServiceKV, nil))),
			resilience.WithRetry(resilience.NewRetry(resilience.NamedRetryConfig(resilience.ServiceKV, nil))),
		)
	}
	return &Writer{kv: kv, table: table, executor: executor}
}

// Write persists the user row, then the assistant row. If the user-row
// write fails the assistant row is never attempted and the error is
// returned so the dispatcher can abort the whole message (spec.md §4.10,
// §8's "no orphan assistant row" invariant).
func (w *Writer) Write(ctx context.Context, turn Turn) error {
	now := time.Now().UTC()

	if err := w.putRow(ctx, turn.SessionID, "user", turn.UserContent, now); err != nil {
		return fmt.Errorf("conversation: write user row: %w", err)
	}
	if err := w.putRow(ctx, turn.SessionID, "assistant", turn.AssistantContent, now.Add(time.Millisecond)); err != nil {
		return fmt.Errorf("conversation: write assistant row: %w", err)
	}
	return nil
}

func (w *Writer) putRow(ctx context.Context, sessionID, role, content string, ts time.Time) error {
	item := store.Item{
		attrSessionID: sessionID,
		attrMessageID: uuid.NewString(),
		attrRole:      role,
		attrContent:   content,
		attrTimestamp: ts.Format(time.RFC3339Nano),
	}
	return w.executor.Execute(ctx, func(ctx context.Context) error {
		return w.kv.Put(ctx, w.table, item, 0)
	})
}
