// Package analytics implements the best-effort analytics writer
// described in spec.md §4.10: record_query/record_tool/record_session,
// all isolated from the user-visible path — any failure is logged and
// swallowed.
package analytics

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/store"
	"github.com/kaisan-axrail/mbppchatbot-sub000/observe"
	"github.com/kaisan-axrail/mbppchatbot-sub000/resilience"
)

const (
	attrDate      = "date"
	attrEventID   = "event_id"
	attrEventType = "event_type"
	attrSessionID = "session_id"
	attrTimestamp = "timestamp"
	attrDetails   = "details"
)

// Writer records analytics events. Every method is best-effort: a store
// failure is logged and swallowed, never propagated to the caller.
type Writer struct {
	kv       store.KV
	table    string
	executor *resilience.Executor
	logger   observe.Logger
	nowFunc  func() time.Time
}

// New builds a Writer wrapped in the lenient analytics resilience profile.
func New(kv store.KV, table string, executor *resilience.Executor, logger observe.Logger) *Writer {
	if executor == nil {
		executor = resilience.NewExecutor(
			resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.NamedBreakerConfig(resilience.ServiceAnalytics, nil))),
			resilience.WithRetry(resilience.NewRetry(resilience.NamedRetryConfig(resilience.ServiceAnalytics, nil))),
		)
	}
	return &Writer{kv: kv, table: table, executor: executor, logger: logger, nowFunc: time.Now}
}

// RecordQuery records one query_processed event.
func (w *Writer) RecordQuery(ctx context.Context, sessionID, intent string, latencyMS int64, success bool, details map[string]any) {
	w.record(ctx, "query_processed", sessionID, map[string]any{
		"intent":     intent,
		"latency_ms": latencyMS,
		"success":    success,
		"details":    details,
	})
}

// RecordTool records one tool_invoked event.
func (w *Writer) RecordTool(ctx context.Context, sessionID, toolName string, latencyMS int64, success bool, details map[string]any) {
	w.record(ctx, "tool_invoked", sessionID, map[string]any{
		"tool_name":  toolName,
		"latency_ms": latencyMS,
		"success":    success,
		"details":    details,
	})
}

// RecordSession records one session lifecycle event (session_created,
// session_expired, error_occurred, ...).
func (w *Writer) RecordSession(ctx context.Context, sessionID, eventKind string, details map[string]any) {
	w.record(ctx, eventKind, sessionID, map[string]any{"details": details})
}

func (w *Writer) record(ctx context.Context, eventType, sessionID string, payload map[string]any) {
	now := w.nowFunc().UTC()
	item := store.Item{
		attrDate:      now.Format("2006-01-02"),
		attrEventID:   uuid.NewString(),
		attrEventType: eventType,
		attrSessionID: sessionID,
		attrTimestamp: now.Format(time.RFC3339Nano),
		attrDetails:   ToDecimal(payload),
	}
	err := w.executor.Execute(ctx, func(ctx context.Context) error {
		return w.kv.Put(ctx, w.table, item, 0)
	})
	if err != nil && w.logger != nil {
		w.logger.Error(ctx, "analytics: write failed, dropping event",
			observe.Field{Key: "event_type", Value: eventType},
			observe.Field{Key: "session_id", Value: sessionID},
			observe.Field{Key: "error", Value: err.Error()})
	}
}
