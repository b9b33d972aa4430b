// Package session implements the session manager (spec.md §4.5): create,
// touch, expire, and sweep sessions held in the key-value document store.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	coreerrors "github.com/kaisan-axrail/mbppchatbot-sub000/internal/errors"
	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/store"
	"github.com/kaisan-axrail/mbppchatbot-sub000/observe"
	"github.com/kaisan-axrail/mbppchatbot-sub000/resilience"
)

// Status is a session's lifecycle state (spec.md §3: ACTIVE→CLOSED only).
type Status string

const (
	StatusActive Status = "ACTIVE"
	StatusClosed Status = "CLOSED"
)

// ClientInfo is the optional client descriptor attached at session
// creation (spec.md §3).
type ClientInfo struct {
	UserAgent      string `json:"user_agent,omitempty"`
	SourceAddress  string `json:"source_address,omitempty"`
	TransportConnID string `json:"transport_conn_id,omitempty"`
}

// Session is the identity for one conversation (spec.md §3).
type Session struct {
	ID           string
	TenantID     string
	CreatedAt    time.Time
	LastActivity time.Time
	Status       Status
	Client       *ClientInfo
	Metadata     map[string]any
}

const (
	attrSessionID     = "session_id"
	attrTenantID      = "tenant_id"
	attrCreatedAt     = "created_at"
	attrLastActivity  = "last_activity"
	attrStatus        = "status"
	attrClientAgent   = "client_user_agent"
	attrClientAddr    = "client_source_address"
	attrClientConn    = "client_transport_conn_id"
	attrMetadata      = "metadata"
)

// Manager is the production session manager, backed by a store.KV table.
//
// Concurrency: safe for concurrent use. All mutation goes through the
// store's conditional operations rather than any in-process lock, so
// multiple dispatcher workers (one per connection) can share one Manager.
type Manager struct {
	kv       store.KV
	table    string
	timeout  time.Duration
	ttlSafetyFactor float64
	resilience *resilience.Executor
	logger   observe.Logger
	tracer   observe.Tracer
	metrics  observe.Metrics
}

// Config configures a Manager.
type Config struct {
	Table           string
	Timeout         time.Duration // default 30 minutes per spec.md §4.5
	TTLSafetyFactor float64       // multiplies Timeout for the store's TTL attribute
}

// New constructs a session Manager.
func New(kv store.KV, cfg Config, resilienceExec *resilience.Executor, logger observe.Logger, tracer observe.Tracer, metrics observe.Metrics) *Manager {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Minute
	}
	if cfg.TTLSafetyFactor <= 0 {
		cfg.TTLSafetyFactor = 2.0
	}
	if logger == nil {
		logger = observe.NewLoggerWithWriter("info", nopWriter{})
	}
	return &Manager{
		kv:              kv,
		table:           cfg.Table,
		timeout:         cfg.Timeout,
		ttlSafetyFactor: cfg.TTLSafetyFactor,
		resilience:      resilienceExec,
		logger:          logger,
		tracer:          tracer,
		metrics:         metrics,
	}
}

// Create allocates a fresh session id and writes an ACTIVE row. Writes
// are idempotent on session id: on the astronomically unlikely event of
// a UUID collision, Create re-mints the id and retries once.
func (m *Manager) Create(ctx context.Context, tenantID string, client *ClientInfo) (*Session, error) {
	ctx, span := m.startSpan(ctx, "session.create")
	defer m.endSpan(span, nil)

	now := time.Now().UTC()
	sess := &Session{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		CreatedAt:    now,
		LastActivity: now,
		Status:       StatusActive,
		Client:       client,
		Metadata:     map[string]any{},
	}

	item := toItem(sess)
	ttl := time.Duration(float64(m.timeout) * m.ttlSafetyFactor)

	err := m.execute(ctx, "session.create", func(ctx context.Context) error {
		putErr := m.kv.PutIfAbsent(ctx, m.table, item, ttl)
		if putErr == store.ErrConditionFailed {
			sess.ID = uuid.NewString()
			item = toItem(sess)
			putErr = m.kv.PutIfAbsent(ctx, m.table, item, ttl)
		}
		return putErr
	})
	if err != nil {
		return nil, coreerrors.New(coreerrors.KindStoreUnavailable, "session.Create", "write session row", err)
	}
	m.logger.Info(ctx, "session created", observe.Field{Key: "session_id", Value: sess.ID}, observe.Field{Key: "tenant_id", Value: tenantID})
	return sess, nil
}

// Get reads the session row. Returns (nil, nil) if absent, closed, or
// expired — expired sessions are never auto-resurrected (spec.md §4.5).
func (m *Manager) Get(ctx context.Context, sessionID string) (*Session, error) {
	ctx, span := m.startSpan(ctx, "session.get")
	var item store.Item
	var ok bool
	err := m.execute(ctx, "session.get", func(ctx context.Context) error {
		var getErr error
		item, ok, getErr = m.kv.Get(ctx, m.table, store.Item{attrSessionID: sessionID})
		return getErr
	})
	m.endSpan(span, err)
	if err != nil {
		return nil, coreerrors.New(coreerrors.KindStoreUnavailable, "session.Get", "read session row", err)
	}
	if !ok {
		return nil, nil
	}
	sess := fromItem(item)
	if sess.Status != StatusActive {
		return nil, nil
	}
	if time.Since(sess.LastActivity) >= m.timeout {
		return nil, nil
	}
	return sess, nil
}

// Touch advances last-activity to now iff the row exists and is ACTIVE.
func (m *Manager) Touch(ctx context.Context, sessionID string) error {
	ctx, span := m.startSpan(ctx, "session.touch")
	now := time.Now().UTC()
	err := m.execute(ctx, "session.touch", func(ctx context.Context) error {
		return m.kv.UpdateIfExists(ctx, m.table, store.Item{attrSessionID: sessionID}, store.Item{
			attrLastActivity: now.Format(time.RFC3339Nano),
		})
	})
	m.endSpan(span, err)
	if err != nil {
		if err == store.ErrConditionFailed {
			return coreerrors.ErrSessionNotFound
		}
		return coreerrors.New(coreerrors.KindStoreUnavailable, "session.Touch", "update last activity", err)
	}
	return nil
}

// Close sets status=CLOSED. Best-effort: callers should not fail the
// user-visible path on a Close error.
func (m *Manager) Close(ctx context.Context, sessionID string) error {
	ctx, span := m.startSpan(ctx, "session.close")
	err := m.execute(ctx, "session.close", func(ctx context.Context) error {
		return m.kv.UpdateIfExists(ctx, m.table, store.Item{attrSessionID: sessionID}, store.Item{
			attrStatus: string(StatusClosed),
		})
	})
	m.endSpan(span, err)
	if err != nil && err != store.ErrConditionFailed {
		m.logger.Warn(ctx, "session close failed", observe.Field{Key: "session_id", Value: sessionID}, observe.Field{Key: "error", Value: err.Error()})
	}
	return nil
}

// Sweep scans for rows whose last-activity predates the timeout or whose
// status is CLOSED, deletes them one Delete call per row (there is no
// batch delete; a row whose Delete fails is logged and skipped), and
// returns the count removed. Intended to be invoked by an external
// periodic schedule.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	ctx, span := m.startSpan(ctx, "session.sweep")

	var toDelete []string
	err := m.kv.Scan(ctx, m.table, func(item store.Item) error {
		sess := fromItem(item)
		if sess.Status == StatusClosed || time.Since(sess.LastActivity) >= m.timeout {
			toDelete = append(toDelete, sess.ID)
		}
		return nil
	})
	if err != nil {
		m.endSpan(span, err)
		return 0, coreerrors.New(coreerrors.KindStoreUnavailable, "session.Sweep", "scan sessions", err)
	}

	deleted := 0
	for _, id := range toDelete {
		if err := m.kv.Delete(ctx, m.table, store.Item{attrSessionID: id}); err != nil {
			m.logger.Warn(ctx, "sweep delete failed", observe.Field{Key: "session_id", Value: id}, observe.Field{Key: "error", Value: err.Error()})
			continue
		}
		deleted++
	}
	m.endSpan(span, nil)
	m.logger.Info(ctx, "sweep complete", observe.Field{Key: "removed", Value: deleted}, observe.Field{Key: "scanned", Value: len(toDelete)})
	return deleted, nil
}

func (m *Manager) execute(ctx context.Context, op string, fn func(context.Context) error) error {
	if m.resilience == nil {
		return fn(ctx)
	}
	return m.resilience.Execute(ctx, fn)
}

func (m *Manager) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if m.tracer == nil {
		return ctx, nil
	}
	return m.tracer.StartSpan(ctx, observe.ToolMeta{Name: name, Category: "session"})
}

func (m *Manager) endSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	m.tracer.EndSpan(span, err)
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func toItem(s *Session) store.Item {
	return store.Item{
		attrSessionID:    s.ID,
		attrTenantID:     s.TenantID,
		attrCreatedAt:    s.CreatedAt.Format(time.RFC3339Nano),
		attrLastActivity: s.LastActivity.Format(time.RFC3339Nano),
		attrStatus:        string(s.Status),
		attrClientAgent:   clientField(s.Client, func(c *ClientInfo) string { return c.UserAgent }),
		attrClientAddr:    clientField(s.Client, func(c *ClientInfo) string { return c.SourceAddress }),
		attrClientConn:    clientField(s.Client, func(c *ClientInfo) string { return c.TransportConnID }),
		attrMetadata:      s.Metadata,
	}
}

func clientField(c *ClientInfo, get func(*ClientInfo) string) string {
	if c == nil {
		return ""
	}
	return get(c)
}

func fromItem(item store.Item) *Session {
	s := &Session{
		ID:       stringAttr(item, attrSessionID),
		TenantID: stringAttr(item, attrTenantID),
		Status:   Status(stringAttr(item, attrStatus)),
	}
	s.CreatedAt, _ = time.Parse(time.RFC3339Nano, stringAttr(item, attrCreatedAt))
	s.LastActivity, _ = time.Parse(time.RFC3339Nano, stringAttr(item, attrLastActivity))
	if agent, addr, conn := stringAttr(item, attrClientAgent), stringAttr(item, attrClientAddr), stringAttr(item, attrClientConn); agent != "" || addr != "" || conn != "" {
		s.Client = &ClientInfo{UserAgent: agent, SourceAddress: addr, TransportConnID: conn}
	}
	if md, ok := item[attrMetadata].(map[string]any); ok {
		s.Metadata = md
	} else {
		s.Metadata = map[string]any{}
	}
	return s
}

func stringAttr(item store.Item, key string) string {
	v, ok := item[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
