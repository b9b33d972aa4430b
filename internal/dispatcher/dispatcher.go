package dispatcher

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/kaisan-axrail/mbppchatbot-sub000/auth"
	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/analytics"
	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/conversation"
	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/modelclient"
	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/pipeline"
	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/router"
	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/session"
	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/workflow"
	"github.com/kaisan-axrail/mbppchatbot-sub000/observe"
)

const maxHistoryWindow = 20

// Config configures a Dispatcher.
type Config struct {
	DefaultTenantID  string
	WriteDeadline    time.Duration // default 10s
	PipelineDeadline time.Duration // default 30s, spec.md §5
}

// Dispatcher is the connection dispatcher of spec.md §4.12: it upgrades
// an HTTP request to a websocket, allocates a session, and for each
// inbound frame runs intent routing, the selected pipeline (or an
// in-flight workflow), conversation/analytics writes, and streams the
// reply back on the same connection.
type Dispatcher struct {
	upgrader websocket.Upgrader

	sessions      *session.Manager
	router        *router.Router
	pipelines     map[router.Intent]pipeline.Executor
	conversations *conversation.Writer
	analytics     *analytics.Writer
	workflows     *workflow.Engine

	statusFn      func(ctx context.Context) map[string]any
	authenticator auth.Authenticator

	logger           observe.Logger
	writeDeadline    time.Duration
	pipelineDeadline time.Duration
	tenantID         string

	mu              sync.Mutex
	sessionWorkflow map[string]string // session id -> workflow id
}

// New builds a Dispatcher. pipelines must have an entry for
// router.IntentGeneral at minimum; missing RAG/Tool entries fall back to
// GENERAL's executor.
func New(
	sessions *session.Manager,
	rtr *router.Router,
	pipelines map[router.Intent]pipeline.Executor,
	conversations *conversation.Writer,
	analyticsWriter *analytics.Writer,
	workflows *workflow.Engine,
	statusFn func(ctx context.Context) map[string]any,
	logger observe.Logger,
	cfg Config,
) *Dispatcher {
	if cfg.WriteDeadline <= 0 {
		cfg.WriteDeadline = 10 * time.Second
	}
	if cfg.PipelineDeadline <= 0 {
		cfg.PipelineDeadline = 30 * time.Second
	}
	if cfg.DefaultTenantID == "" {
		cfg.DefaultTenantID = "default"
	}
	return &Dispatcher{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		sessions:         sessions,
		router:           rtr,
		pipelines:        pipelines,
		conversations:    conversations,
		analytics:        analyticsWriter,
		workflows:        workflows,
		statusFn:         statusFn,
		logger:           logger,
		writeDeadline:    cfg.WriteDeadline,
		pipelineDeadline: cfg.PipelineDeadline,
		tenantID:         cfg.DefaultTenantID,
		sessionWorkflow:  make(map[string]string),
	}
}

// WithAuthenticator attaches an optional Authenticator used to resolve
// the tenant id on connect (SPEC_FULL.md's multi-tenant connect identity
// supplement). Anonymous connections — no authenticator, or one that
// declines the request — fall back to the dispatcher's default tenant.
func (d *Dispatcher) WithAuthenticator(a auth.Authenticator) *Dispatcher {
	d.authenticator = a
	return d
}

// HandleConnection upgrades the request and owns the connection until it
// closes (spec.md §4.12's connect/disconnect event kinds).
func (d *Dispatcher) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if d.logger != nil {
			d.logger.Warn(r.Context(), "dispatcher: upgrade failed", observe.Field{Key: "error", Value: err.Error()})
		}
		return
	}

	ctx := context.Background()
	tenantID := d.resolveTenant(ctx, r)
	sess, err := d.sessions.Create(ctx, tenantID, &session.ClientInfo{
		UserAgent:       r.UserAgent(),
		SourceAddress:   r.RemoteAddr,
		TransportConnID: uuid.NewString(),
	})
	if err != nil {
		d.writeJSON(conn, EgressFrame{Type: TypeError, Content: "session allocation failed"})
		conn.Close()
		return
	}
	if d.analytics != nil {
		d.analytics.RecordSession(ctx, sess.ID, "session_created", nil)
	}
	d.writeJSON(conn, EgressFrame{Type: TypeConnectionEstablished, SessionID: sess.ID, Timestamp: nowISO()})

	d.serve(ctx, conn, sess)
}

// serve runs the per-connection read loop. Frames for this connection
// are processed strictly in arrival order (spec.md §5): the loop never
// starts handling frame N+1 before frame N's reply has been sent.
func (d *Dispatcher) serve(ctx context.Context, conn *websocket.Conn, sess *session.Session) {
	boundSessionID := sess.ID
	var history []modelclient.Message

	defer func() {
		d.sessions.Close(ctx, boundSessionID)
		if d.analytics != nil {
			d.analytics.RecordSession(ctx, boundSessionID, "session_closed", nil)
		}
		d.mu.Lock()
		delete(d.sessionWorkflow, boundSessionID)
		d.mu.Unlock()
		d.closeGracefully(conn)
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		history = d.handleFrame(ctx, conn, boundSessionID, raw, history)
	}
}

// handleFrame parses and routes one inbound frame, returning the
// updated rolling conversation window.
func (d *Dispatcher) handleFrame(ctx context.Context, conn *websocket.Conn, connSessionID string, raw []byte, history []modelclient.Message) []modelclient.Message {
	var frame IngressFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		d.writeJSON(conn, EgressFrame{Type: TypeError, Content: "malformed frame", Timestamp: nowISO()})
		return history
	}

	msgType, content := frame.normalize()
	if !validMessageType(msgType) {
		d.writeJSON(conn, EgressFrame{Type: TypeError, Content: "unknown message type", Timestamp: nowISO()})
		return history
	}
	if msgType == TypeUserMessage && strings.TrimSpace(content) == "" {
		d.writeJSON(conn, EgressFrame{Type: TypeError, Content: "content must be non-empty", Timestamp: nowISO()})
		return history
	}

	messageID := frame.MessageID
	if messageID == "" {
		messageID = uuid.NewString()
	}
	timestamp := nowISO()

	sess := d.resolveSession(ctx, connSessionID, frame.SessionID)

	switch msgType {
	case TypePing:
		d.writeJSON(conn, EgressFrame{Type: TypePong, MessageID: messageID, SessionID: sess.ID, Timestamp: timestamp})
		return history
	case TypeSystem:
		d.handleSystem(ctx, conn, sess, messageID, timestamp, frame)
		return history
	default:
		return d.handleUserMessage(ctx, conn, sess, messageID, timestamp, content, frame, history)
	}
}

// resolveTenant derives the connecting tenant id from the request via
// the optional authenticator, falling back to the default tenant for
// anonymous connections or declined/failed authentication.
func (d *Dispatcher) resolveTenant(ctx context.Context, r *http.Request) string {
	if d.authenticator == nil {
		return d.tenantID
	}
	authReq := &auth.AuthRequest{Headers: r.Header}
	if !d.authenticator.Supports(ctx, authReq) {
		return d.tenantID
	}
	result, err := d.authenticator.Authenticate(ctx, authReq)
	if err != nil || result == nil || !result.Authenticated || result.Identity == nil || result.Identity.TenantID == "" {
		return d.tenantID
	}
	return result.Identity.TenantID
}

// resolveSession applies spec.md §4.12's precedence: trust a
// message-supplied sessionId if it resolves to a live session, else the
// connection-bound session, else allocate a fresh one.
func (d *Dispatcher) resolveSession(ctx context.Context, connSessionID, requested string) *session.Session {
	if requested != "" && requested != connSessionID {
		if sess, err := d.sessions.Get(ctx, requested); err == nil && sess != nil {
			return sess
		}
	}
	if sess, err := d.sessions.Get(ctx, connSessionID); err == nil && sess != nil {
		return sess
	}
	sess, err := d.sessions.Create(ctx, d.tenantID, nil)
	if err != nil {
		return &session.Session{ID: connSessionID}
	}
	return sess
}

func (d *Dispatcher) handleSystem(ctx context.Context, conn *websocket.Conn, sess *session.Session, messageID, timestamp string, frame IngressFrame) {
	cmd := frame.Command
	if cmd == "" {
		cmd = frame.Content
	}
	switch strings.ToLower(strings.TrimSpace(cmd)) {
	case "status":
		details := map[string]any{}
		if d.statusFn != nil {
			details = d.statusFn(ctx)
		}
		d.writeJSON(conn, EgressFrame{Type: TypeStatusResponse, MessageID: messageID, SessionID: sess.ID, Timestamp: timestamp, Details: details})
	default:
		d.writeJSON(conn, EgressFrame{Type: TypeError, MessageID: messageID, SessionID: sess.ID, Timestamp: timestamp, Content: "unknown system command"})
	}
}

// handleUserMessage implements spec.md §4.12's user_message routing:
// workflow forwarding takes priority over pipeline dispatch; any
// pipeline failure is caught at this boundary and surfaced as a
// fallback envelope rather than propagated (§4.12's failure semantics).
func (d *Dispatcher) handleUserMessage(ctx context.Context, conn *websocket.Conn, sess *session.Session, messageID, timestamp, content string, frame IngressFrame, history []modelclient.Message) []modelclient.Message {
	d.sessions.Touch(ctx, sess.ID)

	pctx, cancel := context.WithTimeout(ctx, d.pipelineDeadline)
	defer cancel()

	if wfID, owned := d.ownedWorkflow(sess.ID); owned {
		env := d.runWorkflowStep(pctx, sess.ID, wfID, content, frame)
		d.finishUserMessage(ctx, conn, sess, messageID, timestamp, content, env)
		return history
	}

	if kind, ok := detectWorkflowTrigger(content); ok {
		wf, prompt := d.workflows.Start(sess.ID, kind)
		d.mu.Lock()
		d.sessionWorkflow[sess.ID] = wf.ID
		d.mu.Unlock()
		env := &pipeline.Envelope{Text: prompt, Classification: "workflow"}
		d.finishUserMessage(ctx, conn, sess, messageID, timestamp, content, env)
		return history
	}

	intent := d.router.Classify(pctx, content)
	exec, ok := d.pipelines[intent]
	if !ok {
		exec = d.pipelines[router.IntentGeneral]
	}

	start := time.Now()
	var env *pipeline.Envelope
	if exec == nil {
		env = &pipeline.Envelope{Text: "I'm unable to help with that right now.", Classification: pipeline.ClassificationFallback, IsFallback: true}
	} else {
		env = d.runPipeline(pctx, exec, content, history)
	}
	latencyMS := time.Since(start).Milliseconds()

	if d.analytics != nil {
		d.analytics.RecordQuery(ctx, sess.ID, string(intent), latencyMS, !env.IsFallback, map[string]any{"sources": env.Sources, "tools_used": env.ToolsUsed})
	}

	history = appendHistory(history, content, env.Text)
	d.finishUserMessage(ctx, conn, sess, messageID, timestamp, content, env)
	return history
}

// runPipeline recovers from a panicking executor so a single bad
// pipeline run can never take the connection down with it (spec.md
// §4.12's failure semantics: any exception is caught at this boundary).
func (d *Dispatcher) runPipeline(ctx context.Context, exec pipeline.Executor, content string, history []modelclient.Message) (env *pipeline.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			if d.logger != nil {
				d.logger.Error(ctx, "dispatcher: pipeline panic recovered", observe.Field{Key: "panic", Value: r})
			}
			env = &pipeline.Envelope{Text: "Sorry, something went wrong processing that.", Classification: pipeline.ClassificationFallback, IsFallback: true}
		}
	}()
	return exec.Run(ctx, content, history)
}

func (d *Dispatcher) runWorkflowStep(ctx context.Context, sessionID, wfID, content string, frame IngressFrame) *pipeline.Envelope {
	var imageData []byte
	if frame.HasImage && frame.ImageData != "" {
		if decoded, err := base64.StdEncoding.DecodeString(frame.ImageData); err == nil {
			imageData = decoded
		}
	}
	res, err := d.workflows.Step(ctx, wfID, content, imageData)
	if err != nil {
		d.mu.Lock()
		delete(d.sessionWorkflow, sessionID)
		d.mu.Unlock()
		return &pipeline.Envelope{Text: "Let's start over with your report.", Classification: "workflow", IsFallback: true}
	}
	if res.Committed {
		d.mu.Lock()
		delete(d.sessionWorkflow, sessionID)
		d.mu.Unlock()
	}
	return &pipeline.Envelope{Text: res.Message, Classification: "workflow", RequiresAttention: res.Escalation}
}

func (d *Dispatcher) ownedWorkflow(sessionID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.sessionWorkflow[sessionID]
	return id, ok
}

func (d *Dispatcher) finishUserMessage(ctx context.Context, conn *websocket.Conn, sess *session.Session, messageID, timestamp, userContent string, env *pipeline.Envelope) {
	if d.conversations != nil {
		if err := d.conversations.Write(ctx, conversation.Turn{SessionID: sess.ID, UserContent: userContent, AssistantContent: env.Text}); err != nil {
			if d.logger != nil {
				d.logger.Error(ctx, "dispatcher: conversation write failed", observe.Field{Key: "error", Value: err.Error()})
			}
			d.writeJSON(conn, EgressFrame{Type: TypeError, MessageID: messageID, SessionID: sess.ID, Timestamp: timestamp, Content: "failed to save your message"})
			return
		}
	}
	frame := assistantFrame(messageID, sess.ID, timestamp, env)
	d.writeJSON(conn, frame)
	if env.RequiresAttention {
		d.writeJSON(conn, EgressFrame{Type: TypeEscalationNotice, SessionID: sess.ID, Timestamp: nowISO(), Content: env.Text})
	}
}

// closeGracefully sends a close handshake frame under a bounded
// deadline before tearing down the socket (supplements spec.md §4.12's
// disconnect handling with a clean transport-level close).
func (d *Dispatcher) closeGracefully(conn *websocket.Conn) {
	conn.SetWriteDeadline(time.Now().Add(d.writeDeadline))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
}

func (d *Dispatcher) writeJSON(conn *websocket.Conn, v any) {
	conn.SetWriteDeadline(time.Now().Add(d.writeDeadline))
	if err := conn.WriteJSON(v); err != nil && d.logger != nil {
		d.logger.Warn(context.Background(), "dispatcher: write failed", observe.Field{Key: "error", Value: err.Error()})
	}
}

func appendHistory(history []modelclient.Message, userText, assistantText string) []modelclient.Message {
	history = append(history, modelclient.Message{Role: modelclient.RoleUser, Content: userText})
	history = append(history, modelclient.Message{Role: modelclient.RoleAssistant, Content: assistantText})
	if len(history) > maxHistoryWindow {
		history = history[len(history)-maxHistoryWindow:]
	}
	return history
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
