package dispatcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/analytics"
	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/conversation"
	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/modelclient"
	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/pipeline"
	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/router"
	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/session"
	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/store"
	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/workflow"
)

// failingPutKV wraps a store.KV and forces every Put against a chosen
// table to fail, to exercise the dispatcher's abort-on-write-failure
// path without a real backend.
type failingPutKV struct {
	store.KV
	failTable string
}

func (f *failingPutKV) Put(ctx context.Context, table string, item store.Item, ttl time.Duration) error {
	if table == f.failTable {
		return errors.New("simulated write failure")
	}
	return f.KV.Put(ctx, table, item, ttl)
}

func newTestDispatcher(t *testing.T, responses []string) (*Dispatcher, *store.MemoryKV) {
	t.Helper()
	kv := store.NewMemoryKV(map[string]store.KeySchema{
		"sessions":      {PartitionKey: "session_id"},
		"conversations": {PartitionKey: "session_id", SortKey: "message_id"},
		"analytics":     {PartitionKey: "date", SortKey: "event_id"},
		"tickets":       {PartitionKey: "ticket_number"},
		"events":        {PartitionKey: "event_id"},
	})

	sessions := session.New(kv, session.Config{Table: "sessions"}, nil, nil, nil, nil)
	rtr := router.New(nil, nil)
	gen := &modelclient.Fake{Responses: responses}
	general := pipeline.NewGeneral(gen, nil)
	pipelines := map[router.Intent]pipeline.Executor{router.IntentGeneral: general}
	convWriter := conversation.New(kv, "conversations", nil)
	analyticsWriter := analytics.New(kv, "analytics", nil, nil)
	classifier := workflow.NewClassifier(gen, 1024, nil)
	engine := workflow.New(classifier, kv, store.NewMemoryBlob(), "tickets", "events", nil)

	d := New(sessions, rtr, pipelines, convWriter, analyticsWriter, engine, nil, nil, Config{})
	return d, kv
}

func dialAndRead(t *testing.T, server *httptest.Server) (*websocket.Conn, map[string]any) {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	var established map[string]any
	require.NoError(t, conn.ReadJSON(&established))
	return conn, established
}

func TestDispatcher_ConnectEstablishesSession(t *testing.T) {
	d, _ := newTestDispatcher(t, nil)
	server := httptest.NewServer(http.HandlerFunc(d.HandleConnection))
	defer server.Close()

	conn, established := dialAndRead(t, server)
	defer conn.Close()

	require.Equal(t, TypeConnectionEstablished, established["type"])
	require.NotEmpty(t, established["sessionId"])
}

func TestDispatcher_PingPong(t *testing.T) {
	d, _ := newTestDispatcher(t, nil)
	server := httptest.NewServer(http.HandlerFunc(d.HandleConnection))
	defer server.Close()

	conn, _ := dialAndRead(t, server)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"type": TypePing, "messageId": "m1"}))
	var reply map[string]any
	require.NoError(t, conn.ReadJSON(&reply))
	require.Equal(t, TypePong, reply["type"])
	require.Equal(t, "m1", reply["messageId"])
}

func TestDispatcher_UserMessageNormalizesLegacyFrameAndWritesConversation(t *testing.T) {
	d, kv := newTestDispatcher(t, []string{`{"response":"Hello there","detected_language":"en","detected_sentiment":"POSITIVE","sentiment_confidence":0.9,"requires_attention":false,"response_tone":"friendly"}`})
	server := httptest.NewServer(http.HandlerFunc(d.HandleConnection))
	defer server.Close()

	conn, established := dialAndRead(t, server)
	defer conn.Close()
	sessionID := established["sessionId"].(string)

	require.NoError(t, conn.WriteJSON(map[string]any{"action": "send", "message": "hi there"}))
	var reply map[string]any
	require.NoError(t, conn.ReadJSON(&reply))
	require.Equal(t, TypeAssistantMessage, reply["type"])
	require.Equal(t, "Hello there", reply["content"])
	require.Equal(t, pipeline.ClassificationGeneral, reply["query_type"])

	time.Sleep(20 * time.Millisecond)
	var rows []store.Item
	require.NoError(t, kv.Scan(nil, "conversations", func(item store.Item) error {
		if item["session_id"] == sessionID {
			rows = append(rows, item)
		}
		return nil
	}))
	require.Len(t, rows, 2)
}

func TestDispatcher_EmptyContentRejected(t *testing.T) {
	d, _ := newTestDispatcher(t, nil)
	server := httptest.NewServer(http.HandlerFunc(d.HandleConnection))
	defer server.Close()

	conn, _ := dialAndRead(t, server)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"type": TypeUserMessage, "content": ""}))
	var reply map[string]any
	require.NoError(t, conn.ReadJSON(&reply))
	require.Equal(t, TypeError, reply["type"])
}

func TestDispatcher_WorkflowTriggerStartsAndOwnsSession(t *testing.T) {
	gen := &modelclient.Fake{Responses: []string{`{"feedback":"complaint","category":"JALAN","sub_category":"pothole","hazard":false}`}}
	d, _ := newTestDispatcher(t, nil)
	d.pipelines[router.IntentGeneral] = pipeline.NewGeneral(gen, nil)

	server := httptest.NewServer(http.HandlerFunc(d.HandleConnection))
	defer server.Close()

	conn, _ := dialAndRead(t, server)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"type": TypeUserMessage, "content": "I want to report a pothole"}))
	var reply map[string]any
	require.NoError(t, conn.ReadJSON(&reply))
	require.Equal(t, "workflow", reply["query_type"])
	require.Contains(t, reply["content"], "location")
}

func TestDispatcher_ConversationWriteFailureAbortsMessage(t *testing.T) {
	kv := store.NewMemoryKV(map[string]store.KeySchema{
		"sessions":      {PartitionKey: "session_id"},
		"conversations": {PartitionKey: "session_id", SortKey: "message_id"},
		"analytics":     {PartitionKey: "date", SortKey: "event_id"},
		"tickets":       {PartitionKey: "ticket_number"},
		"events":        {PartitionKey: "event_id"},
	})
	failingKV := &failingPutKV{KV: kv, failTable: "conversations"}

	sessions := session.New(failingKV, session.Config{Table: "sessions"}, nil, nil, nil, nil)
	rtr := router.New(nil, nil)
	gen := &modelclient.Fake{Responses: []string{`{"response":"Hello there","detected_language":"en"}`}}
	general := pipeline.NewGeneral(gen, nil)
	pipelines := map[router.Intent]pipeline.Executor{router.IntentGeneral: general}
	convWriter := conversation.New(failingKV, "conversations", nil)
	analyticsWriter := analytics.New(failingKV, "analytics", nil, nil)
	classifier := workflow.NewClassifier(gen, 1024, nil)
	engine := workflow.New(classifier, failingKV, store.NewMemoryBlob(), "tickets", "events", nil)
	d := New(sessions, rtr, pipelines, convWriter, analyticsWriter, engine, nil, nil, Config{})

	server := httptest.NewServer(http.HandlerFunc(d.HandleConnection))
	defer server.Close()

	conn, _ := dialAndRead(t, server)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"type": TypeUserMessage, "content": "hello"}))
	var reply map[string]any
	require.NoError(t, conn.ReadJSON(&reply))
	require.Equal(t, TypeError, reply["type"])
	require.NotEqual(t, TypeAssistantMessage, reply["type"])
}

func TestDispatcher_SystemStatusCommand(t *testing.T) {
	d, _ := newTestDispatcher(t, nil)
	d.statusFn = func(ctx context.Context) map[string]any {
		return map[string]any{"overall": "healthy"}
	}
	server := httptest.NewServer(http.HandlerFunc(d.HandleConnection))
	defer server.Close()

	conn, _ := dialAndRead(t, server)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"type": TypeSystem, "command": "status"}))
	var reply map[string]any
	require.NoError(t, conn.ReadJSON(&reply))
	require.Equal(t, TypeStatusResponse, reply["type"])
	details := reply["details"].(map[string]any)
	require.Equal(t, "healthy", details["overall"])
}
