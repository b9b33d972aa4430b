package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/modelclient"
	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/store"
)

func newTestEngine(t *testing.T, gen modelclient.Generator) *Engine {
	t.Helper()
	kv := store.NewMemoryKV(map[string]store.KeySchema{
		"tickets": {PartitionKey: attrTicketNumber},
		"events":  {PartitionKey: attrEventID},
	})
	blob := store.NewMemoryBlob()
	classifier := NewClassifier(gen, 5*1024*1024, nil)
	return New(classifier, kv, blob, "tickets", "events", nil)
}

func TestEngine_HappyPath(t *testing.T) {
	gen := &modelclient.Fake{Responses: []string{`{"feedback":"complaint","category":"JALAN","sub_category":"pothole","hazard":false}`}}
	e := newTestEngine(t, gen)

	wf, prompt := e.Start("s1", KindIncidentReport)
	assert.Contains(t, prompt, "location")

	res, err := e.Step(context.Background(), wf.ID, "Jalan Penang", nil)
	require.NoError(t, err)
	assert.Contains(t, res.Message, "describe")

	res, err = e.Step(context.Background(), wf.ID, "pothole causing traffic", []byte("fake-image-bytes"))
	require.NoError(t, err)
	assert.Contains(t, res.Message, "Shall I submit")
	assert.False(t, res.Escalation)
	assert.Equal(t, StateAwaitingConfirm, wf.State)

	res, err = e.Step(context.Background(), wf.ID, "yes", nil)
	require.NoError(t, err)
	assert.True(t, res.Committed)
	assert.NotEmpty(t, res.TicketNumber)
	assert.Equal(t, StateCommitted, wf.State)
}

func TestEngine_HazardTriggersEscalation(t *testing.T) {
	gen := &modelclient.Fake{Responses: []string{`{"feedback":"complaint","category":"SALIRAN","sub_category":"gas leak","hazard":true}`}}
	e := newTestEngine(t, gen)

	wf, _ := e.Start("s1", KindIncidentReport)
	_, _ = e.Step(context.Background(), wf.ID, "Jalan Penang", nil)
	res, err := e.Step(context.Background(), wf.ID, "gas leak near the drain", nil)
	require.NoError(t, err)
	assert.True(t, res.Escalation)
}

func TestEngine_NegativeConfirmationResetsAccumulator(t *testing.T) {
	gen := &modelclient.Fake{Responses: []string{`{"feedback":"complaint","category":"JALAN","sub_category":"--","hazard":false}`}}
	e := newTestEngine(t, gen)

	wf, _ := e.Start("s1", KindIncidentReport)
	_, _ = e.Step(context.Background(), wf.ID, "Jalan Penang", nil)
	_, _ = e.Step(context.Background(), wf.ID, "pothole", nil)
	require.Equal(t, StateAwaitingConfirm, wf.State)

	res, err := e.Step(context.Background(), wf.ID, "no", nil)
	require.NoError(t, err)
	assert.Equal(t, StateCollecting, wf.State)
	assert.Empty(t, wf.Accumulator["location"])
	assert.Contains(t, res.Message, "start over")
}

func TestEngine_ClassifierErrorYieldsDefault(t *testing.T) {
	gen := &modelclient.Fake{Err: boomErr("down")}
	e := newTestEngine(t, gen)

	wf, _ := e.Start("s1", KindFeedback)
	res, err := e.Step(context.Background(), wf.ID, "the park is dirty", nil)
	require.NoError(t, err)
	assert.Contains(t, res.Message, "JALAN")
}

func TestEngine_UnknownWorkflowIDErrors(t *testing.T) {
	e := newTestEngine(t, &modelclient.Fake{})
	_, err := e.Step(context.Background(), "does-not-exist", "hi", nil)
	assert.Error(t, err)
}

type boomErr string

func (e boomErr) Error() string { return string(e) }
