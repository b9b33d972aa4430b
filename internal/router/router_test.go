package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/modelclient"
)

func TestClassify_ToolKeyword(t *testing.T) {
	r := New(nil, nil)
	assert.Equal(t, IntentTool, r.Classify(context.Background(), "show me all events"))
}

func TestClassify_DocumentKeyword(t *testing.T) {
	r := New(nil, nil)
	assert.Equal(t, IntentRAG, r.Classify(context.Background(), "what does the policy document say about refunds?"))
}

func TestClassify_FallsThroughToModel(t *testing.T) {
	gen := &modelclient.Fake{Responses: []string{"TOOL"}}
	r := New(gen, nil)
	assert.Equal(t, IntentTool, r.Classify(context.Background(), "can you do something for me"))
}

func TestClassify_NoGeneratorDefaultsGeneral(t *testing.T) {
	r := New(nil, nil)
	assert.Equal(t, IntentGeneral, r.Classify(context.Background(), "hello there"))
}

func TestClassify_ModelErrorDefaultsGeneral(t *testing.T) {
	gen := &modelclient.Fake{Err: assertBoom}
	r := New(gen, nil)
	assert.Equal(t, IntentGeneral, r.Classify(context.Background(), "hello there"))
}

func TestClassify_UnparsableModelReplyDefaultsGeneral(t *testing.T) {
	gen := &modelclient.Fake{Responses: []string{"I'm not sure what you mean"}}
	r := New(gen, nil)
	assert.Equal(t, IntentGeneral, r.Classify(context.Background(), "hello there"))
}

type boomError string

func (e boomError) Error() string { return string(e) }

var assertBoom = boomError("boom")
