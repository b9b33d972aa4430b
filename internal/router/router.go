// Package router implements the intent classifier described in
// spec.md §4.6: a cheap keyword pre-filter followed by a model-backed
// fallback, defaulting to GENERAL on any ambiguity or failure so
// classification never blocks a user reply.
package router

import (
	"context"
	"strings"

	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/modelclient"
	"github.com/kaisan-axrail/mbppchatbot-sub000/observe"
)

// Intent is the routing class of a user message.
type Intent string

const (
	IntentRAG     Intent = "RAG"
	IntentGeneral Intent = "GENERAL"
	IntentTool    Intent = "TOOL"
)

var toolKeywords = []string{"event", "events"}

var documentKeywords = []string{"document", "policy", "terms"}

const classifyPrompt = `You classify a single user message into exactly one of three intents: RAG, GENERAL, or TOOL.
- RAG: the user is asking about the contents of a document, policy, or similar reference material.
- TOOL: the user is asking to perform an action or query a live data source (e.g. listing events).
- GENERAL: anything else, including greetings, small talk, or general questions.
Respond with exactly one word: RAG, GENERAL, or TOOL.`

// Router classifies free-form user text into an Intent.
type Router struct {
	generator modelclient.Generator
	logger    observe.Logger
}

// New builds a Router. generator may be nil, in which case Classify
// falls through stage 2 straight to GENERAL whenever the keyword
// pre-filter doesn't match.
func New(generator modelclient.Generator, logger observe.Logger) *Router {
	return &Router{generator: generator, logger: logger}
}

// Classify returns the routing Intent for userText.
func (r *Router) Classify(ctx context.Context, userText string) Intent {
	lower := strings.ToLower(userText)
	for _, kw := range toolKeywords {
		if strings.Contains(lower, kw) {
			return IntentTool
		}
	}
	for _, kw := range documentKeywords {
		if strings.Contains(lower, kw) {
			return IntentRAG
		}
	}

	if r.generator == nil {
		return IntentGeneral
	}
	resp, err := r.generator.Generate(ctx, modelclient.GenerateRequest{
		SystemPrompt: classifyPrompt,
		Messages:     []modelclient.Message{{Role: modelclient.RoleUser, Content: userText}},
	})
	if err != nil || resp == nil || resp.IsFallback {
		if r.logger != nil {
			r.logger.Warn(ctx, "router: model classification unavailable, defaulting to GENERAL")
		}
		return IntentGeneral
	}
	if intent, ok := firstWholeWordIntent(resp.Text); ok {
		return intent
	}
	return IntentGeneral
}

// firstWholeWordIntent scans text token by token for the first whole word
// that matches one of the three literal intent tokens.
func firstWholeWordIntent(text string) (Intent, bool) {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !('A' <= r && r <= 'Z') && !('a' <= r && r <= 'z')
	})
	for _, f := range fields {
		switch strings.ToUpper(f) {
		case string(IntentRAG):
			return IntentRAG, true
		case string(IntentGeneral):
			return IntentGeneral, true
		case string(IntentTool):
			return IntentTool, true
		}
	}
	return "", false
}
