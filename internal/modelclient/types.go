// Package modelclient implements the model client described in
// spec.md §4.2: a single generate operation fronting two wire dialects
// (a direct Anthropic Messages API dialect and an AWS Bedrock structured
// dialect), endpoint-tier fallback, and fallback-envelope synthesis.
package modelclient

import "context"

// Role is a message author tag.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged turn in the conversation sent to the model.
type Message struct {
	Role    Role
	Content string
}

// GenerateRequest is the input to Generate.
type GenerateRequest struct {
	Messages     []Message
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
}

// TokenUsage reports the token accounting the upstream model returned.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// GenerateResponse is the output of Generate.
type GenerateResponse struct {
	Text       string
	TokenUsage TokenUsage
	ModelID    string
	IsFallback bool
}

// Generator is the model client's public surface. internal/router,
// internal/pipeline, internal/toolregistry and internal/workflow depend
// on this interface rather than *Client so tests can substitute a fake.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// fallbackText is the user-visible apology synthesised when every
// endpoint tier has failed (spec.md §4.2).
const fallbackText = "I'm having trouble reaching the assistant service right now. Please try again shortly."
