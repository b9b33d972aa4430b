// Package pipeline implements the three pipeline executors of spec.md
// §4.7 (General, RAG, Tool), all producing the same reply envelope so
// the connection dispatcher can treat them uniformly.
package pipeline

import (
	"context"

	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/modelclient"
)

// Classification values mirror the egress frame's query_type (spec.md §6).
const (
	ClassificationGeneral = "general"
	ClassificationRAG     = "rag"
	ClassificationTool    = "mcp_tool"
	ClassificationFallback = "error_fallback"
)

// Envelope is the uniform reply shape every pipeline executor returns.
type Envelope struct {
	Text                string
	Classification      string
	Sources             []string
	ToolsUsed           []string
	ResponseMS          int64
	DetectedLanguage    string
	Sentiment           string
	SentimentConfidence float64
	RequiresAttention   bool
	IsFallback          bool
}

// Executor is the uniform capability the router's chosen pipeline
// exposes: run the user's text against the optional bounded history and
// return an envelope. It never returns an error — every failure mode is
// captured as a fallback envelope instead, so the dispatcher always has
// something to send the user.
type Executor interface {
	Run(ctx context.Context, userText string, history []modelclient.Message) *Envelope
}
