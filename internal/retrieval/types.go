// Package retrieval implements the RAG retrieval client described in
// spec.md §4.3: a managed single-call backend, a manual embed-then-score
// backend, and a deterministic mock fallback for development.
package retrieval

import "context"

// DocumentChunk is one scored passage returned by Search.
type DocumentChunk struct {
	Source  string
	Content string
	Score   float64
	IsMock  bool
}

// Client is the retrieval client's public surface.
type Client interface {
	Search(ctx context.Context, queryText string, limit int, threshold float64) ([]DocumentChunk, error)
}
