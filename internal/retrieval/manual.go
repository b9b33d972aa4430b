package retrieval

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/modelclient"
	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/store"
	"github.com/kaisan-axrail/mbppchatbot-sub000/observe"
)

// storedChunk is the on-disk shape of one pre-embedded document chunk
// under the configured blob prefix: content plus its precomputed
// embedding vector, produced by an out-of-scope ingestion job.
type storedChunk struct {
	Source    string    `json:"source"`
	Content   string    `json:"content"`
	Embedding []float64 `json:"embedding"`
}

// ManualBackend implements the manual retrieval path (spec.md §4.3):
// embed the query, list chunk identifiers under a blob prefix, load
// each, score by cosine similarity, filter, sort, and truncate.
type ManualBackend struct {
	embedder    modelclient.Embedder
	blob        store.Blob
	chunkPrefix string
	logger      observe.Logger
}

// NewManualBackend constructs a ManualBackend.
func NewManualBackend(embedder modelclient.Embedder, blob store.Blob, chunkPrefix string, logger observe.Logger) *ManualBackend {
	return &ManualBackend{embedder: embedder, blob: blob, chunkPrefix: chunkPrefix, logger: logger}
}

// Search implements Client.
func (m *ManualBackend) Search(ctx context.Context, queryText string, limit int, threshold float64) ([]DocumentChunk, error) {
	queryVector, err := m.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, err
	}

	keys, err := m.blob.List(ctx, m.chunkPrefix)
	if err != nil {
		return nil, err
	}

	results := make([]DocumentChunk, 0, len(keys))
	for _, key := range keys {
		chunk, ok := m.loadChunk(ctx, key)
		if !ok {
			continue
		}
		score := cosineSimilarity(queryVector, chunk.Embedding)
		if score < threshold {
			continue
		}
		results = append(results, DocumentChunk{
			Source:  chunk.Source,
			Content: chunk.Content,
			Score:   score,
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// loadChunk loads and parses one chunk, tolerating missing or malformed
// entries by skipping them (spec.md §4.3) rather than failing the whole
// search.
func (m *ManualBackend) loadChunk(ctx context.Context, key string) (storedChunk, bool) {
	data, err := m.blob.Get(ctx, key)
	if err != nil {
		if m.logger != nil {
			m.logger.Warn(ctx, "retrieval: skipping unreadable chunk", observe.Field{Key: "key", Value: key}, observe.Field{Key: "error", Value: err.Error()})
		}
		return storedChunk{}, false
	}
	var chunk storedChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		if m.logger != nil {
			m.logger.Warn(ctx, "retrieval: skipping malformed chunk", observe.Field{Key: "key", Value: key}, observe.Field{Key: "error", Value: err.Error()})
		}
		return storedChunk{}, false
	}
	return chunk, true
}

var _ Client = (*ManualBackend)(nil)
