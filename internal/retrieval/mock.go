package retrieval

import (
	"context"
	"fmt"
	"hash/fnv"
)

// MockBackend returns a small deterministic set derived from a hash of
// the query, explicitly flagged via DocumentChunk.IsMock — a development
// affordance (spec.md §4.3), never production behavior. Gated by
// config.RetrievalConfig.AllowMockRetrieval at the call site in New.
type MockBackend struct{}

// Search implements Client.
func (MockBackend) Search(_ context.Context, queryText string, limit int, _ float64) ([]DocumentChunk, error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(queryText))
	seed := h.Sum32()

	count := limit
	if count <= 0 || count > 3 {
		count = 3
	}

	results := make([]DocumentChunk, 0, count)
	for i := 0; i < count; i++ {
		results = append(results, DocumentChunk{
			Source:  fmt.Sprintf("mock-source-%d", (seed+uint32(i))%7),
			Content: fmt.Sprintf("Mock retrieval content %d for query hash %d.", i+1, seed),
			Score:   1.0 - float64(i)*0.1,
			IsMock:  true,
		})
	}
	return results, nil
}

var _ Client = MockBackend{}
