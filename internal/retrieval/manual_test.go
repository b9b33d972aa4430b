package retrieval

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/store"
)

type fakeEmbedder struct {
	vector []float64
	err    error
}

func (f *fakeEmbedder) Embed(context.Context, string) ([]float64, error) {
	return f.vector, f.err
}

func putChunk(t *testing.T, blob store.Blob, key string, chunk storedChunk) {
	t.Helper()
	data, err := json.Marshal(chunk)
	require.NoError(t, err)
	require.NoError(t, blob.Put(context.Background(), key, data, "application/json"))
}

func TestManualBackend_ScoresFiltersSortsAndTruncates(t *testing.T) {
	blob := store.NewMemoryBlob()
	putChunk(t, blob, "chunks/a", storedChunk{Source: "a.md", Content: "alpha", Embedding: []float64{1, 0}})
	putChunk(t, blob, "chunks/b", storedChunk{Source: "b.md", Content: "beta", Embedding: []float64{0.9, 0.1}})
	putChunk(t, blob, "chunks/c", storedChunk{Source: "c.md", Content: "gamma", Embedding: []float64{0, 1}})

	backend := NewManualBackend(&fakeEmbedder{vector: []float64{1, 0}}, blob, "chunks/", nil)

	results, err := backend.Search(context.Background(), "query", 1, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a.md", results[0].Source)
}

func TestManualBackend_SkipsMalformedChunks(t *testing.T) {
	blob := store.NewMemoryBlob()
	putChunk(t, blob, "chunks/good", storedChunk{Source: "good.md", Content: "ok", Embedding: []float64{1, 0}})
	require.NoError(t, blob.Put(context.Background(), "chunks/bad", []byte("not json"), "application/json"))

	backend := NewManualBackend(&fakeEmbedder{vector: []float64{1, 0}}, blob, "chunks/", nil)

	results, err := backend.Search(context.Background(), "query", 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "good.md", results[0].Source)
}

func TestManualBackend_EmbedErrorPropagates(t *testing.T) {
	blob := store.NewMemoryBlob()
	backend := NewManualBackend(&fakeEmbedder{err: assertError("boom")}, blob, "chunks/", nil)

	_, err := backend.Search(context.Background(), "query", 10, 0)
	assert.Error(t, err)
}

type assertError string

func (e assertError) Error() string { return string(e) }
