package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func schemasForTest() map[string]KeySchema {
	return map[string]KeySchema{
		"sessions":      {PartitionKey: "session_id"},
		"conversations": {PartitionKey: "session_id", SortKey: "message_id"},
	}
}

func TestMemoryKV_PutIfAbsent(t *testing.T) {
	kv := NewMemoryKV(schemasForTest())
	ctx := context.Background()

	item := Item{"session_id": "s1", "status": "ACTIVE"}
	require.NoError(t, kv.PutIfAbsent(ctx, "sessions", item, 0))

	err := kv.PutIfAbsent(ctx, "sessions", item, 0)
	assert.ErrorIs(t, err, ErrConditionFailed)
}

func TestMemoryKV_UpdateIfExists(t *testing.T) {
	kv := NewMemoryKV(schemasForTest())
	ctx := context.Background()

	key := Item{"session_id": "s1"}
	err := kv.UpdateIfExists(ctx, "sessions", key, Item{"status": "CLOSED"})
	assert.ErrorIs(t, err, ErrConditionFailed)

	require.NoError(t, kv.Put(ctx, "sessions", Item{"session_id": "s1", "status": "ACTIVE"}, 0))
	require.NoError(t, kv.UpdateIfExists(ctx, "sessions", key, Item{"status": "CLOSED"}))

	got, ok, err := kv.Get(ctx, "sessions", key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "CLOSED", got["status"])
}

func TestMemoryKV_ExpiresByTTL(t *testing.T) {
	kv := NewMemoryKV(schemasForTest())
	ctx := context.Background()

	require.NoError(t, kv.Put(ctx, "sessions", Item{"session_id": "s1"}, time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, ok, err := kv.Get(ctx, "sessions", Item{"session_id": "s1"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryKV_QueryOrdersBySortKey(t *testing.T) {
	kv := NewMemoryKV(schemasForTest())
	ctx := context.Background()

	require.NoError(t, kv.Put(ctx, "conversations", Item{"session_id": "s1", "message_id": "3"}, 0))
	require.NoError(t, kv.Put(ctx, "conversations", Item{"session_id": "s1", "message_id": "1"}, 0))
	require.NoError(t, kv.Put(ctx, "conversations", Item{"session_id": "s1", "message_id": "2"}, 0))

	var ordered []string
	err := kv.Query(ctx, "conversations", "session_id", "s1", func(item Item) error {
		ordered = append(ordered, item["message_id"].(string))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, ordered)
}

func TestMemoryBlob_RoundTrip(t *testing.T) {
	blob := NewMemoryBlob()
	ctx := context.Background()

	require.NoError(t, blob.Put(ctx, "incidents/img1.jpg", []byte("data"), "image/jpeg"))

	got, err := blob.Get(ctx, "incidents/img1.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), got)

	_, err = blob.Get(ctx, "incidents/missing.jpg")
	assert.ErrorIs(t, err, ErrNotFound)

	keys, err := blob.List(ctx, "incidents/")
	require.NoError(t, err)
	assert.Equal(t, []string{"incidents/img1.jpg"}, keys)
}
