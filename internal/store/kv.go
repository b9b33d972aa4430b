// Package store defines the key-value document store and blob store
// collaborators the chatbot core depends on (spec.md §1: "out of scope,
// specified only at their interface"). The core only ever talks to the
// KV and Blob interfaces below; DynamoDB/S3 implementations and
// in-memory fakes both satisfy them.
package store

import (
	"context"
	"time"
)

// Item is one row: a flat map of attribute name to scalar, list, or
// nested-map value. All fractional numeric values must already be
// fixed-precision decimals by the time they reach Put (see
// internal/analytics for the float→decimal conversion boundary).
type Item map[string]any

// KV is the key-value document store collaborator: sessions,
// conversations, analytics events, tickets, and workflow events all live
// here, each in its own named table/partition.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Context: every method must honor cancellation/deadlines.
//   - TTL: ttl<=0 means the row never expires via the store's TTL
//     attribute; the caller is still responsible for logical expiry
//     checks (see internal/session).
type KV interface {
	// Put writes item unconditionally, overwriting any existing row with
	// the same key.
	Put(ctx context.Context, table string, item Item, ttl time.Duration) error

	// PutIfAbsent writes item only if no row with the same key exists.
	// Returns ErrConditionFailed if a row is already present.
	PutIfAbsent(ctx context.Context, table string, item Item, ttl time.Duration) error

	// Get reads the row identified by key (partition key, and sort key if
	// the table has one). Returns ok=false on miss.
	Get(ctx context.Context, table string, key Item) (Item, bool, error)

	// UpdateIfExists applies the given attribute updates only if a row
	// with the given key already exists. Returns ErrConditionFailed
	// otherwise.
	UpdateIfExists(ctx context.Context, table string, key Item, updates Item) error

	// Delete removes the row identified by key. Idempotent - no error on
	// miss.
	Delete(ctx context.Context, table string, key Item) error

	// Scan iterates every row in a table, invoking fn for each (use
	// Query to restrict to one partition). Scan stops and returns fn's
	// error if fn returns non-nil.
	Scan(ctx context.Context, table string, fn func(Item) error) error

	// Query iterates rows sharing a partition key, sorted by sort key.
	Query(ctx context.Context, table string, partitionKeyName string, partitionKeyValue any, fn func(Item) error) error
}

// Blob is the binary object store collaborator: incident-report images
// and pre-processed retrieval chunks live here.
//
// Contract: implementations must be safe for concurrent use and must
// honor context cancellation.
type Blob interface {
	// Put uploads data under bucket-relative key, overwriting any
	// existing object.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Get downloads the object at key. Returns ErrNotFound on miss.
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns every key that starts with prefix, including keys
	// below further "/" levels (implementations page internally).
	List(ctx context.Context, prefix string) ([]string, error)
}
