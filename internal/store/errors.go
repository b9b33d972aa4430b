package store

import "errors"

// ErrConditionFailed is returned by PutIfAbsent/UpdateIfExists when the
// conditional write does not apply (row already exists / does not exist).
var ErrConditionFailed = errors.New("store: conditional write did not apply")

// ErrNotFound is returned by Blob.Get on a missing key.
var ErrNotFound = errors.New("store: object not found")
