// Package blob abstracts durable artifact storage.
//
// Completed job artifacts live under a content key derived from the
// platform and a generated safe filename. Stores implement a minimal
// byte-stream surface; authentication uses SDK default credential
// chains - stores should not implement custom auth logic.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Store abstracts artifact byte storage.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Save durably writes size bytes from r under key, overwriting any
	// existing object.
	Save(ctx context.Context, key string, r io.Reader, size int64) error

	// Open returns a reader over the object and its size in bytes.
	// Returns ErrNotFound if the object does not exist.
	Open(ctx context.Context, key string) (io.ReadCloser, int64, error)

	// Stat returns the object size in bytes.
	// Returns ErrNotFound if the object does not exist.
	Stat(ctx context.Context, key string) (int64, error)

	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the store.
	Close() error
}

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates the requested object does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrAccessDenied indicates insufficient permissions.
	ErrAccessDenied = errors.New("access denied")

	// ErrUnavailable indicates the backing service is unavailable.
	ErrUnavailable = errors.New("store unavailable")
)

// StoreError wraps backend-specific errors with context.
type StoreError struct {
	// Op is the operation that failed (e.g. "Save", "Open").
	Op string

	// Backend identifies the store implementation (e.g. "file", "s3").
	Backend string

	// Key is the object key, if applicable.
	Key string

	// Err is the underlying error.
	Err error
}

func (e *StoreError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s %s: %s: %v", e.Backend, e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the error indicates a missing object.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
