// Package checkpoint provides durable persistence of conversation
// snapshots keyed by thread id. Backing storage is opaque to the engine:
// anything supporting point lookups by thread with last-write-wins
// latest semantics works.
package checkpoint

import (
	"context"
	"errors"
	"time"
)

// Store persists checkpoints. Implementations must be safe for
// concurrent use; the engine serializes writers per thread, but
// different threads write concurrently.
type Store interface {
	// Put stores a new checkpoint. Checkpoints are insert-only; putting
	// an ID that already exists returns ErrDuplicateID.
	Put(ctx context.Context, cp *Checkpoint) error

	// Latest returns the highest-sequence checkpoint for a thread.
	// Returns ErrNotFound if the thread has no checkpoints.
	Latest(ctx context.Context, threadID string) (*Checkpoint, error)

	// Get retrieves a checkpoint by id.
	// Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*Checkpoint, error)

	// List returns metadata for all checkpoints of a thread, ordered by
	// sequence. Returns an empty slice (not an error) for an unknown
	// thread.
	List(ctx context.Context, threadID string) ([]Info, error)

	// DeleteThread removes all checkpoints for a thread. Returns nil if
	// the thread has none. The engine never calls this; it exists for
	// operators (data deletion requests).
	DeleteThread(ctx context.Context, threadID string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Info provides checkpoint metadata without loading full state.
type Info struct {
	ID        string
	ThreadID  string
	Sequence  int
	Timestamp time.Time
	Status    Status
	Size      int64
}

// Sentinel errors for checkpoint operations.
var (
	// ErrNotFound indicates a checkpoint doesn't exist.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("checkpoint store closed")

	// ErrDuplicateID indicates an attempt to overwrite a checkpoint.
	// Checkpoints are immutable once written.
	ErrDuplicateID = errors.New("checkpoint already exists")
)
