package registry

import (
	"context"
	"errors"
)

var (
	// ErrRunNotFound is returned when a run is not in the registry
	ErrRunNotFound = errors.New("run not found")
	// ErrChunkNotFound is returned when a chunk is not in the registry
	ErrChunkNotFound = errors.New("chunk not found")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("registry closed")
)

// Registry is the ledger of ingest runs and the chunks they persisted.
type Registry interface {
	// RegisterRun records a new run
	RegisterRun(ctx context.Context, run *Run) error

	// UpdateRun replaces the stored state of an existing run
	UpdateRun(ctx context.Context, run *Run) error

	// GetRun retrieves a run by ID
	GetRun(ctx context.Context, runID string) (*Run, error)

	// RecordChunk stores the outcome for one chunk, replacing any earlier
	// outcome at the same offset
	RecordChunk(ctx context.Context, rec *ChunkRecord) error

	// GetChunk retrieves the outcome for the chunk at offset
	GetChunk(ctx context.Context, runID string, offset int64) (*ChunkRecord, error)

	// ListChunks returns all recorded chunks of a run in offset order
	ListChunks(ctx context.Context, runID string) ([]*ChunkRecord, error)

	// Close releases any resources held by the registry
	Close() error
}
