package registry

import (
	"fmt"
	"time"
)

// RunStatus represents the lifecycle state of an ingest run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Run is one ingest of one object.
type Run struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	Status     RunStatus `json:"status"`
	VideoPID   uint16    `json:"video_pid"`
	ScanMode   string    `json:"scan_mode"`
	ChunkSize  int64     `json:"chunk_size"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Error      string    `json:"error,omitempty"`

	ChunksPersisted int64 `json:"chunks_persisted"`
	ChunksFailed    int64 `json:"chunks_failed"`
	BytesPersisted  int64 `json:"bytes_persisted"`
}

// Finish marks the run done with status and the optional error.
func (r *Run) Finish(status RunStatus, err error) {
	r.Status = status
	r.FinishedAt = time.Now()
	if err != nil {
		r.Error = err.Error()
	}
}

// Duration returns how long the run took, or has taken so far.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// ChunkStatus is the outcome of processing one chunk.
type ChunkStatus string

const (
	ChunkStatusPersisted ChunkStatus = "persisted"
	ChunkStatusFailed    ChunkStatus = "failed"
	// ChunkStatusEndOfObject marks a descriptor that started at or past
	// the end of the object and downloaded nothing.
	ChunkStatusEndOfObject ChunkStatus = "end_of_object"
)

// ChunkRecord is the ledger entry for one chunk.
type ChunkRecord struct {
	RunID      string      `json:"run_id"`
	Offset     int64       `json:"offset"`
	Requested  int64       `json:"requested"`
	Bytes      int64       `json:"bytes"`
	Path       string      `json:"path,omitempty"`
	Status     ChunkStatus `json:"status"`
	Reason     string      `json:"reason,omitempty"`
	RecordedAt time.Time   `json:"recorded_at"`

	// CRC-32 (IEEE) of the persisted bytes and the continuity counter gaps
	// seen inside them.
	Checksum        uint32 `json:"checksum,omitempty"`
	Discontinuities int64  `json:"discontinuities,omitempty"`
}

func (c *ChunkRecord) String() string {
	return fmt.Sprintf("%s@%d[%d/%d]", c.Status, c.Offset, c.Bytes, c.Requested)
}

func copyRun(r *Run) *Run {
	cp := *r
	return &cp
}

func copyChunk(c *ChunkRecord) *ChunkRecord {
	cp := *c
	return &cp
}
