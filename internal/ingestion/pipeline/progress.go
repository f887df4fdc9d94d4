package pipeline

import (
	"time"
)

// Progress is a snapshot of a running pipeline.
type Progress struct {
	RunID           string    `json:"run_id"`
	URL             string    `json:"url"`
	Status          Status    `json:"status"`
	VideoPID        uint16    `json:"video_pid"`
	ScanMode        string    `json:"scan_mode"`
	Cursor          int64     `json:"cursor"`
	QueueDepth      int       `json:"queue_depth"`
	ChunksEnqueued  uint64    `json:"chunks_enqueued"`
	ChunksPersisted uint64    `json:"chunks_persisted"`
	ChunksFailed    uint64    `json:"chunks_failed"`
	AlignMisses     uint64    `json:"align_misses"`
	BytesPersisted  int64     `json:"bytes_persisted"`
	StartedAt       time.Time `json:"started_at"`
	Elapsed         string    `json:"elapsed"`
	Error           string    `json:"error,omitempty"`
}

// Progress returns the current counters. It is safe to call concurrently
// with Run.
func (p *Pipeline) Progress() Progress {
	p.mu.RLock()
	status, startedAt, runErr := p.status, p.startedAt, p.runErr
	p.mu.RUnlock()

	pr := Progress{
		RunID:           p.cfg.RunID,
		URL:             p.cfg.URL,
		Status:          status,
		VideoPID:        p.Track().PID,
		ScanMode:        string(p.detector.Mode()),
		Cursor:          p.cursor.Load(),
		QueueDepth:      p.queue.Len(),
		ChunksEnqueued:  p.chunksEnqueued.Load(),
		ChunksPersisted: p.chunksPersisted.Load(),
		ChunksFailed:    p.chunksFailed.Load(),
		AlignMisses:     p.alignMisses.Load(),
		BytesPersisted:  p.bytesPersisted.Load(),
		StartedAt:       startedAt,
	}
	if !startedAt.IsZero() {
		pr.Elapsed = time.Since(startedAt).Round(time.Millisecond).String()
	}
	if runErr != nil {
		pr.Error = runErr.Error()
	}
	return pr
}
