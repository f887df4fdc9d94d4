package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryRegistry is an in-process Registry, used when no Redis is
// configured and in tests.
type MemoryRegistry struct {
	mu     sync.RWMutex
	runs   map[string]*Run
	chunks map[string]map[int64]*ChunkRecord
	closed bool
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		runs:   make(map[string]*Run),
		chunks: make(map[string]map[int64]*ChunkRecord),
	}
}

func (m *MemoryRegistry) RegisterRun(ctx context.Context, run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if _, exists := m.runs[run.ID]; exists {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	m.runs[run.ID] = copyRun(run)
	return nil
}

func (m *MemoryRegistry) UpdateRun(ctx context.Context, run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if _, exists := m.runs[run.ID]; !exists {
		return ErrRunNotFound
	}
	m.runs[run.ID] = copyRun(run)
	return nil
}

func (m *MemoryRegistry) GetRun(ctx context.Context, runID string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, exists := m.runs[runID]
	if !exists {
		return nil, ErrRunNotFound
	}
	return copyRun(run), nil
}

func (m *MemoryRegistry) RecordChunk(ctx context.Context, rec *ChunkRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now()
	}
	byOffset, ok := m.chunks[rec.RunID]
	if !ok {
		byOffset = make(map[int64]*ChunkRecord)
		m.chunks[rec.RunID] = byOffset
	}
	byOffset[rec.Offset] = copyChunk(rec)
	return nil
}

func (m *MemoryRegistry) GetChunk(ctx context.Context, runID string, offset int64) (*ChunkRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.chunks[runID][offset]
	if !ok {
		return nil, ErrChunkNotFound
	}
	return copyChunk(rec), nil
}

func (m *MemoryRegistry) ListChunks(ctx context.Context, runID string) ([]*ChunkRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*ChunkRecord, 0, len(m.chunks[runID]))
	for _, rec := range m.chunks[runID] {
		out = append(out, copyChunk(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out, nil
}

func (m *MemoryRegistry) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
