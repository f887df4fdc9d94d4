package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zsiec/tsingest/internal/config"
)

// Sink stores a chunk's bytes addressable by its offset.
type Sink interface {
	// Persist stores data for the chunk at offset and returns where it went.
	Persist(ctx context.Context, offset int64, data []byte) (string, error)
}

// FileSink writes one file per chunk into a directory.
type FileSink struct {
	dir     string
	pattern string
}

// NewFileSink creates the output directory if needed.
func NewFileSink(cfg *config.SinkConfig) (*FileSink, error) {
	if !strings.Contains(cfg.Pattern, "%d") {
		return nil, fmt.Errorf("sink pattern %q must contain %%d", cfg.Pattern)
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sink dir: %w", err)
	}
	return &FileSink{dir: cfg.Dir, pattern: cfg.Pattern}, nil
}

// Path returns the file a chunk at offset is written to.
func (s *FileSink) Path(offset int64) string {
	return filepath.Join(s.dir, fmt.Sprintf(s.pattern, offset))
}

// Persist writes data to a temporary file and renames it into place, so a
// reader never sees a partially written chunk.
func (s *FileSink) Persist(ctx context.Context, offset int64, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path := s.Path(offset)
	tmp, err := os.CreateTemp(s.dir, ".chunk-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write chunk: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close chunk: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to move chunk into place: %w", err)
	}
	return path, nil
}
