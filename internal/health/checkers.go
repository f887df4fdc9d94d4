package health

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/redis/go-redis/v9"
)

// RedisChecker checks connectivity to the chunk ledger's Redis.
type RedisChecker struct {
	client *redis.Client
}

// NewRedisChecker creates a new Redis health checker.
func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

func (r *RedisChecker) Name() string { return "redis" }

func (r *RedisChecker) Check(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Doer performs one HTTP request.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// OriginChecker issues a HEAD request for the source object.
type OriginChecker struct {
	client Doer
	url    string
}

// NewOriginChecker creates a checker for url.
func NewOriginChecker(client Doer, url string) *OriginChecker {
	return &OriginChecker{client: client, url: url}
}

func (o *OriginChecker) Name() string { return "origin" }

func (o *OriginChecker) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, o.url, nil)
	if err != nil {
		return err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("origin unreachable: %w", err)
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("origin returned %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return &DegradedError{Reason: fmt.Sprintf("origin returned %d", resp.StatusCode)}
	}
	if resp.Header.Get("Accept-Ranges") == "none" {
		return &DegradedError{Reason: "origin does not accept range requests"}
	}
	return nil
}

// SinkChecker verifies the sink directory exists and is writable.
type SinkChecker struct {
	dir string
}

// NewSinkChecker creates a checker for dir.
func NewSinkChecker(dir string) *SinkChecker {
	return &SinkChecker{dir: dir}
}

func (s *SinkChecker) Name() string { return "sink" }

func (s *SinkChecker) Check(ctx context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("sink dir unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("sink path %s is not a directory", s.dir)
	}

	f, err := os.CreateTemp(s.dir, ".health-*")
	if err != nil {
		return fmt.Errorf("sink dir not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
