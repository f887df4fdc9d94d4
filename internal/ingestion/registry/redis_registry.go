package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zsiec/tsingest/internal/logger"
)

// RedisRegistry implements Registry on Redis. Each run is a JSON value,
// each chunk a JSON value, and a sorted set per run indexes chunk offsets.
type RedisRegistry struct {
	client *redis.Client
	logger logger.Logger
	prefix string
	ttl    time.Duration
}

// NewRedisRegistry creates a Redis-backed registry.
func NewRedisRegistry(client *redis.Client, log logger.Logger, prefix string, ttl time.Duration) *RedisRegistry {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if prefix == "" {
		prefix = "tsingest:chunks:"
	}
	return &RedisRegistry{
		client: client,
		logger: logger.WithComponent(log, "registry"),
		prefix: prefix,
		ttl:    ttl,
	}
}

func (r *RedisRegistry) runKey(runID string) string {
	return r.prefix + "run:" + runID
}

func (r *RedisRegistry) indexKey(runID string) string {
	return r.prefix + "run:" + runID + ":offsets"
}

func (r *RedisRegistry) chunkKey(runID string, offset int64) string {
	return r.prefix + "run:" + runID + ":chunk:" + strconv.FormatInt(offset, 10)
}

// registerRunScript sets the run only if absent.
var registerRunScript = redis.NewScript(`
	local ok = redis.call('SET', KEYS[1], ARGV[1], 'PX', tonumber(ARGV[2]), 'NX')
	if not ok then
		return 0
	end
	return 1
`)

func (r *RedisRegistry) RegisterRun(ctx context.Context, run *Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	result, err := registerRunScript.Run(ctx, r.client,
		[]string{r.runKey(run.ID)}, data, r.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to register run: %w", err)
	}
	if result == 0 {
		return fmt.Errorf("run %s already exists", run.ID)
	}

	r.logger.WithFields(map[string]interface{}{
		"run_id": run.ID,
		"url":    run.URL,
	}).Info("Run registered")
	return nil
}

func (r *RedisRegistry) UpdateRun(ctx context.Context, run *Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	ok, err := r.client.SetXX(ctx, r.runKey(run.ID), data, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if !ok {
		return ErrRunNotFound
	}
	return nil
}

func (r *RedisRegistry) GetRun(ctx context.Context, runID string) (*Run, error) {
	data, err := r.client.Get(ctx, r.runKey(runID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	return &run, nil
}

func (r *RedisRegistry) RecordChunk(ctx context.Context, rec *ChunkRecord) error {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal chunk: %w", err)
	}

	indexKey := r.indexKey(rec.RunID)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.chunkKey(rec.RunID, rec.Offset), data, r.ttl)
		pipe.ZAdd(ctx, indexKey, redis.Z{
			Score:  float64(rec.Offset),
			Member: strconv.FormatInt(rec.Offset, 10),
		})
		pipe.Expire(ctx, indexKey, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record chunk: %w", err)
	}
	return nil
}

func (r *RedisRegistry) GetChunk(ctx context.Context, runID string, offset int64) (*ChunkRecord, error) {
	data, err := r.client.Get(ctx, r.chunkKey(runID, offset)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrChunkNotFound
		}
		return nil, fmt.Errorf("failed to get chunk: %w", err)
	}

	var rec ChunkRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal chunk: %w", err)
	}
	return &rec, nil
}

func (r *RedisRegistry) ListChunks(ctx context.Context, runID string) ([]*ChunkRecord, error) {
	offsets, err := r.client.ZRange(ctx, r.indexKey(runID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list chunk offsets: %w", err)
	}
	if len(offsets) == 0 {
		return []*ChunkRecord{}, nil
	}

	keys := make([]string, len(offsets))
	for i, member := range offsets {
		keys[i] = r.prefix + "run:" + runID + ":chunk:" + member
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks: %w", err)
	}

	records := make([]*ChunkRecord, 0, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			// Expired between ZRANGE and MGET.
			continue
		}
		var rec ChunkRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			r.logger.WithError(err).WithField("key", keys[i]).Warn("Skipping undecodable chunk record")
			continue
		}
		records = append(records, &rec)
	}
	return records, nil
}

func (r *RedisRegistry) Close() error {
	return r.client.Close()
}
