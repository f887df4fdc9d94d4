package pipeline

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/zsiec/tsingest/internal/errors"
	"github.com/zsiec/tsingest/internal/ingestion/registry"
	"github.com/zsiec/tsingest/internal/ingestion/types"
	"github.com/zsiec/tsingest/internal/ingestion/validation"
	"github.com/zsiec/tsingest/internal/logger"
	"github.com/zsiec/tsingest/internal/metrics"
)

// work pops descriptors until the queue is shut down and drained.
func (p *Pipeline) work(ctx context.Context, id int) error {
	metrics.WorkerStarted()
	defer metrics.WorkerStopped()

	log := p.logger.WithField("worker", id)
	for {
		chunk, ok := p.queue.Pop()
		if !ok {
			log.Debug("Queue drained, worker exiting")
			return nil
		}
		metrics.SetQueueDepth(p.queue.Len())
		if ctx.Err() != nil {
			// Cancelled: drain without fetching.
			continue
		}
		p.process(ctx, log, chunk)
	}
}

func (p *Pipeline) process(ctx context.Context, log logger.Logger, chunk *types.Chunk) {
	log = log.WithField("offset", chunk.Offset)
	isTail := chunk.Offset == p.tailOffset.Load()

	err := p.fetcher.Fetch(ctx, p.cfg.URL, chunk)
	switch {
	case err != nil:
		p.fail(ctx, log, chunk, err)
		if isTail {
			p.endOfObject(log, chunk, "tail fetch failed")
		}
		return

	case len(chunk.Data) == 0:
		log.WithField("requested", chunk.Size).Debug("Chunk past end of object")
		p.record(ctx, log, &registry.ChunkRecord{
			Offset: chunk.Offset,
			Status: registry.ChunkStatusEndOfObject,
			Reason: "no bytes past end of object",
		}, chunk)

	case p.detector.ContainsKeyframe(chunk.Data, p.track.PID):
		p.persist(ctx, log, chunk)

	default:
		p.fail(ctx, log, chunk, apperrors.NewKeyframeNotFoundError(chunk.Offset))
	}

	// The tail ends the run even when the object grew since it was
	// enqueued; nothing is pushed after it.
	switch {
	case chunk.ShortRead():
		p.endOfObject(log, chunk, "short read")
	case isTail:
		p.endOfObject(log, chunk, "tail chunk")
	}
}

func (p *Pipeline) persist(ctx context.Context, log logger.Logger, chunk *types.Chunk) {
	path, err := p.sink.Persist(ctx, chunk.Offset, chunk.Data)
	if err != nil {
		p.fail(ctx, log, chunk, apperrors.WrapPersistError(err, chunk.Offset))
		return
	}

	n := int64(len(chunk.Data))
	p.chunksPersisted.Add(1)
	p.bytesPersisted.Add(n)
	metrics.RecordChunkProcessed(metrics.ResultSuccess)

	report := validation.Inspect(chunk.Data, p.track.PID)
	metrics.AddContinuityErrors(report.Discontinuities)
	entry := log.WithFields(map[string]interface{}{
		"bytes":    n,
		"path":     path,
		"checksum": fmt.Sprintf("%08x", report.Checksum),
	})
	if !report.Clean() {
		entry.WithFields(map[string]interface{}{
			"sync_errors":     report.SyncErrors,
			"discontinuities": report.Discontinuities,
			"trailing_bytes":  report.TrailingBytes,
		}).Warn("Chunk persisted with transport errors")
	} else {
		entry.Info("Chunk persisted")
	}

	p.record(ctx, log, &registry.ChunkRecord{
		Offset:          chunk.Offset,
		Bytes:           n,
		Path:            path,
		Status:          registry.ChunkStatusPersisted,
		Checksum:        report.Checksum,
		Discontinuities: report.Discontinuities,
	}, chunk)
}

func (p *Pipeline) fail(ctx context.Context, log logger.Logger, chunk *types.Chunk, err error) {
	p.chunksFailed.Add(1)
	metrics.RecordChunkProcessed(metrics.ResultFailure)
	log.WithError(err).WithField("bytes", len(chunk.Data)).Warn("Chunk failed")

	p.record(ctx, log, &registry.ChunkRecord{
		Offset: chunk.Offset,
		Bytes:  int64(len(chunk.Data)),
		Status: registry.ChunkStatusFailed,
		Reason: err.Error(),
	}, chunk)
}

func (p *Pipeline) record(ctx context.Context, log logger.Logger, rec *registry.ChunkRecord, chunk *types.Chunk) {
	rec.RunID = p.cfg.RunID
	rec.Requested = chunk.Size
	rec.RecordedAt = time.Now()
	if err := p.ledger.RecordChunk(ctx, rec); err != nil {
		log.WithError(err).Warn("Failed to record chunk")
	}
}

// endOfObject shuts the queue down. Several workers may get here for the
// same run; only the one that performs the transition reports it.
func (p *Pipeline) endOfObject(log logger.Logger, chunk *types.Chunk, reason string) {
	p.shutdownQueue(log.WithFields(map[string]interface{}{
		"requested": chunk.Size,
		"received":  len(chunk.Data),
	}), reason)
}

func (p *Pipeline) shutdownQueue(log logger.Logger, reason string) bool {
	if !p.queue.Shutdown() {
		return false
	}
	p.shutdowns.Add(1)
	metrics.IncrementShutdownTriggers()
	log.WithField("reason", reason).Info("End of object reached, shutting down queue")
	return true
}
