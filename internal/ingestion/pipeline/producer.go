package pipeline

import (
	"context"
	"errors"

	"golang.org/x/time/rate"

	apperrors "github.com/zsiec/tsingest/internal/errors"
	"github.com/zsiec/tsingest/internal/ingestion/align"
	"github.com/zsiec/tsingest/internal/ingestion/mpegts"
	"github.com/zsiec/tsingest/internal/ingestion/types"
	"github.com/zsiec/tsingest/internal/metrics"
	"github.com/zsiec/tsingest/internal/queue"
)

func newPacer(p Config) *rate.Limiter {
	if p.Pacing <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(p.Pacing), 1)
}

// produce advances the cursor one chunk at a time, aligns each tentative
// offset to a keyframe and enqueues the aligned descriptor. Pushed offsets
// are strictly increasing. Once the probe runs past the end of the object
// a final tail descriptor is pushed; the worker that fetches it shuts the
// queue down. If the origin fails MaxFetchMisses alignment fetches in a row
// the producer shuts the queue down itself.
func (p *Pipeline) produce(ctx context.Context) error {
	pacer := newPacer(p.cfg)
	size := p.cfg.ChunkSize
	lastPushed := int64(-1)
	misses := 0

	for !p.queue.IsShutdown() {
		if err := pacer.Wait(ctx); err != nil {
			return nil
		}

		tentative := p.cursor.Add(size) - size
		log := p.logger.WithField("cursor", tentative)

		res, err := p.aligner.Align(ctx, p.cfg.URL, tentative)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, align.ErrEndOfObject) {
				tail := mpegts.AlignDown(tentative)
				if tail <= lastPushed {
					tail = lastPushed + mpegts.PacketSize
				}
				p.tailOffset.Store(tail)
				log.WithField("offset", tail).Info("Probe reached end of object, enqueueing tail")
				_ = p.push(types.NewChunk(tail, size))
				return nil
			}

			p.alignMisses.Add(1)
			switch {
			case apperrors.IsType(err, apperrors.ErrorTypeFetchFailed):
				misses++
				log.WithError(err).WithField("misses", misses).Warn("Alignment probe failed")
				if misses >= p.cfg.MaxFetchMisses {
					log.WithField("last_offset", lastPushed).Error("Origin keeps failing, giving up on object")
					p.shutdownQueue(log, "fetch failures")
					return nil
				}
			case apperrors.IsType(err, apperrors.ErrorTypeKeyframeNotFound):
				misses = 0
				log.Debug("No keyframe-aligned chunk start in window")
			default:
				log.WithError(err).Warn("Alignment probe failed")
			}
			continue
		}
		misses = 0

		if res.Offset <= lastPushed {
			log.WithField("offset", res.Offset).Debug("Aligned offset already enqueued")
			continue
		}

		if err := p.push(types.NewChunk(res.Offset, size)); err != nil {
			return nil
		}
		lastPushed = res.Offset
	}
	return nil
}

func (p *Pipeline) push(c *types.Chunk) error {
	if err := p.queue.Push(c); err != nil {
		if errors.Is(err, queue.ErrQueueShutdown) {
			p.logger.WithField("offset", c.Offset).Debug("Queue shut down, dropping descriptor")
		}
		return err
	}
	p.chunksEnqueued.Add(1)
	metrics.IncrementChunksEnqueued()
	metrics.SetQueueDepth(p.queue.Len())
	return nil
}
