package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/zsiec/tsingest/internal/errors"
	"github.com/zsiec/tsingest/internal/ingestion/align"
	"github.com/zsiec/tsingest/internal/ingestion/frame"
	"github.com/zsiec/tsingest/internal/ingestion/mpegts"
	"github.com/zsiec/tsingest/internal/ingestion/registry"
	"github.com/zsiec/tsingest/internal/ingestion/types"
	"github.com/zsiec/tsingest/internal/logger"
	"github.com/zsiec/tsingest/internal/queue"
	"github.com/zsiec/tsingest/internal/sink"
)

// Fetcher downloads byte ranges of the source object.
type Fetcher interface {
	align.Prober
	Fetch(ctx context.Context, url string, chunk *types.Chunk) error
}

// Config holds pipeline configuration
type Config struct {
	RunID     string
	URL       string
	ChunkSize int64
	Window    int64 // aligner probe length, a small multiple of ChunkSize
	Workers   int
	Pacing    time.Duration // minimum gap between producer iterations
	// QueueCapacity bounds the chunk queue; zero leaves it unbounded.
	QueueCapacity int
	// MaxFetchMisses is how many alignment fetches in a row may fail
	// before the producer gives up on the object.
	MaxFetchMisses int
}

// DefaultMaxFetchMisses applies when Config.MaxFetchMisses is unset.
const DefaultMaxFetchMisses = 5

// Status is the lifecycle state reported by Progress.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusResolving Status = "resolving"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Pipeline splits one object into keyframe-aligned chunks. One producer
// aligns and enqueues chunk descriptors; a fixed pool of workers fetches,
// validates and persists them. The first worker to see a short read shuts
// the queue down.
type Pipeline struct {
	cfg      Config
	fetcher  Fetcher
	detector frame.Detector
	sink     sink.Sink
	ledger   registry.Registry
	tracks   *mpegts.TrackCache
	aligner  *align.Aligner
	queue    *queue.ChunkQueue
	logger   logger.Logger

	track      mpegts.VideoTrack
	cursor     atomic.Int64
	tailOffset atomic.Int64

	chunksEnqueued  atomic.Uint64
	chunksPersisted atomic.Uint64
	chunksFailed    atomic.Uint64
	alignMisses     atomic.Uint64
	bytesPersisted  atomic.Int64
	shutdowns       atomic.Uint64

	mu        sync.RWMutex
	status    Status
	startedAt time.Time
	runErr    error
	runOnce   sync.Once
}

// New creates a pipeline. A nil ledger records into memory.
func New(cfg Config, fetcher Fetcher, detector frame.Detector, s sink.Sink, ledger registry.Registry, log logger.Logger) (*Pipeline, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("object URL required")
	}
	if cfg.ChunkSize <= 0 || cfg.ChunkSize%mpegts.PacketSize != 0 {
		return nil, fmt.Errorf("chunk size %d must be a positive multiple of %d", cfg.ChunkSize, mpegts.PacketSize)
	}
	if cfg.Window < cfg.ChunkSize {
		cfg.Window = 2 * cfg.ChunkSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 5
	}
	if cfg.MaxFetchMisses <= 0 {
		cfg.MaxFetchMisses = DefaultMaxFetchMisses
	}
	if ledger == nil {
		ledger = registry.NewMemoryRegistry()
	}

	log = logger.WithComponent(log, "pipeline").WithFields(map[string]interface{}{
		"run_id": cfg.RunID,
		"url":    cfg.URL,
	})

	tracks := mpegts.NewTrackCache()
	p := &Pipeline{
		cfg:      cfg,
		fetcher:  fetcher,
		detector: detector,
		sink:     s,
		ledger:   ledger,
		tracks:   tracks,
		aligner:  align.NewAligner(fetcher, detector, tracks, cfg.ChunkSize, cfg.Window, log),
		queue:    queue.NewChunkQueue(cfg.QueueCapacity),
		logger:   log,
		status:   StatusIdle,
	}
	p.tailOffset.Store(-1)
	return p, nil
}

// Run resolves the video track and then ingests the object until a worker
// observes the end of the object or ctx is cancelled. Run may be called
// once. Failing to resolve the video track from the head of the object is
// the only fatal error.
func (p *Pipeline) Run(ctx context.Context) error {
	err := fmt.Errorf("pipeline already run")
	p.runOnce.Do(func() {
		err = p.run(ctx)
	})
	return err
}

func (p *Pipeline) run(ctx context.Context) error {
	p.mu.Lock()
	p.startedAt = time.Now()
	p.status = StatusResolving
	p.mu.Unlock()

	track, err := p.resolveTrack(ctx)
	if err != nil {
		p.finish(StatusFailed, err, nil)
		return err
	}
	p.track = track
	p.logger.WithFields(map[string]interface{}{
		"video_pid":   fmt.Sprintf("0x%04x", track.PID),
		"stream_type": fmt.Sprintf("0x%02x", track.StreamType),
		"source":      track.Source,
		"scan_mode":   p.detector.Mode(),
	}).Info("Video track resolved")

	run := &registry.Run{
		ID:        p.cfg.RunID,
		URL:       p.cfg.URL,
		Status:    registry.RunStatusRunning,
		VideoPID:  track.PID,
		ScanMode:  string(p.detector.Mode()),
		ChunkSize: p.cfg.ChunkSize,
		StartedAt: p.startedAt,
	}
	if err := p.ledger.RegisterRun(ctx, run); err != nil {
		p.logger.WithError(err).Warn("Failed to register run")
	}

	p.setStatus(StatusRunning)

	g, gctx := errgroup.WithContext(ctx)
	stop := make(chan struct{})
	go func() {
		select {
		case <-gctx.Done():
			p.queue.Shutdown()
		case <-stop:
		}
	}()

	g.Go(func() error { return p.produce(gctx) })
	for i := 0; i < p.cfg.Workers; i++ {
		id := i
		g.Go(func() error { return p.work(gctx, id) })
	}

	err = g.Wait()
	close(stop)

	switch {
	case err != nil:
		p.finish(StatusFailed, err, run)
	case ctx.Err() != nil:
		err = ctx.Err()
		p.finish(StatusCancelled, err, run)
	default:
		p.finish(StatusCompleted, nil, run)
	}
	return err
}

// resolveTrack probes the head of the object and resolves the video PID.
func (p *Pipeline) resolveTrack(ctx context.Context) (mpegts.VideoTrack, error) {
	probe, err := p.fetcher.Probe(ctx, p.cfg.URL, 0, p.cfg.Window)
	if err != nil {
		return mpegts.VideoTrack{}, apperrors.Wrap(err, apperrors.ErrorTypeTrackUnresolved, "failed to fetch stream head")
	}
	if len(probe.Data) == 0 {
		return mpegts.VideoTrack{}, apperrors.NewTrackUnresolvedError("object is empty")
	}

	track, err := p.tracks.Resolve(ctx, probe.Data)
	if err != nil {
		return mpegts.VideoTrack{}, apperrors.Wrap(err, apperrors.ErrorTypeTrackUnresolved, "no video track in stream head").
			WithDetails(map[string]interface{}{"probe_bytes": len(probe.Data)})
	}
	return track, nil
}

func (p *Pipeline) setStatus(s Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = s
}

func (p *Pipeline) finish(status Status, err error, run *registry.Run) {
	p.mu.Lock()
	p.status = status
	p.runErr = err
	p.mu.Unlock()

	fields := map[string]interface{}{
		"status":           status,
		"chunks_enqueued":  p.chunksEnqueued.Load(),
		"chunks_persisted": p.chunksPersisted.Load(),
		"chunks_failed":    p.chunksFailed.Load(),
		"bytes_persisted":  p.bytesPersisted.Load(),
	}
	if err != nil {
		p.logger.WithError(err).WithFields(fields).Error("Ingest run ended")
	} else {
		p.logger.WithFields(fields).Info("Ingest run ended")
	}

	if run == nil {
		return
	}
	run.ChunksPersisted = int64(p.chunksPersisted.Load())
	run.ChunksFailed = int64(p.chunksFailed.Load())
	run.BytesPersisted = p.bytesPersisted.Load()

	runStatus := registry.RunStatusCompleted
	switch status {
	case StatusFailed:
		runStatus = registry.RunStatusFailed
	case StatusCancelled:
		runStatus = registry.RunStatusCancelled
	}
	run.Finish(runStatus, err)

	// The run context may already be cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.ledger.UpdateRun(ctx, run); err != nil {
		p.logger.WithError(err).Warn("Failed to update run")
	}
}

// Track returns the resolved video track; it is zero before Run resolves it.
func (p *Pipeline) Track() mpegts.VideoTrack {
	t, _ := p.tracks.Get()
	return t
}

// Shutdowns returns how many times a worker performed the queue shutdown.
func (p *Pipeline) Shutdowns() uint64 {
	return p.shutdowns.Load()
}

// Ledger returns the registry the pipeline records into.
func (p *Pipeline) Ledger() registry.Registry {
	return p.ledger
}
