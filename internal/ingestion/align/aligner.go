package align

import (
	"context"
	"errors"

	apperrors "github.com/zsiec/tsingest/internal/errors"
	"github.com/zsiec/tsingest/internal/ingestion/frame"
	"github.com/zsiec/tsingest/internal/ingestion/mpegts"
	"github.com/zsiec/tsingest/internal/ingestion/types"
	"github.com/zsiec/tsingest/internal/logger"
	"github.com/zsiec/tsingest/internal/metrics"
)

var (
	// ErrKeyframeNotFound means no stride in the window starts on a keyframe.
	ErrKeyframeNotFound = errors.New("no keyframe-aligned start in scan window")
	// ErrEndOfObject means the probe offset is at or past the object end.
	ErrEndOfObject = errors.New("end of object")
)

// Prober fetches a byte window of the object.
type Prober interface {
	Probe(ctx context.Context, url string, offset, size int64) (*types.Chunk, error)
}

// Result is a keyframe-aligned chunk start.
type Result struct {
	Offset int64
	Track  mpegts.VideoTrack
	// Skew is how far Offset moved past the packet-aligned tentative offset.
	Skew int64
}

// Aligner moves tentative chunk offsets forward to the nearest packet
// boundary whose chunk would begin with a keyframe.
type Aligner struct {
	prober    Prober
	detector  frame.Detector
	tracks    *mpegts.TrackCache
	chunkSize int64
	window    int64
	logger    logger.Logger
}

// NewAligner creates an aligner. window is the probe length in bytes and
// should be a small multiple of chunkSize.
func NewAligner(prober Prober, detector frame.Detector, tracks *mpegts.TrackCache, chunkSize, window int64, log logger.Logger) *Aligner {
	if window < chunkSize {
		window = chunkSize
	}
	return &Aligner{
		prober:    prober,
		detector:  detector,
		tracks:    tracks,
		chunkSize: chunkSize,
		window:    window,
		logger:    logger.WithComponent(log, "aligner"),
	}
}

// Align probes the window starting at tentative rounded down to a packet
// boundary and returns the first stride offset whose hypothesized chunk
// starts with a keyframe.
func (a *Aligner) Align(ctx context.Context, url string, tentative int64) (Result, error) {
	base := mpegts.AlignDown(tentative)

	probe, err := a.prober.Probe(ctx, url, base, a.window)
	if err != nil {
		metrics.RecordAlignProbe(metrics.ResultError, 0)
		return Result{}, err
	}
	if len(probe.Data) == 0 {
		return Result{}, ErrEndOfObject
	}

	track, err := a.tracks.Resolve(ctx, probe.Data)
	if err != nil {
		metrics.RecordAlignProbe(metrics.ResultError, 0)
		return Result{}, apperrors.Wrap(err, apperrors.ErrorTypeTrackUnresolved, "no video pid in probe window").WithOffset(base)
	}

	idx, ok := FindKeyframeStart(a.detector, probe.Data, track.PID, a.chunkSize)
	if !ok {
		metrics.RecordAlignProbe(metrics.ResultNotFound, 0)
		a.logger.WithFields(map[string]interface{}{
			"offset":    base,
			"window":    len(probe.Data),
			"video_pid": track.PID,
			"scan_mode": a.detector.Mode(),
		}).Debug("No keyframe in probe window")
		return Result{}, apperrors.Wrap(ErrKeyframeNotFound, apperrors.ErrorTypeKeyframeNotFound, "no IDR frame found near offset").WithOffset(base)
	}

	skew := int64(idx)
	metrics.RecordAlignProbe(metrics.ResultFound, skew)
	return Result{Offset: base + skew, Track: track, Skew: skew}, nil
}

// FindKeyframeStart returns the first packet-aligned index i in window for
// which window[i:i+chunkSize] starts with a keyframe on pid. It depends
// only on its arguments.
func FindKeyframeStart(d frame.Detector, window []byte, pid uint16, chunkSize int64) (int, bool) {
	for i := 0; i+mpegts.PacketSize <= len(window); i += mpegts.PacketSize {
		end := len(window)
		if int64(end-i) > chunkSize {
			end = i + int(chunkSize)
		}
		if d.StartsWithKeyframe(window[i:end], pid) {
			return i, true
		}
	}
	return 0, false
}
