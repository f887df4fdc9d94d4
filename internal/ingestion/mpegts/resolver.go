package mpegts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	astits "github.com/asticode/go-astits"
)

// Video stream types from ISO/IEC 13818-1 table 2-34.
const (
	StreamTypeMPEG1Video uint8 = 0x01
	StreamTypeMPEG2Video uint8 = 0x02
	StreamTypeH264Video  uint8 = 0x1B
	StreamTypeH265Video  uint8 = 0x24
)

// maxDemuxIterations bounds how many units the PSI demuxer may return
// before the probe gives up on finding a PMT.
const maxDemuxIterations = 4096

// FallbackVideoPIDs are probed in order when no PMT can be decoded.
var FallbackVideoPIDs = []uint16{0x100, 0x101, 0x11, 0x20}

// ErrTrackUnresolved is returned when no video PID can be determined.
var ErrTrackUnresolved = errors.New("video track unresolved")

// TrackSource records which strategy produced a VideoTrack.
type TrackSource string

const (
	TrackSourcePMT      TrackSource = "pmt"
	TrackSourceFallback TrackSource = "fallback"
)

// VideoTrack identifies the PID carrying the video elementary stream.
type VideoTrack struct {
	PID        uint16
	StreamType uint8 // zero when found by the fallback probe
	Source     TrackSource
}

func (t VideoTrack) String() string {
	return fmt.Sprintf("pid=0x%04x stream_type=0x%02x source=%s", t.PID, t.StreamType, t.Source)
}

// IsVideoStreamType reports whether a PMT stream type denotes video.
func IsVideoStreamType(st uint8) bool {
	switch st {
	case StreamTypeMPEG1Video, StreamTypeMPEG2Video, StreamTypeH264Video, StreamTypeH265Video:
		return true
	}
	return false
}

// ResolveVideoTrack determines the video PID from a buffer holding a
// packet-aligned prefix of the stream. The PAT/PMT are decoded first; when
// they are absent or carry no video entry, FallbackVideoPIDs are probed.
func ResolveVideoTrack(ctx context.Context, buf []byte) (VideoTrack, error) {
	if len(buf) < PacketSize {
		return VideoTrack{}, ErrTrackUnresolved
	}

	if track, ok := resolveFromPMT(ctx, buf); ok {
		return track, nil
	}
	if track, ok := resolveFromFallback(buf); ok {
		return track, nil
	}
	return VideoTrack{}, ErrTrackUnresolved
}

func resolveFromPMT(ctx context.Context, buf []byte) (VideoTrack, bool) {
	dmx := astits.NewDemuxer(ctx, bytes.NewReader(buf), astits.DemuxerOptPacketSize(PacketSize))

	for i := 0; i < maxDemuxIterations; i++ {
		d, err := dmx.NextData()
		if err != nil {
			// ErrNoMorePackets at the end of the probe, or a table the
			// demuxer could not decode; both leave the fallback in charge.
			return VideoTrack{}, false
		}
		if d == nil || d.PMT == nil {
			continue
		}
		for _, es := range d.PMT.ElementaryStreams {
			st := uint8(es.StreamType)
			if IsVideoStreamType(st) {
				return VideoTrack{PID: es.ElementaryPID, StreamType: st, Source: TrackSourcePMT}, true
			}
		}
	}
	return VideoTrack{}, false
}

func resolveFromFallback(buf []byte) (VideoTrack, bool) {
	seen := make(map[uint16]bool, len(FallbackVideoPIDs))
	Packets(buf, func(pkt Packet) bool {
		if pkt.HasPayload() {
			seen[pkt.PID] = true
		}
		return true
	})

	for _, pid := range FallbackVideoPIDs {
		if seen[pid] {
			return VideoTrack{PID: pid, Source: TrackSourceFallback}, true
		}
	}
	return VideoTrack{}, false
}

// TrackCache holds the video track resolved for one stream. The first
// successful resolution wins and is returned to every later caller.
type TrackCache struct {
	mu       sync.RWMutex
	track    VideoTrack
	resolved bool
}

// NewTrackCache creates an empty cache.
func NewTrackCache() *TrackCache {
	return &TrackCache{}
}

// Get returns the cached track, if any.
func (c *TrackCache) Get() (VideoTrack, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.track, c.resolved
}

// Resolve returns the cached track or resolves one from buf. A failed
// resolution is not cached so a later probe may still succeed.
func (c *TrackCache) Resolve(ctx context.Context, buf []byte) (VideoTrack, error) {
	if track, ok := c.Get(); ok {
		return track, nil
	}

	track, err := ResolveVideoTrack(ctx, buf)
	if err != nil {
		return VideoTrack{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.resolved {
		c.track = track
		c.resolved = true
	}
	return c.track, nil
}
