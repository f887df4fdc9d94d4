package frame

import (
	"fmt"

	"github.com/zsiec/tsingest/internal/ingestion/mpegts"
)

// ScanMode selects how TS payloads are presented to the NAL scan.
type ScanMode string

const (
	// ScanModePES reassembles whole PES packets before scanning, so NAL
	// units split across TS packets are still found.
	ScanModePES ScanMode = "pes"
	// ScanModePacket scans each unit-start packet's payload on its own.
	// It is cheaper but misses a NAL header split across packets.
	ScanModePacket ScanMode = "packet"
)

// Detector decides whether a run of TS packets carries an H.264 keyframe
// on the given PID.
type Detector interface {
	// ContainsKeyframe reports whether any PES in data holds a keyframe.
	ContainsKeyframe(data []byte, pid uint16) bool
	// StartsWithKeyframe reports whether the first payload-bearing packet
	// of pid in data opens a PES that holds a keyframe.
	StartsWithKeyframe(data []byte, pid uint16) bool
	Mode() ScanMode
}

// NewDetector returns the detector for mode.
func NewDetector(mode ScanMode) (Detector, error) {
	switch mode {
	case ScanModePES, "":
		return PESDetector{}, nil
	case ScanModePacket:
		return PacketDetector{}, nil
	default:
		return nil, fmt.Errorf("unknown scan mode %q", mode)
	}
}

func pesHasKeyframe(pes []byte) bool {
	es, ok := mpegts.ElementaryPayload(pes)
	if !ok {
		return false
	}
	return HasKeyframe(es)
}

// PESDetector scans fully reassembled PES packets.
type PESDetector struct{}

func (PESDetector) Mode() ScanMode { return ScanModePES }

func (PESDetector) ContainsKeyframe(data []byte, pid uint16) bool {
	for _, pes := range mpegts.Reassemble(data, pid) {
		if pesHasKeyframe(pes.Data) {
			return true
		}
	}
	return false
}

func (PESDetector) StartsWithKeyframe(data []byte, pid uint16) bool {
	var (
		pes      []byte
		started  bool
		headless bool
	)
	mpegts.Packets(data, func(pkt mpegts.Packet) bool {
		if pkt.PID != pid {
			return true
		}
		if pkt.PayloadStart {
			if started {
				return false
			}
			started = true
		} else if !started && pkt.HasPayload() {
			headless = true
			return false
		}
		pes = append(pes, pkt.Payload(data)...)
		return true
	})
	if headless || !started {
		return false
	}
	return pesHasKeyframe(pes)
}

// PacketDetector scans the payload of each unit-start packet after its
// PES header, without joining continuation packets.
type PacketDetector struct{}

func (PacketDetector) Mode() ScanMode { return ScanModePacket }

func (PacketDetector) ContainsKeyframe(data []byte, pid uint16) bool {
	found := false
	mpegts.Packets(data, func(pkt mpegts.Packet) bool {
		if pkt.PID != pid || !pkt.PayloadStart || !pkt.HasPayload() {
			return true
		}
		found = pesHasKeyframe(pkt.Payload(data))
		return !found
	})
	return found
}

func (PacketDetector) StartsWithKeyframe(data []byte, pid uint16) bool {
	found := false
	mpegts.Packets(data, func(pkt mpegts.Packet) bool {
		if pkt.PID != pid || !pkt.HasPayload() {
			return true
		}
		found = pkt.PayloadStart && pesHasKeyframe(pkt.Payload(data))
		return false
	})
	return found
}
