package frame

// H.264 NAL unit types
const (
	H264NALTypeSlice  = 1  // Non-IDR slice
	H264NALTypeIDR    = 5  // IDR slice
	H264NALTypeSEI    = 6  // Supplemental enhancement information
	H264NALTypeSPS    = 7  // Sequence parameter set
	H264NALTypePPS    = 8  // Picture parameter set
	H264NALTypeAUD    = 9  // Access unit delimiter
	H264NALTypeEndSeq = 10 // End of sequence
	H264NALTypeFiller = 12 // Filler data
)

// NALKind is the coarse classification the keyframe scan cares about.
type NALKind uint8

const (
	NALOther NALKind = iota
	NALAUD
	NALSPS
	NALPPS
	NALIDR
)

func (k NALKind) String() string {
	switch k {
	case NALAUD:
		return "AUD"
	case NALSPS:
		return "SPS"
	case NALPPS:
		return "PPS"
	case NALIDR:
		return "IDR"
	default:
		return "OTHER"
	}
}

// NALEvent is one NAL header found by ScanNALUnits.
type NALEvent struct {
	Kind NALKind
	Type uint8
	// Position is the offset of the NAL header byte, just past the start code.
	Position int
}

func classify(nalType uint8) NALKind {
	switch nalType {
	case H264NALTypeAUD:
		return NALAUD
	case H264NALTypeSPS:
		return NALSPS
	case H264NALTypePPS:
		return NALPPS
	case H264NALTypeIDR:
		return NALIDR
	default:
		return NALOther
	}
}

// ScanNALUnits calls fn for each Annex-B start code (00 00 01) in es that
// is followed by a header byte. Four-byte start codes are found through
// their trailing three bytes. Scanning stops when fn returns false.
func ScanNALUnits(es []byte, fn func(NALEvent) bool) {
	i := 0
	for i+3 < len(es) {
		if es[i] != 0x00 || es[i+1] != 0x00 || es[i+2] != 0x01 {
			i++
			continue
		}
		t := es[i+3] & 0x1F
		if !fn(NALEvent{Kind: classify(t), Type: t, Position: i + 3}) {
			return
		}
		i += 3
	}
}

// KeyframeScan summarizes the NAL units seen in one buffer.
type KeyframeScan struct {
	SawAUD   bool
	SawSPS   bool
	SawPPS   bool
	SawIDR   bool
	Keyframe bool
}

// ScanKeyframe reports which parameter sets and slices es contains. A
// keyframe needs an IDR slice after both an SPS and a PPS; an AUD is
// recorded but never required.
func ScanKeyframe(es []byte) KeyframeScan {
	var s KeyframeScan
	ScanNALUnits(es, func(ev NALEvent) bool {
		switch ev.Kind {
		case NALAUD:
			s.SawAUD = true
		case NALSPS:
			s.SawSPS = true
		case NALPPS:
			s.SawPPS = true
		case NALIDR:
			s.SawIDR = true
			if s.SawSPS && s.SawPPS {
				s.Keyframe = true
				return false
			}
		}
		return true
	})
	return s
}

// HasKeyframe reports whether es holds an IDR slice preceded by an SPS
// and a PPS.
func HasKeyframe(es []byte) bool {
	return ScanKeyframe(es).Keyframe
}
