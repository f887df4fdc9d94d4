package testdata

import (
	"bytes"
)

const (
	packetSize  = 188
	payloadSize = 184

	// DefaultPMTPID is the PMT PID announced by the generated PAT.
	DefaultPMTPID uint16 = 0x1000

	streamTypeH264 = 0x1B
)

// H.264 NAL units used by the generated access units.
var (
	nalAUD      = []byte{0x00, 0x00, 0x00, 0x01, 0x09, 0xF0}
	nalSPS      = []byte{0x00, 0x00, 0x00, 0x01, 0x67, 0x42, 0xC0, 0x1E, 0xD9, 0x00, 0xA0, 0x47, 0xFE, 0xC8}
	nalPPS      = []byte{0x00, 0x00, 0x00, 0x01, 0x68, 0xCE, 0x38, 0x80}
	nalIDR      = []byte{0x00, 0x00, 0x01, 0x65, 0x88, 0x84, 0x00, 0x33, 0xFF}
	nalNonIDR   = []byte{0x00, 0x00, 0x01, 0x41, 0x9A, 0x02, 0x04, 0x10}
	sliceFiller = []byte{0xAB, 0xCD, 0xEF, 0x12}
)

// KeyframeAccessUnit returns an Annex-B access unit of AUD, SPS, PPS and
// an IDR slice padded with extra slice bytes.
func KeyframeAccessUnit(sliceBytes int) []byte {
	au := concat(nalAUD, nalSPS, nalPPS, nalIDR)
	return append(au, filler(sliceBytes)...)
}

// DeltaAccessUnit returns an access unit with a single non-IDR slice.
func DeltaAccessUnit(sliceBytes int) []byte {
	au := concat(nalAUD, nalNonIDR)
	return append(au, filler(sliceBytes)...)
}

// IDROnlyAccessUnit returns an IDR slice with no parameter sets.
func IDROnlyAccessUnit() []byte {
	return concat(nalIDR)
}

// StreamBuilder writes a synthetic single-program H.264 transport stream.
type StreamBuilder struct {
	VideoPID uint16
	PMTPID   uint16

	buf     bytes.Buffer
	cc      map[uint16]uint8
	pts     uint64
	packets int
}

// NewStreamBuilder creates a builder for a stream whose video is on videoPID.
func NewStreamBuilder(videoPID uint16) *StreamBuilder {
	return &StreamBuilder{
		VideoPID: videoPID,
		PMTPID:   DefaultPMTPID,
		cc:       make(map[uint16]uint8),
	}
}

// Bytes returns the stream written so far.
func (b *StreamBuilder) Bytes() []byte {
	return b.buf.Bytes()
}

// Packets returns the number of packets written so far.
func (b *StreamBuilder) Packets() int {
	return b.packets
}

// PAT writes a program association table pointing at PMTPID.
func (b *StreamBuilder) PAT() *StreamBuilder {
	section := []byte{
		0x00,       // table_id
		0xB0, 0x0D, // section_syntax_indicator, section_length=13
		0x00, 0x01, // transport_stream_id
		0xC1,       // version 0, current_next 1
		0x00, 0x00, // section_number, last_section_number
		0x00, 0x01, // program_number
		0xE0 | byte(b.PMTPID>>8), byte(b.PMTPID),
	}
	b.psi(0x0000, section)
	return b
}

// PMT writes a program map table with one H.264 stream on VideoPID.
func (b *StreamBuilder) PMT() *StreamBuilder {
	return b.PMTWithStreamType(streamTypeH264)
}

// PMTWithStreamType writes a PMT declaring VideoPID with the given stream type.
func (b *StreamBuilder) PMTWithStreamType(streamType byte) *StreamBuilder {
	section := []byte{
		0x02,       // table_id
		0xB0, 0x12, // section_length=18
		0x00, 0x01, // program_number
		0xC1,
		0x00, 0x00,
		0xE0 | byte(b.VideoPID>>8), byte(b.VideoPID), // PCR PID
		0xF0, 0x00, // program_info_length
		streamType,
		0xE0 | byte(b.VideoPID>>8), byte(b.VideoPID),
		0xF0, 0x00, // ES_info_length
	}
	b.psi(b.PMTPID, section)
	return b
}

// Keyframe writes a one-packet PES holding a keyframe access unit.
func (b *StreamBuilder) Keyframe() *StreamBuilder {
	return b.PES(b.VideoPID, KeyframeAccessUnit(16))
}

// Delta writes a one-packet PES holding a non-IDR access unit.
func (b *StreamBuilder) Delta() *StreamBuilder {
	return b.PES(b.VideoPID, DeltaAccessUnit(16))
}

// Null writes a null packet.
func (b *StreamBuilder) Null() *StreamBuilder {
	b.packet(0x1FFF, false, nil)
	return b
}

// PES wraps es in a PES packet with a PTS and splits it across as many
// TS packets as needed. The last packet is padded with adaptation field
// stuffing.
func (b *StreamBuilder) PES(pid uint16, es []byte) *StreamBuilder {
	b.pts += 3003
	pes := concat(pesHeader(b.pts), es)

	first := true
	for len(pes) > 0 {
		n := len(pes)
		if n > payloadSize {
			n = payloadSize
		}
		b.packet(pid, first, pes[:n])
		pes = pes[n:]
		first = false
	}
	return b
}

// Raw appends bytes verbatim, for example to corrupt alignment.
func (b *StreamBuilder) Raw(data []byte) *StreamBuilder {
	b.buf.Write(data)
	return b
}

func (b *StreamBuilder) psi(pid uint16, section []byte) {
	crc := computeCRC32(section)
	payload := make([]byte, 0, payloadSize)
	payload = append(payload, 0x00) // pointer_field
	payload = append(payload, section...)
	payload = append(payload, byte(crc>>24), byte(crc>>16), byte(crc>>8), byte(crc))
	for len(payload) < payloadSize {
		payload = append(payload, 0xFF)
	}
	b.packet(pid, true, payload)
}

func (b *StreamBuilder) packet(pid uint16, pusi bool, payload []byte) {
	pkt := make([]byte, 0, packetSize)

	b1 := byte(pid>>8) & 0x1F
	if pusi {
		b1 |= 0x40
	}
	cc := b.cc[pid]
	b.cc[pid] = (cc + 1) & 0x0F

	afc := byte(0x10) // payload only
	if len(payload) < payloadSize {
		afc = 0x30 // adaptation field followed by payload
	}
	pkt = append(pkt, 0x47, b1, byte(pid), afc|cc)

	if afc == 0x30 {
		afLen := payloadSize - 1 - len(payload)
		pkt = append(pkt, byte(afLen))
		if afLen > 0 {
			pkt = append(pkt, 0x00)
			for i := 1; i < afLen; i++ {
				pkt = append(pkt, 0xFF)
			}
		}
	}
	pkt = append(pkt, payload...)

	b.buf.Write(pkt)
	b.packets++
}

// pesHeader builds a video PES header with unbounded length and a PTS.
func pesHeader(pts uint64) []byte {
	return []byte{
		0x00, 0x00, 0x01, 0xE0,
		0x00, 0x00, // PES_packet_length, unbounded for video
		0x80, // marker bits
		0x80, // PTS only
		0x05, // PES_header_data_length
		0x21 | byte(pts>>29)&0x0E,
		byte(pts >> 22),
		0x01 | byte(pts>>14)&0xFE,
		byte(pts >> 7),
		0x01 | byte(pts<<1)&0xFE,
	}
}

// GenerateStream builds a stream of exactly n packets: PAT at index 0,
// PMT at index 1, a one-packet keyframe PES at each index in keyframes
// and a one-packet delta PES everywhere else.
func GenerateStream(n int, videoPID uint16, keyframes ...int) []byte {
	isKey := make(map[int]bool, len(keyframes))
	for _, k := range keyframes {
		isKey[k] = true
	}

	b := NewStreamBuilder(videoPID)
	for i := 0; i < n; i++ {
		switch {
		case i == 0:
			b.PAT()
		case i == 1:
			b.PMT()
		case isKey[i]:
			b.Keyframe()
		default:
			b.Delta()
		}
	}
	return b.Bytes()
}

// GenerateStreamWithoutPSI is like GenerateStream but writes null packets
// where the PAT and PMT would be.
func GenerateStreamWithoutPSI(n int, videoPID uint16, keyframes ...int) []byte {
	isKey := make(map[int]bool, len(keyframes))
	for _, k := range keyframes {
		isKey[k] = true
	}

	b := NewStreamBuilder(videoPID)
	for i := 0; i < n; i++ {
		switch {
		case i < 2:
			b.Null()
		case isKey[i]:
			b.Keyframe()
		default:
			b.Delta()
		}
	}
	return b.Bytes()
}

func concat(parts ...[]byte) []byte {
	var n int
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func filler(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = sliceFiller[i%len(sliceFiller)]
	}
	return out
}
