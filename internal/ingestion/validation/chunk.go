package validation

import (
	"hash/crc32"

	"github.com/zsiec/tsingest/internal/ingestion/mpegts"
)

// Report summarises the transport-level health of one fetched chunk.
type Report struct {
	Packets int `json:"packets"`
	// SyncErrors counts 188-byte strides that do not start with 0x47.
	SyncErrors int `json:"sync_errors"`
	// TrailingBytes is the partial packet left at the end of the chunk.
	TrailingBytes   int    `json:"trailing_bytes"`
	Discontinuities int64  `json:"discontinuities"`
	VideoPackets    int    `json:"video_packets"`
	Checksum        uint32 `json:"checksum"`
}

// Clean reports whether the chunk is packet aligned with no continuity gaps.
func (r Report) Clean() bool {
	return r.SyncErrors == 0 && r.TrailingBytes == 0 && r.Discontinuities == 0
}

// Inspect walks data in packet strides from offset zero. Chunks are cut on
// packet boundaries, so a missing sync byte at a stride means corruption
// rather than misalignment. Continuity is tracked within the chunk only.
func Inspect(data []byte, videoPID uint16) Report {
	r := Report{
		TrailingBytes: len(data) % mpegts.PacketSize,
		Checksum:      crc32.ChecksumIEEE(data),
	}

	cv := NewContinuityValidator()
	for off := 0; off+mpegts.PacketSize <= len(data); off += mpegts.PacketSize {
		pkt, err := mpegts.ParsePacket(data, off)
		if err != nil {
			r.SyncErrors++
			continue
		}
		r.Packets++
		if pkt.PID == videoPID {
			r.VideoPackets++
		}
		_ = cv.Validate(pkt)
	}
	r.Discontinuities = cv.GetStats().TotalDiscontinuities
	return r
}
