package mpegts

const (
	// minPESSize is the smallest PES buffer that can be interpreted at all.
	minPESSize = 6
	// pesFixedHeaderSize covers start code, stream id, packet length and
	// the two flag bytes plus header_data_length.
	pesFixedHeaderSize = 9
)

// PES is one reassembled PES packet for a single PID.
type PES struct {
	PID uint16
	// Data holds the PES bytes including its header.
	Data []byte
	// Started is false for a leading fragment whose unit start came
	// before the reassembled range.
	Started bool
}

// Reassembler concatenates payloads of one PID into PES packets, split
// at payload unit start boundaries.
type Reassembler struct {
	pid     uint16
	buf     []byte
	started bool
	out     []PES
}

// NewReassembler creates a reassembler for the given PID.
func NewReassembler(pid uint16) *Reassembler {
	return &Reassembler{pid: pid}
}

// Push feeds one packet parsed from src. Packets for other PIDs are ignored.
func (r *Reassembler) Push(pkt Packet, src []byte) {
	if pkt.PID != r.pid {
		return
	}
	if pkt.PayloadStart {
		r.emit()
		r.started = true
	}
	if pkt.HasPayload() {
		r.buf = append(r.buf, pkt.Payload(src)...)
	}
}

// Flush emits any in-progress buffer, including a truncated trailing PES,
// and returns everything emitted since the last Flush.
func (r *Reassembler) Flush() []PES {
	r.emit()
	out := r.out
	r.out = nil
	r.started = false
	return out
}

func (r *Reassembler) emit() {
	if len(r.buf) == 0 {
		return
	}
	r.out = append(r.out, PES{PID: r.pid, Data: r.buf, Started: r.started})
	r.buf = nil
}

// Reassemble splits every packet of pid in buf into PES packets.
func Reassemble(buf []byte, pid uint16) []PES {
	r := NewReassembler(pid)
	Packets(buf, func(pkt Packet) bool {
		r.Push(pkt, buf)
		return true
	})
	return r.Flush()
}

// ElementaryPayload strips the PES header from data. Buffers shorter than
// six bytes are not interpretable and yield false. Data that does not
// begin with a start code is returned whole.
func ElementaryPayload(data []byte) ([]byte, bool) {
	if len(data) < minPESSize {
		return nil, false
	}
	if data[0] != 0x00 || data[1] != 0x00 || data[2] != 0x01 {
		return data, true
	}
	if len(data) < pesFixedHeaderSize {
		return nil, false
	}
	hdr := pesFixedHeaderSize + int(data[8])
	if hdr > len(data) {
		return nil, false
	}
	return data[hdr:], true
}
