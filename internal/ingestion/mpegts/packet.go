package mpegts

import (
	"errors"
)

const (
	// MPEG-TS constants
	PacketSize = 188
	SyncByte   = 0x47
	MaxPID     = 8191

	headerSize = 4

	// PIDs
	PIDProgramAssociation = 0x0000
	PIDNull               = 0x1FFF
)

// ErrNotPacket is returned when the bytes at an offset cannot be a TS packet.
var ErrNotPacket = errors.New("not a ts packet")

// Packet is the decoded header of one TS packet. Offsets are absolute
// positions in the buffer the packet was parsed from.
type Packet struct {
	Offset                int
	PID                   uint16
	PayloadStart          bool
	AdaptationFieldExists bool
	ContinuityCounter     uint8
	PayloadOffset         int
	PayloadSize           int
}

// End returns the offset one past the last byte of the packet.
func (p Packet) End() int {
	return p.Offset + PacketSize
}

// HasPayload reports whether the packet carries any payload bytes.
func (p Packet) HasPayload() bool {
	return p.PayloadSize > 0
}

// Payload returns the payload slice of p within buf, the buffer p was
// parsed from.
func (p Packet) Payload(buf []byte) []byte {
	if p.PayloadSize == 0 {
		return nil
	}
	return buf[p.PayloadOffset : p.PayloadOffset+p.PayloadSize]
}

// ParsePacket interprets the PacketSize bytes at offset as a TS packet.
// An adaptation field that claims to run past the packet end yields a
// valid packet with no payload.
func ParsePacket(buf []byte, offset int) (Packet, error) {
	if offset < 0 || offset+PacketSize > len(buf) {
		return Packet{}, ErrNotPacket
	}
	if buf[offset] != SyncByte {
		return Packet{}, ErrNotPacket
	}

	b1, b2, b3 := buf[offset+1], buf[offset+2], buf[offset+3]
	pkt := Packet{
		Offset:                offset,
		PID:                   uint16(b1&0x1F)<<8 | uint16(b2),
		PayloadStart:          b1&0x40 != 0,
		AdaptationFieldExists: b3&0x20 != 0,
		ContinuityCounter:     b3 & 0x0F,
	}

	payloadOffset := offset + headerSize
	if pkt.AdaptationFieldExists {
		payloadOffset += 1 + int(buf[offset+headerSize])
	}

	end := offset + PacketSize
	if payloadOffset > end {
		payloadOffset = end
	}
	pkt.PayloadOffset = payloadOffset
	pkt.PayloadSize = end - payloadOffset

	return pkt, nil
}

// Packets calls fn for every packet found at PacketSize strides from the
// start of buf. Malformed strides are skipped without losing alignment.
// Iteration stops early when fn returns false.
func Packets(buf []byte, fn func(Packet) bool) {
	for off := 0; off+PacketSize <= len(buf); off += PacketSize {
		pkt, err := ParsePacket(buf, off)
		if err != nil {
			continue
		}
		if !fn(pkt) {
			return
		}
	}
}

// AlignDown rounds offset down to a packet boundary.
func AlignDown(offset int64) int64 {
	return offset - offset%PacketSize
}
