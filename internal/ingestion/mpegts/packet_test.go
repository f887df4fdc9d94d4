package mpegts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/tsingest/internal/ingestion/testdata"
)

func TestParsePacket_ShortBuffer(t *testing.T) {
	for size := 0; size < PacketSize; size += 17 {
		buf := make([]byte, size)
		if size > 0 {
			buf[0] = SyncByte
		}
		for off := 0; off <= size; off++ {
			_, err := ParsePacket(buf, off)
			assert.ErrorIs(t, err, ErrNotPacket, "size=%d offset=%d", size, off)
		}
	}
}

func TestParsePacket_BadSync(t *testing.T) {
	buf := make([]byte, PacketSize)
	buf[0] = 0x48
	_, err := ParsePacket(buf, 0)
	assert.ErrorIs(t, err, ErrNotPacket)

	_, err = ParsePacket(buf, -1)
	assert.ErrorIs(t, err, ErrNotPacket)
}

func TestParsePacket_Header(t *testing.T) {
	buf := make([]byte, PacketSize)
	buf[0] = SyncByte
	buf[1] = 0x41 // PUSI + PID high bits 0x01
	buf[2] = 0x00
	buf[3] = 0x17 // payload only, cc=7

	pkt, err := ParsePacket(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x100), pkt.PID)
	assert.True(t, pkt.PayloadStart)
	assert.False(t, pkt.AdaptationFieldExists)
	assert.Equal(t, uint8(7), pkt.ContinuityCounter)
	assert.Equal(t, 4, pkt.PayloadOffset)
	assert.Equal(t, 184, pkt.PayloadSize)
}

func TestParsePacket_AdaptationField(t *testing.T) {
	tests := []struct {
		name        string
		afLen       byte
		wantOffset  int
		wantPayload int
	}{
		{"empty field", 0, 5, 183},
		{"stuffing", 100, 105, 83},
		{"fills packet", 183, 188, 0},
		{"overruns packet", 250, 188, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, PacketSize)
			buf[0] = SyncByte
			buf[3] = 0x30
			buf[4] = tt.afLen

			pkt, err := ParsePacket(buf, 0)
			require.NoError(t, err)
			assert.True(t, pkt.AdaptationFieldExists)
			assert.Equal(t, tt.wantOffset, pkt.PayloadOffset)
			assert.Equal(t, tt.wantPayload, pkt.PayloadSize)
			assert.Equal(t, pkt.End(), pkt.PayloadOffset+pkt.PayloadSize)
		})
	}
}

func TestParsePacket_PayloadEndsAtPacketEnd(t *testing.T) {
	data := testdata.GenerateStream(200, 0x100, 10, 150)

	count := 0
	for off := 0; off+PacketSize <= len(data); off += PacketSize {
		pkt, err := ParsePacket(data, off)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, pkt.PayloadSize, 0)
		assert.Equal(t, off+PacketSize, pkt.PayloadOffset+pkt.PayloadSize)
		count++
	}
	assert.Equal(t, 200, count)
}

func TestPackets_SkipsCorruptStride(t *testing.T) {
	data := testdata.GenerateStream(10, 0x100, 2)
	data[3*PacketSize] = 0x00

	var offsets []int
	Packets(data, func(p Packet) bool {
		offsets = append(offsets, p.Offset)
		return true
	})

	require.Len(t, offsets, 9)
	for _, off := range offsets {
		assert.Zero(t, off%PacketSize)
		assert.NotEqual(t, 3*PacketSize, off)
	}
}

func TestPackets_StopsEarly(t *testing.T) {
	data := testdata.GenerateStream(10, 0x100)
	n := 0
	Packets(data, func(Packet) bool {
		n++
		return n < 3
	})
	assert.Equal(t, 3, n)
}

func TestAlignDown(t *testing.T) {
	assert.Equal(t, int64(0), AlignDown(0))
	assert.Equal(t, int64(0), AlignDown(187))
	assert.Equal(t, int64(188), AlignDown(188))
	assert.Equal(t, int64(94000), AlignDown(94100))
}
