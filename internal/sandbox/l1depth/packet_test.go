package l1depth

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeFrameParsePacket(t *testing.T) {
	frame := make([]uint16, 10*7)
	for i := range frame {
		frame[i] = uint16(i * 3)
	}
	packets := EncodeFrame(42, 10, 7, frame, 16)
	require.Len(t, packets, 5)

	var total int
	for i, pkt := range packets {
		h, payload, err := ParsePacket(pkt)
		require.NoError(t, err)
		assert.Equal(t, uint32(42), h.FrameID)
		assert.Equal(t, uint16(10), h.Width)
		assert.Equal(t, uint16(7), h.Height)
		assert.Equal(t, uint32(i*16), h.Offset)
		assert.Len(t, payload, int(h.Count)*2)
		total += int(h.Count)
	}
	assert.Equal(t, len(frame), total)
}

func TestParsePacketRejects(t *testing.T) {
	good := AppendPacket(nil, PacketHeader{FrameID: 1, Width: 2, Height: 2}, []uint16{1, 2})

	tests := []struct {
		name string
		pkt  []byte
	}{
		{"short", good[:10]},
		{"magic", append([]byte("XXXX"), good[4:]...)},
		{"truncated payload", good[:len(good)-1]},
		{"zero size", AppendPacket(nil, PacketHeader{Width: 0, Height: 2}, []uint16{1})},
		{"past end", AppendPacket(nil, PacketHeader{Width: 2, Height: 2, Offset: 3}, []uint16{1, 2})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParsePacket(tt.pkt)
			assert.True(t, errors.Is(err, ErrBadPacket), "got %v", err)
		})
	}
}

func TestEncodeFrameClampsChunkSize(t *testing.T) {
	frame := make([]uint16, MaxSamplesPerPacket+1)
	packets := EncodeFrame(1, len(frame), 1, frame, 0)
	assert.Len(t, packets, 2)
	assert.LessOrEqual(t, len(packets[0]), HeaderSize+2*MaxSamplesPerPacket)
}
