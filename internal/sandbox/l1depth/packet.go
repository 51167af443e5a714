package l1depth

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Wire format of one depth packet, all fields little endian:
//
//	0  magic    "SDT1"
//	4  frame_id uint32
//	8  width    uint16
//	10 height   uint16
//	12 offset   uint32  index of the first sample in the frame
//	16 count    uint16  number of samples that follow
//	18 reserved uint16
//	20 samples  count x uint16
const (
	PacketMagic = "SDT1"
	HeaderSize  = 20
	// MaxSamplesPerPacket keeps a packet inside a 1500 byte Ethernet MTU.
	MaxSamplesPerPacket = 720
)

// ErrBadPacket is returned for packets that do not follow the wire format.
var ErrBadPacket = errors.New("malformed depth packet")

// PacketHeader describes one chunk of a depth frame.
type PacketHeader struct {
	FrameID uint32
	Width   uint16
	Height  uint16
	Offset  uint32
	Count   uint16
}

// ParsePacket validates b and returns its header and raw sample bytes.
func ParsePacket(b []byte) (PacketHeader, []byte, error) {
	var h PacketHeader
	if len(b) < HeaderSize {
		return h, nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrBadPacket, len(b))
	}
	if string(b[0:4]) != PacketMagic {
		return h, nil, fmt.Errorf("%w: bad magic %q", ErrBadPacket, b[0:4])
	}
	h.FrameID = binary.LittleEndian.Uint32(b[4:8])
	h.Width = binary.LittleEndian.Uint16(b[8:10])
	h.Height = binary.LittleEndian.Uint16(b[10:12])
	h.Offset = binary.LittleEndian.Uint32(b[12:16])
	h.Count = binary.LittleEndian.Uint16(b[16:18])

	if h.Width == 0 || h.Height == 0 {
		return h, nil, fmt.Errorf("%w: zero frame size %dx%d", ErrBadPacket, h.Width, h.Height)
	}
	payload := b[HeaderSize:]
	if len(payload) != int(h.Count)*2 {
		return h, nil, fmt.Errorf("%w: %d payload bytes for %d samples", ErrBadPacket, len(payload), h.Count)
	}
	total := uint64(h.Width) * uint64(h.Height)
	if uint64(h.Offset)+uint64(h.Count) > total {
		return h, nil, fmt.Errorf("%w: samples [%d,%d) exceed frame of %d", ErrBadPacket, h.Offset, uint64(h.Offset)+uint64(h.Count), total)
	}
	return h, payload, nil
}

// AppendPacket encodes one packet onto dst.
func AppendPacket(dst []byte, h PacketHeader, samples []uint16) []byte {
	dst = append(dst, PacketMagic...)
	dst = binary.LittleEndian.AppendUint32(dst, h.FrameID)
	dst = binary.LittleEndian.AppendUint16(dst, h.Width)
	dst = binary.LittleEndian.AppendUint16(dst, h.Height)
	dst = binary.LittleEndian.AppendUint32(dst, h.Offset)
	dst = binary.LittleEndian.AppendUint16(dst, uint16(len(samples)))
	dst = binary.LittleEndian.AppendUint16(dst, 0)
	for _, s := range samples {
		dst = binary.LittleEndian.AppendUint16(dst, s)
	}
	return dst
}

// EncodeFrame splits a frame into packets of at most maxSamples samples.
func EncodeFrame(frameID uint32, width, height int, frame []uint16, maxSamples int) [][]byte {
	if maxSamples <= 0 || maxSamples > MaxSamplesPerPacket {
		maxSamples = MaxSamplesPerPacket
	}
	packets := make([][]byte, 0, (len(frame)+maxSamples-1)/maxSamples)
	for off := 0; off < len(frame); off += maxSamples {
		end := off + maxSamples
		if end > len(frame) {
			end = len(frame)
		}
		h := PacketHeader{
			FrameID: frameID,
			Width:   uint16(width),
			Height:  uint16(height),
			Offset:  uint32(off),
		}
		buf := make([]byte, 0, HeaderSize+2*(end-off))
		packets = append(packets, AppendPacket(buf, h, frame[off:end]))
	}
	return packets
}
