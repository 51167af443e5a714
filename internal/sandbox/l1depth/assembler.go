package l1depth

import (
	"encoding/binary"
	"fmt"
)

// FrameAssembler rebuilds frames from packets and publishes each completed
// frame to a FrameBuffer. Packets of a newer frame abandon the frame in
// progress; packets of older frames are ignored. It is not safe for
// concurrent use.
type FrameAssembler struct {
	out *FrameBuffer

	active   bool
	frameID  uint32
	width    int
	height   int
	data     []uint16
	covered  []uint64 // one bit per sample already written
	received int      // distinct samples written

	lastDone     uint32
	haveLastDone bool

	completed uint64
	abandoned uint64
	late      uint64
}

// NewFrameAssembler returns an assembler publishing into out.
func NewFrameAssembler(out *FrameBuffer) *FrameAssembler {
	return &FrameAssembler{out: out}
}

// Add consumes one packet.
func (a *FrameAssembler) Add(pkt []byte) error {
	h, payload, err := ParsePacket(pkt)
	if err != nil {
		return err
	}

	if a.active && h.FrameID != a.frameID {
		if int32(h.FrameID-a.frameID) < 0 {
			a.late++
			return nil
		}
		a.abandoned++
		a.active = false
	}
	if !a.active && a.haveLastDone && int32(h.FrameID-a.lastDone) <= 0 {
		a.late++
		return nil
	}
	if !a.active {
		a.start(h)
	} else if int(h.Width) != a.width || int(h.Height) != a.height {
		return fmt.Errorf("%w: frame %d changed size to %dx%d", ErrBadPacket, h.FrameID, h.Width, h.Height)
	}

	// Overlapping or repeated chunks only count samples not yet written.
	for i := 0; i < int(h.Count); i++ {
		idx := int(h.Offset) + i
		a.data[idx] = binary.LittleEndian.Uint16(payload[2*i:])
		word, bit := idx/64, uint64(1)<<(idx%64)
		if a.covered[word]&bit == 0 {
			a.covered[word] |= bit
			a.received++
		}
	}

	if a.received >= len(a.data) {
		a.out.Publish(a.data, a.width, a.height)
		a.completed++
		a.active = false
		a.lastDone, a.haveLastDone = a.frameID, true
	}
	return nil
}

func (a *FrameAssembler) start(h PacketHeader) {
	a.active = true
	a.frameID = h.FrameID
	a.width, a.height = int(h.Width), int(h.Height)
	n := a.width * a.height
	if cap(a.data) < n {
		a.data = make([]uint16, n)
	}
	a.data = a.data[:n]
	clear(a.data)
	words := (n + 63) / 64
	if cap(a.covered) < words {
		a.covered = make([]uint64, words)
	}
	a.covered = a.covered[:words]
	clear(a.covered)
	a.received = 0
}

// Stats returns completed, abandoned and late frame counts.
func (a *FrameAssembler) Stats() (completed, abandoned, late uint64) {
	return a.completed, a.abandoned, a.late
}

// Reset forgets the frame in progress and the last completed frame ID, so a
// restarted sender counting from zero is accepted again.
func (a *FrameAssembler) Reset() {
	a.active = false
	a.haveLastDone = false
	a.received = 0
}
