package l1depth

import "sync"

// FrameBuffer hands frames from a producer goroutine to the pipeline. The
// producer copies into a back buffer under the lock; Take swaps it with the
// front buffer the consumer reads, so neither side waits on the other's work.
type FrameBuffer struct {
	mu             sync.Mutex
	back           []uint16
	front          []uint16
	backW, backH   int
	frontW, frontH int
	fresh          bool

	published uint64
	dropped   uint64
}

// Publish stores a copy of frame as the newest frame. An unconsumed previous
// frame is dropped.
func (b *FrameBuffer) Publish(frame []uint16, width, height int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cap(b.back) < len(frame) {
		b.back = make([]uint16, len(frame))
	}
	b.back = b.back[:len(frame)]
	copy(b.back, frame)

	if b.fresh {
		b.dropped++
	}
	b.backW, b.backH = width, height
	b.fresh = true
	b.published++
}

// Take returns the newest frame if one arrived since the last Take, or nil.
// The returned slice is owned by the caller until the next Take.
func (b *FrameBuffer) Take() []uint16 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.fresh {
		return nil
	}
	b.back, b.front = b.front, b.back
	b.frontW, b.frontH = b.backW, b.backH
	b.fresh = false
	return b.front
}

// Size returns the dimensions of the frame last returned by Take, or of the
// pending frame if none has been taken yet.
func (b *FrameBuffer) Size() (width, height int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.front == nil {
		return b.backW, b.backH
	}
	return b.frontW, b.frontH
}

// Stats returns how many frames were published and how many were replaced
// before the consumer took them.
func (b *FrameBuffer) Stats() (published, dropped uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.published, b.dropped
}

// Reset discards any pending frame.
func (b *FrameBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fresh = false
	b.front = nil
	b.backW, b.backH = 0, 0
	b.frontW, b.frontH = 0, 0
}
