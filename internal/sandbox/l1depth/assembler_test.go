package l1depth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFrame(w, h int, base uint16) []uint16 {
	f := make([]uint16, w*h)
	for i := range f {
		f[i] = base + uint16(i)
	}
	return f
}

func TestAssemblerCompletesFrameOutOfOrder(t *testing.T) {
	var out FrameBuffer
	a := NewFrameAssembler(&out)

	frame := testFrame(8, 4, 100)
	packets := EncodeFrame(7, 8, 4, frame, 5)
	for i := len(packets) - 1; i >= 0; i-- {
		require.NoError(t, a.Add(packets[i]))
	}

	assert.Equal(t, frame, out.Take())
	completed, abandoned, late := a.Stats()
	assert.Equal(t, uint64(1), completed)
	assert.Zero(t, abandoned)
	assert.Zero(t, late)
}

func TestAssemblerNewerFrameAbandonsPartial(t *testing.T) {
	var out FrameBuffer
	a := NewFrameAssembler(&out)

	old := EncodeFrame(1, 4, 4, testFrame(4, 4, 0), 4)
	next := testFrame(4, 4, 500)
	newer := EncodeFrame(2, 4, 4, next, 4)

	require.NoError(t, a.Add(old[0]))
	require.NoError(t, a.Add(old[1]))
	for _, p := range newer {
		require.NoError(t, a.Add(p))
	}
	// stragglers of the abandoned frame are ignored
	require.NoError(t, a.Add(old[2]))

	assert.Equal(t, next, out.Take())
	assert.Nil(t, out.Take())
	completed, abandoned, late := a.Stats()
	assert.Equal(t, uint64(1), completed)
	assert.Equal(t, uint64(1), abandoned)
	assert.Equal(t, uint64(1), late)
}

func TestAssemblerIgnoresDuplicates(t *testing.T) {
	var out FrameBuffer
	a := NewFrameAssembler(&out)

	packets := EncodeFrame(3, 4, 2, testFrame(4, 2, 1), 4)
	require.NoError(t, a.Add(packets[0]))
	require.NoError(t, a.Add(packets[0]))
	assert.Nil(t, out.Take(), "a duplicate packet must not complete the frame")

	require.NoError(t, a.Add(packets[1]))
	assert.NotNil(t, out.Take())

	// a replayed packet of the completed frame does not start a new one
	require.NoError(t, a.Add(packets[0]))
	_, abandoned, late := a.Stats()
	assert.Zero(t, abandoned)
	assert.Equal(t, uint64(1), late)
}

func TestAssemblerOverlappingChunksWaitForEverySample(t *testing.T) {
	var out FrameBuffer
	a := NewFrameAssembler(&out)

	chunk := func(offset uint32, samples ...uint16) []byte {
		return AppendPacket(nil, PacketHeader{FrameID: 5, Width: 4, Height: 1, Offset: offset}, samples)
	}
	require.NoError(t, a.Add(chunk(0, 900, 900)))
	require.NoError(t, a.Add(chunk(1, 900, 900)))
	assert.Nil(t, out.Take(), "samples [0,3) of 4 must not complete the frame")

	require.NoError(t, a.Add(chunk(3, 910)))
	assert.Equal(t, []uint16{900, 900, 900, 910}, out.Take())
}

func TestAssemblerResetAcceptsRestartedSender(t *testing.T) {
	var out FrameBuffer
	a := NewFrameAssembler(&out)
	for _, p := range EncodeFrame(50, 2, 2, testFrame(2, 2, 1), 4) {
		require.NoError(t, a.Add(p))
	}
	out.Take()

	a.Reset()
	for _, p := range EncodeFrame(0, 2, 2, testFrame(2, 2, 9), 4) {
		require.NoError(t, a.Add(p))
	}
	assert.Equal(t, testFrame(2, 2, 9), out.Take())
}

func TestAssemblerRejectsSizeChangeMidFrame(t *testing.T) {
	var out FrameBuffer
	a := NewFrameAssembler(&out)
	require.NoError(t, a.Add(EncodeFrame(1, 4, 4, testFrame(4, 4, 0), 4)[0]))
	err := a.Add(AppendPacket(nil, PacketHeader{FrameID: 1, Width: 2, Height: 2, Offset: 0}, []uint16{1}))
	assert.ErrorIs(t, err, ErrBadPacket)
}
