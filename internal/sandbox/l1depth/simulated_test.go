package l1depth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sandtable/internal/monitoring"
	"github.com/banshee-data/sandtable/internal/timeutil"
)

func init() {
	monitoring.SetLogger(nil)
}

func manualSim(t *testing.T) *SimulatedSource {
	t.Helper()
	cfg := DefaultSimConfig()
	cfg.Width, cfg.Height = 32, 24
	cfg.FrameInterval = 0
	s := NewSimulatedSource(cfg)
	require.NoError(t, s.Initialize())
	t.Cleanup(s.Shutdown)
	return s
}

func TestSimulatedSourceFramesInRange(t *testing.T) {
	s := manualSim(t)
	assert.Nil(t, s.DepthData(), "no frame before the first generation")

	s.GenerateFrame(1.0 / 30)
	frame := s.DepthData()
	require.Len(t, frame, 32*24)
	for i, d := range frame {
		if d < 500 || d > 1500 {
			t.Fatalf("sample %d = %d outside [500,1500]", i, d)
		}
	}
	assert.Nil(t, s.DepthData(), "frame must be delivered once")
}

func TestSimulatedSourceDrifts(t *testing.T) {
	s := manualSim(t)
	s.GenerateFrame(0)
	first := append([]uint16(nil), s.DepthData()...)
	s.GenerateFrame(2)
	second := s.DepthData()
	assert.NotEqual(t, first, second, "terrain should move over time")
}

func TestSimulatedSourceHoles(t *testing.T) {
	cfg := DefaultSimConfig()
	cfg.Width, cfg.Height = 10, 10
	cfg.FrameInterval = 0
	cfg.HoleEvery = 7
	s := NewSimulatedSource(cfg)
	require.NoError(t, s.Initialize())
	defer s.Shutdown()

	s.GenerateFrame(0)
	frame := s.DepthData()
	assert.Zero(t, frame[0])
	assert.Zero(t, frame[7])
	assert.NotZero(t, frame[1])
}

func TestSimulatedSourceLifecycle(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	cfg := DefaultSimConfig()
	cfg.Width, cfg.Height = 8, 8
	cfg.Clock = clock
	s := NewSimulatedSource(cfg)

	assert.False(t, s.IsRunning())
	require.NoError(t, s.Initialize())
	assert.True(t, s.IsRunning())
	assert.Equal(t, "Simulated Perlin Noise", s.DeviceName())

	// drive the generator goroutine from the mock clock
	deadline := time.Now().Add(5 * time.Second)
	var frame []uint16
	for frame == nil && time.Now().Before(deadline) {
		clock.Advance(cfg.FrameInterval)
		time.Sleep(5 * time.Millisecond)
		frame = s.DepthData()
	}
	require.NotNil(t, frame, "generator goroutine produced no frame")

	s.Shutdown()
	assert.False(t, s.IsRunning())
	assert.Nil(t, s.DepthData())
	s.Shutdown()
}

func TestSimulatedSourceRejectsTinyFrame(t *testing.T) {
	cfg := DefaultSimConfig()
	cfg.Width = 1
	assert.Error(t, NewSimulatedSource(cfg).Initialize())
}

func TestSimulatedSourceTuneDepthRange(t *testing.T) {
	s := manualSim(t)
	s.Tune(3, 0.2, 800, 900)
	s.GenerateFrame(0.1)
	for i, d := range s.DepthData() {
		if d < 800 || d > 900 {
			t.Fatalf("sample %d = %d outside tuned range [800,900]", i, d)
		}
	}

	// an inverted range is ignored
	s.Tune(0, -1, 1000, 200)
	s.GenerateFrame(0.1)
	for i, d := range s.DepthData() {
		if d < 800 || d > 900 {
			t.Fatalf("sample %d = %d escaped range after rejected tune", i, d)
		}
	}
}
