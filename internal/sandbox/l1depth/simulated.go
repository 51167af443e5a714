package l1depth

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/sandtable/internal/monitoring"
	"github.com/banshee-data/sandtable/internal/timeutil"
)

// SimConfig shapes the simulated terrain.
type SimConfig struct {
	Width, Height int
	NoiseScale    float64 // noise cycles across the frame width
	MoveSpeed     float64 // drift in noise units per second
	DetailAmount  float64 // 0..1 blend of the second octave
	Steepness     float64 // exponent applied to the combined noise
	Amplitude     float64
	HeightOffset  float64
	MinDepthMM    float64 // depth of a peak
	MaxDepthMM    float64 // depth of the floor
	// HoleEvery punches a hole into every n-th pixel to mimic sensor
	// shadows. Zero disables holes.
	HoleEvery     int
	FrameInterval time.Duration
	Seed          uint64
	Clock         timeutil.Clock
}

// DefaultSimConfig returns a 512x512 rolling-hill terrain at 30 frames/s.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		Width:         512,
		Height:        512,
		NoiseScale:    5,
		MoveSpeed:     0.5,
		DetailAmount:  0.5,
		Steepness:     1.0,
		Amplitude:     1.0,
		MinDepthMM:    500,
		MaxDepthMM:    1500,
		FrameInterval: time.Second / 30,
		Seed:          1,
	}
}

// SimulatedSource generates drifting two-octave noise terrain.
type SimulatedSource struct {
	cfg    SimConfig
	clock  timeutil.Clock
	noise  *perlin
	buffer FrameBuffer

	mu      sync.Mutex
	frame   []uint16
	offsetX float64
	offsetZ float64

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSimulatedSource returns a stopped simulator.
func NewSimulatedSource(cfg SimConfig) *SimulatedSource {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &SimulatedSource{
		cfg:   cfg,
		clock: clock,
		noise: newPerlin(cfg.Seed),
	}
}

// Initialize starts the generator goroutine. With a zero FrameInterval no
// goroutine runs and frames are produced only by GenerateFrame.
func (s *SimulatedSource) Initialize() error {
	if s.cfg.Width < 2 || s.cfg.Height < 2 {
		return fmt.Errorf("simulated source needs at least 2x2 pixels, got %dx%d", s.cfg.Width, s.cfg.Height)
	}
	if s.running.Load() {
		return nil
	}
	s.mu.Lock()
	s.frame = make([]uint16, s.cfg.Width*s.cfg.Height)
	s.mu.Unlock()
	s.buffer.Reset()
	s.running.Store(true)

	if s.cfg.FrameInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.done = make(chan struct{})
		go s.loop(ctx)
	}
	monitoring.Logf("[SimSource] started %dx%d", s.cfg.Width, s.cfg.Height)
	return nil
}

// Shutdown stops the generator.
func (s *SimulatedSource) Shutdown() {
	if !s.running.Swap(false) {
		return
	}
	if s.cancel != nil {
		s.cancel()
		<-s.done
		s.cancel = nil
	}
	monitoring.Logf("[SimSource] stopped")
}

func (s *SimulatedSource) loop(ctx context.Context) {
	defer close(s.done)
	ticker := s.clock.NewTicker(s.cfg.FrameInterval)
	defer ticker.Stop()

	last := s.clock.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C():
			s.GenerateFrame(now.Sub(last).Seconds())
			last = now
		}
	}
}

func (s *SimulatedSource) IsRunning() bool    { return s.running.Load() }
func (s *SimulatedSource) Width() int         { return s.cfg.Width }
func (s *SimulatedSource) Height() int        { return s.cfg.Height }
func (s *SimulatedSource) DeviceName() string { return "Simulated Perlin Noise" }

// DepthData returns the newest generated frame, or nil.
func (s *SimulatedSource) DepthData() []uint16 {
	if !s.running.Load() {
		return nil
	}
	return s.buffer.Take()
}

// Tune updates the live terrain shape. Out-of-range values keep the
// current setting.
func (s *SimulatedSource) Tune(noiseScale, moveSpeed, minDepthMM, maxDepthMM float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if noiseScale > 0 {
		s.cfg.NoiseScale = noiseScale
	}
	if moveSpeed >= 0 {
		s.cfg.MoveSpeed = moveSpeed
	}
	if minDepthMM > 0 && maxDepthMM > minDepthMM {
		s.cfg.MinDepthMM = minDepthMM
		s.cfg.MaxDepthMM = maxDepthMM
	}
}

// GenerateFrame advances the terrain by dt seconds and publishes a frame.
func (s *SimulatedSource) GenerateFrame(dt float64) {
	if !s.running.Load() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.cfg
	s.offsetX += dt * c.MoveSpeed
	s.offsetZ += dt * c.MoveSpeed * 0.5
	step := c.NoiseScale / float64(c.Width)

	for z := 0; z < c.Height; z++ {
		for x := 0; x < c.Width; x++ {
			i := z*c.Width + x
			if c.HoleEvery > 0 && i%c.HoleEvery == 0 {
				s.frame[i] = 0
				continue
			}
			xc := float64(x)*step + s.offsetX
			zc := float64(z)*step + s.offsetZ

			n1 := s.noise.At(xc, zc)
			n2 := s.noise.At(xc*2, zc*2) * 0.5
			n := lerp64(n1, (n1+n2)*0.66, c.DetailAmount)
			n = math.Pow(n, c.Steepness) * c.Amplitude
			h := clamp01(n + c.HeightOffset)

			s.frame[i] = uint16(lerp64(c.MaxDepthMM, c.MinDepthMM, h))
		}
	}
	s.buffer.Publish(s.frame, c.Width, c.Height)
}
