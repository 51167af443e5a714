package l2temporal

import (
	"math"

	"github.com/banshee-data/sandtable/internal/monitoring"
	"github.com/banshee-data/sandtable/internal/sandbox/kernel"
)

// Output bounds of a valid sample. Clamping before the uint16 conversion
// keeps a runaway value from wrapping.
const (
	MinOutput float32 = 1
	MaxOutput float32 = 65000
)

// MinDT replaces non-positive or tiny frame intervals.
const MinDT float32 = 1e-4

// Params are the filter coefficients for one tick.
type Params struct {
	MinCutoff     float32 // Hz at rest, > 0
	Beta          float32 // cutoff gain per mm/s of motion, >= 0
	HandThreshold float32 // per-tick jump in mm treated as a hand
	// FreezeGuard is the filtered value a pixel must exceed before hand
	// rejection applies, so pixels ramping up from zero are never frozen.
	FreezeGuard float32
	// FreezeFactor scales MinCutoff while a hand is detected.
	FreezeFactor float32
}

// DefaultParams returns the tuned installation defaults.
func DefaultParams() Params {
	return Params{
		MinCutoff:     1.0,
		Beta:          0.007,
		HandThreshold: 80,
		FreezeGuard:   10,
		FreezeFactor:  0.1,
	}
}

// Cell is the persistent state of one pixel.
type Cell struct {
	Filtered float32
	PrevRaw  float32
}

// Step filters one raw sample and returns the output depth. A hole (raw == 0)
// holds the previous filtered value and leaves the cell untouched.
func Step(c *Cell, raw uint16, dt float32, p Params) uint16 {
	if raw == 0 {
		return round(c.Filtered)
	}
	if !(dt >= MinDT) {
		dt = MinDT
	}

	r := float32(raw)
	if c.PrevRaw <= 0 {
		c.PrevRaw = r
	}
	dx := (r - c.PrevRaw) / dt
	speed := abs(dx)

	cutoff := p.MinCutoff + p.Beta*speed
	if speed*dt > p.HandThreshold && c.Filtered > p.FreezeGuard {
		cutoff = p.MinCutoff * p.FreezeFactor
	}

	tau := 1 / (2 * math.Pi * cutoff)
	alpha := float32(1 - math.Exp(-float64(dt)/float64(tau)))
	filtered := kernel.Clamp(kernel.Lerp(c.Filtered, r, alpha), MinOutput, MaxOutput)

	c.Filtered = filtered
	c.PrevRaw = r
	return round(filtered)
}

func round(v float32) uint16 {
	if v <= 0 || v != v {
		return 0
	}
	return uint16(v + 0.5)
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

// Filter owns the per-pixel state for the active resolution.
type Filter struct {
	pool  *kernel.Pool
	state []Cell
}

// NewFilter returns a Filter that dispatches on pool. A nil pool runs on
// the calling goroutine.
func NewFilter(pool *kernel.Pool) *Filter {
	return &Filter{pool: pool}
}

// Apply filters raw into out. State is reallocated only when the pixel count
// changes; the new slice replaces the old one before any pixel is processed.
func (f *Filter) Apply(raw, out []uint16, dt float32, p Params) {
	n := len(raw)
	if len(f.state) != n {
		if f.state != nil {
			monitoring.Logf("[TemporalFilter] resolution changed: %d -> %d pixels, state reset", len(f.state), n)
		}
		f.state = make([]Cell, n)
	}
	state := f.state
	f.pool.Dispatch(n, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			out[i] = Step(&state[i], raw[i], dt, p)
		}
	})
}

// Cell returns a copy of pixel i's state.
func (f *Filter) Cell(i int) (Cell, bool) {
	if i < 0 || i >= len(f.state) {
		return Cell{}, false
	}
	return f.state[i], true
}

// Len returns the number of pixels tracked.
func (f *Filter) Len() int { return len(f.state) }

// Reset drops all state.
func (f *Filter) Reset() { f.state = nil }
