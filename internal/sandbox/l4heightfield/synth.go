package l4heightfield

import (
	"math"

	"github.com/banshee-data/sandtable/internal/monitoring"
	"github.com/banshee-data/sandtable/internal/sandbox/calibration"
	"github.com/banshee-data/sandtable/internal/sandbox/kernel"
)

// MaxResolution is the largest supported grid resolution.
const MaxResolution = 2048

// MinDepthRange is the smallest usable MaxDepth-MinDepth span in mm.
const MinDepthRange = 0.001

// Vertex is one grid vertex. Height carries the unflattened height in X so
// shaders can colour by elevation even in flat mode.
type Vertex struct {
	Position [3]float32
	UV       [2]float32
	Height   [2]float32
}

// Params controls one synthesis pass.
type Params struct {
	MinDepth    float32
	MaxDepth    float32
	HeightScale float32
	MeshWidth   float32
	MeshLength  float32
	Resolution  int
	FlatMode    bool
}

// HeightFromDepth maps a depth in mm to a world height. Nearer sand is
// higher. Holes and an empty depth range map to zero. The range is taken as
// |maxDepth-minDepth|, so swapped bounds still give a usable scale.
func HeightFromDepth(depth, minDepth, maxDepth, heightScale float32) float32 {
	if depth <= 0 {
		return 0
	}
	rng := maxDepth - minDepth
	if rng < 0 {
		rng = -rng
	}
	if rng < MinDepthRange {
		return 0
	}
	return kernel.Clamp01((maxDepth-depth)/rng) * heightScale
}

// SampleDepth reads the frame at fractional pixel coordinates. All four
// neighbours valid gives a bilinear blend; otherwise the valid neighbours are
// averaged, and zero is returned when none are valid.
func SampleDepth(frame []uint16, width, height int, texX, texY float32) float32 {
	if width <= 0 || height <= 0 || len(frame) < width*height {
		return 0
	}
	texX = kernel.Clamp(texX, 0, float32(width-1))
	texY = kernel.Clamp(texY, 0, float32(height-1))

	x0 := int(texX)
	y0 := int(texY)
	x1 := min(x0+1, width-1)
	y1 := min(y0+1, height-1)
	fx := texX - float32(x0)
	fy := texY - float32(y0)

	d00 := float32(frame[y0*width+x0])
	d10 := float32(frame[y0*width+x1])
	d01 := float32(frame[y1*width+x0])
	d11 := float32(frame[y1*width+x1])

	if d00 > 0 && d10 > 0 && d01 > 0 && d11 > 0 {
		top := kernel.Lerp(d00, d10, fx)
		bottom := kernel.Lerp(d01, d11, fx)
		return kernel.Lerp(top, bottom, fy)
	}

	var sum float32
	var n int
	for _, d := range [4]float32{d00, d10, d01, d11} {
		if d > 0 {
			sum += d
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float32(n)
}

// Synthesizer owns the vertex buffer for one pipeline. It is not safe for
// concurrent use.
type Synthesizer struct {
	pool  *kernel.Pool
	verts []Vertex
}

// NewSynthesizer returns a Synthesizer dispatching on pool. A nil pool runs
// inline.
func NewSynthesizer(pool *kernel.Pool) *Synthesizer {
	return &Synthesizer{pool: pool}
}

// Generate fills and returns the R×R vertex buffer for frame. The returned
// slice is reused by the next call. The buffer is replaced, never resized in
// place, when the resolution changes.
func (s *Synthesizer) Generate(frame []uint16, width, height int, quad calibration.Quad, p Params) []Vertex {
	r := p.Resolution
	if r < 2 {
		return nil
	}
	if len(s.verts) != r*r {
		if s.verts != nil {
			monitoring.Logf("[Synthesizer] mesh resolution changed: %d -> %d", int(math.Sqrt(float64(len(s.verts)))), r)
		}
		s.verts = make([]Vertex, r*r)
	}
	verts := s.verts
	step := 1 / float32(r-1)
	maxX := float32(width - 1)
	maxY := float32(height - 1)

	s.pool.Dispatch(r*r, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			x, z := i%r, i/r
			u := float32(x) * step
			v := float32(z) * step

			sample := quad.Map(u, v)
			depth := SampleDepth(frame, width, height, sample.X*maxX, sample.Y*maxY)
			h := HeightFromDepth(depth, p.MinDepth, p.MaxDepth, p.HeightScale)

			y := h
			if p.FlatMode {
				y = 0
			}
			verts[i] = Vertex{
				Position: [3]float32{(u - 0.5) * p.MeshWidth, y, (v - 0.5) * p.MeshLength},
				UV:       [2]float32{u, v},
				Height:   [2]float32{h, 0},
			}
		}
	})
	return verts
}

// Vertices returns the buffer from the last Generate call.
func (s *Synthesizer) Vertices() []Vertex { return s.verts }
