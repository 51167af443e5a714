package pipeline

import (
	"time"

	"github.com/banshee-data/sandtable/internal/sandbox/calibration"
	"github.com/banshee-data/sandtable/internal/sandbox/kernel"
	"github.com/banshee-data/sandtable/internal/sandbox/l2temporal"
	"github.com/banshee-data/sandtable/internal/sandbox/l3spatial"
	"github.com/banshee-data/sandtable/internal/sandbox/l4heightfield"
)

// Input is one tick's worth of work.
type Input struct {
	Raw           []uint16
	Width, Height int
	DT            float32
	Quad          calibration.Quad
	// Probe is a pixel index whose values are reported after each stage.
	// Negative disables the probe.
	Probe int
}

// ProbeSample follows one pixel through the depth stages.
type ProbeSample struct {
	Raw      uint16 `json:"raw"`
	Filtered uint16 `json:"filtered"`
	Healed   uint16 `json:"healed"`
}

// StageTiming holds the wall time spent in each stage.
type StageTiming struct {
	Temporal time.Duration
	Spatial  time.Duration
	Synth    time.Duration
	Walls    time.Duration
}

// Total sums all stages.
func (t StageTiming) Total() time.Duration {
	return t.Temporal + t.Spatial + t.Synth + t.Walls
}

// Output references buffers owned by the Pipeline. They stay valid until the
// next Process call.
type Output struct {
	Width, Height int
	Depth         []uint16
	Vertices      []l4heightfield.Vertex
	Walls         *l4heightfield.Walls
	Probe         ProbeSample
	Timing        StageTiming
}

// Pipeline holds the per-stage state for one depth stream. Stages run in
// strict order, each finishing before the next starts. It is not safe for
// concurrent use.
type Pipeline struct {
	filter   *l2temporal.Filter
	blur     *l3spatial.Blur
	synth    *l4heightfield.Synthesizer
	filtered []uint16
}

// New returns a Pipeline whose stages dispatch on pool. A nil pool runs every
// stage on the caller.
func New(pool *kernel.Pool) *Pipeline {
	return &Pipeline{
		filter: l2temporal.NewFilter(pool),
		blur:   l3spatial.NewBlur(pool),
		synth:  l4heightfield.NewSynthesizer(pool),
	}
}

// Process runs every stage over in.
func (p *Pipeline) Process(in Input, params Params) Output {
	n := in.Width * in.Height
	out := Output{Width: in.Width, Height: in.Height}
	if n <= 0 || len(in.Raw) < n {
		return out
	}
	raw := in.Raw[:n]
	if len(p.filtered) != n {
		p.filtered = make([]uint16, n)
	}
	probe := in.Probe >= 0 && in.Probe < n

	start := time.Now()
	p.filter.Apply(raw, p.filtered, in.DT, params.Filter)
	mark := time.Now()
	out.Timing.Temporal = mark.Sub(start)
	if probe {
		out.Probe.Raw = raw[in.Probe]
		out.Probe.Filtered = p.filtered[in.Probe]
	}

	start = mark
	p.blur.Apply(p.filtered, in.Width, in.Height, params.BlurIterations)
	mark = time.Now()
	out.Timing.Spatial = mark.Sub(start)
	if probe {
		out.Probe.Healed = p.filtered[in.Probe]
	}

	start = mark
	out.Vertices = p.synth.Generate(p.filtered, in.Width, in.Height, in.Quad, params.Synth)
	mark = time.Now()
	out.Timing.Synth = mark.Sub(start)

	if params.ShowWalls && out.Vertices != nil {
		start = mark
		w := l4heightfield.BuildWalls(out.Vertices, params.Synth.Resolution)
		out.Walls = &w
		out.Timing.Walls = time.Since(start)
	}

	out.Depth = p.filtered
	return out
}

// FilterState returns the temporal state of pixel i.
func (p *Pipeline) FilterState(i int) (l2temporal.Cell, bool) {
	return p.filter.Cell(i)
}

// Reset drops all temporal state so the next frame starts fresh.
func (p *Pipeline) Reset() {
	p.filter.Reset()
}
