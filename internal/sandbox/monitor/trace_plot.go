package monitor

import (
	"bytes"
	"fmt"
	"image/color"
	"net/http"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/banshee-data/sandtable/internal/httputil"
	"github.com/banshee-data/sandtable/internal/sandbox/pipeline"
)

var (
	rawColor      = color.RGBA{R: 200, G: 200, B: 200, A: 255}
	filteredColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	healedColor   = color.RGBA{R: 255, G: 127, B: 14, A: 255}
)

// handleTracePlot renders the probe pixel history as a PNG line plot of raw,
// filtered and healed depth over ticks.
func (s *Server) handleTracePlot(w http.ResponseWriter, r *http.Request) {
	trace := s.cfg.Runtime.Trace()
	if len(trace) == 0 {
		httputil.ServiceUnavailable(w, "no probe samples yet")
		return
	}
	png, err := renderTrace(trace, 10*vg.Inch, 4*vg.Inch)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

func renderTrace(trace []pipeline.TracePoint, width, height vg.Length) ([]byte, error) {
	raw := make(plotter.XYs, len(trace))
	filtered := make(plotter.XYs, len(trace))
	healed := make(plotter.XYs, len(trace))
	for i, tp := range trace {
		x := float64(tp.Seq)
		raw[i] = plotter.XY{X: x, Y: float64(tp.Raw)}
		filtered[i] = plotter.XY{X: x, Y: float64(tp.Filtered)}
		healed[i] = plotter.XY{X: x, Y: float64(tp.Healed)}
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Probe depth (%d ticks)", len(trace))
	p.X.Label.Text = "tick"
	p.Y.Label.Text = "depth (mm)"
	p.Add(plotter.NewGrid())

	series := []struct {
		name string
		pts  plotter.XYs
		col  color.Color
	}{
		{"raw", raw, rawColor},
		{"filtered", filtered, filteredColor},
		{"healed", healed, healedColor},
	}
	for _, sr := range series {
		line, err := plotter.NewLine(sr.pts)
		if err != nil {
			return nil, fmt.Errorf("failed to build %s line: %w", sr.name, err)
		}
		line.Color = sr.col
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(sr.name, line)
	}
	p.Legend.Top = true

	c := vgimg.New(width, height)
	p.Draw(draw.New(c))
	var buf bytes.Buffer
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode trace plot: %w", err)
	}
	return buf.Bytes(), nil
}
