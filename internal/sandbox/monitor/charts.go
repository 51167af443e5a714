package monitor

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/sandtable/internal/httputil"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// viridis ramp shared by the charts.
var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

const (
	defaultHeightmapCells = 96
	defaultHistogramBins  = 40
)

// handleHeightmapChart renders the latest height field as a coloured
// scatter, one point per sampled grid vertex.
// Query params:
//   - cells (optional; default 96) caps points per side
func (s *Server) handleHeightmapChart(w http.ResponseWriter, r *http.Request) {
	snap := s.cfg.Runtime.Snapshot()
	if snap == nil || snap.Resolution < 2 {
		httputil.ServiceUnavailable(w, "no height field generated yet")
		return
	}
	cells := queryInt(r, "cells", defaultHeightmapCells, 8, 512)

	res := snap.Resolution
	stride := (res + cells - 1) / cells
	data := make([]opts.ScatterData, 0, (res/stride+1)*(res/stride+1))
	maxH := float32(0)
	for z := 0; z < res; z += stride {
		for x := 0; x < res; x += stride {
			h := snap.Heights[z*res+x]
			if h > maxH {
				maxH = h
			}
			data = append(data, opts.ScatterData{Value: []interface{}{x, z, h}})
		}
	}
	if maxH == 0 {
		maxH = 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Sandtable Heightmap", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Height field", Subtitle: fmt.Sprintf("seq=%d resolution=%d stride=%d", snap.Seq, res, stride)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: res - 1, Name: "X", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: res - 1, Name: "Z", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        maxH,
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	scatter.AddSeries("height", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))

	renderChart(w, scatter)
}

// handleHistogramChart renders the distribution of valid filtered depths.
// Query params:
//   - bins (optional; default 40)
//   - raw=1 to use the unfiltered frame
func (s *Server) handleHistogramChart(w http.ResponseWriter, r *http.Request) {
	snap := s.cfg.Runtime.Snapshot()
	if snap == nil {
		httputil.ServiceUnavailable(w, "no depth frame processed yet")
		return
	}
	frame := snap.Depth
	label := "filtered"
	if r.URL.Query().Get("raw") == "1" {
		frame, label = snap.Raw, "raw"
	}
	bins := queryInt(r, "bins", defaultHistogramBins, 2, 500)

	h, ok := depthHistogram(frame, bins)
	if !ok {
		httputil.WriteJSONError(w, http.StatusUnprocessableEntity, "frame has no valid depth samples")
		return
	}

	labels := make([]string, bins)
	bars := make([]opts.BarData, bins)
	for i := range bars {
		labels[i] = strconv.FormatFloat(h.Dividers[i], 'f', 0, 64)
		bars[i] = opts.BarData{Value: h.Counts[i]}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Sandtable Depth Histogram", Width: "100%", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Depth histogram (%s)", label),
			Subtitle: fmt.Sprintf("seq=%d samples=%d holes=%d mean=%.1fmm stddev=%.1fmm", snap.Seq, h.Samples, h.Holes, h.Mean, h.StdDev),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "depth (mm)"}),
	)
	bar.SetXAxis(labels).AddSeries(label, bars)

	renderChart(w, bar)
}

// DepthHistogram is the binned distribution of the non-zero samples of a
// frame.
type DepthHistogram struct {
	Dividers []float64
	Counts   []float64
	Samples  int
	Holes    int
	Mean     float64
	StdDev   float64
}

func depthHistogram(frame []uint16, bins int) (DepthHistogram, bool) {
	x := make([]float64, 0, len(frame))
	for _, d := range frame {
		if d > 0 {
			x = append(x, float64(d))
		}
	}
	h := DepthHistogram{Samples: len(x), Holes: len(frame) - len(x)}
	if len(x) == 0 {
		return h, false
	}
	sort.Float64s(x)
	h.Mean, h.StdDev = stat.MeanStdDev(x, nil)
	if len(x) == 1 {
		h.StdDev = 0
	}

	// The top divider must exceed the largest sample.
	h.Dividers = make([]float64, bins+1)
	floats.Span(h.Dividers, x[0], x[len(x)-1]+1)
	h.Counts = stat.Histogram(nil, h.Dividers, x, nil)
	return h, true
}

type renderer interface {
	Render(w io.Writer) error
}

func renderChart(w http.ResponseWriter, c renderer) {
	var buf bytes.Buffer
	if err := c.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func queryInt(r *http.Request, key string, def, lo, hi int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < lo || v > hi {
		return def
	}
	return v
}
