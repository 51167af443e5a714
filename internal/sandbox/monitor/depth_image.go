package monitor

import (
	"bytes"
	"image"
	"image/png"
	"net/http"

	"golang.org/x/image/draw"

	"github.com/banshee-data/sandtable/internal/httputil"
	"github.com/banshee-data/sandtable/internal/sandbox/kernel"
)

const defaultPreviewWidth = 320

// handleDepthImage renders the filtered depth frame as a grayscale PNG,
// near samples bright and holes black.
// Query params:
//   - width (optional; default 320) output width, aspect preserved
//   - raw=1 to render the unfiltered frame
func (s *Server) handleDepthImage(w http.ResponseWriter, r *http.Request) {
	snap := s.cfg.Runtime.Snapshot()
	if snap == nil || snap.Width == 0 || snap.Height == 0 {
		httputil.ServiceUnavailable(w, "no depth frame processed yet")
		return
	}
	frame := snap.Depth
	if r.URL.Query().Get("raw") == "1" {
		frame = snap.Raw
	}
	outW := queryInt(r, "width", defaultPreviewWidth, 16, 2048)

	src := depthToGray(frame, snap.Width, snap.Height, snap.MinDepth, snap.MaxDepth)
	img := scaleToWidth(src, outW)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

// depthToGray maps [minDepth, maxDepth] onto 255..32 so the nearest sand is
// brightest. Holes stay at zero.
func depthToGray(frame []uint16, width, height int, minDepth, maxDepth float32) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	span := maxDepth - minDepth
	if span <= 0 {
		span = 1
	}
	for i, d := range frame[:min(len(frame), width*height)] {
		if d == 0 {
			continue
		}
		t := kernel.Clamp01((float32(d) - minDepth) / span)
		img.Pix[i] = uint8(kernel.Lerp(float32(255), 32, t))
	}
	return img
}

func scaleToWidth(src *image.Gray, width int) image.Image {
	b := src.Bounds()
	if b.Dx() == width {
		return src
	}
	height := max(1, b.Dy()*width/b.Dx())
	dst := image.NewGray(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}
