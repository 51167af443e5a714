package calibration

import (
	"math"

	"github.com/banshee-data/sandtable/internal/sandbox/kernel"
)

// ClosestHandle returns the index of the handle nearest to p within
// threshold, or -1.
func ClosestHandle(handles []Point, p Point, threshold float32) int {
	best := float64(threshold)
	index := -1
	for i, h := range handles {
		d := math.Hypot(float64(p.X-h.X), float64(p.Y-h.Y))
		if d < best {
			best = d
			index = i
		}
	}
	return index
}

// ScreenToUV converts a screen position to clamped UV. With invertY the V
// axis is flipped, matching projector setups where screen Y grows downwards.
func ScreenToUV(x, y, width, height float32, invertY bool) Point {
	if width <= 0 || height <= 0 {
		return Point{}
	}
	u := kernel.Clamp01(x / width)
	v := kernel.Clamp01(y / height)
	if invertY {
		v = 1 - v
	}
	return Point{X: u, Y: v}
}

// UVToScreen is the inverse of ScreenToUV.
func UVToScreen(p Point, width, height float32, invertY bool) (x, y float32) {
	v := p.Y
	if invertY {
		v = 1 - v
	}
	return p.X * width, v * height
}
