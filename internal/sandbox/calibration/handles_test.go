package calibration

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClosestHandle(t *testing.T) {
	handles := []Point{{0, 0}, {0, 100}, {100, 100}, {100, 0}}
	assert.Equal(t, 0, ClosestHandle(handles, Point{5, 5}, 50))
	assert.Equal(t, 2, ClosestHandle(handles, Point{96, 97}, 50))
	assert.Equal(t, -1, ClosestHandle([]Point{{0, 0}}, Point{100, 100}, 10))
}

func TestScreenToUV(t *testing.T) {
	uv := ScreenToUV(2000, -50, 1920, 1080, false)
	assert.Equal(t, Point{1, 0}, uv)

	uv = ScreenToUV(960, 216, 1920, 1080, true)
	assert.InDelta(t, 0.5, uv.X, 1e-6)
	assert.InDelta(t, 0.8, uv.Y, 1e-6)

	x, y := UVToScreen(uv, 1920, 1080, true)
	assert.InDelta(t, 960, x, 1e-3)
	assert.InDelta(t, 216, y, 1e-3)

	assert.Equal(t, Point{}, ScreenToUV(1, 1, 0, 0, false))
}
