package l3spatial

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/sandtable/internal/sandbox/kernel"
)

func uniform(w, h int, v uint16) []uint16 {
	f := make([]uint16, w*h)
	for i := range f {
		f[i] = v
	}
	return f
}

func TestUniformFieldIsUnchanged(t *testing.T) {
	pool := kernel.NewPool(4)
	defer pool.Stop()

	b := NewBlur(pool)
	for _, k := range []int{0, 1, 2, 3, 8} {
		buf := uniform(64, 48, 1234)
		b.Apply(buf, 64, 48, k)
		assert.Equal(t, uniform(64, 48, 1234), buf, "k=%d", k)
	}
}

func TestSingleHoleHeals(t *testing.T) {
	buf := uniform(3, 3, 800)
	buf[4] = 0
	NewBlur(nil).Apply(buf, 3, 3, 1)
	assert.Equal(t, uint16(800), buf[4])
}

func TestIsolatedHoleStaysEmpty(t *testing.T) {
	buf := uniform(5, 5, 0)
	NewBlur(nil).Apply(buf, 5, 5, 1)
	assert.Equal(t, uniform(5, 5, 0), buf)
}

func TestHoleRegionHealsOverIterations(t *testing.T) {
	// a 5x5 hole inside a 9x9 field of 600 needs several passes
	const w, h = 9, 9
	buf := uniform(w, h, 600)
	for y := 2; y < 7; y++ {
		for x := 2; x < 7; x++ {
			buf[y*w+x] = 0
		}
	}
	b := NewBlur(nil)

	b.Apply(buf, w, h, 1)
	assert.Zero(t, buf[4*w+4], "centre cannot heal on the first pass")
	assert.Equal(t, uint16(600), buf[2*w+2], "rim heals on the first pass")

	b.Apply(buf, w, h, 2)
	assert.Equal(t, uniform(w, h, 600), buf)
}

func TestDataPixelsNeverBecomeHoles(t *testing.T) {
	buf := []uint16{
		0, 0, 0,
		0, 1, 0,
		0, 0, 0,
	}
	NewBlur(nil).Apply(buf, 3, 3, 1)
	assert.Equal(t, uint16(1), buf[4])
	for i, v := range buf {
		assert.Equal(t, uint16(1), v, "pixel %d", i)
	}
}

func TestAverageTruncates(t *testing.T) {
	// (10+11)/2 = 10.5 truncates to 10 for both data pixels
	buf := []uint16{
		11, 0, 0,
		0, 10, 0,
		0, 0, 0,
	}
	NewBlur(nil).Apply(buf, 3, 3, 1)
	assert.Equal(t, uint16(10), buf[4])
	assert.Equal(t, uint16(10), buf[0])
}

func TestOddIterationsCopyBack(t *testing.T) {
	buf := []uint16{100, 0, 300, 0}
	b := NewBlur(nil)
	b.Apply(buf, 4, 1, 1)
	// read back from buf, not the scratch buffer
	assert.Equal(t, []uint16{100, 200, 300, 300}, buf)
}

func TestEachPassReadsPreviousPass(t *testing.T) {
	// if a pass read its own writes, the hole at index 2 would see the
	// healed value at index 1 within the same pass
	buf := []uint16{90, 0, 0, 0, 0}
	NewBlur(nil).Apply(buf, 5, 1, 1)
	assert.Equal(t, []uint16{90, 90, 0, 0, 0}, buf)
}

func TestParallelMatchesSerial(t *testing.T) {
	pool := kernel.NewPool(8)
	defer pool.Stop()

	const w, h = 128, 96
	a := make([]uint16, w*h)
	for i := range a {
		if i%5 != 0 && i%7 != 0 {
			a[i] = uint16(500 + (i*37)%900)
		}
	}
	b := append([]uint16(nil), a...)

	NewBlur(pool).Apply(a, w, h, 3)
	NewBlur(nil).Apply(b, w, h, 3)
	assert.Equal(t, b, a)
}
