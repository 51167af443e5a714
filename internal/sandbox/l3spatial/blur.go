package l3spatial

import (
	"github.com/banshee-data/sandtable/internal/sandbox/kernel"
)

// Blur runs hole-healing passes with a private scratch buffer. It is owned
// by a single pipeline and is not safe for concurrent use.
type Blur struct {
	pool    *kernel.Pool
	scratch []uint16
}

// NewBlur returns a Blur dispatching on pool. A nil pool runs inline.
func NewBlur(pool *kernel.Pool) *Blur {
	return &Blur{pool: pool}
}

// Apply runs iterations passes over buf in place. Passes alternate between
// buf and the scratch buffer, each reading only the previous pass's output.
func (b *Blur) Apply(buf []uint16, width, height, iterations int) {
	n := width * height
	if iterations <= 0 || n == 0 || len(buf) < n {
		return
	}
	if len(b.scratch) != n {
		b.scratch = make([]uint16, n)
	}

	src, dst := buf[:n], b.scratch
	for i := 0; i < iterations; i++ {
		in, out := src, dst
		b.pool.Dispatch(n, func(lo, hi int) {
			for idx := lo; idx < hi; idx++ {
				out[idx] = heal(in, width, height, idx%width, idx/width)
			}
		})
		src, dst = dst, src
	}
	if iterations%2 == 1 {
		copy(buf, b.scratch)
	}
}

// heal computes one output pixel from the previous pass.
func heal(in []uint16, width, height, x, y int) uint16 {
	var sum, count uint32
	for dy := -1; dy <= 1; dy++ {
		ny := y + dy
		if ny < 0 || ny >= height {
			continue
		}
		row := ny * width
		for dx := -1; dx <= 1; dx++ {
			nx := x + dx
			if nx < 0 || nx >= width {
				continue
			}
			if v := in[row+nx]; v > 0 {
				sum += uint32(v)
				count++
			}
		}
	}
	if count == 0 {
		return 0
	}
	avg := uint16(sum / count)
	if in[y*width+x] > 0 && avg < 1 {
		return 1
	}
	return avg
}
