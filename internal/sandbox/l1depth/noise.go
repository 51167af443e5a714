package l1depth

import (
	"math"
	"math/rand/v2"
)

// perlin is a classic 2D gradient noise with outputs in roughly [0, 1].
type perlin struct {
	perm [512]uint8
}

func newPerlin(seed uint64) *perlin {
	p := &perlin{}
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	base := r.Perm(256)
	for i := 0; i < 512; i++ {
		p.perm[i] = uint8(base[i&255])
	}
	return p
}

func fade(t float64) float64 { return t * t * t * (t*(t*6-15) + 10) }

func grad(hash uint8, x, y float64) float64 {
	switch hash & 7 {
	case 0:
		return x + y
	case 1:
		return -x + y
	case 2:
		return x - y
	case 3:
		return -x - y
	case 4:
		return x
	case 5:
		return -x
	case 6:
		return y
	default:
		return -y
	}
}

// At samples the noise field at (x, y).
func (p *perlin) At(x, y float64) float64 {
	fx, fy := math.Floor(x), math.Floor(y)
	xi, yi := int(fx)&255, int(fy)&255
	xf, yf := x-fx, y-fy
	u, v := fade(xf), fade(yf)

	aa := p.perm[int(p.perm[xi])+yi]
	ab := p.perm[int(p.perm[xi])+yi+1]
	ba := p.perm[int(p.perm[xi+1])+yi]
	bb := p.perm[int(p.perm[xi+1])+yi+1]

	x1 := lerp64(grad(aa, xf, yf), grad(ba, xf-1, yf), u)
	x2 := lerp64(grad(ab, xf, yf-1), grad(bb, xf-1, yf-1), u)
	n := lerp64(x1, x2, v)
	return clamp01(n*0.5 + 0.5)
}

func lerp64(a, b, t float64) float64 { return a + (b-a)*t }

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
