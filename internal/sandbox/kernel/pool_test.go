package kernel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchCoversEveryIndexOnce(t *testing.T) {
	p := NewPool(4)
	defer p.Stop()

	for _, n := range []int{1, MinChunk, MinChunk + 1, 100_000} {
		hits := make([]int32, n)
		p.Dispatch(n, func(lo, hi int) {
			for i := lo; i < hi; i++ {
				atomic.AddInt32(&hits[i], 1)
			}
		})
		for i, h := range hits {
			require.Equalf(t, int32(1), h, "n=%d index %d visited %d times", n, i, h)
		}
	}
}

func TestDispatchNilPoolRunsInline(t *testing.T) {
	var p *Pool
	var calls int
	p.Dispatch(10, func(lo, hi int) {
		calls++
		assert.Equal(t, 0, lo)
		assert.Equal(t, 10, hi)
	})
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, p.Workers())
}

func TestDispatchAfterStop(t *testing.T) {
	p := NewPool(2)
	p.Stop()
	p.Stop()

	sum := 0
	p.Dispatch(5000, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			sum++
		}
	})
	assert.Equal(t, 5000, sum)
}

func TestDispatchZeroLength(t *testing.T) {
	p := NewPool(2)
	defer p.Stop()
	p.Dispatch(0, func(lo, hi int) { t.Fatal("fn called for empty range") })
}

func TestClampLerp(t *testing.T) {
	assert.Equal(t, 1.0, Clamp(0.5, 1.0, 65000.0))
	assert.Equal(t, 65000.0, Clamp(70000.0, 1.0, 65000.0))
	assert.Equal(t, 3, Clamp(3, 0, 5))
	assert.Equal(t, float32(0), Clamp01(float32(-2)))
	assert.Equal(t, float32(1), Clamp01(float32(2)))
	assert.InDelta(t, 5.0, Lerp(0.0, 10.0, 0.5), 1e-12)
	assert.Equal(t, float32(2), Lerp(float32(2), 8, 0))
}
