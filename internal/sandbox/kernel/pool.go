package kernel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// RangeFunc processes the indices in [lo, hi).
type RangeFunc func(lo, hi int)

// MinChunk is the smallest range handed to a worker. Smaller dispatches run
// inline on the caller.
const MinChunk = 1024

type rangeTask struct {
	lo, hi int
	fn     RangeFunc
	wg     *sync.WaitGroup
}

// Pool runs range tasks on a fixed set of goroutines.
type Pool struct {
	tasks      chan rangeTask
	numWorkers int
	wg         sync.WaitGroup
	stopped    atomic.Bool
	stopOnce   sync.Once
}

// NewPool starts a pool with numWorkers goroutines. Zero or negative means one
// per CPU.
func NewPool(numWorkers int) *Pool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	p := &Pool{
		tasks:      make(chan rangeTask, numWorkers*4),
		numWorkers: numWorkers,
	}
	for i := 0; i < numWorkers; i++ {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int {
	if p == nil {
		return 1
	}
	return p.numWorkers
}

// Dispatch splits [0, n) into disjoint chunks, runs fn over each and blocks
// until all of them return. A nil or stopped pool runs fn inline.
func (p *Pool) Dispatch(n int, fn RangeFunc) {
	if n <= 0 {
		return
	}
	if p == nil || p.stopped.Load() || p.numWorkers == 1 || n <= MinChunk {
		fn(0, n)
		return
	}

	chunks := p.numWorkers * 4
	size := (n + chunks - 1) / chunks
	if size < MinChunk {
		size = MinChunk
	}

	var wg sync.WaitGroup
	for lo := 0; lo < n; lo += size {
		hi := lo + size
		if hi > n {
			hi = n
		}
		wg.Add(1)
		p.tasks <- rangeTask{lo: lo, hi: hi, fn: fn, wg: &wg}
	}
	wg.Wait()
}

// Stop drains outstanding work and shuts the workers down. Dispatch after
// Stop runs inline. Stop must not race with a Dispatch in flight.
func (p *Pool) Stop() {
	if p == nil {
		return
	}
	p.stopOnce.Do(func() {
		p.stopped.Store(true)
		close(p.tasks)
		p.wg.Wait()
	})
}

func (p *Pool) run() {
	defer p.wg.Done()
	for task := range p.tasks {
		task.fn(task.lo, task.hi)
		task.wg.Done()
	}
}
