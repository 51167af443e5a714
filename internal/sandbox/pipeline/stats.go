package pipeline

import (
	"sync"
	"time"
)

// statsAlpha weights the newest tick in the moving stage averages.
const statsAlpha = 0.05

// TickStats counts ticks and tracks smoothed stage timings.
type TickStats struct {
	mu           sync.Mutex
	ticks        uint64
	newFrames    uint64
	reusedFrames uint64
	skipped      uint64
	resets       uint64
	last         StageTiming
	avg          [4]float64 // seconds: temporal, spatial, synth, walls
}

// StatsSnapshot is a copy of TickStats at one point in time.
type StatsSnapshot struct {
	Ticks        uint64   `json:"ticks"`
	NewFrames    uint64   `json:"new_frames"`
	ReusedFrames uint64   `json:"reused_frames"`
	SkippedTicks uint64   `json:"skipped_ticks"`
	SensorResets uint64   `json:"sensor_resets"`
	Last         TimingMS `json:"last_ms"`
	Average      TimingMS `json:"avg_ms"`
}

// TimingMS is StageTiming in fractional milliseconds for JSON.
type TimingMS struct {
	Temporal float64 `json:"temporal"`
	Spatial  float64 `json:"spatial"`
	Synth    float64 `json:"synth"`
	Walls    float64 `json:"walls"`
	Total    float64 `json:"total"`
}

func timingMS(t StageTiming) TimingMS {
	ms := func(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }
	return TimingMS{
		Temporal: ms(t.Temporal),
		Spatial:  ms(t.Spatial),
		Synth:    ms(t.Synth),
		Walls:    ms(t.Walls),
		Total:    ms(t.Total()),
	}
}

// AddTick records a processed tick.
func (s *TickStats) AddTick(fresh bool, t StageTiming) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks++
	if fresh {
		s.newFrames++
	} else {
		s.reusedFrames++
	}
	s.last = t
	cur := [4]float64{t.Temporal.Seconds(), t.Spatial.Seconds(), t.Synth.Seconds(), t.Walls.Seconds()}
	for i, v := range cur {
		if s.ticks == 1 {
			s.avg[i] = v
		} else {
			s.avg[i] += statsAlpha * (v - s.avg[i])
		}
	}
}

// AddSkipped records a tick with no frame to process.
func (s *TickStats) AddSkipped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipped++
}

// AddReset records a sensor reset.
func (s *TickStats) AddReset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
}

// Snapshot returns the current counters.
func (s *TickStats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec := func(v float64) time.Duration { return time.Duration(v * float64(time.Second)) }
	return StatsSnapshot{
		Ticks:        s.ticks,
		NewFrames:    s.newFrames,
		ReusedFrames: s.reusedFrames,
		SkippedTicks: s.skipped,
		SensorResets: s.resets,
		Last:         timingMS(s.last),
		Average: timingMS(StageTiming{
			Temporal: sec(s.avg[0]),
			Spatial:  sec(s.avg[1]),
			Synth:    sec(s.avg[2]),
			Walls:    sec(s.avg[3]),
		}),
	}
}
