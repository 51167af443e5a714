package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/sandtable/internal/config"
	"github.com/banshee-data/sandtable/internal/monitoring"
	"github.com/banshee-data/sandtable/internal/sandbox/calibration"
	"github.com/banshee-data/sandtable/internal/sandbox/kernel"
	"github.com/banshee-data/sandtable/internal/sandbox/l1depth"
	"github.com/banshee-data/sandtable/internal/sandbox/l4heightfield"
	"github.com/banshee-data/sandtable/internal/sandbox/watchdog"
	"github.com/banshee-data/sandtable/internal/timeutil"
)

// DefaultTickInterval is the tick period when none is configured.
const DefaultTickInterval = time.Second / 60

// TraceLength is the number of probe samples kept for the trace plot.
const TraceLength = 600

// Sensor event kinds recorded through EventLog.
const (
	EventStart       = "start"
	EventHang        = "hang"
	EventReset       = "reset"
	EventResetFailed = "reset_failed"
	EventStop        = "stop"
)

// Terrain is one tick's mesh as handed to the Sink. Vertices is reused by
// the next tick, so a Sink must not retain it after PublishTerrain returns.
type Terrain struct {
	Seq        uint64
	Timestamp  time.Time
	Resolution int
	MeshWidth  float32
	MeshLength float32
	FlatMode   bool
	Vertices   []l4heightfield.Vertex
	Walls      *l4heightfield.Walls
}

// Sink receives the terrain once per tick.
type Sink interface {
	PublishTerrain(t *Terrain)
}

// EventLog records sensor lifecycle events. Implemented by the db package.
type EventLog interface {
	RecordSensorEvent(sessionID, kind, device, detail string) error
}

// TracePoint is one probe sample.
type TracePoint struct {
	Seq uint64 `json:"seq"`
	ProbeSample
}

// Snapshot is a deep copy of the most recent tick for inspection.
type Snapshot struct {
	Seq         uint64    `json:"seq"`
	Timestamp   time.Time `json:"timestamp"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Raw         []uint16  `json:"-"`
	Depth       []uint16  `json:"-"`
	Resolution  int       `json:"resolution"`
	Heights     []float32 `json:"-"`
	MinDepth    float32   `json:"min_depth"`
	MaxDepth    float32   `json:"max_depth"`
	HeightScale float32   `json:"height_scale"`
}

// Status summarises the runtime for the monitor.
type Status struct {
	SessionID        string        `json:"session_id"`
	Device           string        `json:"device"`
	Running          bool          `json:"running"`
	Watchdog         string        `json:"watchdog"`
	SinceLastFrameMS int64         `json:"since_last_frame_ms"`
	FrameWidth       int           `json:"frame_width"`
	FrameHeight      int           `json:"frame_height"`
	Resolution       int           `json:"resolution"`
	Stats            StatsSnapshot `json:"stats"`
}

// RuntimeConfig wires a Runtime.
type RuntimeConfig struct {
	Source       l1depth.Source
	Calibration  *calibration.Store
	Settings     *config.Settings
	Sink         Sink     // optional
	Events       EventLog // optional
	Clock        timeutil.Clock
	Pool         *kernel.Pool
	TickInterval time.Duration
	// LogInterval controls periodic tick-rate logging. Zero disables it.
	LogInterval time.Duration
}

// Runtime owns the tick loop. Tick and Run must be called from one
// goroutine; every other method is safe for concurrent use.
type Runtime struct {
	src      l1depth.Source
	calib    *calibration.Store
	sink     Sink
	events   EventLog
	clock    timeutil.Clock
	interval time.Duration
	logEvery time.Duration
	session  string

	pipeline *Pipeline
	wd       *watchdog.Watchdog
	stats    TickStats

	params   atomic.Pointer[Params]
	settings atomic.Pointer[config.Settings]

	// tick goroutine only
	lastRaw  []uint16
	lastW    int
	lastH    int
	lastTick time.Time
	seq      uint64

	mu    sync.Mutex
	snap  Snapshot
	trace []TracePoint
	head  int
}

// NewRuntime builds a Runtime. Source and Calibration are required.
func NewRuntime(cfg RuntimeConfig) *Runtime {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	interval := cfg.TickInterval
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	s := cfg.Settings
	if s == nil {
		s = config.DefaultSettings()
	}
	r := &Runtime{
		src:      cfg.Source,
		calib:    cfg.Calibration,
		sink:     cfg.Sink,
		events:   cfg.Events,
		clock:    clock,
		interval: interval,
		logEvery: cfg.LogInterval,
		session:  uuid.NewString(),
		pipeline: New(cfg.Pool),
		trace:    make([]TracePoint, 0, TraceLength),
	}
	r.wd = watchdog.New(clock, r.onHang)
	r.storeSettings(s.Clone())
	return r
}

// SessionID identifies this runtime in persisted events.
func (r *Runtime) SessionID() string { return r.session }

// Source returns the depth source.
func (r *Runtime) Source() l1depth.Source { return r.src }

// Calibration returns the quad store.
func (r *Runtime) Calibration() *calibration.Store { return r.calib }

// Watchdog returns the sensor watchdog.
func (r *Runtime) Watchdog() *watchdog.Watchdog { return r.wd }

// Params returns the parameters the next tick will use.
func (r *Runtime) Params() Params { return *r.params.Load() }

// Settings returns a copy of the current settings.
func (r *Runtime) Settings() *config.Settings { return r.settings.Load().Clone() }

// ApplySettings validates s and makes it current from the next tick on. The
// calibration quad in s replaces the stored one.
func (r *Runtime) ApplySettings(s *config.Settings) error {
	if s == nil {
		return errors.New("nil settings")
	}
	if err := s.Validate(); err != nil {
		return err
	}
	if err := r.calib.Set(s.Quad()); err != nil {
		return err
	}
	r.storeSettings(s.Clone())
	monitoring.Logf("[Runtime] settings applied: resolution=%d depth=%.0f..%.0f blur=%d",
		s.GetMeshResolution(), s.GetMinDepth(), s.GetMaxDepth(), s.GetSpatialBlur())
	return nil
}

// SetCalibration replaces the quad and mirrors it into the settings.
func (r *Runtime) SetCalibration(q calibration.Quad) error {
	if err := r.calib.Set(q); err != nil {
		return err
	}
	s := r.settings.Load().Clone()
	s.CalibrationPoints = q.Points()
	r.settings.Store(s)
	return nil
}

func (r *Runtime) storeSettings(s *config.Settings) {
	p := ParamsFromSettings(s)
	r.settings.Store(s)
	r.params.Store(&p)
	if t, ok := r.src.(interface {
		Tune(noiseScale, moveSpeed, minDepthMM, maxDepthMM float64)
	}); ok {
		t.Tune(s.GetNoiseScale()*10, s.GetMoveSpeed(), s.GetMinDepth(), s.GetMaxDepth())
	}
}

// Start initializes the source and arms the watchdog.
func (r *Runtime) Start() error {
	if err := r.src.Initialize(); err != nil {
		r.recordEvent(EventResetFailed, err.Error())
		return fmt.Errorf("failed to initialize %s: %w", r.src.DeviceName(), err)
	}
	r.wd.ResetHeartbeat()
	r.recordEvent(EventStart, "")
	monitoring.Logf("[Runtime] session %s started with %s", r.session, r.src.DeviceName())
	return nil
}

// Run ticks until ctx is cancelled, then shuts the source down.
func (r *Runtime) Run(ctx context.Context) error {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	var logC <-chan time.Time
	if r.logEvery > 0 {
		lt := r.clock.NewTicker(r.logEvery)
		defer lt.Stop()
		logC = lt.C()
	}
	var lastLogged StatsSnapshot

	for {
		select {
		case <-ctx.Done():
			r.src.Shutdown()
			r.recordEvent(EventStop, "")
			monitoring.Logf("[Runtime] session %s stopped", r.session)
			return nil
		case <-ticker.C():
			r.Tick()
		case <-logC:
			cur := r.stats.Snapshot()
			monitoring.Logf("[Runtime] %d ticks (%d new frames) in last %v, avg %.2f ms/tick, watchdog %s",
				cur.Ticks-lastLogged.Ticks, cur.NewFrames-lastLogged.NewFrames, r.logEvery,
				cur.Average.Total, r.wd.State())
			lastLogged = cur
		}
	}
}

// Tick runs one pipeline pass over the newest frame, or the previous frame
// when nothing new arrived, then checks the watchdog unless the source has
// reached its end.
func (r *Runtime) Tick() {
	p := r.params.Load()
	now := r.clock.Now()
	dt := float32(r.interval.Seconds())
	if !r.lastTick.IsZero() {
		dt = float32(now.Sub(r.lastTick).Seconds())
	}
	r.lastTick = now

	fresh := false
	if r.src.IsRunning() {
		if frame := r.src.DepthData(); frame != nil {
			w, h := r.src.Width(), r.src.Height()
			if w*h == len(frame) {
				r.wd.ResetHeartbeat()
				r.keepFrame(frame, w, h)
				fresh = true
			} else {
				monitoring.Logf("[Runtime] dropping frame: %d samples for %dx%d", len(frame), w, h)
			}
		}
	}

	if r.lastRaw != nil {
		r.process(p, dt, fresh, now)
	} else {
		r.stats.AddSkipped()
	}

	if f, ok := r.src.(l1depth.Finisher); !ok || !f.Finished() {
		r.wd.Update(p.WatchdogTimeout, p.WatchdogRetry)
	}
}

func (r *Runtime) keepFrame(frame []uint16, w, h int) {
	if len(r.lastRaw) != len(frame) {
		r.lastRaw = make([]uint16, len(frame))
	}
	copy(r.lastRaw, frame)
	r.lastW, r.lastH = w, h
}

func (r *Runtime) process(p *Params, dt float32, fresh bool, now time.Time) {
	out := r.pipeline.Process(Input{
		Raw:    r.lastRaw,
		Width:  r.lastW,
		Height: r.lastH,
		DT:     dt,
		Quad:   r.calib.Quad(),
		Probe:  (r.lastH/2)*r.lastW + r.lastW/2,
	}, *p)
	if out.Vertices == nil {
		r.stats.AddSkipped()
		return
	}
	r.seq++
	r.stats.AddTick(fresh, out.Timing)

	if r.sink != nil {
		r.sink.PublishTerrain(&Terrain{
			Seq:        r.seq,
			Timestamp:  now,
			Resolution: p.Synth.Resolution,
			MeshWidth:  p.Synth.MeshWidth,
			MeshLength: p.Synth.MeshLength,
			FlatMode:   p.Synth.FlatMode,
			Vertices:   out.Vertices,
			Walls:      out.Walls,
		})
	}
	r.record(out, p, now)
}

func (r *Runtime) record(out Output, p *Params, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := &r.snap
	s.Seq = r.seq
	s.Timestamp = now
	s.Width, s.Height = out.Width, out.Height
	s.Raw = resize(s.Raw, len(r.lastRaw))
	copy(s.Raw, r.lastRaw)
	s.Depth = resize(s.Depth, len(out.Depth))
	copy(s.Depth, out.Depth)
	s.Resolution = p.Synth.Resolution
	s.Heights = resize(s.Heights, len(out.Vertices))
	for i, v := range out.Vertices {
		s.Heights[i] = v.Height[0]
	}
	s.MinDepth, s.MaxDepth, s.HeightScale = p.Synth.MinDepth, p.Synth.MaxDepth, p.Synth.HeightScale

	tp := TracePoint{Seq: r.seq, ProbeSample: out.Probe}
	if len(r.trace) < TraceLength {
		r.trace = append(r.trace, tp)
	} else {
		r.trace[r.head] = tp
		r.head = (r.head + 1) % TraceLength
	}
}

func resize[T any](s []T, n int) []T {
	if cap(s) < n {
		return make([]T, n)
	}
	return s[:n]
}

// Snapshot returns a deep copy of the last processed tick, or nil before the
// first one.
func (r *Runtime) Snapshot() *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.snap.Seq == 0 {
		return nil
	}
	s := r.snap
	s.Raw = append([]uint16(nil), r.snap.Raw...)
	s.Depth = append([]uint16(nil), r.snap.Depth...)
	s.Heights = append([]float32(nil), r.snap.Heights...)
	return &s
}

// Trace returns the probe history, oldest first.
func (r *Runtime) Trace() []TracePoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TracePoint, 0, len(r.trace))
	out = append(out, r.trace[r.head:]...)
	out = append(out, r.trace[:r.head]...)
	return out
}

// Status reports the sensor and tick state.
func (r *Runtime) Status() Status {
	r.mu.Lock()
	w, h := r.snap.Width, r.snap.Height
	r.mu.Unlock()
	return Status{
		SessionID:        r.session,
		Device:           r.src.DeviceName(),
		Running:          r.src.IsRunning(),
		Watchdog:         r.wd.State().String(),
		SinceLastFrameMS: r.wd.SinceLastFrame().Milliseconds(),
		FrameWidth:       w,
		FrameHeight:      h,
		Resolution:       r.params.Load().Synth.Resolution,
		Stats:            r.stats.Snapshot(),
	}
}

// ResetSensor reconnects the source: Shutdown, Initialize and a fresh
// heartbeat. It runs on the tick goroutine when triggered by the watchdog.
func (r *Runtime) ResetSensor() {
	name := r.src.DeviceName()
	monitoring.Logf("[Runtime] resetting sensor: %s", name)
	r.src.Shutdown()
	err := r.src.Initialize()
	r.wd.ResetHeartbeat()
	r.stats.AddReset()
	if err != nil {
		monitoring.Logf("[Runtime] sensor reset failed: %v", err)
		r.recordEvent(EventResetFailed, err.Error())
		return
	}
	r.recordEvent(EventReset, "")
}

func (r *Runtime) onHang() {
	r.recordEvent(EventHang, fmt.Sprintf("no frame for %v", r.wd.SinceLastFrame().Round(time.Millisecond)))
	r.ResetSensor()
}

func (r *Runtime) recordEvent(kind, detail string) {
	if r.events == nil {
		return
	}
	if err := r.events.RecordSensorEvent(r.session, kind, r.src.DeviceName(), detail); err != nil {
		monitoring.Logf("[Runtime] failed to record %s event: %v", kind, err)
	}
}
