package pipeline

import (
	"time"

	"github.com/banshee-data/sandtable/internal/config"
	"github.com/banshee-data/sandtable/internal/sandbox/l2temporal"
	"github.com/banshee-data/sandtable/internal/sandbox/l4heightfield"
)

// Params is the immutable per-tick parameter set. A new value replaces the
// old one atomically at a tick boundary.
type Params struct {
	Filter          l2temporal.Params
	BlurIterations  int
	Synth           l4heightfield.Params
	ShowWalls       bool
	WatchdogTimeout time.Duration
	WatchdogRetry   bool
	NoiseScale      float64
	MoveSpeed       float64
}

// ParamsFromSettings projects operator settings onto the stage parameters.
func ParamsFromSettings(s *config.Settings) Params {
	fp := s.FilterParameters()
	return Params{
		Filter: l2temporal.Params{
			MinCutoff:     fp.MinCutoff,
			Beta:          fp.Beta,
			HandThreshold: fp.HandThreshold,
			FreezeGuard:   fp.FreezeGuard,
			FreezeFactor:  fp.FreezeFactor,
		},
		BlurIterations: s.GetSpatialBlur(),
		Synth: l4heightfield.Params{
			MinDepth:    fp.MinDepth,
			MaxDepth:    fp.MaxDepth,
			HeightScale: fp.HeightScale,
			MeshWidth:   fp.MeshSize,
			MeshLength:  fp.MeshSize,
			Resolution:  fp.Resolution,
			FlatMode:    fp.FlatMode,
		},
		ShowWalls:       s.GetShowWalls(),
		WatchdogTimeout: s.GetWatchdogTimeout(),
		WatchdogRetry:   s.GetWatchdogAutoRetry(),
		NoiseScale:      s.GetNoiseScale(),
		MoveSpeed:       s.GetMoveSpeed(),
	}
}

// DefaultParams returns the parameters of DefaultSettings.
func DefaultParams() Params {
	return ParamsFromSettings(config.DefaultSettings())
}
