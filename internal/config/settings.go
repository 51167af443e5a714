package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/sandtable/internal/sandbox/calibration"
	"github.com/banshee-data/sandtable/internal/sandbox/l4heightfield"
)

// ErrUnsupportedExt is returned when a config file has the wrong extension.
var ErrUnsupportedExt = errors.New("unsupported config file extension")

// maxFileSize bounds every config file read from disk.
const maxFileSize = 1 * 1024 * 1024 // 1MB

// Hard defaults restored by Sanitize.
const (
	DefaultMinDepth    = 500.0
	DefaultMaxDepth    = 1500.0
	DefaultHeightScale = 5.0
)

// Sanitize thresholds.
const (
	minHeightScale = 0.01
	minMaxDepth    = 100.0
)

// Settings is the persisted operator configuration. Fields omitted from the
// JSON file fall back to the defaults returned by the Get* accessors.
type Settings struct {
	// Depth range and mesh
	MinDepth       *float64 `json:"min_depth,omitempty"`
	MaxDepth       *float64 `json:"max_depth,omitempty"`
	HeightScale    *float64 `json:"height_scale,omitempty"`
	MeshSize       *float64 `json:"mesh_size,omitempty"`
	MeshResolution *int     `json:"mesh_resolution,omitempty"`
	FlatMode       *bool    `json:"flat_mode,omitempty"`
	ShowWalls      *bool    `json:"show_walls,omitempty"`

	// Watchdog
	WatchdogTimeoutSeconds *float64 `json:"watchdog_timeout_seconds,omitempty"`
	WatchdogAutoRetry      *bool    `json:"watchdog_auto_retry,omitempty"`

	// Temporal filter
	MinCutoff     *float64 `json:"min_cutoff,omitempty"`
	Beta          *float64 `json:"beta,omitempty"`
	HandThreshold *float64 `json:"hand_threshold,omitempty"`
	FreezeGuard   *float64 `json:"freeze_guard,omitempty"`
	FreezeFactor  *float64 `json:"freeze_factor,omitempty"`

	// Spatial blur iterations
	SpatialBlur *int `json:"spatial_blur,omitempty"`

	// Simulated source
	NoiseScale *float64 `json:"noise_scale,omitempty"`
	MoveSpeed  *float64 `json:"move_speed,omitempty"`

	CalibrationPoints []calibration.Point `json:"calibration_points,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrInt(v int) *int             { return &v }

// DefaultSettings returns a Settings with every field populated.
func DefaultSettings() *Settings {
	return &Settings{
		MinDepth:               ptrFloat64(DefaultMinDepth),
		MaxDepth:               ptrFloat64(DefaultMaxDepth),
		HeightScale:            ptrFloat64(DefaultHeightScale),
		MeshSize:               ptrFloat64(10),
		MeshResolution:         ptrInt(200),
		FlatMode:               ptrBool(false),
		ShowWalls:              ptrBool(false),
		WatchdogTimeoutSeconds: ptrFloat64(5),
		WatchdogAutoRetry:      ptrBool(true),
		MinCutoff:              ptrFloat64(1.0),
		Beta:                   ptrFloat64(0.007),
		HandThreshold:          ptrFloat64(80),
		FreezeGuard:            ptrFloat64(10),
		FreezeFactor:           ptrFloat64(0.1),
		SpatialBlur:            ptrInt(2),
		NoiseScale:             ptrFloat64(0.5),
		MoveSpeed:              ptrFloat64(0.5),
		CalibrationPoints:      calibration.DefaultQuad().Points(),
	}
}

// LoadSettings reads, sanitizes and validates a settings file. The returned
// corrections describe every value Sanitize replaced.
func LoadSettings(path string) (*Settings, []string, error) {
	data, err := readConfigFile(path, ".json")
	if err != nil {
		return nil, nil, err
	}

	s := &Settings{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, nil, fmt.Errorf("failed to parse settings JSON: %w", err)
	}
	corrections := s.Sanitize()
	if err := s.Validate(); err != nil {
		return nil, corrections, fmt.Errorf("invalid settings: %w", err)
	}
	return s, corrections, nil
}

// SaveSettings writes s as indented JSON. The file is replaced atomically.
func SaveSettings(path string, s *Settings) error {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return fmt.Errorf("%w: settings must be .json, got %q", ErrUnsupportedExt, ext)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(cleanPath), ".settings-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp settings file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), cleanPath); err != nil {
		return fmt.Errorf("failed to replace settings: %w", err)
	}
	return nil
}

func readConfigFile(path, wantExt string) ([]byte, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != wantExt {
		return nil, fmt.Errorf("%w: config file must have %s extension, got %q", ErrUnsupportedExt, wantExt, ext)
	}
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return data, nil
}

// Sanitize repairs values that would otherwise corrupt every frame:
//   - a collapsed height scale or depth range restores the depth defaults
//     and leaves flat mode off,
//   - an inverted depth range is swapped,
//   - missing or degenerate calibration points restore the full-frame quad.
func (s *Settings) Sanitize() []string {
	var corrections []string

	if s.GetHeightScale() < minHeightScale || s.GetMaxDepth() < minMaxDepth {
		corrections = append(corrections, fmt.Sprintf(
			"height_scale=%g max_depth=%g out of range; restored %g/%g/%g",
			s.GetHeightScale(), s.GetMaxDepth(), DefaultMinDepth, DefaultMaxDepth, DefaultHeightScale))
		s.MinDepth = ptrFloat64(DefaultMinDepth)
		s.MaxDepth = ptrFloat64(DefaultMaxDepth)
		s.HeightScale = ptrFloat64(DefaultHeightScale)
		s.FlatMode = ptrBool(false)
	}

	if lo, hi := s.GetMinDepth(), s.GetMaxDepth(); lo > hi {
		corrections = append(corrections, fmt.Sprintf("min_depth %g > max_depth %g; swapped", lo, hi))
		s.MinDepth, s.MaxDepth = ptrFloat64(hi), ptrFloat64(lo)
	}

	if s.CalibrationPoints == nil {
		s.CalibrationPoints = calibration.DefaultQuad().Points()
	} else if _, err := s.quad(); err != nil {
		corrections = append(corrections, fmt.Sprintf("calibration points rejected (%v); restored full frame", err))
		s.CalibrationPoints = calibration.DefaultQuad().Points()
	}

	return corrections
}

// Validate checks values Sanitize cannot repair.
func (s *Settings) Validate() error {
	if r := s.GetMeshResolution(); r < 2 || r > l4heightfield.MaxResolution {
		return fmt.Errorf("mesh_resolution must be between 2 and %d, got %d", l4heightfield.MaxResolution, r)
	}
	if v := s.GetMeshSize(); v <= 0 {
		return fmt.Errorf("mesh_size must be positive, got %f", v)
	}
	if v := s.GetMinCutoff(); v <= 0 {
		return fmt.Errorf("min_cutoff must be positive, got %f", v)
	}
	if v := s.GetBeta(); v < 0 {
		return fmt.Errorf("beta must be non-negative, got %f", v)
	}
	if v := s.GetHandThreshold(); v <= 0 {
		return fmt.Errorf("hand_threshold must be positive, got %f", v)
	}
	if v := s.GetFreezeFactor(); v <= 0 || v > 1 {
		return fmt.Errorf("freeze_factor must be in (0, 1], got %f", v)
	}
	if v := s.GetSpatialBlur(); v < 0 || v > 16 {
		return fmt.Errorf("spatial_blur must be between 0 and 16, got %d", v)
	}
	if v := s.GetWatchdogTimeout(); v <= 0 {
		return fmt.Errorf("watchdog_timeout_seconds must be positive, got %v", v)
	}
	return nil
}

// Clone returns a deep copy so callers can merge partial updates without
// touching shared pointees.
func (s *Settings) Clone() *Settings {
	out := *s
	clone := func(p *float64) *float64 {
		if p == nil {
			return nil
		}
		return ptrFloat64(*p)
	}
	out.MinDepth = clone(s.MinDepth)
	out.MaxDepth = clone(s.MaxDepth)
	out.HeightScale = clone(s.HeightScale)
	out.MeshSize = clone(s.MeshSize)
	out.WatchdogTimeoutSeconds = clone(s.WatchdogTimeoutSeconds)
	out.MinCutoff = clone(s.MinCutoff)
	out.Beta = clone(s.Beta)
	out.HandThreshold = clone(s.HandThreshold)
	out.FreezeGuard = clone(s.FreezeGuard)
	out.FreezeFactor = clone(s.FreezeFactor)
	out.NoiseScale = clone(s.NoiseScale)
	out.MoveSpeed = clone(s.MoveSpeed)
	if s.MeshResolution != nil {
		out.MeshResolution = ptrInt(*s.MeshResolution)
	}
	if s.SpatialBlur != nil {
		out.SpatialBlur = ptrInt(*s.SpatialBlur)
	}
	if s.FlatMode != nil {
		out.FlatMode = ptrBool(*s.FlatMode)
	}
	if s.ShowWalls != nil {
		out.ShowWalls = ptrBool(*s.ShowWalls)
	}
	if s.WatchdogAutoRetry != nil {
		out.WatchdogAutoRetry = ptrBool(*s.WatchdogAutoRetry)
	}
	if s.CalibrationPoints != nil {
		out.CalibrationPoints = append([]calibration.Point(nil), s.CalibrationPoints...)
	}
	return &out
}

// Quad returns the calibration quad, or the full-frame quad when the stored
// points are unusable.
func (s *Settings) Quad() calibration.Quad {
	q, err := s.quad()
	if err != nil {
		return calibration.DefaultQuad()
	}
	return q
}

func (s *Settings) quad() (calibration.Quad, error) {
	q, err := calibration.QuadFromPoints(s.CalibrationPoints)
	if err != nil {
		return q, err
	}
	return q, q.Validate()
}

// FilterParameters is the immutable per-tick view of the settings consumed by
// the pipeline stages.
type FilterParameters struct {
	MinCutoff     float32
	Beta          float32
	HandThreshold float32
	FreezeGuard   float32
	FreezeFactor  float32
	MinDepth      float32
	MaxDepth      float32
	HeightScale   float32
	MeshSize      float32
	Resolution    int
	FlatMode      bool
}

// FilterParameters projects the settings into the per-tick parameter struct.
func (s *Settings) FilterParameters() FilterParameters {
	return FilterParameters{
		MinCutoff:     float32(s.GetMinCutoff()),
		Beta:          float32(s.GetBeta()),
		HandThreshold: float32(s.GetHandThreshold()),
		FreezeGuard:   float32(s.GetFreezeGuard()),
		FreezeFactor:  float32(s.GetFreezeFactor()),
		MinDepth:      float32(s.GetMinDepth()),
		MaxDepth:      float32(s.GetMaxDepth()),
		HeightScale:   float32(s.GetHeightScale()),
		MeshSize:      float32(s.GetMeshSize()),
		Resolution:    s.GetMeshResolution(),
		FlatMode:      s.GetFlatMode(),
	}
}

func (s *Settings) GetMinDepth() float64 {
	if s.MinDepth == nil {
		return DefaultMinDepth
	}
	return *s.MinDepth
}

func (s *Settings) GetMaxDepth() float64 {
	if s.MaxDepth == nil {
		return DefaultMaxDepth
	}
	return *s.MaxDepth
}

func (s *Settings) GetHeightScale() float64 {
	if s.HeightScale == nil {
		return DefaultHeightScale
	}
	return *s.HeightScale
}

func (s *Settings) GetMeshSize() float64 {
	if s.MeshSize == nil {
		return 10
	}
	return *s.MeshSize
}

func (s *Settings) GetMeshResolution() int {
	if s.MeshResolution == nil {
		return 200
	}
	return *s.MeshResolution
}

func (s *Settings) GetFlatMode() bool {
	return s.FlatMode != nil && *s.FlatMode
}

func (s *Settings) GetShowWalls() bool {
	return s.ShowWalls != nil && *s.ShowWalls
}

// GetWatchdogTimeout returns the sensor stall timeout.
func (s *Settings) GetWatchdogTimeout() time.Duration {
	secs := 5.0
	if s.WatchdogTimeoutSeconds != nil {
		secs = *s.WatchdogTimeoutSeconds
	}
	return time.Duration(secs * float64(time.Second))
}

func (s *Settings) GetWatchdogAutoRetry() bool {
	if s.WatchdogAutoRetry == nil {
		return true
	}
	return *s.WatchdogAutoRetry
}

func (s *Settings) GetMinCutoff() float64 {
	if s.MinCutoff == nil {
		return 1.0
	}
	return *s.MinCutoff
}

func (s *Settings) GetBeta() float64 {
	if s.Beta == nil {
		return 0.007
	}
	return *s.Beta
}

func (s *Settings) GetHandThreshold() float64 {
	if s.HandThreshold == nil {
		return 80
	}
	return *s.HandThreshold
}

func (s *Settings) GetFreezeGuard() float64 {
	if s.FreezeGuard == nil {
		return 10
	}
	return *s.FreezeGuard
}

func (s *Settings) GetFreezeFactor() float64 {
	if s.FreezeFactor == nil {
		return 0.1
	}
	return *s.FreezeFactor
}

func (s *Settings) GetSpatialBlur() int {
	if s.SpatialBlur == nil {
		return 2
	}
	return *s.SpatialBlur
}

func (s *Settings) GetNoiseScale() float64 {
	if s.NoiseScale == nil {
		return 0.5
	}
	return *s.NoiseScale
}

func (s *Settings) GetMoveSpeed() float64 {
	if s.MoveSpeed == nil {
		return 0.5
	}
	return *s.MoveSpeed
}
