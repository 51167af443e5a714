package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/sandtable/internal/sandbox/calibration"
	"github.com/banshee-data/sandtable/internal/sandbox/l4heightfield"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	if got := s.GetMinDepth(); got != 500 {
		t.Errorf("GetMinDepth() = %v, want 500", got)
	}
	if got := s.GetMaxDepth(); got != 1500 {
		t.Errorf("GetMaxDepth() = %v, want 1500", got)
	}
	if got := s.GetWatchdogTimeout(); got != 5*time.Second {
		t.Errorf("GetWatchdogTimeout() = %v, want 5s", got)
	}
	if !s.GetWatchdogAutoRetry() {
		t.Error("GetWatchdogAutoRetry() = false, want true")
	}
	if err := s.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
	if corrections := s.Sanitize(); len(corrections) != 0 {
		t.Errorf("defaults should need no corrections, got %v", corrections)
	}
}

func TestEmptySettingsFallBackToDefaults(t *testing.T) {
	empty := &Settings{}
	want := DefaultSettings().FilterParameters()
	if diff := cmp.Diff(want, empty.FilterParameters()); diff != "" {
		t.Errorf("FilterParameters mismatch (-want +got):\n%s", diff)
	}
	if got := empty.Quad(); got != calibration.DefaultQuad() {
		t.Errorf("Quad() = %v, want default", got)
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name        string
		in          *Settings
		wantMin     float64
		wantMax     float64
		wantHeight  float64
		wantFlat    bool
		wantQuad    calibration.Quad
		corrections int
	}{
		{
			name:       "collapsed height scale resets range",
			in:         &Settings{MinDepth: ptrFloat64(100), MaxDepth: ptrFloat64(900), HeightScale: ptrFloat64(0.001), FlatMode: ptrBool(true)},
			wantMin:    500, wantMax: 1500, wantHeight: 5, wantFlat: false,
			wantQuad:   calibration.DefaultQuad(),
			corrections: 1,
		},
		{
			name:       "tiny max depth resets range",
			in:         &Settings{MinDepth: ptrFloat64(10), MaxDepth: ptrFloat64(50)},
			wantMin:    500, wantMax: 1500, wantHeight: 5,
			wantQuad:   calibration.DefaultQuad(),
			corrections: 1,
		},
		{
			name:       "inverted range is swapped",
			in:         &Settings{MinDepth: ptrFloat64(1400), MaxDepth: ptrFloat64(600), HeightScale: ptrFloat64(3)},
			wantMin:    600, wantMax: 1400, wantHeight: 3,
			wantQuad:   calibration.DefaultQuad(),
			corrections: 1,
		},
		{
			name: "degenerate quad is replaced",
			in: &Settings{CalibrationPoints: []calibration.Point{
				{X: 0.5, Y: 0.5}, {X: 0.5, Y: 0.5}, {X: 0.5, Y: 0.5}, {X: 0.5, Y: 0.5},
			}},
			wantMin: 500, wantMax: 1500, wantHeight: 5,
			wantQuad:    calibration.DefaultQuad(),
			corrections: 1,
		},
		{
			name:        "wrong point count is replaced",
			in:          &Settings{CalibrationPoints: []calibration.Point{{X: 0, Y: 0}}},
			wantMin:     500, wantMax: 1500, wantHeight: 5,
			wantQuad:    calibration.DefaultQuad(),
			corrections: 1,
		},
		{
			name: "valid quad is kept",
			in: &Settings{CalibrationPoints: []calibration.Point{
				{X: 0.1, Y: 0.1}, {X: 0.1, Y: 0.9}, {X: 0.9, Y: 0.9}, {X: 0.9, Y: 0.1},
			}},
			wantMin: 500, wantMax: 1500, wantHeight: 5,
			wantQuad: calibration.Quad{{X: 0.1, Y: 0.1}, {X: 0.1, Y: 0.9}, {X: 0.9, Y: 0.9}, {X: 0.9, Y: 0.1}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			corrections := tt.in.Sanitize()
			if len(corrections) != tt.corrections {
				t.Errorf("corrections = %v, want %d", corrections, tt.corrections)
			}
			if got := tt.in.GetMinDepth(); got != tt.wantMin {
				t.Errorf("min depth = %v, want %v", got, tt.wantMin)
			}
			if got := tt.in.GetMaxDepth(); got != tt.wantMax {
				t.Errorf("max depth = %v, want %v", got, tt.wantMax)
			}
			if got := tt.in.GetHeightScale(); got != tt.wantHeight {
				t.Errorf("height scale = %v, want %v", got, tt.wantHeight)
			}
			if got := tt.in.GetFlatMode(); got != tt.wantFlat {
				t.Errorf("flat mode = %v, want %v", got, tt.wantFlat)
			}
			if got := tt.in.Quad(); got != tt.wantQuad {
				t.Errorf("quad = %v, want %v", got, tt.wantQuad)
			}
		})
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		s    *Settings
		want string
	}{
		{"resolution", &Settings{MeshResolution: ptrInt(1)}, "mesh_resolution"},
		{"resolution too large", &Settings{MeshResolution: ptrInt(l4heightfield.MaxResolution + 1)}, "mesh_resolution"},
		{"min cutoff", &Settings{MinCutoff: ptrFloat64(0)}, "min_cutoff"},
		{"beta", &Settings{Beta: ptrFloat64(-1)}, "beta"},
		{"hand threshold", &Settings{HandThreshold: ptrFloat64(0)}, "hand_threshold"},
		{"freeze factor", &Settings{FreezeFactor: ptrFloat64(2)}, "freeze_factor"},
		{"blur", &Settings{SpatialBlur: ptrInt(-1)}, "spatial_blur"},
		{"watchdog", &Settings{WatchdogTimeoutSeconds: ptrFloat64(0)}, "watchdog_timeout_seconds"},
		{"mesh size", &Settings{MeshSize: ptrFloat64(0)}, "mesh_size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.s.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.want)
			}
		})
	}
}

func TestValidateAcceptsMaxResolution(t *testing.T) {
	s := &Settings{MeshResolution: ptrInt(l4heightfield.MaxResolution)}
	if err := s.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil at resolution %d", err, l4heightfield.MaxResolution)
	}
}

func TestLoadSettings(t *testing.T) {
	path := writeFile(t, "settings.json", `{
  "min_depth": 1600,
  "max_depth": 700,
  "spatial_blur": 3,
  "beta": 0.01
}`)
	s, corrections, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if len(corrections) != 1 {
		t.Errorf("corrections = %v, want the swap", corrections)
	}
	if s.GetMinDepth() != 700 || s.GetMaxDepth() != 1600 {
		t.Errorf("range = %v..%v, want 700..1600", s.GetMinDepth(), s.GetMaxDepth())
	}
	if s.GetSpatialBlur() != 3 {
		t.Errorf("spatial blur = %d, want 3", s.GetSpatialBlur())
	}
	if s.GetMeshResolution() != 200 {
		t.Errorf("mesh resolution = %d, want default 200", s.GetMeshResolution())
	}
}

func TestLoadSettingsErrors(t *testing.T) {
	if _, _, err := LoadSettings(writeFile(t, "settings.yaml", "{}")); !errors.Is(err, ErrUnsupportedExt) {
		t.Errorf("expected ErrUnsupportedExt, got %v", err)
	}
	if _, _, err := LoadSettings(writeFile(t, "bad.json", "{not json")); err == nil {
		t.Error("expected parse error")
	}
	if _, _, err := LoadSettings(writeFile(t, "invalid.json", `{"mesh_resolution": 1}`)); err == nil {
		t.Error("expected validation error")
	}
	if _, _, err := LoadSettings(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected stat error")
	}

	big := filepath.Join(t.TempDir(), "big.json")
	if err := os.WriteFile(big, make([]byte, maxFileSize+1), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := LoadSettings(big); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected size error, got %v", err)
	}
}

func TestSaveSettingsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s := DefaultSettings()
	s.HeightScale = ptrFloat64(7.5)
	s.CalibrationPoints = []calibration.Point{{X: 0.1, Y: 0.1}, {X: 0.1, Y: 0.9}, {X: 0.9, Y: 0.9}, {X: 0.9, Y: 0.1}}

	if err := SaveSettings(path, s); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	got, _, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if diff := cmp.Diff(s, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	if err := SaveSettings(filepath.Join(t.TempDir(), "s.txt"), s); !errors.Is(err, ErrUnsupportedExt) {
		t.Errorf("expected ErrUnsupportedExt, got %v", err)
	}
}

func TestCloneIsDeep(t *testing.T) {
	s := DefaultSettings()
	c := s.Clone()
	*c.MinDepth = 42
	*c.MeshResolution = 3
	c.CalibrationPoints[0].X = 0.3

	if s.GetMinDepth() != 500 {
		t.Errorf("clone shares MinDepth")
	}
	if s.GetMeshResolution() != 200 {
		t.Errorf("clone shares MeshResolution")
	}
	if s.CalibrationPoints[0].X != 0 {
		t.Errorf("clone shares CalibrationPoints")
	}
}
