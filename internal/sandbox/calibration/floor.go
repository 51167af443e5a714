package calibration

import (
	"errors"

	"gonum.org/v1/gonum/stat"
)

// Floor calibration bounds, in millimetres.
const (
	FloorMinValid = 200
	FloorMaxValid = 3500
	// FloorHeadroom is the sand depth range above the detected floor.
	FloorHeadroom = 450
)

// ErrNoFloorSamples is returned when a frame has no usable floor samples.
var ErrNoFloorSamples = errors.New("no valid floor samples")

// FloorResult is the depth range derived from an empty-table frame.
type FloorResult struct {
	MinDepth float64 `json:"min_depth"`
	MaxDepth float64 `json:"max_depth"`
	Mean     float64 `json:"mean"`
	StdDev   float64 `json:"std_dev"`
	Samples  int     `json:"samples"`
}

// CalibrateFloor averages the plausible samples of an empty-table frame and
// places the depth range so the floor maps to zero height.
func CalibrateFloor(frame []uint16) (FloorResult, error) {
	samples := make([]float64, 0, len(frame))
	for _, d := range frame {
		if d > FloorMinValid && d < FloorMaxValid {
			samples = append(samples, float64(d))
		}
	}
	if len(samples) == 0 {
		return FloorResult{}, ErrNoFloorSamples
	}

	mean, std := stat.MeanStdDev(samples, nil)
	if len(samples) == 1 {
		std = 0
	}
	return FloorResult{
		MinDepth: mean - FloorHeadroom,
		MaxDepth: mean,
		Mean:     mean,
		StdDev:   std,
		Samples:  len(samples),
	}, nil
}
