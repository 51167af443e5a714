package calibration

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/sandtable/internal/sandbox/kernel"
)

// ErrDegenerateQuad is returned for quads with (near) zero area or collinear
// corners.
var ErrDegenerateQuad = errors.New("degenerate calibration quad")

// MinQuadArea is the smallest accepted quad area in normalized UV units.
const MinQuadArea = 1e-4

// minCornerArea bounds the triangle formed by each corner and its neighbours.
const minCornerArea = 1e-6

// Point is a 2D coordinate in normalized [0,1]² sensor UV space.
type Point struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// Corner indices into a Quad.
const (
	BottomLeft = iota
	TopLeft
	TopRight
	BottomRight
)

// Quad holds four corners ordered bottom-left, top-left, top-right,
// bottom-right.
type Quad [4]Point

// DefaultQuad maps the mesh onto the full sensor frame.
func DefaultQuad() Quad {
	return Quad{{0, 0}, {0, 1}, {1, 1}, {1, 0}}
}

// Map returns the sensor UV sampled by mesh coordinate (u, v) by bilinear
// interpolation of the corners.
func (q Quad) Map(u, v float32) Point {
	left := lerpPoint(q[BottomLeft], q[TopLeft], v)
	right := lerpPoint(q[BottomRight], q[TopRight], v)
	return lerpPoint(left, right, u)
}

// Area returns the absolute shoelace area of the quad.
func (q Quad) Area() float64 {
	var sum float64
	for i := range q {
		a, b := q[i], q[(i+1)%len(q)]
		sum += float64(a.X)*float64(b.Y) - float64(b.X)*float64(a.Y)
	}
	return math.Abs(sum) / 2
}

// Validate reports whether the quad can be used for sampling.
func (q Quad) Validate() error {
	for i, p := range q {
		if !finite(p.X) || !finite(p.Y) {
			return fmt.Errorf("%w: corner %d is not finite", ErrDegenerateQuad, i)
		}
		if p.X < 0 || p.X > 1 || p.Y < 0 || p.Y > 1 {
			return fmt.Errorf("%w: corner %d (%g,%g) outside [0,1]", ErrDegenerateQuad, i, p.X, p.Y)
		}
	}
	if area := q.Area(); area < MinQuadArea {
		return fmt.Errorf("%w: area %g below %g", ErrDegenerateQuad, area, MinQuadArea)
	}
	for i := range q {
		prev, cur, next := q[(i+3)%4], q[i], q[(i+1)%4]
		if triangleArea(prev, cur, next) < minCornerArea {
			return fmt.Errorf("%w: corners around %d are collinear", ErrDegenerateQuad, i)
		}
	}
	return nil
}

// Points returns the corners as a slice, for JSON and persistence.
func (q Quad) Points() []Point {
	out := make([]Point, len(q))
	copy(out, q[:])
	return out
}

// QuadFromPoints builds a Quad from exactly four points.
func QuadFromPoints(pts []Point) (Quad, error) {
	var q Quad
	if len(pts) != len(q) {
		return q, fmt.Errorf("%w: need 4 points, got %d", ErrDegenerateQuad, len(pts))
	}
	copy(q[:], pts)
	return q, nil
}

func lerpPoint(a, b Point, t float32) Point {
	return Point{X: kernel.Lerp(a.X, b.X, t), Y: kernel.Lerp(a.Y, b.Y, t)}
}

func triangleArea(a, b, c Point) float64 {
	cross := (float64(b.X)-float64(a.X))*(float64(c.Y)-float64(a.Y)) -
		(float64(c.X)-float64(a.X))*(float64(b.Y)-float64(a.Y))
	return math.Abs(cross) / 2
}

func finite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
