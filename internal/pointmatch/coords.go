package pointmatch

import (
	"fmt"
	"math"
)

// Supported dimensionalities.
const (
	Dim2D = 2
	Dim3D = 3
)

// CoordinateSet is an immutable, ordered set of points for one sample.
// Points are stored row-major in a flat slice; index i is the identity of a
// point during matching.
type CoordinateSet struct {
	dim    int
	coords []float64
}

// NewCoordinateSet copies points into a CoordinateSet of the given
// dimensionality. Every point must have exactly dim coordinates. An empty
// (or nil) points slice yields an empty set that still carries dim.
func NewCoordinateSet(dim int, points [][]float64) (CoordinateSet, error) {
	if dim != Dim2D && dim != Dim3D {
		return CoordinateSet{}, configErrorf("dimensionality must be 2 or 3, got %d", dim)
	}
	coords := make([]float64, 0, len(points)*dim)
	for i, p := range points {
		if len(p) != dim {
			return CoordinateSet{}, configErrorf("point %d has %d coordinates, want %d", i, len(p), dim)
		}
		coords = append(coords, p...)
	}
	return CoordinateSet{dim: dim, coords: coords}, nil
}

// MustCoordinateSet is NewCoordinateSet for fixtures; it panics on error.
func MustCoordinateSet(dim int, points [][]float64) CoordinateSet {
	cs, err := NewCoordinateSet(dim, points)
	if err != nil {
		panic(err)
	}
	return cs
}

// Dim returns the dimensionality of the set (0 for the zero value).
func (c CoordinateSet) Dim() int { return c.dim }

// Len returns the number of points.
func (c CoordinateSet) Len() int {
	if c.dim == 0 {
		return 0
	}
	return len(c.coords) / c.dim
}

// At returns a copy of point i.
func (c CoordinateSet) At(i int) []float64 {
	p := make([]float64, c.dim)
	copy(p, c.point(i))
	return p
}

// Points returns a copy of all points.
func (c CoordinateSet) Points() [][]float64 {
	out := make([][]float64, c.Len())
	for i := range out {
		out[i] = c.At(i)
	}
	return out
}

// point returns a read-only view of point i. Callers must not mutate it.
func (c CoordinateSet) point(i int) []float64 {
	return c.coords[i*c.dim : (i+1)*c.dim]
}

// validateFinite reports the first non-finite coordinate, if any.
func (c CoordinateSet) validateFinite(label string) error {
	for k, v := range c.coords {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &InvalidInputError{
				Sample: -1,
				Reason: fmt.Sprintf("%s point %d has non-finite coordinate %v", label, k/c.dim, v),
			}
		}
	}
	return nil
}
