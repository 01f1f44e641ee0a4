// Package testutil provides shared test fixtures: synthetic point clouds and
// coordinate CSV files.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// RandomPoints returns n points of the given dimensionality drawn uniformly
// from [0, extent) on every axis.
func RandomPoints(rng *rand.Rand, n, dim int, extent float64) [][]float64 {
	pts := make([][]float64, n)
	for i := range pts {
		p := make([]float64, dim)
		for k := range p {
			p[k] = rng.Float64() * extent
		}
		pts[i] = p
	}
	return pts
}

// JitterPoints simulates a detector: each input point is dropped with
// probability missRate, otherwise kept with Gaussian noise of stddev sigma on
// every axis. About missRate*len(pts) spurious points are appended uniformly
// in [0, extent).
func JitterPoints(rng *rand.Rand, pts [][]float64, sigma, missRate, extent float64) [][]float64 {
	out := make([][]float64, 0, len(pts))
	dim := 0
	for _, p := range pts {
		dim = len(p)
		if rng.Float64() < missRate {
			continue
		}
		q := make([]float64, len(p))
		for k, v := range p {
			q[k] = v + rng.NormFloat64()*sigma
		}
		out = append(out, q)
	}
	if dim == 0 {
		return out
	}
	spurious := int(missRate*float64(len(pts)) + 0.5)
	return append(out, RandomPoints(rng, spurious, dim, extent)...)
}

// CoordsCSV renders points as a coordinate CSV with the given header, e.g.
// []string{"y", "x"}. Points must have len(header) coordinates.
func CoordsCSV(header []string, pts [][]float64) string {
	var b strings.Builder
	b.WriteString(strings.Join(header, ","))
	b.WriteByte('\n')
	for _, p := range pts {
		cells := make([]string, len(p))
		for k, v := range p {
			cells[k] = fmt.Sprintf("%g", v)
		}
		b.WriteString(strings.Join(cells, ","))
		b.WriteByte('\n')
	}
	return b.String()
}

// WriteFile writes content to dir/name, creating dir as needed, and returns
// the full path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
