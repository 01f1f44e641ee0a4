package coordio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Accepted coordinate column sets, tried in order. Headers are matched
// case-insensitively; other columns are ignored.
var (
	columns2D = [][]string{{"axis-0", "axis-1"}, {"y", "x"}}
	columns3D = [][]string{{"axis-0", "axis-1", "axis-2"}, {"z", "y", "x"}}
)

// ReadCoordsCSV reads a headed coordinate CSV and returns one point per data
// row in (y, x) or (z, y, x) order. An empty cell becomes NaN so that the
// engine reports it as invalid input rather than the loader guessing a value.
func ReadCoordsCSV(r io.Reader, dim int) ([][]float64, error) {
	var candidates [][]string
	switch dim {
	case 2:
		candidates = columns2D
	case 3:
		candidates = columns3D
	default:
		return nil, fmt.Errorf("unsupported dimensionality %d", dim)
	}

	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("missing header row")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	header = append([]string(nil), header...) // ReuseRecord recycles the slice

	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}

	var cols []int
	for _, names := range candidates {
		if idx, ok := lookup(index, names); ok {
			cols = idx
			break
		}
	}
	if cols == nil {
		return nil, fmt.Errorf("no coordinate columns found in header %v (want one of %v)", header, candidates)
	}

	var points [][]float64
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		line, _ := cr.FieldPos(0)
		p := make([]float64, dim)
		for k, c := range cols {
			cell := strings.TrimSpace(rec[c])
			if cell == "" {
				p[k] = math.NaN()
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %q: %w", line, header[c], err)
			}
			p[k] = v
		}
		points = append(points, p)
	}
	return points, nil
}

func lookup(index map[string]int, names []string) ([]int, bool) {
	out := make([]int, len(names))
	for i, n := range names {
		c, ok := index[n]
		if !ok {
			return nil, false
		}
		out[i] = c
	}
	return out, true
}
