package pointmatch

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DistanceMatrix holds Euclidean distances between ground-truth rows and
// prediction columns. When either side is empty the matrix has a zero-length
// axis and no backing storage (gonum refuses zero-sized dense matrices).
type DistanceMatrix struct {
	rows, cols int
	dense      *mat.Dense
}

// NewDistanceMatrix wraps precomputed distances; data is row-major and is
// not copied. It exists for callers (and tests) that bring their own metric
// values, for example to exercise the matcher with exact ties.
func NewDistanceMatrix(rows, cols int, data []float64) *DistanceMatrix {
	d := &DistanceMatrix{rows: rows, cols: cols}
	if rows > 0 && cols > 0 {
		d.dense = mat.NewDense(rows, cols, data)
	}
	return d
}

// Dims returns the number of ground-truth rows and prediction columns.
func (d *DistanceMatrix) Dims() (rows, cols int) { return d.rows, d.cols }

// At returns the distance between ground-truth point i and prediction j.
func (d *DistanceMatrix) At(i, j int) float64 { return d.dense.At(i, j) }

// PairwiseDistances computes the |gt| x |pred| Euclidean distance matrix.
// Mismatched dimensionality is a configuration error.
func PairwiseDistances(gt, pred CoordinateSet) (*DistanceMatrix, error) {
	if gt.Dim() != pred.Dim() {
		return nil, configErrorf("ground truth is %dD but prediction is %dD", gt.Dim(), pred.Dim())
	}
	n, m := gt.Len(), pred.Len()
	if n == 0 || m == 0 {
		return &DistanceMatrix{rows: n, cols: m}, nil
	}

	data := make([]float64, n*m)
	for i := 0; i < n; i++ {
		a := gt.point(i)
		for j := 0; j < m; j++ {
			data[i*m+j] = floats.Distance(a, pred.point(j), 2)
		}
	}
	return NewDistanceMatrix(n, m, data), nil
}
