package pointmatch

import (
	"fmt"
	"math"
)

// Pair is one matched ground-truth/prediction correspondence.
type Pair struct {
	GT       int
	Pred     int
	Distance float64
}

// Matching is a one-to-one set of pairs, ordered by ground-truth index.
// Every pair's distance is strictly below the cutoff it was built with.
type Matching []Pair

// maxSafeCost bounds the admitted edge costs handed to HungarianAssign.
const maxSafeCost = 1e150

// Distances returns the matched distances in pair order.
func (m Matching) Distances() []float64 {
	out := make([]float64, len(m))
	for i, p := range m {
		out[i] = p.Distance
	}
	return out
}

// MatchPoints computes the maximum-cardinality, minimum-total-distance
// one-to-one matching between the rows and columns of d, using only pairs
// whose distance is strictly below cutoff.
//
// A non-positive (or NaN) cutoff admits no pair and yields an empty
// matching. Any non-finite distance is rejected with an InvalidInputError.
func MatchPoints(d *DistanceMatrix, cutoff float64) (Matching, error) {
	n, m := d.Dims()
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			if v := d.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, &InvalidInputError{
					Sample: -1,
					Reason: fmt.Sprintf("distance (%d,%d) is %v", i, j, v),
				}
			}
		}
	}
	if n == 0 || m == 0 || !(cutoff > 0) {
		return Matching{}, nil
	}

	small := n
	if m < small {
		small = m
	}

	maxEdge := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			if v := d.At(i, j); v < cutoff && v > maxEdge {
				maxEdge = v
			}
		}
	}

	// The forbidden cost must stay finite and exceed any achievable sum of
	// real edge costs, so one more real match is always cheaper than a
	// forbidden one and the solver maximises cardinality before minimising
	// distance. At most min(n,m) edges are used, each <= maxEdge. Admitted
	// costs are divided by maxEdge when they are large enough for the
	// solver's potentials to overflow.
	scale := 1.0
	if maxEdge > maxSafeCost {
		scale = maxEdge
	}
	forbidden := (maxEdge/scale + 1) * float64(small+1)

	cost := make([][]float64, n)
	for i := 0; i < n; i++ {
		cost[i] = make([]float64, m)
		for j := 0; j < m; j++ {
			if v := d.At(i, j); v < cutoff {
				cost[i][j] = v / scale
			} else {
				cost[i][j] = forbidden
			}
		}
	}

	assign := HungarianAssign(cost, forbidden)

	matching := make(Matching, 0, small)
	for i, j := range assign {
		if j < 0 {
			continue
		}
		// Forced dummy or out-of-range assignments never count.
		if dist := d.At(i, j); dist < cutoff {
			matching = append(matching, Pair{GT: i, Pred: j, Distance: dist})
		}
	}
	return matching, nil
}
