package pointmatch

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pointqc/internal/testutil"
)

func mustMatch(t *testing.T, gt, pred CoordinateSet, cutoff float64) Matching {
	t.Helper()
	d, err := PairwiseDistances(gt, pred)
	require.NoError(t, err)
	m, err := MatchPoints(d, cutoff)
	require.NoError(t, err)
	return m
}

func TestMatchPoints_Scenario(t *testing.T) {
	gt := MustCoordinateSet(Dim2D, [][]float64{{0, 0}, {10, 10}})
	pred := MustCoordinateSet(Dim2D, [][]float64{{0.5, 0.5}, {20, 20}})

	m := mustMatch(t, gt, pred, 3.0)
	require.Len(t, m, 1)
	assert.Equal(t, 0, m[0].GT)
	assert.Equal(t, 0, m[0].Pred)
	assert.InDelta(t, math.Sqrt(0.5), m[0].Distance, 1e-12)
}

func TestMatchPoints_PrefersCardinalityOverDistance(t *testing.T) {
	// Greedy nearest-neighbour would pair gt0 with pred0 (0.1) and leave
	// gt1 stranded; the optimal matching uses both edges of length < 2.
	gt := MustCoordinateSet(Dim2D, [][]float64{{0, 0}, {-1.9, 0}})
	pred := MustCoordinateSet(Dim2D, [][]float64{{0.1, 0}, {1.9, 0}})
	// d(gt0,pred0)=0.1 d(gt0,pred1)=1.9 d(gt1,pred0)=2.0 d(gt1,pred1)=3.8

	m := mustMatch(t, gt, pred, 2.05)
	want := Matching{
		{GT: 0, Pred: 1, Distance: 1.9},
		{GT: 1, Pred: 0, Distance: 2.0},
	}
	if diff := cmp.Diff(want, m, cmp.Comparer(func(a, b float64) bool { return math.Abs(a-b) < 1e-9 })); diff != "" {
		t.Errorf("matching mismatch (-want +got):\n%s", diff)
	}
}

func TestMatchPoints_CutoffIsStrict(t *testing.T) {
	gt := MustCoordinateSet(Dim2D, [][]float64{{0, 0}})
	pred := MustCoordinateSet(Dim2D, [][]float64{{3, 0}})

	assert.Empty(t, mustMatch(t, gt, pred, 3.0), "distance equal to cutoff must not match")
	assert.Len(t, mustMatch(t, gt, pred, 3.0000001), 1)
}

func TestMatchPoints_NonPositiveCutoff(t *testing.T) {
	gt := MustCoordinateSet(Dim2D, [][]float64{{0, 0}})
	pred := MustCoordinateSet(Dim2D, [][]float64{{0, 0}})

	for _, cutoff := range []float64{0, -1, math.NaN()} {
		assert.Empty(t, mustMatch(t, gt, pred, cutoff), "cutoff %v", cutoff)
	}
}

func TestMatchPoints_EmptySides(t *testing.T) {
	one := MustCoordinateSet(Dim2D, [][]float64{{0, 0}})
	empty := MustCoordinateSet(Dim2D, nil)

	assert.Empty(t, mustMatch(t, empty, one, 3))
	assert.Empty(t, mustMatch(t, one, empty, 3))
	assert.Empty(t, mustMatch(t, empty, empty, 3))
}

func TestMatchPoints_NaNDistance(t *testing.T) {
	d := NewDistanceMatrix(2, 2, []float64{1, math.NaN(), 2, 3})
	_, err := MatchPoints(d, 5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput), "got %v", err)

	var inv *InvalidInputError
	require.True(t, errors.As(err, &inv))
	assert.Contains(t, inv.Reason, "(0,1)")
}

func TestMatchPoints_InfiniteDistance(t *testing.T) {
	d := NewDistanceMatrix(1, 1, []float64{math.Inf(1)})
	_, err := MatchPoints(d, 5)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestMatchPoints_HugeCutoff(t *testing.T) {
	gt := MustCoordinateSet(Dim2D, [][]float64{{0, 0}, {5, 0}, {9, 9}})
	pred := MustCoordinateSet(Dim2D, [][]float64{{4, 0}})

	for _, cutoff := range []float64{1e308, math.MaxFloat64} {
		m := mustMatch(t, gt, pred, cutoff)
		require.Len(t, m, 1, "cutoff %v", cutoff)
		assert.Equal(t, Pair{GT: 1, Pred: 0, Distance: 1}, m[0], "cutoff %v", cutoff)
	}
}

func TestMatchPoints_HugeDistances(t *testing.T) {
	// Diagonal costs 6e200, anti-diagonal 4e200.
	d := NewDistanceMatrix(2, 2, []float64{
		1e200, 2e200,
		2e200, 5e200,
	})
	m, err := MatchPoints(d, math.MaxFloat64)
	require.NoError(t, err)
	want := Matching{
		{GT: 0, Pred: 1, Distance: 2e200},
		{GT: 1, Pred: 0, Distance: 2e200},
	}
	if diff := cmp.Diff(want, m); diff != "" {
		t.Errorf("matching mismatch (-want +got):\n%s", diff)
	}
}

func TestMatchPoints_DeterministicUnderTies(t *testing.T) {
	// Every pair is at distance 1: many optimal matchings exist.
	d := NewDistanceMatrix(3, 3, []float64{
		1, 1, 1,
		1, 1, 1,
		1, 1, 1,
	})
	first, err := MatchPoints(d, 2)
	require.NoError(t, err)
	require.Len(t, first, 3)

	for run := 0; run < 20; run++ {
		again, err := MatchPoints(d, 2)
		require.NoError(t, err)
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("run %d changed the matching (-first +again):\n%s", run, diff)
		}
	}
}

func TestMatchPoints_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 200; trial++ {
		dim := Dim2D + trial%2
		n, m := rng.Intn(12), rng.Intn(12)
		gt := MustCoordinateSet(dim, testutil.RandomPoints(rng, n, dim, 20))
		pred := MustCoordinateSet(dim, testutil.RandomPoints(rng, m, dim, 20))
		cutoff := 0.5 + rng.Float64()*6

		d, err := PairwiseDistances(gt, pred)
		require.NoError(t, err)
		match, err := MatchPoints(d, cutoff)
		require.NoError(t, err)

		seenGT := make(map[int]bool)
		seenPred := make(map[int]bool)
		for _, p := range match {
			require.Less(t, p.Distance, cutoff, "trial %d: pair at or above cutoff", trial)
			require.False(t, seenGT[p.GT], "trial %d: gt %d matched twice", trial, p.GT)
			require.False(t, seenPred[p.Pred], "trial %d: pred %d matched twice", trial, p.Pred)
			seenGT[p.GT], seenPred[p.Pred] = true, true
		}

		s := ComputeSampleMetrics(n, m, match, cutoff)
		require.Equal(t, n, s.TP+s.FN)
		require.Equal(t, m, s.TP+s.FP)
	}
}

func TestMatchPoints_OptimalAgainstBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 150; trial++ {
		n, m := rng.Intn(6), rng.Intn(6)
		gt := MustCoordinateSet(Dim2D, testutil.RandomPoints(rng, n, Dim2D, 6))
		pred := MustCoordinateSet(Dim2D, testutil.RandomPoints(rng, m, Dim2D, 6))
		cutoff := 1 + rng.Float64()*3

		d, err := PairwiseDistances(gt, pred)
		require.NoError(t, err)
		match, err := MatchPoints(d, cutoff)
		require.NoError(t, err)

		wantCard, wantCost := bruteForceMatching(d, cutoff)
		gotCost := 0.0
		for _, p := range match {
			gotCost += p.Distance
		}
		require.Equal(t, wantCard, len(match), "trial %d: cardinality", trial)
		require.InDelta(t, wantCost, gotCost, 1e-9, "trial %d: total distance", trial)
	}
}

func TestMatchPoints_MonotoneInCutoff(t *testing.T) {
	rng := rand.New(rand.NewSource(3))

	for trial := 0; trial < 50; trial++ {
		gt := MustCoordinateSet(Dim2D, testutil.RandomPoints(rng, 10, Dim2D, 15))
		pred := MustCoordinateSet(Dim2D, testutil.RandomPoints(rng, 10, Dim2D, 15))

		prev := 0
		for cutoff := 0.25; cutoff <= 12; cutoff += 0.25 {
			tp := len(mustMatch(t, gt, pred, cutoff))
			require.GreaterOrEqual(t, tp, prev, "trial %d: TP dropped at cutoff %v", trial, cutoff)
			prev = tp
		}
	}
}

// bruteForceMatching enumerates every matching restricted to d < cutoff and
// returns the best (cardinality, total distance), cardinality first.
func bruteForceMatching(d *DistanceMatrix, cutoff float64) (int, float64) {
	n, m := d.Dims()
	used := make([]bool, m)
	bestCard, bestCost := 0, 0.0

	var walk func(i, card int, cost float64)
	walk = func(i, card int, cost float64) {
		if i == n {
			if card > bestCard || (card == bestCard && cost < bestCost) {
				bestCard, bestCost = card, cost
			}
			return
		}
		walk(i+1, card, cost)
		for j := 0; j < m; j++ {
			if used[j] || d.At(i, j) >= cutoff {
				continue
			}
			used[j] = true
			walk(i+1, card+1, cost+d.At(i, j))
			used[j] = false
		}
	}
	walk(0, 0, 0)
	return bestCard, bestCost
}
