package pointmatch

import "math"

// SampleMetrics is the detection and localisation summary of one sample.
//
// MeanDistance and PanopticQuality are NaN when nothing matched; a zero
// would read as perfect localisation.
type SampleMetrics struct {
	Index int
	Name  string

	NTrue int
	NPred int
	TP    int
	FP    int
	FN    int

	Precision       float64
	Recall          float64
	Accuracy        float64
	F1              float64
	MeanDistance    float64
	PanopticQuality float64

	Matches Matching

	// Invalid marks a sample skipped for non-finite input; its counts and
	// ratios are zero and it is excluded from every aggregate.
	Invalid       bool
	InvalidReason string
}

// ComputeSampleMetrics derives detection metrics from a matching.
//
// Zero-denominator fallbacks: precision is 1 when there are no predictions
// and no ground truth, 0 when there are no predictions but ground truth
// exists; recall is 1 whenever there is no ground truth, since nothing can
// be missed; f1 is 0 when precision+recall is 0; accuracy is 1 when
// TP+FP+FN is 0.
func ComputeSampleMetrics(gtCount, predCount int, m Matching, cutoff float64) SampleMetrics {
	tp := len(m)
	s := SampleMetrics{
		NTrue:   gtCount,
		NPred:   predCount,
		TP:      tp,
		FN:      gtCount - tp,
		FP:      predCount - tp,
		Matches: m,
	}

	s.Precision = ratioOr(tp, predCount, gtCount == 0)
	s.Recall = ratioOr(tp, gtCount, true)
	s.F1 = f1Score(s.Precision, s.Recall)
	s.Accuracy = ratioOr(tp, tp+s.FP+s.FN, true)

	s.MeanDistance = math.NaN()
	s.PanopticQuality = math.NaN()
	switch {
	case tp > 0:
		var sumDist, sumQuality float64
		for _, p := range m {
			sumDist += p.Distance
			sumQuality += 1 - p.Distance/cutoff
		}
		s.MeanDistance = sumDist / float64(tp)
		s.PanopticQuality = s.F1 * sumQuality / float64(tp)
	case gtCount == 0 && predCount == 0:
		s.PanopticQuality = 1
	}
	return s
}

// ratioOr returns num/den, or 1 (when emptyIsPerfect) or 0 for den == 0.
func ratioOr(num, den int, emptyIsPerfect bool) float64 {
	if den > 0 {
		return float64(num) / float64(den)
	}
	if emptyIsPerfect {
		return 1
	}
	return 0
}

func f1Score(precision, recall float64) float64 {
	if precision+recall > 0 {
		return 2 * precision * recall / (precision + recall)
	}
	return 0
}
