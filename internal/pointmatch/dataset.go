package pointmatch

import (
	"errors"
	"math"
	"strings"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// DefaultCutoff is the matching cutoff used when none is configured, in the
// unit of the coordinates (pixels for the usual 2D case).
const DefaultCutoff = 3.0

// Policy selects how per-sample results are combined.
type Policy string

const (
	// PolicyByImage averages per-sample ratios; every sample weighs the same.
	PolicyByImage Policy = "by_image"
	// PolicyPooled sums TP/FP/FN over all samples before taking ratios;
	// samples with more points dominate.
	PolicyPooled Policy = "pooled"
)

// ParsePolicy accepts the canonical names plus the usual aliases
// ("by-image", "macro", "micro").
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "by_image", "by-image", "byimage", "macro":
		return PolicyByImage, nil
	case "pooled", "micro":
		return PolicyPooled, nil
	}
	return "", configErrorf("unknown aggregation policy %q (want by_image or pooled)", s)
}

// InvalidInputMode decides what happens to a sample with non-finite input.
type InvalidInputMode string

const (
	// InvalidSkip annotates the sample, excludes it from every aggregate and
	// keeps going. This is the default.
	InvalidSkip InvalidInputMode = "skip"
	// InvalidAbort fails the whole run with the sample's InvalidInputError.
	InvalidAbort InvalidInputMode = "abort"
)

// ParseInvalidInputMode parses "skip" or "abort" (empty means skip).
func ParseInvalidInputMode(s string) (InvalidInputMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "skip":
		return InvalidSkip, nil
	case "abort":
		return InvalidAbort, nil
	}
	return "", configErrorf("unknown invalid-input mode %q (want skip or abort)", s)
}

// Options configures a dataset evaluation.
type Options struct {
	// Cutoff is the strict upper bound on a matched pair's distance.
	Cutoff float64
	// Policy selects DatasetResult.Metrics; both policies are always
	// computed. Empty means PolicyByImage.
	Policy Policy
	// Dim is the run dimensionality (2 or 3). Zero takes it from the
	// first ground-truth set.
	Dim int
	// InvalidInput is the non-finite input policy. Empty means InvalidSkip.
	InvalidInput InvalidInputMode
	// Workers > 1 evaluates samples concurrently. Results are identical to
	// a sequential run.
	Workers int
	// PerSample keeps the per-sample records in DatasetResult.Samples.
	PerSample bool
	// Names optionally labels samples; if set it must match the sample count.
	Names []string
}

// DefaultOptions returns by-image aggregation at DefaultCutoff, skipping
// invalid samples, single-threaded.
func DefaultOptions() Options {
	return Options{
		Cutoff:       DefaultCutoff,
		Policy:       PolicyByImage,
		InvalidInput: InvalidSkip,
		Workers:      1,
	}
}

// DatasetMetrics aggregates a whole dataset under one policy.
type DatasetMetrics struct {
	Policy    Policy
	Cutoff    float64
	Samples   int
	Evaluated int
	Skipped   int

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
}

// DatasetResult is returned by EvaluateDataset. Metrics is the record for
// the selected policy; ByImage and Pooled are both always present.
type DatasetResult struct {
	Metrics DatasetMetrics
	ByImage DatasetMetrics
	Pooled  DatasetMetrics
	Samples []SampleMetrics
}

// EvaluateDataset matches every index-aligned (gts[i], preds[i]) pair and
// aggregates the results. Configuration errors abort before any matching.
func EvaluateDataset(gts, preds []CoordinateSet, opts Options) (*DatasetResult, error) {
	samples, err := EvaluateSamples(gts, preds, opts)
	if err != nil {
		return nil, err
	}
	policy, _ := ParsePolicy(string(opts.Policy)) // validated by EvaluateSamples

	byImage, err := Aggregate(samples, PolicyByImage, opts.Cutoff)
	if err != nil {
		return nil, err
	}
	pooled, err := Aggregate(samples, PolicyPooled, opts.Cutoff)
	if err != nil {
		return nil, err
	}

	res := &DatasetResult{ByImage: byImage, Pooled: pooled}
	if policy == PolicyPooled {
		res.Metrics = pooled
	} else {
		res.Metrics = byImage
	}
	if opts.PerSample {
		res.Samples = samples
	}
	diagf("evaluated %d/%d samples at cutoff %.3g: %s f1=%.4f precision=%.4f recall=%.4f",
		res.Metrics.Evaluated, res.Metrics.Samples, opts.Cutoff, policy,
		res.Metrics.F1, res.Metrics.Precision, res.Metrics.Recall)
	return res, nil
}

// EvaluateSamples runs distance, matching and per-sample metrics for every
// sample pair. The returned slice is index-aligned with the inputs; samples
// rejected for non-finite input carry Invalid=true under InvalidSkip.
func EvaluateSamples(gts, preds []CoordinateSet, opts Options) ([]SampleMetrics, error) {
	mode, err := validateOptions(gts, preds, &opts)
	if err != nil {
		opsf("rejected run: %v", err)
		return nil, err
	}

	samples := make([]SampleMetrics, len(gts))
	errs := make([]error, len(gts))

	run := func(i int) {
		s, err := evaluateSample(i, gts[i], preds[i], opts.Cutoff)
		if len(opts.Names) > 0 {
			s.Name = opts.Names[i]
		}
		samples[i], errs[i] = s, err
	}

	if opts.Workers > 1 {
		var g errgroup.Group
		g.SetLimit(opts.Workers)
		for i := range gts {
			i := i
			g.Go(func() error {
				run(i)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := range gts {
			run(i)
		}
	}

	// Walk in index order so the reported failure does not depend on
	// goroutine scheduling.
	for i, err := range errs {
		if err == nil {
			continue
		}
		var inv *InvalidInputError
		if !errors.As(err, &inv) || mode == InvalidAbort {
			opsf("sample %d aborted the run: %v", i, err)
			return nil, err
		}
		opsf("skipping sample %d: %s", i, inv.Reason)
		samples[i] = SampleMetrics{
			Index:           i,
			Name:            samples[i].Name,
			Invalid:         true,
			InvalidReason:   inv.Reason,
			MeanDistance:    math.NaN(),
			PanopticQuality: math.NaN(),
		}
	}
	return samples, nil
}

func validateOptions(gts, preds []CoordinateSet, opts *Options) (InvalidInputMode, error) {
	if len(gts) != len(preds) {
		return "", configErrorf("%d ground-truth samples but %d prediction samples", len(gts), len(preds))
	}
	if len(gts) == 0 {
		return "", configErrorf("no samples to evaluate")
	}
	if !(opts.Cutoff > 0) || math.IsInf(opts.Cutoff, 0) {
		return "", configErrorf("cutoff distance must be a positive finite number, got %v", opts.Cutoff)
	}
	if _, err := ParsePolicy(string(opts.Policy)); err != nil {
		return "", err
	}
	mode, err := ParseInvalidInputMode(string(opts.InvalidInput))
	if err != nil {
		return "", err
	}
	if len(opts.Names) > 0 && len(opts.Names) != len(gts) {
		return "", configErrorf("%d sample names for %d samples", len(opts.Names), len(gts))
	}

	dim := opts.Dim
	if dim == 0 {
		dim = gts[0].Dim()
	}
	if dim != Dim2D && dim != Dim3D {
		return "", configErrorf("dimensionality must be 2 or 3, got %d", dim)
	}
	for i := range gts {
		if gts[i].Dim() != dim {
			return "", configErrorf("sample %d ground truth is %dD, run is %dD", i, gts[i].Dim(), dim)
		}
		if preds[i].Dim() != dim {
			return "", configErrorf("sample %d prediction is %dD, run is %dD", i, preds[i].Dim(), dim)
		}
	}
	return mode, nil
}

func evaluateSample(i int, gt, pred CoordinateSet, cutoff float64) (SampleMetrics, error) {
	for _, side := range []struct {
		label string
		set   CoordinateSet
	}{{"ground truth", gt}, {"prediction", pred}} {
		if err := side.set.validateFinite(side.label); err != nil {
			return SampleMetrics{Index: i}, withSample(err, i)
		}
	}

	d, err := PairwiseDistances(gt, pred)
	if err != nil {
		return SampleMetrics{Index: i}, err
	}
	m, err := MatchPoints(d, cutoff)
	if err != nil {
		return SampleMetrics{Index: i}, withSample(err, i)
	}

	s := ComputeSampleMetrics(gt.Len(), pred.Len(), m, cutoff)
	s.Index = i
	tracef("sample %d: gt=%d pred=%d tp=%d fp=%d fn=%d", i, s.NTrue, s.NPred, s.TP, s.FP, s.FN)
	return s, nil
}

func withSample(err error, i int) error {
	var inv *InvalidInputError
	if errors.As(err, &inv) {
		return &InvalidInputError{Sample: i, Reason: inv.Reason}
	}
	return err
}

// Aggregate combines per-sample results under one policy without re-running
// the matcher. Invalid samples are counted in Skipped and otherwise ignored.
// When no sample was evaluated every ratio is NaN.
func Aggregate(samples []SampleMetrics, policy Policy, cutoff float64) (DatasetMetrics, error) {
	if policy != PolicyByImage && policy != PolicyPooled {
		return DatasetMetrics{}, configErrorf("unknown aggregation policy %q", policy)
	}

	dm := DatasetMetrics{Policy: policy, Cutoff: cutoff, Samples: len(samples)}
	var (
		precision, recall, accuracy, f1 []float64
		meanDist, quality               []float64
		allMatches                      Matching
	)
	for _, s := range samples {
		if s.Invalid {
			dm.Skipped++
			continue
		}
		dm.Evaluated++
		dm.NTrue += s.NTrue
		dm.NPred += s.NPred
		dm.TP += s.TP
		dm.FP += s.FP
		dm.FN += s.FN

		precision = append(precision, s.Precision)
		recall = append(recall, s.Recall)
		accuracy = append(accuracy, s.Accuracy)
		f1 = append(f1, s.F1)
		if !math.IsNaN(s.MeanDistance) {
			meanDist = append(meanDist, s.MeanDistance)
		}
		if !math.IsNaN(s.PanopticQuality) {
			quality = append(quality, s.PanopticQuality)
		}
		allMatches = append(allMatches, s.Matches...)
	}

	if dm.Evaluated == 0 {
		nan := math.NaN()
		dm.Precision, dm.Recall, dm.Accuracy, dm.F1 = nan, nan, nan, nan
		dm.MeanDistance, dm.PanopticQuality = nan, nan
		return dm, nil
	}

	switch policy {
	case PolicyByImage:
		dm.Precision = stat.Mean(precision, nil)
		dm.Recall = stat.Mean(recall, nil)
		dm.Accuracy = stat.Mean(accuracy, nil)
		dm.F1 = stat.Mean(f1, nil)
		dm.MeanDistance = meanOrNaN(meanDist)
		dm.PanopticQuality = meanOrNaN(quality)
	case PolicyPooled:
		totals := ComputeSampleMetrics(dm.NTrue, dm.NPred, allMatches, cutoff)
		dm.Precision = totals.Precision
		dm.Recall = totals.Recall
		dm.Accuracy = totals.Accuracy
		dm.F1 = totals.F1
		dm.MeanDistance = totals.MeanDistance
		dm.PanopticQuality = totals.PanopticQuality
	}
	return dm, nil
}

func meanOrNaN(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	return stat.Mean(xs, nil)
}
