// Package pointmatch owns the point-detection QC engine.
//
// Responsibilities: pairwise Euclidean distances between a ground-truth and a
// predicted coordinate set, cutoff-restricted optimal assignment (Hungarian),
// per-sample detection metrics, and dataset aggregation under the by-image
// (macro) and pooled (micro) policies.
// Key types: CoordinateSet, DistanceMatrix, Matching, SampleMetrics,
// DatasetMetrics.
//
// Dependency rule: no file, CSV, SQL or CLI code is allowed in this package.
// Callers supply index-aligned, fully materialised coordinate sets.
package pointmatch
