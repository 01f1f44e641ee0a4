// Package report writes QC results as CSV tables and JSON documents.
//
// Undefined metrics (NaN in memory) are written as empty CSV cells and JSON
// null; encoding/json refuses NaN outright.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/banshee-data/pointqc/internal/pointmatch"
	"github.com/banshee-data/pointqc/internal/version"
)

// DatasetHeader is the column order of WriteDatasetCSV.
var DatasetHeader = []string{
	"policy", "cutoff_distance", "n_samples", "n_evaluated", "n_skipped",
	"n_true", "n_pred", "tp", "fp", "fn",
	"precision", "recall", "accuracy", "f1", "mean_dist", "panoptic_quality",
}

// SampleHeader is the column order of WriteSamplesCSV.
var SampleHeader = []string{
	"index", "name", "n_true", "n_pred", "tp", "fp", "fn",
	"precision", "recall", "accuracy", "f1", "mean_dist", "panoptic_quality",
	"invalid", "invalid_reason",
}

// WriteDatasetCSV writes a header and one row for dm.
func WriteDatasetCSV(w io.Writer, dm pointmatch.DatasetMetrics) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(DatasetHeader); err != nil {
		return err
	}
	if err := cw.Write(datasetRow(dm)); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// WriteSamplesCSV writes a header and one row per sample.
func WriteSamplesCSV(w io.Writer, samples []pointmatch.SampleMetrics) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(SampleHeader); err != nil {
		return err
	}
	for _, s := range samples {
		if err := cw.Write(sampleRow(s)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func datasetRow(dm pointmatch.DatasetMetrics) []string {
	return []string{
		string(dm.Policy),
		formatFloat(dm.Cutoff),
		strconv.Itoa(dm.Samples),
		strconv.Itoa(dm.Evaluated),
		strconv.Itoa(dm.Skipped),
		strconv.Itoa(dm.NTrue),
		strconv.Itoa(dm.NPred),
		strconv.Itoa(dm.TP),
		strconv.Itoa(dm.FP),
		strconv.Itoa(dm.FN),
		formatFloat(dm.Precision),
		formatFloat(dm.Recall),
		formatFloat(dm.Accuracy),
		formatFloat(dm.F1),
		formatFloat(dm.MeanDistance),
		formatFloat(dm.PanopticQuality),
	}
}

func sampleRow(s pointmatch.SampleMetrics) []string {
	return []string{
		strconv.Itoa(s.Index),
		s.Name,
		strconv.Itoa(s.NTrue),
		strconv.Itoa(s.NPred),
		strconv.Itoa(s.TP),
		strconv.Itoa(s.FP),
		strconv.Itoa(s.FN),
		formatFloat(s.Precision),
		formatFloat(s.Recall),
		formatFloat(s.Accuracy),
		formatFloat(s.F1),
		formatFloat(s.MeanDistance),
		formatFloat(s.PanopticQuality),
		strconv.FormatBool(s.Invalid),
		s.InvalidReason,
	}
}

// formatFloat renders v with the shortest exact representation, or "" for
// NaN.
func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// nullable maps NaN to nil for JSON output.
func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// DatasetJSON is the JSON form of pointmatch.DatasetMetrics.
type DatasetJSON struct {
	Policy          string   `json:"policy"`
	Cutoff          float64  `json:"cutoff_distance"`
	Samples         int      `json:"n_samples"`
	Evaluated       int      `json:"n_evaluated"`
	Skipped         int      `json:"n_skipped"`
	NTrue           int      `json:"n_true"`
	NPred           int      `json:"n_pred"`
	TP              int      `json:"tp"`
	FP              int      `json:"fp"`
	FN              int      `json:"fn"`
	Precision       *float64 `json:"precision"`
	Recall          *float64 `json:"recall"`
	Accuracy        *float64 `json:"accuracy"`
	F1              *float64 `json:"f1"`
	MeanDistance    *float64 `json:"mean_dist"`
	PanopticQuality *float64 `json:"panoptic_quality"`
}

// PairJSON is one matched pair.
type PairJSON struct {
	GT       int     `json:"gt"`
	Pred     int     `json:"pred"`
	Distance float64 `json:"distance"`
}

// SampleJSON is the JSON form of pointmatch.SampleMetrics.
type SampleJSON struct {
	Index           int        `json:"index"`
	Name            string     `json:"name,omitempty"`
	NTrue           int        `json:"n_true"`
	NPred           int        `json:"n_pred"`
	TP              int        `json:"tp"`
	FP              int        `json:"fp"`
	FN              int        `json:"fn"`
	Precision       *float64   `json:"precision"`
	Recall          *float64   `json:"recall"`
	Accuracy        *float64   `json:"accuracy"`
	F1              *float64   `json:"f1"`
	MeanDistance    *float64   `json:"mean_dist"`
	PanopticQuality *float64   `json:"panoptic_quality"`
	Matches         []PairJSON `json:"matches,omitempty"`
	Invalid         bool       `json:"invalid,omitempty"`
	InvalidReason   string     `json:"invalid_reason,omitempty"`
}

// ResultJSON is the document written by ExportJSON.
type ResultJSON struct {
	ToolVersion string       `json:"tool_version"`
	GeneratedAt time.Time    `json:"generated_at"`
	Metrics     DatasetJSON  `json:"metrics"`
	ByImage     DatasetJSON  `json:"by_image"`
	Pooled      DatasetJSON  `json:"pooled"`
	Samples     []SampleJSON `json:"samples,omitempty"`
}

// DatasetToJSON converts dm, mapping undefined values to nil.
func DatasetToJSON(dm pointmatch.DatasetMetrics) DatasetJSON {
	return DatasetJSON{
		Policy:          string(dm.Policy),
		Cutoff:          dm.Cutoff,
		Samples:         dm.Samples,
		Evaluated:       dm.Evaluated,
		Skipped:         dm.Skipped,
		NTrue:           dm.NTrue,
		NPred:           dm.NPred,
		TP:              dm.TP,
		FP:              dm.FP,
		FN:              dm.FN,
		Precision:       nullable(dm.Precision),
		Recall:          nullable(dm.Recall),
		Accuracy:        nullable(dm.Accuracy),
		F1:              nullable(dm.F1),
		MeanDistance:    nullable(dm.MeanDistance),
		PanopticQuality: nullable(dm.PanopticQuality),
	}
}

// SampleToJSON converts s, mapping undefined values to nil.
func SampleToJSON(s pointmatch.SampleMetrics) SampleJSON {
	out := SampleJSON{
		Index:           s.Index,
		Name:            s.Name,
		NTrue:           s.NTrue,
		NPred:           s.NPred,
		TP:              s.TP,
		FP:              s.FP,
		FN:              s.FN,
		Precision:       nullable(s.Precision),
		Recall:          nullable(s.Recall),
		Accuracy:        nullable(s.Accuracy),
		F1:              nullable(s.F1),
		MeanDistance:    nullable(s.MeanDistance),
		PanopticQuality: nullable(s.PanopticQuality),
		Invalid:         s.Invalid,
		InvalidReason:   s.InvalidReason,
	}
	for _, p := range s.Matches {
		out.Matches = append(out.Matches, PairJSON{GT: p.GT, Pred: p.Pred, Distance: p.Distance})
	}
	return out
}

// ResultToJSON builds the export document for res, stamped with generatedAt.
func ResultToJSON(res *pointmatch.DatasetResult, generatedAt time.Time) ResultJSON {
	doc := ResultJSON{
		ToolVersion: version.String(),
		GeneratedAt: generatedAt.UTC(),
		Metrics:     DatasetToJSON(res.Metrics),
		ByImage:     DatasetToJSON(res.ByImage),
		Pooled:      DatasetToJSON(res.Pooled),
	}
	for _, s := range res.Samples {
		doc.Samples = append(doc.Samples, SampleToJSON(s))
	}
	return doc
}

// EncodeJSON writes res as indented JSON.
func EncodeJSON(w io.Writer, res *pointmatch.DatasetResult, generatedAt time.Time) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(ResultToJSON(res, generatedAt))
}

// ExportJSON writes res to path as indented JSON, creating parent
// directories.
func ExportJSON(path string, res *pointmatch.DatasetResult, generatedAt time.Time) error {
	if res == nil {
		return fmt.Errorf("export %s: nil result", path)
	}
	return WriteFile(path, func(w io.Writer) error {
		return EncodeJSON(w, res, generatedAt)
	})
}

// WriteFile creates path (and its parent directories) and hands the file to
// fn. The file is closed before returning; a close error is reported when
// fn succeeded.
func WriteFile(path string, fn func(io.Writer) error) (err error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if err := fn(f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
