package evalstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/banshee-data/pointqc/internal/pointmatch"
	"github.com/banshee-data/pointqc/internal/version"
)

// ErrRunNotFound is returned when a run id has no row.
var ErrRunNotFound = errors.New("qc run not found")

// Run is one persisted QC evaluation. Undefined metrics round-trip as NaN
// through NULL columns.
type Run struct {
	RunID       string
	CreatedAt   int64 // unix nanoseconds
	ToolVersion string
	GTDir       string
	PredDir     string
	Cutoff      float64
	Policy      pointmatch.Policy
	Dim         int
	ByImage     pointmatch.DatasetMetrics
	Pooled      pointmatch.DatasetMetrics
	ParamsJSON  json.RawMessage
}

// Metrics returns the record of the run's selected policy.
func (r *Run) Metrics() pointmatch.DatasetMetrics {
	if r.Policy == pointmatch.PolicyPooled {
		return r.Pooled
	}
	return r.ByImage
}

// RunFromResult builds an unsaved Run from an evaluation result.
func RunFromResult(res *pointmatch.DatasetResult, gtDir, predDir string, dim int) *Run {
	return &Run{
		GTDir:   gtDir,
		PredDir: predDir,
		Cutoff:  res.Metrics.Cutoff,
		Policy:  res.Metrics.Policy,
		Dim:     dim,
		ByImage: res.ByImage,
		Pooled:  res.Pooled,
	}
}

// InsertRun stores run and its samples in one transaction. RunID, CreatedAt
// and ToolVersion are filled in when empty. Matched pairs are not stored.
func (s *Store) InsertRun(run *Run, samples []pointmatch.SampleMetrics) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = s.clock.Now().UnixNano()
	}
	if run.ToolVersion == "" {
		run.ToolVersion = version.String()
	}
	var params interface{}
	if len(run.ParamsJSON) > 0 {
		params = string(run.ParamsJSON)
	}

	return retryOnBusy(s.clock, func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.Exec(`
			INSERT INTO qc_runs (
				run_id, created_at, tool_version, gt_dir, pred_dir,
				cutoff_distance, policy, dim, params_json
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, run.CreatedAt, run.ToolVersion, run.GTDir, run.PredDir,
			run.Cutoff, string(run.Policy), run.Dim, params,
		); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		for _, dm := range []pointmatch.DatasetMetrics{run.ByImage, run.Pooled} {
			if _, err := tx.Exec(`
				INSERT INTO qc_run_metrics (
					run_id, policy, n_samples, n_evaluated, n_skipped,
					n_true, n_pred, tp, fp, fn,
					precision, recall, accuracy, f1, mean_dist, panoptic_quality
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				run.RunID, string(dm.Policy), dm.Samples, dm.Evaluated, dm.Skipped,
				dm.NTrue, dm.NPred, dm.TP, dm.FP, dm.FN,
				nullFloat(dm.Precision), nullFloat(dm.Recall), nullFloat(dm.Accuracy),
				nullFloat(dm.F1), nullFloat(dm.MeanDistance), nullFloat(dm.PanopticQuality),
			); err != nil {
				return fmt.Errorf("insert %s metrics: %w", dm.Policy, err)
			}
		}

		stmt, err := tx.Prepare(`
			INSERT INTO qc_samples (
				run_id, sample_index, name, n_true, n_pred, tp, fp, fn,
				precision, recall, accuracy, f1, mean_dist, panoptic_quality,
				invalid, invalid_reason
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare sample insert: %w", err)
		}
		defer stmt.Close()
		for _, sm := range samples {
			if _, err := stmt.Exec(
				run.RunID, sm.Index, sm.Name, sm.NTrue, sm.NPred, sm.TP, sm.FP, sm.FN,
				nullFloat(sm.Precision), nullFloat(sm.Recall), nullFloat(sm.Accuracy),
				nullFloat(sm.F1), nullFloat(sm.MeanDistance), nullFloat(sm.PanopticQuality),
				sm.Invalid, sm.InvalidReason,
			); err != nil {
				return fmt.Errorf("insert sample %d: %w", sm.Index, err)
			}
		}
		return tx.Commit()
	})
}

const runSelect = `
	SELECT r.run_id, r.created_at, r.tool_version, r.gt_dir, r.pred_dir,
	       r.cutoff_distance, r.policy, r.dim, r.params_json,
	       b.n_samples, b.n_evaluated, b.n_skipped, b.n_true, b.n_pred, b.tp, b.fp, b.fn,
	       b.precision, b.recall, b.accuracy, b.f1, b.mean_dist, b.panoptic_quality,
	       p.n_samples, p.n_evaluated, p.n_skipped, p.n_true, p.n_pred, p.tp, p.fp, p.fn,
	       p.precision, p.recall, p.accuracy, p.f1, p.mean_dist, p.panoptic_quality
	FROM qc_runs r
	JOIN qc_run_metrics b ON b.run_id = r.run_id AND b.policy = 'by_image'
	JOIN qc_run_metrics p ON p.run_id = r.run_id AND p.policy = 'pooled'`

// GetRun returns a single run by id.
func (s *Store) GetRun(runID string) (*Run, error) {
	row := s.db.QueryRow(runSelect+` WHERE r.run_id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, err
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (s *Store) ListRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(runSelect+` ORDER BY r.created_at DESC, r.run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListSamples returns the per-sample rows of a run ordered by sample index.
// A run stored without samples yields an empty slice.
func (s *Store) ListSamples(runID string) ([]pointmatch.SampleMetrics, error) {
	var exists int
	err := s.db.QueryRow(`SELECT 1 FROM qc_runs WHERE run_id = ?`, runID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup run: %w", err)
	}

	rows, err := s.db.Query(`
		SELECT sample_index, name, n_true, n_pred, tp, fp, fn,
		       precision, recall, accuracy, f1, mean_dist, panoptic_quality,
		       invalid, invalid_reason
		FROM qc_samples
		WHERE run_id = ?
		ORDER BY sample_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	var samples []pointmatch.SampleMetrics
	for rows.Next() {
		var sm pointmatch.SampleMetrics
		var f nullFloats
		if err := rows.Scan(
			&sm.Index, &sm.Name, &sm.NTrue, &sm.NPred, &sm.TP, &sm.FP, &sm.FN,
			&f[0], &f[1], &f[2], &f[3], &f[4], &f[5],
			&sm.Invalid, &sm.InvalidReason,
		); err != nil {
			return nil, fmt.Errorf("scan sample row: %w", err)
		}
		sm.Precision, sm.Recall, sm.Accuracy = f.get(0), f.get(1), f.get(2)
		sm.F1, sm.MeanDistance, sm.PanopticQuality = f.get(3), f.get(4), f.get(5)
		samples = append(samples, sm)
	}
	return samples, rows.Err()
}

// DeleteRun removes a run together with its metrics and samples.
func (s *Store) DeleteRun(runID string) error {
	return retryOnBusy(s.clock, func() error {
		result, err := s.db.Exec(`DELETE FROM qc_runs WHERE run_id = ?`, runID)
		if err != nil {
			return fmt.Errorf("delete run: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil
	})
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(sc scanner) (*Run, error) {
	var r Run
	var policy string
	var params sql.NullString
	var bf, pf nullFloats
	b := &r.ByImage
	p := &r.Pooled
	err := sc.Scan(
		&r.RunID, &r.CreatedAt, &r.ToolVersion, &r.GTDir, &r.PredDir,
		&r.Cutoff, &policy, &r.Dim, &params,
		&b.Samples, &b.Evaluated, &b.Skipped, &b.NTrue, &b.NPred, &b.TP, &b.FP, &b.FN,
		&bf[0], &bf[1], &bf[2], &bf[3], &bf[4], &bf[5],
		&p.Samples, &p.Evaluated, &p.Skipped, &p.NTrue, &p.NPred, &p.TP, &p.FP, &p.FN,
		&pf[0], &pf[1], &pf[2], &pf[3], &pf[4], &pf[5],
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run row: %w", err)
	}
	r.Policy = pointmatch.Policy(policy)
	if params.Valid {
		r.ParamsJSON = json.RawMessage(params.String)
	}
	bf.fill(b, pointmatch.PolicyByImage, r.Cutoff)
	pf.fill(p, pointmatch.PolicyPooled, r.Cutoff)
	return &r, nil
}

// nullFloats holds the six nullable ratio columns in storage order:
// precision, recall, accuracy, f1, mean_dist, panoptic_quality.
type nullFloats [6]sql.NullFloat64

func (f *nullFloats) get(i int) float64 {
	if !f[i].Valid {
		return math.NaN()
	}
	return f[i].Float64
}

func (f *nullFloats) fill(dm *pointmatch.DatasetMetrics, policy pointmatch.Policy, cutoff float64) {
	dm.Policy = policy
	dm.Cutoff = cutoff
	dm.Precision, dm.Recall, dm.Accuracy = f.get(0), f.get(1), f.get(2)
	dm.F1, dm.MeanDistance, dm.PanopticQuality = f.get(3), f.get(4), f.get(5)
}

// nullFloat maps NaN to NULL.
func nullFloat(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
