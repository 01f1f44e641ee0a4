// Package main is the point-detection QC tool. It pairs ground-truth and
// prediction coordinate CSVs from two directories, matches points within a
// cutoff distance and reports precision, recall, F1 and localisation error.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"

	"github.com/banshee-data/pointqc/internal/config"
	"github.com/banshee-data/pointqc/internal/coordio"
	"github.com/banshee-data/pointqc/internal/evalstore"
	"github.com/banshee-data/pointqc/internal/monitoring"
	"github.com/banshee-data/pointqc/internal/pointmatch"
	"github.com/banshee-data/pointqc/internal/report"
	"github.com/banshee-data/pointqc/internal/timeutil"
	"github.com/banshee-data/pointqc/internal/version"
)

// clock stamps the JSON export and the stored run.
var clock timeutil.Clock = timeutil.RealClock{}

// Config holds the command-line settings.
type Config struct {
	GroundTruth string
	Predictions string
	OutFile     string
	JSONFile    string
	DBPath      string
	ConfigFile  string
	Verbose     bool
	Version     bool

	// Engine settings; only flags the user actually set override the
	// config file.
	Cutoff       float64
	Is3D         bool
	Policy       string
	PerImage     bool
	Workers      int
	InvalidInput string
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatalf("point-qc: %v", err)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	cli, set, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if cli.Version {
		fmt.Fprintf(stdout, "point-qc %s\n", version.String())
		return nil
	}
	if cli.GroundTruth == "" || cli.Predictions == "" {
		return errors.New("both -gt/--ground-truth and -p/--predictions are required")
	}

	monitoring.SetVerbose(cli.Verbose)
	if cli.Verbose {
		pointmatch.SetLogWriters(stderr, stderr, stderr)
	} else {
		pointmatch.SetLogWriters(stderr, nil, nil)
	}
	defer pointmatch.SetLogWriters(nil, nil, nil)

	cfg, err := resolveConfig(cli, set)
	if err != nil {
		return err
	}

	ds, err := coordio.LoadDirs(cli.GroundTruth, cli.Predictions, coordio.LoadOptions{
		Dim:              cfg.GetDim(),
		PredictionSuffix: cfg.GetPredictionSuffix(),
	})
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}

	opts := cfg.EngineOptions()
	opts.Names = ds.Names
	// The run store always keeps per-sample rows.
	opts.PerSample = cfg.GetPerSample() || cli.DBPath != ""

	res, err := pointmatch.EvaluateDataset(ds.GT, ds.Pred, opts)
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}

	printSummary(stdout, res)

	if cli.DBPath != "" {
		if err := saveRun(cli, cfg, res); err != nil {
			return err
		}
	}

	if !cfg.GetPerSample() {
		res.Samples = nil
	}

	if cli.OutFile != "" {
		err := report.WriteFile(cli.OutFile, func(w io.Writer) error {
			if cfg.GetPerSample() {
				return report.WriteSamplesCSV(w, res.Samples)
			}
			return report.WriteDatasetCSV(w, res.Metrics)
		})
		if err != nil {
			return fmt.Errorf("write results: %w", err)
		}
		log.Printf("Results written to: %s", cli.OutFile)
	}

	if cli.JSONFile != "" {
		if err := report.ExportJSON(cli.JSONFile, res, clock.Now()); err != nil {
			return fmt.Errorf("export JSON: %w", err)
		}
		log.Printf("Results exported to: %s", cli.JSONFile)
	}
	return nil
}

func parseFlags(args []string, stderr io.Writer) (Config, map[string]bool, error) {
	cfg := Config{}
	fs := flag.NewFlagSet("point-qc", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&cfg.GroundTruth, "gt", "", "Directory of ground-truth coordinate CSVs")
	fs.StringVar(&cfg.GroundTruth, "ground-truth", "", "Alias for -gt")
	fs.StringVar(&cfg.Predictions, "p", "", "Directory of prediction coordinate CSVs")
	fs.StringVar(&cfg.Predictions, "predictions", "", "Alias for -p")
	fs.StringVar(&cfg.OutFile, "o", "", "Output CSV file (optional)")
	fs.StringVar(&cfg.OutFile, "outfile", "", "Alias for -o")
	fs.Float64Var(&cfg.Cutoff, "cutoff", pointmatch.DefaultCutoff, "Distance cutoff for a match")
	fs.BoolVar(&cfg.Is3D, "3d", false, "Coordinates are 3D (z, y, x)")
	fs.StringVar(&cfg.Policy, "policy", string(pointmatch.PolicyByImage), "Aggregation policy: by_image or pooled")
	fs.BoolVar(&cfg.PerImage, "per-image", false, "Write one CSV row per image instead of the aggregate")
	fs.IntVar(&cfg.Workers, "workers", 1, "Number of samples evaluated concurrently")
	fs.StringVar(&cfg.InvalidInput, "invalid", string(pointmatch.InvalidSkip), "Non-finite input handling: skip or abort")
	fs.StringVar(&cfg.ConfigFile, "config", "", "QC config file (.json, .yaml or .yml)")
	fs.StringVar(&cfg.JSONFile, "json", "", "Output JSON file (optional)")
	fs.StringVar(&cfg.DBPath, "db", "", "SQLite run store to record this run in (optional)")
	fs.BoolVar(&cfg.Verbose, "v", false, "Enable verbose logging")
	fs.BoolVar(&cfg.Version, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return cfg, nil, err
	}
	if fs.NArg() > 0 {
		return cfg, nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return cfg, set, nil
}

// resolveConfig layers explicitly set flags over the config file (or the
// built-in defaults when there is none).
func resolveConfig(cli Config, set map[string]bool) (*config.QCConfig, error) {
	cfg := config.EmptyQCConfig()
	if cli.ConfigFile != "" {
		loaded, err := config.LoadQCConfig(cli.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if set["cutoff"] {
		cfg.CutoffDistance = &cli.Cutoff
	}
	if set["3d"] {
		cfg.Is3D = &cli.Is3D
	}
	if set["policy"] {
		cfg.AggregationPolicy = &cli.Policy
	}
	if set["per-image"] {
		cfg.PerSample = &cli.PerImage
	}
	if set["workers"] {
		cfg.Workers = &cli.Workers
	}
	if set["invalid"] {
		cfg.InvalidInput = &cli.InvalidInput
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return cfg, nil
}

func saveRun(cli Config, cfg *config.QCConfig, res *pointmatch.DatasetResult) error {
	store, err := evalstore.Open(cli.DBPath)
	if err != nil {
		return fmt.Errorf("open run store: %w", err)
	}
	defer store.Close()
	store.SetClock(clock)

	run := evalstore.RunFromResult(res, cli.GroundTruth, cli.Predictions, cfg.GetDim())
	if params, err := json.Marshal(cfg.Resolved()); err == nil {
		run.ParamsJSON = params
	}
	if err := store.InsertRun(run, res.Samples); err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	log.Printf("Run %s recorded in %s", run.RunID, cli.DBPath)
	return nil
}

func printSummary(w io.Writer, res *pointmatch.DatasetResult) {
	m := res.Metrics
	fmt.Fprintf(w, "\n=== Point QC (%s, cutoff %g) ===\n", m.Policy, m.Cutoff)
	fmt.Fprintf(w, "Samples:          %d evaluated, %d skipped\n", m.Evaluated, m.Skipped)
	fmt.Fprintf(w, "Points:           %d ground truth, %d predicted\n", m.NTrue, m.NPred)
	fmt.Fprintf(w, "TP / FP / FN:     %d / %d / %d\n", m.TP, m.FP, m.FN)
	fmt.Fprintf(w, "Precision:        %s\n", formatMetric(m.Precision))
	fmt.Fprintf(w, "Recall:           %s\n", formatMetric(m.Recall))
	fmt.Fprintf(w, "F1:               %s\n", formatMetric(m.F1))
	fmt.Fprintf(w, "Accuracy:         %s\n", formatMetric(m.Accuracy))
	fmt.Fprintf(w, "Mean distance:    %s\n", formatMetric(m.MeanDistance))
	fmt.Fprintf(w, "Panoptic quality: %s\n", formatMetric(m.PanopticQuality))

	other := res.Pooled
	if m.Policy == pointmatch.PolicyPooled {
		other = res.ByImage
	}
	fmt.Fprintf(w, "(%s F1: %s)\n", other.Policy, formatMetric(other.F1))
}

func formatMetric(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", v)
}
