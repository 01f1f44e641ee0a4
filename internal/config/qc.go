package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/pointqc/internal/pointmatch"
)

// DefaultConfigPath is the path to the canonical QC defaults file.
const DefaultConfigPath = "config/qc.defaults.json"

// QCConfig is the on-disk QC configuration. Every field is optional; the
// Get* accessors supply defaults for anything left unset, so partial files
// are safe. The same keys are used for JSON and YAML.
type QCConfig struct {
	CutoffDistance    *float64 `json:"cutoff_distance,omitempty" yaml:"cutoff_distance,omitempty"`
	AggregationPolicy *string  `json:"aggregation_policy,omitempty" yaml:"aggregation_policy,omitempty"`
	Is3D              *bool    `json:"is_3d,omitempty" yaml:"is_3d,omitempty"`
	InvalidInput      *string  `json:"invalid_input,omitempty" yaml:"invalid_input,omitempty"`
	PerSample         *bool    `json:"per_sample,omitempty" yaml:"per_sample,omitempty"`
	Workers           *int     `json:"workers,omitempty" yaml:"workers,omitempty"`
	PredictionSuffix  *string  `json:"prediction_suffix,omitempty" yaml:"prediction_suffix,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyQCConfig returns a QCConfig with all fields set to nil.
func EmptyQCConfig() *QCConfig {
	return &QCConfig{}
}

// DefaultQCConfig returns a QCConfig with every field set to its default.
func DefaultQCConfig() *QCConfig {
	return &QCConfig{
		CutoffDistance:    ptrFloat64(pointmatch.DefaultCutoff),
		AggregationPolicy: ptrString(string(pointmatch.PolicyByImage)),
		Is3D:              ptrBool(false),
		InvalidInput:      ptrString(string(pointmatch.InvalidSkip)),
		PerSample:         ptrBool(false),
		Workers:           ptrInt(1),
		PredictionSuffix:  ptrString("_predict"),
	}
}

// LoadQCConfig loads a QCConfig from a .json, .yaml or .yml file under 1MB.
func LoadQCConfig(path string) (*QCConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyQCConfig()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents up to the repo root.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *QCConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/<tool>/ or deeper
	}
	for _, path := range candidates {
		if cfg, err := LoadQCConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *QCConfig) Validate() error {
	if c.CutoffDistance != nil {
		v := *c.CutoffDistance
		if !(v > 0) || math.IsInf(v, 0) {
			return fmt.Errorf("cutoff_distance must be a positive finite number, got %v", v)
		}
	}
	if c.AggregationPolicy != nil {
		if _, err := pointmatch.ParsePolicy(*c.AggregationPolicy); err != nil {
			return fmt.Errorf("aggregation_policy: %w", err)
		}
	}
	if c.InvalidInput != nil {
		if _, err := pointmatch.ParseInvalidInputMode(*c.InvalidInput); err != nil {
			return fmt.Errorf("invalid_input: %w", err)
		}
	}
	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", *c.Workers)
	}
	if c.PredictionSuffix != nil && strings.ContainsAny(*c.PredictionSuffix, `/\`) {
		return fmt.Errorf("prediction_suffix must not contain path separators, got %q", *c.PredictionSuffix)
	}
	return nil
}

// GetCutoffDistance returns the cutoff_distance value or the default.
func (c *QCConfig) GetCutoffDistance() float64 {
	if c.CutoffDistance == nil {
		return pointmatch.DefaultCutoff
	}
	return *c.CutoffDistance
}

// GetAggregationPolicy returns the parsed aggregation_policy or by-image.
func (c *QCConfig) GetAggregationPolicy() pointmatch.Policy {
	if c.AggregationPolicy == nil {
		return pointmatch.PolicyByImage
	}
	p, err := pointmatch.ParsePolicy(*c.AggregationPolicy)
	if err != nil {
		return pointmatch.PolicyByImage // default on parse error
	}
	return p
}

// GetIs3D returns the is_3d value or the default.
func (c *QCConfig) GetIs3D() bool {
	if c.Is3D == nil {
		return false
	}
	return *c.Is3D
}

// GetDim returns 3 when is_3d is set, 2 otherwise.
func (c *QCConfig) GetDim() int {
	if c.GetIs3D() {
		return pointmatch.Dim3D
	}
	return pointmatch.Dim2D
}

// GetInvalidInput returns the parsed invalid_input mode or skip.
func (c *QCConfig) GetInvalidInput() pointmatch.InvalidInputMode {
	if c.InvalidInput == nil {
		return pointmatch.InvalidSkip
	}
	m, err := pointmatch.ParseInvalidInputMode(*c.InvalidInput)
	if err != nil {
		return pointmatch.InvalidSkip
	}
	return m
}

// GetPerSample returns the per_sample value or the default.
func (c *QCConfig) GetPerSample() bool {
	if c.PerSample == nil {
		return false
	}
	return *c.PerSample
}

// GetWorkers returns the workers value or 1.
func (c *QCConfig) GetWorkers() int {
	if c.Workers == nil {
		return 1
	}
	return *c.Workers
}

// GetPredictionSuffix returns the prediction_suffix value or "_predict".
func (c *QCConfig) GetPredictionSuffix() string {
	if c.PredictionSuffix == nil {
		return "_predict"
	}
	return *c.PredictionSuffix
}

// EngineOptions converts the configuration into engine options.
func (c *QCConfig) EngineOptions() pointmatch.Options {
	return pointmatch.Options{
		Cutoff:       c.GetCutoffDistance(),
		Policy:       c.GetAggregationPolicy(),
		Dim:          c.GetDim(),
		InvalidInput: c.GetInvalidInput(),
		Workers:      c.GetWorkers(),
		PerSample:    c.GetPerSample(),
	}
}

// Resolved returns a copy with every field set, defaults filled in.
func (c *QCConfig) Resolved() *QCConfig {
	return &QCConfig{
		CutoffDistance:    ptrFloat64(c.GetCutoffDistance()),
		AggregationPolicy: ptrString(string(c.GetAggregationPolicy())),
		Is3D:              ptrBool(c.GetIs3D()),
		InvalidInput:      ptrString(string(c.GetInvalidInput())),
		PerSample:         ptrBool(c.GetPerSample()),
		Workers:           ptrInt(c.GetWorkers()),
		PredictionSuffix:  ptrString(c.GetPredictionSuffix()),
	}
}
