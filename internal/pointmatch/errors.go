package pointmatch

import (
	"errors"
	"fmt"
)

// Sentinel errors for the two fatal-or-flagged failure classes. Use
// errors.Is against these; errors.As against the typed errors below gives
// the details.
var (
	// ErrConfiguration marks a run-level misconfiguration. No partial
	// results are produced when it is returned.
	ErrConfiguration = errors.New("pointmatch: configuration error")

	// ErrInvalidInput marks non-finite coordinates or distances in a
	// single sample.
	ErrInvalidInput = errors.New("pointmatch: invalid input")
)

// ConfigurationError describes why a run was rejected before matching.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

func configErrorf(format string, args ...interface{}) error {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// InvalidInputError describes a sample whose coordinates or distances are
// not finite. Sample is -1 when the error was raised outside the dataset
// aggregator.
type InvalidInputError struct {
	Sample int
	Reason string
}

func (e *InvalidInputError) Error() string {
	if e.Sample < 0 {
		return fmt.Sprintf("invalid input: %s", e.Reason)
	}
	return fmt.Sprintf("invalid input in sample %d: %s", e.Sample, e.Reason)
}

func (e *InvalidInputError) Is(target error) bool { return target == ErrInvalidInput }
