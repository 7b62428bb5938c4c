// Package rating implements the range-tiered rating rule evaluator:
// catalog validation, publication, and pure per-quote evaluation.
package rating

import (
	"errors"
	"fmt"

	"github.com/opensure/kestrel/internal/domain"
)

var (
	// ErrCatalogNotFound is returned when no catalog version has been
	// published for the requested insurer/product pair.
	ErrCatalogNotFound = errors.New("catalog not found")

	// ErrInvalidCatalog is returned by Publish when validation fails.
	// The accompanying ValidationReport carries the violations.
	ErrInvalidCatalog = errors.New("catalog failed validation")
)

// ConfigCode identifies a catalog validation violation.
type ConfigCode string

const (
	ConfigOverlappingRange       ConfigCode = "OverlappingRange"
	ConfigGapInRange             ConfigCode = "GapInRange"
	ConfigDuplicateLabel         ConfigCode = "DuplicateCategoricalLabel"
	ConfigMissingOpenEndedTier   ConfigCode = "MissingOpenEndedTier"
	ConfigInvalidTierBound       ConfigCode = "InvalidTierBound"
	ConfigInvalidBinaryChoice    ConfigCode = "InvalidBinaryChoice"
	ConfigDuplicateClauseCode    ConfigCode = "DuplicateClauseCode"
	ConfigInvalidClauseCondition ConfigCode = "InvalidClauseCondition"
)

// Severity of a configuration issue. Only error-severity issues block
// publication; warnings are reported for the editor but tolerated.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ConfigurationError describes one catalog invariant violation.
type ConfigurationError struct {
	Code      ConfigCode          `json:"code"`
	Dimension domain.DimensionKey `json:"dimension"`
	Severity  Severity            `json:"severity"`
	Detail    string              `json:"detail"`
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s [%s/%s]: %s", e.Code, e.Dimension, e.Severity, e.Detail)
}

// ValidationReport is the full outcome of validating one draft catalog.
// All violations are collected so an editor can fix a catalog in one pass.
type ValidationReport struct {
	Valid  bool                  `json:"valid"`
	Issues []*ConfigurationError `json:"issues,omitempty"`
}

// Errors returns the error-severity issues only.
func (r *ValidationReport) Errors() []*ConfigurationError {
	var out []*ConfigurationError
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			out = append(out, issue)
		}
	}
	return out
}

// EvalCode identifies a per-quote evaluation failure.
type EvalCode string

const (
	// EvalNoMatchingTier: the context value fell below the lowest
	// configured tier of a range dimension.
	EvalNoMatchingTier EvalCode = "NoMatchingTier"

	// EvalUnknownLabel: a categorical, binary or clause input is outside
	// the configured domain.
	EvalUnknownLabel EvalCode = "UnknownLabel"

	// EvalClauseCondition: a clause applicability condition failed at
	// runtime.
	EvalClauseCondition EvalCode = "ClauseConditionFailed"
)

// EvaluationError describes why a single quote's evaluation could not
// resolve an input. It is scoped to that quote only; an unconfigured
// input is a configuration gap, never silently defaulted.
type EvaluationError struct {
	Code      EvalCode            `json:"code"`
	Dimension domain.DimensionKey `json:"dimension"`
	Input     string              `json:"input"`
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("%s: dimension %q has no tier for input %q", e.Code, e.Dimension, e.Input)
}
