// Package harness runs a fixed battery of named checks against a speech
// synthesis engine, measuring wall-clock and memory cost per check and
// folding the outcomes into a machine-readable report. A failing check is
// recorded and the battery moves on; only harness-level defects abort a
// run.
package harness

import (
	"errors"
	"time"
)

// FailureKind classifies what went wrong inside a check.
type FailureKind string

const (
	KindInit      FailureKind = "init"
	KindSynthesis FailureKind = "synthesis"
	KindIO        FailureKind = "io"
	KindInternal  FailureKind = "internal"
)

// Failure is the structured error description attached to a failed
// CheckResult. Kind plus message instead of an opaque string.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

// CheckResult is the immutable outcome of one named check. Failure is
// non-nil exactly when Succeeded is false.
type CheckResult struct {
	Name          string         `json:"name"`
	Succeeded     bool           `json:"succeeded"`
	Elapsed       time.Duration  `json:"-"`
	ElapsedSec    float64        `json:"elapsed_seconds"`
	MemoryDeltaMB float64        `json:"memory_delta_mb"`
	GPUDeltaMB    *float64       `json:"gpu_delta_mb,omitempty"`
	Payload       map[string]any `json:"payload"`
	Failure       *Failure       `json:"failure,omitempty"`
}

// RunReport aggregates an ordered CheckResult sequence. Elapsed and
// memory statistics cover succeeded checks only; SuccessRate is a
// percentage and is defined as 0 for an empty sequence.
type RunReport struct {
	Total             int           `json:"total_checks"`
	Succeeded         int           `json:"succeeded_checks"`
	Failed            int           `json:"failed_checks"`
	SuccessRate       float64       `json:"success_rate"`
	AvgElapsedSeconds float64       `json:"avg_elapsed_seconds"`
	MaxElapsedSeconds float64       `json:"max_elapsed_seconds"`
	AvgMemoryMB       float64       `json:"avg_memory_mb"`
	MaxMemoryMB       float64       `json:"max_memory_mb"`
	Results           []CheckResult `json:"results"`
}

// checkError carries a FailureKind through a check's error return so the
// runner can classify it without string matching.
type checkError struct {
	kind FailureKind
	err  error
}

func (e *checkError) Error() string { return e.err.Error() }

func (e *checkError) Unwrap() error { return e.err }

// InitErr marks err as a capability initialization failure.
func InitErr(err error) error { return &checkError{kind: KindInit, err: err} }

// SynthErr marks err as a generation failure.
func SynthErr(err error) error { return &checkError{kind: KindSynthesis, err: err} }

// IOErr marks err as an audio or report file failure.
func IOErr(err error) error { return &checkError{kind: KindIO, err: err} }

func classify(err error) Failure {
	var ce *checkError
	if errors.As(err, &ce) {
		return Failure{Kind: ce.kind, Message: ce.err.Error()}
	}
	return Failure{Kind: KindSynthesis, Message: err.Error()}
}
