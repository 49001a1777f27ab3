package harness

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Summarize folds an ordered CheckResult sequence into a RunReport. It
// is a pure function of its input: calling it twice on the same slice
// yields identical reports. An empty sequence produces zero aggregates
// rather than dividing by zero.
func Summarize(results []CheckResult) RunReport {
	report := RunReport{
		Total:   len(results),
		Results: results,
	}

	var elapsed, memory []float64
	for _, result := range results {
		if result.Succeeded {
			report.Succeeded++
			elapsed = append(elapsed, result.ElapsedSec)
			memory = append(memory, result.MemoryDeltaMB)
		} else {
			report.Failed++
		}
	}
	if report.Total > 0 {
		report.SuccessRate = float64(report.Succeeded) / float64(report.Total) * 100
	}
	report.AvgElapsedSeconds = mean(elapsed)
	report.MaxElapsedSeconds = maxOf(elapsed)
	report.AvgMemoryMB = mean(memory)
	report.MaxMemoryMB = maxOf(memory)
	return report
}

// Document is the persisted run record: run-level context plus the
// summary with its full per-check detail. Field names are stable for
// downstream tooling.
type Document struct {
	GeneratedAt string            `json:"generated_at"`
	Device      string            `json:"device"`
	SampleRate  int               `json:"sample_rate,omitempty"`
	Watermarker string            `json:"watermarker,omitempty"`
	Components  map[string]string `json:"components,omitempty"`
	Summary     RunReport         `json:"summary"`
}

func NewDocument(device string, report RunReport) Document {
	return Document{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Device:      device,
		Summary:     report,
	}
}

// Persist writes the document as indented JSON, overwriting any existing
// file. Write failures are returned to the caller, never swallowed: a
// run without a report is a harness-level failure.
func Persist(path string, doc Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}
	if err := os.WriteFile(cleanPath, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
