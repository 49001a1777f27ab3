package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"

	"real-tts/internal/harness"
	"real-tts/internal/tts"
)

func main() {
	device := flag.String("device", envOr("TTS_PROBE_DEVICE", "auto"), "Device selector: auto|cpu|cuda")
	engineBin := flag.String("engine", envOr("TTS_PROBE_ENGINE", "chatterbox-tts"), "Synthesis backend binary")
	voicePath := flag.String("voice", envOr("TTS_PROBE_VOICE", ""), "Voice/model file for the backend (optional)")
	watermarkKey := flag.String("watermark-key", envOr("TTS_PROBE_WATERMARK_KEY", ""), "Key file for the implicit watermarker; falls back to passthrough when missing")
	outDir := flag.String("out-dir", "test_outputs", "Directory for synthesized audio and the report")
	reportPath := flag.String("report", "", "Report file path (default <out-dir>/integration_test_report.json)")
	checks := flag.String("check", "all", "Comma-separated checks: load,basic,params,texts,perf,memory,edge,sequential,repeat,all")
	format := flag.String("format", "text", "Summary output format: text|json")
	timeout := flag.Duration("timeout", 60*time.Second, "Per-synthesis timeout")
	perfRuns := flag.Int("perf-runs", 3, "Timed repetitions per perf bucket")
	sequentialCalls := flag.Int("sequential-calls", 5, "Back-to-back calls for the sequential check")
	repeatRuns := flag.Int("repeat-runs", 3, "Repetitions for the repeatability check")
	memoryIterations := flag.Int("memory-iterations", 5, "Identical calls for the memory-growth check")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level})))

	resolvedReportPath := strings.TrimSpace(*reportPath)
	if resolvedReportPath == "" {
		resolvedReportPath = filepath.Join(*outDir, "integration_test_report.json")
	}

	cfg := harness.RunConfig{
		Device:    *device,
		OutputDir: *outDir,
		Loader: func(ctx context.Context) (*tts.Engine, error) {
			return tts.Load(ctx, tts.Options{
				Device:        *device,
				BinaryPath:    *engineBin,
				VoicePath:     *voicePath,
				WatermarkPath: *watermarkKey,
				Timeout:       *timeout,
			})
		},
		PerfRuns:         *perfRuns,
		SequentialCalls:  *sequentialCalls,
		RepeatRuns:       *repeatRuns,
		MemoryIterations: *memoryIterations,
	}

	selected := harness.ResolveCheckSelection(*checks)
	slog.Info("starting integration check battery",
		"device", *device,
		"checks", strings.Join(selected, ","),
		"out_dir", *outDir,
	)

	results, info := harness.RunBattery(context.Background(), cfg, selected, printResult)
	report := harness.Summarize(results)

	doc := harness.NewDocument(info.Device, report)
	doc.SampleRate = info.SampleRate
	doc.Watermarker = info.Watermarker
	doc.Components = info.Components

	switch strings.ToLower(strings.TrimSpace(*format)) {
	case "json":
		printJSON(doc)
	default:
		printSummary(doc)
	}

	// A report that cannot be written is a harness failure, not a check
	// failure: exit 2 so callers can tell the two apart.
	if err := harness.Persist(resolvedReportPath, doc); err != nil {
		exitWith("failed to write report: " + err.Error())
	}
	slog.Info("report written", "path", resolvedReportPath)

	if report.Failed > 0 {
		os.Exit(1)
	}
}

func printResult(result harness.CheckResult) {
	status := "PASS"
	if !result.Succeeded {
		status = "FAIL"
	}
	fmt.Printf("[%s] %s (%.2fs, %+.1fMB", status, result.Name, result.ElapsedSec, result.MemoryDeltaMB)
	if result.GPUDeltaMB != nil {
		fmt.Printf(", gpu %+.1fMB", *result.GPUDeltaMB)
	}
	fmt.Print(")\n")
	if result.Failure != nil {
		fmt.Printf("  error (%s): %s\n", result.Failure.Kind, result.Failure.Message)
	}
}

func printSummary(doc harness.Document) {
	report := doc.Summary
	fmt.Println()
	fmt.Printf("Device: %s\n", doc.Device)
	if doc.SampleRate > 0 {
		fmt.Printf("Sample rate: %d\n", doc.SampleRate)
	}
	if doc.Watermarker != "" {
		fmt.Printf("Watermarker: %s\n", doc.Watermarker)
	}
	fmt.Printf("Checks: %d/%d succeeded (%.1f%%)\n", report.Succeeded, report.Total, report.SuccessRate)
	fmt.Printf("Avg elapsed: %.2fs (max %.2fs)\n", report.AvgElapsedSeconds, report.MaxElapsedSeconds)
	fmt.Printf("Avg memory delta: %.1fMB (max %.1fMB)\n", report.AvgMemoryMB, report.MaxMemoryMB)
	for _, result := range report.Results {
		if result.Failure != nil {
			fmt.Printf("  failed: %s (%s) %s\n", result.Name, result.Failure.Kind, result.Failure.Message)
		}
	}
}

func printJSON(doc harness.Document) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		exitWith("failed to encode summary JSON: " + err.Error())
	}
	fmt.Println(string(data))
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func exitWith(message string) {
	fmt.Fprintln(os.Stderr, "error:", message)
	os.Exit(2)
}
