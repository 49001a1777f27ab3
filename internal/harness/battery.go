package harness

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"real-tts/internal/audio"
	"real-tts/internal/tts"
)

// RunConfig tunes the battery. Zero values are normalized to the
// defaults the battery was designed around.
type RunConfig struct {
	Device    string
	OutputDir string

	// Loader builds the engine once, inside the load check. The handle
	// is owned by the battery state and threaded through explicitly.
	Loader func(ctx context.Context) (*tts.Engine, error)

	PerfRuns         int
	SequentialCalls  int
	RepeatRuns       int
	MemoryIterations int

	// Sampler overrides the process sampler in tests.
	Sampler MemorySampler
}

func normalizeRunConfig(cfg *RunConfig) {
	if cfg.PerfRuns <= 0 {
		cfg.PerfRuns = 3
	}
	if cfg.SequentialCalls <= 0 {
		cfg.SequentialCalls = 5
	}
	if cfg.RepeatRuns <= 0 {
		cfg.RepeatRuns = 3
	}
	if cfg.MemoryIterations <= 0 {
		cfg.MemoryIterations = 5
	}
	if strings.TrimSpace(cfg.OutputDir) == "" {
		cfg.OutputDir = "test_outputs"
	}
}

// State is the battery-scoped mutable state: the engine handle populated
// by the load check and the memory baseline captured before any check
// ran. A failed load leaves Engine nil and later checks fail with an
// init failure instead of aborting the battery.
type State struct {
	Engine   *tts.Engine
	Baseline MemorySample

	sampler MemorySampler
}

func (s *State) engine() (*tts.Engine, error) {
	if s.Engine == nil {
		return nil, InitErr(errors.New("engine not initialized"))
	}
	return s.Engine, nil
}

// Check is one named unit of work in the battery.
type Check struct {
	Name string
	Run  func(ctx context.Context, state *State, cfg RunConfig) (map[string]any, error)
}

func AvailableChecks() []Check {
	return []Check{
		{Name: "load", Run: checkLoad},
		{Name: "basic", Run: checkBasic},
		{Name: "params", Run: checkParams},
		{Name: "texts", Run: checkTexts},
		{Name: "perf", Run: checkPerf},
		{Name: "memory", Run: checkMemory},
		{Name: "edge", Run: checkEdge},
		{Name: "sequential", Run: checkSequential},
		{Name: "repeat", Run: checkRepeat},
	}
}

func DefaultCheckOrder() []string {
	return []string{"load", "basic", "params", "texts", "perf", "memory", "edge", "sequential", "repeat"}
}

func ResolveCheckSelection(selection string) []string {
	value := strings.TrimSpace(strings.ToLower(selection))
	if value == "" || value == "all" {
		return DefaultCheckOrder()
	}
	items := strings.Split(value, ",")
	names := make([]string, 0, len(items))
	for _, item := range items {
		name := strings.TrimSpace(strings.ToLower(item))
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	return names
}

// EngineInfo is the run-level engine description captured after the load
// check for the report header.
type EngineInfo struct {
	Device      string
	SampleRate  int
	Watermarker string
	Components  map[string]string
}

// RunBattery executes the named checks in order, one at a time. Every
// check produces a CheckResult; none aborts the run. onResult, when
// non-nil, observes each result as it is produced. The engine opened by
// the load check is closed before returning.
func RunBattery(ctx context.Context, cfg RunConfig, names []string, onResult func(CheckResult)) ([]CheckResult, EngineInfo) {
	normalizeRunConfig(&cfg)
	if len(names) == 0 {
		names = DefaultCheckOrder()
	}
	if onResult == nil {
		onResult = func(CheckResult) {}
	}

	runner := NewRunner(cfg.Sampler)
	sampler := cfg.Sampler
	if sampler == nil {
		sampler = NewProcessSampler()
	}
	state := &State{
		Baseline: sampler.Sample(),
		sampler:  sampler,
	}
	defer func() {
		if state.Engine != nil {
			_ = state.Engine.Close()
		}
	}()

	all := make(map[string]Check)
	for _, check := range AvailableChecks() {
		all[check.Name] = check
	}

	results := make([]CheckResult, 0, len(names))
	for _, name := range names {
		check, ok := all[name]
		if !ok {
			result := CheckResult{
				Name:    name,
				Payload: map[string]any{},
				Failure: &Failure{Kind: KindInternal, Message: "unknown check name"},
			}
			results = append(results, result)
			onResult(result)
			continue
		}
		result := runner.RunCheck(name, func() (map[string]any, error) {
			return check.Run(ctx, state, cfg)
		})
		results = append(results, result)
		onResult(result)
	}

	info := EngineInfo{Device: cfg.Device}
	if state.Engine != nil {
		info.Device = state.Engine.Device()
		info.SampleRate = state.Engine.SampleRate()
		info.Watermarker = state.Engine.WatermarkerName()
		info.Components = state.Engine.Components()
	}
	return results, info
}

// writeClip persists a synthesized clip under the run's output
// directory. Failures surface as IO failures of the calling check.
func writeClip(cfg RunConfig, name string, clip *tts.Clip) (string, error) {
	data, err := audio.EncodeWAV(clip.Samples, clip.SampleRate)
	if err != nil {
		return "", IOErr(fmt.Errorf("encode %s: %w", name, err))
	}
	path := filepath.Join(cfg.OutputDir, name)
	if err := writeFileMkdir(path, data); err != nil {
		return "", IOErr(fmt.Errorf("write %s: %w", name, err))
	}
	return path, nil
}
