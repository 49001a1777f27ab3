package harness

import (
	"context"
	"fmt"

	"real-tts/internal/tts"
)

// checkMemory repeats an identical call and diffs each post-call sample
// against the pre-battery baseline to surface retention growth.
func checkMemory(ctx context.Context, state *State, cfg RunConfig) (map[string]any, error) {
	engine, err := state.engine()
	if err != nil {
		return nil, err
	}

	const text = "Testing memory usage patterns during text to speech generation."
	baseline := state.Baseline

	snapshots := make([]map[string]any, 0, cfg.MemoryIterations)
	var firstRAM, lastRAM float64
	var firstGPU, lastGPU *float64
	for i := 0; i < cfg.MemoryIterations; i++ {
		if _, synthErr := engine.Synthesize(ctx, tts.Request{Text: text}); synthErr != nil {
			return nil, SynthErr(fmt.Errorf("iteration %d: %w", i+1, synthErr))
		}
		sample := state.sampler.Sample()
		ramDelta := sample.ResidentMB - baseline.ResidentMB
		snapshot := map[string]any{
			"iteration": i,
			"ram_mb":    ramDelta,
		}
		var gpuDelta *float64
		if sample.AccelOK && baseline.AccelOK {
			gpuDelta = ptrFloat64(sample.AccelMB - baseline.AccelMB)
			snapshot["gpu_mb"] = *gpuDelta
		}
		snapshots = append(snapshots, snapshot)
		if i == 0 {
			firstRAM = ramDelta
			firstGPU = gpuDelta
		}
		lastRAM = ramDelta
		lastGPU = gpuDelta
	}

	growth := map[string]any{
		"ram_mb": lastRAM - firstRAM,
	}
	if firstGPU != nil && lastGPU != nil {
		growth["gpu_mb"] = *lastGPU - *firstGPU
	}

	return map[string]any{
		"baseline_ram_mb":  baseline.ResidentMB,
		"iterations":       cfg.MemoryIterations,
		"memory_snapshots": snapshots,
		"memory_growth":    growth,
	}, nil
}
