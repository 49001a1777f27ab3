package harness

import (
	"context"
	"fmt"
	"time"

	"real-tts/internal/tts"
)

// checkRepeat runs the same request several times at low temperature and
// reports output shape stability and duration variance.
func checkRepeat(ctx context.Context, state *State, cfg RunConfig) (map[string]any, error) {
	engine, err := state.engine()
	if err != nil {
		return nil, err
	}

	req := tts.Request{
		Text:   "Testing API consistency.",
		Params: tts.Params{Temperature: ptrFloat64(0.1)},
	}

	runs := make([]map[string]any, 0, cfg.RepeatRuns)
	sampleCounts := make([]int, 0, cfg.RepeatRuns)
	durations := make([]float64, 0, cfg.RepeatRuns)
	for i := 0; i < cfg.RepeatRuns; i++ {
		start := time.Now()
		clip, synthErr := engine.Synthesize(ctx, req)
		if synthErr != nil {
			return nil, SynthErr(fmt.Errorf("run %d: %w", i, synthErr))
		}
		runs = append(runs, map[string]any{
			"run":             i,
			"sample_count":    len(clip.Samples),
			"duration":        clip.Duration().Seconds(),
			"generation_time": time.Since(start).Seconds(),
		})
		sampleCounts = append(sampleCounts, len(clip.Samples))
		durations = append(durations, clip.Duration().Seconds())
	}

	shapesConsistent := true
	for _, count := range sampleCounts[1:] {
		if count != sampleCounts[0] {
			shapesConsistent = false
			break
		}
	}

	return map[string]any{
		"runs":              runs,
		"shapes_consistent": shapesConsistent,
		"duration_variance": variance(durations),
		"avg_duration":      mean(durations),
	}, nil
}
