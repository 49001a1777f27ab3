package harness

import (
	"context"
	"fmt"
	"time"

	"real-tts/internal/tts"
)

// checkSequential fires back-to-back calls to characterize latency under
// rapid reuse of one engine handle.
func checkSequential(ctx context.Context, state *State, cfg RunConfig) (map[string]any, error) {
	engine, err := state.engine()
	if err != nil {
		return nil, err
	}

	calls := make([]map[string]any, 0, cfg.SequentialCalls)
	start := time.Now()
	for i := 0; i < cfg.SequentialCalls; i++ {
		text := fmt.Sprintf("Sequential test number %d.", i)
		callStart := time.Now()
		clip, synthErr := engine.Synthesize(ctx, tts.Request{Text: text})
		if synthErr != nil {
			return nil, SynthErr(fmt.Errorf("call %d: %w", i, synthErr))
		}
		calls = append(calls, map[string]any{
			"call_index":      i,
			"generation_time": time.Since(callStart).Seconds(),
			"audio_duration":  clip.Duration().Seconds(),
		})
	}
	totalTime := time.Since(start).Seconds()

	return map[string]any{
		"total_calls":        cfg.SequentialCalls,
		"total_time":         totalTime,
		"avg_time_per_call":  totalTime / float64(cfg.SequentialCalls),
		"individual_results": calls,
	}, nil
}
