package harness

import (
	"context"
	"fmt"
	"strings"
	"time"

	"real-tts/internal/tts"
)

// checkPerf benchmarks synthesis across text-length buckets. Each bucket
// gets one warmup call, then cfg.PerfRuns timed runs for mean and stddev
// plus a derived real-time factor.
func checkPerf(ctx context.Context, state *State, cfg RunConfig) (map[string]any, error) {
	engine, err := state.engine()
	if err != nil {
		return nil, err
	}

	buckets := []struct {
		name string
		text string
	}{
		{"short", "Quick test."},
		{"medium", "This is a medium length sentence for performance testing."},
		{"long", strings.Repeat("This is a much longer text that will help us understand how performance scales with input length. ", 3)},
	}

	payload := map[string]any{}
	for _, bucket := range buckets {
		req := tts.Request{Text: bucket.text}

		// Warmup is not measured.
		if _, warmErr := engine.Synthesize(ctx, req); warmErr != nil {
			return nil, SynthErr(fmt.Errorf("%s warmup: %w", bucket.name, warmErr))
		}

		var clip *tts.Clip
		times := make([]float64, 0, cfg.PerfRuns)
		for i := 0; i < cfg.PerfRuns; i++ {
			start := time.Now()
			out, runErr := engine.Synthesize(ctx, req)
			if runErr != nil {
				return nil, SynthErr(fmt.Errorf("%s run %d: %w", bucket.name, i+1, runErr))
			}
			times = append(times, time.Since(start).Seconds())
			clip = out
		}

		avg := mean(times)
		audioSeconds := clip.Duration().Seconds()
		payload[bucket.name] = map[string]any{
			"text_length":         len(bucket.text),
			"runs":                cfg.PerfRuns,
			"avg_generation_time": avg,
			"std_generation_time": stddev(times),
			"audio_duration":      audioSeconds,
			"realtime_factor":     realtimeFactor(audioSeconds, avg),
		}
	}
	return payload, nil
}
