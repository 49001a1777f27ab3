package harness

import (
	"context"
	"fmt"

	"real-tts/internal/tts"
)

// checkParams sweeps a fixed grid of generation parameter combinations.
func checkParams(ctx context.Context, state *State, cfg RunConfig) (map[string]any, error) {
	engine, err := state.engine()
	if err != nil {
		return nil, err
	}

	const text = "Testing parameter variations for integration."
	paramSets := []tts.Params{
		{Exaggeration: ptrFloat64(0.3), CFGWeight: ptrFloat64(0.3), Temperature: ptrFloat64(0.6)},
		{Exaggeration: ptrFloat64(0.5), CFGWeight: ptrFloat64(0.5), Temperature: ptrFloat64(0.8)},
		{Exaggeration: ptrFloat64(0.8), CFGWeight: ptrFloat64(0.7), Temperature: ptrFloat64(1.0)},
	}

	payload := map[string]any{}
	for i, params := range paramSets {
		clip, synthErr := engine.Synthesize(ctx, tts.Request{Text: text, Params: params})
		if synthErr != nil {
			return nil, SynthErr(fmt.Errorf("param set %d: %w", i, synthErr))
		}
		outputPath, writeErr := writeClip(cfg, fmt.Sprintf("params_test_%d.wav", i), clip)
		if writeErr != nil {
			return nil, writeErr
		}
		payload[fmt.Sprintf("param_set_%d", i)] = map[string]any{
			"parameters": map[string]any{
				"exaggeration": *params.Exaggeration,
				"cfg_weight":   *params.CFGWeight,
				"temperature":  *params.Temperature,
			},
			"audio_duration": clip.Duration().Seconds(),
			"output_file":    outputPath,
		}
	}
	return payload, nil
}
