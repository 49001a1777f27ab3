package harness

import (
	"context"
	"fmt"

	"real-tts/internal/tts"
)

const canonicalText = "Hello world, this is a basic test of the text to speech system."

func checkBasic(ctx context.Context, state *State, cfg RunConfig) (map[string]any, error) {
	engine, err := state.engine()
	if err != nil {
		return nil, err
	}

	clip, err := engine.Synthesize(ctx, tts.Request{Text: canonicalText})
	if err != nil {
		return nil, SynthErr(fmt.Errorf("basic synthesis: %w", err))
	}

	outputPath, err := writeClip(cfg, "basic_tts.wav", clip)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"text_length":            len(canonicalText),
		"sample_count":           len(clip.Samples),
		"audio_duration_seconds": clip.Duration().Seconds(),
		"sample_rate":            clip.SampleRate,
		"output_file":            outputPath,
	}, nil
}
