package harness

import (
	"context"
	"fmt"
	"strings"

	"real-tts/internal/tts"
)

// checkTexts exercises the input classes real callers send: plain prose,
// heavy punctuation, numerics and dates, and a long multi-sentence block.
func checkTexts(ctx context.Context, state *State, cfg RunConfig) (map[string]any, error) {
	engine, err := state.engine()
	if err != nil {
		return nil, err
	}

	variants := []struct {
		name string
		text string
	}{
		{"short", "Short text."},
		{"medium", "This is a medium length sentence with some punctuation, numbers like 123, and common words."},
		{"long", strings.Repeat("This is a much longer text that contains multiple sentences. It includes various punctuation marks! Does it handle questions? ", 3)},
		{"punctuation", `Testing special characters: @#$%^&*()_+-=[]{}|;':",./<>?`},
		{"numeric", "Numbers and dates: 123, 456.78, January 1st 2024, phone number 555-123-4567."},
	}

	payload := map[string]any{}
	for i, variant := range variants {
		clip, synthErr := engine.Synthesize(ctx, tts.Request{Text: variant.text})
		if synthErr != nil {
			return nil, SynthErr(fmt.Errorf("text variant %q: %w", variant.name, synthErr))
		}
		outputPath, writeErr := writeClip(cfg, fmt.Sprintf("text_variation_%d.wav", i), clip)
		if writeErr != nil {
			return nil, writeErr
		}
		payload[variant.name] = map[string]any{
			"text_length":    len(variant.text),
			"audio_duration": clip.Duration().Seconds(),
			"output_file":    outputPath,
		}
	}
	return payload, nil
}
