package harness

import (
	"context"
	"strings"

	"real-tts/internal/tts"
)

// checkEdge probes inputs the capability's contract does not pin down:
// empty text, a single character, a very long block, and out-of-range
// parameters. Each case is recorded as its own success or failure; the
// backend rejecting an input is a valid, reportable outcome and never
// fails this check.
func checkEdge(ctx context.Context, state *State, cfg RunConfig) (map[string]any, error) {
	engine, err := state.engine()
	if err != nil {
		return nil, err
	}

	cases := []struct {
		name string
		req  tts.Request
	}{
		{"empty_text", tts.Request{Text: ""}},
		{"single_char", tts.Request{Text: "A"}},
		{"very_long_text", tts.Request{Text: strings.Repeat("This is a very long text. ", 100)}},
		{"extreme_params", tts.Request{
			Text: "Testing extreme parameters.",
			Params: tts.Params{
				Exaggeration: ptrFloat64(2.0),
				CFGWeight:    ptrFloat64(1.0),
				Temperature:  ptrFloat64(2.0),
			},
		}},
	}

	payload := map[string]any{}
	for _, edgeCase := range cases {
		clip, synthErr := engine.Synthesize(ctx, edgeCase.req)
		if synthErr != nil {
			payload[edgeCase.name] = map[string]any{
				"success": false,
				"error":   synthErr.Error(),
			}
			continue
		}
		entry := map[string]any{
			"success":        true,
			"audio_duration": clip.Duration().Seconds(),
		}
		if edgeCase.req.Text != "" {
			entry["text_length"] = len(edgeCase.req.Text)
		}
		payload[edgeCase.name] = entry
	}
	return payload, nil
}
