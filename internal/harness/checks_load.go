package harness

import (
	"context"
	"errors"
)

// checkLoad builds the engine and records what was loaded. Every later
// check reads the handle this one populates.
func checkLoad(ctx context.Context, state *State, cfg RunConfig) (map[string]any, error) {
	if cfg.Loader == nil {
		return nil, InitErr(errors.New("no engine loader configured"))
	}
	engine, err := cfg.Loader(ctx)
	if err != nil {
		return nil, InitErr(err)
	}
	state.Engine = engine

	return map[string]any{
		"model_loaded": true,
		"device":       engine.Device(),
		"sample_rate":  engine.SampleRate(),
		"watermarker":  engine.WatermarkerName(),
		"components":   engine.Components(),
	}, nil
}
