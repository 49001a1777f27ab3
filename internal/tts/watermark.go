package tts

import (
	"encoding/binary"
	"os"
)

// Watermarker marks synthesized audio. Which implementation an engine
// carries is decided once at construction; callers never swap it at
// runtime.
type Watermarker interface {
	Name() string
	Apply(samples []float32, sampleRate int) []float32
}

// SelectWatermarker returns the implicit watermarker when its key file is
// readable, and the passthrough fallback otherwise. Some distributions of
// the watermark package ship without the key file, so the fallback is a
// supported configuration, not an error.
func SelectWatermarker(keyPath string) Watermarker {
	if keyPath == "" {
		return PassthroughWatermarker{}
	}
	key, err := os.ReadFile(keyPath)
	if err != nil || len(key) < 8 {
		return PassthroughWatermarker{}
	}
	return &ImplicitWatermarker{seed: binary.LittleEndian.Uint64(key[:8])}
}

// PassthroughWatermarker passes audio through unmodified.
type PassthroughWatermarker struct{}

func (PassthroughWatermarker) Name() string { return "passthrough" }

func (PassthroughWatermarker) Apply(samples []float32, _ int) []float32 {
	return samples
}

// ImplicitWatermarker embeds a keyed low-amplitude pseudo-noise sequence.
// The perturbation sits roughly 66 dB below full scale, well under the
// backend's own noise floor.
type ImplicitWatermarker struct {
	seed uint64
}

func (w *ImplicitWatermarker) Name() string { return "implicit" }

func (w *ImplicitWatermarker) Apply(samples []float32, _ int) []float32 {
	const amplitude = 1.0 / 2048
	out := make([]float32, len(samples))
	state := w.seed | 1
	for i, sample := range samples {
		// xorshift64 PN sequence
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		sign := float32(1)
		if state&1 == 0 {
			sign = -1
		}
		out[i] = sample + sign*amplitude
	}
	return out
}
