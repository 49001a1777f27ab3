// Package tts wraps an external speech synthesis backend behind a single
// engine handle. The model itself is an opaque subprocess; this package
// owns device selection, watermark application, and the request surface
// the harness probes.
package tts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Params carries the recognized generation options. Nil fields fall back
// to the backend's own defaults.
type Params struct {
	Exaggeration *float64 `json:"exaggeration,omitempty"`
	CFGWeight    *float64 `json:"cfg_weight,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`

	// VoicePath points at a reference voice clip for this call only.
	// Empty means the engine's configured voice.
	VoicePath string `json:"-"`
}

type Request struct {
	Text   string `json:"text"`
	Params Params `json:"params"`
}

// Clip is one synthesized utterance.
type Clip struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the playback length of the clip.
func (c *Clip) Duration() time.Duration {
	if c == nil || c.SampleRate <= 0 {
		return 0
	}
	seconds := float64(len(c.Samples)) / float64(c.SampleRate)
	return time.Duration(seconds * float64(time.Second))
}

// Synthesizer is the raw backend capability. Failure modes are opaque and
// callers treat every error as a generic synthesis failure.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, params Params) ([]float32, int, error)
	Close() error
}

type Options struct {
	Device        string // auto|cpu|cuda
	BinaryPath    string
	VoicePath     string
	WatermarkPath string // key file for the implicit watermarker; optional
	Timeout       time.Duration
}

// Engine is the caller-owned synthesis handle threaded through the check
// battery. Every field is fixed at construction, so overlapping
// Synthesize calls are safe; Close must not overlap in-flight calls.
type Engine struct {
	backend     Synthesizer
	watermarker Watermarker
	device      string
	sampleRate  int
	components  map[string]string
}

// Load resolves the device selector, starts the backend, and picks a
// watermarker once. The preferred implicit watermarker is used when its
// key file is readable; otherwise the passthrough fallback is selected
// and reported via WatermarkerName.
func Load(ctx context.Context, opts Options) (*Engine, error) {
	device, err := ResolveDevice(opts.Device)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(opts.BinaryPath) == "" {
		return nil, errors.New("tts: backend binary path is required")
	}
	backend, err := newProcessSynthesizer(opts.BinaryPath, opts.VoicePath, device, opts.Timeout)
	if err != nil {
		return nil, fmt.Errorf("start backend: %w", err)
	}

	_, warmupRate, warmupErr := backend.Synthesize(ctx, "warmup", Params{})
	if warmupErr != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("warmup synthesis: %w", warmupErr)
	}

	engine := &Engine{
		backend:     backend,
		watermarker: SelectWatermarker(opts.WatermarkPath),
		device:      device,
		sampleRate:  warmupRate,
		components:  backend.Components(),
	}
	return engine, nil
}

// NewEngine assembles an engine from parts. The harness tests use it to
// substitute a stub backend.
func NewEngine(backend Synthesizer, sampleRate int, device string, wm Watermarker, components map[string]string) *Engine {
	if wm == nil {
		wm = PassthroughWatermarker{}
	}
	return &Engine{
		backend:     backend,
		watermarker: wm,
		device:      device,
		sampleRate:  sampleRate,
		components:  components,
	}
}

// Synthesize runs one generation call and watermarks the result.
func (e *Engine) Synthesize(ctx context.Context, req Request) (*Clip, error) {
	samples, rate, err := e.backend.Synthesize(ctx, req.Text, req.Params)
	if err != nil {
		return nil, err
	}
	if rate <= 0 {
		rate = e.sampleRate
	}
	samples = e.watermarker.Apply(samples, rate)
	return &Clip{Samples: samples, SampleRate: rate}, nil
}

func (e *Engine) Device() string { return e.device }

func (e *Engine) SampleRate() int { return e.sampleRate }

func (e *Engine) WatermarkerName() string { return e.watermarker.Name() }

// Components reports the backend's named parts for the load check.
func (e *Engine) Components() map[string]string {
	out := make(map[string]string, len(e.components))
	for k, v := range e.components {
		out[k] = v
	}
	return out
}

func (e *Engine) Close() error {
	if e == nil || e.backend == nil {
		return nil
	}
	return e.backend.Close()
}
