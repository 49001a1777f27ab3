package server

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"real-tts/internal/tts"
)

// EngineLease is a borrowed handle on a loaded engine. Callers must
// return it with Release once the synthesis work is done.
type EngineLease struct {
	Device string
	Engine *tts.Engine
	ref    *engineState
}

// EnginePool keeps at most one loaded engine per device and bounds how
// many synthesis calls may run against each at a time. Loading a model
// is expensive, so engines stay warm between leases.
type EnginePool struct {
	mu        sync.Mutex
	cfg       EngineConfig
	maxActive int
	engines   map[string]*engineState

	// loadFn builds an engine for a resolved device. Tests swap it out.
	loadFn func(ctx context.Context, device string) (*tts.Engine, error)
}

type engineState struct {
	Device      string
	Engine      *tts.Engine
	ActiveCalls int
	LoadedAt    time.Time
}

func NewEnginePool(cfg EngineConfig) *EnginePool {
	maxActive := cfg.MaxParallelRuns
	if maxActive <= 0 {
		maxActive = 1
	}
	pool := &EnginePool{
		cfg:       cfg,
		maxActive: maxActive,
		engines:   map[string]*engineState{},
	}
	pool.loadFn = func(ctx context.Context, device string) (*tts.Engine, error) {
		return tts.Load(ctx, tts.Options{
			Device:        device,
			BinaryPath:    cfg.BinaryPath,
			VoicePath:     cfg.VoicePath,
			WatermarkPath: cfg.WatermarkKeyPath,
			Timeout:       time.Duration(cfg.DefaultTimeoutSec) * time.Second,
		})
	}
	return pool
}

func (p *EnginePool) Acquire(ctx context.Context, device string) (EngineLease, error) {
	resolved, err := tts.ResolveDevice(device)
	if err != nil {
		return EngineLease{}, err
	}

	p.mu.Lock()
	state, ok := p.engines[resolved]
	if ok {
		if state.ActiveCalls >= p.maxActive {
			p.mu.Unlock()
			return EngineLease{}, errors.New("engine is at its concurrency limit")
		}
		state.ActiveCalls++
		p.mu.Unlock()
		return EngineLease{Device: resolved, Engine: state.Engine, ref: state}, nil
	}
	p.mu.Unlock()

	// Load outside the lock; model startup can take long enough that
	// holding the mutex would stall unrelated devices.
	engine, err := p.loadFn(ctx, resolved)
	if err != nil {
		return EngineLease{}, fmt.Errorf("load engine for %s: %w", resolved, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.engines[resolved]; ok {
		// Another caller raced us to the load; keep theirs.
		engine.Close()
		if existing.ActiveCalls >= p.maxActive {
			return EngineLease{}, errors.New("engine is at its concurrency limit")
		}
		existing.ActiveCalls++
		return EngineLease{Device: resolved, Engine: existing.Engine, ref: existing}, nil
	}
	state = &engineState{
		Device:      resolved,
		Engine:      engine,
		ActiveCalls: 1,
		LoadedAt:    time.Now(),
	}
	p.engines[resolved] = state
	return EngineLease{Device: resolved, Engine: engine, ref: state}, nil
}

func (p *EnginePool) Release(lease EngineLease) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if lease.ref == nil {
		return
	}
	if lease.ref.ActiveCalls > 0 {
		lease.ref.ActiveCalls--
	}
}

// Status reports the loaded devices and their in-flight call counts.
func (p *EnginePool) Status() []map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]map[string]any, 0, len(p.engines))
	for _, state := range p.engines {
		out = append(out, map[string]any{
			"device":       state.Device,
			"sample_rate":  state.Engine.SampleRate(),
			"watermarker":  state.Engine.WatermarkerName(),
			"active_calls": state.ActiveCalls,
			"loaded_at":    state.LoadedAt.UTC().Format(time.RFC3339),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return fmt.Sprint(out[i]["device"]) < fmt.Sprint(out[j]["device"])
	})
	return out
}

func (p *EnginePool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for device, state := range p.engines {
		state.Engine.Close()
		delete(p.engines, device)
	}
}

func sanitizeGenerateText(text string, maxChars int) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", errors.New("text is required")
	}
	if maxChars > 0 && len([]rune(trimmed)) > maxChars {
		return "", fmt.Errorf("text exceeds %d characters", maxChars)
	}
	return trimmed, nil
}
