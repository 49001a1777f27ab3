package tts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type stubSynth struct {
	samples []float32
	rate    int
	err     error
	calls   int
}

func (s *stubSynth) Synthesize(ctx context.Context, text string, params Params) ([]float32, int, error) {
	s.calls++
	if s.err != nil {
		return nil, 0, s.err
	}
	return s.samples, s.rate, nil
}

func (s *stubSynth) Close() error { return nil }

func TestResolveDevice(t *testing.T) {
	cases := []struct {
		selector string
		want     string
		wantErr  bool
	}{
		{"cpu", "cpu", false},
		{"CUDA", "cuda", false},
		{" cpu ", "cpu", false},
		{"tpu", "", true},
	}
	for _, tc := range cases {
		got, err := ResolveDevice(tc.selector)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ResolveDevice(%q): expected error", tc.selector)
			}
			continue
		}
		if err != nil {
			t.Errorf("ResolveDevice(%q): %v", tc.selector, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ResolveDevice(%q) = %q, want %q", tc.selector, got, tc.want)
		}
	}
}

func TestResolveDeviceAutoNeverFails(t *testing.T) {
	got, err := ResolveDevice("auto")
	if err != nil {
		t.Fatalf("ResolveDevice(auto): %v", err)
	}
	if got != "cpu" && got != "cuda" {
		t.Fatalf("auto resolved to unexpected device %q", got)
	}
}

func TestEngineSynthesizeAppliesWatermark(t *testing.T) {
	backend := &stubSynth{samples: []float32{0.1, 0.2, 0.3}, rate: 16000}
	engine := NewEngine(backend, 16000, "cpu", &ImplicitWatermarker{seed: 42}, nil)

	clip, err := engine.Synthesize(context.Background(), Request{Text: "hello"})
	if err != nil {
		t.Fatalf("Synthesize error: %v", err)
	}
	if len(clip.Samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(clip.Samples))
	}
	changed := false
	for i, v := range clip.Samples {
		if v != backend.samples[i] {
			changed = true
		}
	}
	if !changed {
		t.Fatal("implicit watermarker left samples untouched")
	}
}

func TestEngineSynthesizePropagatesBackendError(t *testing.T) {
	backend := &stubSynth{err: errors.New("CUDA out of memory")}
	engine := NewEngine(backend, 16000, "cuda", nil, nil)
	if _, err := engine.Synthesize(context.Background(), Request{Text: "x"}); err == nil {
		t.Fatal("expected backend error to propagate")
	}
}

func TestClipDuration(t *testing.T) {
	clip := &Clip{Samples: make([]float32, 16000), SampleRate: 16000}
	if d := clip.Duration(); d != time.Second {
		t.Fatalf("expected 1s, got %v", d)
	}
	var empty *Clip
	if d := empty.Duration(); d != 0 {
		t.Fatalf("expected 0 for nil clip, got %v", d)
	}
}

func TestSelectWatermarkerFallback(t *testing.T) {
	wm := SelectWatermarker("")
	if wm.Name() != "passthrough" {
		t.Fatalf("expected passthrough for empty key path, got %s", wm.Name())
	}
	wm = SelectWatermarker("/nonexistent/key.bin")
	if wm.Name() != "passthrough" {
		t.Fatalf("expected passthrough for missing key file, got %s", wm.Name())
	}
}

func TestSelectWatermarkerWithKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.bin")
	if err := os.WriteFile(path, []byte("0123456789abcdef"), 0o644); err != nil {
		t.Fatalf("write key: %v", err)
	}
	wm := SelectWatermarker(path)
	if wm.Name() != "implicit" {
		t.Fatalf("expected implicit watermarker, got %s", wm.Name())
	}
}

func TestPassthroughWatermarkerIsIdentity(t *testing.T) {
	in := []float32{0.5, -0.5}
	out := PassthroughWatermarker{}.Apply(in, 16000)
	if out[0] != 0.5 || out[1] != -0.5 {
		t.Fatalf("passthrough modified samples: %v", out)
	}
}
