package tts

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"real-tts/internal/audio"
)

// fakeBackendScript writes a shell script that behaves like the synthesis
// binary: reads stdin, finds --output_file among its args, and copies a
// canned WAV there.
func fakeBackendScript(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	canned := filepath.Join(dir, "canned.wav")
	data, err := audio.EncodeWAV([]float32{0.1, -0.1, 0.2}, 16000)
	if err != nil {
		t.Fatalf("encode canned wav: %v", err)
	}
	if err := os.WriteFile(canned, data, 0o644); err != nil {
		t.Fatalf("write canned wav: %v", err)
	}

	script := filepath.Join(dir, "fake-tts")
	body := "#!/bin/sh\n" +
		"out=\"\"\n" +
		"while [ $# -gt 0 ]; do\n" +
		"  if [ \"$1\" = \"--output_file\" ]; then out=\"$2\"; shift; fi\n" +
		"  shift\n" +
		"done\n" +
		"cat >/dev/null\n" +
		"cp " + canned + " \"$out\"\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return script
}

func TestProcessSynthesizerRoundTrip(t *testing.T) {
	backend, err := newProcessSynthesizer(fakeBackendScript(t), "", "cpu", 10*time.Second)
	if err != nil {
		t.Fatalf("newProcessSynthesizer: %v", err)
	}
	defer backend.Close()

	samples, rate, err := backend.Synthesize(context.Background(), "hello", Params{})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if rate != 16000 {
		t.Fatalf("expected sample rate 16000, got %d", rate)
	}
	if len(samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(samples))
	}
}

func TestProcessSynthesizerConcurrentCalls(t *testing.T) {
	backend, err := newProcessSynthesizer(fakeBackendScript(t), "", "cpu", 10*time.Second)
	if err != nil {
		t.Fatalf("newProcessSynthesizer: %v", err)
	}
	defer backend.Close()

	// Overlapping calls happen on the warm generate path; each one must
	// get its own output file and race-free results.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			samples, rate, err := backend.Synthesize(context.Background(), "hello", Params{})
			if err != nil {
				t.Errorf("Synthesize: %v", err)
				return
			}
			if rate != 16000 || len(samples) != 3 {
				t.Errorf("unexpected result: rate=%d samples=%d", rate, len(samples))
			}
		}()
	}
	wg.Wait()
}

func TestProcessSynthesizerVoiceOverride(t *testing.T) {
	backend, err := newProcessSynthesizer(fakeBackendScript(t), "/voices/default.wav", "cpu", time.Second)
	if err != nil {
		t.Fatalf("newProcessSynthesizer: %v", err)
	}
	defer backend.Close()

	args := backend.buildArgs(Params{}, "out.wav")
	if !containsArgPair(args, "--voice", "/voices/default.wav") {
		t.Fatalf("expected configured voice in args, got %v", args)
	}
	args = backend.buildArgs(Params{VoicePath: "/tmp/ref.wav"}, "out.wav")
	if !containsArgPair(args, "--voice", "/tmp/ref.wav") {
		t.Fatalf("expected per-call voice to win, got %v", args)
	}
}

func containsArgPair(args []string, flag, value string) bool {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == flag && args[i+1] == value {
			return true
		}
	}
	return false
}
