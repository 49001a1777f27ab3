package harness

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"real-tts/internal/tts"
)

// fakeBackend deterministically produces one sample per input byte, with
// a floor of one, and can be told to reject specific inputs.
type fakeBackend struct {
	rejectEmpty bool
	failAll     bool
	calls       int
}

func (f *fakeBackend) Synthesize(ctx context.Context, text string, params tts.Params) ([]float32, int, error) {
	f.calls++
	if f.failAll {
		return nil, 0, errors.New("backend unavailable")
	}
	if f.rejectEmpty && strings.TrimSpace(text) == "" {
		return nil, 0, errors.New("empty input rejected")
	}
	count := len(text)
	if count == 0 {
		count = 1
	}
	samples := make([]float32, count)
	return samples, 16000, nil
}

func (f *fakeBackend) Close() error { return nil }

func fakeLoader(backend *fakeBackend) func(context.Context) (*tts.Engine, error) {
	return func(context.Context) (*tts.Engine, error) {
		return tts.NewEngine(backend, 16000, "cpu", nil, map[string]string{"backend": "fake"}), nil
	}
}

func testRunConfig(t *testing.T, backend *fakeBackend) RunConfig {
	t.Helper()
	return RunConfig{
		Device:    "cpu",
		OutputDir: t.TempDir(),
		Loader:    fakeLoader(backend),
		Sampler:   &scriptedSampler{},
	}
}

func TestRunBatteryFullOrder(t *testing.T) {
	backend := &fakeBackend{}
	cfg := testRunConfig(t, backend)

	results, info := RunBattery(context.Background(), cfg, nil, nil)

	order := DefaultCheckOrder()
	if len(results) != len(order) {
		t.Fatalf("expected %d results, got %d", len(order), len(results))
	}
	for i, result := range results {
		if result.Name != order[i] {
			t.Fatalf("result %d: got %s, want %s", i, result.Name, order[i])
		}
		if !result.Succeeded {
			t.Fatalf("check %s failed unexpectedly: %+v", result.Name, result.Failure)
		}
		if (result.Failure != nil) == result.Succeeded {
			t.Fatalf("check %s violates failure-iff-failed invariant", result.Name)
		}
	}
	if info.Device != "cpu" || info.SampleRate != 16000 {
		t.Fatalf("unexpected engine info: %+v", info)
	}
	if info.Watermarker != "passthrough" {
		t.Fatalf("expected fallback watermarker, got %s", info.Watermarker)
	}
}

func TestRunBatteryContinuesPastLoadFailure(t *testing.T) {
	cfg := RunConfig{
		OutputDir: t.TempDir(),
		Loader: func(context.Context) (*tts.Engine, error) {
			return nil, errors.New("missing weights")
		},
		Sampler: &scriptedSampler{},
	}
	results, _ := RunBattery(context.Background(), cfg, []string{"load", "basic", "edge"}, nil)

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for _, result := range results {
		if result.Succeeded {
			t.Fatalf("check %s should fail without an engine", result.Name)
		}
		if result.Failure.Kind != KindInit {
			t.Fatalf("check %s: expected init failure, got %s", result.Name, result.Failure.Kind)
		}
	}
}

func TestRunBatteryUnknownCheck(t *testing.T) {
	backend := &fakeBackend{}
	cfg := testRunConfig(t, backend)
	results, _ := RunBattery(context.Background(), cfg, []string{"load", "bogus", "basic"}, nil)

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[1].Succeeded || results[1].Failure.Message != "unknown check name" {
		t.Fatalf("unexpected result for unknown check: %+v", results[1])
	}
	if !results[2].Succeeded {
		t.Fatal("battery must continue past an unknown check")
	}
}

func TestRunBatteryFailedSynthesisDoesNotAbort(t *testing.T) {
	backend := &fakeBackend{failAll: true}
	cfg := testRunConfig(t, backend)
	var seen []string
	results, _ := RunBattery(context.Background(), cfg, []string{"load", "basic", "params", "repeat"}, func(r CheckResult) {
		seen = append(seen, r.Name)
	})

	if len(seen) != 4 {
		t.Fatalf("expected onResult for every check, got %v", seen)
	}
	// load succeeds (loader works), the synthesis checks fail.
	if !results[0].Succeeded {
		t.Fatalf("load should succeed: %+v", results[0].Failure)
	}
	for _, result := range results[1:] {
		if result.Succeeded {
			t.Fatalf("check %s should fail with a broken backend", result.Name)
		}
		if result.Failure.Kind != KindSynthesis {
			t.Fatalf("check %s: expected synthesis failure, got %s", result.Name, result.Failure.Kind)
		}
	}
}

func TestEdgeCheckRecordsRejectionsWithoutFailing(t *testing.T) {
	backend := &fakeBackend{rejectEmpty: true}
	cfg := testRunConfig(t, backend)
	results, _ := RunBattery(context.Background(), cfg, []string{"load", "edge"}, nil)

	edge := results[1]
	if !edge.Succeeded {
		t.Fatalf("edge check must tolerate per-case failures: %+v", edge.Failure)
	}
	emptyCase, ok := edge.Payload["empty_text"].(map[string]any)
	if !ok {
		t.Fatalf("missing empty_text case: %v", edge.Payload)
	}
	if emptyCase["success"] != false {
		t.Fatalf("expected empty_text rejection to be recorded: %v", emptyCase)
	}
	single, ok := edge.Payload["single_char"].(map[string]any)
	if !ok || single["success"] != true {
		t.Fatalf("expected single_char success: %v", edge.Payload)
	}
}

func TestRepeatCheckReportsShapeStability(t *testing.T) {
	backend := &fakeBackend{}
	cfg := testRunConfig(t, backend)
	results, _ := RunBattery(context.Background(), cfg, []string{"load", "repeat"}, nil)

	repeat := results[1]
	if !repeat.Succeeded {
		t.Fatalf("repeat check failed: %+v", repeat.Failure)
	}
	if repeat.Payload["shapes_consistent"] != true {
		t.Fatalf("deterministic backend must yield consistent shapes: %v", repeat.Payload)
	}
	// Identical durations still pick up float64 rounding noise from the
	// mean, so the variance is near zero rather than exactly zero.
	if variance, ok := repeat.Payload["duration_variance"].(float64); !ok || math.Abs(variance) > 1e-9 {
		t.Fatalf("expected near-zero duration variance, got %v", repeat.Payload["duration_variance"])
	}
}

func TestResolveCheckSelection(t *testing.T) {
	if got := ResolveCheckSelection(""); len(got) != len(DefaultCheckOrder()) {
		t.Fatalf("empty selection must resolve to full battery, got %v", got)
	}
	if got := ResolveCheckSelection("all"); len(got) != len(DefaultCheckOrder()) {
		t.Fatalf("all must resolve to full battery, got %v", got)
	}
	got := ResolveCheckSelection(" Load , BASIC ,, edge ")
	want := []string{"load", "basic", "edge"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
