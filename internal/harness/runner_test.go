package harness

import (
	"errors"
	"testing"
	"time"
)

// scriptedSampler returns canned samples in sequence, repeating the last
// one when the script runs out.
type scriptedSampler struct {
	samples []MemorySample
	index   int
}

func (s *scriptedSampler) Sample() MemorySample {
	if len(s.samples) == 0 {
		return MemorySample{}
	}
	if s.index >= len(s.samples) {
		return s.samples[len(s.samples)-1]
	}
	out := s.samples[s.index]
	s.index++
	return out
}

func TestRunCheckSuccess(t *testing.T) {
	sampler := &scriptedSampler{samples: []MemorySample{
		{ResidentMB: 100},
		{ResidentMB: 102},
	}}
	runner := NewRunner(sampler)

	result := runner.RunCheck("basic", func() (map[string]any, error) {
		time.Sleep(10 * time.Millisecond)
		return map[string]any{"shape": []int{1, 16000}}, nil
	})

	if !result.Succeeded {
		t.Fatalf("expected success, got failure: %+v", result.Failure)
	}
	if result.Failure != nil {
		t.Fatal("succeeded result must carry no failure")
	}
	if result.Name != "basic" {
		t.Fatalf("expected name basic, got %s", result.Name)
	}
	if result.ElapsedSec <= 0 {
		t.Fatal("expected positive elapsed time")
	}
	if result.MemoryDeltaMB != 2 {
		t.Fatalf("expected memory delta 2.0, got %f", result.MemoryDeltaMB)
	}
	if _, ok := result.Payload["shape"]; !ok {
		t.Fatal("expected payload to carry the procedure's result")
	}
}

func TestRunCheckFailureNeverPropagates(t *testing.T) {
	runner := NewRunner(&scriptedSampler{})
	result := runner.RunCheck("edge", func() (map[string]any, error) {
		return nil, errors.New("CUDA out of memory")
	})
	if result.Succeeded {
		t.Fatal("expected failed result")
	}
	if result.Failure == nil {
		t.Fatal("failed result must carry a failure description")
	}
	if result.Failure.Message != "CUDA out of memory" {
		t.Fatalf("unexpected failure message: %s", result.Failure.Message)
	}
	if len(result.Payload) != 0 {
		t.Fatalf("failed check must have empty payload, got %v", result.Payload)
	}
}

func TestRunCheckClassifiesFailureKinds(t *testing.T) {
	runner := NewRunner(&scriptedSampler{})
	cases := []struct {
		err  error
		want FailureKind
	}{
		{InitErr(errors.New("missing weights")), KindInit},
		{SynthErr(errors.New("invalid configuration")), KindSynthesis},
		{IOErr(errors.New("permission denied")), KindIO},
		{errors.New("bare error"), KindSynthesis},
	}
	for _, tc := range cases {
		result := runner.RunCheck("x", func() (map[string]any, error) {
			return nil, tc.err
		})
		if result.Failure == nil || result.Failure.Kind != tc.want {
			t.Errorf("error %v: expected kind %s, got %+v", tc.err, tc.want, result.Failure)
		}
	}
}

func TestRunCheckRecoversPanic(t *testing.T) {
	runner := NewRunner(&scriptedSampler{})
	result := runner.RunCheck("boom", func() (map[string]any, error) {
		panic("index out of range")
	})
	if result.Succeeded {
		t.Fatal("expected panicking check to be recorded as failed")
	}
	if result.Failure.Kind != KindInternal {
		t.Fatalf("expected internal failure kind, got %s", result.Failure.Kind)
	}
}

func TestRunCheckMemoryDeltaOnFailure(t *testing.T) {
	sampler := &scriptedSampler{samples: []MemorySample{
		{ResidentMB: 50, AccelMB: 10, AccelOK: true},
		{ResidentMB: 47, AccelMB: 14, AccelOK: true},
	}}
	runner := NewRunner(sampler)
	result := runner.RunCheck("x", func() (map[string]any, error) {
		return nil, errors.New("fail")
	})
	if result.MemoryDeltaMB != -3 {
		t.Fatalf("deltas are computed regardless of outcome, got %f", result.MemoryDeltaMB)
	}
	if result.GPUDeltaMB == nil || *result.GPUDeltaMB != 4 {
		t.Fatalf("expected gpu delta 4, got %v", result.GPUDeltaMB)
	}
}

func TestRunCheckSkipsGPUDeltaWithoutAccelerator(t *testing.T) {
	sampler := &scriptedSampler{samples: []MemorySample{
		{ResidentMB: 50},
		{ResidentMB: 51},
	}}
	runner := NewRunner(sampler)
	result := runner.RunCheck("x", func() (map[string]any, error) {
		return map[string]any{}, nil
	})
	if result.GPUDeltaMB != nil {
		t.Fatalf("expected nil gpu delta, got %v", *result.GPUDeltaMB)
	}
}
