package harness

import (
	"fmt"
	"time"
)

// Proc is one check body: it returns a result payload or fails. The
// runner invokes it exactly once, synchronously.
type Proc func() (map[string]any, error)

// Runner executes checks one at a time and converts every outcome,
// including panics, into a CheckResult. It never retries and never
// times a check out; a hanging check blocks the run.
type Runner struct {
	sampler MemorySampler
}

func NewRunner(sampler MemorySampler) *Runner {
	if sampler == nil {
		sampler = NewProcessSampler()
	}
	return &Runner{sampler: sampler}
}

// RunCheck measures wall clock and memory around proc and records the
// outcome. It always returns a CheckResult; failures raised by proc do
// not propagate. Deltas are (after - before) regardless of outcome.
func (r *Runner) RunCheck(name string, proc Proc) CheckResult {
	before := r.sampler.Sample()
	start := time.Now()

	payload, failure := invoke(proc)

	elapsed := time.Since(start)
	after := r.sampler.Sample()

	result := CheckResult{
		Name:          name,
		Succeeded:     failure == nil,
		Elapsed:       elapsed,
		ElapsedSec:    elapsed.Seconds(),
		MemoryDeltaMB: after.ResidentMB - before.ResidentMB,
		Payload:       payload,
		Failure:       failure,
	}
	if before.AccelOK && after.AccelOK {
		delta := after.AccelMB - before.AccelMB
		result.GPUDeltaMB = &delta
	}
	if result.Payload == nil {
		result.Payload = map[string]any{}
	}
	return result
}

// invoke isolates proc's failure modes: an error return is classified,
// a panic is recorded as an internal failure.
func invoke(proc Proc) (payload map[string]any, failure *Failure) {
	defer func() {
		if recovered := recover(); recovered != nil {
			payload = map[string]any{}
			failure = &Failure{
				Kind:    KindInternal,
				Message: fmt.Sprintf("check panicked: %v", recovered),
			}
		}
	}()
	payload, err := proc()
	if err != nil {
		classified := classify(err)
		return map[string]any{}, &classified
	}
	return payload, nil
}
