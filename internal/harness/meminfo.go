package harness

import (
	"os"

	"github.com/shirou/gopsutil/v4/process"

	"real-tts/internal/tts"
)

// MemorySample is a point-in-time snapshot taken around a check.
// Accelerator numbers are best-effort and absent on CPU-only hosts.
type MemorySample struct {
	ResidentMB float64
	AccelMB    float64
	AccelOK    bool
}

// MemorySampler captures process and accelerator memory. Sampling never
// fails a check; a sampler that cannot read returns zeros.
type MemorySampler interface {
	Sample() MemorySample
}

// ProcessSampler reads the current process RSS and, when an accelerator
// is visible, its used memory.
type ProcessSampler struct {
	proc *process.Process
}

func NewProcessSampler() *ProcessSampler {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return &ProcessSampler{}
	}
	return &ProcessSampler{proc: proc}
}

func (s *ProcessSampler) Sample() MemorySample {
	out := MemorySample{}
	if s.proc != nil {
		if info, err := s.proc.MemoryInfo(); err == nil && info != nil {
			out.ResidentMB = float64(info.RSS) / 1024 / 1024
		}
	}
	if mb, ok := tts.AcceleratorMemoryMB(); ok {
		out.AccelMB = mb
		out.AccelOK = true
	}
	return out
}
