package tts

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// ResolveDevice maps a device selector to a concrete backend device.
// "auto" picks cuda when an NVIDIA accelerator is visible, cpu otherwise.
func ResolveDevice(selector string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(selector)) {
	case "", "auto":
		if AcceleratorAvailable() {
			return "cuda", nil
		}
		return "cpu", nil
	case "cpu":
		return "cpu", nil
	case "cuda":
		return "cuda", nil
	default:
		return "", fmt.Errorf("tts: unknown device selector %q", selector)
	}
}

// AcceleratorAvailable reports whether an NVIDIA device is visible.
func AcceleratorAvailable() bool {
	if _, err := os.Stat("/proc/driver/nvidia/version"); err == nil {
		return true
	}
	_, err := exec.LookPath("nvidia-smi")
	return err == nil
}

// AcceleratorMemoryMB samples current accelerator memory use via
// nvidia-smi. Best-effort: (0, false) when no accelerator is present or
// the query fails.
func AcceleratorMemoryMB() (float64, bool) {
	path, err := exec.LookPath("nvidia-smi")
	if err != nil {
		return 0, false
	}
	out, err := exec.Command(path, "--query-gpu=memory.used", "--format=csv,noheader,nounits").Output()
	if err != nil {
		return 0, false
	}
	line := strings.TrimSpace(strings.SplitN(string(out), "\n", 2)[0])
	value, err := strconv.ParseFloat(line, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}
