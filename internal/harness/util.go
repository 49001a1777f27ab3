package harness

import (
	"os"
	"path/filepath"
)

func writeFileMkdir(path string, data []byte) error {
	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(cleanPath, data, 0o644)
}

func ptrFloat64(v float64) *float64 {
	return &v
}
