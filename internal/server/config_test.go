package server

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadServerConfigDefaults(t *testing.T) {
	cfg, err := LoadServerConfig("")
	if err != nil {
		t.Fatalf("LoadServerConfig with empty path: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("expected default listen addr, got %s", cfg.ListenAddr)
	}
	if cfg.Auth.CookieName != "harness_session" {
		t.Fatalf("expected default cookie name, got %s", cfg.Auth.CookieName)
	}
	if cfg.Engine.MaxGenerateChars != 300 {
		t.Fatalf("expected 300 char generate limit, got %d", cfg.Engine.MaxGenerateChars)
	}
}

func TestLoadServerConfigYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
listen_addr: ":9090"
engine:
  binary_path: /opt/tts/bin/chatterbox
  max_parallel_runs: 2
  quick_test_rpm: 0
logging:
  level: debug
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := LoadServerConfig(path)
	if err != nil {
		t.Fatalf("LoadServerConfig: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Fatalf("expected :9090, got %s", cfg.ListenAddr)
	}
	if cfg.Engine.BinaryPath != "/opt/tts/bin/chatterbox" {
		t.Fatalf("unexpected binary path %s", cfg.Engine.BinaryPath)
	}
	if cfg.Engine.MaxParallelRuns != 2 {
		t.Fatalf("expected 2 parallel runs, got %d", cfg.Engine.MaxParallelRuns)
	}
	// zero rpm is normalized back to the default
	if cfg.Engine.QuickTestRPM != 6 {
		t.Fatalf("expected normalized quick test rpm 6, got %d", cfg.Engine.QuickTestRPM)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected debug level, got %s", cfg.Logging.Level)
	}
}

func TestLoadServerConfigRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.conf")
	if err := os.WriteFile(path, []byte("{{{not a config"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadServerConfig(path); err == nil {
		t.Fatalf("expected error for unparseable config")
	}
}
