package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	ListenAddr string              `json:"listen_addr" yaml:"listen_addr"`
	Database   DatabaseConfig      `json:"database" yaml:"database"`
	Auth       AuthConfig          `json:"auth" yaml:"auth"`
	Security   SecurityConfig      `json:"security" yaml:"security"`
	Engine     EngineConfig        `json:"engine" yaml:"engine"`
	Observer   ObservabilityConfig `json:"observability" yaml:"observability"`
	Logging    LoggingConfig       `json:"logging" yaml:"logging"`
}

type DatabaseConfig struct {
	DSN            string `json:"dsn" yaml:"dsn"`
	MaxConns       int32  `json:"max_conns" yaml:"max_conns"`
	MigrationsPath string `json:"migrations_path" yaml:"migrations_path"`
}

type AuthConfig struct {
	SessionTTL string `json:"session_ttl" yaml:"session_ttl"`
	CookieName string `json:"cookie_name" yaml:"cookie_name"`
}

type SecurityConfig struct {
	AdminToken string `json:"admin_token" yaml:"admin_token"`
}

// EngineConfig describes the synthesis backend the service probes and
// the limits around it.
type EngineConfig struct {
	BinaryPath        string `json:"binary_path" yaml:"binary_path"`
	VoicePath         string `json:"voice_path" yaml:"voice_path"`
	WatermarkKeyPath  string `json:"watermark_key_path" yaml:"watermark_key_path"`
	OutputDir         string `json:"output_dir" yaml:"output_dir"`
	MaxParallelRuns   int    `json:"max_parallel_runs" yaml:"max_parallel_runs"`
	DefaultTimeoutSec int    `json:"default_timeout_sec" yaml:"default_timeout_sec"`
	QuickTestRPM      int    `json:"quick_test_rpm" yaml:"quick_test_rpm"`
	GenerateRPM       int    `json:"generate_rpm" yaml:"generate_rpm"`
	MaxGenerateChars  int    `json:"max_generate_chars" yaml:"max_generate_chars"`
}

type ObservabilityConfig struct {
	OTLPEndpoint string  `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	ServiceName  string  `json:"service_name" yaml:"service_name"`
	SampleRatio  float64 `json:"sample_ratio" yaml:"sample_ratio"`
}

// LoggingConfig optionally tees slog output to a rotating file.
type LoggingConfig struct {
	Level      string `json:"level" yaml:"level"`
	FilePath   string `json:"file_path" yaml:"file_path"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr: ":8080",
		Database: DatabaseConfig{
			MaxConns:       10,
			MigrationsPath: "./migrations",
		},
		Auth: AuthConfig{
			SessionTTL: "8h",
			CookieName: "harness_session",
		},
		Engine: EngineConfig{
			BinaryPath:        "chatterbox-tts",
			OutputDir:         "run_outputs",
			MaxParallelRuns:   1,
			DefaultTimeoutSec: 540,
			QuickTestRPM:      6,
			GenerateRPM:       30,
			MaxGenerateChars:  300,
		},
		Observer: ObservabilityConfig{
			ServiceName: "harness-api",
			SampleRatio: 1,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
	}
}

func LoadServerConfig(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse yaml config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse json config: %w", err)
		}
	default:
		var yamlErr error
		if yamlErr = yaml.Unmarshal(data, &cfg); yamlErr == nil {
			break
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.New("config format not recognized (expected yaml/json)")
		}
	}
	normalizeConfig(&cfg)
	return cfg, nil
}

func normalizeConfig(cfg *ServerConfig) {
	if cfg == nil {
		return
	}
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if strings.TrimSpace(cfg.Database.MigrationsPath) == "" {
		cfg.Database.MigrationsPath = "./migrations"
	}
	if strings.TrimSpace(cfg.Auth.CookieName) == "" {
		cfg.Auth.CookieName = "harness_session"
	}
	if strings.TrimSpace(cfg.Auth.SessionTTL) == "" {
		cfg.Auth.SessionTTL = "8h"
	}
	if strings.TrimSpace(cfg.Engine.BinaryPath) == "" {
		cfg.Engine.BinaryPath = "chatterbox-tts"
	}
	if strings.TrimSpace(cfg.Engine.OutputDir) == "" {
		cfg.Engine.OutputDir = "run_outputs"
	}
	if cfg.Engine.MaxParallelRuns <= 0 {
		cfg.Engine.MaxParallelRuns = 1
	}
	if cfg.Engine.DefaultTimeoutSec <= 0 {
		cfg.Engine.DefaultTimeoutSec = 540
	}
	if cfg.Engine.QuickTestRPM <= 0 {
		cfg.Engine.QuickTestRPM = 6
	}
	if cfg.Engine.GenerateRPM <= 0 {
		cfg.Engine.GenerateRPM = 30
	}
	if cfg.Engine.MaxGenerateChars <= 0 {
		cfg.Engine.MaxGenerateChars = 300
	}
	if cfg.Observer.SampleRatio <= 0 || cfg.Observer.SampleRatio > 1 {
		cfg.Observer.SampleRatio = 1
	}
	if strings.TrimSpace(cfg.Observer.ServiceName) == "" {
		cfg.Observer.ServiceName = "harness-api"
	}
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.MaxSizeMB <= 0 {
		cfg.Logging.MaxSizeMB = 50
	}
	if cfg.Logging.MaxBackups <= 0 {
		cfg.Logging.MaxBackups = 3
	}
}
