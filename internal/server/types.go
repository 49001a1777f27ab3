package server

import (
	"time"

	"real-tts/internal/harness"
)

type Principal struct {
	Subject  string `json:"subject"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// RunRequest describes one queued harness run.
type RunRequest struct {
	Device           string   `json:"device"`
	Checks           []string `json:"check"`
	TimeoutSec       int      `json:"timeout_sec,omitempty"`
	PerfRuns         int      `json:"perf_runs,omitempty"`
	SequentialCalls  int      `json:"sequential_calls,omitempty"`
	RepeatRuns       int      `json:"repeat_runs,omitempty"`
	MemoryIterations int      `json:"memory_iterations,omitempty"`
	DryRun           bool     `json:"dry_run,omitempty"`
}

// QuickTestRequest is the user-facing shortcut: a named scenario instead
// of an explicit check list.
type QuickTestRequest struct {
	ScenarioID string `json:"scenario_id"`
	Device     string `json:"device,omitempty"`
}

// GenerateRequest is the direct synthesis surface. Only the two primary
// controls are exposed; the remaining knobs stay at backend defaults.
type GenerateRequest struct {
	Text         string   `json:"text"`
	Exaggeration *float64 `json:"exaggeration,omitempty"`
	CFGWeight    *float64 `json:"cfg_weight,omitempty"`
}

type RunMeta struct {
	RunID       string            `json:"run_id"`
	Status      string            `json:"status"`
	CreatorType string            `json:"creator_type"`
	CreatorSub  string            `json:"creator_sub,omitempty"`
	Source      string            `json:"source"`
	Request     RunRequest        `json:"request"`
	StartedAt   string            `json:"started_at,omitempty"`
	FinishedAt  string            `json:"finished_at,omitempty"`
	CreatedAt   string            `json:"created_at"`
	Error       string            `json:"error,omitempty"`
	Report      *harness.Document `json:"report,omitempty"`
	Perf        PerfSnapshot      `json:"perf"`
}

// PerfSnapshot carries the run's headline numbers, denormalized out of
// the report for cheap listing.
type PerfSnapshot struct {
	SuccessRate    float64 `json:"success_rate"`
	AvgElapsedSec  float64 `json:"avg_elapsed_seconds"`
	MaxMemoryMB    float64 `json:"max_memory_mb"`
	RealtimeFactor float64 `json:"realtime_factor"`
}

type AuditEvent struct {
	Timestamp string `json:"timestamp"`
	RunID     string `json:"run_id,omitempty"`
	ActorType string `json:"actor_type"`
	ActorSub  string `json:"actor_sub,omitempty"`
	Action    string `json:"action"`
	Result    string `json:"result"`
	IPHash    string `json:"ip_hash,omitempty"`
	UAHash    string `json:"ua_hash,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

type RunEvent struct {
	Seq       int64          `json:"seq"`
	Timestamp string         `json:"timestamp"`
	Stage     string         `json:"stage"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}

type MetricsOverview struct {
	GeneratedAt        string  `json:"generated_at"`
	TotalRuns          int     `json:"total_runs"`
	RunningRuns        int     `json:"running_runs"`
	PassRuns           int     `json:"pass_runs"`
	FailRuns           int     `json:"fail_runs"`
	AverageDurationSec float64 `json:"average_duration_seconds"`
	AverageSuccessRate float64 `json:"average_success_rate"`
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
