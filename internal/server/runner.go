package server

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"real-tts/internal/harness"
	"real-tts/internal/tts"
)

type RunManager struct {
	cfg        ServerConfig
	store      Store
	obs        *Observability
	queue      chan queuedRun
	wg         sync.WaitGroup
	quickLimit *ipRateLimiter
}

type RunnerService interface {
	CreateAdminRun(request RunRequest, principal Principal, source string) (RunMeta, error)
	CreateQuickTest(request QuickTestRequest, ipHash, uaHash string) (RunMeta, error)
}

type queuedRun struct {
	RunID       string
	Request     RunRequest
	Creator     Principal
	CreatorType string
	Source      string
}

func NewRunManager(cfg ServerConfig, store Store, obs *Observability) *RunManager {
	maxParallel := cfg.Engine.MaxParallelRuns
	if maxParallel <= 0 {
		maxParallel = 1
	}
	manager := &RunManager{
		cfg:        cfg,
		store:      store,
		obs:        obs,
		queue:      make(chan queuedRun, maxParallel*8),
		quickLimit: newIPRateLimiter(cfg.Engine.QuickTestRPM),
	}
	for i := 0; i < maxParallel; i++ {
		manager.wg.Add(1)
		go func() {
			defer manager.wg.Done()
			manager.worker()
		}()
	}
	return manager
}

func (m *RunManager) Shutdown() {
	close(m.queue)
	m.wg.Wait()
}

func (m *RunManager) CreateAdminRun(request RunRequest, principal Principal, source string) (RunMeta, error) {
	device, err := tts.ResolveDevice(request.Device)
	if err != nil {
		return RunMeta{}, err
	}
	request.Device = device
	if request.TimeoutSec <= 0 {
		request.TimeoutSec = m.cfg.Engine.DefaultTimeoutSec
	}
	if len(request.Checks) == 0 {
		request.Checks = harness.DefaultCheckOrder()
	}
	runID, err := randomID("run")
	if err != nil {
		return RunMeta{}, err
	}
	meta := RunMeta{
		RunID:       runID,
		Status:      "queued",
		Source:      source,
		CreatorType: "admin",
		CreatorSub:  principal.Subject,
		Request:     request,
		CreatedAt:   nowRFC3339(),
	}
	if err := m.store.CreateRun(meta); err != nil {
		return RunMeta{}, err
	}
	_, _ = m.store.AppendRunEvent(runID, "queue", "run queued", map[string]any{
		"source": source,
	})
	_ = m.store.AppendAudit(AuditEvent{
		Timestamp: nowRFC3339(),
		RunID:     runID,
		ActorType: "admin",
		ActorSub:  principal.Subject,
		Action:    "run.create",
		Result:    "queued",
	})
	m.queue <- queuedRun{
		RunID:       runID,
		Request:     request,
		Creator:     principal,
		CreatorType: "admin",
		Source:      source,
	}
	return meta, nil
}

func (m *RunManager) CreateQuickTest(request QuickTestRequest, ipHash, uaHash string) (RunMeta, error) {
	if !m.quickLimit.Allow(ipHash) {
		if m.obs != nil {
			m.obs.MarkRejected(context.Background(), "quick_test_rate_limit")
		}
		_ = m.store.AppendAudit(AuditEvent{
			Timestamp: nowRFC3339(),
			ActorType: "user",
			Action:    "quick_test.reject",
			Result:    "rate_limited",
			IPHash:    ipHash,
			UAHash:    uaHash,
		})
		return RunMeta{}, errors.New("quick test rate limit reached")
	}
	runRequest, err := scenarioToRunRequest(request, m.cfg)
	if err != nil {
		return RunMeta{}, err
	}
	runID, err := randomID("run")
	if err != nil {
		return RunMeta{}, err
	}
	meta := RunMeta{
		RunID:       runID,
		Status:      "queued",
		Source:      "user.quick_test",
		CreatorType: "user",
		Request:     runRequest,
		CreatedAt:   nowRFC3339(),
	}
	if err := m.store.CreateRun(meta); err != nil {
		return RunMeta{}, err
	}
	_, _ = m.store.AppendRunEvent(runID, "queue", "quick test queued", map[string]any{
		"scenario_id": request.ScenarioID,
	})
	_ = m.store.AppendAudit(AuditEvent{
		Timestamp: nowRFC3339(),
		RunID:     runID,
		ActorType: "user",
		Action:    "quick_test.create",
		Result:    "queued",
		IPHash:    ipHash,
		UAHash:    uaHash,
		Detail:    request.ScenarioID,
	})
	m.queue <- queuedRun{
		RunID:       runID,
		Request:     runRequest,
		CreatorType: "user",
		Source:      "user.quick_test",
	}
	return meta, nil
}

func (m *RunManager) worker() {
	for queued := range m.queue {
		m.executeRun(queued)
	}
}

func (m *RunManager) executeRun(queued queuedRun) {
	startedAt := nowRFC3339()
	_, _ = m.store.UpdateRun(queued.RunID, func(meta *RunMeta) {
		meta.Status = "running"
		meta.StartedAt = startedAt
	})
	_, _ = m.store.AppendRunEvent(queued.RunID, "start", "run started", nil)

	if queued.Request.DryRun {
		doc := buildDryRunDocument(queued.Request)
		m.finishRun(queued, doc, "dry-run completed")
		return
	}

	timeout := time.Duration(queued.Request.TimeoutSec) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	runCfg := harness.RunConfig{
		Device:    queued.Request.Device,
		OutputDir: filepath.Join(m.cfg.Engine.OutputDir, queued.RunID),
		Loader: func(ctx context.Context) (*tts.Engine, error) {
			return tts.Load(ctx, tts.Options{
				Device:        queued.Request.Device,
				BinaryPath:    m.cfg.Engine.BinaryPath,
				VoicePath:     m.cfg.Engine.VoicePath,
				WatermarkPath: m.cfg.Engine.WatermarkKeyPath,
				Timeout:       timeout,
			})
		},
		PerfRuns:         queued.Request.PerfRuns,
		SequentialCalls:  queued.Request.SequentialCalls,
		RepeatRuns:       queued.Request.RepeatRuns,
		MemoryIterations: queued.Request.MemoryIterations,
	}
	results, info := harness.RunBattery(ctx, runCfg, queued.Request.Checks, func(result harness.CheckResult) {
		data := map[string]any{
			"check":       result.Name,
			"succeeded":   result.Succeeded,
			"elapsed_sec": result.ElapsedSec,
		}
		message := "check passed"
		if result.Failure != nil {
			message = "check failed"
			data["failure_kind"] = string(result.Failure.Kind)
			data["failure"] = result.Failure.Message
		}
		_, _ = m.store.AppendRunEvent(queued.RunID, "check_result", message, data)
		if m.obs != nil {
			m.obs.MarkCheck(ctx, result.Name, result.Succeeded, result.Elapsed.Milliseconds())
		}
	})

	doc := harness.NewDocument(info.Device, harness.Summarize(results))
	doc.SampleRate = info.SampleRate
	doc.Watermarker = info.Watermarker
	doc.Components = info.Components
	m.finishRun(queued, doc, "run completed")
}

func (m *RunManager) finishRun(queued queuedRun, doc harness.Document, message string) {
	status := "pass"
	if doc.Summary.Failed > 0 {
		status = "fail"
	}
	perf := perfFromDocument(doc)
	report := doc
	_, _ = m.store.UpdateRun(queued.RunID, func(meta *RunMeta) {
		meta.Status = status
		meta.FinishedAt = nowRFC3339()
		meta.Report = &report
		meta.Perf = perf
		if status == "fail" {
			meta.Error = "one or more checks failed"
		}
	})
	_, _ = m.store.AppendRunEvent(queued.RunID, "completed", message, map[string]any{
		"status":       status,
		"success_rate": doc.Summary.SuccessRate,
	})
	_ = m.store.AppendAudit(AuditEvent{
		Timestamp: nowRFC3339(),
		RunID:     queued.RunID,
		ActorType: queued.CreatorType,
		ActorSub:  queued.Creator.Subject,
		Action:    "run.completed",
		Result:    status,
	})
	if m.obs != nil {
		m.obs.MarkRun(context.Background(), status)
	}
}

// perfFromDocument denormalizes the headline numbers a run listing
// needs, so readers do not have to walk the full report.
func perfFromDocument(doc harness.Document) PerfSnapshot {
	out := PerfSnapshot{
		SuccessRate:   doc.Summary.SuccessRate,
		AvgElapsedSec: doc.Summary.AvgElapsedSeconds,
		MaxMemoryMB:   doc.Summary.MaxMemoryMB,
	}
	for _, result := range doc.Summary.Results {
		if result.Name != "perf" || !result.Succeeded {
			continue
		}
		var total float64
		count := 0
		for _, value := range result.Payload {
			bucket, ok := value.(map[string]any)
			if !ok {
				continue
			}
			if factor, ok := toFloat(bucket["realtime_factor"]); ok {
				total += factor
				count++
			}
		}
		if count > 0 {
			out.RealtimeFactor = total / float64(count)
		}
	}
	return out
}

func scenarioToRunRequest(input QuickTestRequest, cfg ServerConfig) (RunRequest, error) {
	scenario := strings.ToLower(strings.TrimSpace(input.ScenarioID))
	device, err := tts.ResolveDevice(input.Device)
	if err != nil {
		return RunRequest{}, err
	}
	base := RunRequest{
		Device:     device,
		TimeoutSec: cfg.Engine.DefaultTimeoutSec,
	}
	switch scenario {
	case "smoke":
		base.Checks = []string{"load", "basic"}
	case "full":
		base.Checks = harness.DefaultCheckOrder()
	case "perf":
		base.Checks = []string{"load", "perf", "sequential", "memory"}
	case "stability":
		base.Checks = []string{"load", "sequential", "repeat", "edge"}
	default:
		return RunRequest{}, errors.New("unsupported scenario_id")
	}
	return base, nil
}

// buildDryRunDocument fabricates a passing report without touching the
// engine, so the queue and event plumbing can be exercised cheaply.
func buildDryRunDocument(request RunRequest) harness.Document {
	selected := request.Checks
	if len(selected) == 0 {
		selected = harness.DefaultCheckOrder()
	}
	results := make([]harness.CheckResult, 0, len(selected))
	for _, name := range selected {
		results = append(results, harness.CheckResult{
			Name:       name,
			Succeeded:  true,
			ElapsedSec: 0.02,
			Payload:    map[string]any{"dry_run": true},
		})
	}
	doc := harness.NewDocument(request.Device, harness.Summarize(results))
	return doc
}

func randomID(prefix string) (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return prefix + "_" + hex.EncodeToString(b), nil
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	default:
		return 0, false
	}
}

type ipRateLimiter struct {
	mu      sync.Mutex
	rpm     int
	records map[string][]time.Time
}

func newIPRateLimiter(rpm int) *ipRateLimiter {
	if rpm <= 0 {
		rpm = 6
	}
	return &ipRateLimiter{
		rpm:     rpm,
		records: map[string][]time.Time{},
	}
}

func (l *ipRateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if strings.TrimSpace(key) == "" {
		key = "unknown"
	}
	now := time.Now()
	cutoff := now.Add(-1 * time.Minute)
	items := l.records[key]
	items = filterRecentTime(items, cutoff)
	if len(items) >= l.rpm {
		l.records[key] = items
		return false
	}
	items = append(items, now)
	l.records[key] = items
	return true
}

func filterRecentTime(items []time.Time, cutoff time.Time) []time.Time {
	if len(items) == 0 {
		return items
	}
	out := items[:0]
	for _, item := range items {
		if item.After(cutoff) {
			out = append(out, item)
		}
	}
	return out
}

func hashString(input string) string {
	sum := sha256Sum(input)
	return sum[:16]
}

func sha256Sum(input string) string {
	hash := sha256.New()
	_, _ = hash.Write([]byte(input))
	return hex.EncodeToString(hash.Sum(nil))
}
