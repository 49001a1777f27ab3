package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"real-tts/internal/audio"
	"real-tts/internal/harness"
	"real-tts/internal/tts"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// maxVoiceUploadBytes bounds the reference clip accepted by
// generate-with-voice.
const maxVoiceUploadBytes = 10 << 20

type API struct {
	cfg      ServerConfig
	auth     *Auth
	store    Store
	runner   RunnerService
	pool     *EnginePool
	obs      *Observability
	genLimit *ipRateLimiter
}

func NewAPI(cfg ServerConfig, auth *Auth, store Store, runner RunnerService, pool *EnginePool, obs *Observability) *API {
	return &API{
		cfg:      cfg,
		auth:     auth,
		store:    store,
		runner:   runner,
		pool:     pool,
		obs:      obs,
		genLimit: newIPRateLimiter(cfg.Engine.GenerateRPM),
	}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", a.handleHealthz)

	mux.HandleFunc("POST /api/v1/auth/login", a.auth.HandleLogin)
	mux.HandleFunc("POST /api/v1/auth/logout", a.auth.HandleLogout)
	mux.HandleFunc("GET /api/v1/auth/me", a.auth.HandleMe)

	mux.Handle("POST /api/v1/admin/runs", a.auth.RequireAdmin(http.HandlerFunc(a.handleAdminCreateRun)))
	mux.Handle("GET /api/v1/admin/runs/{id}", a.auth.RequireAdmin(http.HandlerFunc(a.handleAdminGetRun)))
	mux.Handle("GET /api/v1/admin/runs/{id}/events", a.auth.RequireAdmin(http.HandlerFunc(a.handleAdminGetRunEventsSSE)))
	mux.Handle("GET /api/v1/admin/metrics/overview", a.auth.RequireAdmin(http.HandlerFunc(a.handleAdminOverview)))
	mux.Handle("GET /api/v1/admin/audit", a.auth.RequireAdmin(http.HandlerFunc(a.handleAdminAudit)))
	mux.Handle("GET /api/v1/admin/runs", a.auth.RequireAdmin(http.HandlerFunc(a.handleAdminListRuns)))
	mux.Handle("GET /api/v1/admin/engines", a.auth.RequireAdmin(http.HandlerFunc(a.handleAdminEngines)))

	mux.HandleFunc("POST /api/v1/user/quick-test", a.handleUserQuickTest)
	mux.HandleFunc("GET /api/v1/user/quick-test/{id}", a.handleUserGetQuickTest)
	mux.Handle("GET /api/v1/user/my-runs", a.auth.Require(http.HandlerFunc(a.handleUserMyRuns)))

	mux.HandleFunc("POST /api/v1/tts/generate", a.handleGenerate)
	mux.HandleFunc("POST /api/v1/tts/generate-with-voice", a.handleGenerateWithVoice)

	wrapped := otelhttp.NewHandler(mux, "harness-api-http")
	return withCORS(wrapped)
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"time": nowRFC3339(),
	})
}

func (a *API) handleAdminCreateRun(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("harness-api").Start(r.Context(), "admin.create_run")
	defer span.End()
	principal, _ := PrincipalFromContext(ctx)
	var req RunRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	meta, err := a.runner.CreateAdminRun(req, principal, "admin.manual")
	if err != nil {
		span.RecordError(err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id": meta.RunID,
		"status": meta.Status,
	})
}

func (a *API) handleAdminGetRun(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing run id")
		return
	}
	meta, ok := a.store.GetRun(id)
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (a *API) handleAdminListRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"runs": a.store.ListRuns(100),
	})
}

func (a *API) handleAdminEngines(w http.ResponseWriter, r *http.Request) {
	engines := []map[string]any{}
	if a.pool != nil {
		engines = a.pool.Status()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"engines": engines,
	})
}

func (a *API) handleAdminGetRunEventsSSE(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing run id")
		return
	}
	if _, ok := a.store.GetRun(id); !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	cursor := parseCursor(r)
	send := func(events []RunEvent) {
		for _, event := range events {
			payload, marshalErr := json.Marshal(event)
			if marshalErr != nil {
				continue
			}
			fmt.Fprintf(w, "event: run_event\n")
			fmt.Fprintf(w, "data: %s\n\n", payload)
			cursor = event.Seq
		}
		flusher.Flush()
	}
	send(a.store.ListRunEvents(id, cursor))

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			events := a.store.ListRunEvents(id, cursor)
			if len(events) > 0 {
				send(events)
			} else {
				_, _ = fmt.Fprint(w, ": ping\n\n")
				flusher.Flush()
			}
		}
	}
}

func (a *API) handleAdminOverview(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.store.GetMetricsOverview())
}

func (a *API) handleAdminAudit(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"audit": a.store.ListAudit(200),
	})
}

func (a *API) handleUserQuickTest(w http.ResponseWriter, r *http.Request) {
	_, span := otel.Tracer("harness-api").Start(r.Context(), "user.quick_test")
	defer span.End()
	var req QuickTestRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	ipHash, uaHash := actorHashes(r)
	// optional: attach user identity if logged in
	principal, _ := a.auth.AuthenticateRequest(r)
	span.SetAttributes(
		attribute.String("actor.type", "user"),
		attribute.String("scenario.id", req.ScenarioID),
	)
	meta, err := a.runner.CreateQuickTest(req, ipHash, uaHash)
	if err != nil {
		span.RecordError(err)
		writeError(w, http.StatusTooManyRequests, err.Error())
		return
	}
	// link run to logged-in user
	if principal.Subject != "" {
		_, _ = a.store.UpdateRun(meta.RunID, func(m *RunMeta) {
			m.CreatorSub = principal.Subject
		})
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id": meta.RunID,
		"status": meta.Status,
	})
}

func (a *API) handleUserMyRuns(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	runs := a.store.ListRunsByCreator(principal.Subject, 50)
	// return deidentified view
	out := make([]map[string]any, 0, len(runs))
	for _, m := range runs {
		entry := map[string]any{
			"run_id":     m.RunID,
			"status":     m.Status,
			"device":     m.Request.Device,
			"created_at": m.CreatedAt,
			"perf": map[string]any{
				"success_rate":    m.Perf.SuccessRate,
				"realtime_factor": m.Perf.RealtimeFactor,
			},
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": out})
}

func (a *API) handleUserGetQuickTest(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing run id")
		return
	}
	meta, ok := a.store.GetRun(id)
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	view := map[string]any{
		"run_id":      meta.RunID,
		"status":      meta.Status,
		"created_at":  meta.CreatedAt,
		"started_at":  meta.StartedAt,
		"finished_at": meta.FinishedAt,
		"perf": map[string]any{
			"success_rate":    meta.Perf.SuccessRate,
			"avg_elapsed_sec": meta.Perf.AvgElapsedSec,
			"realtime_factor": meta.Perf.RealtimeFactor,
		},
	}
	if meta.Report != nil {
		view["summary"] = summarizeReportForUser(*meta.Report)
	}
	writeJSON(w, http.StatusOK, view)
}

// handleGenerate runs one synthesis call and answers with the encoded
// waveform. The sample rate travels in a response header so clients can
// play the raw body without parsing it.
func (a *API) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("harness-api").Start(r.Context(), "tts.generate")
	defer span.End()

	ipHash, _ := actorHashes(r)
	if !a.genLimit.Allow(ipHash) {
		if a.obs != nil {
			a.obs.MarkRejected(ctx, "generate_rate_limit")
		}
		writeError(w, http.StatusTooManyRequests, "generate rate limit reached")
		return
	}

	var req GenerateRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	text, err := sanitizeGenerateText(req.Text, a.cfg.Engine.MaxGenerateChars)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	params := tts.Params{}
	if req.Exaggeration != nil {
		if *req.Exaggeration < 0.25 || *req.Exaggeration > 2.0 {
			writeError(w, http.StatusBadRequest, "exaggeration must be between 0.25 and 2.0")
			return
		}
		params.Exaggeration = req.Exaggeration
	}
	if req.CFGWeight != nil {
		if *req.CFGWeight < 0 || *req.CFGWeight > 1 {
			writeError(w, http.StatusBadRequest, "cfg_weight must be between 0.0 and 1.0")
			return
		}
		params.CFGWeight = req.CFGWeight
	}

	a.synthesizeWAV(ctx, span, w, text, params, "tts_output.wav")
}

// handleGenerateWithVoice is the multipart variant of generate: the
// caller uploads a reference voice clip that steers this one call. The
// upload lands in a temp file removed once synthesis finishes.
func (a *API) handleGenerateWithVoice(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("harness-api").Start(r.Context(), "tts.generate_with_voice")
	defer span.End()

	ipHash, _ := actorHashes(r)
	if !a.genLimit.Allow(ipHash) {
		if a.obs != nil {
			a.obs.MarkRejected(ctx, "generate_rate_limit")
		}
		writeError(w, http.StatusTooManyRequests, "generate rate limit reached")
		return
	}

	if err := r.ParseMultipartForm(maxVoiceUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	text, err := sanitizeGenerateText(r.FormValue("text"), a.cfg.Engine.MaxGenerateChars)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	params := tts.Params{}
	if raw := strings.TrimSpace(r.FormValue("exaggeration")); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0.25 || v > 2.0 {
			writeError(w, http.StatusBadRequest, "exaggeration must be between 0.25 and 2.0")
			return
		}
		params.Exaggeration = &v
	}
	if raw := strings.TrimSpace(r.FormValue("cfg_weight")); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > 1 {
			writeError(w, http.StatusBadRequest, "cfg_weight must be between 0.0 and 1.0")
			return
		}
		params.CFGWeight = &v
	}

	voice, header, err := r.FormFile("voice_file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "voice_file upload is required")
		return
	}
	defer voice.Close()
	if !strings.HasPrefix(header.Header.Get("Content-Type"), "audio/") {
		writeError(w, http.StatusBadRequest, "voice_file must be an audio file")
		return
	}
	tmp, err := os.CreateTemp("", "voice_ref_*.wav")
	if err != nil {
		span.RecordError(err)
		writeError(w, http.StatusInternalServerError, "store voice reference: "+err.Error())
		return
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, voice); err != nil {
		_ = tmp.Close()
		span.RecordError(err)
		writeError(w, http.StatusInternalServerError, "store voice reference: "+err.Error())
		return
	}
	_ = tmp.Close()
	params.VoicePath = tmp.Name()

	a.synthesizeWAV(ctx, span, w, text, params, "tts_output_with_voice.wav")
}

// synthesizeWAV runs one generation call against a leased engine and
// answers with the encoded waveform.
func (a *API) synthesizeWAV(ctx context.Context, span trace.Span, w http.ResponseWriter, text string, params tts.Params, filename string) {
	lease, err := a.pool.Acquire(ctx, "")
	if err != nil {
		span.RecordError(err)
		if a.obs != nil {
			a.obs.MarkGenerate(ctx, "error", -1)
		}
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	defer a.pool.Release(lease)

	start := time.Now()
	clip, err := lease.Engine.Synthesize(ctx, tts.Request{Text: text, Params: params})
	elapsedMS := time.Since(start).Milliseconds()
	if err != nil {
		span.RecordError(err)
		if a.obs != nil {
			a.obs.MarkGenerate(ctx, "error", elapsedMS)
		}
		writeError(w, http.StatusInternalServerError, "synthesis failed: "+err.Error())
		return
	}
	data, err := audio.EncodeWAV(clip.Samples, clip.SampleRate)
	if err != nil {
		span.RecordError(err)
		if a.obs != nil {
			a.obs.MarkGenerate(ctx, "error", elapsedMS)
		}
		writeError(w, http.StatusInternalServerError, "encode failed: "+err.Error())
		return
	}
	if a.obs != nil {
		a.obs.MarkGenerate(ctx, "ok", elapsedMS)
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("X-Sample-Rate", strconv.Itoa(clip.SampleRate))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func summarizeReportForUser(doc harness.Document) map[string]any {
	data := map[string]any{
		"pass":         doc.Summary.Succeeded,
		"fail":         doc.Summary.Failed,
		"success_rate": doc.Summary.SuccessRate,
	}
	highlights := make([]map[string]any, 0, len(doc.Summary.Results))
	for _, result := range doc.Summary.Results {
		if result.Failure == nil {
			continue
		}
		highlights = append(highlights, map[string]any{
			"check":   result.Name,
			"kind":    result.Failure.Kind,
			"message": result.Failure.Message,
		})
	}
	data["highlights"] = highlights
	return data
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Admin-Token")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func actorHashes(r *http.Request) (string, string) {
	ip, _, _ := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if ip == "" {
		ip = strings.TrimSpace(r.RemoteAddr)
	}
	return hashString(ip), hashString(r.UserAgent())
}
