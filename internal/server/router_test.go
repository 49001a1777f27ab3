package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"real-tts/internal/audio"
	"real-tts/internal/tts"
)

type fakeRunner struct{}

func (f fakeRunner) CreateAdminRun(request RunRequest, principal Principal, source string) (RunMeta, error) {
	return RunMeta{
		RunID:      "run_fake_admin",
		Status:     "queued",
		CreatorSub: principal.Subject,
		Request:    request,
		CreatedAt:  nowRFC3339(),
	}, nil
}

func (f fakeRunner) CreateQuickTest(request QuickTestRequest, ipHash, uaHash string) (RunMeta, error) {
	return RunMeta{
		RunID:     "run_fake_user",
		Status:    "queued",
		Request:   RunRequest{Device: request.Device},
		CreatedAt: nowRFC3339(),
	}, nil
}

// stubBackend emits one sample per input byte at 16kHz.
type stubBackend struct{}

func (stubBackend) Synthesize(ctx context.Context, text string, params tts.Params) ([]float32, int, error) {
	samples := make([]float32, len(text))
	for i := range samples {
		samples[i] = 0.1
	}
	return samples, 16000, nil
}

func (stubBackend) Close() error { return nil }

func testAPI(t *testing.T) (*API, *MemoryFileStore) {
	t.Helper()
	store, err := NewMemoryFileStore("")
	if err != nil {
		t.Fatalf("NewMemoryFileStore: %v", err)
	}
	cfg := DefaultServerConfig()
	cfg.Security.AdminToken = "secret-token"
	auth := NewAuth(nil, cfg)
	pool := NewEnginePool(cfg.Engine)
	pool.loadFn = func(ctx context.Context, device string) (*tts.Engine, error) {
		return tts.NewEngine(stubBackend{}, 16000, device, nil, map[string]string{"backend": "stub"}), nil
	}
	return NewAPI(cfg, auth, store, fakeRunner{}, pool, nil), store
}

func TestRouterHealthz(t *testing.T) {
	api, _ := testAPI(t)
	server := httptest.NewServer(api.Handler())
	defer server.Close()

	response, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz failed: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", response.StatusCode)
	}
}

func TestRouterAdminAuthAndRun(t *testing.T) {
	api, _ := testAPI(t)
	server := httptest.NewServer(api.Handler())
	defer server.Close()

	body := map[string]any{
		"device": "cpu",
		"check":  []string{"load", "basic"},
	}
	rawBody, _ := json.Marshal(body)

	req, _ := http.NewRequest(http.MethodPost, server.URL+"/api/v1/admin/runs", bytes.NewReader(rawBody))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("admin create without auth failed: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	req2, _ := http.NewRequest(http.MethodPost, server.URL+"/api/v1/admin/runs", bytes.NewReader(rawBody))
	req2.Header.Set("Content-Type", "application/json")
	req2.Header.Set("X-Admin-Token", "secret-token")
	resp2, err := http.DefaultClient.Do(req2)
	if err != nil {
		t.Fatalf("admin create with token failed: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp2.StatusCode)
	}
}

func TestRouterQuickTest(t *testing.T) {
	api, _ := testAPI(t)
	server := httptest.NewServer(api.Handler())
	defer server.Close()

	body := map[string]any{
		"scenario_id": "smoke",
		"device":      "cpu",
	}
	rawBody, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, server.URL+"/api/v1/user/quick-test", bytes.NewReader(rawBody))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("quick test request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
}

func TestRouterGenerateReturnsWAV(t *testing.T) {
	api, _ := testAPI(t)
	server := httptest.NewServer(api.Handler())
	defer server.Close()

	body := map[string]any{
		"text":         "Hello from the harness.",
		"exaggeration": 0.5,
		"cfg_weight":   0.5,
	}
	rawBody, _ := json.Marshal(body)
	resp, err := http.Post(server.URL+"/api/v1/tts/generate", "application/json", bytes.NewReader(rawBody))
	if err != nil {
		t.Fatalf("generate request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, raw)
	}
	if got := resp.Header.Get("X-Sample-Rate"); got != "16000" {
		t.Fatalf("expected X-Sample-Rate 16000, got %q", got)
	}
	if got := resp.Header.Get("Content-Type"); got != "audio/wav" {
		t.Fatalf("expected audio/wav, got %q", got)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	samples, rate, err := audio.DecodeWAV(raw)
	if err != nil {
		t.Fatalf("response body is not a WAV: %v", err)
	}
	if rate != 16000 {
		t.Fatalf("expected 16000 Hz, got %d", rate)
	}
	if len(samples) != len("Hello from the harness.") {
		t.Fatalf("unexpected sample count %d", len(samples))
	}
}

func TestRouterGenerateValidation(t *testing.T) {
	api, _ := testAPI(t)
	server := httptest.NewServer(api.Handler())
	defer server.Close()

	post := func(body map[string]any) int {
		rawBody, _ := json.Marshal(body)
		resp, err := http.Post(server.URL+"/api/v1/tts/generate", "application/json", bytes.NewReader(rawBody))
		if err != nil {
			t.Fatalf("generate request failed: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if code := post(map[string]any{"text": "   "}); code != http.StatusBadRequest {
		t.Fatalf("empty text: expected 400, got %d", code)
	}
	long := bytes.Repeat([]byte("a"), 301)
	if code := post(map[string]any{"text": string(long)}); code != http.StatusBadRequest {
		t.Fatalf("oversized text: expected 400, got %d", code)
	}
	if code := post(map[string]any{"text": "ok", "exaggeration": 3.0}); code != http.StatusBadRequest {
		t.Fatalf("exaggeration out of range: expected 400, got %d", code)
	}
	if code := post(map[string]any{"text": "ok", "cfg_weight": 1.5}); code != http.StatusBadRequest {
		t.Fatalf("cfg_weight out of range: expected 400, got %d", code)
	}
}

func postVoiceForm(t *testing.T, url string, fields map[string]string, fileType string, fileBody []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := form.WriteField(key, value); err != nil {
			t.Fatalf("write field %s: %v", key, err)
		}
	}
	if fileBody != nil {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", `form-data; name="voice_file"; filename="ref.wav"`)
		header.Set("Content-Type", fileType)
		part, err := form.CreatePart(header)
		if err != nil {
			t.Fatalf("create voice part: %v", err)
		}
		if _, err := part.Write(fileBody); err != nil {
			t.Fatalf("write voice part: %v", err)
		}
	}
	if err := form.Close(); err != nil {
		t.Fatalf("close form: %v", err)
	}
	resp, err := http.Post(url+"/api/v1/tts/generate-with-voice", form.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("generate-with-voice request failed: %v", err)
	}
	return resp
}

func TestRouterGenerateWithVoiceReturnsWAV(t *testing.T) {
	api, _ := testAPI(t)
	server := httptest.NewServer(api.Handler())
	defer server.Close()

	ref, err := audio.EncodeWAV([]float32{0.2, -0.2}, 16000)
	if err != nil {
		t.Fatalf("encode reference clip: %v", err)
	}
	resp := postVoiceForm(t, server.URL, map[string]string{
		"text":         "Custom voice please.",
		"exaggeration": "0.5",
	}, "audio/wav", ref)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, raw)
	}
	if got := resp.Header.Get("Content-Type"); got != "audio/wav" {
		t.Fatalf("expected audio/wav, got %q", got)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if _, _, err := audio.DecodeWAV(raw); err != nil {
		t.Fatalf("response body is not a WAV: %v", err)
	}
}

func TestRouterGenerateWithVoiceValidation(t *testing.T) {
	api, _ := testAPI(t)
	server := httptest.NewServer(api.Handler())
	defer server.Close()

	ref, _ := audio.EncodeWAV([]float32{0.1}, 16000)

	resp := postVoiceForm(t, server.URL, map[string]string{"text": "hi"}, "text/plain", []byte("not audio"))
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("non-audio upload: expected 400, got %d", resp.StatusCode)
	}

	resp = postVoiceForm(t, server.URL, map[string]string{"text": "hi"}, "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing upload: expected 400, got %d", resp.StatusCode)
	}

	resp = postVoiceForm(t, server.URL, map[string]string{"text": "hi", "exaggeration": "3.0"}, "audio/wav", ref)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("exaggeration out of range: expected 400, got %d", resp.StatusCode)
	}
}
