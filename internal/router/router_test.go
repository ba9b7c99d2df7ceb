package router_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"flowbar/backend/internal/app"
	"flowbar/backend/internal/clock"
	"flowbar/backend/internal/config"
	"flowbar/backend/internal/testutil"
)

type timerEnvelope struct {
	Success        bool   `json:"success"`
	Error          string `json:"error"`
	Code           string `json:"code"`
	TimeLeft       int    `json:"timeLeft"`
	TimerState     string `json:"timerState"`
	ElapsedSeconds *int   `json:"elapsedSeconds"`
}

type decisionEnvelope struct {
	Success  bool `json:"success"`
	Decision struct {
		Action      string `json:"action"`
		RedirectURL string `json:"redirectUrl"`
		Reason      string `json:"reason"`
	} `json:"decision"`
}

type errorEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

type testServer struct {
	handler http.Handler
	clock   *clock.Fake
}

func TestTimerControlOverHTTP(t *testing.T) {
	server := setupTestEngine(t, config.Default())

	status, raw := requestJSON(t, server.handler, http.MethodPost, "/api/timer/start", "", nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 on start, got %d: %s", status, raw)
	}
	started := decodeTimer(t, raw)
	if started.TimerState != "focus" || started.TimeLeft != 1500 {
		t.Fatalf("unexpected start response: %+v", started)
	}

	status, raw = requestJSON(t, server.handler, http.MethodPost, "/api/timer/start", "", nil)
	if status != http.StatusConflict {
		t.Fatalf("expected 409 on second start, got %d", status)
	}
	if rejected := decodeTimer(t, raw); rejected.Success || rejected.Code != "timer_running" {
		t.Fatalf("unexpected rejection: %+v", rejected)
	}

	server.clock.Advance(60 * time.Second)
	status, raw = requestJSON(t, server.handler, http.MethodGet, "/api/timer", "", nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 on info, got %d", status)
	}
	if info := decodeTimer(t, raw); info.TimeLeft != 1440 {
		t.Fatalf("expected 1440s left, got %d", info.TimeLeft)
	}

	status, raw = requestJSON(t, server.handler, http.MethodPost, "/api/timer/stop", "", nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 on stop, got %d", status)
	}
	stopped := decodeTimer(t, raw)
	if stopped.ElapsedSeconds == nil || *stopped.ElapsedSeconds != 60 {
		t.Fatalf("expected 60s elapsed, got %+v", stopped.ElapsedSeconds)
	}
	if stopped.TimerState != "stopped" {
		t.Fatalf("expected stopped, got %s", stopped.TimerState)
	}
}

func TestMessagesEndpoint(t *testing.T) {
	server := setupTestEngine(t, config.Default())

	status, raw := requestJSON(t, server.handler, http.MethodPost, "/api/messages", "", map[string]string{"action": "toggleTimer"})
	if status != http.StatusOK {
		t.Fatalf("expected 200 on toggle, got %d: %s", status, raw)
	}
	if toggled := decodeTimer(t, raw); toggled.TimerState != "focus" {
		t.Fatalf("expected toggle to start focus, got %s", toggled.TimerState)
	}

	status, raw = requestJSON(t, server.handler, http.MethodPost, "/api/messages", "", map[string]string{"action": "launchRocket"})
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown action, got %d", status)
	}
	if body := decodeError(t, raw); body.Success || body.Code != "unknown_action" {
		t.Fatalf("unexpected error body: %+v", body)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	server.handler.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", recorder.Code)
	}
	if body := decodeError(t, recorder.Body.Bytes()); body.Code != "invalid_json" {
		t.Fatalf("expected invalid_json, got %s", body.Code)
	}
}

func TestDistractionGateOverHTTP(t *testing.T) {
	server := setupTestEngine(t, config.Default())

	status, raw := requestJSON(t, server.handler, http.MethodPut, "/api/settings", "", map[string]interface{}{
		"focusDuration":    1500,
		"breakDuration":    300,
		"distractionSites": "youtube.com, reddit.com",
	})
	if status != http.StatusOK {
		t.Fatalf("expected 200 on settings update, got %d: %s", status, raw)
	}

	navigate := func() decisionEnvelope {
		t.Helper()
		status, raw := requestJSON(t, server.handler, http.MethodPost, "/api/platform/navigation", "", map[string]interface{}{
			"tabId": 7, "frameId": 0, "url": "https://www.youtube.com/watch?v=1",
		})
		if status != http.StatusOK {
			t.Fatalf("expected 200 on navigation, got %d: %s", status, raw)
		}
		var decision decisionEnvelope
		if err := json.Unmarshal(raw, &decision); err != nil {
			t.Fatalf("unmarshal decision: %v", err)
		}
		return decision
	}

	if decision := navigate(); decision.Decision.Action != "allow" {
		t.Fatalf("expected allow outside focus, got %+v", decision.Decision)
	}

	requestJSON(t, server.handler, http.MethodPost, "/api/timer/start", "", nil)
	decision := navigate()
	if decision.Decision.Action != "redirect" || !strings.Contains(decision.Decision.RedirectURL, "site=www.youtube.com") {
		t.Fatalf("expected redirect during focus, got %+v", decision.Decision)
	}

	status, raw = requestJSON(t, server.handler, http.MethodGet, "/api/gate/target?site=www.youtube.com", "", nil)
	if status != http.StatusOK || !strings.Contains(string(raw), `"target":"https://www.youtube.com"`) {
		t.Fatalf("unexpected target response %d: %s", status, raw)
	}

	status, raw = requestJSON(t, server.handler, http.MethodPost, "/api/gate/allow", "", map[string]string{"site": "www.youtube.com"})
	if status != http.StatusOK {
		t.Fatalf("expected 200 on allow, got %d: %s", status, raw)
	}
	if decision := navigate(); decision.Decision.Action != "allow" || decision.Decision.Reason != "temporary_access" {
		t.Fatalf("expected grant to allow navigation, got %+v", decision.Decision)
	}

	status, raw = requestJSON(t, server.handler, http.MethodGet, "/api/gate/grants", "", nil)
	if status != http.StatusOK || !strings.Contains(string(raw), `"domain":"youtube.com"`) {
		t.Fatalf("unexpected grants response %d: %s", status, raw)
	}

	server.clock.Advance(61 * time.Second)
	if decision := navigate(); decision.Decision.Action != "redirect" {
		t.Fatalf("expected redirect after grant expiry, got %+v", decision.Decision)
	}
}

func TestSettingsValidationOverHTTP(t *testing.T) {
	server := setupTestEngine(t, config.Default())

	status, raw := requestJSON(t, server.handler, http.MethodPut, "/api/settings", "", map[string]int{
		"focusDuration": 10,
		"breakDuration": 300,
	})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for short focus, got %d", status)
	}
	if body := decodeError(t, raw); body.Success || body.Code == "" || body.Error == "" {
		t.Fatalf("unexpected error body: %+v", body)
	}

	status, _ = requestJSON(t, server.handler, http.MethodPut, "/api/settings/theme", "", map[string]string{"theme": "sepia"})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown theme, got %d", status)
	}

	status, raw = requestJSON(t, server.handler, http.MethodPost, "/api/platform/installed", "", map[string]string{"reason": "install"})
	if status != http.StatusOK {
		t.Fatalf("expected 200 on installed, got %d: %s", status, raw)
	}
	status, raw = requestJSON(t, server.handler, http.MethodPost, "/api/settings/first-install", "", nil)
	if status != http.StatusOK || !strings.Contains(string(raw), `"firstInstall":true`) {
		t.Fatalf("expected first install flag, got %d: %s", status, raw)
	}
	_, raw = requestJSON(t, server.handler, http.MethodPost, "/api/settings/first-install", "", nil)
	if !strings.Contains(string(raw), `"firstInstall":false`) {
		t.Fatalf("expected flag to be cleared, got %s", raw)
	}
}

func TestTrackingSummaryOverHTTP(t *testing.T) {
	server := setupTestEngine(t, config.Default())

	requestJSON(t, server.handler, http.MethodPost, "/api/platform/tab-activated", "", map[string]interface{}{
		"tabId": 1, "url": "https://github.com/golang/go",
	})
	requestJSON(t, server.handler, http.MethodPost, "/api/timer/start", "", nil)
	server.clock.Advance(60 * time.Second)

	status, raw := requestJSON(t, server.handler, http.MethodGet, "/api/tracking/summary?domain=github.com", "", nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 on summary, got %d: %s", status, raw)
	}
	var body struct {
		Summary struct {
			DomainSeconds int    `json:"domainSeconds"`
			OpenSession   bool   `json:"openSession"`
			Grade         string `json:"grade"`
		} `json:"summary"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("unmarshal summary: %v", err)
	}
	if body.Summary.DomainSeconds != 60 || !body.Summary.OpenSession {
		t.Fatalf("unexpected summary: %+v", body.Summary)
	}

	status, _ = requestJSON(t, server.handler, http.MethodGet, "/api/tracking/summary", "", nil)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 without domain, got %d", status)
	}

	status, raw = requestJSON(t, server.handler, http.MethodGet, "/api/tracking", "", nil)
	if status != http.StatusOK || !strings.Contains(string(raw), `"sessionHistory"`) {
		t.Fatalf("unexpected tracking response %d: %s", status, raw)
	}
}

func TestPairingGuardsAPI(t *testing.T) {
	cfg := config.Default()
	cfg.PairingSecret = "correct horse"
	cfg.JWTSecret = "test-secret"
	server := setupTestEngine(t, cfg)

	status, _ := requestJSON(t, server.handler, http.MethodGet, "/api/timer", "", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", status)
	}

	status, _ = requestJSON(t, server.handler, http.MethodPost, "/api/auth/pair", "", map[string]string{
		"client": "popup", "secret": "wrong",
	})
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong secret, got %d", status)
	}

	status, raw := requestJSON(t, server.handler, http.MethodPost, "/api/auth/pair", "", map[string]string{
		"client": "popup", "secret": "correct horse",
	})
	if status != http.StatusCreated {
		t.Fatalf("expected 201 on pair, got %d: %s", status, raw)
	}
	var paired struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(raw, &paired); err != nil {
		t.Fatalf("unmarshal pair response: %v", err)
	}
	if paired.Token == "" {
		t.Fatal("expected a token")
	}

	status, _ = requestJSON(t, server.handler, http.MethodGet, "/api/timer", paired.Token, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", status)
	}
	status, _ = requestJSON(t, server.handler, http.MethodGet, "/api/timer?access_token="+paired.Token, "", nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 with query token, got %d", status)
	}

	status, _ = requestJSON(t, server.handler, http.MethodGet, "/health", "", nil)
	if status != http.StatusOK {
		t.Fatalf("expected health to stay open, got %d", status)
	}
}

func TestCORSPreflight(t *testing.T) {
	server := setupTestEngine(t, config.Default())
	req := httptest.NewRequest(http.MethodOptions, "/api/messages", nil)
	req.Header.Set("Origin", "chrome-extension://abcdefghijklmnop")
	req.Header.Set("Access-Control-Request-Method", "POST")
	recorder := httptest.NewRecorder()

	server.handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", recorder.Code)
	}
	if recorder.Header().Get("Access-Control-Allow-Origin") != "chrome-extension://abcdefghijklmnop" {
		t.Fatalf("unexpected allow-origin header: %s", recorder.Header().Get("Access-Control-Allow-Origin"))
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/messages", nil)
	req.Header.Set("Origin", "https://evil.example")
	recorder = httptest.NewRecorder()
	server.handler.ServeHTTP(recorder, req)
	if recorder.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unexpected allow-origin for foreign origin: %s", recorder.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestStreamDeliversEffects(t *testing.T) {
	server := setupTestEngine(t, config.Default())
	httpServer := httptest.NewServer(server.handler)
	t.Cleanup(httpServer.Close)

	requestJSON(t, server.handler, http.MethodPost, "/api/timer/start", "", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, httpServer.URL+"/api/stream", nil)
	if err != nil {
		t.Fatalf("build stream request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()

	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		t.Fatalf("unexpected content type: %s", resp.Header.Get("Content-Type"))
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data:") && strings.Contains(line, `"kind":"border"`) {
			if !strings.Contains(line, `"state":"focus"`) {
				t.Fatalf("expected focus border, got %s", line)
			}
			return
		}
	}
	t.Fatalf("stream ended without a border effect: %v", scanner.Err())
}

func setupTestEngine(t *testing.T, cfg config.Config) testServer {
	t.Helper()

	fake := clock.NewFake(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	daemon, err := app.New(cfg, testutil.OpenDB(t), fake, nil)
	if err != nil {
		t.Fatalf("build app: %v", err)
	}
	t.Cleanup(daemon.Close)

	return testServer{handler: daemon.Engine, clock: fake}
}

func requestJSON(t *testing.T, server http.Handler, method, path, token string, body interface{}) (int, []byte) {
	t.Helper()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, req)
	return recorder.Code, recorder.Body.Bytes()
}

func decodeTimer(t *testing.T, raw []byte) timerEnvelope {
	t.Helper()
	var envelope timerEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		t.Fatalf("unmarshal timer response: %v", err)
	}
	return envelope
}

func decodeError(t *testing.T, raw []byte) errorEnvelope {
	t.Helper()
	var envelope errorEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		t.Fatalf("unmarshal error response: %v", err)
	}
	return envelope
}
