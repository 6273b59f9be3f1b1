package runtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/loqalabs/vocalforge/internal/config"
	"github.com/loqalabs/vocalforge/internal/protocol"
	"github.com/loqalabs/vocalforge/internal/speech"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig(t *testing.T) config.Config {
	cfg := config.Default()
	cfg.Speech.Mode = "mock"
	cfg.Storage.Driver = "sqlite"
	cfg.Storage.Path = filepath.Join(t.TempDir(), "history.db")
	cfg.Telemetry.PrometheusBind = ""
	return cfg
}

func buildRuntime(t *testing.T, cfg config.Config) (*Runtime, *httptest.Server) {
	t.Helper()
	r := New(cfg, newLogger())
	if err := r.build(context.Background()); err != nil {
		t.Fatalf("build runtime: %v", err)
	}
	r.ready.Store(true)
	srv := httptest.NewServer(r.handler)
	t.Cleanup(func() {
		srv.Close()
		r.teardown()
	})
	return r, srv
}

func postSpeech(t *testing.T, base, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(base+"/api/speech", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post speech: %v", err)
	}
	return resp
}

func TestRuntimeServesStudio(t *testing.T) {
	_, srv := buildRuntime(t, testConfig(t))

	resp, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected ready, got %d", resp.StatusCode)
	}

	resp = postSpeech(t, srv.URL, `{"text":"Hello world","voiceId":"Kore"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
}

func TestHistorySurvivesRestart(t *testing.T) {
	cfg := testConfig(t)

	r, srv := buildRuntime(t, cfg)
	resp := postSpeech(t, srv.URL, `{"text":"remember me"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	srv.Close()
	r.teardown()

	_, srv2 := buildRuntime(t, cfg)
	resp, err := http.Get(srv2.URL + "/api/history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Records []struct {
			Text string `json:"text"`
		} `json:"records"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(body.Records) != 1 || body.Records[0].Text != "remember me" {
		t.Fatalf("expected the record to survive a restart, got %+v", body.Records)
	}
}

func TestMissingCredentialKeepsRunning(t *testing.T) {
	cfg := testConfig(t)
	cfg.Speech.Mode = "gemini"
	cfg.Speech.APIKey = ""

	_, srv := buildRuntime(t, cfg)
	resp := postSpeech(t, srv.URL, `{"text":"hi"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
	var body struct {
		Kind string `json:"kind"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Kind != string(speech.KindConfiguration) {
		t.Fatalf("expected kind %q, got %q", speech.KindConfiguration, body.Kind)
	}
}

func TestEmbeddedBusServesSpeechAndStoresHistory(t *testing.T) {
	cfg := testConfig(t)
	cfg.Bus.Enabled = true
	cfg.Bus.Embedded = true
	cfg.Bus.Port = -1
	cfg.Bus.StoreDir = t.TempDir()
	cfg.Storage.Driver = "nats"
	cfg.Storage.Bucket = "vocalforge"
	cfg.Speech.ServeOnBus = true

	r, srv := buildRuntime(t, cfg)
	if r.bus == nil {
		t.Fatal("expected a bus client")
	}
	if got := r.bus.Conn().MaxPayload(); got != int64(cfg.Bus.MaxPayload) {
		t.Fatalf("expected max payload %d, got %d", cfg.Bus.MaxPayload, got)
	}

	var reply protocol.SpeechReply
	if err := r.bus.RequestJSON(context.Background(), protocol.SubjectSpeechRequest, protocol.SpeechRequest{RequestID: "r1", Text: "over the bus", Voice: "Puck"}, &reply); err != nil {
		t.Fatalf("bus request: %v", err)
	}
	if reply.Error != "" || reply.WAVBase64 == "" {
		t.Fatalf("unexpected reply %+v", reply)
	}

	resp := postSpeech(t, srv.URL, `{"text":"stored in jetstream"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if _, err := r.kv.Get(context.Background(), cfg.History.Key); err != nil {
		t.Fatalf("expected history in jetstream: %v", err)
	}
}

func TestSetupTelemetryProvidesMetricsHandler(t *testing.T) {
	shutdown, handler, err := setupTelemetry(config.Default(), newLogger())
	if err != nil {
		t.Fatalf("setup telemetry: %v", err)
	}
	t.Cleanup(func() { _ = shutdown(context.Background()) })
	if handler == nil {
		t.Fatal("expected a metrics handler")
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
