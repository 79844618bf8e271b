package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cueplex/cueplex/internal/encoder"
	"github.com/cueplex/cueplex/internal/events"
	"github.com/cueplex/cueplex/internal/health"
	"github.com/cueplex/cueplex/internal/manifest"
	"github.com/cueplex/cueplex/internal/orchestrator"
	"github.com/cueplex/cueplex/internal/presets"
	"github.com/cueplex/cueplex/internal/scte35"
)

type testEnv struct {
	server *httptest.Server
	orch   *orchestrator.Orchestrator
	outDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	bus := events.New()
	injector := scte35.New(scte35.WithBus(bus))
	monitor := health.NewMonitor(health.WithBus(bus))
	orch := orchestrator.New(injector, monitor, bus,
		[]manifest.Generator{manifest.NewHLS(bus), manifest.NewDASH(bus)},
		orchestrator.WithCommandBuilder(func(p *encoder.Params) string {
			return "sh -c 'echo frame=1; sleep 30'"
		}),
		orchestrator.WithSegmentWatching(false),
		orchestrator.WithProgressSockets(false),
		orchestrator.WithGracefulTimeout(2*time.Second),
	)
	t.Cleanup(orch.Shutdown)

	store := presets.NewStore(t.TempDir() + "/presets.toml")

	srv := NewServer(&Options{
		Orchestrator: orch,
		Injector:     injector,
		Monitor:      monitor,
		Presets:      store,
		Bus:          bus,
	})
	ts := httptest.NewServer(srv.GetMux())
	t.Cleanup(ts.Close)

	return &testEnv{server: ts, orch: orch, outDir: t.TempDir()}
}

func (e *testEnv) request(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	return resp, buf.Bytes()
}

func (e *testEnv) startStream(t *testing.T, name string) {
	t.Helper()
	resp, body := e.request(t, http.MethodPost, "/api/streams", streamConfigBody(name, e.outDir))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create stream: status %d body %s", resp.StatusCode, body)
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		s, err := e.orch.GetStream(name)
		if err == nil && s.Status == orchestrator.StatusActive {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("stream %s never became active", name)
}

func streamConfigBody(name, outDir string) map[string]any {
	return map[string]any{
		"name":               name,
		"input_url":          "srt://0.0.0.0:9000?streamid=" + name,
		"formats":            []string{"hls"},
		"video_bitrate_kbps": 5000,
		"audio_bitrate_kbps": 128,
		"segment_seconds":    4,
		"output_dir":         outDir,
		"scte35":             map[string]any{"enabled": true, "pid": 500},
	}
}

func TestStatusEndpoint(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.request(t, http.MethodGet, "/api/status", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `"ok"`) {
		t.Errorf("unexpected body: %s", body)
	}
}

func TestVersionEndpoint(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.request(t, http.MethodGet, "/api/version", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var payload struct {
		GoVersion string `json:"go_version"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.GoVersion == "" {
		t.Errorf("go_version missing: %s", body)
	}
}

func TestStreamLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	env.startStream(t, "web1")

	resp, body := env.request(t, http.MethodGet, "/api/streams", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status %d", resp.StatusCode)
	}
	var list struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if list.Count != 1 {
		t.Errorf("count = %d, want 1", list.Count)
	}

	resp, _ = env.request(t, http.MethodGet, "/api/streams/web1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("get status %d", resp.StatusCode)
	}

	resp, _ = env.request(t, http.MethodDelete, "/api/streams/web1", nil)
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		t.Errorf("delete status %d", resp.StatusCode)
	}

	resp, _ = env.request(t, http.MethodGet, "/api/streams/web1", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete status %d, want 404", resp.StatusCode)
	}
}

func TestCreateStreamValidationError(t *testing.T) {
	env := newTestEnv(t)
	cfg := streamConfigBody("bad", env.outDir)
	cfg["formats"] = []string{}
	resp, _ := env.request(t, http.MethodPost, "/api/streams", cfg)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status %d, want 422", resp.StatusCode)
	}
}

func TestDuplicateStreamConflict(t *testing.T) {
	env := newTestEnv(t)
	env.startStream(t, "dup")
	resp, _ := env.request(t, http.MethodPost, "/api/streams", streamConfigBody("dup", env.outDir))
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status %d, want 409", resp.StatusCode)
	}
}

func TestCueInjectionOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	env.startStream(t, "ads")

	resp, body := env.request(t, http.MethodPost, "/api/streams/ads/cues", map[string]any{
		"type": "CUE-OUT", "duration": 30, "pre_roll": 2,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("inject status %d body %s", resp.StatusCode, body)
	}
	var ev struct {
		ID       string `json:"id"`
		Sequence uint64 `json:"sequence"`
		Status   string `json:"status"`
	}
	if err := json.Unmarshal(body, &ev); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if ev.Status != "active" {
		t.Errorf("status = %q, want active", ev.Status)
	}

	resp, body = env.request(t, http.MethodGet, "/api/streams/ads/cues", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list cues status %d", resp.StatusCode)
	}
	var cues struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(body, &cues); err != nil {
		t.Fatalf("unmarshal cues: %v", err)
	}
	if cues.Count != 1 {
		t.Errorf("active cues = %d, want 1", cues.Count)
	}

	resp, _ = env.request(t, http.MethodPost, fmt.Sprintf("/api/cues/%s/complete", ev.ID), nil)
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		t.Errorf("complete status %d", resp.StatusCode)
	}

	resp, body = env.request(t, http.MethodGet, "/api/streams/ads/cues/history?limit=10", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history status %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "CUE-IN") {
		t.Errorf("history missing auto return: %s", body)
	}
}

func TestCueRequiresActiveMarkers(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.request(t, http.MethodPost, "/api/streams/ghost/cues", map[string]any{
		"type": "CUE-OUT", "duration": 30,
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d, want 404", resp.StatusCode)
	}
}

func TestManifestEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.startStream(t, "m1")

	resp, body := env.request(t, http.MethodGet, "/api/streams/m1/manifest/hls", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "mpegurl") {
		t.Errorf("content type = %q", ct)
	}
	if !strings.HasPrefix(string(body), "#EXTM3U") {
		t.Errorf("manifest body:\n%s", body)
	}
}

func TestSystemHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.request(t, http.MethodGet, "/api/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `"overall"`) {
		t.Errorf("body: %s", body)
	}
}

func TestPresetCRUDOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	preset := map[string]any{
		"stream":    streamConfigBody("saved", env.outDir),
		"autostart": true,
	}
	resp, body := env.request(t, http.MethodPut, "/api/presets", preset)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("save status %d body %s", resp.StatusCode, body)
	}

	resp, body = env.request(t, http.MethodGet, "/api/presets/saved", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `"autostart":true`) {
		t.Errorf("autostart not persisted: %s", body)
	}

	resp, _ = env.request(t, http.MethodPost, "/api/presets/saved/start", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start preset status %d", resp.StatusCode)
	}

	resp, _ = env.request(t, http.MethodDelete, "/api/presets/saved", nil)
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		t.Errorf("delete status %d", resp.StatusCode)
	}
	resp, _ = env.request(t, http.MethodGet, "/api/presets/saved", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete status %d", resp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)
	req, _ := http.NewRequest(http.MethodOptions, env.server.URL+"/api/streams", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status %d, want 204", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("missing CORS headers")
	}
}
