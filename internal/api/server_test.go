package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/smazurov/camview/internal/cameras"
	"github.com/smazurov/camview/internal/events"
	"github.com/smazurov/camview/internal/logging"
	"github.com/smazurov/camview/internal/player"
	"github.com/smazurov/camview/internal/probe"
	"github.com/smazurov/camview/internal/session"
)

const testUser, testPass = "test", "test"

type testEnv struct {
	ts       *httptest.Server
	registry *cameras.Registry
	bus      *events.Bus
	factory  *scriptFactory
	hub      *session.Hub
}

func newTestEnv(t *testing.T, snap session.Snapshotter) *testEnv {
	t.Helper()

	registry := cameras.NewRegistry(cameras.NewTOML(filepath.Join(t.TempDir(), "cameras.toml")), slog.Default())
	if err := registry.Load(); err != nil {
		t.Fatal(err)
	}

	bus := events.New()
	factory := &scriptFactory{}
	opts := []session.Option{
		session.WithObserver(func(st session.Status) {
			bus.Publish(events.SessionStatusEvent{Status: st, Timestamp: events.Now()})
		}),
	}
	if snap != nil {
		opts = append(opts, session.WithSnapshotter(snap))
	}
	hub := session.NewHub(factory.New, slog.Default(), opts...)
	t.Cleanup(hub.Stop)

	server := NewServer(&Options{
		AuthUsername: testUser,
		AuthPassword: testPass,
		Registry:     registry,
		Prober:       probe.New(probe.WithTimeout(time.Second)),
		Hub:          hub,
		EventBus:     bus,
		SeekLocation: time.UTC,
		SeekWait:     2 * time.Second,
	})
	ts := httptest.NewServer(server.GetMux())
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, registry: registry, bus: bus, factory: factory, hub: hub}
}

// do sends body as JSON with credentials and decodes the response into out.
func (e *testEnv) do(t *testing.T, method, path string, body, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	req.SetBasicAuth(testUser, testPass)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

// listenRTSP accepts connections and closes them after reading the request.
func listenRTSP(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			buf := make([]byte, 256)
			_, _ = conn.Read(buf)
			conn.Close()
		}
	}()
	return "127.0.0.1:" + strconv.Itoa(ln.Addr().(*net.TCPAddr).Port) + "/live"
}

func closedAddress(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return "127.0.0.1:" + strconv.Itoa(port) + "/live"
}

func TestPublicEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, path := range []string{"/api/health", "/api/version"} {
		resp, err := http.Get(env.ts.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s = %d without credentials", path, resp.StatusCode)
		}
	}
}

func TestBasicAuth(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong scheme", "Bearer abc", "", http.StatusUnauthorized},
		{"bad base64", "Basic !!!", "", http.StatusUnauthorized},
		{"wrong password", "Basic " + base64.StdEncoding.EncodeToString([]byte("test:nope")), "", http.StatusUnauthorized},
		{"header", "Basic " + base64.StdEncoding.EncodeToString([]byte("test:test")), "", http.StatusOK},
		{"query", "", base64.StdEncoding.EncodeToString([]byte("test:test")), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := env.ts.URL + "/api/cameras"
			if tt.query != "" {
				url += "?auth=" + tt.query
			}
			req, _ := http.NewRequest(http.MethodGet, url, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			if tt.want == http.StatusUnauthorized && resp.Header.Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate header")
			}
		})
	}
}

func TestCameraCRUD(t *testing.T) {
	env := newTestEnv(t, nil)

	var created cameras.Camera
	status := env.do(t, http.MethodPost, "/api/cameras", map[string]string{
		"name": "Porch", "url": "192.168.1.10/live", "username": "admin", "password": "secret",
	}, &created)
	if status != http.StatusCreated || created.ID != 1 {
		t.Fatalf("create = %d %+v", status, created)
	}

	var raw map[string]any
	env.do(t, http.MethodGet, "/api/cameras/1", nil, &raw)
	if _, ok := raw["password"]; ok {
		t.Error("password returned by the API")
	}

	var updated cameras.Camera
	status = env.do(t, http.MethodPut, "/api/cameras/1", map[string]string{"name": "Front porch", "url": "192.168.1.10/live"}, &updated)
	if status != http.StatusOK || updated.Name != "Front porch" {
		t.Fatalf("update = %d %+v", status, updated)
	}
	if stored, _ := env.registry.Get(1); stored.Password != "secret" {
		t.Errorf("empty password should keep the stored one, got %q", stored.Password)
	}

	var list struct {
		Cameras []cameras.Camera `json:"cameras"`
		Count   int              `json:"count"`
	}
	env.do(t, http.MethodGet, "/api/cameras", nil, &list)
	if list.Count != 1 {
		t.Errorf("count = %d", list.Count)
	}

	if status := env.do(t, http.MethodDelete, "/api/cameras/1", nil, nil); status != http.StatusNoContent {
		t.Errorf("delete = %d", status)
	}
	if status := env.do(t, http.MethodGet, "/api/cameras/1", nil, nil); status != http.StatusNotFound {
		t.Errorf("get deleted = %d", status)
	}
	if status := env.do(t, http.MethodPut, "/api/cameras/1", map[string]string{"name": "x", "url": "y"}, nil); status != http.StatusNotFound {
		t.Errorf("update deleted = %d", status)
	}
}

func TestCreateCameraValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	status := env.do(t, http.MethodPost, "/api/cameras", map[string]string{"name": "Porch", "url": ""}, nil)
	if status != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", status)
	}
	status = env.do(t, http.MethodPost, "/api/cameras", map[string]string{"name": "  ", "url": "cam"}, nil)
	if status != http.StatusUnprocessableEntity {
		t.Errorf("blank name status = %d, want 422", status)
	}
}

func TestCameraTestAddsOnlyReachable(t *testing.T) {
	env := newTestEnv(t, nil)
	probes := make(chan events.ProbeCompletedEvent, 4)
	defer env.bus.Subscribe(func(e events.ProbeCompletedEvent) { probes <- e })()

	tests := []struct {
		name    string
		url     string
		result  probe.Result
		inserts bool
	}{
		{"reachable", listenRTSP(t), probe.ResultSuccess, true},
		{"refused", closedAddress(t), probe.ResultConnectionFailed, false},
		{"invalid", "rtsp://", probe.ResultInvalidAddress, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(env.registry.List())

			var body struct {
				Outcome probe.Outcome   `json:"outcome"`
				Camera  *cameras.Camera `json:"camera"`
			}
			status := env.do(t, http.MethodPost, "/api/cameras/test", map[string]string{"name": tt.name, "url": tt.url}, &body)
			if status != http.StatusOK {
				t.Fatalf("status = %d", status)
			}
			if body.Outcome.Result != tt.result {
				t.Errorf("result = %v, want %v", body.Outcome, tt.result)
			}
			if tt.result == probe.ResultConnectionFailed && body.Outcome.Message == "" {
				t.Error("connection failure without message")
			}
			if got := len(env.registry.List()) - before; (got == 1) != tt.inserts {
				t.Errorf("inserted %d cameras", got)
			}
			if (body.Camera != nil) != tt.inserts {
				t.Errorf("camera = %+v", body.Camera)
			}

			select {
			case e := <-probes:
				if e.Outcome.Result != tt.result {
					t.Errorf("event = %+v", e)
				}
			case <-time.After(time.Second):
				t.Error("no probe event")
			}
		})
	}
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	id, err := env.registry.Insert(cameras.Camera{Name: "Porch", URL: "10.0.0.5/live", Username: "admin", Password: "pw"})
	if err != nil {
		t.Fatal(err)
	}
	path := "/api/sessions/" + strconv.FormatInt(id, 10)

	if status := env.do(t, http.MethodGet, path, nil, nil); status != http.StatusNotFound {
		t.Errorf("status before open = %d", status)
	}
	if status := env.do(t, http.MethodPost, "/api/sessions/99", nil, nil); status != http.StatusNotFound {
		t.Errorf("open unknown camera = %d", status)
	}

	var st session.Status
	if status := env.do(t, http.MethodPost, path, nil, &st); status != http.StatusOK {
		t.Fatalf("open = %d", status)
	}
	if st.State != session.StatePlaying || !st.Playing || st.ErrorMessage != "" {
		t.Errorf("after open = %+v", st)
	}
	if strings.Contains(st.URI, "pw") {
		t.Errorf("status leaks credentials: %s", st.URI)
	}

	var toggle struct{ Playing bool }
	env.do(t, http.MethodPost, path+"/toggle", nil, &toggle)
	if toggle.Playing {
		t.Error("toggle should pause")
	}

	env.factory.last().SeekTo(4000)
	var skip struct {
		PositionMs int64 `json:"position_ms"`
	}
	env.do(t, http.MethodPost, path+"/skip-back", map[string]int{"seconds": 10}, &skip)
	if skip.PositionMs != 0 {
		t.Errorf("skip back clamped to %d, want 0", skip.PositionMs)
	}

	var sync struct {
		Status  struct{ Kind string } `json:"status"`
		Message string                `json:"message"`
	}
	env.do(t, http.MethodPost, path+"/time-sync", nil, &sync)
	if sync.Status.Kind != "unknown" || sync.Message != "Camera time is unknown" {
		t.Errorf("time sync without timeline = %+v", sync)
	}

	p := env.factory.last()
	p.mu.Lock()
	p.timeline = player.Timeline{Windows: []player.Window{{PresentationStartTimeMs: time.Now().UnixMilli()}}}
	p.mu.Unlock()
	env.do(t, http.MethodPost, path+"/time-sync", nil, &sync)
	if sync.Status.Kind != "synced" || sync.Message != "Camera time is in sync" {
		t.Errorf("time sync = %+v", sync)
	}

	var list struct{ Count int }
	env.do(t, http.MethodGet, "/api/sessions", nil, &list)
	if list.Count != 1 {
		t.Errorf("sessions = %d", list.Count)
	}

	if status := env.do(t, http.MethodDelete, path, nil, &st); status != http.StatusOK || st.State != session.StateClosed {
		t.Errorf("close = %d %+v", status, st)
	}
	if status := env.do(t, http.MethodPost, path+"/toggle", nil, nil); status != http.StatusNotFound {
		t.Errorf("toggle after close = %d", status)
	}
}

func TestOpenSessionInvalidAddress(t *testing.T) {
	env := newTestEnv(t, nil)
	id, _ := env.registry.Insert(cameras.Camera{Name: "Broken", URL: "rtsp://"})

	path := "/api/sessions/" + strconv.FormatInt(id, 10)
	if status := env.do(t, http.MethodPost, path, nil, nil); status != http.StatusUnprocessableEntity {
		t.Errorf("open = %d, want 422", status)
	}

	var st session.Status
	env.do(t, http.MethodGet, path, nil, &st)
	if st.State != session.StateFailed || st.ErrorMessage != "Invalid camera address" {
		t.Errorf("status = %+v", st)
	}
	if status := env.do(t, http.MethodPost, path+"/toggle", nil, nil); status != http.StatusConflict {
		t.Errorf("toggle without transport = %d, want 409", status)
	}
}

func TestSeek(t *testing.T) {
	tests := []struct {
		name    string
		seekErr *player.Error
		success bool
		reason  string
	}{
		{"accepted", nil, true, ""},
		{"rejected", &player.Error{Code: player.ErrorRemote, Message: "457 Invalid Range"}, false, session.ReasonSeekUnsupported},
		{"network", &player.Error{Code: player.ErrorNetworkConnectionFailed, Message: "connection reset"}, false, "failed to seek: "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.factory.setup = func(p *scriptPlayer) { p.seekErr = tt.seekErr }
			seeks := make(chan events.SeekCompletedEvent, 1)
			defer env.bus.Subscribe(func(e events.SeekCompletedEvent) { seeks <- e })()

			id, _ := env.registry.Insert(cameras.Camera{Name: "Porch", URL: "10.0.0.5/live"})
			path := "/api/sessions/" + strconv.FormatInt(id, 10)
			env.do(t, http.MethodPost, path, nil, nil)

			var body struct {
				Success bool           `json:"success"`
				Target  string         `json:"target"`
				Error   string         `json:"error"`
				Status  session.Status `json:"status"`
			}
			status := env.do(t, http.MethodPost, path+"/seek", map[string]string{"timestamp": "2025-01-27 10:00:00"}, &body)
			if status != http.StatusOK {
				t.Fatalf("seek = %d", status)
			}
			if body.Target != "2025-01-27T10:00:00Z" {
				t.Errorf("target = %q, want seek zone applied", body.Target)
			}
			if body.Success != tt.success || !strings.HasPrefix(body.Error, tt.reason) {
				t.Errorf("body = %+v", body)
			}
			if tt.reason == session.ReasonSeekUnsupported && body.Error != tt.reason {
				t.Errorf("reason = %q", body.Error)
			}
			if body.Status.State == session.StateClosed || body.Status.Seeking {
				t.Errorf("session after seek = %+v", body.Status)
			}

			select {
			case e := <-seeks:
				if e.Success != tt.success || e.CameraID != id {
					t.Errorf("event = %+v", e)
				}
			case <-time.After(time.Second):
				t.Error("no seek event")
			}
		})
	}
}

func TestSeekBadRequests(t *testing.T) {
	env := newTestEnv(t, nil)

	if status := env.do(t, http.MethodPost, "/api/sessions/1/seek", map[string]string{"timestamp": "yesterday"}, nil); status != http.StatusBadRequest {
		t.Errorf("bad timestamp = %d", status)
	}
	if status := env.do(t, http.MethodPost, "/api/sessions/1/seek", map[string]string{"timestamp": "2025-01-27T10:00:00Z"}, nil); status != http.StatusNotFound {
		t.Errorf("no session = %d", status)
	}
}

func TestSnapshot(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"saved", nil, http.StatusOK},
		{"failed", errors.New("snapshot timed out after 10s"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, stubSnapshotter{err: tt.err})
			id, _ := env.registry.Insert(cameras.Camera{Name: "Porch", URL: "10.0.0.5/live"})
			path := "/api/sessions/" + strconv.FormatInt(id, 10)
			env.do(t, http.MethodPost, path, nil, nil)

			var body struct{ Path string }
			if status := env.do(t, http.MethodPost, path+"/snapshot", nil, &body); status != tt.status {
				t.Fatalf("status = %d, want %d", status, tt.status)
			}

			cam, _ := env.registry.Get(id)
			if tt.err == nil && (body.Path == "" || cam.LastSnapshot != body.Path) {
				t.Errorf("path = %q, recorded %q", body.Path, cam.LastSnapshot)
			}
			if tt.err != nil && cam.LastSnapshot != "" {
				t.Errorf("failed snapshot recorded %q", cam.LastSnapshot)
			}

			var st session.Status
			env.do(t, http.MethodGet, path, nil, &st)
			if st.State != session.StatePlaying {
				t.Errorf("snapshot changed playback: %+v", st)
			}
		})
	}
}

func TestDeleteCameraClosesSession(t *testing.T) {
	env := newTestEnv(t, nil)
	id, _ := env.registry.Insert(cameras.Camera{Name: "Porch", URL: "10.0.0.5/live"})
	path := "/api/sessions/" + strconv.FormatInt(id, 10)
	env.do(t, http.MethodPost, path, nil, nil)

	env.do(t, http.MethodDelete, "/api/cameras/"+strconv.FormatInt(id, 10), nil, nil)

	if _, err := env.hub.Get(id); !errors.Is(err, session.ErrNoSession) {
		t.Errorf("session still open: %v", err)
	}
	p := env.factory.last()
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.released {
		t.Error("transport not released")
	}
}

func TestCORS(t *testing.T) {
	mux := http.NewServeMux()
	AddCORSHandler(mux, CORSConfig{AllowOrigins: []string{"http://viewer.local"}, AllowMethods: []string{"GET"}})

	tests := []struct {
		origin string
		want   string
	}{
		{"http://viewer.local", "http://viewer.local"},
		{"http://elsewhere", ""},
		{"", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodOptions, "/api/cameras", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Errorf("origin %q: status = %d", tt.origin, rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
			t.Errorf("origin %q: allow origin = %q, want %q", tt.origin, got, tt.want)
		}
	}

	if got := newCORSHeaders(DefaultCORSConfig()).origin("http://any"); got != "*" {
		t.Errorf("default origin = %q", got)
	}
}

func TestEventStream(t *testing.T) {
	env := newTestEnv(t, nil)
	env.registry.Insert(cameras.Camera{Name: "Garage", URL: "10.0.0.7/live"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, env.ts.URL+"/api/events", nil)
	req.SetBasicAuth(testUser, testPass)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content type = %q", ct)
	}

	names := make(chan string, 8)
	data := make(chan string, 8)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if name, ok := strings.CutPrefix(line, "event: "); ok {
				names <- name
			}
			if payload, ok := strings.CutPrefix(line, "data: "); ok {
				data <- payload
			}
		}
	}()

	next := func() (string, string) {
		t.Helper()
		select {
		case name := <-names:
			return name, <-data
		case <-time.After(2 * time.Second):
			t.Fatal("no event received")
			return "", ""
		}
	}

	name, payload := next()
	if name != "cameras-changed" || !strings.Contains(payload, "Garage") {
		t.Fatalf("first event = %s %s", name, payload)
	}

	env.do(t, http.MethodPost, "/api/cameras", map[string]string{"name": "Porch", "url": "10.0.0.5/live", "password": "hunter2"}, nil)
	name, payload = next()
	if name != "camera-created" || !strings.Contains(payload, "Porch") {
		t.Fatalf("event = %s %s", name, payload)
	}
	if strings.Contains(payload, "hunter2") {
		t.Error("event leaks password")
	}
}

func TestRedactQuery(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"limit=5", "limit=5"},
		{"auth=dGVzdDp0ZXN0", "auth=REDACTED"},
		{"auth=dGVzdDp0ZXN0&x=1", "auth=REDACTED&x=1"},
		{"author=bob", "author=bob"},
	}
	for _, tt := range tests {
		if got := redactQuery(tt.in); got != tt.want {
			t.Errorf("redactQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSetLogLevel(t *testing.T) {
	env := newTestEnv(t, nil)

	if status := env.do(t, http.MethodPut, "/api/logs/level", map[string]string{"module": "probe", "level": "debug"}, nil); status != http.StatusOK {
		t.Errorf("status = %d", status)
	}
	if status := env.do(t, http.MethodPut, "/api/logs/level", map[string]string{"module": "probe", "level": "loud"}, nil); status != http.StatusUnprocessableEntity {
		t.Errorf("unknown level status = %d", status)
	}
	_ = logging.SetModuleLevel("probe", "info")
}

func TestProbeEventHidesCredentials(t *testing.T) {
	env := newTestEnv(t, nil)
	probes := make(chan events.ProbeCompletedEvent, 1)
	defer env.bus.Subscribe(func(e events.ProbeCompletedEvent) { probes <- e })()

	addr := "admin:secret@" + closedAddress(t)
	var body struct {
		Address string        `json:"address"`
		Outcome probe.Outcome `json:"outcome"`
	}
	if status := env.do(t, http.MethodPost, "/api/probe", map[string]string{"address": addr}, &body); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if body.Outcome.Result != probe.ResultConnectionFailed {
		t.Errorf("outcome = %v", body.Outcome)
	}

	select {
	case e := <-probes:
		if strings.Contains(e.Address, "secret") || !strings.HasPrefix(e.Address, "rtsp://127.0.0.1:") {
			t.Errorf("event address = %q", e.Address)
		}
	case <-time.After(time.Second):
		t.Fatal("no probe event")
	}
}
