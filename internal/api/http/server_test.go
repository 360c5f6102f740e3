package httpapi

import (
	stdcontext "context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Paintersrp/hookall/internal/api"
	"github.com/Paintersrp/hookall/internal/metrics"
)

type mockController struct {
	statusFn func(stdcontext.Context) (*api.StatusReport, error)
	quitFn   func(stdcontext.Context) (*api.QuitResult, error)
}

func (m *mockController) Status(ctx stdcontext.Context) (*api.StatusReport, error) {
	if m.statusFn != nil {
		return m.statusFn(ctx)
	}
	return &api.StatusReport{}, nil
}

func (m *mockController) Quit(ctx stdcontext.Context) (*api.QuitResult, error) {
	if m.quitFn != nil {
		return m.quitFn(ctx)
	}
	return &api.QuitResult{}, nil
}

func newTestServer(t *testing.T, ctrl api.Controller) *Server {
	t.Helper()
	server, err := NewServer(Config{Controller: ctrl})
	if err != nil {
		t.Fatalf("failed creating server: %v", err)
	}
	return server
}

func TestNewServerRejectsNilController(t *testing.T) {
	if _, err := NewServer(Config{}); err == nil {
		t.Fatalf("expected error without controller")
	}
}

func TestListenDefaultsToLoopback(t *testing.T) {
	ln, err := Listen(":0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	host, _, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("split addr: %v", err)
	}
	if host != "127.0.0.1" {
		t.Fatalf("expected loopback bind, got %q", host)
	}
}

func TestNormalizeAddr(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":           defaultAddr,
		":9464":      "127.0.0.1:9464",
		"0.0.0.0:80": "0.0.0.0:80",
		"host:9000":  "host:9000",
		"[::1]:443":  "[::1]:443",
	}

	for input, expected := range tests {
		input, expected := input, expected
		t.Run(fmt.Sprintf("%s->%s", input, expected), func(t *testing.T) {
			t.Parallel()
			if got := normalizeAddr(input); got != expected {
				t.Fatalf("normalizeAddr(%q)=%q, want %q", input, got, expected)
			}
		})
	}
}

func TestHandleStatus(t *testing.T) {
	ctrl := &mockController{
		statusFn: func(stdcontext.Context) (*api.StatusReport, error) {
			return &api.StatusReport{
				Filter:   "chrome",
				State:    "listening",
				Matched:  []int{1234, 5678},
				Children: []api.ChildReport{{Target: 1234, PID: 40001}, {Target: 5678, PID: 40002, Exited: true, ExitCode: 1}},
			}, nil
		},
	}
	server := newTestServer(t, ctrl)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	server.handleStatus(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", rec.Code)
	}
	var body api.StatusReport
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed decoding response: %v", err)
	}
	if body.Filter != "chrome" || body.State != "listening" {
		t.Fatalf("unexpected body %+v", body)
	}
	if len(body.Children) != 2 || !body.Children[1].Exited || body.Children[1].ExitCode != 1 {
		t.Fatalf("unexpected children %+v", body.Children)
	}
}

func TestHandleStatusError(t *testing.T) {
	ctrl := &mockController{
		statusFn: func(stdcontext.Context) (*api.StatusReport, error) {
			return nil, errors.New("boom")
		},
	}
	server := newTestServer(t, ctrl)

	rec := httptest.NewRecorder()
	server.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if body.Code != "internal_error" {
		t.Fatalf("expected internal_error code, got %q", body.Code)
	}
	details, ok := body.Details.(map[string]any)
	if !ok {
		t.Fatalf("expected map details, got %T", body.Details)
	}
	if _, ok := details["timestamp"]; !ok {
		t.Fatalf("expected timestamp key in details")
	}
}

func TestHandleStatusMethodNotAllowed(t *testing.T) {
	server := newTestServer(t, &mockController{})

	rec := httptest.NewRecorder()
	server.handleStatus(rec, httptest.NewRequest(http.MethodPost, "/api/v1/status", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != http.MethodGet {
		t.Fatalf("expected Allow header %q, got %q", http.MethodGet, allow)
	}
}

func TestHandleQuit(t *testing.T) {
	called := 0
	ctrl := &mockController{
		quitFn: func(stdcontext.Context) (*api.QuitResult, error) {
			called++
			return &api.QuitResult{Children: 2, RequestedAt: time.Unix(10, 0)}, nil
		},
	}
	server := newTestServer(t, ctrl)

	rec := httptest.NewRecorder()
	server.handleQuit(rec, httptest.NewRequest(http.MethodPost, "/api/v1/quit", nil))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if called != 1 {
		t.Fatalf("expected one quit call, got %d", called)
	}
	var body map[string]api.QuitResult
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if body["quit"].Children != 2 {
		t.Fatalf("unexpected quit result %+v", body)
	}
}

func TestHandleQuitNotListening(t *testing.T) {
	ctrl := &mockController{
		quitFn: func(stdcontext.Context) (*api.QuitResult, error) {
			return nil, api.ErrNotListening
		},
	}
	server := newTestServer(t, ctrl)

	rec := httptest.NewRecorder()
	server.handleQuit(rec, httptest.NewRequest(http.MethodPost, "/api/v1/quit", nil))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if body.Code != "not_listening" {
		t.Fatalf("expected not_listening code, got %q", body.Code)
	}
}

func TestHandleQuitRequiresPost(t *testing.T) {
	server := newTestServer(t, &mockController{})

	rec := httptest.NewRecorder()
	server.handleQuit(rec, httptest.NewRequest(http.MethodGet, "/api/v1/quit", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server := newTestServer(t, &mockController{})

	metrics.EmitBuildInfo()
	metrics.SetProcessesMatched(2)

	rec := httptest.NewRecorder()
	server.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from metrics endpoint, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "hookall_processes_matched 2") {
		t.Fatalf("expected processes matched gauge, got:\n%s", body)
	}
	if !strings.Contains(body, "hookall_build_info{") {
		t.Fatalf("expected metrics output to include build info, got:\n%s", body)
	}
}

func TestRunServesUntilCancelled(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	server, err := NewServer(Config{Controller: &mockController{}, Listener: ln})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if server.Addr() != ln.Addr().String() {
		t.Fatalf("unexpected addr %q", server.Addr())
	}

	ctx, cancel := stdcontext.WithCancel(stdcontext.Background())
	done := make(chan error, 1)
	go func() { done <- server.Run(ctx) }()

	resp, err := http.Get("http://" + server.Addr() + "/api/v1/status")
	if err != nil {
		cancel()
		t.Fatalf("get status: %v", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not stop after cancellation")
	}
}
