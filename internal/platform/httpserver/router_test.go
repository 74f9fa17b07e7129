package httpserver

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestRouter(cfg ...RouterConfig) chi.Router {
	r := chi.NewRouter()
	SetupRouter(r, cfg...)
	return r
}

func TestHealthz(t *testing.T) {
	r := newTestRouter()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr.Body.String() != "ok" {
		t.Fatalf("expected body 'ok', got %q", rr.Body.String())
	}
}

func TestReadyz_NoReadyFunc(t *testing.T) {
	r := newTestRouter()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestReadyz_ReadyFuncOK(t *testing.T) {
	r := newTestRouter(RouterConfig{ReadyFunc: func() error { return nil }})
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestReadyz_ReadyFuncError(t *testing.T) {
	r := newTestRouter(RouterConfig{ReadyFunc: func() error { return errors.New("db down") }})
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	body := rr.Body.String()
	if body == "" {
		t.Fatal("expected non-empty error body")
	}
}

func TestPanicRecovery(t *testing.T) {
	r := newTestRouter()
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	rr := httptest.NewRecorder()

	// Should not propagate the panic
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on panic, got %d", rr.Code)
	}
}

func TestCORS_DefaultWildcard(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	r := newTestRouter()
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://example.com")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Fatal("expected CORS header to be set")
	}
}

func TestParseCORSOrigins(t *testing.T) {
	cases := []struct {
		raw  string
		want []string
	}{
		{"", []string{"*"}},
		{" , ", []string{"*"}},
		{"https://commsninja.io", []string{"https://commsninja.io"}},
		{"https://commsninja.io , https://www.commsninja.io", []string{"https://commsninja.io", "https://www.commsninja.io"}},
	}
	for _, tc := range cases {
		got := parseCORSOrigins(tc.raw)
		if strings.Join(got, "|") != strings.Join(tc.want, "|") {
			t.Fatalf("parseCORSOrigins(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestRequestIDHandling(t *testing.T) {
	r := newTestRouter()
	r.Get("/id", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(RequestIDFromContext(r.Context())))
	})

	cases := []struct {
		name     string
		supplied string
		kept     bool
	}{
		{"absent", "", false},
		{"plain", "client-rid", true},
		{"uuid", "7c9e6679-7425-40de-944b-e07fc1f90ae7", true},
		{"too long", strings.Repeat("x", maxRequestIDLen+1), false},
		{"spaces inside", "a b", false},
		{"control chars", "rid\x00evil", false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/id", nil)
		if tc.supplied != "" {
			req.Header.Set(RequestIDHeader, tc.supplied)
		}
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)

		got := rr.Body.String()
		if got == "" || rr.Header().Get(RequestIDHeader) != got {
			t.Fatalf("%s: header %q and context %q disagree", tc.name, rr.Header().Get(RequestIDHeader), got)
		}
		if tc.kept && got != tc.supplied {
			t.Fatalf("%s: expected %q to be kept, got %q", tc.name, tc.supplied, got)
		}
		if !tc.kept && got == tc.supplied {
			t.Fatalf("%s: expected a minted id, got %q", tc.name, got)
		}
	}
}

func TestAccessLog(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	r := chi.NewRouter()
	SetupRouter(r, RouterConfig{Logger: zap.New(core)})
	r.Get("/v1/boom", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusBadGateway) })
	r.Get("/v1/ok", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("hi")) })

	for _, path := range []string{"/v1/ok", "/v1/boom", "/healthz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set(RequestIDHeader, "rid-log")
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	entries := logs.FilterMessage("http request").All()
	if len(entries) != 3 {
		t.Fatalf("expected 3 access log lines, got %d", len(entries))
	}
	wantLevels := []zapcore.Level{zapcore.InfoLevel, zapcore.ErrorLevel, zapcore.DebugLevel}
	for i, e := range entries {
		if e.Level != wantLevels[i] {
			t.Fatalf("entry %d: expected level %s, got %s", i, wantLevels[i], e.Level)
		}
		if e.ContextMap()["request_id"] != "rid-log" {
			t.Fatalf("entry %d: missing request id: %v", i, e.ContextMap())
		}
	}
	if st := entries[1].ContextMap()["status"]; st != int64(http.StatusBadGateway) {
		t.Fatalf("expected status 502, got %v", st)
	}
}

func TestExtraMiddlewaresRunBeforeRoutes(t *testing.T) {
	r := chi.NewRouter()
	SetupRouter(r, RouterConfig{Middlewares: []func(http.Handler) http.Handler{
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				w.Header().Set("X-Test-Mw", "1")
				next.ServeHTTP(w, req)
			})
		},
	}})
	r.Get("/v1/ping", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	for _, path := range []string{"/healthz", "/v1/ping"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Header().Get("X-Test-Mw") != "1" {
			t.Fatalf("middleware did not run for %s", path)
		}
	}
}
