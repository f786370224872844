package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newHealthServer(t *testing.T, pingErr error) http.Handler {
	t.Helper()
	fs := newFakeStore()
	fs.pingFn = func(context.Context) error { return pingErr }
	return NewHTTPServer(newTestService(t, fs), "*", nil).Handler()
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	return response
}

func TestHealthEndpoint(t *testing.T) {
	rr := httptest.NewRecorder()
	newHealthServer(t, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}
	if ok := decodeJSON(t, rr)["ok"]; ok != true {
		t.Errorf("expected ok=true, got %v", ok)
	}
}

func TestReadyEndpoint_Success(t *testing.T) {
	rr := httptest.NewRecorder()
	newHealthServer(t, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/ready", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}
	response := decodeJSON(t, rr)
	if response["ok"] != true || response["status"] != "ready" {
		t.Errorf("unexpected response %v", response)
	}
	checks, _ := response["checks"].(map[string]any)
	dbCheck, _ := checks["database"].(map[string]any)
	if dbCheck["status"] != "ok" {
		t.Errorf("expected database status=ok, got %v", dbCheck)
	}
}

func TestReadyEndpoint_DatabaseFailure(t *testing.T) {
	rr := httptest.NewRecorder()
	newHealthServer(t, errors.New("connection refused")).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rr.Code)
	}
	response := decodeJSON(t, rr)
	if response["ok"] != false || response["status"] != "not_ready" {
		t.Errorf("unexpected response %v", response)
	}
	checks, _ := response["checks"].(map[string]any)
	dbCheck, _ := checks["database"].(map[string]any)
	if dbCheck["status"] != "error" || dbCheck["error"] != "connection refused" {
		t.Errorf("unexpected database check %v", dbCheck)
	}
}

func TestHealthEndpoint_OptionsRequest(t *testing.T) {
	rr := httptest.NewRecorder()
	newHealthServer(t, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/api/objectives/A/graph", nil))

	if rr.Code != http.StatusNoContent {
		t.Errorf("expected status 204 for OPTIONS, got %d", rr.Code)
	}
}

func TestHealthEndpoint_Headers(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	newHealthServer(t, nil).ServeHTTP(rr, req)

	if origin := rr.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Errorf("expected CORS origin=*, got %v", origin)
	}
	if cache := rr.Header().Get("Cache-Control"); cache != "no-store" {
		t.Errorf("expected Cache-Control=no-store, got %v", cache)
	}
	if id := rr.Header().Get("X-Request-ID"); id != "req-42" {
		t.Errorf("expected request id to be echoed, got %q", id)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	handler := newHealthServer(t, nil)
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/health", nil))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "okrhub_http_requests_total") {
		t.Fatalf("request counter missing from metrics output")
	}
}

func TestPingMethod(t *testing.T) {
	tests := []struct {
		name      string
		pingError error
		wantError bool
	}{
		{name: "healthy database"},
		{name: "unhealthy database", pingError: errors.New("connection failed"), wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := newFakeStore()
			fs.pingFn = func(context.Context) error { return tt.pingError }
			svc := newTestService(t, fs)

			err := svc.Ping(context.Background())
			if (err != nil) != tt.wantError {
				t.Errorf("Ping() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}
