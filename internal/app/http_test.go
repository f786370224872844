package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"okrhub/api/internal/okr"
)

type routeFixture struct {
	store   *fakeStore
	handler http.Handler
	tokens  map[string]string
}

func newRouteFixture(t *testing.T) routeFixture {
	t.Helper()
	fs := newFakeStore()
	exampleHierarchy(fs)
	fs.roles["root"] = "admin"
	svc := newTestService(t, fs)
	return routeFixture{
		store:   fs,
		handler: NewHTTPServer(svc, "*", nil).Handler(),
		tokens: map[string]string{
			"alice": testToken(t, "alice"),
			"bob":   testToken(t, "bob"),
			"root":  testToken(t, "root"),
		},
	}
}

func (f routeFixture) do(t *testing.T, as, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			t.Fatalf("marshal body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	if as != "" {
		req.Header.Set("Authorization", "Bearer "+f.tokens[as])
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func TestRoutesRequireSession(t *testing.T) {
	f := newRouteFixture(t)

	rr := f.do(t, "", http.MethodGet, "/api/objectives/D/graph", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/objectives", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rr = httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with garbage token, got %d", rr.Code)
	}
}

func TestSessionEndpoint(t *testing.T) {
	f := newRouteFixture(t)

	anonymous := decodeJSON(t, f.do(t, "", http.MethodGet, "/api/session", nil))
	if anonymous["authenticated"] != false {
		t.Fatalf("unexpected anonymous session %v", anonymous)
	}

	got := decodeJSON(t, f.do(t, "root", http.MethodGet, "/api/session", nil))
	want := map[string]any{
		"authenticated": true,
		"userId":        "root",
		"email":         "root@example.com",
		"role":          "admin",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("session mismatch (-want +got):\n%s", diff)
	}
}

func TestGraphRoute(t *testing.T) {
	f := newRouteFixture(t)

	rr := f.do(t, "alice", http.MethodGet, "/api/objectives/D/graph", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var payload struct {
		RootID string   `json:"rootId"`
		Path   []string `json:"path"`
		Nodes  []struct {
			ID       string `json:"id"`
			Type     string `json:"type"`
			Position struct {
				X float64 `json:"x"`
				Y float64 `json:"y"`
			} `json:"position"`
		} `json:"nodes"`
		Edges []struct {
			ID       string `json:"id"`
			Animated bool   `json:"animated"`
		} `json:"edges"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode graph: %v", err)
	}
	if payload.RootID != "A" || len(payload.Nodes) != 4 || len(payload.Edges) != 3 {
		t.Fatalf("unexpected graph payload %s", rr.Body.String())
	}
	if diff := cmp.Diff([]string{"A", "B", "D"}, payload.Path); diff != "" {
		t.Fatalf("path mismatch (-want +got):\n%s", diff)
	}
	if payload.Nodes[0].Type != "objective" {
		t.Fatalf("unexpected node type %q", payload.Nodes[0].Type)
	}

	rr = f.do(t, "alice", http.MethodGet, "/api/objectives/missing/graph", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown objective, got %d", rr.Code)
	}
}

func TestAlignmentRoutes(t *testing.T) {
	f := newRouteFixture(t)
	f.store.put(okr.Objective{ID: "E", Title: "Platform", OwnerID: "bob"})

	tests := []struct {
		name     string
		as       string
		path     string
		body     any
		wantCode int
		wantErr  string
	}{
		{"cycle", "alice", "/api/objectives/D/alignments", map[string]any{"alignedObjectiveId": "A"}, http.StatusConflict, "ALIGNMENT_CYCLE"},
		{"self", "alice", "/api/objectives/D/alignments", map[string]any{"alignedObjectiveId": "D"}, http.StatusUnprocessableEntity, "SELF_ALIGNMENT"},
		{"missing field", "alice", "/api/objectives/D/alignments", map[string]any{}, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"unknown end", "alice", "/api/objectives/D/alignments", map[string]any{"alignedObjectiveId": "nope"}, http.StatusUnprocessableEntity, "UNKNOWN_OBJECTIVE"},
		{"forbidden", "alice", "/api/objectives/C/alignments", map[string]any{"alignedObjectiveId": "E"}, http.StatusForbidden, "FORBIDDEN"},
		{"created", "bob", "/api/objectives/C/alignments", map[string]any{"alignedObjectiveId": "E"}, http.StatusCreated, ""},
		{"duplicate", "bob", "/api/objectives/E/alignments", map[string]any{"alignedObjectiveId": "C"}, http.StatusConflict, "DUPLICATE_ALIGNMENT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.do(t, tt.as, http.MethodPost, tt.path, tt.body)
			if rr.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d: %s", tt.wantCode, rr.Code, rr.Body.String())
			}
			if tt.wantErr != "" {
				if code := decodeJSON(t, rr)["code"]; code != tt.wantErr {
					t.Fatalf("expected code %s, got %v", tt.wantErr, code)
				}
			}
		})
	}

	var listed struct {
		Alignments []struct {
			ID string `json:"id"`
		} `json:"alignments"`
	}
	rr := f.do(t, "bob", http.MethodGet, "/api/objectives/E/alignments", nil)
	if err := json.Unmarshal(rr.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode alignments: %v", err)
	}
	if len(listed.Alignments) != 1 {
		t.Fatalf("expected one alignment, got %s", rr.Body.String())
	}

	rr = f.do(t, "bob", http.MethodDelete, "/api/alignments/"+listed.Alignments[0].ID, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 on delete, got %d", rr.Code)
	}
}

func TestValidationErrorDetails(t *testing.T) {
	f := newRouteFixture(t)

	rr := f.do(t, "alice", http.MethodPost, "/api/objectives", map[string]any{"title": "", "cycleId": "2026-q4", "visibility": "galaxy"})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	var body struct {
		Code    string       `json:"code"`
		Details []fieldError `json:"details"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	want := []fieldError{{Field: "title", Rule: "required"}, {Field: "visibility", Rule: "visibility"}}
	if diff := cmp.Diff(want, body.Details); diff != "" {
		t.Fatalf("details mismatch (-want +got):\n%s", diff)
	}

	rr = f.do(t, "alice", http.MethodPost, "/api/objectives", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty body, got %d", rr.Code)
	}
}

func TestIntegrityRoute(t *testing.T) {
	f := newRouteFixture(t)

	if rr := f.do(t, "alice", http.MethodGet, "/api/admin/integrity", nil); rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for member, got %d", rr.Code)
	}
	rr := f.do(t, "root", http.MethodGet, "/api/admin/integrity", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", rr.Code)
	}
	if report := decodeJSON(t, rr); report["ok"] != true {
		t.Fatalf("unexpected report %v", report)
	}
}

func TestExportRouteWithoutExporter(t *testing.T) {
	f := newRouteFixture(t)

	if rr := f.do(t, "alice", http.MethodGet, "/api/objectives/D/export?format=xls", nil); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unknown format, got %d", rr.Code)
	}
	if rr := f.do(t, "alice", http.MethodGet, "/api/objectives/D/export?format=csv", nil); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without exporter, got %d", rr.Code)
	}
}

func TestUnknownRoutes(t *testing.T) {
	f := newRouteFixture(t)

	if rr := f.do(t, "alice", http.MethodGet, "/api/nothing", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if rr := f.do(t, "alice", http.MethodGet, "/api/objectives/D/unknown", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown sub-route, got %d", rr.Code)
	}
	if rr := f.do(t, "alice", http.MethodPost, "/api/objectives/D/graph", nil); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestRouteLabel(t *testing.T) {
	tests := map[string]string{
		"/api/health":               "/api/health",
		"/api/objectives/123/graph": "/api/objectives/:id/graph",
		"/api/key-results/kr-9":     "/api/key-results/:id",
		"/api/objectives/x/y/z/w":   "unmatched",
		"/wp-admin/install.php":     "unmatched",
	}
	for path, want := range tests {
		if got := routeLabel(path); got != want {
			t.Errorf("routeLabel(%q) = %q, want %q", path, got, want)
		}
	}
}
