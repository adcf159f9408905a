package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/ssrecorder/capturecore/muxer/registry"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer(Config{Addr: "127.0.0.1:0", Registry: registry.New(nil)})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func TestHealthzRespondsOK(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /healthz = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestMetricsServesPrometheusFormat(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.Len() == 0 {
		t.Error("GET /metrics returned an empty body")
	}
}

func TestDebugStreamsListsRegisteredSessions(t *testing.T) {
	reg := registry.New(nil)
	id := uuid.New()
	reg.Add(id, "/tmp/out.ts")

	s, err := NewServer(Config{Addr: "127.0.0.1:0", Registry: reg})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/debug/streams", nil)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /debug/streams = %d, want %d", rec.Code, http.StatusOK)
	}

	var snap debugSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(snap.Sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(snap.Sessions))
	}
	if snap.Sessions[0].ID != id.String() {
		t.Errorf("session id = %q, want %q", snap.Sessions[0].ID, id.String())
	}
	if snap.Sessions[0].Path != "/tmp/out.ts" {
		t.Errorf("session path = %q, want /tmp/out.ts", snap.Sessions[0].Path)
	}
}

func TestDebugStreamsEmptyRegistry(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/debug/streams", nil)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)

	var snap debugSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(snap.Sessions) != 0 {
		t.Errorf("got %d sessions, want 0", len(snap.Sessions))
	}
}
