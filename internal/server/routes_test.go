package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/danmuck/netspeed/internal/admission"
	"github.com/danmuck/netspeed/internal/logging"
	"github.com/danmuck/netspeed/internal/testutil/testlog"
	"github.com/rs/zerolog"
)

func serveAdminRequest(t *testing.T, svc *Service, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	svc.AdminRouter().ServeHTTP(rec, req)
	return rec
}

func TestAdminHealth(t *testing.T) {
	testlog.Start(t)
	svc := NewServiceWithConfig(testServiceConfig(2))
	rec := serveAdminRequest(t, svc, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("health status: %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if body["status"] != "ok" || body["version"] != Version {
		t.Fatalf("unexpected health body: %v", body)
	}
}

func TestAdminReadyReflectsCapacity(t *testing.T) {
	testlog.Start(t)
	svc := NewServiceWithConfig(testServiceConfig(1))
	if rec := serveAdminRequest(t, svc, "/ready"); rec.Code != http.StatusOK {
		t.Fatalf("ready with free slot: %d", rec.Code)
	}

	release, _, ok := svc.Admission().TryAcquire()
	if !ok {
		t.Fatalf("acquire slot")
	}
	if rec := serveAdminRequest(t, svc, "/ready"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready at capacity: %d", rec.Code)
	}
	release()
	if rec := serveAdminRequest(t, svc, "/ready"); rec.Code != http.StatusOK {
		t.Fatalf("ready after release: %d", rec.Code)
	}
}

func TestAdminSessions(t *testing.T) {
	testlog.Start(t)
	svc := NewServiceWithConfig(testServiceConfig(1))
	release, _, _ := svc.Admission().TryAcquire()
	defer release()
	_, _, _ = svc.Admission().TryAcquire()

	rec := serveAdminRequest(t, svc, "/sessions")
	if rec.Code != http.StatusOK {
		t.Fatalf("sessions status: %d", rec.Code)
	}
	var stats admission.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode sessions: %v", err)
	}
	want := admission.Stats{Capacity: 1, Active: 1, Accepted: 1, Declined: 1}
	if stats != want {
		t.Fatalf("sessions: got=%+v want=%+v", stats, want)
	}
}

func TestAdminMetricsExposed(t *testing.T) {
	testlog.Start(t)
	svc := NewServiceWithConfig(testServiceConfig(1))
	_ = serveAdminRequest(t, svc, "/health")
	rec := serveAdminRequest(t, svc, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "netspeed_admin_requests_total") {
		t.Fatalf("metrics body missing http counter")
	}
}

func TestNormalizeOrigins(t *testing.T) {
	if got := normalizeOrigins(nil); len(got) != 1 || got[0] != "http://localhost:3000" {
		t.Fatalf("default origins: %v", got)
	}
	got := normalizeOrigins([]string{" http://a.test ", "", "http://a.test", "http://b.test"})
	if len(got) != 2 || got[0] != "http://a.test" || got[1] != "http://b.test" {
		t.Fatalf("normalized origins: %v", got)
	}
}

func TestAdminUnmatchedPathsShareOneRouteLabel(t *testing.T) {
	testlog.Start(t)
	svc := NewServiceWithConfig(testServiceConfig(1))
	if rec := serveAdminRequest(t, svc, "/no/such/route"); rec.Code != http.StatusNotFound {
		t.Fatalf("unmatched status: %d", rec.Code)
	}
	body := serveAdminRequest(t, svc, "/metrics").Body.String()
	if !strings.Contains(body, `route="unmatched"`) {
		t.Fatalf("unmatched request not counted under the shared label")
	}
	if strings.Contains(body, "/no/such/route") {
		t.Fatalf("raw path leaked into metric labels")
	}
}

func TestAdminAccessLogCarriesAdmissionSnapshot(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	logging.SetOutput(&buf, logging.Config{Level: zerolog.DebugLevel, Bypass: true})
	defer logging.SetOutput(os.Stdout, logging.Config{Level: zerolog.DebugLevel, NoColor: true})

	svc := NewServiceWithConfig(testServiceConfig(1))
	release, _, ok := svc.Admission().TryAcquire()
	if !ok {
		t.Fatalf("acquire slot")
	}
	defer release()

	if rec := serveAdminRequest(t, svc, "/ready"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready at capacity: %d", rec.Code)
	}
	out := buf.String()
	for _, want := range []string{"server.Service.adminAccess", "method=GET", "status=503", "active=1 capacity=1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("access log missing %q:\n%s", want, out)
		}
	}
	if !strings.Contains(out, `"level":"info"`) {
		t.Fatalf("503 from /ready should log at info:\n%s", out)
	}
}
