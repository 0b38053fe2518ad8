package observability

import (
	"sync"
	"testing"
	"time"

	"github.com/danmuck/netspeed/internal/logging"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()

	beforeAccepted := testutil.ToFloat64(admissions.WithLabelValues(OutcomeAccepted))
	beforeDeclined := testutil.ToFloat64(admissions.WithLabelValues(OutcomeDeclined))
	beforeBytes := testutil.ToFloat64(transferBytes.WithLabelValues(DirectionDownstream))
	beforeAdmin := testutil.ToFloat64(adminRequests.WithLabelValues("GET", "/health", "200"))

	RecordAdmission(true)
	SessionEnded()
	RecordAdmission(false)
	RecordTransfer(DirectionDownstream, 4096, 2*time.Second)
	RecordWorkerError("protocol")
	RecordAdminRequest("GET", "/health", 200, 12*time.Millisecond)

	if got := testutil.ToFloat64(admissions.WithLabelValues(OutcomeAccepted)) - beforeAccepted; got != 1 {
		t.Fatalf("accepted delta: %v", got)
	}
	if got := testutil.ToFloat64(admissions.WithLabelValues(OutcomeDeclined)) - beforeDeclined; got != 1 {
		t.Fatalf("declined delta: %v", got)
	}
	if got := testutil.ToFloat64(transferBytes.WithLabelValues(DirectionDownstream)) - beforeBytes; got != 4096 {
		t.Fatalf("bytes delta: %v", got)
	}
	if got := testutil.ToFloat64(adminRequests.WithLabelValues("GET", "/health", "200")) - beforeAdmin; got != 1 {
		t.Fatalf("admin request delta: %v", got)
	}

	logging.Logf("observability/metrics: registration idempotent and recording paths executed")
}

func TestActiveGaugeSettlesUnderConcurrentSessions(t *testing.T) {
	RegisterMetrics()
	before := testutil.ToFloat64(sessionsActive)

	const sessions = 64
	var started, ended sync.WaitGroup
	release := make(chan struct{})
	for i := 0; i < sessions; i++ {
		started.Add(1)
		ended.Add(1)
		go func() {
			defer ended.Done()
			RecordAdmission(true)
			started.Done()
			<-release
			SessionEnded()
		}()
	}
	started.Wait()
	if got := testutil.ToFloat64(sessionsActive) - before; got != sessions {
		t.Fatalf("active gauge with %d open sessions: delta=%v", sessions, got)
	}
	close(release)
	ended.Wait()
	if got := testutil.ToFloat64(sessionsActive); got != before {
		t.Fatalf("active gauge after all sessions ended: got=%v want=%v", got, before)
	}

	// declines never move the gauge
	RecordAdmission(false)
	if got := testutil.ToFloat64(sessionsActive); got != before {
		t.Fatalf("decline moved the active gauge: got=%v want=%v", got, before)
	}
}
