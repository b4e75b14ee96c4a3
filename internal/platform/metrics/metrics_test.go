package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var _ Recorder = (*Collector)(nil)
var _ Recorder = Nop{}

func TestCollector_Admissions(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.AppointmentAdmission("admitted")
	c.AppointmentAdmission("admitted")
	c.AppointmentAdmission("already-exists")

	if got := testutil.ToFloat64(c.admissions.WithLabelValues("admitted")); got != 2 {
		t.Errorf("admitted = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.admissions.WithLabelValues("already-exists")); got != 1 {
		t.Errorf("already-exists = %v, want 1", got)
	}
}

func TestCollector_RetentionRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RetentionRun(1, 2)
	c.RetentionRun(0, 3)

	if got := testutil.ToFloat64(c.retentionRuns); got != 2 {
		t.Errorf("runs = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.evictions.WithLabelValues("entry")); got != 1 {
		t.Errorf("entry evictions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.evictions.WithLabelValues("photo")); got != 5 {
		t.Errorf("photo evictions = %v, want 5", got)
	}
}

func TestCollector_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.BlobDeleteFailure()
	c.ClaimSync("updated")
	c.ClaimSync("unchanged")
	c.EventHandled("history.appended", "ok")
	c.AppointmentCancellation("failed-precondition")

	if got := testutil.ToFloat64(c.blobFailures); got != 1 {
		t.Errorf("blob failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.claimSyncs.WithLabelValues("unchanged")); got != 1 {
		t.Errorf("claim syncs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.events.WithLabelValues("history.appended", "ok")); got != 1 {
		t.Errorf("events = %v, want 1", got)
	}
}

func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.AppointmentAdmission("admitted")

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `clinic_appointment_admissions_total{outcome="admitted"} 1`) {
		t.Errorf("expected admissions metric in body:\n%s", body)
	}
}
