// Package metrics exposes the clinic's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what domain services report to.
type Recorder interface {
	// AppointmentAdmission records a create attempt; outcome is "admitted"
	// or an error kind.
	AppointmentAdmission(outcome string)
	AppointmentCancellation(outcome string)
	RetentionRun(entriesEvicted, photosEvicted int)
	BlobDeleteFailure()
	ClaimSync(outcome string)
	EventHandled(topic, outcome string)
}

type Collector struct {
	admissions    *prometheus.CounterVec
	cancellations *prometheus.CounterVec
	retentionRuns prometheus.Counter
	evictions     *prometheus.CounterVec
	blobFailures  prometheus.Counter
	claimSyncs    *prometheus.CounterVec
	events        *prometheus.CounterVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clinic_appointment_admissions_total",
			Help: "Appointment create attempts by outcome.",
		}, []string{"outcome"}),
		cancellations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clinic_appointment_cancellations_total",
			Help: "Appointment cancel attempts by outcome.",
		}, []string{"outcome"}),
		retentionRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clinic_history_retention_runs_total",
			Help: "History retention passes executed.",
		}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clinic_history_evictions_total",
			Help: "History items evicted by retention, by kind.",
		}, []string{"kind"}),
		blobFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clinic_blob_delete_failures_total",
			Help: "Best-effort blob deletions that failed.",
		}),
		claimSyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clinic_role_claim_syncs_total",
			Help: "Role claim synchronisations by outcome.",
		}, []string{"outcome"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clinic_events_handled_total",
			Help: "Background events handled by topic and outcome.",
		}, []string{"topic", "outcome"}),
	}

	reg.MustRegister(
		c.admissions,
		c.cancellations,
		c.retentionRuns,
		c.evictions,
		c.blobFailures,
		c.claimSyncs,
		c.events,
	)
	return c
}

func (c *Collector) AppointmentAdmission(outcome string) {
	c.admissions.WithLabelValues(outcome).Inc()
}

func (c *Collector) AppointmentCancellation(outcome string) {
	c.cancellations.WithLabelValues(outcome).Inc()
}

func (c *Collector) RetentionRun(entriesEvicted, photosEvicted int) {
	c.retentionRuns.Inc()
	c.evictions.WithLabelValues("entry").Add(float64(entriesEvicted))
	c.evictions.WithLabelValues("photo").Add(float64(photosEvicted))
}

func (c *Collector) BlobDeleteFailure() { c.blobFailures.Inc() }

func (c *Collector) ClaimSync(outcome string) {
	c.claimSyncs.WithLabelValues(outcome).Inc()
}

func (c *Collector) EventHandled(topic, outcome string) {
	c.events.WithLabelValues(topic, outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards everything.
type Nop struct{}

func (Nop) AppointmentAdmission(string)    {}
func (Nop) AppointmentCancellation(string) {}
func (Nop) RetentionRun(int, int)          {}
func (Nop) BlobDeleteFailure()             {}
func (Nop) ClaimSync(string)               {}
func (Nop) EventHandled(string, string)    {}
