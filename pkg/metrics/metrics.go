// Package metrics provides counters for admission decisions, backend
// fallbacks, and session lifecycle events.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder receives admission-layer events. Implementations must be safe
// for concurrent use.
type Recorder interface {
	// RecordAdmission counts one admission decision for a route class.
	RecordAdmission(route string, allowed bool)

	// RecordFallback counts one operation served by the local store
	// after a shared-store error.
	RecordFallback(op string)

	// RecordSession counts one session lifecycle event
	// ("started", "updated", "ended").
	RecordSession(event string)
}

// Noop discards all events. It keeps callers free of nil checks on the
// hot path.
type Noop struct{}

// RecordAdmission does nothing.
func (Noop) RecordAdmission(string, bool) {}

// RecordFallback does nothing.
func (Noop) RecordFallback(string) {}

// RecordSession does nothing.
func (Noop) RecordSession(string) {}

// Prometheus records events as Prometheus counters.
type Prometheus struct {
	admissions *prometheus.CounterVec
	fallbacks  *prometheus.CounterVec
	sessions   *prometheus.CounterVec
}

// NewPrometheus creates a Prometheus recorder and registers its
// collectors with reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekit_admissions_total",
			Help: "Admission decisions by route class and outcome.",
		}, []string{"route", "outcome"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekit_store_fallbacks_total",
			Help: "Operations served by the local store after a shared-store error.",
		}, []string{"op"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekit_sessions_total",
			Help: "Session lifecycle events.",
		}, []string{"event"}),
	}
	reg.MustRegister(p.admissions, p.fallbacks, p.sessions)
	return p
}

// RecordAdmission counts one admission decision.
func (p *Prometheus) RecordAdmission(route string, allowed bool) {
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	p.admissions.WithLabelValues(route, outcome).Inc()
}

// RecordFallback counts one local-store fallback.
func (p *Prometheus) RecordFallback(op string) {
	p.fallbacks.WithLabelValues(op).Inc()
}

// RecordSession counts one session lifecycle event.
func (p *Prometheus) RecordSession(event string) {
	p.sessions.WithLabelValues(event).Inc()
}

// Verify interface compliance.
var (
	_ Recorder = (*Prometheus)(nil)
	_ Recorder = Noop{}
)
