package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPrometheus_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheus(reg)

	rec.RecordAdmission("/v1/gestures", true)
	rec.RecordAdmission("/v1/gestures", true)
	rec.RecordAdmission("/v1/gestures", false)
	rec.RecordFallback("slide")
	rec.RecordSession("started")

	assert.Equal(t, float64(2),
		testutil.ToFloat64(rec.admissions.WithLabelValues("/v1/gestures", "allowed")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(rec.admissions.WithLabelValues("/v1/gestures", "denied")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(rec.fallbacks.WithLabelValues("slide")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(rec.sessions.WithLabelValues("started")))
}

func TestNoop_DoesNotPanic(t *testing.T) {
	var rec Recorder = Noop{}
	rec.RecordAdmission("/", true)
	rec.RecordFallback("get")
	rec.RecordSession("ended")
}
