package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ObserveMessage("ok", 10*time.Millisecond)
	m.ObserveMessage("ok", 5*time.Millisecond)
	m.ObserveMessage("validation", time.Millisecond)
	m.ObserveNotification(false)
	m.ObserveCheckpoint(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.messages.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messages.WithLabelValues("validation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.checkpoints.WithLabelValues("ok")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveMessage("ok", time.Second)
		m.ObserveNotification(true)
		m.ObserveCheckpoint(false)
		m.ObserveHTTPRequest("GET", "/", 200, time.Second)
	})
	assert.NotNil(t, m.Handler())
}
