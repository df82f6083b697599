package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncLogin()
	m.IncLogin()
	m.IncSessionDiscarded("expired")
	m.IncActivityAppend("login")
	m.IncPersistFailure("activity")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SessionLogins))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionDiscarded.WithLabelValues("expired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActivityAppends.WithLabelValues("login")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PersistFailures.WithLabelValues("activity")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncLogin()
		m.IncLogout()
		m.IncExtension()
		m.IncSessionDiscarded("corrupt")
		m.IncActivityAppend("x")
		m.IncPersistFailure("recent")
		m.IncRemoteAuthFailure("401")
	})
}
