// Package metrics holds the Prometheus collectors for the device caches.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	SessionLogins      prometheus.Counter
	SessionLogouts     prometheus.Counter
	SessionExtensions  prometheus.Counter
	SessionDiscarded   *prometheus.CounterVec
	ActivityAppends    *prometheus.CounterVec
	PersistFailures    *prometheus.CounterVec
	RemoteAuthFailures *prometheus.CounterVec
}

// New creates and registers all metrics with reg.
// Pass prometheus.DefaultRegisterer in main and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionLogins: f.NewCounter(prometheus.CounterOpts{
			Name: "fieldcache_session_logins_total",
			Help: "Sessions successfully written by login.",
		}),
		SessionLogouts: f.NewCounter(prometheus.CounterOpts{
			Name: "fieldcache_session_logouts_total",
			Help: "Explicit logouts.",
		}),
		SessionExtensions: f.NewCounter(prometheus.CounterOpts{
			Name: "fieldcache_session_extensions_total",
			Help: "Session expiry extensions on user activity.",
		}),
		SessionDiscarded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldcache_session_discarded_total",
			Help: "Persisted sessions erased at load time, by reason.",
		}, []string{"reason"}),
		ActivityAppends: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldcache_activity_appends_total",
			Help: "Activity records appended, by type.",
		}, []string{"type"}),
		PersistFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldcache_persist_failures_total",
			Help: "Best-effort cache writes that did not reach the store.",
		}, []string{"cache"}),
		RemoteAuthFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldcache_remote_auth_failures_total",
			Help: "Remote API responses rejected with 401 or 403.",
		}, []string{"status"}),
	}
}

func (m *Metrics) IncLogin() {
	if m != nil {
		m.SessionLogins.Inc()
	}
}

func (m *Metrics) IncLogout() {
	if m != nil {
		m.SessionLogouts.Inc()
	}
}

func (m *Metrics) IncExtension() {
	if m != nil {
		m.SessionExtensions.Inc()
	}
}

// IncSessionDiscarded counts a load-time discard ("expired", "corrupt",
// "partial", "read_error").
func (m *Metrics) IncSessionDiscarded(reason string) {
	if m != nil {
		m.SessionDiscarded.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) IncActivityAppend(activityType string) {
	if m != nil {
		m.ActivityAppends.WithLabelValues(activityType).Inc()
	}
}

func (m *Metrics) IncPersistFailure(cache string) {
	if m != nil {
		m.PersistFailures.WithLabelValues(cache).Inc()
	}
}

func (m *Metrics) IncRemoteAuthFailure(status string) {
	if m != nil {
		m.RemoteAuthFailures.WithLabelValues(status).Inc()
	}
}
