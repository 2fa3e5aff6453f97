// Package metrics holds the Prometheus collectors for auth flow outcomes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "njala"

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	authEvents   *prometheus.CounterVec
	otpIssued    *prometheus.CounterVec
	otpVerified  *prometheus.CounterVec
	auditDropped prometheus.Counter
	auditFailed  prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		authEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_events_total",
			Help:      "Auth flow outcomes by flow and result.",
		}, []string{"flow", "result"}),
		otpIssued: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "otp_issued_total",
			Help:      "One-time codes issued by purpose and channel.",
		}, []string{"purpose", "type"}),
		otpVerified: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "otp_verifications_total",
			Help:      "One-time code verification attempts by purpose and result.",
		}, []string{"purpose", "result"}),
		auditDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_dropped_total",
			Help:      "Audit entries dropped because the queue was full.",
		}),
		auditFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_write_failures_total",
			Help:      "Audit entries that could not be persisted.",
		}),
	}
}

func (m *Metrics) AuthEvent(flow string, err error) {
	if m == nil {
		return
	}
	m.authEvents.WithLabelValues(flow, result(err)).Inc()
}

func (m *Metrics) OTPIssued(purpose, typ string) {
	if m == nil {
		return
	}
	m.otpIssued.WithLabelValues(purpose, typ).Inc()
}

func (m *Metrics) OTPVerified(purpose string, err error) {
	if m == nil {
		return
	}
	m.otpVerified.WithLabelValues(purpose, result(err)).Inc()
}

func (m *Metrics) AuditDropped() {
	if m == nil {
		return
	}
	m.auditDropped.Inc()
}

func (m *Metrics) AuditFailed() {
	if m == nil {
		return
	}
	m.auditFailed.Inc()
}

func result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
