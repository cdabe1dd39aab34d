// Package metrics defines the Prometheus collectors of the gateway simulator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Login outcomes recorded by LoginAttempts.
const (
	OutcomeSuccess       = "success"
	OutcomeBadCredential = "bad_credentials"
	OutcomeUnknownNonce  = "unknown_nonce"
	OutcomeBadForm       = "bad_form"
	OutcomeError         = "error"
)

// Metrics groups the simulator collectors.
type Metrics struct {
	LoginAttempts *prometheus.CounterVec
	NoncesIssued  prometheus.Counter
	Reboots       prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatewaysim",
			Name:      "login_attempts_total",
			Help:      "Login submissions by outcome.",
		}, []string{"outcome"}),
		NoncesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gatewaysim",
			Name:      "nonces_issued_total",
			Help:      "Login nonces handed out.",
		}),
		Reboots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gatewaysim",
			Name:      "reboots_total",
			Help:      "Accepted reboot requests.",
		}),
	}
	reg.MustRegister(m.LoginAttempts, m.NoncesIssued, m.Reboots)
	return m
}

// Login records one login attempt with the given outcome. A nil receiver is a no-op.
func (m *Metrics) Login(outcome string) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(outcome).Inc()
}

// Nonce records an issued nonce.
func (m *Metrics) Nonce() {
	if m == nil {
		return
	}
	m.NoncesIssued.Inc()
}

// Reboot records an accepted reboot.
func (m *Metrics) Reboot() {
	if m == nil {
		return
	}
	m.Reboots.Inc()
}
