// Package telemetry exposes Prometheus metrics for the monitor's
// anomaly, escalation, and break-out activity.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the registered collectors for one monitored run.
type Metrics struct {
	registry *prometheus.Registry

	anomalies         *prometheus.CounterVec
	escalations       *prometheus.CounterVec
	breakoutAttempts  *prometheus.CounterVec
	breakoutSuccesses *prometheus.CounterVec
	currentTier       prometheus.Gauge
	modeDuration      *prometheus.GaugeVec
	ticks             prometheus.Counter
}

// New registers the monitor's collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_anomalies_total",
			Help: "Anomalies detected, by type and severity.",
		}, []string{"type", "severity"}),
		escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_escalation_transitions_total",
			Help: "Escalation tier transitions, by target tier.",
		}, []string{"to"}),
		breakoutAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_breakout_attempts_total",
			Help: "Break-out strategy executions, by strategy and mode.",
		}, []string{"strategy", "mode"}),
		breakoutSuccesses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_breakout_successes_total",
			Help: "Successful break-out executions, by strategy and mode.",
		}, []string{"strategy", "mode"}),
		currentTier: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "warden_escalation_tier",
			Help: "Current escalation tier (0=none .. 4=reset_condition).",
		}),
		modeDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "warden_mode_duration_seconds",
			Help: "Time spent in the current mode so far.",
		}, []string{"mode"}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warden_ticks_total",
			Help: "Monitor ticks processed.",
		}),
	}

	registry.MustRegister(
		m.anomalies, m.escalations, m.breakoutAttempts,
		m.breakoutSuccesses, m.currentTier, m.modeDuration, m.ticks,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveTick() {
	if m == nil {
		return
	}
	m.ticks.Inc()
}

func (m *Metrics) ObserveAnomaly(anomalyType, severity string) {
	if m == nil {
		return
	}
	m.anomalies.WithLabelValues(anomalyType, severity).Inc()
}

func (m *Metrics) ObserveEscalation(to string) {
	if m == nil {
		return
	}
	m.escalations.WithLabelValues(to).Inc()
}

func (m *Metrics) ObserveBreakout(strategy, mode string, success bool) {
	if m == nil {
		return
	}
	m.breakoutAttempts.WithLabelValues(strategy, mode).Inc()
	if success {
		m.breakoutSuccesses.WithLabelValues(strategy, mode).Inc()
	}
}

func (m *Metrics) SetTier(tier int) {
	if m == nil {
		return
	}
	m.currentTier.Set(float64(tier))
}

func (m *Metrics) SetModeDuration(mode string, seconds float64) {
	if m == nil {
		return
	}
	m.modeDuration.Reset()
	m.modeDuration.WithLabelValues(mode).Set(seconds)
}
