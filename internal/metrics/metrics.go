// Package metrics exposes Prometheus metrics for the campaign scheduler
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service
type Metrics struct {
	EmailsSentTotal       prometheus.Counter
	EmailsFailedTotal     prometheus.Counter
	AntiSpamRejectedTotal prometheus.Counter
	TasksRunning          prometheus.Gauge

	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates a Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		EmailsSentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "email_sender_emails_sent_total",
			Help: "Total number of successfully delivered emails",
		}),
		EmailsFailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "email_sender_emails_failed_total",
			Help: "Total number of terminally failed emails",
		}),
		AntiSpamRejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "email_sender_antispam_rejected_total",
			Help: "Total number of sends rejected by the per-sender rate envelope",
		}),
		TasksRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "email_sender_tasks_running",
			Help: "Number of tasks currently running",
		}),
		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "email_sender_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "email_sender_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.EmailsSentTotal,
		m.EmailsFailedTotal,
		m.AntiSpamRejectedTotal,
		m.TasksRunning,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
	)
	return m
}

// Handler returns the HTTP handler serving the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Scheduler observer hooks

func (m *Metrics) TaskStarted() {
	m.TasksRunning.Inc()
}

func (m *Metrics) TaskStopped() {
	m.TasksRunning.Dec()
}

func (m *Metrics) JobSent() {
	m.EmailsSentTotal.Inc()
}

func (m *Metrics) JobFailed(antiSpam bool) {
	m.EmailsFailedTotal.Inc()
	if antiSpam {
		m.AntiSpamRejectedTotal.Inc()
	}
}
