// Package metrics exposes Prometheus counters for uploads and notifications.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "attendwatch"

// Upload outcomes.
const (
	UploadSuccess     = "success"
	UploadParseError  = "parse_error"
	UploadInterrupted = "interrupted"
)

// Notification outcomes.
const (
	NotificationDelivered = "delivered"
	NotificationFailed    = "failed"
)

// Metrics holds the collectors of one process. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	uploads        *prometheus.CounterVec
	recordsParsed  prometheus.Counter
	recordsFlagged prometheus.Counter
	notifications  *prometheus.CounterVec
	sendDuration   prometheus.Histogram
}

// New registers all collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Attendance files processed, by outcome.",
		}, []string{"outcome"}),
		recordsParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_parsed_total",
			Help:      "Data rows read from uploaded sheets.",
		}),
		recordsFlagged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_flagged_total",
			Help:      "Rows below the attendance threshold.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Parent notifications attempted, by outcome.",
		}, []string{"outcome"}),
		sendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "notification_send_seconds",
			Help:      "Time spent in the mail transport per message.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.uploads,
		m.recordsParsed,
		m.recordsFlagged,
		m.notifications,
		m.sendDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Upload(outcome string, parsed, flagged int) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(outcome).Inc()
	m.recordsParsed.Add(float64(parsed))
	m.recordsFlagged.Add(float64(flagged))
}

func (m *Metrics) Notification(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(outcome).Inc()
	m.sendDuration.Observe(took.Seconds())
}
