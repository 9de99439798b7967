// Package metrics exposes the dashboard service's Prometheus collectors
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/trafficwatch/internal/analysis"
	"github.com/example/trafficwatch/internal/intake"
	"github.com/example/trafficwatch/internal/jobs"
)

const namespace = "trafficwatch"

// Metrics holds the collectors of one service instance. A nil *Metrics
// records nothing, so callers need not check whether metrics are enabled.
type Metrics struct {
	registry *prometheus.Registry

	submissions   *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	rejections    *prometheus.CounterVec
	archiveTasks  *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	websocketConn prometheus.Gauge
}

// New creates the collectors on a private registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_submissions_total",
			Help:      "Resolved analysis submissions by endpoint and status",
		}, []string{"endpoint", "status"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Time from submission to resolution of an analysis call",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"endpoint"}),
		rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intake_rejections_total",
			Help:      "Selected files rejected before upload",
		}, []string{"reason"}),
		archiveTasks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_tasks_total",
			Help:      "Evidence archive tasks by kind and outcome",
		}, []string{"kind", "outcome"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		websocketConn: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected WebSocket clients",
		}),
	}
}

// TrackWorkspaces exports the number of open workspaces
func (m *Metrics) TrackWorkspaces(count func() int) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "workspaces_open",
		Help:      "Open category workspaces",
	}, func() float64 { return float64(count()) }))
}

// TrackArchiveQueue exports the depth of the archive worker queue
func (m *Metrics) TrackArchiveQueue(pool *jobs.WorkerPool) {
	if m == nil || pool == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "archive_queue_depth",
		Help:      "Archive tasks waiting for a worker",
	}, func() float64 {
		_, queued := pool.Stats()
		return float64(queued)
	}))
}

// ObserveAnalysis records a resolved submission. Its signature matches
// analysis.WithCompletionHook.
func (m *Metrics) ObserveAnalysis(r analysis.Result, took time.Duration) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(r.Endpoint, string(r.Status)).Inc()
	m.latency.WithLabelValues(r.Endpoint).Observe(took.Seconds())
}

// RecordRejection counts a rejected selection by its kind
func (m *Metrics) RecordRejection(kind error) {
	if m == nil {
		return
	}
	reason := "other"
	switch {
	case errors.Is(kind, intake.ErrFileTooLarge):
		reason = "too_large"
	case errors.Is(kind, intake.ErrUnsupportedType):
		reason = "unsupported_type"
	}
	m.rejections.WithLabelValues(reason).Inc()
}

// ObserveTask records a settled archive task. Its signature matches
// jobs.WorkerPool.OnFinish.
func (m *Metrics) ObserveTask(task *jobs.Task, err error) {
	if m == nil {
		return
	}
	outcome := "done"
	switch {
	case errors.Is(err, jobs.ErrTaskCancelled):
		outcome = "cancelled"
	case err != nil:
		outcome = "failed"
	}
	m.archiveTasks.WithLabelValues(task.Kind, outcome).Inc()
}

// RecordHTTPRequest records an HTTP request by route template
func (m *Metrics) RecordHTTPRequest(method, route string, statusCode int, took time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, statusClass(statusCode)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(took.Seconds())
}

// SetWebSocketClients sets the connected client gauge
func (m *Metrics) SetWebSocketClients(n int) {
	if m == nil {
		return
	}
	m.websocketConn.Set(float64(n))
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	}
	return strconv.Itoa(code)
}
