// Package metrics owns the Prometheus registry for the clinic server. All
// recording methods are safe on a nil *Metrics so services can run without it.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	AppointmentsCreated *prometheus.CounterVec
	BulkRowsSkipped     *prometheus.CounterVec
	ExportsTotal        *prometheus.CounterVec
	SummaryFallbacks    *prometheus.CounterVec
}

// New builds a private registry with the Go and process collectors and the
// clinic's own series.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint", "status"}),
		AppointmentsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clinic_appointments_created_total",
			Help: "Appointments stored, by source (submit, upload)",
		}, []string{"source"}),
		BulkRowsSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clinic_bulk_rows_skipped_total",
			Help: "Bulk upload rows skipped, by reason (duplicate, incomplete)",
		}, []string{"reason"}),
		ExportsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clinic_exports_total",
			Help: "Export attempts, by format and result",
		}, []string{"format", "result"}),
		SummaryFallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clinic_summary_fallbacks_total",
			Help: "Reports rendered with the fallback summary, by reason",
		}, []string{"reason"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	status := strconv.Itoa(statusCode)
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint, status).Observe(duration.Seconds())
}

func (m *Metrics) AppointmentCreated(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.AppointmentsCreated.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) BulkRowSkipped(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.BulkRowsSkipped.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) Export(format, result string) {
	if m == nil {
		return
	}
	m.ExportsTotal.WithLabelValues(format, result).Inc()
}

func (m *Metrics) SummaryFallback(reason string) {
	if m == nil {
		return
	}
	m.SummaryFallbacks.WithLabelValues(reason).Inc()
}
