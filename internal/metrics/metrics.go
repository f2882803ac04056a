// Package metrics exposes Prometheus instrumentation for the API, the
// reconciler and the shortage engine. All methods are safe on a nil *Metrics.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/straye-as/shortage-api/internal/domain"
	"github.com/straye-as/shortage-api/internal/shortage"
)

const namespace = "shortage"

// Metrics holds every collector registered by the service
type Metrics struct {
	registry *prometheus.Registry

	reconciledRows     *prometheus.CounterVec
	reportDuration     *prometheus.HistogramVec
	reportLines        prometheus.Gauge
	orderLines         *prometheus.GaugeVec
	latestSnapshot     prometheus.Gauge
	openPurchases      prometheus.Gauge
	integrityFaults    *prometheus.CounterVec
	snapshotsStored    *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
	httpRequestSeconds *prometheus.HistogramVec
	jobRuns            *prometheus.CounterVec
}

// New creates a registry with process and Go runtime collectors plus the
// service collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		reconciledRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciled_rows_total",
			Help:      "Order rows processed by the reconciler, by outcome.",
		}, []string{"outcome"}),
		reportDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "report_duration_seconds",
			Help:      "Time spent computing shortage reports.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"result"}),
		reportLines: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "report_order_lines",
			Help:      "Order lines covered by the last successful report.",
		}),
		orderLines: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "order_lines",
			Help:      "Order lines in the ledger by status, refreshed after each reconciliation.",
		}, []string{"status"}),
		latestSnapshot: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inventory_latest_snapshot_timestamp_seconds",
			Help:      "Date of the newest stored inventory snapshot as a Unix timestamp.",
		}),
		openPurchases: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "purchase_orders_open",
			Help:      "Purchase orders not yet arrived or obsoleted.",
		}),
		integrityFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "integrity_faults_total",
			Help:      "Master data integrity faults found while computing reports, by kind.",
		}, []string{"kind"}),
		snapshotsStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_snapshots_stored_total",
			Help:      "Inventory snapshot rows written, by source.",
		}, []string{"source"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		httpRequestSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduled job runs by job name and result.",
		}, []string{"job", "result"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.reconciledRows,
		m.reportDuration,
		m.reportLines,
		m.orderLines,
		m.latestSnapshot,
		m.openPurchases,
		m.integrityFaults,
		m.snapshotsStored,
		m.httpRequests,
		m.httpRequestSeconds,
		m.jobRuns,
	)
	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveReconcile counts the outcome of one reconciliation batch
func (m *Metrics) ObserveReconcile(result *domain.ReconcileResult) {
	if m == nil || result == nil {
		return
	}
	m.reconciledRows.WithLabelValues("inserted").Add(float64(result.Inserted))
	m.reconciledRows.WithLabelValues("updated").Add(float64(result.Updated))
	m.reconciledRows.WithLabelValues("unchanged").Add(float64(result.Unchanged))
	m.reconciledRows.WithLabelValues("rejected").Add(float64(len(result.Rejected)))
	m.reconciledRows.WithLabelValues("cancelled").Add(float64(result.Cancelled))
}

// ObserveReport records the duration and outcome of one report run
func (m *Metrics) ObserveReport(elapsed time.Duration, report *shortage.Report, err error) {
	if m == nil {
		return
	}
	result := "ok"
	var reportErr *shortage.ReportError
	switch {
	case errors.As(err, &reportErr):
		result = "integrity_error"
		for _, f := range reportErr.Faults {
			kind := "other"
			var ie *shortage.IntegrityError
			if errors.As(f.Err, &ie) {
				kind = string(ie.Kind)
			}
			m.integrityFaults.WithLabelValues(kind).Inc()
		}
	case err != nil:
		result = "error"
	}
	m.reportDuration.WithLabelValues(result).Observe(elapsed.Seconds())
	if report != nil {
		m.reportLines.Set(float64(len(report.R2)))
	}
}

// SetOrderLines replaces the per-status order line counts. Statuses missing
// from counts are reported as zero.
func (m *Metrics) SetOrderLines(counts map[domain.OrderStatus]int64) {
	if m == nil {
		return
	}
	for _, status := range []domain.OrderStatus{
		domain.OrderStatusOpen,
		domain.OrderStatusPartial,
		domain.OrderStatusClosed,
		domain.OrderStatusCancelled,
	} {
		m.orderLines.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}

// SetLatestSnapshot records the newest inventory snapshot date
func (m *Metrics) SetLatestSnapshot(date time.Time) {
	if m == nil {
		return
	}
	m.latestSnapshot.Set(float64(date.Unix()))
}

// SetOpenPurchaseOrders records the number of purchases awaiting delivery
func (m *Metrics) SetOpenPurchaseOrders(n int64) {
	if m == nil {
		return
	}
	m.openPurchases.Set(float64(n))
}

// ObserveSnapshots counts stored inventory snapshot rows
func (m *Metrics) ObserveSnapshots(source string, n int) {
	if m == nil {
		return
	}
	m.snapshotsStored.WithLabelValues(source).Add(float64(n))
}

// ObserveHTTP records one served request
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestSeconds.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveJob counts one run of a scheduled job
func (m *Metrics) ObserveJob(name string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.jobRuns.WithLabelValues(name, result).Inc()
}
