package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/straye-as/shortage-api/internal/domain"
	"github.com/straye-as/shortage-api/internal/shortage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveReconcile(t *testing.T) {
	m := New()
	m.ObserveReconcile(&domain.ReconcileResult{
		Inserted:  3,
		Updated:   1,
		Unchanged: 2,
		Rejected:  []domain.RejectedRow{{Index: 4, Reason: domain.ReasonNonPositiveQty}},
	})

	assert.Equal(t, 3.0, promtest.ToFloat64(m.reconciledRows.WithLabelValues("inserted")))
	assert.Equal(t, 2.0, promtest.ToFloat64(m.reconciledRows.WithLabelValues("unchanged")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.reconciledRows.WithLabelValues("rejected")))
}

func TestObserveReport_CountsIntegrityFaultsByKind(t *testing.T) {
	m := New()
	err := &shortage.ReportError{Faults: []shortage.LineFault{
		{Err: &shortage.IntegrityError{Kind: shortage.IntegritySubstitute}},
		{Err: &shortage.IntegrityError{Kind: shortage.IntegritySubstitute}},
		{Err: errors.New("other")},
	}}
	m.ObserveReport(time.Second, nil, err)

	assert.Equal(t, 2.0, promtest.ToFloat64(m.integrityFaults.WithLabelValues("substitute")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.integrityFaults.WithLabelValues("other")))
}

func TestObserveReport_SetsLineGauge(t *testing.T) {
	m := New()
	m.ObserveReport(10*time.Millisecond, &shortage.Report{R2: make([]shortage.R2Row, 5)}, nil)
	assert.Equal(t, 5.0, promtest.ToFloat64(m.reportLines))
}

func TestSetOrderLines(t *testing.T) {
	m := New()
	m.SetOrderLines(map[domain.OrderStatus]int64{domain.OrderStatusOpen: 4, domain.OrderStatusClosed: 1})
	assert.Equal(t, 4.0, promtest.ToFloat64(m.orderLines.WithLabelValues("OPEN")))
	assert.Equal(t, 0.0, promtest.ToFloat64(m.orderLines.WithLabelValues("PARTIAL")))

	m.SetOrderLines(map[domain.OrderStatus]int64{domain.OrderStatusPartial: 2})
	assert.Equal(t, 0.0, promtest.ToFloat64(m.orderLines.WithLabelValues("OPEN")))
	assert.Equal(t, 2.0, promtest.ToFloat64(m.orderLines.WithLabelValues("PARTIAL")))
}

func TestSetLatestSnapshot(t *testing.T) {
	m := New()
	date := time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)
	m.SetLatestSnapshot(date)
	assert.Equal(t, float64(date.Unix()), promtest.ToFloat64(m.latestSnapshot))
}

func TestSetOpenPurchaseOrders(t *testing.T) {
	m := New()
	m.SetOpenPurchaseOrders(7)
	assert.Equal(t, 7.0, promtest.ToFloat64(m.openPurchases))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveReconcile(&domain.ReconcileResult{Inserted: 1})
		m.ObserveReport(time.Second, nil, nil)
		m.ObserveSnapshots("upload", 3)
		m.SetOrderLines(nil)
		m.SetLatestSnapshot(time.Now())
		m.SetOpenPurchaseOrders(2)
		m.ObserveHTTP("GET", "/", 200, time.Millisecond)
		m.ObserveJob("inventory_import", nil)
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveHTTP("GET", "/api/v1/orders", 200, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `shortage_http_requests_total{method="GET",route="/api/v1/orders",status="200"} 1`)
}
