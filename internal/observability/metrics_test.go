package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	require.Contains(t, body, `clinicdesk_http_requests_total{code="418",route="/test"} 1`)
	require.Contains(t, body, `clinicdesk_http_request_duration_seconds_bucket{route="/test"`)
}

func TestSaleCounters(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveOperation("create", "success")
	metrics.ObserveOperation("create", "StockRace")
	metrics.ObserveCompensation("failed")

	body := scrape(t, metrics)
	require.Contains(t, body, `clinicdesk_sales_operations_total{op="create",outcome="StockRace"} 1`)
	require.Contains(t, body, `clinicdesk_sales_operations_total{op="create",outcome="success"} 1`)
	require.Contains(t, body, `clinicdesk_stock_compensations_total{result="failed"} 1`)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveOperation("void", "success")
	m.ObserveCompensation("restored")
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
