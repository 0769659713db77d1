package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"settlement-reconciliation-service/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
)

func TestRecordRun(t *testing.T) {
	result := models.NewReconciliationResult()
	result.Matched = 3
	result.UnmatchedOrders = 1
	result.FlaggedCount = 2
	result.TotalDiscrepancyUSD = decimal.RequireFromString("12.5")
	result.PatternAlerts = []*models.PatternAlert{
		{Type: models.AlertTypeFXRate, Severity: models.SeverityMedium},
	}
	result.Diagnostics.SkippedRows = []models.SkippedRow{{Source: "orders", Line: 4}}

	matchedBefore := testutil.ToFloat64(TransactionsTotal.WithLabelValues("matched"))
	flaggedBefore := testutil.ToFloat64(FlaggedTotal)
	alertsBefore := testutil.ToFloat64(AlertsTotal.WithLabelValues("fx_rate", "medium"))
	skippedBefore := testutil.ToFloat64(RowsSkippedTotal.WithLabelValues("orders"))
	runsBefore := testutil.ToFloat64(RunsTotal.WithLabelValues("success"))

	RecordRun(result, 25*time.Millisecond)

	if got := testutil.ToFloat64(TransactionsTotal.WithLabelValues("matched")) - matchedBefore; got != 3 {
		t.Errorf("Expected 3 matched transactions recorded, got %v", got)
	}
	if got := testutil.ToFloat64(FlaggedTotal) - flaggedBefore; got != 2 {
		t.Errorf("Expected 2 flagged recorded, got %v", got)
	}
	if got := testutil.ToFloat64(AlertsTotal.WithLabelValues("fx_rate", "medium")) - alertsBefore; got != 1 {
		t.Errorf("Expected 1 alert recorded, got %v", got)
	}
	if got := testutil.ToFloat64(RowsSkippedTotal.WithLabelValues("orders")) - skippedBefore; got != 1 {
		t.Errorf("Expected 1 skipped row recorded, got %v", got)
	}
	if got := testutil.ToFloat64(RunsTotal.WithLabelValues("success")) - runsBefore; got != 1 {
		t.Errorf("Expected 1 run recorded, got %v", got)
	}
}

func TestRecordFailure(t *testing.T) {
	before := testutil.ToFloat64(RunsTotal.WithLabelValues("error"))
	RecordFailure(time.Millisecond)
	if got := testutil.ToFloat64(RunsTotal.WithLabelValues("error")) - before; got != 1 {
		t.Errorf("Expected 1 failed run recorded, got %v", got)
	}
}

func TestMiddleware(t *testing.T) {
	router := chi.NewRouter()
	router.Use(Middleware)
	router.Get("/api/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/api/items/{id}", "418"))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/items/42", nil))

	if rec.Code != http.StatusTeapot {
		t.Fatalf("Expected status 418, got %d", rec.Code)
	}
	if got := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/api/items/{id}", "418")) - before; got != 1 {
		t.Errorf("Expected request labelled by route pattern, got delta %v", got)
	}
}
