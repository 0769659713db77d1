package reconciler

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"settlement-reconciliation-service/internal/matcher"
	"settlement-reconciliation-service/internal/models"
	"settlement-reconciliation-service/pkg/errors"
)

// Test fixtures and test data setup

const testOrdersCSV = `transaction_id,order_date,customer_currency,original_amount,payment_processor
TXN-001,2024-03-01,MXN,1750.00,Stripe
TXN-002,2024-03-01,BRL,500.00,PayFlow
TXN-003,2024-03-02,BRL,250.00,PayFlow
TXN-004,2024-03-02,MXN,1837.50,Stripe
TXN-005,2024-03-03,KES,1300,M-Pesa
`

const testSettlementsCSV = `transaction_id,settlement_date,usd_amount_received,fx_rate_applied,fees_deducted
TXN-001,2024-03-03,97.10,17.5,2.90
TXN-002,2024-03-03,85.00,5.00,3.00
TXN-003,2024-03-04,39.00,5.00,3.00
TXN-004,2024-03-04,96.00,18.375,2.00
TXN-404,2024-03-05,10.00,5.00,0.50
`

func createTestDataFiles(t *testing.T, orders, settlements string) (string, string) {
	tmpDir := t.TempDir()

	ordersFile := filepath.Join(tmpDir, "orders.csv")
	if err := os.WriteFile(ordersFile, []byte(orders), 0644); err != nil {
		t.Fatalf("Failed to write orders file: %v", err)
	}

	settlementsFile := filepath.Join(tmpDir, "settlements.csv")
	if err := os.WriteFile(settlementsFile, []byte(settlements), 0644); err != nil {
		t.Fatalf("Failed to write settlements file: %v", err)
	}

	return ordersFile, settlementsFile
}

func newTestService(t *testing.T, config *Config) *ReconciliationService {
	t.Helper()
	service, err := NewReconciliationService(config)
	if err != nil {
		t.Fatalf("Failed to create reconciliation service: %v", err)
	}
	return service
}

func TestReconciliationService_ReconcileFiles(t *testing.T) {
	ordersFile, settlementsFile := createTestDataFiles(t, testOrdersCSV, testSettlementsCSV)
	service := newTestService(t, nil)

	result, err := service.ReconcileFiles(context.Background(), ordersFile, settlementsFile)
	if err != nil {
		t.Fatalf("ReconcileFiles() error = %v", err)
	}

	if result.TotalOrders != 5 || result.TotalSettlements != 5 {
		t.Errorf("Expected 5 orders and 5 settlements, got %d and %d", result.TotalOrders, result.TotalSettlements)
	}
	if result.Matched != 4 || result.UnmatchedOrders != 1 || result.UnmatchedSettlements != 1 {
		t.Errorf("Unexpected status counts: %d/%d/%d", result.Matched, result.UnmatchedOrders, result.UnmatchedSettlements)
	}

	// TXN-002 (-12), TXN-003 (-8), TXN-004 (-2) plus two unmatched
	if result.FlaggedCount != 5 {
		t.Errorf("Expected 5 flagged, got %d", result.FlaggedCount)
	}
	if result.TotalDiscrepancyUSD.StringFixed(2) != "22.00" {
		t.Errorf("Expected total discrepancy 22.00, got %s", result.TotalDiscrepancyUSD.StringFixed(2))
	}

	var types []string
	for _, alert := range result.PatternAlerts {
		types = append(types, string(alert.Type)+":"+alert.Processor+alert.Currency)
	}
	want := "processor:PayFlow currency:BRL fx_rate:"
	if strings.Join(types, " ") != want {
		t.Errorf("Alerts = %v, want %s", types, want)
	}
}

func TestReconciliationService_ReconcileReaders(t *testing.T) {
	service := newTestService(t, nil)

	result, err := service.ReconcileReaders(
		WithRunID(context.Background(), "run-1"),
		strings.NewReader("\ufeff"+testOrdersCSV),
		strings.NewReader(testSettlementsCSV),
	)
	if err != nil {
		t.Fatalf("ReconcileReaders() error = %v", err)
	}
	if len(result.Transactions) != 6 {
		t.Errorf("Expected 6 transactions, got %d", len(result.Transactions))
	}
	if result.Transactions[0].TransactionID != "TXN-001" {
		t.Errorf("BOM should not leak into the first identifier, got %q", result.Transactions[0].TransactionID)
	}
}

func TestReconciliationService_InputErrors(t *testing.T) {
	header := "transaction_id,settlement_date,usd_amount_received,fx_rate_applied,fees_deducted\n"

	tests := []struct {
		name        string
		orders      string
		settlements string
		code        errors.ErrorCode
		message     string
	}{
		{
			name:        "empty orders",
			orders:      "",
			settlements: testSettlementsCSV,
			code:        errors.CodeEmptyFile,
		},
		{
			name:        "header only settlements",
			orders:      testOrdersCSV,
			settlements: header,
			code:        errors.CodeEmptyFile,
			message:     "settlements file is empty",
		},
		{
			name:        "missing column",
			orders:      "transaction_id,original_amount\nTXN-1,10\n",
			settlements: testSettlementsCSV,
			code:        errors.CodeMissingColumn,
		},
		{
			name:        "bad numeric",
			orders:      testOrdersCSV,
			settlements: header + "TXN-001,2024-03-03,ninety,17.5,2.90\n",
			code:        errors.CodeInvalidData,
			message:     "settlements row 2: invalid value 'ninety' in column 'usd_amount_received'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := newTestService(t, nil)
			_, err := service.ReconcileReaders(context.Background(), strings.NewReader(tt.orders), strings.NewReader(tt.settlements))
			if err == nil {
				t.Fatal("Expected an error")
			}

			rerr, ok := errors.AsReconcilerError(err)
			if !ok {
				t.Fatalf("Expected ReconcilerError, got %T", err)
			}
			if rerr.Code != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, rerr.Code)
			}
			if tt.message != "" && rerr.Message != tt.message {
				t.Errorf("Expected message %q, got %q", tt.message, rerr.Message)
			}
			if rerr.HTTPStatus() != 400 {
				t.Errorf("Expected HTTP 400, got %d", rerr.HTTPStatus())
			}
		})
	}
}

func TestReconciliationService_DuplicatePolicies(t *testing.T) {
	orders := testOrdersCSV + "TXN-001,2024-03-09,MXN,3500.00,Stripe\n"

	tests := []struct {
		policy       matcher.DuplicatePolicy
		wantErr      bool
		wantExpected string
	}{
		{policy: matcher.DuplicateFirst, wantExpected: "97.10"},
		{policy: matcher.DuplicateLast, wantExpected: "197.10"},
		{policy: matcher.DuplicateReject, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			config := DefaultConfig()
			config.Engine.Matching.DuplicatePolicy = tt.policy
			service := newTestService(t, config)

			result, err := service.ReconcileReaders(context.Background(), strings.NewReader(orders), strings.NewReader(testSettlementsCSV))
			if tt.wantErr {
				rerr, ok := errors.AsReconcilerError(err)
				if !ok || rerr.Code != errors.CodeDuplicateIdentifier {
					t.Fatalf("Expected duplicate identifier error, got %v", err)
				}
				if !strings.Contains(rerr.Message, "TXN-001") {
					t.Errorf("Expected message to name TXN-001, got %q", rerr.Message)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReconcileReaders() error = %v", err)
			}

			if result.Transactions[0].TransactionID != "TXN-001" {
				t.Errorf("Duplicate should keep its first position, got %s", result.Transactions[0].TransactionID)
			}
			if got := result.Transactions[0].ExpectedUSD.Decimal.StringFixed(2); got != tt.wantExpected {
				t.Errorf("Expected USD = %s, want %s", got, tt.wantExpected)
			}
			if len(result.Diagnostics.Duplicates) != 1 || result.Diagnostics.Duplicates[0].Source != "orders" {
				t.Errorf("Expected one orders duplicate in diagnostics, got %+v", result.Diagnostics.Duplicates)
			}
			if result.TotalOrders != 5 {
				t.Errorf("total_orders should count distinct identifiers, got %d", result.TotalOrders)
			}
		})
	}
}

func TestReconciliationService_SkipInvalidRows(t *testing.T) {
	config := DefaultConfig()
	config.Orders.SkipInvalidRows = true
	config.Settlements.SkipInvalidRows = true
	service := newTestService(t, config)

	orders := testOrdersCSV + "TXN-006,2024-03-04,MXN,lots,Stripe\n"
	result, err := service.ReconcileReaders(context.Background(), strings.NewReader(orders), strings.NewReader(testSettlementsCSV))
	if err != nil {
		t.Fatalf("ReconcileReaders() error = %v", err)
	}

	skipped := result.Diagnostics.SkippedRows
	if len(skipped) != 1 || skipped[0].Source != "orders" || skipped[0].Line != 7 {
		t.Errorf("Unexpected skipped rows %+v", skipped)
	}
	if result.TotalOrders != 5 {
		t.Errorf("Skipped row should not be counted, got %d orders", result.TotalOrders)
	}
}

func TestReconciliationService_NearMatches(t *testing.T) {
	service := newTestService(t, nil)
	orders := testOrdersCSV + "abc-7,2024-03-04,BRL,100,PayFlow\n"
	settlements := testSettlementsCSV + "ABC-7,2024-03-05,20,5,0\n"

	result, err := service.ReconcileReaders(context.Background(), strings.NewReader(orders), strings.NewReader(settlements))
	if err != nil {
		t.Fatalf("ReconcileReaders() error = %v", err)
	}

	near := result.Diagnostics.NearMatches
	if len(near) != 1 || near[0].OrderID != "abc-7" || near[0].SettlementID != "ABC-7" {
		t.Errorf("Unexpected near matches %+v", near)
	}
	if len(result.TransactionsByStatus(models.StatusMatched)) != 4 {
		t.Error("Near matches must not be joined")
	}
}

func TestReconciliationService_MissingFile(t *testing.T) {
	service := newTestService(t, nil)
	_, settlementsFile := createTestDataFiles(t, testOrdersCSV, testSettlementsCSV)

	_, err := service.ReconcileFiles(context.Background(), filepath.Join(t.TempDir(), "nope.csv"), settlementsFile)
	rerr, ok := errors.AsReconcilerError(err)
	if !ok || rerr.Code != errors.CodeFileNotFound {
		t.Fatalf("Expected file not found error, got %v", err)
	}
	if rerr.GetExitCode() != 2 {
		t.Errorf("Expected exit code 2, got %d", rerr.GetExitCode())
	}
}

func TestReconciliationService_Cancelled(t *testing.T) {
	service := newTestService(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := service.ReconcileReaders(ctx, strings.NewReader(testOrdersCSV), strings.NewReader(testSettlementsCSV))
	rerr, ok := errors.AsReconcilerError(err)
	if !ok || rerr.Code != errors.CodeCancelled {
		t.Fatalf("Expected cancelled error, got %v", err)
	}
}

func TestRunIDContext(t *testing.T) {
	if _, ok := RunIDFromContext(context.Background()); ok {
		t.Error("Expected no run id on a bare context")
	}
	ctx := WithRunID(context.Background(), "abc")
	if id, ok := RunIDFromContext(ctx); !ok || id != "abc" {
		t.Errorf("Expected run id abc, got %q", id)
	}
}

func TestNewReconciliationService_InvalidConfig(t *testing.T) {
	config := DefaultConfig()
	config.Engine.Matching.DuplicatePolicy = "newest"

	_, err := NewReconciliationService(config)
	rerr, ok := errors.AsReconcilerError(err)
	if !ok || rerr.Category != errors.CategoryConfiguration {
		t.Fatalf("Expected configuration error, got %v", err)
	}
}
