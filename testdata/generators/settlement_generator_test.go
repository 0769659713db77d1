package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"settlement-reconciliation-service/internal/matcher"
	"settlement-reconciliation-service/internal/models"
	"settlement-reconciliation-service/internal/reconciler"
)

var testStart = time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)

func writeDataset(t *testing.T, dataset *Dataset) (string, string) {
	t.Helper()
	dir := t.TempDir()
	ordersPath := filepath.Join(dir, "orders.csv")
	settlementsPath := filepath.Join(dir, "settlements.csv")
	if err := WriteOrdersCSV(ordersPath, dataset.Orders); err != nil {
		t.Fatalf("failed to write orders: %v", err)
	}
	if err := WriteSettlementsCSV(settlementsPath, dataset.Settlements); err != nil {
		t.Fatalf("failed to write settlements: %v", err)
	}
	return ordersPath, settlementsPath
}

func TestGenerateBaseline_Shape(t *testing.T) {
	dataset := NewSettlementGenerator(220, testStart, 42).GenerateBaseline()

	if len(dataset.Orders) != 220 {
		t.Errorf("expected 220 orders, got %d", len(dataset.Orders))
	}

	injected := dataset.Injected
	if injected.MissingSettlements != 3 || injected.MysterySettlements != 3 {
		t.Errorf("expected 3 missing and 3 mystery settlements, got %+v", injected)
	}
	expectedSettlements := len(dataset.Orders) - injected.MissingSettlements + injected.MysterySettlements
	if len(dataset.Settlements) != expectedSettlements {
		t.Errorf("expected %d settlements, got %d", expectedSettlements, len(dataset.Settlements))
	}
	if injected.PayUErrors > 5 || injected.XenditErrors > 3 || injected.BadFXRates > 4 {
		t.Errorf("injected more discrepancies than planned: %+v", injected)
	}

	for _, order := range dataset.Orders {
		if order.OrderDate.Before(testStart) || order.OrderDate.After(testStart.AddDate(0, 0, 90)) {
			t.Errorf("order %s date %s outside the 90 day window", order.TransactionID, order.OrderDate)
		}
		if _, ok := feeSchedules[order.Processor]; !ok {
			t.Errorf("order %s has unknown processor %s", order.TransactionID, order.Processor)
		}
	}
}

func TestGenerateBaseline_Deterministic(t *testing.T) {
	first := NewSettlementGenerator(50, testStart, 7).GenerateBaseline()
	second := NewSettlementGenerator(50, testStart, 7).GenerateBaseline()

	if len(first.Settlements) != len(second.Settlements) {
		t.Fatalf("settlement counts differ: %d vs %d", len(first.Settlements), len(second.Settlements))
	}
	for i := range first.Orders {
		a, b := first.Orders[i], second.Orders[i]
		if a.TransactionID != b.TransactionID || !a.Amount.Equal(b.Amount) || a.Currency != b.Currency {
			t.Errorf("order %d differs between runs with the same seed", i)
		}
	}
	for i := range first.Settlements {
		a, b := first.Settlements[i], second.Settlements[i]
		if a.TransactionID != b.TransactionID || !a.USDReceived.Equal(b.USDReceived) {
			t.Errorf("settlement %d differs between runs with the same seed", i)
		}
	}
}

func TestGenerateBaseline_Reconciles(t *testing.T) {
	dataset := NewSettlementGenerator(220, testStart, 42).GenerateBaseline()
	ordersPath, settlementsPath := writeDataset(t, dataset)

	service, err := reconciler.NewReconciliationService(nil)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	result, err := service.ReconcileFiles(context.Background(), ordersPath, settlementsPath)
	if err != nil {
		t.Fatalf("reconciliation failed: %v", err)
	}

	if result.FlaggedCount != dataset.Injected.Flagged() {
		t.Errorf("expected %d flagged transactions, got %d", dataset.Injected.Flagged(), result.FlaggedCount)
	}
	if result.UnmatchedOrders != dataset.Injected.MissingSettlements {
		t.Errorf("expected %d unmatched orders, got %d", dataset.Injected.MissingSettlements, result.UnmatchedOrders)
	}
	if result.UnmatchedSettlements != dataset.Injected.MysterySettlements {
		t.Errorf("expected %d unmatched settlements, got %d", dataset.Injected.MysterySettlements, result.UnmatchedSettlements)
	}

	if dataset.Injected.BadFXRates > 0 {
		var fxAlert *models.PatternAlert
		for _, alert := range result.PatternAlerts {
			if alert.Type == models.AlertTypeFXRate {
				fxAlert = alert
			}
		}
		if fxAlert == nil {
			t.Fatal("expected an FX rate alert for the adverse BRL rates")
		}
		if len(fxAlert.TransactionIDs) != dataset.Injected.BadFXRates {
			t.Errorf("expected %d transactions in the FX alert, got %v", dataset.Injected.BadFXRates, fxAlert.TransactionIDs)
		}
	}
}

func TestGenerateWithDuplicates(t *testing.T) {
	dataset := NewSettlementGenerator(40, testStart, 3).GenerateWithDuplicates()
	if dataset.Injected.DuplicateOrders != 1 || dataset.Injected.DuplicateSettlements != 1 {
		t.Fatalf("expected one duplicate of each kind, got %+v", dataset.Injected)
	}
	ordersPath, settlementsPath := writeDataset(t, dataset)

	config := reconciler.DefaultConfig()
	config.Engine.Matching.DuplicatePolicy = matcher.DuplicateReject
	service, err := reconciler.NewReconciliationService(config)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	if _, err := service.ReconcileFiles(context.Background(), ordersPath, settlementsPath); err == nil {
		t.Error("expected the reject policy to refuse duplicate transaction ids")
	}
}
