package reconciler

import (
	"context"
	"io"
	"time"

	"settlement-reconciliation-service/internal/matcher"
	"settlement-reconciliation-service/internal/metrics"
	"settlement-reconciliation-service/internal/models"
	"settlement-reconciliation-service/internal/parsers"
	"settlement-reconciliation-service/pkg/errors"
	"settlement-reconciliation-service/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type runIDKey struct{}

// WithRunID attaches a run identifier to ctx. It is used in logs only and
// never appears in the result.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunIDFromContext returns the run identifier attached to ctx, if any
func RunIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runIDKey{}).(string)
	return id, ok && id != ""
}

// ReconciliationService orchestrates the complete reconciliation process:
// parse both inputs, validate them, run the engine and record metrics.
type ReconciliationService struct {
	orderParser      *parsers.OrderParser
	settlementParser *parsers.SettlementParser
	engine           *Engine
	config           *Config
	logger           logger.Logger
}

// NewReconciliationService creates a new reconciliation service
func NewReconciliationService(config *Config) (*ReconciliationService, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "reconciliation_service", nil, err)
	}

	orderParser, err := parsers.NewOrderParser(config.Orders)
	if err != nil {
		return nil, err
	}

	settlementParser, err := parsers.NewSettlementParser(config.Settlements)
	if err != nil {
		return nil, err
	}

	engine, err := NewEngine(config.Engine)
	if err != nil {
		return nil, err
	}

	return &ReconciliationService{
		orderParser:      orderParser,
		settlementParser: settlementParser,
		engine:           engine,
		config:           config,
		logger:           logger.GetGlobalLogger().WithComponent("reconciliation_service"),
	}, nil
}

// GetConfiguration returns the current configuration
func (rs *ReconciliationService) GetConfiguration() *Config {
	return rs.config
}

// Engine returns the underlying engine
func (rs *ReconciliationService) Engine() *Engine {
	return rs.engine
}

// ReconcileFiles reconciles an order ledger and a settlement report on disk
func (rs *ReconciliationService) ReconcileFiles(ctx context.Context, ordersPath, settlementsPath string) (*models.ReconciliationResult, error) {
	ordersFile, err := rs.orderParser.OpenFile(ordersPath)
	if err != nil {
		return nil, err
	}
	defer ordersFile.Close()

	settlementsFile, err := rs.settlementParser.OpenFile(settlementsPath)
	if err != nil {
		return nil, err
	}
	defer settlementsFile.Close()

	return rs.ReconcileReaders(ctx, ordersFile, settlementsFile)
}

// ReconcileReaders reconciles two CSV streams. Both are read fully before
// the engine runs; any structural input error aborts the run.
func (rs *ReconciliationService) ReconcileReaders(ctx context.Context, orders, settlements io.Reader) (*models.ReconciliationResult, error) {
	runID, ok := RunIDFromContext(ctx)
	if !ok {
		runID = uuid.NewString()
	}

	op := logger.NewOperationLogger("reconcile", rs.logger).WithField("run_id", runID)
	start := time.Now()

	result, err := rs.reconcile(ctx, op, orders, settlements)
	if err != nil {
		metrics.RecordFailure(time.Since(start))
		op.Error(err, "Reconciliation failed")
		return nil, err
	}

	metrics.RecordRun(result, time.Since(start))
	op.Success("Reconciliation completed", logger.Fields{
		"total_orders":      result.TotalOrders,
		"total_settlements": result.TotalSettlements,
		"matched":           result.Matched,
		"flagged":           result.FlaggedCount,
		"alerts":            len(result.PatternAlerts),
	})

	return result, nil
}

func (rs *ReconciliationService) reconcile(ctx context.Context, op *logger.OperationLogger, ordersIn, settlementsIn io.Reader) (*models.ReconciliationResult, error) {
	var (
		orders          []*models.OrderRecord
		settlements     []*models.SettlementRecord
		orderStats      *parsers.ParseStats
		settlementStats *parsers.ParseStats
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		orders, orderStats, err = rs.orderParser.Parse(gctx, ordersIn)
		return err
	})
	g.Go(func() error {
		var err error
		settlements, settlementStats, err = rs.settlementParser.Parse(gctx, settlementsIn)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, errors.WrapIfNeeded(err, errors.CategoryInternal, errors.CodeUnexpectedError, "input parsing failed")
	}

	op.Step("parsed", logger.Fields{
		"orders":              len(orders),
		"settlements":         len(settlements),
		"orders_skipped":      len(orderStats.Skipped),
		"settlements_skipped": len(settlementStats.Skipped),
	})

	if err := rs.validateInputs(orders, settlements); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.ReconciliationError(errors.CodeCancelled, "reconciliation", err)
	}

	result := rs.engine.Run(orders, settlements)
	result.Diagnostics.SkippedRows = append(orderStats.Skipped, settlementStats.Skipped...)

	for _, dup := range result.Diagnostics.Duplicates {
		op.Warning("Duplicate transaction identifier resolved by policy", logger.Fields{
			"source":         dup.Source,
			"transaction_id": dup.TransactionID,
			"lines":          dup.Lines,
			"kept_line":      dup.KeptLine,
		})
	}

	return result, nil
}

// validateInputs rejects empty inputs, and duplicate identifiers when the
// duplicate policy is reject.
func (rs *ReconciliationService) validateInputs(orders []*models.OrderRecord, settlements []*models.SettlementRecord) error {
	if len(orders) == 0 {
		return errors.ValidationError(errors.CodeEmptyFile, rs.config.Orders.Source, nil, nil)
	}
	if len(settlements) == 0 {
		return errors.ValidationError(errors.CodeEmptyFile, rs.config.Settlements.Source, nil, nil)
	}

	if rs.config.Engine.Matching.DuplicatePolicy != matcher.DuplicateReject {
		return nil
	}

	if dups := matcher.FindOrderDuplicates(orders); len(dups) > 0 {
		return errors.ValidationError(errors.CodeDuplicateIdentifier, rs.config.Orders.Source, matcher.DuplicateIDs(dups), nil).
			WithContext("duplicates", dups)
	}
	if dups := matcher.FindSettlementDuplicates(settlements); len(dups) > 0 {
		return errors.ValidationError(errors.CodeDuplicateIdentifier, rs.config.Settlements.Source, matcher.DuplicateIDs(dups), nil).
			WithContext("duplicates", dups)
	}

	return nil
}
