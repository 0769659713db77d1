// Package reconciler runs the reconciliation pipeline.
//
// The Engine is a pure function of two record sequences and its immutable
// EngineConfig:
//   - match orders and settlements by exact identifier
//   - derive expected USD, difference and FX deviation per matched transaction
//   - flag discrepancies with a human-readable reason
//   - aggregate counters and per-currency / per-processor statistics
//   - detect run-level patterns
//
// ReconciliationService wraps the Engine with CSV parsing, input validation,
// logging and metrics. It is what the CLI and the HTTP API call.
//
// Example usage:
//
//	service, err := reconciler.NewReconciliationService(reconciler.DefaultConfig())
//	result, err := service.ReconcileFiles(ctx, "orders.csv", "settlements.csv")
package reconciler

import (
	"settlement-reconciliation-service/internal/matcher"
	"settlement-reconciliation-service/internal/models"
	"settlement-reconciliation-service/internal/patterns"
	"settlement-reconciliation-service/pkg/errors"
	"settlement-reconciliation-service/pkg/logger"
)

// Engine reconciles already-parsed records. It holds no state between runs
// and is safe for concurrent use.
type Engine struct {
	config     *EngineConfig
	matcher    *matcher.Matcher
	calculator *Calculator
	classifier *Classifier
	detector   *patterns.Detector
	logger     logger.Logger
}

// NewEngine creates an engine. A nil config uses DefaultEngineConfig.
func NewEngine(config *EngineConfig) (*Engine, error) {
	if config == nil {
		config = DefaultEngineConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "engine", config.Matching, err)
	}

	return &Engine{
		config:     config,
		matcher:    matcher.NewMatcher(config.Matching),
		calculator: NewCalculator(config.Rates),
		classifier: NewClassifier(config),
		detector:   patterns.NewDetector(config.Patterns),
		logger:     logger.GetGlobalLogger().WithComponent("engine"),
	}, nil
}

// Config returns the engine configuration
func (e *Engine) Config() *EngineConfig {
	return e.config
}

// Run reconciles orders against settlements. The inputs are not modified
// and every distinct identifier appears exactly once in the result.
func (e *Engine) Run(orders []*models.OrderRecord, settlements []*models.SettlementRecord) *models.ReconciliationResult {
	matched := e.matcher.Match(orders, settlements)

	result := models.NewReconciliationResult()
	result.TotalOrders = matched.TotalOrders
	result.TotalSettlements = matched.TotalSettlements
	result.Transactions = matched.Transactions
	result.Diagnostics.Duplicates = matched.Duplicates
	result.Diagnostics.NearMatches = matched.NearMatches

	skipped := map[CalcOutcome]int{}
	for _, tx := range result.Transactions {
		skipped[e.calculator.Apply(tx)]++
		e.classifier.Classify(tx)
	}

	Aggregate(result)
	result.PatternAlerts = e.detector.Detect(result.Transactions, result.CurrencyStats, result.ProcessorStats)

	e.logger.WithFields(logger.Fields{
		"transactions":      len(result.Transactions),
		"matched":           result.Matched,
		"flagged":           result.FlaggedCount,
		"missing_fields":    skipped[CalcMissingFields],
		"zero_fx_rate":      skipped[CalcZeroRate],
		"duplicates":        len(result.Diagnostics.Duplicates),
		"near_matches":      len(result.Diagnostics.NearMatches),
		"alerts":            len(result.PatternAlerts),
		"total_discrepancy": result.TotalDiscrepancyUSD.StringFixed(2),
	}).Debug("Engine run completed")

	return result
}
