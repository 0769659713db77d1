package reconciler

import (
	"fmt"

	"settlement-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

// Reasons for transactions that have no counterpart
const (
	ReasonNoSettlement = "No matching settlement record"
	ReasonNoOrder      = "No matching order record"
)

// Classifier decides whether a transaction is a discrepancy and why
type Classifier struct {
	threshold      decimal.Decimal
	largeReasonUSD decimal.Decimal
	highPctReason  decimal.Decimal
	fxReasonPct    decimal.Decimal
}

// NewClassifier creates a classifier from the engine thresholds
func NewClassifier(config *EngineConfig) *Classifier {
	return &Classifier{
		threshold:      config.DiscrepancyThreshold,
		largeReasonUSD: config.LargeReasonUSD,
		highPctReason:  config.HighPctReason,
		fxReasonPct:    config.FXReasonPct,
	}
}

// Classify sets IsDiscrepancy and DiscrepancyReason on tx. Unmatched
// transactions are always flagged. A matched transaction is flagged only
// when its difference is known and strictly exceeds the threshold.
func (c *Classifier) Classify(tx *models.Transaction) {
	switch tx.Status {
	case models.StatusUnmatchedOrder:
		tx.IsDiscrepancy = true
		tx.DiscrepancyReason = models.StringPtr(ReasonNoSettlement)
		return
	case models.StatusUnmatchedSettlement:
		tx.IsDiscrepancy = true
		tx.DiscrepancyReason = models.StringPtr(ReasonNoOrder)
		return
	}

	abs, ok := tx.AbsDifference()
	if !ok || !abs.GreaterThan(c.threshold) {
		tx.IsDiscrepancy = false
		tx.DiscrepancyReason = nil
		return
	}

	tx.IsDiscrepancy = true
	reason := c.reason(tx, abs)
	tx.DiscrepancyReason = &reason
}

// reason renders "<tier>: <direction>[; <fx context>]"
func (c *Classifier) reason(tx *models.Transaction, abs decimal.Decimal) string {
	var tier string
	switch {
	case abs.GreaterThan(c.largeReasonUSD):
		tier = "Large discrepancy"
	case tx.DifferencePct.Valid && tx.DifferencePct.Decimal.Abs().GreaterThan(c.highPctReason):
		tier = fmt.Sprintf("High %% deviation (%s%%)", tx.DifferencePct.Decimal.Abs().StringFixed(1))
	default:
		tier = "Settlement mismatch"
	}

	direction := "overpaid"
	if tx.Difference.Decimal.IsNegative() {
		direction = "underpaid"
	}

	reason := fmt.Sprintf("%s: %s by $%s vs expected", tier, direction, abs.StringFixed(2))

	if tx.FXDeviationPct.Valid && tx.FXDeviationPct.Decimal.GreaterThan(c.fxReasonPct) {
		reason += fmt.Sprintf("; FX rate %s%% worse than market reference", tx.FXDeviationPct.Decimal.StringFixed(2))
	}

	return reason
}
