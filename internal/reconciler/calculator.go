package reconciler

import (
	"settlement-reconciliation-service/internal/fxrates"
	"settlement-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// CalcOutcome describes what the calculator could derive for a transaction
type CalcOutcome int

const (
	// CalcComputed means the difference was derived
	CalcComputed CalcOutcome = iota
	// CalcNotApplicable means the transaction is unmatched
	CalcNotApplicable
	// CalcMissingFields means an input needed for the difference was null
	CalcMissingFields
	// CalcZeroRate means fx_rate_applied was zero
	CalcZeroRate
)

// Calculator derives expected USD, difference and FX deviation for matched
// transactions.
type Calculator struct {
	rates *fxrates.RateTable
}

// NewCalculator creates a calculator using the given market rates
func NewCalculator(rates *fxrates.RateTable) *Calculator {
	return &Calculator{rates: rates}
}

// Apply enriches tx in place. Derived fields that cannot be computed stay
// null; Apply never fails.
func (c *Calculator) Apply(tx *models.Transaction) CalcOutcome {
	if !tx.IsMatched() {
		return CalcNotApplicable
	}

	if tx.CustomerCurrency != nil && tx.FXRateApplied.Valid {
		tx.FXDeviationPct = c.rates.DeviationPct(*tx.CustomerCurrency, tx.FXRateApplied.Decimal)
	}

	if !tx.OriginalAmount.Valid || !tx.FXRateApplied.Valid || !tx.FeesDeducted.Valid {
		return CalcMissingFields
	}
	if tx.FXRateApplied.Decimal.IsZero() {
		return CalcZeroRate
	}

	gross := tx.OriginalAmount.Decimal.Div(tx.FXRateApplied.Decimal)
	expected := gross.Sub(tx.FeesDeducted.Decimal)
	tx.ExpectedUSD = decimal.NewNullDecimal(expected)

	if !tx.ActualUSD.Valid {
		return CalcMissingFields
	}

	difference := tx.ActualUSD.Decimal.Sub(expected)
	tx.Difference = decimal.NewNullDecimal(difference)
	if !expected.IsZero() {
		tx.DifferencePct = decimal.NewNullDecimal(difference.Div(expected).Mul(hundred))
	}

	return CalcComputed
}
