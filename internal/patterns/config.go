// Package patterns turns per-transaction findings into run-level anomaly
// alerts.
//
// Four rule families are evaluated independently:
//   - processor: a payment processor with a high share or a large total of flagged transactions
//   - currency: a customer currency with a high share of flagged transactions
//   - large_discrepancy: matched transactions with a large absolute difference
//   - fx_rate: matched transactions settled at an adverse FX rate
//
// The large discrepancy and FX rules emit one batched alert per run listing
// every implicated transaction. Group rules emit one alert per group.
//
// Example usage:
//
//	detector := patterns.NewDetector(patterns.DefaultConfig())
//	alerts := detector.Detect(result.Transactions, result.CurrencyStats, result.ProcessorStats)
package patterns

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Config holds the thresholds for every rule family
type Config struct {
	// MinFlagged is the number of flagged transactions a group needs before
	// it can raise an alert.
	MinFlagged int `json:"min_flagged"`

	// Processor rule: alert when rate > ProcessorRatePct or gap >= ProcessorGapUSD,
	// escalate to critical when rate >= ProcessorCriticalRatePct or gap >= ProcessorCriticalGapUSD.
	ProcessorRatePct         decimal.Decimal `json:"processor_rate_pct"`
	ProcessorGapUSD          decimal.Decimal `json:"processor_gap_usd"`
	ProcessorCriticalRatePct decimal.Decimal `json:"processor_critical_rate_pct"`
	ProcessorCriticalGapUSD  decimal.Decimal `json:"processor_critical_gap_usd"`

	// Currency rule: alert when rate > CurrencyRatePct
	CurrencyRatePct decimal.Decimal `json:"currency_rate_pct"`

	// LargeDiscrepancyUSD is the strict lower bound on |difference|
	LargeDiscrepancyUSD decimal.Decimal `json:"large_discrepancy_usd"`

	// FXDeviationPct is the strict lower bound on fx_deviation_pct
	FXDeviationPct decimal.Decimal `json:"fx_deviation_pct"`
}

// DefaultConfig returns the standard alert thresholds
func DefaultConfig() *Config {
	return &Config{
		MinFlagged:               2,
		ProcessorRatePct:         decimal.NewFromInt(15),
		ProcessorGapUSD:          decimal.NewFromInt(15),
		ProcessorCriticalRatePct: decimal.NewFromInt(30),
		ProcessorCriticalGapUSD:  decimal.NewFromInt(100),
		CurrencyRatePct:          decimal.NewFromInt(15),
		LargeDiscrepancyUSD:      decimal.NewFromInt(50),
		FXDeviationPct:           decimal.NewFromInt(3),
	}
}

// Validate checks that the thresholds are usable and that severity stays
// monotonic in both rate and gap.
func (c *Config) Validate() error {
	if c.MinFlagged < 1 {
		return fmt.Errorf("min_flagged must be at least 1, got %d", c.MinFlagged)
	}

	thresholds := []struct {
		name  string
		value decimal.Decimal
	}{
		{"processor_rate_pct", c.ProcessorRatePct},
		{"processor_gap_usd", c.ProcessorGapUSD},
		{"processor_critical_rate_pct", c.ProcessorCriticalRatePct},
		{"processor_critical_gap_usd", c.ProcessorCriticalGapUSD},
		{"currency_rate_pct", c.CurrencyRatePct},
		{"large_discrepancy_usd", c.LargeDiscrepancyUSD},
		{"fx_deviation_pct", c.FXDeviationPct},
	}
	for _, t := range thresholds {
		if t.value.IsNegative() {
			return fmt.Errorf("%s cannot be negative, got %s", t.name, t.value.String())
		}
	}

	if c.ProcessorCriticalRatePct.LessThan(c.ProcessorRatePct) {
		return fmt.Errorf("processor_critical_rate_pct (%s) must not be below processor_rate_pct (%s)",
			c.ProcessorCriticalRatePct.String(), c.ProcessorRatePct.String())
	}
	if c.ProcessorCriticalGapUSD.LessThan(c.ProcessorGapUSD) {
		return fmt.Errorf("processor_critical_gap_usd (%s) must not be below processor_gap_usd (%s)",
			c.ProcessorCriticalGapUSD.String(), c.ProcessorGapUSD.String())
	}

	return nil
}

// Clone returns a copy of the configuration
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
