package reconciler

import (
	"fmt"

	"settlement-reconciliation-service/internal/fxrates"
	"settlement-reconciliation-service/internal/matcher"
	"settlement-reconciliation-service/internal/parsers"
	"settlement-reconciliation-service/internal/patterns"

	"github.com/shopspring/decimal"
)

// EngineConfig holds the immutable configuration of one Engine. The engine
// reads it on every run and never modifies it.
type EngineConfig struct {
	// DiscrepancyThreshold is the strict lower bound on |difference| for a
	// matched transaction to be flagged.
	DiscrepancyThreshold decimal.Decimal

	// LargeReasonUSD and HighPctReason pick the reason prefix of a flagged
	// matched transaction.
	LargeReasonUSD decimal.Decimal
	HighPctReason  decimal.Decimal

	// FXReasonPct is the fx_deviation_pct above which the reason mentions the
	// adverse rate.
	FXReasonPct decimal.Decimal

	Rates    *fxrates.RateTable
	Matching *matcher.MatchingConfig
	Patterns *patterns.Config
}

// DefaultEngineConfig returns the standard thresholds and market rates
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		DiscrepancyThreshold: decimal.RequireFromString("0.50"),
		LargeReasonUSD:       decimal.NewFromInt(100),
		HighPctReason:        decimal.NewFromInt(5),
		FXReasonPct:          decimal.NewFromInt(3),
		Rates:                fxrates.DefaultRateTable(),
		Matching:             matcher.DefaultMatchingConfig(),
		Patterns:             patterns.DefaultConfig(),
	}
}

// Validate validates the engine configuration
func (c *EngineConfig) Validate() error {
	if c.DiscrepancyThreshold.IsNegative() {
		return fmt.Errorf("discrepancy threshold cannot be negative, got %s", c.DiscrepancyThreshold.String())
	}
	if c.LargeReasonUSD.IsNegative() || c.HighPctReason.IsNegative() || c.FXReasonPct.IsNegative() {
		return fmt.Errorf("reason thresholds cannot be negative")
	}
	if c.Rates == nil {
		return fmt.Errorf("market rate table is required")
	}
	if c.Matching == nil {
		return fmt.Errorf("matching configuration is required")
	}
	if err := c.Matching.Validate(); err != nil {
		return fmt.Errorf("invalid matching configuration: %w", err)
	}
	if c.Patterns == nil {
		return fmt.Errorf("pattern configuration is required")
	}
	if err := c.Patterns.Validate(); err != nil {
		return fmt.Errorf("invalid pattern configuration: %w", err)
	}
	return nil
}

// Config holds configuration options for the reconciliation service
type Config struct {
	Engine      *EngineConfig
	Orders      *parsers.OrderParserConfig
	Settlements *parsers.SettlementParserConfig
}

// DefaultConfig returns a default configuration for the reconciliation service
func DefaultConfig() *Config {
	return &Config{
		Engine:      DefaultEngineConfig(),
		Orders:      parsers.DefaultOrderParserConfig(),
		Settlements: parsers.DefaultSettlementParserConfig(),
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Engine == nil {
		return fmt.Errorf("engine configuration is required")
	}
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	if c.Orders == nil || c.Settlements == nil {
		return fmt.Errorf("parser configuration is required for both inputs")
	}
	if err := c.Orders.Validate(); err != nil {
		return fmt.Errorf("invalid orders parser configuration: %w", err)
	}
	if err := c.Settlements.Validate(); err != nil {
		return fmt.Errorf("invalid settlements parser configuration: %w", err)
	}
	return nil
}
