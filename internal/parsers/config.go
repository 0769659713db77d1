package parsers

import (
	"fmt"
	"strings"
)

// Standard column names. ColumnAliases map these to the header actually
// used in a given file.
const (
	ColumnTransactionID     = "transaction_id"
	ColumnOrderDate         = "order_date"
	ColumnCustomerCurrency  = "customer_currency"
	ColumnOriginalAmount    = "original_amount"
	ColumnPaymentProcessor  = "payment_processor"
	ColumnSettlementDate    = "settlement_date"
	ColumnUSDAmountReceived = "usd_amount_received"
	ColumnFXRateApplied     = "fx_rate_applied"
	ColumnFeesDeducted      = "fees_deducted"
)

// OrderParserConfig holds configuration for parsing the order ledger
type OrderParserConfig struct {
	Source          string            `json:"source" mapstructure:"source"`
	Delimiter       rune              `json:"delimiter" mapstructure:"delimiter"`
	SkipInvalidRows bool              `json:"skip_invalid_rows" mapstructure:"skip_invalid_rows"`
	ColumnAliases   map[string]string `json:"column_aliases,omitempty" mapstructure:"column_aliases"`
}

// DefaultOrderParserConfig returns a configuration with standard defaults
func DefaultOrderParserConfig() *OrderParserConfig {
	return &OrderParserConfig{
		Source:        "orders",
		Delimiter:     ',',
		ColumnAliases: make(map[string]string),
	}
}

// Validate checks if the order parser configuration is valid
func (c *OrderParserConfig) Validate() error {
	if strings.TrimSpace(c.Source) == "" {
		return fmt.Errorf("source name cannot be empty")
	}
	return validateAliases(c.ColumnAliases, orderColumns)
}

// GetColumnName returns the actual column name, checking aliases first
func (c *OrderParserConfig) GetColumnName(standardName string) string {
	if alias, exists := c.ColumnAliases[standardName]; exists {
		return alias
	}
	return standardName
}

// RequiredHeaders returns the header names every order file must carry
func (c *OrderParserConfig) RequiredHeaders() []string {
	return resolveColumns(orderColumns, c.GetColumnName)
}

// SettlementParserConfig holds configuration for parsing the settlement report
type SettlementParserConfig struct {
	Source          string            `json:"source" mapstructure:"source"`
	Delimiter       rune              `json:"delimiter" mapstructure:"delimiter"`
	SkipInvalidRows bool              `json:"skip_invalid_rows" mapstructure:"skip_invalid_rows"`
	ColumnAliases   map[string]string `json:"column_aliases,omitempty" mapstructure:"column_aliases"`
}

// DefaultSettlementParserConfig returns a configuration with standard defaults
func DefaultSettlementParserConfig() *SettlementParserConfig {
	return &SettlementParserConfig{
		Source:        "settlements",
		Delimiter:     ',',
		ColumnAliases: make(map[string]string),
	}
}

// Validate checks if the settlement parser configuration is valid
func (c *SettlementParserConfig) Validate() error {
	if strings.TrimSpace(c.Source) == "" {
		return fmt.Errorf("source name cannot be empty")
	}
	return validateAliases(c.ColumnAliases, settlementColumns)
}

// GetColumnName returns the actual column name, checking aliases first
func (c *SettlementParserConfig) GetColumnName(standardName string) string {
	if alias, exists := c.ColumnAliases[standardName]; exists {
		return alias
	}
	return standardName
}

// RequiredHeaders returns the header names every settlement file must carry
func (c *SettlementParserConfig) RequiredHeaders() []string {
	return resolveColumns(settlementColumns, c.GetColumnName)
}

var orderColumns = []string{
	ColumnTransactionID,
	ColumnOrderDate,
	ColumnCustomerCurrency,
	ColumnOriginalAmount,
	ColumnPaymentProcessor,
}

var settlementColumns = []string{
	ColumnTransactionID,
	ColumnSettlementDate,
	ColumnUSDAmountReceived,
	ColumnFXRateApplied,
	ColumnFeesDeducted,
}

func resolveColumns(standard []string, resolve func(string) string) []string {
	out := make([]string, len(standard))
	for i, name := range standard {
		out[i] = resolve(name)
	}
	return out
}

func validateAliases(aliases map[string]string, known []string) error {
	for standard, alias := range aliases {
		found := false
		for _, name := range known {
			if name == standard {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("unknown column '%s' in aliases", standard)
		}
		if strings.TrimSpace(alias) == "" {
			return fmt.Errorf("alias for column '%s' cannot be empty", standard)
		}
	}
	return nil
}
