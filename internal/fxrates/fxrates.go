// Package fxrates holds the market reference exchange rates used to judge
// whether a processor applied an unfavorable FX rate.
package fxrates

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// RateTable is an immutable snapshot of market rates, quoted as local
// currency units per 1 USD. A table is safe for concurrent use.
type RateTable struct {
	rates map[string]decimal.Decimal
}

// NewRateTable builds a table from the given rates. Currency codes are
// upper-cased and every rate must be positive. The input map is copied.
func NewRateTable(rates map[string]decimal.Decimal) (*RateTable, error) {
	table := &RateTable{rates: make(map[string]decimal.Decimal, len(rates))}
	for code, rate := range rates {
		code = strings.ToUpper(strings.TrimSpace(code))
		if len(code) != 3 {
			return nil, fmt.Errorf("invalid currency code '%s'", code)
		}
		if !rate.IsPositive() {
			return nil, fmt.Errorf("market rate for %s must be positive, got %s", code, rate.String())
		}
		table.rates[code] = rate
	}
	return table, nil
}

// ParseRates builds a table from string values, as found in config files
// and environment variables.
func ParseRates(raw map[string]string) (*RateTable, error) {
	rates := make(map[string]decimal.Decimal, len(raw))
	for code, value := range raw {
		rate, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("invalid market rate for %s: %w", code, err)
		}
		rates[code] = rate
	}
	return NewRateTable(rates)
}

// DefaultRates returns the built-in reference rates.
func DefaultRates() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"MXN": decimal.RequireFromString("17.50"),
		"BRL": decimal.RequireFromString("5.00"),
		"IDR": decimal.RequireFromString("15500"),
		"KES": decimal.RequireFromString("130"),
		"COP": decimal.RequireFromString("4000"),
	}
}

// DefaultRateTable returns a fresh table holding the built-in reference rates.
func DefaultRateTable() *RateTable {
	table, err := NewRateTable(DefaultRates())
	if err != nil {
		panic(err)
	}
	return table
}

// Rate returns the market rate for a currency.
func (t *RateTable) Rate(currency string) (decimal.Decimal, bool) {
	rate, ok := t.rates[strings.ToUpper(currency)]
	return rate, ok
}

// Currencies returns the known currency codes in sorted order.
func (t *RateTable) Currencies() []string {
	codes := make([]string, 0, len(t.rates))
	for code := range t.rates {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Len returns the number of currencies in the table.
func (t *RateTable) Len() int {
	return len(t.rates)
}

// DeviationPct returns (applied - market) / market * 100. A positive value
// means the merchant received fewer USD than the market implied. The result
// is null when the currency has no reference rate.
func (t *RateTable) DeviationPct(currency string, applied decimal.Decimal) decimal.NullDecimal {
	market, ok := t.Rate(currency)
	if !ok {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(applied.Sub(market).Div(market).Mul(hundred))
}

// String returns a string representation of the RateTable
func (t *RateTable) String() string {
	parts := make([]string, 0, len(t.rates))
	for _, code := range t.Currencies() {
		parts = append(parts, fmt.Sprintf("%s=%s", code, t.rates[code].String()))
	}
	return "RateTable{" + strings.Join(parts, ", ") + "}"
}
