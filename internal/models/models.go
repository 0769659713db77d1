package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date layout used in input files and JSON output.
const DateLayout = "2006-01-02"

// Status represents the match status of a transaction
type Status string

const (
	// StatusMatched means the identifier is present in both inputs
	StatusMatched Status = "matched"
	// StatusUnmatchedOrder means the identifier is present only in the orders
	StatusUnmatchedOrder Status = "unmatched_order"
	// StatusUnmatchedSettlement means the identifier is present only in the settlements
	StatusUnmatchedSettlement Status = "unmatched_settlement"
)

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// IsValid checks if the status is one of the known values
func (s Status) IsValid() bool {
	switch s {
	case StatusMatched, StatusUnmatchedOrder, StatusUnmatchedSettlement:
		return true
	}
	return false
}

// OrderRecord represents one row of the merchant order ledger
type OrderRecord struct {
	TransactionID    string
	OrderDate        *time.Time
	CustomerCurrency *string
	OriginalAmount   decimal.NullDecimal
	PaymentProcessor *string

	// Line is the source line number, used for diagnostics only.
	Line int
}

// Validate performs basic validation on the OrderRecord
func (o *OrderRecord) Validate() error {
	if strings.TrimSpace(o.TransactionID) == "" {
		return fmt.Errorf("order transaction ID cannot be empty")
	}
	if o.CustomerCurrency != nil && len(*o.CustomerCurrency) != 3 {
		return fmt.Errorf("invalid currency code '%s': must be 3 letters", *o.CustomerCurrency)
	}
	return nil
}

// String returns a string representation of the OrderRecord
func (o *OrderRecord) String() string {
	return fmt.Sprintf("Order{ID: %s, Amount: %s, Currency: %s, Processor: %s}",
		o.TransactionID, nullString(o.OriginalAmount), derefOr(o.CustomerCurrency, "-"), derefOr(o.PaymentProcessor, "-"))
}

// SettlementRecord represents one row of the processor settlement report
type SettlementRecord struct {
	TransactionID     string
	SettlementDate    *time.Time
	USDAmountReceived decimal.NullDecimal
	// FXRateApplied is quoted in local currency units per 1 USD.
	FXRateApplied decimal.NullDecimal
	FeesDeducted  decimal.NullDecimal

	// Line is the source line number, used for diagnostics only.
	Line int
}

// Validate performs basic validation on the SettlementRecord
func (s *SettlementRecord) Validate() error {
	if strings.TrimSpace(s.TransactionID) == "" {
		return fmt.Errorf("settlement transaction ID cannot be empty")
	}
	if s.FXRateApplied.Valid && s.FXRateApplied.Decimal.IsNegative() {
		return fmt.Errorf("fx rate cannot be negative: %s", s.FXRateApplied.Decimal.String())
	}
	return nil
}

// String returns a string representation of the SettlementRecord
func (s *SettlementRecord) String() string {
	return fmt.Sprintf("Settlement{ID: %s, USD: %s, FX: %s, Fees: %s}",
		s.TransactionID, nullString(s.USDAmountReceived), nullString(s.FXRateApplied), nullString(s.FeesDeducted))
}

// Transaction is the joined view of one order and/or settlement sharing an
// identifier. It is created by the matcher, enriched by the calculator and
// classifier, and read-only afterwards.
type Transaction struct {
	TransactionID string `json:"transaction_id"`

	OrderDate        *time.Time          `json:"-"`
	CustomerCurrency *string             `json:"customer_currency"`
	OriginalAmount   decimal.NullDecimal `json:"-"`
	PaymentProcessor *string             `json:"payment_processor"`

	SettlementDate *time.Time          `json:"-"`
	FXRateApplied  decimal.NullDecimal `json:"-"`
	FeesDeducted   decimal.NullDecimal `json:"-"`

	ExpectedUSD decimal.NullDecimal `json:"-"`
	// ActualUSD is the settlement's reported USD amount received.
	ActualUSD      decimal.NullDecimal `json:"-"`
	Difference     decimal.NullDecimal `json:"-"`
	DifferencePct  decimal.NullDecimal `json:"-"`
	FXDeviationPct decimal.NullDecimal `json:"-"`

	Status            Status  `json:"status"`
	IsDiscrepancy     bool    `json:"is_discrepancy"`
	DiscrepancyReason *string `json:"discrepancy_reason"`
}

// NewMatchedTransaction joins an order and a settlement with the same identifier.
func NewMatchedTransaction(order *OrderRecord, settlement *SettlementRecord) *Transaction {
	tx := &Transaction{TransactionID: order.TransactionID, Status: StatusMatched}
	tx.applyOrder(order)
	tx.applySettlement(settlement)
	return tx
}

// NewUnmatchedOrder creates a transaction for an order with no settlement.
func NewUnmatchedOrder(order *OrderRecord) *Transaction {
	tx := &Transaction{TransactionID: order.TransactionID, Status: StatusUnmatchedOrder}
	tx.applyOrder(order)
	return tx
}

// NewUnmatchedSettlement creates a transaction for a settlement with no order.
func NewUnmatchedSettlement(settlement *SettlementRecord) *Transaction {
	tx := &Transaction{TransactionID: settlement.TransactionID, Status: StatusUnmatchedSettlement}
	tx.applySettlement(settlement)
	return tx
}

func (t *Transaction) applyOrder(o *OrderRecord) {
	t.OrderDate = o.OrderDate
	t.CustomerCurrency = o.CustomerCurrency
	t.OriginalAmount = o.OriginalAmount
	t.PaymentProcessor = o.PaymentProcessor
}

func (t *Transaction) applySettlement(s *SettlementRecord) {
	t.SettlementDate = s.SettlementDate
	t.FXRateApplied = s.FXRateApplied
	t.FeesDeducted = s.FeesDeducted
	t.ActualUSD = s.USDAmountReceived
}

// IsMatched returns true if the transaction has both sides
func (t *Transaction) IsMatched() bool {
	return t.Status == StatusMatched
}

// Currency returns the customer currency or an empty string
func (t *Transaction) Currency() string {
	return derefOr(t.CustomerCurrency, "")
}

// Processor returns the payment processor or an empty string
func (t *Transaction) Processor() string {
	return derefOr(t.PaymentProcessor, "")
}

// AbsDifference returns |difference| and whether the difference is known.
func (t *Transaction) AbsDifference() (decimal.Decimal, bool) {
	if !t.Difference.Valid {
		return decimal.Zero, false
	}
	return t.Difference.Decimal.Abs(), true
}

// Reason returns the discrepancy reason or an empty string
func (t *Transaction) Reason() string {
	return derefOr(t.DiscrepancyReason, "")
}

// String returns a string representation of the Transaction
func (t *Transaction) String() string {
	return fmt.Sprintf("Transaction{ID: %s, Status: %s, Expected: %s, Actual: %s, Difference: %s, Flagged: %t}",
		t.TransactionID, t.Status, nullString(t.ExpectedUSD), nullString(t.ActualUSD), nullString(t.Difference), t.IsDiscrepancy)
}

// MarshalJSON implements custom JSON marshaling for Transaction. Amounts are
// rounded for presentation only.
func (t *Transaction) MarshalJSON() ([]byte, error) {
	type Alias Transaction
	return json.Marshal(&struct {
		*Alias
		OrderDate      *string         `json:"order_date"`
		SettlementDate *string         `json:"settlement_date"`
		OriginalAmount json.RawMessage `json:"original_amount"`
		FXRateApplied  json.RawMessage `json:"fx_rate_applied"`
		FeesDeducted   json.RawMessage `json:"fees_deducted"`
		ExpectedUSD    json.RawMessage `json:"expected_usd"`
		ActualUSD      json.RawMessage `json:"actual_usd"`
		Difference     json.RawMessage `json:"difference"`
		DifferencePct  json.RawMessage `json:"difference_pct"`
		FXDeviationPct json.RawMessage `json:"fx_deviation_pct"`
	}{
		Alias:          (*Alias)(t),
		OrderDate:      formatDate(t.OrderDate),
		SettlementDate: formatDate(t.SettlementDate),
		OriginalAmount: jsonDecimal(t.OriginalAmount),
		FXRateApplied:  jsonDecimal(t.FXRateApplied),
		FeesDeducted:   jsonRounded(t.FeesDeducted, AmountPlaces),
		ExpectedUSD:    jsonRounded(t.ExpectedUSD, AmountPlaces),
		ActualUSD:      jsonRounded(t.ActualUSD, AmountPlaces),
		Difference:     jsonRounded(t.Difference, AmountPlaces),
		DifferencePct:  jsonRounded(t.DifferencePct, PercentPlaces),
		FXDeviationPct: jsonRounded(t.FXDeviationPct, PercentPlaces),
	})
}

// Utility functions for type conversion and validation

// ParseDecimalFromString parses a decimal value from string with validation
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	// Remove common currency symbols and thousand separators
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	return d, nil
}

// ParseOptionalDecimal parses a decimal cell. A blank cell is a null value,
// anything else must parse.
func ParseOptionalDecimal(s string) (decimal.NullDecimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := ParseDecimalFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

// ParseTimeWithFormats attempts to parse time from string using multiple common formats
func ParseTimeWithFormats(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("time string cannot be empty")
	}

	formats := []string{
		DateLayout,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"01/02/2006",
		"2006/01/02",
		"Jan 2, 2006",
	}

	var lastErr error
	for _, format := range formats {
		t, err := time.Parse(format, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("unable to parse time '%s': %w", s, lastErr)
}

// ParseOptionalTime parses a date cell. A blank cell is a null value.
func ParseOptionalTime(s string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := ParseTimeWithFormats(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// StringPtr returns a pointer to the trimmed value, or nil when it is blank.
func StringPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

func nullString(d decimal.NullDecimal) string {
	if !d.Valid {
		return "null"
	}
	return d.Decimal.String()
}
