package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Presentation precision for JSON output. Comparisons never use these.
const (
	AmountPlaces  int32 = 4
	PercentPlaces int32 = 2
	USDPlaces     int32 = 2
	RatePlaces    int32 = 1
)

// GroupStat aggregates the transactions sharing one currency or processor
type GroupStat struct {
	VolumeCount      int             `json:"volume_count"`
	DiscrepancyCount int             `json:"discrepancy_count"`
	DiscrepancyUSD   decimal.Decimal `json:"-"`
}

// DiscrepancyRatePct returns flagged/volume as a percentage.
func (g *GroupStat) DiscrepancyRatePct() decimal.Decimal {
	if g.VolumeCount == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(g.DiscrepancyCount)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(g.VolumeCount)))
}

// MarshalJSON implements custom JSON marshaling for GroupStat
func (g *GroupStat) MarshalJSON() ([]byte, error) {
	type Alias GroupStat
	return json.Marshal(&struct {
		*Alias
		DiscrepancyUSD json.RawMessage `json:"discrepancy_usd"`
	}{
		Alias:          (*Alias)(g),
		DiscrepancyUSD: jsonRounded(decimal.NewNullDecimal(g.DiscrepancyUSD), USDPlaces),
	})
}

// AlertType identifies the rule family that produced an alert
type AlertType string

const (
	AlertTypeProcessor        AlertType = "processor"
	AlertTypeCurrency         AlertType = "currency"
	AlertTypeLargeDiscrepancy AlertType = "large_discrepancy"
	AlertTypeFXRate           AlertType = "fx_rate"
)

// Severity ranks how urgent an alert is
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
)

// Rank orders severities; higher is more urgent.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	}
	return 0
}

// PatternAlert is an anomaly inferred from aggregated discrepancy statistics.
// Supporting fields are set only when relevant to the alert type.
type PatternAlert struct {
	Type     AlertType `json:"type"`
	Severity Severity  `json:"severity"`
	Title    string    `json:"title"`
	Message  string    `json:"message"`

	Processor      string   `json:"processor,omitempty"`
	Currency       string   `json:"currency,omitempty"`
	TransactionIDs []string `json:"transaction_ids"`
	Count          int      `json:"count,omitempty"`
	FlaggedCount   int      `json:"flagged_count,omitempty"`
	TotalCount     int      `json:"total_count,omitempty"`

	DiscrepancyRatePct decimal.NullDecimal `json:"-"`
	TotalDifferenceUSD decimal.NullDecimal `json:"-"`
	MaxFXDeviationPct  decimal.NullDecimal `json:"-"`
}

// String returns a string representation of the PatternAlert
func (a *PatternAlert) String() string {
	return fmt.Sprintf("PatternAlert{Type: %s, Severity: %s, Title: %s, IDs: %d}",
		a.Type, a.Severity, a.Title, len(a.TransactionIDs))
}

// MarshalJSON implements custom JSON marshaling for PatternAlert
func (a *PatternAlert) MarshalJSON() ([]byte, error) {
	type Alias PatternAlert
	ids := a.TransactionIDs
	if ids == nil {
		ids = []string{}
	}
	return json.Marshal(&struct {
		*Alias
		TransactionIDs     []string        `json:"transaction_ids"`
		DiscrepancyRatePct json.RawMessage `json:"discrepancy_rate_pct,omitempty"`
		TotalDifferenceUSD json.RawMessage `json:"total_difference_usd,omitempty"`
		MaxFXDeviationPct  json.RawMessage `json:"max_fx_deviation_pct,omitempty"`
	}{
		Alias:              (*Alias)(a),
		TransactionIDs:     ids,
		DiscrepancyRatePct: optionalRounded(a.DiscrepancyRatePct, RatePlaces),
		TotalDifferenceUSD: optionalRounded(a.TotalDifferenceUSD, USDPlaces),
		MaxFXDeviationPct:  optionalRounded(a.MaxFXDeviationPct, PercentPlaces),
	})
}

// DuplicateRecord describes an identifier that occurred more than once in one input
type DuplicateRecord struct {
	Source        string `json:"source"`
	TransactionID string `json:"transaction_id"`
	Lines         []int  `json:"lines"`
	KeptLine      int    `json:"kept_line,omitempty"`
}

// NearMatch pairs an unmatched order and an unmatched settlement whose
// identifiers differ only in case or surrounding whitespace.
type NearMatch struct {
	OrderID        string `json:"order_id"`
	SettlementID   string `json:"settlement_id"`
	OrderLine      int    `json:"order_line"`
	SettlementLine int    `json:"settlement_line"`
}

// SkippedRow records an input row dropped by the normalizer
type SkippedRow struct {
	Source string `json:"source"`
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// Diagnostics holds facts about the input that did not change any
// transaction but explain how the inputs were resolved.
type Diagnostics struct {
	Duplicates  []DuplicateRecord `json:"duplicates"`
	NearMatches []NearMatch       `json:"near_matches"`
	SkippedRows []SkippedRow      `json:"skipped_rows"`
}

// IsEmpty returns true if there is nothing to report
func (d Diagnostics) IsEmpty() bool {
	return len(d.Duplicates) == 0 && len(d.NearMatches) == 0 && len(d.SkippedRows) == 0
}

// MarshalJSON renders empty lists as [] rather than null
func (d Diagnostics) MarshalJSON() ([]byte, error) {
	type Alias Diagnostics
	out := Alias(d)
	if out.Duplicates == nil {
		out.Duplicates = []DuplicateRecord{}
	}
	if out.NearMatches == nil {
		out.NearMatches = []NearMatch{}
	}
	if out.SkippedRows == nil {
		out.SkippedRows = []SkippedRow{}
	}
	return json.Marshal(out)
}

// ReconciliationResult is the complete output of one reconciliation run.
// It is owned by the caller; the engine keeps no reference to it.
type ReconciliationResult struct {
	TotalOrders          int             `json:"total_orders"`
	TotalSettlements     int             `json:"total_settlements"`
	Matched              int             `json:"matched"`
	UnmatchedOrders      int             `json:"unmatched_orders"`
	UnmatchedSettlements int             `json:"unmatched_settlements"`
	FlaggedCount         int             `json:"flagged_count"`
	TotalDiscrepancyUSD  decimal.Decimal `json:"-"`

	Transactions   []*Transaction        `json:"transactions"`
	PatternAlerts  []*PatternAlert       `json:"pattern_alerts"`
	CurrencyStats  map[string]*GroupStat `json:"currency_stats"`
	ProcessorStats map[string]*GroupStat `json:"processor_stats"`
	Diagnostics    Diagnostics           `json:"diagnostics"`
}

// NewReconciliationResult creates an empty result with initialized collections
func NewReconciliationResult() *ReconciliationResult {
	return &ReconciliationResult{
		TotalDiscrepancyUSD: decimal.Zero,
		Transactions:        []*Transaction{},
		PatternAlerts:       []*PatternAlert{},
		CurrencyStats:       make(map[string]*GroupStat),
		ProcessorStats:      make(map[string]*GroupStat),
	}
}

// FlaggedTransactions returns the transactions marked as discrepancies, in result order
func (r *ReconciliationResult) FlaggedTransactions() []*Transaction {
	var flagged []*Transaction
	for _, tx := range r.Transactions {
		if tx.IsDiscrepancy {
			flagged = append(flagged, tx)
		}
	}
	return flagged
}

// TransactionsByStatus returns the transactions with the given status, in result order
func (r *ReconciliationResult) TransactionsByStatus(status Status) []*Transaction {
	var out []*Transaction
	for _, tx := range r.Transactions {
		if tx.Status == status {
			out = append(out, tx)
		}
	}
	return out
}

// MatchRatePct returns matched / distinct identifiers as a percentage
func (r *ReconciliationResult) MatchRatePct() decimal.Decimal {
	total := len(r.Transactions)
	if total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(r.Matched)).Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(int64(total)))
}

// HighestSeverity returns the most urgent alert severity, or "" when there are no alerts
func (r *ReconciliationResult) HighestSeverity() Severity {
	var highest Severity
	for _, a := range r.PatternAlerts {
		if a.Severity.Rank() > highest.Rank() {
			highest = a.Severity
		}
	}
	return highest
}

// MarshalJSON implements custom JSON marshaling for ReconciliationResult
func (r *ReconciliationResult) MarshalJSON() ([]byte, error) {
	type Alias ReconciliationResult
	out := struct {
		*Alias
		TotalDiscrepancyUSD json.RawMessage `json:"total_discrepancy_usd"`
		Transactions        []*Transaction  `json:"transactions"`
		PatternAlerts       []*PatternAlert `json:"pattern_alerts"`
	}{
		Alias:               (*Alias)(r),
		TotalDiscrepancyUSD: jsonRounded(decimal.NewNullDecimal(r.TotalDiscrepancyUSD), USDPlaces),
		Transactions:        r.Transactions,
		PatternAlerts:       r.PatternAlerts,
	}
	if out.Transactions == nil {
		out.Transactions = []*Transaction{}
	}
	if out.PatternAlerts == nil {
		out.PatternAlerts = []*PatternAlert{}
	}
	return json.Marshal(&out)
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(DateLayout)
	return &s
}

var jsonNull = json.RawMessage("null")

// jsonDecimal renders an optional decimal as an unrounded JSON number or null.
func jsonDecimal(d decimal.NullDecimal) json.RawMessage {
	if !d.Valid {
		return jsonNull
	}
	return json.RawMessage(d.Decimal.String())
}

// jsonRounded renders an optional decimal as a JSON number rounded to places, or null.
func jsonRounded(d decimal.NullDecimal, places int32) json.RawMessage {
	if !d.Valid {
		return jsonNull
	}
	return json.RawMessage(d.Decimal.Round(places).String())
}

// optionalRounded is jsonRounded for omitempty fields.
func optionalRounded(d decimal.NullDecimal, places int32) json.RawMessage {
	if !d.Valid {
		return nil
	}
	return jsonRounded(d, places)
}
