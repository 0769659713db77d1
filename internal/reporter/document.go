package reporter

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"settlement-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"
)

// Document is the flattened, format-neutral form of a ReconciliationResult.
// Amounts are decimal strings rounded the same way as the JSON document;
// a nil pointer means the value is unknown.
type Document struct {
	Summary        Summary             `json:"summary"`
	Transactions   []TransactionRow    `json:"transactions"`
	PatternAlerts  []AlertRow          `json:"pattern_alerts"`
	CurrencyStats  map[string]GroupRow `json:"currency_stats"`
	ProcessorStats map[string]GroupRow `json:"processor_stats"`
	Diagnostics    models.Diagnostics  `json:"diagnostics"`
}

// Summary holds the run-level counters
type Summary struct {
	TotalOrders          int    `json:"total_orders"`
	TotalSettlements     int    `json:"total_settlements"`
	Matched              int    `json:"matched"`
	UnmatchedOrders      int    `json:"unmatched_orders"`
	UnmatchedSettlements int    `json:"unmatched_settlements"`
	FlaggedCount         int    `json:"flagged_count"`
	TotalDiscrepancyUSD  string `json:"total_discrepancy_usd"`
}

// TransactionRow is one transaction with every value rendered as text
type TransactionRow struct {
	TransactionID     string  `json:"transaction_id"`
	Status            string  `json:"status"`
	OrderDate         *string `json:"order_date"`
	SettlementDate    *string `json:"settlement_date"`
	CustomerCurrency  *string `json:"customer_currency"`
	PaymentProcessor  *string `json:"payment_processor"`
	OriginalAmount    *string `json:"original_amount"`
	FXRateApplied     *string `json:"fx_rate_applied"`
	FeesDeducted      *string `json:"fees_deducted"`
	ExpectedUSD       *string `json:"expected_usd"`
	ActualUSD         *string `json:"actual_usd"`
	Difference        *string `json:"difference"`
	DifferencePct     *string `json:"difference_pct"`
	FXDeviationPct    *string `json:"fx_deviation_pct"`
	IsDiscrepancy     bool    `json:"is_discrepancy"`
	DiscrepancyReason *string `json:"discrepancy_reason"`
}

// AlertRow is one pattern alert with decimals rendered as text
type AlertRow struct {
	Type               string   `json:"type"`
	Severity           string   `json:"severity"`
	Title              string   `json:"title"`
	Message            string   `json:"message"`
	Processor          string   `json:"processor,omitempty"`
	Currency           string   `json:"currency,omitempty"`
	TransactionIDs     []string `json:"transaction_ids"`
	Count              int      `json:"count,omitempty"`
	FlaggedCount       int      `json:"flagged_count,omitempty"`
	TotalCount         int      `json:"total_count,omitempty"`
	DiscrepancyRatePct *string  `json:"discrepancy_rate_pct,omitempty"`
	TotalDifferenceUSD *string  `json:"total_difference_usd,omitempty"`
	MaxFXDeviationPct  *string  `json:"max_fx_deviation_pct,omitempty"`
}

// GroupRow is one currency or processor breakdown entry
type GroupRow struct {
	VolumeCount      int    `json:"volume_count"`
	DiscrepancyCount int    `json:"discrepancy_count"`
	DiscrepancyUSD   string `json:"discrepancy_usd"`
}

var csvHeaders = []string{
	"transaction_id",
	"status",
	"order_date",
	"settlement_date",
	"customer_currency",
	"payment_processor",
	"original_amount",
	"fx_rate_applied",
	"fees_deducted",
	"expected_usd",
	"actual_usd",
	"difference",
	"difference_pct",
	"fx_deviation_pct",
	"is_discrepancy",
	"discrepancy_reason",
}

// NewDocument flattens result into a Document
func NewDocument(result *models.ReconciliationResult) *Document {
	doc := &Document{
		Summary: Summary{
			TotalOrders:          result.TotalOrders,
			TotalSettlements:     result.TotalSettlements,
			Matched:              result.Matched,
			UnmatchedOrders:      result.UnmatchedOrders,
			UnmatchedSettlements: result.UnmatchedSettlements,
			FlaggedCount:         result.FlaggedCount,
			TotalDiscrepancyUSD:  result.TotalDiscrepancyUSD.Round(models.USDPlaces).String(),
		},
		Transactions:   make([]TransactionRow, 0, len(result.Transactions)),
		PatternAlerts:  make([]AlertRow, 0, len(result.PatternAlerts)),
		CurrencyStats:  groupRows(result.CurrencyStats),
		ProcessorStats: groupRows(result.ProcessorStats),
		Diagnostics:    result.Diagnostics,
	}

	for _, tx := range result.Transactions {
		doc.Transactions = append(doc.Transactions, NewTransactionRow(tx))
	}

	for _, alert := range result.PatternAlerts {
		ids := alert.TransactionIDs
		if ids == nil {
			ids = []string{}
		}
		doc.PatternAlerts = append(doc.PatternAlerts, AlertRow{
			Type:               string(alert.Type),
			Severity:           string(alert.Severity),
			Title:              alert.Title,
			Message:            alert.Message,
			Processor:          alert.Processor,
			Currency:           alert.Currency,
			TransactionIDs:     ids,
			Count:              alert.Count,
			FlaggedCount:       alert.FlaggedCount,
			TotalCount:         alert.TotalCount,
			DiscrepancyRatePct: rounded(alert.DiscrepancyRatePct, models.RatePlaces),
			TotalDifferenceUSD: rounded(alert.TotalDifferenceUSD, models.USDPlaces),
			MaxFXDeviationPct:  rounded(alert.MaxFXDeviationPct, models.PercentPlaces),
		})
	}

	return doc
}

// NewTransactionRow renders a transaction the way the JSON document does
func NewTransactionRow(tx *models.Transaction) TransactionRow {
	return TransactionRow{
		TransactionID:     tx.TransactionID,
		Status:            string(tx.Status),
		OrderDate:         date(tx.OrderDate),
		SettlementDate:    date(tx.SettlementDate),
		CustomerCurrency:  tx.CustomerCurrency,
		PaymentProcessor:  tx.PaymentProcessor,
		OriginalAmount:    exact(tx.OriginalAmount),
		FXRateApplied:     exact(tx.FXRateApplied),
		FeesDeducted:      rounded(tx.FeesDeducted, models.AmountPlaces),
		ExpectedUSD:       rounded(tx.ExpectedUSD, models.AmountPlaces),
		ActualUSD:         rounded(tx.ActualUSD, models.AmountPlaces),
		Difference:        rounded(tx.Difference, models.AmountPlaces),
		DifferencePct:     rounded(tx.DifferencePct, models.PercentPlaces),
		FXDeviationPct:    rounded(tx.FXDeviationPct, models.PercentPlaces),
		IsDiscrepancy:     tx.IsDiscrepancy,
		DiscrepancyReason: tx.DiscrepancyReason,
	}
}

// Record returns the row as CSV fields in csvHeaders order. Unknown values are empty.
func (r TransactionRow) Record() []string {
	return []string{
		r.TransactionID,
		r.Status,
		deref(r.OrderDate),
		deref(r.SettlementDate),
		deref(r.CustomerCurrency),
		deref(r.PaymentProcessor),
		deref(r.OriginalAmount),
		deref(r.FXRateApplied),
		deref(r.FeesDeducted),
		deref(r.ExpectedUSD),
		deref(r.ActualUSD),
		deref(r.Difference),
		deref(r.DifferencePct),
		deref(r.FXDeviationPct),
		strconv.FormatBool(r.IsDiscrepancy),
		deref(r.DiscrepancyReason),
	}
}

// DecodeMsgpack reads a Document previously written in the msgpack format
func DecodeMsgpack(r io.Reader) (*Document, error) {
	decoder := msgpack.NewDecoder(r)
	decoder.SetCustomStructTag("json")

	var doc Document
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode msgpack report: %w", err)
	}
	return &doc, nil
}

func groupRows(stats map[string]*models.GroupStat) map[string]GroupRow {
	rows := make(map[string]GroupRow, len(stats))
	for key, stat := range stats {
		rows[key] = GroupRow{
			VolumeCount:      stat.VolumeCount,
			DiscrepancyCount: stat.DiscrepancyCount,
			DiscrepancyUSD:   stat.DiscrepancyUSD.Round(models.USDPlaces).String(),
		}
	}
	return rows
}

func sortedKeys(stats map[string]*models.GroupStat) []string {
	keys := make([]string, 0, len(stats))
	for key := range stats {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func rounded(d decimal.NullDecimal, places int32) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.Round(places).String()
	return &s
}

func exact(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

func date(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(models.DateLayout)
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
