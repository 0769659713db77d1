// Package reporter renders reconciliation results for people and programs.
//
// Supported output formats:
//   - Console: human-readable summary for terminal display
//   - JSON: the canonical result document
//   - CSV: one row per transaction for spreadsheet applications
//   - Msgpack: compact binary form of the result document
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{
//		Format:          reporter.FormatConsole,
//		MaxConsoleRows:  50,
//		CSVDelimiter:    ',',
//		CSVHeaders:      true,
//	})
//	err = generator.GenerateReport(result, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"settlement-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
	FormatMsgpack OutputFormat = "msgpack"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV, FormatMsgpack:
		return true
	default:
		return false
	}
}

// IsBinary reports whether the format should not be written to a terminal
func (f OutputFormat) IsBinary() bool {
	return f == FormatMsgpack
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// Console options
	IncludeAllTransactions bool `json:"include_all_transactions"`
	IncludeDiagnostics     bool `json:"include_diagnostics"`
	MaxConsoleRows         int  `json:"max_console_rows"`

	// CSV options
	CSVDelimiter   rune `json:"csv_delimiter"`
	CSVHeaders     bool `json:"csv_headers"`
	CSVFlaggedOnly bool `json:"csv_flagged_only"`

	// JSON options
	JSONIndent bool `json:"json_indent"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:                 FormatConsole,
		IncludeAllTransactions: false,
		IncludeDiagnostics:     true,
		MaxConsoleRows:         50,
		CSVDelimiter:           ',',
		CSVHeaders:             true,
		CSVFlaggedOnly:         false,
		JSONIndent:             true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}

	if c.MaxConsoleRows < 0 {
		return fmt.Errorf("max console rows cannot be negative, got %d", c.MaxConsoleRows)
	}

	if c.Format == FormatCSV && (c.CSVDelimiter == 0 || c.CSVDelimiter == '"' || c.CSVDelimiter == '\n' || c.CSVDelimiter == '\r') {
		return fmt.Errorf("invalid CSV delimiter %q", c.CSVDelimiter)
	}

	return nil
}

// ReportGenerator generates reconciliation reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{
		config: config,
	}, nil
}

// Config returns the generator configuration
func (rg *ReportGenerator) Config() *ReportConfig {
	return rg.config
}

// GenerateReport renders result in the configured format and writes it to writer
func (rg *ReportGenerator) GenerateReport(result *models.ReconciliationResult, writer io.Writer) error {
	if result == nil {
		return fmt.Errorf("reconciliation result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(result, writer)
	case FormatJSON:
		return rg.generateJSONReport(result, writer)
	case FormatCSV:
		return rg.generateCSVReport(result, writer)
	case FormatMsgpack:
		return rg.generateMsgpackReport(result, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// generateConsoleReport generates a human-readable console report
func (rg *ReportGenerator) generateConsoleReport(result *models.ReconciliationResult, writer io.Writer) error {
	cw := &consoleWriter{w: writer}

	cw.printf("SETTLEMENT RECONCILIATION REPORT\n\n")

	cw.printf("=== SUMMARY ===\n")
	rg.printSummary(cw, result)
	cw.printf("\n")

	cw.printf("=== PATTERN ALERTS (%d) ===\n", len(result.PatternAlerts))
	rg.printAlerts(cw, result.PatternAlerts)
	cw.printf("\n")

	if len(result.ProcessorStats) > 0 {
		cw.printf("=== PROCESSOR BREAKDOWN ===\n")
		rg.printGroupTable(cw, "PROCESSOR", result.ProcessorStats)
		cw.printf("\n")
	}

	if len(result.CurrencyStats) > 0 {
		cw.printf("=== CURRENCY BREAKDOWN ===\n")
		rg.printGroupTable(cw, "CURRENCY", result.CurrencyStats)
		cw.printf("\n")
	}

	transactions := result.Transactions
	title := "ALL TRANSACTIONS"
	if !rg.config.IncludeAllTransactions {
		transactions = result.FlaggedTransactions()
		title = "FLAGGED TRANSACTIONS"
	}
	if len(transactions) > 0 {
		cw.printf("=== %s (%d) ===\n", title, len(transactions))
		rg.printTransactions(cw, transactions)
		cw.printf("\n")
	}

	if rg.config.IncludeDiagnostics && !result.Diagnostics.IsEmpty() {
		cw.printf("=== DIAGNOSTICS ===\n")
		rg.printDiagnostics(cw, result.Diagnostics)
	}

	return cw.err
}

// generateJSONReport writes the canonical JSON result document
func (rg *ReportGenerator) generateJSONReport(result *models.ReconciliationResult, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	if rg.config.JSONIndent {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(result)
}

// generateCSVReport writes one row per transaction in result order
func (rg *ReportGenerator) generateCSVReport(result *models.ReconciliationResult, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		if err := csvWriter.Write(csvHeaders); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	for _, tx := range result.Transactions {
		if rg.config.CSVFlaggedOnly && !tx.IsDiscrepancy {
			continue
		}
		if err := csvWriter.Write(NewTransactionRow(tx).Record()); err != nil {
			return fmt.Errorf("failed to write transaction %s: %w", tx.TransactionID, err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// generateMsgpackReport writes the result document as msgpack
func (rg *ReportGenerator) generateMsgpackReport(result *models.ReconciliationResult, writer io.Writer) error {
	encoder := msgpack.NewEncoder(writer)
	encoder.SetSortMapKeys(true)
	encoder.SetCustomStructTag("json")
	if err := encoder.Encode(NewDocument(result)); err != nil {
		return fmt.Errorf("failed to encode msgpack report: %w", err)
	}
	return nil
}

// Helper methods for console output formatting

// consoleWriter remembers the first write error so the print helpers stay linear.
type consoleWriter struct {
	w   io.Writer
	err error
}

func (cw *consoleWriter) printf(format string, args ...interface{}) {
	if cw.err != nil {
		return
	}
	_, cw.err = fmt.Fprintf(cw.w, format, args...)
}

func (cw *consoleWriter) table() *tabwriter.Writer {
	return tabwriter.NewWriter(cw, 0, 0, 2, ' ', 0)
}

func (cw *consoleWriter) Write(p []byte) (int, error) {
	if cw.err != nil {
		return 0, cw.err
	}
	n, err := cw.w.Write(p)
	cw.err = err
	return n, err
}

func (rg *ReportGenerator) printSummary(cw *consoleWriter, result *models.ReconciliationResult) {
	tw := cw.table()
	fmt.Fprintf(tw, "Orders:\t%d\n", result.TotalOrders)
	fmt.Fprintf(tw, "Settlements:\t%d\n", result.TotalSettlements)
	fmt.Fprintf(tw, "Matched:\t%d (%s%%)\n", result.Matched, result.MatchRatePct().StringFixed(1))
	fmt.Fprintf(tw, "Unmatched orders:\t%d\n", result.UnmatchedOrders)
	fmt.Fprintf(tw, "Unmatched settlements:\t%d\n", result.UnmatchedSettlements)
	fmt.Fprintf(tw, "Flagged:\t%d\n", result.FlaggedCount)
	fmt.Fprintf(tw, "Total discrepancy:\t$%s\n", result.TotalDiscrepancyUSD.StringFixed(2))
	tw.Flush()
}

func (rg *ReportGenerator) printAlerts(cw *consoleWriter, alerts []*models.PatternAlert) {
	if len(alerts) == 0 {
		cw.printf("No patterns detected\n")
		return
	}

	for _, alert := range alerts {
		cw.printf("[%s] %s\n", strings.ToUpper(string(alert.Severity)), alert.Title)
		cw.printf("  %s\n", alert.Message)
		if len(alert.TransactionIDs) > 0 {
			cw.printf("  Transactions: %s\n", strings.Join(alert.TransactionIDs, ", "))
		}
	}
}

func (rg *ReportGenerator) printGroupTable(cw *consoleWriter, label string, stats map[string]*models.GroupStat) {
	tw := cw.table()
	fmt.Fprintf(tw, "%s\tVOLUME\tFLAGGED\tRATE\tDISCREPANCY\n", label)
	for _, key := range sortedKeys(stats) {
		stat := stats[key]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s%%\t$%s\n",
			key, stat.VolumeCount, stat.DiscrepancyCount,
			stat.DiscrepancyRatePct().StringFixed(1), stat.DiscrepancyUSD.StringFixed(2))
	}
	tw.Flush()
}

func (rg *ReportGenerator) printTransactions(cw *consoleWriter, transactions []*models.Transaction) {
	limit := len(transactions)
	if rg.config.MaxConsoleRows > 0 && limit > rg.config.MaxConsoleRows {
		limit = rg.config.MaxConsoleRows
	}

	tw := cw.table()
	fmt.Fprintf(tw, "ID\tSTATUS\tCURRENCY\tPROCESSOR\tEXPECTED\tACTUAL\tDIFFERENCE\tREASON\n")
	for _, tx := range transactions[:limit] {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			tx.TransactionID, tx.Status, orDash(tx.Currency()), orDash(tx.Processor()),
			consoleAmount(tx.ExpectedUSD), consoleAmount(tx.ActualUSD), consoleAmount(tx.Difference),
			orDash(tx.Reason()))
	}
	tw.Flush()

	if remaining := len(transactions) - limit; remaining > 0 {
		cw.printf("... and %d more\n", remaining)
	}
}

func (rg *ReportGenerator) printDiagnostics(cw *consoleWriter, diagnostics models.Diagnostics) {
	for _, dup := range diagnostics.Duplicates {
		cw.printf("Duplicate %s identifier %s on lines %v (kept line %d)\n",
			dup.Source, dup.TransactionID, dup.Lines, dup.KeptLine)
	}
	for _, near := range diagnostics.NearMatches {
		cw.printf("Possible match: order %q (line %d) and settlement %q (line %d)\n",
			near.OrderID, near.OrderLine, near.SettlementID, near.SettlementLine)
	}
	for _, skipped := range diagnostics.SkippedRows {
		cw.printf("Skipped %s line %d: %s\n", skipped.Source, skipped.Line, skipped.Reason)
	}
}

func consoleAmount(d decimal.NullDecimal) string {
	if !d.Valid {
		return "-"
	}
	return d.Decimal.StringFixed(models.USDPlaces)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
