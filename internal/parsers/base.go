// Package parsers normalizes the two CSV inputs into typed records.
//
// It is the only place where raw text is interpreted. Everything downstream
// receives OrderRecord and SettlementRecord values with absent cells
// represented as nulls, never as sentinel strings.
//
// Structural problems are reported as *errors.ReconcilerError before any
// reconciliation work happens:
//   - an input with no header row is an empty_file validation error
//   - a header without a required column is a missing_column parse error
//   - a non-blank cell that does not parse is an invalid_data parse error
//
// By default the first bad row fails the whole input. With SkipInvalidRows
// set, bad rows are dropped and reported in ParseStats.Skipped instead.
//
// Example usage:
//
//	parser, err := parsers.NewOrderParser(parsers.DefaultOrderParserConfig())
//	orders, stats, err := parser.Parse(ctx, file)
package parsers

import (
	"bytes"
	"context"
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"settlement-reconciliation-service/internal/models"
	"settlement-reconciliation-service/pkg/errors"
	"settlement-reconciliation-service/pkg/logger"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseConfig holds configuration for CSV parsing
type ParseConfig struct {
	Delimiter        rune
	Comment          rune
	TrimLeadingSpace bool
	SkipEmptyRows    bool
	MaxFieldSize     int
	SkipInvalidRows  bool
}

// DefaultParseConfig returns a configuration with sensible defaults
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		Delimiter:        ',',
		TrimLeadingSpace: true,
		SkipEmptyRows:    true,
		MaxFieldSize:     64 * 1024,
	}
}

// BaseParser provides common CSV parsing functionality
type BaseParser struct {
	config *ParseConfig
	logger logger.Logger
}

// NewBaseParser creates a new BaseParser with the given configuration
func NewBaseParser(config *ParseConfig) *BaseParser {
	if config == nil {
		config = DefaultParseConfig()
	}

	log := logger.GetGlobalLogger().WithComponent("base_parser")
	log.WithFields(logger.Fields{
		"delimiter":         string(config.Delimiter),
		"skip_invalid_rows": config.SkipInvalidRows,
		"max_field_size":    config.MaxFieldSize,
	}).Debug("Created base parser")

	return &BaseParser{
		config: config,
		logger: log,
	}
}

// ParseContext holds state during parsing operations
type ParseContext struct {
	Source      string
	LineNumber  int
	Headers     []string
	HeaderMap   map[string]int
	RecordCount int
	ctx         context.Context
}

// NewParseContext creates a new parsing context
func NewParseContext(ctx context.Context, source string) *ParseContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ParseContext{
		Source:    source,
		HeaderMap: make(map[string]int),
		ctx:       ctx,
	}
}

// IsCancelled checks if the parsing context has been cancelled
func (pc *ParseContext) IsCancelled() bool {
	select {
	case <-pc.ctx.Done():
		return true
	default:
		return false
	}
}

// GetColumnIndex returns the index of a column by name, or -1 if not found.
// Lookup falls back to a case-insensitive match.
func (pc *ParseContext) GetColumnIndex(name string) int {
	if index, exists := pc.HeaderMap[name]; exists {
		return index
	}

	lowerName := strings.ToLower(name)
	for header, index := range pc.HeaderMap {
		if strings.ToLower(header) == lowerName {
			return index
		}
	}

	return -1
}

// OpenFile opens an input file and maps OS failures to file errors
func (bp *BaseParser) OpenFile(filePath string) (*os.File, error) {
	bp.logger.WithField("file_path", filePath).Debug("Opening CSV file")

	file, err := os.Open(filePath)
	if err != nil {
		bp.logger.WithError(err).WithField("file_path", filePath).Error("Failed to open CSV file")

		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFileNotFound, filePath, err)
		}
		if os.IsPermission(err) {
			return nil, errors.FileError(errors.CodeFilePermission, filePath, err)
		}
		return nil, errors.FileError(errors.CodeFileUnreadable, filePath, err)
	}
	return file, nil
}

// NewReader reads the whole input, checks that it is UTF-8, strips a
// leading byte order mark and returns a configured csv.Reader over it.
func (bp *BaseParser) NewReader(r io.Reader, source string) (*csv.Reader, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.FileError(errors.CodeFileUnreadable, source, err)
	}

	content = bytes.TrimPrefix(content, utf8BOM)

	if !utf8.Valid(content) {
		line := invalidUTF8Line(content)
		return nil, errors.ParseError(errors.CodeEncodingError, source, line, "", "", nil)
	}

	reader := csv.NewReader(bytes.NewReader(content))
	bp.configureReader(reader)
	return reader, nil
}

// configureReader sets up the CSV reader with our configuration
func (bp *BaseParser) configureReader(reader *csv.Reader) {
	reader.Comma = bp.config.Delimiter
	reader.Comment = bp.config.Comment
	reader.TrimLeadingSpace = bp.config.TrimLeadingSpace
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = false
}

func invalidUTF8Line(content []byte) int {
	for i, line := range bytes.Split(content, []byte("\n")) {
		if !utf8.Valid(line) {
			return i + 1
		}
	}
	return 1
}

// ReadHeaders reads the header row and checks every required column is present
func (bp *BaseParser) ReadHeaders(reader *csv.Reader, parseCtx *ParseContext, requiredHeaders []string) error {
	bp.logger.WithFields(logger.Fields{
		"source":           parseCtx.Source,
		"required_headers": requiredHeaders,
	}).Debug("Reading CSV headers")

	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			bp.logger.WithField("source", parseCtx.Source).Error("File is empty or contains no data")
			return errors.ValidationError(errors.CodeEmptyFile, parseCtx.Source, "", nil)
		}
		return bp.readError(parseCtx, err)
	}

	parseCtx.LineNumber = 1
	parseCtx.Headers = cleanHeaders(headers)
	parseCtx.HeaderMap = make(map[string]int, len(parseCtx.Headers))
	for i, header := range parseCtx.Headers {
		if _, exists := parseCtx.HeaderMap[header]; !exists {
			parseCtx.HeaderMap[header] = i
		}
	}

	var missing []string
	for _, header := range requiredHeaders {
		if parseCtx.GetColumnIndex(header) == -1 {
			missing = append(missing, header)
		}
	}
	if len(missing) > 0 {
		bp.logger.WithFields(logger.Fields{
			"missing_headers":   missing,
			"available_headers": parseCtx.Headers,
		}).Error("Required headers are missing")

		return errors.ParseError(
			errors.CodeMissingColumn,
			parseCtx.Source,
			1,
			"headers",
			strings.Join(missing, ", "),
			nil,
		).WithContext("available_headers", parseCtx.Headers)
	}

	return nil
}

// cleanHeaders removes whitespace around header names
func cleanHeaders(headers []string) []string {
	cleaned := make([]string, len(headers))
	for i, header := range headers {
		cleaned[i] = strings.TrimSpace(header)
	}
	return cleaned
}

// ReadRecord returns the next non-empty record. It returns io.EOF at the end
// of input.
func (bp *BaseParser) ReadRecord(reader *csv.Reader, parseCtx *ParseContext) ([]string, error) {
	for {
		if parseCtx.IsCancelled() {
			bp.logger.Debug("Record reading cancelled by context")
			return nil, errors.ReconciliationError(errors.CodeCancelled, "csv parsing", parseCtx.ctx.Err())
		}

		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				return nil, err
			}
			return nil, bp.readError(parseCtx, err)
		}

		parseCtx.LineNumber, _ = reader.FieldPos(0)

		if bp.config.SkipEmptyRows && isEmptyRecord(record) {
			continue
		}

		if bp.config.MaxFieldSize > 0 {
			for i, field := range record {
				if len(field) > bp.config.MaxFieldSize {
					return nil, errors.ParseError(
						errors.CodeInvalidData,
						parseCtx.Source,
						parseCtx.LineNumber,
						columnName(parseCtx, i),
						field[:32]+"...",
						fmt.Errorf("field exceeds maximum size of %d bytes", bp.config.MaxFieldSize),
					)
				}
			}
		}

		parseCtx.RecordCount++
		return record, nil
	}
}

// readError converts an encoding/csv error into a parse error
func (bp *BaseParser) readError(parseCtx *ParseContext, err error) error {
	line := parseCtx.LineNumber + 1
	var csvErr *csv.ParseError
	if stderrors.As(err, &csvErr) {
		line = csvErr.StartLine
		parseCtx.LineNumber = line
	}
	bp.logger.WithError(err).WithField("line_number", line).Warn("Failed to read CSV record")
	return errors.ParseError(errors.CodeInvalidFormat, parseCtx.Source, line, "record", "", err)
}

func columnName(parseCtx *ParseContext, index int) string {
	if index < len(parseCtx.Headers) {
		return parseCtx.Headers[index]
	}
	return fmt.Sprintf("field_%d", index)
}

// isEmptyRecord checks if all fields in a record are empty or whitespace
func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// GetFieldValue returns the trimmed value of a column. A column that is not
// in the header, or a row too short to reach it, reads as blank.
func (bp *BaseParser) GetFieldValue(record []string, parseCtx *ParseContext, fieldName string) string {
	index := parseCtx.GetColumnIndex(fieldName)
	if index == -1 || index >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[index])
}

// handleRowError either fails the parse or records the row as skipped,
// depending on SkipInvalidRows.
func (bp *BaseParser) handleRowError(parseCtx *ParseContext, stats *ParseStats, err *errors.ReconcilerError) error {
	stats.AddError(err)
	if !bp.config.SkipInvalidRows {
		return err
	}
	bp.logger.WithFields(logger.Fields{
		"source":      parseCtx.Source,
		"line_number": parseCtx.LineNumber,
	}).WithError(err).Warn("Skipping invalid row")
	stats.Skipped = append(stats.Skipped, models.SkippedRow{
		Source: parseCtx.Source,
		Line:   parseCtx.LineNumber,
		Reason: err.Detail(),
	})
	return nil
}

// invalidValue builds the row error for a cell that failed to parse
func invalidValue(parseCtx *ParseContext, column, value string, err error) *errors.ReconcilerError {
	return errors.ParseError(errors.CodeInvalidData, parseCtx.Source, parseCtx.LineNumber, column, value, err)
}

// ParseStats holds statistics about a parsing operation
type ParseStats struct {
	TotalLines    int
	RecordsParsed int
	RecordsValid  int
	ErrorCount    int
	Errors        []*errors.ReconcilerError
	Skipped       []models.SkippedRow
}

// NewParseStats creates a new ParseStats instance
func NewParseStats() *ParseStats {
	return &ParseStats{
		Errors: make([]*errors.ReconcilerError, 0),
	}
}

// AddError adds an error to the parsing statistics
func (ps *ParseStats) AddError(err *errors.ReconcilerError) {
	ps.Errors = append(ps.Errors, err)
	ps.ErrorCount++
}

// HasErrors returns true if there were any parsing errors
func (ps *ParseStats) HasErrors() bool {
	return ps.ErrorCount > 0
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("Parsed %d lines, %d records (%d valid), %d errors",
		ps.TotalLines, ps.RecordsParsed, ps.RecordsValid, ps.ErrorCount)
}

// GetSampleErrors returns a sample of the parsing errors for logging
func (ps *ParseStats) GetSampleErrors(maxSamples int) []string {
	if len(ps.Errors) == 0 {
		return nil
	}

	limit := len(ps.Errors)
	if maxSamples > 0 && maxSamples < limit {
		limit = maxSamples
	}

	samples := make([]string, 0, limit)
	for i := 0; i < limit; i++ {
		samples = append(samples, ps.Errors[i].Detail())
	}
	return samples
}
