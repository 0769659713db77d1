package parsers

import (
	"context"
	"fmt"
	"io"

	"settlement-reconciliation-service/internal/models"
	"settlement-reconciliation-service/pkg/errors"
	"settlement-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// SettlementParser handles parsing of processor settlement reports
type SettlementParser struct {
	*BaseParser
	config *SettlementParserConfig
	logger logger.Logger
}

// NewSettlementParser creates a new SettlementParser with the given configuration
func NewSettlementParser(config *SettlementParserConfig) (*SettlementParser, error) {
	if config == nil {
		config = DefaultSettlementParserConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "settlement_parser_config", config.Source, err)
	}

	parseConfig := DefaultParseConfig()
	if config.Delimiter != 0 {
		parseConfig.Delimiter = config.Delimiter
	}
	parseConfig.SkipInvalidRows = config.SkipInvalidRows

	return &SettlementParser{
		BaseParser: NewBaseParser(parseConfig),
		config:     config,
		logger:     logger.GetGlobalLogger().WithComponent("settlement_parser"),
	}, nil
}

// ParseFile parses a settlement report from disk
func (sp *SettlementParser) ParseFile(ctx context.Context, filePath string) ([]*models.SettlementRecord, *ParseStats, error) {
	file, err := sp.OpenFile(filePath)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	return sp.Parse(ctx, file)
}

// Parse parses a settlement report from a reader
func (sp *SettlementParser) Parse(ctx context.Context, r io.Reader) ([]*models.SettlementRecord, *ParseStats, error) {
	sp.logger.WithFields(logger.Fields{
		"source":    sp.config.Source,
		"operation": "parse_settlements",
	}).Debug("Starting settlement parsing")

	stats := NewParseStats()
	reader, err := sp.NewReader(r, sp.config.Source)
	if err != nil {
		return nil, stats, err
	}

	parseCtx := NewParseContext(ctx, sp.config.Source)
	if err := sp.ReadHeaders(reader, parseCtx, sp.config.RequiredHeaders()); err != nil {
		return nil, stats, err
	}

	var settlements []*models.SettlementRecord
	for {
		record, err := sp.ReadRecord(reader, parseCtx)
		if err == io.EOF {
			break
		}
		if err != nil {
			rerr, ok := errors.AsReconcilerError(err)
			if !ok || rerr.Code == errors.CodeCancelled || !sp.config.SkipInvalidRows {
				return nil, stats, err
			}
			if err := sp.handleRowError(parseCtx, stats, rerr); err != nil {
				return nil, stats, err
			}
			continue
		}

		stats.RecordsParsed++

		settlement, rowErr := sp.parseRecord(record, parseCtx)
		if rowErr != nil {
			if err := sp.handleRowError(parseCtx, stats, rowErr); err != nil {
				return nil, stats, err
			}
			continue
		}

		settlements = append(settlements, settlement)
		stats.RecordsValid++
	}

	stats.TotalLines = parseCtx.LineNumber

	sp.logger.WithFields(logger.Fields{
		"source":         sp.config.Source,
		"total_lines":    stats.TotalLines,
		"records_parsed": stats.RecordsParsed,
		"records_valid":  stats.RecordsValid,
		"skipped":        len(stats.Skipped),
	}).Debug("Settlement parsing completed")

	return settlements, stats, nil
}

// parseRecord converts one CSV row into a SettlementRecord
func (sp *SettlementParser) parseRecord(record []string, parseCtx *ParseContext) (*models.SettlementRecord, *errors.ReconcilerError) {
	field := func(name string) (string, string) {
		column := sp.config.GetColumnName(name)
		return column, sp.GetFieldValue(record, parseCtx, column)
	}

	idColumn, id := field(ColumnTransactionID)
	if id == "" {
		return nil, invalidValue(parseCtx, idColumn, id, fmt.Errorf("transaction identifier is required"))
	}

	settlement := &models.SettlementRecord{TransactionID: id, Line: parseCtx.LineNumber}

	dateColumn, dateValue := field(ColumnSettlementDate)
	date, err := models.ParseOptionalTime(dateValue)
	if err != nil {
		return nil, invalidValue(parseCtx, dateColumn, dateValue, err)
	}
	settlement.SettlementDate = date

	amounts := []struct {
		name string
		dest *decimal.NullDecimal
	}{
		{ColumnUSDAmountReceived, &settlement.USDAmountReceived},
		{ColumnFXRateApplied, &settlement.FXRateApplied},
		{ColumnFeesDeducted, &settlement.FeesDeducted},
	}
	for _, target := range amounts {
		column, value := field(target.name)
		parsed, err := models.ParseOptionalDecimal(value)
		if err != nil {
			return nil, invalidValue(parseCtx, column, value, err)
		}
		*target.dest = parsed
	}

	if err := settlement.Validate(); err != nil {
		column, value := field(ColumnFXRateApplied)
		return nil, invalidValue(parseCtx, column, value, err)
	}

	return settlement, nil
}
