package parsers

import (
	"context"
	"fmt"
	"io"
	"strings"

	"settlement-reconciliation-service/internal/models"
	"settlement-reconciliation-service/pkg/errors"
	"settlement-reconciliation-service/pkg/logger"
)

// OrderParser handles parsing of merchant order ledgers
type OrderParser struct {
	*BaseParser
	config *OrderParserConfig
	logger logger.Logger
}

// NewOrderParser creates a new OrderParser with the given configuration
func NewOrderParser(config *OrderParserConfig) (*OrderParser, error) {
	if config == nil {
		config = DefaultOrderParserConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "order_parser_config", config.Source, err)
	}

	parseConfig := DefaultParseConfig()
	if config.Delimiter != 0 {
		parseConfig.Delimiter = config.Delimiter
	}
	parseConfig.SkipInvalidRows = config.SkipInvalidRows

	return &OrderParser{
		BaseParser: NewBaseParser(parseConfig),
		config:     config,
		logger:     logger.GetGlobalLogger().WithComponent("order_parser"),
	}, nil
}

// ParseFile parses an order ledger from disk
func (op *OrderParser) ParseFile(ctx context.Context, filePath string) ([]*models.OrderRecord, *ParseStats, error) {
	file, err := op.OpenFile(filePath)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	return op.Parse(ctx, file)
}

// Parse parses an order ledger from a reader
func (op *OrderParser) Parse(ctx context.Context, r io.Reader) ([]*models.OrderRecord, *ParseStats, error) {
	op.logger.WithFields(logger.Fields{
		"source":    op.config.Source,
		"operation": "parse_orders",
	}).Debug("Starting order parsing")

	stats := NewParseStats()
	reader, err := op.NewReader(r, op.config.Source)
	if err != nil {
		return nil, stats, err
	}

	parseCtx := NewParseContext(ctx, op.config.Source)
	if err := op.ReadHeaders(reader, parseCtx, op.config.RequiredHeaders()); err != nil {
		return nil, stats, err
	}

	var orders []*models.OrderRecord
	for {
		record, err := op.ReadRecord(reader, parseCtx)
		if err == io.EOF {
			break
		}
		if err != nil {
			rerr, ok := errors.AsReconcilerError(err)
			if !ok || rerr.Code == errors.CodeCancelled || !op.config.SkipInvalidRows {
				return nil, stats, err
			}
			if err := op.handleRowError(parseCtx, stats, rerr); err != nil {
				return nil, stats, err
			}
			continue
		}

		stats.RecordsParsed++

		order, rowErr := op.parseRecord(record, parseCtx)
		if rowErr != nil {
			if err := op.handleRowError(parseCtx, stats, rowErr); err != nil {
				return nil, stats, err
			}
			continue
		}

		orders = append(orders, order)
		stats.RecordsValid++
	}

	stats.TotalLines = parseCtx.LineNumber

	op.logger.WithFields(logger.Fields{
		"source":         op.config.Source,
		"total_lines":    stats.TotalLines,
		"records_parsed": stats.RecordsParsed,
		"records_valid":  stats.RecordsValid,
		"skipped":        len(stats.Skipped),
	}).Debug("Order parsing completed")

	return orders, stats, nil
}

// parseRecord converts one CSV row into an OrderRecord
func (op *OrderParser) parseRecord(record []string, parseCtx *ParseContext) (*models.OrderRecord, *errors.ReconcilerError) {
	field := func(name string) (string, string) {
		column := op.config.GetColumnName(name)
		return column, op.GetFieldValue(record, parseCtx, column)
	}

	idColumn, id := field(ColumnTransactionID)
	if id == "" {
		return nil, invalidValue(parseCtx, idColumn, id, fmt.Errorf("transaction identifier is required"))
	}

	order := &models.OrderRecord{TransactionID: id, Line: parseCtx.LineNumber}

	dateColumn, dateValue := field(ColumnOrderDate)
	date, err := models.ParseOptionalTime(dateValue)
	if err != nil {
		return nil, invalidValue(parseCtx, dateColumn, dateValue, err)
	}
	order.OrderDate = date

	currencyColumn, currencyValue := field(ColumnCustomerCurrency)
	order.CustomerCurrency = models.StringPtr(strings.ToUpper(currencyValue))

	amountColumn, amountValue := field(ColumnOriginalAmount)
	amount, err := models.ParseOptionalDecimal(amountValue)
	if err != nil {
		return nil, invalidValue(parseCtx, amountColumn, amountValue, err)
	}
	order.OriginalAmount = amount

	_, processorValue := field(ColumnPaymentProcessor)
	order.PaymentProcessor = models.StringPtr(processorValue)

	if err := order.Validate(); err != nil {
		return nil, invalidValue(parseCtx, currencyColumn, currencyValue, err)
	}

	return order, nil
}
