package reporter

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"settlement-reconciliation-service/internal/models"
	"settlement-reconciliation-service/pkg/errors"
	"settlement-reconciliation-service/pkg/logger"
)

// SafeReportGenerator wraps ReportGenerator with structured errors, logging
// and an output fallback for report files.
type SafeReportGenerator struct {
	*ReportGenerator
	logger logger.Logger
}

// NewSafeReportGenerator creates a new safe report generator with error handling
func NewSafeReportGenerator(config *ReportConfig, log logger.Logger) (*SafeReportGenerator, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	generator, err := NewReportGenerator(config)
	if err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"report_config",
			config,
			err,
		).WithSuggestion("use one of: console, json, csv, msgpack")
	}

	return &SafeReportGenerator{
		ReportGenerator: generator,
		logger:          log.WithComponent("reporter"),
	}, nil
}

// GenerateReportSafely renders the report fully in memory before writing it,
// so a rendering failure never leaves partial output behind.
func (srg *SafeReportGenerator) GenerateReportSafely(result *models.ReconciliationResult, writer io.Writer) error {
	if err := srg.validateInputs(result, writer); err != nil {
		srg.logger.WithError(err).Error("Report generation failed: input validation")
		return err
	}

	var buf bytes.Buffer
	if err := srg.GenerateReport(result, &buf); err != nil {
		wrapped := srg.wrapGenerationError(err)
		srg.logger.WithError(wrapped).Error("Report generation failed")
		return wrapped
	}

	if _, err := writer.Write(buf.Bytes()); err != nil {
		wrapped := errors.InternalError(errors.CodeProcessingError, "report_output", err).
			WithSuggestion("check the output destination")
		srg.logger.WithError(wrapped).Error("Report output failed")
		return wrapped
	}

	srg.logger.WithFields(logger.Fields{
		"format": srg.config.Format,
		"output": getWriterDescription(writer),
		"bytes":  buf.Len(),
	}).Debug("Report generated")
	return nil
}

// WriteReportFile renders the report and writes it to path. When path cannot
// be written the report is saved next to it, or in the temp directory, and
// the path actually used is returned.
func (srg *SafeReportGenerator) WriteReportFile(result *models.ReconciliationResult, path string) (string, error) {
	var buf bytes.Buffer
	if err := srg.GenerateReportSafely(result, &buf); err != nil {
		return "", err
	}

	writeErr := os.WriteFile(path, buf.Bytes(), 0o644)
	if writeErr == nil {
		srg.logger.WithField("file", path).Info("Report written")
		return path, nil
	}

	srg.logger.WithError(writeErr).WithField("file", path).Warn("Report output failed, attempting fallback")

	for _, backupPath := range srg.backupPaths(path) {
		if err := os.WriteFile(backupPath, buf.Bytes(), 0o644); err != nil {
			continue
		}
		srg.logger.WithFields(logger.Fields{
			"original_file": path,
			"backup_file":   backupPath,
		}).Warn("Report saved to fallback location")
		return backupPath, nil
	}

	return "", errors.FileError(errors.CodeFileWrite, path, writeErr)
}

// validateInputs validates the inputs for report generation
func (srg *SafeReportGenerator) validateInputs(result *models.ReconciliationResult, writer io.Writer) error {
	if result == nil {
		return errors.ValidationError(
			errors.CodeMissingField,
			"result",
			nil,
			nil,
		).WithSuggestion("provide a reconciliation result")
	}

	if writer == nil {
		return errors.ValidationError(
			errors.CodeMissingField,
			"writer",
			nil,
			nil,
		).WithSuggestion("provide an output writer")
	}

	return nil
}

// backupPaths lists fallback destinations for an unwritable report path
func (srg *SafeReportGenerator) backupPaths(originalPath string) []string {
	base := filepath.Base(originalPath)
	ext := filepath.Ext(base)
	name := fmt.Sprintf("%s_backup%s", base[:len(base)-len(ext)], ext)

	return []string{
		filepath.Join(filepath.Dir(originalPath), name),
		filepath.Join(os.TempDir(), name),
	}
}

// wrapGenerationError wraps generation errors with context
func (srg *SafeReportGenerator) wrapGenerationError(err error) error {
	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		return reconcilerErr
	}

	return errors.InternalError(
		errors.CodeProcessingError,
		"report_generation",
		err,
	).WithSuggestion("check the report format settings")
}

func getWriterDescription(writer io.Writer) string {
	switch w := writer.(type) {
	case *os.File:
		if w.Name() != "" {
			return fmt.Sprintf("file:%s", w.Name())
		}
		return "file:unnamed"
	case *bytes.Buffer:
		return "buffer"
	default:
		return fmt.Sprintf("writer:%T", writer)
	}
}
