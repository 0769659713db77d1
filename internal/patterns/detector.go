package patterns

import (
	"fmt"
	"sort"

	"settlement-reconciliation-service/internal/models"
	"settlement-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// Detector evaluates the alert rules over one reconciliation run
type Detector struct {
	config *Config
	logger logger.Logger
}

// NewDetector creates a new detector. A nil config uses DefaultConfig.
func NewDetector(config *Config) *Detector {
	if config == nil {
		config = DefaultConfig()
	}
	return &Detector{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("pattern_detector"),
	}
}

// Config returns the detector thresholds
func (d *Detector) Config() *Config {
	return d.config
}

// Detect returns the alerts for one run in a fixed order: processor alerts
// by processor name, currency alerts by code, then the large discrepancy
// alert, then the FX rate alert.
func (d *Detector) Detect(
	transactions []*models.Transaction,
	currencyStats map[string]*models.GroupStat,
	processorStats map[string]*models.GroupStat,
) []*models.PatternAlert {
	alerts := make([]*models.PatternAlert, 0)

	flaggedByProcessor := make(map[string][]string)
	flaggedByCurrency := make(map[string][]string)
	for _, tx := range transactions {
		if !tx.IsDiscrepancy {
			continue
		}
		if p := tx.Processor(); p != "" {
			flaggedByProcessor[p] = append(flaggedByProcessor[p], tx.TransactionID)
		}
		if c := tx.Currency(); c != "" {
			flaggedByCurrency[c] = append(flaggedByCurrency[c], tx.TransactionID)
		}
	}

	for _, name := range sortedKeys(processorStats) {
		if alert := d.processorAlert(name, processorStats[name], flaggedByProcessor[name]); alert != nil {
			alerts = append(alerts, alert)
		}
	}

	for _, code := range sortedKeys(currencyStats) {
		if alert := d.currencyAlert(code, currencyStats[code], flaggedByCurrency[code]); alert != nil {
			alerts = append(alerts, alert)
		}
	}

	if alert := d.largeDiscrepancyAlert(transactions); alert != nil {
		alerts = append(alerts, alert)
	}

	if alert := d.fxRateAlert(transactions); alert != nil {
		alerts = append(alerts, alert)
	}

	d.logger.WithFields(logger.Fields{
		"processors": len(processorStats),
		"currencies": len(currencyStats),
		"alerts":     len(alerts),
	}).Debug("Pattern detection completed")

	return alerts
}

func (d *Detector) processorAlert(name string, stat *models.GroupStat, ids []string) *models.PatternAlert {
	if stat == nil || stat.DiscrepancyCount < d.config.MinFlagged {
		return nil
	}

	rate := stat.DiscrepancyRatePct()
	gap := stat.DiscrepancyUSD
	if !rate.GreaterThan(d.config.ProcessorRatePct) && gap.LessThan(d.config.ProcessorGapUSD) {
		return nil
	}

	severity := models.SeverityHigh
	if rate.GreaterThanOrEqual(d.config.ProcessorCriticalRatePct) || gap.GreaterThanOrEqual(d.config.ProcessorCriticalGapUSD) {
		severity = models.SeverityCritical
	}

	return &models.PatternAlert{
		Type:     models.AlertTypeProcessor,
		Severity: severity,
		Title:    fmt.Sprintf("Processor Issue: %s", name),
		Message: fmt.Sprintf("%d of %d transactions flagged (%s%% rate), $%s total discrepancy",
			stat.DiscrepancyCount, stat.VolumeCount, rate.StringFixed(0), gap.StringFixed(2)),
		Processor:          name,
		TransactionIDs:     ids,
		FlaggedCount:       stat.DiscrepancyCount,
		TotalCount:         stat.VolumeCount,
		DiscrepancyRatePct: decimal.NewNullDecimal(rate),
		TotalDifferenceUSD: decimal.NewNullDecimal(gap),
	}
}

func (d *Detector) currencyAlert(code string, stat *models.GroupStat, ids []string) *models.PatternAlert {
	if stat == nil || stat.DiscrepancyCount < d.config.MinFlagged {
		return nil
	}

	rate := stat.DiscrepancyRatePct()
	if !rate.GreaterThan(d.config.CurrencyRatePct) {
		return nil
	}

	return &models.PatternAlert{
		Type:     models.AlertTypeCurrency,
		Severity: models.SeverityHigh,
		Title:    fmt.Sprintf("Currency Anomaly: %s", code),
		Message: fmt.Sprintf("%d of %d %s transactions flagged (%s%% rate), $%s total discrepancy",
			stat.DiscrepancyCount, stat.VolumeCount, code, rate.StringFixed(0), stat.DiscrepancyUSD.StringFixed(2)),
		Currency:           code,
		TransactionIDs:     ids,
		FlaggedCount:       stat.DiscrepancyCount,
		TotalCount:         stat.VolumeCount,
		DiscrepancyRatePct: decimal.NewNullDecimal(rate),
		TotalDifferenceUSD: decimal.NewNullDecimal(stat.DiscrepancyUSD),
	}
}

func (d *Detector) largeDiscrepancyAlert(transactions []*models.Transaction) *models.PatternAlert {
	var ids []string
	total := decimal.Zero

	for _, tx := range transactions {
		if !tx.IsMatched() {
			continue
		}
		abs, ok := tx.AbsDifference()
		if !ok || !abs.GreaterThan(d.config.LargeDiscrepancyUSD) {
			continue
		}
		ids = append(ids, tx.TransactionID)
		total = total.Add(abs)
	}

	if len(ids) == 0 {
		return nil
	}

	return &models.PatternAlert{
		Type:               models.AlertTypeLargeDiscrepancy,
		Severity:           models.SeverityCritical,
		Title:              "Large Discrepancies Detected",
		Message:            fmt.Sprintf("%d transaction(s) with discrepancy > $%s USD", len(ids), d.config.LargeDiscrepancyUSD.String()),
		TransactionIDs:     ids,
		Count:              len(ids),
		TotalDifferenceUSD: decimal.NewNullDecimal(total),
	}
}

func (d *Detector) fxRateAlert(transactions []*models.Transaction) *models.PatternAlert {
	var ids []string
	var worst decimal.Decimal

	for _, tx := range transactions {
		if !tx.IsMatched() || !tx.FXDeviationPct.Valid {
			continue
		}
		deviation := tx.FXDeviationPct.Decimal
		if !deviation.GreaterThan(d.config.FXDeviationPct) {
			continue
		}
		if len(ids) == 0 || deviation.GreaterThan(worst) {
			worst = deviation
		}
		ids = append(ids, tx.TransactionID)
	}

	if len(ids) == 0 {
		return nil
	}

	return &models.PatternAlert{
		Type:     models.AlertTypeFXRate,
		Severity: models.SeverityMedium,
		Title:    "Adverse FX Rates Detected",
		Message: fmt.Sprintf("%d transaction(s) settled at FX rates more than %s%% worse than market reference",
			len(ids), d.config.FXDeviationPct.String()),
		TransactionIDs:    ids,
		Count:             len(ids),
		MaxFXDeviationPct: decimal.NewNullDecimal(worst),
	}
}

func sortedKeys(stats map[string]*models.GroupStat) []string {
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
