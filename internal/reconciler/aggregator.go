package reconciler

import (
	"settlement-reconciliation-service/internal/models"
)

// Aggregate fills the summary counters and the per-currency and
// per-processor statistics of result from its Transactions.
//
// Every transaction counts toward the volume of its groups regardless of
// status. Flagged transactions count toward discrepancy_count; only those
// with a known difference add to discrepancy_usd, so unmatched transactions
// contribute zero USD. A transaction without a currency (or processor) is
// left out of that grouping only.
func Aggregate(result *models.ReconciliationResult) {
	for _, tx := range result.Transactions {
		switch tx.Status {
		case models.StatusMatched:
			result.Matched++
		case models.StatusUnmatchedOrder:
			result.UnmatchedOrders++
		case models.StatusUnmatchedSettlement:
			result.UnmatchedSettlements++
		}

		if tx.IsDiscrepancy {
			result.FlaggedCount++
			if abs, ok := tx.AbsDifference(); ok {
				result.TotalDiscrepancyUSD = result.TotalDiscrepancyUSD.Add(abs)
			}
		}

		if currency := tx.Currency(); currency != "" {
			addToGroup(result.CurrencyStats, currency, tx)
		}
		if processor := tx.Processor(); processor != "" {
			addToGroup(result.ProcessorStats, processor, tx)
		}
	}
}

func addToGroup(stats map[string]*models.GroupStat, key string, tx *models.Transaction) {
	stat, ok := stats[key]
	if !ok {
		stat = &models.GroupStat{}
		stats[key] = stat
	}

	stat.VolumeCount++
	if !tx.IsDiscrepancy {
		return
	}
	stat.DiscrepancyCount++
	if abs, ok := tx.AbsDifference(); ok {
		stat.DiscrepancyUSD = stat.DiscrepancyUSD.Add(abs)
	}
}
