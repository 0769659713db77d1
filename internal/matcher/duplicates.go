package matcher

import (
	"strings"

	"settlement-reconciliation-service/internal/models"
)

// FindOrderDuplicates lists order identifiers that occur more than once.
// Callers enforcing DuplicateReject use it before matching.
func FindOrderDuplicates(orders []*models.OrderRecord) []models.DuplicateRecord {
	return NewOrderIndex(orders, DuplicateFirst).Duplicates()
}

// FindSettlementDuplicates lists settlement identifiers that occur more than once.
func FindSettlementDuplicates(settlements []*models.SettlementRecord) []models.DuplicateRecord {
	return NewSettlementIndex(settlements, DuplicateFirst).Duplicates()
}

// DuplicateIDs returns the identifiers of the given duplicate records.
func DuplicateIDs(records []models.DuplicateRecord) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.TransactionID
	}
	return ids
}

// foldID is the comparison key for near matches.
func foldID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// FindNearMatches pairs unmatched orders with unmatched settlements whose
// identifiers are equal after case and whitespace folding. Each settlement
// is paired at most once, with the first order that folds to it.
func FindNearMatches(transactions []*models.Transaction, orders *OrderIndex, settlements *SettlementIndex) []models.NearMatch {
	var unmatchedSettlements []string
	for _, tx := range transactions {
		if tx.Status == models.StatusUnmatchedSettlement {
			unmatchedSettlements = append(unmatchedSettlements, tx.TransactionID)
		}
	}
	if len(unmatchedSettlements) == 0 {
		return nil
	}

	byFold := make(map[string][]string, len(unmatchedSettlements))
	for _, id := range unmatchedSettlements {
		key := foldID(id)
		byFold[key] = append(byFold[key], id)
	}

	var out []models.NearMatch
	for _, tx := range transactions {
		if tx.Status != models.StatusUnmatchedOrder {
			continue
		}
		key := foldID(tx.TransactionID)
		candidates := byFold[key]
		if len(candidates) == 0 {
			continue
		}
		settlementID := candidates[0]
		byFold[key] = candidates[1:]

		order, _ := orders.Get(tx.TransactionID)
		settlement, _ := settlements.Get(settlementID)
		out = append(out, models.NearMatch{
			OrderID:        tx.TransactionID,
			SettlementID:   settlementID,
			OrderLine:      order.Line,
			SettlementLine: settlement.Line,
		})
	}
	return out
}
