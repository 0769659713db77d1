package matcher

import (
	"settlement-reconciliation-service/internal/models"
)

// idIndex records where each identifier occurs in one input sequence.
type idIndex struct {
	// order holds identifiers in order of first appearance
	order []string

	// positions maps an identifier to every position it occupies
	positions map[string][]int
}

func newIDIndex(ids []string) *idIndex {
	index := &idIndex{positions: make(map[string][]int, len(ids))}
	for pos, id := range ids {
		if _, seen := index.positions[id]; !seen {
			index.order = append(index.order, id)
		}
		index.positions[id] = append(index.positions[id], pos)
	}
	return index
}

// pick returns the position that wins under the policy.
func (ix *idIndex) pick(id string, policy DuplicatePolicy) (int, bool) {
	positions, ok := ix.positions[id]
	if !ok {
		return 0, false
	}
	if policy == DuplicateLast {
		return positions[len(positions)-1], true
	}
	return positions[0], true
}

// duplicates lists every identifier with more than one position, in order of first appearance.
func (ix *idIndex) duplicates(source string, policy DuplicatePolicy, lineOf func(pos int) int) []models.DuplicateRecord {
	var out []models.DuplicateRecord
	for _, id := range ix.order {
		positions := ix.positions[id]
		if len(positions) < 2 {
			continue
		}
		lines := make([]int, len(positions))
		for i, pos := range positions {
			lines[i] = lineOf(pos)
		}
		kept, _ := ix.pick(id, policy)
		out = append(out, models.DuplicateRecord{
			Source:        source,
			TransactionID: id,
			Lines:         lines,
			KeptLine:      lineOf(kept),
		})
	}
	return out
}

// OrderIndex provides lookup of orders by identifier with duplicates resolved
type OrderIndex struct {
	orders []*models.OrderRecord
	ids    *idIndex
	policy DuplicatePolicy
}

// NewOrderIndex creates a new order index from a slice of orders
func NewOrderIndex(orders []*models.OrderRecord, policy DuplicatePolicy) *OrderIndex {
	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.TransactionID
	}
	return &OrderIndex{orders: orders, ids: newIDIndex(ids), policy: policy}
}

// Get returns the winning order for an identifier
func (oi *OrderIndex) Get(id string) (*models.OrderRecord, bool) {
	pos, ok := oi.ids.pick(id, oi.policy)
	if !ok {
		return nil, false
	}
	return oi.orders[pos], true
}

// IDs returns the distinct identifiers in order of first appearance
func (oi *OrderIndex) IDs() []string {
	return oi.ids.order
}

// Len returns the number of distinct identifiers
func (oi *OrderIndex) Len() int {
	return len(oi.ids.order)
}

// Duplicates lists identifiers that occur more than once
func (oi *OrderIndex) Duplicates() []models.DuplicateRecord {
	return oi.ids.duplicates(SourceOrders, oi.policy, func(pos int) int {
		return lineNumber(oi.orders[pos].Line, pos)
	})
}

// SettlementIndex provides lookup of settlements by identifier with duplicates resolved
type SettlementIndex struct {
	settlements []*models.SettlementRecord
	ids         *idIndex
	policy      DuplicatePolicy
}

// NewSettlementIndex creates a new settlement index from a slice of settlements
func NewSettlementIndex(settlements []*models.SettlementRecord, policy DuplicatePolicy) *SettlementIndex {
	ids := make([]string, len(settlements))
	for i, s := range settlements {
		ids[i] = s.TransactionID
	}
	return &SettlementIndex{settlements: settlements, ids: newIDIndex(ids), policy: policy}
}

// Get returns the winning settlement for an identifier
func (si *SettlementIndex) Get(id string) (*models.SettlementRecord, bool) {
	pos, ok := si.ids.pick(id, si.policy)
	if !ok {
		return nil, false
	}
	return si.settlements[pos], true
}

// IDs returns the distinct identifiers in order of first appearance
func (si *SettlementIndex) IDs() []string {
	return si.ids.order
}

// Len returns the number of distinct identifiers
func (si *SettlementIndex) Len() int {
	return len(si.ids.order)
}

// Duplicates lists identifiers that occur more than once
func (si *SettlementIndex) Duplicates() []models.DuplicateRecord {
	return si.ids.duplicates(SourceSettlements, si.policy, func(pos int) int {
		return lineNumber(si.settlements[pos].Line, pos)
	})
}

// lineNumber falls back to the CSV line a record would have had (header on
// line 1) when the record carries no source line.
func lineNumber(line, pos int) int {
	if line > 0 {
		return line
	}
	return pos + 2
}
