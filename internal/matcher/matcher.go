package matcher

import (
	"settlement-reconciliation-service/internal/models"
)

// Input source names used in diagnostics
const (
	SourceOrders      = "orders"
	SourceSettlements = "settlements"
)

// Matcher performs the full outer join of orders and settlements
type Matcher struct {
	Config *MatchingConfig
}

// MatchOutput is the result of one join
type MatchOutput struct {
	// Transactions holds one transaction per distinct identifier
	Transactions []*models.Transaction

	// TotalOrders and TotalSettlements count distinct identifiers per input
	TotalOrders      int
	TotalSettlements int

	Duplicates  []models.DuplicateRecord
	NearMatches []models.NearMatch
}

// NewMatcher creates a new matcher with the specified configuration
func NewMatcher(config *MatchingConfig) *Matcher {
	if config == nil {
		config = DefaultMatchingConfig()
	}
	return &Matcher{Config: config}
}

// Match joins the two inputs. It has no side effects on its arguments.
func (m *Matcher) Match(orders []*models.OrderRecord, settlements []*models.SettlementRecord) *MatchOutput {
	orderIndex := NewOrderIndex(orders, m.Config.DuplicatePolicy)
	settlementIndex := NewSettlementIndex(settlements, m.Config.DuplicatePolicy)

	transactions := make([]*models.Transaction, 0, orderIndex.Len()+settlementIndex.Len())

	for _, id := range orderIndex.IDs() {
		order, _ := orderIndex.Get(id)
		if settlement, ok := settlementIndex.Get(id); ok {
			transactions = append(transactions, models.NewMatchedTransaction(order, settlement))
		} else {
			transactions = append(transactions, models.NewUnmatchedOrder(order))
		}
	}

	for _, id := range settlementIndex.IDs() {
		if _, ok := orderIndex.Get(id); ok {
			continue
		}
		settlement, _ := settlementIndex.Get(id)
		transactions = append(transactions, models.NewUnmatchedSettlement(settlement))
	}

	output := &MatchOutput{
		Transactions:     transactions,
		TotalOrders:      orderIndex.Len(),
		TotalSettlements: settlementIndex.Len(),
	}
	output.Duplicates = append(orderIndex.Duplicates(), settlementIndex.Duplicates()...)

	if m.Config.DetectNearMatches {
		output.NearMatches = FindNearMatches(transactions, orderIndex, settlementIndex)
	}

	return output
}
