// Package matcher joins merchant orders and processor settlements on their
// transaction identifier.
//
// The join is a full outer join on exact identifier equality. Every distinct
// identifier in either input yields exactly one transaction:
//   - matched: present in both inputs
//   - unmatched_order: present only in the orders
//   - unmatched_settlement: present only in the settlements
//
// Output order is deterministic. Matched and unmatched-order transactions
// follow the order in which identifiers first appear in the orders; unmatched
// settlements are appended in order of first appearance in the settlements.
//
// Example usage:
//
//	config := matcher.DefaultMatchingConfig()
//	config.DuplicatePolicy = matcher.DuplicateLast
//
//	m := matcher.NewMatcher(config)
//	output := m.Match(orders, settlements)
package matcher

import (
	"fmt"
	"strings"
)

// DuplicatePolicy decides which record wins when an identifier occurs more
// than once in the same input.
type DuplicatePolicy string

const (
	// DuplicateFirst keeps the first occurrence and drops later ones.
	DuplicateFirst DuplicatePolicy = "first"

	// DuplicateLast keeps the last occurrence. The transaction keeps the
	// position of the first occurrence so output order does not depend on
	// where the duplicate appeared.
	DuplicateLast DuplicatePolicy = "last"

	// DuplicateReject refuses the whole batch. The matcher itself resolves
	// like DuplicateFirst; rejection happens before matching, see
	// FindOrderDuplicates and FindSettlementDuplicates.
	DuplicateReject DuplicatePolicy = "reject"
)

// String returns the string representation of DuplicatePolicy
func (p DuplicatePolicy) String() string {
	return string(p)
}

// IsValid checks if the policy is one of the known values
func (p DuplicatePolicy) IsValid() bool {
	switch p {
	case DuplicateFirst, DuplicateLast, DuplicateReject:
		return true
	}
	return false
}

// ParseDuplicatePolicy parses a policy name, case-insensitively
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	p := DuplicatePolicy(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return DuplicateFirst, nil
	}
	if !p.IsValid() {
		return "", fmt.Errorf("invalid duplicate policy '%s': must be first, last or reject", s)
	}
	return p, nil
}

// MatchingConfig holds configuration parameters for the join.
type MatchingConfig struct {
	// DuplicatePolicy resolves repeated identifiers within one input
	DuplicatePolicy DuplicatePolicy `json:"duplicate_policy" mapstructure:"duplicate_policy"`

	// DetectNearMatches reports unmatched identifier pairs that differ only
	// in case or surrounding whitespace. They are reported, never joined.
	DetectNearMatches bool `json:"detect_near_matches" mapstructure:"detect_near_matches"`
}

// DefaultMatchingConfig returns a configuration with sensible defaults
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		DuplicatePolicy:   DuplicateFirst,
		DetectNearMatches: true,
	}
}

// Validate checks if the matching configuration is valid
func (mc *MatchingConfig) Validate() error {
	if !mc.DuplicatePolicy.IsValid() {
		return fmt.Errorf("invalid duplicate policy: '%s'", mc.DuplicatePolicy)
	}
	return nil
}

// Clone creates a copy of the matching configuration
func (mc *MatchingConfig) Clone() *MatchingConfig {
	if mc == nil {
		return nil
	}
	clone := *mc
	return &clone
}

// String returns a human-readable description of the configuration
func (mc *MatchingConfig) String() string {
	return fmt.Sprintf("MatchingConfig{DuplicatePolicy: %s, DetectNearMatches: %t}",
		mc.DuplicatePolicy, mc.DetectNearMatches)
}
