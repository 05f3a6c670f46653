package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Rule types. The evaluator dispatches exhaustively on these; an unknown
// type never matches.
const (
	RuleTypeExactMatch     = "EXACT_MATCH"
	RuleTypePartialMatch   = "PARTIAL_MATCH"
	RuleTypeReferenceMatch = "REFERENCE_MATCH"
)

// PartialMatchConfig is the configuration payload carried only by
// PARTIAL_MATCH rules.
type PartialMatchConfig struct {
	AmountVariancePercent float64  `json:"amountVariancePercent"`
	DateVarianceDays      int      `json:"dateVarianceDays"`
	RequiredFields        []string `json:"requiredFields"`
}

// MatchingRule is an administrator-defined matching rule. Higher priority
// rules are evaluated first; ties break by most-recent creation, then by id,
// so ordering stays deterministic.
type MatchingRule struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	RuleName         string    `gorm:"uniqueIndex"`
	Description      string
	RuleType         string `gorm:"index:idx_rules_enabled_priority,priority:2"`
	Priority         int    `gorm:"index:idx_rules_enabled_priority,priority:3"`
	Enabled          bool   `gorm:"index:idx_rules_enabled_priority,priority:1"`
	ExactMatchFields datatypes.JSONSlice[string]
	PartialMatch     *datatypes.JSONType[PartialMatchConfig]
	CreatedBy        string
	UpdatedBy        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ExactFields returns the configured equality fields for an EXACT_MATCH
// rule, falling back to the default pair when unset.
func (r *MatchingRule) ExactFields() []string {
	if len(r.ExactMatchFields) > 0 {
		return r.ExactMatchFields
	}
	return []string{"transactionId", "amount"}
}

// PartialConfig returns the partial-match configuration with defaults
// applied for anything unset.
func (r *MatchingRule) PartialConfig() PartialMatchConfig {
	cfg := PartialMatchConfig{
		AmountVariancePercent: 2,
		DateVarianceDays:      0,
		RequiredFields:        []string{"referenceNumber"},
	}
	if r.PartialMatch != nil {
		data := r.PartialMatch.Data()
		if data.AmountVariancePercent > 0 {
			cfg.AmountVariancePercent = data.AmountVariancePercent
		}
		cfg.DateVarianceDays = data.DateVarianceDays
		if len(data.RequiredFields) > 0 {
			cfg.RequiredFields = data.RequiredFields
		}
	}
	return cfg
}
