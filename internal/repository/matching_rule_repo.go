package repository

import (
	"transaction-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MatchingRuleRepository struct {
	db *gorm.DB
}

func NewMatchingRuleRepository(db *gorm.DB) *MatchingRuleRepository {
	return &MatchingRuleRepository{db: db}
}

func (r *MatchingRuleRepository) DB() *gorm.DB {
	return r.db
}

// ListEnabled returns every enabled rule in evaluation order: priority
// descending, then newest first, then id. The explicit secondary sort keeps
// priority ties deterministic.
func (r *MatchingRuleRepository) ListEnabled() ([]models.MatchingRule, error) {
	var rules []models.MatchingRule
	err := r.db.
		Where("enabled = ?", true).
		Order("priority DESC, created_at DESC, id ASC").
		Find(&rules).Error
	return rules, err
}

// RuleListFilter narrows List results.
type RuleListFilter struct {
	Enabled  *bool
	RuleType string
}

func (r *MatchingRuleRepository) List(filter RuleListFilter) ([]models.MatchingRule, error) {
	query := r.db.Model(&models.MatchingRule{})
	if filter.Enabled != nil {
		query = query.Where("enabled = ?", *filter.Enabled)
	}
	if filter.RuleType != "" {
		query = query.Where("rule_type = ?", filter.RuleType)
	}

	var rules []models.MatchingRule
	err := query.Order("priority DESC, created_at DESC, id ASC").Find(&rules).Error
	return rules, err
}

func (r *MatchingRuleRepository) GetByID(id uuid.UUID) (*models.MatchingRule, error) {
	var rule models.MatchingRule
	if err := r.db.First(&rule, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *MatchingRuleRepository) Create(rule *models.MatchingRule) error {
	return r.db.Create(rule).Error
}

func (r *MatchingRuleRepository) Save(rule *models.MatchingRule) error {
	return r.db.Save(rule).Error
}

func (r *MatchingRuleRepository) Delete(id uuid.UUID) error {
	return r.db.Delete(&models.MatchingRule{}, "id = ?", id).Error
}

func (r *MatchingRuleRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.MatchingRule{}).Count(&count).Error
	return count, err
}
