package repository

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transaction-reconciliation-backend/internal/models"
)

func TestRuleListFilters(t *testing.T) {
	db := newTestDB(t)
	repo := NewMatchingRuleRepository(db)

	exact := models.MatchingRule{ID: uuid.New(), RuleName: "exact", RuleType: models.RuleTypeExactMatch, Priority: 100, Enabled: true}
	partial := models.MatchingRule{ID: uuid.New(), RuleName: "partial", RuleType: models.RuleTypePartialMatch, Priority: 80, Enabled: false}
	for _, r := range []models.MatchingRule{exact, partial} {
		rule := r
		require.NoError(t, repo.Create(&rule))
	}

	enabled := true
	rules, err := repo.List(RuleListFilter{Enabled: &enabled})
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "exact", rules[0].RuleName)

	rules, err = repo.List(RuleListFilter{RuleType: models.RuleTypePartialMatch})
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "partial", rules[0].RuleName)

	rules, err = repo.List(RuleListFilter{})
	require.NoError(t, err)
	assert.Len(t, rules, 2)
}

func TestRuleDelete(t *testing.T) {
	db := newTestDB(t)
	repo := NewMatchingRuleRepository(db)

	rule := models.MatchingRule{ID: uuid.New(), RuleName: "doomed", RuleType: models.RuleTypeExactMatch, Enabled: true}
	require.NoError(t, repo.Create(&rule))

	require.NoError(t, repo.Delete(rule.ID))

	_, err := repo.GetByID(rule.ID)
	require.Error(t, err)

	count, err := repo.Count()
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)
}
