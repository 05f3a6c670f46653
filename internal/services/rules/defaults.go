package rules

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"transaction-reconciliation-backend/internal/models"
	"transaction-reconciliation-backend/internal/repository"
)

// EnsureDefaults seeds the standard rule set the first time the service
// starts against an empty rules table. Existing rules are left untouched.
func EnsureDefaults(repo *repository.MatchingRuleRepository) error {
	count, err := repo.Count()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	partial := func(cfg models.PartialMatchConfig) *datatypes.JSONType[models.PartialMatchConfig] {
		t := datatypes.NewJSONType(cfg)
		return &t
	}

	defaults := []models.MatchingRule{
		{
			ID:               uuid.New(),
			RuleName:         "Exact Match - Transaction ID and Amount",
			Description:      "Matches records with identical transaction ID and amount",
			RuleType:         models.RuleTypeExactMatch,
			Priority:         100,
			Enabled:          true,
			ExactMatchFields: datatypes.NewJSONSlice([]string{"transactionId", "amount"}),
		},
		{
			ID:               uuid.New(),
			RuleName:         "Exact Match - All Fields",
			Description:      "Matches records with all fields identical",
			RuleType:         models.RuleTypeExactMatch,
			Priority:         90,
			Enabled:          true,
			ExactMatchFields: datatypes.NewJSONSlice([]string{"transactionId", "amount", "referenceNumber", "date"}),
		},
		{
			ID:          uuid.New(),
			RuleName:    "Partial Match - 2% Amount Variance",
			Description: "Matches records with same reference number and amount within 2%",
			RuleType:    models.RuleTypePartialMatch,
			Priority:    80,
			Enabled:     true,
			PartialMatch: partial(models.PartialMatchConfig{
				AmountVariancePercent: 2,
				DateVarianceDays:      0,
				RequiredFields:        []string{"referenceNumber"},
			}),
		},
		{
			ID:          uuid.New(),
			RuleName:    "Partial Match - 5% Amount Variance",
			Description: "Matches records with same reference number and amount within 5%",
			RuleType:    models.RuleTypePartialMatch,
			Priority:    70,
			Enabled:     false,
			PartialMatch: partial(models.PartialMatchConfig{
				AmountVariancePercent: 5,
				DateVarianceDays:      1,
				RequiredFields:        []string{"referenceNumber"},
			}),
		},
		{
			ID:          uuid.New(),
			RuleName:    "Reference Number Match",
			Description: "Matches records by reference number only",
			RuleType:    models.RuleTypeReferenceMatch,
			Priority:    60,
			Enabled:     true,
		},
	}

	for i := range defaults {
		if err := repo.Create(&defaults[i]); err != nil {
			return err
		}
	}
	logrus.WithField("count", len(defaults)).Info("default matching rules created")
	return nil
}
