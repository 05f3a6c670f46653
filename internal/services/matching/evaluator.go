package matching

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"transaction-reconciliation-backend/internal/models"
	"transaction-reconciliation-backend/internal/repository"
)

var hundred = decimal.NewFromInt(100)

// Match is a positive verdict from applying one rule to one candidate.
type Match struct {
	SystemRecord *models.Record
	Status       string
	Mismatches   []models.FieldMismatch
}

// Evaluator applies a single matching rule to a candidate record against the
// persisted record population of the same upload job.
type Evaluator struct {
	records *repository.RecordRepository
}

func NewEvaluator(records *repository.RecordRepository) *Evaluator {
	return &Evaluator{records: records}
}

// WithTx returns a copy of the evaluator scoped to the given transaction.
func (e *Evaluator) WithTx(tx *gorm.DB) *Evaluator {
	return &Evaluator{records: e.records.WithTx(tx)}
}

// Apply evaluates one rule. A nil Match means the rule did not match.
// Unknown rule types never match.
func (e *Evaluator) Apply(rule *models.MatchingRule, candidate *models.Record, jobID uuid.UUID) (*Match, error) {
	switch rule.RuleType {
	case models.RuleTypeExactMatch:
		return e.applyExact(rule, candidate, jobID)
	case models.RuleTypePartialMatch:
		return e.applyPartial(rule, candidate, jobID)
	case models.RuleTypeReferenceMatch:
		return e.applyReference(candidate, jobID)
	default:
		return nil, nil
	}
}

// applyExact matches when every configured field is identical on a record
// with a different identity. Amounts and dates are compared semantically in
// Go rather than textually in SQL.
func (e *Evaluator) applyExact(rule *models.MatchingRule, candidate *models.Record, jobID uuid.UUID) (*Match, error) {
	filters := make(map[string]interface{})
	var wantAmount, wantDate bool
	for _, field := range rule.ExactFields() {
		switch field {
		case "transactionId":
			filters["transaction_id"] = candidate.TransactionID
		case "referenceNumber":
			filters["reference_number"] = candidate.ReferenceNumber
		case "amount":
			wantAmount = true
		case "date":
			wantDate = true
		}
	}

	hits, err := e.records.FindByFilters(jobID, filters)
	if err != nil {
		return nil, err
	}

	for i := range hits {
		sys := &hits[i]
		if sys.ID == candidate.ID {
			continue
		}
		if wantAmount && !sys.Amount.Equal(candidate.Amount) {
			continue
		}
		if wantDate && !sys.Date.Equal(candidate.Date) {
			continue
		}
		return &Match{
			SystemRecord: sys,
			Status:       models.MatchStatusMatched,
			Mismatches:   []models.FieldMismatch{},
		}, nil
	}
	return nil, nil
}

// applyPartial matches the first record sharing the required fields whose
// amount variance stays within tolerance. This is deliberately a first-found
// policy, not best-found.
func (e *Evaluator) applyPartial(rule *models.MatchingRule, candidate *models.Record, jobID uuid.UUID) (*Match, error) {
	cfg := rule.PartialConfig()

	filters := make(map[string]interface{})
	var requireAmount, requireDate bool
	for _, field := range cfg.RequiredFields {
		switch field {
		case "transactionId":
			filters["transaction_id"] = candidate.TransactionID
		case "referenceNumber":
			filters["reference_number"] = candidate.ReferenceNumber
		case "amount":
			requireAmount = true
		case "date":
			requireDate = true
		}
	}

	hits, err := e.records.FindByFilters(jobID, filters)
	if err != nil {
		return nil, err
	}

	tolerance := decimal.NewFromFloat(cfg.AmountVariancePercent)

	for i := range hits {
		sys := &hits[i]
		if sys.ID == candidate.ID {
			continue
		}
		if requireAmount && !sys.Amount.Equal(candidate.Amount) {
			continue
		}
		if requireDate && !sys.Date.Equal(candidate.Date) {
			continue
		}

		diff := sys.Amount.Sub(candidate.Amount).Abs()

		// Percent variance is undefined for a zero system amount; the only
		// tolerated uploaded amount is then also zero.
		variance := decimal.Zero
		if sys.Amount.IsZero() {
			if !candidate.Amount.IsZero() {
				continue
			}
		} else {
			variance = diff.Div(sys.Amount).Mul(hundred)
			if variance.GreaterThan(tolerance) {
				continue
			}
		}

		if cfg.DateVarianceDays > 0 {
			days := sys.Date.Sub(candidate.Date).Hours() / 24
			if days < 0 {
				days = -days
			}
			if days > float64(cfg.DateVarianceDays) {
				continue
			}
		}

		mismatches := []models.FieldMismatch{}
		if diff.IsPositive() {
			mismatches = append(mismatches, models.FieldMismatch{
				Field:         "amount",
				SystemValue:   sys.Amount.String(),
				UploadedValue: candidate.Amount.String(),
				Variance:      variance.StringFixed(2) + "%",
			})
		}
		if sys.TransactionID != candidate.TransactionID {
			mismatches = append(mismatches, models.FieldMismatch{
				Field:         "transactionId",
				SystemValue:   sys.TransactionID,
				UploadedValue: candidate.TransactionID,
			})
		}

		status := models.MatchStatusMatched
		if len(mismatches) > 0 {
			status = models.MatchStatusPartiallyMatched
		}
		return &Match{SystemRecord: sys, Status: status, Mismatches: mismatches}, nil
	}
	return nil, nil
}

// applyReference matches on reference number alone; the classification is
// Matched only when transaction id and amount also agree.
func (e *Evaluator) applyReference(candidate *models.Record, jobID uuid.UUID) (*Match, error) {
	if candidate.ReferenceNumber == "" {
		return nil, nil
	}

	hits, err := e.records.FindByFilters(jobID, map[string]interface{}{
		"reference_number": candidate.ReferenceNumber,
	})
	if err != nil {
		return nil, err
	}

	for i := range hits {
		sys := &hits[i]
		if sys.ID == candidate.ID {
			continue
		}

		mismatches := []models.FieldMismatch{}
		if sys.TransactionID != candidate.TransactionID {
			mismatches = append(mismatches, models.FieldMismatch{
				Field:         "transactionId",
				SystemValue:   sys.TransactionID,
				UploadedValue: candidate.TransactionID,
			})
		}
		if !sys.Amount.Equal(candidate.Amount) {
			mismatches = append(mismatches, models.FieldMismatch{
				Field:         "amount",
				SystemValue:   sys.Amount.String(),
				UploadedValue: candidate.Amount.String(),
			})
		}

		status := models.MatchStatusMatched
		if len(mismatches) > 0 {
			status = models.MatchStatusPartiallyMatched
		}
		return &Match{SystemRecord: sys, Status: status, Mismatches: mismatches}, nil
	}
	return nil, nil
}
