package reconciliation

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"transaction-reconciliation-backend/internal/models"
	"transaction-reconciliation-backend/internal/repository"
	"transaction-reconciliation-backend/internal/services/matching"
	"transaction-reconciliation-backend/internal/services/rules"
)

// RecordError captures a per-record reconciliation failure. The batch keeps
// going; the caller receives these alongside the results.
type RecordError struct {
	RecordID      uuid.UUID `json:"recordId"`
	TransactionID string    `json:"transactionId"`
	Error         string    `json:"error"`
}

// Engine classifies candidate records against the persisted population of
// the same job, applying active rules in priority order after duplicate
// detection, and writes one audit entry per emitted result.
type Engine struct {
	ruleStore *rules.Store
	records   *repository.RecordRepository
	results   *repository.ReconciliationResultRepository
	audit     *repository.AuditLogRepository
	log       *logrus.Entry
}

func NewEngine(
	ruleStore *rules.Store,
	records *repository.RecordRepository,
	results *repository.ReconciliationResultRepository,
	audit *repository.AuditLogRepository,
) *Engine {
	return &Engine{
		ruleStore: ruleStore,
		records:   records,
		results:   results,
		audit:     audit,
		log:       logrus.WithField("component", "reconciliation_engine"),
	}
}

// ActiveRules resolves the rule snapshot for one run. A stale snapshot is
// served with a warning; the error is non-nil only when no snapshot was ever
// loaded. Callers must resolve the snapshot before opening the run's
// transaction so the rule fetch never competes with it for a connection.
func (e *Engine) ActiveRules() ([]models.MatchingRule, error) {
	activeRules, err := e.ruleStore.GetActiveRules()
	if err != nil {
		if !errors.Is(err, rules.ErrStaleSnapshot) {
			return nil, err
		}
		e.log.WithError(err).Warn("reconciling with stale rule snapshot")
	}
	return activeRules, nil
}

// Reconcile classifies every candidate in input order against the supplied
// rule snapshot. Per-record failures emit a Failed result and are collected
// into the returned error list; they never abort the run. Progress is
// reported through report(done, total) when non-nil.
func (e *Engine) Reconcile(
	tx *gorm.DB,
	jobID uuid.UUID,
	candidates []models.Record,
	activeRules []models.MatchingRule,
	actorID string,
	report func(done, total int),
) ([]models.ReconciliationResult, []RecordError, error) {
	detector := matching.NewDuplicateDetector(e.records.WithTx(tx))
	evaluator := matching.NewEvaluator(e.records).WithTx(tx)
	resultRepo := e.results.WithTx(tx)
	auditRepo := e.audit.WithTx(tx)

	results := make([]models.ReconciliationResult, 0, len(candidates))
	var recordErrors []RecordError

	for i := range candidates {
		candidate := &candidates[i]

		result, recErr := e.classifyOne(detector, evaluator, activeRules, candidate, jobID)
		if recErr != nil {
			recordErrors = append(recordErrors, *recErr)
			result = e.failedResult(jobID, candidate, recErr.Error)
		}

		if err := e.persistResult(resultRepo, auditRepo, result, actorID); err != nil {
			// Persisting the verdict failed; record it as a per-record error
			// and move on.
			e.log.WithError(err).WithField("transaction_id", candidate.TransactionID).
				Error("failed to persist reconciliation result")
			recordErrors = append(recordErrors, RecordError{
				RecordID:      candidate.ID,
				TransactionID: candidate.TransactionID,
				Error:         err.Error(),
			})
			continue
		}
		results = append(results, *result)

		if report != nil {
			report(i+1, len(candidates))
		}
	}

	return results, recordErrors, nil
}

// classifyOne runs duplicate detection then the rule loop for one candidate.
// Panics from malformed data are converted into per-record errors.
func (e *Engine) classifyOne(
	detector *matching.DuplicateDetector,
	evaluator *matching.Evaluator,
	activeRules []models.MatchingRule,
	candidate *models.Record,
	jobID uuid.UUID,
) (result *models.ReconciliationResult, recErr *RecordError) {
	defer func() {
		if r := recover(); r != nil {
			recErr = &RecordError{
				RecordID:      candidate.ID,
				TransactionID: candidate.TransactionID,
				Error:         fmt.Sprintf("panic while classifying record: %v", r),
			}
		}
	}()

	verdict, err := detector.Classify(candidate, jobID)
	if err != nil {
		return nil, &RecordError{
			RecordID:      candidate.ID,
			TransactionID: candidate.TransactionID,
			Error:         err.Error(),
		}
	}
	if verdict.Kind != matching.NotDuplicate {
		return e.duplicateResult(jobID, candidate, verdict), nil
	}

	for i := range activeRules {
		rule := &activeRules[i]
		match, err := evaluator.Apply(rule, candidate, jobID)
		if err != nil {
			return nil, &RecordError{
				RecordID:      candidate.ID,
				TransactionID: candidate.TransactionID,
				Error:         err.Error(),
			}
		}
		if match != nil {
			return e.matchResult(jobID, candidate, match, rule.RuleName), nil
		}
	}

	return e.noMatchResult(jobID, candidate), nil
}

func (e *Engine) matchResult(jobID uuid.UUID, candidate *models.Record, match *matching.Match, ruleName string) *models.ReconciliationResult {
	system := datatypes.NewJSONType(match.SystemRecord.Snapshot())
	return &models.ReconciliationResult{
		ID:               uuid.New(),
		UploadJobID:      jobID,
		RecordID:         candidate.ID,
		SystemRecord:     &system,
		UploadedRecord:   datatypes.NewJSONType(candidate.Snapshot()),
		MatchStatus:      match.Status,
		MismatchedFields: datatypes.NewJSONSlice(match.Mismatches),
		MatchedRule:      ruleName,
		Confidence:       100,
	}
}

func (e *Engine) noMatchResult(jobID uuid.UUID, candidate *models.Record) *models.ReconciliationResult {
	return &models.ReconciliationResult{
		ID:             uuid.New(),
		UploadJobID:    jobID,
		RecordID:       candidate.ID,
		UploadedRecord: datatypes.NewJSONType(candidate.Snapshot()),
		MatchStatus:    models.MatchStatusNotMatched,
		MatchedRule:    models.RuleNameNoMatch,
		Confidence:     100,
	}
}

func (e *Engine) duplicateResult(jobID uuid.UUID, candidate *models.Record, verdict matching.DuplicateVerdict) *models.ReconciliationResult {
	result := &models.ReconciliationResult{
		ID:              uuid.New(),
		UploadJobID:     jobID,
		RecordID:        candidate.ID,
		UploadedRecord:  datatypes.NewJSONType(candidate.Snapshot()),
		MatchStatus:     models.MatchStatusDuplicate,
		MatchedRule:     models.RuleNameDuplicate,
		DuplicateReason: verdict.Reason,
		Confidence:      100,
	}
	if verdict.Existing != nil {
		system := datatypes.NewJSONType(verdict.Existing.Snapshot())
		result.SystemRecord = &system
	}
	return result
}

func (e *Engine) failedResult(jobID uuid.UUID, candidate *models.Record, errMsg string) *models.ReconciliationResult {
	return &models.ReconciliationResult{
		ID:             uuid.New(),
		UploadJobID:    jobID,
		RecordID:       candidate.ID,
		UploadedRecord: datatypes.NewJSONType(candidate.Snapshot()),
		MatchStatus:    models.MatchStatusFailed,
		MatchedRule:    models.RuleNameError,
		ErrorMessage:   errMsg,
		Confidence:     0,
	}
}

// persistResult writes the result and its audit entry, attributing the
// reconcile action to the supplied actor with source SYSTEM.
func (e *Engine) persistResult(
	resultRepo *repository.ReconciliationResultRepository,
	auditRepo *repository.AuditLogRepository,
	result *models.ReconciliationResult,
	actorID string,
) error {
	if err := resultRepo.Create(result); err != nil {
		return err
	}

	newValue, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return auditRepo.Append(&models.AuditLog{
		RecordID:    &result.RecordID,
		UploadJobID: &result.UploadJobID,
		Action:      models.AuditActionReconcile,
		EntityType:  "ReconciliationResult",
		NewValue:    newValue,
		ChangedBy:   actorID,
		Source:      models.AuditSourceSystem,
	})
}

// Stats tallies results by classification.
type Stats struct {
	Matched          int
	PartiallyMatched int
	Unmatched        int
	Duplicate        int
	Failed           int
}

// Summarize counts each classification in the given results.
func Summarize(results []models.ReconciliationResult) Stats {
	var stats Stats
	for i := range results {
		switch results[i].MatchStatus {
		case models.MatchStatusMatched:
			stats.Matched++
		case models.MatchStatusPartiallyMatched:
			stats.PartiallyMatched++
		case models.MatchStatusNotMatched:
			stats.Unmatched++
		case models.MatchStatusDuplicate:
			stats.Duplicate++
		case models.MatchStatusFailed:
			stats.Failed++
		}
	}
	return stats
}
