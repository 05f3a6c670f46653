package reconciliation

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"transaction-reconciliation-backend/internal/models"
	"transaction-reconciliation-backend/internal/repository"
	"transaction-reconciliation-backend/internal/services/matching"
	"transaction-reconciliation-backend/internal/services/rules"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&models.UploadJob{},
		&models.Record{},
		&models.MatchingRule{},
		&models.ReconciliationResult{},
		&models.AuditLog{},
	))
	return db
}

func newEngine(t *testing.T, db *gorm.DB) *Engine {
	t.Helper()
	ruleRepo := repository.NewMatchingRuleRepository(db)
	require.NoError(t, rules.EnsureDefaults(ruleRepo))
	return NewEngine(
		rules.NewStore(ruleRepo, time.Minute),
		repository.NewRecordRepository(db),
		repository.NewReconciliationResultRepository(db),
		repository.NewAuditLogRepository(db),
	)
}

func snapshotRules(t *testing.T, engine *Engine) []models.MatchingRule {
	t.Helper()
	activeRules, err := engine.ActiveRules()
	require.NoError(t, err)
	return activeRules
}

func record(jobID uuid.UUID, txnID, amount, ref string, date time.Time) models.Record {
	return models.Record{
		ID:              uuid.New(),
		UploadJobID:     jobID,
		TransactionID:   txnID,
		Amount:          decimal.RequireFromString(amount),
		ReferenceNumber: ref,
		Date:            date,
	}
}

func persistAll(t *testing.T, db *gorm.DB, records []models.Record) {
	t.Helper()
	for i := range records {
		require.NoError(t, db.Create(&records[i]).Error)
	}
}

func TestReconcileClassifiesAndPersists(t *testing.T) {
	db := newTestDB(t)
	engine := newEngine(t, db)
	jobID := uuid.New()
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	matchedPairA := record(jobID, "TX1", "100.00", "R1", date)
	matchedPairB := record(jobID, "TX1", "100.00", "R1", date)
	orphan := record(jobID, "TX-ORPHAN", "55.00", "R-NONE", date)
	candidates := []models.Record{matchedPairA, matchedPairB, orphan}
	persistAll(t, db, candidates)

	results, recErrs, err := engine.Reconcile(db, jobID, candidates, snapshotRules(t, engine), "tester", nil)
	require.NoError(t, err)
	assert.Empty(t, recErrs)
	require.Len(t, results, 3)

	// TX1 appears twice in the job, so the first occurrence already trips
	// the within-job duplicate check
	assert.Equal(t, models.MatchStatusDuplicate, results[0].MatchStatus)
	assert.Equal(t, matching.ReasonWithinJob, results[0].DuplicateReason)
	assert.Equal(t, models.RuleNameDuplicate, results[0].MatchedRule)

	assert.Equal(t, models.MatchStatusDuplicate, results[1].MatchStatus)
	assert.Equal(t, matching.ReasonWithinBatch, results[1].DuplicateReason)

	assert.Equal(t, models.MatchStatusNotMatched, results[2].MatchStatus)
	assert.Equal(t, models.RuleNameNoMatch, results[2].MatchedRule)
	assert.Equal(t, 100, results[2].Confidence)

	stats := Summarize(results)
	assert.Equal(t, 2, stats.Duplicate)
	assert.Equal(t, 1, stats.Unmatched)
}

func TestReconcileWithinJobDuplicateOutranksRules(t *testing.T) {
	db := newTestDB(t)
	engine := newEngine(t, db)
	jobID := uuid.New()
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	// two identical rows in the job would satisfy the exact rules, but the
	// repeated transaction id is a within-job duplicate and the duplicate
	// check runs before any rule
	system := record(jobID, "TX-SYS", "200.00", "R-9", date)
	candidate := record(jobID, "TX-SYS", "200.00", "R-9", date)
	persistAll(t, db, []models.Record{system, candidate})

	results, recErrs, err := engine.Reconcile(db, jobID, []models.Record{candidate}, snapshotRules(t, engine), "tester", nil)
	require.NoError(t, err)
	require.Empty(t, recErrs)
	require.Len(t, results, 1)

	assert.Equal(t, models.MatchStatusDuplicate, results[0].MatchStatus)
	assert.Equal(t, matching.ReasonWithinJob, results[0].DuplicateReason)
}

func TestReconcileMatchesByRulePriority(t *testing.T) {
	db := newTestDB(t)
	engine := newEngine(t, db)
	jobID := uuid.New()
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	system := record(jobID, "TX-A", "100.00", "REF-P", date)
	candidate := record(jobID, "TX-B", "101.00", "REF-P", date)
	persistAll(t, db, []models.Record{system, candidate})

	results, recErrs, err := engine.Reconcile(db, jobID, []models.Record{candidate}, snapshotRules(t, engine), "tester", nil)
	require.NoError(t, err)
	require.Empty(t, recErrs)
	require.Len(t, results, 1)

	// the exact rules cannot match, so the 2% partial rule wins over the
	// lower-priority reference rule
	assert.Equal(t, models.MatchStatusPartiallyMatched, results[0].MatchStatus)
	assert.Equal(t, "Partial Match - 2% Amount Variance", results[0].MatchedRule)
	require.NotNil(t, results[0].SystemRecord)
	assert.Equal(t, "TX-A", results[0].SystemRecord.Data().TransactionID)

	mismatches := results[0].MismatchedFields
	require.Len(t, mismatches, 2)
	assert.Equal(t, "amount", mismatches[0].Field)
	assert.Equal(t, "1.00%", mismatches[0].Variance)
}

func TestReconcileWritesOneAuditEntryPerResult(t *testing.T) {
	db := newTestDB(t)
	engine := newEngine(t, db)
	jobID := uuid.New()
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	candidates := []models.Record{
		record(jobID, "TX1", "10.00", "A", date),
		record(jobID, "TX2", "20.00", "B", date),
	}
	persistAll(t, db, candidates)

	_, _, err := engine.Reconcile(db, jobID, candidates, snapshotRules(t, engine), "auditor", nil)
	require.NoError(t, err)

	auditRepo := repository.NewAuditLogRepository(db)
	entries, err := auditRepo.TimelineByJob(jobID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, entry := range entries {
		assert.Equal(t, models.AuditActionReconcile, entry.Action)
		assert.Equal(t, models.AuditSourceSystem, entry.Source)
		assert.Equal(t, "auditor", entry.ChangedBy)
		assert.NotEmpty(t, entry.NewValue)
	}
}

func TestReconcileReportsProgress(t *testing.T) {
	db := newTestDB(t)
	engine := newEngine(t, db)
	jobID := uuid.New()
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	candidates := []models.Record{
		record(jobID, "TX1", "10.00", "A", date),
		record(jobID, "TX2", "20.00", "B", date),
		record(jobID, "TX3", "30.00", "C", date),
	}
	persistAll(t, db, candidates)

	var seen []int
	_, _, err := engine.Reconcile(db, jobID, candidates, snapshotRules(t, engine), "tester", func(done, total int) {
		assert.Equal(t, 3, total)
		seen = append(seen, done)
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestActiveRulesFailsWhenRuleStoreUnavailable(t *testing.T) {
	db := newTestDB(t)
	// no snapshot and a dropped rules table produces a structural failure
	require.NoError(t, db.Migrator().DropTable(&models.MatchingRule{}))

	engine := NewEngine(
		rules.NewStore(repository.NewMatchingRuleRepository(db), time.Minute),
		repository.NewRecordRepository(db),
		repository.NewReconciliationResultRepository(db),
		repository.NewAuditLogRepository(db),
	)

	_, err := engine.ActiveRules()
	require.ErrorIs(t, err, rules.ErrRuleStoreUnavailable)
}
