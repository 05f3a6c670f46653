package matching

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"transaction-reconciliation-backend/internal/models"
	"transaction-reconciliation-backend/internal/repository"
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

func newRecord(jobID uuid.UUID, txnID, amount, ref string, date time.Time) *models.Record {
	return &models.Record{
		ID:              uuid.New(),
		UploadJobID:     jobID,
		TransactionID:   txnID,
		Amount:          decimal.RequireFromString(amount),
		ReferenceNumber: ref,
		Date:            date,
	}
}

func persist(t *testing.T, db *gorm.DB, records ...*models.Record) {
	t.Helper()
	for _, r := range records {
		require.NoError(t, db.Create(r).Error)
	}
}

func partialRule(variancePercent float64, varianceDays int) *models.MatchingRule {
	cfg := datatypes.NewJSONType(models.PartialMatchConfig{
		AmountVariancePercent: variancePercent,
		DateVarianceDays:      varianceDays,
		RequiredFields:        []string{"referenceNumber"},
	})
	return &models.MatchingRule{
		ID:           uuid.New(),
		RuleName:     "partial",
		RuleType:     models.RuleTypePartialMatch,
		Enabled:      true,
		PartialMatch: &cfg,
	}
}

func TestExactMatchIdenticalRecords(t *testing.T) {
	db := newTestDB(t)
	evaluator := NewEvaluator(repository.NewRecordRepository(db))
	jobID := uuid.New()
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	system := newRecord(jobID, "TX100", "250.00", "REF-1", date)
	candidate := newRecord(jobID, "TX100", "250.00", "REF-1", date)
	persist(t, db, system, candidate)

	rule := &models.MatchingRule{
		ID:       uuid.New(),
		RuleName: "exact",
		RuleType: models.RuleTypeExactMatch,
		Enabled:  true,
	}

	match, err := evaluator.Apply(rule, candidate, jobID)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, models.MatchStatusMatched, match.Status)
	assert.Empty(t, match.Mismatches)
	assert.Equal(t, system.ID, match.SystemRecord.ID)
}

func TestExactMatchNeverMatchesItself(t *testing.T) {
	db := newTestDB(t)
	evaluator := NewEvaluator(repository.NewRecordRepository(db))
	jobID := uuid.New()

	only := newRecord(jobID, "TX1", "10.00", "R", time.Now().UTC())
	persist(t, db, only)

	rule := &models.MatchingRule{ID: uuid.New(), RuleType: models.RuleTypeExactMatch, Enabled: true}
	match, err := evaluator.Apply(rule, only, jobID)
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestExactMatchConfiguredFields(t *testing.T) {
	db := newTestDB(t)
	evaluator := NewEvaluator(repository.NewRecordRepository(db))
	jobID := uuid.New()
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	// amount differs, so the default fields would not match; a rule keyed
	// on transactionId alone does
	system := newRecord(jobID, "TX7", "99.00", "A", date)
	candidate := newRecord(jobID, "TX7", "50.00", "B", date)
	persist(t, db, system, candidate)

	rule := &models.MatchingRule{
		ID:               uuid.New(),
		RuleType:         models.RuleTypeExactMatch,
		Enabled:          true,
		ExactMatchFields: datatypes.NewJSONSlice([]string{"transactionId"}),
	}
	match, err := evaluator.Apply(rule, candidate, jobID)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, models.MatchStatusMatched, match.Status)

	defaultRule := &models.MatchingRule{ID: uuid.New(), RuleType: models.RuleTypeExactMatch, Enabled: true}
	match, err = evaluator.Apply(defaultRule, candidate, jobID)
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestPartialMatchWithinTolerance(t *testing.T) {
	db := newTestDB(t)
	evaluator := NewEvaluator(repository.NewRecordRepository(db))
	jobID := uuid.New()
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	system := newRecord(jobID, "TX-A", "100.00", "REF-9", date)
	candidate := newRecord(jobID, "TX-B", "101.50", "REF-9", date)
	persist(t, db, system, candidate)

	match, err := evaluator.Apply(partialRule(2, 0), candidate, jobID)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, models.MatchStatusPartiallyMatched, match.Status)

	require.Len(t, match.Mismatches, 2)
	amountMismatch := match.Mismatches[0]
	assert.Equal(t, "amount", amountMismatch.Field)
	assert.Equal(t, "100", amountMismatch.SystemValue)
	assert.Equal(t, "101.5", amountMismatch.UploadedValue)
	assert.Equal(t, "1.50%", amountMismatch.Variance)
	assert.Equal(t, "transactionId", match.Mismatches[1].Field)
}

func TestPartialMatchOutsideTolerance(t *testing.T) {
	db := newTestDB(t)
	evaluator := NewEvaluator(repository.NewRecordRepository(db))
	jobID := uuid.New()
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	system := newRecord(jobID, "TX-A", "100.00", "REF-9", date)
	candidate := newRecord(jobID, "TX-B", "103.00", "REF-9", date)
	persist(t, db, system, candidate)

	match, err := evaluator.Apply(partialRule(2, 0), candidate, jobID)
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestPartialMatchIdenticalAmountAndTransaction(t *testing.T) {
	db := newTestDB(t)
	evaluator := NewEvaluator(repository.NewRecordRepository(db))
	jobID := uuid.New()
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	system := newRecord(jobID, "TX-A", "100.00", "REF-9", date)
	candidate := newRecord(jobID, "TX-A", "100.00", "REF-9", date)
	persist(t, db, system, candidate)

	match, err := evaluator.Apply(partialRule(2, 0), candidate, jobID)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, models.MatchStatusMatched, match.Status)
	assert.Empty(t, match.Mismatches)
}

func TestPartialMatchZeroSystemAmount(t *testing.T) {
	db := newTestDB(t)
	evaluator := NewEvaluator(repository.NewRecordRepository(db))
	jobID := uuid.New()
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	system := newRecord(jobID, "TX-A", "0.00", "REF-Z", date)
	zeroCandidate := newRecord(jobID, "TX-B", "0.00", "REF-Z", date)
	persist(t, db, system, zeroCandidate)

	// zero against zero matches without raising
	match, err := evaluator.Apply(partialRule(2, 0), zeroCandidate, jobID)
	require.NoError(t, err)
	require.NotNil(t, match)

	nonZero := newRecord(jobID, "TX-C", "10.00", "REF-Z2", date)
	zeroSystem := newRecord(jobID, "TX-D", "0.00", "REF-Z2", date)
	persist(t, db, zeroSystem, nonZero)

	// zero against non-zero never matches
	match, err = evaluator.Apply(partialRule(50, 0), nonZero, jobID)
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestPartialMatchDateTolerance(t *testing.T) {
	db := newTestDB(t)
	evaluator := NewEvaluator(repository.NewRecordRepository(db))
	jobID := uuid.New()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	system := newRecord(jobID, "TX-A", "100.00", "REF-D", base)
	closeCandidate := newRecord(jobID, "TX-B", "100.00", "REF-D", base.AddDate(0, 0, 1))
	persist(t, db, system, closeCandidate)

	match, err := evaluator.Apply(partialRule(2, 1), closeCandidate, jobID)
	require.NoError(t, err)
	require.NotNil(t, match)

	farCandidate := newRecord(jobID, "TX-C", "100.00", "REF-D2", base.AddDate(0, 0, 5))
	farSystem := newRecord(jobID, "TX-D", "100.00", "REF-D2", base)
	persist(t, db, farSystem, farCandidate)

	match, err = evaluator.Apply(partialRule(2, 1), farCandidate, jobID)
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestReferenceMatch(t *testing.T) {
	db := newTestDB(t)
	evaluator := NewEvaluator(repository.NewRecordRepository(db))
	jobID := uuid.New()
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	rule := &models.MatchingRule{ID: uuid.New(), RuleType: models.RuleTypeReferenceMatch, Enabled: true}

	// full agreement on reference, id and amount
	system := newRecord(jobID, "TX1", "42.00", "SAME", date)
	agreeing := newRecord(jobID, "TX1", "42.00", "SAME", date)
	persist(t, db, system, agreeing)

	match, err := evaluator.Apply(rule, agreeing, jobID)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, models.MatchStatusMatched, match.Status)

	// same reference, different id and amount
	other := newRecord(jobID, "TX9", "50.00", "OTHER", date)
	otherSystem := newRecord(jobID, "TX2", "42.00", "OTHER", date)
	persist(t, db, otherSystem, other)

	match, err = evaluator.Apply(rule, other, jobID)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, models.MatchStatusPartiallyMatched, match.Status)
	assert.Len(t, match.Mismatches, 2)

	// empty reference never matches
	blank := newRecord(jobID, "TX3", "1.00", "", date)
	match, err = evaluator.Apply(rule, blank, jobID)
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestUnknownRuleTypeNeverMatches(t *testing.T) {
	db := newTestDB(t)
	evaluator := NewEvaluator(repository.NewRecordRepository(db))
	jobID := uuid.New()

	candidate := newRecord(jobID, "TX1", "1.00", "R", time.Now().UTC())
	persist(t, db, candidate)

	rule := &models.MatchingRule{ID: uuid.New(), RuleType: "FUZZY_MATCH", Enabled: true}
	match, err := evaluator.Apply(rule, candidate, jobID)
	require.NoError(t, err)
	assert.Nil(t, match)
}
