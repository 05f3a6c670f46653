package reconciliation

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"transaction-reconciliation-backend/internal/models"
	"transaction-reconciliation-backend/internal/repository"
)

// ErrNoCorrectionFields is returned when a correction carries no updates.
var ErrNoCorrectionFields = errors.New("no fields to correct")

// ErrNegativeAmount is returned when a correction sets a negative amount.
var ErrNegativeAmount = errors.New("amount must be non-negative")

// Correction holds the fields a manual correction may change. Nil pointers
// leave the field untouched.
type Correction struct {
	TransactionID   *string
	Amount          *decimal.Decimal
	ReferenceNumber *string
	Date            *time.Time
}

func (c Correction) empty() bool {
	return c.TransactionID == nil && c.Amount == nil && c.ReferenceNumber == nil && c.Date == nil
}

// Origin carries the request metadata recorded on the audit entry.
type Origin struct {
	IPAddress string
	UserAgent string
}

// Corrector applies manual corrections to records, writing the new record
// state and exactly one audit entry with old and new snapshots.
type Corrector struct {
	records *repository.RecordRepository
	audit   *repository.AuditLogRepository
}

func NewCorrector(records *repository.RecordRepository, audit *repository.AuditLogRepository) *Corrector {
	return &Corrector{records: records, audit: audit}
}

// Correct updates the record and appends one MANUAL_CORRECTION audit entry.
func (c *Corrector) Correct(recordID uuid.UUID, correction Correction, actorID string, origin Origin) (*models.Record, error) {
	if correction.empty() {
		return nil, ErrNoCorrectionFields
	}
	if correction.Amount != nil && correction.Amount.IsNegative() {
		return nil, ErrNegativeAmount
	}

	record, err := c.records.GetByID(recordID)
	if err != nil {
		return nil, err
	}

	oldSnapshot := record.Snapshot()

	if correction.TransactionID != nil {
		record.TransactionID = *correction.TransactionID
	}
	if correction.Amount != nil {
		record.Amount = *correction.Amount
	}
	if correction.ReferenceNumber != nil {
		record.ReferenceNumber = *correction.ReferenceNumber
	}
	if correction.Date != nil {
		record.Date = *correction.Date
	}

	if err := c.records.Save(record); err != nil {
		return nil, err
	}

	oldValue, err := json.Marshal(oldSnapshot)
	if err != nil {
		return nil, err
	}
	newValue, err := json.Marshal(record.Snapshot())
	if err != nil {
		return nil, err
	}

	if err := c.audit.Append(&models.AuditLog{
		RecordID:    &record.ID,
		UploadJobID: &record.UploadJobID,
		Action:      models.AuditActionManualCorrection,
		EntityType:  "Record",
		OldValue:    oldValue,
		NewValue:    newValue,
		ChangedBy:   actorID,
		Source:      models.AuditSourceManual,
		IPAddress:   origin.IPAddress,
		UserAgent:   origin.UserAgent,
	}); err != nil {
		return nil, err
	}
	return record, nil
}
