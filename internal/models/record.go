package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Required logical fields every uploaded row must map.
var RequiredRecordFields = []string{"transactionId", "amount", "referenceNumber", "date"}

// Record is one validated row of an uploaded file, owned by exactly one
// UploadJob. Records are only ever mutated through manual correction and are
// never deleted.
type Record struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey"`
	UploadJobID     uuid.UUID       `gorm:"index;index:idx_records_txn_job,priority:2"`
	TransactionID   string          `gorm:"index;index:idx_records_txn_job,priority:1"`
	Amount          decimal.Decimal `gorm:"type:numeric"`
	ReferenceNumber string          `gorm:"index"`
	Date            time.Time       `gorm:"index"`
	AdditionalData  datatypes.JSONMap
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Snapshot captures the matching-relevant fields of a record at a point in
// time. Reconciliation results and audit entries store snapshots by value so
// later corrections cannot rewrite history.
type Snapshot struct {
	TransactionID   string          `json:"transactionId"`
	Amount          decimal.Decimal `json:"amount"`
	ReferenceNumber string          `json:"referenceNumber"`
	Date            time.Time       `json:"date"`
}

// Snapshot returns the record's current matching fields by value.
func (r *Record) Snapshot() Snapshot {
	return Snapshot{
		TransactionID:   r.TransactionID,
		Amount:          r.Amount,
		ReferenceNumber: r.ReferenceNumber,
		Date:            r.Date,
	}
}
