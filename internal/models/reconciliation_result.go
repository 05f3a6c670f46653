package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Classification statuses assigned to each processed record.
const (
	MatchStatusMatched          = "Matched"
	MatchStatusPartiallyMatched = "Partially Matched"
	MatchStatusNotMatched       = "Not Matched"
	MatchStatusDuplicate        = "Duplicate"
	MatchStatusFailed           = "Failed"
)

// Sentinel values for MatchedRule when no rule produced the classification.
const (
	RuleNameNoMatch   = "No matching rule"
	RuleNameDuplicate = "Duplicate Detection"
	RuleNameError     = "Error during processing"
)

// FieldMismatch records a single field disagreement between the system
// record and the uploaded record.
type FieldMismatch struct {
	Field         string `json:"field"`
	SystemValue   string `json:"systemValue"`
	UploadedValue string `json:"uploadedValue"`
	Variance      string `json:"variance,omitempty"`
}

// ReconciliationResult is the classification of one record. Results are
// written once and never updated; corrections produce new audit entries
// instead of rewriting results.
type ReconciliationResult struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	UploadJobID      uuid.UUID `gorm:"index;index:idx_results_job_status,priority:1"`
	RecordID         uuid.UUID `gorm:"index"`
	SystemRecord     *datatypes.JSONType[Snapshot]
	UploadedRecord   datatypes.JSONType[Snapshot]
	MatchStatus      string `gorm:"index:idx_results_job_status,priority:2"`
	MismatchedFields datatypes.JSONSlice[FieldMismatch]
	MatchedRule      string `gorm:"index"`
	DuplicateReason  string
	ErrorMessage     string
	Confidence       int
	CreatedAt        time.Time `gorm:"index;<-:create"`
}
