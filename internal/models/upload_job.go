package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// UploadJob lifecycle statuses.
const (
	JobStatusPending         = "Pending"
	JobStatusProcessing      = "Processing"
	JobStatusCompleted       = "Completed"
	JobStatusFailed          = "Failed"
	JobStatusPartiallyFailed = "PartiallyFailed"
)

// UploadJob is one submitted file's unit of work. Jobs are never deleted;
// they are retained as part of the audit trail.
type UploadJob struct {
	ID                      uuid.UUID `gorm:"type:uuid;primaryKey"`
	FileName                string
	FileHash                string `gorm:"index:idx_upload_jobs_hash_actor"`
	UploadedBy              string `gorm:"index:idx_upload_jobs_hash_actor"`
	Status                  string `gorm:"index"`
	TotalRecords            int
	ProcessedRecords        int
	FailedRecords           int
	MatchedRecords          int
	PartiallyMatchedRecords int
	UnmatchedRecords        int
	DuplicateRecords        int
	ColumnMapping           datatypes.JSONMap
	ErrorMessage            string
	FailureReason           string
	RetryCount              int
	ProgressPercent         int
	QueueJobID              string    `gorm:"index"`
	CreatedAt               time.Time `gorm:"index;<-:create"`
	StartedAt               *time.Time
	CompletedAt             *time.Time
	FailedAt                *time.Time
}

// MappingFields returns the column mapping as a plain string map.
func (j *UploadJob) MappingFields() map[string]string {
	mapping := make(map[string]string, len(j.ColumnMapping))
	for field, col := range j.ColumnMapping {
		if s, ok := col.(string); ok {
			mapping[field] = s
		}
	}
	return mapping
}

// Retryable reports whether the job is in a state that allows a retry.
func (j *UploadJob) Retryable() bool {
	return j.Status == JobStatusFailed || j.Status == JobStatusPartiallyFailed
}
