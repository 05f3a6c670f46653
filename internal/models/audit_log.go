package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrAuditLogImmutable is returned by any attempt to update or delete an
// existing audit entry.
var ErrAuditLogImmutable = errors.New("audit logs are immutable")

// Audit actions.
const (
	AuditActionCreate              = "CREATE"
	AuditActionUpdate              = "UPDATE"
	AuditActionDelete              = "DELETE"
	AuditActionReconcile           = "RECONCILE"
	AuditActionUpload              = "UPLOAD"
	AuditActionManualCorrection    = "MANUAL_CORRECTION"
	AuditActionUnauthorizedAttempt = "UNAUTHORIZED_ATTEMPT"
)

// Audit sources.
const (
	AuditSourceAPI    = "API"
	AuditSourceSystem = "SYSTEM"
	AuditSourceManual = "MANUAL"
)

// AuditLog is one append-only entry per state transition. Entries reference
// records and jobs by id only; they never own them.
type AuditLog struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey"`
	RecordID    *uuid.UUID `gorm:"index:idx_audit_record_ts,priority:1"`
	UploadJobID *uuid.UUID `gorm:"index:idx_audit_job_ts,priority:1"`
	Action      string     `gorm:"index"`
	EntityType  string     `gorm:"index"`
	OldValue    datatypes.JSON
	NewValue    datatypes.JSON
	ChangedBy   string `gorm:"index"`
	Source      string
	Timestamp   time.Time `gorm:"index:idx_audit_record_ts,priority:2,sort:desc;index:idx_audit_job_ts,priority:2,sort:desc;<-:create"`
	IPAddress   string
	UserAgent   string
}

// BeforeUpdate refuses every update; the ledger is append-only.
func (AuditLog) BeforeUpdate(*gorm.DB) error {
	return ErrAuditLogImmutable
}

// BeforeDelete refuses every delete; the ledger is append-only.
func (AuditLog) BeforeDelete(*gorm.DB) error {
	return ErrAuditLogImmutable
}
