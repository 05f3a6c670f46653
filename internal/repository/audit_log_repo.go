package repository

import (
	"time"

	"transaction-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditLogRepository is append-and-read only. There are deliberately no
// update or delete methods; the model's gorm hooks additionally refuse any
// mutation that reaches the database layer directly.
type AuditLogRepository struct {
	db *gorm.DB
}

func NewAuditLogRepository(db *gorm.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

func (r *AuditLogRepository) DB() *gorm.DB {
	return r.db
}

// WithTx returns a copy of the repository scoped to the given transaction.
func (r *AuditLogRepository) WithTx(tx *gorm.DB) *AuditLogRepository {
	return &AuditLogRepository{db: tx}
}

// Append writes one immutable entry, stamping id and timestamp if unset.
func (r *AuditLogRepository) Append(entry *models.AuditLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	return r.db.Create(entry).Error
}

// TimelineByRecord returns a record's audit entries, newest first.
func (r *AuditLogRepository) TimelineByRecord(recordID uuid.UUID) ([]models.AuditLog, error) {
	var entries []models.AuditLog
	err := r.db.
		Where("record_id = ?", recordID).
		Order("timestamp DESC").
		Find(&entries).Error
	return entries, err
}

// TimelineByJob returns an upload job's audit entries, newest first.
func (r *AuditLogRepository) TimelineByJob(jobID uuid.UUID) ([]models.AuditLog, error) {
	var entries []models.AuditLog
	err := r.db.
		Where("upload_job_id = ?", jobID).
		Order("timestamp DESC").
		Find(&entries).Error
	return entries, err
}

// AuditListFilter narrows List results.
type AuditListFilter struct {
	Action     string
	EntityType string
	StartDate  *time.Time
	EndDate    *time.Time
}

// List returns audit entries matching the filter, newest first, with the
// total count before pagination.
func (r *AuditLogRepository) List(filter AuditListFilter, page, limit int) ([]models.AuditLog, int64, error) {
	query := r.db.Model(&models.AuditLog{})
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	if filter.EntityType != "" {
		query = query.Where("entity_type = ?", filter.EntityType)
	}
	if filter.StartDate != nil {
		query = query.Where("timestamp >= ?", *filter.StartDate)
	}
	if filter.EndDate != nil {
		query = query.Where("timestamp <= ?", *filter.EndDate)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []models.AuditLog
	err := query.
		Order("timestamp DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&entries).Error
	return entries, total, err
}
