package repository

import (
	"transaction-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ReconciliationResultRepository struct {
	db *gorm.DB
}

func NewReconciliationResultRepository(db *gorm.DB) *ReconciliationResultRepository {
	return &ReconciliationResultRepository{db: db}
}

func (r *ReconciliationResultRepository) DB() *gorm.DB {
	return r.db
}

// WithTx returns a copy of the repository scoped to the given transaction.
func (r *ReconciliationResultRepository) WithTx(tx *gorm.DB) *ReconciliationResultRepository {
	return &ReconciliationResultRepository{db: tx}
}

func (r *ReconciliationResultRepository) Create(result *models.ReconciliationResult) error {
	return r.db.Create(result).Error
}

// ResultListFilter narrows List results.
type ResultListFilter struct {
	UploadJobID *uuid.UUID
	MatchStatus string
}

// List returns results matching the filter, newest first, with the total
// count before pagination.
func (r *ReconciliationResultRepository) List(filter ResultListFilter, page, limit int) ([]models.ReconciliationResult, int64, error) {
	query := r.db.Model(&models.ReconciliationResult{})
	if filter.UploadJobID != nil {
		query = query.Where("upload_job_id = ?", *filter.UploadJobID)
	}
	if filter.MatchStatus != "" {
		query = query.Where("match_status = ?", filter.MatchStatus)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var results []models.ReconciliationResult
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&results).Error
	return results, total, err
}

// CountsByStatus aggregates result counts per classification, optionally
// restricted to one job.
func (r *ReconciliationResultRepository) CountsByStatus(jobID *uuid.UUID) (map[string]int64, error) {
	type row struct {
		MatchStatus string
		Count       int64
	}
	query := r.db.Model(&models.ReconciliationResult{})
	if jobID != nil {
		query = query.Where("upload_job_id = ?", *jobID)
	}
	var rows []row
	err := query.
		Select("match_status, COUNT(*) as count").
		Group("match_status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.MatchStatus] = r.Count
	}
	return counts, nil
}
