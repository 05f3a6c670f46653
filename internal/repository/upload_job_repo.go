package repository

import (
	"time"

	"transaction-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UploadJobRepository struct {
	db *gorm.DB
}

func NewUploadJobRepository(db *gorm.DB) *UploadJobRepository {
	return &UploadJobRepository{db: db}
}

func (r *UploadJobRepository) DB() *gorm.DB {
	return r.db
}

// WithTx returns a copy of the repository scoped to the given transaction.
func (r *UploadJobRepository) WithTx(tx *gorm.DB) *UploadJobRepository {
	return &UploadJobRepository{db: tx}
}

func (r *UploadJobRepository) Create(job *models.UploadJob) error {
	return r.db.Create(job).Error
}

func (r *UploadJobRepository) GetByID(id uuid.UUID) (*models.UploadJob, error) {
	var job models.UploadJob
	if err := r.db.First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *UploadJobRepository) Save(job *models.UploadJob) error {
	return r.db.Save(job).Error
}

// FindExisting returns the most recent job with the same content fingerprint
// and actor whose status is Completed or Processing. Used for the
// idempotency short-circuit on resubmission.
func (r *UploadJobRepository) FindExisting(fileHash, uploadedBy string) (*models.UploadJob, error) {
	var job models.UploadJob
	err := r.db.
		Where("file_hash = ? AND uploaded_by = ? AND status IN ?",
			fileHash, uploadedBy, []string{models.JobStatusCompleted, models.JobStatusProcessing}).
		Order("created_at DESC").
		First(&job).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// JobStats aggregates the upload history: job counts per status and record
// totals summed across all jobs.
type JobStats struct {
	TotalJobs               int64
	JobsByStatus            map[string]int64
	TotalRecords            int64
	FailedRecords           int64
	MatchedRecords          int64
	PartiallyMatchedRecords int64
	UnmatchedRecords        int64
	DuplicateRecords        int64
}

// Stats computes aggregate counts over every upload job.
func (r *UploadJobRepository) Stats() (*JobStats, error) {
	type statusRow struct {
		Status string
		Count  int64
	}
	var byStatus []statusRow
	err := r.db.Model(&models.UploadJob{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&byStatus).Error
	if err != nil {
		return nil, err
	}

	stats := &JobStats{JobsByStatus: make(map[string]int64, len(byStatus))}
	for _, row := range byStatus {
		stats.JobsByStatus[row.Status] = row.Count
		stats.TotalJobs += row.Count
	}

	err = r.db.Model(&models.UploadJob{}).
		Select(
			"COALESCE(SUM(total_records), 0) as total_records, " +
				"COALESCE(SUM(failed_records), 0) as failed_records, " +
				"COALESCE(SUM(matched_records), 0) as matched_records, " +
				"COALESCE(SUM(partially_matched_records), 0) as partially_matched_records, " +
				"COALESCE(SUM(unmatched_records), 0) as unmatched_records, " +
				"COALESCE(SUM(duplicate_records), 0) as duplicate_records").
		Scan(stats).Error
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// JobListFilter narrows List results. Zero values mean "no filter".
type JobListFilter struct {
	Status     string
	UploadedBy string
	StartDate  *time.Time
	EndDate    *time.Time
}

// List returns jobs matching the filter, newest first, with the total count
// before pagination.
func (r *UploadJobRepository) List(filter JobListFilter, page, limit int) ([]models.UploadJob, int64, error) {
	query := r.db.Model(&models.UploadJob{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.UploadedBy != "" {
		query = query.Where("uploaded_by = ?", filter.UploadedBy)
	}
	if filter.StartDate != nil {
		query = query.Where("created_at >= ?", *filter.StartDate)
	}
	if filter.EndDate != nil {
		query = query.Where("created_at <= ?", *filter.EndDate)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var jobs []models.UploadJob
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&jobs).Error
	return jobs, total, err
}
