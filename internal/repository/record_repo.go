package repository

import (
	"transaction-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RecordRepository struct {
	db *gorm.DB
}

func NewRecordRepository(db *gorm.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// Expose DB if needed
func (r *RecordRepository) DB() *gorm.DB {
	return r.db
}

// WithTx returns a copy of the repository scoped to the given transaction.
func (r *RecordRepository) WithTx(tx *gorm.DB) *RecordRepository {
	return &RecordRepository{db: tx}
}

// CreateBatch inserts a slice of records in one statement.
func (r *RecordRepository) CreateBatch(records []*models.Record) error {
	if len(records) == 0 {
		return nil
	}
	return r.db.Create(records).Error
}

// GetByID fetches a single record.
func (r *RecordRepository) GetByID(id uuid.UUID) (*models.Record, error) {
	var record models.Record
	if err := r.db.First(&record, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// Save persists an updated record (manual correction path).
func (r *RecordRepository) Save(record *models.Record) error {
	return r.db.Save(record).Error
}

// FindByJob returns all records belonging to one upload job in insertion order.
func (r *RecordRepository) FindByJob(jobID uuid.UUID) ([]models.Record, error) {
	var records []models.Record
	err := r.db.Where("upload_job_id = ?", jobID).Order("created_at ASC, id ASC").Find(&records).Error
	return records, err
}

// FindOutsideJob returns persisted records carrying the same transaction id
// but belonging to a different upload job.
func (r *RecordRepository) FindOutsideJob(transactionID string, jobID uuid.UUID) ([]models.Record, error) {
	var records []models.Record
	err := r.db.
		Where("transaction_id = ? AND upload_job_id <> ?", transactionID, jobID).
		Find(&records).Error
	return records, err
}

// FindInJob returns persisted records with the given transaction id inside
// one upload job.
func (r *RecordRepository) FindInJob(transactionID string, jobID uuid.UUID) ([]models.Record, error) {
	var records []models.Record
	err := r.db.
		Where("transaction_id = ? AND upload_job_id = ?", transactionID, jobID).
		Find(&records).Error
	return records, err
}

// FindByFilters returns records of one job matching the given column
// equality filters, in insertion order.
func (r *RecordRepository) FindByFilters(jobID uuid.UUID, filters map[string]interface{}) ([]models.Record, error) {
	var records []models.Record
	query := r.db.Where("upload_job_id = ?", jobID)
	for column, value := range filters {
		query = query.Where(column+" = ?", value)
	}
	err := query.Order("created_at ASC, id ASC").Find(&records).Error
	return records, err
}
