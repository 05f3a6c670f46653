package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"transaction-reconciliation-backend/internal/models"
	"transaction-reconciliation-backend/internal/repository"
	"transaction-reconciliation-backend/internal/services/reconciliation"
)

// Progress checkpoints. Row ingestion fills 0-60, the upload audit entry
// lands at 65, reconciliation fills 70-90, finalization reports 100.
const (
	progressIngestEnd      = 60
	progressAuditLogged    = 65
	progressReconcileStart = 70
	progressReconcileEnd   = 90
	progressDone           = 100
)

// RowFailure records one malformed row. Row failures are tallied, never
// fatal to the batch.
type RowFailure struct {
	RowIndex int    `json:"rowIndex"`
	Error    string `json:"error"`
}

// Pipeline validates and persists uploaded rows in fixed-size batches inside
// one transaction per job, then reconciles the freshly persisted records and
// finalizes the job status.
type Pipeline struct {
	db        *gorm.DB
	jobs      *repository.UploadJobRepository
	records   *repository.RecordRepository
	audit     *repository.AuditLogRepository
	engine    *reconciliation.Engine
	batchSize int
	log       *logrus.Entry
}

func NewPipeline(
	db *gorm.DB,
	jobs *repository.UploadJobRepository,
	records *repository.RecordRepository,
	audit *repository.AuditLogRepository,
	engine *reconciliation.Engine,
	batchSize int,
) *Pipeline {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &Pipeline{
		db:        db,
		jobs:      jobs,
		records:   records,
		audit:     audit,
		engine:    engine,
		batchSize: batchSize,
		log:       logrus.WithField("component", "ingestion_pipeline"),
	}
}

// ProcessJob runs the whole ingestion for one job: batch persistence,
// reconciliation and finalization, all inside a single transaction. On a
// structural error the transaction rolls back and the job is marked Failed
// with the captured reason. Progress is reported through report when
// non-nil and never moves backwards within one attempt.
func (p *Pipeline) ProcessJob(ctx context.Context, jobID uuid.UUID, rows []Row, actorID string, report func(int)) error {
	progress := newProgressReporter(report)

	// Resolve the rule snapshot before opening the transaction; fetching it
	// mid-transaction would contend with the open transaction for a
	// connection on single-connection pools.
	activeRules, err := p.engine.ActiveRules()
	if err != nil {
		p.markFailed(jobID, err)
		return err
	}

	err = p.db.Transaction(func(tx *gorm.DB) error {
		return p.processInTx(ctx, tx, jobID, rows, activeRules, actorID, progress)
	})
	if err != nil {
		p.markFailed(jobID, err)
		return err
	}
	progress.report(progressDone)
	return nil
}

func (p *Pipeline) processInTx(ctx context.Context, tx *gorm.DB, jobID uuid.UUID, rows []Row, activeRules []models.MatchingRule, actorID string, progress *progressReporter) error {
	jobRepo := p.jobs.WithTx(tx)
	recordRepo := p.records.WithTx(tx)
	auditRepo := p.audit.WithTx(tx)

	job, err := jobRepo.GetByID(jobID)
	if err != nil {
		return fmt.Errorf("upload job not found: %w", err)
	}

	now := time.Now()
	job.Status = models.JobStatusProcessing
	if job.StartedAt == nil {
		job.StartedAt = &now
	}
	job.TotalRecords = len(rows)
	if err := jobRepo.Save(job); err != nil {
		return err
	}

	mapping := job.MappingFields()

	var saved []models.Record
	var failures []RowFailure

	for start := 0; start < len(rows); start += p.batchSize {
		// Yield between batches so a long ingestion cannot starve other
		// queued jobs of the worker.
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		end := start + p.batchSize
		if end > len(rows) {
			end = len(rows)
		}

		batch := make([]*models.Record, 0, end-start)
		for i := start; i < end; i++ {
			record, err := buildRecord(jobID, rows[i], mapping, i+1)
			if err != nil {
				failures = append(failures, RowFailure{RowIndex: i + 1, Error: err.Error()})
				job.FailedRecords++
				continue
			}
			batch = append(batch, record)
		}

		if err := recordRepo.CreateBatch(batch); err != nil {
			return err
		}
		for _, r := range batch {
			saved = append(saved, *r)
		}

		job.ProcessedRecords = end
		job.ProgressPercent = progress.report(end * progressIngestEnd / len(rows))
		if err := jobRepo.Save(job); err != nil {
			return err
		}
	}

	uploadSummary, err := json.Marshal(map[string]interface{}{
		"fileName":      job.FileName,
		"totalRecords":  job.TotalRecords,
		"failedRecords": job.FailedRecords,
	})
	if err != nil {
		return err
	}
	if err := auditRepo.Append(&models.AuditLog{
		UploadJobID: &job.ID,
		Action:      models.AuditActionUpload,
		EntityType:  "UploadJob",
		NewValue:    uploadSummary,
		ChangedBy:   actorID,
		Source:      models.AuditSourceSystem,
	}); err != nil {
		return err
	}
	progress.report(progressAuditLogged)

	progress.report(progressReconcileStart)
	results, recordErrors, err := p.engine.Reconcile(tx, jobID, saved, activeRules, actorID, func(done, total int) {
		span := progressReconcileEnd - progressReconcileStart
		progress.report(progressReconcileStart + done*span/total)
	})
	if err != nil {
		return err
	}
	progress.report(progressReconcileEnd)

	stats := reconciliation.Summarize(results)
	job.MatchedRecords = stats.Matched
	job.PartiallyMatchedRecords = stats.PartiallyMatched
	job.UnmatchedRecords = stats.Unmatched
	job.DuplicateRecords = stats.Duplicate

	switch {
	case len(failures) == 0 && len(recordErrors) == 0:
		job.Status = models.JobStatusCompleted
	case len(saved) > 0:
		job.Status = models.JobStatusPartiallyFailed
		job.ErrorMessage = fmt.Sprintf("%d rows failed to process, %d reconciliation errors",
			len(failures), len(recordErrors))
	default:
		job.Status = models.JobStatusFailed
		job.ErrorMessage = "All records failed to process"
	}

	completed := time.Now()
	job.CompletedAt = &completed
	job.ProgressPercent = progressDone
	return jobRepo.Save(job)
}

// markFailed records the failure on the job outside the rolled-back
// transaction so the reason stays queryable.
func (p *Pipeline) markFailed(jobID uuid.UUID, cause error) {
	job, err := p.jobs.GetByID(jobID)
	if err != nil {
		p.log.WithError(err).WithField("job_id", jobID).Error("cannot mark job failed")
		return
	}
	now := time.Now()
	job.Status = models.JobStatusFailed
	job.FailedAt = &now
	job.FailureReason = cause.Error()
	if err := p.jobs.Save(job); err != nil {
		p.log.WithError(err).WithField("job_id", jobID).Error("cannot persist job failure")
	}
}

// progressReporter clamps progress so it never decreases within an attempt.
type progressReporter struct {
	fn   func(int)
	last int
}

func newProgressReporter(fn func(int)) *progressReporter {
	return &progressReporter{fn: fn}
}

// report forwards pct when it advances and returns the effective value.
func (p *progressReporter) report(pct int) int {
	if pct < p.last {
		return p.last
	}
	p.last = pct
	if p.fn != nil {
		p.fn(pct)
	}
	return pct
}
