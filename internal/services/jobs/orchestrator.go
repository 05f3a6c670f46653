package jobs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"transaction-reconciliation-backend/internal/models"
	"transaction-reconciliation-backend/internal/queue"
	"transaction-reconciliation-backend/internal/repository"
	"transaction-reconciliation-backend/internal/services/ingestion"
)

// ErrArtifactMissing is returned when a retry is requested but the stored
// upload file no longer exists.
var ErrArtifactMissing = errors.New("original file no longer exists, cannot retry")

// ErrNotRetryable is returned for retries of jobs that are neither Failed
// nor PartiallyFailed.
var ErrNotRetryable = errors.New("only failed or partially failed jobs can be retried")

// Orchestrator owns job submission: content fingerprinting for idempotency,
// enqueueing ingestion work and exposing lifecycle state.
type Orchestrator struct {
	jobs      *repository.UploadJobRepository
	pipeline  *ingestion.Pipeline
	decoder   ingestion.Decoder
	queue     *queue.Queue
	uploadDir string
	log       *logrus.Entry
}

func NewOrchestrator(
	jobs *repository.UploadJobRepository,
	pipeline *ingestion.Pipeline,
	decoder ingestion.Decoder,
	q *queue.Queue,
	uploadDir string,
) *Orchestrator {
	return &Orchestrator{
		jobs:      jobs,
		pipeline:  pipeline,
		decoder:   decoder,
		queue:     q,
		uploadDir: uploadDir,
		log:       logrus.WithField("component", "job_orchestrator"),
	}
}

// Fingerprint computes the SHA-256 content hash used for idempotent
// resubmission detection.
func Fingerprint(fileBytes []byte) string {
	sum := sha256.Sum256(fileBytes)
	return hex.EncodeToString(sum[:])
}

// CheckExisting returns the most recent Completed or Processing job with the
// same fingerprint and actor, or nil.
func (o *Orchestrator) CheckExisting(fingerprint, actorID string) (*models.UploadJob, error) {
	return o.jobs.FindExisting(fingerprint, actorID)
}

// Submit registers an uploaded file for processing. Resubmitting
// byte-identical content by the same actor while a live or finished job
// exists short-circuits and returns that job with existing=true; no new
// records are ever created for it.
func (o *Orchestrator) Submit(filePath string, mapping map[string]string, actorID string) (*models.UploadJob, bool, error) {
	fileBytes, err := os.ReadFile(filePath)
	if err != nil {
		return nil, false, fmt.Errorf("reading upload: %w", err)
	}
	fingerprint := Fingerprint(fileBytes)

	existing, err := o.CheckExisting(fingerprint, actorID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, true, nil
	}

	columnMapping := datatypes.JSONMap{}
	for field, column := range mapping {
		columnMapping[field] = column
	}

	job := &models.UploadJob{
		ID:            uuid.New(),
		FileName:      filepath.Base(filePath),
		FileHash:      fingerprint,
		UploadedBy:    actorID,
		Status:        models.JobStatusPending,
		ColumnMapping: columnMapping,
	}
	if err := o.jobs.Create(job); err != nil {
		return nil, false, err
	}

	if err := o.enqueue(job, actorID); err != nil {
		return nil, false, err
	}
	return job, false, nil
}

// Retry re-enqueues a Failed or PartiallyFailed job with its original file
// and mapping, resetting status and error state and bumping the retry count.
func (o *Orchestrator) Retry(jobID uuid.UUID) (*models.UploadJob, error) {
	job, err := o.jobs.GetByID(jobID)
	if err != nil {
		return nil, err
	}
	if !job.Retryable() {
		return nil, ErrNotRetryable
	}
	if _, err := os.Stat(o.artifactPath(job)); err != nil {
		return nil, ErrArtifactMissing
	}

	job.Status = models.JobStatusPending
	job.RetryCount++
	job.ErrorMessage = ""
	job.FailureReason = ""
	job.ProgressPercent = 0
	job.ProcessedRecords = 0
	job.FailedRecords = 0
	if err := o.jobs.Save(job); err != nil {
		return nil, err
	}

	if err := o.enqueue(job, job.UploadedBy); err != nil {
		return nil, err
	}
	return job, nil
}

// Status returns the job together with its queue-side state when available.
func (o *Orchestrator) Status(jobID uuid.UUID) (*models.UploadJob, *queue.JobStatus, error) {
	job, err := o.jobs.GetByID(jobID)
	if err != nil {
		return nil, nil, err
	}
	var queueStatus *queue.JobStatus
	if job.QueueJobID != "" {
		queueStatus = o.queue.GetJob(job.QueueJobID)
	}
	return job, queueStatus, nil
}

func (o *Orchestrator) enqueue(job *models.UploadJob, actorID string) error {
	jobID := job.ID
	path := o.artifactPath(job)
	queueJobID := fmt.Sprintf("upload-%s-%d", jobID, job.RetryCount)

	task := func(ctx context.Context, reportProgress func(int)) error {
		rows, _, err := o.decoder.Decode(path)
		if err != nil {
			return fmt.Errorf("decoding upload: %w", err)
		}
		if err := o.pipeline.ProcessJob(ctx, jobID, rows, actorID, reportProgress); err != nil {
			return err
		}
		o.cleanupArtifact(jobID, path)
		return nil
	}

	if _, err := o.queue.Enqueue(queueJobID, task, nil); err != nil {
		return err
	}
	job.QueueJobID = queueJobID
	return o.jobs.Save(job)
}

// cleanupArtifact removes the stored file once a job completed cleanly. The
// artifact is kept for Failed and PartiallyFailed jobs so a retry can reuse
// the original bytes.
func (o *Orchestrator) cleanupArtifact(jobID uuid.UUID, path string) {
	job, err := o.jobs.GetByID(jobID)
	if err != nil || job.Status != models.JobStatusCompleted {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		o.log.WithError(err).WithField("job_id", jobID).Warn("failed to remove upload artifact")
	}
}

func (o *Orchestrator) artifactPath(job *models.UploadJob) string {
	return filepath.Join(o.uploadDir, job.FileName)
}
