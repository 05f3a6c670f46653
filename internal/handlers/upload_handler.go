package handler

import (
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"transaction-reconciliation-backend/internal/models"
	"transaction-reconciliation-backend/internal/repository"
	"transaction-reconciliation-backend/internal/services/ingestion"
	"transaction-reconciliation-backend/internal/services/jobs"
)

const previewRows = 20

type UploadHandler struct {
	orchestrator *jobs.Orchestrator
	jobRepo      *repository.UploadJobRepository
	decoder      ingestion.CSVDecoder
	uploadDir    string
}

func NewUploadHandler(orchestrator *jobs.Orchestrator, jobRepo *repository.UploadJobRepository, uploadDir string) *UploadHandler {
	return &UploadHandler{
		orchestrator: orchestrator,
		jobRepo:      jobRepo,
		uploadDir:    uploadDir,
	}
}

// Preview stores the uploaded file and returns its first rows, total row
// count and column names so the caller can build a column mapping.
func (h *UploadHandler) Preview(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file uploaded"})
		return
	}
	if !h.decoder.SupportedFile(file.Filename) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only CSV files are supported"})
		return
	}

	storedName := fmt.Sprintf("%d-%06d-%s", time.Now().UnixMilli(), rand.Intn(1000000), filepath.Base(file.Filename))
	storedPath := filepath.Join(h.uploadDir, storedName)
	if err := c.SaveUploadedFile(file, storedPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	rows, columns, total, err := h.decoder.Preview(storedPath, previewRows)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"fileName":     file.Filename,
		"tempFilePath": storedName,
		"preview":      rows,
		"totalRows":    total,
		"columns":      columns,
	})
}

// Submit accepts a stored file plus column mapping and queues it for
// processing. Byte-identical resubmissions by the same actor return the
// existing job.
func (h *UploadHandler) Submit(c *gin.Context) {
	var payload struct {
		TempFilePath  string            `json:"tempFilePath"`
		ColumnMapping map[string]string `json:"columnMapping"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if payload.TempFilePath == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tempFilePath is required"})
		return
	}
	var missing []string
	for _, field := range models.RequiredRecordFields {
		if payload.ColumnMapping[field] == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("missing required column mappings: %v", missing)})
		return
	}

	// basename only, to keep callers inside the upload directory
	storedPath := filepath.Join(h.uploadDir, filepath.Base(payload.TempFilePath))

	actor := actorFrom(c)
	job, existing, err := h.orchestrator.Submit(storedPath, payload.ColumnMapping, actor.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if existing {
		c.JSON(http.StatusOK, gin.H{
			"message":     "file already processed",
			"uploadJobId": job.ID,
			"status":      job.Status,
			"existing":    true,
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message":     "file upload accepted and queued for processing",
		"uploadJobId": job.ID,
		"queueJobId":  job.QueueJobID,
		"status":      job.Status,
	})
}

// Status returns the upload job together with its queue-side state.
func (h *UploadHandler) Status(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("jobId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job ID"})
		return
	}

	job, queueStatus, err := h.orchestrator.Status(jobID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "upload job not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": job, "queueStatus": queueStatus})
}

// List returns upload jobs with optional status/date filtering.
func (h *UploadHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 500 {
		limit = 50
	}

	filter := repository.JobListFilter{
		Status:     c.Query("status"),
		UploadedBy: c.Query("uploadedBy"),
	}
	if v := c.Query("startDate"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.StartDate = &t
		}
	}
	if v := c.Query("endDate"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.EndDate = &t
		}
	}

	uploads, total, err := h.jobRepo.List(filter, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count": len(uploads),
		"total": total,
		"page":  page,
		"data":  uploads,
	})
}

// Stats returns aggregate upload counters: jobs per status and record
// totals across the whole history.
func (h *UploadHandler) Stats(c *gin.Context) {
	stats, err := h.jobRepo.Stats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"totalJobs":    stats.TotalJobs,
		"jobsByStatus": stats.JobsByStatus,
		"records": gin.H{
			"total":            stats.TotalRecords,
			"failed":           stats.FailedRecords,
			"matched":          stats.MatchedRecords,
			"partiallyMatched": stats.PartiallyMatchedRecords,
			"unmatched":        stats.UnmatchedRecords,
			"duplicate":        stats.DuplicateRecords,
		},
	})
}

// Retry re-enqueues a failed or partially failed job.
func (h *UploadHandler) Retry(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("jobId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job ID"})
		return
	}

	job, err := h.orchestrator.Retry(jobID)
	switch {
	case errors.Is(err, jobs.ErrArtifactMissing):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case errors.Is(err, jobs.ErrNotRetryable):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":     "upload job queued for retry",
		"uploadJobId": job.ID,
		"queueJobId":  job.QueueJobID,
		"retryCount":  job.RetryCount,
	})
}
