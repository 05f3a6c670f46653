package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"transaction-reconciliation-backend/internal/models"
	"transaction-reconciliation-backend/internal/repository"
	"transaction-reconciliation-backend/internal/services/reconciliation"
)

type ReconciliationHandler struct {
	results   *repository.ReconciliationResultRepository
	corrector *reconciliation.Corrector
}

func NewReconciliationHandler(results *repository.ReconciliationResultRepository, corrector *reconciliation.Corrector) *ReconciliationHandler {
	return &ReconciliationHandler{results: results, corrector: corrector}
}

// ListResults returns reconciliation results filtered by job and/or
// classification, newest first.
func (h *ReconciliationHandler) ListResults(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 500 {
		limit = 50
	}

	filter := repository.ResultListFilter{MatchStatus: c.Query("matchStatus")}
	if v := c.Query("uploadJobId"); v != "" {
		jobID, err := uuid.Parse(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uploadJobId"})
			return
		}
		filter.UploadJobID = &jobID
	}

	results, total, err := h.results.List(filter, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"results": results,
		"pagination": gin.H{
			"total": total,
			"page":  page,
		},
	})
}

// DashboardStats aggregates classification counts, optionally for one job.
func (h *ReconciliationHandler) DashboardStats(c *gin.Context) {
	var jobID *uuid.UUID
	if v := c.Query("uploadJobId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uploadJobId"})
			return
		}
		jobID = &id
	}

	counts, err := h.results.CountsByStatus(jobID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var total int64
	for _, n := range counts {
		total += n
	}
	accuracy := "0.00"
	if total > 0 {
		matched := counts[models.MatchStatusMatched] + counts[models.MatchStatusPartiallyMatched]
		accuracy = decimal.NewFromInt(matched).
			Div(decimal.NewFromInt(total)).
			Mul(decimal.NewFromInt(100)).
			StringFixed(2)
	}

	c.JSON(http.StatusOK, gin.H{
		"totalRecords":           total,
		"matched":                counts[models.MatchStatusMatched],
		"partiallyMatched":       counts[models.MatchStatusPartiallyMatched],
		"unmatched":              counts[models.MatchStatusNotMatched],
		"duplicate":              counts[models.MatchStatusDuplicate],
		"failed":                 counts[models.MatchStatusFailed],
		"reconciliationAccuracy": accuracy,
	})
}

// ManualCorrection rewrites a record's matching fields and appends exactly
// one audit entry capturing old and new snapshots.
func (h *ReconciliationHandler) ManualCorrection(c *gin.Context) {
	recordID, err := uuid.Parse(c.Param("recordId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record ID"})
		return
	}

	var payload struct {
		TransactionID   *string `json:"transactionId"`
		Amount          *string `json:"amount"`
		ReferenceNumber *string `json:"referenceNumber"`
		Date            *string `json:"date"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	correction := reconciliation.Correction{
		TransactionID:   payload.TransactionID,
		ReferenceNumber: payload.ReferenceNumber,
	}
	if payload.Amount != nil {
		amount, err := decimal.NewFromString(*payload.Amount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be a number"})
			return
		}
		correction.Amount = &amount
	}
	if payload.Date != nil {
		date, err := time.Parse(time.RFC3339, *payload.Date)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date format"})
			return
		}
		correction.Date = &date
	}

	actor := actorFrom(c)
	record, err := h.corrector.Correct(recordID, correction, actor.ID, reconciliation.Origin{
		IPAddress: c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
	})
	switch {
	case errors.Is(err, reconciliation.ErrNoCorrectionFields),
		errors.Is(err, reconciliation.ErrNegativeAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "record updated successfully", "record": record})
}
