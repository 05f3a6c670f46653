package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transaction-reconciliation-backend/internal/models"
	"transaction-reconciliation-backend/internal/repository"
)

func TestUploadStats(t *testing.T) {
	gin.SetMode(gin.TestMode)

	db := newTestDB(t)
	jobRepo := repository.NewUploadJobRepository(db)
	h := NewUploadHandler(nil, jobRepo, t.TempDir())

	router := gin.New()
	router.GET("/api/upload/stats", h.Stats)

	require.NoError(t, jobRepo.Create(&models.UploadJob{
		ID: uuid.New(), FileName: "a.csv", Status: models.JobStatusCompleted,
		TotalRecords: 100, MatchedRecords: 60, PartiallyMatchedRecords: 25,
		UnmatchedRecords: 10, DuplicateRecords: 5,
	}))
	require.NoError(t, jobRepo.Create(&models.UploadJob{
		ID: uuid.New(), FileName: "b.csv", Status: models.JobStatusCompleted,
		TotalRecords: 40, MatchedRecords: 40,
	}))
	require.NoError(t, jobRepo.Create(&models.UploadJob{
		ID: uuid.New(), FileName: "c.csv", Status: models.JobStatusPartiallyFailed,
		TotalRecords: 10, FailedRecords: 3, MatchedRecords: 7,
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/upload/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		TotalJobs    int64            `json:"totalJobs"`
		JobsByStatus map[string]int64 `json:"jobsByStatus"`
		Records      struct {
			Total            int64 `json:"total"`
			Failed           int64 `json:"failed"`
			Matched          int64 `json:"matched"`
			PartiallyMatched int64 `json:"partiallyMatched"`
			Unmatched        int64 `json:"unmatched"`
			Duplicate        int64 `json:"duplicate"`
		} `json:"records"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	assert.Equal(t, int64(3), body.TotalJobs)
	assert.Equal(t, int64(2), body.JobsByStatus[models.JobStatusCompleted])
	assert.Equal(t, int64(1), body.JobsByStatus[models.JobStatusPartiallyFailed])
	assert.Equal(t, int64(150), body.Records.Total)
	assert.Equal(t, int64(3), body.Records.Failed)
	assert.Equal(t, int64(107), body.Records.Matched)
	assert.Equal(t, int64(25), body.Records.PartiallyMatched)
	assert.Equal(t, int64(10), body.Records.Unmatched)
	assert.Equal(t, int64(5), body.Records.Duplicate)
}

func TestUploadStatsEmpty(t *testing.T) {
	gin.SetMode(gin.TestMode)

	db := newTestDB(t)
	h := NewUploadHandler(nil, repository.NewUploadJobRepository(db), t.TempDir())

	router := gin.New()
	router.GET("/api/upload/stats", h.Stats)

	req := httptest.NewRequest(http.MethodGet, "/api/upload/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		TotalJobs int64 `json:"totalJobs"`
		Records   struct {
			Total int64 `json:"total"`
		} `json:"records"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int64(0), body.TotalJobs)
	assert.Equal(t, int64(0), body.Records.Total)
}
