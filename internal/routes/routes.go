package routes

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"transaction-reconciliation-backend/internal/config"
	handler "transaction-reconciliation-backend/internal/handlers"
	"transaction-reconciliation-backend/internal/queue"
	"transaction-reconciliation-backend/internal/repository"
	"transaction-reconciliation-backend/internal/services/ingestion"
	"transaction-reconciliation-backend/internal/services/jobs"
	"transaction-reconciliation-backend/internal/services/reconciliation"
	"transaction-reconciliation-backend/internal/services/rules"
)

func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg *config.Config, fileQueue *queue.Queue) {
	jobRepo := repository.NewUploadJobRepository(db)
	recordRepo := repository.NewRecordRepository(db)
	ruleRepo := repository.NewMatchingRuleRepository(db)
	resultRepo := repository.NewReconciliationResultRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	ruleStore := rules.NewStore(ruleRepo, cfg.RuleCacheTTL)
	engine := reconciliation.NewEngine(ruleStore, recordRepo, resultRepo, auditRepo)
	corrector := reconciliation.NewCorrector(recordRepo, auditRepo)
	pipeline := ingestion.NewPipeline(db, jobRepo, recordRepo, auditRepo, engine, cfg.BatchSize)
	orchestrator := jobs.NewOrchestrator(jobRepo, pipeline, ingestion.CSVDecoder{}, fileQueue, cfg.UploadDir)

	uploadHandler := handler.NewUploadHandler(orchestrator, jobRepo, cfg.UploadDir)
	reconHandler := handler.NewReconciliationHandler(resultRepo, corrector)
	rulesHandler := handler.NewRulesHandler(ruleRepo, ruleStore)
	auditHandler := handler.NewAuditHandler(auditRepo)

	api := r.Group("/api")

	// Health check
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Upload and job lifecycle routes
	upload := api.Group("/upload")
	upload.POST("/preview", uploadHandler.Preview)
	upload.POST("/submit", uploadHandler.Submit)
	upload.GET("/status/:jobId", uploadHandler.Status)
	upload.GET("/all", uploadHandler.List)
	upload.GET("/stats", uploadHandler.Stats)
	upload.POST("/retry/:jobId", uploadHandler.Retry)

	// Reconciliation result routes
	recon := api.Group("/reconciliation")
	recon.GET("/results", reconHandler.ListResults)
	recon.GET("/dashboard", reconHandler.DashboardStats)
	recon.PUT("/records/:recordId", reconHandler.ManualCorrection)

	// Matching rule routes; every mutation invalidates the rule cache
	ruleRoutes := api.Group("/rules")
	ruleRoutes.GET("", rulesHandler.List)
	ruleRoutes.GET("/:id", rulesHandler.Get)
	ruleRoutes.POST("", rulesHandler.Create)
	ruleRoutes.PUT("/reorder", rulesHandler.Reorder)
	ruleRoutes.PUT("/:id", rulesHandler.Update)
	ruleRoutes.PATCH("/:id/toggle", rulesHandler.Toggle)
	ruleRoutes.DELETE("/:id", rulesHandler.Delete)

	// Audit timeline routes
	audit := api.Group("/audit")
	audit.GET("/record/:recordId", auditHandler.RecordTimeline)
	audit.GET("/job/:jobId", auditHandler.JobTimeline)
	audit.GET("", auditHandler.List)
}
