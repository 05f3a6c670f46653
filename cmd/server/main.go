package main

import (
	"context"
	"os"
	"time"

	"transaction-reconciliation-backend/internal/config"
	"transaction-reconciliation-backend/internal/models"
	"transaction-reconciliation-backend/internal/queue"
	"transaction-reconciliation-backend/internal/repository"
	"transaction-reconciliation-backend/internal/routes"
	"transaction-reconciliation-backend/internal/services/rules"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		logrus.Info("no .env file found, relying on system env")
	}

	cfg := config.Load()
	db := config.InitDB()

	if err := db.AutoMigrate(
		&models.UploadJob{},
		&models.Record{},
		&models.MatchingRule{},
		&models.ReconciliationResult{},
		&models.AuditLog{},
	); err != nil {
		logrus.WithError(err).Fatal("auto migration failed")
	}

	if err := rules.EnsureDefaults(repository.NewMatchingRuleRepository(db)); err != nil {
		logrus.WithError(err).Fatal("seeding default rules failed")
	}

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		logrus.WithError(err).Fatal("cannot create upload directory")
	}

	fileQueue := queue.New("file-processing", cfg.WorkerCount, queue.Options{
		Attempts:         cfg.IngestionAttempts,
		Backoff:          queue.BackoffExponential,
		Delay:            cfg.IngestionBackoff,
		RemoveOnComplete: 100,
		RemoveOnFail:     200,
	})
	fileQueue.Start(context.Background())

	r := gin.Default()
	// CORS config
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "X-Actor-Id", "X-Actor-Role"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterRoutes(r, db, cfg, fileQueue)

	if err := r.Run(":" + cfg.Port); err != nil {
		logrus.WithError(err).Fatal("server stopped")
	}
}
