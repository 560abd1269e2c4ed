package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/attenza/attenza-api/api/swagger"
	"github.com/attenza/attenza-api/internal/handler"
	"github.com/attenza/attenza-api/internal/middleware"
	"github.com/attenza/attenza-api/internal/repository"
	"github.com/attenza/attenza-api/internal/service"
	"github.com/attenza/attenza-api/pkg/cache"
	"github.com/attenza/attenza-api/pkg/config"
	"github.com/attenza/attenza-api/pkg/database"
	"github.com/attenza/attenza-api/pkg/jobs"
	"github.com/attenza/attenza-api/pkg/logger"
	corsmiddleware "github.com/attenza/attenza-api/pkg/middleware/cors"
	reqidmiddleware "github.com/attenza/attenza-api/pkg/middleware/requestid"
	"github.com/attenza/attenza-api/pkg/retry"
	"github.com/attenza/attenza-api/pkg/storage"
)

// @title Attenza API
// @version 1.0.0
// @description Attendance ledger, summaries and schedule adapter
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close() //nolint:errcheck

	exportStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare export storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)

	ledgerRepo := repository.NewLedgerRepository(db)
	recordRepo := repository.NewRecordRepository(db)
	summaryRepo := repository.NewSummaryRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	validate := validator.New()

	ledgerSvc := service.NewLedgerService(ledgerRepo, recordRepo, cacheRepo, validate, logr, metricsSvc, retry.Policy{
		MaxAttempts: cfg.Ledger.MaxAttempts,
		Backoff:     cfg.Ledger.RetryBackoff,
	})
	periodSvc := service.NewPeriodService(recordRepo, logr)
	summarySvc := service.NewSummaryService(summaryRepo, catalogRepo, exportStore, signer, logr)
	scheduleSvc := service.NewScheduleService(cfg.Schedule, cacheRepo, catalogRepo, logr, metricsSvc)
	authSvc := service.NewAuthService(cfg.JWT)
	reconcileSvc := service.NewReconcileService(recordRepo, summaryRepo, periodSvc, logr, metricsSvc, jobs.QueueConfig{
		Workers:    cfg.Reconcile.Workers,
		BufferSize: cfg.Reconcile.BufferSize,
		MaxRetries: cfg.Reconcile.MaxRetries,
		RetryDelay: cfg.Reconcile.RetryDelay,
	})

	rootCtx, stopQueue := context.WithCancel(context.Background())
	reconcileSvc.Start(rootCtx)

	attendanceHandler := handler.NewAttendanceHandler(ledgerSvc, recordRepo, cacheRepo)
	summaryHandler := handler.NewSummaryHandler(summarySvc, periodSvc, reconcileSvc, catalogRepo)
	catalogHandler := handler.NewCatalogHandler(catalogRepo)
	scheduleHandler := handler.NewScheduleHandler(scheduleSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(authSvc))
	{
		api.POST("/attendance", attendanceHandler.Mark)
		api.GET("/attendance", attendanceHandler.History)
		api.GET("/attendance/:date", attendanceHandler.Day)
		api.GET("/attendance/:date/stream", attendanceHandler.Stream)

		api.GET("/summary", summaryHandler.Overall)
		api.GET("/summary/period", summaryHandler.Period)
		api.POST("/summary/export", summaryHandler.Export)
		api.GET("/summary/export/download", summaryHandler.Download)
		api.POST("/summary/reconcile", summaryHandler.Reconcile)

		api.GET("/subjects", catalogHandler.List)
		api.GET("/schedule", scheduleHandler.ForDate)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Sugar().Infow("shutting down")
	stopQueue()
	reconcileSvc.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("forced shutdown", "error", err)
	}
}
