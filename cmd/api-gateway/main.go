package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-gradebook-api/api/swagger"
	"github.com/noah-isme/sma-gradebook-api/internal/handler"
	"github.com/noah-isme/sma-gradebook-api/internal/repository"
	"github.com/noah-isme/sma-gradebook-api/internal/service"
	"github.com/noah-isme/sma-gradebook-api/pkg/cache"
	"github.com/noah-isme/sma-gradebook-api/pkg/config"
	"github.com/noah-isme/sma-gradebook-api/pkg/database"
	"github.com/noah-isme/sma-gradebook-api/pkg/jobs"
	"github.com/noah-isme/sma-gradebook-api/pkg/logger"
)

// @title SMA Gradebook API
// @version 1.0.0
// @description Weighted gradebook scoring, grade computation and posting
// @BasePath /
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	metrics := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if cfg.Cache.Enabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, gradebook cache disabled", zap.Error(err))
		} else {
			defer client.Close()
			cacheRepo = repository.NewCacheRepository(client, logr)
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, cfg.Cache.Enabled && cacheRepo != nil)

	validate := validator.New()

	gradebookRepo := repository.NewGradebookRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	scoreRepo := repository.NewScoreRepository(db)
	periodGradeRepo := repository.NewPeriodGradeRepository(db)
	finalGradeRepo := repository.NewFinalGradeRepository(db)
	auditDispatcher := jobs.NewAuditDispatcher(repository.NewAuditRepository(db), jobs.AuditDispatcherConfig{
		Workers:    cfg.Audit.Workers,
		BufferSize: cfg.Audit.BufferSize,
		MaxRetries: cfg.Audit.MaxRetries,
		Logger:     logr,
	})
	auditDispatcher.Start()

	gradebookSvc := service.NewGradebookService(gradebookRepo, cacheSvc, validate, logr)
	scoreSvc := service.NewScoreService(gradebookRepo, enrollmentRepo, scoreRepo, periodGradeRepo, metrics, validate, logr)
	periodGradeSvc := service.NewPeriodGradeService(gradebookRepo, enrollmentRepo, scoreRepo, periodGradeRepo, metrics, validate, logr)
	finalGradeSvc := service.NewFinalGradeService(gradebookRepo, enrollmentRepo, periodGradeRepo, finalGradeRepo, service.FinalGradeOptions{
		PassingGrade:         cfg.Grading.PassingGrade,
		RequirePostedPeriods: cfg.Grading.RequirePostedPeriods,
	}, metrics, validate, logr)
	exportSvc := service.NewExportService(periodGradeSvc, finalGradeSvc, cfg.Exports.Enabled, logr, nil, nil)
	authSvc := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
		Audience:          cfg.JWT.Audience,
	})

	r := newRouter(routerDeps{
		cfg:        cfg,
		logger:     logr,
		metrics:    metrics,
		auth:       authSvc,
		audit:      auditDispatcher,
		gradebooks: handler.NewGradebookHandler(gradebookSvc),
		grades:     handler.NewGradeHandler(scoreSvc, periodGradeSvc, finalGradeSvc),
		exports:    handler.NewExportHandler(exportSvc),
		me:         handler.NewAuthHandler(),
		health:     handler.NewMetricsHandler(metrics, db),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := auditDispatcher.Close(ctx); err != nil {
		logr.Warn("audit entries left unwritten", zap.Error(err))
	}
}
