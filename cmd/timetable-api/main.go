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
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	_ "github.com/noah-isme/uni-timetable-api/api/swagger"
	"github.com/noah-isme/uni-timetable-api/internal/handler"
	internalmiddleware "github.com/noah-isme/uni-timetable-api/internal/middleware"
	"github.com/noah-isme/uni-timetable-api/internal/repository"
	"github.com/noah-isme/uni-timetable-api/internal/service"
	"github.com/noah-isme/uni-timetable-api/pkg/cache"
	"github.com/noah-isme/uni-timetable-api/pkg/config"
	"github.com/noah-isme/uni-timetable-api/pkg/database"
	"github.com/noah-isme/uni-timetable-api/pkg/export"
	"github.com/noah-isme/uni-timetable-api/pkg/jobs"
	"github.com/noah-isme/uni-timetable-api/pkg/lock"
	"github.com/noah-isme/uni-timetable-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/uni-timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/uni-timetable-api/pkg/middleware/requestid"
)

// @title University Timetable API
// @version 1.0.0
// @description Class and exam timetable scheduling with a failure resolution queue
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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
		logr.Sugar().Fatalw("database connection failed", "error", err)
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, falling back to in-process locks and no cache", "error", err)
		redisClient = nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsSvc := service.NewMetricsService()
	validate := validator.New()

	catalogRepo := repository.NewCatalogRepository(db)
	placementRepo := repository.NewPlacementRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	failureRepo := repository.NewFailureRepository(db)

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, "timetable:")
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.SummaryTTL, logr, cfg.Cache.Enabled)

	tokenSvc := service.NewTokenService(service.TokenConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	})
	catalogSvc := service.NewCatalogService(catalogRepo, logr)
	failureSvc := service.NewFailureService(failureRepo, cacheSvc, metricsSvc, validate, logr)
	batchSvc := service.NewBatchService(service.BatchServiceDeps{
		Catalog:    catalogSvc,
		Placements: placementRepo,
		Batches:    batchRepo,
		Failures:   failureRepo,
		Recorder:   failureSvc,
		Tx:         db,
		Locker:     lock.New(redisClient, "timetable:lock:"),
		Notifier:   service.NewTimetableNotifier(redisClient, cfg.Scheduler.EventChannel, logr),
		Cache:      cacheSvc,
		Metrics:    metricsSvc,
		Validator:  validate,
	}, service.BatchConfig{
		LockTTL:          cfg.Scheduler.LockTTL,
		BatchTimeout:     cfg.Scheduler.BatchTimeout,
		LegacyProjection: cfg.Scheduler.LegacyProjection,
		SummaryTTL:       cfg.Cache.SummaryTTL,
	}, logr)
	exportSvc := service.NewExportService(batchSvc, export.NewCSVExporter(), export.NewPDFExporter(), logr)

	if cfg.Scheduler.Enabled {
		batchSvc.StartWorkers(ctx, jobs.QueueConfig{
			Workers:    cfg.Scheduler.Workers,
			BufferSize: cfg.Scheduler.QueueSize,
			MaxRetries: cfg.Scheduler.JobRetries,
			RetryDelay: cfg.Scheduler.JobRetryDelay,
		})
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc, cfg.Metrics.Path))

	opsHandler := handler.NewMetricsHandler(metricsSvc, readinessChecks(db, redisClient))
	r.GET("/health", opsHandler.Health)
	r.GET("/ready", opsHandler.Ready)
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, opsHandler.Prometheus)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	batchHandler := handler.NewBatchHandler(batchSvc, exportSvc)
	failureHandler := handler.NewFailureHandler(failureSvc)

	api := r.Group(cfg.APIPrefix)
	api.Use(internalmiddleware.JWT(tokenSvc))
	{
		semesters := api.Group("/semesters/:id")
		semesters.POST("/batches", internalmiddleware.CanWrite(), batchHandler.Run)
		semesters.GET("/batches", internalmiddleware.CanRead(), batchHandler.List)

		batches := api.Group("/batches/:id")
		batches.GET("", internalmiddleware.CanRead(), batchHandler.Get)
		batches.GET("/summary", internalmiddleware.CanRead(), batchHandler.Summary)
		batches.GET("/export", internalmiddleware.CanRead(), batchHandler.Export)
		batches.POST("/cancel", internalmiddleware.CanWrite(), batchHandler.Cancel)

		failures := api.Group("/failures")
		failures.GET("", internalmiddleware.CanRead(), failureHandler.List)
		failures.POST("/retry", internalmiddleware.CanWrite(), batchHandler.Retry)
		failures.GET("/:id", internalmiddleware.CanRead(), failureHandler.Get)
		failures.POST("/:id/resolve", internalmiddleware.CanWrite(), failureHandler.Resolve)
		failures.POST("/:id/reopen", internalmiddleware.CanWrite(), failureHandler.Reopen)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Errorw("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logr.Info("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var shutdownErr error
	shutdownErr = multierr.Append(shutdownErr, srv.Shutdown(shutdownCtx))
	batchSvc.StopWorkers()
	if redisClient != nil {
		shutdownErr = multierr.Append(shutdownErr, redisClient.Close())
	}
	shutdownErr = multierr.Append(shutdownErr, db.Close())
	if shutdownErr != nil {
		logr.Error("shutdown finished with errors", zap.Error(shutdownErr))
		return
	}
	logr.Info("server stopped")
}

func readinessChecks(db *sqlx.DB, client *redis.Client) map[string]handler.Pinger {
	checks := map[string]handler.Pinger{
		"database": db.PingContext,
	}
	if client != nil {
		checks["redis"] = func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}
	}
	return checks
}
