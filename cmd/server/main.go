package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/edupanel/edupanel-api/api/swagger"
	"github.com/edupanel/edupanel-api/internal/handler"
	"github.com/edupanel/edupanel-api/internal/middleware"
	"github.com/edupanel/edupanel-api/internal/repository"
	"github.com/edupanel/edupanel-api/internal/service"
	"github.com/edupanel/edupanel-api/pkg/cache"
	"github.com/edupanel/edupanel-api/pkg/config"
	"github.com/edupanel/edupanel-api/pkg/database"
	"github.com/edupanel/edupanel-api/pkg/logger"
	corsmiddleware "github.com/edupanel/edupanel-api/pkg/middleware/cors"
	reqidmiddleware "github.com/edupanel/edupanel-api/pkg/middleware/requestid"
	"github.com/edupanel/edupanel-api/pkg/storage"
)

// @title EduPanel API
// @version 1.0.0
// @description Class test grading, statistics and reporting service
// @BasePath /api/v1
// @schemes http
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
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close()

	validate := validator.New()
	metricsService := service.NewMetricsService()

	var cacheService *service.CacheService
	if cfg.Reports.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, report cache disabled", "error", err)
		} else {
			cacheRepo := repository.NewCacheRepository(redisClient, logr)
			cacheService = service.NewCacheService(cacheRepo, metricsService, cfg.Reports.CacheTTL, logr, true)
			defer cacheRepo.Close() //nolint:errcheck
		}
	}

	userRepo := repository.NewUserRepository(db)
	classRepo := repository.NewClassRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	classTestRepo := repository.NewClassTestRepository(db)
	gradingScaleRepo := repository.NewGradingScaleRepository(db)

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "edupanel-api",
	})
	classService := service.NewClassService(classRepo, logr)
	studentService := service.NewStudentService(studentRepo, logr)
	classTestService := service.NewClassTestService(classTestRepo, classRepo, studentRepo, cacheService, validate, logr)
	gradingScaleService := service.NewGradingScaleService(gradingScaleRepo, logr)
	reportService := service.NewReportService(classTestRepo, gradingScaleService, cacheService, metricsService, validate, logr)

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var exportService *service.ExportService
	if cfg.Exports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init export storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		exportJobRepo := repository.NewExportJobRepository(db)
		exportService = service.NewExportService(exportJobRepo, reportService, store, signer, metricsService, validate, logr, service.ExportServiceConfig{
			Workers:    cfg.Exports.WorkerConcurrency,
			MaxRetries: cfg.Exports.WorkerRetries,
			FileTTL:    cfg.Exports.SignedURLTTL,
		})
		exportService.Start(shutdownCtx)
		defer exportService.Stop()

		go func() {
			ticker := time.NewTicker(cfg.Exports.CleanupInterval)
			defer ticker.Stop()
			for {
				select {
				case <-shutdownCtx.Done():
					return
				case <-ticker.C:
					if err := exportService.CleanupExpired(shutdownCtx); err != nil {
						logr.Warn("export cleanup failed", zap.Error(err))
					}
				}
			}
		}()
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

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

	metricsHandler := handler.NewMetricsHandler(metricsService)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authHandler := handler.NewAuthHandler(authService)
	classHandler := handler.NewClassHandler(classService)
	studentHandler := handler.NewStudentHandler(studentService)
	classTestHandler := handler.NewClassTestHandler(classTestService)
	reportHandler := handler.NewReportHandler(reportService)
	gradingScaleHandler := handler.NewGradingScaleHandler(gradingScaleService)

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.GET("/me", middleware.JWT(authService), authHandler.Me)

	protected := api.Group("")
	protected.Use(middleware.JWT(authService))

	protected.GET("/classes", classHandler.List)
	protected.GET("/classes/:id", classHandler.Get)
	protected.GET("/students", studentHandler.List)
	protected.GET("/students/:id", studentHandler.Get)

	protected.POST("/class-tests", classTestHandler.Create)
	protected.GET("/class-tests", classTestHandler.List)
	protected.GET("/class-tests/:id", classTestHandler.Get)
	protected.PUT("/class-tests/:id", classTestHandler.Update)
	protected.PATCH("/class-tests/:id/publish", classTestHandler.Publish)
	protected.DELETE("/class-tests/:id", classTestHandler.Delete)

	protected.GET("/reports/class/:classId", reportHandler.ClassWise)
	protected.GET("/reports/class/:classId/subject/:subjectName", reportHandler.ClassSubject)
	protected.GET("/reports/student/:studentId", reportHandler.StudentSubject)
	protected.GET("/reports/date-range", reportHandler.DateRange)
	protected.GET("/reports/performance/:classId", reportHandler.Performance)

	protected.GET("/settings/grading-scale", gradingScaleHandler.Get)
	protected.PUT("/settings/grading-scale", gradingScaleHandler.Set)
	protected.DELETE("/settings/grading-scale", gradingScaleHandler.Reset)

	if exportService != nil {
		exportHandler := handler.NewExportHandler(exportService)
		protected.POST("/exports", exportHandler.Queue)
		protected.GET("/exports/:id", exportHandler.Status)
		api.GET("/exports/download", exportHandler.Download)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-shutdownCtx.Done()
	logr.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
