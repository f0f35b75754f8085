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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/oculoscan/oculoscan-api/api/swagger"
	"github.com/oculoscan/oculoscan-api/internal/handler"
	"github.com/oculoscan/oculoscan-api/internal/middleware"
	"github.com/oculoscan/oculoscan-api/internal/models"
	"github.com/oculoscan/oculoscan-api/internal/repository"
	"github.com/oculoscan/oculoscan-api/internal/service"
	"github.com/oculoscan/oculoscan-api/pkg/cache"
	"github.com/oculoscan/oculoscan-api/pkg/config"
	"github.com/oculoscan/oculoscan-api/pkg/database"
	"github.com/oculoscan/oculoscan-api/pkg/logger"
	corsmiddleware "github.com/oculoscan/oculoscan-api/pkg/middleware/cors"
	reqidmiddleware "github.com/oculoscan/oculoscan-api/pkg/middleware/requestid"
	"github.com/oculoscan/oculoscan-api/pkg/storage"
)

// @title OculoScan API
// @version 1.0.0
// @description Scan request lifecycle service for the OculoScan diagnostic portal
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

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if redisClient, redisErr := cache.NewRedis(cfg.Redis); redisErr != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", redisErr)
	} else {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Dashboard.CacheTTL, logr, true)
	}

	imageStore, err := storage.NewLocalStorage(cfg.Scans.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init scan storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Scans.SignedURLSecret, cfg.Scans.SignedURLTTL)

	userRepo := repository.NewUserRepository(db)
	scanRepo := repository.NewScanRequestRepository(db)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "oculoscan-api",
	})
	predictionSvc := service.NewPredictionService(service.PredictionConfig{
		BaseURL: cfg.Prediction.BaseURL,
		Timeout: cfg.Prediction.Timeout,
	}, metricsSvc, logr)
	scanSvc := service.NewScanService(service.ScanServiceParams{
		Repo:      scanRepo,
		Audit:     userRepo,
		Images:    imageStore,
		Signer:    signer,
		Predictor: predictionSvc,
		Notifier:  service.NewLogNotifier(logr),
		Cache:     cacheSvc,
		Metrics:   metricsSvc,
		Validator: validate,
		Logger:    logr,
		Config:    service.ScanServiceConfig{MaxImageSizeBytes: cfg.Scans.MaxImageSizeBytes},
	})
	dashboardSvc := service.NewDashboardService(scanRepo, cacheSvc, logr, cfg.Dashboard.CacheTTL)

	authHandler := handler.NewAuthHandler(authSvc)
	scanHandler := handler.NewScanRequestHandler(scanSvc, imageStore, signer)
	dashboardHandler := handler.NewDashboardHandler(dashboardSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", middleware.Audit(userRepo, models.AuditActionLogin, "auth"), authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/logout", middleware.JWT(authSvc), middleware.Audit(userRepo, models.AuditActionLogout, "auth"), authHandler.Logout)
	auth.PUT("/password", middleware.JWT(authSvc), middleware.Audit(userRepo, models.AuditActionPasswordChange, "auth"), authHandler.ChangePassword)
	auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)

	scans := api.Group("/scan-requests")
	// Image download is authenticated by the signed token itself.
	scans.GET("/images/:token", scanHandler.DownloadImage)
	scans.Use(middleware.JWT(authSvc))
	scans.POST("", middleware.RequireRoles(models.RolePatient), scanHandler.Create)
	scans.GET("", scanHandler.List)
	scans.GET("/:id", scanHandler.Get)
	scans.POST("/:id/assign", middleware.RequireRoles(models.RoleDoctor, models.RoleAdmin), scanHandler.Assign)
	scans.POST("/:id/image", scanHandler.AttachImage)
	scans.POST("/:id/analysis", middleware.RequireRoles(models.RoleDoctor, models.RoleAdmin), scanHandler.RecordAnalysis)
	scans.PUT("/:id/note", middleware.RequireRoles(models.RoleDoctor, models.RoleAdmin), scanHandler.SaveNote)
	scans.POST("/:id/complete", middleware.RequireRoles(models.RoleDoctor, models.RoleAdmin), scanHandler.Complete)
	scans.POST("/:id/cancel", scanHandler.Cancel)

	if cfg.Dashboard.Enabled {
		dashboard := api.Group("/dashboard")
		dashboard.Use(middleware.JWT(authSvc))
		dashboard.GET("/summary", dashboardHandler.Summary)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
	logr.Sugar().Infow("server stopped")
}
