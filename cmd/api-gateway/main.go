package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	_ "github.com/noah-isme/learnify-api/api/swagger"
	"github.com/noah-isme/learnify-api/internal/handler"
	"github.com/noah-isme/learnify-api/internal/middleware"
	"github.com/noah-isme/learnify-api/internal/repository"
	"github.com/noah-isme/learnify-api/internal/service"
	"github.com/noah-isme/learnify-api/pkg/cache"
	"github.com/noah-isme/learnify-api/pkg/config"
	"github.com/noah-isme/learnify-api/pkg/database"
	"github.com/noah-isme/learnify-api/pkg/export"
	"github.com/noah-isme/learnify-api/pkg/jobs"
	"github.com/noah-isme/learnify-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/learnify-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/learnify-api/pkg/middleware/requestid"
	"github.com/noah-isme/learnify-api/pkg/storage"
	"github.com/noah-isme/learnify-api/pkg/telemetry"
)

// @title Learnify API
// @version 1.0.0
// @description Courses, enrollments, progress tracking and certificates
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := telemetry.Init(ctx, cfg, logr)

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db.DB); err != nil {
			logr.Fatal("failed to apply migrations", zap.Error(err))
		}
	}

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		}
	}

	files, err := storage.NewLocalStorage(cfg.Certificates.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare certificate storage", zap.Error(err))
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	certificateRepo := repository.NewCertificateRepository(db)

	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, redisClient != nil)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Issuer:     cfg.JWT.Issuer,
		Expiration: cfg.JWT.Expiration,
	})
	userSvc := service.NewUserService(userRepo, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, cacheSvc, validate, logr)
	certificateSvc := service.NewCertificateService(certificateRepo, courseRepo, enrollmentRepo, nil, metrics, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, userRepo, courseSvc, certificateSvc, metrics, validate, logr)
	documentSvc := service.NewCertificateDocumentService(
		certificateRepo,
		export.NewCertificateRenderer("Learnify"),
		files,
		storage.NewSignedURLSigner(cfg.Certificates.SignedURLSecret, cfg.Certificates.SignedURLTTL),
		metrics,
		service.CertificateDocumentConfig{PublicURL: cfg.PublicURL, APIPrefix: cfg.APIPrefix, FileTTL: cfg.Certificates.FileTTL},
		logr,
	)
	adminSvc := service.NewAdminService(userRepo, courseRepo, enrollmentRepo, certificateRepo, courseSvc, metrics, validate, logr)
	reconciler := service.NewCertificateReconciler(enrollmentRepo, certificateSvc, 100, logr)

	renderQueue := jobs.NewQueue("certificate-render", documentSvc.HandleRenderJob, jobs.QueueConfig{
		Workers:    cfg.Certificates.WorkerConcurrency,
		MaxRetries: cfg.Certificates.WorkerRetries,
		Logger:     logr,
	})
	documentSvc.SetQueue(renderQueue)
	certificateSvc.SetRenderScheduler(documentSvc)
	renderQueue.Start(ctx)

	scheduler := jobs.NewScheduler(logr, 5*time.Minute)
	if err := scheduler.Register("certificate-reconcile", cfg.Certificates.ReconcileSchedule, reconciler.Run); err != nil {
		logr.Fatal("failed to schedule reconciler", zap.Error(err))
	}
	if err := scheduler.Register("certificate-cleanup", cfg.Certificates.CleanupSchedule, documentSvc.Cleanup); err != nil {
		logr.Fatal("failed to schedule cleanup", zap.Error(err))
	}
	scheduler.Start()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))
	r.Use(middleware.WithResponseMeta())

	registerRoutes(r, cfg.APIPrefix, routeDeps{
		auth:         authSvc,
		audit:        userRepo,
		logger:       logr,
		metrics:      handler.NewMetricsHandler(metrics, db, cacheRepo),
		authH:        handler.NewAuthHandler(authSvc),
		users:        handler.NewUserHandler(userSvc),
		courses:      handler.NewCourseHandler(courseSvc),
		enrollments:  handler.NewEnrollmentHandler(enrollmentSvc),
		certificates: handler.NewCertificateHandler(certificateSvc, documentSvc),
		admin:        handler.NewAdminHandler(adminSvc),
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

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

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("http shutdown failed", zap.Error(err))
	}
	scheduler.Stop()
	renderQueue.Stop()
	if err := cacheRepo.Close(); err != nil {
		logr.Warn("redis close failed", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logr.Warn("tracer shutdown failed", zap.Error(err))
	}
}
