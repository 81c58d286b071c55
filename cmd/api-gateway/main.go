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
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/fir-api/api/swagger"
	"github.com/noah-isme/fir-api/internal/handler"
	"github.com/noah-isme/fir-api/internal/middleware"
	"github.com/noah-isme/fir-api/internal/models"
	"github.com/noah-isme/fir-api/internal/repository"
	"github.com/noah-isme/fir-api/internal/service"
	"github.com/noah-isme/fir-api/pkg/cache"
	"github.com/noah-isme/fir-api/pkg/config"
	"github.com/noah-isme/fir-api/pkg/database"
	"github.com/noah-isme/fir-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/fir-api/pkg/middleware/cors"
	"github.com/noah-isme/fir-api/pkg/middleware/ratelimit"
	reqidmiddleware "github.com/noah-isme/fir-api/pkg/middleware/requestid"
	"github.com/noah-isme/fir-api/pkg/storage"
)

// @title FIR Management API
// @version 1.0.0
// @description Role-scoped First Information Report filing, review and audit
// @BasePath /
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			logr.Fatal("failed to apply schema", zap.Error(err))
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redisClient.Close()
	}

	blobs, err := newBlobStore(ctx, cfg.Evidence)
	if err != nil {
		logr.Fatal("failed to init evidence storage", zap.Error(err), zap.String("driver", cfg.Evidence.Driver))
	}

	janitor := service.NewEvidenceJanitor(blobs, logr)
	janitor.Start(ctx)
	defer janitor.Stop()

	r := newRouter(cfg, logr, db, redisClient, blobs, janitor)

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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	logr.Info("server stopped")
}

func newBlobStore(ctx context.Context, cfg config.EvidenceConfig) (storage.BlobStore, error) {
	switch cfg.Driver {
	case config.StorageDriverS3:
		return storage.NewS3Storage(ctx, cfg.S3)
	case config.StorageDriverLocal, "":
		return storage.NewLocalStorage(cfg.StorageDir)
	}
	return nil, fmt.Errorf("unknown evidence driver %q", cfg.Driver)
}

func newRouter(cfg *config.Config, logr *zap.Logger, db *sqlx.DB, redisClient *redis.Client, blobs storage.BlobStore, janitor *service.EvidenceJanitor) *gin.Engine {
	metricsSvc := service.NewMetricsService()
	validate := service.NewValidator()
	hasher := service.NewBcryptHasher(cfg.Auth.BcryptCost)

	// A nil *redis.Client must not become a non-nil UniversalClient.
	var redisUniversal redis.UniversalClient
	var sessions service.SessionStore = repository.NewMemorySessionStore()
	if redisClient != nil {
		redisUniversal = redisClient
		sessions = repository.NewRedisSessionStore(redisClient)
	}

	userRepo := repository.NewUserRepository(db)
	stationRepo := repository.NewStationRepository(db)
	firRepo := repository.NewFIRRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(redisUniversal)

	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Dashboard.CacheTTL, logr, cacheRepo.Enabled())
	authSvc := service.NewAuthService(userRepo, stationRepo, auditRepo, sessions, hasher, validate, metricsSvc, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	userSvc := service.NewUserService(userRepo, stationRepo, auditRepo, hasher, validate, metricsSvc, logr)
	userSvc.SetAccountRevoker(authSvc)
	stationSvc := service.NewStationService(stationRepo, auditRepo, cacheSvc, validate, metricsSvc, logr, cfg.Stations.CacheTTL)
	firSvc := service.NewFIRService(firRepo, stationRepo, auditRepo, cacheSvc, validate, metricsSvc, logr)
	firSvc.SetEvidencePurger(janitor)
	dashboardSvc := service.NewDashboardService(service.DashboardServiceParams{
		FIRs:     firRepo,
		Users:    userRepo,
		Stations: stationRepo,
		Cache:    cacheSvc,
		Logger:   logr,
		CacheTTL: cfg.Dashboard.CacheTTL,
	})
	activitySvc := service.NewActivityService(auditRepo)
	evidenceSvc := service.NewEvidenceService(blobs, storage.NewSignedURLSigner(cfg.Evidence.SignedURLSecret, cfg.Evidence.SignedURLTTL), firSvc, logr, service.EvidenceConfig{
		MaxFileSize:  cfg.Evidence.MaxFileSizeBytes,
		AllowedMIMEs: cfg.Evidence.AllowedMIMEs,
		DownloadPath: cfg.APIPrefix + "/evidence/download",
	})
	firSvc.SetEvidenceLocator(evidenceSvc)

	checks := map[string]handler.Pinger{"database": handler.PingFunc(db.PingContext)}
	if cacheRepo.Enabled() {
		checks["redis"] = cacheRepo
	}

	metricsHandler := handler.NewMetricsHandler(metricsSvc, checks)
	authHandler := handler.NewAuthHandler(authSvc, userSvc)
	stationHandler := handler.NewStationHandler(stationSvc)
	firHandler := handler.NewFIRHandler(firSvc)
	userHandler := handler.NewUserHandler(userSvc)
	evidenceHandler := handler.NewEvidenceHandler(evidenceSvc)
	activityHandler := handler.NewActivityHandler(activitySvc)
	dashboardHandler := handler.NewDashboardHandler(dashboardSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.ResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authenticated := middleware.JWT(authSvc)
	optional := middleware.OptionalJWT(authSvc)
	admin := middleware.RequireRoles(models.RoleAdmin)
	loginLimiter := ratelimit.PerMinute(cfg.Auth.LoginRatePerMinute, cfg.Auth.LoginRateBurst)

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", loginLimiter.Middleware(), authHandler.Login)
	auth.POST("/register", authHandler.Register)
	auth.POST("/logout", authenticated, authHandler.Logout)
	auth.GET("/me", authenticated, authHandler.Me)
	auth.POST("/change-password", authenticated, authHandler.ChangePassword)
	auth.PUT("/profile", authenticated, authHandler.UpdateProfile)

	stations := api.Group("/stations")
	stations.GET("", optional, stationHandler.List)
	stations.GET("/:id", optional, stationHandler.Get)
	stations.POST("", authenticated, admin, stationHandler.Create)
	stations.PUT("/:id", authenticated, admin, stationHandler.Update)
	stations.DELETE("/:id", authenticated, admin, stationHandler.Delete)

	firs := api.Group("/firs", authenticated)
	firs.POST("", middleware.RequireRoles(models.RoleUser), firHandler.File)
	firs.GET("", firHandler.List)
	firs.GET("/export", middleware.RequireRoles(models.RoleAdmin, models.RolePolice), firHandler.Export)
	firs.GET("/:id", firHandler.Get)
	firs.GET("/:id/evidence", evidenceHandler.Link)
	firs.PUT("/:id/approve", middleware.RequireRoles(models.RolePolice), firHandler.Approve)
	firs.PUT("/:id/reject", middleware.RequireRoles(models.RolePolice), firHandler.Reject)
	firs.PUT("/:id/status", admin, firHandler.Override)
	firs.DELETE("/:id", admin, firHandler.Delete)

	api.POST("/evidence", authenticated, middleware.RequireRoles(models.RoleUser), evidenceHandler.Upload)
	api.GET("/evidence/download", optional, evidenceHandler.Download)

	users := api.Group("/users", authenticated, admin)
	users.GET("", userHandler.List)
	users.POST("/police", userHandler.AddPolice)
	users.POST("/import", userHandler.Import)
	users.DELETE("/:id", userHandler.Delete)

	api.GET("/activity", authenticated, activityHandler.Recent)
	api.GET("/dashboard", authenticated, dashboardHandler.Summary)

	return r
}
