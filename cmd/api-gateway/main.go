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
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/clearance-api/api/swagger"
	"github.com/noah-isme/clearance-api/internal/handler"
	"github.com/noah-isme/clearance-api/internal/repository"
	"github.com/noah-isme/clearance-api/internal/service"
	"github.com/noah-isme/clearance-api/internal/workflow"
	"github.com/noah-isme/clearance-api/pkg/cache"
	"github.com/noah-isme/clearance-api/pkg/config"
	"github.com/noah-isme/clearance-api/pkg/database"
	"github.com/noah-isme/clearance-api/pkg/export"
	"github.com/noah-isme/clearance-api/pkg/logger"
	"github.com/noah-isme/clearance-api/pkg/mailer"
	"github.com/noah-isme/clearance-api/pkg/storage"
)

// @title Graduation Clearance API
// @version 1.0.0
// @description Final year clearance workflow: sequential department approvals, documents and certificates.
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

	if cfg.AutoMigrate {
		if err := database.MigrateUp(ctx, db.DB); err != nil {
			logr.Fatal("failed to apply migrations", zap.Error(err))
		}
	}

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, caching disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	store, err := newBlobStore(ctx, cfg)
	if err != nil {
		logr.Fatal("failed to init document storage", zap.Error(err))
	}

	app := buildApp(cfg, db, redisClient, store, logr)
	app.outbox.Start(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newRouter(cfg, app, logr),
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
		logr.Warn("http shutdown", zap.Error(err))
	}
	app.outbox.Stop()
}

func newBlobStore(ctx context.Context, cfg *config.Config) (storage.BlobStore, error) {
	if cfg.Documents.Driver == config.DocumentsDriverS3 {
		return storage.NewS3Storage(ctx, cfg.S3)
	}
	return storage.NewLocalStorage(cfg.Documents.StorageDir)
}

// app holds the wired services shared by the router.
type app struct {
	users        *repository.UserRepository
	metrics      *service.MetricsService
	auth         *service.AuthService
	departments  *service.DepartmentService
	clearances   *service.ClearanceService
	documents    *service.DocumentService
	certificates *service.CertificateService
	officers     *service.OfficerService
	admin        *service.AdminService
	accounts     *service.UserService
	dashboard    *service.DashboardService
	outbox       *service.OutboxService
	checks       map[string]handler.Pinger
}

func buildApp(cfg *config.Config, db *sqlx.DB, redisClient *redis.Client, store storage.BlobStore, logr *zap.Logger) *app {
	validate := validator.New()
	metrics := service.NewMetricsService()
	notifications := service.NewNotifications(cfg.InstitutionName)

	userRepo := repository.NewUserRepository(db)
	facultyRepo := repository.NewFacultyRepository(db)
	departmentRepo := repository.NewDepartmentRepository(db)
	clearanceRepo := repository.NewClearanceRepository(db)
	approvalRepo := repository.NewApprovalRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	checks := map[string]handler.Pinger{"postgres": db}

	var cacheSvc *service.CacheService
	if redisClient != nil {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metrics, cfg.Cache.DashboardTTL, logr, cfg.Cache.Enabled)
		checks["redis"] = pingFunc(cacheRepo.Ping)
	}

	departments := service.NewDepartmentService(departmentRepo, facultyRepo, cacheSvc, outboxRepo, cfg.Cache.RegistryTTL, validate, logr)

	auth := service.NewAuthService(userRepo, service.AuthDeps{
		Faculties:     facultyRepo,
		Clearances:    clearanceRepo,
		Outbox:        outboxRepo,
		Tx:            db,
		Notifications: notifications,
	}, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})

	documents := service.NewDocumentService(
		documentRepo,
		clearanceRepo,
		store,
		storage.NewSignedURLSigner(cfg.Documents.SignedURLSecret, cfg.Documents.SignedURLTTL),
		outboxRepo,
		db,
		metrics,
		service.DocumentServiceConfig{
			MaxFileSize:  cfg.Documents.MaxFileSizeBytes,
			AllowedMIMEs: cfg.Documents.AllowedMIMEs,
			APIPrefix:    cfg.APIPrefix,
		},
		validate,
		logr,
	)

	clearances := service.NewClearanceService(service.ClearanceDeps{
		Clearances:    clearanceRepo,
		Approvals:     approvalRepo,
		Documents:     documentRepo,
		Views:         documents,
		Users:         userRepo,
		Departments:   departmentRepo,
		Registry:      departments,
		Outbox:        outboxRepo,
		Tx:            db,
		Cache:         cacheSvc,
		Metrics:       metrics,
		Notifications: notifications,
	}, workflow.NewEngine(logr), validate, logr)

	outbox := service.NewOutboxService(outboxRepo, auditRepo, mailer.New(cfg.Mail, logr), metrics, service.OutboxConfig{
		PollInterval: cfg.Outbox.PollInterval,
		BatchSize:    cfg.Outbox.BatchSize,
		Workers:      cfg.Outbox.Workers,
		MaxAttempts:  cfg.Outbox.MaxAttempts,
		RetryDelay:   cfg.Outbox.RetryDelay,
		StaleAfter:   cfg.Outbox.StaleAfter,
	}, logr)

	return &app{
		users:        userRepo,
		metrics:      metrics,
		auth:         auth,
		departments:  departments,
		clearances:   clearances,
		documents:    documents,
		certificates: service.NewCertificateService(clearanceRepo, approvalRepo, userRepo, facultyRepo, export.NewPDFExporter(), cfg.InstitutionName, logr),
		officers:     service.NewOfficerService(approvalRepo, departmentRepo, logr),
		admin: service.NewAdminService(service.AdminServiceParams{
			Clearances:  clearanceRepo,
			Users:       userRepo,
			Departments: departmentRepo,
			Faculties:   facultyRepo,
			Audit:       auditRepo,
			Outbox:      outboxRepo,
			Cache:       cacheSvc,
			Validator:   validate,
			Logger:      logr,
		}),
		accounts: service.NewUserService(userRepo, departmentRepo, facultyRepo, outboxRepo, cacheSvc, validate, logr),
		dashboard: service.NewDashboardService(service.DashboardServiceParams{
			Clearances: clearanceRepo,
			Approvals:  approvalRepo,
			Users:      userRepo,
			Audit:      auditRepo,
			Outbox:     outbox,
			Metrics:    metrics,
			Cache:      cacheSvc,
			Logger:     logr,
			Config:     service.DashboardServiceConfig{CacheTTL: cfg.Cache.DashboardTTL},
		}),
		outbox: outbox,
		checks: checks,
	}
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }
