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
	"go.uber.org/zap"

	_ "github.com/noah-isme/advance-api/api/swagger"
	"github.com/noah-isme/advance-api/internal/handler"
	"github.com/noah-isme/advance-api/internal/repository"
	"github.com/noah-isme/advance-api/internal/service"
	"github.com/noah-isme/advance-api/pkg/cache"
	"github.com/noah-isme/advance-api/pkg/config"
	"github.com/noah-isme/advance-api/pkg/database"
	"github.com/noah-isme/advance-api/pkg/export"
	"github.com/noah-isme/advance-api/pkg/jobs"
	"github.com/noah-isme/advance-api/pkg/logger"
	"github.com/noah-isme/advance-api/pkg/mail"
	"github.com/noah-isme/advance-api/pkg/storage"
)

// @title Advance Requests API
// @version 1.0.0
// @description Advance payment workflow: submission, approval, withholding, payment and legalization.
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

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
		logr.Info("database migrations applied")
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, role directory cache disabled", zap.Error(err))
		redisClient = nil
	}
	cacheRepo := repository.NewCacheRepository(redisClient, "advance-api")
	defer cacheRepo.Close() //nolint:errcheck

	documents, err := storage.NewDocumentStore(cfg.Documents.StorageDir, cfg.Documents.SupportDir)
	if err != nil {
		return err
	}

	sender, err := newMailSender(cfg.SMTP, logr)
	if err != nil {
		return err
	}

	metrics := service.NewMetricsService()
	advanceRepo := repository.NewAdvanceRepository(db)
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.RoleDirectory.CacheTTL, logr, cfg.RoleDirectory.CacheEnabled && redisClient != nil)
	roles := service.NewRoleDirectoryService(repository.NewRoleDirectoryRepository(db), cacheSvc, cfg.RoleDirectory.CacheTTL, metrics, logr)

	pdf := export.NewPDFExporter()
	notifier := service.NewNotificationService(advanceRepo, roles, documents, sender, service.NotificationConfig{
		OpsMailbox:      cfg.Notifications.OpsMailbox,
		ActionBaseURL:   cfg.Notifications.ActionBaseURL,
		CompanyName:     cfg.Notifications.CompanyName,
		WithholdingRole: cfg.Notifications.WithholdingRole,
		AttachSummary:   cfg.Notifications.AttachSummary,
	}, metrics, logr.Named("notifications"), service.WithSummaryRenderer(pdf))

	var (
		publisher service.TransitionPublisher
		queue     *jobs.Queue
	)
	switch {
	case !cfg.Notifications.Enabled:
		logr.Warn("notifications disabled")
	case cfg.Notifications.Async:
		queue = jobs.NewQueue("notifications", service.NotificationJobHandler(notifier), jobs.QueueConfig{
			Workers:    cfg.Notifications.Workers,
			MaxRetries: cfg.Notifications.Retries,
			RetryDelay: cfg.Notifications.RetryDelay,
			Logger:     logr.Named("queue"),
		})
		queue.Start(ctx)
		defer queue.Stop()
		publisher = service.NewQueuedPublisher(queue)
	default:
		publisher = service.NewSyncPublisher(notifier)
	}

	advances := service.NewAdvanceService(advanceRepo, documents, publisher, validator.New(), metrics, logr.Named("advances"),
		service.WithUploadPolicy(service.UploadPolicy{
			MaxBytes:     cfg.Documents.MaxFileSizeBytes,
			AllowedMIMEs: cfg.Documents.AllowedMIMEs,
		}))
	signer := storage.NewSignedURLSigner(cfg.Documents.SignedURLSecret, cfg.Documents.SignedURLTTL)

	deps := routeDeps{
		cfg:       cfg,
		logger:    logr,
		metrics:   metrics,
		tokens:    service.NewTokenService(cfg.JWT.Secret),
		advances:  handler.NewAdvanceHandler(advances, service.NewExportService(advances, logr, nil, pdf, nil)),
		documents: handler.NewDocumentHandler(service.NewDocumentService(advances, documents, signer, cfg.APIPrefix, logr)),
		health:    handler.NewMetricsHandler(metrics, readinessChecks(db, cacheRepo, redisClient != nil)...),
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newMailSender(cfg config.SMTPConfig, logr *zap.Logger) (mail.Sender, error) {
	if cfg.Host == "" {
		logr.Warn("SMTP_HOST not set, notifications will only be logged")
		return mail.NewNoopSender(logr.Named("mail")), nil
	}
	return mail.NewSMTPSender(cfg)
}

func readinessChecks(db *sqlx.DB, cacheRepo *repository.CacheRepository, redisEnabled bool) []handler.ReadinessCheck {
	checks := []handler.ReadinessCheck{{Name: "postgres", Check: db.PingContext}}
	if redisEnabled {
		checks = append(checks, handler.ReadinessCheck{Name: "redis", Check: cacheRepo.Ping})
	}
	return checks
}
