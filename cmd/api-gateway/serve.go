package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/academy-enrollment-api/internal/handler"
	"github.com/noah-isme/academy-enrollment-api/internal/models"
	"github.com/noah-isme/academy-enrollment-api/internal/repository"
	"github.com/noah-isme/academy-enrollment-api/internal/service"
	"github.com/noah-isme/academy-enrollment-api/pkg/cache"
	"github.com/noah-isme/academy-enrollment-api/pkg/config"
	"github.com/noah-isme/academy-enrollment-api/pkg/database"
	"github.com/noah-isme/academy-enrollment-api/pkg/jobs"
	"github.com/noah-isme/academy-enrollment-api/pkg/logger"
	"github.com/noah-isme/academy-enrollment-api/pkg/storage"
)

const shutdownTimeout = 15 * time.Second

// app bundles everything the HTTP routes need.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	db      *sqlx.DB
	redis   *redis.Client
	metrics *service.MetricsService
	auth    *service.AuthService
	storage *storage.LocalStorage
	queue   *jobs.Queue

	authHandler         *handler.AuthHandler
	enrollmentHandler   *handler.EnrollmentHandler
	paymentHandler      *handler.PaymentHandler
	installmentHandler  *handler.InstallmentHandler
	notificationHandler *handler.NotificationHandler
	healthHandler       *handler.HealthHandler
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logr.Sync() //nolint:errcheck

	a, err := buildApp(ctx, cfg, logr)
	if err != nil {
		return err
	}
	defer a.close()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           a.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.queue.Start(gctx)
		<-gctx.Done()
		a.queue.Stop()
		return nil
	})
	g.Go(func() error {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logr.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func buildApp(ctx context.Context, cfg *config.Config, logr *zap.Logger) (*app, error) {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	a := &app{cfg: cfg, logger: logr, db: db}

	if cfg.Cache.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, continuing without cache", zap.Error(err))
		} else {
			a.redis = client
		}
	}

	a.storage, err = storage.NewLocalStorage(storage.Options{
		BaseDir:      cfg.Vouchers.StorageDir,
		PublicPrefix: cfg.Vouchers.PublicPrefix,
		MaxSize:      cfg.Vouchers.MaxFileSizeBytes,
		AllowedMIMEs: cfg.Vouchers.AllowedMIMEs,
	})
	if err != nil {
		a.close()
		return nil, err
	}

	if cfg.Metrics.Enabled {
		a.metrics = service.NewMetricsService()
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	var cacheRepo service.CacheRepository
	if a.redis != nil {
		cacheRepo = repository.NewCacheRepository(a.redis, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, a.metrics, cfg.Cache.TTL, logr, cacheRepo != nil)

	a.auth = service.NewAuthService(userRepo, studentRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	notificationSvc := service.NewNotificationService(studentRepo, notificationRepo, a.metrics, logr)
	a.queue = jobs.NewQueue("notifications", notificationSvc.Handle, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
		OnOutcome:  notificationSvc.OnOutcome,
	})
	notificationSvc.UseQueue(a.queue)

	enrollmentSvc := service.NewEnrollmentService(service.EnrollmentServiceParams{
		Tx:          db,
		Enrollments: enrollmentRepo,
		Plans:       paymentRepo,
		Pricing:     service.NewPricingService(catalogRepo, logr),
		Schedule: models.SchedulePolicy{
			Count:        cfg.Enrollment.InstallmentCount,
			FirstDueDays: cfg.Enrollment.FirstDueDays,
			IntervalDays: cfg.Enrollment.InstallmentIntervalDays,
		},
		Cache:     cacheSvc,
		Metrics:   a.metrics,
		Validator: validate,
		Logger:    logr,
	})
	paymentSvc := service.NewPaymentService(service.PaymentServiceParams{
		Tx:           db,
		Installments: paymentRepo,
		Enrollments:  enrollmentRepo,
		Notifier:     notificationSvc,
		Cache:        cacheSvc,
		Metrics:      a.metrics,
		Validator:    validate,
		Logger:       logr,
	})
	querySvc := service.NewEnrollmentQueryService(service.EnrollmentQueryServiceParams{
		Tx:          db,
		Enrollments: enrollmentRepo,
		Payments:    paymentRepo,
		Cache:       cacheSvc,
		CacheTTL:    cfg.Cache.TTL,
		Logger:      logr,
	})

	checks := map[string]handler.ReadinessCheck{
		"postgres": db.PingContext,
	}
	if a.redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.redis.Ping(ctx).Err() }
	}

	a.authHandler = handler.NewAuthHandler(a.auth)
	a.enrollmentHandler = handler.NewEnrollmentHandler(enrollmentSvc, querySvc)
	a.paymentHandler = handler.NewPaymentHandler(paymentSvc, a.storage, logr)
	a.installmentHandler = handler.NewInstallmentHandler(querySvc)
	a.notificationHandler = handler.NewNotificationHandler(notificationSvc)
	a.healthHandler = handler.NewHealthHandler(checks)
	return a, nil
}

func (a *app) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("close redis", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("close database", zap.Error(err))
		}
	}
}
