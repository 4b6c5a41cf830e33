package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-schedule-api/internal/handler"
	"github.com/noah-isme/tutor-schedule-api/internal/middleware"
	"github.com/noah-isme/tutor-schedule-api/internal/repository"
	"github.com/noah-isme/tutor-schedule-api/internal/service"
	"github.com/noah-isme/tutor-schedule-api/pkg/cache"
	"github.com/noah-isme/tutor-schedule-api/pkg/config"
	"github.com/noah-isme/tutor-schedule-api/pkg/database"
	"github.com/noah-isme/tutor-schedule-api/pkg/jobs"
	"github.com/noah-isme/tutor-schedule-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/tutor-schedule-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/tutor-schedule-api/pkg/middleware/requestid"
)

const shutdownTimeout = 15 * time.Second

var serveMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "apply pending migrations before serving")
}

// app carries the wired collaborators the router needs.
type app struct {
	schedules *handler.ScheduleHandler
	blocks    *handler.AvailabilityBlockHandler
	requests  *handler.RescheduleHandler
	metrics   *handler.MetricsHandler
	tokens    *service.TokenService
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logr, err := bootstrap()
	if err != nil {
		return err
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if serveMigrate || cfg.Migrations.OnStart {
		if err := database.Migrate(ctx, db.DB, logr); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	metrics := service.NewMetricsService()
	checks := map[string]handler.ReadinessCheck{"database": db.PingContext}

	var cacheRepo service.CacheRepository
	if cfg.CalendarCache.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		repo := repository.NewCacheRepository(client, logr)
		defer repo.Close() //nolint:errcheck
		cacheRepo = repo
		checks["redis"] = repo.Ping
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.CalendarCache.TTL, logr, cfg.CalendarCache.Enabled)

	queue := jobs.NewQueue("notifications", service.NotificationJobHandler(service.NewLogNotificationSender(logr)), jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
		OnFinish:   service.NotificationOutcomeRecorder(metrics),
	})
	queue.Start(ctx)
	defer queue.Stop()

	a := wire(cfg, logr, db, metrics, cacheSvc, service.NewQueueNotifier(queue, logr), checks)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))
	registerRoutes(r, cfg, a)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
		return err
	}
	return nil
}

func wire(cfg *config.Config, logr *zap.Logger, db *sqlx.DB, metrics *service.MetricsService, cacheSvc *service.CacheService, notifier service.Notifier, checks map[string]handler.ReadinessCheck) *app {
	loc := cfg.Scheduler.Location()
	validate := validator.New()

	entries := repository.NewScheduleEntryRepository(db)
	lessons := repository.NewLessonRepository(db)
	blocks := repository.NewAvailabilityBlockRepository(db)
	requests := repository.NewRescheduleRequestRepository(db)

	runner := database.NewTransactor(db, database.TransactorConfig{
		MaxAttempts: cfg.Scheduler.TxMaxAttempts,
		RetryDelay:  cfg.Scheduler.TxRetryDelay,
		Logger:      logr,
		OnRetry: func(int, error) {
			metrics.RecordTxRetry()
		},
	})
	locker := database.AdvisoryLocker{}

	expander := service.NewRecurrenceExpander(loc)
	conflicts := service.NewConflictChecker(entries)
	allocator := service.NewSlotAllocator(entries, expander, service.SlotAllocatorConfig{
		DayHorizon:      cfg.Scheduler.DayHorizon,
		SessionsPerRule: cfg.Scheduler.SessionsPerRule,
	})

	scheduleSvc := service.NewScheduleService(runner, locker, allocator, conflicts, entries, lessons, cacheSvc, metrics, notifier, validate, logr,
		service.ScheduleServiceConfig{Location: loc, CacheTTL: cfg.CalendarCache.TTL})
	blockSvc := service.NewAvailabilityBlockService(runner, locker, blocks, entries, expander, cacheSvc, metrics, validate, logr,
		service.AvailabilityBlockConfig{MaxHorizonDays: cfg.Scheduler.BlockMaxHorizonDays})
	rescheduleSvc := service.NewRescheduleService(runner, locker, conflicts, requests, entries, lessons, cacheSvc, metrics, notifier, validate, logr)

	return &app{
		schedules: handler.NewScheduleHandler(scheduleSvc, loc),
		blocks:    handler.NewAvailabilityBlockHandler(blockSvc, loc),
		requests:  handler.NewRescheduleHandler(rescheduleSvc),
		metrics:   handler.NewMetricsHandler(metrics, checks),
		tokens:    service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer, Expiry: cfg.JWT.Expiration}),
	}
}
