package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/api"
	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/bus"
	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/config"
	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/db"
	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/maintenance"
	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/metrics"
	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/notify"
	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/queue"
	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/ratelimiter"
	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/recipient"
	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/repository"
	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/transport"
	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/worker"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ---- database ----
	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database migrations applied")

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	pq := queue.New()
	repo := repository.NewPgJobRepository(pool)
	limiter := ratelimiter.New(cfg.RateLimit)
	q := queue.NewService(repo, pq, queue.Defaults{
		MaxAttempts: cfg.DefaultMaxAttempts,
		BackoffBase: cfg.BackoffBase,
	}, logger)
	q.Start()

	// ---- job handlers ----
	// The outbound transport is dialed on first use, not at boot.
	transportFactory := worker.OnceFactory(func() (transport.Transport, error) {
		return transport.NewWebhookTransport(cfg.TransportBaseURL, cfg.TransportTimeout), nil
	})
	registry := worker.NewRegistry()
	if err := registry.Register(notify.SendJobType,
		notify.NewSendHandler(transportFactory, logger), 0); err != nil {
		logger.Fatal("failed to register handler", zap.Error(err))
	}
	if err := registry.Register(queue.DeadLetterJobType,
		worker.NewDeadLetterHandler(logger), 0); err != nil {
		logger.Fatal("failed to register handler", zap.Error(err))
	}

	// ---- worker pool ----
	// Context for all background goroutines; cancelled on shutdown signal.
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	onCompleted, onFailed := m.WorkerHooks()
	workers := worker.NewPool(cfg.Workers, pq, repo, q, registry, limiter, logger, worker.MetricHooks{
		OnCompleted: onCompleted,
		OnFailed:    onFailed,
	})
	workers.Start(workerCtx)

	retryW := worker.NewRetryWorker(repo, q, cfg.RetryInterval, logger)
	go retryW.Run(workerCtx)

	delayedW := worker.NewDelayedWorker(repo, q, cfg.DelayedInterval, logger)
	go delayedW.Run(workerCtx)

	go reportQueueDepths(workerCtx, pq, m)

	// ---- event fan-out ----
	b := bus.New(logger)
	resolver := recipient.NewResolver(logger,
		recipient.NewFollowerSource(pool),
		recipient.NewStaffSource(pool),
	)
	listener := notify.NewListener(q, resolver, logger)
	listener.OnEnqueued(m.NotificationsEnqueued.Inc)
	listener.Register(b)

	// ---- maintenance ----
	onDeleted, onError := m.MaintenanceHooks()
	runner := maintenance.NewRunner(logger, maintenance.MetricHooks{
		OnDeleted: onDeleted,
		OnError:   onError,
	})
	store := maintenance.NewPostgresStore(pool)
	tasks := maintenance.StockTasks(store, repo,
		maintenance.Windows{
			StaleCarts:      cfg.StaleCartRetention,
			ExpiredTokens:   cfg.ExpiredTokenGrace,
			NotificationLog: cfg.NotificationLogRetention,
			FinishedJobs:    cfg.CompletedJobRetention,
		},
		maintenance.Schedules{
			StaleCarts:      cfg.StaleCartSchedule,
			ExpiredTokens:   cfg.ExpiredTokenSchedule,
			NotificationLog: cfg.NotificationLogSchedule,
			FinishedJobs:    cfg.JobPurgeSchedule,
		})

	scheduler := maintenance.NewScheduler(runner, logger)
	for _, t := range tasks {
		if err := runner.Register(t); err != nil {
			logger.Fatal("failed to register maintenance task", zap.Error(err))
		}
		if err := scheduler.AddTask(t); err != nil {
			logger.Fatal("failed to schedule maintenance task", zap.Error(err))
		}
	}
	if cfg.EnableComprehensiveCleanup {
		if err := scheduler.AddSweep(cfg.ComprehensiveCleanupSchedule); err != nil {
			logger.Fatal("failed to schedule cleanup sweep", zap.Error(err))
		}
	}
	scheduler.Start()

	// ---- HTTP server ----
	router := api.NewRouter(q, pq, b, runner, pool, reg, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start server in a goroutine so it does not block the shutdown listener.
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Stop producing new work: recurring enqueues, cron sweeps, events.
	listener.Close()
	q.Stop()
	scheduler.Stop()

	// 3. Signal all workers to stop picking up queue items.
	cancelWorkers()

	// 4. Wait for in-flight workers to finish their current job.
	workers.Wait()

	logger.Info("server stopped cleanly")
}

// reportQueueDepths mirrors the live per-tier backlog into the Prometheus
// gauges a few times per scrape interval.
func reportQueueDepths(ctx context.Context, pq *queue.PriorityQueue, m *metrics.Metrics) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SetQueueDepths(pq.Depths())
		}
	}
}
