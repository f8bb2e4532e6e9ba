package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/evanio/evanio/internal/config"
	"github.com/evanio/evanio/internal/db"
	"github.com/evanio/evanio/internal/notifications"
	"github.com/evanio/evanio/internal/observability"
	"github.com/evanio/evanio/internal/queue/worker"
	"github.com/evanio/evanio/internal/repo/postgres"
	"github.com/google/uuid"
)

func main() {
	cfg := config.Load()

	log := observability.NewLogger(cfg.Env)

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracer(context.Background(), "evanio-worker", cfg.OTLPEndpoint)

		if err != nil {
			log.Error("tracer init failed", "err", err)
			os.Exit(1)
		}

		defer func() {
			ctx, cancel := config.WithTimeout(5 * time.Second)
			defer cancel()
			_ = shutdown(ctx)
		}()
	}

	pool, err := db.NewPool(cfg.DBURL)

	if err != nil {
		log.Error("database connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	jobsRepo := postgres.NewJobsRepo(pool, nil)
	referralsRepo := postgres.NewReferralsRepo(pool, nil)

	// the breaker keeps a flaky provider from eating every attempt a
	// job has; opened circuits surface as retryable failures
	notifier := notifications.NewProtectedNotifier(notifications.NewLogNotifier(), notifications.ProtectedNotifierConfig{
		Timeout:          5 * time.Second,
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
		HalfOpenMaxCalls: 2,
	})

	w := worker.New(worker.Config{
		PollInterval:  cfg.WorkerPollInterval,
		WorkerID:      "worker-" + uuid.NewString()[:8],
		Concurrency:   4,
		LockTTL:       5 * time.Minute,
		ShutdownGrace: 10 * time.Second,
	}, jobsRepo, notifier, referralsRepo, log, nil)

	healthSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WorkerHealthPort),
		Handler:           w.HealthHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		err := healthSrv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			log.Error("worker health server failed", "err", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		log.Info("worker shutting down")
		cancel()
	}()

	log.Info("worker starting", "poll_interval", cfg.WorkerPollInterval.String(), "env", cfg.Env)

	if err := w.Run(ctx); err != nil && err != context.Canceled {
		log.Error("worker stopped with error", "err", err)
	}

	{
		sctx, scancel := config.WithTimeout(3 * time.Second)
		_ = healthSrv.Shutdown(sctx)
		scancel()
	}

	log.Info("worker shutdown complete")
}
