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
	httpx "github.com/evanio/evanio/internal/http"
	"github.com/evanio/evanio/internal/observability"
	"github.com/evanio/evanio/internal/redisclient"
)

func main() {
	cfg := config.Load()

	log := observability.NewLogger(cfg.Env)

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracer(context.Background(), "evanio-api", cfg.OTLPEndpoint)

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

	{
		ctx, cancel := config.WithTimeout(10 * time.Second)
		err := db.EnsureSchema(ctx, pool)
		cancel()

		if err != nil {
			log.Error("schema setup failed", "err", err)
			os.Exit(1)
		}
	}

	rdb := redisclient.New(redisclient.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	{
		ctx, cancel := config.WithTimeout(2 * time.Second)
		err := rdb.Ping(ctx)
		cancel()

		if err != nil {
			// rate limiting fails open, so redis being down is not fatal
			log.Warn("redis unreachable, auth throttling disabled", "err", err)
		}
	}

	router := httpx.NewRouter(cfg, log, pool, rdb)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.Port, "env", cfg.Env)
		err := srv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("server shutting down")

	shutdownCh := make(chan struct{})

	go func() {
		defer close(shutdownCh)

		ctx, cancel := config.WithTimeout(10 * time.Second)
		defer cancel()

		err := srv.Shutdown(ctx)

		if err != nil {
			log.Error("graceful shutdown failed", "err", err)
			return
		}
	}()

	select {
	case <-shutdownCh:
		log.Info("shutdown complete")

	case <-time.After(12 * time.Second):
		log.Error("shutdown timed out")
	}
}
