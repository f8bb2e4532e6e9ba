package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/evanio/evanio/internal/auth"
	"github.com/evanio/evanio/internal/config"
	"github.com/evanio/evanio/internal/domain/user"
	"github.com/evanio/evanio/internal/http/handlers"
	"github.com/evanio/evanio/internal/http/middlewares"
	"github.com/evanio/evanio/internal/observability"
	"github.com/evanio/evanio/internal/redisclient"
	"github.com/evanio/evanio/internal/repo/postgres"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const maxBodyBytes = 1 << 20 // 1MB, more than enough for auth payloads

func NewRouter(cfg config.Config, log *slog.Logger, pool *pgxpool.Pool, rdb *redisclient.Client) *gin.Engine {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// middleware

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(log))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(cfg.CORSAllowedOrigins))
	r.Use(middlewares.RequireJSON())
	r.Use(middlewares.MaxBodyBytes(maxBodyBytes))

	if cfg.TracingEnabled {
		r.Use(otelgin.Middleware("evanio-api"))
	}

	// metrics on a private registry so tests can build routers freely
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	prom := observability.NewProm(reg)
	r.Use(prom.GinHandleMiddleware())

	// health
	ping := func() error {
		if pool == nil {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		return pool.Ping(ctx)
	}

	h := handlers.NewHealthHandler(ping)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// wire up repositories
	usersRepo := postgres.NewUsersRepo(pool, prom)
	jobsRepo := postgres.NewJobsRepo(pool, prom)

	jwtManager := auth.NewManager(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	authHandler := handlers.NewAuthHandler(usersRepo, jobsRepo, jwtManager, log, prom)
	adminJobsHandler := handlers.NewAdminJobsHandler(jobsRepo, log)
	authMW := middlewares.NewAuthMiddleware(jwtManager, usersRepo)

	// credential endpoints get a fixed-window limiter keyed on client
	// IP; refresh is token-bound and stays unthrottled
	var throttle gin.HandlerFunc

	if rdb != nil {
		limiter := middlewares.NewRateLimiter(rdb.Raw(), "auth", cfg.AuthRateLimit, cfg.AuthRateWindow)
		throttle = limiter.Middleware(middlewares.ByClientIP())
	} else {
		throttle = func(c *gin.Context) { c.Next() }
	}

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", throttle, authHandler.Register)
		authGroup.POST("/login", throttle, authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
		authGroup.GET("/me", authMW.RequireAuth(), authHandler.Me)
	}

	adminGroup := r.Group("/admin", authMW.RequireAuth(), authMW.RequireRole(user.RoleAdmin))
	{
		adminGroup.GET("/jobs", adminJobsHandler.List)
		adminGroup.POST("/jobs/:id/retry", adminJobsHandler.Retry)
	}

	return r
}
