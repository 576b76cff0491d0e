package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/milk-back/backend/internal/config"
	"github.com/milk-back/backend/internal/db"
	"github.com/milk-back/backend/internal/handler"
	"github.com/milk-back/backend/internal/logger"
	"github.com/milk-back/backend/internal/metrics"
	"github.com/milk-back/backend/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// @title milk-back API
// @version 1.0
// @description Cookie-authenticated backend API.
// @BasePath /api/v1
func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("error").Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		log.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	pg := db.NewPostgres(pool)
	if err := pg.Migrate(ctx); err != nil {
		log.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	rdb := db.NewRedisClient(cfg.Redis)
	defer rdb.Close()
	store := db.NewRedisSessionStore(rdb)
	if err := store.Ping(ctx); err != nil {
		// 세션 저장소가 늦게 뜨는 경우가 있어 기동은 계속한다
		log.Warn("session store not reachable at startup", "error", err)
	}

	codec, err := service.NewTokenCodec(cfg.Auth)
	if err != nil {
		log.Error("invalid auth config", "error", err)
		os.Exit(1)
	}

	secure := cfg.SecureCookies()
	sessions := service.NewSessionManager(store, cfg.Auth.SessionKeyPrefix, service.CookieConfig{
		Path:     cfg.SessionCookiePath(),
		Domain:   cfg.Auth.CookieDomain,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	authMetrics := metrics.NewAuth(registry)

	interceptor := service.NewAuthInterceptor(codec, sessions, service.CookieConfig{
		Path:     cfg.Auth.CookiePath,
		Domain:   cfg.Auth.CookieDomain,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	}, log,
		service.WithUserRepository(pg),
		service.WithStoreTimeout(cfg.Auth.StoreTimeout),
		service.WithObserver(authMetrics),
	)

	authService := service.NewAuthService(pg, codec, sessions, log)
	if cfg.Admin.Username != "" {
		if err := authService.EnsureAdmin(ctx, cfg.Admin); err != nil {
			log.Error("failed to ensure admin account", "error", err)
			os.Exit(1)
		}
	}

	router := handler.NewRouter(handler.RouterConfig{
		APIPrefix:      cfg.APIPrefix,
		AllowedOrigins: cfg.CORS,
		Log:            log,
		Gatherer:       registry,
		Interceptor:    interceptor,
		Auth:           handler.NewAuthHandler(authService, sessions, interceptor),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("http server listening", "addr", cfg.HTTPAddr, "debug", cfg.Debug)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
