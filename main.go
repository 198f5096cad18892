package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"lg/fitquest-api/internal/config"
	"lg/fitquest-api/internal/logger"
	"lg/fitquest-api/internal/store"
	"lg/fitquest-api/internal/tipcache"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := store.Pool(ctx, cfg.DBURL)
	if err != nil {
		log.Fatal("database unavailable", "error", err)
	}
	defer pool.Close()

	// Tips are cached in Redis when configured so every instance serves the
	// same tip for the day; otherwise per process.
	var tips tipcache.Cache = tipcache.NewMemory()
	if cfg.RedisAddr != "" {
		r, err := tipcache.NewRedis(ctx, cfg.RedisAddr, cfg.TipCacheTTL, log)
		if err != nil {
			log.Fatal("redis unavailable", "addr", cfg.RedisAddr, "error", err)
		}
		defer r.Close()
		tips = r
	}

	h := newHandler(cfg, pool, store.NewPostgres(pool), tips, log)

	if cfg.LogMode == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.SetTrustedProxies(nil)
	h.registerRoutes(router)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", "error", err)
	}
}
