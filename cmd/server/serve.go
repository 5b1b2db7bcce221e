package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sitelog/internal/handler"
	"github.com/sitelog/internal/router"
	"github.com/sitelog/internal/service"
	"github.com/sitelog/internal/watch"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	gin.SetMode(cfg.GinMode)

	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if report, err := a.engine.Run(ctx); err != nil {
		slog.Warn("initial sync failed", "error", err)
	} else {
		slog.Info("initial sync finished", "categories", report.Categories, "posts", report.Posts, "failed", report.Failed)
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		client, err := service.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			slog.Warn("redis unavailable, using in-process view dedup", "error", err)
		} else {
			redisClient = client
			defer redisClient.Close()
		}
	}

	if cfg.AdminPasswordHash == "" {
		slog.Warn("ADMIN_PASSWORD_HASH is not set, admin login is disabled")
	}

	api := handler.NewAPI(a.blog, handler.Options{
		AdminUsername:     cfg.AdminUsername,
		AdminPasswordHash: cfg.AdminPasswordHash,
		Deduper:           service.NewViewDeduper(cfg.ViewDedupWindow, redisClient),
		PageSize:          cfg.PageSize,
	})

	if cfg.ContentWatch {
		w, err := watch.New(cfg.ContentRoot, a.engine, watch.DefaultDebounce, slog.Default())
		if err != nil {
			return err
		}
		defer w.Close()
		go func() {
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("content watcher stopped", "error", err)
			}
		}()
		slog.Info("watching content tree", "root", cfg.ContentRoot)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router.SetupRouter(api, cfg.SessionSecret),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", cfg.ListenAddr, "content", cfg.ContentRoot, "db", cfg.DatabasePath)
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

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
