// Package main запускает HTTP-сервер сервиса учёта грузоперевозок.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/cargodesk/internal/audit"
	"github.com/mmeshcher/cargodesk/internal/authz"
	"github.com/mmeshcher/cargodesk/internal/config"
	"github.com/mmeshcher/cargodesk/internal/handler"
	"github.com/mmeshcher/cargodesk/internal/middleware"
	"github.com/mmeshcher/cargodesk/internal/repository"
	"github.com/mmeshcher/cargodesk/internal/service"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := cfg.LoggerConfig().Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger initialization error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := repository.Open(ctx, cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	auditLog := audit.New(store, logger,
		audit.WithLocation(cfg.Location()),
		audit.WithMaxLimit(cfg.LogQueryMaxLimit),
	)
	policy := authz.NewPolicy(cfg.SuperAdmin(), cfg.Retired())

	svc := service.NewService(store, auditLog, policy, logger, service.WithLocation(cfg.Location()))
	defer svc.Close()

	if cfg.SuperAdminPassword == "" {
		sugar.Warnw("SUPER_ADMIN_PASSWORD is empty, super admin can only log in through a stored account",
			"username", cfg.SuperAdminUsername)
	}

	authMiddleware := middleware.NewAuthMiddleware(cfg.SessionSecret)
	h := handler.NewHandler(svc, logger, authMiddleware, cfg.Location())

	loginRate, loginBurst := cfg.LoginRateLimit()
	r := h.SetupRouter(handler.WithLoginRateLimit(loginRate, loginBurst))

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting cargodesk server", "addr", cfg.RunAddress, "timezone", cfg.Location().String())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
