package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/deskflow/itsm-approvals/internal/app"
	"github.com/deskflow/itsm-approvals/internal/config"
	"github.com/deskflow/itsm-approvals/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.InitTracing(cfg.Tracing, cfg.App.Name, cfg.App.Version)
	if err != nil {
		logger.Fatal("failed to init tracing", zap.Error(err))
	}

	infra, err := app.NewInfrastructure(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to init infrastructure", zap.Error(err))
	}
	defer infra.Close()

	services := app.NewServices(cfg, infra, logger)
	services.Start(ctx)

	if cfg.Escalation.Enabled {
		go services.Escalation.Run(ctx)
	}

	server := app.NewHTTPApp(cfg, infra, services, logger)

	go func() {
		if err := server.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := server.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := services.Stop(shutdownCtx); err != nil {
		logger.Warn("notification drain", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
