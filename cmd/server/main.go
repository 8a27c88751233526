package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"jobfeed/internal/app"
	"jobfeed/internal/config"
	"jobfeed/internal/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.App.Environment)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	container, err := app.NewContainer(cfg, zlog)
	if err != nil {
		zlog.Fatal("failed to build container", zap.Error(err))
	}
	defer func() {
		if err := container.Close(); err != nil {
			zlog.Error("cleanup error", zap.Error(err))
		}
	}()

	application := app.Bootstrap(container)

	addr, err := app.ListenAddr(cfg.App.HTTPPort)
	if err != nil {
		zlog.Fatal("invalid HTTP port", zap.Error(err))
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go container.Hub.Run()

	// Run returns on handler failure with the failed offset uncommitted;
	// restarting resumes from the committed offset and redelivers it.
	go func() {
		for {
			err := container.Consumer.Run(rootCtx, container.Publisher.Apply)
			if rootCtx.Err() != nil {
				return
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				zlog.Error("event consumer stopped, restarting", zap.Error(err))
			}
			select {
			case <-rootCtx.Done():
				return
			case <-time.After(5 * time.Second):
			}
		}
	}()

	go runSweepLoop(rootCtx, container, zlog)

	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Fiber.Listen(addr)
	}()
	zlog.Info("server listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		if err != nil {
			zlog.Fatal("server error", zap.Error(err))
		}
	case <-rootCtx.Done():
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := application.Fiber.ShutdownWithContext(ctx); err != nil {
			zlog.Error("shutdown error", zap.Error(err))
		}
	}
}

func runSweepLoop(ctx context.Context, c *app.Container, zlog *zap.Logger) {
	interval := c.Config.Feed.SweepInterval
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Publisher.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				zlog.Error("sweep failed", zap.Error(err))
			}
		}
	}
}
