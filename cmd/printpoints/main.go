// Package main запускает HTTP-сервер сети точек печати.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/printpoints/internal/builder"
	"github.com/mmeshcher/printpoints/internal/config"
	"github.com/mmeshcher/printpoints/internal/handler"
	"github.com/mmeshcher/printpoints/internal/issue"
	"github.com/mmeshcher/printpoints/internal/kafka"
	"github.com/mmeshcher/printpoints/internal/lifecycle"
	"github.com/mmeshcher/printpoints/internal/middleware"
	"github.com/mmeshcher/printpoints/internal/model"
	"github.com/mmeshcher/printpoints/internal/notify"
	"github.com/mmeshcher/printpoints/internal/printsession"
	"github.com/mmeshcher/printpoints/internal/queue"
	"github.com/mmeshcher/printpoints/internal/realtime"
	"github.com/mmeshcher/printpoints/internal/reconcile"
	"github.com/mmeshcher/printpoints/internal/repository"
	"github.com/mmeshcher/printpoints/internal/service"
	"github.com/mmeshcher/printpoints/internal/storage"
)

const sessionSweepInterval = time.Minute

type objectStore interface {
	builder.ObjectStore
	printsession.Previews
}

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	var broker realtime.Broker = realtime.NewLocalBroker()
	if cfg.RedisAddress != "" {
		rb, err := realtime.NewRedisBroker(ctx, cfg.RedisAddress, cfg.RedisPassword)
		if err != nil {
			sugar.Fatalw("redis initialization error", "error", err.Error())
		}
		defer rb.Close()
		broker = rb
		sugar.Infow("realtime events go through redis", "addr", cfg.RedisAddress)
	}
	hub := realtime.NewHub(broker, logger)

	producer := kafka.New(kafka.ParseBrokers(cfg.KafkaBrokers), logger)
	defer producer.Close()
	sink := notify.NewSink(producer, logger)

	var objects objectStore
	var handlerOpts []handler.Option
	if cfg.CloudinaryURL != "" {
		objects, err = storage.NewCloudinaryStore(cfg.CloudinaryURL)
		if err != nil {
			sugar.Fatalw("cloudinary initialization error", "error", err.Error())
		}
		sugar.Info("order files go to cloudinary")
	} else {
		dir, err := storage.NewDirStore(cfg.StorageDir, cfg.FilesURL())
		if err != nil {
			sugar.Fatalw("storage initialization error", "error", err.Error())
		}
		objects = dir
		handlerOpts = append(handlerOpts, handler.WithFilesDir(dir.Root()))
		sugar.Infow("order files go to local directory", "dir", dir.Root())
	}

	machine := lifecycle.NewMachine(repo, hub, logger)
	issues := issue.NewService(repo, machine, hub, sink, issue.Config{
		ResolveAttempts: cfg.ResolveRetryAttempts,
		RetryDelay:      cfg.ResolveRetryDelay,
	}, logger)
	orderBuilder := builder.New(repo, objects, hub, logger)

	board := queue.NewBoard(repo, logger)
	if err := board.Load(ctx); err != nil {
		sugar.Fatalw("order board initialization error", "error", err.Error())
	}

	sessions := printsession.NewManager(repo, machine, issues, printsession.NewQueuePrinter(producer),
		objects, cfg.SessionIdleTimeout, logger)

	svc := service.NewService(repo, service.Deps{
		Orders:   machine,
		Builder:  orderBuilder,
		Issues:   issues,
		Sessions: sessions,
		Board:    board,
		Events:   hub,
	}, logger)

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(svc, logger, authMiddleware, handlerOpts...)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	reconciler := reconcile.New(issues, cfg.ReconcileInterval, logger)
	if err := reconciler.Start(ctx); err != nil {
		sugar.Fatalw("reconcile job initialization error", "error", err.Error())
	}
	defer reconciler.Stop()

	g, ctx := errgroup.WithContext(ctx)

	// Изменения заказов от всех экземпляров сервиса обновляют доску и сессии печати
	g.Go(func() error {
		return hub.Feed(ctx, func(ctx context.Context, o *model.Order) {
			board.Apply(o)
			sessions.OrderChanged(ctx, o)
		})
	})

	g.Go(func() error {
		sessions.Run(ctx, sessionSweepInterval)
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting printpoints server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
