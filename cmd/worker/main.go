package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadchat_backend/internal/ai"
	"leadchat_backend/internal/archive"
	"leadchat_backend/internal/leads/repository"
	"leadchat_backend/internal/leads/scoring"
	"leadchat_backend/internal/notification"
	"leadchat_backend/internal/ops"
	"leadchat_backend/internal/pipeline"
	"leadchat_backend/internal/queue"
	"leadchat_backend/internal/security"
	"leadchat_backend/internal/whatsapp"
	"leadchat_backend/migrations"
	"leadchat_backend/platform/config"
	"leadchat_backend/platform/db"
	"leadchat_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting worker", "env", cfg.Env, "concurrency", cfg.MessageConcurrency)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(cfg, migrations.FS)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	repo := repository.New(pool)

	queueClient, err := queue.NewClient(cfg)
	if err != nil {
		log.Error("failed to create queue client", "error", err)
		panic("failed to create queue client: " + err.Error())
	}
	defer func() {
		_ = queueClient.Close()
	}()

	caller := ai.NewCaller(ai.NewClient(cfg), cfg, log)
	scorer := scoring.New(repo, log)
	incidents := security.NewLogger(repo, log)
	waClient := whatsapp.NewClient(cfg, log)

	archiveSvc, err := archive.NewService(cfg, repo, log)
	if err != nil {
		log.Error("failed to create archive service", "error", err)
		panic("failed to create archive service: " + err.Error())
	}
	if archiveSvc != nil {
		if err := archiveSvc.EnsureBucket(ctx); err != nil {
			log.Error("failed to ensure archive bucket", "error", err)
			panic("failed to ensure archive bucket: " + err.Error())
		}
	}

	processor := pipeline.NewProcessor(repo, caller, scorer, incidents,
		waClient, queueClient, archiveSvc, log)
	notifier := notification.NewService(cfg, repo, log)
	timeouts := pipeline.NewTimeoutHandler(repo, waClient, log)
	dlq := queue.NewDLQRouter(repo, log)

	worker, err := queue.NewWorker(cfg, processor, notifier, timeouts, dlq, log)
	if err != nil {
		log.Error("failed to create queue worker", "error", err)
		panic("failed to create queue worker: " + err.Error())
	}

	opsServer := ops.NewServer(cfg, cfg.Env, caller, repo, queueClient, pool, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return opsServer.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		log.Error("worker shut down with error", "error", err)
		os.Exit(1)
	}
	log.Info("worker stopped")
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return lastErr
}
