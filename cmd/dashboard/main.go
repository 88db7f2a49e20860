package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/gillesbersier/financial-assistant-dashboard/internal/config"
	apphttp "github.com/gillesbersier/financial-assistant-dashboard/internal/http"
	applog "github.com/gillesbersier/financial-assistant-dashboard/internal/log"
	"github.com/gillesbersier/financial-assistant-dashboard/internal/refresher"
	"github.com/gillesbersier/financial-assistant-dashboard/internal/storage"
	"github.com/gillesbersier/financial-assistant-dashboard/internal/store"
	"github.com/gillesbersier/financial-assistant-dashboard/internal/syncer"
	"github.com/gillesbersier/financial-assistant-dashboard/internal/webhook"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg := config.Load()

	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(cfg.LogLevel),
		Component: applog.ComponentApp,
	})
	applog.SetDefault(logger)

	logger.Info("starting dashboard", applog.FieldOperation, applog.OpStartup)

	if err := cfg.Validate(); err != nil {
		logger.Error("configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("failed to open snapshot storage", applog.FieldError, err, applog.FieldPath, cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	st := store.New()

	// Seed from the last snapshot so the API serves data before the first
	// live fetch completes.
	if records, savedAt, err := repo.LoadSnapshot(context.Background()); err == nil {
		st.Seed(records)
		logger.Info("seeded collection from snapshot",
			applog.FieldCount, len(records),
			"saved_at", savedAt.Format(time.RFC3339))
	} else if !errors.Is(err, storage.ErrNoSnapshot) {
		logger.Warn("snapshot load failed", applog.FieldError, err)
	}

	client := webhook.NewClient(webhook.Config{
		FetchURL:  cfg.WebhookFetchURL,
		UpdateURL: cfg.WebhookUpdateURL,
		SaveURL:   cfg.WebhookSaveURL,
		UploadURL: cfg.WebhookUploadURL,
		Timeout:   cfg.WebhookTimeout,
	})

	sy := syncer.New(st, client, syncer.Options{
		SuccessTTL: cfg.SyncSuccessTTL,
		Timeout:    cfg.WebhookTimeout,
		Logger:     logger.WithComponent(applog.ComponentSyncer),
	})

	ref := refresher.New(client, st, repo, refresher.Config{
		Interval: cfg.RefreshInterval,
		Logger:   logger.WithComponent(applog.ComponentRefresher),
	})

	srv := apphttp.NewServer(":"+cfg.Port, st, sy, ref, client)
	srv.ReadTimeout = 30 * time.Second
	srv.WriteTimeout = 60 * time.Second
	srv.IdleTimeout = 120 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := ref.Start(ctx); err != nil {
		logger.Error("failed to start refresher", applog.FieldError, err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received", applog.FieldOperation, applog.OpShutdown)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := ref.Stop(shutdownCtx); err != nil {
			logger.Warn("refresher shutdown error", applog.FieldError, err)
		}
		sy.Wait()

		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("server stopped gracefully")
}
