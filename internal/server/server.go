// Package server assembles and runs the HTTP server: config, credentials,
// experiment discovery, routing, and graceful shutdown.
package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/NeveIsa/LEAP2/internal/auth"
	"github.com/NeveIsa/LEAP2/internal/config"
	"github.com/NeveIsa/LEAP2/internal/experiment"
	"github.com/NeveIsa/LEAP2/internal/handlers"
	"github.com/NeveIsa/LEAP2/internal/storage"
	"github.com/NeveIsa/LEAP2/pkg/logger"
)

// Run loads configuration, discovers experiments, and serves HTTP until
// SIGINT or SIGTERM is received.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	if err := auth.EnsureCredentials(cfg.CredentialsPath(), cfg.AdminPassword); err != nil {
		return err
	}

	opener, pool, err := buildStoreOpener(cfg)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}

	experiments, err := experiment.Discover(cfg.ExperimentsDir(), opener)
	if err != nil {
		return fmt.Errorf("failed to discover experiments: %w", err)
	}
	defer experiments.Close()

	logger.Info("experiments loaded",
		"count", len(experiments.List()), "dir", cfg.ExperimentsDir(), "driver", cfg.Storage.Driver)

	sessions := auth.NewSessionStore(time.Duration(cfg.SessionTTLHours) * time.Hour)

	gin.SetMode(gin.ReleaseMode)
	router := handlers.NewRouter(cfg, experiments, sessions)

	// Expired admin sessions are swept hourly.
	cleanupDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := sessions.CleanupExpired(); n > 0 {
					logger.Debug("expired sessions cleaned", "count", n)
				}
			case <-cleanupDone:
				return
			}
		}
	}()
	defer close(cleanupDone)

	srv := &http.Server{Addr: cfg.Addr, Handler: router}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// buildStoreOpener selects the audit log backend. SQLite keeps one database
// file per experiment; Postgres shares one pool across experiments.
func buildStoreOpener(cfg *config.Config) (experiment.StoreOpener, *pgxpool.Pool, error) {
	switch cfg.Storage.Driver {
	case "", "sqlite":
		return experiment.SQLiteOpener, nil, nil
	case "postgres":
		pg := cfg.Storage.Postgres
		dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
			url.QueryEscape(pg.User), url.QueryEscape(pg.Password), pg.Host, pg.Port, pg.Name)
		pool, err := storage.NewPostgresPool(context.Background(), dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		opener := func(name, path string) (storage.Store, error) {
			return storage.NewPostgresStore(context.Background(), name, pool)
		}
		return opener, pool, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver: %s", cfg.Storage.Driver)
	}
}
