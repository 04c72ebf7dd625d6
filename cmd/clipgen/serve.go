package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/clipforge/clipgen/internal/api"
	"github.com/clipforge/clipgen/internal/clip"
	"github.com/clipforge/clipgen/internal/config"
	"github.com/clipforge/clipgen/internal/db"
	"github.com/clipforge/clipgen/internal/history"
	"github.com/clipforge/clipgen/internal/logging"
	"github.com/clipforge/clipgen/internal/storage"
	"github.com/clipforge/clipgen/internal/transcode"
	"github.com/clipforge/clipgen/internal/workspace"
)

const lockFilename = "clipgen.lock"

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the clip generation HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
}

func serve(cfg *config.EnvConfig) error {
	logger := logging.NewLogger(cfg.LogLevel())
	slog.SetDefault(logger)

	logger.Info("starting clipgen",
		"version", config.Version,
		"port", cfg.Port(),
		"ffmpeg_path", cfg.FFmpegPath(),
		"storage_backend", cfg.Storage().Backend,
	)

	var repo history.Repository
	if cfg.HistoryEnabled() {
		if err := os.MkdirAll(cfg.DataDir(), 0o755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
		// The interrupted-clip sweep in db.New assumes a single writer.
		lock, err := lockDataDir(cfg.DataDir())
		if err != nil {
			return err
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				logger.Warn("failed to release data directory lock", "error", err)
			}
		}()

		database, err := db.New(cfg.DBPath(), logger)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer database.Close()
		repo = history.NewRepository(database.Conn())
		logger.Info("clip history enabled", "path", cfg.DBPath())
	}

	publisher, err := storage.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	runner := transcode.NewExecRunner(logger)
	generator := clip.NewGenerator(clip.Options{
		FFmpegPath:   cfg.FFmpegPath(),
		StageTimeout: cfg.StageTimeout(),
		Workspaces:   workspace.NewManager(cfg.WorkRoot(), logger),
		Runner:       runner,
		Publisher:    publisher,
		History:      repo,
		Logger:       logger,
	})

	pool, err := api.NewPool(cfg.MaxConcurrentClips(), cfg.MaxQueuedClips(), logger)
	if err != nil {
		return fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	server := api.NewServer(api.ServerConfig{
		Addr:         cfg.Addr(),
		FFmpegPath:   cfg.FFmpegPath(),
		ProbeTimeout: cfg.ProbeTimeout(),
		Runner:       runner,
		Generator:    generator,
		Pool:         pool,
		History:      repo,
		Logger:       logger,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	}

	// In-flight generations may still be running both stages and an upload.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg))
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("clipgen stopped")
	return nil
}

func shutdownTimeout(cfg config.Config) time.Duration {
	return 2*cfg.StageTimeout() + cfg.UploadTimeout() + 5*time.Second
}

func lockDataDir(dir string) (*flock.Flock, error) {
	lock := flock.New(filepath.Join(dir, lockFilename))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire data directory lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another clipgen server is using %s", dir)
	}
	return lock, nil
}
