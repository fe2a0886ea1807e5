package kbd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cloo-solutions/crmkb/internal/api/handlers"
	"github.com/cloo-solutions/crmkb/internal/domain"
	"github.com/cloo-solutions/crmkb/internal/jobs"
	"github.com/cloo-solutions/crmkb/internal/server"
	"github.com/cloo-solutions/crmkb/internal/watcher"
)

const shutdownTimeout = 30 * time.Second

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long: `Start the knowledge base API server together with the upload queue worker.

The record backfill worker runs when KB_BACKFILL_INTERVAL is set, and a drop folder is
watched when --watch or KB_WATCH_DIR is given.`,
		RunE: runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (overrides KB_PORT)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().String("watch", "", "Drop folder to ingest new files from (overrides KB_WATCH_DIR)")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	a, err := newApp(ctx, appOptions{migrate: !noMigrate})
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.cfg
	logger := a.logger
	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}
	if dir, _ := cmd.Flags().GetString("watch"); dir != "" {
		cfg.WatchDir = dir
	}

	queue := jobs.NewUploadQueue(a.knowledge, cfg.QueueCapacity,
		jobs.WithQueueLogger(logger.Named("uploads")),
		jobs.WithObserver(func(it domain.UploadItem) {
			logger.Debug("upload state changed",
				zap.String("upload_id", it.ID),
				zap.String("file_name", it.FileName),
				zap.String("status", string(it.Status)),
				zap.String("progress", it.Progress))
		}),
	)
	go queue.Start(ctx)
	defer queue.Stop()

	if cfg.BackfillInterval > 0 {
		backfill := jobs.NewWorker("record-backfill", a.records, cfg.BackfillInterval, logger)
		go backfill.Start(ctx)
		defer backfill.Stop()
	}

	if cfg.WatchDir != "" {
		w := watcher.New(cfg.WatchDir, a.extractor.Extensions(),
			watcher.EnqueueFile(queue, cfg.MaxUploadBytes, logger.Named("watcher")),
			watcher.WithLogger(logger.Named("watcher")))
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("failed to watch %s: %w", cfg.WatchDir, err)
		}
		defer w.Stop()
		if err := w.SyncExisting(); err != nil {
			logger.Warn("failed to pick up existing files", zap.String("dir", cfg.WatchDir), zap.Error(err))
		}
	}

	router := server.NewRouter(server.RouterConfig{
		Logger:          logger.Named("http"),
		MaxUploadBytes:  cfg.MaxUploadBytes,
		DocumentHandler: handlers.NewDocumentHandler(a.knowledge),
		UploadHandler:   handlers.NewUploadHandler(queue),
		SearchHandler:   handlers.NewSearchHandler(a.search),
		RecordHandler:   handlers.NewRecordHandler(a.records),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exited")
	return nil
}
