package kbd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cloo-solutions/crmkb/internal/domain"
	"github.com/cloo-solutions/crmkb/internal/jobs"
	"github.com/cloo-solutions/crmkb/internal/watcher"
)

// WatchCmd returns the watch command
func WatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Ingest files dropped into a folder",
		Long: `Watch a folder and ingest every supported file written to it, one at a time.

Files already in the folder are ingested first. Runs until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: runWatch,
	}

	cmd.Flags().Bool("skip-existing", false, "Do not ingest files already in the folder")

	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	skipExisting, _ := cmd.Flags().GetBool("skip-existing")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger

	queue := jobs.NewUploadQueue(a.knowledge, a.cfg.QueueCapacity,
		jobs.WithQueueLogger(logger.Named("uploads")),
		jobs.WithObserver(func(it domain.UploadItem) {
			switch it.Status {
			case domain.UploadStatusSuccess:
				logger.Info("ingested", zap.String("file_name", it.FileName), zap.String("document_id", it.DocumentID))
			case domain.UploadStatusError:
				logger.Warn("ingest failed", zap.String("file_name", it.FileName), zap.String("error", it.Error))
			}
		}),
	)
	go queue.Start(ctx)
	defer queue.Stop()

	w := watcher.New(args[0], a.extractor.Extensions(),
		watcher.EnqueueFile(queue, a.cfg.MaxUploadBytes, logger.Named("watcher")),
		watcher.WithLogger(logger.Named("watcher")))
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	if !skipExisting {
		if err := w.SyncExisting(); err != nil {
			logger.Warn("failed to pick up existing files", zap.Error(err))
		}
	}

	<-ctx.Done()
	logger.Info("watch stopped")
	return nil
}
