package watcher

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/cloo-solutions/crmkb/internal/domain"
	"github.com/cloo-solutions/crmkb/internal/jobs"
)

// Enqueuer accepts files for ingestion.
type Enqueuer interface {
	Enqueue(files ...jobs.UploadFile) ([]domain.UploadItem, error)
}

// EnqueueFile returns an onFile callback that reads path and enqueues it under its base name.
// Files larger than maxBytes (when > 0) are skipped.
func EnqueueFile(q Enqueuer, maxBytes int64, logger *zap.Logger) func(path string) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(path string) {
		info, err := os.Stat(path)
		if err != nil {
			logger.Warn("dropped file vanished", zap.String("path", path), zap.Error(err))
			return
		}
		if maxBytes > 0 && info.Size() > maxBytes {
			logger.Warn("dropped file too large, skipping",
				zap.String("path", path),
				zap.Int64("size", info.Size()),
				zap.Int64("max_bytes", maxBytes))
			return
		}
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("failed to read dropped file", zap.String("path", path), zap.Error(err))
			return
		}
		items, err := q.Enqueue(jobs.UploadFile{FileName: filepath.Base(path), Data: data})
		if err != nil {
			logger.Error("failed to enqueue dropped file", zap.String("path", path), zap.Error(err))
			return
		}
		for _, it := range items {
			logger.Info("dropped file enqueued",
				zap.String("path", path),
				zap.String("upload_id", it.ID),
				zap.String("status", string(it.Status)))
		}
	}
}
