package watch

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"

	"github.com/meterelf/meterelf-store/internal/collect"
	"github.com/meterelf/meterelf-store/internal/db"
)

// Collector stores readings of the given image paths.
type Collector interface {
	RereadAs(ctx context.Context, mode string, paths []string) (*collect.Stats, error)
}

// Run feeds batches from w to c until ctx is done or w is stopped.
// Collection errors are logged and do not stop watching.
func Run(ctx context.Context, w *Watcher, c Collector, logger *log.Logger) error {
	if logger == nil {
		logger = log.Default().WithPrefix("watch")
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	batches, errs := w.Batches(), w.Errors()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Warn("watch error", "error", err)
		case paths, ok := <-batches:
			if !ok {
				return nil
			}
			logger.Info("new images", "count", len(paths))
			stats, err := c.RereadAs(ctx, db.RunModeWatch, paths)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				logger.Error("collecting images failed", "error", err)
				continue
			}
			logger.Info("collected", "read", stats.ImagesRead, "failed", stats.Failed)
		}
	}
}
