package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/formwatch/formwatch/internal/observability/metrics"
)

// ContentPruner removes superseded content blobs older than the cutoff
type ContentPruner interface {
	PruneContent(ctx context.Context, before time.Time) (int64, error)
}

// RetentionWorker periodically prunes superseded document content. The
// current content of every document is always kept; only replaced blobs
// past the retention window are removed. Retention is opt-in: with no
// window configured every superseded blob is kept for audit.
type RetentionWorker struct {
	pruner     ContentPruner
	retention  time.Duration
	interval   time.Duration
	maxRetries int
	logger     *slog.Logger
}

// NewRetentionWorker creates the worker
func NewRetentionWorker(pruner ContentPruner, retention, interval time.Duration, logger *slog.Logger) *RetentionWorker {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &RetentionWorker{
		pruner:     pruner,
		retention:  retention,
		interval:   interval,
		maxRetries: 3,
		logger:     logger,
	}
}

// Start begins the retention loop and blocks until ctx ends. A zero
// retention window disables pruning entirely.
func (w *RetentionWorker) Start(ctx context.Context) {
	if w.retention <= 0 {
		w.logger.Info("content retention disabled, keeping all superseded content")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("retention worker started",
		slog.Duration("retention", w.retention),
		slog.Duration("interval", w.interval),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("retention worker stopped")
			return
		case <-ticker.C:
			w.prune(ctx)
		}
	}
}

func (w *RetentionWorker) prune(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-w.retention)

	for attempt := 1; attempt <= w.maxRetries; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(attempt*attempt) * time.Second
			w.logger.Warn("retrying content prune",
				slog.Int("attempt", attempt), slog.Duration("backoff", backoff))
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
		}

		pruned, err := w.pruner.PruneContent(ctx, cutoff)
		if err != nil {
			w.logger.Error("content prune failed", slog.String("error", err.Error()))
			continue
		}
		if pruned > 0 {
			metrics.ObservePrunedContent(pruned)
			w.logger.Info("pruned superseded content",
				slog.Int64("blobs", pruned), slog.Time("cutoff", cutoff))
		}
		return
	}

	w.logger.Error("content prune failed after retries", slog.Int("max_retries", w.maxRetries))
}
