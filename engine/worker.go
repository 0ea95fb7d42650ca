package engine

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// OverdueWorker periodically runs the batch overdue refresh.
type OverdueWorker struct {
	engine *Engine
	logger *zap.SugaredLogger
}

// NewOverdueWorker creates a background worker over the given engine.
func NewOverdueWorker(e *Engine, logger *zap.SugaredLogger) *OverdueWorker {
	return &OverdueWorker{engine: e, logger: logger}
}

// Start begins the periodic refresh loop and blocks until ctx is
// cancelled. An initial pass runs immediately.
func (w *OverdueWorker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("overdue worker stopped")
			return
		case <-ticker.C:
			w.refresh(ctx)
		}
	}
}

func (w *OverdueWorker) refresh(ctx context.Context) {
	updated, err := w.engine.RefreshOverdueFlags(ctx, time.Now())
	if err != nil {
		w.logger.Warnw("overdue refresh failed", "error", err, "flipped", len(updated))
		return
	}
	if len(updated) > 0 {
		w.logger.Infow("overdue flags refreshed", "flipped", len(updated))
	}
}
