package core

// scheduler.go runs background maintenance for the Service.
//
// The history pruner deletes import runs older than the retention window.
// It runs once on start and then on every tick until its context ends.
// A failed pass is logged and retried on the next tick.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrHistoryUnsupported is returned when the store cannot prune history.
var ErrHistoryUnsupported = errors.New("store does not support import history pruning")

// HistoryRetention configures StartHistoryPruner.
type HistoryRetention struct {
	MaxAge   time.Duration // zero disables pruning
	Interval time.Duration
}

// StartHistoryPruner blocks until ctx ends, pruning import history every
// cfg.Interval. It returns at once when pruning is disabled or the store
// cannot prune.
func (s *Service) StartHistoryPruner(ctx context.Context, cfg HistoryRetention) {
	if cfg.MaxAge <= 0 || cfg.Interval <= 0 {
		slog.Info("import history pruning disabled")
		return
	}
	if _, ok := s.store.(ImportHistoryPruner); !ok {
		slog.Info("store does not support import history pruning")
		return
	}

	slog.Info("history pruner started",
		"max_age", cfg.MaxAge.String(),
		"interval", cfg.Interval.String(),
	)

	s.runPrune(ctx, cfg.MaxAge)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("history pruner stopped")
			return
		case <-ticker.C:
			s.runPrune(ctx, cfg.MaxAge)
		}
	}
}

func (s *Service) runPrune(ctx context.Context, maxAge time.Duration) {
	start := time.Now()
	n, err := s.PruneImportHistory(ctx, maxAge)
	if err != nil {
		slog.Error("history prune failed", "error", err)
		return
	}
	slog.Info("pruned import history",
		"runs_deleted", n,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// PruneImportHistory deletes runs that started more than maxAge ago.
func (s *Service) PruneImportHistory(ctx context.Context, maxAge time.Duration) (int, error) {
	pruner, ok := s.store.(ImportHistoryPruner)
	if !ok {
		return 0, ErrHistoryUnsupported
	}
	cutoff := s.clock.Now().Add(-maxAge)
	n, err := pruner.PruneImportRuns(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune import runs before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return n, nil
}
