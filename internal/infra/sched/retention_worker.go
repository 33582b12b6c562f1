// File: internal/infra/sched/retention_worker.go
package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"ai-chat-session-manager/internal/domain/ports/repository"
	"ai-chat-session-manager/internal/infra/metrics"
)

// RetentionWorker periodically deletes conversations untouched for longer
// than maxAge. With maxAge zero the worker refuses to run; retention is
// opt-in.
type RetentionWorker struct {
	interval time.Duration
	maxAge   time.Duration
	store    repository.SessionRepository
	log      *zerolog.Logger
}

func NewRetentionWorker(interval, maxAge time.Duration, store repository.SessionRepository, logger *zerolog.Logger) *RetentionWorker {
	retLog := logger.With().Str("component", "RetentionWorker").Logger()
	if interval <= 0 {
		interval = time.Hour
	}
	return &RetentionWorker{
		interval: interval,
		maxAge:   maxAge,
		store:    store,
		log:      &retLog,
	}
}

func (w *RetentionWorker) Run(ctx context.Context) error {
	if w.maxAge <= 0 {
		w.log.Info().Msg("Retention disabled, worker idle")
		<-ctx.Done()
		return ctx.Err()
	}
	w.log.Info().Dur("max_age", w.maxAge).Msg("Starting retention worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping retention worker")
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().Add(-w.maxAge)
			n, err := w.store.PruneStale(ctx, cutoff)
			if err != nil {
				w.log.Error().Err(err).Msg("retention sweep error")
				continue
			}
			if n > 0 {
				metrics.AddPrunedSessions(n)
				w.log.Info().Int64("count", n).Msg("stale sessions pruned")
			}
		}
	}
}
