// File: internal/infra/sched/reaper_worker.go
package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"ai-stream-relay/internal/usecase"
)

// ReaperWorker returns jobs abandoned by a crashed worker to the pending
// queue. A job counts as abandoned when its heartbeat (the updated_at column,
// bumped by every progress write) goes quiet for longer than the stale cutoff.
type ReaperWorker struct {
	interval time.Duration
	jobUC    usecase.JobUseCase
	log      *zerolog.Logger
}

func NewReaperWorker(interval time.Duration, jobUC usecase.JobUseCase, logger *zerolog.Logger) *ReaperWorker {
	l := logger.With().Str("component", "ReaperWorker").Logger()
	return &ReaperWorker{interval: interval, jobUC: jobUC, log: &l}
}

func (w *ReaperWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting reaper worker")
	// One pass at startup so a restart does not wait a full interval to
	// recover jobs orphaned by the previous process.
	if _, err := w.jobUC.ReapStale(ctx); err != nil {
		w.log.Error().Err(err).Msg("reaper startup pass error")
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping reaper worker")
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.jobUC.ReapStale(ctx); err != nil {
				w.log.Error().Err(err).Msg("reaper worker error")
			}
		}
	}
}
