// File: internal/infra/sched/sweep_worker.go
package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"ai-stream-relay/internal/usecase"
)

// SweepWorker periodically deletes terminal jobs whose retention window has
// passed.
type SweepWorker struct {
	interval time.Duration
	jobUC    usecase.JobUseCase
	log      *zerolog.Logger
}

func NewSweepWorker(interval time.Duration, jobUC usecase.JobUseCase, logger *zerolog.Logger) *SweepWorker {
	l := logger.With().Str("component", "SweepWorker").Logger()
	return &SweepWorker{interval: interval, jobUC: jobUC, log: &l}
}

func (w *SweepWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting sweep worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping sweep worker")
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.jobUC.Sweep(ctx); err != nil {
				w.log.Error().Err(err).Msg("sweep worker error")
			}
		}
	}
}
