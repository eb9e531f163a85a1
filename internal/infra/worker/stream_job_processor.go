// File: internal/infra/worker/stream_job_processor.go
package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"ai-stream-relay/internal/domain/ports/repository"
	"ai-stream-relay/internal/infra/metrics"
	"ai-stream-relay/internal/usecase"
)

// StreamJobProcessor claims pending jobs in batches and hands each one to the
// pool. One task drives one job from claim to terminal status.
type StreamJobProcessor struct {
	jobs     repository.StreamingJobRepository
	streamUC usecase.StreamUseCase

	claimBatch   int
	pollInterval time.Duration
	log          *zerolog.Logger
}

func NewStreamJobProcessor(
	jobs repository.StreamingJobRepository,
	streamUC usecase.StreamUseCase,
	claimBatch int,
	pollInterval time.Duration,
	log *zerolog.Logger,
) *StreamJobProcessor {
	if claimBatch <= 0 {
		claimBatch = 1
	}
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	l := log.With().Str("component", "stream_job_processor").Logger()
	return &StreamJobProcessor{
		jobs:         jobs,
		streamUC:     streamUC,
		claimBatch:   claimBatch,
		pollInterval: pollInterval,
		log:          &l,
	}
}

// Start runs the claim loop. This should be run in a goroutine.
func (p *StreamJobProcessor) Start(ctx context.Context, pool *Pool) {
	p.log.Info().Msg("stream job processor started")
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("stream job processor stopping")
			return
		case <-ticker.C:
			p.claimAndDispatch(ctx, pool)
		}
	}
}

func (p *StreamJobProcessor) claimAndDispatch(ctx context.Context, pool *Pool) {
	claimed, err := p.jobs.ClaimNext(ctx, p.claimBatch)
	if err != nil {
		p.log.Error().Err(err).Msg("claim failed")
		return
	}
	metrics.ObserveClaimBatch(len(claimed))

	for _, job := range claimed {
		job := job
		submitErr := pool.Submit(func(ctx context.Context) error {
			start := time.Now()
			err := p.streamUC.Process(ctx, job)
			p.log.Info().
				Str("job_id", job.ID).
				Dur("duration", time.Since(start)).
				Err(err).
				Msg("job finished")
			return nil
		})
		if submitErr != nil {
			// Queue saturated: return the claim so another tick retries it.
			p.log.Warn().Str("job_id", job.ID).Msg("worker queue full, job left for reaper")
		}
	}
}
