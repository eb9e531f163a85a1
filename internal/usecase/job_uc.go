// File: internal/usecase/job_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"ai-stream-relay/internal/domain"
	"ai-stream-relay/internal/domain/model"
	"ai-stream-relay/internal/domain/ports/repository"
	"ai-stream-relay/internal/infra/metrics"
	red "ai-stream-relay/internal/infra/redis"
)

// RateLimiter is satisfied by the redis fixed-window limiter.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Compile-time check
var _ JobUseCase = (*jobUC)(nil)

type CreateJobInput struct {
	ConversationID string
	UserID         string
	Source         string
	SessionID      string
	Request        model.RequestData
}

type JobUseCase interface {
	// Create validates and persists a new pending job. At most one active job
	// per conversation is admitted.
	Create(ctx context.Context, in CreateJobInput) (*model.StreamingJob, error)
	Get(ctx context.Context, id string) (*model.StreamingJob, error)
	ActiveForConversation(ctx context.Context, conversationID string) (*model.StreamingJob, error)
	Cancel(ctx context.Context, id string) error
	Stats(ctx context.Context) (map[model.JobStatus]int, error)
	Sweep(ctx context.Context) (int, error)
	ReapStale(ctx context.Context) (int, error)
}

type JobConfig struct {
	TTL              time.Duration
	StaleAfter       time.Duration
	CreateRateLimit  int
	CreateRateWindow time.Duration
}

type jobUC struct {
	jobs    repository.StreamingJobRepository
	limiter RateLimiter
	locker  red.Locker
	cfg     JobConfig
	log     *zerolog.Logger
}

func NewJobUseCase(jobs repository.StreamingJobRepository, limiter RateLimiter, locker red.Locker, cfg JobConfig, log *zerolog.Logger) *jobUC {
	l := log.With().Str("component", "job_uc").Logger()
	return &jobUC{jobs: jobs, limiter: limiter, locker: locker, cfg: cfg, log: &l}
}

func (u *jobUC) Create(ctx context.Context, in CreateJobInput) (*model.StreamingJob, error) {
	if strings.TrimSpace(in.ConversationID) == "" || strings.TrimSpace(in.UserID) == "" {
		return nil, fmt.Errorf("%w: conversation id and user id are required", domain.ErrInvalidArgument)
	}
	if problems := in.Request.Validate(); len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidArgument, strings.Join(problems, "; "))
	}

	if u.limiter != nil {
		ok, err := u.limiter.Allow(ctx, red.UserCreateKey(in.UserID), u.cfg.CreateRateLimit, u.cfg.CreateRateWindow)
		if err != nil {
			// Redis being down must not take job creation with it.
			u.log.Warn().Err(err).Msg("rate limiter unavailable, admitting request")
		} else if !ok {
			return nil, domain.ErrRateLimited
		}
	}

	// The lock closes the window between the duplicate check and the insert
	// when two clients race on the same conversation.
	if u.locker != nil {
		token, err := u.locker.TryLock(ctx, red.ConversationLockKey(in.ConversationID), 10*time.Second)
		if err != nil {
			return nil, err
		}
		defer u.locker.Unlock(ctx, red.ConversationLockKey(in.ConversationID), token)
	}

	if _, err := u.jobs.FindActiveByConversation(ctx, nil, in.ConversationID); err == nil {
		return nil, domain.ErrJobBusy
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	job := model.NewStreamingJob(uuid.NewString(), in.ConversationID, in.UserID, in.Request, u.cfg.TTL)
	job.Source = in.Source
	job.SessionID = in.SessionID
	job.RequestID = ulid.Make().String()

	if err := u.jobs.Create(ctx, nil, job); err != nil {
		return nil, err
	}
	u.log.Info().
		Str("job_id", job.ID).
		Str("conversation_id", job.ConversationID).
		Str("request_id", job.RequestID).
		Str("model", job.ModelID).
		Msg("job created")
	return job, nil
}

func (u *jobUC) Get(ctx context.Context, id string) (*model.StreamingJob, error) {
	return u.jobs.FindByID(ctx, nil, id)
}

func (u *jobUC) ActiveForConversation(ctx context.Context, conversationID string) (*model.StreamingJob, error) {
	return u.jobs.FindActiveByConversation(ctx, nil, conversationID)
}

func (u *jobUC) Cancel(ctx context.Context, id string) error {
	if err := u.jobs.Cancel(ctx, nil, id); err != nil {
		return err
	}
	metrics.IncJob("cancelled")
	u.log.Info().Str("job_id", id).Msg("job cancelled")
	return nil
}

func (u *jobUC) Stats(ctx context.Context) (map[model.JobStatus]int, error) {
	counts, err := u.jobs.CountByStatus(ctx, nil)
	if err != nil {
		return nil, err
	}
	for _, s := range []model.JobStatus{model.JobStatusPending, model.JobStatusProcessing, model.JobStatusStreaming} {
		metrics.SetJobsInFlight(string(s), counts[s])
	}
	return counts, nil
}

func (u *jobUC) Sweep(ctx context.Context) (int, error) {
	n, err := u.jobs.SweepExpired(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.AddJobsSwept(n)
		u.log.Info().Int("count", n).Msg("swept expired jobs")
	}
	return n, nil
}

func (u *jobUC) ReapStale(ctx context.Context) (int, error) {
	n, err := u.jobs.RequeueStale(ctx, u.cfg.StaleAfter)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.AddJobsRequeued(n)
		u.log.Warn().Int("count", n).Msg("requeued stale jobs")
	}
	return n, nil
}
