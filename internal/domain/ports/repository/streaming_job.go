package repository

import (
	"context"
	"time"

	"ai-stream-relay/internal/domain/model"
)

// StreamingJobRepository is the durable job store contract.
//
// Claim semantics: ClaimNext must never hand the same job to two concurrent
// callers (SELECT ... FOR UPDATE SKIP LOCKED or an equivalent atomic claim).
// AppendProgress must be idempotent under replay: content is the full
// accumulated snapshot and the store only ever grows it, never shrinks it.
type StreamingJobRepository interface {
	Create(ctx context.Context, tx Tx, job *model.StreamingJob) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.StreamingJob, error)
	FindActiveByConversation(ctx context.Context, tx Tx, conversationID string) (*model.StreamingJob, error)

	// ClaimNext atomically moves up to limit pending jobs to processing and
	// returns them. Returns an empty slice when nothing is claimable.
	ClaimNext(ctx context.Context, limit int) ([]*model.StreamingJob, error)

	// AppendProgress writes the full accumulated content snapshot plus
	// advisory progress. The first call moves the job processing -> streaming.
	// Doubles as the worker heartbeat (bumps updated_at).
	AppendProgress(ctx context.Context, tx Tx, id, content string, progress model.ProgressInfo) error

	Complete(ctx context.Context, tx Tx, id string, resp model.ResponseData) error
	Fail(ctx context.Context, tx Tx, id, errorMessage string) error

	// Cancel is legal only from non-terminal states; domain.ErrConflict
	// otherwise.
	Cancel(ctx context.Context, tx Tx, id string) error

	// SweepExpired deletes terminal jobs past their expires_at.
	SweepExpired(ctx context.Context) (int, error)

	// RequeueStale returns claimed jobs whose last heartbeat is older than
	// cutoff back to pending so another worker can pick them up.
	RequeueStale(ctx context.Context, cutoff time.Duration) (int, error)

	CountByStatus(ctx context.Context, tx Tx) (map[model.JobStatus]int, error)
}
