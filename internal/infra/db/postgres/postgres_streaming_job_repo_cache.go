package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ai-stream-relay/internal/domain/model"
	"ai-stream-relay/internal/domain/ports/repository"
	"ai-stream-relay/internal/infra/metrics"
	red "ai-stream-relay/internal/infra/redis"

	"github.com/go-redis/redis/v8"
)

var _ repository.StreamingJobRepository = (*jobRepoCacheDecorator)(nil)

// jobRepoCacheDecorator absorbs poll traffic on FindByID. The TTL is short
// because a streaming job mutates on every progress write; stale reads only
// delay the poller by one interval.
type jobRepoCacheDecorator struct {
	inner repository.StreamingJobRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewJobRepoCacheDecorator(inner repository.StreamingJobRepository, cache red.RedisClient) repository.StreamingJobRepository {
	return &jobRepoCacheDecorator{
		inner: inner,
		cache: cache,
		ttl:   1 * time.Second,
	}
}

func jobKey(id string) string { return fmt.Sprintf("job:%s", id) }

func (d *jobRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.StreamingJob, error) {
	key := jobKey(id)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		metrics.IncCacheRequest("job", "hit")
		var job model.StreamingJob
		if json.Unmarshal([]byte(val), &job) == nil {
			return &job, nil
		}
	}
	// Redis down degrades to direct reads, counted apart from plain misses.
	result := "miss"
	if err != nil && err != redis.Nil {
		result = "error"
	}
	metrics.IncCacheRequest("job", result)
	job, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if job != nil {
		bytes, _ := json.Marshal(job)
		d.cache.Set(ctx, key, bytes, d.ttl)
	}
	return job, nil
}

// Write operations invalidate before delegating.

func (d *jobRepoCacheDecorator) Create(ctx context.Context, tx repository.Tx, job *model.StreamingJob) error {
	d.cache.Del(ctx, jobKey(job.ID))
	return d.inner.Create(ctx, tx, job)
}

func (d *jobRepoCacheDecorator) AppendProgress(ctx context.Context, tx repository.Tx, id, content string, progress model.ProgressInfo) error {
	d.cache.Del(ctx, jobKey(id))
	return d.inner.AppendProgress(ctx, tx, id, content, progress)
}

func (d *jobRepoCacheDecorator) Complete(ctx context.Context, tx repository.Tx, id string, resp model.ResponseData) error {
	d.cache.Del(ctx, jobKey(id))
	return d.inner.Complete(ctx, tx, id, resp)
}

func (d *jobRepoCacheDecorator) Fail(ctx context.Context, tx repository.Tx, id, errorMessage string) error {
	d.cache.Del(ctx, jobKey(id))
	return d.inner.Fail(ctx, tx, id, errorMessage)
}

func (d *jobRepoCacheDecorator) Cancel(ctx context.Context, tx repository.Tx, id string) error {
	d.cache.Del(ctx, jobKey(id))
	return d.inner.Cancel(ctx, tx, id)
}

// Pass-throughs. Claimed and swept rows are never hot in the poll cache.

func (d *jobRepoCacheDecorator) FindActiveByConversation(ctx context.Context, tx repository.Tx, conversationID string) (*model.StreamingJob, error) {
	return d.inner.FindActiveByConversation(ctx, tx, conversationID)
}

func (d *jobRepoCacheDecorator) ClaimNext(ctx context.Context, limit int) ([]*model.StreamingJob, error) {
	return d.inner.ClaimNext(ctx, limit)
}

func (d *jobRepoCacheDecorator) SweepExpired(ctx context.Context) (int, error) {
	return d.inner.SweepExpired(ctx)
}

func (d *jobRepoCacheDecorator) RequeueStale(ctx context.Context, cutoff time.Duration) (int, error) {
	return d.inner.RequeueStale(ctx, cutoff)
}

func (d *jobRepoCacheDecorator) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.JobStatus]int, error) {
	return d.inner.CountByStatus(ctx, tx)
}
