//go:build !integration

package postgres

import (
	"context"
	"time"

	"ai-stream-relay/internal/domain/model"
	"ai-stream-relay/internal/domain/ports/repository"
	red "ai-stream-relay/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

// mockInnerJobRepo mocks the database repository that the job decorator wraps.
type mockInnerJobRepo struct {
	CreateFunc                   func(ctx context.Context, tx repository.Tx, job *model.StreamingJob) error
	FindByIDFunc                 func(ctx context.Context, tx repository.Tx, id string) (*model.StreamingJob, error)
	FindActiveByConversationFunc func(ctx context.Context, tx repository.Tx, conversationID string) (*model.StreamingJob, error)
	ClaimNextFunc                func(ctx context.Context, limit int) ([]*model.StreamingJob, error)
	AppendProgressFunc           func(ctx context.Context, tx repository.Tx, id, content string, progress model.ProgressInfo) error
	CompleteFunc                 func(ctx context.Context, tx repository.Tx, id string, resp model.ResponseData) error
	FailFunc                     func(ctx context.Context, tx repository.Tx, id, errorMessage string) error
	CancelFunc                   func(ctx context.Context, tx repository.Tx, id string) error
	SweepExpiredFunc             func(ctx context.Context) (int, error)
	RequeueStaleFunc             func(ctx context.Context, cutoff time.Duration) (int, error)
	CountByStatusFunc            func(ctx context.Context, tx repository.Tx) (map[model.JobStatus]int, error)
}

func (m *mockInnerJobRepo) Create(ctx context.Context, tx repository.Tx, job *model.StreamingJob) error {
	return m.CreateFunc(ctx, tx, job)
}
func (m *mockInnerJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.StreamingJob, error) {
	return m.FindByIDFunc(ctx, tx, id)
}
func (m *mockInnerJobRepo) FindActiveByConversation(ctx context.Context, tx repository.Tx, conversationID string) (*model.StreamingJob, error) {
	return m.FindActiveByConversationFunc(ctx, tx, conversationID)
}
func (m *mockInnerJobRepo) ClaimNext(ctx context.Context, limit int) ([]*model.StreamingJob, error) {
	return m.ClaimNextFunc(ctx, limit)
}
func (m *mockInnerJobRepo) AppendProgress(ctx context.Context, tx repository.Tx, id, content string, progress model.ProgressInfo) error {
	return m.AppendProgressFunc(ctx, tx, id, content, progress)
}
func (m *mockInnerJobRepo) Complete(ctx context.Context, tx repository.Tx, id string, resp model.ResponseData) error {
	return m.CompleteFunc(ctx, tx, id, resp)
}
func (m *mockInnerJobRepo) Fail(ctx context.Context, tx repository.Tx, id, errorMessage string) error {
	return m.FailFunc(ctx, tx, id, errorMessage)
}
func (m *mockInnerJobRepo) Cancel(ctx context.Context, tx repository.Tx, id string) error {
	return m.CancelFunc(ctx, tx, id)
}
func (m *mockInnerJobRepo) SweepExpired(ctx context.Context) (int, error) {
	return m.SweepExpiredFunc(ctx)
}
func (m *mockInnerJobRepo) RequeueStale(ctx context.Context, cutoff time.Duration) (int, error) {
	return m.RequeueStaleFunc(ctx, cutoff)
}
func (m *mockInnerJobRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.JobStatus]int, error) {
	return m.CountByStatusFunc(ctx, tx)
}

// mockRedisClient mocks our Redis client wrapper.
type mockRedisClient struct {
	GetFunc    func(ctx context.Context, key string) (string, error)
	SetFunc    func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc    func(ctx context.Context, keys ...string) error
	PingFunc   func(ctx context.Context) error
	IncrFunc   func(ctx context.Context, key string) (int64, error)
	ExpireFunc func(ctx context.Context, key string, expiration time.Duration) error
	CloseFunc  func() error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Ping(ctx context.Context) error { return m.PingFunc(ctx) }
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	return m.IncrFunc(ctx, key)
}
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return m.ExpireFunc(ctx, key, expiration)
}
func (m *mockRedisClient) Close() error { return m.CloseFunc() }
