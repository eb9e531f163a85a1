//go:build !integration

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"ai-stream-relay/internal/domain/model"
	"ai-stream-relay/internal/domain/ports/repository"

	"github.com/go-redis/redis/v8"
)

func TestJobRepoCacheDecorator(t *testing.T) {
	ctx := context.Background()
	job := &model.StreamingJob{ID: "job-123", Status: model.JobStatusStreaming, PartialContent: "partial"}
	jobJSON, _ := json.Marshal(job)

	t.Run("FindByID should return from cache on hit", func(t *testing.T) {
		mockRedis := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) {
				return string(jobJSON), nil // Simulate cache hit
			},
		}
		innerRepoCalled := false
		mockInnerRepo := &mockInnerJobRepo{
			FindByIDFunc: func(ctx context.Context, tx repository.Tx, id string) (*model.StreamingJob, error) {
				innerRepoCalled = true // This should not be called
				return nil, nil
			},
		}

		decorator := NewJobRepoCacheDecorator(mockInnerRepo, mockRedis)

		result, err := decorator.FindByID(ctx, nil, "job-123")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if innerRepoCalled {
			t.Error("inner repository should not be called on a cache hit")
		}
		if result == nil || result.ID != "job-123" || result.PartialContent != "partial" {
			t.Error("did not return the correct job from cache")
		}
	})

	t.Run("FindByID should fall through and populate on miss", func(t *testing.T) {
		var setKey string
		mockRedis := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) {
				return "", redis.Nil
			},
			SetFunc: func(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
				setKey = key
				return nil
			},
		}
		mockInnerRepo := &mockInnerJobRepo{
			FindByIDFunc: func(ctx context.Context, tx repository.Tx, id string) (*model.StreamingJob, error) {
				return job, nil
			},
		}

		decorator := NewJobRepoCacheDecorator(mockInnerRepo, mockRedis)

		result, err := decorator.FindByID(ctx, nil, "job-123")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result == nil || result.ID != "job-123" {
			t.Error("did not return the job from the inner repository")
		}
		if setKey != "job:job-123" {
			t.Errorf("cache was not populated, set key = %q", setKey)
		}
	})

	t.Run("FindByID should degrade to a direct read when redis is down", func(t *testing.T) {
		mockRedis := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) {
				return "", errors.New("connection refused")
			},
			SetFunc: func(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
				return errors.New("connection refused")
			},
		}
		mockInnerRepo := &mockInnerJobRepo{
			FindByIDFunc: func(ctx context.Context, tx repository.Tx, id string) (*model.StreamingJob, error) {
				return job, nil
			},
		}

		decorator := NewJobRepoCacheDecorator(mockInnerRepo, mockRedis)

		result, err := decorator.FindByID(ctx, nil, "job-123")
		if err != nil {
			t.Fatalf("redis outage must not fail the read, got %v", err)
		}
		if result == nil || result.ID != "job-123" {
			t.Error("did not return the job from the inner repository")
		}
	})

	t.Run("AppendProgress should invalidate the cache", func(t *testing.T) {
		var deletedKeys []string
		mockRedis := &mockRedisClient{
			DelFunc: func(ctx context.Context, keys ...string) error {
				deletedKeys = append(deletedKeys, keys...)
				return nil
			},
		}
		mockInnerRepo := &mockInnerJobRepo{
			AppendProgressFunc: func(ctx context.Context, tx repository.Tx, id, content string, progress model.ProgressInfo) error {
				return nil
			},
		}

		decorator := NewJobRepoCacheDecorator(mockInnerRepo, mockRedis)

		if err := decorator.AppendProgress(ctx, nil, "job-123", "grown", model.ProgressInfo{}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(deletedKeys) != 1 || deletedKeys[0] != "job:job-123" {
			t.Fatalf("expected job key invalidation, got %v", deletedKeys)
		}
	})

	t.Run("Complete should invalidate the cache", func(t *testing.T) {
		var deletedKeys []string
		mockRedis := &mockRedisClient{
			DelFunc: func(ctx context.Context, keys ...string) error {
				deletedKeys = append(deletedKeys, keys...)
				return nil
			},
		}
		mockInnerRepo := &mockInnerJobRepo{
			CompleteFunc: func(ctx context.Context, tx repository.Tx, id string, resp model.ResponseData) error {
				return nil
			},
		}

		decorator := NewJobRepoCacheDecorator(mockInnerRepo, mockRedis)

		if err := decorator.Complete(ctx, nil, "job-123", model.ResponseData{Text: "done"}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(deletedKeys) != 1 {
			t.Fatalf("expected 1 key to be deleted, but got %d", len(deletedKeys))
		}
	})
}
