// File: internal/infra/web/mock_test.go
package web

import (
	"context"

	"ai-stream-relay/internal/domain"
	"ai-stream-relay/internal/domain/model"
	"ai-stream-relay/internal/domain/ports/adapter"
	"ai-stream-relay/internal/usecase"
)

var _ usecase.JobUseCase = (*mockJobUC)(nil)

type mockJobUC struct {
	CreateFn    func(ctx context.Context, in usecase.CreateJobInput) (*model.StreamingJob, error)
	GetFn       func(ctx context.Context, id string) (*model.StreamingJob, error)
	ActiveFn    func(ctx context.Context, conversationID string) (*model.StreamingJob, error)
	CancelFn    func(ctx context.Context, id string) error
	StatsFn     func(ctx context.Context) (map[model.JobStatus]int, error)
	SweepFn     func(ctx context.Context) (int, error)
	ReapStaleFn func(ctx context.Context) (int, error)
}

func (m *mockJobUC) Create(ctx context.Context, in usecase.CreateJobInput) (*model.StreamingJob, error) {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, in)
	}
	return nil, domain.ErrInvalidArgument
}

func (m *mockJobUC) Get(ctx context.Context, id string) (*model.StreamingJob, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockJobUC) ActiveForConversation(ctx context.Context, conversationID string) (*model.StreamingJob, error) {
	if m.ActiveFn != nil {
		return m.ActiveFn(ctx, conversationID)
	}
	return nil, domain.ErrNotFound
}

func (m *mockJobUC) Cancel(ctx context.Context, id string) error {
	if m.CancelFn != nil {
		return m.CancelFn(ctx, id)
	}
	return domain.ErrNotFound
}

func (m *mockJobUC) Stats(ctx context.Context) (map[model.JobStatus]int, error) {
	if m.StatsFn != nil {
		return m.StatsFn(ctx)
	}
	return map[model.JobStatus]int{}, nil
}

func (m *mockJobUC) Sweep(ctx context.Context) (int, error) {
	if m.SweepFn != nil {
		return m.SweepFn(ctx)
	}
	return 0, nil
}

func (m *mockJobUC) ReapStale(ctx context.Context) (int, error) {
	if m.ReapStaleFn != nil {
		return m.ReapStaleFn(ctx)
	}
	return 0, nil
}

var _ usecase.ProviderRegistry = (*mockRegistry)(nil)

type mockRegistry struct {
	ResolveFn func(modelID string) string
	ForFn     func(name string) (adapter.ModelAdapter, bool)
}

func (m *mockRegistry) ResolveProvider(modelID string) string {
	if m.ResolveFn != nil {
		return m.ResolveFn(modelID)
	}
	return ""
}

func (m *mockRegistry) ForProvider(name string) (adapter.ModelAdapter, bool) {
	if m.ForFn != nil {
		return m.ForFn(name)
	}
	return nil, false
}
