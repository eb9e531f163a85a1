package ai

import (
	"context"
	"sync"

	"ai-stream-relay/internal/domain/model"
	"ai-stream-relay/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.ModelAdapter = (*limitedAdapter)(nil)

type limitedAdapter struct {
	inner adapter.ModelAdapter
	sem   chan struct{}
}

// NewLimitedAdapter bounds concurrent provider streams. The slot is held for
// the whole life of a stream, released when the stream is closed.
func NewLimitedAdapter(inner adapter.ModelAdapter, maxConcurrent int) adapter.ModelAdapter {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedAdapter{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedAdapter) Provider() string { return l.inner.Provider() }

func (l *limitedAdapter) ListModels(ctx context.Context) ([]string, error) {
	return l.inner.ListModels(ctx)
}

func (l *limitedAdapter) Capabilities(modelID string) (adapter.Capabilities, error) {
	return l.inner.Capabilities(modelID)
}

func (l *limitedAdapter) CountTokens(ctx context.Context, modelID string, messages []model.RequestMessage) (int, error) {
	return l.inner.CountTokens(ctx, modelID, messages)
}

func (l *limitedAdapter) StreamChat(ctx context.Context, req adapter.StreamRequest) (adapter.EventStream, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	inner, err := l.inner.StreamChat(ctx, req)
	if err != nil {
		<-l.sem
		return nil, err
	}
	return &slotStream{EventStream: inner, release: func() { <-l.sem }}, nil
}

// slotStream releases the concurrency slot exactly once on Close.
type slotStream struct {
	adapter.EventStream
	once    sync.Once
	release func()
}

func (s *slotStream) Close() error {
	err := s.EventStream.Close()
	s.once.Do(s.release)
	return err
}
