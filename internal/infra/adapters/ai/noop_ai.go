package ai

import (
	"context"
	"strings"
	"time"

	"ai-stream-relay/internal/domain/model"
	"ai-stream-relay/internal/domain/ports/adapter"
)

var _ adapter.ModelAdapter = (*NoopAdapter)(nil)

// NoopAdapter streams a canned reply for local/dev runs without provider
// credentials.
type NoopAdapter struct {
	reply string
	delay time.Duration
}

func NewNoopAdapter() *NoopAdapter {
	return &NoopAdapter{
		reply: "This is a noop streaming response.",
		delay: 50 * time.Millisecond,
	}
}

func (a *NoopAdapter) Provider() string { return "noop" }

func (a *NoopAdapter) ListModels(ctx context.Context) ([]string, error) {
	return []string{"noop-model"}, nil
}

func (a *NoopAdapter) Capabilities(modelID string) (adapter.Capabilities, error) {
	return adapter.Capabilities{
		StreamTimeout: time.Minute,
		LatencyClass:  "fast",
	}, nil
}

func (a *NoopAdapter) CountTokens(ctx context.Context, modelID string, messages []model.RequestMessage) (int, error) {
	n := 0
	for _, m := range messages {
		n += len(strings.Fields(m.Content))
	}
	return n, nil
}

func (a *NoopAdapter) StreamChat(ctx context.Context, req adapter.StreamRequest) (adapter.EventStream, error) {
	s := newPushStream(ctx)
	go func() {
		const blockID = "txt-0"
		words := strings.SplitAfter(a.reply, " ")

		if !s.emit(startEvent{Type: "start"}) {
			return
		}
		if !s.emit(textStartEvent{Type: "text-start", ID: blockID}) {
			return
		}
		for _, w := range words {
			select {
			case <-time.After(a.delay):
			case <-s.ctx.Done():
				return
			}
			if !s.emit(textDeltaEvent{Type: "text-delta", ID: blockID, Delta: w}) {
				return
			}
		}
		if !s.emit(textEndEvent{Type: "text-end", ID: blockID}) {
			return
		}
		s.emit(finishEvent{Type: "finish"})
		s.finish(adapter.FinalResult{
			Text:         a.reply,
			Usage:        model.Usage{CompletionTokens: len(words), TotalTokens: len(words)},
			FinishReason: "stop",
		}, nil)
	}()
	return s, nil
}
