package ai

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"ai-stream-relay/internal/domain/ports/adapter"
)

var _ adapter.EventStream = (*pushStream)(nil)

// pushStream bridges a producing goroutine and the pull-based EventStream
// port. The producer emits wire events and calls finish exactly once; the
// consumer drains Recv until io.EOF, then reads Final.
type pushStream struct {
	ctx    context.Context
	cancel context.CancelFunc
	ch     chan json.RawMessage

	mu    sync.Mutex
	final adapter.FinalResult
	err   error
}

func newPushStream(parent context.Context) *pushStream {
	ctx, cancel := context.WithCancel(parent)
	return &pushStream{
		ctx:    ctx,
		cancel: cancel,
		ch:     make(chan json.RawMessage, 16),
	}
}

// emit hands one event to the consumer. Returns false when the stream was
// closed underneath the producer, which should then stop.
func (s *pushStream) emit(ev interface{}) bool {
	b, err := json.Marshal(ev)
	if err != nil {
		return false
	}
	select {
	case s.ch <- b:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// finish records the terminal result and unblocks the consumer. Must be
// called exactly once, after the last emit.
func (s *pushStream) finish(final adapter.FinalResult, err error) {
	s.mu.Lock()
	s.final = final
	s.err = err
	s.mu.Unlock()
	close(s.ch)
}

func (s *pushStream) Recv(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.ctx.Done():
		return nil, s.ctx.Err()
	case ev, ok := <-s.ch:
		if !ok {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.err != nil {
				return nil, s.err
			}
			return nil, io.EOF
		}
		return ev, nil
	}
}

func (s *pushStream) Final() (adapter.FinalResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.final, s.err
}

func (s *pushStream) Close() error {
	s.cancel()
	return nil
}

// Wire event shapes. Every event is a JSON object with a string "type".

type startEvent struct {
	Type      string `json:"type"` // "start"
	MessageID string `json:"messageId,omitempty"`
}

type textStartEvent struct {
	Type string `json:"type"` // "text-start"
	ID   string `json:"id"`
}

type textDeltaEvent struct {
	Type  string `json:"type"` // "text-delta"
	ID    string `json:"id"`
	Delta string `json:"delta"`
}

type textEndEvent struct {
	Type string `json:"type"` // "text-end"
	ID   string `json:"id"`
}

type reasoningDeltaEvent struct {
	Type  string `json:"type"` // "reasoning-delta"
	ID    string `json:"id"`
	Delta string `json:"delta"`
}

type finishEvent struct {
	Type string `json:"type"` // "finish"
}

type errorEvent struct {
	Type      string `json:"type"` // "error"
	ErrorText string `json:"errorText"`
}
