package ai_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"ai-stream-relay/internal/domain/model"
	"ai-stream-relay/internal/domain/ports/adapter"
	ai "ai-stream-relay/internal/infra/adapters/ai"
)

type stubAdapter struct {
	name        string
	ctN         int
	scN         int
	lastModelCT string
	lastModelSC string
}

func (s *stubAdapter) Provider() string { return s.name }
func (s *stubAdapter) ListModels(ctx context.Context) ([]string, error) {
	return []string{s.name + "-model"}, nil
}
func (s *stubAdapter) Capabilities(modelID string) (adapter.Capabilities, error) {
	return adapter.Capabilities{LatencyClass: "fast"}, nil
}
func (s *stubAdapter) CountTokens(ctx context.Context, modelID string, messages []model.RequestMessage) (int, error) {
	s.ctN++
	s.lastModelCT = modelID
	return 1, nil
}
func (s *stubAdapter) StreamChat(ctx context.Context, req adapter.StreamRequest) (adapter.EventStream, error) {
	s.scN++
	s.lastModelSC = req.Model
	return nil, errors.New("stub")
}

func TestRouting_ExplicitMap_Heuristics_And_Fallback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	open := &stubAdapter{name: "openai"}
	gem := &stubAdapter{name: "gemini"}

	m := ai.NewMultiAdapter(
		"openai",
		map[string]adapter.ModelAdapter{"openai": open, "gemini": gem},
		map[string]string{"custom-x": "gemini"},
	)

	// explicit map wins
	_, _ = m.CountTokens(ctx, "custom-x", nil)
	if gem.ctN != 1 || open.ctN != 0 {
		t.Fatalf("explicit map should route to gemini, got open:%d gem:%d", open.ctN, gem.ctN)
	}
	open.ctN, gem.ctN = 0, 0

	// gpt-* -> openai
	_, _ = m.StreamChat(ctx, adapter.StreamRequest{Model: "gpt-4o-mini"})
	if open.scN != 1 || gem.scN != 0 {
		t.Fatalf("heuristic gpt-* should go openai")
	}
	open.scN, gem.scN = 0, 0

	// gemini-* -> gemini
	_, _ = m.StreamChat(ctx, adapter.StreamRequest{Model: "gemini-2.0-flash"})
	if gem.scN != 1 || open.scN != 0 {
		t.Fatalf("heuristic gemini-* should go gemini")
	}

	// unknown -> default provider (openai)
	open.ctN, gem.ctN = 0, 0
	_, _ = m.CountTokens(ctx, "unknown", nil)
	if open.ctN != 1 || gem.ctN != 0 {
		t.Fatalf("unknown model should go to default provider (openai)")
	}

	if got := m.ResolveProvider("custom-x"); got != "gemini" {
		t.Fatalf("ResolveProvider(custom-x) = %q", got)
	}
}

func TestNoopAdapter_EmitsWellFormedEventSequence(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	a := ai.NewNoopAdapter()
	strm, err := a.StreamChat(ctx, adapter.StreamRequest{
		Model:    "noop-model",
		Messages: []model.RequestMessage{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("StreamChat failed: %v", err)
	}
	defer strm.Close()

	var types []string
	for {
		raw, err := strm.Recv(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Recv failed: %v", err)
		}
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &head); err != nil || head.Type == "" {
			t.Fatalf("event %q is not a tagged object: %v", raw, err)
		}
		types = append(types, head.Type)
	}

	if len(types) < 4 || types[0] != "start" || types[1] != "text-start" {
		t.Fatalf("unexpected event sequence start: %v", types)
	}
	if types[len(types)-1] != "finish" || types[len(types)-2] != "text-end" {
		t.Fatalf("unexpected event sequence end: %v", types)
	}

	final, err := strm.Final()
	if err != nil {
		t.Fatalf("Final failed: %v", err)
	}
	if final.Text == "" || final.FinishReason != "stop" {
		t.Fatalf("final = %+v", final)
	}
}
