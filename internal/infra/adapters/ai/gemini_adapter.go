// File: internal/infra/adapters/ai/gemini_adapter.go
package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/genai"

	"ai-stream-relay/internal/domain/model"
	"ai-stream-relay/internal/domain/ports/adapter"
)

var _ adapter.ModelAdapter = (*GeminiAdapter)(nil)

type GeminiAdapter struct {
	client       *genai.Client
	defaultModel string
}

// NewGeminiAdapter creates a Gemini adapter using the official SDK.
func NewGeminiAdapter(ctx context.Context, apiKey, defaultModel string) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	if defaultModel == "" {
		defaultModel = "gemini-2.0-flash"
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &GeminiAdapter{client: c, defaultModel: defaultModel}, nil
}

func (g *GeminiAdapter) Provider() string { return "gemini" }

func (g *GeminiAdapter) ListModels(ctx context.Context) ([]string, error) {
	models := g.client.Models.All(ctx)
	var out []string
	for m := range models {
		if m.Name != "" {
			out = append(out, m.Name)
		}
	}
	if len(out) == 0 && g.defaultModel != "" {
		// Best-effort fallback to default
		out = []string{g.defaultModel}
	}
	return out, nil
}

func (g *GeminiAdapter) Capabilities(modelID string) (adapter.Capabilities, error) {
	caps := adapter.Capabilities{
		SupportsTools: true,
		StreamTimeout: 2 * time.Minute,
		LatencyClass:  "standard",
	}
	if strings.Contains(strings.ToLower(modelID), "flash") {
		caps.LatencyClass = "fast"
	}
	if strings.Contains(strings.ToLower(modelID), "thinking") {
		caps.SupportsReasoning = true
		caps.LatencyClass = "slow"
		caps.StreamTimeout = 5 * time.Minute
	}
	return caps, nil
}

func (g *GeminiAdapter) CountTokens(ctx context.Context, modelID string, messages []model.RequestMessage) (int, error) {
	contents := toGenAIHistory(messages)
	// Per docs, CountTokens takes []*genai.Content. (NOT []genai.Part)
	// https://ai.google.dev/gemini-api/docs/tokens?hl=en#go
	resp, err := g.client.Models.CountTokens(ctx, modelOrDefault(modelID, g.defaultModel), contents, nil)
	if err != nil {
		return 0, err
	}
	return int(resp.TotalTokens), nil
}

func (g *GeminiAdapter) StreamChat(ctx context.Context, req adapter.StreamRequest) (adapter.EventStream, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("gemini: no messages")
	}

	cfg := &genai.GenerateContentConfig{}
	if req.Options.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.Options.MaxTokens)
	}
	if req.Options.Temperature != nil {
		t := float32(*req.Options.Temperature)
		cfg.Temperature = &t
	}
	if req.Options.TopP != nil {
		p := float32(*req.Options.TopP)
		cfg.TopP = &p
	}

	modelID := modelOrDefault(req.Model, g.defaultModel)
	contents := toGenAIHistory(req.Messages)

	s := newPushStream(ctx)
	go g.run(s, modelID, contents, cfg)
	return s, nil
}

func (g *GeminiAdapter) run(s *pushStream, modelID string, contents []*genai.Content, cfg *genai.GenerateContentConfig) {
	const blockID = "txt-0"
	var (
		started bool
		text    strings.Builder
		usage   model.Usage
		finish  string
	)

	for resp, err := range g.client.Models.GenerateContentStream(s.ctx, modelID, contents, cfg) {
		if err != nil {
			s.emit(errorEvent{Type: "error", ErrorText: err.Error()})
			s.finish(adapter.FinalResult{}, err)
			return
		}
		if resp.UsageMetadata != nil {
			usage.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
			usage.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
			usage.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			continue
		}
		cand := resp.Candidates[0]
		if cand.FinishReason != "" {
			finish = strings.ToLower(string(cand.FinishReason))
		}
		for _, part := range cand.Content.Parts {
			if part.Text == "" {
				continue
			}
			if !started {
				started = true
				if !s.emit(startEvent{Type: "start"}) {
					return
				}
				if !s.emit(textStartEvent{Type: "text-start", ID: blockID}) {
					return
				}
			}
			if part.Thought {
				if !s.emit(reasoningDeltaEvent{Type: "reasoning-delta", ID: blockID, Delta: part.Text}) {
					return
				}
				continue
			}
			text.WriteString(part.Text)
			if !s.emit(textDeltaEvent{Type: "text-delta", ID: blockID, Delta: part.Text}) {
				return
			}
		}
	}

	if started {
		if !s.emit(textEndEvent{Type: "text-end", ID: blockID}) {
			return
		}
	}
	s.emit(finishEvent{Type: "finish"})
	s.finish(adapter.FinalResult{Text: text.String(), Usage: usage, FinishReason: finish}, nil)
}

func toGenAIHistory(msgs []model.RequestMessage) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := genai.RoleUser
		switch strings.ToLower(m.Role) {
		case "assistant", "model":
			role = genai.RoleModel
		case "system":
			// Gemini has no separate "system" role in history; treat it as a
			// user instruction.
			role = genai.RoleUser
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	return out
}

func modelOrDefault(modelID, def string) string {
	if strings.TrimSpace(modelID) != "" {
		return modelID
	}
	return def
}
