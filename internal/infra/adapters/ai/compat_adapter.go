package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"ai-stream-relay/internal/domain/model"
	"ai-stream-relay/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.ModelAdapter = (*CompatAdapter)(nil)

// CompatAdapter speaks to any OpenAI-compatible gateway over raw HTTP with
// SSE streaming. It covers self-hosted and proxy deployments where the
// official SDK's base-url assumptions do not hold.
type CompatAdapter struct {
	apiKey string
	base   string // e.g., https://gateway.example.com/openai/v1
	model  string
	client *http.Client
}

func NewCompatAdapter(apiKey, defaultModel, base string) (*CompatAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("compat api key empty")
	}
	if base == "" {
		return nil, errors.New("compat base url empty")
	}
	if defaultModel == "" {
		defaultModel = "gpt-4o-mini"
	}
	return &CompatAdapter{
		apiKey: apiKey,
		base:   strings.TrimRight(base, "/"),
		model:  defaultModel,
		client: &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

func (c *CompatAdapter) Provider() string { return "compat" }

func (c *CompatAdapter) ListModels(ctx context.Context) ([]string, error) {
	return []string{c.model}, nil
}

func (c *CompatAdapter) Capabilities(modelID string) (adapter.Capabilities, error) {
	// A gateway fronts unknown hardware; assume the slow path.
	return adapter.Capabilities{
		StreamTimeout: 4 * time.Minute,
		LatencyClass:  "slow",
	}, nil
}

func (c *CompatAdapter) CountTokens(ctx context.Context, modelID string, messages []model.RequestMessage) (int, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return 0, err
	}
	total := 0
	for _, m := range messages {
		total += len(enc.Encode(m.Content, nil, nil)) + 4
	}
	return total + 2, nil
}

type compatChunk struct {
	ID      string `json:"id"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (c *CompatAdapter) StreamChat(ctx context.Context, req adapter.StreamRequest) (adapter.EventStream, error) {
	modelID := req.Model
	if modelID == "" {
		modelID = c.model
	}

	type wireMessage struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	msgs := make([]wireMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, wireMessage{Role: m.Role, Content: m.Content})
	}

	body := map[string]interface{}{
		"model":          modelID,
		"messages":       msgs,
		"stream":         true,
		"stream_options": map[string]bool{"include_usage": true},
	}
	if req.Options.Temperature != nil {
		body["temperature"] = *req.Options.Temperature
	}
	if req.Options.TopP != nil {
		body["top_p"] = *req.Options.TopP
	}
	if req.Options.MaxTokens > 0 {
		body["max_tokens"] = req.Options.MaxTokens
	}

	b, _ := json.Marshal(body)

	s := newPushStream(ctx)
	httpReq, err := http.NewRequestWithContext(s.ctx, http.MethodPost, c.base+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		s.cancel()
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		s.cancel()
		return nil, err
	}
	if resp.StatusCode >= 300 {
		resp.Body.Close()
		s.cancel()
		return nil, fmt.Errorf("compat(openai) http %d", resp.StatusCode)
	}

	go c.run(s, resp)
	return s, nil
}

func (c *CompatAdapter) run(s *pushStream, resp *http.Response) {
	defer resp.Body.Close()

	const blockID = "txt-0"
	var (
		started bool
		text    strings.Builder
		usage   model.Usage
		finish  string
	)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			break
		}

		var chunk compatChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			// A single garbled frame is not fatal; the gateway keeps going.
			continue
		}
		if chunk.Usage != nil {
			usage = model.Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			finish = choice.FinishReason
		}
		if choice.Delta.Content == "" {
			continue
		}
		if !started {
			started = true
			if !s.emit(startEvent{Type: "start", MessageID: chunk.ID}) {
				return
			}
			if !s.emit(textStartEvent{Type: "text-start", ID: blockID}) {
				return
			}
		}
		text.WriteString(choice.Delta.Content)
		if !s.emit(textDeltaEvent{Type: "text-delta", ID: blockID, Delta: choice.Delta.Content}) {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		s.emit(errorEvent{Type: "error", ErrorText: err.Error()})
		s.finish(adapter.FinalResult{}, err)
		return
	}

	if started {
		if !s.emit(textEndEvent{Type: "text-end", ID: blockID}) {
			return
		}
	}
	s.emit(finishEvent{Type: "finish"})
	s.finish(adapter.FinalResult{Text: text.String(), Usage: usage, FinishReason: finish}, nil)
}
