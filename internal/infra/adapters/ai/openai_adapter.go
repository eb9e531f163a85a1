package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/pkoukk/tiktoken-go"

	"ai-stream-relay/internal/domain/model"
	"ai-stream-relay/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.ModelAdapter = (*OpenAIAdapter)(nil)

// OpenAIAdapter streams chat completions through the official SDK and
// re-emits each chunk as a wire event.
type OpenAIAdapter struct {
	client       openai.Client
	defaultModel string
}

func NewOpenAIAdapter(apiKey, defaultModel string) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if defaultModel == "" {
		defaultModel = "gpt-4o-mini"
	}
	return &OpenAIAdapter{
		client:       openai.NewClient(option.WithAPIKey(apiKey)),
		defaultModel: defaultModel,
	}, nil
}

func (o *OpenAIAdapter) Provider() string { return "openai" }

func (o *OpenAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	return []string{o.defaultModel}, nil
}

func (o *OpenAIAdapter) Capabilities(modelID string) (adapter.Capabilities, error) {
	caps := adapter.Capabilities{
		SupportsTools: true,
		StreamTimeout: 2 * time.Minute,
		LatencyClass:  "standard",
	}
	l := strings.ToLower(modelID)
	if strings.Contains(l, "mini") || strings.Contains(l, "nano") {
		caps.LatencyClass = "fast"
	}
	if strings.HasPrefix(l, "o1") || strings.HasPrefix(l, "o3") {
		caps.SupportsReasoning = true
		caps.LatencyClass = "slow"
		caps.StreamTimeout = 5 * time.Minute
	}
	return caps, nil
}

func (o *OpenAIAdapter) CountTokens(ctx context.Context, modelID string, messages []model.RequestMessage) (int, error) {
	enc, err := tiktoken.EncodingForModel(modelID)
	if err != nil {
		// Unknown model: cl100k_base is close enough for an estimate.
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return 0, err
		}
	}
	total := 0
	for _, m := range messages {
		// Per-message framing overhead per the OpenAI token counting guide.
		total += len(enc.Encode(m.Content, nil, nil)) + 4
	}
	return total + 2, nil
}

func (o *OpenAIAdapter) StreamChat(ctx context.Context, req adapter.StreamRequest) (adapter.EventStream, error) {
	modelID := req.Model
	if modelID == "" {
		modelID = o.defaultModel
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(modelID),
		Messages: toOpenAIMessages(req.Messages),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}
	if req.Options.Temperature != nil {
		params.Temperature = openai.Float(*req.Options.Temperature)
	}
	if req.Options.TopP != nil {
		params.TopP = openai.Float(*req.Options.TopP)
	}
	if req.Options.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.Options.MaxTokens))
	}

	s := newPushStream(ctx)
	go o.run(s, params)
	return s, nil
}

func (o *OpenAIAdapter) run(s *pushStream, params openai.ChatCompletionNewParams) {
	strm := o.client.Chat.Completions.NewStreaming(s.ctx, params)
	defer strm.Close()

	const blockID = "txt-0"
	var acc openai.ChatCompletionAccumulator
	started := false

	for strm.Next() {
		chunk := strm.Current()
		acc.AddChunk(chunk)

		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
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
		if !s.emit(textDeltaEvent{Type: "text-delta", ID: blockID, Delta: delta}) {
			return
		}
	}

	if err := strm.Err(); err != nil {
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

	final := adapter.FinalResult{
		Usage: model.Usage{
			PromptTokens:     int(acc.Usage.PromptTokens),
			CompletionTokens: int(acc.Usage.CompletionTokens),
			TotalTokens:      int(acc.Usage.TotalTokens),
		},
	}
	if len(acc.Choices) > 0 {
		final.Text = acc.Choices[0].Message.Content
		final.FinishReason = string(acc.Choices[0].FinishReason)
	}
	s.finish(final, nil)
}

func toOpenAIMessages(messages []model.RequestMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
