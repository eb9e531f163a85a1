package adapter

import (
	"context"
	"encoding/json"
	"time"

	"ai-stream-relay/internal/domain/model"
)

// Capabilities describes what a provider can do for a given model.
type Capabilities struct {
	SupportsReasoning bool
	SupportsTools     bool
	// StreamTimeout bounds one whole streaming call.
	StreamTimeout time.Duration
	// LatencyClass ("fast" | "standard" | "slow") drives the base polling
	// interval suggested to clients.
	LatencyClass string
	// Cost per token in micro-credits; advisory.
	InputCostMicros  int64
	OutputCostMicros int64
}

// StreamRequest is the provider-neutral streaming call input.
type StreamRequest struct {
	Model    string
	Messages []model.RequestMessage
	Options  model.SamplingOptions
}

// FinalResult is the terminal payload of a streaming call.
type FinalResult struct {
	Text         string
	Usage        model.Usage
	FinishReason string
}

// EventStream is a pull-based stream of raw protocol events. Recv returns
// io.EOF after the last event; Final is valid only after that. Close is safe
// to call at any point and releases the underlying connection.
type EventStream interface {
	Recv(ctx context.Context) (json.RawMessage, error)
	Final() (FinalResult, error)
	Close() error
}

// ModelAdapter is the port for one model provider. The orchestrator depends
// only on this interface, never on a concrete SDK.
type ModelAdapter interface {
	Provider() string
	ListModels(ctx context.Context) ([]string, error)
	Capabilities(modelID string) (Capabilities, error)

	// CountTokens returns prompt tokens for the messages (best-effort when
	// the provider has no exact counter).
	CountTokens(ctx context.Context, modelID string, messages []model.RequestMessage) (int, error)

	// StreamChat opens a streaming call. Every emitted element is one wire
	// event: a JSON object with a mandatory string "type" field.
	StreamChat(ctx context.Context, req StreamRequest) (EventStream, error)
}
