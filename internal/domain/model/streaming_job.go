package model

import (
	"strconv"
	"strings"
	"time"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusStreaming  JobStatus = "streaming"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal statuses are absorbing: the job becomes read-only once reached.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

func (s JobStatus) Active() bool {
	return s == JobStatusProcessing || s == JobStatusStreaming
}

// CanTransitionTo encodes the job state machine:
// pending -> processing -> streaming -> completed|failed|cancelled.
// Any non-terminal state may fail or be cancelled; completed requires
// an owning worker (processing or streaming).
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if s.Terminal() {
		return false
	}
	switch next {
	case JobStatusProcessing:
		return s == JobStatusPending
	case JobStatusStreaming:
		return s == JobStatusProcessing
	case JobStatusCompleted:
		return s == JobStatusProcessing || s == JobStatusStreaming
	case JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// RequestMessage is one chat turn in the request payload.
type RequestMessage struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// SamplingOptions are passed through to the provider untouched.
type SamplingOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
}

// RequestData is the opaque-to-the-store request payload of a job.
type RequestData struct {
	Provider string           `json:"provider,omitempty"`
	Model    string           `json:"model"`
	Messages []RequestMessage `json:"messages"`
	Options  SamplingOptions  `json:"options,omitempty"`
}

// Validate rejects structurally broken request payloads before persistence.
func (r RequestData) Validate() []string {
	var problems []string
	if strings.TrimSpace(r.Model) == "" {
		problems = append(problems, "model is required")
	}
	if len(r.Messages) == 0 {
		problems = append(problems, "at least one message is required")
	}
	for i, m := range r.Messages {
		switch m.Role {
		case "user", "assistant", "system":
		default:
			problems = append(problems, "messages["+strconv.Itoa(i)+"]: unknown role")
		}
		if m.Content == "" {
			problems = append(problems, "messages["+strconv.Itoa(i)+"]: empty content")
		}
	}
	return problems
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ResponseData is written exactly once, when the job completes.
type ResponseData struct {
	Text         string `json:"text"`
	Usage        Usage  `json:"usage"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// ProgressInfo is advisory and freely overwritable, unlike PartialContent.
type ProgressInfo struct {
	TokensStreamed  int     `json:"tokens_streamed"`
	PercentComplete float64 `json:"percent_complete"`
	Phase           string  `json:"phase,omitempty"`
}

// StreamingJob is the durable record of one request-to-response streaming
// task. PartialContent is append-only for the job's lifetime; ResponseData is
// set at most once on terminal success.
type StreamingJob struct {
	ID             string
	ConversationID string
	UserID         string
	ModelID        string
	Status         JobStatus

	Request        RequestData
	Response       *ResponseData
	PartialContent string
	Progress       ProgressInfo
	ErrorMessage   string

	// Provenance, observability only.
	Source    string
	SessionID string
	RequestID string

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	ExpiresAt   time.Time
	UpdatedAt   time.Time
}

// NewStreamingJob builds a pending job. The id is assigned by the caller so
// tests can use deterministic ids.
func NewStreamingJob(id, conversationID, userID string, req RequestData, ttl time.Duration) *StreamingJob {
	now := time.Now()
	return &StreamingJob{
		ID:             id,
		ConversationID: conversationID,
		UserID:         userID,
		ModelID:        req.Model,
		Status:         JobStatusPending,
		Request:        req,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
		UpdatedAt:      now,
	}
}
