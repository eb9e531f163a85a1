// Package protocol models the newline-delimited JSON event stream spoken by
// model providers. Parsing and validation are deliberately separate steps:
// Parse only requires a decodable object with a string "type" discriminator,
// so callers that merely route events do not pay for (or fail on) per-variant
// field checks.
package protocol

import (
	"encoding/json"
	"fmt"
	"sort"
)

type EventType string

// Text streaming.
const (
	EventTextStart EventType = "text-start"
	EventTextDelta EventType = "text-delta"
	EventTextEnd   EventType = "text-end"
)

// Reasoning streaming.
const (
	EventReasoningStart EventType = "reasoning-start"
	EventReasoningDelta EventType = "reasoning-delta"
	EventReasoningEnd   EventType = "reasoning-end"
)

// Tool-call lifecycle.
const (
	EventToolInputStart      EventType = "tool-input-start"
	EventToolInputDelta      EventType = "tool-input-delta"
	EventToolInputAvailable  EventType = "tool-input-available"
	EventToolOutputAvailable EventType = "tool-output-available"
)

// Stream lifecycle.
const (
	EventStart      EventType = "start"
	EventFinish     EventType = "finish"
	EventStartStep  EventType = "start-step"
	EventFinishStep EventType = "finish-step"
	EventAbort      EventType = "abort"
)

// Message and attachments.
const (
	EventMessageMetadata EventType = "message-metadata"
	EventSourceURL       EventType = "source-url"
	EventFile            EventType = "file"
)

// Errors.
const (
	EventError EventType = "error"
)

// MalformedEventError reports a chunk that is not a decodable JSON object.
type MalformedEventError struct {
	Cause  error
	Sample string
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed event: %v", e.Cause)
}

func (e *MalformedEventError) Unwrap() error { return e.Cause }

// MissingDiscriminatorError reports a decodable object without a string
// "type" field.
type MissingDiscriminatorError struct {
	Sample string
}

func (e *MissingDiscriminatorError) Error() string {
	return "event has no string \"type\" discriminator"
}

// Event is one parsed wire event. The variant payload stays behind accessor
// methods; nothing outside this package works with unchecked casts.
type Event struct {
	Type   EventType
	fields map[string]any
	raw    []byte
}

const sampleLimit = 256

// Parse decodes one wire chunk. It fails with *MalformedEventError when the
// chunk is not a JSON object, and *MissingDiscriminatorError when the object
// carries no string "type". Variant-specific field validation is Validate's
// job, not Parse's.
func Parse(raw []byte) (*Event, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, &MalformedEventError{Cause: err, Sample: truncate(raw)}
	}
	if fields == nil {
		return nil, &MalformedEventError{Cause: fmt.Errorf("null event"), Sample: truncate(raw)}
	}
	t, ok := fields["type"].(string)
	if !ok || t == "" {
		return nil, &MissingDiscriminatorError{Sample: truncate(raw)}
	}
	return &Event{Type: EventType(t), fields: fields, raw: raw}, nil
}

// Known reports whether the discriminator is one of the variants this
// package understands. Unknown events are still usable: see ExtractText.
func (e *Event) Known() bool {
	_, ok := requiredFields[e.Type]
	return ok
}

// Raw returns the original wire bytes.
func (e *Event) Raw() []byte { return e.raw }

// Field returns a payload field by name.
func (e *Event) Field(name string) (any, bool) {
	v, ok := e.fields[name]
	return v, ok
}

// StringField returns a payload field when it is a non-empty string.
func (e *Event) StringField(name string) (string, bool) {
	s, ok := e.fields[name].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// FieldNames returns the payload field names, sorted, excluding "type".
func (e *Event) FieldNames() []string {
	names := make([]string, 0, len(e.fields))
	for k := range e.fields {
		if k == "type" {
			continue
		}
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Delta returns the incremental content of text-delta / reasoning-delta /
// tool-input-delta events.
func (e *Event) Delta() (string, bool) {
	switch e.Type {
	case EventTextDelta, EventReasoningDelta:
		return e.StringField("delta")
	case EventToolInputDelta:
		return e.StringField("inputTextDelta")
	}
	return "", false
}

// ErrorText returns the surfaced message of an error event.
func (e *Event) ErrorText() (string, bool) {
	if e.Type != EventError {
		return "", false
	}
	return e.StringField("errorText")
}

func truncate(raw []byte) string {
	if len(raw) > sampleLimit {
		return string(raw[:sampleLimit]) + "..."
	}
	return string(raw)
}
