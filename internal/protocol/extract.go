package protocol

import "strings"

// Text extraction for unknown event shapes. New provider event types must
// degrade to plain text instead of vanishing, so the cascade below walks from
// the most trusted location to the least:
//
//  1. historically-used top-level text fields
//  2. known nested paths (content.text and friends)
//  3. a parts array of {type:"text", text:...} entries
//  4. any remaining string field that is not a known metadata key
//
// Stage 4 is a "possible new format" signal and is expected to be logged as
// such by the caller.

// directTextFields are top-level field names providers have used for
// human-readable content, in trust order.
var directTextFields = []string{
	"delta",
	"text",
	"content",
	"message",
	"output",
	"value",
}

// nestedTextPaths are two-level paths seen in the wild, in trust order.
var nestedTextPaths = [][2]string{
	{"content", "text"},
	{"delta", "text"},
	{"message", "content"},
	{"message", "text"},
	{"data", "text"},
}

// metadataKeys never carry content; the last-resort scan skips them.
var metadataKeys = map[string]struct{}{
	"type":       {},
	"id":         {},
	"timestamp":  {},
	"messageId":  {},
	"toolCallId": {},
	"toolName":   {},
	"sourceId":   {},
	"url":        {},
	"mediaType":  {},
	"role":       {},
	"model":      {},
	"provider":   {},
}

// ExtractResult reports where extracted text came from, so callers can tell
// a trusted extraction from a last-resort guess.
type ExtractResult struct {
	Text string
	// Stage is 1-4 per the cascade above; 0 when extraction failed.
	Stage int
}

// Guessed reports that the text came from the last-resort scan and should be
// treated as a possible-new-format signal rather than trusted content.
func (r ExtractResult) Guessed() bool { return r.Stage == 4 }

// ExtractText attempts best-effort content recovery from an event whose
// discriminator is unknown (or whose known shape failed validation). The
// boolean is false when the event carries no extractable text at all.
func ExtractText(e *Event) (ExtractResult, bool) {
	// Stage 1: direct fields.
	for _, name := range directTextFields {
		if s, ok := e.StringField(name); ok {
			return ExtractResult{Text: s, Stage: 1}, true
		}
	}

	// Stage 2: nested paths.
	for _, path := range nestedTextPaths {
		obj, ok := e.fields[path[0]].(map[string]any)
		if !ok {
			continue
		}
		if s, ok := obj[path[1]].(string); ok && s != "" {
			return ExtractResult{Text: s, Stage: 2}, true
		}
	}

	// Stage 3: parts array of {type:"text", text:...}.
	if parts, ok := e.fields["parts"].([]any); ok {
		var sb strings.Builder
		for _, p := range parts {
			part, ok := p.(map[string]any)
			if !ok {
				continue
			}
			if t, _ := part["type"].(string); t != "text" {
				continue
			}
			if s, _ := part["text"].(string); s != "" {
				sb.WriteString(s)
			}
		}
		if sb.Len() > 0 {
			return ExtractResult{Text: sb.String(), Stage: 3}, true
		}
	}

	// Stage 4: first non-empty string field that is not metadata.
	// Field order is sorted for determinism.
	for _, name := range e.FieldNames() {
		if _, meta := metadataKeys[name]; meta {
			continue
		}
		if s, ok := e.fields[name].(string); ok && s != "" {
			return ExtractResult{Text: s, Stage: 4}, true
		}
	}

	return ExtractResult{}, false
}
