package protocol

import "fmt"

// FieldKind is the primitive type a required field must carry.
type FieldKind int

const (
	KindString FieldKind = iota
	KindNumber
	KindBool
	// KindAny only requires presence; the payload shape is provider-defined.
	KindAny
)

func (k FieldKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	default:
		return "any"
	}
}

type fieldSpec struct {
	name string
	kind FieldKind
}

// requiredFields is the per-variant schema. An event validates only when
// every listed field is present with the right primitive type; extra fields
// are always allowed (providers attach metadata freely).
var requiredFields = map[EventType][]fieldSpec{
	EventTextStart: {{"id", KindString}},
	// Some providers omit block ids on deltas; only the delta itself is
	// required.
	EventTextDelta: {{"delta", KindString}},
	EventTextEnd:   {{"id", KindString}},

	EventReasoningStart: {{"id", KindString}},
	EventReasoningDelta: {{"delta", KindString}},
	EventReasoningEnd:   {{"id", KindString}},

	EventToolInputStart:      {{"toolCallId", KindString}, {"toolName", KindString}},
	EventToolInputDelta:      {{"toolCallId", KindString}, {"inputTextDelta", KindString}},
	EventToolInputAvailable:  {{"toolCallId", KindString}, {"toolName", KindString}, {"input", KindAny}},
	EventToolOutputAvailable: {{"toolCallId", KindString}, {"output", KindAny}},

	EventStart:      {},
	EventFinish:     {},
	EventStartStep:  {},
	EventFinishStep: {},
	EventAbort:      {},

	EventMessageMetadata: {{"messageMetadata", KindAny}},
	EventSourceURL:       {{"sourceId", KindString}, {"url", KindString}},
	EventFile:            {{"url", KindString}, {"mediaType", KindString}},

	EventError: {{"errorText", KindString}},
}

// Violation describes one required field an event failed to satisfy.
type Violation struct {
	Field string
	Want  string
	Got   string // actual JSON type, or "absent"
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: want %s, got %s", v.Field, v.Want, v.Got)
}

// ValidationResult carries every violation at once so a caller can log a
// complete diagnostic in a single pass instead of fixing fields one by one.
type ValidationResult struct {
	Type       EventType
	Known      bool
	Violations []Violation
}

func (r ValidationResult) Valid() bool {
	return r.Known && len(r.Violations) == 0
}

// Validate checks the variant schema of a parsed event. For an unrecognized
// discriminator it returns Known=false and no violations; the caller decides
// whether to degrade (ExtractText) or drop.
func Validate(e *Event) ValidationResult {
	specs, ok := requiredFields[e.Type]
	res := ValidationResult{Type: e.Type, Known: ok}
	if !ok {
		return res
	}
	for _, spec := range specs {
		v, present := e.fields[spec.name]
		if !present {
			res.Violations = append(res.Violations, Violation{Field: spec.name, Want: spec.kind.String(), Got: "absent"})
			continue
		}
		if !kindMatches(spec.kind, v) {
			res.Violations = append(res.Violations, Violation{Field: spec.name, Want: spec.kind.String(), Got: jsonTypeName(v)})
		}
	}
	return res
}

func kindMatches(kind FieldKind, v any) bool {
	switch kind {
	case KindString:
		_, ok := v.(string)
		return ok
	case KindNumber:
		_, ok := v.(float64)
		return ok
	case KindBool:
		_, ok := v.(bool)
		return ok
	case KindAny:
		return v != nil
	}
	return false
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "bool"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return "unknown"
	}
}
