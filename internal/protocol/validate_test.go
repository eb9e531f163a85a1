package protocol

import "testing"

func mustParse(t *testing.T, raw string) *Event {
	t.Helper()
	ev, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse(%s): %v", raw, err)
	}
	return ev
}

func TestValidateTextDelta(t *testing.T) {
	res := Validate(mustParse(t, `{"type":"text-delta","id":"t1","delta":"hi"}`))
	if !res.Valid() {
		t.Errorf("expected valid, got violations %v", res.Violations)
	}
}

func TestValidateDeltaWithoutBlockID(t *testing.T) {
	// Only the delta itself is required; providers may omit block ids.
	for _, raw := range []string{
		`{"type":"text-delta","delta":"hi"}`,
		`{"type":"reasoning-delta","delta":"hmm"}`,
	} {
		if res := Validate(mustParse(t, raw)); !res.Valid() {
			t.Errorf("%s: expected valid, got violations %v", raw, res.Violations)
		}
	}
}

func TestValidateRenamedDeltaField(t *testing.T) {
	// Field-naming drift: a provider renames "delta" to "textDelta". The
	// validator must report the missing required field, not accept the
	// lookalike.
	res := Validate(mustParse(t, `{"type":"text-delta","id":"t1","textDelta":"hi"}`))
	if res.Valid() {
		t.Fatal("renamed delta field must not validate")
	}
	if len(res.Violations) != 1 {
		t.Fatalf("violations = %v, want exactly one", res.Violations)
	}
	v := res.Violations[0]
	if v.Field != "delta" || v.Got != "absent" {
		t.Errorf("violation = %+v, want delta/absent", v)
	}
}

func TestValidateReportsAllViolationsAtOnce(t *testing.T) {
	// Wrong-typed sourceId and missing url both reported in a single pass.
	res := Validate(mustParse(t, `{"type":"source-url","sourceId":7}`))
	if len(res.Violations) != 2 {
		t.Fatalf("violations = %v, want two", res.Violations)
	}
	byField := map[string]Violation{}
	for _, v := range res.Violations {
		byField[v.Field] = v
	}
	if v := byField["sourceId"]; v.Got != "number" {
		t.Errorf("sourceId violation = %+v, want got=number", v)
	}
	if v := byField["url"]; v.Got != "absent" {
		t.Errorf("url violation = %+v, want got=absent", v)
	}
}

func TestValidateUnknownType(t *testing.T) {
	res := Validate(mustParse(t, `{"type":"future-event","body":"hello"}`))
	if res.Known {
		t.Error("future-event must be reported unknown")
	}
	if len(res.Violations) != 0 {
		t.Errorf("unknown types carry no violations, got %v", res.Violations)
	}
	if res.Valid() {
		t.Error("unknown type must not be Valid")
	}
}

func TestValidateAllVariants(t *testing.T) {
	cases := map[string]struct {
		raw   string
		valid bool
	}{
		"start":                 {`{"type":"start","messageId":"m1"}`, true},
		"finish":                {`{"type":"finish"}`, true},
		"start-step":            {`{"type":"start-step"}`, true},
		"finish-step":           {`{"type":"finish-step"}`, true},
		"abort":                 {`{"type":"abort"}`, true},
		"text lifecycle":        {`{"type":"text-start","id":"t1"}`, true},
		"text-end missing id":   {`{"type":"text-end"}`, false},
		"reasoning delta":       {`{"type":"reasoning-delta","id":"r1","delta":"hmm"}`, true},
		"tool input start":      {`{"type":"tool-input-start","toolCallId":"c1","toolName":"search"}`, true},
		"tool input available":  {`{"type":"tool-input-available","toolCallId":"c1","toolName":"search","input":{"q":"x"}}`, true},
		"tool input no payload": {`{"type":"tool-input-available","toolCallId":"c1","toolName":"search"}`, false},
		"tool output":           {`{"type":"tool-output-available","toolCallId":"c1","output":[1,2]}`, true},
		"source-url":            {`{"type":"source-url","sourceId":"s1","url":"https://x"}`, true},
		"file bad mediaType":    {`{"type":"file","url":"https://x","mediaType":5}`, false},
		"message-metadata":      {`{"type":"message-metadata","messageMetadata":{"k":1}}`, true},
		"error without text":    {`{"type":"error"}`, false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			res := Validate(mustParse(t, tc.raw))
			if res.Valid() != tc.valid {
				t.Errorf("Valid() = %v, want %v (violations %v)", res.Valid(), tc.valid, res.Violations)
			}
		})
	}
}
