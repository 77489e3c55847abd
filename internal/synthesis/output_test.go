package synthesis

import "testing"

func TestParseOutput(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		structured bool
		answer     string
		links      int
	}{
		{"plain json", `{"answer": "yes", "links": [{"url": "https://a", "text": "A"}]}`, true, "yes", 1},
		{"fenced", "```json\n{\"answer\": \"fenced\", \"links\": []}\n```", true, "fenced", 0},
		{"prose around", `Sure! {"answer": "inner"} Hope that helps.`, true, "inner", 0},
		{"url strings", `{"answer": "a", "links": ["https://a", "", 3]}`, true, "a", 1},
		{"links not a list", `{"answer": "a", "links": "https://a"}`, true, "a", 0},
		{"empty answer", `{"answer": "  ", "links": []}`, false, "", 0},
		{"answer not string", `{"answer": 42}`, false, "", 0},
		{"no json", "Just use the proxy.", false, "", 0},
		{"broken json", `{"answer": "x"`, false, "", 0},
		{"brace in leading prose", `Note {see below}: {"answer": "Use pandas.", "links": ["https://a"]}`, true, "Use pandas.", 1},
		{"object without answer first", `{"step": 1} then {"answer": "second"}`, true, "second", 0},
		{"nested answer only", `{"meta": {"answer": "inner"}}`, false, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			switch out := ParseOutput(tt.raw).(type) {
			case StructuredOutput:
				if !tt.structured {
					t.Fatalf("got structured output %+v", out)
				}
				if out.Answer != tt.answer || len(out.Links) != tt.links {
					t.Errorf("got %+v", out)
				}
			case FallbackOutput:
				if tt.structured {
					t.Fatalf("got fallback for %q", tt.raw)
				}
				if out.Raw == "" {
					t.Error("fallback lost the raw text")
				}
			}
		})
	}
}
