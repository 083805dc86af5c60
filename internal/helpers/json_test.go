package helpers

import (
	"encoding/json"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "bare object",
			in:   `{"a":1}`,
			want: `{"a":1}`,
		},
		{
			name: "object with surrounding prose",
			in:   "Sure, here is the result:\n{\"terms\": [\"a\", \"b\"]}\nLet me know!",
			want: `{"terms": ["a", "b"]}`,
		},
		{
			name: "fenced json block",
			in:   "```json\n{\"x\": {\"y\": 2}}\n```",
			want: `{"x": {"y": 2}}`,
		},
		{
			name: "braces inside strings ignored",
			in:   `prefix {"text": "not a close } brace", "n": 1} suffix`,
			want: `{"text": "not a close } brace", "n": 1}`,
		},
		{
			name: "escaped quotes inside strings",
			in:   `{"quote": "she said \"hi\" {"}`,
			want: `{"quote": "she said \"hi\" {"}`,
		},
		{
			name: "array document",
			in:   `the list: ["one", "two"]`,
			want: `["one", "two"]`,
		},
		{
			name: "leading byte order mark",
			in:   "\ufeff{\"a\": 1}",
			want: `{"a": 1}`,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.in)
			if err != nil {
				t.Fatalf("ExtractJSON() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("ExtractJSON() got %q, want %q", got, tt.want)
			}
			if !json.Valid([]byte(got)) {
				t.Fatalf("ExtractJSON() returned invalid JSON: %q", got)
			}
		})
	}
}

func TestExtractJSONErrors(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"", "no json here", "{unterminated", `{"a": [1, 2}`} {
		if _, err := ExtractJSON(in); err == nil {
			t.Errorf("ExtractJSON(%q) expected error", in)
		}
	}
}
