package json

import (
	"strings"
	"testing"
)

type choice struct {
	Strategy string `json:"strategy"`
	Score    int    `json:"score"`
}

func TestExtractJSONFromResponse(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"pure", `{"strategy": "sectioned", "score": 42}`},
		{"prefix", `Here is my pick: {"strategy": "sectioned", "score": 42}`},
		{"suffix", `{"strategy": "sectioned", "score": 42} That's the choice.`},
		{"both", `Let me think... {"strategy": "sectioned", "score": 42} Done!`},
		{"fenced", "```json\n{\"strategy\": \"sectioned\", \"score\": 42}\n```"},
		{"json5 trailing comma", `{"strategy": "sectioned", "score": 42,}`},
		{"json5 single quotes", `Answer: {strategy: 'sectioned', score: 42}`},
		{"json5 quoted key single value", `{"strategy": 'sectioned', "score": 42}`},
		{"json5 comments", "{\"strategy\": \"sectioned\", // picked\n /* fine */ \"score\": 42}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSONFromResponse[choice](tt.response)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Strategy != "sectioned" {
				t.Errorf("expected strategy 'sectioned', got '%s'", got.Strategy)
			}
			if got.Score != 42 {
				t.Errorf("expected score 42, got %d", got.Score)
			}
		})
	}
}

func TestNoJSON(t *testing.T) {
	_, err := ExtractJSONFromResponse[choice]("This is just plain text without any JSON.")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "failed to extract valid JSON") {
		t.Errorf("expected 'failed to extract valid JSON' in error, got: %v", err)
	}
}

func TestInvalidJSON(t *testing.T) {
	_, err := ExtractJSONFromResponse[choice](`{"strategy": "flat", score: }`)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestSchemaDrift(t *testing.T) {
	var out choice
	err := ExtractJSONFromResponseWithType(`{"strategy": 7}`, &out)
	if err == nil {
		t.Fatal("expected unmarshal error for wrong field type")
	}
}

func TestNormalizeJSON5(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{'a': 'x'}`, `{"a": "x"}`},
		{`{a: 'it\'s "q"'}`, `{a: "it's \"q\""}`},
		{"{a: 1, // c\n}", "{a: 1, \n}"},
		{`{a: /* c */ 1}`, `{a:   1}`},
		{`{"u": "http://x", "s": 'a//b'}`, `{"u": "http://x", "s": "a//b"}`},
		{`{"k": "it's"}`, `{"k": "it's"}`},
		{`{a: 'open`, `{a: "open"`},
	}
	for _, tt := range tests {
		if got := string(NormalizeJSON5([]byte(tt.in))); got != tt.want {
			t.Errorf("NormalizeJSON5(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDecodeJSON5(t *testing.T) {
	var got map[string]any
	if err := DecodeJSON5([]byte("{b: 1, // note\n a: 'x',}"), &got); err != nil {
		t.Fatalf("DecodeJSON5: %v", err)
	}
	if got["a"] != "x" || got["b"] != float64(1) {
		t.Errorf("decoded %v", got)
	}
}
