package analysis

import "testing"

func TestExtractObject(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{
			"bare object",
			`{"worthy": true}`,
			`{"worthy": true}`,
			true,
		},
		{
			"prose wrapped",
			`Sure! Here is my assessment: {"worthy": true, "confidence": 0.9} hope that helps`,
			`{"worthy": true, "confidence": 0.9}`,
			true,
		},
		{
			"code fenced",
			"```json\n{\"topic\": \"queues\"}\n```",
			`{"topic": "queues"}`,
			true,
		},
		{
			"braces inside string values",
			`{"summary": "use {placeholders} carefully"}`,
			`{"summary": "use {placeholders} carefully"}`,
			true,
		},
		{
			"escaped quotes inside values",
			`{"topic": "the \"big\" migration"}`,
			`{"topic": "the \"big\" migration"}`,
			true,
		},
		{
			"nested objects",
			`noise {"a": {"b": 1}} trailing`,
			`{"a": {"b": 1}}`,
			true,
		},
		{
			"skips invalid candidate for later valid one",
			`{not json} but {"worthy": false} is`,
			`{"worthy": false}`,
			true,
		},
		{
			"no object",
			"the conversation was not interesting",
			"",
			false,
		},
		{
			"unbalanced",
			`{"worthy": true`,
			"",
			false,
		},
		{
			"empty input",
			"",
			"",
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractObject(tt.input)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}
