package llm

import (
	"encoding/json"
	"testing"
)

func TestRepairJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "trailing comma in object",
			input: `{"a":1,}`,
		},
		{
			name:  "trailing comma in array",
			input: `{"items": ["one", "two",]}`,
		},
		{
			name:  "unclosed array and object",
			input: `{"a":[1,2`,
		},
		{
			name:  "unclosed nested objects",
			input: `{"a": {"b": {"c": 1`,
		},
		{
			name:  "bare property names",
			input: `{name: "Soup", servings: 4}`,
		},
		{
			name:  "single-quoted strings",
			input: `{'name': 'Tomato Soup'}`,
		},
		{
			name:  "single quotes with embedded double quote",
			input: `{'note': 'say "hi"'}`,
		},
		{
			name:  "control characters",
			input: "{\"a\": \"b\x00c\"}",
		},
		{
			name:  "combined artifacts",
			input: `{name: 'Soup', steps: ["chop", "boil",`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repaired := RepairJSON(tt.input)

			var parsed any
			if err := json.Unmarshal([]byte(repaired), &parsed); err != nil {
				t.Fatalf("repaired JSON is invalid: %v\nrepaired: %s", err, repaired)
			}
		})
	}
}

func TestRepairJSON_PreservesSemantics(t *testing.T) {
	repaired := RepairJSON(`{"a":1,}`)

	var got, want map[string]any
	if err := json.Unmarshal([]byte(repaired), &got); err != nil {
		t.Fatalf("unmarshal repaired: %v", err)
	}
	if err := json.Unmarshal([]byte(`{"a":1}`), &want); err != nil {
		t.Fatalf("unmarshal want: %v", err)
	}

	if len(got) != len(want) || got["a"] != want["a"] {
		t.Errorf("repaired %v, want %v", got, want)
	}
}

func TestBalanceBrackets(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "appends exactly the missing closers",
			input:    `{"a":[1,2`,
			expected: `{"a":[1,2]}`,
		},
		{
			name:     "already balanced",
			input:    `{"a":[1,2]}`,
			expected: `{"a":[1,2]}`,
		},
		{
			name:     "brackets inside strings ignored",
			input:    `{"a":"[["}`,
			expected: `{"a":"[["}`,
		},
		{
			name:     "open string closed before closers",
			input:    `{"a":"b`,
			expected: `{"a":"b"}`,
		},
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := balanceBrackets(tt.input); got != tt.expected {
				t.Errorf("balanceBrackets(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestQuoteBareKeys(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "bare key at object start",
			input:    `{name: 1}`,
			expected: `{"name": 1}`,
		},
		{
			name:     "bare key after comma",
			input:    `{"a": 1, b: 2}`,
			expected: `{"a": 1, "b": 2}`,
		},
		{
			name:     "quoted keys untouched",
			input:    `{"name": 1}`,
			expected: `{"name": 1}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := quoteBareKeys(tt.input); got != tt.expected {
				t.Errorf("quoteBareKeys(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeQuotes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "single to double",
			input:    `{'a': 'b'}`,
			expected: `{"a": "b"}`,
		},
		{
			name:     "apostrophe inside double-quoted string preserved",
			input:    `{"a": "it's fine"}`,
			expected: `{"a": "it's fine"}`,
		},
		{
			name:     "escaped single quote unescaped",
			input:    `{'a': 'it\'s'}`,
			expected: `{"a": "it's"}`,
		},
		{
			name:     "double quote inside single-quoted string escaped",
			input:    `{'a': 'say "hi"'}`,
			expected: `{"a": "say \"hi\""}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeQuotes(tt.input); got != tt.expected {
				t.Errorf("normalizeQuotes(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestStripControlChars(t *testing.T) {
	input := "a\x00b\x1fc\nd\te"
	expected := "abc\nd\te"
	if got := stripControlChars(input); got != expected {
		t.Errorf("stripControlChars(%q) = %q, want %q", input, got, expected)
	}
}
