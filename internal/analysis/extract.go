package analysis

import (
	"strings"

	"github.com/tidwall/gjson"
)

// ExtractObject returns the first balanced brace-delimited JSON object in s,
// skipping surrounding prose and code-fence markers. Models frequently wrap
// structured output in chatter; this is a deliberate degrade-not-fail
// boundary, so callers get ("", false) rather than an error.
func ExtractObject(s string) (string, bool) {
	offset := 0
	for {
		start := strings.IndexByte(s[offset:], '{')
		if start < 0 {
			return "", false
		}
		start += offset

		if candidate, ok := balancedObject(s[start:]); ok {
			if gjson.Valid(candidate) {
				return candidate, true
			}
		}
		offset = start + 1
	}
}

// balancedObject scans from the leading '{' and returns the substring up to
// its matching close brace, tracking string literals and escapes so braces
// inside values don't miscount.
func balancedObject(s string) (string, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]

		if escaped {
			escaped = false
			continue
		}

		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
			// braces inside strings don't count
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}
