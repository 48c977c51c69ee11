package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// ExtractJSON pulls the first balanced JSON object or array out of a model
// response that may be wrapped in markdown fences or surrounding prose. If
// no balanced structure parses, a repair pass runs before giving up.
func ExtractJSON(response string) (string, error) {
	cleaned := stripCodeFences(response)

	objStart := strings.IndexByte(cleaned, '{')
	arrStart := strings.IndexByte(cleaned, '[')

	if objStart >= 0 && (arrStart < 0 || objStart < arrStart) {
		if jsonStr, ok := extractBalanced(cleaned, '{', '}'); ok {
			if json.Valid([]byte(jsonStr)) {
				return jsonStr, nil
			}
		}
	}

	if arrStart >= 0 {
		if jsonStr, ok := extractBalanced(cleaned, '[', ']'); ok {
			if json.Valid([]byte(jsonStr)) {
				return jsonStr, nil
			}
		}
	}

	trimmed := strings.TrimSpace(cleaned)
	if json.Valid([]byte(trimmed)) {
		return trimmed, nil
	}

	if repaired, ok := RepairJSON(cleaned); ok {
		return repaired, nil
	}

	return "", fmt.Errorf("no valid JSON found in response")
}

// ParseObject extracts JSON from a response and unmarshals it into T.
func ParseObject[T any](response string) (T, error) {
	var result T

	jsonStr, err := ExtractJSON(response)
	if err != nil {
		return result, err
	}

	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return result, fmt.Errorf("unmarshal JSON: %w", err)
	}

	return result, nil
}

// RepairJSON attempts to salvage a truncated or lightly malformed JSON
// object: trim to the outermost braces, drop non-ASCII control noise and
// trailing commas, close a dangling string, and balance open brackets.
// Returns false if the result still does not parse.
func RepairJSON(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	s = s[start:]
	if end := strings.LastIndexByte(s, '}'); end >= 0 {
		if candidate := s[:end+1]; json.Valid([]byte(candidate)) {
			return candidate, true
		}
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r > unicode.MaxASCII && !unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	s = b.String()

	// Walk the structure tracking open scopes and string state so the tail
	// can be closed in the right order.
	var stack []byte
	inString := false
	escaped := false
	lastSignificant := -1

	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		if inString {
			switch c {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}':
			if len(stack) > 0 && stack[len(stack)-1] == '{' {
				stack = stack[:len(stack)-1]
			}
		case ']':
			if len(stack) > 0 && stack[len(stack)-1] == '[' {
				stack = stack[:len(stack)-1]
			}
		}
		if !unicode.IsSpace(rune(c)) {
			lastSignificant = i
		}
	}

	if lastSignificant < 0 {
		return "", false
	}
	repaired := s[:lastSignificant+1]

	if escaped {
		repaired = strings.TrimSuffix(repaired, `\`)
	}
	if inString {
		repaired += `"`
	}
	repaired = strings.TrimRight(repaired, " \t\r\n")
	repaired = strings.TrimSuffix(repaired, ",")
	// A key with no value cannot be completed; drop it.
	if strings.HasSuffix(repaired, ":") {
		if cut := strings.LastIndexByte(repaired, ','); cut >= 0 {
			repaired = repaired[:cut]
		}
	}

	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			repaired += "}"
		} else {
			repaired += "]"
		}
	}
	repaired = trailingCommaRe.ReplaceAllString(repaired, "$1")

	if json.Valid([]byte(repaired)) {
		return repaired, true
	}
	return "", false
}

// trailingCommaRe removes commas left dangling before a closing bracket.
var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

func stripCodeFences(s string) string {
	if i := strings.Index(s, "```json"); i >= 0 {
		s = s[i+len("```json"):]
	} else if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return s
}

func extractBalanced(s string, openChar, closeChar byte) (string, bool) {
	start := strings.IndexByte(s, openChar)
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		if c == openChar {
			depth++
		} else if c == closeChar {
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}

	return "", false
}
