// Package json extracts JSON values from LLM responses.
//
// Model output is untrusted: it may wrap the object in prose or markdown
// fences, or drift into JSON5 (trailing commas, unquoted keys, single
// quotes, comments).
// Callers validate the decoded value themselves.
package json

import (
	"encoding/json"
	"fmt"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
)

// extractJSON finds the JSON object in a response string.
// It handles:
// 1. Pure JSON
// 2. JSON wrapped in markdown code blocks (```json ... ```)
// 3. An object embedded in text, found by first '{' and last '}'
// 4. The same shapes written as JSON5, normalized to strict JSON
func extractJSON(response string) (string, error) {
	response = stripMarkdownCodeBlocks(response)

	if json.Valid([]byte(response)) {
		return response, nil
	}

	candidate := response
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start != -1 && end > start {
		candidate = response[start : end+1]
		if json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}

	if normalized, ok := fromJSON5(candidate); ok {
		return normalized, nil
	}

	preview := response
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	return "", fmt.Errorf("failed to extract valid JSON from response: %q", preview)
}

// fromJSON5 re-encodes a JSON5 object as strict JSON.
func fromJSON5(s string) (string, bool) {
	var v any
	if err := DecodeJSON5([]byte(s), &v); err != nil {
		return "", false
	}
	if _, ok := v.(map[string]any); !ok {
		return "", false
	}
	out, err := json.Marshal(v)
	if err != nil {
		return "", false
	}
	return string(out), true
}

// DecodeJSON5 decodes a JSON5 document into v. Comments and single-quoted
// strings are rewritten first; the decoder handles unquoted keys and
// trailing commas.
func DecodeJSON5(data []byte, v any) error {
	return json5.Unmarshal(NormalizeJSON5(data), v)
}

// NormalizeJSON5 drops // and /* */ comments and turns single-quoted
// strings into double-quoted ones. Text inside strings is left alone.
func NormalizeJSON5(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		c := data[i]
		switch {
		case c == '"':
			j, _ := stringEnd(data, i, '"')
			out = append(out, data[i:j]...)
			i = j - 1
		case c == '\'':
			j, closed := stringEnd(data, i, '\'')
			body := data[i+1 : j]
			if closed {
				body = data[i+1 : j-1]
			}
			out = append(out, requote(body)...)
			i = j - 1
		case c == '/' && i+1 < len(data) && data[i+1] == '/':
			for i < len(data) && data[i] != '\n' {
				i++
			}
			if i < len(data) {
				out = append(out, '\n')
			}
		case c == '/' && i+1 < len(data) && data[i+1] == '*':
			end := strings.Index(string(data[i+2:]), "*/")
			if end < 0 {
				return out
			}
			out = append(out, ' ')
			i += end + 3
		default:
			out = append(out, c)
		}
	}
	return out
}

// stringEnd returns the index just past the string opened at data[start].
// An unterminated string runs to the end of data.
func stringEnd(data []byte, start int, quote byte) (int, bool) {
	for i := start + 1; i < len(data); i++ {
		switch data[i] {
		case '\\':
			i++
		case quote:
			return i + 1, true
		}
	}
	return len(data), false
}

// requote renders the body of a single-quoted string as a double-quoted one.
func requote(body []byte) []byte {
	out := make([]byte, 0, len(body)+2)
	out = append(out, '"')
	for i := 0; i < len(body); i++ {
		switch c := body[i]; {
		case c == '\\' && i+1 < len(body) && body[i+1] == '\'':
			out = append(out, '\'')
			i++
		case c == '\\' && i+1 < len(body):
			out = append(out, c, body[i+1])
			i++
		case c == '"':
			out = append(out, '\\', '"')
		default:
			out = append(out, c)
		}
	}
	return append(out, '"')
}

// stripMarkdownCodeBlocks removes markdown code block markers from a response.
func stripMarkdownCodeBlocks(response string) string {
	trimmed := strings.TrimSpace(response)

	if strings.HasPrefix(trimmed, "```json") {
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "```json"))
	} else if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
	}

	if strings.HasSuffix(trimmed, "```") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, "```"))
	}

	return trimmed
}

// ExtractJSONFromResponse extracts and decodes the JSON object in an LLM response.
func ExtractJSONFromResponse[T any](response string) (T, error) {
	var result T
	err := ExtractJSONFromResponseWithType(response, &result)
	return result, err
}

// ExtractJSONFromResponseWithType is the non-generic form of ExtractJSONFromResponse.
func ExtractJSONFromResponseWithType(response string, result any) error {
	jsonStr, err := extractJSON(response)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(jsonStr), result); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return nil
}

// ExtractJSON returns the raw JSON text found in a response.
func ExtractJSON(response string) (string, error) {
	return extractJSON(response)
}
