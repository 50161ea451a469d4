package services

import (
	"regexp"
	"strings"

	json "github.com/goccy/go-json"
)

var (
	fencedJSONRe    = regexp.MustCompile("(?is)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	fencedBlockRe   = regexp.MustCompile("(?s)```.*?(```|$)")
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
)

// extractJSONObject finds the JSON object in a model response: the whole text,
// a fenced block, or the first balanced {...}. Trailing commas are relaxed.
// The returned map preserves raw field values for presence checks.
func extractJSONObject(raw string) (map[string]json.RawMessage, string, bool) {
	for _, candidate := range jsonCandidates(raw) {
		if obj, ok := decodeObject(candidate); ok {
			return obj, candidate, true
		}
		relaxed := trailingCommaRe.ReplaceAllString(candidate, "$1")
		if obj, ok := decodeObject(relaxed); ok {
			return obj, relaxed, true
		}
	}
	return nil, "", false
}

func jsonCandidates(raw string) []string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil
	}

	var out []string
	if strings.HasPrefix(text, "{") {
		out = append(out, text)
	}
	if m := fencedJSONRe.FindStringSubmatch(text); m != nil {
		out = append(out, balancedObject(m[1]))
	}
	if start := strings.IndexByte(text, '{'); start >= 0 {
		out = append(out, balancedObject(text[start:]))
	}
	return out
}

// balancedObject trims s (which starts with '{') after the brace that closes it.
// Braces inside string literals are ignored.
func balancedObject(s string) string {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return s
}

func decodeObject(s string) (map[string]json.RawMessage, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// visibleText removes code fences and any embedded JSON object from a reply
// so only conversational prose is shown to the user.
func visibleText(raw string) string {
	text := fencedBlockRe.ReplaceAllString(raw, "")
	if start := strings.IndexByte(text, '{'); start >= 0 {
		obj := balancedObject(text[start:])
		if _, ok := decodeObject(obj); ok {
			text = text[:start] + text[start+len(obj):]
		}
	}
	return strings.TrimSpace(text)
}
