package scanning

import (
	"regexp"
	"strings"
)

var (
	// Opening fences may carry any language tag
	reFencedBlock = regexp.MustCompile("```(?:[A-Za-z][\\w+-]*)?\\s*([\\s\\S]*?)\\s*```")
	reOpenFence   = regexp.MustCompile("^```(?:[A-Za-z][\\w+-]*)?")
)

// ExtractJSON pulls the most likely JSON object out of a model response.
// It prefers a fenced code block, then the first balanced object, and
// otherwise returns the trimmed text. The result is not guaranteed to be
// valid JSON.
func ExtractJSON(raw string) string {
	var candidate string
	if m := reFencedBlock.FindStringSubmatch(raw); m != nil {
		candidate = m[1]
	} else if obj, ok := firstObject(raw); ok {
		candidate = obj
	} else {
		candidate = strings.TrimSpace(raw)
	}
	return stripFences(candidate)
}

// firstObject returns the balanced {...} span starting at the first brace.
// Braces inside string literals are ignored. When the span never closes it
// falls back to everything up to the last closing brace.
func firstObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}

	end := strings.LastIndex(s, "}")
	if end < start {
		return "", false
	}
	return s[start : end+1], true
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = reOpenFence.ReplaceAllString(s, "")
	s = strings.TrimSuffix(s, "```")
	return strings.Trim(strings.TrimSpace(s), "`")
}
