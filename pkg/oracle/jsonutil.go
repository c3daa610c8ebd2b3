package oracle

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var (
	fencedObjectPattern  = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*\\})\\s*```")
	greedyObjectPattern  = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// ErrNoJSON is returned by DecodeJSON when content holds no JSON object.
var ErrNoJSON = errors.New("no JSON object found")

// ExtractJSON pulls a JSON object out of model output that may wrap it in
// markdown fences or commentary. Line comments and trailing commas are
// removed. It returns "" when no object is present.
func ExtractJSON(content string) string {
	candidates := jsonCandidates(content)
	if len(candidates) == 0 {
		return ""
	}
	for _, c := range candidates {
		if json.Valid([]byte(c)) {
			return c
		}
	}
	return candidates[0]
}

// DecodeJSON extracts the first candidate object in content that decodes
// into target.
func DecodeJSON(content string, target any) error {
	candidates := jsonCandidates(content)
	if len(candidates) == 0 {
		return ErrNoJSON
	}
	var firstErr error
	for _, c := range candidates {
		err := json.Unmarshal([]byte(c), target)
		if err == nil {
			return nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// jsonCandidates lists cleaned candidates in preference order: fenced block,
// greedy brace span, first balanced object.
func jsonCandidates(content string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(raw string) {
		if raw == "" {
			return
		}
		c := cleanJSON(raw)
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	if m := fencedObjectPattern.FindStringSubmatch(content); len(m) > 1 {
		add(m[1])
	}
	add(greedyObjectPattern.FindString(content))
	add(firstBalancedObject(content))
	return out
}

// firstBalancedObject returns the first {...} span whose braces balance,
// ignoring braces inside string literals.
func firstBalancedObject(content string) string {
	start := strings.IndexByte(content, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		ch := content[i]
		switch {
		case escaped:
			escaped = false
		case inString && ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}
	return ""
}

func cleanJSON(raw string) string {
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		lines[i] = stripLineComment(line)
	}
	return trailingCommaPattern.ReplaceAllString(strings.Join(lines, "\n"), "$1")
}

// stripLineComment drops a trailing // comment that sits outside any string.
func stripLineComment(line string) string {
	if !strings.Contains(line, "//") {
		return line
	}
	inString := false
	escaped := false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if !inString && ch == '/' && i+1 < len(line) && line[i+1] == '/' {
			return strings.TrimRight(line[:i], " \t")
		}
	}
	return line
}
