package envelope

import (
	"regexp"
	"strings"
)

var jsonFence = regexp.MustCompile("(?s)```json[ \\t]*\\r?\\n(.*?)```")

// ExtractJSONObject returns the first balanced {...} object in s. The scan
// is aware of JSON strings and backslash escapes, so braces inside string
// values do not affect nesting. A ```json fence, when present, is searched
// first. It does not validate the object; callers unmarshal it.
func ExtractJSONObject(s string) (string, bool) {
	if m := jsonFence.FindStringSubmatch(s); m != nil {
		if obj, ok := scanObject(m[1]); ok {
			return obj, true
		}
	}
	return scanObject(s)
}

func scanObject(s string) (string, bool) {
	for start := strings.IndexByte(s, '{'); start >= 0; {
		if end := matchBrace(s, start); end > 0 {
			return s[start : end+1], true
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

// matchBrace returns the index of the brace closing the one at start, or -1.
func matchBrace(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
