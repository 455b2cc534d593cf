package worker

import "github.com/bytedance/sonic"

// ExtractJSON decodes model output that may wrap JSON in prose. It first
// attempts a direct decode; on failure it scans for the first fully balanced
// {...} or [...] span and decodes that. Returns nil when nothing decodes.
func ExtractJSON(s string) any {
	var v any
	if err := sonic.UnmarshalString(s, &v); err == nil {
		return v
	}

	span, ok := firstBalancedSpan(s)
	if !ok {
		return nil
	}
	if err := sonic.UnmarshalString(span, &v); err != nil {
		return nil
	}
	return v
}

// firstBalancedSpan returns the first substring that opens with '{' or '['
// and closes with its balanced counterpart, honoring JSON string literals
// and escapes. A greedy regex would mis-span nested or multi-top-level
// responses; this scanner does not.
func firstBalancedSpan(s string) (string, bool) {
	start := -1
	for i := 0; i < len(s); i++ {
		if s[i] == '{' || s[i] == '[' {
			start = i
			break
		}
	}
	if start < 0 {
		return "", false
	}

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
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
