package llm

import (
	"encoding/json"
	"strings"
	"unicode"
)

// Models frequently wrap their JSON in prose: reasoning preambles,
// markdown code fences, trailing commentary. The extraction helpers
// here salvage the structured payload from that noise so the agents
// only fall back to templates when the response is truly unusable.

// diaryKeys are the fields a diary response object must carry at least
// one of. A JSON object without any of them (e.g. an echo of the
// request) is not a diary response.
var diaryKeys = []string{"title", "content", "description"}

// ExtractJSONObject scans raw for the first well-formed JSON object
// containing a diary key and returns it re-serialized from the parsed
// form. Code fences and any preamble or trailing text are ignored.
// Returns false when no such object exists.
func ExtractJSONObject(raw string) (map[string]any, bool) {
	s := stripFences(raw)

	for start := strings.IndexByte(s, '{'); start >= 0; {
		// A stray brace in the preamble never balances; keep scanning
		// from the next open so a later well-formed object still wins.
		if end, ok := matchBrace(s, start); ok {
			var obj map[string]any
			if err := json.Unmarshal([]byte(s[start:end+1]), &obj); err == nil {
				if hasDiaryKey(obj) {
					return obj, true
				}
			}
		}

		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start = start + 1 + next
	}
	return nil, false
}

// matchBrace returns the index of the brace closing the one at start,
// honoring JSON string literals and escapes.
func matchBrace(s string, start int) (int, bool) {
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
				return i, true
			}
		}
	}
	return 0, false
}

func hasDiaryKey(obj map[string]any) bool {
	for _, k := range diaryKeys {
		if _, ok := obj[k]; ok {
			return true
		}
	}
	return false
}

// stripFences removes markdown code fence lines, keeping their
// contents. The fence language tag ("```json") is discarded with the
// fence.
func stripFences(s string) string {
	if !strings.Contains(s, "```") {
		return s
	}
	var b strings.Builder
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// ExtractReadableRun is the last salvage step before template
// fallback: it returns the longest contiguous run of diary-visible
// runes in raw, truncated to maxRunes. Diary-visible means Han, kana,
// letters, digits, spaces, and basic punctuation, never JSON
// structure characters, so a half-broken JSON blob yields its longest
// text value rather than syntax. Returns "" when raw holds nothing
// usable.
func ExtractReadableRun(raw string, maxRunes int) string {
	var best, cur []rune
	for _, r := range raw {
		if diaryVisible(r) {
			cur = append(cur, r)
			continue
		}
		if len(cur) > len(best) {
			best = cur
		}
		cur = nil
	}
	if len(cur) > len(best) {
		best = cur
	}

	out := strings.TrimSpace(string(best))
	runes := []rune(out)
	if maxRunes > 0 && len(runes) > maxRunes {
		runes = runes[:maxRunes]
		out = string(runes)
	}
	return out
}

func diaryVisible(r rune) bool {
	switch r {
	case '{', '}', '[', ']', '"', '\\', '\n', '\r', '\t':
		return false
	}
	if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' {
		return true
	}
	switch r {
	case '!', '?', '.', ',', ':', ';', '\'', '~', '-',
		'！', '？', '。', '，', '：', '；', '、', '…', '—':
		return true
	}
	// Emoji and other symbols are fine in diary content.
	return unicode.IsSymbol(r)
}
