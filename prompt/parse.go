package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var markdownCodeBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// ErrNoArray is returned when the response holds no JSON array at all.
var ErrNoArray = errors.New("response contains no JSON array")

type paragraph struct {
	Line int             `json:"line"`
	Text json.RawMessage `json:"text"`
}

// Parse decodes a model response into one translated string per paragraph,
// in the order the model returned them. Markdown code fences and text around
// the outer JSON array are ignored.
func Parse(content string) ([]string, error) {
	content = strings.TrimSpace(content)

	if m := markdownCodeBlock.FindStringSubmatch(content); len(m) > 1 {
		content = m[1]
	}

	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: %s", ErrNoArray, truncate(content, 200))
	}
	content = repairEscapes(content[start : end+1])

	var paragraphs []paragraph
	if err := json.Unmarshal([]byte(content), &paragraphs); err != nil {
		return nil, fmt.Errorf("decoding paragraphs: %w\nResponse: %s", err, truncate(content, 300))
	}

	out := make([]string, 0, len(paragraphs))
	for i, p := range paragraphs {
		text, err := sentences(p.Text)
		if err != nil {
			return nil, fmt.Errorf("paragraph %d: %w", i+1, err)
		}
		out = append(out, joinSentences(text))
	}
	return out, nil
}

// sentences accepts either a list of strings or a bare string.
func sentences(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, errors.New(`missing "text"`)
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf(`"text" is neither a string nor a list of strings: %s`, truncate(string(raw), 100))
	}
	return []string{s}, nil
}

// joinSentences turns the sentences of one paragraph into a single output
// line. Line breaks inside a sentence are folded into spaces.
func joinSentences(text []string) string {
	s := stripTags(strings.Join(text, " "))
	if strings.ContainsAny(s, "\r\n") {
		s = strings.Join(strings.FieldsFunc(s, func(r rune) bool { return r == '\r' || r == '\n' }), " ")
	}
	return s
}

func stripTags(s string) string {
	s = strings.ReplaceAll(s, OpenTag, "")
	s = strings.ReplaceAll(s, CloseTag, "")
	return s
}

// repairEscapes doubles backslashes that do not start a valid JSON escape
// sequence inside string values. Models sometimes emit "\&" or "\m" unescaped.
func repairEscapes(s string) string {
	var fixed strings.Builder
	inQuote := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]

		if c == '"' && !escaped {
			inQuote = !inQuote
			fixed.WriteByte(c)
			continue
		}

		if inQuote && c == '\\' && !escaped {
			if i+1 < len(s) && strings.IndexByte(`"\/bfnrtu`, s[i+1]) >= 0 {
				fixed.WriteByte(c)
				escaped = true
				continue
			}
			fixed.WriteString(`\\`)
			continue
		}

		fixed.WriteByte(c)
		escaped = false
	}

	return fixed.String()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	for maxLen > 0 && !utf8.RuneStart(s[maxLen]) {
		maxLen--
	}
	return s[:maxLen] + "..."
}
