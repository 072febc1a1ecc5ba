package parsers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/aptify/knowledge-rag/internal/agent/model"
	errx "github.com/aptify/knowledge-rag/internal/core/error"
	logx "github.com/aptify/knowledge-rag/pkg/logger"
)

const opParse = "parsers.ParseDecision"

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 64 * 1024 // 64KB
	maxFields     = 32        // maximum number of fields kept
	maxValueLen   = 4 * 1024  // 4KB per value
	maxErrSnippet = 200       // limit error snippet size
)

var errNoDecision = errors.New("no decision object found")

// ParseDecision extracts the structured decision from classifier output.
// The model is asked for a single JSON object such as {"score": "yes"}, but
// code fences, surrounding prose and a plain "key: value" line are tolerated.
// Values are trimmed and lower-cased. Anything unusable is reported as an
// errx KindClassification error.
func ParseDecision(content string) (d model.Decision, err error) {
	// panic safety
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "decision_parser").Msgf("panic recovered: %v", r)
			d = model.Decision{}
			err = errx.Classification(opParse, fmt.Errorf("decision parser panic: %v", r))
		}
	}()

	d = model.Decision{Raw: content}

	// content length guard
	if len(content) > maxContentLen {
		logx.Warn().
			Str("component", "decision_parser").
			Int("max_len", maxContentLen).
			Int("orig_len", len(content)).
			Msg("content truncated due to size limit")
		content = truncateRunes(content, maxContentLen)
	}
	if !utf8.ValidString(content) {
		return d, errx.Classification(opParse, fmt.Errorf("invalid utf8"))
	}

	body := stripFences(content)
	fields, jerr := parseJSONObject(body)
	if jerr != nil {
		fields = parseKeyValueLines(body)
		if len(fields) == 0 {
			return d, errx.Classification(opParse, fmt.Errorf("%w: %s", jerr, safeSnippet(content)))
		}
	}
	d.Fields = fields
	return d, nil
}

// truncateRunes cuts s to at most n bytes without splitting a rune.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// stripFences removes a surrounding ``` or ```json block.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// parseJSONObject decodes the first balanced {...} object in s.
func parseJSONObject(s string) (map[string]string, error) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return nil, errNoDecision
	}
	end := matchingBrace(s, start)
	if end < 0 {
		return nil, fmt.Errorf("unbalanced decision object")
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(s[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("decision json: %w", err)
	}
	if len(raw) == 0 {
		return nil, errNoDecision
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if len(out) >= maxFields {
			break
		}
		var val string
		switch x := v.(type) {
		case string:
			val = x
		case bool:
			val = "no"
			if x {
				val = "yes"
			}
		case float64:
			val = fmt.Sprintf("%g", x)
		default:
			continue
		}
		out[normalizeKey(k)] = normalizeValue(val)
	}
	return out, nil
}

// matchingBrace returns the index of the brace closing the one at start,
// honouring JSON string literals.
func matchingBrace(s string, start int) int {
	depth := 0
	inStr := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
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

// parseKeyValueLines accepts lines such as `score: yes` or `datasource = vectorstore`.
func parseKeyValueLines(s string) map[string]string {
	out := map[string]string{}
	for _, line := range strings.Split(s, "\n") {
		if len(out) >= maxFields {
			break
		}
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			key, val, ok = strings.Cut(line, "=")
		}
		if !ok {
			continue
		}
		key = normalizeKey(key)
		val = normalizeValue(val)
		if !isIdent(key) || val == "" {
			continue
		}
		out[key] = val
	}
	return out
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r != '_' && (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func normalizeKey(k string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(k), `"'`))
}

func normalizeValue(v string) string {
	v = strings.ToLower(strings.Trim(strings.TrimSpace(v), `"'.,`))
	if len(v) > maxValueLen {
		v = v[:maxValueLen]
	}
	return v
}

func safeSnippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrSnippet {
		return s
	}
	return s[:maxErrSnippet]
}
