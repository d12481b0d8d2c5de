package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Payload is one structured object recovered from raw model text.
type Payload map[string]any

// NextThought returns the trimmed next_thought string, if present.
func (p Payload) NextThought() string {
	if p == nil {
		return ""
	}
	switch v := p["next_thought"].(type) {
	case string:
		return strings.TrimSpace(v)
	default:
		return ""
	}
}

// RawNotes returns the notes mapping, if the payload carries one.
func (p Payload) RawNotes() (map[string]any, bool) {
	if p == nil {
		return nil, false
	}
	m, ok := p["notes"].(map[string]any)
	return m, ok
}

// Answer returns the trimmed answer string, if present.
func (p Payload) Answer() string {
	if p == nil {
		return ""
	}
	switch v := p["answer"].(type) {
	case string:
		return strings.TrimSpace(v)
	default:
		return ""
	}
}

// snippetLimit bounds the raw-text diagnostic carried by MalformedResponseError.
const snippetLimit = 500

// MalformedResponseError reports that no extraction strategy produced a valid
// object. It is recoverable: callers record an error payload and continue.
type MalformedResponseError struct {
	Snippet string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("model did not return valid JSON (raw: %s...)", e.Snippet)
}

// ErrorPayload returns the sentinel payload persisted in place of a parsed
// response when extraction fails entirely.
func ErrorPayload(raw string, err error) Payload {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Payload{
		"raw_text":    raw,
		"parse_error": msg,
	}
}

// IsErrorPayload reports whether p is a sentinel produced by ErrorPayload.
func IsErrorPayload(p Payload) bool {
	if p == nil {
		return false
	}
	_, ok := p["parse_error"]
	return ok
}

type strategy struct {
	name string
	fn   func(string) (Payload, bool)
}

// Extractor recovers a structured object from raw model text via an ordered
// chain of strategies; the first success wins.
type Extractor struct {
	strategies []strategy
}

// New builds the strategy chain. wantNextThought enables the last-resort regex
// rescue used when the target schema carries a next_thought field; the other
// schemas deliberately have no equivalent rescue.
func New(wantNextThought bool) *Extractor {
	e := &Extractor{
		strategies: []strategy{
			{name: "strict_json", fn: parseStrict},
			{name: "fenced_object", fn: parseFencedObject},
		},
	}
	if wantNextThought {
		e.strategies = append(e.strategies, strategy{name: "next_thought_rescue", fn: rescueNextThought})
	}
	return e
}

// Extract runs the strategy chain. On total failure it returns a
// *MalformedResponseError carrying the first 500 characters of raw text.
func (e *Extractor) Extract(raw string) (Payload, error) {
	for _, s := range e.strategies {
		if p, ok := s.fn(raw); ok {
			return p, nil
		}
	}
	return nil, &MalformedResponseError{Snippet: truncateRunes(raw, snippetLimit)}
}

func parseStrict(raw string) (Payload, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed[0] != '{' {
		return nil, false
	}
	var p Payload
	if err := json.Unmarshal([]byte(trimmed), &p); err != nil {
		return nil, false
	}
	return p, true
}

// parseFencedObject strips a surrounding code fence (and an optional language
// tag directly after the opening fence), then isolates the first top-level
// object via depth-counted brace matching.
func parseFencedObject(raw string) (Payload, bool) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.Trim(s, "` \n")
		if len(s) >= 4 && strings.EqualFold(s[:4], "json") {
			s = strings.TrimSpace(s[4:])
		}
	}
	candidate, ok := firstObject(s)
	if !ok {
		return nil, false
	}
	var p Payload
	if err := json.Unmarshal([]byte(candidate), &p); err != nil {
		return nil, false
	}
	return p, true
}

// firstObject returns the first balanced {...} span. Braces inside string
// values are out of scope for this recovery path.
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

var nextThoughtPattern = regexp.MustCompile(`"next_thought"\s*:\s*"([^"]+)"`)

func rescueNextThought(raw string) (Payload, bool) {
	m := nextThoughtPattern.FindStringSubmatch(raw)
	if m == nil {
		return nil, false
	}
	return Payload{
		"next_thought": m[1],
		"notes":        map[string]any{},
	}, true
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
